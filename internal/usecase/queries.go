package usecase

import (
	"context"
	"strconv"
	"time"

	"github.com/example/order-dashboard/internal/domain"
	"github.com/example/order-dashboard/internal/querycache"
)

// Ресурсы кэша запросов. Инвалидация команд ссылается на них по имени.
const (
	ResOrders             = "orders"
	ResRecentOrders       = "recentOrders"
	ResOrder              = "order"
	ResOrderByOrderID     = "orderByOrderId"
	ResOrdersByProduct    = "ordersByProduct"
	ResOrdersByStatus     = "ordersByStatus"
	ResOrderStats         = "orderStats"
	ResProductStats       = "productStats"
	ResOrderSearch        = "orderSearch"
	ResOrderHealth        = "orderHealth"
	ResFailedOrders       = "failedOrders"
	ResFailedOrder        = "failedOrder"
	ResFailedOrdersByType = "failedOrdersByType"
	ResDLQStats           = "dlqStats"
	ResAggregationStats   = "aggregationStats"
	ResAggregationSummary = "aggregationSummary"
	ResProductAggregate   = "productAggregate"
	ResAggregationHealth  = "aggregationHealth"
)

const (
	RecentOrdersSize = 10
	DefaultPageSize  = 20
)

// Query описание запроса для кэша: ключ, загрузчик и интервал (0 вручную).
type Query struct {
	Key      querycache.Key
	Fetch    querycache.Fetcher
	Interval time.Duration
}

// Intervals частота автообновления панелей.
type Intervals struct {
	Fast time.Duration
	Slow time.Duration
}

// Catalog строит запросы дашборда поверх портов сервисов. Транспорт кэшу
// не виден: он получает только загрузчики.
type Catalog struct {
	orders domain.OrderStore
	dlq    domain.DeadLetterQueue
	agg    domain.Aggregation
	every  Intervals
}

func NewCatalog(orders domain.OrderStore, dlq domain.DeadLetterQueue, agg domain.Aggregation, every Intervals) *Catalog {
	return &Catalog{orders: orders, dlq: dlq, agg: agg, every: every}
}

func fetcher[T any](f func(ctx context.Context) (T, error)) querycache.Fetcher {
	return func(ctx context.Context) (any, error) {
		v, err := f(ctx)
		if err != nil {
			return nil, err
		}
		return v, nil
	}
}

func (c *Catalog) OrderStats() Query {
	return Query{Key: querycache.NewKey(ResOrderStats), Fetch: fetcher(c.orders.Statistics), Interval: c.every.Fast}
}

// RecentOrders последние заказы для главной страницы.
func (c *Catalog) RecentOrders() Query {
	return Query{
		Key: querycache.NewKey(ResRecentOrders),
		Fetch: fetcher(func(ctx context.Context) (domain.Page[domain.Order], error) {
			return c.orders.ListOrders(ctx, domain.PageRequest{Page: 0, Size: RecentOrdersSize})
		}),
		Interval: c.every.Fast,
	}
}

// Orders страница таблицы заказов. Непроверенная сортировка заменяется
// умолчанием, проверка ввода делается вызывающим через PageRequest.WithSort.
func (c *Catalog) Orders(req domain.PageRequest) Query {
	req = ordersPage(req)
	return Query{
		Key: querycache.NewKey(ResOrders,
			"page", strconv.Itoa(req.Page), "size", strconv.Itoa(req.Size),
			"sortBy", req.SortBy, "direction", req.Direction),
		Fetch: fetcher(func(ctx context.Context) (domain.Page[domain.Order], error) {
			return c.orders.ListOrders(ctx, req)
		}),
		Interval: c.every.Slow,
	}
}

// ordersPage приводит запрос страницы к виду, в котором он попадает в ключ.
func ordersPage(req domain.PageRequest) domain.PageRequest {
	req.Page = max(req.Page, 0)
	if req.Size <= 0 {
		req.Size = DefaultPageSize
	}
	sorted, err := req.WithSort()
	if err != nil {
		sorted, _ = domain.PageRequest{Page: req.Page, Size: req.Size}.WithSort()
	}
	return sorted
}

func (c *Catalog) Order(id int64) Query {
	return Query{
		Key: querycache.NewKey(ResOrder, "id", strconv.FormatInt(id, 10)),
		Fetch: fetcher(func(ctx context.Context) (domain.Order, error) {
			return c.orders.GetOrder(ctx, id)
		}),
	}
}

// OrderByOrderID заказ по бизнес-идентификатору orderId.
func (c *Catalog) OrderByOrderID(orderID string) Query {
	return Query{
		Key: querycache.NewKey(ResOrderByOrderID, "orderId", orderID),
		Fetch: fetcher(func(ctx context.Context) (domain.Order, error) {
			return c.orders.GetOrderByOrderID(ctx, orderID)
		}),
	}
}

func (c *Catalog) OrdersByProduct(product string) Query {
	return Query{
		Key: querycache.NewKey(ResOrdersByProduct, "product", product),
		Fetch: fetcher(func(ctx context.Context) ([]domain.Order, error) {
			return c.orders.OrdersByProduct(ctx, product)
		}),
		Interval: c.every.Slow,
	}
}

func (c *Catalog) OrdersByStatus(status string, page, size int) Query {
	if page < 0 {
		page = 0
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	return Query{
		Key: querycache.NewKey(ResOrdersByStatus, "status", status, "page", strconv.Itoa(page), "size", strconv.Itoa(size)),
		Fetch: fetcher(func(ctx context.Context) (domain.Page[domain.Order], error) {
			return c.orders.OrdersByStatus(ctx, status, page, size)
		}),
		Interval: c.every.Slow,
	}
}

// ProductStats статистика продуктов хранилища; обновляется вручную.
func (c *Catalog) ProductStats() Query {
	return Query{Key: querycache.NewKey(ResProductStats), Fetch: fetcher(c.orders.ProductStatistics)}
}

func (c *Catalog) OrderSearch(crit domain.SearchCriteria) Query {
	return Query{
		Key: querycache.NewKey(ResOrderSearch, "orderId", crit.OrderID, "product", crit.Product, "status", crit.Status),
		Fetch: fetcher(func(ctx context.Context) ([]domain.Order, error) {
			return c.orders.Search(ctx, crit)
		}),
	}
}

func (c *Catalog) OrderHealth() Query {
	return Query{Key: querycache.NewKey(ResOrderHealth), Fetch: fetcher(c.orders.Health), Interval: c.every.Slow}
}

// FailedOrders записи DLQ; пустой status означает все.
func (c *Catalog) FailedOrders(status string) Query {
	return Query{
		Key: querycache.NewKey(ResFailedOrders, "status", status),
		Fetch: fetcher(func(ctx context.Context) ([]domain.FailedOrder, error) {
			return c.dlq.FailedOrders(ctx, status)
		}),
		Interval: c.every.Slow,
	}
}

func (c *Catalog) FailedOrder(id int64) Query {
	return Query{
		Key: querycache.NewKey(ResFailedOrder, "id", strconv.FormatInt(id, 10)),
		Fetch: fetcher(func(ctx context.Context) (domain.FailedOrder, error) {
			return c.dlq.FailedOrder(ctx, id)
		}),
	}
}

func (c *Catalog) FailedOrdersByType(failureType string) Query {
	return Query{
		Key: querycache.NewKey(ResFailedOrdersByType, "type", failureType),
		Fetch: fetcher(func(ctx context.Context) ([]domain.FailedOrder, error) {
			return c.dlq.FailedOrdersByType(ctx, failureType)
		}),
	}
}

func (c *Catalog) DLQStats() Query {
	return Query{Key: querycache.NewKey(ResDLQStats), Fetch: fetcher(c.dlq.Statistics), Interval: c.every.Slow}
}

func (c *Catalog) AggregationStats() Query {
	return Query{Key: querycache.NewKey(ResAggregationStats), Fetch: fetcher(c.agg.AllStatistics), Interval: c.every.Fast}
}

func (c *Catalog) AggregationSummary() Query {
	return Query{Key: querycache.NewKey(ResAggregationSummary), Fetch: fetcher(c.agg.Summary), Interval: c.every.Fast}
}

func (c *Catalog) ProductAggregate(product string) Query {
	return Query{
		Key: querycache.NewKey(ResProductAggregate, "product", product),
		Fetch: fetcher(func(ctx context.Context) (domain.ProductStat, error) {
			return c.agg.ProductStatistics(ctx, product)
		}),
	}
}

func (c *Catalog) AggregationHealth() Query {
	return Query{Key: querycache.NewKey(ResAggregationHealth), Fetch: fetcher(c.agg.Health), Interval: c.every.Slow}
}

// Resources все известные ресурсы; используется для ручной инвалидации.
func Resources() []string {
	return []string{
		ResOrders, ResRecentOrders, ResOrder, ResOrderByOrderID, ResOrdersByProduct, ResOrdersByStatus,
		ResOrderStats, ResProductStats, ResOrderSearch, ResOrderHealth,
		ResFailedOrders, ResFailedOrder, ResFailedOrdersByType, ResDLQStats,
		ResAggregationStats, ResAggregationSummary, ResProductAggregate, ResAggregationHealth,
	}
}
