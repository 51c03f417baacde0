package backend

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/example/order-dashboard/internal/domain"
)

// OrdersClient клиент сервиса-потребителя: хранилище заказов.
type OrdersClient struct {
	c *Client
}

var _ domain.OrderStore = (*OrdersClient)(nil)

func NewOrdersClient(c *Client) *OrdersClient { return &OrdersClient{c: c} }

func (o *OrdersClient) ListOrders(ctx context.Context, req domain.PageRequest) (domain.Page[domain.Order], error) {
	q := pageQuery(req.Page, req.Size)
	if req.SortBy != "" {
		q.Set("sortBy", req.SortBy)
	}
	if req.Direction != "" {
		q.Set("direction", req.Direction)
	}
	var page domain.Page[domain.Order]
	if err := o.c.getJSON(ctx, "/api/orders", q, &page); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return page, nil
}

func (o *OrdersClient) GetOrder(ctx context.Context, id int64) (domain.Order, error) {
	var order domain.Order
	if err := o.c.getJSON(ctx, "/api/orders/"+strconv.FormatInt(id, 10), nil, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (o *OrdersClient) GetOrderByOrderID(ctx context.Context, orderID string) (domain.Order, error) {
	var order domain.Order
	if err := o.c.getJSON(ctx, "/api/orders/order/"+pathEscape(orderID), nil, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (o *OrdersClient) OrdersByProduct(ctx context.Context, product string) ([]domain.Order, error) {
	var orders []domain.Order
	if err := o.c.getJSON(ctx, "/api/orders/product/"+pathEscape(product), nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (o *OrdersClient) OrdersByStatus(ctx context.Context, status string, page, size int) (domain.Page[domain.Order], error) {
	var out domain.Page[domain.Order]
	if err := o.c.getJSON(ctx, "/api/orders/status/"+pathEscape(status), pageQuery(page, size), &out); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	return out, nil
}

func (o *OrdersClient) Statistics(ctx context.Context) (domain.OrderStatistics, error) {
	var stats domain.OrderStatistics
	if err := o.c.getJSON(ctx, "/api/orders/statistics", nil, &stats); err != nil {
		return domain.OrderStatistics{}, err
	}
	return stats, nil
}

// productRow строка /statistics/products: счётчик заказов приходит в поле count.
type productRow struct {
	Product      string  `json:"product"`
	Count        int64   `json:"count"`
	TotalRevenue float64 `json:"totalRevenue"`
	AveragePrice float64 `json:"averagePrice"`
}

func (o *OrdersClient) ProductStatistics(ctx context.Context) ([]domain.ProductStat, error) {
	var rows []productRow
	if err := o.c.getJSON(ctx, "/api/orders/statistics/products", nil, &rows); err != nil {
		return nil, err
	}
	out := make([]domain.ProductStat, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ProductStat{
			Product:      r.Product,
			OrderCount:   r.Count,
			TotalRevenue: r.TotalRevenue,
			AveragePrice: r.AveragePrice,
		})
	}
	return out, nil
}

// Search передаёт только заполненные критерии; сервер применяет первый из
// orderId, product, status.
func (o *OrdersClient) Search(ctx context.Context, c domain.SearchCriteria) ([]domain.Order, error) {
	q := url.Values{}
	if c.OrderID != "" {
		q.Set("orderId", c.OrderID)
	}
	if c.Product != "" {
		q.Set("product", c.Product)
	}
	if c.Status != "" {
		q.Set("status", c.Status)
	}
	var orders []domain.Order
	if err := o.c.getJSON(ctx, "/api/orders/search", q, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func (o *OrdersClient) Health(ctx context.Context) (domain.Health, error) {
	var h domain.Health
	if err := o.c.getJSON(ctx, "/api/orders/health", nil, &h); err != nil {
		return domain.Health{}, err
	}
	return h, nil
}

func pageQuery(page, size int) url.Values {
	q := url.Values{}
	if page < 0 {
		page = 0
	}
	q.Set("page", strconv.Itoa(page))
	if size > 0 {
		q.Set("size", strconv.Itoa(size))
	}
	return q
}

func idPath(prefix string, id int64) string {
	return fmt.Sprintf("%s/%d", prefix, id)
}
