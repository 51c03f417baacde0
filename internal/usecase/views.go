package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/example/order-dashboard/internal/derived"
	"github.com/example/order-dashboard/internal/domain"
	"github.com/example/order-dashboard/internal/querycache"
)

// Panel состояние одной панели: данные показываются даже при ошибке
// последнего обновления.
type Panel[T any] struct {
	Data        T                 `json:"data"`
	Status      querycache.Status `json:"status"`
	Error       string            `json:"error,omitempty"`
	LastUpdated *time.Time        `json:"lastUpdated,omitempty"`
	Stale       bool              `json:"stale"`

	err     error
	hasData bool
}

func (p Panel[T]) Err() error    { return p.err }
func (p Panel[T]) HasData() bool { return p.hasData }

// NotFound сообщает, что сервис ответил 404, а данных нет.
func (p Panel[T]) NotFound() bool {
	return !p.hasData && errors.Is(p.err, domain.ErrNotFound)
}

func panelOf[T any](s querycache.Snapshot) Panel[T] {
	p := Panel[T]{Status: s.Status, Stale: s.Stale, err: s.Err, hasData: s.HasData()}
	if v, ok := querycache.Value[T](s); ok {
		p.Data = v
	}
	if s.Err != nil {
		p.Error = s.Err.Error()
	}
	if s.HasData() {
		t := s.LastUpdated
		p.LastUpdated = &t
	}
	return p
}

func mapPanel[T, U any](p Panel[T], f func(T) U) Panel[U] {
	return Panel[U]{
		Data:        f(p.Data),
		Status:      p.Status,
		Error:       p.Error,
		LastUpdated: p.LastUpdated,
		Stale:       p.Stale,
		err:         p.err,
		hasData:     p.hasData,
	}
}

type lease struct {
	sub      *querycache.Subscription
	lastUsed time.Time
	pinned   bool
}

// Views отдаёт представления страниц дашборда. Каждый прочитанный запрос
// удерживается подпиской (как открытая в браузере страница) и обновляется
// по своему интервалу, пока к нему обращаются. Release снимает подписки,
// к которым давно не обращались.
type Views struct {
	cache   *querycache.Cache
	catalog *Catalog
	wait    time.Duration
	now     func() time.Time

	mu     sync.Mutex
	leases map[querycache.Key]*lease
}

// NewViews wait ограничивает ожидание первой загрузки холодного запроса.
func NewViews(cache *querycache.Cache, catalog *Catalog, wait time.Duration) *Views {
	return &Views{
		cache:   cache,
		catalog: catalog,
		wait:    wait,
		now:     time.Now,
		leases:  make(map[querycache.Key]*lease),
	}
}

// Watch подписывает запрос без чтения до Close; Release его не снимает.
func (v *Views) Watch(q Query) {
	v.acquire(q, true)
}

func (v *Views) acquire(q Query, pin bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if l, ok := v.leases[q.Key]; ok {
		l.lastUsed = v.now()
		l.pinned = l.pinned || pin
		// повторное чтение перезагружает ошибочную или устаревшую запись
		v.cache.Touch(q.Key)
		return
	}
	v.leases[q.Key] = &lease{
		sub:      v.cache.Subscribe(q.Key, q.Fetch, q.Interval, nil),
		lastUsed: v.now(),
		pinned:   pin,
	}
}

// Release снимает незакреплённые подписки, не использовавшиеся дольше maxIdle.
func (v *Views) Release(maxIdle time.Duration) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	now := v.now()
	n := 0
	for key, l := range v.leases {
		if !l.pinned && now.Sub(l.lastUsed) >= maxIdle {
			l.sub.Close()
			delete(v.leases, key)
			n++
		}
	}
	return n
}

// Close снимает все подписки.
func (v *Views) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for key, l := range v.leases {
		l.sub.Close()
		delete(v.leases, key)
	}
}

func load[T any](ctx context.Context, v *Views, q Query) Panel[T] {
	v.acquire(q, false)
	snap := v.cache.Snapshot(q.Key)
	if !snap.HasData() && snap.Status == querycache.StatusLoading && v.wait > 0 {
		wctx, cancel := context.WithTimeout(ctx, v.wait)
		defer cancel()
		snap, _ = v.cache.Await(wctx, q.Key)
	}
	return panelOf[T](snap)
}

// Refresh инвалидирует все запросы ресурса, как кнопка обновления страницы.
func (v *Views) Refresh(resource string) int {
	return v.cache.Invalidate(querycache.Prefix(resource))
}

// Dashboard главная страница.
type Dashboard struct {
	Stats        Panel[domain.OrderStatistics] `json:"stats"`
	SuccessRate  float64                       `json:"successRate"`
	DLQ          Panel[domain.DLQStatistics]   `json:"dlq"`
	RecentOrders Panel[[]domain.Order]         `json:"recentOrders"`
}

func (v *Views) Dashboard(ctx context.Context) Dashboard {
	stats := load[domain.OrderStatistics](ctx, v, v.catalog.OrderStats())
	recent := load[domain.Page[domain.Order]](ctx, v, v.catalog.RecentOrders())
	return Dashboard{
		Stats:        stats,
		SuccessRate:  derived.SuccessRate(stats.Data),
		DLQ:          load[domain.DLQStatistics](ctx, v, v.catalog.DLQStats()),
		RecentOrders: mapPanel(recent, func(p domain.Page[domain.Order]) []domain.Order { return nonNil(p.Content) }),
	}
}

// OrdersQuery параметры страницы заказов.
type OrdersQuery struct {
	Page      int
	Size      int
	SortBy    string
	Direction string
	Filter    derived.OrderFilter
}

// OrdersPage таблица заказов: фильтр применяется к загруженной странице.
type OrdersPage struct {
	Orders        Panel[[]domain.Order] `json:"orders"`
	Page          int                   `json:"page"`
	Size          int                   `json:"size"`
	TotalPages    int                   `json:"totalPages"`
	TotalElements int64                 `json:"totalElements"`
	Shown         int                   `json:"shown"`
	Products      []string              `json:"products"`
	SortBy        string                `json:"sortBy"`
	Direction     string                `json:"direction"`
	Search        string                `json:"search,omitempty"`
	Product       string                `json:"product,omitempty"`
}

func (v *Views) Orders(ctx context.Context, q OrdersQuery) OrdersPage {
	req := ordersPage(domain.PageRequest{Page: q.Page, Size: q.Size, SortBy: q.SortBy, Direction: q.Direction})
	query := v.catalog.Orders(req)
	page := load[domain.Page[domain.Order]](ctx, v, query)
	stats := load[[]domain.ProductStat](ctx, v, v.catalog.ProductStats())

	orders := mapPanel(page, func(p domain.Page[domain.Order]) []domain.Order {
		return derived.FilterOrders(p.Content, q.Filter)
	})
	return OrdersPage{
		Orders:        orders,
		Page:          req.Page,
		Size:          req.Size,
		SortBy:        req.SortBy,
		Direction:     req.Direction,
		TotalPages:    page.Data.TotalPages,
		TotalElements: page.Data.TotalElements,
		Shown:         len(orders.Data),
		Products:      derived.ProductNames(stats.Data),
		Search:        q.Filter.SearchTerm,
		Product:       q.Filter.Product,
	}
}

func (v *Views) Order(ctx context.Context, id int64) Panel[domain.Order] {
	return load[domain.Order](ctx, v, v.catalog.Order(id))
}

func (v *Views) OrderByOrderID(ctx context.Context, orderID string) Panel[domain.Order] {
	return load[domain.Order](ctx, v, v.catalog.OrderByOrderID(orderID))
}

func (v *Views) OrdersByProduct(ctx context.Context, product string) Panel[[]domain.Order] {
	p := load[[]domain.Order](ctx, v, v.catalog.OrdersByProduct(product))
	return mapPanel(p, nonNil[domain.Order])
}

// OrdersByStatus страница заказов в статусе PROCESSED, PROCESSING или FAILED.
func (v *Views) OrdersByStatus(ctx context.Context, status string, page, size int) (Panel[domain.Page[domain.Order]], error) {
	switch status {
	case domain.OrderProcessed, domain.OrderProcessing, domain.OrderFailed:
	default:
		return Panel[domain.Page[domain.Order]]{}, &domain.ValidationError{Field: "status", Reason: "unknown status " + status}
	}
	p := load[domain.Page[domain.Order]](ctx, v, v.catalog.OrdersByStatus(status, page, size))
	return mapPanel(p, func(pg domain.Page[domain.Order]) domain.Page[domain.Order] {
		pg.Content = nonNil(pg.Content)
		return pg
	}), nil
}

func (v *Views) Search(ctx context.Context, crit domain.SearchCriteria) Panel[[]domain.Order] {
	p := load[[]domain.Order](ctx, v, v.catalog.OrderSearch(crit))
	return mapPanel(p, nonNil[domain.Order])
}

// Analytics страница агрегатов потоковой обработки.
type Analytics struct {
	Products      Panel[[]domain.ProductStat]      `json:"products"`
	Summary       derived.Summary                  `json:"summary"`
	ServerSummary Panel[domain.AggregationSummary] `json:"serverSummary"`
	RevenueShare  []derived.Share                  `json:"revenueShare"`
}

func (v *Views) Analytics(ctx context.Context) Analytics {
	all := load[map[string]domain.ProductStat](ctx, v, v.catalog.AggregationStats())
	products := mapPanel(all, derived.ProductBreakdown)
	return Analytics{
		Products:      products,
		Summary:       derived.Summarize(products.Data),
		ServerSummary: load[domain.AggregationSummary](ctx, v, v.catalog.AggregationSummary()),
		RevenueShare:  derived.RevenueShare(products.Data),
	}
}

func (v *Views) ProductAggregate(ctx context.Context, product string) Panel[domain.ProductStat] {
	return load[domain.ProductStat](ctx, v, v.catalog.ProductAggregate(product))
}

// DLQPage страница dead-letter очереди.
type DLQPage struct {
	Filter string                      `json:"filter"`
	Orders Panel[[]domain.FailedOrder] `json:"orders"`
	Stats  Panel[domain.DLQStatistics] `json:"stats"`
}

// DLQ status пустой или "all" показывает все записи.
func (v *Views) DLQ(ctx context.Context, status string) (DLQPage, error) {
	filter := status
	if status == "" || strings.EqualFold(status, "all") {
		filter, status = "all", ""
	} else if !domain.ValidFailedStatus(status) {
		return DLQPage{}, &domain.ValidationError{Field: "status", Reason: "unknown status " + status}
	}
	orders := load[[]domain.FailedOrder](ctx, v, v.catalog.FailedOrders(status))
	return DLQPage{
		Filter: filter,
		Orders: mapPanel(orders, nonNil[domain.FailedOrder]),
		Stats:  load[domain.DLQStatistics](ctx, v, v.catalog.DLQStats()),
	}, nil
}

func (v *Views) FailedOrder(ctx context.Context, id int64) Panel[domain.FailedOrder] {
	return load[domain.FailedOrder](ctx, v, v.catalog.FailedOrder(id))
}

func (v *Views) FailedOrdersByType(ctx context.Context, failureType string) Panel[[]domain.FailedOrder] {
	p := load[[]domain.FailedOrder](ctx, v, v.catalog.FailedOrdersByType(failureType))
	return mapPanel(p, nonNil[domain.FailedOrder])
}

// HealthView состояние сервисов конвейера.
type HealthView struct {
	Orders      Panel[domain.Health] `json:"orders"`
	Aggregation Panel[domain.Health] `json:"aggregation"`
}

func (v *Views) Health(ctx context.Context) HealthView {
	return HealthView{
		Orders:      load[domain.Health](ctx, v, v.catalog.OrderHealth()),
		Aggregation: load[domain.Health](ctx, v, v.catalog.AggregationHealth()),
	}
}

// WatchDefaults подписывает панели главной страницы и аналитики.
func (v *Views) WatchDefaults() {
	v.Watch(v.catalog.OrderStats())
	v.Watch(v.catalog.RecentOrders())
	v.Watch(v.catalog.DLQStats())
	v.Watch(v.catalog.AggregationStats())
	v.Watch(v.catalog.AggregationSummary())
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
