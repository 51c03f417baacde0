package usecase

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/example/order-dashboard/internal/domain"
	"github.com/example/order-dashboard/internal/querycache"
)

var errBackend = errors.New("backend unavailable")

type fakeProducer struct {
	calls    atomic.Int32
	failWhen func(call int32) bool

	mu   sync.Mutex
	reqs []domain.OrderRequest
}

func (p *fakeProducer) CreateOrder(_ context.Context, req domain.OrderRequest) (string, error) {
	n := p.calls.Add(1)
	p.mu.Lock()
	p.reqs = append(p.reqs, req)
	p.mu.Unlock()
	if p.failWhen != nil && p.failWhen(n) {
		return "", errBackend
	}
	return "Order sent: " + req.OrderID, nil
}

func (p *fakeProducer) CreateRandomOrder(context.Context) (string, error) {
	n := p.calls.Add(1)
	if p.failWhen != nil && p.failWhen(n) {
		return "", errBackend
	}
	return "Random order produced", nil
}

type fakeDLQ struct {
	mu          sync.Mutex
	calls       int
	actors      []string
	failed      []domain.FailedOrder
	stats       domain.DLQStatistics
	summary     domain.ReprocessSummary
	err         error
	fetches     atomic.Int32
	statsErrors atomic.Bool
}

func (d *fakeDLQ) FailedOrders(_ context.Context, status string) ([]domain.FailedOrder, error) {
	d.fetches.Add(1)
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.FailedOrder
	for _, f := range d.failed {
		if status == "" || f.Status == status {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *fakeDLQ) FailedOrdersByType(_ context.Context, failureType string) ([]domain.FailedOrder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []domain.FailedOrder
	for _, f := range d.failed {
		if f.FailureType == failureType {
			out = append(out, f)
		}
	}
	return out, nil
}

func (d *fakeDLQ) FailedOrder(_ context.Context, id int64) (domain.FailedOrder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.failed {
		if f.ID == id {
			return f, nil
		}
	}
	return domain.FailedOrder{}, domain.ErrNotFound
}

func (d *fakeDLQ) Statistics(context.Context) (domain.DLQStatistics, error) {
	if d.statsErrors.Load() {
		return domain.DLQStatistics{}, errBackend
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats, nil
}

func (d *fakeDLQ) Reprocess(_ context.Context, id int64, actor string) (domain.ActionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.actors = append(d.actors, actor)
	if d.err != nil {
		return domain.ActionResult{}, d.err
	}
	return domain.ActionResult{Status: "success", Message: "Order reprocessed successfully"}, nil
}

func (d *fakeDLQ) ReprocessAll(_ context.Context, actor string) (domain.ReprocessSummary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	d.actors = append(d.actors, actor)
	if d.err != nil {
		return domain.ReprocessSummary{}, d.err
	}
	return d.summary, nil
}

func (d *fakeDLQ) Discard(_ context.Context, id int64) (domain.ActionResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls++
	if d.err != nil {
		return domain.ActionResult{}, d.err
	}
	for i := range d.failed {
		if d.failed[i].ID == id {
			d.failed[i].Status = domain.FailedDiscarded
			return domain.ActionResult{Status: "success", Message: "Order discarded"}, nil
		}
	}
	return domain.ActionResult{}, domain.ErrNotFound
}

type fakeStore struct {
	mu       sync.Mutex
	orders   []domain.Order
	stats    domain.OrderStatistics
	products []domain.ProductStat
	fail     bool
	calls    atomic.Int32
	pages    []domain.PageRequest
}

func (s *fakeStore) failing() error {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errBackend
	}
	return nil
}

func (s *fakeStore) ListOrders(_ context.Context, req domain.PageRequest) (domain.Page[domain.Order], error) {
	if err := s.failing(); err != nil {
		return domain.Page[domain.Order]{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages = append(s.pages, req)
	from := min(req.Page*req.Size, len(s.orders))
	to := min(from+req.Size, len(s.orders))
	pages := (len(s.orders) + req.Size - 1) / req.Size
	return domain.Page[domain.Order]{Content: s.orders[from:to], TotalPages: pages, TotalElements: int64(len(s.orders))}, nil
}

func (s *fakeStore) GetOrder(_ context.Context, id int64) (domain.Order, error) {
	if err := s.failing(); err != nil {
		return domain.Order{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (s *fakeStore) GetOrderByOrderID(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.OrderID == orderID {
			return o, nil
		}
	}
	return domain.Order{}, domain.ErrNotFound
}

func (s *fakeStore) OrdersByProduct(_ context.Context, product string) ([]domain.Order, error) {
	return s.where(func(o domain.Order) bool { return o.Product == product }), nil
}

func (s *fakeStore) OrdersByStatus(_ context.Context, status string, _, _ int) (domain.Page[domain.Order], error) {
	content := s.where(func(o domain.Order) bool { return o.Status == status })
	return domain.Page[domain.Order]{Content: content, TotalPages: 1, TotalElements: int64(len(content))}, nil
}

func (s *fakeStore) where(keep func(domain.Order) bool) []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	return out
}

func (s *fakeStore) Statistics(context.Context) (domain.OrderStatistics, error) {
	if err := s.failing(); err != nil {
		return domain.OrderStatistics{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, nil
}

func (s *fakeStore) ProductStatistics(context.Context) ([]domain.ProductStat, error) {
	if err := s.failing(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.products, nil
}

func (s *fakeStore) Search(_ context.Context, c domain.SearchCriteria) ([]domain.Order, error) {
	if err := s.failing(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Order
	for _, o := range s.orders {
		if o.Product == c.Product {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) Health(context.Context) (domain.Health, error) {
	if err := s.failing(); err != nil {
		return domain.Health{}, err
	}
	return domain.Health{Status: "UP"}, nil
}

func (s *fakeStore) setFail(v bool) {
	s.mu.Lock()
	s.fail = v
	s.mu.Unlock()
}

type fakeAggregation struct {
	all     map[string]domain.ProductStat
	summary domain.AggregationSummary
}

func (a *fakeAggregation) ProductStatistics(_ context.Context, product string) (domain.ProductStat, error) {
	s, ok := a.all[product]
	if !ok {
		return domain.ProductStat{}, domain.ErrNotFound
	}
	return s, nil
}

func (a *fakeAggregation) AllStatistics(context.Context) (map[string]domain.ProductStat, error) {
	return a.all, nil
}

func (a *fakeAggregation) Summary(context.Context) (domain.AggregationSummary, error) {
	return a.summary, nil
}

func (a *fakeAggregation) Health(context.Context) (domain.Health, error) {
	return domain.Health{Status: "UP", State: "RUNNING"}, nil
}

type recordingInvalidator struct {
	mu    sync.Mutex
	calls [][]querycache.Filter
}

func (r *recordingInvalidator) Invalidate(filters ...querycache.Filter) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, filters)
	return len(filters)
}

func (r *recordingInvalidator) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// matches сообщает, затронул бы последний вызов Invalidate ключи ресурса.
func (r *recordingInvalidator) matches(resource string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.calls) == 0 {
		return false
	}
	key := querycache.NewKey(resource)
	for _, f := range r.calls[len(r.calls)-1] {
		if f.Match(key) {
			return true
		}
	}
	return false
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.AuditEvent
	err    error
	// onPublish вызывается при каждой публикации
	onPublish func()
}

func (s *recordingSink) Publish(_ context.Context, ev domain.AuditEvent) error {
	if s.onPublish != nil {
		s.onPublish()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return s.err
}
