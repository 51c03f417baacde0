package domain

import (
	"context"
	"time"
)

// OrderStore порт чтения сервиса-потребителя (хранилище заказов).
type OrderStore interface {
	ListOrders(ctx context.Context, req PageRequest) (Page[Order], error)
	GetOrder(ctx context.Context, id int64) (Order, error)
	GetOrderByOrderID(ctx context.Context, orderID string) (Order, error)
	OrdersByProduct(ctx context.Context, product string) ([]Order, error)
	OrdersByStatus(ctx context.Context, status string, page, size int) (Page[Order], error)
	Statistics(ctx context.Context) (OrderStatistics, error)
	ProductStatistics(ctx context.Context) ([]ProductStat, error)
	Search(ctx context.Context, c SearchCriteria) ([]Order, error)
	Health(ctx context.Context) (Health, error)
}

// DeadLetterQueue порт dead-letter очереди: чтение и административные команды.
type DeadLetterQueue interface {
	FailedOrders(ctx context.Context, status string) ([]FailedOrder, error)
	FailedOrdersByType(ctx context.Context, failureType string) ([]FailedOrder, error)
	FailedOrder(ctx context.Context, id int64) (FailedOrder, error)
	Statistics(ctx context.Context) (DLQStatistics, error)
	Reprocess(ctx context.Context, id int64, actor string) (ActionResult, error)
	ReprocessAll(ctx context.Context, actor string) (ReprocessSummary, error)
	Discard(ctx context.Context, id int64) (ActionResult, error)
}

// Producer порт сервиса-продюсера заказов.
type Producer interface {
	CreateOrder(ctx context.Context, req OrderRequest) (string, error)
	CreateRandomOrder(ctx context.Context) (string, error)
}

// Aggregation порт сервиса потоковой агрегации.
type Aggregation interface {
	ProductStatistics(ctx context.Context, product string) (ProductStat, error)
	AllStatistics(ctx context.Context) (map[string]ProductStat, error)
	Summary(ctx context.Context) (AggregationSummary, error)
	Health(ctx context.Context) (Health, error)
}

// AuditEvent запись о выполненной административной команде.
type AuditEvent struct {
	ID        string    `json:"id"`
	Operation string    `json:"operation"`
	Actor     string    `json:"actor"`
	Target    string    `json:"target,omitempty"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// AuditSink порт публикации аудита команд; доставку реализует адаптер.
type AuditSink interface {
	Publish(ctx context.Context, ev AuditEvent) error
}
