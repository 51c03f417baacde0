package backend

import (
	"context"
	"net/url"

	"github.com/example/order-dashboard/internal/domain"
)

// DeadLetterClient клиент dead-letter очереди сервиса-потребителя.
type DeadLetterClient struct {
	c *Client
}

var _ domain.DeadLetterQueue = (*DeadLetterClient)(nil)

func NewDeadLetterClient(c *Client) *DeadLetterClient { return &DeadLetterClient{c: c} }

// FailedOrders пустой status возвращает все записи.
func (d *DeadLetterClient) FailedOrders(ctx context.Context, status string) ([]domain.FailedOrder, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	var out []domain.FailedOrder
	if err := d.c.getJSON(ctx, "/api/dlq/failed-orders", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DeadLetterClient) FailedOrdersByType(ctx context.Context, failureType string) ([]domain.FailedOrder, error) {
	var out []domain.FailedOrder
	if err := d.c.getJSON(ctx, "/api/dlq/failed-orders/type/"+pathEscape(failureType), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DeadLetterClient) FailedOrder(ctx context.Context, id int64) (domain.FailedOrder, error) {
	var out domain.FailedOrder
	if err := d.c.getJSON(ctx, idPath("/api/dlq/failed-orders", id), nil, &out); err != nil {
		return domain.FailedOrder{}, err
	}
	return out, nil
}

func (d *DeadLetterClient) Statistics(ctx context.Context) (domain.DLQStatistics, error) {
	var out domain.DLQStatistics
	if err := d.c.getJSON(ctx, "/api/dlq/statistics", nil, &out); err != nil {
		return domain.DLQStatistics{}, err
	}
	return out, nil
}

func (d *DeadLetterClient) Reprocess(ctx context.Context, id int64, actor string) (domain.ActionResult, error) {
	var out domain.ActionResult
	if err := d.c.postJSON(ctx, idPath("/api/dlq/reprocess", id), actorQuery(actor), nil, &out); err != nil {
		return domain.ActionResult{}, err
	}
	return out, nil
}

func (d *DeadLetterClient) ReprocessAll(ctx context.Context, actor string) (domain.ReprocessSummary, error) {
	var out domain.ReprocessSummary
	if err := d.c.postJSON(ctx, "/api/dlq/reprocess-all", actorQuery(actor), nil, &out); err != nil {
		return domain.ReprocessSummary{}, err
	}
	return out, nil
}

func (d *DeadLetterClient) Discard(ctx context.Context, id int64) (domain.ActionResult, error) {
	var out domain.ActionResult
	if err := d.c.postJSON(ctx, idPath("/api/dlq/discard", id), nil, nil, &out); err != nil {
		return domain.ActionResult{}, err
	}
	return out, nil
}

func actorQuery(actor string) url.Values {
	if actor == "" {
		return nil
	}
	return url.Values{"reprocessedBy": {actor}}
}
