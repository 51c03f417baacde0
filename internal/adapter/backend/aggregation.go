package backend

import (
	"context"

	"github.com/example/order-dashboard/internal/domain"
)

// AggregationClient клиент сервиса потоковой агрегации.
type AggregationClient struct {
	c *Client
}

var _ domain.Aggregation = (*AggregationClient)(nil)

func NewAggregationClient(c *Client) *AggregationClient { return &AggregationClient{c: c} }

func (a *AggregationClient) ProductStatistics(ctx context.Context, product string) (domain.ProductStat, error) {
	var out domain.ProductStat
	if err := a.c.getJSON(ctx, "/api/statistics/product/"+pathEscape(product), nil, &out); err != nil {
		return domain.ProductStat{}, err
	}
	return out, nil
}

func (a *AggregationClient) AllStatistics(ctx context.Context) (map[string]domain.ProductStat, error) {
	out := map[string]domain.ProductStat{}
	if err := a.c.getJSON(ctx, "/api/statistics/all", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *AggregationClient) Summary(ctx context.Context) (domain.AggregationSummary, error) {
	var out domain.AggregationSummary
	if err := a.c.getJSON(ctx, "/api/statistics/summary", nil, &out); err != nil {
		return domain.AggregationSummary{}, err
	}
	return out, nil
}

func (a *AggregationClient) Health(ctx context.Context) (domain.Health, error) {
	var out domain.Health
	if err := a.c.getJSON(ctx, "/api/statistics/health", nil, &out); err != nil {
		return domain.Health{}, err
	}
	return out, nil
}
