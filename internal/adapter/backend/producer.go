package backend

import (
	"context"

	"github.com/example/order-dashboard/internal/domain"
)

// ProducerClient клиент сервиса-продюсера. Ответы сервиса текстовые.
type ProducerClient struct {
	c *Client
}

var _ domain.Producer = (*ProducerClient)(nil)

func NewProducerClient(c *Client) *ProducerClient { return &ProducerClient{c: c} }

func (p *ProducerClient) CreateOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	var msg string
	if err := p.c.postJSON(ctx, "/order", nil, req, &msg); err != nil {
		return "", err
	}
	return msg, nil
}

func (p *ProducerClient) CreateRandomOrder(ctx context.Context) (string, error) {
	var msg string
	if err := p.c.postJSON(ctx, "/order/random", nil, nil, &msg); err != nil {
		return "", err
	}
	return msg, nil
}
