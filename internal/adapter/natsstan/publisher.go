package natsstan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	stan "github.com/nats-io/stan.go"

	"github.com/example/order-dashboard/internal/domain"
)

// conn часть stan.Conn, которой пользуется публикатор.
type conn interface {
	PublishAsync(subject string, data []byte, ah stan.AckHandler) (string, error)
	Close() error
}

// AuditPublisher публикует события аудита команд дашборда в NATS Streaming.
type AuditPublisher struct {
	ClusterID string
	ClientID  string
	URL       string
	Subject   string
	Logger    *slog.Logger

	mu sync.Mutex
	sc conn
}

var _ domain.AuditSink = (*AuditPublisher)(nil)

// Connect устанавливает соединение; без него Publish возвращает ошибку.
func (p *AuditPublisher) Connect(ctx context.Context) error {
	clientID := p.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("order-dashboard-%d", time.Now().UnixNano())
	}
	sc, err := stan.Connect(p.ClusterID, clientID,
		stan.NatsURL(p.URL),
		stan.ConnectWait(connectWait(ctx)),
		stan.SetConnectionLostHandler(func(_ stan.Conn, reason error) {
			p.logger().Error("stan connection lost", "error", reason)
			p.mu.Lock()
			p.sc = nil
			p.mu.Unlock()
		}),
	)
	if err != nil {
		return fmt.Errorf("stan connect %s: %w", p.URL, err)
	}
	p.mu.Lock()
	p.sc = sc
	p.mu.Unlock()
	p.logger().Info("audit publisher connected", "url", p.URL, "subject", p.Subject)
	return nil
}

func (p *AuditPublisher) Publish(ctx context.Context, ev domain.AuditEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	sc := p.sc
	p.mu.Unlock()
	if sc == nil {
		return errors.New("stan: not connected")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode audit event: %w", err)
	}
	// подтверждение сервера приходит асинхронно, команда его не ждёт
	if _, err := sc.PublishAsync(p.Subject, data, p.ack(ev)); err != nil {
		return fmt.Errorf("stan publish %s: %w", p.Subject, err)
	}
	return nil
}

func (p *AuditPublisher) ack(ev domain.AuditEvent) stan.AckHandler {
	return func(guid string, err error) {
		if err != nil {
			p.logger().Warn("audit event not acknowledged", "event", ev.ID, "operation", ev.Operation, "guid", guid, "error", err)
		}
	}
}

func (p *AuditPublisher) Close() error {
	p.mu.Lock()
	sc := p.sc
	p.sc = nil
	p.mu.Unlock()
	if sc == nil {
		return nil
	}
	return sc.Close()
}

func (p *AuditPublisher) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

func connectWait(ctx context.Context) time.Duration {
	if dl, ok := ctx.Deadline(); ok {
		if d := time.Until(dl); d > 0 {
			return d
		}
	}
	return stan.DefaultConnectWait
}
