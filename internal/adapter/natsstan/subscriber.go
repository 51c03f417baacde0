package natsstan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	json "github.com/goccy/go-json"
	stan "github.com/nats-io/stan.go"

	"github.com/example/order-dashboard/internal/domain"
)

// AuditSubscriber читает события аудита из NATS Streaming с durable-подпиской.
type AuditSubscriber struct {
	ClusterID string
	ClientID  string
	URL       string
	Subject   string
	// Durable имя durable-подписки; пустое читает поток с начала при каждом запуске.
	Durable string
	AckWait time.Duration
	Logger  *slog.Logger
}

// Run доставляет события в handle до отмены ctx. Ошибка handle оставляет
// сообщение без подтверждения, и сервер доставит его повторно.
func (s *AuditSubscriber) Run(ctx context.Context, handle func(domain.AuditEvent) error) error {
	sc, err := stan.Connect(s.ClusterID, s.ClientID, stan.NatsURL(s.URL), stan.ConnectWait(connectWait(ctx)))
	if err != nil {
		return fmt.Errorf("stan connect %s: %w", s.URL, err)
	}
	defer sc.Close()

	ackWait := s.AckWait
	if ackWait <= 0 {
		ackWait = 10 * time.Second
	}
	opts := []stan.SubscriptionOption{
		stan.SetManualAckMode(),
		stan.AckWait(ackWait),
		stan.DeliverAllAvailable(),
	}
	if s.Durable != "" {
		opts = append(opts, stan.DurableName(s.Durable))
	}
	sub, err := sc.Subscribe(s.Subject, func(m *stan.Msg) {
		if !s.dispatch(m.Data, handle) {
			return
		}
		if err := m.Ack(); err != nil {
			s.logger().Warn("ack failed", "seq", m.Sequence, "error", err)
		}
	}, opts...)
	if err != nil {
		return fmt.Errorf("stan subscribe %s: %w", s.Subject, err)
	}
	s.logger().Info("audit subscriber started", "subject", s.Subject, "durable", s.Durable)

	<-ctx.Done()
	// durable-подписка сохраняется на сервере: Close, а не Unsubscribe
	if err := sub.Close(); err != nil {
		s.logger().Warn("subscription close", "error", err)
	}
	return nil
}

// dispatch сообщает, нужно ли подтвердить сообщение. Битые сообщения
// подтверждаются, чтобы не зациклить повторную доставку.
func (s *AuditSubscriber) dispatch(data []byte, handle func(domain.AuditEvent) error) bool {
	var ev domain.AuditEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		s.logger().Warn("invalid audit message", "error", err)
		return true
	}
	if ev.ID == "" || ev.Operation == "" {
		s.logger().Warn("audit message without id or operation")
		return true
	}
	if err := handle(ev); err != nil {
		s.logger().Warn("audit handler failed", "id", ev.ID, "error", err)
		return false
	}
	return true
}

func (s *AuditSubscriber) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
