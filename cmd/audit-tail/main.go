// Команда audit-tail печатает события аудита команд дашборда из NATS
// Streaming построчно в JSON.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	json "github.com/goccy/go-json"

	"github.com/example/order-dashboard/internal/adapter/natsstan"
	"github.com/example/order-dashboard/internal/config"
	"github.com/example/order-dashboard/internal/domain"
	"github.com/example/order-dashboard/internal/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(getenv("CONFIG_PATH", "configs/config.yaml"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	// stdout занят событиями
	logger := observability.NewLogger(cfg.Log.Level, os.Stderr)

	url := cfg.Audit.StanURL
	if url == "" {
		url = "nats://localhost:4222"
	}
	sub := &natsstan.AuditSubscriber{
		ClusterID: cfg.Audit.ClusterID,
		ClientID:  getenv("STAN_TAIL_ID", "order-dashboard-audit-tail"),
		URL:       url,
		Subject:   cfg.Audit.Subject,
		Durable:   os.Getenv("STAN_DURABLE"),
		Logger:    logger,
	}
	enc := json.NewEncoder(os.Stdout)
	err = sub.Run(ctx, func(ev domain.AuditEvent) error {
		return enc.Encode(ev)
	})
	if err != nil {
		logger.Error("audit tail", "error", err)
		os.Exit(1)
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
