package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc"

	"github.com/example/order-dashboard/internal/adapter/backend"
	"github.com/example/order-dashboard/internal/adapter/httpapi"
	"github.com/example/order-dashboard/internal/adapter/natsstan"
	"github.com/example/order-dashboard/internal/config"
	"github.com/example/order-dashboard/internal/observability"
	"github.com/example/order-dashboard/internal/querycache"
	"github.com/example/order-dashboard/internal/usecase"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(getEnv("CONFIG_PATH", "configs/config.yaml"))
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Log.Level, os.Stdout)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a, err := newApp(cfg, logger, reg)
	if err != nil {
		logger.Error("init", "error", err)
		os.Exit(1)
	}
	defer a.close()

	if cfg.Audit.StanURL != "" {
		a.connectAudit(ctx, cfg.Audit)
	}
	a.views.WatchDefaults()

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: a.server.Router}
	var wg conc.WaitGroup
	wg.Go(func() { a.collect(ctx, cfg.Cache.GCInterval, cfg.Cache.GCMaxIdle) })
	wg.Go(func() {
		logger.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http", "error", err)
			cancel()
		}
	})

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	wg.Wait()
	logger.Info("stopped")
}

// app собранный граф зависимостей дашборда.
type app struct {
	logger *slog.Logger
	cache  *querycache.Cache
	views  *usecase.Views
	audit  *natsstan.AuditPublisher
	mutate *usecase.MutationDispatcher
	server *httpapi.Server
}

func newApp(cfg config.Config, logger *slog.Logger, reg *prometheus.Registry) (*app, error) {
	metrics := observability.NewMetrics(reg)

	ordersHTTP, err := backendClient("orders", cfg.Backends.Orders, logger)
	if err != nil {
		return nil, err
	}
	producerHTTP, err := backendClient("producer", cfg.Backends.Producer, logger)
	if err != nil {
		return nil, err
	}
	aggHTTP, err := backendClient("aggregation", cfg.Backends.Aggregation, logger)
	if err != nil {
		return nil, err
	}
	// хранилище заказов и DLQ обслуживает один сервис
	orders := backend.NewOrdersClient(ordersHTTP)
	dlq := backend.NewDeadLetterClient(ordersHTTP)
	producer := backend.NewProducerClient(producerHTTP)
	agg := backend.NewAggregationClient(aggHTTP)

	cache := querycache.New(
		querycache.WithRetries(cfg.Cache.Retries),
		querycache.WithLogger(logger.With("component", "querycache")),
		querycache.WithObserver(metrics),
	)
	catalog := usecase.NewCatalog(orders, dlq, agg, usecase.Intervals{Fast: cfg.Polling.Fast, Slow: cfg.Polling.Slow})
	views := usecase.NewViews(cache, catalog, cfg.HTTP.ViewWait)

	mutate := &usecase.MutationDispatcher{
		Producer:        producer,
		DLQ:             dlq,
		Cache:           cache,
		Metrics:         metrics,
		Logger:          logger.With("component", "mutations"),
		DefaultActor:    cfg.Mutations.DefaultActor,
		MaxBulk:         cfg.Mutations.MaxBulk,
		BulkConcurrency: cfg.Mutations.BulkConcurrency,
	}

	return &app{
		logger: logger,
		cache:  cache,
		views:  views,
		mutate: mutate,
		server: httpapi.NewServer(views, mutate, reg, cfg.HTTP.StaticDir, logger),
	}, nil
}

func backendClient(service string, b config.Backend, logger *slog.Logger) (*backend.Client, error) {
	return backend.NewClient(backend.Options{
		Service:   service,
		BaseURL:   b.BaseURL,
		Timeout:   b.Timeout,
		RateLimit: b.RateLimit,
		Burst:     b.Burst,
		Logger:    logger,
	})
}

// connectAudit подключает публикацию аудита. Без соединения команды
// выполняются, но не аудируются.
func (a *app) connectAudit(ctx context.Context, cfg config.Audit) {
	pub := &natsstan.AuditPublisher{
		ClusterID: cfg.ClusterID,
		ClientID:  cfg.ClientID,
		URL:       cfg.StanURL,
		Subject:   cfg.Subject,
		Logger:    a.logger.With("component", "audit"),
	}
	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pub.Connect(cctx); err != nil {
		a.logger.Warn("audit disabled", "error", err)
		return
	}
	a.audit = pub
	a.mutate.Audit = pub
}

// collect снимает давно не читаемые подписки представлений и удаляет
// осиротевшие записи кэша.
func (a *app) collect(ctx context.Context, every, maxIdle time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sweep(maxIdle)
		}
	}
}

func (a *app) sweep(maxIdle time.Duration) {
	released := a.views.Release(maxIdle)
	pruned := a.cache.Prune(maxIdle)
	if released > 0 || pruned > 0 {
		a.logger.Debug("cache sweep", "released", released, "pruned", pruned)
	}
}

func (a *app) close() {
	a.views.Close()
	a.cache.Close()
	if a.audit != nil {
		if err := a.audit.Close(); err != nil {
			a.logger.Warn("audit close", "error", err)
		}
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
