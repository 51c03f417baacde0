package querycache

import (
	"io"
	"log/slog"
	"time"
)

// Observer получает итог каждой завершённой загрузки.
type Observer interface {
	ObserveFetch(resource string, err error, attempts int, elapsed time.Duration)
}

// Option настраивает Cache.
type Option func(*Cache)

// WithRetries задаёт число автоматических повторов после неудачной загрузки.
func WithRetries(n int) Option {
	return func(c *Cache) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithClock подменяет источник времени для lastUpdated.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *Cache) {
		c.observer = o
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
