// Package observability собирает логгер и метрики сервиса.
package observability

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger JSON-логгер с заданным уровнем (debug, info, warn, error).
// Неизвестный уровень трактуется как info, nil-писатель как stdout.
func NewLogger(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stdout
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})).
		With("service", "order-dashboard")
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
