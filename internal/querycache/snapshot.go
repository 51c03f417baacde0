package querycache

import (
	"context"
	"fmt"
	"time"
)

// Status состояние записи кэша.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusSuccess
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusSuccess:
		return "success"
	case StatusError:
		return "error"
	default:
		return "idle"
	}
}

// MarshalText отдаёт статус строкой в JSON-ответах.
func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Fetcher загружает данные запроса. Транспорт кэшу неизвестен.
type Fetcher func(ctx context.Context) (any, error)

// Snapshot согласованная копия записи на момент чтения.
type Snapshot struct {
	Key         Key
	Data        any
	Err         error
	Status      Status
	LastUpdated time.Time
	Stale       bool
}

// HasData сообщает, есть ли в снимке успешно загруженные данные.
func (s Snapshot) HasData() bool { return !s.LastUpdated.IsZero() }

// Value достаёт типизированные данные снимка.
func Value[T any](s Snapshot) (T, bool) {
	v, ok := s.Data.(T)
	return v, ok
}

// FetchError ошибка чтения после исчерпания повторов.
type FetchError struct {
	Key      Key
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.Key, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
