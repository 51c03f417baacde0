package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics телеметрия загрузок кэша запросов и административных команд.
// Методы безопасны для nil-получателя.
type Metrics struct {
	fetches          *prometheus.CounterVec
	fetchRetries     *prometheus.CounterVec
	fetchDuration    *prometheus.HistogramVec
	mutations        *prometheus.CounterVec
	mutationDuration *prometheus.HistogramVec
}

// NewMetrics регистрирует инструменты в reg (по умолчанию глобальный реестр).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		fetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dashboard",
				Subsystem: "query",
				Name:      "fetches_total",
				Help:      "Completed query fetches by resource and outcome.",
			},
			[]string{"resource", "outcome"},
		),
		fetchRetries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dashboard",
				Subsystem: "query",
				Name:      "retries_total",
				Help:      "Automatic fetch retries after a failed attempt.",
			},
			[]string{"resource"},
		),
		fetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dashboard",
				Subsystem: "query",
				Name:      "fetch_seconds",
				Help:      "Duration of query fetches including retries.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource"},
		),
		mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "dashboard",
				Subsystem: "mutation",
				Name:      "executions_total",
				Help:      "Executed mutations by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		mutationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "dashboard",
				Subsystem: "mutation",
				Name:      "duration_seconds",
				Help:      "Duration of mutations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
	reg.MustRegister(m.fetches, m.fetchRetries, m.fetchDuration, m.mutations, m.mutationDuration)
	return m
}

// ObserveFetch учитывает завершённую загрузку кэша.
func (m *Metrics) ObserveFetch(resource string, err error, attempts int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(resource, outcome(err)).Inc()
	if attempts > 1 {
		m.fetchRetries.WithLabelValues(resource).Add(float64(attempts - 1))
	}
	if elapsed >= 0 {
		m.fetchDuration.WithLabelValues(resource).Observe(elapsed.Seconds())
	}
}

// ObserveMutation учитывает выполненную команду. partial отмечает пакет,
// в котором часть элементов завершилась ошибкой.
func (m *Metrics) ObserveMutation(operation string, err error, partial bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	out := outcome(err)
	if err == nil && partial {
		out = "partial"
	}
	m.mutations.WithLabelValues(operation, out).Inc()
	if elapsed >= 0 {
		m.mutationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
	}
}

// FetchCounter доступ к счётчику для тестов и диагностики.
func (m *Metrics) FetchCounter(resource, outcome string) prometheus.Counter {
	return m.fetches.WithLabelValues(resource, outcome)
}

// MutationCounter доступ к счётчику для тестов и диагностики.
func (m *Metrics) MutationCounter(operation, outcome string) prometheus.Counter {
	return m.mutations.WithLabelValues(operation, outcome)
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
