// Package config загружает настройки дашборда: значения по умолчанию,
// затем YAML-файл, затем переменные окружения.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTP      HTTP      `yaml:"http"`
	Backends  Backends  `yaml:"backends"`
	Polling   Polling   `yaml:"polling"`
	Cache     Cache     `yaml:"cache"`
	Mutations Mutations `yaml:"mutations"`
	Audit     Audit     `yaml:"audit"`
	Log       Log       `yaml:"log"`
}

type HTTP struct {
	Addr            string        `yaml:"addr"`
	StaticDir       string        `yaml:"static_dir"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// ViewWait сколько HTTP-представление ждёт первой загрузки холодного ключа.
	ViewWait time.Duration `yaml:"view_wait"`
}

type Backends struct {
	Orders      Backend `yaml:"orders"`
	Producer    Backend `yaml:"producer"`
	Aggregation Backend `yaml:"aggregation"`
}

// Backend адрес и транспортные ограничения одного сервиса.
type Backend struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit запросов в секунду; 0 без ограничения.
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

// Polling интервалы автообновления панелей.
type Polling struct {
	Fast time.Duration `yaml:"fast"`
	Slow time.Duration `yaml:"slow"`
}

type Cache struct {
	Retries    int           `yaml:"retries"`
	GCInterval time.Duration `yaml:"gc_interval"`
	GCMaxIdle  time.Duration `yaml:"gc_max_idle"`
}

type Mutations struct {
	DefaultActor    string `yaml:"default_actor"`
	MaxBulk         int    `yaml:"max_bulk"`
	BulkConcurrency int    `yaml:"bulk_concurrency"`
}

// Audit публикация аудита команд в NATS Streaming; пустой StanURL отключает её.
type Audit struct {
	StanURL   string `yaml:"stan_url"`
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	Subject   string `yaml:"subject"`
}

type Log struct {
	Level string `yaml:"level"`
}

// Default настройки для локального запуска рядом с сервисами конвейера.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:            ":8080",
			StaticDir:       "web",
			ShutdownTimeout: 5 * time.Second,
			ViewWait:        3 * time.Second,
		},
		Backends: Backends{
			Orders:      Backend{BaseURL: "http://localhost:8083", Timeout: 10 * time.Second},
			Producer:    Backend{BaseURL: "http://localhost:8082", Timeout: 10 * time.Second},
			Aggregation: Backend{BaseURL: "http://localhost:8084", Timeout: 10 * time.Second},
		},
		Polling: Polling{Fast: 3 * time.Second, Slow: 5 * time.Second},
		Cache:   Cache{Retries: 1, GCInterval: time.Minute, GCMaxIdle: 10 * time.Minute},
		Mutations: Mutations{
			DefaultActor: "admin",
			MaxBulk:      100,
		},
		Audit: Audit{
			ClusterID: "test-cluster",
			ClientID:  "order-dashboard",
			Subject:   "dashboard.audit",
		},
		Log: Log{Level: "info"},
	}
}

// Load читает конфигурацию. Отсутствующий файл не ошибка: используются
// значения по умолчанию и окружение.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return Config{}, fmt.Errorf("parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.HTTP.StaticDir = getEnv("STATIC_DIR", c.HTTP.StaticDir)
	c.Backends.Orders.BaseURL = getEnv("ORDERS_API_URL", c.Backends.Orders.BaseURL)
	c.Backends.Producer.BaseURL = getEnv("PRODUCER_API_URL", c.Backends.Producer.BaseURL)
	c.Backends.Aggregation.BaseURL = getEnv("AGGREGATION_API_URL", c.Backends.Aggregation.BaseURL)
	if secs := envInt("BACKEND_TIMEOUT_SECONDS", 0); secs > 0 {
		d := time.Duration(secs) * time.Second
		c.Backends.Orders.Timeout = d
		c.Backends.Producer.Timeout = d
		c.Backends.Aggregation.Timeout = d
	}
	c.Audit.StanURL = getEnv("STAN_URL", c.Audit.StanURL)
	c.Audit.ClusterID = getEnv("STAN_CLUSTER_ID", c.Audit.ClusterID)
	c.Audit.ClientID = getEnv("STAN_CLIENT_ID", c.Audit.ClientID)
	c.Audit.Subject = getEnv("STAN_SUBJECT", c.Audit.Subject)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	for name, b := range map[string]Backend{
		"orders":      c.Backends.Orders,
		"producer":    c.Backends.Producer,
		"aggregation": c.Backends.Aggregation,
	} {
		if err := b.validate(); err != nil {
			errs = append(errs, fmt.Errorf("backends.%s: %w", name, err))
		}
	}
	if c.Polling.Fast <= 0 || c.Polling.Slow <= 0 {
		errs = append(errs, errors.New("polling intervals must be positive"))
	}
	if c.Cache.Retries < 0 {
		errs = append(errs, errors.New("cache.retries must not be negative"))
	}
	if c.Mutations.MaxBulk < 1 {
		errs = append(errs, errors.New("mutations.max_bulk must be at least 1"))
	}
	if c.Mutations.BulkConcurrency < 0 {
		errs = append(errs, errors.New("mutations.bulk_concurrency must not be negative"))
	}
	if c.Audit.StanURL != "" && (c.Audit.ClusterID == "" || c.Audit.ClientID == "" || c.Audit.Subject == "") {
		errs = append(errs, errors.New("audit: cluster_id, client_id and subject are required with stan_url"))
	}
	return errors.Join(errs...)
}

func (b Backend) validate() error {
	u, err := url.Parse(b.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base_url %q", b.BaseURL)
	}
	if b.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if b.RateLimit < 0 || b.Burst < 0 {
		return errors.New("rate_limit and burst must not be negative")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
