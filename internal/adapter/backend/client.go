// Package backend HTTP-клиенты трёх сервисов конвейера: хранилища заказов
// (вместе с DLQ), продюсера и сервиса агрегации. Каждый клиент создаётся явно
// и логирует свои запросы независимо от остальных.
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/order-dashboard/internal/domain"
)

const maxErrorBody = 4 << 10

// Options настройки транспорта одного сервиса.
type Options struct {
	Service string
	BaseURL string
	Timeout time.Duration
	// RateLimit запросов в секунду; 0 без ограничения.
	RateLimit float64
	Burst     int
	// HTTPClient по умолчанию создаётся с Timeout.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client базовый JSON-клиент поверх net/http.
type Client struct {
	service string
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewClient(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%s: invalid base url %q", opts.Service, opts.BaseURL)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: opts.Timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		service: opts.Service,
		base:    base,
		http:    hc,
		logger:  logger.With("backend", opts.Service),
	}
	if opts.RateLimit > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}
	return c, nil
}

// RemoteError неуспешный вызов сервиса: транспортный сбой или не-2xx ответ.
type RemoteError struct {
	Service string
	Method  string
	Path    string
	Status  int
	Body    string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s %s: %v", e.Service, e.Method, e.Path, e.Err)
	}
	if e.Body != "" {
		return fmt.Sprintf("%s %s %s: status %d: %s", e.Service, e.Method, e.Path, e.Status, e.Body)
	}
	return fmt.Sprintf("%s %s %s: status %d", e.Service, e.Method, e.Path, e.Status)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is сопоставляет 404 с domain.ErrNotFound, а прочие отказы клиента 4xx
// (кроме 408 и 429) с domain.ErrRejected.
func (e *RemoteError) Is(target error) bool {
	switch target {
	case domain.ErrNotFound:
		return e.Status == http.StatusNotFound
	case domain.ErrRejected:
		return e.Status >= 400 && e.Status < 500 &&
			e.Status != http.StatusNotFound &&
			e.Status != http.StatusRequestTimeout &&
			e.Status != http.StatusTooManyRequests
	}
	return false
}

// Temporary сообщает, имеет ли смысл повторить запрос: сеть, таймаут, 5xx, 429.
func (e *RemoteError) Temporary() bool {
	if e.Err != nil {
		var ne net.Error
		return errors.As(e.Err, &ne) || errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, io.ErrUnexpectedEOF)
	}
	return e.Status >= 500 || e.Status == http.StatusTooManyRequests
}

// getJSON выполняет GET и декодирует тело ответа в out.
func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// postJSON отправляет in как JSON (nil без тела). Если out имеет тип *string,
// тело ответа сохраняется как текст.
func (c *Client) postJSON(ctx context.Context, path string, query url.Values, in, out any) error {
	return c.do(ctx, http.MethodPost, path, query, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return &RemoteError{Service: c.service, Method: method, Path: path, Err: err}
		}
	}

	// path приходит уже экранированным, см. pathEscape
	u := *c.base
	u.RawPath = c.base.EscapedPath() + path
	unescaped, err := url.PathUnescape(u.RawPath)
	if err != nil {
		return fmt.Errorf("%s: bad path %q: %w", c.service, path, err)
	}
	u.Path = unescaped
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode %s body: %w", c.service, path, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("%s: create %s request: %w", c.service, path, err)
	}
	reqID := uuid.NewString()
	req.Header.Set("X-Request-ID", reqID)
	req.Header.Set("Accept", "application/json, text/plain")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	c.logger.Debug("backend request", "method", method, "path", path, "request_id", reqID)
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("backend request failed", "method", method, "path", path, "request_id", reqID, "error", err)
		return &RemoteError{Service: c.service, Method: method, Path: path, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	c.logger.Debug("backend response", "method", method, "path", path, "request_id", reqID,
		"status", resp.StatusCode, "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &RemoteError{
			Service: c.service,
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Body:    errorMessage(raw),
		}
	}

	switch dst := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *string:
		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return &RemoteError{Service: c.service, Method: method, Path: path, Status: resp.StatusCode, Err: err}
		}
		*dst = strings.TrimSpace(string(raw))
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode %s: %w", c.service, path, err)
		}
		return nil
	}
}

// errorMessage достаёт message из JSON-ответа об ошибке, иначе возвращает тело как есть.
func errorMessage(raw []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}
	return strings.TrimSpace(string(raw))
}

func pathEscape(s string) string { return url.PathEscape(s) }
