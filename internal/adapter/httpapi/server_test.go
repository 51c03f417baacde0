package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/example/order-dashboard/internal/adapter/backend"
	"github.com/example/order-dashboard/internal/domain"
	"github.com/example/order-dashboard/internal/observability"
	"github.com/example/order-dashboard/internal/querycache"
	"github.com/example/order-dashboard/internal/usecase"
)

type stubStore struct{ domain.OrderStore }

func (stubStore) Statistics(context.Context) (domain.OrderStatistics, error) {
	return domain.OrderStatistics{TotalOrders: 200, ProcessedOrders: 150}, nil
}

func (stubStore) ListOrders(_ context.Context, req domain.PageRequest) (domain.Page[domain.Order], error) {
	return domain.Page[domain.Order]{
		Content: []domain.Order{
			{ID: 1, OrderID: "ORD-1", Product: "Laptop"},
			{ID: 2, OrderID: "ORD-2", Product: "Mouse"},
		},
		TotalPages:    1,
		TotalElements: 2,
	}, nil
}

func (stubStore) ProductStatistics(context.Context) ([]domain.ProductStat, error) {
	return []domain.ProductStat{{Product: "Laptop", OrderCount: 1}, {Product: "Mouse", OrderCount: 1}}, nil
}

func (stubStore) GetOrder(_ context.Context, id int64) (domain.Order, error) {
	if id == 1 {
		return domain.Order{ID: 1, OrderID: "ORD-1"}, nil
	}
	return domain.Order{}, domain.ErrNotFound
}

func (stubStore) OrdersByStatus(_ context.Context, status string, _, _ int) (domain.Page[domain.Order], error) {
	return domain.Page[domain.Order]{Content: []domain.Order{{ID: 1, OrderID: "ORD-1", Status: status}}, TotalPages: 1, TotalElements: 1}, nil
}

func (stubStore) Health(context.Context) (domain.Health, error) { return domain.Health{Status: "UP"}, nil }

type stubDLQ struct{ domain.DeadLetterQueue }

func (stubDLQ) FailedOrders(context.Context, string) ([]domain.FailedOrder, error) {
	return []domain.FailedOrder{{ID: 5, Status: domain.FailedPending}}, nil
}

func (stubDLQ) Statistics(context.Context) (domain.DLQStatistics, error) {
	return domain.DLQStatistics{Total: 1, Pending: 1}, nil
}

type stubAgg struct{ domain.Aggregation }

func (stubAgg) AllStatistics(context.Context) (map[string]domain.ProductStat, error) {
	return map[string]domain.ProductStat{
		"Laptop": {Product: "Laptop", OrderCount: 10, TotalRevenue: 500},
		"Mouse":  {Product: "Mouse", OrderCount: 5, TotalRevenue: 250},
	}, nil
}

func (stubAgg) Summary(context.Context) (domain.AggregationSummary, error) {
	return domain.AggregationSummary{TotalOrders: 15}, nil
}

func (stubAgg) Health(context.Context) (domain.Health, error) { return domain.Health{Status: "UP"}, nil }

type stubMutator struct {
	cmds []usecase.Command
	res  usecase.Result
	err  error
}

func (m *stubMutator) Execute(_ context.Context, cmd usecase.Command) (usecase.Result, error) {
	m.cmds = append(m.cmds, cmd)
	return m.res, m.err
}

func newTestServer(t *testing.T, m *stubMutator, staticDir string) *Server {
	t.Helper()
	cache := querycache.New()
	catalog := usecase.NewCatalog(stubStore{}, stubDLQ{}, stubAgg{}, usecase.Intervals{Fast: time.Hour, Slow: time.Hour})
	views := usecase.NewViews(cache, catalog, time.Second)
	t.Cleanup(func() {
		views.Close()
		cache.Close()
	})
	reg := prometheus.NewRegistry()
	observability.NewMetrics(reg)
	return NewServer(views, m, reg, staticDir, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	s.Router.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestDashboard(t *testing.T) {
	s := newTestServer(t, &stubMutator{}, "")
	rr := do(t, s, http.MethodGet, "/api/dashboard", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	body := decode(t, rr)
	require.Equal(t, 75.0, body["successRate"])
	stats := body["stats"].(map[string]any)
	require.Equal(t, "success", stats["status"])
	require.NotEmpty(t, stats["lastUpdated"])
}

func TestOrdersFiltering(t *testing.T) {
	s := newTestServer(t, &stubMutator{}, "")
	rr := do(t, s, http.MethodGet, "/api/orders?search=mou", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	require.Equal(t, 1.0, body["shown"])
	require.Equal(t, 2.0, body["totalElements"])

	rr = do(t, s, http.MethodGet, "/api/orders?size=0", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "size", decode(t, rr)["field"])
}

func TestOrdersSorting(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantCode  int
		wantSort  string
		wantDir   string
		wantField string
	}{
		{name: "defaults", query: "", wantCode: http.StatusOK, wantSort: "processedAt", wantDir: "DESC"},
		{name: "lower case direction", query: "?sortBy=price&direction=asc", wantCode: http.StatusOK, wantSort: "price", wantDir: "ASC"},
		{name: "unknown field", query: "?sortBy=kafkaTopic", wantCode: http.StatusBadRequest, wantField: "sortBy"},
		{name: "bad direction", query: "?direction=sideways", wantCode: http.StatusBadRequest, wantField: "direction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, &stubMutator{}, "")
			rr := do(t, s, http.MethodGet, "/api/orders"+tt.query, "")
			require.Equal(t, tt.wantCode, rr.Code)
			body := decode(t, rr)
			if tt.wantField != "" {
				require.Equal(t, tt.wantField, body["field"])
				return
			}
			require.Equal(t, tt.wantSort, body["sortBy"])
			require.Equal(t, tt.wantDir, body["direction"])
		})
	}
}

func TestOrderByID(t *testing.T) {
	s := newTestServer(t, &stubMutator{}, "")
	require.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/orders/1", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/orders/2", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, s, http.MethodGet, "/api/orders/abc", "").Code)
}

func TestOrdersByStatus(t *testing.T) {
	s := newTestServer(t, &stubMutator{}, "")
	rr := do(t, s, http.MethodGet, "/api/orders/status/failed?size=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	data := decode(t, rr)["data"].(map[string]any)
	require.Equal(t, 1.0, data["totalElements"])

	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/orders/status/lost", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/orders/status/failed?size=500", "").Code)
}

func TestAnalyticsAndDLQ(t *testing.T) {
	s := newTestServer(t, &stubMutator{}, "")
	rr := do(t, s, http.MethodGet, "/api/analytics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	summary := decode(t, rr)["summary"].(map[string]any)
	require.Equal(t, 375.0, summary["averageRevenuePerProduct"])

	rr = do(t, s, http.MethodGet, "/api/dlq?status=pending", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "PENDING", decode(t, rr)["filter"])

	rr = do(t, s, http.MethodGet, "/api/dlq?status=all", "")
	require.Equal(t, "all", decode(t, rr)["filter"])

	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/dlq?status=gone", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodGet, "/api/dlq/type/unknown", "").Code)
}

func TestCreateOrder(t *testing.T) {
	m := &stubMutator{res: usecase.Result{Operation: usecase.OpCreateOrder, Succeeded: 1, Total: 1}}
	s := newTestServer(t, m, "")

	rr := do(t, s, http.MethodPost, "/api/producer/orders", `{"orderId":"ORD-5","product":"Laptop","price":"12.345","simulate":"99"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, m.cmds, 1)
	require.Equal(t, usecase.OpCreateOrder, m.cmds[0].Op)
	require.Equal(t, 12.35, m.cmds[0].Order.Price)
	require.Equal(t, "99", m.cmds[0].Simulate)

	rr = do(t, s, http.MethodPost, "/api/producer/orders", `{"orderId":"ORD-5","product":"Laptop","price":12}`)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 12.0, m.cmds[1].Order.Price)

	rr = do(t, s, http.MethodPost, "/api/producer/orders", `{"orderId":"ORD-5","product":"Laptop","price":"abc"}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Equal(t, "price", decode(t, rr)["field"])
	require.Len(t, m.cmds, 2)

	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/producer/orders", `{`).Code)
}

func TestBulkStatusCodes(t *testing.T) {
	m := &stubMutator{res: usecase.Result{Total: 10, Succeeded: 7, Failed: 3}}
	s := newTestServer(t, m, "")

	rr := do(t, s, http.MethodPost, "/api/producer/orders/bulk?count=10", "")
	require.Equal(t, http.StatusMultiStatus, rr.Code)
	require.Equal(t, 10, m.cmds[0].Count)

	m.res = usecase.Result{Total: 5, Succeeded: 5}
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/producer/orders/bulk?count=5", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/producer/orders/bulk?count=x", "").Code)
}

func TestMutationErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "validation", err: &domain.ValidationError{Field: "count", Reason: "too big"}, want: http.StatusBadRequest},
		{name: "backend failure", err: &domain.MutationError{Operation: "reprocessOrder", Err: errors.New("503")}, want: http.StatusBadGateway},
		{name: "not found", err: &domain.MutationError{Operation: "reprocessOrder", Err: domain.ErrNotFound}, want: http.StatusNotFound},
		{
			name: "rejected by service",
			err: &domain.MutationError{Operation: "reprocessOrder", Err: &backend.RemoteError{
				Service: "dlq", Method: http.MethodPost, Path: "/api/dlq/7/reprocess", Status: http.StatusBadRequest, Body: "already reprocessed",
			}},
			want: http.StatusConflict,
		},
		{
			name: "service overloaded",
			err: &domain.MutationError{Operation: "reprocessOrder", Err: &backend.RemoteError{
				Service: "dlq", Method: http.MethodPost, Path: "/api/dlq/7/reprocess", Status: http.StatusTooManyRequests,
			}},
			want: http.StatusBadGateway,
		},
		{name: "unexpected", err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &stubMutator{err: tt.err}
			s := newTestServer(t, m, "")
			rr := do(t, s, http.MethodPost, "/api/dlq/7/reprocess?actor=alice", "")
			require.Equal(t, tt.want, rr.Code)
			require.Equal(t, int64(7), m.cmds[0].ID)
			require.Equal(t, "alice", m.cmds[0].Actor)
		})
	}
}

func TestDLQCommands(t *testing.T) {
	m := &stubMutator{}
	s := newTestServer(t, m, "")
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/dlq/reprocess-all", "").Code)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/dlq/3/discard", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/dlq/0/discard", "").Code)
	require.Equal(t, usecase.OpReprocessAllPending, m.cmds[0].Op)
	require.Equal(t, usecase.OpDiscardOrder, m.cmds[1].Op)
	require.Len(t, m.cmds, 2)
}

func TestInvalidate(t *testing.T) {
	s := newTestServer(t, &stubMutator{}, "")
	do(t, s, http.MethodGet, "/api/dashboard", "")

	rr := do(t, s, http.MethodPost, "/api/cache/invalidate?resource=orderStats", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, 1.0, decode(t, rr)["invalidated"])

	rr = do(t, s, http.MethodPost, "/api/cache/invalidate", "")
	require.Equal(t, 3.0, decode(t, rr)["invalidated"])

	require.Equal(t, http.StatusBadRequest, do(t, s, http.MethodPost, "/api/cache/invalidate?resource=nope", "").Code)
}

func TestMetricsAndStatic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>dashboard</h1>"), 0o600))
	s := newTestServer(t, &stubMutator{}, dir)

	rr := do(t, s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)

	rr = do(t, s, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "dashboard")
}

func TestSimulations(t *testing.T) {
	s := newTestServer(t, &stubMutator{}, "")
	rr := do(t, s, http.MethodGet, "/api/producer/simulations", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var sims []domain.FailureSimulation
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &sims))
	require.Len(t, sims, len(domain.FailureSimulations))
}
