package backend

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/example/order-dashboard/internal/domain"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{
		Service: "test",
		BaseURL: srv.URL + "/",
		Timeout: time.Second,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestNewClientRejectsBadURL(t *testing.T) {
	_, err := NewClient(Options{Service: "orders", BaseURL: "localhost"})
	require.Error(t, err)
}

func TestOrdersClient(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "2", r.URL.Query().Get("page"))
		require.Equal(t, "10", r.URL.Query().Get("size"))
		require.Equal(t, "price", r.URL.Query().Get("sortBy"))
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		writeJSON(w, http.StatusOK, map[string]any{
			"content":       []map[string]any{{"id": 1, "orderId": "ORD-1", "product": "Laptop", "price": 999.99}},
			"totalPages":    3,
			"totalElements": 21,
		})
	})
	r.HandleFunc("/api/orders/statistics/products", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{{"product": "Mouse", "count": 4, "totalRevenue": 80.0, "averagePrice": 20.0}})
	})
	r.HandleFunc("/api/orders/product/{product}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Gaming Laptop", mux.Vars(r)["product"])
		writeJSON(w, http.StatusOK, []map[string]any{{"orderId": "ORD-9", "product": "Gaming Laptop"}})
	})
	r.HandleFunc("/api/orders/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Mouse", r.URL.Query().Get("product"))
		require.False(t, r.URL.Query().Has("orderId"))
		writeJSON(w, http.StatusOK, []map[string]any{})
	})
	r.HandleFunc("/api/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	orders := NewOrdersClient(newTestClient(t, r))
	ctx := context.Background()

	page, err := orders.ListOrders(ctx, domain.PageRequest{Page: 2, Size: 10, SortBy: "price"})
	require.NoError(t, err)
	require.Equal(t, 3, page.TotalPages)
	require.Equal(t, int64(21), page.TotalElements)
	require.Equal(t, "ORD-1", page.Content[0].OrderID)

	stats, err := orders.ProductStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, []domain.ProductStat{{Product: "Mouse", OrderCount: 4, TotalRevenue: 80, AveragePrice: 20}}, stats)

	byProduct, err := orders.OrdersByProduct(ctx, "Gaming Laptop")
	require.NoError(t, err)
	require.Len(t, byProduct, 1)

	found, err := orders.Search(ctx, domain.SearchCriteria{Product: "Mouse"})
	require.NoError(t, err)
	require.Empty(t, found)

	_, err = orders.GetOrder(ctx, 42)
	require.ErrorIs(t, err, domain.ErrNotFound)
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	require.Equal(t, http.StatusNotFound, re.Status)
	require.False(t, re.Temporary())
}

func TestDeadLetterClient(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/dlq/failed-orders", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "PENDING", r.URL.Query().Get("status"))
		writeJSON(w, http.StatusOK, []map[string]any{{"id": 7, "orderId": "ORD-7", "status": "PENDING", "retryCount": 3}})
	}).Methods(http.MethodGet)
	r.HandleFunc("/api/dlq/statistics", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"total": 5, "pending": 2, "reprocessed": 2, "discarded": 1, "temporary": 3, "permanent": 2})
	})
	r.HandleFunc("/api/dlq/reprocess/{id}", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "alice", r.URL.Query().Get("reprocessedBy"))
		if mux.Vars(r)["id"] == "8" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "failed", "message": "Order not found or already reprocessed"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "success", "message": "Order reprocessed successfully"})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/dlq/reprocess-all", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]int{"total": 3, "success": 2, "failed": 1})
	}).Methods(http.MethodPost)
	r.HandleFunc("/api/dlq/discard/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "db down"})
	}).Methods(http.MethodPost)
	dlq := NewDeadLetterClient(newTestClient(t, r))
	ctx := context.Background()

	failed, err := dlq.FailedOrders(ctx, domain.FailedPending)
	require.NoError(t, err)
	require.Equal(t, int64(7), failed[0].ID)
	require.Equal(t, 3, failed[0].RetryCount)

	stats, err := dlq.Statistics(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.DLQStatistics{Total: 5, Pending: 2, Reprocessed: 2, Discarded: 1, Temporary: 3, Permanent: 2}, stats)

	res, err := dlq.Reprocess(ctx, 7, "alice")
	require.NoError(t, err)
	require.Equal(t, "success", res.Status)

	_, err = dlq.Reprocess(ctx, 8, "alice")
	var re *RemoteError
	require.ErrorAs(t, err, &re)
	require.Equal(t, http.StatusBadRequest, re.Status)
	require.Equal(t, "Order not found or already reprocessed", re.Body)

	sum, err := dlq.ReprocessAll(ctx, "")
	require.NoError(t, err)
	require.Equal(t, domain.ReprocessSummary{Total: 3, Success: 2, Failed: 1}, sum)

	_, err = dlq.Discard(ctx, 1)
	require.ErrorAs(t, err, &re)
	require.True(t, re.Temporary())
	require.Contains(t, err.Error(), "db down")
}

func TestProducerClient(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/order", func(w http.ResponseWriter, r *http.Request) {
		var req domain.OrderRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, domain.OrderRequest{OrderID: "ORD-1", Product: "Laptop", Price: 10.5}, req)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, "Order sent: ORD-1\n")
	}).Methods(http.MethodPost)
	r.HandleFunc("/order/random", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "Random order produced: ORD-R")
	}).Methods(http.MethodPost)
	p := NewProducerClient(newTestClient(t, r))

	msg, err := p.CreateOrder(context.Background(), domain.OrderRequest{OrderID: "ORD-1", Product: "Laptop", Price: 10.5})
	require.NoError(t, err)
	require.Equal(t, "Order sent: ORD-1", msg)

	msg, err = p.CreateRandomOrder(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Random order produced: ORD-R", msg)
}

func TestAggregationClient(t *testing.T) {
	r := mux.NewRouter()
	r.HandleFunc("/api/statistics/all", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"Laptop": map[string]any{"product": "Laptop", "orderCount": 2, "totalRevenue": 2000.0, "minPrice": 900.0, "maxPrice": 1100.0},
		})
	})
	r.HandleFunc("/api/statistics/summary", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"totalOrders": 2, "totalRevenue": 2000.0, "productCount": 1, "averageRevenuePerProduct": 2000.0})
	})
	r.HandleFunc("/api/statistics/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "UP", "state": "RUNNING"})
	})
	a := NewAggregationClient(newTestClient(t, r))
	ctx := context.Background()

	all, err := a.AllStatistics(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), all["Laptop"].OrderCount)
	require.Equal(t, 1100.0, all["Laptop"].MaxPrice)

	sum, err := a.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, sum.ProductCount)

	h, err := a.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "RUNNING", h.State)
}

func TestTransportFailureIsTemporary(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := NewClient(Options{Service: "orders", BaseURL: url, Timeout: time.Second})
	require.NoError(t, err)
	_, err = NewOrdersClient(c).Statistics(context.Background())

	var re *RemoteError
	require.ErrorAs(t, err, &re)
	require.NotNil(t, re.Err)
	require.True(t, re.Temporary())
	require.False(t, errors.Is(err, domain.ErrNotFound))
}

func TestRemoteErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		notFound  bool
		rejected  bool
		temporary bool
	}{
		{status: http.StatusBadRequest, rejected: true},
		{status: http.StatusConflict, rejected: true},
		{status: http.StatusUnprocessableEntity, rejected: true},
		{status: http.StatusNotFound, notFound: true},
		{status: http.StatusRequestTimeout},
		{status: http.StatusTooManyRequests, temporary: true},
		{status: http.StatusInternalServerError, temporary: true},
		{status: http.StatusServiceUnavailable, temporary: true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := &domain.MutationError{
				Operation: "reprocessOrder",
				Err:       &RemoteError{Service: "dlq", Method: http.MethodPost, Path: "/api/dlq/1/reprocess", Status: tt.status},
			}
			require.Equal(t, tt.notFound, errors.Is(err, domain.ErrNotFound))
			require.Equal(t, tt.rejected, errors.Is(err, domain.ErrRejected))
			var re *RemoteError
			require.ErrorAs(t, err, &re)
			require.Equal(t, tt.temporary, re.Temporary())
		})
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{})
	}))
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{Service: "orders", BaseURL: srv.URL, Timeout: time.Second, RateLimit: 0.001, Burst: 1})
	require.NoError(t, err)
	orders := NewOrdersClient(c)

	_, err = orders.Statistics(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = orders.Statistics(ctx)
	require.Error(t, err)
}
