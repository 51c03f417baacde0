package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/order-dashboard/internal/derived"
	"github.com/example/order-dashboard/internal/domain"
	"github.com/example/order-dashboard/internal/usecase"
)

// Mutator выполняет административные команды.
type Mutator interface {
	Execute(ctx context.Context, cmd usecase.Command) (usecase.Result, error)
}

type Server struct {
	Router   *mux.Router
	Views    *usecase.Views
	Mutate   Mutator
	Metrics  prometheus.Gatherer
	Logger   *slog.Logger
	StaticFS http.FileSystem
}

// NewServer staticDir пустой отключает раздачу статики; gatherer nil отключает /metrics.
func NewServer(views *usecase.Views, mutate Mutator, gatherer prometheus.Gatherer, staticDir string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{Router: mux.NewRouter(), Views: views, Mutate: mutate, Metrics: gatherer, Logger: logger}
	if staticDir != "" {
		s.StaticFS = http.Dir(staticDir)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	api := s.Router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/dashboard", s.handleDashboard).Methods(http.MethodGet)
	api.HandleFunc("/orders", s.handleOrders).Methods(http.MethodGet)
	api.HandleFunc("/orders/search", s.handleSearch).Methods(http.MethodGet)
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleOrder).Methods(http.MethodGet)
	api.HandleFunc("/orders/order/{orderId}", s.handleOrderByOrderID).Methods(http.MethodGet)
	api.HandleFunc("/orders/product/{product}", s.handleOrdersByProduct).Methods(http.MethodGet)
	api.HandleFunc("/orders/status/{status}", s.handleOrdersByStatus).Methods(http.MethodGet)
	api.HandleFunc("/analytics", s.handleAnalytics).Methods(http.MethodGet)
	api.HandleFunc("/analytics/products/{product}", s.handleProductAggregate).Methods(http.MethodGet)
	api.HandleFunc("/dlq", s.handleDLQ).Methods(http.MethodGet)
	api.HandleFunc("/dlq/type/{type}", s.handleDLQByType).Methods(http.MethodGet)
	api.HandleFunc("/dlq/{id:[0-9]+}", s.handleFailedOrder).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api.HandleFunc("/producer/simulations", s.handleSimulations).Methods(http.MethodGet)
	api.HandleFunc("/producer/orders", s.handleCreateOrder).Methods(http.MethodPost)
	api.HandleFunc("/producer/orders/random", s.handleCreateRandom).Methods(http.MethodPost)
	api.HandleFunc("/producer/orders/bulk", s.handleCreateBulk).Methods(http.MethodPost)
	api.HandleFunc("/dlq/reprocess-all", s.handleReprocessAll).Methods(http.MethodPost)
	api.HandleFunc("/dlq/{id:[0-9]+}/reprocess", s.handleReprocess).Methods(http.MethodPost)
	api.HandleFunc("/dlq/{id:[0-9]+}/discard", s.handleDiscard).Methods(http.MethodPost)
	api.HandleFunc("/cache/invalidate", s.handleInvalidate).Methods(http.MethodPost)

	if s.Metrics != nil {
		s.Router.Handle("/metrics", promhttp.HandlerFor(s.Metrics, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}
	if s.StaticFS != nil {
		s.Router.PathPrefix("/").Handler(http.FileServer(s.StaticFS))
	}
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Views.Dashboard(r.Context()))
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 0)
	if err != nil {
		s.writeError(w, &domain.ValidationError{Field: "page", Reason: "must be an integer"})
		return
	}
	size, err := intParam(q.Get("size"), usecase.DefaultPageSize)
	if err != nil || size < 1 || size > 100 {
		s.writeError(w, &domain.ValidationError{Field: "size", Reason: "must be between 1 and 100"})
		return
	}
	sorted, err := domain.PageRequest{SortBy: q.Get("sortBy"), Direction: q.Get("direction")}.WithSort()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.Views.Orders(r.Context(), usecase.OrdersQuery{
		Page:      page,
		Size:      size,
		SortBy:    sorted.SortBy,
		Direction: sorted.Direction,
		Filter: derived.OrderFilter{
			SearchTerm: q.Get("search"),
			Product:    q.Get("product"),
		},
	}))
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	crit := domain.SearchCriteria{OrderID: q.Get("orderId"), Product: q.Get("product"), Status: q.Get("status")}
	if crit == (domain.SearchCriteria{}) {
		s.writeError(w, &domain.ValidationError{Field: "query", Reason: "one of orderId, product, status is required"})
		return
	}
	writePanel(w, s.Views.Search(r.Context(), crit))
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	writePanel(w, s.Views.Order(r.Context(), id))
}

func (s *Server) handleOrderByOrderID(w http.ResponseWriter, r *http.Request) {
	writePanel(w, s.Views.OrderByOrderID(r.Context(), mux.Vars(r)["orderId"]))
}

func (s *Server) handleOrdersByProduct(w http.ResponseWriter, r *http.Request) {
	writePanel(w, s.Views.OrdersByProduct(r.Context(), mux.Vars(r)["product"]))
}

func (s *Server) handleOrdersByStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := intParam(q.Get("page"), 0)
	if err != nil {
		s.writeError(w, &domain.ValidationError{Field: "page", Reason: "must be an integer"})
		return
	}
	size, err := intParam(q.Get("size"), usecase.DefaultPageSize)
	if err != nil || size < 1 || size > 100 {
		s.writeError(w, &domain.ValidationError{Field: "size", Reason: "must be between 1 and 100"})
		return
	}
	p, err := s.Views.OrdersByStatus(r.Context(), strings.ToUpper(mux.Vars(r)["status"]), page, size)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writePanel(w, p)
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Views.Analytics(r.Context()))
}

func (s *Server) handleProductAggregate(w http.ResponseWriter, r *http.Request) {
	writePanel(w, s.Views.ProductAggregate(r.Context(), mux.Vars(r)["product"]))
}

func (s *Server) handleDLQ(w http.ResponseWriter, r *http.Request) {
	page, err := s.Views.DLQ(r.Context(), strings.ToUpper(r.URL.Query().Get("status")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *Server) handleDLQByType(w http.ResponseWriter, r *http.Request) {
	ft := strings.ToUpper(mux.Vars(r)["type"])
	if ft != domain.FailureTemporary && ft != domain.FailurePermanent {
		s.writeError(w, &domain.ValidationError{Field: "type", Reason: "must be TEMPORARY or PERMANENT"})
		return
	}
	writePanel(w, s.Views.FailedOrdersByType(r.Context(), ft))
}

func (s *Server) handleFailedOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	writePanel(w, s.Views.FailedOrder(r.Context(), id))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Views.Health(r.Context()))
}

func (s *Server) handleSimulations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.FailureSimulations)
}

type createOrderBody struct {
	OrderID  string          `json:"orderId"`
	Product  string          `json:"product"`
	Price    json.RawMessage `json:"price"`
	Simulate string          `json:"simulate"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var body createOrderBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, &domain.ValidationError{Field: "body", Reason: "malformed JSON"})
		return
	}
	// цена принимается и числом, и строкой из формы
	req, err := domain.ParseOrderRequest(body.OrderID, body.Product, strings.Trim(string(body.Price), `"`))
	if err != nil {
		s.writeError(w, err)
		return
	}
	cmd := usecase.CreateOrder(req)
	cmd.Simulate = body.Simulate
	s.execute(w, r, cmd)
}

func (s *Server) handleCreateRandom(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, usecase.CreateRandomOrder())
}

func (s *Server) handleCreateBulk(w http.ResponseWriter, r *http.Request) {
	n, err := intParam(r.URL.Query().Get("count"), 10)
	if err != nil {
		s.writeError(w, &domain.ValidationError{Field: "count", Reason: "must be an integer"})
		return
	}
	s.execute(w, r, usecase.CreateBulkOrders(n))
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.execute(w, r, usecase.ReprocessOrder(id, r.URL.Query().Get("actor")))
}

func (s *Server) handleReprocessAll(w http.ResponseWriter, r *http.Request) {
	s.execute(w, r, usecase.ReprocessAllPending(r.URL.Query().Get("actor")))
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathID(w, r)
	if !ok {
		return
	}
	s.execute(w, r, usecase.DiscardOrder(id))
}

func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	resource := r.URL.Query().Get("resource")
	resources := usecase.Resources()
	if resource != "" {
		known := false
		for _, res := range resources {
			if res == resource {
				known = true
				break
			}
		}
		if !known {
			s.writeError(w, &domain.ValidationError{Field: "resource", Reason: "unknown resource " + resource})
			return
		}
		resources = []string{resource}
	}
	n := 0
	for _, res := range resources {
		n += s.Views.Refresh(res)
	}
	writeJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, cmd usecase.Command) {
	res, err := s.Mutate.Execute(r.Context(), cmd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status := http.StatusOK
	if res.Failed > 0 && res.Succeeded > 0 {
		status = http.StatusMultiStatus
	}
	writeJSON(w, status, res)
}

func (s *Server) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id < 1 {
		s.writeError(w, &domain.ValidationError{Field: "id", Reason: "must be a positive integer"})
		return 0, false
	}
	return id, true
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	var me *domain.MutationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: ve.Error(), Field: ve.Field})
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrRejected):
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.As(err, &me):
		writeJSON(w, http.StatusBadGateway, errorBody{Error: err.Error()})
	default:
		s.Logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// writePanel отдаёт 404, если сервис не нашёл объект и данных нет.
func writePanel[T any](w http.ResponseWriter, p usecase.Panel[T]) {
	if p.NotFound() {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
