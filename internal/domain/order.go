package domain

// Order заказ, сохранённый сервисом-потребителем.
type Order struct {
	ID            int64   `json:"id"`
	OrderID       string  `json:"orderId"`
	Product       string  `json:"product"`
	Price         float64 `json:"price"`
	CorrelationID string  `json:"correlationId,omitempty"`
	Status        string  `json:"status"`
	KafkaTopic    string  `json:"kafkaTopic"`
	ReceivedAt    string  `json:"receivedAt,omitempty"`
	ProcessedAt   string  `json:"processedAt"`
}

// Статусы заказа в хранилище.
const (
	OrderProcessed  = "PROCESSED"
	OrderProcessing = "PROCESSING"
	OrderFailed     = "FAILED"
)

// FailedOrder заказ из dead-letter очереди.
type FailedOrder struct {
	ID              int64   `json:"id"`
	OrderID         string  `json:"orderId"`
	Product         string  `json:"product"`
	Price           float64 `json:"price"`
	FailureType     string  `json:"failureType"`
	FailureCategory string  `json:"failureCategory"`
	ErrorMessage    string  `json:"errorMessage"`
	RetryCount      int     `json:"retryCount"`
	OriginalTopic   string  `json:"originalTopic,omitempty"`
	CorrelationID   string  `json:"correlationId,omitempty"`
	Status          string  `json:"status"`
	FailedAt        string  `json:"failedAt,omitempty"`
	ReprocessedAt   string  `json:"reprocessedAt,omitempty"`
	ReprocessedBy   string  `json:"reprocessedBy,omitempty"`
}

// Статусы записи в DLQ.
const (
	FailedPending     = "PENDING"
	FailedReprocessed = "REPROCESSED"
	FailedDiscarded   = "DISCARDED"
)

// Типы сбоев обработки.
const (
	FailureTemporary = "TEMPORARY"
	FailurePermanent = "PERMANENT"
)

// ValidFailedStatus сообщает, является ли s известным статусом DLQ.
func ValidFailedStatus(s string) bool {
	switch s {
	case FailedPending, FailedReprocessed, FailedDiscarded:
		return true
	}
	return false
}

// ProductStat агрегированная статистика по продукту.
type ProductStat struct {
	Product      string  `json:"product"`
	OrderCount   int64   `json:"orderCount"`
	TotalRevenue float64 `json:"totalRevenue"`
	AveragePrice float64 `json:"averagePrice"`
	MinPrice     float64 `json:"minPrice"`
	MaxPrice     float64 `json:"maxPrice"`
	LastUpdated  int64   `json:"lastUpdated,omitempty"`
}

// OrderStatistics сводка хранилища заказов.
type OrderStatistics struct {
	TotalOrders       int64   `json:"totalOrders"`
	ProcessedOrders   int64   `json:"processedOrders"`
	TotalRevenue      float64 `json:"totalRevenue"`
	OrdersLastHour    int64   `json:"ordersLastHour"`
	OrdersLast24Hours int64   `json:"ordersLast24Hours"`
}

// DLQStatistics счётчики dead-letter очереди.
type DLQStatistics struct {
	Total       int64 `json:"total"`
	Pending     int64 `json:"pending"`
	Reprocessed int64 `json:"reprocessed"`
	Discarded   int64 `json:"discarded"`
	Temporary   int64 `json:"temporary"`
	Permanent   int64 `json:"permanent"`
}

// AggregationSummary сводка сервиса потоковой агрегации.
type AggregationSummary struct {
	TotalOrders              int64   `json:"totalOrders"`
	TotalRevenue             float64 `json:"totalRevenue"`
	ProductCount             int     `json:"productCount"`
	AverageRevenuePerProduct float64 `json:"averageRevenuePerProduct"`
}

// Page страница постраничной выдачи.
type Page[T any] struct {
	Content       []T   `json:"content"`
	TotalPages    int   `json:"totalPages"`
	TotalElements int64 `json:"totalElements"`
}

// PageRequest параметры постраничного запроса заказов.
type PageRequest struct {
	Page      int
	Size      int
	SortBy    string
	Direction string
}

// SearchCriteria параметры поиска заказов; пустые поля не передаются.
type SearchCriteria struct {
	OrderID string
	Product string
	Status  string
}

// Health ответ health-эндпоинта сервиса.
type Health struct {
	Status      string `json:"status"`
	State       string `json:"state,omitempty"`
	TotalOrders int64  `json:"totalOrders,omitempty"`
	Timestamp   string `json:"timestamp,omitempty"`
}

// ActionResult ответ DLQ на одиночную команду.
type ActionResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ReprocessSummary ответ DLQ на массовую переобработку.
type ReprocessSummary struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
}
