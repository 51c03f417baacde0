package domain

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// OrderRequest тело запроса продюсеру на создание заказа.
type OrderRequest struct {
	OrderID string  `json:"orderId"`
	Product string  `json:"product"`
	Price   float64 `json:"price"`
}

// Validate проверяет запрос так же, как это делает продюсер (@NotBlank, @Positive).
func (r OrderRequest) Validate() error {
	if strings.TrimSpace(r.OrderID) == "" {
		return &ValidationError{Field: "orderId", Reason: "must not be blank"}
	}
	if strings.TrimSpace(r.Product) == "" {
		return &ValidationError{Field: "product", Reason: "must not be blank"}
	}
	if math.IsNaN(r.Price) || math.IsInf(r.Price, 0) {
		return &ValidationError{Field: "price", Reason: "must be a finite number"}
	}
	if r.Price <= 0 {
		return &ValidationError{Field: "price", Reason: "must be positive"}
	}
	return nil
}

// ParseOrderRequest собирает запрос из значений формы; цена приходит текстом
// и округляется до центов.
func ParseOrderRequest(orderID, product, price string) (OrderRequest, error) {
	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return OrderRequest{}, &ValidationError{Field: "price", Reason: "must be numeric"}
	}
	req := OrderRequest{
		OrderID: strings.TrimSpace(orderID),
		Product: strings.TrimSpace(product),
		Price:   p.Round(2).InexactFloat64(),
	}
	if err := req.Validate(); err != nil {
		return OrderRequest{}, err
	}
	return req, nil
}

// Направления сортировки списка заказов.
const (
	SortAsc  = "ASC"
	SortDesc = "DESC"
)

// DefaultSortBy поле сортировки списка заказов по умолчанию.
const DefaultSortBy = "processedAt"

var sortFields = map[string]bool{
	"id": true, "orderId": true, "product": true, "price": true,
	"status": true, "processedAt": true, "receivedAt": true,
}

// WithSort проверяет сортировку и подставляет умолчания: processedAt, DESC.
// Направление принимается в любом регистре.
func (r PageRequest) WithSort() (PageRequest, error) {
	if r.SortBy == "" {
		r.SortBy = DefaultSortBy
	}
	if !sortFields[r.SortBy] {
		return r, &ValidationError{Field: "sortBy", Reason: "unknown field " + r.SortBy}
	}
	switch d := strings.ToUpper(r.Direction); d {
	case "":
		r.Direction = SortDesc
	case SortAsc, SortDesc:
		r.Direction = d
	default:
		return r, &ValidationError{Field: "direction", Reason: "must be ASC or DESC"}
	}
	return r, nil
}
