package domain

// FailureSimulation код, который конвейер распознаёт в последних двух
// символах orderId и превращает в сбой обработки заданного типа.
type FailureSimulation struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	FailureType string `json:"failureType"`
}

// FailureSimulations поддерживаемые конвейером коды сбоев.
var FailureSimulations = []FailureSimulation{
	{Code: "99", Label: "Network Error", FailureType: FailureTemporary},
	{Code: "98", Label: "Database Timeout", FailureType: FailureTemporary},
	{Code: "97", Label: "Service Unavailable", FailureType: FailureTemporary},
	{Code: "96", Label: "Rate Limit", FailureType: FailureTemporary},
	{Code: "88", Label: "Validation Error", FailureType: FailurePermanent},
	{Code: "77", Label: "Duplicate Order", FailureType: FailurePermanent},
	{Code: "66", Label: "Product Not Found", FailureType: FailurePermanent},
	{Code: "55", Label: "Insufficient Inventory", FailureType: FailurePermanent},
}

// WithSimulation заменяет два последних символа orderId кодом сбоя.
// Пустой код оставляет запрос без изменений.
func (r OrderRequest) WithSimulation(code string) (OrderRequest, error) {
	if code == "" {
		return r, nil
	}
	known := false
	for _, s := range FailureSimulations {
		if s.Code == code {
			known = true
			break
		}
	}
	if !known {
		return OrderRequest{}, &ValidationError{Field: "simulate", Reason: "unknown failure code " + code}
	}
	id := []rune(r.OrderID)
	if len(id) >= 2 {
		id = id[:len(id)-2]
	} else {
		id = id[:0]
	}
	r.OrderID = string(id) + code
	return r, nil
}
