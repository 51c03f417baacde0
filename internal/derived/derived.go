// Package derived строит производные показатели дашборда из загруженных данных.
// Все функции чистые: без сети и без состояния, одинаковый вход даёт одинаковый результат.
package derived

import (
	"sort"
	"strings"

	"github.com/example/order-dashboard/internal/domain"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summary сводка по статистике продуктов, посчитанная на стороне дашборда.
type Summary struct {
	TotalOrders              int64   `json:"totalOrders"`
	TotalRevenue             float64 `json:"totalRevenue"`
	ProductCount             int     `json:"productCount"`
	AverageRevenuePerProduct float64 `json:"averageRevenuePerProduct"`
}

// Summarize суммирует заказы и выручку. ProductCount считает различные продукты
// хотя бы с одним заказом; средняя выручка равна 0, если таких продуктов нет.
func Summarize(stats []domain.ProductStat) Summary {
	var (
		orders  int64
		revenue = decimal.Zero
		seen    = make(map[string]struct{}, len(stats))
	)
	for _, s := range stats {
		orders += s.OrderCount
		revenue = revenue.Add(decimal.NewFromFloat(s.TotalRevenue))
		if s.OrderCount > 0 {
			seen[s.Product] = struct{}{}
		}
	}
	out := Summary{
		TotalOrders:  orders,
		TotalRevenue: revenue.Round(2).InexactFloat64(),
		ProductCount: len(seen),
	}
	if out.ProductCount > 0 {
		out.AverageRevenuePerProduct = revenue.
			Div(decimal.NewFromInt(int64(out.ProductCount))).
			Round(2).
			InexactFloat64()
	}
	return out
}

// SuccessRate доля обработанных заказов в процентах с одним знаком после запятой.
func SuccessRate(stats domain.OrderStatistics) float64 {
	if stats.TotalOrders <= 0 {
		return 0
	}
	return decimal.NewFromInt(stats.ProcessedOrders).
		Mul(hundred).
		Div(decimal.NewFromInt(stats.TotalOrders)).
		Round(1).
		InexactFloat64()
}

// OrderFilter фильтр таблицы заказов. Пустые поля не фильтруют.
type OrderFilter struct {
	SearchTerm string
	Product    string
}

// FilterOrders оставляет заказы, у которых orderId или product содержит
// SearchTerm без учёта регистра и product точно равен Product. Условия
// объединяются по И. Входной срез не изменяется.
func FilterOrders(orders []domain.Order, f OrderFilter) []domain.Order {
	term := strings.ToLower(strings.TrimSpace(f.SearchTerm))
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		if term != "" &&
			!strings.Contains(strings.ToLower(o.OrderID), term) &&
			!strings.Contains(strings.ToLower(o.Product), term) {
			continue
		}
		if f.Product != "" && o.Product != f.Product {
			continue
		}
		out = append(out, o)
	}
	return out
}

// ProductBreakdown строки аналитической таблицы, отсортированные по названию продукта.
// Пустое название берётся из ключа карты.
func ProductBreakdown(all map[string]domain.ProductStat) []domain.ProductStat {
	out := make([]domain.ProductStat, 0, len(all))
	for name, s := range all {
		if s.Product == "" {
			s.Product = name
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Product < out[j].Product })
	return out
}

// Share доля продукта в общей выручке.
type Share struct {
	Product string  `json:"product"`
	Revenue float64 `json:"revenue"`
	Percent float64 `json:"percent"`
}

// RevenueShare считает долю выручки каждого продукта в процентах. При нулевой
// общей выручке все доли нулевые.
func RevenueShare(stats []domain.ProductStat) []Share {
	total := decimal.Zero
	for _, s := range stats {
		total = total.Add(decimal.NewFromFloat(s.TotalRevenue))
	}
	out := make([]Share, 0, len(stats))
	for _, s := range stats {
		sh := Share{Product: s.Product, Revenue: s.TotalRevenue}
		if total.IsPositive() {
			sh.Percent = decimal.NewFromFloat(s.TotalRevenue).
				Mul(hundred).
				Div(total).
				Round(1).
				InexactFloat64()
		}
		out = append(out, sh)
	}
	return out
}

// ProductNames отсортированный список различных непустых названий продуктов.
func ProductNames(stats []domain.ProductStat) []string {
	seen := make(map[string]struct{}, len(stats))
	out := make([]string, 0, len(stats))
	for _, s := range stats {
		if s.Product == "" {
			continue
		}
		if _, ok := seen[s.Product]; ok {
			continue
		}
		seen[s.Product] = struct{}{}
		out = append(out, s.Product)
	}
	sort.Strings(out)
	return out
}
