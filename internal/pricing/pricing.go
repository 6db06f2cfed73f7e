// Package pricing computes cart totals. Amounts stay exact; callers round
// with money.Round when a value leaves the core.
package pricing

import (
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/cart"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/money"
)

// LineTotal is the unit price, already including add-ons and variant
// surcharge, times quantity.
func LineTotal(l cart.Line) decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func Subtotal(lines []cart.Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(LineTotal(l))
	}
	return sum
}

// FinalTotal is subtotal minus discount, floored at zero.
func FinalTotal(lines []cart.Line, discount decimal.Decimal) decimal.Decimal {
	total := Subtotal(lines).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total
}

// Totals is the rounded breakdown shown to the customer and submitted with
// an order.
type Totals struct {
	Subtotal  decimal.Decimal `json:"subtotal"`
	Discount  decimal.Decimal `json:"discount"`
	Total     decimal.Decimal `json:"total"`
	ItemCount int             `json:"item_count"`
}

// Summarize rounds each figure independently at the boundary.
func Summarize(lines []cart.Line, discount decimal.Decimal) Totals {
	count := 0
	for _, l := range lines {
		count += l.Quantity
	}
	return Totals{
		Subtotal:  money.Round(Subtotal(lines)),
		Discount:  money.Round(discount),
		Total:     money.Round(FinalTotal(lines, discount)),
		ItemCount: count,
	}
}
