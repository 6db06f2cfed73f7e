// Package money holds the decimal conventions shared by pricing, coupons and
// order persistence. Values stay exact until they cross a display or
// submission boundary, where they are rounded to the currency minor unit.
package money

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// MinorUnitPlaces is the number of fractional digits of the rupee.
const MinorUnitPlaces = 2

// Symbol is prepended by Format.
const Symbol = "₹"

// Zero is the zero amount.
var Zero = decimal.Zero

// Round rounds to the minor unit, half away from zero. Amounts in this
// module are never negative, so this is round-half-up.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(MinorUnitPlaces)
}

// Parse reads a decimal amount and rejects negative values.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Zero, fmt.Errorf("money: invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return Zero, fmt.Errorf("money: amount %q must not be negative", s)
	}
	return d, nil
}

// Format renders a rounded amount for display, e.g. "₹22.95".
func Format(d decimal.Decimal) string {
	return Symbol + Round(d).StringFixed(MinorUnitPlaces)
}

// String renders a rounded amount without the currency symbol.
func String(d decimal.Decimal) string {
	return Round(d).StringFixed(MinorUnitPlaces)
}

// ToNumeric converts a rounded amount into a postgres numeric parameter.
func ToNumeric(d decimal.Decimal) pgtype.Numeric {
	r := Round(d)
	return pgtype.Numeric{Int: r.Coefficient(), Exp: r.Exponent(), Valid: true}
}

// FromNumeric converts a scanned postgres numeric. NULL and NaN map to zero.
func FromNumeric(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.NaN || n.Int == nil {
		return Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
