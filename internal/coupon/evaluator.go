package coupon

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/money"
)

var (
	ErrInvalidCode  = errors.New("invalid code")
	ErrBelowMinimum = errors.New("subtotal below coupon minimum")
)

// RejectionError is returned by Apply. Reason is safe to show to the
// customer.
type RejectionError struct {
	Code   string
	Reason string
	err    error
}

func (e *RejectionError) Error() string {
	return e.Reason
}

func (e *RejectionError) Unwrap() error {
	return e.err
}

// Applied is the active coupon evaluated against the current subtotal.
type Applied struct {
	Coupon   Coupon          `json:"coupon"`
	Discount decimal.Decimal `json:"discount"`
	// Eligible is false once the subtotal has dropped below the coupon
	// minimum. The discount is zero until the subtotal qualifies again.
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// Evaluator keeps at most one applied coupon for the lifetime of the
// session. The discount is recomputed from the subtotal on every read.
type Evaluator struct {
	mu      sync.Mutex
	catalog *Catalog
	applied *Coupon
}

func NewEvaluator(catalog *Catalog) *Evaluator {
	return &Evaluator{catalog: catalog}
}

// Apply evaluates code against subtotal. On success it replaces any
// previously applied coupon. A rejection leaves the current one in place.
func (e *Evaluator) Apply(code string, subtotal decimal.Decimal) (Applied, error) {
	normalized := Normalize(code)

	cp, ok := e.catalog.Lookup(normalized)
	if !ok {
		return Applied{}, &RejectionError{Code: normalized, Reason: "invalid code", err: ErrInvalidCode}
	}
	if subtotal.LessThan(cp.Minimum) {
		return Applied{}, &RejectionError{Code: normalized, Reason: minimumReason(cp), err: ErrBelowMinimum}
	}

	e.mu.Lock()
	e.applied = &cp
	e.mu.Unlock()

	a := evaluate(cp, subtotal)
	log.Debug().Str("code", cp.Code).Str("discount", a.Discount.String()).Msg("coupon: applied")
	return a, nil
}

// Remove clears the applied coupon. It always succeeds.
func (e *Evaluator) Remove() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.applied = nil
}

func (e *Evaluator) Coupon() (Coupon, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.applied == nil {
		return Coupon{}, false
	}
	return *e.applied, true
}

// Evaluate prices the applied coupon against subtotal.
func (e *Evaluator) Evaluate(subtotal decimal.Decimal) (Applied, bool) {
	cp, ok := e.Coupon()
	if !ok {
		return Applied{}, false
	}
	return evaluate(cp, subtotal), true
}

// Discount is the discount the applied coupon grants on subtotal, or zero.
func (e *Evaluator) Discount(subtotal decimal.Decimal) decimal.Decimal {
	a, ok := e.Evaluate(subtotal)
	if !ok {
		return decimal.Zero
	}
	return a.Discount
}

func evaluate(cp Coupon, subtotal decimal.Decimal) Applied {
	if subtotal.LessThan(cp.Minimum) {
		return Applied{Coupon: cp, Discount: decimal.Zero, Reason: minimumReason(cp)}
	}
	return Applied{Coupon: cp, Discount: cp.Discount(subtotal), Eligible: true}
}

func minimumReason(cp Coupon) string {
	return fmt.Sprintf("minimum order of %s required", money.Format(cp.Minimum))
}
