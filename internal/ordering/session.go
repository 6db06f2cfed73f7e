// Package ordering composes the per-customer ordering components and keeps
// one session per browser profile.
package ordering

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/cart"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/coupon"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/history"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/identity"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/prefs"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/pricing"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/tracker"
)

// DemoUser is the identity used for orders placed while the demo-user
// marker is set and nobody is signed in.
var DemoUser = identity.User{ID: "demo", Email: "demo@qrmenu.local", Name: "Demo Guest"}

// Session is everything one customer interacts with while ordering.
type Session struct {
	ID        uuid.UUID
	Cart      *cart.Store
	Coupons   *coupon.Evaluator
	Submitter *order.Submitter
	Tracker   *tracker.Tracker
	Inbox     *tracker.Inbox
	History   *history.Store
	Prefs     *prefs.Store
}

// Totals prices the current cart with the applied coupon re-evaluated
// against the current subtotal.
func (s *Session) Totals() pricing.Totals {
	lines := s.Cart.Lines()
	return pricing.Summarize(lines, s.Coupons.Discount(pricing.Subtotal(lines)))
}

// ApplyCoupon evaluates code against the current cart subtotal.
func (s *Session) ApplyCoupon(code string) (coupon.Applied, error) {
	return s.Coupons.Apply(code, pricing.Subtotal(s.Cart.Lines()))
}

func (s *Session) Discount() decimal.Decimal {
	return s.Coupons.Discount(pricing.Subtotal(s.Cart.Lines()))
}

// Coupon reports the applied coupon evaluated against the current cart.
func (s *Session) Coupon() (coupon.Applied, bool) {
	return s.Coupons.Evaluate(pricing.Subtotal(s.Cart.Lines()))
}

func (s *Session) Submit(ctx context.Context, req order.Request) (order.Result, error) {
	return s.Submitter.Submit(ctx, req)
}

// sessionIdentity prefers the signed-in user and falls back to DemoUser
// when the session carries the demo-user marker.
type sessionIdentity struct {
	base  identity.Accessor
	prefs *prefs.Store
}

func (a sessionIdentity) CurrentUser(ctx context.Context) (identity.User, bool) {
	if u, ok := a.base.CurrentUser(ctx); ok {
		return u, true
	}
	if a.prefs.IsDemoUser() {
		return DemoUser, true
	}
	return identity.User{}, false
}
