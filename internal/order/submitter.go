package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/cart"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/coupon"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/identity"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/money"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/pricing"
)

var (
	ErrRestaurantNotFound = errors.New("restaurant not found")
	ErrEmptyCart          = errors.New("empty cart")
	ErrRemoteUnavailable  = errors.New("remote order service is not configured")
)

type ErrorKind uint8

const (
	KindValidation ErrorKind = iota + 1
	KindRemote
	KindPartialWrite
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindRemote:
		return "remote"
	case KindPartialWrite:
		return "partial_write"
	default:
		return "unknown"
	}
}

// SubmitError is a failed submission. Message is what the customer sees.
type SubmitError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *SubmitError) Error() string {
	if e.Err == nil {
		return "submitter: " + e.Message
	}
	return fmt.Sprintf("submitter: %s: %v", e.Message, e.Err)
}

func (e *SubmitError) Unwrap() error {
	return e.Err
}

const (
	msgSubmitFailed  = "could not place your order, please try again"
	msgPartialWrite  = "your order could not be completed, please try again"
	defaultPreflight = 2500 * time.Millisecond
	defaultWrite     = 15 * time.Second
	defaultLeadTime  = 20 * time.Minute
)

type Cart interface {
	Lines() []cart.Line
	Clear()
}

type Coupons interface {
	Evaluate(subtotal decimal.Decimal) (coupon.Applied, bool)
	Remove()
}

type Recorder interface {
	Record(s Summary) error
}

type Tracker interface {
	Track(s Summary)
}

// ModeSource reports whether local fallback is disabled.
type ModeSource interface {
	ForceRealMode() bool
}

type SubmitterConfig struct {
	PreflightTimeout time.Duration
	WriteTimeout     time.Duration
	LeadTime         time.Duration
}

func (c SubmitterConfig) withDefaults() SubmitterConfig {
	if c.PreflightTimeout <= 0 {
		c.PreflightTimeout = defaultPreflight
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWrite
	}
	if c.LeadTime <= 0 {
		c.LeadTime = defaultLeadTime
	}
	return c
}

type SubmitterDeps struct {
	Repo     Repository
	Cart     Cart
	Coupons  Coupons
	History  Recorder
	Tracker  Tracker
	Mode     ModeSource
	Identity identity.Accessor
	Now      func() time.Time
}

type Request struct {
	RestaurantID  uuid.UUID
	TableNumber   string
	CustomerName  string
	CustomerEmail string
	Notes         string
}

type Result struct {
	Order    Summary
	Fallback bool
}

// Submitter places the cart as an order. A nil Repo means no remote
// service is configured.
type Submitter struct {
	deps SubmitterDeps
	cfg  SubmitterConfig
}

func NewSubmitter(deps SubmitterDeps, cfg SubmitterConfig) *Submitter {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Identity == nil {
		deps.Identity = identity.ContextAccessor{}
	}
	return &Submitter{deps: deps, cfg: cfg.withDefaults()}
}

func (s *Submitter) Submit(ctx context.Context, req Request) (Result, error) {
	if req.RestaurantID == uuid.Nil {
		return Result{}, &SubmitError{Kind: KindValidation, Message: "restaurant not found", Err: ErrRestaurantNotFound}
	}

	lines := s.deps.Cart.Lines()
	if len(lines) == 0 {
		return Result{}, &SubmitError{Kind: KindValidation, Message: "empty cart", Err: ErrEmptyCart}
	}

	o := s.buildOrder(ctx, req, lines)

	if s.deps.Repo == nil {
		return s.remoteFailed(o, ErrRemoteUnavailable)
	}

	go s.preflight(ctx)

	createCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	orderID, err := s.deps.Repo.CreateOrder(createCtx, o)
	cancel()
	if err != nil {
		log.Error().Err(err).Stringer("restaurant_id", req.RestaurantID).Msg("submitter: failed to create order")
		return s.remoteFailed(o, err)
	}

	itemsCtx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	err = s.deps.Repo.CreateItems(itemsCtx, orderID, o.Items)
	cancel()
	if err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("submitter: failed to create order items, compensating")
		s.compensate(ctx, orderID)
		if s.deps.Mode.ForceRealMode() {
			s.resetCheckout()
		}
		return Result{}, &SubmitError{Kind: KindPartialWrite, Message: msgPartialWrite, Err: err}
	}

	summary := o.Summarize(o.CreatedAt.Add(s.cfg.LeadTime))
	s.complete(summary)

	log.Info().Stringer("order_id", orderID).Stringer("restaurant_id", req.RestaurantID).Msg("submitter: order placed")
	return Result{Order: summary}, nil
}

func (s *Submitter) buildOrder(ctx context.Context, req Request, lines []cart.Line) *Order {
	discount := decimal.Zero
	var couponCode string
	if a, ok := s.deps.Coupons.Evaluate(pricing.Subtotal(lines)); ok && a.Eligible {
		discount = a.Discount
		couponCode = a.Coupon.Code
	}
	totals := pricing.Summarize(lines, discount)

	o := &Order{
		RestaurantID:  req.RestaurantID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		TableNumber:   req.TableNumber,
		Notes:         req.Notes,
		Status:        StatusPending,
		Subtotal:      totals.Subtotal,
		Discount:      totals.Discount,
		TotalAmount:   totals.Total,
		CouponCode:    couponCode,
		CreatedAt:     s.deps.Now().UTC(),
	}

	if u, ok := s.deps.Identity.CurrentUser(ctx); ok {
		o.CustomerUserID = u.ID
		if o.CustomerEmail == "" {
			o.CustomerEmail = u.Email
		}
		if o.CustomerName == "" {
			o.CustomerName = u.Name
		}
	}

	o.Items = make([]Item, 0, len(lines))
	for _, l := range lines {
		o.Items = append(o.Items, Item{
			MenuItemID:          l.MenuItemID,
			Name:                l.Name,
			VariantName:         l.VariantName,
			AddonNames:          l.AddonNames,
			Quantity:            l.Quantity,
			UnitPrice:           money.Round(l.UnitPrice),
			TotalPrice:          money.Round(pricing.LineTotal(l)),
			SpecialInstructions: l.Instructions,
		})
	}
	return o
}

// preflight warms up the connection. Its outcome never affects the
// submission.
func (s *Submitter) preflight(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, s.cfg.PreflightTimeout)
	defer cancel()

	if err := s.deps.Repo.Ping(pingCtx); err != nil {
		log.Warn().Err(err).Msg("submitter: preflight probe failed")
		return
	}
	log.Debug().Msg("submitter: preflight probe ok")
}

func (s *Submitter) compensate(ctx context.Context, orderID uuid.UUID) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.WriteTimeout)
	defer cancel()

	if err := s.deps.Repo.DeleteOrder(delCtx, orderID); err != nil {
		log.Error().Err(err).Stringer("order_id", orderID).Msg("submitter: compensating delete failed")
		return
	}
	log.Info().Stringer("order_id", orderID).Msg("submitter: compensated order without items")
}

// remoteFailed applies the fallback policy to a failed order write.
func (s *Submitter) remoteFailed(o *Order, cause error) (Result, error) {
	if s.deps.Mode.ForceRealMode() {
		s.resetCheckout()
		return Result{}, &SubmitError{Kind: KindRemote, Message: msgSubmitFailed, Err: cause}
	}

	id, err := NewLocalID()
	if err != nil {
		return Result{}, &SubmitError{Kind: KindRemote, Message: msgSubmitFailed, Err: errors.Join(cause, err)}
	}

	o.ID = id
	o.Status = StatusPending
	o.UpdatedAt = o.CreatedAt

	summary := o.Summarize(o.CreatedAt.Add(s.cfg.LeadTime))
	s.complete(summary)

	log.Warn().Err(cause).Stringer("order_id", id).Msg("submitter: remote write failed, placed local order")
	return Result{Order: summary, Fallback: true}, nil
}

func (s *Submitter) complete(summary Summary) {
	s.resetCheckout()

	if err := s.deps.History.Record(summary); err != nil {
		log.Error().Err(err).Stringer("order_id", summary.ID).Msg("submitter: failed to record order history")
	}
	s.deps.Tracker.Track(summary)
}

func (s *Submitter) resetCheckout() {
	s.deps.Cart.Clear()
	s.deps.Coupons.Remove()
}
