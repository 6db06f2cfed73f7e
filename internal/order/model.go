package order

import (
	"strings"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusPreparing Status = "preparing"
	StatusReady     Status = "ready"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

func (s Status) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are expected.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

func (s Status) IsKnown() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusPreparing, StatusReady, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// ParseStatus maps a raw status onto a known one. Unknown or empty values
// default to pending.
func ParseStatus(raw string) Status {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.IsKnown() {
		return StatusPending
	}
	return s
}

type Item struct {
	ID                  uuid.UUID       `json:"id"`
	OrderID             uuid.UUID       `json:"order_id"`
	MenuItemID          string          `json:"menu_item_id"`
	Name                string          `json:"name"`
	VariantName         string          `json:"variant_name,omitempty"`
	AddonNames          []string        `json:"addon_names,omitempty"`
	Quantity            int             `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	TotalPrice          decimal.Decimal `json:"total_price"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

type Order struct {
	ID             ID              `json:"id"`
	RestaurantID   uuid.UUID       `json:"restaurant_id"`
	CustomerName   string          `json:"customer_name,omitempty"`
	CustomerEmail  string          `json:"customer_email,omitempty"`
	CustomerUserID string          `json:"customer_user_id,omitempty"`
	TableNumber    string          `json:"table_number,omitempty"`
	Notes          string          `json:"notes,omitempty"`
	Status         Status          `json:"status"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CouponCode     string          `json:"coupon_code,omitempty"`
	Items          []Item          `json:"items"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Summary is the snapshot kept in order history and handed to the tracker.
type Summary struct {
	ID               ID              `json:"id"`
	RestaurantID     uuid.UUID       `json:"restaurant_id"`
	TableNumber      string          `json:"table_number,omitempty"`
	CustomerName     string          `json:"customer_name,omitempty"`
	Status           Status          `json:"status"`
	Items            []Item          `json:"items"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	Total            decimal.Decimal `json:"total"`
	CouponCode       string          `json:"coupon_code,omitempty"`
	PlacedAt         time.Time       `json:"placed_at"`
	EstimatedReadyAt time.Time       `json:"estimated_ready_at"`
	BillGenerated    bool            `json:"bill_generated"`
}

// Summarize builds the history snapshot of o. estimatedReady is the
// placement time plus the kitchen lead time.
func (o *Order) Summarize(estimatedReady time.Time) Summary {
	items := make([]Item, len(o.Items))
	copy(items, o.Items)

	return Summary{
		ID:               o.ID,
		RestaurantID:     o.RestaurantID,
		TableNumber:      o.TableNumber,
		CustomerName:     o.CustomerName,
		Status:           o.Status,
		Items:            items,
		Subtotal:         o.Subtotal,
		Discount:         o.Discount,
		Total:            o.TotalAmount,
		CouponCode:       o.CouponCode,
		PlacedAt:         o.CreatedAt,
		EstimatedReadyAt: estimatedReady,
	}
}
