package cart

import (
	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
)

type Addon struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

type Variant struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Surcharge decimal.Decimal `json:"surcharge"`
}

// MenuItem is the catalog entry as the menu page knows it at add-time.
type MenuItem struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Addons   []Addon         `json:"addons,omitempty"`
	Variants []Variant       `json:"variants,omitempty"`
}

// Line is one distinct (item, customization) combination. UnitPrice is
// resolved once when the line is created and never re-read from the catalog.
type Line struct {
	ID           uuid.UUID       `json:"id"`
	MenuItemID   string          `json:"menu_item_id"`
	Name         string          `json:"name"`
	UnitPrice    decimal.Decimal `json:"unit_price"`
	Quantity     int             `json:"quantity"`
	Instructions string          `json:"instructions,omitempty"`
	AddonIDs     []string        `json:"addon_ids,omitempty"`
	AddonNames   []string        `json:"addon_names,omitempty"`
	VariantID    string          `json:"variant_id,omitempty"`
	VariantName  string          `json:"variant_name,omitempty"`
}
