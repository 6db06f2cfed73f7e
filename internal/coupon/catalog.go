// Package coupon holds the coupon catalog and the single-coupon evaluator
// used at checkout.
package coupon

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/money"
	"gopkg.in/yaml.v3"
)

type Kind string

const (
	KindPercentage Kind = "percentage"
	KindFlat       Kind = "flat"
)

func (k Kind) String() string {
	return string(k)
}

type Coupon struct {
	Code    string          `json:"code"`
	Kind    Kind            `json:"kind"`
	Value   decimal.Decimal `json:"value"`
	Minimum decimal.Decimal `json:"minimum"`
}

// Discount returns the amount taken off subtotal. Flat discounts are not
// capped here.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	switch c.Kind {
	case KindPercentage:
		return subtotal.Mul(c.Value).Div(decimal.NewFromInt(100))
	default:
		return c.Value
	}
}

var ErrInvalidCatalog = errors.New("invalid coupon catalog")

// Catalog is a read-only set of coupons keyed by normalized code.
type Catalog struct {
	coupons map[string]Coupon
}

func NewCatalog(coupons []Coupon) (*Catalog, error) {
	c := &Catalog{coupons: make(map[string]Coupon, len(coupons))}
	hundred := decimal.NewFromInt(100)

	for _, cp := range coupons {
		cp.Code = Normalize(cp.Code)
		if cp.Code == "" {
			return nil, fmt.Errorf("%w: empty code", ErrInvalidCatalog)
		}
		if _, dup := c.coupons[cp.Code]; dup {
			return nil, fmt.Errorf("%w: duplicate code %s", ErrInvalidCatalog, cp.Code)
		}
		if cp.Value.IsNegative() || cp.Minimum.IsNegative() {
			return nil, fmt.Errorf("%w: %s has a negative amount", ErrInvalidCatalog, cp.Code)
		}

		switch cp.Kind {
		case KindPercentage:
			if cp.Value.GreaterThan(hundred) {
				return nil, fmt.Errorf("%w: %s percentage must be 0-100", ErrInvalidCatalog, cp.Code)
			}
		case KindFlat:
		default:
			return nil, fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidCatalog, cp.Code, cp.Kind)
		}

		c.coupons[cp.Code] = cp
	}

	return c, nil
}

// DefaultCatalog is used when no catalog file is configured.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Coupon{
		{Code: "WELCOME10", Kind: KindPercentage, Value: decimal.NewFromInt(10)},
		{Code: "FLAT50", Kind: KindFlat, Value: decimal.NewFromInt(50)},
		{Code: "FEAST20", Kind: KindPercentage, Value: decimal.NewFromInt(20), Minimum: decimal.NewFromInt(200)},
		{Code: "FLAT100", Kind: KindFlat, Value: decimal.NewFromInt(100), Minimum: decimal.NewFromInt(500)},
	})
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) Lookup(code string) (Coupon, bool) {
	cp, ok := c.coupons[Normalize(code)]
	return cp, ok
}

func (c *Catalog) Len() int {
	return len(c.coupons)
}

// Normalize trims and upper-cases a code.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

type catalogFile struct {
	Coupons []struct {
		Code    string `yaml:"code"`
		Kind    string `yaml:"kind"`
		Value   string `yaml:"value"`
		Minimum string `yaml:"minimum"`
	} `yaml:"coupons"`
}

// ParseCatalog decodes a YAML catalog:
//
//	coupons:
//	  - code: WELCOME10
//	    kind: percentage
//	    value: "10"
//	    minimum: "0"
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}

	coupons := make([]Coupon, 0, len(f.Coupons))
	for _, raw := range f.Coupons {
		value, err := money.Parse(raw.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %s value: %w", ErrInvalidCatalog, raw.Code, err)
		}

		minimum := decimal.Zero
		if raw.Minimum != "" {
			minimum, err = money.Parse(raw.Minimum)
			if err != nil {
				return nil, fmt.Errorf("%w: %s minimum: %w", ErrInvalidCatalog, raw.Code, err)
			}
		}

		coupons = append(coupons, Coupon{
			Code:    raw.Code,
			Kind:    Kind(strings.ToLower(strings.TrimSpace(raw.Kind))),
			Value:   value,
			Minimum: minimum,
		})
	}

	return NewCatalog(coupons)
}

func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coupon: failed to read catalog %s: %w", path, err)
	}
	return ParseCatalog(data)
}
