// Package cart owns the customer's cart lines and keeps them persisted in
// the local store across reloads.
package cart

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
)

const storageKey = "cart"

var (
	ErrLineNotFound   = errors.New("cart line not found")
	ErrUnknownAddon   = errors.New("unknown add-on for menu item")
	ErrUnknownVariant = errors.New("unknown variant for menu item")
	ErrMissingItemID  = errors.New("menu item id is required")
	ErrNegativePrice  = errors.New("menu item price must not be negative")
)

// lineNamespace seeds the UUIDv5 line ids so equal composite keys always get
// equal ids, across reloads too.
var lineNamespace = uuid.Must(uuid.FromString("8f0b8d4e-5f8a-4c6e-9a3e-2d6c1b7f4a10"))

type Store struct {
	mu    sync.Mutex
	kv    storage.Store
	lines []Line
}

// NewStore hydrates the cart from kv. Unreadable data yields an empty cart.
func NewStore(kv storage.Store) *Store {
	s := &Store{kv: kv}
	s.lines = s.load()
	return s
}

func (s *Store) load() []Line {
	raw, err := s.kv.Get(storageKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("cart: failed to read persisted cart, starting empty")
		}
		return nil
	}

	var lines []Line
	if err := json.Unmarshal(raw, &lines); err != nil {
		log.Warn().Err(err).Msg("cart: malformed persisted cart, starting empty")
		return nil
	}

	valid := lines[:0]
	for _, l := range lines {
		if l.Quantity < 1 || l.MenuItemID == "" || l.UnitPrice.IsNegative() {
			log.Warn().Stringer("line_id", l.ID).Msg("cart: dropping invalid persisted line")
			continue
		}
		valid = append(valid, l)
	}
	return valid
}

func (s *Store) persist() {
	raw, err := json.Marshal(s.lines)
	if err != nil {
		log.Error().Err(err).Msg("cart: failed to encode cart")
		return
	}
	if err := s.kv.Put(storageKey, raw); err != nil {
		log.Error().Err(err).Msg("cart: failed to persist cart")
	}
}

// Add puts one unit of item into the cart. A line with the same composite key
// gets its quantity incremented; otherwise a new line with quantity 1 is
// created at base price plus the selected add-ons and variant surcharge.
func (s *Store) Add(item MenuItem, instructions string, addonIDs []string, variantID string) (Line, error) {
	if item.ID == "" {
		return Line{}, ErrMissingItemID
	}

	instructions = strings.TrimSpace(instructions)
	ids := normalizeIDs(addonIDs)

	unitPrice, names, variantName, err := resolve(item, ids, variantID)
	if err != nil {
		return Line{}, err
	}
	if unitPrice.IsNegative() {
		return Line{}, fmt.Errorf("cart: %s priced at %s: %w", item.ID, unitPrice, ErrNegativePrice)
	}

	id := LineID(item.ID, instructions, ids, variantID)

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.lines {
		if s.lines[i].ID == id {
			s.lines[i].Quantity++
			s.persist()
			return s.lines[i], nil
		}
	}

	line := Line{
		ID:           id,
		MenuItemID:   item.ID,
		Name:         item.Name,
		UnitPrice:    unitPrice,
		Quantity:     1,
		Instructions: instructions,
		AddonIDs:     ids,
		AddonNames:   names,
		VariantID:    variantID,
		VariantName:  variantName,
	}
	s.lines = append(s.lines, line)
	s.persist()

	log.Debug().Stringer("line_id", id).Str("menu_item_id", item.ID).Msg("cart: line added")
	return line, nil
}

// Remove deletes the whole line regardless of its quantity.
func (s *Store) Remove(lineID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := slices.IndexFunc(s.lines, func(l Line) bool { return l.ID == lineID })
	if idx == -1 {
		return ErrLineNotFound
	}

	s.lines = slices.Delete(s.lines, idx, idx+1)
	s.persist()
	return nil
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lines = nil
	s.persist()
}

// Lines returns a copy of the cart in insertion order.
func (s *Store) Lines() []Line {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Line, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) ItemCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, l := range s.lines {
		n += l.Quantity
	}
	return n
}

func (s *Store) IsEmpty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.lines) == 0
}

// LineID derives the line identity from the composite key. addonIDs must
// already be normalized.
func LineID(menuItemID, instructions string, addonIDs []string, variantID string) uuid.UUID {
	key := strings.Join([]string{menuItemID, instructions, strings.Join(addonIDs, ","), variantID}, "\x1f")
	return uuid.NewV5(lineNamespace, key)
}

// resolve prices the selection against the menu item as known at add-time.
func resolve(item MenuItem, addonIDs []string, variantID string) (decimal.Decimal, []string, string, error) {
	price := item.Price
	names := make([]string, 0, len(addonIDs))
	for _, id := range addonIDs {
		a, ok := findAddon(item.Addons, id)
		if !ok {
			return decimal.Zero, nil, "", fmt.Errorf("%w: %s", ErrUnknownAddon, id)
		}
		price = price.Add(a.Price)
		names = append(names, a.Name)
	}

	var variantName string
	if variantID != "" {
		v, ok := findVariant(item.Variants, variantID)
		if !ok {
			return decimal.Zero, nil, "", fmt.Errorf("%w: %s", ErrUnknownVariant, variantID)
		}
		price = price.Add(v.Surcharge)
		variantName = v.Name
	}
	return price, names, variantName, nil
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

func findAddon(addons []Addon, id string) (Addon, bool) {
	for _, a := range addons {
		if a.ID == id {
			return a, true
		}
	}
	return Addon{}, false
}

func findVariant(variants []Variant, id string) (Variant, bool) {
	for _, v := range variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
