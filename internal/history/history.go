// Package history keeps the customer's recent orders, most recent first, in
// a short-lived cache and a longer-lived cookie-style store.
package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
)

const (
	listKey  = "order_history"
	indexKey = "order_index"

	DefaultLimit     = 50
	DefaultCookieTTL = 30 * 24 * time.Hour
)

var ErrEntryNotFound = errors.New("order not found in history")

// Stopper stops tracking an order.
type Stopper interface {
	Stop(id order.ID) bool
}

type Config struct {
	Limit     int
	CookieTTL time.Duration
}

type Store struct {
	mu      sync.Mutex
	cache   storage.Store
	cookie  *storage.Expiring
	cfg     Config
	tracker Stopper
}

func NewStore(cache storage.Store, cookie *storage.Expiring, cfg Config) *Store {
	if cfg.Limit < 1 {
		cfg.Limit = DefaultLimit
	}
	if cfg.CookieTTL <= 0 {
		cfg.CookieTTL = DefaultCookieTTL
	}
	return &Store{cache: cache, cookie: cookie, cfg: cfg}
}

// AttachTracker lets Clear stop tracking a cleared order.
func (s *Store) AttachTracker(t Stopper) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tracker = t
}

// Record prepends summary, replacing an older entry for the same order.
func (s *Store) Record(summary order.Summary) error {
	if summary.ID.IsZero() {
		return fmt.Errorf("history: %w", order.ErrInvalidID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked()
	entries = slices.DeleteFunc(entries, func(e order.Summary) bool { return e.ID == summary.ID })
	entries = slices.Insert(entries, 0, summary)
	if len(entries) > s.cfg.Limit {
		entries = entries[:s.cfg.Limit]
	}

	return s.saveLocked(entries)
}

// List returns entries most recent first.
func (s *Store) List() []order.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) Get(id order.ID) (order.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.loadLocked() {
		if e.ID == id {
			return e, nil
		}
	}
	return order.Summary{}, ErrEntryNotFound
}

// Clear removes one entry and stops tracking it if it is the current order.
func (s *Store) Clear(id order.ID) error {
	s.mu.Lock()
	entries := s.loadLocked()
	n := len(entries)
	entries = slices.DeleteFunc(entries, func(e order.Summary) bool { return e.ID == id })
	removed := len(entries) != n

	var err error
	if removed {
		err = s.saveLocked(entries)
	}
	t := s.tracker
	s.mu.Unlock()

	if t != nil && t.Stop(id) {
		log.Debug().Stringer("order_id", id).Msg("history: cleared order was tracked, tracking stopped")
	}

	if err != nil {
		return err
	}
	if !removed {
		return ErrEntryNotFound
	}
	return nil
}

// MarkBillGenerated flags the entry. Repeated calls are no-ops.
func (s *Store) MarkBillGenerated(id order.ID) (order.Summary, error) {
	return s.update(id, func(e *order.Summary) bool {
		if e.BillGenerated {
			return false
		}
		e.BillGenerated = true
		return true
	})
}

// UpdateStatus keeps the entry's status in line with the tracker.
func (s *Store) UpdateStatus(id order.ID, status order.Status) error {
	_, err := s.update(id, func(e *order.Summary) bool {
		if e.Status == status {
			return false
		}
		e.Status = status
		return true
	})
	return err
}

// RestaurantFor looks up which restaurant an order in history belongs to.
func (s *Store) RestaurantFor(id order.ID) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := s.loadIndexLocked()
	r, ok := index[id.String()]
	if !ok {
		return uuid.Nil, false
	}
	return r, true
}

func (s *Store) update(id order.ID, fn func(e *order.Summary) bool) (order.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.loadLocked()
	i := slices.IndexFunc(entries, func(e order.Summary) bool { return e.ID == id })
	if i == -1 {
		return order.Summary{}, ErrEntryNotFound
	}

	if fn(&entries[i]) {
		if err := s.saveLocked(entries); err != nil {
			return order.Summary{}, err
		}
	}
	return entries[i], nil
}

// loadLocked prefers the cookie store and falls back to the cache.
// Unreadable data yields an empty history.
func (s *Store) loadLocked() []order.Summary {
	if entries, ok := s.decode(s.cookie.Get(listKey)); ok {
		return entries
	}
	if entries, ok := s.decode(s.cache.Get(listKey)); ok {
		return entries
	}
	return []order.Summary{}
}

func (s *Store) decode(raw []byte, err error) ([]order.Summary, bool) {
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("history: failed to read order history")
		}
		return nil, false
	}

	var entries []order.Summary
	if err := json.Unmarshal(raw, &entries); err != nil {
		log.Warn().Err(err).Msg("history: malformed order history, ignoring")
		return nil, false
	}
	if entries == nil {
		entries = []order.Summary{}
	}
	return entries, true
}

func (s *Store) saveLocked(entries []order.Summary) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("history: failed to encode order history: %w", err)
	}

	if err := s.cookie.PutWithTTL(listKey, raw, s.cfg.CookieTTL); err != nil {
		return fmt.Errorf("history: failed to write durable history: %w", err)
	}
	if err := s.cache.Put(listKey, raw); err != nil {
		log.Warn().Err(err).Msg("history: failed to write history cache")
	}

	index := make(map[string]uuid.UUID, len(entries))
	for _, e := range entries {
		index[e.ID.String()] = e.RestaurantID
	}
	rawIndex, err := json.Marshal(index)
	if err != nil {
		return fmt.Errorf("history: failed to encode order index: %w", err)
	}
	if err := s.cookie.PutWithTTL(indexKey, rawIndex, s.cfg.CookieTTL); err != nil {
		return fmt.Errorf("history: failed to write order index: %w", err)
	}
	return nil
}

func (s *Store) loadIndexLocked() map[string]uuid.UUID {
	raw, err := s.cookie.Get(indexKey)
	if err == nil {
		var index map[string]uuid.UUID
		if err := json.Unmarshal(raw, &index); err == nil {
			return index
		}
		log.Warn().Msg("history: malformed order index, rebuilding")
	}

	index := make(map[string]uuid.UUID)
	for _, e := range s.loadLocked() {
		index[e.ID.String()] = e.RestaurantID
	}
	return index
}
