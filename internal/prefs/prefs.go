// Package prefs holds per-browser preferences persisted in the local store.
package prefs

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
)

const (
	prefsKey     = "prefs"
	favoritesKey = "favorites"
)

var ErrEmptyMenuItem = errors.New("menu item id is required")

type Preferences struct {
	DarkMode bool   `json:"dark_mode"`
	Locale   string `json:"locale,omitempty"`
	// ForceRealMode overrides the configured default when set.
	ForceRealMode *bool `json:"force_real_mode,omitempty"`
	DemoUser      bool  `json:"demo_user"`
}

type Store struct {
	mu               sync.Mutex
	kv               storage.Store
	defaultForceReal bool
}

func NewStore(kv storage.Store, defaultForceReal bool) *Store {
	return &Store{kv: kv, defaultForceReal: defaultForceReal}
}

func (s *Store) Get() Preferences {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) Update(p Preferences) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p.Locale = strings.TrimSpace(p.Locale)
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("prefs: failed to encode preferences: %w", err)
	}
	if err := s.kv.Put(prefsKey, raw); err != nil {
		return fmt.Errorf("prefs: failed to persist preferences: %w", err)
	}
	return nil
}

// ForceRealMode reports whether local fallback orders are disabled.
func (s *Store) ForceRealMode() bool {
	p := s.Get()
	if p.ForceRealMode != nil {
		return *p.ForceRealMode
	}
	return s.defaultForceReal
}

func (s *Store) IsDemoUser() bool {
	return s.Get().DemoUser
}

// ToggleFavorite flips menuItemID in the favorites set and reports whether
// it is now a favorite.
func (s *Store) ToggleFavorite(menuItemID string) (bool, error) {
	menuItemID = strings.TrimSpace(menuItemID)
	if menuItemID == "" {
		return false, ErrEmptyMenuItem
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	favs := s.favoritesLocked()
	i := slices.Index(favs, menuItemID)
	favorite := i == -1
	if favorite {
		favs = append(favs, menuItemID)
		slices.Sort(favs)
	} else {
		favs = slices.Delete(favs, i, i+1)
	}

	raw, err := json.Marshal(favs)
	if err != nil {
		return false, fmt.Errorf("prefs: failed to encode favorites: %w", err)
	}
	if err := s.kv.Put(favoritesKey, raw); err != nil {
		return false, fmt.Errorf("prefs: failed to persist favorites: %w", err)
	}
	return favorite, nil
}

func (s *Store) Favorites() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favoritesLocked()
}

func (s *Store) loadLocked() Preferences {
	var p Preferences
	raw, err := s.kv.Get(prefsKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("prefs: failed to read preferences")
		}
		return p
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		log.Warn().Err(err).Msg("prefs: malformed preferences, using defaults")
		return Preferences{}
	}
	return p
}

func (s *Store) favoritesLocked() []string {
	raw, err := s.kv.Get(favoritesKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("prefs: failed to read favorites")
		}
		return []string{}
	}

	var favs []string
	if err := json.Unmarshal(raw, &favs); err != nil {
		log.Warn().Err(err).Msg("prefs: malformed favorites, starting empty")
		return []string{}
	}
	if favs == nil {
		return []string{}
	}
	return favs
}
