package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Expiring gives a store cookie semantics: every write carries an expiry and
// reads past it behave as if the key were absent.
type Expiring struct {
	inner Store
	now   func() time.Time
}

type envelope struct {
	Value     []byte    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewExpiring(inner Store, now func() time.Time) *Expiring {
	if now == nil {
		now = time.Now
	}
	return &Expiring{inner: inner, now: now}
}

func (e *Expiring) PutWithTTL(key string, value []byte, ttl time.Duration) error {
	raw, err := json.Marshal(envelope{Value: value, ExpiresAt: e.now().Add(ttl)})
	if err != nil {
		return fmt.Errorf("storage: failed to encode %s: %w", key, err)
	}
	return e.inner.Put(key, raw)
}

func (e *Expiring) Get(key string) ([]byte, error) {
	raw, err := e.inner.Get(key)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}

	if !e.now().Before(env.ExpiresAt) {
		if err := e.inner.Delete(key); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return env.Value, nil
}

func (e *Expiring) Delete(key string) error {
	return e.inner.Delete(key)
}
