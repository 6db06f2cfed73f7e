// Package storage provides the synchronous local key-value stores the
// ordering core persists into: a durable bbolt file, a short-lived cache and
// an expiring wrapper with cookie semantics.
package storage

import (
	"errors"
	"sync"
)

var (
	ErrNotFound = errors.New("storage: key not found")
	ErrCorrupt  = errors.New("storage: malformed record")
)

// Store is a synchronous key-value store.
type Store interface {
	Get(key string) ([]byte, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// Event describes a change to a watched key.
type Event struct {
	Value   []byte
	Deleted bool
}

// Watcher delivers change notifications for a key. The returned cancel
// function must be called to release the subscription.
type Watcher interface {
	Watch(key string) (<-chan Event, func())
}

// WatchableStore is a Store whose writes can be observed.
type WatchableStore interface {
	Store
	Watcher
}

const watchBuffer = 8

type hub struct {
	mu   sync.Mutex
	next int
	subs map[string]map[int]chan Event
}

func (h *hub) Watch(key string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subs == nil {
		h.subs = make(map[string]map[int]chan Event)
	}
	if h.subs[key] == nil {
		h.subs[key] = make(map[int]chan Event)
	}

	id := h.next
	h.next++
	ch := make(chan Event, watchBuffer)
	h.subs[key][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// publish never blocks; a full subscriber misses the event and is expected
// to catch up by polling.
func (h *hub) publish(key string, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, ch := range h.subs[key] {
		select {
		case ch <- ev:
		default:
		}
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
