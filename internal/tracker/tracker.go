// Package tracker follows the status of the customer's current order over
// the channel matching its origin and derives progress and ETA for display.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
)

const currentKey = "current_order"

const defaultDismissDelay = 5 * time.Second

var ErrNothingTracked = errors.New("no order is being tracked")

// StatusRecorder receives every status change of the tracked order.
type StatusRecorder interface {
	UpdateStatus(id order.ID, status order.Status) error
}

type Deps struct {
	Remote   Channel
	Local    Channel
	Notifier Notifier
	KV       storage.Store
	History  StatusRecorder
	Now      func() time.Time
}

type Config struct {
	DismissDelay time.Duration
}

type Snapshot struct {
	Order    order.Summary `json:"order"`
	Progress int           `json:"progress"`
	ETA      string        `json:"eta"`
	Terminal bool          `json:"terminal"`
}

// Tracker follows at most one order at a time.
type Tracker struct {
	deps Deps
	cfg  Config

	mu      sync.Mutex
	current *order.Summary
	gen     uint64
	cancel  func()
	dismiss *time.Timer
	closed  bool
}

func New(deps Deps, cfg Config) *Tracker {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.DismissDelay <= 0 {
		cfg.DismissDelay = defaultDismissDelay
	}
	return &Tracker{deps: deps, cfg: cfg}
}

// Track replaces the tracked order with s.
func (t *Tracker) Track(s order.Summary) {
	if !s.Status.IsKnown() {
		s.Status = order.StatusPending
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.current = &s
	t.persistLocked()
	t.startLocked()
	if s.Status.IsTerminal() {
		t.scheduleDismissLocked()
	}

	log.Debug().Stringer("order_id", s.ID).Stringer("origin", s.ID.Origin()).Msg("tracker: tracking order")
}

// Resume picks up the persisted current order after a restart.
func (t *Tracker) Resume() bool {
	raw, err := t.deps.KV.Get(currentKey)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn().Err(err).Msg("tracker: failed to read current order")
		}
		return false
	}

	var s order.Summary
	if err := json.Unmarshal(raw, &s); err != nil || s.ID.IsZero() {
		log.Warn().Err(err).Msg("tracker: malformed current order, discarding")
		t.deletePointer()
		return false
	}
	if s.Status.IsTerminal() {
		t.deletePointer()
		return false
	}

	t.Track(s)
	return true
}

func (t *Tracker) Current() (Snapshot, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil {
		return Snapshot{}, false
	}
	return t.snapshotLocked(), true
}

// Refresh re-reads the status of the tracked order. Remote orders are read
// from the remote store; local orders get their subscription restarted.
// Read failures are logged and the last known snapshot is returned.
func (t *Tracker) Refresh(ctx context.Context) (Snapshot, error) {
	t.mu.Lock()
	if t.current == nil {
		t.mu.Unlock()
		return Snapshot{}, ErrNothingTracked
	}
	id := t.current.ID

	if id.IsLocal() {
		t.stopSubscriptionLocked()
		t.startLocked()
		if t.current.Status.IsTerminal() {
			t.scheduleDismissLocked()
		}
		snap := t.snapshotLocked()
		t.mu.Unlock()
		return snap, nil
	}

	ch := t.deps.Remote
	t.mu.Unlock()

	if ch != nil {
		status, err := ch.Fetch(ctx, id)
		if err != nil {
			log.Warn().Err(err).Stringer("order_id", id).Msg("tracker: refresh failed, keeping last known status")
		} else {
			t.apply(Update{OrderID: id, Status: status, At: t.deps.Now().UTC()}, 0, false)
		}
	}

	snap, ok := t.Current()
	if !ok {
		return Snapshot{}, ErrNothingTracked
	}
	return snap, nil
}

// Dismiss stops tracking and forgets the current order.
func (t *Tracker) Dismiss() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.dismissLocked()
}

// Stop dismisses tracking if id is the tracked order.
func (t *Tracker) Stop(id order.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.current == nil || t.current.ID != id {
		return false
	}
	t.dismissLocked()
	return true
}

// Close releases the subscription and timers but keeps the current order
// persisted for Resume. Orders tracked after Close are persisted only.
func (t *Tracker) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	t.stopLocked()
}

func (t *Tracker) dismissLocked() {
	t.stopLocked()
	if t.current != nil {
		log.Debug().Stringer("order_id", t.current.ID).Msg("tracker: dismissed")
	}
	t.current = nil
	t.deletePointer()
}

func (t *Tracker) channelFor(id order.ID) Channel {
	if id.IsLocal() {
		return t.deps.Local
	}
	return t.deps.Remote
}

func (t *Tracker) startLocked() {
	if t.closed {
		return
	}
	id := t.current.ID

	ch := t.channelFor(id)
	if ch == nil {
		log.Warn().Stringer("order_id", id).Stringer("origin", id.Origin()).Msg("tracker: no status channel for order origin")
		return
	}

	updates, cancel, err := ch.Subscribe(id)
	if err != nil {
		log.Warn().Err(err).Stringer("order_id", id).Msg("tracker: subscribe failed, showing last known status")
		return
	}

	t.gen++
	t.cancel = cancel
	go t.consume(updates, t.gen)
}

func (t *Tracker) consume(updates <-chan Update, gen uint64) {
	for u := range updates {
		t.apply(u, gen, true)
	}
}

// apply acts only on a status different from the cached one. Side effects
// run after the lock is released.
func (t *Tracker) apply(u Update, gen uint64, checkGen bool) {
	t.mu.Lock()
	if t.current == nil || t.current.ID != u.OrderID || (checkGen && gen != t.gen) {
		t.mu.Unlock()
		return
	}
	if !u.Status.IsKnown() {
		u.Status = order.StatusPending
	}
	if u.Status == t.current.Status {
		t.mu.Unlock()
		return
	}

	t.current.Status = u.Status
	t.persistLocked()
	if u.Status.IsTerminal() {
		t.scheduleDismissLocked()
	}
	t.mu.Unlock()

	log.Info().Stringer("order_id", u.OrderID).Stringer("status", u.Status).Msg("tracker: order status changed")

	if t.deps.History != nil {
		if err := t.deps.History.UpdateStatus(u.OrderID, u.Status); err != nil {
			log.Warn().Err(err).Stringer("order_id", u.OrderID).Msg("tracker: failed to update history status")
		}
	}
	if t.deps.Notifier != nil {
		at := u.At
		if at.IsZero() {
			at = t.deps.Now().UTC()
		}
		t.deps.Notifier.Notify(Notification{
			OrderID: u.OrderID,
			Status:  u.Status,
			Title:   Title(u.Status),
			Message: ETALabel(u.Status),
			At:      at,
		})
	}
}

func (t *Tracker) scheduleDismissLocked() {
	if t.closed {
		return
	}
	if t.dismiss != nil {
		t.dismiss.Stop()
	}
	id := t.current.ID
	t.dismiss = time.AfterFunc(t.cfg.DismissDelay, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.current != nil && t.current.ID == id && t.current.Status.IsTerminal() {
			t.dismissLocked()
		}
	})
}

func (t *Tracker) stopLocked() {
	t.stopSubscriptionLocked()
	if t.dismiss != nil {
		t.dismiss.Stop()
		t.dismiss = nil
	}
}

func (t *Tracker) stopSubscriptionLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.gen++
}

func (t *Tracker) snapshotLocked() Snapshot {
	s := *t.current
	snap := Snapshot{Order: s, Terminal: s.Status.IsTerminal()}

	if s.ID.IsLocal() && !snap.Terminal {
		now := t.deps.Now()
		snap.Progress = ElapsedProgress(s.PlacedAt, s.EstimatedReadyAt, now)
		snap.ETA = RemainingLabel(s.EstimatedReadyAt, now)
		return snap
	}

	snap.Progress = Progress(s.Status)
	snap.ETA = ETALabel(s.Status)
	return snap
}

func (t *Tracker) persistLocked() {
	raw, err := json.Marshal(t.current)
	if err != nil {
		log.Error().Err(err).Msg("tracker: failed to encode current order")
		return
	}
	if err := t.deps.KV.Put(currentKey, raw); err != nil {
		log.Error().Err(err).Msg("tracker: failed to persist current order")
	}
}

func (t *Tracker) deletePointer() {
	if err := t.deps.KV.Delete(currentKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		log.Error().Err(err).Msg("tracker: failed to clear current order")
	}
}
