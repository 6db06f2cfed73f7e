package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
)

// LocalStatus is the status record of a local order.
type LocalStatus struct {
	Status    order.Status `json:"status"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// LocalStatuses keeps statuses of local orders, keyed by order id.
type LocalStatuses struct {
	kv storage.Store
}

func NewLocalStatuses(kv storage.Store) *LocalStatuses {
	return &LocalStatuses{kv: kv}
}

func (l *LocalStatuses) Get(id order.ID) (LocalStatus, error) {
	raw, err := l.kv.Get(id.String())
	if err != nil {
		return LocalStatus{}, err
	}
	return decodeLocalStatus(raw)
}

func (l *LocalStatuses) Set(id order.ID, status order.Status, at time.Time) error {
	if !id.IsLocal() {
		return ErrWrongOrigin
	}
	raw, err := json.Marshal(LocalStatus{Status: status, UpdatedAt: at.UTC()})
	if err != nil {
		return fmt.Errorf("tracker: failed to encode local status: %w", err)
	}
	return l.kv.Put(id.String(), raw)
}

func (l *LocalStatuses) Delete(id order.ID) error {
	return l.kv.Delete(id.String())
}

func decodeLocalStatus(raw []byte) (LocalStatus, error) {
	var st struct {
		Status    string    `json:"status"`
		UpdatedAt time.Time `json:"updated_at"`
	}
	if err := json.Unmarshal(raw, &st); err != nil {
		return LocalStatus{}, fmt.Errorf("%w: %w", storage.ErrCorrupt, err)
	}
	return LocalStatus{Status: order.ParseStatus(st.Status), UpdatedAt: st.UpdatedAt}, nil
}

// PollChannel serves local orders. It watches the status key for writes
// from other writers and polls it on a fixed interval in case a watch event
// was missed.
type PollChannel struct {
	statuses *LocalStatuses
	interval time.Duration
}

func NewPollChannel(statuses *LocalStatuses, interval time.Duration) *PollChannel {
	return &PollChannel{statuses: statuses, interval: interval}
}

func (p *PollChannel) Subscribe(id order.ID) (<-chan Update, func(), error) {
	if !id.IsLocal() {
		return nil, nil, ErrWrongOrigin
	}

	var (
		events    <-chan storage.Event
		stopWatch = func() {}
	)
	if w, ok := p.statuses.kv.(storage.Watcher); ok {
		events, stopWatch = w.Watch(id.String())
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan Update, subscriberBuffer)

	go func() {
		defer close(out)
		defer stopWatch()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		var last order.Status
		emit := func(st LocalStatus) {
			if st.Status == last {
				return
			}
			last = st.Status
			select {
			case out <- Update{OrderID: id, Status: st.Status, At: st.UpdatedAt}:
			case <-ctx.Done():
			}
		}
		poll := func() {
			st, err := p.statuses.Get(id)
			if err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					log.Warn().Err(err).Stringer("order_id", id).Msg("tracker: unreadable local status")
				}
				return
			}
			emit(st)
		}

		poll()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				poll()
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				if ev.Deleted {
					continue
				}
				st, err := decodeLocalStatus(ev.Value)
				if err != nil {
					log.Warn().Err(err).Stringer("order_id", id).Msg("tracker: malformed local status event")
					continue
				}
				emit(st)
			}
		}
	}()

	var once sync.Once
	return out, func() { once.Do(cancel) }, nil
}

// Fetch reads the stored status. A local order without a record is pending.
func (p *PollChannel) Fetch(_ context.Context, id order.ID) (order.Status, error) {
	if !id.IsLocal() {
		return "", ErrWrongOrigin
	}
	st, err := p.statuses.Get(id)
	if errors.Is(err, storage.ErrNotFound) {
		return order.StatusPending, nil
	}
	if err != nil {
		return "", err
	}
	return st.Status, nil
}
