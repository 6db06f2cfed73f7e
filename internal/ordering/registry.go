package ordering

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/cart"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/config"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/coupon"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/history"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/identity"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/prefs"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/tracker"
)

const (
	sessionPrefix     = "session/"
	localStatusPrefix = "order_status/"

	defaultSessionCacheSize = 1024
	defaultSessionTTL       = 30 * time.Minute
)

var (
	ErrInvalidSession = errors.New("invalid session id")
	ErrRegistryClosed = errors.New("session registry is closed")
	ErrUnknownStatus  = errors.New("unknown order status")
)

// Deps are shared by every session. Repo and Remote are nil when no remote
// order service is configured.
type Deps struct {
	Durable  storage.Store
	Cache    storage.Store
	Repo     order.Repository
	Remote   tracker.Channel
	Catalog  *coupon.Catalog
	Identity identity.Accessor
	Now      func() time.Time
}

type Registry struct {
	deps     Deps
	cfg      config.OrderingConfig
	statuses *tracker.LocalStatuses
	local    *tracker.PollChannel

	// mu serializes lookups with builds so one id never gets two sessions.
	mu       sync.Mutex
	sessions *expirable.LRU[uuid.UUID, *Session]
	closed   bool
}

func NewRegistry(deps Deps, cfg config.OrderingConfig) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Identity == nil {
		deps.Identity = identity.ContextAccessor{}
	}
	if deps.Catalog == nil {
		deps.Catalog = coupon.DefaultCatalog()
	}

	if cfg.SessionCacheSize <= 0 {
		cfg.SessionCacheSize = defaultSessionCacheSize
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	statuses := tracker.NewLocalStatuses(storage.WithPrefix(deps.Durable, localStatusPrefix))
	return &Registry{
		deps:     deps,
		cfg:      cfg,
		statuses: statuses,
		local:    tracker.NewPollChannel(statuses, cfg.PollInterval),
		sessions: expirable.NewLRU[uuid.UUID, *Session](cfg.SessionCacheSize, evictSession, cfg.SessionTTL),
	}
}

// evictSession drops an idle or overflowing session from memory. Its state
// stays in durable storage and is rebuilt on the next request.
func evictSession(id uuid.UUID, s *Session) {
	s.Tracker.Close()
	log.Debug().Stringer("session_id", id).Msg("ordering: session evicted")
}

// Session returns the session for id, building it from durable storage on
// first use.
func (r *Registry) Session(id uuid.UUID) (*Session, error) {
	if id == uuid.Nil {
		return nil, ErrInvalidSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	if s, ok := r.sessions.Get(id); ok {
		// re-adding pushes the expiry out; Get alone does not
		r.sessions.Add(id, s)
		return s, nil
	}

	s := r.build(id)
	r.sessions.Add(id, s)
	if s.Tracker.Resume() {
		log.Info().Stringer("session_id", id).Msg("ordering: resumed tracking")
	}
	return s, nil
}

func (r *Registry) build(id uuid.UUID) *Session {
	prefix := sessionPrefix + id.String() + "/"
	durable := storage.WithPrefix(r.deps.Durable, prefix)

	s := &Session{
		ID:      id,
		Cart:    cart.NewStore(durable),
		Coupons: coupon.NewEvaluator(r.deps.Catalog),
		Inbox:   tracker.NewInbox(r.cfg.NotificationBuffer),
		Prefs:   prefs.NewStore(durable, r.cfg.ForceRealMode),
		History: history.NewStore(
			storage.WithPrefix(r.deps.Cache, prefix),
			storage.NewExpiring(durable, r.deps.Now),
			history.Config{Limit: r.cfg.HistoryLimit, CookieTTL: r.cfg.HistoryCookieTTL},
		),
	}

	s.Tracker = tracker.New(tracker.Deps{
		Remote:   r.deps.Remote,
		Local:    r.local,
		Notifier: s.Inbox,
		KV:       durable,
		History:  s.History,
		Now:      r.deps.Now,
	}, tracker.Config{DismissDelay: r.cfg.DismissDelay})
	s.History.AttachTracker(s.Tracker)

	s.Submitter = order.NewSubmitter(order.SubmitterDeps{
		Repo:     r.deps.Repo,
		Cart:     s.Cart,
		Coupons:  s.Coupons,
		History:  s.History,
		Tracker:  s.Tracker,
		Mode:     s.Prefs,
		Identity: sessionIdentity{base: r.deps.Identity, prefs: s.Prefs},
		Now:      r.deps.Now,
	}, order.SubmitterConfig{
		PreflightTimeout: r.cfg.PreflightTimeout,
		WriteTimeout:     r.cfg.WriteTimeout,
		LeadTime:         r.cfg.LeadTime,
	})

	return s
}

// Len is the number of sessions held in memory.
func (r *Registry) Len() int {
	return r.sessions.Len()
}

// UpdateStatus moves an order to status. Local orders are written to the
// local status store, remote orders to the order service.
func (r *Registry) UpdateStatus(ctx context.Context, id order.ID, status order.Status) error {
	if !status.IsKnown() {
		return ErrUnknownStatus
	}

	if id.IsLocal() {
		current, err := r.statuses.Get(id)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			current = tracker.LocalStatus{Status: order.StatusPending}
		case err != nil:
			return fmt.Errorf("ordering: failed to read local status: %w", err)
		}
		if err := order.CheckTransition(current.Status, status); err != nil {
			return err
		}
		if err := r.statuses.Set(id, status, r.deps.Now().UTC()); err != nil {
			return fmt.Errorf("ordering: failed to write local status: %w", err)
		}
		log.Info().Stringer("order_id", id).Stringer("status", status).Msg("ordering: local order status updated")
		return nil
	}

	remoteID, ok := id.Remote()
	if !ok {
		return order.ErrInvalidID
	}
	if r.deps.Repo == nil {
		return order.ErrRemoteUnavailable
	}

	current, err := r.deps.Repo.GetOrderStatus(ctx, remoteID)
	if err != nil {
		return err
	}
	if err := order.CheckTransition(current, status); err != nil {
		return err
	}
	if err := r.deps.Repo.UpdateOrderStatus(ctx, remoteID, status); err != nil {
		return err
	}

	log.Info().Stringer("order_id", id).Stringer("status", status).Msg("ordering: order status updated")
	return nil
}

// Close stops every tracker. Persisted state stays for the next start.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.closed = true
	r.sessions.Purge()
}
