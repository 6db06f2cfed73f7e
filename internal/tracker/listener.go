package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
)

// NotifyChannel is the postgres channel the orders trigger notifies on.
const NotifyChannel = "order_status"

const defaultRetry = 2 * time.Second

// NotificationConn is a connection that already LISTENs on NotifyChannel.
type NotificationConn interface {
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type Connector func(ctx context.Context) (NotificationConn, error)

// PoolConnector takes a connection out of pool for the lifetime of the
// listener.
func PoolConnector(pool *pgxpool.Pool) Connector {
	return func(ctx context.Context) (NotificationConn, error) {
		c, err := pool.Acquire(ctx)
		if err != nil {
			return nil, fmt.Errorf("tracker: failed to acquire connection: %w", err)
		}
		conn := c.Hijack()

		if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{NotifyChannel}.Sanitize()); err != nil {
			_ = conn.Close(context.Background())
			return nil, fmt.Errorf("tracker: failed to listen on %s: %w", NotifyChannel, err)
		}
		return conn, nil
	}
}

// StatusReader reads the authoritative status of a remote order.
type StatusReader interface {
	GetOrderStatus(ctx context.Context, id uuid.UUID) (order.Status, error)
}

// statusPayload mirrors the trigger's json_build_object.
type statusPayload struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Listener is the push channel for remote orders: one LISTEN connection
// fanned out to per-order subscribers.
type Listener struct {
	connect Connector
	reader  StatusReader
	retry   time.Duration

	mu   sync.Mutex
	next int
	subs map[uuid.UUID]map[int]chan Update
}

func NewListener(connect Connector, reader StatusReader) *Listener {
	return &Listener{
		connect: connect,
		reader:  reader,
		retry:   defaultRetry,
		subs:    make(map[uuid.UUID]map[int]chan Update),
	}
}

// SetRetry changes the reconnect delay.
func (l *Listener) SetRetry(d time.Duration) {
	l.retry = d
}

// Run listens until ctx is done, reconnecting after connection failures.
// After every (re)connect subscribed orders are re-read so updates missed
// while disconnected are not lost.
func (l *Listener) Run(ctx context.Context) error {
	for {
		conn, err := l.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Warn().Err(err).Dur("retry_in", l.retry).Msg("tracker: listener connect failed")
			if !sleep(ctx, l.retry) {
				return nil
			}
			continue
		}

		log.Info().Str("channel", NotifyChannel).Msg("tracker: listening for order status changes")
		l.resync(ctx)

		err = l.listen(ctx, conn)
		if closeErr := conn.Close(context.Background()); closeErr != nil {
			log.Debug().Err(closeErr).Msg("tracker: failed to close listener connection")
		}
		if ctx.Err() != nil {
			return nil
		}
		log.Warn().Err(err).Dur("retry_in", l.retry).Msg("tracker: listener connection lost")
		if !sleep(ctx, l.retry) {
			return nil
		}
	}
}

func (l *Listener) listen(ctx context.Context, conn NotificationConn) error {
	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n.Channel != NotifyChannel {
			continue
		}
		l.Dispatch(n.Payload)
	}
}

// Dispatch decodes one notification payload and delivers it. Malformed
// payloads are logged and dropped.
func (l *Listener) Dispatch(payload string) {
	var p statusPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		log.Warn().Err(err).Str("payload", payload).Msg("tracker: malformed status notification")
		return
	}

	id, err := uuid.FromString(p.ID)
	if err != nil || id == uuid.Nil {
		log.Warn().Str("payload", payload).Msg("tracker: status notification without a valid order id")
		return
	}

	status := order.Status(p.Status)
	if !status.IsKnown() {
		log.Warn().Stringer("order_id", id).Str("status", p.Status).Msg("tracker: unknown status in notification")
		return
	}

	l.deliver(Update{OrderID: order.RemoteID(id), Status: status, At: p.UpdatedAt})
}

func (l *Listener) deliver(u Update) {
	id, _ := u.OrderID.Remote()

	l.mu.Lock()
	defer l.mu.Unlock()

	// A slow subscriber loses its oldest pending update, never the newest.
	for _, ch := range l.subs[id] {
		select {
		case ch <- u:
			continue
		default:
		}

		var stale Update
		select {
		case stale = <-ch:
		default:
		}
		select {
		case ch <- u:
			log.Warn().Stringer("order_id", id).Str("dropped", string(stale.Status)).Str("status", string(u.Status)).Msg("tracker: subscriber full, replaced oldest update")
		default:
			log.Warn().Stringer("order_id", id).Str("status", string(u.Status)).Msg("tracker: subscriber full, dropping update")
		}
	}
}

func (l *Listener) resync(ctx context.Context) {
	l.mu.Lock()
	ids := make([]uuid.UUID, 0, len(l.subs))
	for id := range l.subs {
		ids = append(ids, id)
	}
	l.mu.Unlock()

	for _, id := range ids {
		status, err := l.reader.GetOrderStatus(ctx, id)
		if err != nil {
			log.Warn().Err(err).Stringer("order_id", id).Msg("tracker: failed to resync order status")
			continue
		}
		l.deliver(Update{OrderID: order.RemoteID(id), Status: status, At: time.Now().UTC()})
	}
}

func (l *Listener) Subscribe(id order.ID) (<-chan Update, func(), error) {
	rowID, ok := id.Remote()
	if !ok {
		return nil, nil, ErrWrongOrigin
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.subs[rowID] == nil {
		l.subs[rowID] = make(map[int]chan Update)
	}
	n := l.next
	l.next++
	ch := make(chan Update, subscriberBuffer)
	l.subs[rowID][n] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.subs[rowID], n)
			if len(l.subs[rowID]) == 0 {
				delete(l.subs, rowID)
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (l *Listener) Fetch(ctx context.Context, id order.ID) (order.Status, error) {
	rowID, ok := id.Remote()
	if !ok {
		return "", ErrWrongOrigin
	}
	return l.reader.GetOrderStatus(ctx, rowID)
}

// Subscribers reports how many subscriptions are open.
func (l *Listener) Subscribers() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, subs := range l.subs {
		n += len(subs)
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
