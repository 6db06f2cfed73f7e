package tracker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/tracker"
)

type fakeChannel struct {
	mu        sync.Mutex
	subs      []chan tracker.Update
	cancelled int
	status    order.Status
	fetchErr  error
	fetches   int
}

func (f *fakeChannel) Subscribe(id order.ID) (<-chan tracker.Update, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan tracker.Update, 8)
	f.subs = append(f.subs, ch)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			f.cancelled++
			close(ch)
		})
	}, nil
}

func (f *fakeChannel) Fetch(ctx context.Context, id order.ID) (order.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	return f.status, f.fetchErr
}

func (f *fakeChannel) send(u tracker.Update) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[len(f.subs)-1] <- u
}

func (f *fakeChannel) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

type recordedStatus struct {
	mu      sync.Mutex
	updates []order.Status
}

func (r *recordedStatus) UpdateStatus(id order.ID, status order.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, status)
	return nil
}

type harness struct {
	remote  *fakeChannel
	local   *fakeChannel
	inbox   *tracker.Inbox
	kv      *storage.Memory
	history *recordedStatus
	tracker *tracker.Tracker
	now     time.Time
}

func newHarness(t *testing.T, dismiss time.Duration) *harness {
	t.Helper()

	h := &harness{
		remote:  &fakeChannel{},
		local:   &fakeChannel{},
		inbox:   tracker.NewInbox(10),
		kv:      storage.NewMemory(),
		history: &recordedStatus{},
		now:     time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	h.tracker = h.newTracker(dismiss)
	t.Cleanup(h.tracker.Close)
	return h
}

func (h *harness) newTracker(dismiss time.Duration) *tracker.Tracker {
	return tracker.New(tracker.Deps{
		Remote:   h.remote,
		Local:    h.local,
		Notifier: h.inbox,
		KV:       h.kv,
		History:  h.history,
		Now:      func() time.Time { return h.now },
	}, tracker.Config{DismissDelay: dismiss})
}

func remoteSummary() order.Summary {
	return order.Summary{
		ID:               order.RemoteID(uuid.Must(uuid.NewV4())),
		Status:           order.StatusPending,
		PlacedAt:         time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		EstimatedReadyAt: time.Date(2026, 3, 14, 12, 20, 0, 0, time.UTC),
	}
}

func localSummary(t *testing.T) order.Summary {
	id, err := order.NewLocalID()
	require.NoError(t, err)
	s := remoteSummary()
	s.ID = id
	return s
}

func waitStatus(t *testing.T, tr *tracker.Tracker, want order.Status) {
	t.Helper()
	assert.Eventually(t, func() bool {
		snap, ok := tr.Current()
		return ok && snap.Order.Status == want
	}, time.Second, 5*time.Millisecond)
}

func waitNotifications(t *testing.T, inbox *tracker.Inbox, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return inbox.Len() == n }, time.Second, 5*time.Millisecond)
}

func TestTracker_SelectsChannelByOrigin(t *testing.T) {
	h := newHarness(t, time.Minute)

	h.tracker.Track(remoteSummary())
	assert.Len(t, h.remote.subs, 1)
	assert.Empty(t, h.local.subs)

	h.tracker.Track(localSummary(t))
	assert.Len(t, h.local.subs, 1)
	assert.Equal(t, 1, h.remote.cancelCount(), "previous subscription must be released")
}

func TestTracker_SameStatusNotifiesOnce(t *testing.T) {
	h := newHarness(t, time.Minute)
	s := remoteSummary()
	h.tracker.Track(s)

	h.remote.send(tracker.Update{OrderID: s.ID, Status: order.StatusConfirmed})
	h.remote.send(tracker.Update{OrderID: s.ID, Status: order.StatusConfirmed})
	h.remote.send(tracker.Update{OrderID: s.ID, Status: order.StatusPreparing})
	waitNotifications(t, h.inbox, 2)

	notes := h.inbox.Drain()
	require.Len(t, notes, 2)
	assert.Equal(t, order.StatusConfirmed, notes[0].Status)
	assert.Equal(t, "Order confirmed", notes[0].Title)
	assert.Equal(t, order.StatusPreparing, notes[1].Status)
	assert.Equal(t, []order.Status{order.StatusConfirmed, order.StatusPreparing}, h.history.updates)
}

func TestTracker_InitialStatusRedeliveryIsNoop(t *testing.T) {
	h := newHarness(t, time.Minute)
	s := localSummary(t)
	h.tracker.Track(s)

	h.local.send(tracker.Update{OrderID: s.ID, Status: order.StatusPending})
	h.local.send(tracker.Update{OrderID: s.ID, Status: order.StatusReady})
	waitNotifications(t, h.inbox, 1)
	waitStatus(t, h.tracker, order.StatusReady)
}

func TestTracker_IgnoresOtherOrders(t *testing.T) {
	h := newHarness(t, time.Minute)
	s := remoteSummary()
	h.tracker.Track(s)

	h.remote.send(tracker.Update{OrderID: order.RemoteID(uuid.Must(uuid.NewV4())), Status: order.StatusReady})
	h.remote.send(tracker.Update{OrderID: s.ID, Status: order.StatusConfirmed})
	waitNotifications(t, h.inbox, 1)
	assert.Equal(t, order.StatusConfirmed, h.inbox.Drain()[0].Status)
}

func TestTracker_TerminalStatusDismisses(t *testing.T) {
	h := newHarness(t, 200*time.Millisecond)
	s := remoteSummary()
	h.tracker.Track(s)

	h.remote.send(tracker.Update{OrderID: s.ID, Status: order.StatusCompleted})
	waitStatus(t, h.tracker, order.StatusCompleted)

	snap, ok := h.tracker.Current()
	require.True(t, ok)
	assert.True(t, snap.Terminal)
	assert.Equal(t, 100, snap.Progress)

	assert.Eventually(t, func() bool {
		_, ok := h.tracker.Current()
		return !ok
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.remote.cancelCount())
	_, err := h.kv.Get("current_order")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTracker_Progress(t *testing.T) {
	h := newHarness(t, time.Minute)

	remote := remoteSummary()
	remote.Status = order.StatusPreparing
	h.tracker.Track(remote)
	snap, ok := h.tracker.Current()
	require.True(t, ok)
	assert.Equal(t, 50, snap.Progress)
	assert.Equal(t, "Your order is being prepared", snap.ETA)

	h.tracker.Track(localSummary(t))
	h.now = time.Date(2026, 3, 14, 12, 5, 0, 0, time.UTC)
	snap, ok = h.tracker.Current()
	require.True(t, ok)
	assert.Equal(t, 25, snap.Progress)
	assert.Equal(t, "About 15 minutes remaining", snap.ETA)
}

func TestTracker_RefreshRemote(t *testing.T) {
	h := newHarness(t, time.Minute)
	s := remoteSummary()
	h.tracker.Track(s)

	h.remote.status = order.StatusReady
	snap, err := h.tracker.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, order.StatusReady, snap.Order.Status)
	assert.Equal(t, 85, snap.Progress)

	h.remote.fetchErr = errors.New("timeout")
	snap, err = h.tracker.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, order.StatusReady, snap.Order.Status)
}

func TestTracker_RefreshLocalRestartsSubscription(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.tracker.Track(localSummary(t))

	_, err := h.tracker.Refresh(context.Background())
	require.NoError(t, err)

	assert.Len(t, h.local.subs, 2)
	assert.Equal(t, 1, h.local.cancelCount())
	assert.Zero(t, h.local.fetches)
	assert.Zero(t, h.remote.fetches)
}

func TestTracker_RefreshWithoutOrder(t *testing.T) {
	h := newHarness(t, time.Minute)

	_, err := h.tracker.Refresh(context.Background())

	assert.ErrorIs(t, err, tracker.ErrNothingTracked)
}

func TestTracker_StopOnlyMatchingOrder(t *testing.T) {
	h := newHarness(t, time.Minute)
	s := remoteSummary()
	h.tracker.Track(s)

	assert.False(t, h.tracker.Stop(order.RemoteID(uuid.Must(uuid.NewV4()))))
	assert.True(t, h.tracker.Stop(s.ID))

	_, ok := h.tracker.Current()
	assert.False(t, ok)
	assert.Equal(t, 1, h.remote.cancelCount())
}

func TestTracker_Resume(t *testing.T) {
	h := newHarness(t, time.Minute)
	s := localSummary(t)
	h.tracker.Track(s)
	h.local.send(tracker.Update{OrderID: s.ID, Status: order.StatusPreparing})
	waitStatus(t, h.tracker, order.StatusPreparing)
	h.tracker.Close()

	resumed := h.newTracker(time.Minute)
	t.Cleanup(resumed.Close)

	require.True(t, resumed.Resume())
	snap, ok := resumed.Current()
	require.True(t, ok)
	assert.Equal(t, s.ID, snap.Order.ID)
	assert.Equal(t, order.StatusPreparing, snap.Order.Status)
}

func TestTracker_TrackAfterCloseOnlyPersists(t *testing.T) {
	h := newHarness(t, time.Minute)
	h.tracker.Close()

	s := remoteSummary()
	h.tracker.Track(s)

	h.remote.mu.Lock()
	assert.Empty(t, h.remote.subs)
	h.remote.mu.Unlock()

	resumed := h.newTracker(time.Minute)
	t.Cleanup(resumed.Close)
	require.True(t, resumed.Resume())
	snap, ok := resumed.Current()
	require.True(t, ok)
	assert.Equal(t, s.ID, snap.Order.ID)
}

func TestTracker_ResumeSkipsTerminalAndMalformed(t *testing.T) {
	h := newHarness(t, time.Minute)

	require.NoError(t, h.kv.Put("current_order", []byte("not json")))
	assert.False(t, h.tracker.Resume())

	s := remoteSummary()
	s.Status = order.StatusCancelled
	h.tracker.Track(s)
	h.tracker.Close()

	resumed := h.newTracker(time.Minute)
	assert.False(t, resumed.Resume())
	_, err := h.kv.Get("current_order")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
