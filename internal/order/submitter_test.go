package order_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/cart"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/coupon"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/identity"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/order"
	"github.com/vasiliy-maslov/qrmenu-ordering/internal/storage"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockRepository) CreateOrder(ctx context.Context, o *order.Order) (uuid.UUID, error) {
	args := m.Called(ctx, o)
	id := args.Get(0).(uuid.UUID)
	if args.Error(1) == nil {
		o.ID = order.RemoteID(id)
	}
	return id, args.Error(1)
}

func (m *MockRepository) CreateItems(ctx context.Context, orderID uuid.UUID, items []order.Item) error {
	return m.Called(ctx, orderID, items).Error(0)
}

func (m *MockRepository) DeleteOrder(ctx context.Context, id uuid.UUID) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockRepository) GetOrderStatus(ctx context.Context, id uuid.UUID) (order.Status, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(order.Status), args.Error(1)
}

func (m *MockRepository) UpdateOrderStatus(ctx context.Context, id uuid.UUID, status order.Status) error {
	return m.Called(ctx, id, status).Error(0)
}

type fakeHistory struct {
	mu       sync.Mutex
	recorded []order.Summary
}

func (f *fakeHistory) Record(s order.Summary) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recorded = append(f.recorded, s)
	return nil
}

type fakeTracker struct {
	tracked []order.Summary
}

func (f *fakeTracker) Track(s order.Summary) {
	f.tracked = append(f.tracked, s)
}

type modeFlag bool

func (m modeFlag) ForceRealMode() bool {
	return bool(m)
}

type fixture struct {
	repo      *MockRepository
	cart      *cart.Store
	coupons   *coupon.Evaluator
	history   *fakeHistory
	tracker   *fakeTracker
	submitter *order.Submitter
}

var (
	restaurantID = uuid.Must(uuid.FromString("0b6c3c1e-8a43-4d5e-9a6f-1f2e3d4c5b6a"))
	placedAt     = time.Date(2026, 3, 14, 12, 30, 0, 0, time.UTC)
)

func newFixture(t *testing.T, forceReal bool, withRepo bool) *fixture {
	t.Helper()

	f := newFixtureWithConfig(t, forceReal, withRepo, order.SubmitterConfig{
		PreflightTimeout: 50 * time.Millisecond,
		WriteTimeout:     time.Second,
		LeadTime:         20 * time.Minute,
	})
	if withRepo {
		f.repo.On("Ping", mock.Anything).Return(nil).Maybe()
	}
	return f
}

// newFixtureWithConfig leaves Ping unmocked so callers can register their own.
func newFixtureWithConfig(t *testing.T, forceReal bool, withRepo bool, cfg order.SubmitterConfig) *fixture {
	t.Helper()

	kv := storage.NewMemory()
	f := &fixture{
		repo:    new(MockRepository),
		cart:    cart.NewStore(kv),
		coupons: coupon.NewEvaluator(coupon.DefaultCatalog()),
		history: &fakeHistory{},
		tracker: &fakeTracker{},
	}

	deps := order.SubmitterDeps{
		Cart:    f.cart,
		Coupons: f.coupons,
		History: f.history,
		Tracker: f.tracker,
		Mode:    modeFlag(forceReal),
		Now:     func() time.Time { return placedAt },
	}
	if withRepo {
		deps.Repo = f.repo
	}
	f.submitter = order.NewSubmitter(deps, cfg)
	return f
}

// blockUntilDone makes a mocked call hang until its context ends.
func blockUntilDone(args mock.Arguments) {
	<-args.Get(0).(context.Context).Done()
}

func (f *fixture) fillCart(t *testing.T) {
	t.Helper()

	burger := cart.MenuItem{ID: "burger", Name: "Burger", Price: decimal.RequireFromString("10.00")}
	fries := cart.MenuItem{ID: "fries", Name: "Fries", Price: decimal.RequireFromString("5.50")}

	_, err := f.cart.Add(burger, "", nil, "")
	require.NoError(t, err)
	_, err = f.cart.Add(burger, "", nil, "")
	require.NoError(t, err)
	_, err = f.cart.Add(fries, "", nil, "")
	require.NoError(t, err)
}

func TestSubmitter_Submit_Validation(t *testing.T) {
	tests := []struct {
		name       string
		req        order.Request
		fill       bool
		wantErr    error
		wantReason string
	}{
		{name: "missing_restaurant", req: order.Request{}, fill: true, wantErr: order.ErrRestaurantNotFound, wantReason: "restaurant not found"},
		{name: "empty_cart", req: order.Request{RestaurantID: restaurantID}, fill: false, wantErr: order.ErrEmptyCart, wantReason: "empty cart"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true, true)
			if tt.fill {
				f.fillCart(t)
			}

			_, err := f.submitter.Submit(context.Background(), tt.req)

			require.ErrorIs(t, err, tt.wantErr)
			var subErr *order.SubmitError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, order.KindValidation, subErr.Kind)
			assert.Equal(t, tt.wantReason, subErr.Message)
			assert.Equal(t, tt.fill, !f.cart.IsEmpty())
			f.repo.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
		})
	}
}

func TestSubmitter_Submit_Success(t *testing.T) {
	f := newFixture(t, true, true)
	f.fillCart(t)
	_, err := f.coupons.Apply("WELCOME10", decimal.RequireFromString("25.50"))
	require.NoError(t, err)

	orderID := uuid.Must(uuid.NewV4())
	var created *order.Order
	f.repo.On("CreateOrder", mock.Anything, mock.AnythingOfType("*order.Order")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*order.Order) }).
		Return(orderID, nil).
		Once()
	f.repo.On("CreateItems", mock.Anything, orderID, mock.AnythingOfType("[]order.Item")).
		Return(nil).
		Once()

	res, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID, TableNumber: "7"})
	require.NoError(t, err)

	assert.False(t, res.Fallback)
	got, ok := res.Order.ID.Remote()
	require.True(t, ok)
	assert.Equal(t, orderID, got)
	assert.Equal(t, order.StatusPending, res.Order.Status)
	assert.Equal(t, "25.50", res.Order.Subtotal.StringFixed(2))
	assert.Equal(t, "2.55", res.Order.Discount.StringFixed(2))
	assert.Equal(t, "22.95", res.Order.Total.StringFixed(2))
	assert.Equal(t, "WELCOME10", res.Order.CouponCode)
	assert.Equal(t, placedAt.Add(20*time.Minute), res.Order.EstimatedReadyAt)

	require.NotNil(t, created)
	assert.Equal(t, placedAt, created.CreatedAt)
	require.Len(t, created.Items, 2)
	assert.Equal(t, "20.00", created.Items[0].TotalPrice.StringFixed(2))
	assert.Equal(t, 2, created.Items[0].Quantity)

	assert.True(t, f.cart.IsEmpty())
	_, applied := f.coupons.Coupon()
	assert.False(t, applied)
	require.Len(t, f.history.recorded, 1)
	require.Len(t, f.tracker.tracked, 1)
	assert.Equal(t, res.Order.ID, f.tracker.tracked[0].ID)
	f.repo.AssertExpectations(t)
}

func TestSubmitter_Submit_StampsIdentity(t *testing.T) {
	f := newFixture(t, true, true)
	f.fillCart(t)

	orderID := uuid.Must(uuid.NewV4())
	f.repo.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o *order.Order) bool {
		return o.CustomerUserID == "user-42" && o.CustomerEmail == "guest@example.com"
	})).Return(orderID, nil).Once()
	f.repo.On("CreateItems", mock.Anything, orderID, mock.Anything).Return(nil).Once()

	ctx := identity.WithUser(context.Background(), identity.User{ID: "user-42", Email: "guest@example.com"})
	_, err := f.submitter.Submit(ctx, order.Request{RestaurantID: restaurantID})

	require.NoError(t, err)
	f.repo.AssertExpectations(t)
}

func TestSubmitter_Submit_ItemsFailCompensates(t *testing.T) {
	tests := []struct {
		name      string
		forceReal bool
		deleteErr error
		wantCart  bool
	}{
		{name: "force_real_clears_cart", forceReal: true, wantCart: false},
		{name: "fallback_mode_keeps_cart", forceReal: false, wantCart: true},
		{name: "compensation_failure_is_not_surfaced", forceReal: true, deleteErr: errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.forceReal, true)
			f.fillCart(t)

			orderID := uuid.Must(uuid.NewV4())
			itemsErr := errors.New("insert order_items: check constraint")
			f.repo.On("CreateOrder", mock.Anything, mock.Anything).Return(orderID, nil).Once()
			f.repo.On("CreateItems", mock.Anything, orderID, mock.Anything).Return(itemsErr).Once()
			f.repo.On("DeleteOrder", mock.Anything, orderID).Return(tt.deleteErr).Once()

			res, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID})

			require.ErrorIs(t, err, itemsErr)
			var subErr *order.SubmitError
			require.ErrorAs(t, err, &subErr)
			assert.Equal(t, order.KindPartialWrite, subErr.Kind)
			assert.NotContains(t, subErr.Message, "connection reset")
			assert.True(t, res.Order.ID.IsZero())
			assert.Empty(t, f.history.recorded)
			assert.Empty(t, f.tracker.tracked)
			assert.Equal(t, tt.wantCart, !f.cart.IsEmpty())
			f.repo.AssertExpectations(t)
		})
	}
}

func TestSubmitter_Submit_RemoteFailure(t *testing.T) {
	t.Run("force_real_reports_failure", func(t *testing.T) {
		f := newFixture(t, true, true)
		f.fillCart(t)

		writeErr := context.DeadlineExceeded
		f.repo.On("CreateOrder", mock.Anything, mock.Anything).Return(uuid.Nil, writeErr).Once()

		res, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID})

		require.ErrorIs(t, err, writeErr)
		var subErr *order.SubmitError
		require.ErrorAs(t, err, &subErr)
		assert.Equal(t, order.KindRemote, subErr.Kind)
		assert.False(t, res.Fallback)
		assert.Empty(t, f.history.recorded)
		assert.Empty(t, f.tracker.tracked)
		assert.True(t, f.cart.IsEmpty())
		f.repo.AssertNotCalled(t, "CreateItems", mock.Anything, mock.Anything, mock.Anything)
		f.repo.AssertExpectations(t)
	})

	t.Run("fallback_creates_local_order", func(t *testing.T) {
		f := newFixture(t, false, true)
		f.fillCart(t)

		f.repo.On("CreateOrder", mock.Anything, mock.Anything).Return(uuid.Nil, errors.New("dial tcp: refused")).Once()

		res, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID})

		require.NoError(t, err)
		assert.True(t, res.Fallback)
		assert.True(t, res.Order.ID.IsLocal())
		assert.True(t, strings.HasPrefix(res.Order.ID.String(), order.LocalPrefix))
		assert.Equal(t, order.StatusPending, res.Order.Status)
		assert.Equal(t, placedAt.Add(20*time.Minute), res.Order.EstimatedReadyAt)
		require.Len(t, f.history.recorded, 1)
		assert.Equal(t, res.Order.ID, f.history.recorded[0].ID)
		require.Len(t, f.tracker.tracked, 1)
		assert.True(t, f.cart.IsEmpty())
		f.repo.AssertExpectations(t)
	})
}

func TestSubmitter_Submit_WithoutRepository(t *testing.T) {
	t.Run("fallback", func(t *testing.T) {
		f := newFixture(t, false, false)
		f.fillCart(t)

		res, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID})

		require.NoError(t, err)
		assert.True(t, res.Order.ID.IsLocal())
	})

	t.Run("force_real", func(t *testing.T) {
		f := newFixture(t, true, false)
		f.fillCart(t)

		_, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID})

		assert.ErrorIs(t, err, order.ErrRemoteUnavailable)
		assert.Empty(t, f.history.recorded)
	})
}

func TestSubmitter_Submit_EachCallIsNewOrder(t *testing.T) {
	f := newFixture(t, false, false)

	f.fillCart(t)
	first, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID})
	require.NoError(t, err)

	f.fillCart(t)
	second, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID})
	require.NoError(t, err)

	assert.NotEqual(t, first.Order.ID, second.Order.ID)
	assert.Len(t, f.history.recorded, 2)
}

func TestSubmitter_Submit_HangingWrites(t *testing.T) {
	cfg := order.SubmitterConfig{
		PreflightTimeout: 50 * time.Millisecond,
		WriteTimeout:     50 * time.Millisecond,
		LeadTime:         20 * time.Minute,
	}

	tests := []struct {
		name         string
		forceReal    bool
		hangItems    bool
		wantKind     order.ErrorKind
		wantFallback bool
	}{
		{name: "create_order_force_real", forceReal: true, wantKind: order.KindRemote},
		{name: "create_order_fallback", forceReal: false, wantFallback: true},
		{name: "create_items_force_real", forceReal: true, hangItems: true, wantKind: order.KindPartialWrite},
		{name: "create_items_fallback_mode", forceReal: false, hangItems: true, wantKind: order.KindPartialWrite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixtureWithConfig(t, tt.forceReal, true, cfg)
			f.repo.On("Ping", mock.Anything).Return(nil).Maybe()
			f.fillCart(t)

			orderID := uuid.Must(uuid.NewV4())
			if tt.hangItems {
				f.repo.On("CreateOrder", mock.Anything, mock.Anything).Return(orderID, nil).Once()
				f.repo.On("CreateItems", mock.Anything, orderID, mock.Anything).
					Run(blockUntilDone).
					Return(context.DeadlineExceeded).
					Once()
				f.repo.On("DeleteOrder", mock.Anything, orderID).Return(nil).Once()
			} else {
				f.repo.On("CreateOrder", mock.Anything, mock.Anything).
					Run(blockUntilDone).
					Return(uuid.Nil, context.DeadlineExceeded).
					Once()
			}

			start := time.Now()
			res, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID})
			elapsed := time.Since(start)

			assert.Less(t, elapsed, time.Second)
			if tt.wantFallback {
				require.NoError(t, err)
				assert.True(t, res.Fallback)
				assert.True(t, res.Order.ID.IsLocal())
				require.Len(t, f.history.recorded, 1)
			} else {
				require.ErrorIs(t, err, context.DeadlineExceeded)
				var subErr *order.SubmitError
				require.ErrorAs(t, err, &subErr)
				assert.Equal(t, tt.wantKind, subErr.Kind)
				assert.Empty(t, f.history.recorded)
			}
			f.repo.AssertExpectations(t)
		})
	}
}

func TestSubmitter_Submit_BlockingPreflightDoesNotDelay(t *testing.T) {
	f := newFixtureWithConfig(t, true, true, order.SubmitterConfig{
		PreflightTimeout: 10 * time.Second,
		WriteTimeout:     time.Second,
		LeadTime:         20 * time.Minute,
	})
	f.fillCart(t)

	pinged := make(chan struct{})
	f.repo.On("Ping", mock.Anything).
		Run(func(args mock.Arguments) {
			blockUntilDone(args)
			close(pinged)
		}).
		Return(context.Canceled).
		Maybe()
	orderID := uuid.Must(uuid.NewV4())
	f.repo.On("CreateOrder", mock.Anything, mock.Anything).Return(orderID, nil).Once()
	f.repo.On("CreateItems", mock.Anything, orderID, mock.Anything).Return(nil).Once()

	ctx, cancel := context.WithCancel(context.Background())
	start := time.Now()
	res, err := f.submitter.Submit(ctx, order.Request{RestaurantID: restaurantID})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, order.RemoteID(orderID), res.Order.ID)
	assert.Less(t, elapsed, 5*time.Second)

	// Ping may not have started yet; cancelling unblocks it either way.
	cancel()
	select {
	case <-pinged:
	case <-time.After(5 * time.Second):
	}
	f.repo.AssertExpectations(t)
}

func TestSubmitter_Submit_CouponBelowMinimumIsNotCharged(t *testing.T) {
	f := newFixture(t, true, true)
	f.fillCart(t)
	// FEAST20 qualified against a larger cart that has since shrunk to 25.50.
	_, err := f.coupons.Apply("FEAST20", decimal.RequireFromString("1000"))
	require.NoError(t, err)

	var created *order.Order
	orderID := uuid.Must(uuid.NewV4())
	f.repo.On("CreateOrder", mock.Anything, mock.AnythingOfType("*order.Order")).
		Run(func(args mock.Arguments) { created = args.Get(1).(*order.Order) }).
		Return(orderID, nil).
		Once()
	f.repo.On("CreateItems", mock.Anything, orderID, mock.Anything).Return(nil).Once()

	res, err := f.submitter.Submit(context.Background(), order.Request{RestaurantID: restaurantID})
	require.NoError(t, err)

	assert.True(t, res.Order.Discount.IsZero())
	assert.Equal(t, "25.50", res.Order.Total.StringFixed(2))
	require.NotNil(t, created)
	assert.Empty(t, created.CouponCode)
}
