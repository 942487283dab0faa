package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kevin07696/subscription-scheduler/internal/adapters/lock"
	"github.com/kevin07696/subscription-scheduler/internal/adapters/memory"
	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
	"github.com/kevin07696/subscription-scheduler/internal/schedule"
	"github.com/kevin07696/subscription-scheduler/internal/testutil/fixtures"
	"github.com/kevin07696/subscription-scheduler/internal/testutil/mocks"
)

var (
	thursday  = fixtures.Date(2026, time.March, 5)
	monday    = fixtures.Date(2026, time.March, 9)
	thursDue  = thursday.Add(-24 * time.Hour)
	mondayDue = monday.Add(-48 * time.Hour)
)

// fakeBackend hands out sequential order ids and can fail per subscription
type fakeBackend struct {
	failures map[string]error
	listed   []domain.BackendOrder
	placed   []domain.OrderRequest
	delay    time.Duration
	mu       sync.Mutex
	seq      int
}

func (b *fakeBackend) PlaceOrder(_ context.Context, req *domain.OrderRequest) (*domain.PlacedOrder, error) {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.failures[req.SubscriptionID]; err != nil {
		return nil, err
	}
	b.seq++
	b.placed = append(b.placed, *req)
	return &domain.PlacedOrder{
		BackendOrderID:  fmt.Sprintf("%d", 5000+b.seq),
		BackendOrderRef: fmt.Sprintf("#%d", 1000+b.seq),
	}, nil
}

func (b *fakeBackend) ListOrders(_ context.Context, _ time.Time) ([]domain.BackendOrder, error) {
	return b.listed, nil
}

func (b *fakeBackend) placedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.placed)
}

type testEnv struct {
	store    *memory.Store
	backend  *fakeBackend
	notifier *mocks.MockNotifier
}

func newTestEnv(subs ...*domain.Subscription) *testEnv {
	env := &testEnv{
		store:    memory.NewStore(),
		backend:  &fakeBackend{failures: map[string]error{}},
		notifier: &mocks.MockNotifier{},
	}
	env.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	for _, sub := range subs {
		env.put(sub)
	}
	return env
}

func (e *testEnv) put(sub *domain.Subscription) {
	if sub.Customer != nil {
		e.store.PutCustomer(*sub.Customer)
	}
	e.store.PutSubscription(*sub)
}

func (e *testEnv) runner(cfg Config, opts ...Option) *Runner {
	return NewRunner(e.store, e.backend, e.notifier, ports.NopLogger{}, cfg, opts...)
}

func (e *testEnv) get(t *testing.T, id string) *domain.Subscription {
	t.Helper()
	sub, err := e.store.GetSubscription(context.Background(), id)
	require.NoError(t, err)
	return sub
}

func (e *testEnv) seedOrder(t *testing.T, subID string, date time.Time) {
	t.Helper()
	require.NoError(t, e.store.CreateOrder(context.Background(), &domain.DeliveryOrder{
		ID:             subID + date.Format("0102"),
		SubscriptionID: subID,
		ShippingDate:   date,
		BackendOrderID: "seed-" + subID + date.Format("0102"),
		Status:         domain.OrderStatusCreated,
	}))
}

func TestRunOnce_ThursdayOrderAdvancesToMonday(t *testing.T) {
	sub := fixtures.NewSubscription().WithNextShippingDate(thursday).Build()
	env := newTestEnv(sub)

	report, err := env.runner(DefaultConfig()).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Created)
	require.Len(t, report.Items, 1)
	assert.Equal(t, OutcomeCreated, report.Items[0].Outcome)
	assert.Equal(t, "5001", report.Items[0].BackendOrderID)

	require.Len(t, env.backend.placed, 1)
	req := env.backend.placed[0]
	assert.Equal(t, "sub-"+sub.ID+"-2026-03-05", req.IdempotencyKey)
	assert.Equal(t, "Mon,Thu", req.DeliveryDays)
	assert.Equal(t, sub.VariantID, req.VariantID)
	assert.Equal(t, sub.Customer.Email, req.Customer.Email)

	updated := env.get(t, sub.ID)
	require.NotNil(t, updated.NextShippingDate)
	assert.Equal(t, monday, *updated.NextShippingDate)

	orders := env.store.Orders(sub.ID)
	require.Len(t, orders, 1)
	assert.Equal(t, thursday, orders[0].ShippingDate)
	assert.Equal(t, "#1001", orders[0].BackendOrderRef)
	assert.Equal(t, sub.Address, orders[0].ShippingAddress)

	env.notifier.AssertCalled(t, "Send", mock.Anything, *sub.Customer, domain.TemplateOrderConfirmed, mock.Anything)
}

func TestRunOnce_MondayUsesFortyEightHourLead(t *testing.T) {
	sub := fixtures.NewSubscription().WithNextShippingDate(monday).Build()
	env := newTestEnv(sub)
	runner := env.runner(DefaultConfig())

	report, err := runner.RunOnce(context.Background(), monday.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, schedule.ReasonWindowMissed, report.Items[0].Reason)
	assert.Equal(t, fixtures.Date(2026, time.March, 12), *env.get(t, sub.ID).NextShippingDate)

	env2 := newTestEnv(fixtures.NewSubscription().WithID(sub.ID).WithNextShippingDate(monday).Build())
	report, err = env2.runner(DefaultConfig()).RunOnce(context.Background(), mondayDue)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, fixtures.Date(2026, time.March, 12), *env2.get(t, sub.ID).NextShippingDate)
}

func TestRunOnce_Idempotent(t *testing.T) {
	sub := fixtures.NewSubscription().WithNextShippingDate(thursday).Build()
	env := newTestEnv(sub)
	runner := env.runner(DefaultConfig())

	_, err := runner.RunOnce(context.Background(), thursDue)
	require.NoError(t, err)
	second, err := runner.RunOnce(context.Background(), thursDue.Add(10*time.Second))
	require.NoError(t, err)

	assert.Equal(t, 1, env.backend.placedCount())
	assert.Len(t, env.store.Orders(sub.ID), 1)
	assert.Equal(t, monday, *env.get(t, sub.ID).NextShippingDate)
	assert.Equal(t, OutcomeSkipped, second.Items[0].Outcome)
}

func TestRunOnce_ExistingOrderIsNotPlacedAgain(t *testing.T) {
	sub := fixtures.NewSubscription().WithNextShippingDate(thursday).Build()
	env := newTestEnv(sub)
	env.seedOrder(t, sub.ID, thursday)

	report, err := env.runner(DefaultConfig()).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, 0, env.backend.placedCount())
	assert.Equal(t, ReasonAlreadyOrdered, report.Items[0].Reason)
	assert.Equal(t, monday, *env.get(t, sub.ID).NextShippingDate)
}

func TestRunOnce_MissedWindowSkipsToNextDelivery(t *testing.T) {
	sub := fixtures.NewSubscription().WithNextShippingDate(thursday).Build()
	env := newTestEnv(sub)
	runner := env.runner(DefaultConfig())

	report, err := runner.RunOnce(context.Background(), thursDue.Add(31*time.Second))
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Equal(t, OutcomeSkipped, report.Items[0].Outcome)
	assert.Equal(t, schedule.ReasonWindowMissed, report.Items[0].Reason)
	assert.Equal(t, thursday, *report.Items[0].ShippingDate)
	assert.Equal(t, monday, *env.get(t, sub.ID).NextShippingDate)

	report, err = runner.RunOnce(context.Background(), mondayDue)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	orders := env.store.Orders(sub.ID)
	require.Len(t, orders, 1)
	assert.Equal(t, monday, orders[0].ShippingDate)
	assert.Equal(t, fixtures.Date(2026, time.March, 12), *env.get(t, sub.ID).NextShippingDate)
}

func TestRunOnce_MissedLastDeliveryExpires(t *testing.T) {
	sub := fixtures.NewSubscription().
		WithEndDate(monday).
		WithNextShippingDate(thursday).
		Build()
	env := newTestEnv(sub)

	// Monday's window closed too; Thursday the 12th is past the end date
	report, err := env.runner(DefaultConfig()).RunOnce(context.Background(), mondayDue.Add(time.Hour))

	require.NoError(t, err)
	assert.Equal(t, OutcomeTerminated, report.Items[0].Outcome)
	assert.Equal(t, string(domain.CancelReasonExpired), report.Items[0].Reason)
	assert.Equal(t, 0, env.backend.placedCount())
	assert.Equal(t, domain.SubscriptionStatusCancelled, env.get(t, sub.ID).Status)
}

// flakyUpdateStore fails the next n subscription updates
type flakyUpdateStore struct {
	*memory.Store
	n int
}

func (s *flakyUpdateStore) UpdateSubscription(ctx context.Context, id string, patch domain.SubscriptionPatch) (*domain.Subscription, error) {
	if s.n > 0 {
		s.n--
		return nil, domain.WrapError(domain.ErrorCodeDatabaseError, "update subscription", errors.New("connection reset"))
	}
	return s.Store.UpdateSubscription(ctx, id, patch)
}

func TestRunOnce_AdvanceFailureCompletedByLaterPass(t *testing.T) {
	tests := []struct {
		name  string
		later time.Time
	}{
		{"inside the window", thursDue.Add(10 * time.Second)},
		{"after the window", thursDue.Add(time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := fixtures.NewSubscription().WithNextShippingDate(thursday).Build()
			env := newTestEnv(sub)
			store := &flakyUpdateStore{Store: env.store, n: 1}
			runner := NewRunner(store, env.backend, env.notifier, ports.NopLogger{}, DefaultConfig())

			first, err := runner.RunOnce(context.Background(), thursDue)
			require.NoError(t, err)
			assert.Equal(t, OutcomeErrored, first.Items[0].Outcome)
			assert.Equal(t, ReasonStoreFailed, first.Items[0].Reason)
			assert.True(t, first.Items[0].OrderPlaced)
			assert.Equal(t, thursday, *env.get(t, sub.ID).NextShippingDate)

			second, err := runner.RunOnce(context.Background(), tt.later)
			require.NoError(t, err)
			assert.Equal(t, OutcomeSkipped, second.Items[0].Outcome)
			assert.Equal(t, ReasonAlreadyOrdered, second.Items[0].Reason)
			assert.Equal(t, 0, second.Created)
			assert.Equal(t, 1, env.backend.placedCount())
			assert.Len(t, env.store.Orders(sub.ID), 1)
			assert.Equal(t, monday, *env.get(t, sub.ID).NextShippingDate)
		})
	}
}

func TestRunOnce_LastOrderCancelsSubscription(t *testing.T) {
	sub := fixtures.NewSubscription().
		WithPeriod(1).
		WithEndDate(fixtures.Date(2026, time.March, 30)).
		WithNextShippingDate(thursday).
		Build()
	env := newTestEnv(sub)
	env.seedOrder(t, sub.ID, fixtures.Date(2026, time.March, 2))

	report, err := env.runner(DefaultConfig()).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Terminated)
	assert.Equal(t, OutcomeTerminated, report.Items[0].Outcome)
	assert.Equal(t, string(domain.CancelReasonQuotaExhausted), report.Items[0].Reason)

	updated := env.get(t, sub.ID)
	assert.Equal(t, domain.SubscriptionStatusCancelled, updated.Status)
	assert.Equal(t, domain.CancelReasonQuotaExhausted, updated.CancelReason)
	assert.Nil(t, updated.NextShippingDate)
	assert.Len(t, env.store.Orders(sub.ID), 2)
}

func TestRunOnce_QuotaAlreadyMetPlacesNothing(t *testing.T) {
	sub := fixtures.NewSubscription().WithPeriod(1).WithNextShippingDate(thursday).Build()
	env := newTestEnv(sub)
	env.seedOrder(t, sub.ID, fixtures.Date(2026, time.February, 23))
	env.seedOrder(t, sub.ID, fixtures.Date(2026, time.February, 26))

	report, err := env.runner(DefaultConfig()).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, 0, env.backend.placedCount())
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, OutcomeTerminated, report.Items[0].Outcome)
	assert.Nil(t, env.get(t, sub.ID).NextShippingDate)
}

// Driving a subscription through every window never exceeds its quota
func TestRunOnce_QuotaBound(t *testing.T) {
	sub := fixtures.NewSubscription().
		WithPeriod(2).
		WithEndDate(fixtures.Date(2026, time.June, 1)).
		WithNextShippingDate(thursday).
		Build()
	env := newTestEnv(sub)
	runner := env.runner(DefaultConfig())
	window := schedule.DefaultOrderWindow()

	for i := 0; i < 10; i++ {
		current := env.get(t, sub.ID)
		if current.NextShippingDate == nil {
			break
		}
		_, err := runner.RunOnce(context.Background(), window.OrderCreateTime(*current.NextShippingDate))
		require.NoError(t, err)
	}

	assert.Len(t, env.store.Orders(sub.ID), schedule.TotalAllowed(2, 2))
	final := env.get(t, sub.ID)
	assert.Equal(t, domain.SubscriptionStatusCancelled, final.Status)

	shipped := env.store.Orders(sub.ID)
	expected := []time.Time{thursday, monday, fixtures.Date(2026, time.March, 12), fixtures.Date(2026, time.March, 16)}
	for i, order := range shipped {
		assert.Equal(t, expected[i], order.ShippingDate)
	}
}

func TestRunOnce_TerminalSubscriptionUntouched(t *testing.T) {
	cancelled := fixtures.NewSubscription().
		WithStatus(domain.SubscriptionStatusCancelled).
		WithoutNextShippingDate().
		WithEndDate(thursDue.Add(-time.Hour)).
		Build()

	store := &mocks.MockStore{}
	store.On("FindDueSubscriptions", mock.Anything, thursDue, mock.Anything).
		Return([]*domain.Subscription{cancelled}, nil)
	backend := &mocks.MockOrderBackend{}

	runner := NewRunner(store, backend, nil, ports.NopLogger{}, DefaultConfig())
	report, err := runner.RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, OutcomeSkipped, report.Items[0].Outcome)
	assert.Equal(t, schedule.ReasonTerminal, report.Items[0].Reason)
	store.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything, mock.Anything)
	backend.AssertNotCalled(t, "PlaceOrder", mock.Anything, mock.Anything)
}

func TestRunOnce_PausedIsSkipped(t *testing.T) {
	sub := fixtures.NewSubscription().
		WithNextShippingDate(thursday).
		WithPausedAt(fixtures.Date(2026, time.March, 1)).
		Build()
	env := newTestEnv(sub)

	report, err := env.runner(DefaultConfig()).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, schedule.ReasonPaused, report.Items[0].Reason)
	assert.Equal(t, 0, env.backend.placedCount())
	assert.Equal(t, thursday, *env.get(t, sub.ID).NextShippingDate)
}

func TestRunOnce_ExpiresBeforeOrdering(t *testing.T) {
	sub := fixtures.NewSubscription().
		WithNextShippingDate(thursday).
		WithEndDate(fixtures.Date(2026, time.March, 3)).
		Build()
	env := newTestEnv(sub)

	report, err := env.runner(DefaultConfig()).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, 1, report.Expired)
	assert.Equal(t, 0, env.backend.placedCount())

	updated := env.get(t, sub.ID)
	assert.Equal(t, domain.SubscriptionStatusCancelled, updated.Status)
	assert.Equal(t, domain.CancelReasonExpired, updated.CancelReason)
	assert.Nil(t, updated.NextShippingDate)
	env.notifier.AssertCalled(t, "Send", mock.Anything, *sub.Customer, domain.TemplateExpired, mock.Anything)
}

func TestRunOnce_FailuresAreIsolated(t *testing.T) {
	failing := fixtures.NewSubscription().WithID("a-failing").WithNextShippingDate(thursday).Build()
	rejected := fixtures.NewSubscription().WithID("b-rejected").WithNextShippingDate(thursday).Build()
	healthy := fixtures.NewSubscription().WithID("c-healthy").WithNextShippingDate(thursday).Build()
	env := newTestEnv(failing, rejected, healthy)
	env.backend.failures[failing.ID] = domain.WrapError(domain.ErrorCodeBackendTransient, "shopify timeout", errors.New("i/o timeout"))
	env.backend.failures[rejected.ID] = domain.WrapError(domain.ErrorCodeBackendRejected, "invalid variant", nil)

	report, err := env.runner(DefaultConfig()).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 2, report.Errored)

	byID := map[string]ItemResult{}
	for _, item := range report.Items {
		byID[item.SubscriptionID] = item
	}
	assert.Equal(t, OutcomeErrored, byID[failing.ID].Outcome)
	assert.True(t, byID[failing.ID].Retriable)
	assert.Equal(t, ReasonBackendFailed, byID[failing.ID].Reason)
	assert.False(t, byID[rejected.ID].Retriable)
	assert.Equal(t, OutcomeCreated, byID[healthy.ID].Outcome)

	// failed subscriptions are left as they were for the next pass
	assert.Equal(t, thursday, *env.get(t, failing.ID).NextShippingDate)
	assert.Empty(t, env.store.Orders(failing.ID))
}

func TestRunOnce_BatchFailure(t *testing.T) {
	store := &mocks.MockStore{}
	store.On("FindDueSubscriptions", mock.Anything, mock.Anything, mock.Anything).
		Return(nil, domain.WrapError(domain.ErrorCodeDatabaseError, "query", errors.New("connection refused")))

	runner := NewRunner(store, &mocks.MockOrderBackend{}, nil, ports.NopLogger{}, DefaultConfig())
	report, err := runner.RunOnce(context.Background(), thursDue)

	require.Error(t, err)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, domain.ErrDatabaseError)
}

func TestRunOnce_NotificationFailureIgnored(t *testing.T) {
	sub := fixtures.NewSubscription().WithNextShippingDate(thursday).Build()
	env := newTestEnv(sub)
	env.notifier = &mocks.MockNotifier{}
	env.notifier.On("Send", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	report, err := env.runner(DefaultConfig()).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, report.Items[0].Outcome)
	assert.Equal(t, monday, *env.get(t, sub.ID).NextShippingDate)
}

func TestRunOnce_RecordFailureLeavesDateForReconciliation(t *testing.T) {
	sub := fixtures.NewSubscription().WithNextShippingDate(thursday).Build()

	store := &mocks.MockStore{}
	store.On("FindDueSubscriptions", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.Subscription{sub}, nil)
	store.On("FindOrder", mock.Anything, sub.ID, thursday).Return(nil, nil)
	store.On("CountOrders", mock.Anything, sub.ID).Return(0, nil)
	store.On("CreateOrder", mock.Anything, mock.Anything).
		Return(domain.WrapError(domain.ErrorCodeDatabaseError, "insert", errors.New("timeout")))

	backend := &mocks.MockOrderBackend{}
	backend.On("PlaceOrder", mock.Anything, mock.Anything).
		Return(&domain.PlacedOrder{BackendOrderID: "5001", BackendOrderRef: "#1001"}, nil)

	runner := NewRunner(store, backend, nil, ports.NopLogger{}, DefaultConfig())
	report, err := runner.RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	item := report.Items[0]
	assert.Equal(t, OutcomeErrored, item.Outcome)
	assert.Equal(t, ReasonRecordFailed, item.Reason)
	assert.Equal(t, "5001", item.BackendOrderID)
	assert.True(t, item.Retriable)
	store.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything, mock.Anything)
}

func TestRunOnce_LockHeldSkips(t *testing.T) {
	sub := fixtures.NewSubscription().WithNextShippingDate(thursday).Build()
	env := newTestEnv(sub)
	locker := &mocks.MockLocker{}
	locker.On("TryLock", mock.Anything, "scheduler:subscription:"+sub.ID, mock.Anything).Return(ports.ErrLockHeld)

	report, err := env.runner(DefaultConfig(), WithLocker(locker)).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, ReasonInFlight, report.Items[0].Reason)
	assert.Equal(t, 0, env.backend.placedCount())
}

func TestRunOnce_OverlappingRunsCreateOneOrder(t *testing.T) {
	tests := []struct {
		name   string
		locker ports.Locker
	}{
		{"with lock", lock.NewMemoryLocker()},
		{"unique key only", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := fixtures.NewSubscription().WithNextShippingDate(thursday).Build()
			env := newTestEnv(sub)
			env.backend.delay = 20 * time.Millisecond

			var opts []Option
			if tt.locker != nil {
				opts = append(opts, WithLocker(tt.locker))
			}
			runner := env.runner(DefaultConfig(), opts...)

			var wg sync.WaitGroup
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := runner.RunOnce(context.Background(), thursDue)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()

			assert.Len(t, env.store.Orders(sub.ID), 1)
			assert.Equal(t, monday, *env.get(t, sub.ID).NextShippingDate)
			if tt.locker != nil {
				assert.Equal(t, 1, env.backend.placedCount())
			}
		})
	}
}

func TestRunOnce_Concurrency(t *testing.T) {
	subs := make([]*domain.Subscription, 0, 8)
	for i := 0; i < 8; i++ {
		subs = append(subs, fixtures.NewSubscription().WithID(fmt.Sprintf("sub-%02d", i)).WithNextShippingDate(thursday).Build())
	}
	env := newTestEnv(subs...)
	cfg := DefaultConfig()
	cfg.Concurrency = 4

	report, err := env.runner(cfg, WithLocker(lock.NewMemoryLocker())).RunOnce(context.Background(), thursDue)

	require.NoError(t, err)
	assert.Equal(t, 8, report.Created)
	for i, item := range report.Items {
		assert.Equal(t, fmt.Sprintf("sub-%02d", i), item.SubscriptionID)
	}
}
