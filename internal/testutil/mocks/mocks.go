// Package mocks provides shared testify mocks for the service ports.
package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// MockOrderBackend mocks ports.OrderBackend
type MockOrderBackend struct {
	mock.Mock
}

var _ ports.OrderBackend = (*MockOrderBackend)(nil)

func (m *MockOrderBackend) PlaceOrder(ctx context.Context, req *domain.OrderRequest) (*domain.PlacedOrder, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.PlacedOrder), args.Error(1)
}

func (m *MockOrderBackend) ListOrders(ctx context.Context, since time.Time) ([]domain.BackendOrder, error) {
	args := m.Called(ctx, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.BackendOrder), args.Error(1)
}

// MockNotifier mocks ports.Notifier
type MockNotifier struct {
	mock.Mock
}

var _ ports.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Send(ctx context.Context, customer domain.Customer, kind domain.TemplateKind, data map[string]any) error {
	args := m.Called(ctx, customer, kind, data)
	return args.Error(0)
}

// MockLocker mocks ports.Locker. The release func is a no-op.
type MockLocker struct {
	mock.Mock
}

var _ ports.Locker = (*MockLocker)(nil)

func (m *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	args := m.Called(ctx, key, ttl)
	if err := args.Error(0); err != nil {
		return nil, err
	}
	return func() {}, nil
}

// MockStore mocks ports.Store
type MockStore struct {
	mock.Mock
}

var _ ports.Store = (*MockStore)(nil)

func (m *MockStore) FindDueSubscriptions(ctx context.Context, now time.Time, horizon time.Duration) ([]*domain.Subscription, error) {
	args := m.Called(ctx, now, horizon)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Subscription), args.Error(1)
}

func (m *MockStore) CreateSubscription(ctx context.Context, sub *domain.Subscription) error {
	args := m.Called(ctx, sub)
	return args.Error(0)
}

func (m *MockStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *MockStore) GetSubscriptionByPaymentRef(ctx context.Context, paymentOrderRef string) (*domain.Subscription, error) {
	args := m.Called(ctx, paymentOrderRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *MockStore) UpdateSubscription(ctx context.Context, id string, patch domain.SubscriptionPatch) (*domain.Subscription, error) {
	args := m.Called(ctx, id, patch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Subscription), args.Error(1)
}

func (m *MockStore) FindOrder(ctx context.Context, subscriptionID string, shippingDate time.Time) (*domain.DeliveryOrder, error) {
	args := m.Called(ctx, subscriptionID, shippingDate)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeliveryOrder), args.Error(1)
}

func (m *MockStore) GetOrderByBackendID(ctx context.Context, backendOrderID string) (*domain.DeliveryOrder, error) {
	args := m.Called(ctx, backendOrderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.DeliveryOrder), args.Error(1)
}

func (m *MockStore) CreateOrder(ctx context.Context, order *domain.DeliveryOrder) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, now time.Time) error {
	args := m.Called(ctx, id, status, now)
	return args.Error(0)
}

func (m *MockStore) CountOrders(ctx context.Context, subscriptionID string) (int, error) {
	args := m.Called(ctx, subscriptionID)
	return args.Int(0), args.Error(1)
}
