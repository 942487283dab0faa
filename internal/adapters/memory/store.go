// Package memory provides an in-process ports.Store for single-node
// development and tests. Data is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

type orderKey struct {
	subscriptionID string
	shippingDate   string
}

func keyFor(subscriptionID string, shippingDate time.Time) orderKey {
	return orderKey{subscriptionID: subscriptionID, shippingDate: shippingDate.UTC().Format(time.RFC3339)}
}

// Store keeps subscriptions and orders in maps guarded by one mutex.
// Returned values are copies.
type Store struct {
	subscriptions map[string]*domain.Subscription
	customers     map[string]*domain.Customer
	orders        map[string]*domain.DeliveryOrder
	byPair        map[orderKey]string
	byBackendID   map[string]string
	mu            sync.RWMutex
}

var _ ports.Store = (*Store)(nil)

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{
		subscriptions: make(map[string]*domain.Subscription),
		customers:     make(map[string]*domain.Customer),
		orders:        make(map[string]*domain.DeliveryOrder),
		byPair:        make(map[orderKey]string),
		byBackendID:   make(map[string]string),
	}
}

// PutCustomer inserts or replaces a customer
func (s *Store) PutCustomer(c domain.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[c.ID] = &c
}

// PutSubscription inserts or replaces a subscription
func (s *Store) PutSubscription(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub.Customer = nil
	s.subscriptions[sub.ID] = &sub
}

func (s *Store) snapshot(sub *domain.Subscription) *domain.Subscription {
	cp := *sub
	cp.NextShippingDate = copyTime(sub.NextShippingDate)
	cp.SubscriptionEndDate = copyTime(sub.SubscriptionEndDate)
	cp.PausedAt = copyTime(sub.PausedAt)
	cp.CancelledAt = copyTime(sub.CancelledAt)
	cp.PaidAt = copyTime(sub.PaidAt)
	if c, ok := s.customers[sub.CustomerID]; ok {
		customer := *c
		cp.Customer = &customer
	}
	return &cp
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func (s *Store) FindDueSubscriptions(_ context.Context, now time.Time, horizon time.Duration) ([]*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := now.Add(horizon)
	due := make([]*domain.Subscription, 0)
	for _, sub := range s.subscriptions {
		if !sub.IsActive() {
			continue
		}
		scheduled := sub.NextShippingDate != nil && !sub.NextShippingDate.After(limit)
		if scheduled || sub.IsExpired(now) {
			due = append(due, s.snapshot(sub))
		}
	}
	sortSubscriptions(due)
	return due, nil
}

func (s *Store) CreateSubscription(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID]; exists {
		return domain.ErrDuplicateSubscription
	}
	for _, other := range s.subscriptions {
		if other.PaymentOrderRef == sub.PaymentOrderRef {
			return domain.ErrDuplicateSubscription
		}
	}

	if sub.Customer != nil {
		c := *sub.Customer
		s.customers[c.ID] = &c
	}
	cp := *s.snapshot(sub)
	cp.Customer = nil
	s.subscriptions[sub.ID] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	return s.snapshot(sub), nil
}

func (s *Store) GetSubscriptionByPaymentRef(_ context.Context, paymentOrderRef string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.PaymentOrderRef == paymentOrderRef {
			return s.snapshot(sub), nil
		}
	}
	return nil, domain.ErrSubscriptionNotFound
}

func (s *Store) UpdateSubscription(_ context.Context, id string, patch domain.SubscriptionPatch) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, domain.ErrSubscriptionNotFound
	}
	patch.Apply(sub, time.Now().UTC())
	return s.snapshot(sub), nil
}

func (s *Store) FindOrder(_ context.Context, subscriptionID string, shippingDate time.Time) (*domain.DeliveryOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byPair[keyFor(subscriptionID, shippingDate)]
	if !ok {
		return nil, nil
	}
	order := *s.orders[id]
	return &order, nil
}

func (s *Store) GetOrderByBackendID(_ context.Context, backendOrderID string) (*domain.DeliveryOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byBackendID[backendOrderID]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	order := *s.orders[id]
	return &order, nil
}

// CreateOrder enforces the (subscription, shipping date) uniqueness under the write lock
func (s *Store) CreateOrder(_ context.Context, order *domain.DeliveryOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := keyFor(order.SubscriptionID, order.ShippingDate)
	if _, exists := s.byPair[key]; exists {
		return domain.ErrDuplicateOrder
	}
	if _, exists := s.byBackendID[order.BackendOrderID]; exists && order.BackendOrderID != "" {
		return domain.ErrDuplicateOrder
	}

	cp := *order
	s.orders[order.ID] = &cp
	s.byPair[key] = order.ID
	if order.BackendOrderID != "" {
		s.byBackendID[order.BackendOrderID] = order.ID
	}
	return nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status domain.OrderStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status
	order.UpdatedAt = now
	return nil
}

func (s *Store) CountOrders(_ context.Context, subscriptionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, order := range s.orders {
		if order.SubscriptionID == subscriptionID {
			n++
		}
	}
	return n, nil
}

// Orders returns every order of a subscription sorted by shipping date
func (s *Store) Orders(subscriptionID string) []domain.DeliveryOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orders := make([]domain.DeliveryOrder, 0)
	for _, order := range s.orders {
		if order.SubscriptionID == subscriptionID {
			orders = append(orders, *order)
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ShippingDate.Before(orders[j].ShippingDate)
	})
	return orders
}

// Ping always succeeds
func (s *Store) Ping(context.Context) error { return nil }

func sortSubscriptions(subs []*domain.Subscription) {
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
}
