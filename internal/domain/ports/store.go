package ports

import (
	"context"
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
)

// Store persists subscriptions and their delivery orders.
//
// CreateOrder must be atomic with respect to the (subscription_id, shipping_date)
// pair: a second insert for the same pair returns domain.ErrDuplicateOrder.
type Store interface {
	// FindDueSubscriptions returns active subscriptions with a next shipping
	// date at or before now+horizon, plus active subscriptions whose end date
	// has passed. Customers are loaded alongside.
	FindDueSubscriptions(ctx context.Context, now time.Time, horizon time.Duration) ([]*domain.Subscription, error)

	// CreateSubscription upserts sub.Customer when set and inserts sub in one
	// step. A reused id or payment order ref returns domain.ErrDuplicateSubscription.
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error

	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	GetSubscriptionByPaymentRef(ctx context.Context, paymentOrderRef string) (*domain.Subscription, error)

	// UpdateSubscription applies patch and returns the updated row
	UpdateSubscription(ctx context.Context, id string, patch domain.SubscriptionPatch) (*domain.Subscription, error)

	// FindOrder returns nil, nil when no order exists for the pair
	FindOrder(ctx context.Context, subscriptionID string, shippingDate time.Time) (*domain.DeliveryOrder, error)
	GetOrderByBackendID(ctx context.Context, backendOrderID string) (*domain.DeliveryOrder, error)
	CreateOrder(ctx context.Context, order *domain.DeliveryOrder) error
	UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, now time.Time) error
	CountOrders(ctx context.Context, subscriptionID string) (int, error)
}
