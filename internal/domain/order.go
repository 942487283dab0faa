package domain

import (
	"time"
)

// OrderStatus represents a delivery order's fulfillment state
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// IsValid returns true for a known order status
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:    {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

// CanTransitionTo reports whether the fulfillment process may move an order to next
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// DeliveryOrder is one placed order tied to one shipping date.
// At most one exists per (SubscriptionID, ShippingDate).
type DeliveryOrder struct {
	ShippingDate    time.Time   `json:"shipping_date"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
	ShippingAddress Address     `json:"shipping_address"`
	BillingAddress  Address     `json:"billing_address"`
	ID              string      `json:"id"`
	SubscriptionID  string      `json:"subscription_id"`
	BackendOrderID  string      `json:"backend_order_id"`
	BackendOrderRef string      `json:"backend_order_ref"`
	Status          OrderStatus `json:"status"`
}

// OrderRequest is the backend-neutral payload the scheduler hands to an OrderBackend.
// Adapters translate it into their own wire shape.
type OrderRequest struct {
	ShippingDate   time.Time
	Customer       Customer
	Address        Address
	SubscriptionID string
	Product        string
	VariantID      string
	DeliveryDays   string
	IdempotencyKey string
	Quantity       int
}

// PlacedOrder is what a backend returns after accepting an order
type PlacedOrder struct {
	BackendOrderID  string
	BackendOrderRef string
}

// BackendOrder is an order as seen in the backend's history, used for reconciliation
type BackendOrder struct {
	CreatedAt       time.Time
	ShippingDate    time.Time
	Address         Address
	BackendOrderID  string
	BackendOrderRef string
	SubscriptionID  string
}

// OrderIdempotencyKey identifies the order for one subscription and shipping date
func OrderIdempotencyKey(subscriptionID string, shippingDate time.Time) string {
	return "sub-" + subscriptionID + "-" + shippingDate.UTC().Format("2006-01-02")
}
