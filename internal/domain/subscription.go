package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SubscriptionStatus represents the subscription state
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusStopped   SubscriptionStatus = "stopped"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
)

// CancelReason records why a subscription reached the cancelled state
type CancelReason string

const (
	CancelReasonNone           CancelReason = ""
	CancelReasonExpired        CancelReason = "expired"
	CancelReasonQuotaExhausted CancelReason = "quota_exhausted"
	CancelReasonCustomer       CancelReason = "customer"
	CancelReasonAdmin          CancelReason = "admin"
)

// Address is the shipping/billing snapshot taken at checkout
type Address struct {
	Name    string `json:"name"`
	Line1   string `json:"line1"`
	Line2   string `json:"line2"`
	City    string `json:"city"`
	State   string `json:"state"`
	Pincode string `json:"pincode"`
	Phone   string `json:"phone"`
	Country string `json:"country,omitempty"`
}

// Customer owns subscriptions. Read-only while scheduling.
type Customer struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Contact string `json:"contact"`
}

// Subscription is a recurring delivery contract
type Subscription struct {
	NextShippingDate    *time.Time         `json:"next_shipping_date"`
	SubscriptionEndDate *time.Time         `json:"subscription_end_date"`
	PausedAt            *time.Time         `json:"paused_at"`
	CancelledAt         *time.Time         `json:"cancelled_at"`
	PaidAt              *time.Time         `json:"paid_at"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
	Customer            *Customer          `json:"customer,omitempty"`
	Address             Address            `json:"address"`
	TotalAmount         decimal.Decimal    `json:"total_amount"`
	DeliveryFee         decimal.Decimal    `json:"delivery_fee"`
	ID                  string             `json:"id"`
	CustomerID          string             `json:"customer_id"`
	Product             string             `json:"product"`
	VariantID           string             `json:"variant_id"`
	PaymentOrderRef     string             `json:"payment_order_ref"`
	PaymentID           string             `json:"payment_id"`
	Status              SubscriptionStatus `json:"status"`
	CancelReason        CancelReason       `json:"cancel_reason,omitempty"`
	Quantity            int                `json:"quantity"`
	Period              int                `json:"period"`
	TotalDeliveries     int                `json:"total_deliveries"`
	DeliveryDays        DeliveryDays       `json:"delivery_days"`
}

// IsActive returns true if the subscription is currently active
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive
}

// IsPaused returns true if the customer paused deliveries
func (s *Subscription) IsPaused() bool {
	return s.PausedAt != nil
}

// IsTerminal returns true once the scheduler may no longer mutate the subscription
func (s *Subscription) IsTerminal() bool {
	return s.Status == SubscriptionStatusCancelled
}

// IsExpired returns true when the subscription end date has been reached
func (s *Subscription) IsExpired(now time.Time) bool {
	return s.SubscriptionEndDate != nil && !now.Before(*s.SubscriptionEndDate)
}

// SubscriptionPatch is a partial update. Nil fields are left unchanged;
// the Clear flags null out the matching column.
type SubscriptionPatch struct {
	Status                *SubscriptionStatus
	CancelReason          *CancelReason
	NextShippingDate      *time.Time
	SubscriptionEndDate   *time.Time
	PausedAt              *time.Time
	CancelledAt           *time.Time
	PaidAt                *time.Time
	PaymentID             *string
	ClearNextShippingDate bool
	ClearPausedAt         bool
}

// Apply copies the patch onto sub. Stores use it to keep in-memory copies consistent.
func (p SubscriptionPatch) Apply(sub *Subscription, now time.Time) {
	if p.Status != nil {
		sub.Status = *p.Status
	}
	if p.CancelReason != nil {
		sub.CancelReason = *p.CancelReason
	}
	if p.ClearNextShippingDate {
		sub.NextShippingDate = nil
	} else if p.NextShippingDate != nil {
		t := *p.NextShippingDate
		sub.NextShippingDate = &t
	}
	if p.SubscriptionEndDate != nil {
		t := *p.SubscriptionEndDate
		sub.SubscriptionEndDate = &t
	}
	if p.ClearPausedAt {
		sub.PausedAt = nil
	} else if p.PausedAt != nil {
		t := *p.PausedAt
		sub.PausedAt = &t
	}
	if p.CancelledAt != nil {
		t := *p.CancelledAt
		sub.CancelledAt = &t
	}
	if p.PaidAt != nil {
		t := *p.PaidAt
		sub.PaidAt = &t
	}
	if p.PaymentID != nil {
		sub.PaymentID = *p.PaymentID
	}
	sub.UpdatedAt = now
}

// TerminatePatch cancels the subscription and clears its schedule
func TerminatePatch(reason CancelReason, now time.Time) SubscriptionPatch {
	status := SubscriptionStatusCancelled
	return SubscriptionPatch{
		Status:                &status,
		CancelReason:          &reason,
		CancelledAt:           &now,
		ClearNextShippingDate: true,
	}
}
