package fixtures

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
)

// SubscriptionBuilder provides fluent API for building test subscriptions.
type SubscriptionBuilder struct {
	subscription *domain.Subscription
}

// NewSubscription creates an active Mon/Thu subscription for four weeks,
// first shipping Thursday 5 March 2026.
func NewSubscription() *SubscriptionBuilder {
	created := Date(2026, time.March, 2)
	next := Date(2026, time.March, 5)
	end := created.AddDate(0, 0, 28)
	customer := NewCustomer()

	return &SubscriptionBuilder{
		subscription: &domain.Subscription{
			ID:                  uuid.New().String(),
			CustomerID:          customer.ID,
			Customer:            &customer,
			Product:             "A2 Cow Milk 1L",
			VariantID:           "44012345678901",
			Quantity:            1,
			DeliveryDays:        domain.NewDeliveryDays(time.Monday, time.Thursday),
			Period:              4,
			TotalDeliveries:     8,
			TotalAmount:         decimal.NewFromInt(960),
			DeliveryFee:         decimal.NewFromInt(40),
			Status:              domain.SubscriptionStatusActive,
			NextShippingDate:    &next,
			SubscriptionEndDate: &end,
			PaymentOrderRef:     "order_" + uuid.New().String()[:8],
			Address: domain.Address{
				Name:    "Asha Rao",
				Line1:   "12 MG Road",
				City:    "Bengaluru",
				State:   "Karnataka",
				Pincode: "560001",
				Phone:   "9876543210",
			},
			CreatedAt: created,
			UpdatedAt: created,
		},
	}
}

// NewCustomer returns a customer with a fresh ID
func NewCustomer() domain.Customer {
	return domain.Customer{
		ID:      uuid.New().String(),
		Name:    "Asha Rao",
		Email:   "asha@example.com",
		Contact: "9876543210",
	}
}

func (b *SubscriptionBuilder) WithID(id string) *SubscriptionBuilder {
	b.subscription.ID = id
	return b
}

func (b *SubscriptionBuilder) WithStatus(status domain.SubscriptionStatus) *SubscriptionBuilder {
	b.subscription.Status = status
	return b
}

func (b *SubscriptionBuilder) WithDeliveryDays(days ...time.Weekday) *SubscriptionBuilder {
	b.subscription.DeliveryDays = domain.NewDeliveryDays(days...)
	b.subscription.TotalDeliveries = len(days) * b.subscription.Period
	return b
}

func (b *SubscriptionBuilder) WithPeriod(weeks int) *SubscriptionBuilder {
	b.subscription.Period = weeks
	b.subscription.TotalDeliveries = b.subscription.DeliveryDays.Count() * weeks
	return b
}

func (b *SubscriptionBuilder) WithNextShippingDate(t time.Time) *SubscriptionBuilder {
	b.subscription.NextShippingDate = &t
	return b
}

func (b *SubscriptionBuilder) WithoutNextShippingDate() *SubscriptionBuilder {
	b.subscription.NextShippingDate = nil
	return b
}

func (b *SubscriptionBuilder) WithEndDate(t time.Time) *SubscriptionBuilder {
	b.subscription.SubscriptionEndDate = &t
	return b
}

func (b *SubscriptionBuilder) WithPausedAt(t time.Time) *SubscriptionBuilder {
	b.subscription.PausedAt = &t
	return b
}

func (b *SubscriptionBuilder) WithPaymentOrderRef(ref string) *SubscriptionBuilder {
	b.subscription.PaymentOrderRef = ref
	return b
}

func (b *SubscriptionBuilder) WithoutCustomer() *SubscriptionBuilder {
	b.subscription.Customer = nil
	return b
}

func (b *SubscriptionBuilder) Build() *domain.Subscription {
	return b.subscription
}
