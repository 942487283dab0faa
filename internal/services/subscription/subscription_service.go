package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
	"github.com/kevin07696/subscription-scheduler/internal/schedule"
)

// Service applies customer and admin lifecycle actions to subscriptions
type Service struct {
	store    ports.Store
	notifier ports.Notifier
	logger   ports.Logger
	window   schedule.OrderWindow
}

// NewService creates a new subscription service
func NewService(
	store ports.Store,
	notifier ports.Notifier,
	logger ports.Logger,
	window schedule.OrderWindow,
) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		window:   window,
	}
}

// GetSubscription retrieves a subscription by ID
func (s *Service) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.store.GetSubscription(ctx, id)
}

// NewSubscription is a checkout waiting for its payment
type NewSubscription struct {
	Customer        domain.Customer
	Address         domain.Address
	TotalAmount     decimal.Decimal
	DeliveryFee     decimal.Decimal
	Product         string
	VariantID       string
	PaymentOrderRef string
	DeliveryDays    domain.DeliveryDays
	Quantity        int
	Period          int
}

// Create records a pending subscription for a checkout. Nothing is scheduled
// until Activate confirms the payment behind PaymentOrderRef.
func (s *Service) Create(ctx context.Context, in NewSubscription, now time.Time) (*domain.Subscription, error) {
	if in.DeliveryDays.IsEmpty() || in.Period <= 0 || in.Quantity <= 0 {
		return nil, domain.NewDomainError(domain.ErrorCodeSubscriptionInvalidConfig,
			"delivery days, period and quantity are required").
			WithDetail("delivery_days", in.DeliveryDays.String()).
			WithDetail("period", in.Period).
			WithDetail("quantity", in.Quantity)
	}

	customer := in.Customer
	sub := &domain.Subscription{
		ID:              uuid.New().String(),
		CustomerID:      customer.ID,
		Customer:        &customer,
		Product:         in.Product,
		VariantID:       in.VariantID,
		Quantity:        in.Quantity,
		DeliveryDays:    in.DeliveryDays,
		Period:          in.Period,
		TotalDeliveries: schedule.TotalAllowed(in.DeliveryDays.Count(), in.Period),
		TotalAmount:     in.TotalAmount,
		DeliveryFee:     in.DeliveryFee,
		Status:          domain.SubscriptionStatusPending,
		PaymentOrderRef: in.PaymentOrderRef,
		Address:         in.Address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		s.logger.Error("create subscription failed",
			ports.String("payment_order_ref", in.PaymentOrderRef),
			ports.Err(err))
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	s.logger.Info("pending subscription created",
		ports.String("subscription_id", sub.ID),
		ports.String("customer_id", customer.ID),
		ports.String("payment_order_ref", in.PaymentOrderRef))
	return sub, nil
}

// Activate marks a pending subscription paid and schedules its first delivery.
// Repeating the call with the same payment is a no-op.
func (s *Service) Activate(ctx context.Context, paymentOrderRef, paymentID string, now time.Time) (*domain.Subscription, error) {
	sub, err := s.store.GetSubscriptionByPaymentRef(ctx, paymentOrderRef)
	if err != nil {
		return nil, fmt.Errorf("get subscription by payment ref: %w", err)
	}

	if sub.IsActive() && sub.PaymentID == paymentID {
		return sub, nil
	}
	if sub.Status != domain.SubscriptionStatusPending {
		return nil, invalidTransition(sub, domain.SubscriptionStatusActive)
	}

	plan, err := schedule.Activate(now, sub.DeliveryDays, sub.Period, s.window)
	if err != nil {
		return nil, fmt.Errorf("plan first delivery: %w", err)
	}

	status := domain.SubscriptionStatusActive
	updated, err := s.store.UpdateSubscription(ctx, sub.ID, domain.SubscriptionPatch{
		Status:              &status,
		NextShippingDate:    &plan.NextShippingDate,
		SubscriptionEndDate: &plan.SubscriptionEndDate,
		PaidAt:              &now,
		PaymentID:           &paymentID,
	})
	if err != nil {
		s.logger.Error("activate subscription failed",
			ports.String("subscription_id", sub.ID),
			ports.Err(err))
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	s.logger.Info("subscription activated",
		ports.String("subscription_id", sub.ID),
		ports.Time("first_shipping_date", plan.NextShippingDate),
		ports.Time("subscription_end_date", plan.SubscriptionEndDate))

	s.notify(ctx, updated, domain.TemplateWelcome, map[string]any{
		"Product":           updated.Product,
		"Quantity":          updated.Quantity,
		"DeliveryDays":      updated.DeliveryDays.String(),
		"Period":            updated.Period,
		"TotalDeliveries":   schedule.TotalAllowed(updated.DeliveryDays.Count(), updated.Period),
		"TotalAmount":       updated.TotalAmount.StringFixed(2),
		"FirstShippingDate": plan.NextShippingDate.Format("Mon, 02 Jan 2006"),
	})

	return updated, nil
}

// Pause holds deliveries without losing the remaining commitment.
// Pausing a paused subscription is a no-op.
func (s *Service) Pause(ctx context.Context, id string, now time.Time) (*domain.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if !sub.IsActive() {
		return nil, domain.NewDomainError(domain.ErrorCodeSubscriptionInvalidTransition,
			"can only pause active subscriptions").
			WithDetail("subscription_id", sub.ID).
			WithDetail("status", string(sub.Status))
	}
	if sub.IsPaused() {
		return sub, nil
	}

	updated, err := s.store.UpdateSubscription(ctx, id, domain.SubscriptionPatch{PausedAt: &now})
	if err != nil {
		s.logger.Error("pause subscription failed",
			ports.String("subscription_id", id),
			ports.Err(err))
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	s.logger.Info("subscription paused",
		ports.String("subscription_id", id))

	s.notify(ctx, updated, domain.TemplatePaused, map[string]any{
		"Product":  updated.Product,
		"PausedAt": now.Format("Mon, 02 Jan 2006"),
	})

	return updated, nil
}

// Resume continues a paused subscription, shifting its schedule by the
// days paused, or reactivates a stopped one from the next orderable day.
func (s *Service) Resume(ctx context.Context, id string, now time.Time) (*domain.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}

	var patch domain.SubscriptionPatch
	switch {
	case sub.IsActive() && sub.IsPaused():
		plan, err := schedule.Resume(schedule.ResumeInput{
			PausedAt:            *sub.PausedAt,
			Now:                 now,
			NextShippingDate:    sub.NextShippingDate,
			SubscriptionEndDate: sub.SubscriptionEndDate,
			Days:                sub.DeliveryDays,
		}, s.window)
		if err != nil {
			return nil, fmt.Errorf("plan resume: %w", err)
		}
		patch = domain.SubscriptionPatch{
			NextShippingDate:    &plan.NextShippingDate,
			SubscriptionEndDate: plan.SubscriptionEndDate,
			ClearPausedAt:       true,
		}
		s.logger.Info("resuming paused subscription",
			ports.String("subscription_id", id),
			ports.Int("paused_days", plan.PausedDays))

	case sub.Status == domain.SubscriptionStatusStopped:
		plan, err := schedule.Activate(now, sub.DeliveryDays, sub.Period, s.window)
		if err != nil {
			return nil, fmt.Errorf("plan restart: %w", err)
		}
		status := domain.SubscriptionStatusActive
		patch = domain.SubscriptionPatch{
			Status:           &status,
			NextShippingDate: &plan.NextShippingDate,
			ClearPausedAt:    true,
		}

	default:
		return nil, invalidTransition(sub, domain.SubscriptionStatusActive)
	}

	updated, err := s.store.UpdateSubscription(ctx, id, patch)
	if err != nil {
		s.logger.Error("resume subscription failed",
			ports.String("subscription_id", id),
			ports.Err(err))
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	s.logger.Info("subscription resumed",
		ports.String("subscription_id", id),
		ports.Time("next_shipping_date", *patch.NextShippingDate))

	s.notify(ctx, updated, domain.TemplateResumed, map[string]any{
		"Product":          updated.Product,
		"NextShippingDate": patch.NextShippingDate.Format("Mon, 02 Jan 2006"),
	})

	return updated, nil
}

// Stop halts deliveries until an explicit resume
func (s *Service) Stop(ctx context.Context, id string, now time.Time) (*domain.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if !schedule.CanTransition(sub.Status, domain.SubscriptionStatusStopped) {
		return nil, invalidTransition(sub, domain.SubscriptionStatusStopped)
	}

	status := domain.SubscriptionStatusStopped
	updated, err := s.store.UpdateSubscription(ctx, id, domain.SubscriptionPatch{
		Status:                &status,
		ClearNextShippingDate: true,
		ClearPausedAt:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	s.logger.Info("subscription stopped",
		ports.String("subscription_id", id),
		ports.Time("stopped_at", now))
	return updated, nil
}

// Cancel ends the subscription permanently
func (s *Service) Cancel(ctx context.Context, id string, reason domain.CancelReason, now time.Time) (*domain.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if !schedule.CanTransition(sub.Status, domain.SubscriptionStatusCancelled) {
		return nil, invalidTransition(sub, domain.SubscriptionStatusCancelled)
	}

	patch := domain.TerminatePatch(reason, now)
	patch.ClearPausedAt = true
	updated, err := s.store.UpdateSubscription(ctx, id, patch)
	if err != nil {
		return nil, fmt.Errorf("update subscription: %w", err)
	}

	s.logger.Info("subscription cancelled",
		ports.String("subscription_id", id),
		ports.String("reason", string(reason)))
	return updated, nil
}

func (s *Service) notify(ctx context.Context, sub *domain.Subscription, kind domain.TemplateKind, data map[string]any) {
	if s.notifier == nil || sub.Customer == nil {
		return
	}
	data["SubscriptionID"] = sub.ID
	if err := s.notifier.Send(ctx, *sub.Customer, kind, data); err != nil {
		s.logger.Warn("notification failed",
			ports.String("subscription_id", sub.ID),
			ports.String("template", string(kind)),
			ports.Err(err))
	}
}

func invalidTransition(sub *domain.Subscription, to domain.SubscriptionStatus) error {
	return domain.NewDomainError(domain.ErrorCodeSubscriptionInvalidTransition,
		fmt.Sprintf("cannot move subscription from %s to %s", sub.Status, to)).
		WithDetail("subscription_id", sub.ID)
}
