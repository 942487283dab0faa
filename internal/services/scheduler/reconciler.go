package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
	"github.com/kevin07696/subscription-scheduler/internal/schedule"
	"github.com/kevin07696/subscription-scheduler/pkg/observability"
)

// ReconcileError is one repair that could not be made
type ReconcileError struct {
	SubscriptionID string `json:"subscription_id"`
	BackendOrderID string `json:"backend_order_id,omitempty"`
	Error          string `json:"error"`
}

// ReconcileReport summarises a reconciliation sweep
type ReconcileReport struct {
	Since                   time.Time        `json:"since"`
	Now                     time.Time        `json:"now"`
	Errors                  []ReconcileError `json:"errors"`
	BackendOrders           int              `json:"backend_orders"`
	OrdersRestored          int              `json:"orders_restored"`
	SubscriptionsAdvanced   int              `json:"subscriptions_advanced"`
	SubscriptionsTerminated int              `json:"subscriptions_terminated"`
}

// Reconciler repairs the gap left when a pass dies between placing a
// backend order and finishing its local bookkeeping
type Reconciler struct {
	store   ports.Store
	backend ports.OrderBackend
	logger  ports.Logger
}

// NewReconciler creates a new Reconciler
func NewReconciler(store ports.Store, backend ports.OrderBackend, logger ports.Logger) *Reconciler {
	return &Reconciler{store: store, backend: backend, logger: logger}
}

// Reconcile restores local records for backend orders created since the
// given time, then finishes the date advancement of the subscriptions those
// orders belong to when their current shipping date already has an order.
func (r *Reconciler) Reconcile(ctx context.Context, since, now time.Time) (*ReconcileReport, error) {
	report := &ReconcileReport{
		Since:  since,
		Now:    now,
		Errors: make([]ReconcileError, 0),
	}

	backendOrders, err := r.backend.ListOrders(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("list backend orders: %w", err)
	}
	report.BackendOrders = len(backendOrders)

	for _, bo := range backendOrders {
		restored, err := r.restoreOrder(ctx, bo, now)
		if err != nil {
			report.Errors = append(report.Errors, ReconcileError{
				SubscriptionID: bo.SubscriptionID,
				BackendOrderID: bo.BackendOrderID,
				Error:          err.Error(),
			})
			r.logger.Error("restore order failed",
				ports.String("subscription_id", bo.SubscriptionID),
				ports.String("backend_order_id", bo.BackendOrderID),
				ports.Err(err))
			continue
		}
		if restored {
			report.OrdersRestored++
			observability.RecordReconciliation("order_restored")
		}
	}

	for _, id := range orderedSubscriptionIDs(backendOrders) {
		action, err := r.completeAdvancement(ctx, id, now)
		if err != nil {
			report.Errors = append(report.Errors, ReconcileError{
				SubscriptionID: id,
				Error:          err.Error(),
			})
			r.logger.Error("complete advancement failed",
				ports.String("subscription_id", id),
				ports.Err(err))
			continue
		}
		switch action {
		case "subscription_advanced":
			report.SubscriptionsAdvanced++
		case "subscription_terminated":
			report.SubscriptionsTerminated++
		default:
			continue
		}
		observability.RecordReconciliation(action)
	}

	r.logger.Info("reconciliation completed",
		ports.Int("backend_orders", report.BackendOrders),
		ports.Int("orders_restored", report.OrdersRestored),
		ports.Int("subscriptions_advanced", report.SubscriptionsAdvanced),
		ports.Int("subscriptions_terminated", report.SubscriptionsTerminated),
		ports.Int("errors", len(report.Errors)))

	return report, nil
}

func (r *Reconciler) restoreOrder(ctx context.Context, bo domain.BackendOrder, now time.Time) (bool, error) {
	if bo.SubscriptionID == "" || bo.ShippingDate.IsZero() {
		return false, nil
	}

	_, err := r.store.GetOrderByBackendID(ctx, bo.BackendOrderID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrOrderNotFound) {
		return false, fmt.Errorf("get order by backend id: %w", err)
	}

	existing, err := r.store.FindOrder(ctx, bo.SubscriptionID, bo.ShippingDate)
	if err != nil {
		return false, fmt.Errorf("find order: %w", err)
	}
	if existing != nil {
		r.logger.Warn("backend holds a second order for a recorded shipping date",
			ports.String("subscription_id", bo.SubscriptionID),
			ports.String("backend_order_id", bo.BackendOrderID),
			ports.String("recorded_backend_order_id", existing.BackendOrderID))
		return false, nil
	}

	sub, err := r.store.GetSubscription(ctx, bo.SubscriptionID)
	if err != nil {
		return false, fmt.Errorf("get subscription: %w", err)
	}

	address := bo.Address
	if address == (domain.Address{}) {
		address = sub.Address
	}

	createdAt := bo.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	err = r.store.CreateOrder(ctx, &domain.DeliveryOrder{
		ID:              uuid.New().String(),
		SubscriptionID:  sub.ID,
		ShippingDate:    bo.ShippingDate,
		BackendOrderID:  bo.BackendOrderID,
		BackendOrderRef: bo.BackendOrderRef,
		Status:          domain.OrderStatusCreated,
		ShippingAddress: address,
		BillingAddress:  address,
		CreatedAt:       createdAt,
		UpdatedAt:       now,
	})
	if errors.Is(err, domain.ErrDuplicateOrder) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create order: %w", err)
	}

	r.logger.Info("restored missing delivery order",
		ports.String("subscription_id", sub.ID),
		ports.String("backend_order_id", bo.BackendOrderID),
		ports.Time("shipping_date", bo.ShippingDate))
	return true, nil
}

// orderedSubscriptionIDs lists the distinct subscriptions named by orders, first seen first
func orderedSubscriptionIDs(orders []domain.BackendOrder) []string {
	seen := make(map[string]struct{}, len(orders))
	ids := make([]string, 0, len(orders))
	for _, bo := range orders {
		if bo.SubscriptionID == "" {
			continue
		}
		if _, ok := seen[bo.SubscriptionID]; ok {
			continue
		}
		seen[bo.SubscriptionID] = struct{}{}
		ids = append(ids, bo.SubscriptionID)
	}
	return ids
}

func (r *Reconciler) completeAdvancement(ctx context.Context, subscriptionID string, now time.Time) (string, error) {
	sub, err := r.store.GetSubscription(ctx, subscriptionID)
	if errors.Is(err, domain.ErrSubscriptionNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get subscription: %w", err)
	}
	if sub.NextShippingDate == nil || sub.IsPaused() || !sub.IsActive() {
		return "", nil
	}
	shippingDate := *sub.NextShippingDate

	order, err := r.store.FindOrder(ctx, sub.ID, shippingDate)
	if err != nil {
		return "", fmt.Errorf("find order: %w", err)
	}
	if order == nil {
		return "", nil
	}

	count, err := r.store.CountOrders(ctx, sub.ID)
	if err != nil {
		return "", fmt.Errorf("count orders: %w", err)
	}

	followUp, err := schedule.AfterOrder(sub, shippingDate, count)
	if err != nil {
		return "", err
	}

	if followUp.Terminate {
		if _, err := r.store.UpdateSubscription(ctx, sub.ID, domain.TerminatePatch(followUp.Reason, now)); err != nil {
			return "", fmt.Errorf("terminate subscription: %w", err)
		}
		r.logger.Info("reconciliation terminated subscription",
			ports.String("subscription_id", sub.ID),
			ports.String("reason", string(followUp.Reason)))
		return "subscription_terminated", nil
	}

	next := followUp.NextShippingDate
	if _, err := r.store.UpdateSubscription(ctx, sub.ID, domain.SubscriptionPatch{NextShippingDate: &next}); err != nil {
		return "", fmt.Errorf("advance shipping date: %w", err)
	}
	r.logger.Info("reconciliation advanced shipping date",
		ports.String("subscription_id", sub.ID),
		ports.Time("next_shipping_date", next))
	return "subscription_advanced", nil
}
