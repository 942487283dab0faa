package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
	"github.com/kevin07696/subscription-scheduler/internal/schedule"
	"github.com/kevin07696/subscription-scheduler/pkg/observability"
)

// Config tunes a Runner
type Config struct {
	Window schedule.OrderWindow
	// Horizon widens FindDueSubscriptions past now. It must cover the
	// longest lead time.
	Horizon time.Duration
	// LockTTL bounds how long one subscription stays locked if a runner dies
	LockTTL     time.Duration
	Concurrency int
	// ReconcileLookback enables a reconciliation sweep before each pass
	ReconcileLookback time.Duration
}

// DefaultConfig returns the 24h/48h window with a 30s tolerance, sequential processing
func DefaultConfig() Config {
	return Config{
		Window:      schedule.DefaultOrderWindow(),
		Horizon:     72 * time.Hour,
		LockTTL:     2 * time.Minute,
		Concurrency: 1,
	}
}

// Runner executes scheduler passes
type Runner struct {
	store      ports.Store
	backend    ports.OrderBackend
	notifier   ports.Notifier
	locker     ports.Locker
	reconciler *Reconciler
	logger     ports.Logger
	cfg        Config
}

// Option configures optional Runner collaborators
type Option func(*Runner)

// WithLocker guards each subscription with a lock during order placement
func WithLocker(l ports.Locker) Option {
	return func(r *Runner) { r.locker = l }
}

// WithReconciler runs rec before each pass when Config.ReconcileLookback is set
func WithReconciler(rec *Reconciler) Option {
	return func(r *Runner) { r.reconciler = rec }
}

// NewRunner creates a new scheduler runner
func NewRunner(
	store ports.Store,
	backend ports.OrderBackend,
	notifier ports.Notifier,
	logger ports.Logger,
	cfg Config,
	opts ...Option,
) *Runner {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	r := &Runner{
		store:    store,
		backend:  backend,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce performs one pass over the due subscriptions. Per-subscription
// failures are recorded in the report; only a failure to load the batch
// is returned as an error.
func (r *Runner) RunOnce(ctx context.Context, now time.Time) (*RunReport, error) {
	report := &RunReport{
		RunID: uuid.New().String(),
		Now:   now,
		Items: make([]ItemResult, 0),
	}

	if r.reconciler != nil && r.cfg.ReconcileLookback > 0 {
		if _, err := r.reconciler.Reconcile(ctx, now.Add(-r.cfg.ReconcileLookback), now); err != nil {
			// the de-dup check below trusts reconciled records
			return nil, fmt.Errorf("reconcile before run: %w", err)
		}
	}

	subs, err := r.store.FindDueSubscriptions(ctx, now, r.cfg.Horizon)
	if err != nil {
		return nil, fmt.Errorf("find due subscriptions: %w", err)
	}

	r.logger.Info("scheduler pass started",
		ports.String("run_id", report.RunID),
		ports.Time("now", now),
		ports.Int("candidates", len(subs)))

	results := make([]ItemResult, len(subs))
	if r.cfg.Concurrency == 1 {
		for i, sub := range subs {
			results[i] = r.process(ctx, sub, now)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(r.cfg.Concurrency)
		for i, sub := range subs {
			g.Go(func() error {
				results[i] = r.process(ctx, sub, now)
				return nil
			})
		}
		_ = g.Wait()
	}

	for _, item := range results {
		report.add(item)
		observability.RecordSubscriptionOutcome(string(item.Outcome), item.Reason)
	}

	r.logger.Info("scheduler pass completed",
		ports.String("run_id", report.RunID),
		ports.Int("processed", report.Processed),
		ports.Int("created", report.Created),
		ports.Int("skipped", report.Skipped),
		ports.Int("terminated", report.Terminated),
		ports.Int("expired", report.Expired),
		ports.Int("errored", report.Errored))

	return report, nil
}

// process never panics the batch; a panic in one item becomes an errored result
func (r *Runner) process(ctx context.Context, sub *domain.Subscription, now time.Time) (result ItemResult) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("panic while processing subscription",
				ports.String("subscription_id", sub.ID),
				ports.String("panic", fmt.Sprint(p)))
			result = ItemResult{
				SubscriptionID: sub.ID,
				Outcome:        OutcomeErrored,
				Reason:         ReasonScheduleFailed,
				Error:          fmt.Sprint(p),
			}
		}
	}()

	decision := schedule.Decide(sub, now, r.cfg.Window)
	switch decision.Action {
	case schedule.ActionExpire:
		return r.expire(ctx, sub, now)
	case schedule.ActionPlaceOrder:
		return r.placeOrder(ctx, sub, decision.ShippingDate, now)
	}

	if decision.Reason == schedule.ReasonWindowMissed {
		return r.skipMissed(ctx, sub, decision.ShippingDate, now)
	}
	return ItemResult{SubscriptionID: sub.ID, Outcome: OutcomeSkipped, Reason: decision.Reason}
}

// lock guards sub for the rest of the step. A non-nil result means the
// subscription is left alone this pass.
func (r *Runner) lock(ctx context.Context, sub *domain.Subscription, date *time.Time) (func(), *ItemResult) {
	if r.locker == nil {
		return func() {}, nil
	}
	release, err := r.locker.TryLock(ctx, lockKey(sub.ID), r.cfg.LockTTL)
	if errors.Is(err, ports.ErrLockHeld) {
		return nil, &ItemResult{SubscriptionID: sub.ID, Outcome: OutcomeSkipped, Reason: ReasonInFlight, ShippingDate: date}
	}
	if err != nil {
		result := r.failed(sub, date, ReasonLockFailed, fmt.Errorf("acquire lock: %w", err))
		return nil, &result
	}
	return release, nil
}

// skipMissed moves a subscription past a delivery whose window closed.
// A delivery that was ordered after all only has its advancement finished.
func (r *Runner) skipMissed(ctx context.Context, sub *domain.Subscription, missed, now time.Time) ItemResult {
	date := missed

	release, held := r.lock(ctx, sub, &date)
	if held != nil {
		return *held
	}
	defer release()

	existing, err := r.store.FindOrder(ctx, sub.ID, missed)
	if err != nil {
		return r.failed(sub, &date, ReasonStoreFailed, fmt.Errorf("find order: %w", err))
	}
	if existing != nil {
		return r.completeOrdered(ctx, sub, &date, now)
	}

	r.logger.Warn("order window missed",
		ports.String("subscription_id", sub.ID),
		ports.Time("shipping_date", missed),
		ports.Time("window_opened", r.cfg.Window.OrderCreateTime(missed)))

	followUp, err := schedule.AfterMissed(sub, missed, now, r.cfg.Window)
	if err != nil {
		return r.failed(sub, &date, ReasonScheduleFailed, fmt.Errorf("skip missed delivery: %w", err))
	}
	if followUp.Terminate {
		return r.terminate(ctx, sub, &date, followUp.Reason, now, ItemResult{})
	}

	next := followUp.NextShippingDate
	if _, err := r.store.UpdateSubscription(ctx, sub.ID, domain.SubscriptionPatch{NextShippingDate: &next}); err != nil {
		return r.failed(sub, &date, ReasonStoreFailed, fmt.Errorf("skip missed delivery: %w", err))
	}

	r.logger.Info("missed delivery skipped",
		ports.String("subscription_id", sub.ID),
		ports.Time("next_shipping_date", next))

	return ItemResult{SubscriptionID: sub.ID, Outcome: OutcomeSkipped, Reason: schedule.ReasonWindowMissed, ShippingDate: &date}
}

// completeOrdered finishes a step whose order was recorded by an earlier
// pass that failed before moving the subscription on
func (r *Runner) completeOrdered(ctx context.Context, sub *domain.Subscription, date *time.Time, now time.Time) ItemResult {
	count, err := r.store.CountOrders(ctx, sub.ID)
	if err != nil {
		return r.failed(sub, date, ReasonStoreFailed, fmt.Errorf("count orders: %w", err))
	}
	return r.advance(ctx, sub, date, count, now, ItemResult{
		SubscriptionID: sub.ID,
		Outcome:        OutcomeSkipped,
		Reason:         ReasonAlreadyOrdered,
		ShippingDate:   date,
	})
}

// advance applies the follow-up of an order recorded for date. done is the
// result when the subscription moves on to its next delivery.
func (r *Runner) advance(ctx context.Context, sub *domain.Subscription, date *time.Time, ordersCreated int, now time.Time, done ItemResult) ItemResult {
	followUp, err := schedule.AfterOrder(sub, *date, ordersCreated)
	if err != nil {
		result := r.failed(sub, date, ReasonScheduleFailed, fmt.Errorf("next shipping date: %w", err))
		result.OrderPlaced = done.OrderPlaced
		result.BackendOrderID = done.BackendOrderID
		return result
	}
	if followUp.Terminate {
		return r.terminate(ctx, sub, date, followUp.Reason, now, done)
	}

	next := followUp.NextShippingDate
	if _, err := r.store.UpdateSubscription(ctx, sub.ID, domain.SubscriptionPatch{NextShippingDate: &next}); err != nil {
		result := r.failed(sub, date, ReasonStoreFailed, fmt.Errorf("advance shipping date: %w", err))
		result.OrderPlaced = done.OrderPlaced
		result.BackendOrderID = done.BackendOrderID
		return result
	}

	r.logger.Info("next shipping date set",
		ports.String("subscription_id", sub.ID),
		ports.Time("next_shipping_date", next))
	return done
}

func (r *Runner) expire(ctx context.Context, sub *domain.Subscription, now time.Time) ItemResult {
	if _, err := r.store.UpdateSubscription(ctx, sub.ID, domain.TerminatePatch(domain.CancelReasonExpired, now)); err != nil {
		return r.failed(sub, nil, ReasonStoreFailed, fmt.Errorf("expire subscription: %w", err))
	}

	r.logger.Info("subscription expired",
		ports.String("subscription_id", sub.ID))
	r.notify(ctx, sub, domain.TemplateExpired, map[string]any{
		"SubscriptionID": sub.ID,
		"Product":        sub.Product,
	})

	return ItemResult{SubscriptionID: sub.ID, Outcome: OutcomeExpired, Reason: string(domain.CancelReasonExpired)}
}

func (r *Runner) placeOrder(ctx context.Context, sub *domain.Subscription, shippingDate, now time.Time) ItemResult {
	date := shippingDate

	release, held := r.lock(ctx, sub, &date)
	if held != nil {
		return *held
	}
	defer release()

	existing, err := r.store.FindOrder(ctx, sub.ID, shippingDate)
	if err != nil {
		return r.failed(sub, &date, ReasonStoreFailed, fmt.Errorf("find order: %w", err))
	}
	if existing != nil {
		return r.completeOrdered(ctx, sub, &date, now)
	}

	count, err := r.store.CountOrders(ctx, sub.ID)
	if err != nil {
		return r.failed(sub, &date, ReasonStoreFailed, fmt.Errorf("count orders: %w", err))
	}
	if schedule.IsExhausted(sub.DeliveryDays.Count(), sub.Period, count) {
		return r.terminate(ctx, sub, &date, domain.CancelReasonQuotaExhausted, now, ItemResult{})
	}

	placed, err := r.backend.PlaceOrder(ctx, buildOrderRequest(sub, shippingDate))
	if err != nil {
		return r.failed(sub, &date, ReasonBackendFailed, fmt.Errorf("place order: %w", err))
	}

	order := &domain.DeliveryOrder{
		ID:              uuid.New().String(),
		SubscriptionID:  sub.ID,
		ShippingDate:    shippingDate,
		BackendOrderID:  placed.BackendOrderID,
		BackendOrderRef: placed.BackendOrderRef,
		Status:          domain.OrderStatusCreated,
		ShippingAddress: sub.Address,
		BillingAddress:  sub.Address,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := r.store.CreateOrder(ctx, order); err != nil {
		reason := ReasonRecordFailed
		if errors.Is(err, domain.ErrDuplicateOrder) {
			reason = ReasonDuplicateOrder
		}
		// The backend order exists without a local record; reconciliation restores it
		r.logger.Error("backend order placed but not recorded",
			ports.String("subscription_id", sub.ID),
			ports.String("backend_order_id", placed.BackendOrderID),
			ports.Time("shipping_date", shippingDate),
			ports.Err(err))
		result := r.failed(sub, &date, reason, fmt.Errorf("record order: %w", err))
		result.BackendOrderID = placed.BackendOrderID
		return result
	}

	r.logger.Info("delivery order created",
		ports.String("subscription_id", sub.ID),
		ports.String("backend_order_id", placed.BackendOrderID),
		ports.Time("shipping_date", shippingDate))

	r.notify(ctx, sub, domain.TemplateOrderConfirmed, map[string]any{
		"SubscriptionID":  sub.ID,
		"Product":         sub.Product,
		"Quantity":        sub.Quantity,
		"ShippingDate":    shippingDate.Format("Mon, 02 Jan 2006"),
		"BackendOrderRef": placed.BackendOrderRef,
	})

	return r.advance(ctx, sub, &date, count+1, now, ItemResult{
		SubscriptionID: sub.ID,
		Outcome:        OutcomeCreated,
		ShippingDate:   &date,
		BackendOrderID: placed.BackendOrderID,
		OrderPlaced:    true,
	})
}

// terminate cancels the subscription. base carries order fields when an
// order was placed in the same step.
func (r *Runner) terminate(ctx context.Context, sub *domain.Subscription, date *time.Time, reason domain.CancelReason, now time.Time, base ItemResult) ItemResult {
	if _, err := r.store.UpdateSubscription(ctx, sub.ID, domain.TerminatePatch(reason, now)); err != nil {
		result := r.failed(sub, date, ReasonStoreFailed, fmt.Errorf("terminate subscription: %w", err))
		result.OrderPlaced = base.OrderPlaced
		result.BackendOrderID = base.BackendOrderID
		return result
	}

	r.logger.Info("subscription terminated",
		ports.String("subscription_id", sub.ID),
		ports.String("reason", string(reason)))

	if reason == domain.CancelReasonExpired {
		r.notify(ctx, sub, domain.TemplateExpired, map[string]any{
			"SubscriptionID": sub.ID,
			"Product":        sub.Product,
		})
	}

	base.SubscriptionID = sub.ID
	base.Outcome = OutcomeTerminated
	base.Reason = string(reason)
	base.ShippingDate = date
	return base
}

func (r *Runner) failed(sub *domain.Subscription, date *time.Time, reason string, err error) ItemResult {
	r.logger.Error("scheduling failed for subscription",
		ports.String("subscription_id", sub.ID),
		ports.String("customer_id", sub.CustomerID),
		ports.String("reason", reason),
		ports.Err(err))

	return ItemResult{
		SubscriptionID: sub.ID,
		Outcome:        OutcomeErrored,
		Reason:         reason,
		ShippingDate:   date,
		Error:          err.Error(),
		Retriable:      domain.IsRetriable(err),
	}
}

// notify is best-effort; failures are logged and dropped
func (r *Runner) notify(ctx context.Context, sub *domain.Subscription, kind domain.TemplateKind, data map[string]any) {
	if r.notifier == nil || sub.Customer == nil {
		return
	}
	if err := r.notifier.Send(ctx, *sub.Customer, kind, data); err != nil {
		r.logger.Warn("notification failed",
			ports.String("subscription_id", sub.ID),
			ports.String("template", string(kind)),
			ports.Err(err))
	}
}

func lockKey(subscriptionID string) string {
	return "scheduler:subscription:" + subscriptionID
}

func buildOrderRequest(sub *domain.Subscription, shippingDate time.Time) *domain.OrderRequest {
	req := &domain.OrderRequest{
		ShippingDate:   shippingDate,
		Address:        sub.Address,
		SubscriptionID: sub.ID,
		Product:        sub.Product,
		VariantID:      sub.VariantID,
		Quantity:       sub.Quantity,
		DeliveryDays:   sub.DeliveryDays.String(),
		IdempotencyKey: domain.OrderIdempotencyKey(sub.ID, shippingDate),
	}
	if sub.Customer != nil {
		req.Customer = *sub.Customer
	}
	return req
}
