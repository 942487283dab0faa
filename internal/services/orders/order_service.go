package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// Service tracks fulfillment progress of placed delivery orders
type Service struct {
	store    ports.Store
	notifier ports.Notifier
	logger   ports.Logger
}

// NewService creates a new order status service
func NewService(store ports.Store, notifier ports.Notifier, logger ports.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// UpdateStatus moves the order identified by its backend id to status and
// tells the customer. Repeating the current status is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, backendOrderID string, status domain.OrderStatus, now time.Time) (*domain.DeliveryOrder, error) {
	if !status.IsValid() {
		return nil, domain.NewDomainError(domain.ErrorCodeOrderInvalidTransition,
			fmt.Sprintf("unknown order status %q", status))
	}

	order, err := s.store.GetOrderByBackendID(ctx, backendOrderID)
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}

	if order.Status == status {
		return order, nil
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, domain.NewDomainError(domain.ErrorCodeOrderInvalidTransition,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, status)).
			WithDetail("backend_order_id", backendOrderID)
	}

	if err := s.store.UpdateOrderStatus(ctx, order.ID, status, now); err != nil {
		s.logger.Error("update order status failed",
			ports.String("order_id", order.ID),
			ports.String("status", string(status)),
			ports.Err(err))
		return nil, fmt.Errorf("update order status: %w", err)
	}

	previous := order.Status
	order.Status = status
	order.UpdatedAt = now

	s.logger.Info("order status updated",
		ports.String("order_id", order.ID),
		ports.String("backend_order_id", backendOrderID),
		ports.String("from", string(previous)),
		ports.String("to", string(status)))

	s.notify(ctx, order)
	return order, nil
}

func (s *Service) notify(ctx context.Context, order *domain.DeliveryOrder) {
	if s.notifier == nil {
		return
	}

	sub, err := s.store.GetSubscription(ctx, order.SubscriptionID)
	if err != nil || sub.Customer == nil {
		s.logger.Warn("order status notification skipped",
			ports.String("order_id", order.ID),
			ports.Err(err))
		return
	}

	err = s.notifier.Send(ctx, *sub.Customer, domain.TemplateOrderStatusChanged, map[string]any{
		"SubscriptionID": sub.ID,
		"Product":        sub.Product,
		"OrderRef":       order.BackendOrderRef,
		"Status":         string(order.Status),
		"ShippingDate":   order.ShippingDate.Format("Mon, 02 Jan 2006"),
	})
	if err != nil {
		s.logger.Warn("notification failed",
			ports.String("order_id", order.ID),
			ports.String("template", string(domain.TemplateOrderStatusChanged)),
			ports.Err(err))
	}
}
