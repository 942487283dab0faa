package ports

import (
	"context"
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
)

// OrderBackend places commerce orders.
// Errors are *domain.DomainError with code BACKEND_TRANSIENT or BACKEND_REJECTED.
type OrderBackend interface {
	PlaceOrder(ctx context.Context, req *domain.OrderRequest) (*domain.PlacedOrder, error)

	// ListOrders returns orders created at or after since that carry
	// subscription attributes. Used by reconciliation.
	ListOrders(ctx context.Context, since time.Time) ([]domain.BackendOrder, error)
}
