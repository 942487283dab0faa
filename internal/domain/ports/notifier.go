package ports

import (
	"context"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
)

// Notifier delivers customer emails. Callers treat failures as best-effort.
type Notifier interface {
	Send(ctx context.Context, customer domain.Customer, kind domain.TemplateKind, data map[string]any) error
}
