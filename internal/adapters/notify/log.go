package notify

import (
	"context"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
)

// LogNotifier records notifications in the log instead of sending them.
// Used when no mail transport is configured.
type LogNotifier struct {
	logger ports.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger ports.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send logs the notification
func (n *LogNotifier) Send(_ context.Context, customer domain.Customer, kind domain.TemplateKind, _ map[string]any) error {
	n.logger.Info("notification (not sent)",
		ports.String("template", string(kind)),
		ports.String("customer_id", customer.ID))
	return nil
}
