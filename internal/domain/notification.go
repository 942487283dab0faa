package domain

// TemplateKind selects the email a customer receives
type TemplateKind string

const (
	TemplateWelcome            TemplateKind = "welcome"
	TemplatePaused             TemplateKind = "paused"
	TemplateResumed            TemplateKind = "resumed"
	TemplateExpired            TemplateKind = "expired"
	TemplateOrderConfirmed     TemplateKind = "order_confirmed"
	TemplateOrderStatusChanged TemplateKind = "order_status_changed"
)

// AllTemplateKinds lists every kind a notifier must be able to render
func AllTemplateKinds() []TemplateKind {
	return []TemplateKind{
		TemplateWelcome,
		TemplatePaused,
		TemplateResumed,
		TemplateExpired,
		TemplateOrderConfirmed,
		TemplateOrderStatusChanged,
	}
}
