package schedule

import "time"

const (
	DefaultLeadTime       = 24 * time.Hour
	DefaultMondayLeadTime = 48 * time.Hour
	DefaultTolerance      = 30 * time.Second
)

// OrderWindow decides when an order for a shipping date may be placed.
// The window opens LeadTime before the shipping date (MondayLeadTime for
// Monday deliveries) and stays open for Tolerance.
type OrderWindow struct {
	LeadTime       time.Duration
	MondayLeadTime time.Duration
	Tolerance      time.Duration
}

// DefaultOrderWindow returns the 24h/48h-Monday lead with a 30s tolerance
func DefaultOrderWindow() OrderWindow {
	return OrderWindow{
		LeadTime:       DefaultLeadTime,
		MondayLeadTime: DefaultMondayLeadTime,
		Tolerance:      DefaultTolerance,
	}
}

// LeadTimeFor returns the lead time that applies to shippingDate
func (w OrderWindow) LeadTimeFor(shippingDate time.Time) time.Duration {
	if shippingDate.Weekday() == time.Monday {
		return w.MondayLeadTime
	}
	return w.LeadTime
}

// OrderCreateTime is the instant the window opens
func (w OrderWindow) OrderCreateTime(shippingDate time.Time) time.Time {
	return shippingDate.Add(-w.LeadTimeFor(shippingDate))
}

// ShouldCreateOrder reports whether orderCreateTime <= now <= orderCreateTime+Tolerance
func (w OrderWindow) ShouldCreateOrder(shippingDate, now time.Time) bool {
	opens := w.OrderCreateTime(shippingDate)
	return !now.Before(opens) && !now.After(opens.Add(w.Tolerance))
}

// Missed reports whether the window for shippingDate has already closed
func (w OrderWindow) Missed(shippingDate, now time.Time) bool {
	return now.After(w.OrderCreateTime(shippingDate).Add(w.Tolerance))
}
