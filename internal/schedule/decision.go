package schedule

import (
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
)

// Action is what the runner should do with a subscription this pass
type Action int

const (
	ActionSkip Action = iota
	ActionExpire
	ActionPlaceOrder
)

func (a Action) String() string {
	switch a {
	case ActionExpire:
		return "expire"
	case ActionPlaceOrder:
		return "place_order"
	default:
		return "skip"
	}
}

// Skip reasons
const (
	ReasonPaused         = "paused"
	ReasonTerminal       = "terminal"
	ReasonNotActive      = "not_active"
	ReasonNoShippingDate = "no_shipping_date"
	ReasonNotDue         = "not_due"
	ReasonWindowMissed   = "window_missed"
)

// Decision is the pure outcome of Decide. ShippingDate is set for ActionPlaceOrder.
type Decision struct {
	ShippingDate time.Time
	Reason       string
	Action       Action
}

// Decide classifies a subscription for the current pass. The checks run in
// order: terminal, not active, paused, expired, unscheduled, order window.
func Decide(sub *domain.Subscription, now time.Time, window OrderWindow) Decision {
	switch {
	case sub.IsTerminal():
		return Decision{Action: ActionSkip, Reason: ReasonTerminal}
	case !sub.IsActive():
		return Decision{Action: ActionSkip, Reason: ReasonNotActive}
	case sub.IsPaused():
		return Decision{Action: ActionSkip, Reason: ReasonPaused}
	case sub.IsExpired(now):
		return Decision{Action: ActionExpire, Reason: string(domain.CancelReasonExpired)}
	case sub.NextShippingDate == nil:
		return Decision{Action: ActionSkip, Reason: ReasonNoShippingDate}
	}

	shippingDate := *sub.NextShippingDate
	if window.ShouldCreateOrder(shippingDate, now) {
		return Decision{Action: ActionPlaceOrder, ShippingDate: shippingDate}
	}
	if window.Missed(shippingDate, now) {
		return Decision{Action: ActionSkip, Reason: ReasonWindowMissed, ShippingDate: shippingDate}
	}
	return Decision{Action: ActionSkip, Reason: ReasonNotDue, ShippingDate: shippingDate}
}

// FollowUp is what happens to a subscription after an order for
// shippingDate has been recorded
type FollowUp struct {
	NextShippingDate time.Time
	Reason           domain.CancelReason
	Terminate        bool
}

// AfterOrder terminates the subscription when its quota is used up or the
// order just placed reaches the end date. Otherwise it advances to the next
// delivery day after shippingDate.
func AfterOrder(sub *domain.Subscription, shippingDate time.Time, ordersCreated int) (FollowUp, error) {
	if IsExhausted(sub.DeliveryDays.Count(), sub.Period, ordersCreated) {
		return FollowUp{Terminate: true, Reason: domain.CancelReasonQuotaExhausted}, nil
	}
	if sub.SubscriptionEndDate != nil && !shippingDate.Before(*sub.SubscriptionEndDate) {
		return FollowUp{Terminate: true, Reason: domain.CancelReasonExpired}, nil
	}

	next, err := NextQualifyingDate(shippingDate, sub.DeliveryDays, false)
	if err != nil {
		return FollowUp{}, err
	}
	return FollowUp{NextShippingDate: next}, nil
}

// AfterMissed skips a delivery whose order window closed without an order.
// The subscription moves to the first later delivery day that can still be
// ordered, and terminates as expired when that day falls past the end date.
func AfterMissed(sub *domain.Subscription, missed, now time.Time, window OrderWindow) (FollowUp, error) {
	next, err := NextQualifyingDate(missed, sub.DeliveryDays, false)
	if err != nil {
		return FollowUp{}, err
	}
	next, err = firstOrderable(next, now, sub.DeliveryDays, window)
	if err != nil {
		return FollowUp{}, err
	}
	if sub.SubscriptionEndDate != nil && next.After(*sub.SubscriptionEndDate) {
		return FollowUp{Terminate: true, Reason: domain.CancelReasonExpired}, nil
	}
	return FollowUp{NextShippingDate: next}, nil
}
