package schedule

import (
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/pkg/timeutil"
)

var transitions = map[domain.SubscriptionStatus][]domain.SubscriptionStatus{
	domain.SubscriptionStatusPending: {domain.SubscriptionStatusActive, domain.SubscriptionStatusCancelled},
	domain.SubscriptionStatusActive:  {domain.SubscriptionStatusStopped, domain.SubscriptionStatusCancelled},
	domain.SubscriptionStatusStopped: {domain.SubscriptionStatusActive, domain.SubscriptionStatusCancelled},
}

// CanTransition reports whether a subscription may move from one status to another.
// Cancelled is terminal.
func CanTransition(from, to domain.SubscriptionStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsPaused reports whether deliveries are on hold
func IsPaused(sub *domain.Subscription) bool {
	return sub.IsPaused()
}

// IsTerminal reports whether the subscription can no longer change
func IsTerminal(sub *domain.Subscription) bool {
	return sub.IsTerminal()
}

// Expired reports whether the end date has been reached
func Expired(sub *domain.Subscription, now time.Time) bool {
	return sub.IsExpired(now)
}

// ResumeInput carries the paused subscription's schedule
type ResumeInput struct {
	PausedAt            time.Time
	Now                 time.Time
	NextShippingDate    *time.Time
	SubscriptionEndDate *time.Time
	Days                domain.DeliveryDays
}

// ResumePlan is the schedule after resuming
type ResumePlan struct {
	NextShippingDate    time.Time
	SubscriptionEndDate *time.Time
	PausedDays          int
}

// Resume shifts the end date and the next shipping date forward by the
// number of days paused (rounded up), then realigns the shipping date to a
// delivery day on or after the shifted date. If the realigned date's order
// window has already closed it moves to the next delivery day that can still
// be ordered.
func Resume(in ResumeInput, window OrderWindow) (ResumePlan, error) {
	pausedDays := timeutil.CeilDays(in.Now.Sub(in.PausedAt))

	plan := ResumePlan{PausedDays: pausedDays}
	if in.SubscriptionEndDate != nil {
		end := timeutil.AddDays(*in.SubscriptionEndDate, pausedDays)
		plan.SubscriptionEndDate = &end
	}

	provisional := timeutil.StartOfDay(in.Now)
	if in.NextShippingDate != nil {
		provisional = timeutil.AddDays(*in.NextShippingDate, pausedDays)
	}

	next, err := NextQualifyingDate(provisional, in.Days, true)
	if err != nil {
		return ResumePlan{}, err
	}

	next, err = firstOrderable(next, in.Now, in.Days, window)
	if err != nil {
		return ResumePlan{}, err
	}

	plan.NextShippingDate = next
	return plan, nil
}

// ActivationPlan is the initial schedule of a newly paid subscription
type ActivationPlan struct {
	NextShippingDate    time.Time
	SubscriptionEndDate time.Time
}

// Activate computes the first shipping date whose order window is still
// ahead of now, and an end date period weeks from today.
func Activate(now time.Time, days domain.DeliveryDays, period int, window OrderWindow) (ActivationPlan, error) {
	if days.IsEmpty() || period <= 0 {
		return ActivationPlan{}, domain.NewDomainError(domain.ErrorCodeSubscriptionInvalidConfig,
			"delivery days and period are required").
			WithDetail("delivery_days", days.String()).
			WithDetail("period", period)
	}

	today := timeutil.StartOfDay(now)
	first, err := NextQualifyingDate(today, days, false)
	if err != nil {
		return ActivationPlan{}, err
	}

	first, err = firstOrderable(first, now, days, window)
	if err != nil {
		return ActivationPlan{}, err
	}

	return ActivationPlan{
		NextShippingDate:    first,
		SubscriptionEndDate: timeutil.AddDays(today, 7*period),
	}, nil
}

// firstOrderable advances date over delivery days whose window closed before now
func firstOrderable(date, now time.Time, days domain.DeliveryDays, window OrderWindow) (time.Time, error) {
	for i := 0; window.Missed(date, now); i++ {
		if i >= MaxSearchDays {
			return time.Time{}, domain.NewDomainError(domain.ErrorCodeNoQualifyingDay,
				"no orderable delivery day within search bound")
		}
		next, err := NextQualifyingDate(date, days, false)
		if err != nil {
			return time.Time{}, err
		}
		date = next
	}
	return date, nil
}
