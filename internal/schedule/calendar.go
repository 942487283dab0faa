package schedule

import (
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
)

// MaxSearchDays bounds the forward scan for a qualifying weekday
const MaxSearchDays = 14

// NextQualifyingDate returns the first date after anchor (or on anchor when
// inclusive is set) whose weekday is in days. The anchor's time of day and
// location are kept.
func NextQualifyingDate(anchor time.Time, days domain.DeliveryDays, inclusive bool) (time.Time, error) {
	candidate := anchor
	if !inclusive {
		candidate = anchor.AddDate(0, 0, 1)
	}

	for i := 0; i < MaxSearchDays; i++ {
		if days.Contains(candidate.Weekday()) {
			return candidate, nil
		}
		candidate = candidate.AddDate(0, 0, 1)
	}

	return time.Time{}, domain.NewDomainError(domain.ErrorCodeNoQualifyingDay,
		"no delivery day within search bound").
		WithDetail("anchor", anchor.Format(time.RFC3339)).
		WithDetail("delivery_days", days.String())
}
