package domain

import (
	"fmt"
	"strings"
	"time"
)

// DeliveryDays is the set of weekdays a subscription ships on.
// Bit i is set when time.Weekday(i) is a delivery day.
type DeliveryDays uint8

var weekdayAbbrev = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// NewDeliveryDays builds a set from the given weekdays
func NewDeliveryDays(days ...time.Weekday) DeliveryDays {
	var d DeliveryDays
	for _, day := range days {
		d = d.With(day)
	}
	return d
}

// ParseDeliveryDays parses the stored "Mon,Thu" form.
// Full weekday names are accepted as well, case-insensitively.
func ParseDeliveryDays(s string) (DeliveryDays, error) {
	var d DeliveryDays
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		day, ok := parseWeekday(part)
		if !ok {
			return 0, NewDomainError(ErrorCodeSubscriptionInvalidConfig,
				fmt.Sprintf("unknown delivery day %q", part))
		}
		d = d.With(day)
	}
	if d.IsEmpty() {
		return 0, NewDomainError(ErrorCodeSubscriptionInvalidConfig, "delivery day set is empty")
	}
	return d, nil
}

func parseWeekday(s string) (time.Weekday, bool) {
	for i := time.Sunday; i <= time.Saturday; i++ {
		if strings.EqualFold(s, weekdayAbbrev[i]) || strings.EqualFold(s, i.String()) {
			return i, true
		}
	}
	return 0, false
}

// With returns the set with day added
func (d DeliveryDays) With(day time.Weekday) DeliveryDays {
	if day < time.Sunday || day > time.Saturday {
		return d
	}
	return d | 1<<uint(day)
}

// Contains reports whether day is a delivery day
func (d DeliveryDays) Contains(day time.Weekday) bool {
	if day < time.Sunday || day > time.Saturday {
		return false
	}
	return d&(1<<uint(day)) != 0
}

// Count returns the number of delivery days per week
func (d DeliveryDays) Count() int {
	n := 0
	for i := time.Sunday; i <= time.Saturday; i++ {
		if d.Contains(i) {
			n++
		}
	}
	return n
}

// IsEmpty reports whether no weekday is selected
func (d DeliveryDays) IsEmpty() bool {
	return d&0x7f == 0
}

// Weekdays returns the selected days in Sunday-first order
func (d DeliveryDays) Weekdays() []time.Weekday {
	days := make([]time.Weekday, 0, 7)
	for i := time.Sunday; i <= time.Saturday; i++ {
		if d.Contains(i) {
			days = append(days, i)
		}
	}
	return days
}

// String renders the stored "Mon,Thu" form
func (d DeliveryDays) String() string {
	parts := make([]string, 0, 7)
	for _, day := range d.Weekdays() {
		parts = append(parts, weekdayAbbrev[day])
	}
	return strings.Join(parts, ",")
}

// MarshalText implements encoding.TextMarshaler
func (d DeliveryDays) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (d *DeliveryDays) UnmarshalText(text []byte) error {
	parsed, err := ParseDeliveryDays(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
