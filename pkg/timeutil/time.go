package timeutil

import "time"

// Now returns the current time in UTC
// Always use this instead of time.Now() to ensure timezone consistency
func Now() time.Time {
	return time.Now().UTC()
}

// ParseDate parses a date string and returns a UTC time
func ParseDate(layout, value string) (time.Time, error) {
	t, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// StartOfDay returns the start of the day (midnight) in UTC
func StartOfDay(t time.Time) time.Time {
	year, month, day := t.UTC().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day is one calendar day of elapsed time
const Day = 24 * time.Hour

// CeilDays returns the number of whole days in d, rounding any remainder up.
// Negative and zero durations return 0.
func CeilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	days := int(d / Day)
	if d%Day != 0 {
		days++
	}
	return days
}

// AddDays shifts t by n calendar days, keeping the time of day
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}
