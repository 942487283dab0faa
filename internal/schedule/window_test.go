package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOrderWindow_ShouldCreateOrder(t *testing.T) {
	w := DefaultOrderWindow()
	thursday := day(5)
	monday := day(9)

	tests := []struct {
		name         string
		shippingDate time.Time
		now          time.Time
		expected     bool
		missed       bool
	}{
		{"thursday exactly 24h before", thursday, thursday.Add(-24 * time.Hour), true, false},
		{"thursday at end of tolerance", thursday, thursday.Add(-24*time.Hour + 30*time.Second), true, false},
		{"thursday just past tolerance", thursday, thursday.Add(-24*time.Hour + 31*time.Second), false, true},
		{"thursday one second early", thursday, thursday.Add(-24*time.Hour - time.Second), false, false},
		{"monday 24h before is not the window", monday, monday.Add(-24 * time.Hour), false, true},
		{"monday exactly 48h before", monday, monday.Add(-48 * time.Hour), true, false},
		{"monday 47h before", monday, monday.Add(-47 * time.Hour), false, true},
		{"monday three days before", monday, monday.Add(-72 * time.Hour), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, w.ShouldCreateOrder(tt.shippingDate, tt.now))
			assert.Equal(t, tt.missed, w.Missed(tt.shippingDate, tt.now))
		})
	}
}

func TestOrderWindow_LeadTimeFor(t *testing.T) {
	w := DefaultOrderWindow()

	assert.Equal(t, 48*time.Hour, w.LeadTimeFor(day(9)))
	assert.Equal(t, 24*time.Hour, w.LeadTimeFor(day(5)))
	assert.Equal(t, day(7), w.OrderCreateTime(day(9)))
	assert.Equal(t, day(4), w.OrderCreateTime(day(5)))
}

func TestOrderWindow_WiderTolerance(t *testing.T) {
	w := DefaultOrderWindow()
	w.Tolerance = 24 * time.Hour

	assert.True(t, w.ShouldCreateOrder(day(5), day(4).Add(23*time.Hour)))
	assert.False(t, w.Missed(day(5), day(5)))
	assert.True(t, w.Missed(day(5), day(5).Add(time.Second)))
}
