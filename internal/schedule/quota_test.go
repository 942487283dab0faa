package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsExhausted(t *testing.T) {
	tests := []struct {
		name          string
		daysPerWeek   int
		period        int
		ordersCreated int
		total         int
		exhausted     bool
	}{
		{"none created", 2, 1, 0, 2, false},
		{"one short", 2, 1, 1, 2, false},
		{"exactly at quota", 2, 1, 2, 2, true},
		{"over quota", 2, 1, 3, 2, true},
		{"four weeks three days", 3, 4, 11, 12, false},
		{"zero period", 2, 0, 0, 0, true},
		{"no delivery days", 0, 4, 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.total, TotalAllowed(tt.daysPerWeek, tt.period))
			assert.Equal(t, tt.exhausted, IsExhausted(tt.daysPerWeek, tt.period, tt.ordersCreated))
		})
	}
}
