package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeliveryDays(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    []time.Weekday
		wantErr bool
	}{
		{"abbreviations", "Mon,Thu", []time.Weekday{time.Monday, time.Thursday}, false},
		{"spaces and case", " tue , SAT ", []time.Weekday{time.Tuesday, time.Saturday}, false},
		{"full names", "Sunday,Wednesday", []time.Weekday{time.Sunday, time.Wednesday}, false},
		{"duplicates collapse", "Mon,Mon", []time.Weekday{time.Monday}, false},
		{"empty", "", nil, true},
		{"unknown day", "Mon,Funday", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			days, err := ParseDeliveryDays(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, IsConfigurationError(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, days.Weekdays())
		})
	}
}

func TestDeliveryDays_SetOperations(t *testing.T) {
	days := NewDeliveryDays(time.Monday, time.Thursday)

	assert.True(t, days.Contains(time.Monday))
	assert.False(t, days.Contains(time.Friday))
	assert.False(t, days.Contains(time.Weekday(9)))
	assert.Equal(t, 2, days.Count())
	assert.Equal(t, "Mon,Thu", days.String())
	assert.True(t, DeliveryDays(0).IsEmpty())
}

func TestDeliveryDays_JSON(t *testing.T) {
	type wrapper struct {
		Days DeliveryDays `json:"days"`
	}

	raw, err := json.Marshal(wrapper{Days: NewDeliveryDays(time.Sunday, time.Saturday)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"days":"Sun,Sat"}`, string(raw))

	var decoded wrapper
	require.NoError(t, json.Unmarshal([]byte(`{"days":"Mon,Thu"}`), &decoded))
	assert.Equal(t, NewDeliveryDays(time.Monday, time.Thursday), decoded.Days)
}

func TestOrderStatus_Transitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusCreated, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusShipped, true},
		{OrderStatusShipped, OrderStatusDelivered, true},
		{OrderStatusCreated, OrderStatusCancelled, true},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusCancelled, OrderStatusCreated, false},
		{OrderStatusShipped, OrderStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderIdempotencyKey(t *testing.T) {
	date := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "sub-abc-2026-03-05", OrderIdempotencyKey("abc", date))
}
