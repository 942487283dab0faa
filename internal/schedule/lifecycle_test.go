package schedule

import (
	"testing"
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(t time.Time) *time.Time { return &t }

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to domain.SubscriptionStatus
		allowed  bool
	}{
		{domain.SubscriptionStatusPending, domain.SubscriptionStatusActive, true},
		{domain.SubscriptionStatusPending, domain.SubscriptionStatusCancelled, true},
		{domain.SubscriptionStatusPending, domain.SubscriptionStatusStopped, false},
		{domain.SubscriptionStatusActive, domain.SubscriptionStatusStopped, true},
		{domain.SubscriptionStatusStopped, domain.SubscriptionStatusActive, true},
		{domain.SubscriptionStatusActive, domain.SubscriptionStatusCancelled, true},
		{domain.SubscriptionStatusStopped, domain.SubscriptionStatusCancelled, true},
		{domain.SubscriptionStatusActive, domain.SubscriptionStatusPending, false},
		{domain.SubscriptionStatusCancelled, domain.SubscriptionStatusActive, false},
		{domain.SubscriptionStatusCancelled, domain.SubscriptionStatusStopped, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestResume(t *testing.T) {
	w := DefaultOrderWindow()

	t.Run("five day pause shifts end and realigns next", func(t *testing.T) {
		// Started Monday 2 March, ends 30 days later
		end := day(2).AddDate(0, 0, 30)
		plan, err := Resume(ResumeInput{
			PausedAt:            day(10),
			Now:                 day(15),
			NextShippingDate:    ptr(day(12)),
			SubscriptionEndDate: &end,
			Days:                monThu,
		}, w)

		require.NoError(t, err)
		assert.Equal(t, 5, plan.PausedDays)
		assert.Equal(t, day(2).AddDate(0, 0, 35), *plan.SubscriptionEndDate)
		// 12 March + 5 days is Tuesday the 17th; the next Mon/Thu on or after is the 19th
		assert.Equal(t, day(19), plan.NextShippingDate)
	})

	t.Run("aligned shift is kept as is", func(t *testing.T) {
		plan, err := Resume(ResumeInput{
			PausedAt:         day(5),
			Now:              day(12),
			NextShippingDate: ptr(day(9)),
			Days:             monThu,
		}, w)

		require.NoError(t, err)
		assert.Equal(t, 7, plan.PausedDays)
		assert.Equal(t, day(16), plan.NextShippingDate)
		assert.Nil(t, plan.SubscriptionEndDate)
	})

	t.Run("partial day rounds up", func(t *testing.T) {
		plan, err := Resume(ResumeInput{
			PausedAt:         day(10),
			Now:              day(15).Add(time.Minute),
			NextShippingDate: ptr(day(12)),
			Days:             monThu,
		}, w)

		require.NoError(t, err)
		assert.Equal(t, 6, plan.PausedDays)
		assert.Equal(t, day(19), plan.NextShippingDate)
	})

	t.Run("closed window moves to next orderable day", func(t *testing.T) {
		// Sunday 10:00 with nothing scheduled: Monday's 48h window opened Saturday
		plan, err := Resume(ResumeInput{
			PausedAt: day(14),
			Now:      day(15).Add(10 * time.Hour),
			Days:     monThu,
		}, w)

		require.NoError(t, err)
		assert.Equal(t, day(19), plan.NextShippingDate)
	})

	t.Run("empty delivery days", func(t *testing.T) {
		_, err := Resume(ResumeInput{PausedAt: day(10), Now: day(15), NextShippingDate: ptr(day(12))}, w)
		assert.ErrorIs(t, err, domain.ErrNoQualifyingDay)
	})
}

// The shift applied to both dates equals the pause length before realignment
func TestResume_PreservesCommitment(t *testing.T) {
	w := DefaultOrderWindow()
	end := day(30)

	for pause := 1; pause <= 10; pause++ {
		plan, err := Resume(ResumeInput{
			PausedAt:            day(3),
			Now:                 day(3 + pause),
			NextShippingDate:    ptr(day(19)),
			SubscriptionEndDate: &end,
			Days:                monThu,
		}, w)
		require.NoError(t, err)

		assert.Equal(t, pause, plan.PausedDays)
		assert.Equal(t, end.AddDate(0, 0, pause), *plan.SubscriptionEndDate)
		shifted := day(19).AddDate(0, 0, pause)
		assert.False(t, plan.NextShippingDate.Before(shifted))
		assert.True(t, monThu.Contains(plan.NextShippingDate.Weekday()))
	}
}

func TestActivate(t *testing.T) {
	w := DefaultOrderWindow()

	t.Run("first date skips a window already open", func(t *testing.T) {
		// Wednesday 10:00: Thursday's window opened at midnight
		plan, err := Activate(day(4).Add(10*time.Hour), monThu, 2, w)

		require.NoError(t, err)
		assert.Equal(t, day(9), plan.NextShippingDate)
		assert.Equal(t, day(18), plan.SubscriptionEndDate)
	})

	t.Run("first date with window ahead", func(t *testing.T) {
		// Tuesday 10:00: Thursday's window opens Wednesday midnight
		plan, err := Activate(day(3).Add(10*time.Hour), monThu, 1, w)

		require.NoError(t, err)
		assert.Equal(t, day(5), plan.NextShippingDate)
		assert.Equal(t, day(10), plan.SubscriptionEndDate)
	})

	t.Run("invalid config", func(t *testing.T) {
		_, err := Activate(day(3), 0, 1, w)
		assert.ErrorIs(t, err, domain.ErrSubscriptionInvalidConfig)

		_, err = Activate(day(3), monThu, 0, w)
		assert.ErrorIs(t, err, domain.ErrSubscriptionInvalidConfig)
	})
}
