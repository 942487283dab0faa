package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// BackoffStrategy maps a 0-indexed retry number to a wait
type BackoffStrategy interface {
	NextDelay(attempt int) time.Duration
}

// ExponentialBackoff waits Base * Multiplier^attempt, capped at Max,
// spread by ±Jitter so parallel callers do not retry in lockstep.
type ExponentialBackoff struct {
	Base       time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64
}

// RateLimitBackoff suits a commerce API that throttles with 429:
// roughly 1s, 2s, 4s, 8s, 16s and then 30s.
func RateLimitBackoff() ExponentialBackoff {
	return ExponentialBackoff{
		Base:       time.Second,
		Max:        30 * time.Second,
		Multiplier: 2,
		Jitter:     0.1,
	}
}

func (b ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := math.Min(float64(b.Base)*math.Pow(b.Multiplier, float64(attempt)), float64(b.Max))
	delay += (rand.Float64()*2 - 1) * delay * b.Jitter
	if delay < 0 {
		return 0
	}
	return time.Duration(delay)
}

// Sleep waits for d or until ctx ends, whichever comes first
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
