package resilience

import (
	"context"
	"time"
)

// TimeoutConfig defines timeout values for the service's timeout hierarchy
//
// Timeout Hierarchy (from outermost to innermost):
//
//	Scheduler pass (5m)
//	  ↓
//	HTTP Handler (60s)
//	  ↓
//	Order backend call incl. retries (30s)
//	  ↓
//	Single backend attempt (10s)
//
// Each layer must complete before its parent times out.
type TimeoutConfig struct {
	CronJob     time.Duration // One scheduler pass (default: 5 minutes)
	HTTPHandler time.Duration // Lifecycle and webhook requests (default: 60s)

	ExternalAPI  time.Duration // Order backend call including retries (default: 30s)
	SingleRetry  time.Duration // Individual backend attempt (default: 10s)
	Notification time.Duration // One email or broker publish (default: 15s)
}

// DefaultTimeoutConfig returns production timeout values
func DefaultTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		CronJob:     5 * time.Minute,
		HTTPHandler: 60 * time.Second,

		ExternalAPI:  30 * time.Second,
		SingleRetry:  10 * time.Second,
		Notification: 15 * time.Second,
	}
}

// TestTimeoutConfig returns shorter timeouts for testing
func TestTimeoutConfig() *TimeoutConfig {
	return &TimeoutConfig{
		CronJob:      30 * time.Second,
		HTTPHandler:  5 * time.Second,
		ExternalAPI:  2 * time.Second,
		SingleRetry:  1 * time.Second,
		Notification: 1 * time.Second,
	}
}

// CronContext creates a context with timeout for one scheduler pass
func (tc *TimeoutConfig) CronContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.CronJob)
}

// HandlerContext creates a context with timeout for HTTP handlers
func (tc *TimeoutConfig) HandlerContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.HTTPHandler)
}

// ExternalAPIContext creates a context for an order backend call
func (tc *TimeoutConfig) ExternalAPIContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.ExternalAPI)
}

// RetryAttemptContext creates a context for a single retry attempt
func (tc *TimeoutConfig) RetryAttemptContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.SingleRetry)
}

// NotificationContext creates a context for one notification delivery
func (tc *TimeoutConfig) NotificationContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, tc.Notification)
}
