package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Scheduler pass metrics
	schedulerRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_runs_total",
		Help: "Total scheduler passes",
	}, []string{
		"trigger", // http, grpc, cli, ticker
		"status",  // success, failed
	})

	schedulerRunDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scheduler_run_duration_seconds",
		Help:    "Wall time of one scheduler pass",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{
		"trigger",
	})

	schedulerSubscriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_subscriptions_total",
		Help: "Per-subscription outcomes of scheduler passes",
	}, []string{
		"outcome", // skipped, created, terminated, expired, errored
		"reason",  // paused, not_due, window_missed, in_flight, quota_exhausted, ...
	})

	// Order backend metrics
	backendOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_orders_total",
		Help: "Order placement attempts against the commerce backend",
	}, []string{
		"backend",
		"status", // created, transient, rejected
	})

	backendOrderDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_order_duration_seconds",
		Help:    "Time to place an order with the commerce backend",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{
		"backend",
	})

	// Notification metrics
	notificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Customer notifications by template and result",
	}, []string{
		"template",
		"status", // queued, dropped, sent, failed
	})

	// Reconciliation metrics
	reconciledOrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciled_orders_total",
		Help: "Local records repaired by reconciliation",
	}, []string{
		"action", // order_restored, subscription_advanced, subscription_terminated
	})
)

// RecordSchedulerRun records one scheduler pass
func RecordSchedulerRun(trigger, status string, duration float64) {
	schedulerRunsTotal.WithLabelValues(trigger, status).Inc()
	schedulerRunDuration.WithLabelValues(trigger).Observe(duration)
}

// RecordSubscriptionOutcome records what a pass did with one subscription
func RecordSubscriptionOutcome(outcome, reason string) {
	schedulerSubscriptionsTotal.WithLabelValues(outcome, reason).Inc()
}

// RecordBackendOrder records one order placement attempt
func RecordBackendOrder(backend, status string, duration float64) {
	backendOrdersTotal.WithLabelValues(backend, status).Inc()
	backendOrderDuration.WithLabelValues(backend).Observe(duration)
}

// RecordNotification records a notification result
func RecordNotification(template, status string) {
	notificationsTotal.WithLabelValues(template, status).Inc()
}

// RecordReconciliation records a reconciliation repair
func RecordReconciliation(action string) {
	reconciledOrdersTotal.WithLabelValues(action).Inc()
}
