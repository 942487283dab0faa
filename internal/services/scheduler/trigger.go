package scheduler

import (
	"context"
	"time"

	"github.com/kevin07696/subscription-scheduler/pkg/observability"
)

// Entry points that start a pass, used as the trigger metric label
const (
	TriggerHTTP   = "http"
	TriggerGRPC   = "grpc"
	TriggerCLI    = "cli"
	TriggerTicker = "ticker"
)

// Trigger runs RunOnce on behalf of an entry point and records the pass
func (r *Runner) Trigger(ctx context.Context, trigger string, now time.Time) (*RunReport, error) {
	start := time.Now()
	report, err := r.RunOnce(ctx, now)

	status := "success"
	if err != nil {
		status = "failed"
	}
	observability.RecordSchedulerRun(trigger, status, time.Since(start).Seconds())

	return report, err
}
