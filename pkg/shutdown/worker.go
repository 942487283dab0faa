package shutdown

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PeriodicWorker runs a job on a fixed interval until shut down.
// Ticks that arrive while the job runs collapse into one; runs never overlap.
type PeriodicWorker struct {
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
	name     string
	interval time.Duration
	once     sync.Once
}

// NewPeriodicWorker creates a new periodic worker
func NewPeriodicWorker(name string, interval time.Duration, logger *zap.Logger) *PeriodicWorker {
	return &PeriodicWorker{
		logger:   logger,
		done:     make(chan struct{}),
		name:     name,
		interval: interval,
	}
}

// Start runs work immediately and then on every tick.
// work should return once ctx is cancelled.
func (pw *PeriodicWorker) Start(parent context.Context, work func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(parent)
	pw.cancel = cancel

	go func() {
		defer close(pw.done)
		ticker := time.NewTicker(pw.interval)
		defer ticker.Stop()

		pw.logger.Info("Periodic worker started",
			zap.String("worker", pw.name),
			zap.Duration("interval", pw.interval),
		)

		work(ctx)
		for {
			select {
			case <-ctx.Done():
				pw.logger.Info("Periodic worker stopped", zap.String("worker", pw.name))
				return
			case <-ticker.C:
				work(ctx)
			}
		}
	}()
}

// Shutdown cancels the worker and waits for the running job to return
func (pw *PeriodicWorker) Shutdown(ctx context.Context) error {
	if pw.cancel == nil {
		return nil
	}
	pw.once.Do(pw.cancel)

	select {
	case <-pw.done:
		return nil
	case <-ctx.Done():
		pw.logger.Warn("Periodic worker shutdown timeout", zap.String("worker", pw.name))
		return ctx.Err()
	}
}
