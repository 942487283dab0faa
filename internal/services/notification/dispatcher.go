package notification

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kevin07696/subscription-scheduler/internal/domain"
	"github.com/kevin07696/subscription-scheduler/internal/domain/ports"
	"github.com/kevin07696/subscription-scheduler/pkg/observability"
)

var (
	// ErrQueueFull is returned when the dispatcher cannot accept more messages
	ErrQueueFull = errors.New("notification queue full")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("notification dispatcher closed")
)

// Config holds dispatcher sizing
type Config struct {
	QueueSize   int
	Workers     int
	SendTimeout time.Duration
}

// DefaultConfig returns a small queue drained by two workers
func DefaultConfig() Config {
	return Config{
		QueueSize:   256,
		Workers:     2,
		SendTimeout: 15 * time.Second,
	}
}

type message struct {
	data     map[string]any
	customer domain.Customer
	kind     domain.TemplateKind
}

// Dispatcher decouples callers from slow mail delivery. Send only enqueues;
// workers hand each message to the wrapped notifier. A full queue drops the
// message rather than blocking the scheduler.
type Dispatcher struct {
	next   ports.Notifier
	logger ports.Logger
	queue  chan message
	cfg    Config
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

var _ ports.Notifier = (*Dispatcher)(nil)

// NewDispatcher starts cfg.Workers goroutines delivering to next
func NewDispatcher(next ports.Notifier, logger ports.Logger, cfg Config) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultConfig().SendTimeout
	}

	d := &Dispatcher{
		next:   next,
		logger: logger,
		queue:  make(chan message, cfg.QueueSize),
		cfg:    cfg,
	}

	d.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go d.worker()
	}
	return d
}

// Send enqueues the message. The caller's context is not carried into delivery.
func (d *Dispatcher) Send(_ context.Context, customer domain.Customer, kind domain.TemplateKind, data map[string]any) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrClosed
	}

	select {
	case d.queue <- message{customer: customer, kind: kind, data: data}:
		observability.RecordNotification(string(kind), "queued")
		return nil
	default:
		observability.RecordNotification(string(kind), "dropped")
		d.logger.Warn("notification dropped, queue full",
			ports.String("template", string(kind)),
			ports.String("customer_id", customer.ID),
			ports.Int("queue_size", d.cfg.QueueSize))
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for queued ones to be delivered
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain notification queue: %w", ctx.Err())
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for msg := range d.queue {
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg message) {
	defer func() {
		if r := recover(); r != nil {
			observability.RecordNotification(string(msg.kind), "failed")
			d.logger.Error("notifier panicked",
				ports.String("template", string(msg.kind)),
				ports.String("panic", fmt.Sprint(r)))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SendTimeout)
	defer cancel()

	if err := d.next.Send(ctx, msg.customer, msg.kind, msg.data); err != nil {
		observability.RecordNotification(string(msg.kind), "failed")
		d.logger.Warn("notification delivery failed",
			ports.String("template", string(msg.kind)),
			ports.String("customer_id", msg.customer.ID),
			ports.Err(err))
		return
	}

	observability.RecordNotification(string(msg.kind), "sent")
	d.logger.Debug("notification delivered",
		ports.String("template", string(msg.kind)),
		ports.String("customer_id", msg.customer.ID))
}
