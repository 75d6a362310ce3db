package events

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kycvault/internal/kyc/models"
)

// ErrBufferFull is returned when the dispatcher cannot accept more events.
var ErrBufferFull = errors.New("event buffer full")

const (
	defaultBuffer         = 1024
	defaultPublishTimeout = 10 * time.Second
)

// Dispatcher queues events and publishes them from a single goroutine.
// Enqueueing never blocks; a full queue drops the event.
type Dispatcher struct {
	next    Publisher
	inbox   chan models.Event
	logger  *slog.Logger
	timeout time.Duration
}

func NewDispatcher(next Publisher, buffer int, logger *slog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		next:    next,
		inbox:   make(chan models.Event, buffer),
		logger:  logger,
		timeout: defaultPublishTimeout,
	}
}

// Publish enqueues e.
func (d *Dispatcher) Publish(_ context.Context, e models.Event) error {
	select {
	case d.inbox <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

// Run publishes queued events until ctx is done, then drains what is already
// queued with a fresh deadline.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return ctx.Err()
		case e := <-d.inbox:
			d.publish(ctx, e)
		}
	}
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	for {
		select {
		case e := <-d.inbox:
			d.publish(ctx, e)
		default:
			return
		}
	}
}

func (d *Dispatcher) publish(ctx context.Context, e models.Event) {
	pctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.next.Publish(pctx, e); err != nil {
		d.logger.Warn("failed to publish event",
			"event_id", e.ID,
			"kind", e.Kind,
			"subject", e.Subject,
			"error", err,
		)
	}
}
