package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
)

// Dispatcher queues notifications and fans them out to its sinks from a
// background worker. Notify never blocks: a full queue drops the message.
type Dispatcher struct {
	sinks   []Sink
	queue   chan Notification
	logger  observability.Logger
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewDispatcher(logger observability.Logger, buffer int, sinks ...Sink) *Dispatcher {
	if buffer <= 0 {
		buffer = 1
	}
	return &Dispatcher{
		sinks:   sinks,
		queue:   make(chan Notification, buffer),
		logger:  logger,
		timeout: 5 * time.Second,
		done:    make(chan struct{}),
	}
}

func (d *Dispatcher) Notify(_ context.Context, n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}
	select {
	case d.queue <- n:
	default:
		observability.NotificationsDropped.Inc()
		d.logger.WithField("kind", n.Kind).Warn("notification queue full, dropping")
	}
}

// Run delivers queued notifications until Close is called and the queue
// drains, or ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-d.queue:
			if !ok {
				return
			}
			d.deliver(ctx, n)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, n Notification) {
	for _, sink := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		err := sink.Deliver(sctx, n)
		cancel()
		if err != nil {
			observability.SinkFailures.WithLabelValues(sink.Name()).Inc()
			d.logger.WithFields(map[string]interface{}{
				"sink":            sink.Name(),
				"kind":            n.Kind,
				"notification_id": n.ID,
			}).WithError(err).Error("notification delivery failed")
		}
	}
}

// Close stops intake and waits for Run to drain the queue. Run must have
// been started.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.done
}
