// Package inventory coordinates every seat-count mutation: bookings, payment
// capture, cancellation, capacity edits and expiry of abandoned bookings.
package inventory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/notify"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "inventory"

// Gateway authorizes monetary capture. A refusal is reported as an error
// matching domain.ErrGatewayDeclined; any other error leaves the outcome
// unknown.
type Gateway interface {
	Authorize(ctx context.Context, req domain.ChargeRequest) (domain.Authorization, error)
}

// Notifier receives lifecycle notifications after the owning transaction
// has committed. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification)
}

type Options struct {
	PendingTTL        time.Duration
	CommitRetries     int
	StrictAmountCheck bool
	Currency          string
	SweepConcurrency  int
}

type Coordinator struct {
	store    Store
	gateway  Gateway
	notifier Notifier
	logger   observability.Logger
	opts     Options
	now      func() time.Time
}

func NewCoordinator(store Store, gateway Gateway, notifier Notifier, logger observability.Logger, opts Options) *Coordinator {
	if notifier == nil {
		notifier = notify.Discard
	}
	if logger == nil {
		logger = observability.NewDiscardLogger()
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 15 * time.Minute
	}
	if opts.Currency == "" {
		opts.Currency = "usd"
	}
	if opts.SweepConcurrency <= 0 {
		opts.SweepConcurrency = 8
	}
	return &Coordinator{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		logger:   logger,
		opts:     opts,
		now:      time.Now,
	}
}

// SetClock replaces the time source.
func (c *Coordinator) SetClock(now func() time.Time) {
	c.now = now
}

// commit runs fn in a transaction, retrying the whole transaction when it
// loses a serialization conflict. fn must be safe to run more than once.
func (c *Coordinator) commit(ctx context.Context, op string, fn func(tx Tx) error) error {
	var err error
	for attempt := 0; ; attempt++ {
		start := time.Now()
		err = c.store.WithTx(ctx, fn)
		observability.DBTxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
		if !errors.Is(err, domain.ErrSerializationFailure) || attempt >= c.opts.CommitRetries {
			break
		}
		observability.DBTxRetries.WithLabelValues(op).Inc()
		backoff := time.Duration(1<<attempt) * 10 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	if errors.Is(err, domain.ErrSerializationFailure) {
		return errors.WithHint(err, "the request lost a concurrent update, try again")
	}
	return err
}

func (c *Coordinator) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return observability.StartSpan(ctx, tracerName, "Coordinator."+op, attrs...)
}

func (c *Coordinator) emit(ctx context.Context, kind notify.Kind, e *domain.Event, b *domain.Booking, p *domain.Payment) {
	c.notifier.Notify(ctx, notify.Notification{
		ID:         uuid.New(),
		Kind:       kind,
		OccurredAt: c.now(),
		Event:      e,
		Booking:    b,
		Payment:    p,
	})
}

// ledgerRecord builds the outbox entry written alongside a seat-moving commit.
func ledgerRecord(aggregateType, eventType string, aggregateID uuid.UUID, payload map[string]interface{}, now time.Time) (domain.OutboxRecord, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.OutboxRecord{}, err
	}
	id := uuid.New()
	return domain.OutboxRecord{
		ID:            id,
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       body,
		CreatedAt:     now,
		Status:        "NEW",
		DedupeKey:     id.String(),
	}, nil
}

func remainingOf(e domain.Event, class domain.SeatClass) int {
	pool, _ := e.Pool(class)
	return pool.Remaining
}

func classLabel(c domain.SeatClass) string {
	if c.Valid() {
		return string(c)
	}
	return "unknown"
}
