// Package outbox relays ledger records written inside seat-moving
// transactions to the message bus.
package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
)

// Source is implemented by the crdb and memory stores. RelayOutbox must not
// hand the same record to two concurrent callers.
type Source interface {
	RelayOutbox(ctx context.Context, limit int, send func(domain.OutboxRecord) error) (int, error)
}

type Sender interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	source   Source
	sender   Sender
	logger   observability.Logger
	interval time.Duration
	batch    int
}

func NewPublisher(source Source, sender Sender, logger observability.Logger, interval time.Duration, batch int) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Publisher{source: source, sender: sender, logger: logger, interval: interval, batch: batch}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil {
				p.logger.WithError(err).Error("outbox flush failed")
			}
		}
	}
}

// Flush publishes one batch in creation order and stops at the first
// failure so records are never delivered out of order. Consumers dedupe on
// MessageId since a crash between publish and commit redelivers the record.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	published, err := p.source.RelayOutbox(ctx, p.batch, func(rec domain.OutboxRecord) error {
		msg := amqp.Publishing{
			MessageId:    rec.DedupeKey,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    rec.CreatedAt,
			Type:         rec.EventType,
			Body:         rec.Payload,
		}
		if err := p.sender.Publish(ctx, rec.EventType, msg); err != nil {
			return err
		}
		observability.OutboxLag.Set(time.Since(rec.CreatedAt).Seconds())
		return nil
	})
	if published > 0 {
		p.logger.WithField("published", published).Debug("outbox batch published")
	}
	return published, err
}
