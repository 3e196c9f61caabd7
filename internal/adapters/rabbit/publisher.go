package rabbit

import (
	"context"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
)

const Exchange = "inventory.events"

type Publisher struct {
	mu      sync.Mutex
	ch      *amqp.Channel
	retries int
}

func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	err = ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	return &Publisher{ch: ch, retries: 3}, nil
}

// Publish sends msg under key, retrying transient failures with backoff.
func (p *Publisher) Publish(ctx context.Context, key string, msg amqp.Publishing) error {
	var err error
	for i := 0; i < p.retries; i++ {
		if i > 0 {
			observability.RabbitPublishRetries.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(1<<(i-1)) * 100 * time.Millisecond):
			}
		}
		p.mu.Lock()
		err = p.ch.PublishWithContext(ctx, Exchange, key, false, false, msg)
		p.mu.Unlock()
		if err == nil {
			return nil
		}
	}
	return err
}

func (p *Publisher) Close() error {
	return p.ch.Close()
}
