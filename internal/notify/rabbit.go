package notify

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

// RabbitSink publishes notifications under the "notify.<kind>" routing key.
type RabbitSink struct {
	pub Publisher
}

func NewRabbitSink(pub Publisher) *RabbitSink {
	return &RabbitSink{pub: pub}
}

func (s *RabbitSink) Name() string { return "rabbit" }

func (s *RabbitSink) Deliver(ctx context.Context, n Notification) error {
	body, err := json.Marshal(NewMessage(n))
	if err != nil {
		return err
	}
	return s.pub.Publish(ctx, "notify."+string(n.Kind), amqp.Publishing{
		MessageId:    n.ID.String(),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    n.OccurredAt,
		Body:         body,
	})
}
