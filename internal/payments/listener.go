// Package payments applies asynchronous gateway outcomes delivered over the
// message bus.
package payments

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
)

const RoutingKey = "payment.result"

// Applier is implemented by inventory.Coordinator.
type Applier interface {
	ApplyPaymentResult(ctx context.Context, res inventory.PaymentResult) (domain.Booking, error)
}

// ResultMessage is the body of a payment.result message.
type ResultMessage struct {
	BookingID  string `json:"booking_id"`
	Status     string `json:"status"`
	ExternalID string `json:"external_id"`
	Amount     int64  `json:"amount"`
	Currency   string `json:"currency"`
	Method     string `json:"method"`
	Reason     string `json:"reason"`
}

func (m ResultMessage) toResult() (inventory.PaymentResult, error) {
	id, err := uuid.Parse(m.BookingID)
	if err != nil {
		return inventory.PaymentResult{}, errors.Wrap(domain.ErrInvalidInput, "booking_id")
	}
	var succeeded bool
	switch strings.ToLower(m.Status) {
	case "succeeded", "success", "completed":
		succeeded = true
	case "failed", "declined", "expired":
	default:
		return inventory.PaymentResult{}, errors.Wrapf(domain.ErrInvalidInput, "status %q", m.Status)
	}
	return inventory.PaymentResult{
		BookingID:  id,
		Succeeded:  succeeded,
		ExternalID: m.ExternalID,
		Amount:     m.Amount,
		Currency:   m.Currency,
		Method:     m.Method,
		Reason:     m.Reason,
	}, nil
}

type Listener struct {
	applier Applier
	logger  observability.Logger
}

func NewListener(applier Applier, logger observability.Logger) *Listener {
	return &Listener{applier: applier, logger: logger}
}

// Run handles deliveries until ctx ends or the channel closes.
func (l *Listener) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("payment result deliveries closed")
			}
			l.handle(ctx, d)
		}
	}
}

// handle acks every outcome except system faults, which are requeued.
// Malformed messages are rejected without requeue.
func (l *Listener) handle(ctx context.Context, d amqp.Delivery) {
	log := l.logger.WithField("message_id", d.MessageId)

	var msg ResultMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		log.WithError(err).Warn("malformed payment result")
		_ = d.Reject(false)
		return
	}
	res, err := msg.toResult()
	if err != nil {
		log.WithError(err).Warn("invalid payment result")
		_ = d.Reject(false)
		return
	}

	booking, err := l.applier.ApplyPaymentResult(ctx, res)
	switch {
	case err == nil:
		log.WithFields(map[string]interface{}{"booking_id": booking.ID, "status": booking.Status}).Info("payment result applied")
		_ = d.Ack(false)
	case domain.IsBusinessRejection(err):
		log.WithError(err).WithField("booking_id", res.BookingID).Warn("payment result rejected")
		_ = d.Ack(false)
	default:
		log.WithError(err).WithField("booking_id", res.BookingID).Error("payment result failed, requeueing")
		_ = d.Nack(false, true)
	}
}
