package inventory

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/notify"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

// CancelBooking cancels on behalf of the owner or an admin. A Pending booking
// fails without touching seats; a Completed one is refunded and its seats
// returned. Cancelling a booking that is already Failed or Refunded succeeds
// without effect.
func (c *Coordinator) CancelBooking(ctx context.Context, actor domain.Actor, bookingID uuid.UUID) (booking domain.Booking, err error) {
	ctx, span := c.startSpan(ctx, "CancelBooking", attribute.String("booking.id", bookingID.String()))
	defer func() { observability.EndSpan(span, err) }()

	var (
		event    domain.Event
		payment  domain.Payment
		previous domain.BookingStatus
	)
	err = c.commit(ctx, "cancel_booking", func(tx Tx) error {
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if !actor.CanManage(b.UserID) {
			return errors.Wrap(domain.ErrUnauthorized, "not the booking owner")
		}
		booking, previous = b, b.Status
		now := c.now()

		switch b.Status {
		case domain.BookingFailed, domain.BookingRefunded:
			return nil
		case domain.BookingPending:
			if err := b.Fail(reasonCancelled, now); err != nil {
				return err
			}
			booking = b
			return tx.UpdateBooking(ctx, b)
		}

		ev, err := tx.AdjustSeats(ctx, b.EventID, b.Class, b.Quantity)
		if errors.Is(err, domain.ErrCapacityExceeded) {
			return c.refundAnomaly(b, err)
		}
		if err != nil {
			return err
		}
		if err := b.Refund(now); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		if b.PaymentID != nil {
			if err := tx.UpdatePaymentStatus(ctx, *b.PaymentID, domain.PaymentRefunded, now); err != nil {
				return err
			}
		}
		rec, err := ledgerRecord("booking", "ledger.booking.refunded", b.ID, map[string]interface{}{
			"booking_id": b.ID,
			"event_id":   b.EventID,
			"payment_id": b.PaymentID,
			"class":      b.Class,
			"quantity":   b.Quantity,
			"remaining":  remainingOf(ev, b.Class),
		}, now)
		if err != nil {
			return err
		}
		if err := tx.InsertOutbox(ctx, rec); err != nil {
			return err
		}
		booking, event = b, ev
		return nil
	})
	if err != nil {
		return domain.Booking{}, errors.Wrap(err, "cancel booking")
	}

	switch previous {
	case domain.BookingPending:
		observability.BookingTransitions.WithLabelValues(string(domain.BookingFailed), reasonCancelled).Inc()
		c.emit(ctx, notify.BookingCancelled, nil, &booking, nil)
	case domain.BookingCompleted:
		observability.BookingTransitions.WithLabelValues(string(domain.BookingRefunded), "cancelled").Inc()
		observability.SeatAdjustments.WithLabelValues(string(booking.Class), "increment").Add(float64(booking.Quantity))
		if booking.PaymentID != nil {
			if p, err := c.store.GetPayment(ctx, *booking.PaymentID); err == nil {
				payment = p
			}
		}
		c.emit(ctx, notify.BookingCancelled, &event, &booking, &payment)
	default:
		c.logger.WithFields(map[string]interface{}{
			"booking_id": booking.ID,
			"status":     booking.Status,
		}).Info("cancel of terminal booking ignored")
	}
	return booking, nil
}

// refundAnomaly reports a refund that would push remaining above capacity.
// That only happens after a double refund or a ledger that has drifted from
// the seat counters, so the refund is refused instead of clamped.
func (c *Coordinator) refundAnomaly(b domain.Booking, cause error) error {
	c.logger.WithError(cause).WithFields(map[string]interface{}{
		"severity":   "high",
		"booking_id": b.ID,
		"event_id":   b.EventID,
		"class":      b.Class,
		"quantity":   b.Quantity,
	}).Error("refund would exceed capacity")
	observability.Anomalies.WithLabelValues("refund_capacity_exceeded").Inc()
	return errors.WithHint(cause, "seat counters disagree with the payment ledger; an operator must reconcile this booking")
}

// CancelPayment refunds the booking a payment belongs to.
func (c *Coordinator) CancelPayment(ctx context.Context, actor domain.Actor, paymentID uuid.UUID) (domain.Payment, error) {
	p, err := c.store.GetPayment(ctx, paymentID)
	if err != nil {
		return domain.Payment{}, err
	}
	if !actor.CanManage(p.UserID) {
		return domain.Payment{}, errors.Wrap(domain.ErrUnauthorized, "not the payment owner")
	}
	if _, err := c.CancelBooking(ctx, actor, p.BookingID); err != nil {
		return domain.Payment{}, err
	}
	return c.store.GetPayment(ctx, paymentID)
}
