package inventory

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/notify"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

const (
	reasonDeclined       = "payment declined"
	reasonSoldOut        = "sold out at commit"
	reasonAmountMismatch = "gateway amount mismatch"
	reasonCancelled      = "cancelled before payment"
	reasonExpired        = "payment window expired"
)

type BookingRequest struct {
	EventID  uuid.UUID
	Class    domain.SeatClass
	Quantity int
}

// CreateBooking records a Pending booking. No seats are taken until payment
// completes; the remaining check here only turns away requests that could
// not succeed anyway.
func (c *Coordinator) CreateBooking(ctx context.Context, actor domain.Actor, req BookingRequest) (booking domain.Booking, err error) {
	ctx, span := c.startSpan(ctx, "CreateBooking",
		attribute.String("event.id", req.EventID.String()),
		attribute.String("seat.class", string(req.Class)),
		attribute.Int("seat.quantity", req.Quantity),
	)
	defer func() { observability.EndSpan(span, err) }()

	if actor.UserID == uuid.Nil {
		return domain.Booking{}, domain.ErrUnauthenticated
	}
	if !req.Class.Valid() {
		return domain.Booking{}, errors.Wrapf(domain.ErrInvalidTicketClass, "%q", string(req.Class))
	}
	err = c.commit(ctx, "create_booking", func(tx Tx) error {
		event, err := tx.GetEvent(ctx, req.EventID)
		if err != nil {
			return err
		}
		b, err := domain.NewBooking(event, actor.UserID, req.Class, req.Quantity, c.opts.PendingTTL, c.now())
		if err != nil {
			return err
		}
		booking = b
		return tx.InsertBooking(ctx, b)
	})
	if errors.Is(err, domain.ErrInsufficientInventory) {
		observability.InventoryRejections.WithLabelValues(classLabel(req.Class), "request").Inc()
	}
	if err != nil {
		return domain.Booking{}, errors.Wrap(err, "create booking")
	}
	observability.BookingTransitions.WithLabelValues(string(domain.BookingPending), "created").Inc()
	return booking, nil
}

// CapturePayment asks the gateway to capture the booking total and, on
// success, commits the seat decrement together with the payment record.
func (c *Coordinator) CapturePayment(ctx context.Context, actor domain.Actor, bookingID uuid.UUID, method string) (booking domain.Booking, payment domain.Payment, err error) {
	ctx, span := c.startSpan(ctx, "CapturePayment", attribute.String("booking.id", bookingID.String()))
	defer func() { observability.EndSpan(span, err) }()

	b, err := c.store.GetBooking(ctx, bookingID)
	if err != nil {
		return domain.Booking{}, domain.Payment{}, err
	}
	if !actor.CanManage(b.UserID) {
		return domain.Booking{}, domain.Payment{}, errors.Wrap(domain.ErrUnauthorized, "not the booking owner")
	}
	switch {
	case b.Status == domain.BookingCompleted:
		return domain.Booking{}, domain.Payment{}, errors.Wrap(domain.ErrInvalidState, "payment already completed for this booking")
	case b.Status.Terminal():
		return domain.Booking{}, domain.Payment{}, errors.Wrapf(domain.ErrAlreadyTerminal, "booking is %s", b.Status)
	}

	if !c.now().Before(b.ExpiresAt) {
		if failed, _, ferr := c.failPending(ctx, b.ID, reasonExpired); ferr == nil {
			b = failed
		}
		return b, domain.Payment{}, errors.WithHint(
			errors.Wrapf(domain.ErrAlreadyTerminal, "payment window closed at %s", b.ExpiresAt.Format(time.RFC3339)),
			"the payment was not taken; book again to retry",
		)
	}

	event, err := c.store.GetEvent(ctx, b.EventID)
	if err != nil {
		return domain.Booking{}, domain.Payment{}, err
	}
	if remaining := remainingOf(event, b.Class); remaining < b.Quantity {
		// Sold out since the booking was made; do not charge for seats that are gone.
		observability.InventoryRejections.WithLabelValues(classLabel(b.Class), "pre_capture").Inc()
		if failed, _, ferr := c.failPending(ctx, b.ID, reasonSoldOut); ferr == nil {
			b = failed
		}
		return b, domain.Payment{}, soldOut(b, remaining)
	}

	auth, err := c.gateway.Authorize(ctx, domain.ChargeRequest{
		Amount:   b.TotalAmount,
		Currency: c.opts.Currency,
		Metadata: map[string]string{
			"booking_id": b.ID.String(),
			"event_id":   b.EventID.String(),
			"user_id":    b.UserID.String(),
			"class":      string(b.Class),
			"title":      event.Title,
		},
	})
	if errors.Is(err, domain.ErrGatewayDeclined) {
		if failed, _, ferr := c.failPending(ctx, b.ID, reasonDeclined); ferr == nil {
			b = failed
		}
		return b, domain.Payment{}, errors.WithHint(err, "the payment was not taken; book again to retry")
	}
	if err != nil {
		// Outcome unknown: leave the booking Pending for a retry or the sweeper.
		return domain.Booking{}, domain.Payment{}, errors.Wrap(err, "authorize payment")
	}
	return c.settle(ctx, b.ID, auth, method)
}

// PaymentResult is an asynchronous gateway outcome.
type PaymentResult struct {
	BookingID  uuid.UUID
	Succeeded  bool
	ExternalID string
	Amount     int64
	Currency   string
	Method     string
	Reason     string
}

// ApplyPaymentResult commits a gateway outcome delivered out of band.
// Redelivery of an outcome that was already applied is a no-op.
func (c *Coordinator) ApplyPaymentResult(ctx context.Context, res PaymentResult) (booking domain.Booking, err error) {
	ctx, span := c.startSpan(ctx, "ApplyPaymentResult",
		attribute.String("booking.id", res.BookingID.String()),
		attribute.Bool("payment.succeeded", res.Succeeded),
	)
	defer func() { observability.EndSpan(span, err) }()

	if !res.Succeeded {
		reason := res.Reason
		if reason == "" {
			reason = reasonDeclined
		}
		booking, _, err = c.failPending(ctx, res.BookingID, reason)
		return booking, err
	}
	if res.ExternalID == "" {
		return domain.Booking{}, errors.Wrap(domain.ErrInvalidInput, "missing external payment id")
	}
	booking, _, err = c.settle(ctx, res.BookingID, domain.Authorization{
		ExternalID: res.ExternalID,
		Amount:     res.Amount,
		Currency:   res.Currency,
	}, res.Method)
	return booking, err
}

// settle is the Pending -> Completed commit. The seat decrement, the payment
// record, the booking update and the ledger outbox entry become durable
// together. Losing the seat race moves the booking to Failed instead.
//
// Whenever the authorization cannot be settled the charge is kept on the
// ledger as a refund_required record, in the same transaction.
func (c *Coordinator) settle(ctx context.Context, bookingID uuid.UUID, auth domain.Authorization, method string) (domain.Booking, domain.Payment, error) {
	var (
		booking   domain.Booking
		payment   domain.Payment
		event     domain.Event
		rejection error
		anomaly   string
		duplicate bool
	)
	err := c.commit(ctx, "settle", func(tx Tx) error {
		rejection, anomaly, duplicate = nil, "", false
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		booking = b
		if b.Status == domain.BookingCompleted && b.ExternalPaymentID == auth.ExternalID {
			duplicate = true
			return nil
		}

		now := c.now()
		switch b.Status {
		case domain.BookingPending:
		case domain.BookingCompleted:
			anomaly = "capture_after_completed"
			rejection = errors.Wrapf(domain.ErrInvalidState, "booking already paid by %s", b.ExternalPaymentID)
			return c.recordRefundRequired(ctx, tx, b, auth, "booking already completed", now)
		default:
			anomaly = "capture_after_terminal"
			rejection = errors.Wrapf(domain.ErrAlreadyTerminal, "booking is %s", b.Status)
			return c.recordRefundRequired(ctx, tx, b, auth, "booking "+string(b.Status), now)
		}

		// failAuthorized fails the booking but keeps the external id on it so
		// the charge can be traced and refunded.
		failAuthorized := func(reason string, cause error) error {
			if err := b.Fail(reason, now); err != nil {
				return err
			}
			b.ExternalPaymentID = auth.ExternalID
			if err := tx.UpdateBooking(ctx, b); err != nil {
				return err
			}
			booking, rejection, anomaly = b, cause, "refund_required"
			return c.recordRefundRequired(ctx, tx, b, auth, reason, now)
		}

		if auth.Amount != b.TotalAmount {
			c.logger.WithFields(map[string]interface{}{
				"booking_id":     b.ID,
				"expected":       b.TotalAmount,
				"gateway_amount": auth.Amount,
			}).Warn("gateway amount differs from booking total")
			if c.opts.StrictAmountCheck {
				return failAuthorized(reasonAmountMismatch,
					errors.Wrapf(domain.ErrAmountMismatch, "expected %d, gateway reported %d", b.TotalAmount, auth.Amount))
			}
		}

		ev, err := tx.AdjustSeats(ctx, b.EventID, b.Class, -b.Quantity)
		if errors.Is(err, domain.ErrInsufficientInventory) {
			return failAuthorized(reasonSoldOut,
				errors.WithHint(err, "another booking took the last seats; the charge will be refunded"))
		}
		if err != nil {
			return err
		}

		p := domain.NewPayment(b, auth, method, now)
		if p.Currency == "" {
			p.Currency = c.opts.Currency
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		if err := b.Complete(p.ID, auth.ExternalID, now); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		rec, err := ledgerRecord("booking", "ledger.booking.completed", b.ID, map[string]interface{}{
			"booking_id": b.ID,
			"event_id":   b.EventID,
			"payment_id": p.ID,
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
		booking, payment, event = b, p, ev
		return nil
	})
	if err != nil {
		return domain.Booking{}, domain.Payment{}, errors.Wrap(err, "settle payment")
	}

	if duplicate {
		if booking.PaymentID != nil {
			if p, err := c.store.GetPayment(ctx, *booking.PaymentID); err == nil {
				payment = p
			}
		}
		return booking, payment, nil
	}
	if anomaly != "" {
		c.logger.WithFields(map[string]interface{}{
			"severity":            "high",
			"kind":                anomaly,
			"booking_id":          booking.ID,
			"status":              booking.Status,
			"external_payment_id": auth.ExternalID,
			"amount":              auth.Amount,
		}).Error("payment authorized but not settled; refund required")
		observability.Anomalies.WithLabelValues(anomaly).Inc()
	}
	if rejection != nil {
		if anomaly != "refund_required" {
			// booking was not changed by this call
			return booking, domain.Payment{}, rejection
		}
		if errors.Is(rejection, domain.ErrInsufficientInventory) {
			observability.InventoryRejections.WithLabelValues(classLabel(booking.Class), "commit").Inc()
		}
		observability.BookingTransitions.WithLabelValues(string(domain.BookingFailed), booking.FailureReason).Inc()
		c.emit(ctx, notify.BookingFailed, nil, &booking, nil)
		return booking, domain.Payment{}, rejection
	}

	observability.BookingTransitions.WithLabelValues(string(domain.BookingCompleted), "paid").Inc()
	observability.SeatAdjustments.WithLabelValues(string(booking.Class), "decrement").Add(float64(booking.Quantity))
	c.emit(ctx, notify.BookingConfirmed, &event, &booking, &payment)
	return booking, payment, nil
}

// recordRefundRequired writes the ledger entry for a charge that was taken
// but did not buy seats.
func (c *Coordinator) recordRefundRequired(ctx context.Context, tx Tx, b domain.Booking, auth domain.Authorization, reason string, now time.Time) error {
	currency := auth.Currency
	if currency == "" {
		currency = c.opts.Currency
	}
	rec, err := ledgerRecord("booking", "ledger.booking.refund_required", b.ID, map[string]interface{}{
		"booking_id":          b.ID,
		"event_id":            b.EventID,
		"user_id":             b.UserID,
		"external_payment_id": auth.ExternalID,
		"amount":              auth.Amount,
		"currency":            currency,
		"reason":              reason,
	}, now)
	if err != nil {
		return err
	}
	return tx.InsertOutbox(ctx, rec)
}

// failPending moves a still-Pending booking to Failed. Bookings in any other
// state are returned unchanged, so repeated calls are harmless.
func (c *Coordinator) failPending(ctx context.Context, bookingID uuid.UUID, reason string) (domain.Booking, bool, error) {
	var (
		booking domain.Booking
		changed bool
	)
	err := c.commit(ctx, "fail_pending", func(tx Tx) error {
		changed = false
		b, err := tx.GetBookingForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		booking = b
		if b.Status != domain.BookingPending {
			return nil
		}
		if err := b.Fail(reason, c.now()); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		booking, changed = b, true
		return nil
	})
	if err != nil {
		return domain.Booking{}, false, errors.Wrap(err, "fail booking")
	}
	if changed {
		observability.BookingTransitions.WithLabelValues(string(domain.BookingFailed), reason).Inc()
		c.emit(ctx, notify.BookingFailed, nil, &booking, nil)
	}
	return booking, changed, nil
}

func soldOut(b domain.Booking, remaining int) error {
	return errors.WithHint(
		errors.Wrapf(domain.ErrInsufficientInventory, "requested %d %s seats, %d remaining", b.Quantity, b.Class, remaining),
		"choose another class or a smaller quantity",
	)
}

func (c *Coordinator) GetBooking(ctx context.Context, actor domain.Actor, id uuid.UUID) (domain.Booking, error) {
	b, err := c.store.GetBooking(ctx, id)
	if err != nil {
		return domain.Booking{}, err
	}
	if !actor.CanManage(b.UserID) {
		return domain.Booking{}, errors.Wrap(domain.ErrUnauthorized, "not the booking owner")
	}
	return b, nil
}

// ListBookings returns the actor's bookings, newest first.
func (c *Coordinator) ListBookings(ctx context.Context, actor domain.Actor) ([]domain.Booking, error) {
	if actor.UserID == uuid.Nil {
		return nil, domain.ErrUnauthenticated
	}
	return c.store.ListBookingsByUser(ctx, actor.UserID)
}
