package domain

import (
	"math"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// NewBooking creates a Pending booking priced from the event. The remaining
// check here is advisory; the authoritative one runs at commit.
func NewBooking(event Event, userID uuid.UUID, class SeatClass, quantity int, ttl time.Duration, now time.Time) (Booking, error) {
	pool, err := event.Pool(class)
	if err != nil {
		return Booking{}, err
	}
	if quantity < 1 {
		return Booking{}, errors.Wrap(ErrInvalidInput, "quantity must be at least 1")
	}
	if pool.Price > 0 && int64(quantity) > math.MaxInt64/pool.Price {
		return Booking{}, errors.Wrapf(ErrInvalidInput, "total for %d seats at %d overflows", quantity, pool.Price)
	}
	if quantity > pool.Remaining {
		return Booking{}, errors.WithHint(
			errors.Wrapf(ErrInsufficientInventory, "requested %d %s seats, %d remaining", quantity, class, pool.Remaining),
			"choose a smaller quantity or another ticket class",
		)
	}
	return Booking{
		ID:          uuid.New(),
		EventID:     event.ID,
		UserID:      userID,
		Class:       class,
		Quantity:    quantity,
		UnitPrice:   pool.Price,
		TotalAmount: pool.Price * int64(quantity),
		Status:      BookingPending,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (b Booking) transitionErr(to BookingStatus) error {
	if b.Status.Terminal() {
		return errors.Wrapf(ErrAlreadyTerminal, "booking %s is %s", b.ID, b.Status)
	}
	return errors.Wrapf(ErrInvalidState, "booking %s cannot move from %s to %s", b.ID, b.Status, to)
}

// Complete moves a Pending booking to Completed.
func (b *Booking) Complete(paymentID uuid.UUID, externalID string, now time.Time) error {
	if b.Status != BookingPending {
		return b.transitionErr(BookingCompleted)
	}
	b.Status = BookingCompleted
	b.PaymentID = &paymentID
	b.ExternalPaymentID = externalID
	b.UpdatedAt = now
	return nil
}

// Fail moves a Pending booking to Failed.
func (b *Booking) Fail(reason string, now time.Time) error {
	if b.Status != BookingPending {
		return b.transitionErr(BookingFailed)
	}
	b.Status = BookingFailed
	b.FailureReason = reason
	b.UpdatedAt = now
	return nil
}

// Refund moves a Completed booking to Refunded.
func (b *Booking) Refund(now time.Time) error {
	if b.Status != BookingCompleted {
		return b.transitionErr(BookingRefunded)
	}
	b.Status = BookingRefunded
	b.UpdatedAt = now
	return nil
}

// NewPayment records the capture for a booking that is about to complete.
func NewPayment(b Booking, auth Authorization, method string, now time.Time) Payment {
	return Payment{
		ID:          uuid.New(),
		BookingID:   b.ID,
		EventID:     b.EventID,
		UserID:      b.UserID,
		Class:       b.Class,
		Quantity:    b.Quantity,
		UnitPrice:   b.UnitPrice,
		TotalAmount: b.TotalAmount,
		Currency:    auth.Currency,
		Method:      method,
		ExternalID:  auth.ExternalID,
		Status:      PaymentCompleted,
		CreatedAt:   now,
	}
}
