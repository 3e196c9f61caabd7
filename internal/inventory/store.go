package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

// Store is the durable home of events, bookings and payments. Reads outside
// a transaction are snapshots and must not drive seat mutations.
type Store interface {
	// WithTx runs fn in one transaction. Returning domain.ErrSerializationFailure
	// means the transaction lost a conflict and may be retried as a whole.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	ListEvents(ctx context.Context) ([]domain.Event, error)
	GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error)
	ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
	GetPayment(ctx context.Context, id uuid.UUID) (domain.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error)
	ListPayments(ctx context.Context) ([]domain.Payment, error)
}

// Tx is the set of writes available inside a transaction.
//
// AdjustSeats is the only way to move remaining seats: it applies delta in a
// single guarded update, failing with domain.ErrInsufficientInventory below
// zero and domain.ErrCapacityExceeded above capacity, and returns the
// post-adjustment event. SetCapacity applies a capacity edit the same way.
type Tx interface {
	GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error)
	GetEventForUpdate(ctx context.Context, id uuid.UUID) (domain.Event, error)
	InsertEvent(ctx context.Context, e domain.Event) error
	UpdateEventDetails(ctx context.Context, e domain.Event) error
	DeleteEvent(ctx context.Context, id uuid.UUID) error
	CountActiveBookings(ctx context.Context, eventID uuid.UUID) (int, error)

	AdjustSeats(ctx context.Context, eventID uuid.UUID, class domain.SeatClass, delta int) (domain.Event, error)
	SetCapacity(ctx context.Context, eventID uuid.UUID, class domain.SeatClass, capacity int) (domain.Event, error)

	InsertBooking(ctx context.Context, b domain.Booking) error
	GetBookingForUpdate(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	UpdateBooking(ctx context.Context, b domain.Booking) error

	InsertPayment(ctx context.Context, p domain.Payment) error
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, at time.Time) error

	InsertOutbox(ctx context.Context, rec domain.OutboxRecord) error
}
