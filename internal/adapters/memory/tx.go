package memory

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

type tx struct {
	st *state
}

func (t *tx) GetEvent(_ context.Context, id uuid.UUID) (domain.Event, error) {
	return t.st.event(id)
}

func (t *tx) GetEventForUpdate(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return t.GetEvent(ctx, id)
}

func (t *tx) InsertEvent(_ context.Context, e domain.Event) error {
	if _, ok := t.st.events[e.ID]; ok {
		return errors.Wrapf(domain.ErrConflict, "event %s exists", e.ID)
	}
	t.st.events[e.ID] = e
	return nil
}

// UpdateEventDetails writes everything except the seat counters.
func (t *tx) UpdateEventDetails(_ context.Context, e domain.Event) error {
	cur, err := t.st.event(e.ID)
	if err != nil {
		return err
	}
	e.VIP.Capacity, e.VIP.Remaining = cur.VIP.Capacity, cur.VIP.Remaining
	e.Regular.Capacity, e.Regular.Remaining = cur.Regular.Capacity, cur.Regular.Remaining
	e.CreatedBy, e.CreatedAt = cur.CreatedBy, cur.CreatedAt
	t.st.events[e.ID] = e
	return nil
}

func (t *tx) DeleteEvent(_ context.Context, id uuid.UUID) error {
	if _, err := t.st.event(id); err != nil {
		return err
	}
	delete(t.st.events, id)
	return nil
}

func (t *tx) CountActiveBookings(_ context.Context, eventID uuid.UUID) (int, error) {
	n := 0
	for _, b := range t.st.bookings {
		if b.EventID == eventID && (b.Status == domain.BookingPending || b.Status == domain.BookingCompleted) {
			n++
		}
	}
	return n, nil
}

func (t *tx) AdjustSeats(_ context.Context, eventID uuid.UUID, class domain.SeatClass, delta int) (domain.Event, error) {
	e, err := t.st.event(eventID)
	if err != nil {
		return domain.Event{}, err
	}
	pool, err := e.Pool(class)
	if err != nil {
		return domain.Event{}, err
	}
	if pool, err = pool.Adjust(delta); err != nil {
		return domain.Event{}, err
	}
	if err := e.SetPool(class, pool); err != nil {
		return domain.Event{}, err
	}
	t.st.events[eventID] = e
	return e, nil
}

func (t *tx) SetCapacity(_ context.Context, eventID uuid.UUID, class domain.SeatClass, capacity int) (domain.Event, error) {
	e, err := t.st.event(eventID)
	if err != nil {
		return domain.Event{}, err
	}
	pool, err := e.Pool(class)
	if err != nil {
		return domain.Event{}, err
	}
	if pool, err = pool.Rederive(capacity); err != nil {
		return domain.Event{}, err
	}
	if err := e.SetPool(class, pool); err != nil {
		return domain.Event{}, err
	}
	t.st.events[eventID] = e
	return e, nil
}

func (t *tx) InsertBooking(_ context.Context, b domain.Booking) error {
	if _, ok := t.st.events[b.EventID]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "event %s", b.EventID)
	}
	if _, ok := t.st.bookings[b.ID]; ok {
		return errors.Wrapf(domain.ErrConflict, "booking %s exists", b.ID)
	}
	t.st.bookings[b.ID] = copyBooking(b)
	return nil
}

func (t *tx) GetBookingForUpdate(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	return t.st.booking(id)
}

func (t *tx) UpdateBooking(_ context.Context, b domain.Booking) error {
	if _, ok := t.st.bookings[b.ID]; !ok {
		return errors.Wrapf(domain.ErrNotFound, "booking %s", b.ID)
	}
	t.st.bookings[b.ID] = copyBooking(b)
	return nil
}

func (t *tx) InsertPayment(_ context.Context, p domain.Payment) error {
	for _, existing := range t.st.payments {
		if existing.ExternalID == p.ExternalID {
			return errors.Wrapf(domain.ErrConflict, "external payment %s already recorded", p.ExternalID)
		}
	}
	t.st.payments[p.ID] = copyPayment(p)
	return nil
}

func (t *tx) UpdatePaymentStatus(_ context.Context, id uuid.UUID, status domain.PaymentStatus, at time.Time) error {
	p, ok := t.st.payments[id]
	if !ok {
		return errors.Wrapf(domain.ErrNotFound, "payment %s", id)
	}
	p.Status = status
	if status == domain.PaymentRefunded {
		p.RefundedAt = &at
	}
	t.st.payments[id] = p
	return nil
}

func (t *tx) InsertOutbox(_ context.Context, rec domain.OutboxRecord) error {
	if rec.Status == "" {
		rec.Status = "NEW"
	}
	t.st.outbox = append(t.st.outbox, rec)
	return nil
}
