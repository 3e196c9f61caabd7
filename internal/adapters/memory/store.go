// Package memory is an in-process inventory.Store. Transactions are
// serialized by a single lock and applied to a private copy, so a failed
// transaction leaves no trace.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
)

type state struct {
	events   map[uuid.UUID]domain.Event
	bookings map[uuid.UUID]domain.Booking
	payments map[uuid.UUID]domain.Payment
	outbox   []domain.OutboxRecord
}

func (s *state) clone() *state {
	c := &state{
		events:   make(map[uuid.UUID]domain.Event, len(s.events)),
		bookings: make(map[uuid.UUID]domain.Booking, len(s.bookings)),
		payments: make(map[uuid.UUID]domain.Payment, len(s.payments)),
		outbox:   append([]domain.OutboxRecord(nil), s.outbox...),
	}
	for k, v := range s.events {
		c.events[k] = v
	}
	for k, v := range s.bookings {
		c.bookings[k] = copyBooking(v)
	}
	for k, v := range s.payments {
		c.payments[k] = copyPayment(v)
	}
	return c
}

type Store struct {
	mu    sync.Mutex
	state *state
	// relayMu serializes RelayOutbox callers without holding mu during send.
	relayMu sync.Mutex
}

func NewStore() *Store {
	return &Store{state: &state{
		events:   map[uuid.UUID]domain.Event{},
		bookings: map[uuid.UUID]domain.Booking{},
		payments: map[uuid.UUID]domain.Payment{},
	}}
}

var _ inventory.Store = (*Store)(nil)

func (s *Store) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.state.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) GetEvent(_ context.Context, id uuid.UUID) (domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.event(id)
}

func (s *Store) ListEvents(_ context.Context) ([]domain.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Event, 0, len(s.state.events))
	for _, e := range s.state.events {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *Store) GetBooking(_ context.Context, id uuid.UUID) (domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.booking(id)
}

func (s *Store) ListBookingsByUser(_ context.Context, userID uuid.UUID) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Booking
	for _, b := range s.state.bookings {
		if b.UserID == userID {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListExpiredPending(_ context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Booking
	for _, b := range s.state.bookings {
		if b.Status == domain.BookingPending && !b.ExpiresAt.After(now) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetPayment(_ context.Context, id uuid.UUID) (domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.state.payments[id]
	if !ok {
		return domain.Payment{}, errors.Wrapf(domain.ErrNotFound, "payment %s", id)
	}
	return copyPayment(p), nil
}

func (s *Store) ListPaymentsByUser(_ context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	return s.listPayments(func(p domain.Payment) bool { return p.UserID == userID }), nil
}

func (s *Store) ListPayments(_ context.Context) ([]domain.Payment, error) {
	return s.listPayments(func(domain.Payment) bool { return true }), nil
}

func (s *Store) listPayments(keep func(domain.Payment) bool) []domain.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Payment
	for _, p := range s.state.payments {
		if keep(p) {
			out = append(out, copyPayment(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// GetUnpublishedOutbox returns up to limit NEW records, oldest first.
func (s *Store) GetUnpublishedOutbox(_ context.Context, limit int) ([]domain.OutboxRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.OutboxRecord
	for _, rec := range s.state.outbox {
		if rec.Status != "NEW" {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// RelayOutbox sends up to limit NEW records oldest first and marks each one
// published. Relays are serialized so a record is never handed out twice.
func (s *Store) RelayOutbox(ctx context.Context, limit int, send func(domain.OutboxRecord) error) (int, error) {
	s.relayMu.Lock()
	defer s.relayMu.Unlock()

	records, err := s.GetUnpublishedOutbox(ctx, limit)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, rec := range records {
		if err := send(rec); err != nil {
			return sent, err
		}
		if err := s.MarkPublished(ctx, rec.ID, time.Now(), rec.DedupeKey); err != nil {
			return sent, err
		}
		sent++
	}
	return sent, nil
}

func (s *Store) MarkPublished(_ context.Context, id uuid.UUID, publishedAt time.Time, dedupeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.state.outbox {
		if s.state.outbox[i].ID == id {
			at := publishedAt
			s.state.outbox[i].Status = "PUBLISHED"
			s.state.outbox[i].PublishedAt = &at
			s.state.outbox[i].DedupeKey = dedupeKey
			return nil
		}
	}
	return errors.Wrapf(domain.ErrNotFound, "outbox record %s", id)
}

func (st *state) event(id uuid.UUID) (domain.Event, error) {
	e, ok := st.events[id]
	if !ok {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return e, nil
}

func (st *state) booking(id uuid.UUID) (domain.Booking, error) {
	b, ok := st.bookings[id]
	if !ok {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return copyBooking(b), nil
}

func copyBooking(b domain.Booking) domain.Booking {
	if b.PaymentID != nil {
		id := *b.PaymentID
		b.PaymentID = &id
	}
	return b
}

func copyPayment(p domain.Payment) domain.Payment {
	if p.RefundedAt != nil {
		at := *p.RefundedAt
		p.RefundedAt = &at
	}
	return p
}
