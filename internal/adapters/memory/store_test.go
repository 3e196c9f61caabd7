package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedEvent(t *testing.T, s *Store, vip int) domain.Event {
	t.Helper()
	e := domain.Event{
		ID:    uuid.New(),
		Title: "Concert",
		Date:  time.Now().Add(24 * time.Hour),
		VIP:   domain.SeatPool{Capacity: vip, Remaining: vip, Price: 100},
	}
	require.NoError(t, s.WithTx(context.Background(), func(tx inventory.Tx) error {
		return tx.InsertEvent(context.Background(), e)
	}))
	return e
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	e := seedEvent(t, s, 5)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx inventory.Tx) error {
		if _, err := tx.AdjustSeats(ctx, e.ID, domain.ClassVIP, -3); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.VIP.Remaining)
}

func TestAdjustSeatsGuards(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	e := seedEvent(t, s, 2)

	err := s.WithTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.AdjustSeats(ctx, e.ID, domain.ClassVIP, -3)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrInsufficientInventory))

	err = s.WithTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.AdjustSeats(ctx, e.ID, domain.ClassVIP, 1)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrCapacityExceeded))

	err = s.WithTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.AdjustSeats(ctx, uuid.New(), domain.ClassVIP, 1)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListExpiredPending(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	e := seedEvent(t, s, 5)
	now := time.Now()

	mk := func(expires time.Time, status domain.BookingStatus) domain.Booking {
		return domain.Booking{ID: uuid.New(), EventID: e.ID, Class: domain.ClassVIP, Quantity: 1, Status: status, ExpiresAt: expires}
	}
	old := mk(now.Add(-time.Hour), domain.BookingPending)
	older := mk(now.Add(-2*time.Hour), domain.BookingPending)
	fresh := mk(now.Add(time.Hour), domain.BookingPending)
	done := mk(now.Add(-time.Hour), domain.BookingCompleted)
	require.NoError(t, s.WithTx(ctx, func(tx inventory.Tx) error {
		for _, b := range []domain.Booking{old, older, fresh, done} {
			if err := tx.InsertBooking(ctx, b); err != nil {
				return err
			}
		}
		return nil
	}))

	got, err := s.ListExpiredPending(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, older.ID, got[0].ID)
	assert.Equal(t, old.ID, got[1].ID)

	got, err = s.ListExpiredPending(ctx, now, 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestOutboxPublishCycle(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	rec := domain.OutboxRecord{ID: uuid.New(), EventType: "ledger.booking.completed", Payload: []byte(`{}`), DedupeKey: "k"}
	require.NoError(t, s.WithTx(ctx, func(tx inventory.Tx) error { return tx.InsertOutbox(ctx, rec) }))

	pending, err := s.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	require.NoError(t, s.MarkPublished(ctx, rec.ID, time.Now(), "k"))
	pending, err = s.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestInsertPaymentRejectsDuplicateExternalID(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	p := domain.Payment{ID: uuid.New(), ExternalID: "pay_1"}
	require.NoError(t, s.WithTx(ctx, func(tx inventory.Tx) error { return tx.InsertPayment(ctx, p) }))

	err := s.WithTx(ctx, func(tx inventory.Tx) error {
		return tx.InsertPayment(ctx, domain.Payment{ID: uuid.New(), ExternalID: "pay_1"})
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))
}
