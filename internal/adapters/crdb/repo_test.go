package crdb_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-ticket-inventory/internal/adapters/crdb"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

func newRepository(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = crdbContainer.Terminate(ctx) })

	hostPort, err := crdbContainer.Endpoint(ctx, "")
	require.NoError(t, err)

	admin, err := pgxpool.New(ctx, "postgresql://root@"+hostPort+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	_, err = admin.Exec(ctx, `CREATE DATABASE IF NOT EXISTS inventory`)
	require.NoError(t, err)
	admin.Close()

	pool, err := pgxpool.New(ctx, "postgresql://root@"+hostPort+"/inventory?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, crdb.Migrate(ctx, pool))

	return crdb.NewRepository(pool)
}

func insertEvent(t *testing.T, repo *crdb.Repository, vip, regular int) domain.Event {
	t.Helper()
	now := time.Now().UTC().Truncate(time.Microsecond)
	e, err := domain.NewEvent(domain.EventInput{
		Title: "Jazz Night", Date: now.Add(48 * time.Hour), Location: "Blue Room", Category: "music", Organizer: "Club",
		VIPCapacity: vip, RegularCapacity: regular, VIPPrice: 9000, RegularPrice: 3000,
	}, uuid.New(), now)
	require.NoError(t, err)
	require.NoError(t, repo.WithTx(context.Background(), func(tx inventory.Tx) error {
		return tx.InsertEvent(context.Background(), e)
	}))
	return e
}

func TestRepository_AdjustSeats(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	e := insertEvent(t, repo, 3, 0)

	var after domain.Event
	err := repo.WithTx(ctx, func(tx inventory.Tx) error {
		var err error
		after, err = tx.AdjustSeats(ctx, e.ID, domain.ClassVIP, -2)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, after.VIP.Remaining)

	err = repo.WithTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.AdjustSeats(ctx, e.ID, domain.ClassVIP, -2)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrInsufficientInventory), "got %v", err)

	err = repo.WithTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.AdjustSeats(ctx, e.ID, domain.ClassVIP, 3)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrCapacityExceeded), "got %v", err)

	err = repo.WithTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.AdjustSeats(ctx, uuid.New(), domain.ClassVIP, 1)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)
}

func TestRepository_ConcurrentDecrements(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	const seats, workers = 5, 20
	e := insertEvent(t, repo, 0, seats)

	var ok, soldOut int64
	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				err := repo.WithTx(ctx, func(tx inventory.Tx) error {
					_, err := tx.AdjustSeats(ctx, e.ID, domain.ClassRegular, -1)
					return err
				})
				switch {
				case err == nil:
					atomic.AddInt64(&ok, 1)
					return nil
				case errors.Is(err, domain.ErrInsufficientInventory):
					atomic.AddInt64(&soldOut, 1)
					return nil
				case errors.Is(err, domain.ErrSerializationFailure):
					continue
				default:
					return err
				}
			}
		})
	}
	require.NoError(t, g.Wait())

	assert.EqualValues(t, seats, ok)
	assert.EqualValues(t, workers-seats, soldOut)
	got, err := repo.GetEvent(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Regular.Remaining)
}

func TestRepository_SetCapacityKeepsSold(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	e := insertEvent(t, repo, 0, 100)

	require.NoError(t, repo.WithTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.AdjustSeats(ctx, e.ID, domain.ClassRegular, -90)
		return err
	}))

	err := repo.WithTx(ctx, func(tx inventory.Tx) error {
		_, err := tx.SetCapacity(ctx, e.ID, domain.ClassRegular, 50)
		return err
	})
	assert.True(t, errors.Is(err, domain.ErrInvalidCapacityEdit), "got %v", err)

	var after domain.Event
	require.NoError(t, repo.WithTx(ctx, func(tx inventory.Tx) error {
		var err error
		after, err = tx.SetCapacity(ctx, e.ID, domain.ClassRegular, 120)
		return err
	}))
	assert.Equal(t, 120, after.Regular.Capacity)
	assert.Equal(t, 30, after.Regular.Remaining)
}

func TestRepository_BookingAndPaymentLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	e := insertEvent(t, repo, 4, 0)
	now := time.Now().UTC().Truncate(time.Microsecond)

	b, err := domain.NewBooking(e, uuid.New(), domain.ClassVIP, 2, time.Minute, now)
	require.NoError(t, err)
	require.NoError(t, repo.WithTx(ctx, func(tx inventory.Tx) error { return tx.InsertBooking(ctx, b) }))

	expired, err := repo.ListExpiredPending(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	p := domain.NewPayment(b, domain.Authorization{ExternalID: "pay_1", Amount: b.TotalAmount, Currency: "usd"}, "card", now)
	require.NoError(t, repo.WithTx(ctx, func(tx inventory.Tx) error {
		locked, err := tx.GetBookingForUpdate(ctx, b.ID)
		if err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, p); err != nil {
			return err
		}
		if err := locked.Complete(p.ID, p.ExternalID, now); err != nil {
			return err
		}
		return tx.UpdateBooking(ctx, locked)
	}))

	got, err := repo.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingCompleted, got.Status)
	require.NotNil(t, got.PaymentID)
	assert.Equal(t, p.ID, *got.PaymentID)

	err = repo.WithTx(ctx, func(tx inventory.Tx) error {
		dup := p
		dup.ID = uuid.New()
		return tx.InsertPayment(ctx, dup)
	})
	assert.True(t, errors.Is(err, domain.ErrConflict), "got %v", err)

	require.NoError(t, repo.WithTx(ctx, func(tx inventory.Tx) error {
		return tx.UpdatePaymentStatus(ctx, p.ID, domain.PaymentRefunded, now)
	}))
	refunded, err := repo.GetPayment(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentRefunded, refunded.Status)
	assert.NotNil(t, refunded.RefundedAt)

	err = repo.WithTx(ctx, func(tx inventory.Tx) error {
		n, err := tx.CountActiveBookings(ctx, e.ID)
		if err != nil {
			return err
		}
		assert.Equal(t, 1, n)
		return nil
	})
	require.NoError(t, err)
}

func TestRepository_DeletedEventIsHidden(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	e := insertEvent(t, repo, 1, 1)

	require.NoError(t, repo.WithTx(ctx, func(tx inventory.Tx) error { return tx.DeleteEvent(ctx, e.ID) }))

	_, err := repo.GetEvent(ctx, e.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	b, err := domain.NewBooking(e, uuid.New(), domain.ClassVIP, 1, time.Minute, time.Now())
	require.NoError(t, err)
	err = repo.WithTx(ctx, func(tx inventory.Tx) error { return tx.InsertBooking(ctx, b) })
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestRepository_Outbox(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	rec := domain.OutboxRecord{
		ID: uuid.New(), AggregateType: "booking", AggregateID: uuid.New(),
		EventType: "ledger.booking.completed", Payload: []byte(`{"quantity":2}`),
		CreatedAt: time.Now(), DedupeKey: "k1",
	}
	require.NoError(t, repo.WithTx(ctx, func(tx inventory.Tx) error { return tx.InsertOutbox(ctx, rec) }))

	pending, err := repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].ID)

	require.NoError(t, repo.MarkPublished(ctx, rec.ID, time.Now(), "k1"))
	pending, err = repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRepository_RelayOutboxSkipsLockedRows(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	base := time.Now().Add(-time.Minute)
	var ids []uuid.UUID
	require.NoError(t, repo.WithTx(ctx, func(tx inventory.Tx) error {
		for i := 0; i < 4; i++ {
			id := uuid.New()
			ids = append(ids, id)
			err := tx.InsertOutbox(ctx, domain.OutboxRecord{
				ID: id, AggregateType: "booking", AggregateID: uuid.New(),
				EventType: "ledger.booking.completed", Payload: []byte(`{}`),
				CreatedAt: base.Add(time.Duration(i) * time.Second), DedupeKey: id.String(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	holding := make(chan struct{})
	release := make(chan struct{})
	var first []uuid.UUID
	var g errgroup.Group
	g.Go(func() error {
		_, err := repo.RelayOutbox(ctx, 2, func(rec domain.OutboxRecord) error {
			first = append(first, rec.ID)
			if len(first) == 1 {
				close(holding)
				<-release
			}
			return nil
		})
		return err
	})

	<-holding
	var second []uuid.UUID
	n, err := repo.RelayOutbox(ctx, 10, func(rec domain.OutboxRecord) error {
		second = append(second, rec.ID)
		return nil
	})
	close(release)
	require.NoError(t, g.Wait())
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, ids[:2], first)
	assert.Equal(t, ids[2:], second)

	pending, err := repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestRepository_RelayOutboxKeepsFailedRecord(t *testing.T) {
	ctx := context.Background()
	repo := newRepository(t)
	var ids []uuid.UUID
	require.NoError(t, repo.WithTx(ctx, func(tx inventory.Tx) error {
		for i := 0; i < 2; i++ {
			id := uuid.New()
			ids = append(ids, id)
			err := tx.InsertOutbox(ctx, domain.OutboxRecord{
				ID: id, AggregateType: "booking", AggregateID: uuid.New(),
				EventType: "ledger.booking.completed", Payload: []byte(`{}`),
				CreatedAt: time.Now().Add(time.Duration(i) * time.Second), DedupeKey: id.String(),
			})
			if err != nil {
				return err
			}
		}
		return nil
	}))

	calls := 0
	n, err := repo.RelayOutbox(ctx, 10, func(domain.OutboxRecord) error {
		calls++
		if calls == 2 {
			return errors.New("channel closed")
		}
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, 1, n)

	pending, err := repo.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, ids[1], pending[0].ID)
}
