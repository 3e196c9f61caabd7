package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
)

const (
	SerializationFailureCode = "40001"
	UniqueViolationCode      = "23505"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

var _ inventory.Store = (*Repository)(nil)

// WithTx runs fn in a SERIALIZABLE transaction. A serialization failure from
// fn or from the commit itself is reported as domain.ErrSerializationFailure.
func (r *Repository) WithTx(ctx context.Context, fn func(tx inventory.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, "SET TRANSACTION ISOLATION LEVEL SERIALIZABLE")
	if err != nil {
		return mapErr(err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return mapErr(err)
	}
	return mapErr(tx.Commit(ctx))
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SerializationFailureCode:
			return errors.Mark(errors.Wrap(err, "serialization failure"), domain.ErrSerializationFailure)
		case UniqueViolationCode:
			return errors.Mark(errors.Wrap(err, pgErr.ConstraintName), domain.ErrConflict)
		}
	}
	return err
}

// pgTx implements inventory.Tx on top of one pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (r *Repository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return getEvent(ctx, r.pool, id, false)
}

func (r *Repository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventColumns+` FROM events WHERE deleted_at IS NULL ORDER BY date ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *Repository) GetBooking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, r.pool, id, false)
}

func (r *Repository) ListBookingsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Booking, error) {
	return queryBookings(ctx, r.pool, `
		SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
}

func (r *Repository) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	return queryBookings(ctx, r.pool, `
		SELECT `+bookingColumns+` FROM bookings
		WHERE status = 'PENDING' AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2
	`, now, limit)
}

func (r *Repository) GetPayment(ctx context.Context, id uuid.UUID) (domain.Payment, error) {
	p, err := scanPayment(r.pool.QueryRow(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Payment{}, errors.Wrapf(domain.ErrNotFound, "payment %s", id)
	}
	return p, err
}

func (r *Repository) ListPaymentsByUser(ctx context.Context, userID uuid.UUID) ([]domain.Payment, error) {
	return queryPayments(ctx, r.pool, `
		SELECT `+paymentColumns+` FROM payments WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
}

func (r *Repository) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	return queryPayments(ctx, r.pool, `SELECT `+paymentColumns+` FROM payments ORDER BY created_at DESC`)
}

// Ping backs the readiness check.
func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
