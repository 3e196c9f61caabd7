package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

const bookingColumns = `id, event_id, user_id, class, quantity, unit_price, total_amount, status,
	payment_id, external_payment_id, failure_reason, expires_at, created_at, updated_at`

func scanBooking(row pgx.Row) (domain.Booking, error) {
	var b domain.Booking
	err := row.Scan(&b.ID, &b.EventID, &b.UserID, &b.Class, &b.Quantity, &b.UnitPrice, &b.TotalAmount, &b.Status,
		&b.PaymentID, &b.ExternalPaymentID, &b.FailureReason, &b.ExpiresAt, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func getBooking(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (domain.Booking, error) {
	sql := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return b, err
}

func queryBookings(ctx context.Context, q querier, sql string, args ...any) ([]domain.Booking, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// InsertBooking requires a live event; the existence check runs in the same
// transaction so a concurrent delete cannot slip between them.
func (t *pgTx) InsertBooking(ctx context.Context, b domain.Booking) error {
	result, err := t.tx.Exec(ctx, `
		INSERT INTO bookings (id, event_id, user_id, class, quantity, unit_price, total_amount, status,
			payment_id, external_payment_id, failure_reason, expires_at, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		WHERE EXISTS (SELECT 1 FROM events WHERE id = $2 AND deleted_at IS NULL)
	`, b.ID, b.EventID, b.UserID, b.Class, b.Quantity, b.UnitPrice, b.TotalAmount, b.Status,
		b.PaymentID, b.ExternalPaymentID, b.FailureReason, b.ExpiresAt, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "event %s", b.EventID)
	}
	return nil
}

func (t *pgTx) GetBookingForUpdate(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	return getBooking(ctx, t.tx, id, true)
}

func (t *pgTx) UpdateBooking(ctx context.Context, b domain.Booking) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE bookings SET status = $2, payment_id = $3, external_payment_id = $4, failure_reason = $5, updated_at = $6
		WHERE id = $1
	`, b.ID, b.Status, b.PaymentID, b.ExternalPaymentID, b.FailureReason, b.UpdatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "booking %s", b.ID)
	}
	return nil
}
