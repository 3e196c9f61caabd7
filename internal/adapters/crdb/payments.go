package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

const paymentColumns = `id, booking_id, event_id, user_id, class, quantity, unit_price, total_amount,
	currency, method, external_id, status, created_at, refunded_at`

func scanPayment(row pgx.Row) (domain.Payment, error) {
	var p domain.Payment
	err := row.Scan(&p.ID, &p.BookingID, &p.EventID, &p.UserID, &p.Class, &p.Quantity, &p.UnitPrice, &p.TotalAmount,
		&p.Currency, &p.Method, &p.ExternalID, &p.Status, &p.CreatedAt, &p.RefundedAt)
	return p, err
}

func queryPayments(ctx context.Context, q querier, sql string, args ...any) ([]domain.Payment, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

func (t *pgTx) InsertPayment(ctx context.Context, p domain.Payment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO payments (id, booking_id, event_id, user_id, class, quantity, unit_price, total_amount,
			currency, method, external_id, status, created_at, refunded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, p.ID, p.BookingID, p.EventID, p.UserID, p.Class, p.Quantity, p.UnitPrice, p.TotalAmount,
		p.Currency, p.Method, p.ExternalID, p.Status, p.CreatedAt, p.RefundedAt)
	return err
}

func (t *pgTx) UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status domain.PaymentStatus, at time.Time) error {
	var refundedAt *time.Time
	if status == domain.PaymentRefunded {
		refundedAt = &at
	}
	result, err := t.tx.Exec(ctx, `
		UPDATE payments SET status = $2, refunded_at = $3 WHERE id = $1
	`, id, status, refundedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "payment %s", id)
	}
	return nil
}
