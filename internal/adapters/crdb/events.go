package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

const eventColumns = `id, title, description, date, location, category, organizer, media_url, created_by,
	vip_capacity, vip_remaining, vip_price, regular_capacity, regular_remaining, regular_price,
	created_at, updated_at`

func scanEvent(row pgx.Row) (domain.Event, error) {
	var e domain.Event
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.Date, &e.Location, &e.Category, &e.Organizer, &e.MediaURL, &e.CreatedBy,
		&e.VIP.Capacity, &e.VIP.Remaining, &e.VIP.Price, &e.Regular.Capacity, &e.Regular.Remaining, &e.Regular.Price,
		&e.CreatedAt, &e.UpdatedAt)
	return e, err
}

func getEvent(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (domain.Event, error) {
	sql := `SELECT ` + eventColumns + ` FROM events WHERE id = $1 AND deleted_at IS NULL`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	e, err := scanEvent(q.QueryRow(ctx, sql, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return e, err
}

// seatColumns maps a class to its column pair. Only these fixed names ever
// reach the SQL text.
func seatColumns(class domain.SeatClass) (capacity, remaining string, err error) {
	switch class {
	case domain.ClassVIP:
		return "vip_capacity", "vip_remaining", nil
	case domain.ClassRegular:
		return "regular_capacity", "regular_remaining", nil
	}
	return "", "", errors.Wrapf(domain.ErrInvalidTicketClass, "%q", string(class))
}

func (t *pgTx) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return getEvent(ctx, t.tx, id, false)
}

func (t *pgTx) GetEventForUpdate(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return getEvent(ctx, t.tx, id, true)
}

func (t *pgTx) InsertEvent(ctx context.Context, e domain.Event) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO events (id, title, description, date, location, category, organizer, media_url, created_by,
			vip_capacity, vip_remaining, vip_price, regular_capacity, regular_remaining, regular_price,
			created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, e.ID, e.Title, e.Description, e.Date, e.Location, e.Category, e.Organizer, e.MediaURL, e.CreatedBy,
		e.VIP.Capacity, e.VIP.Remaining, e.VIP.Price, e.Regular.Capacity, e.Regular.Remaining, e.Regular.Price,
		e.CreatedAt, e.UpdatedAt)
	return err
}

// UpdateEventDetails never writes capacity or remaining.
func (t *pgTx) UpdateEventDetails(ctx context.Context, e domain.Event) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE events SET title = $2, description = $3, date = $4, location = $5, category = $6,
			organizer = $7, media_url = $8, vip_price = $9, regular_price = $10, updated_at = $11
		WHERE id = $1 AND deleted_at IS NULL
	`, e.ID, e.Title, e.Description, e.Date, e.Location, e.Category, e.Organizer, e.MediaURL,
		e.VIP.Price, e.Regular.Price, e.UpdatedAt)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "event %s", e.ID)
	}
	return nil
}

func (t *pgTx) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	result, err := t.tx.Exec(ctx, `
		UPDATE events SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL
	`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	return nil
}

func (t *pgTx) CountActiveBookings(ctx context.Context, eventID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `
		SELECT count(*) FROM bookings WHERE event_id = $1 AND status IN ('PENDING', 'COMPLETED')
	`, eventID).Scan(&n)
	return n, err
}

// AdjustSeats is a single guarded UPDATE: the row changes only if the new
// remaining stays within [0, capacity]. When nothing matched, the row is
// read back to tell a missing event from a rejected delta.
func (t *pgTx) AdjustSeats(ctx context.Context, eventID uuid.UUID, class domain.SeatClass, delta int) (domain.Event, error) {
	capCol, remCol, err := seatColumns(class)
	if err != nil {
		return domain.Event{}, err
	}
	e, err := scanEvent(t.tx.QueryRow(ctx, `
		UPDATE events SET `+remCol+` = `+remCol+` + $2
		WHERE id = $1 AND deleted_at IS NULL AND `+remCol+` + $2 BETWEEN 0 AND `+capCol+`
		RETURNING `+eventColumns,
		eventID, delta))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, t.explainRejected(ctx, eventID, class, func(p domain.SeatPool) error {
			_, err := p.Adjust(delta)
			return err
		})
	}
	return e, err
}

// SetCapacity moves remaining by the same amount as capacity so the sold
// count is preserved, refusing capacities below it.
func (t *pgTx) SetCapacity(ctx context.Context, eventID uuid.UUID, class domain.SeatClass, capacity int) (domain.Event, error) {
	capCol, remCol, err := seatColumns(class)
	if err != nil {
		return domain.Event{}, err
	}
	e, err := scanEvent(t.tx.QueryRow(ctx, `
		UPDATE events SET `+remCol+` = `+remCol+` + ($2 - `+capCol+`), `+capCol+` = $2
		WHERE id = $1 AND deleted_at IS NULL AND $2 >= 0 AND `+capCol+` - `+remCol+` <= $2
		RETURNING `+eventColumns,
		eventID, capacity))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Event{}, t.explainRejected(ctx, eventID, class, func(p domain.SeatPool) error {
			_, err := p.Rederive(capacity)
			return err
		})
	}
	return e, err
}

func (t *pgTx) explainRejected(ctx context.Context, eventID uuid.UUID, class domain.SeatClass, check func(domain.SeatPool) error) error {
	e, err := t.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}
	pool, err := e.Pool(class)
	if err != nil {
		return err
	}
	if err := check(pool); err != nil {
		return err
	}
	// The row changed between the update and the read; let the caller retry.
	return errors.Mark(errors.New("seat row changed concurrently"), domain.ErrSerializationFailure)
}
