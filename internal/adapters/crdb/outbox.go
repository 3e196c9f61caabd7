package crdb

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

func (t *pgTx) InsertOutbox(ctx context.Context, record domain.OutboxRecord) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6, $7)
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey, record.CreatedAt)
	return err
}

const selectUnpublished = `
	SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
	FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1`

func (r *Repository) GetUnpublishedOutbox(ctx context.Context, limit int) ([]domain.OutboxRecord, error) {
	rows, err := r.pool.Query(ctx, selectUnpublished, limit)
	if err != nil {
		return nil, err
	}
	return scanOutbox(rows)
}

// RelayOutbox locks up to limit NEW records with SKIP LOCKED, hands each to
// send in creation order and marks it published in the same transaction.
// Concurrent relays therefore never pick the same row. On a send error the
// rows already sent are committed and the error is returned.
func (r *Repository) RelayOutbox(ctx context.Context, limit int, send func(domain.OutboxRecord) error) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, selectUnpublished+" FOR UPDATE SKIP LOCKED", limit)
	if err != nil {
		return 0, err
	}
	records, err := scanOutbox(rows)
	if err != nil {
		return 0, err
	}

	sent := 0
	var sendErr error
	for _, rec := range records {
		if sendErr = send(rec); sendErr != nil {
			break
		}
		_, err := tx.Exec(ctx, `
			UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
		`, rec.ID, time.Now())
		if err != nil {
			return 0, err
		}
		sent++
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return sent, sendErr
}

func scanOutbox(rows pgx.Rows) ([]domain.OutboxRecord, error) {
	defer rows.Close()
	var records []domain.OutboxRecord
	for rows.Next() {
		var rec domain.OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time, dedupeKey string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2, dedupe_key = $3 WHERE id = $1
	`, id, publishedAt, dedupeKey)
	return err
}
