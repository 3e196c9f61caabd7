package crdb

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the DDL for the inventory tables. The CHECK constraints repeat
// the seat bounds so no writer can break them.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	date TIMESTAMPTZ NOT NULL,
	location TEXT NOT NULL,
	category TEXT NOT NULL,
	organizer TEXT NOT NULL,
	media_url TEXT NOT NULL DEFAULT '',
	created_by UUID NOT NULL,
	vip_capacity INT8 NOT NULL,
	vip_remaining INT8 NOT NULL,
	vip_price INT8 NOT NULL,
	regular_capacity INT8 NOT NULL,
	regular_remaining INT8 NOT NULL,
	regular_price INT8 NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ,
	CONSTRAINT vip_seats CHECK (vip_remaining >= 0 AND vip_remaining <= vip_capacity),
	CONSTRAINT regular_seats CHECK (regular_remaining >= 0 AND regular_remaining <= regular_capacity),
	CONSTRAINT prices CHECK (vip_price >= 0 AND regular_price >= 0)
);

CREATE TABLE IF NOT EXISTS bookings (
	id UUID PRIMARY KEY,
	event_id UUID NOT NULL REFERENCES events (id),
	user_id UUID NOT NULL,
	class TEXT NOT NULL CHECK (class IN ('VIP', 'REGULAR')),
	quantity INT8 NOT NULL CHECK (quantity >= 1),
	unit_price INT8 NOT NULL,
	total_amount INT8 NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('PENDING', 'COMPLETED', 'FAILED', 'REFUNDED')),
	payment_id UUID,
	external_payment_id TEXT NOT NULL DEFAULT '',
	failure_reason TEXT NOT NULL DEFAULT '',
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	INDEX bookings_user_idx (user_id, created_at DESC),
	INDEX bookings_pending_idx (status, expires_at),
	INDEX bookings_event_idx (event_id, status)
);

CREATE TABLE IF NOT EXISTS payments (
	id UUID PRIMARY KEY,
	booking_id UUID NOT NULL REFERENCES bookings (id),
	event_id UUID NOT NULL,
	user_id UUID NOT NULL,
	class TEXT NOT NULL,
	quantity INT8 NOT NULL,
	unit_price INT8 NOT NULL,
	total_amount INT8 NOT NULL,
	currency TEXT NOT NULL,
	method TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL CHECK (status IN ('COMPLETED', 'REFUNDED')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	refunded_at TIMESTAMPTZ,
	INDEX payments_user_idx (user_id, created_at DESC)
);

CREATE TABLE IF NOT EXISTS outbox (
	id UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id UUID NOT NULL,
	event_type TEXT NOT NULL,
	payload_json JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at TIMESTAMPTZ,
	status TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key TEXT NOT NULL,
	INDEX outbox_new_idx (status, created_at)
);
`

func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, Schema)
	return err
}
