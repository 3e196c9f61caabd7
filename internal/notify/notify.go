// Package notify delivers lifecycle notifications out of band. Delivery is
// best-effort: callers never block on it and failures never reach them.
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
)

type Kind string

const (
	BookingConfirmed Kind = "booking.confirmed"
	BookingCancelled Kind = "booking.cancelled"
	BookingFailed    Kind = "booking.failed"
	EventUpserted    Kind = "event.upserted"
	EventDeleted     Kind = "event.deleted"
)

type Notification struct {
	ID         uuid.UUID
	Kind       Kind
	OccurredAt time.Time
	Event      *domain.Event
	Booking    *domain.Booking
	Payment    *domain.Payment
}

// Sink is one delivery target.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

type discard struct{}

func (discard) Notify(context.Context, Notification) {}

// Discard drops every notification.
var Discard = discard{}
