package inventory

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/notify"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"go.opentelemetry.io/otel/attribute"
)

func (c *Coordinator) CreateEvent(ctx context.Context, actor domain.Actor, in domain.EventInput) (event domain.Event, err error) {
	ctx, span := c.startSpan(ctx, "CreateEvent")
	defer func() { observability.EndSpan(span, err) }()

	if !actor.CanPublishEvents() {
		return domain.Event{}, errors.Wrap(domain.ErrUnauthorized, "only organizers and admins can create events")
	}
	event, err = domain.NewEvent(in, actor.UserID, c.now())
	if err != nil {
		return domain.Event{}, err
	}
	err = c.commit(ctx, "create_event", func(tx Tx) error {
		return tx.InsertEvent(ctx, event)
	})
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "create event")
	}
	c.emit(ctx, notify.EventUpserted, &event, nil, nil)
	return event, nil
}

// UpdateEvent applies detail changes and capacity edits in one transaction.
// Capacity edits keep every sold seat: remaining moves with capacity, and an
// edit below the sold count fails with domain.ErrInvalidCapacityEdit.
func (c *Coordinator) UpdateEvent(ctx context.Context, actor domain.Actor, id uuid.UUID, patch domain.EventPatch) (event domain.Event, err error) {
	ctx, span := c.startSpan(ctx, "UpdateEvent", attribute.String("event.id", id.String()))
	defer func() { observability.EndSpan(span, err) }()

	err = c.commit(ctx, "update_event", func(tx Tx) error {
		current, err := tx.GetEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.CanManage(current.CreatedBy) {
			return errors.Wrap(domain.ErrUnauthorized, "not the event owner")
		}
		next, err := patch.ApplyDetails(current)
		if err != nil {
			return err
		}
		next.UpdatedAt = c.now()
		if err := tx.UpdateEventDetails(ctx, next); err != nil {
			return err
		}

		edits := []struct {
			class    domain.SeatClass
			capacity *int
		}{{domain.ClassVIP, patch.VIPCapacity}, {domain.ClassRegular, patch.RegularCapacity}}
		for _, edit := range edits {
			if edit.capacity == nil {
				continue
			}
			before, _ := next.Pool(edit.class)
			if next, err = tx.SetCapacity(ctx, id, edit.class, *edit.capacity); err != nil {
				return errors.Wrapf(err, "%s capacity", edit.class)
			}
			after, _ := next.Pool(edit.class)
			rec, err := ledgerRecord("event", "ledger.capacity.edited", id, map[string]interface{}{
				"event_id":        id,
				"class":           edit.class,
				"capacity_before": before.Capacity,
				"capacity_after":  after.Capacity,
				"remaining":       after.Remaining,
			}, c.now())
			if err != nil {
				return err
			}
			if err := tx.InsertOutbox(ctx, rec); err != nil {
				return err
			}
		}
		event = next
		return nil
	})
	if err != nil {
		return domain.Event{}, errors.Wrap(err, "update event")
	}
	c.emit(ctx, notify.EventUpserted, &event, nil, nil)
	return event, nil
}

// DeleteEvent removes an event that no Pending or Completed booking references.
func (c *Coordinator) DeleteEvent(ctx context.Context, actor domain.Actor, id uuid.UUID) (err error) {
	ctx, span := c.startSpan(ctx, "DeleteEvent", attribute.String("event.id", id.String()))
	defer func() { observability.EndSpan(span, err) }()

	var deleted domain.Event
	err = c.commit(ctx, "delete_event", func(tx Tx) error {
		e, err := tx.GetEventForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !actor.CanManage(e.CreatedBy) {
			return errors.Wrap(domain.ErrUnauthorized, "not the event owner")
		}
		active, err := tx.CountActiveBookings(ctx, id)
		if err != nil {
			return err
		}
		if active > 0 {
			return errors.Wrapf(domain.ErrEventInUse, "%d active bookings", active)
		}
		deleted = e
		return tx.DeleteEvent(ctx, id)
	})
	if err != nil {
		return errors.Wrap(err, "delete event")
	}
	c.emit(ctx, notify.EventDeleted, &deleted, nil, nil)
	return nil
}

func (c *Coordinator) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	return c.store.GetEvent(ctx, id)
}

func (c *Coordinator) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return c.store.ListEvents(ctx)
}

type ClassCapacity struct {
	Capacity  int   `json:"capacity"`
	Remaining int   `json:"remaining"`
	Sold      int   `json:"sold"`
	Price     int64 `json:"price"`
}

type CapacityView struct {
	EventID        uuid.UUID     `json:"event_id"`
	Title          string        `json:"title"`
	VIP            ClassCapacity `json:"vip"`
	Regular        ClassCapacity `json:"regular"`
	TotalRemaining int           `json:"total_remaining"`
}

// Capacity reports seat availability from the authoritative store.
func (c *Coordinator) Capacity(ctx context.Context, id uuid.UUID) (CapacityView, error) {
	e, err := c.store.GetEvent(ctx, id)
	if err != nil {
		return CapacityView{}, err
	}
	view := func(p domain.SeatPool) ClassCapacity {
		return ClassCapacity{Capacity: p.Capacity, Remaining: p.Remaining, Sold: p.Sold(), Price: p.Price}
	}
	return CapacityView{
		EventID:        e.ID,
		Title:          e.Title,
		VIP:            view(e.VIP),
		Regular:        view(e.Regular),
		TotalRemaining: e.VIP.Remaining + e.Regular.Remaining,
	}, nil
}
