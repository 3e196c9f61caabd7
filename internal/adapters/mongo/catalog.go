package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/notify"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CatalogRepository is the browse read model for events. It is fed by
// notifications and may lag the inventory store; seat counts shown here are
// informational only.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type EventDoc struct {
	ID          string    `bson:"_id"`
	Title       string    `bson:"title"`
	Description string    `bson:"description"`
	Date        time.Time `bson:"date"`
	Location    string    `bson:"location"`
	Category    string    `bson:"category"`
	Organizer   string    `bson:"organizer"`
	MediaURL    string    `bson:"media_url,omitempty"`
	CreatedBy   string    `bson:"created_by"`
	VIP         SeatDoc   `bson:"vip"`
	Regular     SeatDoc   `bson:"regular"`
	CreatedAt   time.Time `bson:"created_at"`
	UpdatedAt   time.Time `bson:"updated_at"`
}

type SeatDoc struct {
	Capacity  int   `bson:"capacity"`
	Remaining int   `bson:"remaining"`
	Price     int64 `bson:"price"`
}

func toDoc(e domain.Event) EventDoc {
	return EventDoc{
		ID:          e.ID.String(),
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date,
		Location:    e.Location,
		Category:    e.Category,
		Organizer:   e.Organizer,
		MediaURL:    e.MediaURL,
		CreatedBy:   e.CreatedBy.String(),
		VIP:         SeatDoc{Capacity: e.VIP.Capacity, Remaining: e.VIP.Remaining, Price: e.VIP.Price},
		Regular:     SeatDoc{Capacity: e.Regular.Capacity, Remaining: e.Regular.Remaining, Price: e.Regular.Price},
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (d EventDoc) toDomain() (domain.Event, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return domain.Event{}, err
	}
	createdBy, _ := uuid.Parse(d.CreatedBy)
	return domain.Event{
		ID:          id,
		Title:       d.Title,
		Description: d.Description,
		Date:        d.Date,
		Location:    d.Location,
		Category:    d.Category,
		Organizer:   d.Organizer,
		MediaURL:    d.MediaURL,
		CreatedBy:   createdBy,
		VIP:         domain.SeatPool{Capacity: d.VIP.Capacity, Remaining: d.VIP.Remaining, Price: d.VIP.Price},
		Regular:     domain.SeatPool{Capacity: d.Regular.Capacity, Remaining: d.Regular.Remaining, Price: d.Regular.Price},
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

func (c *CatalogRepository) Name() string { return "mongo_catalog" }

// Deliver projects event notifications and seat movements into the catalog.
func (c *CatalogRepository) Deliver(ctx context.Context, n notify.Notification) error {
	if n.Event == nil {
		return nil
	}
	if n.Kind == notify.EventDeleted {
		return c.DeleteEvent(ctx, n.Event.ID)
	}
	return c.UpsertEvent(ctx, *n.Event)
}

func (c *CatalogRepository) UpsertEvent(ctx context.Context, e domain.Event) error {
	doc := toDoc(e)
	_, err := c.coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		c.logger.WithError(err).WithField("event_id", doc.ID).Error("failed to upsert catalog event")
		return err
	}
	return nil
}

func (c *CatalogRepository) DeleteEvent(ctx context.Context, id uuid.UUID) error {
	_, err := c.coll.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		c.logger.WithError(err).WithField("event_id", id).Error("failed to delete catalog event")
		return err
	}
	return nil
}

func (c *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (domain.Event, error) {
	var doc EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Event{}, errors.Wrapf(domain.ErrNotFound, "event %s", id)
	}
	if err != nil {
		return domain.Event{}, err
	}
	return doc.toDomain()
}

// ListEvents returns catalog events ordered by date.
func (c *CatalogRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	cur, err := c.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []EventDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	events := make([]domain.Event, 0, len(docs))
	for _, d := range docs {
		e, err := d.toDomain()
		if err != nil {
			c.logger.WithError(err).WithField("doc_id", d.ID).Warn("skipping malformed catalog document")
			continue
		}
		events = append(events, e)
	}
	return events, nil
}
