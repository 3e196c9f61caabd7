package mongo

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/notify"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func newDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	endpoint, err := container.Endpoint(ctx, "mongodb")
	require.NoError(t, err)
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(endpoint))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(ctx) })
	return client.Database("inventory_test")
}

func sampleEvent(title string, date time.Time) domain.Event {
	return domain.Event{
		ID:        uuid.New(),
		Title:     title,
		Date:      date,
		Location:  "Main Hall",
		Category:  "music",
		Organizer: "Promoter",
		CreatedBy: uuid.New(),
		VIP:       domain.SeatPool{Capacity: 10, Remaining: 7, Price: 15000},
		Regular:   domain.SeatPool{Capacity: 100, Remaining: 100, Price: 4000},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

func TestCatalogProjection(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalogRepository(newDatabase(t), observability.NewDiscardLogger())

	later := sampleEvent("Later", time.Now().Add(48*time.Hour))
	sooner := sampleEvent("Sooner", time.Now().Add(24*time.Hour))
	for _, e := range []domain.Event{later, sooner} {
		e := e
		require.NoError(t, catalog.Deliver(ctx, notify.Notification{ID: uuid.New(), Kind: notify.EventUpserted, Event: &e}))
	}

	events, err := catalog.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "Sooner", events[0].Title)

	later.VIP.Remaining = 3
	require.NoError(t, catalog.Deliver(ctx, notify.Notification{ID: uuid.New(), Kind: notify.BookingConfirmed, Event: &later}))
	got, err := catalog.GetEvent(ctx, later.ID)
	require.NoError(t, err)
	assert.Equal(t, later.VIP, got.VIP)
	assert.Equal(t, later.CreatedBy, got.CreatedBy)

	require.NoError(t, catalog.Deliver(ctx, notify.Notification{ID: uuid.New(), Kind: notify.EventDeleted, Event: &later}))
	_, err = catalog.GetEvent(ctx, later.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, catalog.Deliver(ctx, notify.Notification{ID: uuid.New(), Kind: notify.BookingFailed}))
}

func TestAuditIsWrittenOnce(t *testing.T) {
	ctx := context.Background()
	audit := NewAuditLogger(newDatabase(t), observability.NewDiscardLogger())

	userID := uuid.New()
	b := domain.Booking{
		ID: uuid.New(), EventID: uuid.New(), UserID: userID, Class: domain.ClassVIP,
		Quantity: 2, UnitPrice: 5000, TotalAmount: 10000, Status: domain.BookingFailed,
		FailureReason: "payment declined",
	}
	n := notify.Notification{ID: uuid.New(), Kind: notify.BookingFailed, OccurredAt: time.Now().UTC(), Booking: &b}

	require.NoError(t, audit.Deliver(ctx, n))
	require.NoError(t, audit.Deliver(ctx, n))

	logs, err := audit.ForUser(ctx, userID, 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, string(notify.BookingFailed), logs[0].Action)
	assert.Equal(t, "payment declined", logs[0].Data["reason"])
}
