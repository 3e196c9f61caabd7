package outbox_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/event-ticket-inventory/internal/adapters/memory"
	"github.com/robertarktes/event-ticket-inventory/internal/domain"
	"github.com/robertarktes/event-ticket-inventory/internal/inventory"
	"github.com/robertarktes/event-ticket-inventory/internal/observability"
	"github.com/robertarktes/event-ticket-inventory/internal/outbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type sent struct {
	key string
	msg amqp.Publishing
}

type fakeSender struct {
	mu     sync.Mutex
	sent   []sent
	failOn int
}

func (f *fakeSender) Publish(_ context.Context, key string, msg amqp.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failOn > 0 && len(f.sent)+1 == f.failOn {
		return errors.New("channel closed")
	}
	f.sent = append(f.sent, sent{key: key, msg: msg})
	return nil
}

func seed(t *testing.T, store *memory.Store, n int) []domain.OutboxRecord {
	t.Helper()
	ctx := context.Background()
	var recs []domain.OutboxRecord
	for i := 0; i < n; i++ {
		id := uuid.New()
		recs = append(recs, domain.OutboxRecord{
			ID: id, AggregateType: "booking", AggregateID: uuid.New(),
			EventType: "ledger.booking.completed", Payload: []byte(`{}`),
			CreatedAt: time.Now(), Status: "NEW", DedupeKey: id.String(),
		})
	}
	require.NoError(t, store.WithTx(ctx, func(tx inventory.Tx) error {
		for _, r := range recs {
			if err := tx.InsertOutbox(ctx, r); err != nil {
				return err
			}
		}
		return nil
	}))
	return recs
}

func TestFlushPublishesInOrder(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	recs := seed(t, store, 3)
	sender := &fakeSender{}

	p := outbox.NewPublisher(store, sender, observability.NewDiscardLogger(), time.Second, 10)
	n, err := p.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	for i, s := range sender.sent {
		assert.Equal(t, "ledger.booking.completed", s.key)
		assert.Equal(t, recs[i].DedupeKey, s.msg.MessageId)
	}

	n, err = p.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlushStopsAtFirstFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, 3)
	sender := &fakeSender{failOn: 2}

	p := outbox.NewPublisher(store, sender, observability.NewDiscardLogger(), time.Second, 10)
	n, err := p.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	left, err := store.GetUnpublishedOutbox(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, left, 2)
}

func TestConcurrentFlushesPublishEachRecordOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	seed(t, store, 20)
	sender := &fakeSender{}

	p := outbox.NewPublisher(store, sender, observability.NewDiscardLogger(), time.Second, 5)
	var g errgroup.Group
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			_, err := p.Flush(ctx)
			return err
		})
	}
	require.NoError(t, g.Wait())

	seen := map[string]int{}
	for _, s := range sender.sent {
		seen[s.msg.MessageId]++
	}
	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}
