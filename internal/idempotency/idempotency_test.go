package idempotency

import (
	"context"
	"sync"
	"testing"
	"time"

	redisadapter "github.com/robertarktes/event-ticket-inventory/internal/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapBackend struct {
	mu     sync.Mutex
	values map[string]redisadapter.IdempResponse
	locks  map[string]bool
}

func newMapBackend() *mapBackend {
	return &mapBackend{values: map[string]redisadapter.IdempResponse{}, locks: map[string]bool{}}
}

func (m *mapBackend) Get(_ context.Context, key string) (*redisadapter.IdempResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return &v, nil
}

func (m *mapBackend) Set(_ context.Context, key string, resp redisadapter.IdempResponse, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = resp
	return nil
}

func (m *mapBackend) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] {
		return false, nil
	}
	m.locks[key] = true
	return true, nil
}

func (m *mapBackend) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, key)
	return nil
}

func TestBeginFinishReplay(t *testing.T) {
	ctx := context.Background()
	idem := NewIdempotency(newMapBackend(), time.Hour)

	resp, err := idem.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, resp)

	_, err = idem.Begin(ctx, "k")
	assert.ErrorIs(t, err, ErrInFlight)

	require.NoError(t, idem.Finish(ctx, "k", &Response{Status: 201, ContentType: "application/json", Result: []byte(`{}`)}))

	resp, err = idem.Begin(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 201, resp.Status)
}

func TestServerErrorsAreNotStored(t *testing.T) {
	ctx := context.Background()
	idem := NewIdempotency(newMapBackend(), time.Hour)

	_, err := idem.Begin(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, idem.Finish(ctx, "k", &Response{Status: 503}))

	resp, err := idem.Begin(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, resp)
}
