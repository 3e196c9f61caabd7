package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLease(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(newClient(t))

	ok, err := cache.AcquireLease(ctx, "sweep", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = cache.AcquireLease(ctx, "sweep", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.ReleaseLease(ctx, "sweep", "worker-b"))
	ok, err = cache.AcquireLease(ctx, "sweep", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a non-owner must not release the lease")

	require.NoError(t, cache.ReleaseLease(ctx, "sweep", "worker-a"))
	ok, err = cache.AcquireLease(ctx, "sweep", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIdempotencyRoundTrip(t *testing.T) {
	ctx := context.Background()
	idemp := NewIdempotency(newClient(t))

	got, err := idemp.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	ok, err := idemp.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = idemp.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	want := IdempResponse{Status: 201, ContentType: "application/json", Result: []byte(`{"id":"1"}`)}
	require.NoError(t, idemp.Set(ctx, "k", want, time.Minute))
	require.NoError(t, idemp.Release(ctx, "k"))

	got, err = idemp.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}
