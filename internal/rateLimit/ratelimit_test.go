package rateLimit

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	redisadapter "github.com/robertarktes/event-ticket-inventory/internal/adapters/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestAllow(t *testing.T) {
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

	rl := NewRateLimiter(redisadapter.NewCache(client))
	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "user:a", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok, "hit %d", i+1)
	}
	ok, err := rl.Allow(ctx, "user:a", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = rl.Allow(ctx, "user:b", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ttl, err := client.TTL(ctx, "rl:user:a").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
}
