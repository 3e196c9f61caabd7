package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// releaseScript deletes the lease only while it is still held by owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// AcquireLease takes a named lease for ttl. It reports false when another
// owner holds it.
func (c *Cache) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	res := c.client.SetNX(ctx, "lease:"+name, owner, ttl)
	return res.Val(), res.Err()
}

func (c *Cache) ReleaseLease(ctx context.Context, name, owner string) error {
	return releaseScript.Run(ctx, c.client, []string{"lease:" + name}, owner).Err()
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
