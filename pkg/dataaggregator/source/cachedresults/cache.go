package cachedresults

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/awphi/esp32-cambridge-transit/pkg/ctdf"
	"github.com/awphi/esp32-cambridge-transit/pkg/redis_client"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
)

const snapshotKey = "transit:departures:snapshot"

// Cache shares the latest departure snapshot between replicas through Redis.
// Entries expire when the snapshot stops being fresh.
type Cache struct {
	Cache *cache.Cache[string]

	ttl time.Duration
	now func() time.Time
}

func (c *Cache) Setup(ttl time.Duration) {
	redisStore := redisstore.NewRedis(redis_client.Client, store.WithExpiration(ttl))

	c.Cache = cache.New[string](redisStore)
	c.ttl = ttl
	c.now = time.Now
}

func (c *Cache) Get(ctx context.Context) (*ctdf.Snapshot, error) {
	value, err := c.Cache.Get(ctx, snapshotKey)
	if err != nil {
		return nil, err
	}

	var snapshot *ctdf.Snapshot
	if err := json.Unmarshal([]byte(value), &snapshot); err != nil {
		return nil, fmt.Errorf("decoding shared snapshot: %w", err)
	}

	return snapshot, nil
}

func (c *Cache) Set(ctx context.Context, snapshot *ctdf.Snapshot) error {
	remaining := c.ttl - snapshot.Age(c.now())
	if remaining <= 0 {
		return nil
	}

	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encoding shared snapshot: %w", err)
	}

	return c.Cache.Set(ctx, snapshotKey, string(snapshotJSON), store.WithExpiration(remaining))
}
