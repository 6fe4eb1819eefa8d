package orders

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const cacheVersionKey = "orders:aggregate:version"

// Cache holds order aggregates in Redis behind a global version counter.
// Writers bump the version instead of tracking individual keys, so stale
// entries simply age out under their TTL.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) version(ctx context.Context) (int64, error) {
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil || (err == nil && ver <= 0) {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

func (c *Cache) key(ctx context.Context, orderID int64) (string, error) {
	ver, err := c.version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("orders:aggregate:%d:%d", orderID, ver), nil
}

// FetchAggregate loads a cached aggregate or populates it via the loader.
// Cache failures degrade to a direct load.
func (c *Cache) FetchAggregate(ctx context.Context, orderID int64, loader func(context.Context) (Aggregate, error)) (Aggregate, error) {
	if loader == nil {
		return Aggregate{}, errors.New("orders cache: loader required")
	}
	if c == nil || c.client == nil {
		return loader(ctx)
	}
	key, err := c.key(ctx, orderID)
	if err != nil {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var agg Aggregate
		if err := json.Unmarshal(payload, &agg); err == nil {
			return agg, nil
		}
	}
	agg, err := loader(ctx)
	if err != nil {
		return Aggregate{}, err
	}
	if raw, err := json.Marshal(agg); err == nil {
		_ = c.client.Set(ctx, key, raw, c.ttl).Err()
	}
	return agg, nil
}

// Bump invalidates every cached aggregate by incrementing the version.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}
