package orders

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestCacheServesSecondRead(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (Aggregate, error) {
		loads++
		return Aggregate{Order: Order{ID: 1, Total: decimal.RequireFromString("99.90")}}, nil
	}

	first, err := cache.FetchAggregate(ctx, 1, loader)
	require.NoError(t, err)
	second, err := cache.FetchAggregate(ctx, 1, loader)
	require.NoError(t, err)

	require.Equal(t, 1, loads)
	require.True(t, first.Order.Total.Equal(second.Order.Total))
}

func TestCacheBumpInvalidates(t *testing.T) {
	cache := newTestCache(t)
	ctx := context.Background()

	loads := 0
	loader := func(context.Context) (Aggregate, error) {
		loads++
		return Aggregate{Order: Order{ID: 1}}, nil
	}

	_, err := cache.FetchAggregate(ctx, 1, loader)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(ctx))
	_, err = cache.FetchAggregate(ctx, 1, loader)
	require.NoError(t, err)

	require.Equal(t, 2, loads, "bump must route reads past stale entries")
}

func TestCacheNilClientFallsThrough(t *testing.T) {
	var cache *Cache
	agg, err := cache.FetchAggregate(context.Background(), 1, func(context.Context) (Aggregate, error) {
		return Aggregate{Order: Order{ID: 42}}, nil
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), agg.Order.ID)
	require.NoError(t, cache.Bump(context.Background()))
}
