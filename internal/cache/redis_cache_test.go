package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"service-rates/internal"
	"service-rates/internal/cache"
)

func setupTestRedis(t *testing.T, ttl time.Duration) (*cache.RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	redisCache, err := cache.NewRedisCache(context.Background(), mr.Addr(), "", ttl)
	require.NoError(t, err)
	t.Cleanup(func() { _ = redisCache.Close() })

	return redisCache, mr
}

func snapshot(at time.Time, rates map[internal.CurrencyCode]string) internal.RateSnapshot {
	typed := make(map[internal.CurrencyCode]decimal.Decimal, len(rates))
	for code, v := range rates {
		typed[code] = decimal.RequireFromString(v)
	}
	return internal.NewRateSnapshot("EUR", at, typed)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := cache.NewRedisCache(context.Background(), addr, "", time.Minute)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to Redis")
}

func TestRedisCache_StoreAndLoad(t *testing.T) {
	redisCache, mr := setupTestRedis(t, time.Hour)
	ctx := context.Background()
	at := time.Date(2026, 10, 18, 9, 30, 0, 123, time.UTC)

	require.NoError(t, redisCache.StoreSnapshot(ctx, snapshot(at, map[internal.CurrencyCode]string{
		"USD": "1.1050",
		"GBP": "0.8512",
	})))

	assert.Equal(t, "1.105", mr.HGet("rates:EUR", "USD"))
	assert.Equal(t, time.Hour, mr.TTL("rates:EUR"))

	got, err := redisCache.LoadSnapshot(ctx, "EUR")
	require.NoError(t, err)
	assert.Equal(t, internal.CurrencyCode("EUR"), got.Base())
	assert.True(t, got.FetchedAt().Equal(at))
	assert.Equal(t, []internal.CurrencyCode{"GBP", "USD"}, got.Codes())
	gbp, _ := got.Rate("GBP")
	assert.Equal(t, "0.8512", gbp.String())
}

func TestRedisCache_StoreReplacesPreviousSnapshot(t *testing.T) {
	redisCache, _ := setupTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, redisCache.StoreSnapshot(ctx, snapshot(time.Now(), map[internal.CurrencyCode]string{"USD": "1", "JPY": "160"})))
	require.NoError(t, redisCache.StoreSnapshot(ctx, snapshot(time.Now(), map[internal.CurrencyCode]string{"USD": "2"})))

	got, err := redisCache.LoadSnapshot(ctx, "EUR")
	require.NoError(t, err)
	assert.Equal(t, []internal.CurrencyCode{"USD"}, got.Codes())
}

func TestRedisCache_Expiry(t *testing.T) {
	redisCache, mr := setupTestRedis(t, time.Minute)
	ctx := context.Background()

	require.NoError(t, redisCache.StoreSnapshot(ctx, snapshot(time.Now(), map[internal.CurrencyCode]string{"USD": "1"})))
	mr.FastForward(2 * time.Minute)

	_, err := redisCache.LoadSnapshot(ctx, "EUR")
	assert.ErrorIs(t, err, cache.ErrNotCached)
}

func TestRedisCache_LoadCorrupted(t *testing.T) {
	redisCache, mr := setupTestRedis(t, 0)
	mr.HSet("rates:EUR", "USD", "not_a_decimal")

	_, err := redisCache.LoadSnapshot(context.Background(), "EUR")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse cached value")
}

func TestRedisCache_RejectsSnapshotWithoutBase(t *testing.T) {
	redisCache, _ := setupTestRedis(t, 0)

	err := redisCache.StoreSnapshot(context.Background(), internal.RateSnapshot{})

	assert.Error(t, err)
}
