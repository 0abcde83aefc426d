package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"service-rates/internal"
)

const fetchedAtField = "@fetched_at"

var ErrNotCached = errors.New("snapshot not cached")

// RedisCache keeps the latest snapshot per base currency as a hash
// rates:<BASE> => {<CODE>: <decimal>, @fetched_at: <RFC3339Nano>}.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(ctx context.Context, addr, password string, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func Key(base internal.CurrencyCode) string {
	return "rates:" + base.String()
}

// StoreSnapshot atomically replaces the cached hash for snap's base.
func (c *RedisCache) StoreSnapshot(ctx context.Context, snap internal.RateSnapshot) error {
	if !snap.Base().IsValid() {
		return fmt.Errorf("snapshot base %q is invalid", snap.Base())
	}
	key := Key(snap.Base())

	fields := make(map[string]any, snap.Len()+1)
	for _, code := range snap.Codes() {
		rate, _ := snap.Rate(code)
		fields[code.String()] = rate.String()
	}
	fields[fetchedAtField] = snap.FetchedAt().UTC().Format(time.RFC3339Nano)

	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		if c.ttl > 0 {
			pipe.Expire(ctx, key, c.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store %s in cache: %w", key, err)
	}
	return nil
}

func (c *RedisCache) LoadSnapshot(ctx context.Context, base internal.CurrencyCode) (internal.RateSnapshot, error) {
	key := Key(base)
	vals, err := c.client.HGetAll(ctx, key).Result()
	if err != nil {
		return internal.RateSnapshot{}, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}
	if len(vals) == 0 {
		return internal.RateSnapshot{}, ErrNotCached
	}

	var fetchedAt time.Time
	rates := make(map[internal.CurrencyCode]decimal.Decimal, len(vals))
	for field, raw := range vals {
		if field == fetchedAtField {
			fetchedAt, err = time.Parse(time.RFC3339Nano, raw)
			if err != nil {
				return internal.RateSnapshot{}, fmt.Errorf("failed to parse cached fetch time: %w", err)
			}
			continue
		}
		code, err := internal.ParseCurrencyCode(field)
		if err != nil {
			return internal.RateSnapshot{}, fmt.Errorf("failed to parse cached key: %w", err)
		}
		rate, err := decimal.NewFromString(raw)
		if err != nil {
			return internal.RateSnapshot{}, fmt.Errorf("failed to parse cached value %s=%q: %w", code, raw, err)
		}
		rates[code] = rate
	}

	return internal.NewRateSnapshot(base, fetchedAt, rates), nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
