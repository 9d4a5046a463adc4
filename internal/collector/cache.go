package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"MarketLens/internal/model"
)

// ErrCacheMiss is returned by a BarCache when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// BarCache stores serialized bar payloads by key.
type BarCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// RedisBarCache implements BarCache on a Redis client.
type RedisBarCache struct {
	Client *redis.Client
}

// NewRedisBarCache connects to addr and verifies the connection with PING.
func NewRedisBarCache(ctx context.Context, addr, password string, db int) (*RedisBarCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisBarCache{Client: client}, nil
}

func (c *RedisBarCache) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.Client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	return val, err
}

func (c *RedisBarCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.Client.Set(ctx, key, value, ttl).Err()
}

// Close releases the Redis connection pool.
func (c *RedisBarCache) Close() error { return c.Client.Close() }

// CachedFetcher serves bars from a BarCache and falls back to the wrapped Fetcher.
// Cache failures are logged and never fail a fetch.
type CachedFetcher struct {
	Inner Fetcher
	Cache BarCache
	TTL   time.Duration
	Log   *logrus.Entry
}

// NewCachedFetcher wraps inner with cache.
func NewCachedFetcher(inner Fetcher, cache BarCache, ttl time.Duration, log *logrus.Entry) *CachedFetcher {
	return &CachedFetcher{Inner: inner, Cache: cache, TTL: ttl, Log: log}
}

func (f *CachedFetcher) Name() string { return f.Inner.Name() }

func (f *CachedFetcher) key(symbol string, count int) string {
	return fmt.Sprintf("marketlens:bars:%s:%s:%d", f.Inner.Name(), symbol, count)
}

func (f *CachedFetcher) FetchDailyBars(ctx context.Context, symbol string, count int) ([]model.OHLCV, error) {
	key := f.key(symbol, count)
	log := f.Log.WithField("key", key)

	data, err := f.Cache.Get(ctx, key)
	switch {
	case err == nil:
		var bars []model.OHLCV
		if err := json.Unmarshal(data, &bars); err != nil {
			log.WithError(err).Warn("discarding undecodable cache entry")
		} else {
			log.WithField("bars", len(bars)).Debug("bar cache hit")
			return bars, nil
		}
	case errors.Is(err, ErrCacheMiss):
		log.Debug("bar cache miss")
	default:
		log.WithError(err).Warn("bar cache read failed")
	}

	bars, err := f.Inner.FetchDailyBars(ctx, symbol, count)
	if err != nil || len(bars) == 0 {
		return bars, err
	}

	if data, err := json.Marshal(bars); err != nil {
		log.WithError(err).Warn("encode bars for cache")
	} else if err := f.Cache.Set(ctx, key, data, f.TTL); err != nil {
		log.WithError(err).Warn("bar cache write failed")
	}
	return bars, nil
}
