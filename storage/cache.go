package storage

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedMedium puts a Redis read-through cache in front of a slower Medium.
// Writes go to the base first and then drop the cached copy.
type CachedMedium struct {
	base  Medium
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedMedium wraps base. A nil client or zero ttl disables caching.
func NewCachedMedium(base Medium, client *redis.Client, ttl time.Duration) *CachedMedium {
	if base == nil {
		panic("storage.NewCachedMedium: base medium is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &CachedMedium{base: base, redis: client, ttl: ttl}
}

func cacheKey(key string) string {
	return "cache:" + key
}

func (c *CachedMedium) Get(ctx context.Context, key string) (string, bool, error) {
	if val, ok := c.loadFromCache(ctx, key); ok {
		return val, true, nil
	}
	val, ok, err := c.base.Get(ctx, key)
	if err != nil || !ok {
		return val, ok, err
	}
	c.store(ctx, key, val)
	return val, true, nil
}

func (c *CachedMedium) Set(ctx context.Context, key, value string) error {
	if err := c.base.Set(ctx, key, value); err != nil {
		return err
	}
	c.evict(ctx, key)
	return nil
}

func (c *CachedMedium) Delete(ctx context.Context, key string) error {
	if err := c.base.Delete(ctx, key); err != nil {
		return err
	}
	c.evict(ctx, key)
	return nil
}

func (c *CachedMedium) loadFromCache(ctx context.Context, key string) (string, bool) {
	if c.redis == nil || c.ttl == 0 {
		return "", false
	}
	val, err := c.redis.Get(ctx, cacheKey(key)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// fall back to the base medium
			_ = c.redis.Del(ctx, cacheKey(key)).Err()
		}
		return "", false
	}
	return val, true
}

func (c *CachedMedium) store(ctx context.Context, key, val string) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	_ = c.redis.Set(ctx, cacheKey(key), val, c.ttl).Err()
}

func (c *CachedMedium) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, cacheKey(key)).Err()
}
