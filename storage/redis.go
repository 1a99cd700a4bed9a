package storage

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisMedium stores values as plain Redis strings without expiry.
type RedisMedium struct {
	redis  *redis.Client
	prefix string
}

// NewRedisMedium wraps client. prefix, when set, is prepended to every key.
func NewRedisMedium(client *redis.Client, prefix string) *RedisMedium {
	if client == nil {
		panic("storage.NewRedisMedium: redis client is nil")
	}
	return &RedisMedium{redis: client, prefix: prefix}
}

func (r *RedisMedium) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + ":" + k
}

func (r *RedisMedium) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.redis.Get(ctx, r.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisMedium) Set(ctx context.Context, key, value string) error {
	return r.redis.Set(ctx, r.key(key), value, 0).Err()
}

func (r *RedisMedium) Delete(ctx context.Context, key string) error {
	return r.redis.Del(ctx, r.key(key)).Err()
}
