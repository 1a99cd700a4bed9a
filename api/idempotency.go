package api

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyHeader carries a client-chosen key that makes task creation
// safe to retry.
const IdempotencyHeader = "Idempotency-Key"

// RedisDeduper stores seen idempotency keys in Redis.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return "idem:" + userID + ":" + key
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), 1, r.ttl).Result()
}

func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}

// MemoryDeduper keeps idempotency keys in process memory.
type MemoryDeduper struct {
	ttl time.Duration
	now func() time.Time

	mu   sync.Mutex
	seen map[string]time.Time
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	return &MemoryDeduper{ttl: ttl, now: time.Now, seen: make(map[string]time.Time)}
}

func (m *MemoryDeduper) Add(_ context.Context, userID, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, exp := range m.seen {
		if now.After(exp) {
			delete(m.seen, k)
		}
	}
	k := userID + ":" + key
	if _, dup := m.seen[k]; dup {
		return false, nil
	}
	m.seen[k] = now.Add(m.ttl)
	return true, nil
}

func (m *MemoryDeduper) Remove(_ context.Context, userID, key string) error {
	m.mu.Lock()
	delete(m.seen, userID+":"+key)
	m.mu.Unlock()
	return nil
}
