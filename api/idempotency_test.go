package api

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisDeduper(t *testing.T) {
	m, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(m.Close)

	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		if cerr := client.Close(); cerr != nil {
			t.Logf("redis close: %v", cerr)
		}
	})

	deduper := NewRedisDeduper(client, time.Minute)
	ctx := context.Background()

	added, err := deduper.Add(ctx, "user", "k1")
	if err != nil || !added {
		t.Fatalf("first add: %v %v", added, err)
	}
	if added, _ := deduper.Add(ctx, "user", "k1"); added {
		t.Fatalf("expected duplicate on second add")
	}
	if added, _ := deduper.Add(ctx, "other", "k1"); !added {
		t.Fatalf("keys must be namespaced per user")
	}
	if !m.Exists("idem:user:k1") {
		t.Fatalf("expected namespaced key in redis, have %v", m.Keys())
	}
	if ttl := m.TTL("idem:user:k1"); ttl != time.Minute {
		t.Fatalf("unexpected ttl: %v", ttl)
	}

	if err := deduper.Remove(ctx, "user", "k1"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if added, _ := deduper.Add(ctx, "user", "k1"); !added {
		t.Fatalf("removed key should be addable again")
	}

	m.FastForward(2 * time.Minute)
	if added, _ := deduper.Add(ctx, "other", "k1"); !added {
		t.Fatalf("expired key should be addable again")
	}
}

func TestMemoryDeduperExpires(t *testing.T) {
	d := NewMemoryDeduper(time.Minute)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return now }
	ctx := context.Background()

	if added, _ := d.Add(ctx, "u", "k"); !added {
		t.Fatalf("first add should succeed")
	}
	if added, _ := d.Add(ctx, "u", "k"); added {
		t.Fatalf("duplicate should be rejected")
	}
	now = now.Add(2 * time.Minute)
	if added, _ := d.Add(ctx, "u", "k"); !added {
		t.Fatalf("expired key should be accepted")
	}
	_ = d.Remove(ctx, "u", "k")
	if added, _ := d.Add(ctx, "u", "k"); !added {
		t.Fatalf("removed key should be accepted")
	}
}
