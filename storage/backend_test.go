package storage

import (
	"context"
	"path/filepath"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
)

func TestOpenMemoryByDefault(t *testing.T) {
	m, c, err := Open(context.Background(), BackendConfig{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()
	if _, ok := m.(*MemoryMedium); !ok {
		t.Fatalf("expected memory medium, got %T", m)
	}
}

func TestOpenRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx := context.Background()
	m, c, err := Open(ctx, BackendConfig{Backend: "Redis", RedisURL: "redis://" + mr.Addr(), RedisPrefix: "tf"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer c.Close()
	if err := m.Set(ctx, TasksKey, "[]"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, _ := mr.Get("tf:" + TasksKey); got != "[]" {
		t.Fatalf("unexpected stored value: %q", got)
	}
}

func TestOpenSQLite(t *testing.T) {
	m, c, err := Open(context.Background(), BackendConfig{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "tf.db")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := m.(*SQLiteMedium); !ok {
		t.Fatalf("expected sqlite medium, got %T", m)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestOpenRejectsBadConfig(t *testing.T) {
	cases := []BackendConfig{
		{Backend: "s3"},
		{Backend: BackendRedis},
		{Backend: BackendSQLite},
		{Backend: BackendTable, TableName: "kv"},
	}
	for _, cfg := range cases {
		if _, _, err := Open(context.Background(), cfg); err == nil {
			t.Fatalf("expected error for %#v", cfg)
		}
	}
}

func TestNewRedisClientConnectionString(t *testing.T) {
	rc, err := NewRedisClient("cache.example:6380,password=secret,ssl=True,abortConnect=False")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	defer rc.Close()
	opts := rc.Options()
	if opts.Addr != "cache.example:6380" || opts.Password != "secret" || opts.TLSConfig == nil {
		t.Fatalf("unexpected options: addr=%s password=%s tls=%v", opts.Addr, opts.Password, opts.TLSConfig != nil)
	}
}
