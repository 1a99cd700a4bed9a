package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
	BackendTable  = "table"
)

// BackendConfig selects and configures the medium a process persists to.
type BackendConfig struct {
	Backend string

	// RedisURL is used by the redis backend and, when set, as the cache in
	// front of the table backend.
	RedisURL    string
	RedisPrefix string
	CacheTTL    time.Duration

	SQLitePath string

	TableConnectionString string
	TableName             string
}

type closers []io.Closer

func (cs closers) Close() error {
	var first error
	for _, c := range cs {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Open builds the configured medium. The returned closer releases every
// connection it opened.
func Open(ctx context.Context, cfg BackendConfig) (Medium, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		log.Warn("using in-memory storage; data is lost on restart")
		return NewMemoryMedium(), closers{}, nil

	case BackendRedis:
		rc, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		if err := rc.Ping(ctx).Err(); err != nil {
			_ = rc.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		return NewRedisMedium(rc, cfg.RedisPrefix), closers{rc}, nil

	case BackendSQLite:
		if cfg.SQLitePath == "" {
			return nil, nil, fmt.Errorf("missing SQLite path")
		}
		m, err := NewSQLiteMedium(cfg.SQLitePath)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite: %w", err)
		}
		return m, closers{m}, nil

	case BackendTable:
		if cfg.TableConnectionString == "" || cfg.TableName == "" {
			return nil, nil, fmt.Errorf("missing table storage config")
		}
		tm, err := NewTableMedium(ctx, cfg.TableConnectionString, cfg.TableName)
		if err != nil {
			return nil, nil, fmt.Errorf("table: %w", err)
		}
		if cfg.RedisURL == "" {
			return tm, closers{}, nil
		}
		rc, err := NewRedisClient(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		return NewCachedMedium(tm, rc, cfg.CacheTTL), closers{rc}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// NewRedisClient accepts either a redis:// URL or an Azure style
// "host:port,password=...,ssl=True" connection string.
func NewRedisClient(conn string) (*redis.Client, error) {
	if conn == "" {
		return nil, fmt.Errorf("missing redis config")
	}
	opts, err := redis.ParseURL(conn)
	if err != nil {
		parts := strings.Split(conn, ",")
		opts = &redis.Options{Addr: parts[0]}
		for _, p := range parts[1:] {
			kv := strings.SplitN(p, "=", 2)
			if len(kv) != 2 {
				continue
			}
			switch strings.ToLower(kv[0]) {
			case "password":
				opts.Password = kv[1]
			case "ssl":
				if strings.ToLower(kv[1]) == "true" {
					opts.TLSConfig = &tls.Config{}
				}
			}
		}
	}
	return redis.NewClient(opts), nil
}
