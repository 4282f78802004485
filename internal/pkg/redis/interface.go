package redis

import (
	"context"
	"iter"
	"time"
)

// Store is the key-value contract the block cache needs: TTL'd string
// values, counters held in a hash, and prefix scans.
type Store interface {
	// Get returns Nil when the key does not exist.
	Get(ctx context.Context, key string) (string, error)
	// MGet returns one entry per key; a missing key yields ok=false.
	MGet(ctx context.Context, keys ...string) ([]Value, error)
	SetWithExpiry(ctx context.Context, key, value string, exp time.Duration) error
	Del(ctx context.Context, keys ...string) (int64, error)

	HIncrBy(ctx context.Context, key, field string, delta int64) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// ScanPrefix lazily yields every key starting with prefix. It walks the
	// whole keyspace and is meant for admin paths only.
	ScanPrefix(ctx context.Context, prefix string) iter.Seq2[string, error]
	// Scan returns one page of keys matching pattern and the next cursor;
	// a zero cursor ends the iteration.
	Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error)

	Ping(ctx context.Context) error
	Close() error
}

// Value is one MGet result.
type Value struct {
	Data string
	OK   bool
}
