package redis

import (
	"context"
	"iter"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements Store over a go-redis client.
type Redis struct {
	client redis.UniversalClient
}

// Nil is returned by Get for a missing key.
const Nil = redis.Nil

const scanPageSize = 256

// NewStore wraps an existing client.
func NewStore(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	return r.client.Get(ctx, key).Result()
}

func (r *Redis) MGet(ctx context.Context, keys ...string) ([]Value, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raw, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	values := make([]Value, len(raw))
	for i, v := range raw {
		if s, ok := v.(string); ok {
			values[i] = Value{Data: s, OK: true}
		}
	}
	return values, nil
}

func (r *Redis) SetWithExpiry(ctx context.Context, key, value string, exp time.Duration) error {
	return r.client.Set(ctx, key, value, exp).Err()
}

func (r *Redis) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.client.Del(ctx, keys...).Result()
}

func (r *Redis) HIncrBy(ctx context.Context, key, field string, delta int64) error {
	return r.client.HIncrBy(ctx, key, field, delta).Err()
}

func (r *Redis) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

func (r *Redis) ScanPrefix(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		it := r.client.Scan(ctx, 0, prefix+"*", scanPageSize).Iterator()
		for it.Next(ctx) {
			if !yield(it.Val(), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield("", err)
		}
	}
}

func (r *Redis) Scan(ctx context.Context, cursor uint64, match string, count int64) ([]string, uint64, error) {
	return r.client.Scan(ctx, cursor, match, count).Result()
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
