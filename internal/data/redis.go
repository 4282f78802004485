package data

import (
	"context"
	"errors"
	"time"

	"promptguard/internal/conf"
	pkgredis "promptguard/internal/pkg/redis"

	"github.com/go-kratos/kratos/v2/log"
	redis "github.com/redis/go-redis/v9"
)

// NewRedisStore creates the block-cache store from configuration. An
// unreachable server is logged but not fatal: the block cache degrades to
// classifier-per-request until Redis comes back.
func NewRedisStore(c *conf.Data, logger log.Logger) (pkgredis.Store, func(), error) {
	helper := log.NewHelper(log.With(logger, "module", "data/redis"))
	if c == nil || c.Redis == nil || c.Redis.Addr == "" {
		return nil, nil, errors.New("data.redis.addr is not configured")
	}

	opts := &redis.Options{
		Addr:         c.Redis.Addr,
		Network:      c.Redis.Network,
		Password:     c.Redis.Password,
		DB:           c.Redis.DB,
		DialTimeout:  c.Redis.DialTimeout.Duration,
		ReadTimeout:  c.Redis.ReadTimeout.Duration,
		WriteTimeout: c.Redis.WriteTimeout.Duration,
	}
	store := pkgredis.NewStore(redis.NewClient(opts))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		helper.Warnf("Redis at %s is unreachable, starting degraded: %v", c.Redis.Addr, err)
	} else {
		helper.Infof("connected to Redis at %s", c.Redis.Addr)
	}

	cleanup := func() {
		helper.Info("closing Redis connection")
		if err := store.Close(); err != nil {
			helper.Errorf("close Redis: %v", err)
		}
	}
	return store, cleanup, nil
}
