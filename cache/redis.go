package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"supportdesk_back/config"
)

const pingTimeout = 2 * time.Second

// NewRedisClientFromEnv connects to REDIS_ADDR and returns nil, nil when the
// variable is unset. REDIS_DB and REDIS_PASSWORD are optional. The caller
// owns the client and closes it on shutdown.
func NewRedisClientFromEnv(ctx context.Context) (*redis.Client, error) {
	addr := config.String("REDIS_ADDR", "")
	if addr == "" {
		return nil, nil
	}
	db := 0
	if raw := config.String("REDIS_DB", ""); raw != "" {
		db = config.Int("REDIS_DB", 0)
	}
	return NewRedisClient(ctx, &redis.Options{
		Addr:     addr,
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       db,
	})
}

// NewRedisClient dials and pings the server.
func NewRedisClient(ctx context.Context, opts *redis.Options) (*redis.Client, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping redis %s failed: %w", opts.Addr, err)
	}
	return client, nil
}
