package services

import (
	"context"
	"fmt"
	"time"

	"github.com/grantflow/backend/internal/config"
	"github.com/grantflow/backend/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// Deduper suppresses the same notice fired twice within a window.
type Deduper interface {
	AcquireOnce(ctx context.Context, key string) bool
	Release(ctx context.Context, key string)
}

func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return rdb, nil
}

type RedisDeduper struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDeduper(rdb *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{rdb: rdb, ttl: ttl}
}

// AcquireOnce reports whether key is seen for the first time in the window.
// When Redis fails the notice goes out.
func (d *RedisDeduper) AcquireOnce(ctx context.Context, key string) bool {
	ok, err := d.rdb.SetNX(ctx, "dedup:notice:"+key, 1, d.ttl).Result()
	if err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("[Dedup] redis check failed, allowing notice")
		return true
	}
	if !ok {
		logger.Info().Str("key", key).Msg("[Dedup] skipped duplicated notice")
	}
	return ok
}

// Release forgets key so a failed delivery can be retried.
func (d *RedisDeduper) Release(ctx context.Context, key string) {
	if err := d.rdb.Del(ctx, "dedup:notice:"+key).Err(); err != nil {
		logger.Warn().Err(err).Str("key", key).Msg("[Dedup] release failed")
	}
}
