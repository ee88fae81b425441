package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stele-indexer/internal/config"
	apperrors "github.com/stele-indexer/internal/errors"
)

// NewRedisClient opens and pings a Redis connection
func NewRedisClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.MaxConnections,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// RedisDeduper marks raw event keys with SETNX so a replayed log is
// recognised across restarts and across indexer instances.
type RedisDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper over client. Keys expire after ttl;
// zero keeps them forever.
func NewRedisDeduper(client *redis.Client, cfg *config.DedupeConfig) (*RedisDeduper, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required for the deduper")
	}
	prefix := "stele:dedupe:"
	var ttl time.Duration
	if cfg != nil {
		if cfg.Prefix != "" {
			prefix = cfg.Prefix
		}
		ttl = cfg.TTL
	}
	return &RedisDeduper{client: client, prefix: prefix, ttl: ttl}, nil
}

// Seen reports whether key was already marked, marking it otherwise
func (d *RedisDeduper) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, 1, d.ttl).Result()
	if err != nil {
		return false, apperrors.NewDatabaseError("redis setnx", err)
	}
	return !ok, nil
}

// Forget removes the mark for key so the event can be processed again
func (d *RedisDeduper) Forget(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return apperrors.NewDatabaseError("redis del", err)
	}
	return nil
}
