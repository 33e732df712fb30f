package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rickgao/engine-bridge/internal/config"
)

// NewCache creates a Redis client without dialing.
func NewCache(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// PingCache verifies a Redis client.
func PingCache(ctx context.Context, client *redis.Client) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}
