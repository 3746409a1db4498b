// internal/common/database/redis.go
package database

import (
	"context"
	"fmt"
	"time"

	"submission-workflow/internal/common/config"

	"github.com/redis/go-redis/v9"
)

// NewRedis builds the shared client used for the finance cache and webhook
// dedupe keys.
func NewRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})
}

// PingRedis reports whether the server answers.
func PingRedis(ctx context.Context, client redis.UniversalClient) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
