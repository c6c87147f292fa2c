// Package cache opens the Redis client behind the statistics cache and the
// assistant conversation store.
package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/facetrack/facetrack-api/pkg/config"
)

const pingTimeout = 5 * time.Second

// NewRedis connects and verifies the client. Callers treat a failure here
// as non-fatal: without Redis the API recomputes statistics on every read
// and assistant conversations lose their history.
func NewRedis(cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
