package utils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig describes the shared Redis used for the answer cache and
// the concurrency cap. Zero values get conservative defaults.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Timeout applies to dial, read and write.
	Timeout     time.Duration
	PingTimeout time.Duration

	PoolSize        int
	ConnMaxIdleTime time.Duration
}

func (c RedisConfig) options() *redis.Options {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Second
	}
	if c.PoolSize <= 0 {
		c.PoolSize = 20
	}
	if c.ConnMaxIdleTime <= 0 {
		c.ConnMaxIdleTime = 5 * time.Minute
	}
	return &redis.Options{
		Addr:            c.Addr,
		Password:        c.Password,
		DB:              c.DB,
		DialTimeout:     c.Timeout,
		ReadTimeout:     c.Timeout,
		WriteTimeout:    c.Timeout,
		PoolSize:        c.PoolSize,
		PoolTimeout:     2 * c.Timeout,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// OpenRedis initializes a Redis client and validates connectivity via PING.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis addr is required")
	}
	if cfg.DB < 0 {
		return nil, fmt.Errorf("redis db must be >= 0, got %d", cfg.DB)
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 2 * time.Second
	}

	rdb := redis.NewClient(cfg.options())

	pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}
