package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisConnectTimeout = 5 * time.Second

// RedisService wraps the connection shared by the session relay and the
// redis usage backend
type RedisService struct {
	client *redis.Client
	addr   string
}

// NewRedisService dials redisURL and verifies the server answers a PING
func NewRedisService(redisURL string) (*RedisService, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	// Relay subscribers hold one connection each; leave headroom for counters
	opts.PoolSize = 16
	opts.MinIdleConns = 2
	opts.MaxRetries = 3
	opts.DialTimeout = redisConnectTimeout
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), redisConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", opts.Addr, err)
	}

	log.Printf("✅ Redis connected (%s, db %d)", opts.Addr, opts.DB)
	return &RedisService{client: client, addr: opts.Addr}, nil
}

// Client returns the underlying client
func (r *RedisService) Client() *redis.Client {
	return r.client
}

// Ping is the readiness check registered under "redis" on /health
func (r *RedisService) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis %s: %w", r.addr, err)
	}
	return nil
}

// Close releases the pool
func (r *RedisService) Close() error {
	return r.client.Close()
}
