package cache

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache implements Client on top of go-redis.
//
// Connectivity is event-driven, not polled per call: the OnConnect hook marks
// the cache available, any transport error observed on an operation marks it
// unavailable, and a background health loop re-promotes it once Redis answers
// pings again.
type RedisCache struct {
	client    *redis.Client
	available atomic.Bool
}

func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	c := &RedisCache{}
	opts.OnConnect = func(_ context.Context, _ *redis.Conn) error {
		if c.available.CompareAndSwap(false, true) {
			log.Printf("cache: redis connected")
		}
		return nil
	}
	c.client = redis.NewClient(opts)
	return c, nil
}

// Connect performs the initial ping. A failure leaves the cache in the
// unavailable state instead of failing startup; the health loop keeps
// retrying.
func (c *RedisCache) Connect(ctx context.Context) {
	if err := c.client.Ping(ctx).Err(); err != nil {
		log.Printf("cache: redis unreachable, starting degraded: %v", err)
		c.available.Store(false)
	}
}

// StartHealthLoop re-pings Redis on an interval so a cache marked down by a
// transport error can recover without a restart.
func (c *RedisCache) StartHealthLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.available.Load() {
					continue
				}
				if err := c.client.Ping(ctx).Err(); err == nil {
					if c.available.CompareAndSwap(false, true) {
						log.Printf("cache: redis recovered")
					}
				}
			}
		}
	}()
}

func (c *RedisCache) Available() bool {
	return c.available.Load()
}

func (c *RedisCache) noteError(err error) {
	if c.available.CompareAndSwap(true, false) {
		log.Printf("cache: redis transport error, marking unavailable: %v", err)
	}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		c.noteError(err)
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return val, true, nil
}

func (c *RedisCache) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		c.noteError(err)
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}

func (c *RedisCache) FlushAll(ctx context.Context) error {
	if err := c.client.FlushAll(ctx).Err(); err != nil {
		c.noteError(err)
		return fmt.Errorf("redis flushall: %w", err)
	}
	return nil
}

func (c *RedisCache) Size(ctx context.Context) (int64, error) {
	n, err := c.client.DBSize(ctx).Result()
	if err != nil {
		c.noteError(err)
		return 0, fmt.Errorf("redis dbsize: %w", err)
	}
	return n, nil
}

func (c *RedisCache) Close() error {
	c.available.Store(false)
	return c.client.Close()
}
