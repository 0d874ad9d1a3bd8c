// Copyright (C) 2025 sage-x-project
// SPDX-License-Identifier: LGPL-3.0-or-later

package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sage-x-project/memoryd/observability/logging"
)

// DistributedConfig holds distributed rate limiter configuration.
type DistributedConfig struct {
	// RedisClient is the Redis client.
	RedisClient *redis.Client

	// KeyPrefix is the prefix for Redis keys.
	KeyPrefix string

	// Limit is the maximum number of requests allowed per Window.
	Limit int

	// Window is the sliding time window duration.
	Window time.Duration

	// Logger receives a Warn on every distributed-to-fallback transition.
	// Nil disables logging.
	Logger logging.Logger

	// Config holds common configuration.
	Config
}

// DefaultDistributedConfig returns default distributed configuration.
func DefaultDistributedConfig() DistributedConfig {
	return DistributedConfig{
		KeyPrefix: "ratelimit:",
		Limit:     100,
		Window:    time.Minute,
		Config:    DefaultConfig(),
	}
}

// Distributed implements sliding-window rate limiting backed by Redis,
// falling back to an in-process SlidingWindow when Redis is unreachable.
// The fallback is degraded-mode: it limits per-instance only, not
// cluster-wide, which is why every transition is logged.
type Distributed struct {
	config   DistributedConfig
	fallback *SlidingWindow
	stats    Stats

	degraded atomic.Bool
}

// NewDistributed creates a distributed rate limiter.
func NewDistributed(config DistributedConfig) (*Distributed, error) {
	if config.RedisClient == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.Limit <= 0 {
		defaults := DefaultDistributedConfig()
		config.Limit = defaults.Limit
		config.Window = defaults.Window
		config.KeyPrefix = defaults.KeyPrefix
		config.Config = defaults.Config
	}

	fallback := NewSlidingWindow(SlidingWindowConfig{
		Limit:  config.Limit,
		Window: config.Window,
		Config: config.Config,
	})

	return &Distributed{
		config:   config,
		fallback: fallback,
	}, nil
}

// Allow checks if a request is allowed.
func (d *Distributed) Allow(key string) bool {
	return d.AllowN(key, 1)
}

// AllowN checks if N requests are allowed, using the sliding-window Redis
// algorithm and falling back to the in-process limiter on any Redis error.
func (d *Distributed) AllowN(key string, n int) bool {
	if n <= 0 {
		return true
	}

	ctx := context.Background()
	redisKey := d.config.KeyPrefix + key

	allowed, err := d.allowSlidingWindow(ctx, redisKey, n)
	if err != nil {
		d.enterDegraded(ctx, err)
		return d.fallback.AllowN(key, n)
	}
	d.exitDegraded(ctx)

	if allowed {
		if d.config.EnableMetrics {
			atomic.AddInt64(&d.stats.Allowed, int64(n))
		}
		return true
	}
	if d.config.EnableMetrics {
		atomic.AddInt64(&d.stats.Denied, int64(n))
	}
	return false
}

// allowSlidingWindow implements sliding window using a Redis sorted set.
func (d *Distributed) allowSlidingWindow(ctx context.Context, key string, n int) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-d.config.Window)

	pipe := d.config.RedisClient.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	currentCount := countCmd.Val()
	if int(currentCount)+n > d.config.Limit {
		return false, nil
	}

	pipe2 := d.config.RedisClient.Pipeline()
	for i := 0; i < n; i++ {
		timestamp := now.Add(time.Duration(i) * time.Nanosecond)
		pipe2.ZAdd(ctx, key, redis.Z{
			Score:  float64(timestamp.UnixNano()),
			Member: fmt.Sprintf("%d-%d", timestamp.UnixNano(), i),
		})
	}
	pipe2.Expire(ctx, key, d.config.Window*2)
	if _, err := pipe2.Exec(ctx); err != nil {
		return false, err
	}

	return true, nil
}

// enterDegraded logs a warning the first time a Redis error is seen since
// the last successful call, so a flapping connection doesn't spam the log.
func (d *Distributed) enterDegraded(ctx context.Context, err error) {
	if d.degraded.CompareAndSwap(false, true) && d.config.Logger != nil {
		d.config.Logger.Warn(ctx, "distributed rate limiter falling back to in-process limiter",
			logging.String("error", err.Error()))
	}
}

// exitDegraded logs a warning when Redis becomes reachable again after a
// degraded period.
func (d *Distributed) exitDegraded(ctx context.Context) {
	if d.degraded.CompareAndSwap(true, false) && d.config.Logger != nil {
		d.config.Logger.Warn(ctx, "distributed rate limiter recovered, resuming Redis-backed limiting")
	}
}

// Wait blocks until a request is allowed.
func (d *Distributed) Wait(ctx context.Context, key string) error {
	for {
		if d.Allow(key) {
			return nil
		}

		waitTime := d.config.Window / time.Duration(d.config.Limit)
		if waitTime < 10*time.Millisecond {
			waitTime = 10 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
		}
	}
}

// Reserve reserves a request and returns the estimated wait duration.
func (d *Distributed) Reserve(key string) time.Duration {
	if d.Allow(key) {
		return 0
	}
	return d.config.Window / time.Duration(d.config.Limit)
}

// Remaining reports how many more requests key may make in the current
// window without consuming one. Falls back to the in-process count while
// degraded.
func (d *Distributed) Remaining(key string) int {
	if d.degraded.Load() {
		return d.fallback.Remaining(key)
	}

	ctx := context.Background()
	redisKey := d.config.KeyPrefix + key
	windowStart := time.Now().Add(-d.config.Window)

	pipe := d.config.RedisClient.Pipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", strconv.FormatInt(windowStart.UnixNano(), 10))
	countCmd := pipe.ZCard(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return d.fallback.Remaining(key)
	}

	remaining := d.config.Limit - int(countCmd.Val())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Backend reports which backend is currently serving requests: "distributed"
// when Redis is reachable, "fallback" while degraded.
func (d *Distributed) Backend() string {
	if d.degraded.Load() {
		return "fallback"
	}
	return "distributed"
}

// Stats returns limiter statistics.
func (d *Distributed) Stats() Stats {
	return Stats{
		Allowed: atomic.LoadInt64(&d.stats.Allowed),
		Denied:  atomic.LoadInt64(&d.stats.Denied),
	}
}

// Reset resets the limiter for a specific key, in both Redis and the
// fallback limiter.
func (d *Distributed) Reset(key string) {
	ctx := context.Background()
	d.config.RedisClient.Del(ctx, d.config.KeyPrefix+key)
	d.fallback.Reset(key)
}

// Close closes the limiter and its fallback.
func (d *Distributed) Close() error {
	return d.fallback.Close()
}
