// Copyright (C) 2025 sage-x-project
// SPDX-License-Identifier: LGPL-3.0-or-later

/*
Package cache provides caching functionality for the memory service.

This package implements an in-memory LRU cache with TTL expiration, used by
the hybrid router as the local cache layer that sits in front of the Fast
KV/vector/durable drivers.

Features:
  - LRU/LFU/FIFO/TTL eviction policies
  - TTL-based expiration
  - Cache key generation from memory items

Example:

	import "github.com/sage-x-project/memoryd/cache"

	c := cache.NewMemoryCache(cache.CacheConfig{
	    MaxSize:    1000,
	    DefaultTTL: 5 * time.Minute,
	})

	c.Set(ctx, "key", item, 5*time.Minute)

	if value, found := c.Get(ctx, "key"); found {
	    item := value.(*storage.Item)
	}

	c.Delete(ctx, "key")
*/
package cache

import (
	"context"
	"time"

	"github.com/sage-x-project/memoryd/storage"
)

// Cache defines the interface for caching implementations
type Cache interface {
	// Get retrieves a value from cache
	Get(ctx context.Context, key string) (interface{}, bool)

	// Set stores a value in cache with TTL
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error

	// Delete removes a value from cache
	Delete(ctx context.Context, key string) error

	// Clear removes all entries from cache
	Clear(ctx context.Context) error

	// Stats returns cache statistics
	Stats() CacheStats

	// Close closes the cache
	Close() error
}

// CacheConfig holds cache configuration
type CacheConfig struct {
	// MaxSize is the maximum number of entries
	MaxSize int

	// DefaultTTL is the default time-to-live
	DefaultTTL time.Duration

	// EvictionPolicy determines how entries are evicted
	EvictionPolicy EvictionPolicy

	// EnableMetrics enables cache metrics collection
	EnableMetrics bool
}

// EvictionPolicy determines how cache entries are evicted
type EvictionPolicy string

const (
	// EvictionPolicyLRU evicts least recently used entries
	EvictionPolicyLRU EvictionPolicy = "lru"

	// EvictionPolicyLFU evicts least frequently used entries
	EvictionPolicyLFU EvictionPolicy = "lfu"

	// EvictionPolicyFIFO evicts oldest entries first
	EvictionPolicyFIFO EvictionPolicy = "fifo"

	// EvictionPolicyTTL evicts based on TTL only
	EvictionPolicyTTL EvictionPolicy = "ttl"
)

// CacheStats holds cache statistics
type CacheStats struct {
	Hits          int64
	Misses        int64
	Sets          int64
	Deletes       int64
	Evictions     int64
	Size          int
	MaxSize       int
	HitRate       float64
	MemoryUsageKB int64
}

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxSize:        1000,
		DefaultTTL:     5 * time.Minute,
		EvictionPolicy: EvictionPolicyLRU,
		EnableMetrics:  true,
	}
}

// ItemCache is a specialized cache keyed by memory item id, used by the
// hybrid router to avoid a driver round-trip for recently seen items.
type ItemCache struct {
	cache Cache
	ttl   time.Duration
}

// NewItemCache wraps cache with a fixed default TTL for item lookups.
func NewItemCache(cache Cache, ttl time.Duration) *ItemCache {
	return &ItemCache{cache: cache, ttl: ttl}
}

// Get returns the cached item for id, if present and unexpired.
func (ic *ItemCache) Get(ctx context.Context, id string) (*storage.Item, bool) {
	value, found := ic.cache.Get(ctx, id)
	if !found {
		return nil, false
	}
	item, ok := value.(*storage.Item)
	if !ok {
		return nil, false
	}
	return item, true
}

// Set caches item under its id using the configured TTL, or an explicit
// override when ttl > 0.
func (ic *ItemCache) Set(ctx context.Context, item *storage.Item, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ic.ttl
	}
	return ic.cache.Set(ctx, item.ID, item, ttl)
}

// Invalidate drops the cached entry for id, used after Delete/Share so a
// stale read never wins a race with the authoritative driver write.
func (ic *ItemCache) Invalidate(ctx context.Context, id string) error {
	return ic.cache.Delete(ctx, id)
}

// Stats returns the underlying cache's statistics.
func (ic *ItemCache) Stats() CacheStats {
	return ic.cache.Stats()
}
