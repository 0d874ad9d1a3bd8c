// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sage-x-project/memoryd/core/resilience"
	adkerrors "github.com/sage-x-project/memoryd/pkg/errors"
)

// FastKVConfig configures the Fast KV driver.
type FastKVConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	MaxRetries   int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// TTLWorking/TTLEpisodic/TTLCache are the per-kind base TTLs. TTLCache
	// applies to semantic/procedural items, which Fast KV only caches
	// rather than owns.
	TTLWorking  time.Duration
	TTLEpisodic time.Duration
	TTLCache    time.Duration
}

// DefaultFastKVConfig returns the default Fast KV configuration.
func DefaultFastKVConfig() *FastKVConfig {
	return &FastKVConfig{
		Address:      "localhost:6379",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		TTLWorking:   1 * time.Hour,
		TTLEpisodic:  24 * time.Hour,
		TTLCache:     5 * time.Minute,
	}
}

// FastKV is the in-memory keyed tier with per-key TTL.
type FastKV struct {
	client  *redis.Client
	cfg     *FastKVConfig
	writes  *resilience.Bulkhead
	readCfg *resilience.TimeoutConfig
}

// NewFastKV creates a new Fast KV driver. It does not connect until
// Initialize is called.
func NewFastKV(cfg *FastKVConfig) *FastKV {
	if cfg == nil {
		cfg = DefaultFastKVConfig()
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		MaxRetries:   cfg.MaxRetries,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})
	return &FastKV{
		client: client,
		cfg:    cfg,
		writes: resilience.NewBulkhead(&resilience.BulkheadConfig{
			MaxConcurrent: cfg.PoolSize,
			MaxQueueDepth: cfg.PoolSize,
			Timeout:       cfg.WriteTimeout,
		}),
		readCfg: &resilience.TimeoutConfig{Duration: cfg.ReadTimeout},
	}
}

// Initialize verifies connectivity to Redis.
func (f *FastKV) Initialize(ctx context.Context) error {
	if err := f.client.Ping(ctx).Err(); err != nil {
		return adkerrors.ErrBackendUnavailable.Wrap(err)
	}
	return nil
}

// ttlFor returns the TTL to apply for a kind, scaled by a per-persona
// multiplier. A multiplier <= 0 is treated as 1.
func (f *FastKV) ttlFor(kind Kind, multiplier float64) time.Duration {
	var base time.Duration
	switch kind {
	case KindWorking:
		base = f.cfg.TTLWorking
	case KindEpisodic:
		base = f.cfg.TTLEpisodic
	default:
		base = f.cfg.TTLCache
	}
	if multiplier <= 0 {
		multiplier = 1
	}
	return time.Duration(float64(base) * multiplier)
}

func itemKey(id string) string            { return fmt.Sprintf("memory:%s", id) }
func personaKindKey(persona string, kind Kind) string {
	return fmt.Sprintf("persona:%s:%s", persona, kind)
}
func typeKey(kind Kind) string { return fmt.Sprintf("type:%s", kind) }

// Store upserts the item and its two secondary indices atomically via a
// Redis pipeline: if any command in the pipeline fails, none of it is
// observable, which satisfies the "roll back the primary on secondary
// failure" requirement without a separate rollback step.
func (f *FastKV) Store(ctx context.Context, item *Item) error {
	return f.StoreWithTTL(ctx, item, f.ttlFor(item.Kind, 1))
}

// StoreWithTTL stores item using an explicit TTL, used by persona isolation
// to apply a per-persona ttl_multiplier. The pipeline runs behind a
// bulkhead bounded by the connection pool size, so a burst of writers can't
// pile up more pipelines than the pool can actually serve.
func (f *FastKV) StoreWithTTL(ctx context.Context, item *Item, ttl time.Duration) error {
	data, err := json.Marshal(item)
	if err != nil {
		return adkerrors.ErrInvalidInput.Wrap(err)
	}

	err = f.writes.Execute(ctx, func(ctx context.Context) error {
		_, pipeErr := f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, itemKey(item.ID), data, ttl)
			pipe.ZAdd(ctx, personaKindKey(item.Persona, item.Kind), redis.Z{
				Score: item.Importance, Member: item.ID,
			})
			pipe.Expire(ctx, personaKindKey(item.Persona, item.Kind), ttl)
			pipe.SAdd(ctx, typeKey(item.Kind), item.ID)
			pipe.Expire(ctx, typeKey(item.Kind), ttl)
			return nil
		})
		return pipeErr
	})
	if err != nil {
		return adkerrors.ErrBackendUnavailable.Wrap(err)
	}
	return nil
}

// Retrieve fetches an item by id. O(1). Bounded by readCfg so a wedged
// connection fails fast instead of hanging the caller past ReadTimeout.
func (f *FastKV) Retrieve(ctx context.Context, id string) (*Item, error) {
	var data []byte
	err := resilience.WithTimeout(ctx, f.readCfg, func(ctx context.Context) error {
		b, getErr := f.client.Get(ctx, itemKey(id)).Bytes()
		if getErr != nil {
			return getErr
		}
		data = b
		return nil
	})
	if err != nil {
		if err == redis.Nil {
			return nil, adkerrors.ErrItemNotFound
		}
		return nil, adkerrors.ErrBackendUnavailable.Wrap(err)
	}

	var item Item
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, adkerrors.ErrInternal.Wrap(err)
	}
	return &item, nil
}

// Search returns the top-k items for persona/kinds ranked by the importance
// index (O(log n) + O(k) hydration).
func (f *FastKV) Search(ctx context.Context, q Query) ([]*Item, error) {
	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = []Kind{KindWorking, KindEpisodic, KindSemantic, KindProcedural}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	type scored struct {
		id    string
		score float64
	}
	var candidates []scored

	for _, kind := range kinds {
		zs, err := f.client.ZRevRangeWithScores(ctx, personaKindKey(q.Persona, kind), 0, int64(limit)-1).Result()
		if err != nil {
			continue
		}
		for _, z := range zs {
			id, ok := z.Member.(string)
			if !ok {
				continue
			}
			candidates = append(candidates, scored{id: id, score: z.Score})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	items := make([]*Item, 0, len(candidates))
	for _, c := range candidates {
		item, err := f.Retrieve(ctx, c.id)
		if err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Delete removes an item and its index entries. Idempotent.
func (f *FastKV) Delete(ctx context.Context, id string) error {
	item, err := f.Retrieve(ctx, id)
	if err != nil {
		if adkerrors.IsNotFound(err) {
			return nil
		}
		return err
	}

	_, err = f.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, itemKey(id))
		pipe.ZRem(ctx, personaKindKey(item.Persona, item.Kind), id)
		pipe.SRem(ctx, typeKey(item.Kind), id)
		return nil
	})
	if err != nil {
		return adkerrors.ErrBackendUnavailable.Wrap(err)
	}
	return nil
}

// Stats reports Fast KV statistics.
func (f *FastKV) Stats(ctx context.Context) (map[string]interface{}, error) {
	info, err := f.client.DBSize(ctx).Result()
	if err != nil {
		return nil, adkerrors.ErrBackendUnavailable.Wrap(err)
	}
	return map[string]interface{}{"keys": info}, nil
}

// Close closes the Redis connection.
func (f *FastKV) Close() error {
	return f.client.Close()
}

// Ping checks connectivity without affecting driver state.
func (f *FastKV) Ping(ctx context.Context) error {
	return f.client.Ping(ctx).Err()
}
