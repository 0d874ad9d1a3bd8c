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

// Package router implements the hybrid storage router: intelligent
// per-kind write routing, a cache-first multi-tier read path, and
// fan-out search across the Fast KV, vector, and durable backends.
package router

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sage-x-project/memoryd/cache"
	"github.com/sage-x-project/memoryd/core/persona"
	adkerrors "github.com/sage-x-project/memoryd/pkg/errors"
	"github.com/sage-x-project/memoryd/storage"
)

// Router routes memory operations across a persona's backend drivers,
// using a local item cache to avoid a driver round-trip for recently seen
// items.
type Router struct {
	personas *persona.Manager
	items    *cache.ItemCache
}

// New builds a Router over personas' resolved DriverSets, caching recent
// items in items.
func New(personas *persona.Manager, items *cache.ItemCache) *Router {
	return &Router{personas: personas, items: items}
}

// Store routes item to the tier(s) appropriate for its kind:
//
//   - working:    Fast KV, handed to Durable only when the Fast KV store fails
//   - episodic:   Fast KV always, plus Durable archive when importance > 0.5
//   - semantic:   Vector always, plus a Fast KV cache copy
//   - procedural: Vector always, plus Durable always (reliability over
//     the Fast KV cache semantic memory gets, since procedures are reused)
func (r *Router) Store(ctx context.Context, item *storage.Item) error {
	drivers := r.personas.Connection(ctx, item.Persona)

	var err error
	switch item.Kind {
	case storage.KindWorking:
		err = drivers.Fast.Store(ctx, item)
		if err != nil {
			err = drivers.Durable.Store(ctx, item)
		}

	case storage.KindEpisodic:
		err = drivers.Fast.Store(ctx, item)
		if item.Importance > 0.5 {
			if archErr := drivers.Durable.Store(ctx, item); archErr != nil && err == nil {
				err = archErr
			}
		}

	case storage.KindSemantic:
		err = drivers.Vector.Store(ctx, item)
		if cacheErr := drivers.Fast.Store(ctx, item); cacheErr != nil && err == nil {
			err = cacheErr
		}

	case storage.KindProcedural:
		err = drivers.Vector.Store(ctx, item)
		if durErr := drivers.Durable.Store(ctx, item); durErr != nil {
			err = durErr
		}

	default:
		return adkerrors.ErrUnknownKind.WithDetail("kind", string(item.Kind))
	}

	if err != nil {
		return err
	}
	if r.items != nil {
		r.items.Set(ctx, item, 0)
	}
	return nil
}

// Retrieve implements the multi-tier read path: local cache, then Fast KV, then Vector, then Durable,
// backfilling the cache (and Fast KV, for items found only in Durable or
// Vector) on the way out.
func (r *Router) Retrieve(ctx context.Context, personaName, id string) (*storage.Item, error) {
	if r.items != nil {
		if item, found := r.items.Get(ctx, id); found {
			return item, nil
		}
	}

	drivers := r.personas.Connection(ctx, personaName)

	if item, err := drivers.Fast.Retrieve(ctx, id); err == nil {
		r.backfillCache(ctx, item)
		return item, nil
	}

	if item, err := drivers.Vector.Retrieve(ctx, id); err == nil {
		r.backfillCache(ctx, item)
		drivers.Fast.Store(ctx, item)
		return item, nil
	}

	item, err := drivers.Durable.Retrieve(ctx, id)
	if err != nil {
		return nil, adkerrors.ErrItemNotFound.WithDetail("id", id)
	}
	r.backfillCache(ctx, item)
	drivers.Fast.Store(ctx, item)
	return item, nil
}

func (r *Router) backfillCache(ctx context.Context, item *storage.Item) {
	if r.items != nil {
		r.items.Set(ctx, item, 0)
	}
}

// Search fans out across tiers based on which need-flags the query sets:
// NeedsKnowledge/NeedsProcedure hit the vector tier, NeedsExperience hits
// Fast KV, and Durable is queried whenever the combined results don't yet
// satisfy q.Limit. Results are deduplicated by id, preserving first
// occurrence order with vector hits ranked ahead of Fast KV (recency) hits.
func (r *Router) Search(ctx context.Context, q storage.Query) ([]*storage.Item, error) {
	drivers := r.personas.Connection(ctx, q.Persona)

	var vectorResults, fastResults []*storage.Item

	if q.NeedsKnowledge || q.NeedsProcedure {
		if items, err := drivers.Vector.Search(ctx, q); err == nil {
			vectorResults = items
		}
	}

	if q.NeedsExperience {
		if items, err := drivers.Fast.Search(ctx, q); err == nil {
			fastResults = items
		}
	}

	results := make([]*storage.Item, 0, len(vectorResults)+len(fastResults))
	results = append(results, vectorResults...)
	results = append(results, fastResults...)

	if q.Limit <= 0 || len(results) < q.Limit {
		durableResults, err := drivers.Durable.Search(ctx, q)
		if err == nil {
			results = append(results, durableResults...)
		}
	}

	return dedupByID(results, q.Limit), nil
}

func dedupByID(items []*storage.Item, limit int) []*storage.Item {
	seen := make(map[string]bool, len(items))
	unique := make([]*storage.Item, 0, len(items))
	for _, item := range items {
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true
		unique = append(unique, item)
		if limit > 0 && len(unique) >= limit {
			break
		}
	}
	return unique
}

// Delete fans out to every tier for persona (idempotent: a tier missing
// the id is not an error) and invalidates the local cache entry.
func (r *Router) Delete(ctx context.Context, personaName, id string) error {
	drivers := r.personas.Connection(ctx, personaName)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return drivers.Fast.Delete(gctx, id) })
	g.Go(func() error { return drivers.Vector.Delete(gctx, id) })
	g.Go(func() error { return drivers.Durable.Delete(gctx, id) })

	err := g.Wait()

	if r.items != nil {
		r.items.Invalidate(ctx, id)
	}
	return err
}

// Stats aggregates per-tier statistics for persona.
func (r *Router) Stats(ctx context.Context, personaName string) (map[string]interface{}, error) {
	drivers := r.personas.Connection(ctx, personaName)

	stats := make(map[string]interface{}, 3)

	fastStats, err := drivers.Fast.Stats(ctx)
	if err == nil {
		stats["fast"] = fastStats
	}

	vectorStats, err := drivers.Vector.Stats(ctx)
	if err == nil {
		stats["vector"] = vectorStats
	}

	durableStats, err := drivers.Durable.Stats(ctx)
	if err == nil {
		stats["durable"] = durableStats
	}

	return stats, nil
}
