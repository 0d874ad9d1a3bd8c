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
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"

	adkerrors "github.com/sage-x-project/memoryd/pkg/errors"
)

// VectorConfig configures the semantic tier.
type VectorConfig struct {
	// MinSimilarity is the default floor applied when a query doesn't set
	// one explicitly.
	MinSimilarity float64
}

// DefaultVectorConfig returns the default vector-driver configuration.
func DefaultVectorConfig() *VectorConfig {
	return &VectorConfig{MinSimilarity: 0.7}
}

// entry is a collection member: an item id plus its embedding, kept
// alongside enough fields to satisfy Search without round-tripping to the
// durable tier for every candidate.
type entry struct {
	item *Item
	norm float64
}

// Vector is a collection-per-kind, in-memory cosine-similarity index. It has
// no authority of its own: embeddings are persisted by the durable driver and
// loaded here on Initialize.
type Vector struct {
	cfg      *VectorConfig
	durable  *Durable
	mu       sync.RWMutex
	// collections is keyed by Kind, each a map of item id -> entry.
	collections map[Kind]map[string]*entry
}

// NewVector creates a Vector driver backed by durable for embedding
// persistence and index rebuild.
func NewVector(cfg *VectorConfig, durable *Durable) *Vector {
	if cfg == nil {
		cfg = DefaultVectorConfig()
	}
	return &Vector{
		cfg:     cfg,
		durable: durable,
		collections: map[Kind]map[string]*entry{
			KindEpisodic:   {},
			KindSemantic:   {},
			KindProcedural: {},
		},
	}
}

// Initialize rebuilds the in-memory index from every embedding the durable
// tier currently holds.
func (v *Vector) Initialize(ctx context.Context) error {
	if v.durable == nil {
		return nil
	}
	items, err := v.durable.AllEmbeddings(ctx)
	if err != nil {
		return err
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for _, item := range items {
		v.indexLocked(item)
	}
	return nil
}

func norm2(x []float32) float64 {
	f := make([]float64, len(x))
	for i, v := range x {
		f[i] = float64(v)
	}
	return floats.Norm(f, 2)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	fa := make([]float64, n)
	fb := make([]float64, n)
	for i := 0; i < n; i++ {
		fa[i] = float64(a[i])
		fb[i] = float64(b[i])
	}
	return floats.Dot(fa, fb)
}

// cosine returns the cosine similarity of a and b, or 0 if either is a zero
// vector.
func cosine(a []float32, normA float64, b []float32) float64 {
	normB := norm2(b)
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot(a, b) / (normA * normB)
}

func (v *Vector) indexLocked(item *Item) {
	coll, ok := v.collections[item.Kind]
	if !ok {
		coll = make(map[string]*entry)
		v.collections[item.Kind] = coll
	}
	coll[item.ID] = &entry{item: item.Clone(), norm: norm2(item.Embedding)}
}

// Store indexes item's embedding in its kind's collection. An item with no
// embedding is accepted but never surfaced by Search (it cannot be scored).
func (v *Vector) Store(ctx context.Context, item *Item) error {
	if !item.Kind.Valid() {
		return adkerrors.ErrUnknownKind
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.indexLocked(item)
	return nil
}

// Retrieve returns the indexed item by id, searching every collection.
func (v *Vector) Retrieve(ctx context.Context, id string) (*Item, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	for _, coll := range v.collections {
		if e, ok := coll[id]; ok {
			return e.item.Clone(), nil
		}
	}
	return nil, adkerrors.ErrItemNotFound
}

// Search performs a flat-scan cosine-similarity ranking within q.Persona and
// q.Kinds (all three semantic-capable kinds if unset), filtering below
// MinSimilarity (or the driver default) and truncating to q.Limit.
func (v *Vector) Search(ctx context.Context, q Query) ([]*Item, error) {
	if len(q.Embedding) == 0 {
		return nil, nil
	}

	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = []Kind{KindEpisodic, KindSemantic, KindProcedural}
	}

	minSim := q.MinSimilarity
	if minSim <= 0 {
		minSim = v.cfg.MinSimilarity
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	normQ := norm2(q.Embedding)

	type scored struct {
		item *Item
		sim  float64
	}
	var candidates []scored

	v.mu.RLock()
	for _, kind := range kinds {
		coll, ok := v.collections[kind]
		if !ok {
			continue
		}
		for _, e := range coll {
			if q.Persona != "" && e.item.Persona != q.Persona {
				continue
			}
			if len(e.item.Embedding) == 0 {
				continue
			}
			sim := cosine(q.Embedding, normQ, e.item.Embedding)
			if sim < minSim {
				continue
			}
			candidates = append(candidates, scored{item: e.item.Clone(), sim: sim})
		}
	}
	v.mu.RUnlock()

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sim > candidates[j].sim })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*Item, len(candidates))
	for i, c := range candidates {
		out[i] = c.item
	}
	return out, nil
}

// Delete removes id from whichever collection holds it. Idempotent.
func (v *Vector) Delete(ctx context.Context, id string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, coll := range v.collections {
		delete(coll, id)
	}
	return nil
}

// Stats reports the size of each collection.
func (v *Vector) Stats(ctx context.Context) (map[string]interface{}, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	stats := make(map[string]interface{}, len(v.collections))
	for kind, coll := range v.collections {
		stats[string(kind)] = len(coll)
	}
	return stats, nil
}

// Close releases no external resources; the index lives in-process.
func (v *Vector) Close() error {
	return nil
}
