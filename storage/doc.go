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

// Package storage provides the tiered backend drivers for the memory
// service: a fast keyed tier (Redis), a semantic vector tier (in-memory
// cosine index backed by the durable tier), and a durable authoritative
// tier (PostgreSQL).
//
// # Driver interface
//
// Every backend implements Driver:
//
//	type Driver interface {
//	    Initialize(ctx context.Context) error
//	    Store(ctx context.Context, item *Item) error
//	    Retrieve(ctx context.Context, id string) (*Item, error)
//	    Search(ctx context.Context, q Query) ([]*Item, error)
//	    Delete(ctx context.Context, id string) error
//	    Stats(ctx context.Context) (map[string]interface{}, error)
//	    Close() error
//	}
//
// # Fast KV
//
// FastKV is the first tier: a Redis-backed keyed store with per-kind TTL and
// two secondary indices (an importance-ordered ZSET per persona/kind, and a
// SET of ids per kind) kept atomic with the primary write via a pipeline.
//
//	store := storage.NewFastKV(storage.DefaultFastKVConfig())
//	store.Initialize(ctx)
//	store.Store(ctx, item)
//
// # Vector
//
// Vector is the semantic tier: a collection-per-kind, in-memory
// cosine-similarity index. It owns no data of its own — on Initialize it
// rebuilds the index from every embedding the durable tier holds.
//
//	vec := storage.NewVector(storage.DefaultVectorConfig(), durable)
//	vec.Initialize(ctx)
//	matches, _ := vec.Search(ctx, storage.Query{Embedding: queryVec, Persona: "athena"})
//
// # Durable
//
// Durable is the authoritative tier: one PostgreSQL table per persistable
// kind (episodic, semantic, procedural), each indexed on persona, created_at,
// importance, and tags (GIN). Working memory never reaches this tier.
//
//	db, _ := storage.NewDurable(storage.DefaultDurableConfig())
//	db.Initialize(ctx)
package storage
