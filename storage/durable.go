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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/sage-x-project/memoryd/core/resilience"
	adkerrors "github.com/sage-x-project/memoryd/pkg/errors"
)

// DurableConfig contains PostgreSQL connection configuration for the
// authoritative tier.
type DurableConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// AutoMigrate creates the three kind tables if they don't exist.
	AutoMigrate bool
}

// DefaultDurableConfig returns the default durable-tier configuration.
func DefaultDurableConfig() *DurableConfig {
	return &DurableConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Database:        "memoryd",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// Durable is the authoritative tier: one table per persistable kind
// (episodic, semantic, procedural). Working memory never reaches this tier.
type Durable struct {
	db      *sql.DB
	cfg     *DurableConfig
	breaker *resilience.CircuitBreaker
}

// NewDurable opens a connection pool against PostgreSQL. It does not ping or
// migrate until Initialize is called.
func NewDurable(cfg *DurableConfig) (*Durable, error) {
	if cfg == nil {
		cfg = DefaultDurableConfig()
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, adkerrors.ErrBackendUnavailable.Wrap(err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	return &Durable{
		db:  db,
		cfg: cfg,
		breaker: resilience.NewCircuitBreaker(&resilience.CircuitBreakerConfig{
			MaxFailures:         5,
			Timeout:             30 * time.Second,
			MaxHalfOpenRequests: 1,
		}),
	}, nil
}

// Initialize pings the database and, if AutoMigrate is set, creates the
// three kind tables.
func (d *Durable) Initialize(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return adkerrors.ErrBackendUnavailable.Wrap(err)
	}
	if d.cfg.AutoMigrate {
		if err := d.migrate(ctx); err != nil {
			return adkerrors.ErrBackendUnavailable.Wrap(err)
		}
	}
	return nil
}

// tableFor returns the table name for a persistable kind. Working memory
// has no durable table; callers must not route it here.
func tableFor(kind Kind) (string, error) {
	switch kind {
	case KindEpisodic:
		return "memory_episodic", nil
	case KindSemantic:
		return "memory_semantic", nil
	case KindProcedural:
		return "memory_procedural", nil
	default:
		return "", adkerrors.ErrUnknownKind.WithDetail("kind", string(kind))
	}
}

func (d *Durable) migrate(ctx context.Context) error {
	for _, table := range []string{"memory_episodic", "memory_semantic", "memory_procedural"} {
		query := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id VARCHAR(64) PRIMARY KEY,
				persona VARCHAR(64) NOT NULL,
				content JSONB NOT NULL,
				importance DOUBLE PRECISION NOT NULL DEFAULT 0,
				tags TEXT[] NOT NULL DEFAULT '{}',
				metadata JSONB,
				embedding REAL[],
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_access TIMESTAMP WITH TIME ZONE NOT NULL,
				access_count BIGINT NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_%s_persona ON %s(persona);
			CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s(created_at);
			CREATE INDEX IF NOT EXISTS idx_%s_importance ON %s(importance);
			CREATE INDEX IF NOT EXISTS idx_%s_tags ON %s USING GIN(tags);
		`, table, table, table, table, table, table, table, table, table)

		if _, err := d.db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

// Store upserts item into its kind table.
func (d *Durable) Store(ctx context.Context, item *Item) error {
	table, err := tableFor(item.Kind)
	if err != nil {
		return err
	}

	content, err := json.Marshal(item.Content)
	if err != nil {
		return adkerrors.ErrInvalidInput.Wrap(err)
	}
	var metadata []byte
	if item.Metadata != nil {
		metadata, err = json.Marshal(item.Metadata)
		if err != nil {
			return adkerrors.ErrInvalidInput.Wrap(err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, persona, content, importance, tags, metadata, embedding, created_at, last_access, access_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			persona = EXCLUDED.persona,
			content = EXCLUDED.content,
			importance = EXCLUDED.importance,
			tags = EXCLUDED.tags,
			metadata = EXCLUDED.metadata,
			embedding = EXCLUDED.embedding,
			last_access = EXCLUDED.last_access,
			access_count = EXCLUDED.access_count
	`, table)

	err = d.breaker.Execute(ctx, func(ctx context.Context) error {
		_, execErr := d.db.ExecContext(ctx, query,
			item.ID, item.Persona, content, item.Importance,
			pq.Array(item.Tags), nullableJSON(metadata), pq.Array(item.Embedding),
			item.Timestamp, item.LastAccess, item.AccessCount,
		)
		return execErr
	})
	if err != nil {
		return adkerrors.ErrBackendUnavailable.Wrap(err)
	}
	return nil
}

func nullableJSON(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}

// scanItem hydrates an Item from a single row's columns. kind is not stored
// as a column; it is known from which table is being scanned.
func scanItem(row *sql.Row, kind Kind) (*Item, error) {
	var (
		item       Item
		content    []byte
		metadata   []byte
		tags       pq.StringArray
		embedding  pq.Float32Array
	)
	item.Kind = kind

	err := row.Scan(&item.ID, &item.Persona, &content, &item.Importance,
		&tags, &metadata, &embedding, &item.Timestamp, &item.LastAccess, &item.AccessCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, adkerrors.ErrItemNotFound
		}
		return nil, adkerrors.ErrBackendUnavailable.Wrap(err)
	}

	if err := json.Unmarshal(content, &item.Content); err != nil {
		return nil, adkerrors.ErrInternal.Wrap(err)
	}
	if metadata != nil {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, adkerrors.ErrInternal.Wrap(err)
		}
	}
	item.Tags = []string(tags)
	if len(embedding) > 0 {
		item.Embedding = []float32(embedding)
	}
	return &item, nil
}

// Retrieve looks the id up across all three kind tables since the caller
// does not always know the kind ahead of time.
func (d *Durable) Retrieve(ctx context.Context, id string) (*Item, error) {
	var found *Item
	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		for _, kind := range []Kind{KindEpisodic, KindSemantic, KindProcedural} {
			table, _ := tableFor(kind)
			query := fmt.Sprintf(`
				SELECT id, persona, content, importance, tags, metadata, embedding, created_at, last_access, access_count
				FROM %s WHERE id = $1
			`, table)
			row := d.db.QueryRowContext(ctx, query, id)
			item, err := scanItem(row, kind)
			if err == nil {
				found = item
				return nil
			}
			if !adkerrors.IsNotFound(err) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, adkerrors.ErrItemNotFound
	}
	return found, nil
}

// Search runs a filtered scan across the kind tables named in q.Kinds (all
// three persistable kinds if unset), ordered by importance, newest first on
// ties.
func (d *Durable) Search(ctx context.Context, q Query) ([]*Item, error) {
	kinds := q.Kinds
	if len(kinds) == 0 {
		kinds = []Kind{KindEpisodic, KindSemantic, KindProcedural}
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	var results []*Item
	var queryErr error
	queried := 0

	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		for _, kind := range kinds {
			table, err := tableFor(kind)
			if err != nil {
				continue
			}

			var conds []string
			var args []interface{}
			args = append(args, q.Persona)
			conds = append(conds, "persona = $1")

			if len(q.Tags) > 0 {
				args = append(args, pq.Array(q.Tags))
				conds = append(conds, fmt.Sprintf("tags && $%d", len(args)))
			}
			if q.HasImportanceFilter {
				args = append(args, q.ImportanceFloor)
				conds = append(conds, fmt.Sprintf("importance >= $%d", len(args)))
				args = append(args, q.ImportanceCeil)
				conds = append(conds, fmt.Sprintf("importance <= $%d", len(args)))
			}

			query := fmt.Sprintf(`
				SELECT id, persona, content, importance, tags, metadata, embedding, created_at, last_access, access_count
				FROM %s WHERE %s
				ORDER BY importance DESC
				LIMIT %d
			`, table, strings.Join(conds, " AND "), limit)

			rows, rowsErr := d.db.QueryContext(ctx, query, args...)
			if rowsErr != nil {
				queryErr = rowsErr
				continue
			}
			queried++
			for rows.Next() {
				var (
					item      Item
					content   []byte
					metadata  []byte
					tags      pq.StringArray
					embedding pq.Float32Array
				)
				item.Kind = kind
				if err := rows.Scan(&item.ID, &item.Persona, &content, &item.Importance,
					&tags, &metadata, &embedding, &item.Timestamp, &item.LastAccess, &item.AccessCount); err != nil {
					continue
				}
				json.Unmarshal(content, &item.Content)
				if metadata != nil {
					json.Unmarshal(metadata, &item.Metadata)
				}
				item.Tags = []string(tags)
				if len(embedding) > 0 {
					item.Embedding = []float32(embedding)
				}
				results = append(results, &item)
			}
			rows.Close()
		}
		// Only trip the breaker when every table query failed; a partial
		// failure (one table down, others fine) isn't a Postgres outage.
		if queried == 0 && queryErr != nil {
			return queryErr
		}
		return nil
	})
	if err != nil {
		return nil, adkerrors.ErrBackendUnavailable.Wrap(err)
	}

	// Merge the per-table results into one ordering before truncating.
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Importance != results[j].Importance {
			return results[i].Importance > results[j].Importance
		}
		return results[i].Timestamp.After(results[j].Timestamp)
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Delete removes id from whichever kind table holds it. Idempotent.
func (d *Durable) Delete(ctx context.Context, id string) error {
	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		for _, kind := range []Kind{KindEpisodic, KindSemantic, KindProcedural} {
			table, _ := tableFor(kind)
			query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, table)
			result, execErr := d.db.ExecContext(ctx, query, id)
			if execErr != nil {
				return execErr
			}
			if n, _ := result.RowsAffected(); n > 0 {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return adkerrors.ErrBackendUnavailable.Wrap(err)
	}
	return nil
}

// Stats reports per-table row counts.
func (d *Durable) Stats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	err := d.breaker.Execute(ctx, func(ctx context.Context) error {
		for _, kind := range []Kind{KindEpisodic, KindSemantic, KindProcedural} {
			table, _ := tableFor(kind)
			var count int
			query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)
			if err := d.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
				return err
			}
			stats[table] = count
		}
		return nil
	})
	if err != nil {
		return nil, adkerrors.ErrBackendUnavailable.Wrap(err)
	}
	return stats, nil
}

// CircuitState reports the durable driver's circuit breaker state, exposed
// for health checks and Stats callers that want to distinguish a slow
// Postgres from one the breaker has already given up on.
func (d *Durable) CircuitState() resilience.State {
	return d.breaker.State()
}

// Close closes the connection pool.
func (d *Durable) Close() error {
	return d.db.Close()
}

// Ping checks connectivity without affecting driver state.
func (d *Durable) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// AllEmbeddings loads every (id, persona, kind, embedding) tuple that has a
// non-empty embedding, used by the vector driver to rebuild its in-memory
// index on startup.
func (d *Durable) AllEmbeddings(ctx context.Context) ([]*Item, error) {
	var out []*Item
	for _, kind := range []Kind{KindEpisodic, KindSemantic, KindProcedural} {
		table, _ := tableFor(kind)
		query := fmt.Sprintf(`
			SELECT id, persona, embedding, importance, tags
			FROM %s WHERE embedding IS NOT NULL AND array_length(embedding, 1) > 0
		`, table)
		rows, err := d.db.QueryContext(ctx, query)
		if err != nil {
			return nil, adkerrors.ErrBackendUnavailable.Wrap(err)
		}
		for rows.Next() {
			var (
				item      Item
				embedding pq.Float32Array
				tags      pq.StringArray
			)
			item.Kind = kind
			if err := rows.Scan(&item.ID, &item.Persona, &embedding, &item.Importance, &tags); err != nil {
				continue
			}
			item.Embedding = []float32(embedding)
			item.Tags = []string(tags)
			out = append(out, &item)
		}
		rows.Close()
	}
	return out, nil
}
