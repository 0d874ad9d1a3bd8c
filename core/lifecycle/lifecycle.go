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

// Package lifecycle runs the two background maintenance tasks every
// persona's memory goes through: consolidation (promoting important
// working memory into long-term storage) and forgetting-curve pruning
// (evicting stale episodic/semantic memory).
package lifecycle

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/sage-x-project/memoryd/core/persona"
	"github.com/sage-x-project/memoryd/core/router"
	"github.com/sage-x-project/memoryd/observability/logging"
	"github.com/sage-x-project/memoryd/observability/metrics"
	"github.com/sage-x-project/memoryd/storage"
)

const (
	// consolidationThreshold is the strict importance cutoff above which a
	// working-memory item is always promoted.
	consolidationThreshold = 0.7

	// accessCountThreshold promotes frequently accessed items regardless
	// of importance (MemoryConsolidator._should_consolidate).
	accessCountThreshold = 5

	// oldAge is how long a working-memory item lives before consolidation
	// is allowed to remove it from working memory (MemoryConsolidator
	// ._is_old: "age > 1 hour").
	oldAge = time.Hour

	// episodicRetentionFloor/semanticRetentionFloor are the forgetting
	// curve's prune thresholds (ForgettingCurve.prune_memories): semantic
	// memory is pruned more conservatively than episodic.
	episodicRetentionFloor = 0.1
	semanticRetentionFloor = 0.05

	// retentionHalfLifeDays is the forgetting curve's decay time constant in
	// days: the base retention term is exp(-days/30), which falls to 1/e
	// (not 1/2) after 30 days.
	retentionHalfLifeDays = 30.0
)

// proceduralKeywords/semanticKeywords classify a promoted working-memory
// item's target kind (MemoryConsolidator._determine_memory_type).
var (
	proceduralKeywords = []string{"method", "algorithm", "process", "steps", "procedure"}
	semanticKeywords    = []string{"definition", "concept", "theory", "principle", "rule"}
)

// Engine runs consolidation and pruning for a fixed set of personas on
// independent tickers, guarding against overlapping runs per
// (persona, task) with a running-flag map.
type Engine struct {
	personas   *persona.Manager
	router     *router.Router
	personaIDs []string
	log        logging.Logger
	metrics    *metrics.ServiceMetrics

	consolidationInterval time.Duration
	pruningInterval       time.Duration

	mu      sync.Mutex
	running map[string]bool

	done chan struct{}
	wg   sync.WaitGroup
}

// Config tunes the engine's tick intervals; zero values fall back to the
// teacher-grounded defaults (5 minutes, 1 hour).
type Config struct {
	ConsolidationInterval time.Duration
	PruningInterval       time.Duration
}

// DefaultConfig mirrors TrinitasMemoryManager's _consolidation_loop (5m)
// and _pruning_loop (1h) sleep intervals.
func DefaultConfig() Config {
	return Config{
		ConsolidationInterval: 5 * time.Minute,
		PruningInterval:       time.Hour,
	}
}

// New builds an Engine over personaIDs (typically the closed persona set
// minus "shared"/"system", or all of it — callers decide). m may be nil, in
// which case consolidation/pruning run unmetered.
func New(personas *persona.Manager, r *router.Router, personaIDs []string, log logging.Logger, m *metrics.ServiceMetrics, cfg Config) *Engine {
	if cfg.ConsolidationInterval <= 0 {
		cfg.ConsolidationInterval = DefaultConfig().ConsolidationInterval
	}
	if cfg.PruningInterval <= 0 {
		cfg.PruningInterval = DefaultConfig().PruningInterval
	}

	return &Engine{
		personas:              personas,
		router:                r,
		personaIDs:            personaIDs,
		log:                   log,
		metrics:               m,
		consolidationInterval: cfg.ConsolidationInterval,
		pruningInterval:       cfg.PruningInterval,
		running:               make(map[string]bool),
		done:                  make(chan struct{}),
	}
}

// Start launches the consolidation and pruning tickers in the background.
func (e *Engine) Start() {
	e.wg.Add(2)
	go e.loop(e.consolidationInterval, e.runConsolidation)
	go e.loop(e.pruningInterval, e.runPruning)
}

// Stop signals both loops to exit and waits for them to return.
func (e *Engine) Stop() {
	close(e.done)
	e.wg.Wait()
}

func (e *Engine) loop(interval time.Duration, task func(ctx context.Context)) {
	defer e.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			task(context.Background())
		case <-e.done:
			return
		}
	}
}

func (e *Engine) tryEnter(personaName, task string) bool {
	key := personaName + ":" + task
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running[key] {
		return false
	}
	e.running[key] = true
	return true
}

func (e *Engine) exit(personaName, task string) {
	key := personaName + ":" + task
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.running, key)
}

func (e *Engine) runConsolidation(ctx context.Context) {
	for _, name := range e.personaIDs {
		if !e.tryEnter(name, "consolidate") {
			continue
		}
		func() {
			defer e.exit(name, "consolidate")
			if err := e.Consolidate(ctx, name); err != nil && e.log != nil {
				e.log.Warn(ctx, "consolidation failed", logging.String("persona", name), logging.String("error", err.Error()))
			}
		}()
	}
}

func (e *Engine) runPruning(ctx context.Context) {
	for _, name := range e.personaIDs {
		if !e.tryEnter(name, "prune") {
			continue
		}
		func() {
			defer e.exit(name, "prune")
			if err := e.Prune(ctx, name); err != nil && e.log != nil {
				e.log.Warn(ctx, "pruning failed", logging.String("persona", name), logging.String("error", err.Error()))
			}
		}()
	}
}

// Consolidate promotes working-memory items for personaName into long-term
// storage (MemoryConsolidator.consolidate). An item is promoted when
// shouldConsolidate reports true; its target kind is always inferred from
// content keywords by determineKind, and it is removed from working
// memory once it has aged past oldAge.
func (e *Engine) Consolidate(ctx context.Context, personaName string) error {
	drivers := e.personas.Connection(ctx, personaName)
	cfg := persona.GetConfig(personaName)

	items, err := drivers.Fast.Search(ctx, storage.Query{
		Persona: personaName,
		Kinds:   []storage.Kind{storage.KindWorking},
		Limit:   100,
	})
	if err != nil {
		return err
	}

	for _, item := range items {
		if !shouldConsolidate(item, cfg) {
			continue
		}

		promoted := item.Clone()
		promoted.Kind = determineKind(item)

		if err := e.router.Store(ctx, promoted); err != nil {
			if e.log != nil {
				e.log.Warn(ctx, "consolidation store failed", logging.String("item", item.ID), logging.String("error", err.Error()))
			}
			continue
		}
		if e.metrics != nil {
			e.metrics.RecordConsolidation(personaName, string(promoted.Kind))
		}

		if isOld(item) {
			drivers.Fast.Delete(ctx, item.ID)
		}
	}
	return nil
}

// shouldConsolidate implements MemoryConsolidator._should_consolidate:
// promote on high importance, frequent access, or a content match against
// the persona's focus keywords.
func shouldConsolidate(item *storage.Item, cfg persona.Config) bool {
	if item.Importance > consolidationThreshold {
		return true
	}
	if item.AccessCount > accessCountThreshold {
		return true
	}
	content := strings.ToLower(contentString(item.Content))
	for _, area := range cfg.Focus {
		if strings.Contains(content, area) {
			return true
		}
	}
	return false
}

// determineKind implements MemoryConsolidator._determine_memory_type.
func determineKind(item *storage.Item) storage.Kind {
	content := strings.ToLower(contentString(item.Content))
	for _, kw := range proceduralKeywords {
		if strings.Contains(content, kw) {
			return storage.KindProcedural
		}
	}
	for _, kw := range semanticKeywords {
		if strings.Contains(content, kw) {
			return storage.KindSemantic
		}
	}
	return storage.KindEpisodic
}

// isOld implements MemoryConsolidator._is_old: age since creation exceeds
// oldAge.
func isOld(item *storage.Item) bool {
	return time.Since(item.Timestamp) > oldAge
}

func contentString(content interface{}) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}

// Prune implements ForgettingCurve.prune_memories: episodic and semantic
// memory below their retention floor are deleted via the router (fanning
// the delete out to every tier, matching the Python source's forget()
// which only targeted the one backend it scanned).
func (e *Engine) Prune(ctx context.Context, personaName string) error {
	drivers := e.personas.Connection(ctx, personaName)
	cfg := persona.GetConfig(personaName)

	episodes, err := drivers.Durable.Search(ctx, storage.Query{
		Persona: personaName, Kinds: []storage.Kind{storage.KindEpisodic}, Limit: 1000,
	})
	if err != nil {
		return err
	}
	for _, item := range episodes {
		if CalculateRetention(item, cfg) < episodicRetentionFloor {
			e.router.Delete(ctx, personaName, item.ID)
			if e.metrics != nil {
				e.metrics.RecordPrune(personaName, string(storage.KindEpisodic))
			}
			if e.log != nil {
				e.log.Info(ctx, "pruned episodic memory", logging.String("id", item.ID))
			}
		}
	}

	knowledge, err := drivers.Vector.Search(ctx, storage.Query{
		Persona: personaName, Kinds: []storage.Kind{storage.KindSemantic}, Limit: 1000,
	})
	if err != nil {
		return err
	}
	for _, item := range knowledge {
		if CalculateRetention(item, cfg) < semanticRetentionFloor {
			e.router.Delete(ctx, personaName, item.ID)
			if e.metrics != nil {
				e.metrics.RecordPrune(personaName, string(storage.KindSemantic))
			}
			if e.log != nil {
				e.log.Info(ctx, "pruned semantic memory", logging.String("id", item.ID))
			}
		}
	}

	return nil
}

// CalculateRetention implements ForgettingCurve.calculate_retention: an
// exponential time decay from last access, plus bonuses for access
// frequency, importance, and the persona's priority for this item's kind.
func CalculateRetention(item *storage.Item, cfg persona.Config) float64 {
	days := time.Since(item.LastAccess).Hours() / 24
	baseRetention := math.Exp(-days / retentionHalfLifeDays)

	frequencyBonus := math.Min(float64(item.AccessCount)*0.05, 0.3)
	importanceBonus := item.Importance * 0.2
	priorityBonus := float64(cfg.PriorityFor(item.Kind)) / 5.0 * 0.2

	total := baseRetention + frequencyBonus + importanceBonus + priorityBonus
	return math.Min(total, 1.0)
}
