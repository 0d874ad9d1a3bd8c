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

// Package memory is the facade every adapter calls: it composes persona
// resolution, access control, rate limiting, the hybrid router, and the
// lifecycle engine behind nine operations (Remember/Recall/RetrieveByID/
// Delete/Share/Stats/Health, plus SemanticSearch and QueryAudit).
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sage-x-project/memoryd/core/access"
	"github.com/sage-x-project/memoryd/core/lifecycle"
	"github.com/sage-x-project/memoryd/core/persona"
	"github.com/sage-x-project/memoryd/core/resilience"
	"github.com/sage-x-project/memoryd/core/router"
	"github.com/sage-x-project/memoryd/observability/logging"
	"github.com/sage-x-project/memoryd/observability/metrics"
	adkerrors "github.com/sage-x-project/memoryd/pkg/errors"
	"github.com/sage-x-project/memoryd/storage"
)

// inferenceKeywords classifies content into a Kind by keyword match
// (EnhancedMemoryManager._infer_memory_type), checked in order: procedural,
// then semantic, then episodic, defaulting to working when nothing matches.
var inferenceKeywords = map[storage.Kind][]string{
	storage.KindProcedural: {"method", "algorithm", "process", "steps", "procedure"},
	storage.KindSemantic:   {"concept", "definition", "theory", "architecture", "design"},
	storage.KindEpisodic:   {"event", "happened", "occurred", "did", "was"},
}

var inferenceOrder = []storage.Kind{storage.KindProcedural, storage.KindSemantic, storage.KindEpisodic}

// Stats mirrors EnhancedMemoryManager.stats: process-wide counters
// reported alongside the router's per-tier backend stats.
type Stats struct {
	TotalStores  int64
	TotalRecalls int64
	CacheHits    int64
	CacheMisses  int64
}

// HealthReport is the result of a health snapshot (health_check).
type HealthReport struct {
	Status    string            `json:"status"` // "healthy" or "degraded"
	Timestamp time.Time         `json:"timestamp"`
	Backends  map[string]string `json:"backends"`
}

// Service composes the memory system's components behind a single API.
type Service struct {
	personas  *persona.Manager
	router    *router.Router
	access    *access.Manager
	lifecycle *lifecycle.Engine
	metrics   *metrics.ServiceMetrics
	log       logging.Logger

	retry *resilience.RetryConfig

	mu    sync.Mutex
	stats Stats

	healthDone chan struct{}
	healthWg   sync.WaitGroup
}

// Config bundles Service's collaborators. AccessManager/Lifecycle/Metrics/
// Log are all optional: a nil AccessManager disables authorization checks
// (useful for embedding Service in a trusted in-process caller), a nil
// Metrics/Log simply skips instrumentation.
type Config struct {
	Personas      *persona.Manager
	Router        *router.Router
	AccessManager *access.Manager
	Lifecycle     *lifecycle.Engine
	Metrics       *metrics.ServiceMetrics
	Log           logging.Logger
}

// New builds a Service from cfg.
func New(cfg Config) *Service {
	return &Service{
		personas:  cfg.Personas,
		router:    cfg.Router,
		access:    cfg.AccessManager,
		lifecycle: cfg.Lifecycle,
		metrics:   cfg.Metrics,
		log:       cfg.Log,
		retry:     resilience.DefaultRetryConfig(),
	}
}

// authorize is a no-op when no access.Manager is configured; otherwise it
// delegates to access.Manager.Authorize.
func (s *Service) authorize(ctx context.Context, token string, op access.Operation, targetPersona, kind string) error {
	if s.access == nil {
		return nil
	}
	return s.access.Authorize(ctx, token, op, targetPersona, kind)
}

// Remember stores a new memory item for persona, auto-generating its id
// and inferring its kind when kind is empty.
func (s *Service) Remember(ctx context.Context, token, personaName string, content interface{}, kind storage.Kind, importance float64, tags []string, metadata map[string]interface{}) (*storage.Item, error) {
	resolved := s.personas.Resolve(ctx, personaName)

	if err := s.authorize(ctx, token, access.OpStore, resolved, string(kind)); err != nil {
		return nil, err
	}

	if importance < 0 || importance > 1 {
		return nil, adkerrors.ErrImportanceOutOfRange.WithDetail("importance", importance)
	}

	if kind == "" {
		kind = inferKind(content)
	}
	if !kind.Valid() {
		return nil, adkerrors.ErrUnknownKind.WithDetail("kind", string(kind))
	}

	now := time.Now()
	item := &storage.Item{
		ID:         uuid.NewString(),
		Persona:    resolved,
		Kind:       kind,
		Content:    content,
		Importance: importance,
		Timestamp:  now,
		LastAccess: now,
		Tags:       tags,
		Metadata:   metadata,
	}

	if err := s.router.Store(ctx, item); err != nil {
		s.recordBackendError(kind)
		return nil, err
	}

	s.mu.Lock()
	s.stats.TotalStores++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordOp("remember", resolved, "success", 0)
		s.metrics.SetItemsStored(resolved, string(kind), 1)
	}
	if s.log != nil {
		s.log.Debug(ctx, "stored memory", logging.String("persona", resolved), logging.String("kind", string(kind)), logging.String("id", item.ID))
	}

	return item, nil
}

// Recall searches persona's memory for queryText, always covering the
// experience tier and additionally covering knowledge and procedure when
// useSemantic widens the search.
func (s *Service) Recall(ctx context.Context, token, personaName, queryText string, limit int, useSemantic bool) ([]*storage.Item, error) {
	resolved := s.personas.Resolve(ctx, personaName)

	if err := s.authorize(ctx, token, access.OpSearch, resolved, ""); err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = 5
	}

	q := storage.Query{
		Text:            queryText,
		Persona:         resolved,
		Limit:           limit,
		NeedsExperience: true,
		NeedsKnowledge:  useSemantic,
		NeedsProcedure:  useSemantic,
	}

	var results []*storage.Item
	err := resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
		items, err := s.router.Search(ctx, q)
		if err != nil {
			return err
		}
		results = items
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.stats.TotalRecalls++
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.RecordOp("recall", resolved, "success", 0)
	}

	return results, nil
}

// RetrieveByID fetches a single item by id for persona.
func (s *Service) RetrieveByID(ctx context.Context, token, personaName, id string) (*storage.Item, error) {
	resolved := s.personas.Resolve(ctx, personaName)

	if err := s.authorize(ctx, token, access.OpRetrieve, resolved, ""); err != nil {
		return nil, err
	}

	var item *storage.Item
	err := resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
		found, err := s.router.Retrieve(ctx, resolved, id)
		if err != nil {
			return err
		}
		item = found
		return nil
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordCacheMiss()
		}
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordCacheHit()
	}
	return item, nil
}

// Delete removes an item by id for persona.
func (s *Service) Delete(ctx context.Context, token, personaName, id string) error {
	resolved := s.personas.Resolve(ctx, personaName)

	if err := s.authorize(ctx, token, access.OpDelete, resolved, ""); err != nil {
		return err
	}

	return resilience.Retry(ctx, s.retry, func(ctx context.Context) error {
		return s.router.Delete(ctx, resolved, id)
	})
}

// Share copies memories matching queryText from one persona to another,
// checked against the cross-persona access matrix, stamping
// MetaSharedFrom/MetaSharedAt on each copy.
func (s *Service) Share(ctx context.Context, token, fromPersona, toPersona, queryText string, limit int) (int, error) {
	from := s.personas.Resolve(ctx, fromPersona)
	to := s.personas.Resolve(ctx, toPersona)

	if err := s.authorize(ctx, token, access.OpRetrieve, from, ""); err != nil {
		return 0, err
	}
	if err := s.authorize(ctx, token, access.OpStore, to, ""); err != nil {
		return 0, err
	}

	items, err := s.Recall(ctx, token, from, queryText, limit, true)
	if err != nil {
		return 0, err
	}

	shared := 0
	now := time.Now()
	for _, original := range items {
		copyItem := original.Clone()
		copyItem.ID = uuid.NewString()
		copyItem.Persona = to
		if copyItem.Metadata == nil {
			copyItem.Metadata = make(map[string]interface{}, 2)
		}
		copyItem.Metadata[storage.MetaSharedFrom] = from
		copyItem.Metadata[storage.MetaSharedAt] = now.Format(time.RFC3339)

		if err := s.router.Store(ctx, copyItem); err != nil {
			if s.log != nil {
				s.log.Warn(ctx, "share store failed", logging.String("item", original.ID), logging.String("error", err.Error()))
			}
			continue
		}
		shared++
	}

	if s.log != nil {
		s.log.Info(ctx, "shared memories", logging.String("from", from), logging.String("to", to), logging.Int("count", shared))
	}

	return shared, nil
}

// SemanticSearch fans recall out across personas (or every persona when
// none are given), returning results sorted by importance and truncated to
// limit.
func (s *Service) SemanticSearch(ctx context.Context, token, queryText string, personaNames []string, limit int, minSimilarity float64) ([]*storage.Item, error) {
	if err := s.authorize(ctx, token, access.OpSearch, "", ""); err != nil {
		return nil, err
	}

	if len(personaNames) == 0 {
		personaNames = persona.KnownNames()
	}
	if limit <= 0 {
		limit = 10
	}

	var all []*storage.Item
	for _, name := range personaNames {
		resolved := s.personas.Resolve(ctx, name)
		items, err := s.router.Search(ctx, storage.Query{
			Text:           queryText,
			Persona:        resolved,
			Limit:          limit,
			MinSimilarity:  minSimilarity,
			NeedsKnowledge: true,
			NeedsProcedure: true,
		})
		if err != nil {
			continue
		}
		all = append(all, items...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Importance > all[j].Importance
	})

	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// Stats returns process-wide counters alongside the router's per-persona
// backend statistics.
func (s *Service) Stats(ctx context.Context, personaName string) (Stats, map[string]interface{}, error) {
	resolved := s.personas.Resolve(ctx, personaName)

	s.mu.Lock()
	snapshot := s.stats
	s.mu.Unlock()

	backendStats, err := s.router.Stats(ctx, resolved)
	return snapshot, backendStats, err
}

// QueryAudit exposes the access manager's bounded audit ring to admin
// callers.
func (s *Service) QueryAudit(ctx context.Context, token, filterPersona, filterOp string, limit int) ([]access.AuditRecord, error) {
	if err := s.authorize(ctx, token, access.OpList, "", ""); err != nil {
		return nil, err
	}
	if s.access == nil {
		return nil, nil
	}
	return s.access.QueryAudit(filterPersona, filterOp, limit), nil
}

// Health runs an on-demand health snapshot across the storage tiers.
func (s *Service) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    "healthy",
		Timestamp: time.Now(),
		Backends:  make(map[string]string, 3),
	}

	drivers := s.personas.Connection(ctx, "shared")

	checks := map[string]storage.Driver{
		"fast": drivers.Fast, "vector": drivers.Vector, "durable": drivers.Durable,
	}
	for name, driver := range checks {
		if driver == nil {
			continue
		}
		if _, err := driver.Stats(ctx); err != nil {
			report.Backends[name] = "unhealthy"
			report.Status = "degraded"
			continue
		}
		report.Backends[name] = "healthy"
	}

	return report
}

// StartBackgroundTasks launches the periodic health-check loop and, if
// configured, the lifecycle engine's consolidation/pruning tickers.
func (s *Service) StartBackgroundTasks(interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if s.lifecycle != nil {
		s.lifecycle.Start()
	}

	s.healthDone = make(chan struct{})
	s.healthWg.Add(1)
	go s.healthCheckLoop(interval)
}

// StopBackgroundTasks stops the health-check loop and the lifecycle
// engine.
func (s *Service) StopBackgroundTasks() {
	if s.healthDone != nil {
		close(s.healthDone)
		s.healthWg.Wait()
	}
	if s.lifecycle != nil {
		s.lifecycle.Stop()
	}
}

func (s *Service) healthCheckLoop(interval time.Duration) {
	defer s.healthWg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			report := s.Health(context.Background())
			if report.Status != "healthy" && s.log != nil {
				s.log.Warn(context.Background(), "health check degraded", logging.String("status", report.Status))
			}
		case <-s.healthDone:
			return
		}
	}
}

func (s *Service) recordBackendError(kind storage.Kind) {
	if s.metrics != nil {
		s.metrics.RecordBackendError("router", string(kind))
	}
}

// inferKind implements EnhancedMemoryManager._infer_memory_type: the first
// keyword-table match wins, in inferenceOrder; no match defaults to
// working memory.
func inferKind(content interface{}) storage.Kind {
	text := strings.ToLower(contentToString(content))
	for _, kind := range inferenceOrder {
		for _, kw := range inferenceKeywords[kind] {
			if strings.Contains(text, kw) {
				return kind
			}
		}
	}
	return storage.KindWorking
}

func contentToString(content interface{}) string {
	if s, ok := content.(string); ok {
		return s
	}
	return ""
}
