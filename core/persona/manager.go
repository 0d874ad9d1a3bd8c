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

// Package persona manages the closed set of personas that own memory and
// keeps their backend connections isolated from each other.
package persona

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/sage-x-project/memoryd/observability/logging"
	"github.com/sage-x-project/memoryd/storage"
)

// Config is a persona's tuning knobs.
type Config struct {
	Name          string
	MaxMemorySize int
	TTLMultiplier float64
	AccessLevel   string

	// Priorities scores each kind 1 (low) to 5 (high) for this persona,
	// used by the forgetting curve's priority bonus. A kind
	// absent from this map defaults to 3 (MEDIUM).
	Priorities map[storage.Kind]int

	// Focus is the set of keywords that mark an item as relevant to this
	// persona's specialty, used by the consolidator to decide whether a
	// working-memory item should be promoted regardless of importance.
	Focus []string
}

// PriorityFor returns cfg's priority for kind, defaulting to 3 (MEDIUM)
// when the kind is absent from cfg.Priorities.
func (cfg Config) PriorityFor(kind storage.Kind) int {
	if p, ok := cfg.Priorities[kind]; ok {
		return p
	}
	return 3
}

// defaultConfigs mirrors the static per-persona table; unlisted personas
// (including "shared" and "system") fall back to Config{TTLMultiplier: 1}.
// Priorities/Focus are ported literally from PERSONA_MEMORY_CONFIG.
var defaultConfigs = map[string]Config{
	"athena": {
		Name: "athena", MaxMemorySize: 1500000, TTLMultiplier: 1.2, AccessLevel: "privileged",
		Priorities: map[storage.Kind]int{
			storage.KindSemantic: 4, storage.KindEpisodic: 3, storage.KindProcedural: 4,
		},
		Focus: []string{"architecture", "planning", "strategy", "team", "project"},
	},
	"artemis": {
		Name: "artemis", MaxMemorySize: 1000000, TTLMultiplier: 0.8, AccessLevel: "standard",
		Priorities: map[storage.Kind]int{
			storage.KindProcedural: 4, storage.KindSemantic: 4, storage.KindEpisodic: 2,
		},
		Focus: []string{"optimization", "performance", "algorithm", "efficiency", "code"},
	},
	"hestia": {
		Name: "hestia", MaxMemorySize: 1200000, TTLMultiplier: 1.5, AccessLevel: "privileged",
		Priorities: map[storage.Kind]int{
			storage.KindEpisodic: 4, storage.KindSemantic: 4, storage.KindProcedural: 4,
		},
		Focus: []string{"security", "vulnerability", "threat", "risk", "compliance"},
	},
	"bellona": {
		Name: "bellona", MaxMemorySize: 800000, TTLMultiplier: 0.6, AccessLevel: "standard",
		Priorities: map[storage.Kind]int{
			storage.KindProcedural: 4, storage.KindEpisodic: 3, storage.KindSemantic: 3,
		},
		Focus: []string{"execution", "tactics", "resources", "timeline", "coordination"},
	},
	"seshat": {
		Name: "seshat", MaxMemorySize: 2000000, TTLMultiplier: 2.0, AccessLevel: "privileged",
		Priorities: map[storage.Kind]int{
			storage.KindSemantic: 4, storage.KindProcedural: 4, storage.KindEpisodic: 3,
		},
		Focus: []string{"documentation", "knowledge", "organization", "retrieval", "standards"},
	},
}

// validPersonas is the closed set.
var validPersonas = map[string]bool{
	"athena":  true,
	"artemis": true,
	"hestia":  true,
	"bellona": true,
	"seshat":  true,
	"shared":  true,
	"system":  true,
}

// Valid reports whether name is a member of the closed persona set.
func Valid(name string) bool {
	return validPersonas[strings.ToLower(name)]
}

// KnownNames returns the five specialist personas (excluding "shared" and
// "system"), the default scope for a cross-persona fan-out search when the
// caller names none explicitly.
func KnownNames() []string {
	names := make([]string, 0, len(defaultConfigs))
	for name := range defaultConfigs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DriverSet bundles the three backend drivers a persona's operations are
// routed through. All personas share the same physical drivers in this
// implementation (unlike the Redis-per-db isolation the Python source used);
// isolation is enforced by always scoping reads/writes to Persona, not by
// separate connections, because the Fast KV/durable schemas already key
// everything by persona.
type DriverSet struct {
	Fast    storage.Driver
	Vector  storage.Driver
	Durable storage.Driver
}

// Manager resolves a persona name to its Config and DriverSet, logging and
// falling back to "shared" for unknown personas rather than failing the
// calling operation.
type Manager struct {
	mu      sync.RWMutex
	drivers DriverSet
	log     logging.Logger
}

// NewManager creates a Manager backed by a single shared DriverSet.
func NewManager(drivers DriverSet, log logging.Logger) *Manager {
	return &Manager{drivers: drivers, log: log}
}

// Resolve returns the canonical lowercase persona name, falling back to
// "shared" (with a warning log) if name is not in the closed set.
func (m *Manager) Resolve(ctx context.Context, name string) string {
	lower := strings.ToLower(name)
	if validPersonas[lower] {
		return lower
	}
	if m.log != nil {
		m.log.Warn(ctx, "unknown persona, falling back to shared", logging.String("persona", name))
	}
	return "shared"
}

// Connection returns the DriverSet for a persona. It never errors; an
// unknown persona resolves to "shared" first.
func (m *Manager) Connection(ctx context.Context, name string) DriverSet {
	m.Resolve(ctx, name)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.drivers
}

// GetConfig returns the static configuration for a persona, defaulting to a
// Config with TTLMultiplier 1 for personas outside defaultConfigs (shared,
// system, and any name falling back through Resolve).
func GetConfig(name string) Config {
	lower := strings.ToLower(name)
	if cfg, ok := defaultConfigs[lower]; ok {
		return cfg
	}
	return Config{Name: lower, TTLMultiplier: 1.0, AccessLevel: "standard"}
}
