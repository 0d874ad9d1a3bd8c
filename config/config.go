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

package config

import (
	"time"
)

// Config is the complete configuration for the memory service.
type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Postgres  PostgresConfig
	Vector    VectorConfig
	Persona   PersonaConfig
	Access    AccessConfig
	RateLimit RateLimitConfig
	Lifecycle LifecycleConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ServerConfig contains the HTTP adapter's listen and CORS settings.
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	CORSOrigins     []string
}

// RedisConfig connects the Fast KV driver (working/episodic/cache tier).
// TTL fields mirror the original REDIS_TTL_* environment knobs.
type RedisConfig struct {
	Host        string
	Port        int
	Password    string
	DB          int
	TTLWorking  time.Duration
	TTLEpisodic time.Duration
	TTLCache    time.Duration
}

// PostgresConfig connects the durable tier.
type PostgresConfig struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	ArchiveDays int
}

// VectorConfig tunes the in-memory cosine-similarity driver.
type VectorConfig struct {
	Dimensions           int
	DefaultMinSimilarity float64
}

// PersonaOverride holds one persona's TTL multiplier and memory ceiling as
// loaded from configuration. core/persona.GetConfig does not read it; the
// service uses the compiled-in core/persona.defaultConfigs values.
type PersonaOverride struct {
	TTLMultiplier float64
	MaxMemorySize int
}

// PersonaConfig holds per-persona overrides, keyed by lowercase persona
// name.
type PersonaConfig struct {
	Overrides map[string]PersonaOverride
}

// AccessConfig holds access-manager settings as loaded from configuration.
// access.NewManager takes no configuration, so these values are not applied;
// the manager uses its built-in token TTL and per-policy rate limits.
type AccessConfig struct {
	DefaultRateLimit int
	TokenTTL         time.Duration
}

// RateLimitConfig tunes the HTTP-facing sliding-window limiter. Distributed
// selects the Redis-backed limiter over the in-process one.
type RateLimitConfig struct {
	Distributed bool
	Limit       int
	Window      time.Duration
}

// LifecycleConfig tunes the consolidation/pruning background engine.
type LifecycleConfig struct {
	ConsolidationInterval time.Duration
	PruningInterval       time.Duration
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level      string // "debug", "info", "warn", "error"
	Format     string // "json", "text"
	OutputPath string
}

// MetricsConfig contains metrics and monitoring configuration.
type MetricsConfig struct {
	Enabled bool
	Port    int
	Path    string
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			CORSOrigins:     []string{"*"},
		},
		Redis: RedisConfig{
			Host:        "localhost",
			Port:        6379,
			DB:          0,
			TTLWorking:  1 * time.Hour,
			TTLEpisodic: 24 * time.Hour,
			TTLCache:    5 * time.Minute,
		},
		Postgres: PostgresConfig{
			Host:        "localhost",
			Port:        5432,
			SSLMode:     "disable",
			ArchiveDays: 7,
		},
		Vector: VectorConfig{
			Dimensions:           384,
			DefaultMinSimilarity: 0.5,
		},
		Persona: PersonaConfig{
			Overrides: map[string]PersonaOverride{},
		},
		Access: AccessConfig{
			DefaultRateLimit: 1000,
			TokenTTL:         24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			Distributed: false,
			Limit:       100,
			Window:      time.Minute,
		},
		Lifecycle: LifecycleConfig{
			ConsolidationInterval: 5 * time.Minute,
			PruningInterval:       time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
