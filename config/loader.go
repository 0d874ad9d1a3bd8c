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
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix: MEMORYD_SERVER_PORT,
// MEMORYD_REDIS_HOST, and so on, one segment per nesting level.
const envPrefix = "MEMORYD"

// LoadFromFile loads configuration from path (YAML, JSON, or TOML,
// detected by extension), layered as defaults < file < environment.
func LoadFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Load builds a configuration from defaults plus environment overrides
// only, for deployments driven entirely by env vars (no config file).
func Load() (*Config, error) {
	v := newViper()

	cfg, err := unmarshal(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func unmarshal(v *viper.Viper) (*Config, error) {
	cfg := new(Config)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, nil
}

// newViper builds a Viper instance pre-seeded with DefaultConfig()'s
// values as its default layer, so AutomaticEnv has a registered key for
// every field and an unset environment variable falls through to the
// shipped default rather than to the zero value.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())
	return v
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.readtimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writetimeout", d.Server.WriteTimeout)
	v.SetDefault("server.shutdowntimeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.corsorigins", d.Server.CORSOrigins)

	v.SetDefault("redis.host", d.Redis.Host)
	v.SetDefault("redis.port", d.Redis.Port)
	v.SetDefault("redis.password", d.Redis.Password)
	v.SetDefault("redis.db", d.Redis.DB)
	v.SetDefault("redis.ttlworking", d.Redis.TTLWorking)
	v.SetDefault("redis.ttlepisodic", d.Redis.TTLEpisodic)
	v.SetDefault("redis.ttlcache", d.Redis.TTLCache)

	v.SetDefault("postgres.host", d.Postgres.Host)
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.user", d.Postgres.User)
	v.SetDefault("postgres.password", d.Postgres.Password)
	v.SetDefault("postgres.database", d.Postgres.Database)
	v.SetDefault("postgres.sslmode", d.Postgres.SSLMode)
	v.SetDefault("postgres.archivedays", d.Postgres.ArchiveDays)

	v.SetDefault("vector.dimensions", d.Vector.Dimensions)
	v.SetDefault("vector.defaultminsimilarity", d.Vector.DefaultMinSimilarity)

	v.SetDefault("access.defaultratelimit", d.Access.DefaultRateLimit)
	v.SetDefault("access.tokenttl", d.Access.TokenTTL)

	v.SetDefault("ratelimit.distributed", d.RateLimit.Distributed)
	v.SetDefault("ratelimit.limit", d.RateLimit.Limit)
	v.SetDefault("ratelimit.window", d.RateLimit.Window)

	v.SetDefault("lifecycle.consolidationinterval", d.Lifecycle.ConsolidationInterval)
	v.SetDefault("lifecycle.pruninginterval", d.Lifecycle.PruningInterval)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.outputpath", d.Logging.OutputPath)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.port", d.Metrics.Port)
	v.SetDefault("metrics.path", d.Metrics.Path)

	v.SetDefault("persona.overrides", map[string]interface{}{})
}
