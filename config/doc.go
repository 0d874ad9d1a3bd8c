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

// Package config provides configuration management for the memory
// service, layered defaults < file < environment via spf13/viper.
//
// # Configuration Structure
//
// The configuration is organized into sections:
//   - Server: HTTP adapter listen address and CORS origins
//   - Redis: Fast KV driver connection and per-kind TTLs
//   - Postgres: durable tier connection and archive retention
//   - Vector: in-memory vector driver tuning
//   - Persona: per-persona TTL/size overrides (loaded, but not applied:
//     core/persona uses its static defaults)
//   - Access: access manager settings (rate limit, token TTL; loaded, but
//     not applied by core/access)
//   - RateLimit: the HTTP surface's sliding-window limiter
//   - Lifecycle: consolidation/pruning tick intervals
//   - Logging: structured logging configuration
//   - Metrics: Prometheus exporter configuration
//
// # Usage
//
//	cfg, err := config.LoadFromFile("memoryd.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Or from environment variables alone:
//
//	cfg, err := config.Load()
//
// Environment variable override, one segment per nesting level:
//
//	export MEMORYD_SERVER_PORT=9090
//	export MEMORYD_REDIS_HOST=redis.internal
//	export MEMORYD_POSTGRES_DATABASE=memoryd
//
// # Validation
//
// All configuration is validated before use; see Config.Validate for the
// complete rule set.
package config
