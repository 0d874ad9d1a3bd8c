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
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg == nil {
		t.Fatal("DefaultConfig() should not return nil")
	}
	if cfg.Server.Port == 0 {
		t.Error("Server.Port should have a default value")
	}
	if cfg.Server.ReadTimeout == 0 {
		t.Error("Server.ReadTimeout should have a default value")
	}
	if cfg.Redis.Host == "" {
		t.Error("Redis.Host should have a default value")
	}
	if cfg.Lifecycle.ConsolidationInterval == 0 {
		t.Error("Lifecycle.ConsolidationInterval should have a default value")
	}
}

func TestConfig_Validate_Success(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for default config", err)
	}
}

func TestConfig_Validate_Server(t *testing.T) {
	tests := []struct {
		name    string
		server  ServerConfig
		wantErr bool
	}{
		{
			name: "valid server",
			server: ServerConfig{
				Host: "0.0.0.0", Port: 8080,
				ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second,
			},
			wantErr: false,
		},
		{
			name:    "port too low",
			server:  ServerConfig{Host: "0.0.0.0", Port: 0, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second},
			wantErr: true,
		},
		{
			name:    "port too high",
			server:  ServerConfig{Host: "0.0.0.0", Port: 70000, ReadTimeout: 30 * time.Second, WriteTimeout: 30 * time.Second},
			wantErr: true,
		},
		{
			name:    "zero read timeout",
			server:  ServerConfig{Host: "0.0.0.0", Port: 8080, ReadTimeout: 0, WriteTimeout: 30 * time.Second},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Server = tt.server
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Redis(t *testing.T) {
	tests := []struct {
		name    string
		redis   RedisConfig
		wantErr bool
	}{
		{
			name: "valid redis",
			redis: RedisConfig{
				Host: "localhost", Port: 6379,
				TTLWorking: time.Hour, TTLEpisodic: 24 * time.Hour, TTLCache: 5 * time.Minute,
			},
			wantErr: false,
		},
		{
			name:    "empty host",
			redis:   RedisConfig{Host: "", Port: 6379, TTLWorking: time.Hour, TTLEpisodic: time.Hour, TTLCache: time.Hour},
			wantErr: true,
		},
		{
			name:    "zero TTL",
			redis:   RedisConfig{Host: "localhost", Port: 6379, TTLWorking: 0, TTLEpisodic: time.Hour, TTLCache: time.Hour},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Redis = tt.redis
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Postgres(t *testing.T) {
	tests := []struct {
		name     string
		postgres PostgresConfig
		wantErr  bool
	}{
		{
			name:     "valid postgres",
			postgres: PostgresConfig{Host: "localhost", Port: 5432, ArchiveDays: 7},
			wantErr:  false,
		},
		{
			name:     "empty host",
			postgres: PostgresConfig{Host: "", Port: 5432, ArchiveDays: 7},
			wantErr:  true,
		},
		{
			name:     "negative archive days",
			postgres: PostgresConfig{Host: "localhost", Port: 5432, ArchiveDays: -1},
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Postgres = tt.postgres
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Vector(t *testing.T) {
	tests := []struct {
		name    string
		vector  VectorConfig
		wantErr bool
	}{
		{name: "valid", vector: VectorConfig{Dimensions: 384, DefaultMinSimilarity: 0.5}, wantErr: false},
		{name: "zero dimensions", vector: VectorConfig{Dimensions: 0, DefaultMinSimilarity: 0.5}, wantErr: true},
		{name: "similarity out of range", vector: VectorConfig{Dimensions: 384, DefaultMinSimilarity: 1.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Vector = tt.vector
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Logging(t *testing.T) {
	tests := []struct {
		name    string
		logging LoggingConfig
		wantErr bool
	}{
		{name: "valid", logging: LoggingConfig{Level: "info", Format: "json"}, wantErr: false},
		{name: "invalid level", logging: LoggingConfig{Level: "verbose", Format: "json"}, wantErr: true},
		{name: "invalid format", logging: LoggingConfig{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Logging = tt.logging
			if err := cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
