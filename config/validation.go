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
)

// Validate validates the entire configuration.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateRedis(); err != nil {
		return err
	}
	if err := c.validatePostgres(); err != nil {
		return err
	}
	if err := c.validateVector(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateLifecycle(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.Redis.Host == "" {
		return fmt.Errorf("redis host must not be empty")
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		return fmt.Errorf("redis port must be between 1 and 65535")
	}
	if c.Redis.TTLWorking <= 0 || c.Redis.TTLEpisodic <= 0 || c.Redis.TTLCache <= 0 {
		return fmt.Errorf("redis TTLs must all be positive")
	}
	return nil
}

func (c *Config) validatePostgres() error {
	if c.Postgres.Host == "" {
		return fmt.Errorf("postgres host must not be empty")
	}
	if c.Postgres.Port < 1 || c.Postgres.Port > 65535 {
		return fmt.Errorf("postgres port must be between 1 and 65535")
	}
	if c.Postgres.ArchiveDays < 0 {
		return fmt.Errorf("postgres archive days must not be negative")
	}
	return nil
}

func (c *Config) validateVector() error {
	if c.Vector.Dimensions <= 0 {
		return fmt.Errorf("vector dimensions must be positive")
	}
	if c.Vector.DefaultMinSimilarity < 0 || c.Vector.DefaultMinSimilarity > 1 {
		return fmt.Errorf("vector default minimum similarity must be in [0,1]")
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.Limit <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	return nil
}

func (c *Config) validateLifecycle() error {
	if c.Lifecycle.ConsolidationInterval <= 0 {
		return fmt.Errorf("lifecycle consolidation interval must be positive")
	}
	if c.Lifecycle.PruningInterval <= 0 {
		return fmt.Errorf("lifecycle pruning interval must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging format must be one of: json, text")
	}
	return nil
}
