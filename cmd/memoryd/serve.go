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

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/sage-x-project/memoryd/cache"
	"github.com/sage-x-project/memoryd/config"
	"github.com/sage-x-project/memoryd/core/access"
	"github.com/sage-x-project/memoryd/core/lifecycle"
	"github.com/sage-x-project/memoryd/core/memory"
	"github.com/sage-x-project/memoryd/core/persona"
	"github.com/sage-x-project/memoryd/core/router"
	"github.com/sage-x-project/memoryd/observability/health"
	"github.com/sage-x-project/memoryd/observability/logging"
	"github.com/sage-x-project/memoryd/observability/metrics"
	"github.com/sage-x-project/memoryd/ratelimit"
	httpapi "github.com/sage-x-project/memoryd/server/http"
	"github.com/sage-x-project/memoryd/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the memory service",
	Long: `Start the HTTP server that exposes the persona-scoped memory store.

Configuration can be provided via:
  - config.yaml file (default: ./config.yaml)
  - Environment variables (MEMORYD_*)
  - Command-line flags (highest priority for host/port)

Example:
  memoryd serve
  memoryd serve --config my-config.yaml
  memoryd serve --port 9000 --host 0.0.0.0`,
	RunE: runServe,
}

var (
	serveConfig string
	servePort   int
	serveHost   string
)

func init() {
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "config.yaml", "Path to configuration file")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Server port (overrides config when set)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Server host (overrides config when set)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Printf("starting memoryd...")
	log.Printf("config: %s", serveConfig)

	cfg, err := loadConfig(serveConfig)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if serveHost != "" {
		cfg.Server.Host = serveHost
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}

	logger := newLogger(cfg.Logging)
	collector := metrics.NewPrometheusCollector()
	svcMetrics := metrics.NewServiceMetrics(collector)

	svc, am, err := buildService(cfg, logger, svcMetrics)
	if err != nil {
		return fmt.Errorf("failed to build memory service: %w", err)
	}

	svc.StartBackgroundTasks(30 * time.Second)
	defer svc.StopBackgroundTasks()

	srv := buildHTTPServer(cfg, svc, am, logger, svcMetrics)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("listening on http://%s", addr)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-sigChan:
		log.Println("shutdown signal received, stopping memoryd...")
	case err := <-errChan:
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to stop server gracefully: %w", err)
	}

	log.Println("memoryd stopped")
	return nil
}

// loadConfig loads configuration from path, falling back to defaults plus
// MEMORYD_* environment variables when the file doesn't exist so a bare
// `memoryd serve` still runs against localhost backends.
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		log.Printf("config file not found: %s, using defaults and environment", path)
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("failed to load config from environment: %w", err)
		}
		return cfg, nil
	}

	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	log.Printf("configuration loaded from %s", path)
	return cfg, nil
}

func newLogger(cfg config.LoggingConfig) logging.Logger {
	level := logging.LevelInfo
	switch cfg.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.NewStructuredLogger(level)
}

// buildService wires the persona drivers, access manager, router, and
// lifecycle engine into a core/memory.Service.
func buildService(cfg *config.Config, logger logging.Logger, svcMetrics *metrics.ServiceMetrics) (*memory.Service, *access.Manager, error) {
	durable, err := storage.NewDurable(&storage.DurableConfig{
		Host:            cfg.Postgres.Host,
		Port:            cfg.Postgres.Port,
		User:            cfg.Postgres.User,
		Password:        cfg.Postgres.Password,
		Database:        cfg.Postgres.Database,
		SSLMode:         cfg.Postgres.SSLMode,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
		AutoMigrate:     true,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create durable driver: %w", err)
	}

	fast := storage.NewFastKV(&storage.FastKVConfig{
		Address:      fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     10,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		TTLWorking:   cfg.Redis.TTLWorking,
		TTLEpisodic:  cfg.Redis.TTLEpisodic,
		TTLCache:     cfg.Redis.TTLCache,
	})

	vector := storage.NewVector(&storage.VectorConfig{
		MinSimilarity: cfg.Vector.DefaultMinSimilarity,
	}, durable)

	pm := persona.NewManager(persona.DriverSet{
		Fast:    fast,
		Vector:  vector,
		Durable: durable,
	}, logger)

	itemCache := cache.NewItemCache(cache.NewMemoryCache(cache.DefaultCacheConfig()), cfg.Redis.TTLCache)
	r := router.New(pm, itemCache)

	am := access.NewManager()

	lifecycleCfg := lifecycle.Config{
		ConsolidationInterval: cfg.Lifecycle.ConsolidationInterval,
		PruningInterval:       cfg.Lifecycle.PruningInterval,
	}
	engine := lifecycle.New(pm, r, persona.KnownNames(), logger, svcMetrics, lifecycleCfg)

	svc := memory.New(memory.Config{
		Personas:      pm,
		Router:        r,
		AccessManager: am,
		Lifecycle:     engine,
		Metrics:       svcMetrics,
		Log:           logger,
	})

	return svc, am, nil
}

// newLimiter builds a Redis-backed limiter when configured for distributed
// mode, falling back to the in-process sliding window otherwise. The
// distributed limiter degrades to its own in-process fallback automatically
// if Redis becomes unreachable after startup.
func newLimiter(cfg *config.Config, logger logging.Logger) ratelimit.Limiter {
	if !cfg.RateLimit.Distributed {
		return ratelimit.NewSlidingWindow(ratelimit.SlidingWindowConfig{
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
		})
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	limiter, err := ratelimit.NewDistributed(ratelimit.DistributedConfig{
		RedisClient: client,
		Limit:       cfg.RateLimit.Limit,
		Window:      cfg.RateLimit.Window,
		Logger:      logger,
	})
	if err != nil {
		log.Printf("failed to create distributed rate limiter, falling back to in-process: %v", err)
		return ratelimit.NewSlidingWindow(ratelimit.SlidingWindowConfig{
			Limit:  cfg.RateLimit.Limit,
			Window: cfg.RateLimit.Window,
		})
	}
	return limiter
}

// buildHTTPServer wires the HTTP adapter with rate limiting, CORS, and a
// liveness checker, then returns a configured *http.Server.
func buildHTTPServer(cfg *config.Config, svc *memory.Service, am *access.Manager, logger logging.Logger, svcMetrics *metrics.ServiceMetrics) *http.Server {
	limiter := newLimiter(cfg, logger)

	httpServer := httpapi.NewServer(httpapi.Config{
		Service:       svc,
		AccessManager: am,
		Limiter:       limiter,
		RateLimit:     cfg.RateLimit.Limit,
		RateWindow:    cfg.RateLimit.Window,
		CORSOrigins:   cfg.Server.CORSOrigins,
		Log:           logger,
		Metrics:       svcMetrics,
		HealthChecker: health.NewLivenessChecker(),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return httpapi.NewHTTPServer(addr, httpServer, cfg.Server.ReadTimeout, cfg.Server.WriteTimeout)
}
