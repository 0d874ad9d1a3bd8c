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

// Package httpapi is the thin HTTP adapter over core/memory.Service: JSON
// bodies in, storage.Item/access.AuditRecord JSON out, CORS via rs/cors,
// routing via gorilla/mux.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"github.com/sage-x-project/memoryd/core/access"
	"github.com/sage-x-project/memoryd/core/memory"
	"github.com/sage-x-project/memoryd/observability/health"
	"github.com/sage-x-project/memoryd/observability/logging"
	"github.com/sage-x-project/memoryd/observability/metrics"
	"github.com/sage-x-project/memoryd/ratelimit"
)

// Config bundles a Server's collaborators. Limiter and AccessManager are
// optional: a nil Limiter skips rate-limit header reporting, a nil
// AccessManager leaves token issuance unavailable (the facade itself still
// enforces authorization if it was built with one).
type Config struct {
	Service       *memory.Service
	AccessManager *access.Manager
	Limiter       ratelimit.Limiter
	RateLimit     int
	RateWindow    time.Duration
	CORSOrigins   []string
	Log           logging.Logger
	Metrics       *metrics.ServiceMetrics
	HealthChecker health.Checker
}

// Server wires the memory service facade to net/http.
type Server struct {
	svc     *memory.Service
	access  *access.Manager
	limiter ratelimit.Limiter
	limit   int
	window  time.Duration
	log         logging.Logger
	metrics     *metrics.ServiceMetrics
	checker     health.Checker
	corsOrigins []string

	router *mux.Router
}

// NewServer builds a Server and registers its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		svc:     cfg.Service,
		access:  cfg.AccessManager,
		limiter: cfg.Limiter,
		limit:   cfg.RateLimit,
		window:  cfg.RateWindow,
		log:         cfg.Log,
		metrics:     cfg.Metrics,
		checker:     cfg.HealthChecker,
		corsOrigins: cfg.CORSOrigins,
		router:      mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/v1/auth/token", s.handleAuthenticate).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/memories", s.handleRemember).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/memories", s.handleRecall).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/memories/{id}", s.handleRetrieveByID).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/memories/{id}", s.handleDelete).Methods(http.MethodDelete)
	s.router.HandleFunc("/v1/share", s.handleShare).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/search", s.handleSemanticSearch).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/stats", s.handleStats).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/audit", s.handleAudit).Methods(http.MethodGet)
	s.router.HandleFunc("/v1/health", s.handleHealth).Methods(http.MethodGet)

	if s.checker != nil {
		s.router.Handle("/healthz", health.Handler(s.checker)).Methods(http.MethodGet)
	}
}

// Handler returns the fully wrapped http.Handler: CORS, rate-limit header
// reporting, and request logging, innermost the mux router.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.router
	h = s.requestLogger(h)
	h = s.rateLimitHeaders(h)

	c := cors.New(cors.Options{
		AllowedOrigins: corsOriginsOrWildcard(s.corsOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Memory-Persona"},
	})
	return c.Handler(h)
}

func corsOriginsOrWildcard(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

// NewHTTPServer wraps Handler in a configured *http.Server, matching the
// teacher's serve.go timeout conventions.
func NewHTTPServer(addr string, s *Server, readTimeout, writeTimeout time.Duration) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
}
