// Copyright (C) 2025 sage-x-project
// SPDX-License-Identifier: LGPL-3.0-or-later

package ratelimit

import (
	"fmt"
	"net/http"
)

// RequestKeyFunc derives a rate limit key from an inbound request. Returning
// an empty string marks the request exempt (health checks, metrics scrape).
type RequestKeyFunc func(r *http.Request) string

// IPPersonaKeyFunc keys on (remote IP, X-Memory-Persona header).
func IPPersonaKeyFunc(r *http.Request) string {
	persona := r.Header.Get("X-Memory-Persona")
	if persona == "" {
		persona = "unknown"
	}
	return fmt.Sprintf("%s|%s", clientIP(r), persona)
}

// IPUserAgentKeyFunc keys on (remote IP, User-Agent), an alternative
// derivation for requests with no persona header.
func IPUserAgentKeyFunc(r *http.Request) string {
	ua := r.Header.Get("User-Agent")
	if ua == "" {
		ua = "unknown"
	}
	return fmt.Sprintf("%s|%s", clientIP(r), ua)
}

// ExemptPathKeyFunc wraps next, returning "" (exempt) for any path in paths
// and delegating otherwise. Used to exempt health/metrics endpoints.
func ExemptPathKeyFunc(next RequestKeyFunc, paths ...string) RequestKeyFunc {
	exempt := make(map[string]bool, len(paths))
	for _, p := range paths {
		exempt[p] = true
	}
	return func(r *http.Request) string {
		if exempt[r.URL.Path] {
			return ""
		}
		return next(r)
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}

// HTTPMiddlewareConfig configures the HTTP rate-limiting middleware.
type HTTPMiddlewareConfig struct {
	// Limiter is the rate limiter backing the middleware.
	Limiter Limiter

	// KeyFunc derives the limiter key from the request; an empty key
	// exempts the request from limiting.
	KeyFunc RequestKeyFunc

	// OnLimitExceeded customizes the rejection response. Defaults to a
	// 429 with a plain-text body naming the key.
	OnLimitExceeded func(w http.ResponseWriter, r *http.Request, key string)
}

// NewHTTPMiddleware wraps an http.Handler with rate limiting derived from
// cfg.KeyFunc, rejecting with 429 Too Many Requests when the limiter denies
// the key.
func NewHTTPMiddleware(cfg HTTPMiddlewareConfig) func(http.Handler) http.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = IPPersonaKeyFunc
	}
	if cfg.OnLimitExceeded == nil {
		cfg.OnLimitExceeded = defaultOnLimitExceeded
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := cfg.KeyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !cfg.Limiter.Allow(key) {
				cfg.OnLimitExceeded(w, r, key)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func defaultOnLimitExceeded(w http.ResponseWriter, r *http.Request, key string) {
	w.Header().Set("Retry-After", "60")
	w.WriteHeader(http.StatusTooManyRequests)
	fmt.Fprintf(w, "rate limit exceeded for %s\n", key)
}
