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

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/sage-x-project/memoryd/ratelimit"
)

// remainingReporter is implemented by ratelimit.SlidingWindow and
// ratelimit.Distributed; kept separate from ratelimit.Limiter so fakes used
// in tests elsewhere don't need to grow a method just to satisfy the
// interface.
type remainingReporter interface {
	Remaining(key string) int
}

// backendReporter is implemented by ratelimit.Distributed to expose whether
// it is currently serving off Redis or its in-process fallback.
type backendReporter interface {
	Backend() string
}

// rateLimitHeaders gates every request through s.limiter (when configured)
// and reports X-RateLimit-Limit/Remaining/Reset, rejecting with 429 plus
// Retry-After on denial.
func (s *Server) rateLimitHeaders(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ratelimit.ExemptPathKeyFunc(ratelimit.IPPersonaKeyFunc, "/healthz", "/v1/health")(r)
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}

		resetAt := time.Now().Add(s.window).Unix()
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limit))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt, 10))
		if reporter, ok := s.limiter.(backendReporter); ok {
			w.Header().Set("X-RateLimit-Backend", reporter.Backend())
		}

		if !s.limiter.Allow(key) {
			if s.metrics != nil {
				s.metrics.RecordRateLimitDenied(key)
			}
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("Retry-After", strconv.Itoa(int(s.window.Seconds())))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		if reporter, ok := s.limiter.(remainingReporter); ok {
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(reporter.Remaining(key)))
		}

		next.ServeHTTP(w, r)
	})
}
