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
	"time"

	"github.com/sage-x-project/memoryd/observability/logging"
)

// statusWriter wraps http.ResponseWriter to capture the status code written
// for request logging.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// requestLogger logs method/path/status/duration for every request. A nil
// Logger makes this a no-op passthrough.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	if s.log == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		fields := []logging.Field{
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", sw.status),
			logging.Float64("duration_ms", float64(duration.Microseconds())/1000),
		}
		if sw.status >= 500 {
			s.log.Error(r.Context(), "request failed", fields...)
		} else if sw.status >= 400 {
			s.log.Warn(r.Context(), "request rejected", fields...)
		} else {
			s.log.Info(r.Context(), "request completed", fields...)
		}
	})
}
