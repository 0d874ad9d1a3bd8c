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
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	adkerrors "github.com/sage-x-project/memoryd/pkg/errors"
	"github.com/sage-x-project/memoryd/storage"
)

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeServiceError maps a core/memory error to an HTTP status using its
// pkg/errors category.
func writeServiceError(w http.ResponseWriter, err error) {
	adkErr, ok := err.(*adkerrors.Error)
	if !ok {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusInternalServerError
	switch adkErr.Category {
	case adkerrors.CategoryValidation:
		status = http.StatusBadRequest
	case adkerrors.CategoryUnauthorized, adkerrors.CategorySecurity:
		status = http.StatusUnauthorized
	case adkerrors.CategoryRateLimited:
		status = http.StatusTooManyRequests
	case adkerrors.CategoryNotFound:
		status = http.StatusNotFound
	case adkerrors.CategoryConflict:
		status = http.StatusConflict
	case adkerrors.CategoryStorage, adkerrors.CategoryNetwork:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{"error": adkErr.Message, "code": adkErr.Code, "details": adkErr.Details})
}

func queryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

// handleAuthenticate issues an access token for a persona.
func (s *Server) handleAuthenticate(w http.ResponseWriter, r *http.Request) {
	if s.access == nil {
		writeError(w, http.StatusNotImplemented, "access control is not enabled")
		return
	}

	var req struct {
		Persona string `json:"persona"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.access.Authenticate(r.Context(), req.Persona)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// handleRemember stores a new memory item.
func (s *Server) handleRemember(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Persona    string                 `json:"persona"`
		Content    interface{}            `json:"content"`
		Kind       string                 `json:"kind"`
		Importance float64                `json:"importance"`
		Tags       []string               `json:"tags"`
		Metadata   map[string]interface{} `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	item, err := s.svc.Remember(r.Context(), bearerToken(r), req.Persona, req.Content, storage.Kind(req.Kind), req.Importance, req.Tags, req.Metadata)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleRecall searches a persona's memory.
func (s *Server) handleRecall(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	semantic := q.Get("semantic") == "true"

	items, err := s.svc.Recall(r.Context(), bearerToken(r), q.Get("persona"), q.Get("q"), queryLimit(r, 5), semantic)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleRetrieveByID fetches a single item by id.
func (s *Server) handleRetrieveByID(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	persona := r.URL.Query().Get("persona")

	item, err := s.svc.RetrieveByID(r.Context(), bearerToken(r), persona, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if item == nil {
		writeError(w, http.StatusNotFound, "memory item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDelete removes an item by id.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	persona := r.URL.Query().Get("persona")

	if err := s.svc.Delete(r.Context(), bearerToken(r), persona, id); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleShare copies memories from one persona to another.
func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FromPersona string `json:"from_persona"`
		ToPersona   string `json:"to_persona"`
		Query       string `json:"query"`
		Limit       int    `json:"limit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	count, err := s.svc.Share(r.Context(), bearerToken(r), req.FromPersona, req.ToPersona, req.Query, req.Limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": count})
}

// handleSemanticSearch fans a query out across personas.
func (s *Server) handleSemanticSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var personas []string
	if raw := q.Get("personas"); raw != "" {
		personas = strings.Split(raw, ",")
	}
	minSimilarity := 0.0
	if raw := q.Get("min_similarity"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			minSimilarity = v
		}
	}

	items, err := s.svc.SemanticSearch(r.Context(), bearerToken(r), q.Get("q"), personas, queryLimit(r, 10), minSimilarity)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleStats reports process-wide counters and per-persona backend stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	persona := r.URL.Query().Get("persona")

	counters, backendStats, err := s.svc.Stats(r.Context(), persona)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"counters": counters, "backends": backendStats})
}

// handleAudit exposes the bounded audit ring to admin callers.
func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.svc.QueryAudit(r.Context(), bearerToken(r), q.Get("persona"), q.Get("op"), queryLimit(r, 100))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// handleHealth runs an on-demand health snapshot.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.svc.Health(r.Context())

	status := http.StatusOK
	if report.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}
