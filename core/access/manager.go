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

package access

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/sha3"

	adkerrors "github.com/sage-x-project/memoryd/pkg/errors"
)

const (
	tokenTTL        = 24 * time.Hour
	rateWindow      = time.Minute
	auditCapacity   = 10000
	tokenByteLength = 32
)

// Manager authenticates personas and authorizes operations against the
// cross-persona access matrix.
type Manager struct {
	mu       sync.Mutex
	policies map[string]Policy
	tokens   map[string]*Token // keyed by sha256(rawToken) hex
	rates    map[string][]time.Time
	audit    []AuditRecord
	auditPos int
}

// NewManager builds a Manager with the default access matrix.
func NewManager() *Manager {
	policies := make(map[string]Policy, len(defaultMatrix))
	for k, v := range defaultMatrix {
		policies[k] = v
	}
	return &Manager{
		policies: policies,
		tokens:   make(map[string]*Token),
		rates:    make(map[string][]time.Time),
	}
}

// Authenticate issues a token for persona. The raw token is returned once;
// only its SHA-256 hash is retained. Unknown personas are rejected.
func (m *Manager) Authenticate(ctx context.Context, persona string) (rawToken string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	policy, ok := m.policies[persona]
	if !ok {
		return "", adkerrors.ErrUnknownPersona.WithDetail("persona", persona)
	}

	raw, err := randomToken()
	if err != nil {
		return "", adkerrors.ErrInternal.Wrap(err)
	}
	hash := hashToken(raw)

	now := time.Now()
	token := &Token{
		Persona:            persona,
		CreatedAt:          now,
		ExpiresAt:          now.Add(tokenTTL),
		AccessLevel:        policy.AccessLevel,
		AllowedOperations:  allowedOperations(policy.AccessLevel),
		AllowedMemoryTypes: allMemoryTypes,
	}
	m.tokens[hash] = token
	m.logOperation(persona, "authenticate", map[string]interface{}{"status": "success"})

	return raw, nil
}

func randomToken() (string, error) {
	b := make([]byte, tokenByteLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func hashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Authorize checks a raw token against an operation, optional target
// persona (for cross-persona access), and optional memory kind.
func (m *Manager) Authorize(ctx context.Context, rawToken string, op Operation, targetPersona, kind string) error {
	hash := hashToken(rawToken)

	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[hash]
	if !ok {
		m.logOperation("", "authorize_"+string(op), map[string]interface{}{
			"status": "denied", "reason": "invalid token",
		})
		return adkerrors.ErrUnauthorized.WithDetail("reason", "invalid token")
	}

	now := time.Now()
	if !token.IsValid(now) {
		delete(m.tokens, hash)
		m.logOperation(token.Persona, "authorize_"+string(op), map[string]interface{}{
			"status": "denied", "reason": "token expired",
		})
		return adkerrors.ErrTokenExpired
	}

	if !m.checkRateLimit(token.Persona, now) {
		m.logOperation(token.Persona, "rate_limit_exceeded", map[string]interface{}{
			"status": "denied", "operation": string(op),
		})
		return adkerrors.ErrMemoryRateLimited.WithDetail("persona", token.Persona)
	}

	if !token.CanPerform(op) {
		m.logOperation(token.Persona, "authorize_"+string(op), map[string]interface{}{
			"status": "denied", "reason": "operation not allowed",
		})
		return adkerrors.ErrOperationNotAllowed.WithDetail("operation", string(op))
	}

	if kind != "" && !token.AllowedMemoryTypes[kind] {
		m.logOperation(token.Persona, "authorize_"+string(op), map[string]interface{}{
			"status": "denied", "reason": "kind not allowed", "kind": kind,
		})
		return adkerrors.ErrKindNotAllowed.WithDetail("kind", kind)
	}

	if targetPersona != "" && targetPersona != token.Persona {
		if !m.authorizeCrossPersona(token.Persona, targetPersona, op) {
			m.logOperation(token.Persona, "authorize_"+string(op), map[string]interface{}{
				"status": "denied", "reason": "cross-persona denied",
				"target": targetPersona,
			})
			return adkerrors.ErrCrossPersonaDenied.
				WithDetail("source", token.Persona).
				WithDetail("target", targetPersona)
		}
	}

	m.logOperation(token.Persona, "authorize_"+string(op), map[string]interface{}{
		"status": "success", "target": targetPersona, "kind": kind,
	})
	return nil
}

// authorizeCrossPersona implements _authorize_cross_persona_access: read ops
// check CanReadFrom, write ops check CanWriteTo, delete requires same
// persona or ADMIN level on the source.
func (m *Manager) authorizeCrossPersona(source, target string, op Operation) bool {
	policy, ok := m.policies[source]
	if !ok {
		return false
	}
	switch {
	case readOps[op]:
		return policy.CanReadFrom[target]
	case writeOps[op]:
		return policy.CanWriteTo[target]
	case op == OpDelete:
		if source == target {
			return true
		}
		return policy.AccessLevel >= LevelAdmin
	default:
		return false
	}
}

// checkRateLimit enforces the per-persona operations-per-minute policy,
// pruning timestamps older than rateWindow (caller holds m.mu).
func (m *Manager) checkRateLimit(persona string, now time.Time) bool {
	policy, ok := m.policies[persona]
	if !ok {
		return true
	}

	history := m.rates[persona]
	kept := history[:0]
	for _, ts := range history {
		if now.Sub(ts) < rateWindow {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= policy.RateLimitOrDefault() {
		m.rates[persona] = kept
		return false
	}

	m.rates[persona] = append(kept, now)
	return true
}

// RateLimitOrDefault returns p.RateLimit, defaulting to 1000 ops/min when
// unset (matches the Python source's AccessPolicy default).
func (p Policy) RateLimitOrDefault() int {
	if p.RateLimit <= 0 {
		return 1000
	}
	return p.RateLimit
}

// RevokeToken invalidates a raw token immediately.
func (m *Manager) RevokeToken(ctx context.Context, rawToken string) bool {
	hash := hashToken(rawToken)
	m.mu.Lock()
	defer m.mu.Unlock()

	token, ok := m.tokens[hash]
	if !ok {
		return false
	}
	delete(m.tokens, hash)
	m.logOperation(token.Persona, "revoke_token", map[string]interface{}{"status": "success"})
	return true
}

// logOperation appends an audit record into the fixed-size ring (bounded at
// auditCapacity entries). Caller holds m.mu.
func (m *Manager) logOperation(persona, operation string, details map[string]interface{}) {
	record := AuditRecord{
		Timestamp: time.Now(),
		Persona:   persona,
		Operation: operation,
		Details:   details,
	}
	if len(m.audit) < auditCapacity {
		m.audit = append(m.audit, record)
		return
	}
	m.audit[m.auditPos] = record
	m.auditPos = (m.auditPos + 1) % auditCapacity
}

// QueryAudit returns audit records filtered by persona and/or operation
// (both optional), oldest first, truncated to limit entries from the tail.
func (m *Manager) QueryAudit(persona, operation string, limit int) []AuditRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Once the ring is full, auditPos is the slot of the oldest record.
	var matched []AuditRecord
	n := len(m.audit)
	for i := 0; i < n; i++ {
		r := m.audit[(m.auditPos+i)%n]
		if persona != "" && r.Persona != persona {
			continue
		}
		if operation != "" && r.Operation != operation {
			continue
		}
		matched = append(matched, r)
	}

	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched
}

// AuditChecksum returns a SHA3-256 checksum over the audit ring's current
// contents, exposed so operators can detect tampering with an exported
// audit snapshot.
func (m *Manager) AuditChecksum() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := sha3.New256()
	for _, r := range m.audit {
		fmt.Fprintf(h, "%d|%s|%s\n", r.Timestamp.UnixNano(), r.Persona, r.Operation)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// AccessMatrix returns the cross-persona policy for persona, or false if
// persona has no policy.
func (m *Manager) AccessMatrix(persona string) (Policy, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[persona]
	return p, ok
}

// CleanupExpiredTokens removes every token past its expiry and returns the
// count removed.
func (m *Manager) CleanupExpiredTokens(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for hash, token := range m.tokens {
		if !token.IsValid(now) {
			delete(m.tokens, hash)
			removed++
		}
	}
	return removed
}
