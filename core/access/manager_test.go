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
	"testing"
	"time"

	adkerrors "github.com/sage-x-project/memoryd/pkg/errors"
)

func TestManager_Authenticate_Unknown(t *testing.T) {
	m := NewManager()
	if _, err := m.Authenticate(context.Background(), "nobody"); err == nil {
		t.Fatal("Authenticate() expected error for unknown persona")
	}
}

func TestManager_Authenticate_Known(t *testing.T) {
	m := NewManager()
	raw, err := m.Authenticate(context.Background(), "athena")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if raw == "" {
		t.Fatal("Authenticate() returned empty token")
	}
}

func TestManager_Authorize_ValidToken(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	raw, _ := m.Authenticate(ctx, "artemis")

	if err := m.Authorize(ctx, raw, OpStore, "", "working"); err != nil {
		t.Errorf("Authorize() error = %v, want nil", err)
	}
}

func TestManager_Authorize_InvalidToken(t *testing.T) {
	m := NewManager()
	err := m.Authorize(context.Background(), "bogus-token", OpRetrieve, "", "")
	if !adkerrors.IsUnauthorized(err) {
		t.Errorf("Authorize() error = %v, want unauthorized", err)
	}
}

func TestManager_Authorize_OperationNotAllowed(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	// artemis has WRITE level; DELETE should be denied.
	raw, _ := m.Authenticate(ctx, "artemis")

	err := m.Authorize(ctx, raw, OpDelete, "", "")
	if err == nil {
		t.Fatal("Authorize() expected error for disallowed operation")
	}
}

func TestManager_Authorize_AdminHasDelete(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	raw, _ := m.Authenticate(ctx, "athena")

	if err := m.Authorize(ctx, raw, OpDelete, "", ""); err != nil {
		t.Errorf("Authorize() for admin delete error = %v, want nil", err)
	}
}

func TestManager_Authorize_CrossPersonaAllowed(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	// artemis can_read_from includes hestia.
	raw, _ := m.Authenticate(ctx, "artemis")

	if err := m.Authorize(ctx, raw, OpRetrieve, "hestia", ""); err != nil {
		t.Errorf("Authorize() cross-persona read error = %v, want nil", err)
	}
}

func TestManager_Authorize_CrossPersonaDenied(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	// artemis can_read_from does not include bellona.
	raw, _ := m.Authenticate(ctx, "artemis")

	err := m.Authorize(ctx, raw, OpRetrieve, "bellona", "")
	if !adkerrors.Is(err, adkerrors.ErrCrossPersonaDenied) {
		t.Errorf("Authorize() error = %v, want ErrCrossPersonaDenied", err)
	}
}

func TestManager_RevokeToken(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	raw, _ := m.Authenticate(ctx, "hestia")

	if !m.RevokeToken(ctx, raw) {
		t.Fatal("RevokeToken() = false, want true")
	}
	if err := m.Authorize(ctx, raw, OpRetrieve, "", ""); err == nil {
		t.Error("Authorize() after revoke expected error")
	}
}

func TestManager_RevokeToken_Unknown(t *testing.T) {
	m := NewManager()
	if m.RevokeToken(context.Background(), "never-issued") {
		t.Error("RevokeToken() = true for unknown token, want false")
	}
}

func TestManager_QueryAudit_FiltersByPersona(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	m.Authenticate(ctx, "athena")
	m.Authenticate(ctx, "hestia")

	records := m.QueryAudit("athena", "", 0)
	for _, r := range records {
		if r.Persona != "athena" {
			t.Errorf("QueryAudit() leaked record for %v", r.Persona)
		}
	}
	if len(records) == 0 {
		t.Error("QueryAudit() returned no records for athena")
	}
}

func TestManager_CleanupExpiredTokens(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	raw, _ := m.Authenticate(ctx, "seshat")

	removed := m.CleanupExpiredTokens(time.Now().Add(48 * time.Hour))
	if removed != 1 {
		t.Errorf("CleanupExpiredTokens() = %v, want 1", removed)
	}
	if err := m.Authorize(ctx, raw, OpRetrieve, "", ""); err == nil {
		t.Error("Authorize() after cleanup expected error")
	}
}

func TestManager_AuditChecksum_Deterministic(t *testing.T) {
	m := NewManager()
	ctx := context.Background()
	m.Authenticate(ctx, "athena")

	c1 := m.AuditChecksum()
	c2 := m.AuditChecksum()
	if c1 != c2 {
		t.Error("AuditChecksum() not deterministic across calls with no new records")
	}
}

func TestAllowedOperations_ReadLevel(t *testing.T) {
	ops := allowedOperations(LevelRead)
	if !ops[OpRetrieve] || !ops[OpSearch] || !ops[OpList] {
		t.Error("READ level missing expected operations")
	}
	if ops[OpStore] || ops[OpDelete] {
		t.Error("READ level has operations it should not")
	}
}

func TestPolicy_RateLimitOrDefault(t *testing.T) {
	p := Policy{}
	if got := p.RateLimitOrDefault(); got != 1000 {
		t.Errorf("RateLimitOrDefault() = %v, want 1000", got)
	}
	p.RateLimit = 5
	if got := p.RateLimitOrDefault(); got != 5 {
		t.Errorf("RateLimitOrDefault() = %v, want 5", got)
	}
}
