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

package logging

import (
	"context"
	"testing"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()

	if id := GetRequestID(ctx); id != "" {
		t.Errorf("expected empty request ID, got %s", id)
	}

	ctx = WithRequestID(ctx, "req-123")
	if id := GetRequestID(ctx); id != "req-123" {
		t.Errorf("expected request ID 'req-123', got %s", id)
	}
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	if id := GetTraceID(ctx); id != "" {
		t.Errorf("expected empty trace ID, got %s", id)
	}

	ctx = WithTraceID(ctx, "trace-456")
	if id := GetTraceID(ctx); id != "trace-456" {
		t.Errorf("expected trace ID 'trace-456', got %s", id)
	}
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	if id := GetSpanID(ctx); id != "" {
		t.Errorf("expected empty span ID, got %s", id)
	}

	ctx = WithSpanID(ctx, "span-789")
	if id := GetSpanID(ctx); id != "span-789" {
		t.Errorf("expected span ID 'span-789', got %s", id)
	}
}

func TestPersona(t *testing.T) {
	ctx := context.Background()

	if p := GetPersona(ctx); p != "" {
		t.Errorf("expected empty persona, got %s", p)
	}

	ctx = WithPersona(ctx, "athena")
	if p := GetPersona(ctx); p != "athena" {
		t.Errorf("expected persona 'athena', got %s", p)
	}
}

func TestExtractContextFields(t *testing.T) {
	ctx := context.Background()

	fields := extractContextFields(ctx)
	if len(fields) != 0 {
		t.Errorf("expected 0 fields, got %d", len(fields))
	}

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithTraceID(ctx, "trace-456")
	ctx = WithSpanID(ctx, "span-789")
	ctx = WithPersona(ctx, "athena")

	fields = extractContextFields(ctx)

	if len(fields) != 4 {
		t.Errorf("expected 4 fields, got %d", len(fields))
	}

	fieldMap := make(map[string]interface{})
	for _, f := range fields {
		fieldMap[f.Key] = f.Value
	}

	if fieldMap["request_id"] != "req-123" {
		t.Error("request_id field incorrect")
	}

	if fieldMap["trace_id"] != "trace-456" {
		t.Error("trace_id field incorrect")
	}

	if fieldMap["span_id"] != "span-789" {
		t.Error("span_id field incorrect")
	}

	if fieldMap["persona"] != "athena" {
		t.Error("persona field incorrect")
	}
}

func TestPartialContextFields(t *testing.T) {
	ctx := context.Background()

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithPersona(ctx, "athena")

	fields := extractContextFields(ctx)

	if len(fields) != 2 {
		t.Errorf("expected 2 fields, got %d", len(fields))
	}

	fieldMap := make(map[string]interface{})
	for _, f := range fields {
		fieldMap[f.Key] = f.Value
	}

	if fieldMap["request_id"] != "req-123" {
		t.Error("request_id field incorrect")
	}

	if fieldMap["persona"] != "athena" {
		t.Error("persona field incorrect")
	}
}

func TestContextChaining(t *testing.T) {
	ctx := context.Background()

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithTraceID(ctx, "trace-1")
	ctx = WithPersona(ctx, "athena")

	if GetRequestID(ctx) != "req-1" {
		t.Error("request ID not preserved in chaining")
	}

	if GetTraceID(ctx) != "trace-1" {
		t.Error("trace ID not preserved in chaining")
	}

	if GetPersona(ctx) != "athena" {
		t.Error("persona not preserved in chaining")
	}
}
