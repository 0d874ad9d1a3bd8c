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

package metrics

import (
	"net/http"
	"testing"
)

type fakeCollector struct {
	counters   []string
	gauges     map[string]float64
	histograms []string
}

func newFakeCollector() *fakeCollector {
	return &fakeCollector{gauges: make(map[string]float64)}
}

func (f *fakeCollector) IncrementCounter(name string, labels map[string]string) {
	f.counters = append(f.counters, name)
}
func (f *fakeCollector) AddCounter(name string, value float64, labels map[string]string) {
	f.counters = append(f.counters, name)
}
func (f *fakeCollector) SetGauge(name string, value float64, labels map[string]string) {
	f.gauges[name] = value
}
func (f *fakeCollector) ObserveHistogram(name string, value float64, labels map[string]string) {
	f.histograms = append(f.histograms, name)
}
func (f *fakeCollector) ObserveSummary(name string, value float64, labels map[string]string) {}
func (f *fakeCollector) Handler() http.Handler                                               { return http.NotFoundHandler() }

func TestServiceMetrics_RecordOp(t *testing.T) {
	c := newFakeCollector()
	m := NewServiceMetrics(c)
	m.RecordOp("remember", "athena", "ok", 0.002)

	if len(c.counters) != 1 || c.counters[0] != MetricOpsTotal {
		t.Fatalf("expected one %s counter increment, got %v", MetricOpsTotal, c.counters)
	}
	if len(c.histograms) != 1 || c.histograms[0] != MetricOpDuration {
		t.Fatalf("expected one %s histogram observation, got %v", MetricOpDuration, c.histograms)
	}
}

func TestServiceMetrics_RateLimitMode(t *testing.T) {
	c := newFakeCollector()
	m := NewServiceMetrics(c)

	m.SetRateLimitMode(true)
	if c.gauges[MetricRateLimitMode] != 1.0 {
		t.Fatalf("expected distributed mode gauge 1.0, got %v", c.gauges[MetricRateLimitMode])
	}

	m.SetRateLimitMode(false)
	if c.gauges[MetricRateLimitMode] != 0.0 {
		t.Fatalf("expected fallback mode gauge 0.0, got %v", c.gauges[MetricRateLimitMode])
	}
}

func TestServiceMetrics_CacheCounters(t *testing.T) {
	c := newFakeCollector()
	m := NewServiceMetrics(c)

	m.RecordCacheHit()
	m.RecordCacheMiss()

	if len(c.counters) != 2 {
		t.Fatalf("expected 2 counter increments, got %d", len(c.counters))
	}
}
