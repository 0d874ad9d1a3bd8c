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

const (
	// MetricOpsTotal counts core operations by name and outcome.
	MetricOpsTotal = "memory_ops_total"
	// MetricOpDuration observes operation latency in seconds.
	MetricOpDuration = "memory_op_duration_seconds"

	// MetricBackendStatus reports per-backend health (1=healthy, 0=unhealthy, 0.5=degraded).
	MetricBackendStatus = "memory_backend_status"
	// MetricBackendErrors counts backend-level failures.
	MetricBackendErrors = "memory_backend_errors_total"

	// MetricCacheHits/Misses track the router's local LRU cache.
	MetricCacheHits   = "memory_cache_hits_total"
	MetricCacheMisses = "memory_cache_misses_total"

	// MetricItemsStored tracks live item counts per persona/kind.
	MetricItemsStored = "memory_items_stored"

	// MetricRateLimitDenied counts rejected requests by client key.
	MetricRateLimitDenied = "memory_rate_limit_denied_total"
	// MetricRateLimitMode reports 1 for distributed, 0 for local fallback.
	MetricRateLimitMode = "memory_rate_limit_mode"

	// MetricConsolidations/Prunes count lifecycle-engine actions.
	MetricConsolidations = "memory_consolidations_total"
	MetricPrunes         = "memory_prunes_total"
)

// ServiceMetrics provides memory-service-specific instrumentation built on
// top of a generic Collector.
type ServiceMetrics struct {
	collector Collector
}

// NewServiceMetrics creates a new memory-service metrics recorder.
func NewServiceMetrics(collector Collector) *ServiceMetrics {
	return &ServiceMetrics{collector: collector}
}

// RecordOp records a core-API operation and its outcome.
func (m *ServiceMetrics) RecordOp(op, persona, outcome string, durationSeconds float64) {
	labels := NewLabels("op", op, "persona", persona, "outcome", outcome)
	m.collector.IncrementCounter(MetricOpsTotal, labels)
	m.collector.ObserveHistogram(MetricOpDuration, durationSeconds, labels)
}

// SetBackendStatus records a backend's health as a gauge.
func (m *ServiceMetrics) SetBackendStatus(backend string, status float64) {
	m.collector.SetGauge(MetricBackendStatus, status, NewLabels("backend", backend))
}

// RecordBackendError records a backend failure.
func (m *ServiceMetrics) RecordBackendError(backend, kind string) {
	m.collector.IncrementCounter(MetricBackendErrors, NewLabels("backend", backend, "kind", kind))
}

// RecordCacheHit records a router LRU cache hit.
func (m *ServiceMetrics) RecordCacheHit() {
	m.collector.IncrementCounter(MetricCacheHits, NoLabels())
}

// RecordCacheMiss records a router LRU cache miss.
func (m *ServiceMetrics) RecordCacheMiss() {
	m.collector.IncrementCounter(MetricCacheMisses, NoLabels())
}

// SetItemsStored records the live item count for a persona/kind pair.
func (m *ServiceMetrics) SetItemsStored(persona, kind string, count float64) {
	m.collector.SetGauge(MetricItemsStored, count, NewLabels("persona", persona, "kind", kind))
}

// RecordRateLimitDenied records a rejected request.
func (m *ServiceMetrics) RecordRateLimitDenied(clientKey string) {
	m.collector.IncrementCounter(MetricRateLimitDenied, NewLabels("client", clientKey))
}

// SetRateLimitMode records whether the limiter is running distributed (1) or local-fallback (0).
func (m *ServiceMetrics) SetRateLimitMode(distributed bool) {
	value := 0.0
	if distributed {
		value = 1.0
	}
	m.collector.SetGauge(MetricRateLimitMode, value, NoLabels())
}

// RecordConsolidation records a lifecycle-engine consolidation of one item.
func (m *ServiceMetrics) RecordConsolidation(persona, toKind string) {
	m.collector.IncrementCounter(MetricConsolidations, NewLabels("persona", persona, "to_kind", toKind))
}

// RecordPrune records a lifecycle-engine prune of one item.
func (m *ServiceMetrics) RecordPrune(persona, kind string) {
	m.collector.IncrementCounter(MetricPrunes, NewLabels("persona", persona, "kind", kind))
}
