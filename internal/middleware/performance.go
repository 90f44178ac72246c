// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package middleware

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/tomtom215/audittrail/internal/logging"
)

// RequestMetrics is one observed request.
type RequestMetrics struct {
	Path       string
	Method     string
	DurationMS int64
	StatusCode int
	Timestamp  time.Time
}

// PerformanceMonitor keeps a sliding window of recent requests and derives
// per-route latency percentiles for the status endpoint.
type PerformanceMonitor struct {
	mu          sync.RWMutex
	window      []RequestMetrics
	next        int
	full        bool
	totals      map[string]int64
	slowAfterMS int64
	now         func() time.Time
}

// EndpointStats contains aggregated statistics for an endpoint
type EndpointStats struct {
	Endpoint      string  `json:"endpoint"`
	WindowCount   int64   `json:"window_count"`
	TotalRequests int64   `json:"total_requests"`
	ErrorCount    int64   `json:"error_count"`
	AvgDuration   float64 `json:"avg_ms"`
	P50Duration   int64   `json:"p50_ms"`
	P95Duration   int64   `json:"p95_ms"`
	P99Duration   int64   `json:"p99_ms"`
	MaxDuration   int64   `json:"max_ms"`
}

// NewPerformanceMonitor creates a monitor remembering the last windowSize
// requests. Requests slower than slowThreshold are logged; zero disables it.
func NewPerformanceMonitor(windowSize int, slowThreshold time.Duration) *PerformanceMonitor {
	if windowSize <= 0 {
		windowSize = 1000
	}
	return &PerformanceMonitor{
		window:      make([]RequestMetrics, windowSize),
		totals:      make(map[string]int64),
		slowAfterMS: slowThreshold.Milliseconds(),
		now:         time.Now,
	}
}

// RecordRequest adds a request metric
func (pm *PerformanceMonitor) RecordRequest(m *RequestMetrics) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.window[pm.next] = *m
	pm.next = (pm.next + 1) % len(pm.window)
	if pm.next == 0 {
		pm.full = true
	}
	pm.totals[m.Method+" "+m.Path]++
}

func (pm *PerformanceMonitor) recorded() []RequestMetrics {
	if pm.full {
		return pm.window
	}
	return pm.window[:pm.next]
}

// GetStats returns per-endpoint statistics over the window, busiest first.
func (pm *PerformanceMonitor) GetStats() []EndpointStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	durations := make(map[string][]int64)
	errorCounts := make(map[string]int64)
	for _, m := range pm.recorded() {
		key := m.Method + " " + m.Path
		durations[key] = append(durations[key], m.DurationMS)
		if m.StatusCode >= 500 {
			errorCounts[key]++
		}
	}

	stats := make([]EndpointStats, 0, len(durations))
	for endpoint, ds := range durations {
		sort.Slice(ds, func(i, j int) bool { return ds[i] < ds[j] })

		var sum int64
		for _, d := range ds {
			sum += d
		}
		stats = append(stats, EndpointStats{
			Endpoint:      endpoint,
			WindowCount:   int64(len(ds)),
			TotalRequests: pm.totals[endpoint],
			ErrorCount:    errorCounts[endpoint],
			AvgDuration:   float64(sum) / float64(len(ds)),
			P50Duration:   percentile(ds, 0.50),
			P95Duration:   percentile(ds, 0.95),
			P99Duration:   percentile(ds, 0.99),
			MaxDuration:   ds[len(ds)-1],
		})
	}

	sort.Slice(stats, func(i, j int) bool {
		if stats[i].WindowCount != stats[j].WindowCount {
			return stats[i].WindowCount > stats[j].WindowCount
		}
		return stats[i].Endpoint < stats[j].Endpoint
	})
	return stats
}

// Middleware records every request passing through it.
func (pm *PerformanceMonitor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := pm.now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		duration := pm.now().Sub(start).Milliseconds()
		path := routePattern(r)
		pm.RecordRequest(&RequestMetrics{
			Path:       path,
			Method:     r.Method,
			DurationMS: duration,
			StatusCode: rec.statusCode,
			Timestamp:  start,
		})

		// Live tail connections stay open for their whole session.
		if pm.slowAfterMS > 0 && duration > pm.slowAfterMS && rec.statusCode != http.StatusSwitchingProtocols {
			logging.Ctx(r.Context()).Warn().
				Str("method", r.Method).
				Str("path", path).
				Int64("duration_ms", duration).
				Int64("threshold_ms", pm.slowAfterMS).
				Msg("Slow request detected")
		}
	})
}

// percentile calculates the percentile value from a sorted slice
func percentile(sorted []int64, p float64) int64 {
	if len(sorted) == 0 {
		return 0
	}
	index := int(float64(len(sorted)-1) * p)
	return sorted[index]
}
