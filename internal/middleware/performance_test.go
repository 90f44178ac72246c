// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func TestPerformanceMonitor_GetStats(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(100, 0)
	for i := int64(1); i <= 10; i++ {
		pm.RecordRequest(&RequestMetrics{Path: "/api/v1/audit/events", Method: "GET", DurationMS: i * 10, StatusCode: 200})
	}
	pm.RecordRequest(&RequestMetrics{Path: "/api/v1/audit/verify", Method: "POST", DurationMS: 500, StatusCode: 503})

	stats := pm.GetStats()
	if len(stats) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(stats))
	}

	events := stats[0]
	if events.Endpoint != "GET /api/v1/audit/events" || events.WindowCount != 10 {
		t.Errorf("busiest endpoint should come first, got %+v", events)
	}
	if events.P50Duration != 50 || events.P95Duration != 90 || events.MaxDuration != 100 {
		t.Errorf("unexpected percentiles %+v", events)
	}
	if events.AvgDuration != 55 {
		t.Errorf("expected avg 55, got %v", events.AvgDuration)
	}
	if stats[1].ErrorCount != 1 {
		t.Errorf("expected 1 server error, got %d", stats[1].ErrorCount)
	}
}

func TestPerformanceMonitor_WindowWraps(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(3, 0)
	for i := int64(1); i <= 5; i++ {
		pm.RecordRequest(&RequestMetrics{Path: "/p", Method: "GET", DurationMS: i})
	}

	stats := pm.GetStats()
	if len(stats) != 1 {
		t.Fatalf("expected 1 endpoint, got %d", len(stats))
	}
	if stats[0].WindowCount != 3 || stats[0].TotalRequests != 5 {
		t.Errorf("expected 3 in window and 5 total, got %+v", stats[0])
	}
	if stats[0].MaxDuration != 5 || stats[0].P50Duration != 4 {
		t.Errorf("window should hold the newest requests, got %+v", stats[0])
	}
}

func TestPerformanceMonitor_MiddlewareUsesRoutePattern(t *testing.T) {
	t.Parallel()

	pm := NewPerformanceMonitor(10, time.Hour)
	r := chi.NewRouter()
	r.Use(pm.Middleware)
	r.Get("/api/v1/audit/events/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/audit/events/"+id, nil))
	}

	stats := pm.GetStats()
	if len(stats) != 1 || stats[0].Endpoint != "GET /api/v1/audit/events/{id}" || stats[0].WindowCount != 2 {
		t.Errorf("expected requests grouped by route, got %+v", stats)
	}
}

func TestPercentile_Empty(t *testing.T) {
	t.Parallel()

	if got := percentile(nil, 0.5); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}
