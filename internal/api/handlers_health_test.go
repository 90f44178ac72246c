// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package api

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/eventbus"
)

func TestHealthLive(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.processor.readyErr = errors.New("breaker open")
	w := doRequest(t, env.router(), http.MethodGet, "/api/v1/health/live", "")
	if w.Code != http.StatusOK {
		t.Errorf("liveness must not depend on the processor, got %d", w.Code)
	}
}

func TestHealthReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		readyErr  error
		pingErr   error
		wantCode  int
		wantState string
	}{
		{"ready", nil, nil, http.StatusOK, "success"},
		{"processor not ready", errors.New("circuit breaker open"), nil, http.StatusServiceUnavailable, "not_ready"},
		{"store down", nil, errPingFailed, http.StatusServiceUnavailable, "not_ready"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			env := newTestEnv(t)
			env.processor.readyErr = tt.readyErr
			env.deps.Store = fakePinger{err: tt.pingErr}

			w := doRequest(t, env.router(), http.MethodGet, "/api/v1/health/ready", "")
			if w.Code != tt.wantCode {
				t.Fatalf("expected %d, got %d", tt.wantCode, w.Code)
			}
			var data struct {
				Ready          bool `json:"ready"`
				StoreConnected bool `json:"store_connected"`
			}
			resp := decodeResponse(t, w)
			if resp.Status != tt.wantState {
				t.Errorf("expected status %q, got %q", tt.wantState, resp.Status)
			}
			decodeData(t, w, &data)
			if data.Ready != (tt.wantCode == http.StatusOK) || data.StoreConnected != (tt.pingErr == nil) {
				t.Errorf("unexpected readiness %+v", data)
			}
		})
	}
}

func TestHealthReady_IntegrityAlertIsReportedOnly(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	monitor := eventbus.NewAlertMonitor(time.Minute)
	monitor.Record(audit.Alert{Kind: audit.AlertIntegrityBroken, Sequence: 4})
	env.deps.Alerts = monitor

	w := doRequest(t, env.router(), http.MethodGet, "/api/v1/health/ready", "")
	if w.Code != http.StatusOK {
		t.Fatalf("a broken chain must not fail readiness, got %d", w.Code)
	}
	var data struct {
		IntegrityBroken bool `json:"integrity_broken"`
	}
	decodeData(t, w, &data)
	if !data.IntegrityBroken {
		t.Error("expected the integrity alert to be reported")
	}
}
