// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package api

import (
	"context"
	"net/http"
	"time"
)

// HealthLive handles liveness probe requests. It only reports that the
// process is serving HTTP.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"alive":  true,
		"uptime": h.uptime(),
	})
}

// HealthReady handles readiness probe requests. The service is ready while
// the processor runs with a closed breaker and the store answers a ping.
//
// Alert state is reported but does not affect readiness: a broken chain
// needs an operator, not a restart.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"uptime": h.uptime(),
	}
	ready := true

	if err := h.deps.Processor.Ready(); err != nil {
		ready = false
		data["processor_error"] = err.Error()
	}
	status := h.deps.Processor.Status()
	data["processor"] = map[string]interface{}{
		"running":       status.Running,
		"breaker_state": status.BreakerState,
		"queue_depth":   status.QueueDepth,
		"last_sequence": status.LastSequence,
	}

	if h.deps.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		err := h.deps.Store.Ping(ctx)
		cancel()
		data["store_connected"] = err == nil
		if err != nil {
			ready = false
		}
	}

	if h.deps.Alerts != nil {
		summary := h.deps.Alerts.Summary()
		data["degraded"] = summary.Degraded
		data["integrity_broken"] = summary.IntegrityBroken
	}

	data["ready"] = ready
	code := http.StatusOK
	envelope := "success"
	if !ready {
		code = http.StatusServiceUnavailable
		envelope = "not_ready"
	}
	respondJSON(w, code, &APIResponse{
		Status:   envelope,
		Data:     data,
		Metadata: newMetadata(r),
	})
}
