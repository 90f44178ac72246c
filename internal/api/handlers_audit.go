// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/logging"
	"github.com/tomtom215/audittrail/internal/validation"
)

// IngestEvent handles POST /api/v1/audit/events. The event is queued, not
// persisted, when the handler returns.
func (h *Handler) IngestEvent(w http.ResponseWriter, r *http.Request) {
	var req IngestEventRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}

	if err := h.deps.Logger.Log(r.Context(), req.toEvent()); err != nil {
		respondServiceError(w, r, "queue audit event", err)
		return
	}
	respondSuccess(w, r, http.StatusAccepted, map[string]interface{}{"accepted": true})
}

// ListEvents handles GET /api/v1/audit/events.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseSearchFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	page, err := parsePagination(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	result, err := h.deps.Query.Search(r.Context(), filter, page)
	if err != nil {
		respondServiceError(w, r, "search audit events", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, result)
}

// GetEvent handles GET /api/v1/audit/events/{id}.
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, "Event ID must be a positive integer", nil)
		return
	}

	event, err := h.deps.Query.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, r, "get audit event", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, event)
}

// ExportEvents handles GET /api/v1/audit/export as a file download.
func (h *Handler) ExportEvents(w http.ResponseWriter, r *http.Request) {
	format, err := audit.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondServiceError(w, r, "export audit events", err)
		return
	}
	filter, err := parseSearchFilter(r)
	if err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}

	export, err := h.deps.Query.Export(r.Context(), filter, format)
	if err != nil {
		respondServiceError(w, r, "export audit events", err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.Filename+`"`)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Export-Count", strconv.Itoa(export.Count))
	w.Header().Set("X-Export-Truncated", strconv.FormatBool(export.Truncated))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(export.Data); err != nil {
		logging.Ctx(r.Context()).Debug().Err(err).Msg("export download interrupted")
	}
}

// VerifyChain handles POST /api/v1/audit/verify. A broken chain is a
// successful verification with valid=false.
func (h *Handler) VerifyChain(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}

	result, err := h.deps.Verifier.VerifyChain(r.Context(), req.From, req.To)
	if err != nil {
		respondServiceError(w, r, "verify audit chain", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, result)
}

// Cleanup handles POST /api/v1/audit/cleanup.
func (h *Handler) Cleanup(w http.ResponseWriter, r *http.Request) {
	var req CleanupRequest
	if err := decodeJSON(w, r, &req, true); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}

	days := req.RetentionDays
	if days == 0 && h.config != nil {
		days = h.config.Retention.Days
	}

	deleted, err := h.deps.Retention.Cleanup(r.Context(), days)
	if err != nil {
		respondServiceError(w, r, "clean up audit events", err)
		return
	}
	respondSuccess(w, r, http.StatusOK, map[string]interface{}{
		"deleted":        deleted,
		"retention_days": days,
	})
}

// ListPolicies handles GET /api/v1/audit/policies.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	rules, err := h.deps.Policy.Rules(r.Context())
	if err != nil {
		respondServiceError(w, r, "list audit policies", err)
		return
	}
	if rules == nil {
		rules = []audit.PolicyRule{}
	}
	respondSuccess(w, r, http.StatusOK, rules)
}

// SetPolicy handles PUT /api/v1/audit/policies. The change itself is
// recorded as a POLICY_CHANGE event under audit/policy, which cannot be
// disabled.
func (h *Handler) SetPolicy(w http.ResponseWriter, r *http.Request) {
	var req PolicyRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		respondError(w, r, http.StatusBadRequest, ErrCodeBadRequest, err.Error(), nil)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		respondValidationError(w, r, verr)
		return
	}

	ctx := r.Context()
	actor, _ := audit.ActorFromContext(ctx)
	updatedBy := actor.UserName
	if updatedBy == "" {
		updatedBy = actor.UserID
	}

	wasEnabled := h.deps.Policy.IsAuditEnabled(req.Module, req.Process)
	rule := audit.PolicyRule{
		Module:    req.Module,
		Process:   req.Process,
		Enabled:   *req.Enabled,
		UpdatedAt: time.Now().UTC(),
		UpdatedBy: updatedBy,
	}
	if err := h.deps.Policy.SetPolicy(ctx, rule); err != nil {
		respondServiceError(w, r, "update audit policy", err)
		return
	}

	change := &audit.Event{
		Action:       audit.ActionPolicyChange,
		EntityName:   "AuditPolicy",
		EntityID:     req.Module + "/" + req.Process,
		PropertyName: "enabled",
		OldValue:     strconv.FormatBool(wasEnabled),
		NewValue:     strconv.FormatBool(*req.Enabled),
		Description:  "Audit policy changed for " + req.Module + "/" + req.Process,
		Severity:     audit.SeverityWarning,
		Category:     audit.CategoryConfiguration,
		Success:      true,
		Module:       audit.ModuleAudit,
		Process:      audit.ProcessPolicy,
	}
	if err := h.deps.Logger.Log(ctx, change); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("module", req.Module).Str("process", req.Process).
			Msg("policy change applied but its audit event was not queued")
	}

	rule.Module, rule.Process = audit.NormalizePolicyKey(req.Module, req.Process)
	respondSuccess(w, r, http.StatusOK, rule)
}

// Status handles GET /api/v1/audit/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"processor": h.deps.Processor.Status(),
		"uptime":    h.uptime(),
	}
	if h.deps.Alerts != nil {
		data["alerts"] = h.deps.Alerts.Summary()
	}
	if h.deps.Tail != nil {
		data["tail_clients"] = h.deps.Tail.GetClientCount()
	}
	if h.deps.Performance != nil {
		data["endpoints"] = h.deps.Performance.GetStats()
	}
	if stats, err := h.deps.Query.Stats(r.Context()); err == nil {
		data["store"] = stats
	} else {
		logging.Ctx(r.Context()).Warn().Err(err).Msg("Failed to read audit store statistics")
		data["store_error"] = "unavailable"
	}
	respondSuccess(w, r, http.StatusOK, data)
}
