// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/audittrail/internal/audit"
)

// maxBodyBytes bounds request bodies. Ingested events carry JSON snapshots,
// everything else is a handful of fields.
const maxBodyBytes = 1 << 20

// IngestEventRequest is the body of POST /api/v1/audit/events. The actor is
// taken from the request, never from the body.
type IngestEventRequest struct {
	Action             string          `json:"action" validate:"required,max=64"`
	EntityName         string          `json:"entity_name,omitempty"`
	EntityID           string          `json:"entity_id,omitempty"`
	PropertyName       string          `json:"property_name,omitempty"`
	OldValue           string          `json:"old_value,omitempty"`
	NewValue           string          `json:"new_value,omitempty"`
	OldState           json.RawMessage `json:"old_state,omitempty"`
	NewState           json.RawMessage `json:"new_state,omitempty"`
	Description        string          `json:"description,omitempty"`
	Context            string          `json:"context,omitempty"`
	Severity           audit.Severity  `json:"severity,omitempty"`
	Category           audit.Category  `json:"category,omitempty"`
	AdditionalData     json.RawMessage `json:"additional_data,omitempty"`
	Timestamp          *time.Time      `json:"timestamp,omitempty"`
	DurationMS         int64           `json:"duration_ms,omitempty" validate:"gte=0"`
	Success            *bool           `json:"success,omitempty"`
	ErrorMessage       string          `json:"error_message,omitempty"`
	Module             string          `json:"module,omitempty"`
	Process            string          `json:"process,omitempty"`
	PermanentRetention bool            `json:"permanent_retention,omitempty"`
	ExpiresAt          *time.Time      `json:"expires_at,omitempty"`
}

// toEvent converts the request. Success defaults to true unless an error
// message is present.
func (req *IngestEventRequest) toEvent() *audit.Event {
	e := &audit.Event{
		Action:             req.Action,
		EntityName:         req.EntityName,
		EntityID:           req.EntityID,
		PropertyName:       req.PropertyName,
		OldValue:           req.OldValue,
		NewValue:           req.NewValue,
		OldState:           req.OldState,
		NewState:           req.NewState,
		Description:        req.Description,
		Context:            req.Context,
		Severity:           req.Severity,
		Category:           req.Category,
		AdditionalData:     req.AdditionalData,
		Duration:           time.Duration(req.DurationMS) * time.Millisecond,
		Success:            req.ErrorMessage == "",
		ErrorMessage:       req.ErrorMessage,
		Module:             req.Module,
		Process:            req.Process,
		PermanentRetention: req.PermanentRetention,
		ExpiresAt:          req.ExpiresAt,
	}
	if req.Success != nil {
		e.Success = *req.Success
	}
	if req.Timestamp != nil {
		e.Timestamp = *req.Timestamp
	}
	return e
}

// VerifyRequest is the body of POST /api/v1/audit/verify. Zero bounds mean
// the start and the head of the chain.
type VerifyRequest struct {
	From int64 `json:"from" validate:"gte=0"`
	To   int64 `json:"to" validate:"gte=0"`
}

// CleanupRequest is the body of POST /api/v1/audit/cleanup. A zero value
// uses the configured retention.
type CleanupRequest struct {
	RetentionDays int `json:"retention_days" validate:"gte=0,lte=36500"`
}

// PolicyRequest is the body of PUT /api/v1/audit/policies.
type PolicyRequest struct {
	Module  string `json:"module" validate:"required,policykey"`
	Process string `json:"process" validate:"required,policykey"`
	Enabled *bool  `json:"enabled" validate:"required"`
}

// decodeJSON decodes a bounded request body into dst. An empty body leaves
// dst untouched when allowEmpty is set.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}, allowEmpty bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return fmt.Errorf("request body exceeds %d bytes", maxErr.Limit)
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// parseSearchFilter reads the search and export filter from the query
// string. Times are RFC 3339.
func parseSearchFilter(r *http.Request) (audit.SearchFilter, error) {
	q := r.URL.Query()
	f := audit.SearchFilter{
		Text:       q.Get("q"),
		UserName:   q.Get("user"),
		Action:     q.Get("action"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
	}

	var err error
	if f.Start, err = parseTimeParam(q.Get("start"), "start"); err != nil {
		return f, err
	}
	if f.End, err = parseTimeParam(q.Get("end"), "end"); err != nil {
		return f, err
	}
	return f, nil
}

func parseTimeParam(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("%s must be an RFC 3339 timestamp", name)
	}
	return &t, nil
}

// parsePagination reads skip and take. Zero take selects the default page
// size; the query engine clamps the rest.
func parsePagination(r *http.Request) (audit.Pagination, error) {
	var page audit.Pagination
	var err error
	if page.Skip, err = getIntParam(r, "skip"); err != nil {
		return page, err
	}
	if page.Take, err = getIntParam(r, "take"); err != nil {
		return page, err
	}
	return page, nil
}

func getIntParam(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer", name)
	}
	return n, nil
}
