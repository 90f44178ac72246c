// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/audittrail/internal/logging"
)

func newTestLogger(capacity int, cfg LoggerConfig) (*Logger, *Queue) {
	q := NewQueue(capacity, 0)
	l := NewLogger(q, cfg)
	l.now = func() time.Time { return baseTime }
	return l, q
}

// logged returns the single event queued by a Log call.
func logged(t *testing.T, q *Queue) *Event {
	t.Helper()
	batch := q.TryDequeueBatch(10)
	if len(batch) != 1 {
		t.Fatalf("expected 1 queued event, got %d", len(batch))
	}
	return batch[0]
}

func TestLogger_LogAppliesDefaults(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	ctx := WithActor(context.Background(), Actor{
		UserID:    "42",
		UserName:  "jdoe",
		IPAddress: "10.0.0.5",
		UserAgent: "Mozilla/5.0",
		SessionID: "sess-1",
	})
	ctx = logging.ContextWithCorrelationID(ctx, "corr-123")

	if err := l.Log(ctx, &Event{Action: "APPROVE", EntityName: "WorkOrder", EntityID: "WO-7"}); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	e := logged(t, q)
	if !e.Timestamp.Equal(baseTime) {
		t.Errorf("expected timestamp %v, got %v", baseTime, e.Timestamp)
	}
	if e.Severity != SeverityInfo || e.Category != CategorySystem {
		t.Errorf("expected INFO/SYSTEM defaults, got %s/%s", e.Severity, e.Category)
	}
	if e.UserID != "42" || e.UserName != "jdoe" || e.IPAddress != "10.0.0.5" || e.SessionID != "sess-1" {
		t.Errorf("actor not applied from context: %+v", e)
	}
	if e.CorrelationID != "corr-123" {
		t.Errorf("expected correlation id corr-123, got %q", e.CorrelationID)
	}
	if e.Module != "WorkOrder" || e.Process != "APPROVE" {
		t.Errorf("expected module/process WorkOrder/APPROVE, got %s/%s", e.Module, e.Process)
	}
	if e.ExpiresAt != nil {
		t.Error("expiration must stay unset without a default")
	}
}

func TestLogger_ExplicitFieldsWin(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	ctx := WithActor(context.Background(), Actor{UserName: "from-context"})

	err := l.Log(ctx, &Event{
		Action:   ActionUpdate,
		UserName: "explicit",
		Module:   "billing",
		Process:  "invoice",
		Severity: SeverityCritical,
		Category: CategorySecurity,
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	e := logged(t, q)
	if e.UserName != "explicit" {
		t.Errorf("explicit user name overwritten: %q", e.UserName)
	}
	if e.Module != "billing" || e.Process != "invoice" {
		t.Errorf("explicit tags overwritten: %s/%s", e.Module, e.Process)
	}
	if e.Severity != SeverityCritical || e.Category != CategorySecurity {
		t.Errorf("explicit severity/category overwritten: %s/%s", e.Severity, e.Category)
	}
}

func TestLogger_DiscardsCallerChainFields(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	in := &Event{
		Action:            ActionCreate,
		ID:                99,
		SequenceNumber:    1234,
		ContentHash:       "forged",
		PreviousHash:      "forged",
		IntegrityVerified: true,
	}
	if err := l.Log(context.Background(), in); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	e := logged(t, q)
	if e.ID != 0 || e.SequenceNumber != 0 || e.ContentHash != "" || e.PreviousHash != "" || e.IntegrityVerified {
		t.Errorf("persistence-time fields must be cleared: %+v", e)
	}
	if in.SequenceNumber != 1234 {
		t.Error("caller's event must not be modified")
	}
	if e == in {
		t.Error("logger must queue a copy of the caller's event")
	}
}

func TestLogger_CopiesCallerJSON(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	old := json.RawMessage(`{"status":"open"}`)
	updated := json.RawMessage(`{"status":"done"}`)
	extra := json.RawMessage(`{"shift":"A"}`)
	in := &Event{Action: ActionUpdate, OldState: old, NewState: updated, AdditionalData: extra}
	if err := l.Log(context.Background(), in); err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	// The caller reuses its buffers after Log returns.
	copy(old, `{"status":"XXXX"}`)
	copy(updated, `{"status":"XXXX"}`)
	copy(extra, `{"shift":"Z"}`)

	e := logged(t, q)
	if string(e.OldState) != `{"status":"open"}` {
		t.Errorf("OldState = %s, want the logged value", e.OldState)
	}
	if string(e.NewState) != `{"status":"done"}` {
		t.Errorf("NewState = %s, want the logged value", e.NewState)
	}
	if string(e.AdditionalData) != `{"shift":"A"}` {
		t.Errorf("AdditionalData = %s, want the logged value", e.AdditionalData)
	}
}

func TestLogger_RejectsInvalidEvents(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		event *Event
	}{
		{"nil event", nil},
		{"empty action", &Event{Description: "no action"}},
		{"bad ip", &Event{Action: ActionCreate, IPAddress: "not-an-ip"}},
		{"bad json", &Event{Action: ActionCreate, AdditionalData: json.RawMessage(`{broken`)}},
		{"unknown severity", &Event{Action: ActionCreate, Severity: "LOUD"}},
		{"unknown category", &Event{Action: ActionCreate, Category: "MISC"}},
		{"bad module tag", &Event{Action: ActionCreate, Module: "work order!"}},
		{"negative duration", &Event{Action: ActionCreate, Duration: -time.Second}},
		{"invalid utf-8 description", &Event{Action: ActionHTTPRequest, Description: "GET /api/v1/audit/events/\xff"}},
		{"truncated utf-8 user name", &Event{Action: ActionCreate, UserName: "caf\xc3"}},
		{"nul byte in entity id", &Event{Action: ActionCreate, EntityID: "WO-1\x00"}},
		{"invalid utf-8 in json", &Event{Action: ActionCreate, AdditionalData: json.RawMessage("{\"k\":\"\xff\"}")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, q := newTestLogger(10, LoggerConfig{})
			err := l.Log(context.Background(), tt.event)
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("expected ErrInvalidArgument, got %v", err)
			}
			if q.Len() != 0 {
				t.Error("rejected event must not be queued")
			}
		})
	}
}

func TestLogger_DefaultExpiration(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{DefaultExpiration: 24 * time.Hour})
	ctx := context.Background()

	_ = l.Log(ctx, &Event{Action: ActionCreate})
	e := logged(t, q)
	if e.ExpiresAt == nil || !e.ExpiresAt.Equal(baseTime.Add(24*time.Hour)) {
		t.Errorf("expected expiration one day after the timestamp, got %v", e.ExpiresAt)
	}

	_ = l.Log(ctx, &Event{Action: ActionCreate, PermanentRetention: true})
	if e := logged(t, q); e.ExpiresAt != nil {
		t.Error("permanently retained events must not expire")
	}
}

func TestLogger_LogCreateAndUpdate(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	ctx := context.Background()
	entity := Entity{Type: "Asset", ID: "PUMP-3"}

	type asset struct {
		Status string `json:"status"`
	}

	if err := l.LogCreate(ctx, entity, asset{Status: "active"}); err != nil {
		t.Fatalf("LogCreate failed: %v", err)
	}
	e := logged(t, q)
	if e.Action != ActionCreate || e.Category != CategoryCRUD || !e.Success {
		t.Errorf("unexpected create event: %+v", e)
	}
	if string(e.NewState) != `{"status":"active"}` {
		t.Errorf("unexpected new state %s", e.NewState)
	}

	before := json.RawMessage(`{"status":"active"}`)
	if err := l.LogUpdate(ctx, entity, before, asset{Status: "retired"}); err != nil {
		t.Fatalf("LogUpdate failed: %v", err)
	}
	e = logged(t, q)
	if e.Action != ActionUpdate || string(e.OldState) != `{"status":"active"}` || string(e.NewState) != `{"status":"retired"}` {
		t.Errorf("unexpected update event: %+v", e)
	}
	if e.EntityName != "Asset" || e.EntityID != "PUMP-3" {
		t.Errorf("unexpected entity %s/%s", e.EntityName, e.EntityID)
	}
}

func TestLogger_LogPropertyChange(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	if err := l.LogPropertyChange(context.Background(), Entity{Type: "WorkOrder", ID: "WO-1"}, "Priority", "Low", "High"); err != nil {
		t.Fatalf("LogPropertyChange failed: %v", err)
	}
	e := logged(t, q)
	if e.Action != ActionPropertyChange || e.PropertyName != "Priority" || e.OldValue != "Low" || e.NewValue != "High" {
		t.Errorf("unexpected property change event: %+v", e)
	}
}

func TestLogger_LogDeleteIsWarning(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	if err := l.LogDelete(context.Background(), Entity{Type: "Asset", ID: "A-1"}, map[string]string{"name": "pump"}); err != nil {
		t.Fatalf("LogDelete failed: %v", err)
	}
	e := logged(t, q)
	if e.Action != ActionDelete || e.Severity != SeverityWarning || e.Category != CategoryCRUD {
		t.Errorf("expected DELETE/WARNING/CRUD, got %s/%s/%s", e.Action, e.Severity, e.Category)
	}
	if string(e.OldState) != `{"name":"pump"}` {
		t.Errorf("unexpected old state %s", e.OldState)
	}
}

func TestLogger_LogError(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	if err := l.LogError(context.Background(), errors.New("disk full"), "sync"); err != nil {
		t.Fatalf("LogError failed: %v", err)
	}
	e := logged(t, q)
	if e.Severity != SeverityError || e.Category != CategorySystem || e.Success {
		t.Errorf("expected failed ERROR/SYSTEM event, got %+v", e)
	}
	if e.ErrorMessage != "disk full" {
		t.Errorf("expected error message, got %q", e.ErrorMessage)
	}
	if e.Description != "Error in sync: disk full" {
		t.Errorf("unexpected description %q", e.Description)
	}
	if !strings.Contains(e.StackTrace, "goroutine") {
		t.Error("expected a captured stack trace")
	}

	if err := l.LogError(context.Background(), nil, "sync"); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument for nil error, got %v", err)
	}
}

func TestLogger_LogLoginAttempt(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	ctx := context.Background()

	_ = l.LogLoginAttempt(ctx, "jdoe", true, "")
	ok := logged(t, q)
	if ok.Severity != SeverityInfo || !ok.Success || ok.ErrorMessage != "" {
		t.Errorf("unexpected successful login event: %+v", ok)
	}

	_ = l.LogLoginAttempt(ctx, "jdoe", false, "bad password")
	failed := logged(t, q)
	if failed.Severity != SeverityWarning || failed.Success || failed.ErrorMessage != "bad password" {
		t.Errorf("unexpected failed login event: %+v", failed)
	}
	if failed.Category != CategoryAuth || failed.Module != "auth" || failed.Process != "login" {
		t.Errorf("unexpected login tags: %s %s/%s", failed.Category, failed.Module, failed.Process)
	}
}

func TestLogger_LogLogout(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(10, LoggerConfig{})
	ctx := WithActor(context.Background(), Actor{UserName: "jdoe"})
	_ = l.LogLogout(ctx)

	e := logged(t, q)
	if e.Action != ActionLogout || e.UserName != "jdoe" || e.Process != "logout" {
		t.Errorf("unexpected logout event: %+v", e)
	}
}

func TestLogger_EvictionReleasesPending(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(1, LoggerConfig{})
	ctx := context.Background()

	_ = l.Log(ctx, &Event{Action: ActionUpdate})
	if err := l.Log(ctx, &Event{Action: ActionUpdate}); err != nil {
		t.Fatalf("low-severity event must evict rather than fail: %v", err)
	}
	if q.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", q.Dropped())
	}
	if q.Pending() != 1 {
		t.Errorf("evicted events are no longer pending, expected 1, got %d", q.Pending())
	}
}

func TestLogger_SaturatedAndClosed(t *testing.T) {
	t.Parallel()

	l, q := newTestLogger(1, LoggerConfig{})
	ctx := context.Background()

	_ = l.Log(ctx, &Event{Action: ActionError, Severity: SeverityCritical})
	if err := l.Log(ctx, &Event{Action: ActionError, Severity: SeverityError}); !errors.Is(err, ErrQueueSaturated) {
		t.Errorf("expected ErrQueueSaturated, got %v", err)
	}

	q.Close()
	if err := l.Log(ctx, &Event{Action: ActionCreate}); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("expected ErrQueueClosed, got %v", err)
	}
}
