// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/audittrail/internal/logging"
	"github.com/tomtom215/audittrail/internal/metrics"
	"github.com/tomtom215/audittrail/internal/validation"
)

// LoggerConfig configures event defaults applied at ingestion.
type LoggerConfig struct {
	// DefaultExpiration stamps ExpiresAt on events without one. Zero
	// leaves expiration unset.
	DefaultExpiration time.Duration
}

// Logger is the ingestion API. It validates events, fills defaults and
// hands them to the queue; it never waits on storage.
type Logger struct {
	queue             *Queue
	defaultExpiration time.Duration
	now               func() time.Time

	// warn throttles operational warnings about rejected and dropped events.
	warn rate.Sometimes
}

// NewLogger creates a Logger feeding queue.
func NewLogger(queue *Queue, cfg LoggerConfig) *Logger {
	l := &Logger{
		queue:             queue,
		defaultExpiration: cfg.DefaultExpiration,
		now:               time.Now,
		warn:              rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
	queue.OnDrop(l.dropped)
	return l
}

// Log validates e and queues a copy of it for persistence.
//
// It returns ErrInvalidArgument for a nil event, an empty action or
// malformed fields, ErrQueueSaturated when an ERROR/CRITICAL event finds
// no room, and ErrQueueClosed during shutdown.
func (l *Logger) Log(ctx context.Context, e *Event) error {
	if e == nil {
		return l.reject(ctx, "invalid", fmt.Errorf("%w: nil event", ErrInvalidArgument))
	}
	if e.Action == "" {
		return l.reject(ctx, "invalid", fmt.Errorf("%w: action is required", ErrInvalidArgument))
	}

	ev := *e
	ev.OldState = bytes.Clone(e.OldState)
	ev.NewState = bytes.Clone(e.NewState)
	ev.AdditionalData = bytes.Clone(e.AdditionalData)
	l.applyDefaults(ctx, &ev)
	if verr := validation.ValidateStruct(&ev); verr != nil {
		return l.reject(ctx, "invalid", fmt.Errorf("%w: %s", ErrInvalidArgument, verr.Error()))
	}

	if err := l.queue.Enqueue(ctx, &ev); err != nil {
		reason := "saturated"
		if errors.Is(err, ErrQueueClosed) {
			reason = "closed"
		}
		return l.reject(ctx, reason, err)
	}

	metrics.AuditEventsEnqueued.WithLabelValues(string(ev.Severity)).Inc()
	return nil
}

// applyDefaults fills the fields a caller may omit.
func (l *Logger) applyDefaults(ctx context.Context, e *Event) {
	e.clearChain()

	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}
	e.Timestamp = e.Timestamp.UTC()
	if e.Severity == "" {
		e.Severity = SeverityInfo
	}
	if e.Category == "" {
		e.Category = CategorySystem
	}

	if actor, ok := ActorFromContext(ctx); ok {
		if e.UserID == "" {
			e.UserID = actor.UserID
		}
		if e.UserName == "" {
			e.UserName = actor.UserName
		}
		if e.IPAddress == "" {
			e.IPAddress = actor.IPAddress
		}
		if e.UserAgent == "" {
			e.UserAgent = actor.UserAgent
		}
		if e.SessionID == "" {
			e.SessionID = actor.SessionID
		}
	}
	if e.CorrelationID == "" {
		e.CorrelationID = logging.CorrelationIDFromContext(ctx)
	}

	if e.Module == "" {
		e.Module = e.EntityName
	}
	if e.Process == "" {
		e.Process = e.Action
	}

	if e.ExpiresAt == nil && !e.PermanentRetention && l.defaultExpiration > 0 {
		exp := e.Timestamp.Add(l.defaultExpiration)
		e.ExpiresAt = &exp
	}
}

func (l *Logger) reject(ctx context.Context, reason string, err error) error {
	metrics.AuditEventsRejected.WithLabelValues(reason).Inc()
	if reason != "invalid" {
		l.warn.Do(func() {
			logging.Ctx(ctx).Warn().Err(err).Str("reason", reason).Msg("audit event rejected")
		})
	}
	return err
}

// dropped is called by the queue for each evicted event.
func (l *Logger) dropped(e *Event) {
	metrics.AuditEventsDropped.WithLabelValues(string(e.Severity)).Inc()
	l.queue.Done(1)
	l.warn.Do(func() {
		logging.Warn().
			Int64("dropped_total", l.queue.Dropped()).
			Int("capacity", l.queue.Capacity()).
			Msg("audit queue saturated, evicting low-severity events")
	})
}

// LogCreate records the creation of an entity.
func (l *Logger) LogCreate(ctx context.Context, entity Entity, newState any) error {
	snapshot, err := marshalSnapshot(newState)
	if err != nil {
		return l.reject(ctx, "invalid", err)
	}
	return l.Log(ctx, &Event{
		Action:      ActionCreate,
		EntityName:  entity.Type,
		EntityID:    entity.ID,
		NewState:    snapshot,
		Description: fmt.Sprintf("Created %s %s", entity.Type, entity.ID),
		Severity:    SeverityInfo,
		Category:    CategoryCRUD,
		Success:     true,
	})
}

// LogUpdate records a change to an entity with before and after snapshots.
func (l *Logger) LogUpdate(ctx context.Context, entity Entity, oldState, newState any) error {
	before, err := marshalSnapshot(oldState)
	if err != nil {
		return l.reject(ctx, "invalid", err)
	}
	after, err := marshalSnapshot(newState)
	if err != nil {
		return l.reject(ctx, "invalid", err)
	}
	return l.Log(ctx, &Event{
		Action:      ActionUpdate,
		EntityName:  entity.Type,
		EntityID:    entity.ID,
		OldState:    before,
		NewState:    after,
		Description: fmt.Sprintf("Updated %s %s", entity.Type, entity.ID),
		Severity:    SeverityInfo,
		Category:    CategoryCRUD,
		Success:     true,
	})
}

// LogPropertyChange records a change to a single field of an entity.
func (l *Logger) LogPropertyChange(ctx context.Context, entity Entity, property, oldValue, newValue string) error {
	return l.Log(ctx, &Event{
		Action:       ActionPropertyChange,
		EntityName:   entity.Type,
		EntityID:     entity.ID,
		PropertyName: property,
		OldValue:     oldValue,
		NewValue:     newValue,
		Description:  fmt.Sprintf("Changed %s of %s %s", property, entity.Type, entity.ID),
		Severity:     SeverityInfo,
		Category:     CategoryCRUD,
		Success:      true,
	})
}

// LogDelete records the deletion of an entity at WARNING severity.
func (l *Logger) LogDelete(ctx context.Context, entity Entity, oldState any) error {
	snapshot, err := marshalSnapshot(oldState)
	if err != nil {
		return l.reject(ctx, "invalid", err)
	}
	return l.Log(ctx, &Event{
		Action:      ActionDelete,
		EntityName:  entity.Type,
		EntityID:    entity.ID,
		OldState:    snapshot,
		Description: fmt.Sprintf("Deleted %s %s", entity.Type, entity.ID),
		Severity:    SeverityWarning,
		Category:    CategoryCRUD,
		Success:     true,
	})
}

// LogError records a failure with its message and the current stack.
func (l *Logger) LogError(ctx context.Context, cause error, contextLabel string) error {
	if cause == nil {
		return l.reject(ctx, "invalid", fmt.Errorf("%w: nil error", ErrInvalidArgument))
	}
	return l.Log(ctx, &Event{
		Action:       ActionError,
		Context:      contextLabel,
		Description:  fmt.Sprintf("Error in %s: %s", contextLabel, cause.Error()),
		Severity:     SeverityError,
		Category:     CategorySystem,
		Success:      false,
		ErrorMessage: cause.Error(),
		StackTrace:   string(debug.Stack()),
	})
}

// LogLoginAttempt records an authentication attempt. Failures are logged at
// WARNING severity with the reason in the error message.
func (l *Logger) LogLoginAttempt(ctx context.Context, userName string, success bool, reason string) error {
	e := &Event{
		Action:   ActionLogin,
		UserName: userName,
		Category: CategoryAuth,
		Module:   "auth",
		Process:  "login",
		Success:  success,
	}
	if success {
		e.Severity = SeverityInfo
		e.Description = fmt.Sprintf("Login succeeded for %s", userName)
	} else {
		e.Severity = SeverityWarning
		e.Description = fmt.Sprintf("Login failed for %s", userName)
		e.ErrorMessage = reason
	}
	return l.Log(ctx, e)
}

// LogLogout records the end of the actor's session.
func (l *Logger) LogLogout(ctx context.Context) error {
	actor, _ := ActorFromContext(ctx)
	return l.Log(ctx, &Event{
		Action:      ActionLogout,
		Description: fmt.Sprintf("User %s logged out", actor.UserName),
		Severity:    SeverityInfo,
		Category:    CategoryAuth,
		Module:      "auth",
		Process:     "logout",
		Success:     true,
	})
}

// marshalSnapshot encodes an entity snapshot. Raw JSON is passed through.
func marshalSnapshot(v any) (json.RawMessage, error) {
	switch s := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return s, nil
	case []byte:
		return json.RawMessage(s), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: snapshot: %v", ErrInvalidArgument, err)
	}
	return data, nil
}
