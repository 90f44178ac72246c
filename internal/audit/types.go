// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"time"

	"github.com/goccy/go-json"
)

// Severity indicates the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityError    Severity = "ERROR"
	SeverityCritical Severity = "CRITICAL"
)

// Valid reports whether s is a known severity.
func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// evictable reports whether queued events of this severity may be dropped
// under saturation.
func (s Severity) evictable() bool {
	return s == SeverityInfo || s == SeverityWarning
}

// Category groups audit events by concern.
type Category string

const (
	CategoryCRUD          Category = "CRUD"
	CategoryAuth          Category = "AUTH"
	CategorySecurity      Category = "SECURITY"
	CategorySystem        Category = "SYSTEM"
	CategoryHTTP          Category = "HTTP"
	CategoryConfiguration Category = "CONFIGURATION"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryCRUD, CategoryAuth, CategorySecurity, CategorySystem, CategoryHTTP, CategoryConfiguration:
		return true
	}
	return false
}

// Standard actions recorded by the convenience logging calls.
const (
	ActionCreate         = "CREATE"
	ActionUpdate         = "UPDATE"
	ActionDelete         = "DELETE"
	ActionPropertyChange = "PROPERTY_CHANGE"
	ActionError          = "ERROR"
	ActionLogin          = "LOGIN"
	ActionLogout         = "LOGOUT"
	ActionPolicyChange   = "POLICY_CHANGE"
	ActionHTTPRequest    = "HTTP_REQUEST"
)

// Reserved module/process tags for events about the audit subsystem itself.
const (
	ModuleAudit   = "audit"
	ProcessPolicy = "policy"
)

// Event is a single audit record.
//
// ID, SequenceNumber, ContentHash, PreviousHash and IntegrityVerified are
// assigned at persistence time; values supplied by callers are discarded.
type Event struct {
	// ID is assigned by the store.
	ID int64 `json:"id"`

	// Actor
	UserID    string `json:"user_id,omitempty" validate:"utf8text,max=128"`
	UserName  string `json:"user_name,omitempty" validate:"utf8text,max=256"`
	IPAddress string `json:"ip_address,omitempty" validate:"omitempty,ip"`
	UserAgent string `json:"user_agent,omitempty" validate:"utf8text,max=1024"`
	SessionID string `json:"session_id,omitempty" validate:"utf8text,max=128"`

	// Action is the operation performed, e.g. CREATE or DELETE.
	Action string `json:"action" validate:"required,utf8text,max=64"`

	// EntityName is the type of the affected record, EntityID its key.
	EntityName string `json:"entity_name,omitempty" validate:"utf8text,max=128"`
	EntityID   string `json:"entity_id,omitempty" validate:"utf8text,max=128"`

	// Field-level change
	PropertyName string `json:"property_name,omitempty" validate:"utf8text,max=128"`
	OldValue     string `json:"old_value,omitempty" validate:"utf8text"`
	NewValue     string `json:"new_value,omitempty" validate:"utf8text"`

	// Snapshots of the entity before and after the change.
	OldState json.RawMessage `json:"old_state,omitempty" validate:"omitempty,utf8text,json"`
	NewState json.RawMessage `json:"new_state,omitempty" validate:"omitempty,utf8text,json"`

	Description string   `json:"description,omitempty" validate:"utf8text,max=4000"`
	Context     string   `json:"context,omitempty" validate:"utf8text,max=256"`
	Severity    Severity `json:"severity" validate:"oneof=INFO WARNING ERROR CRITICAL"`
	Category    Category `json:"category" validate:"oneof=CRUD AUTH SECURITY SYSTEM HTTP CONFIGURATION"`

	// AdditionalData is opaque JSON. It is stored and hashed byte for byte.
	AdditionalData json.RawMessage `json:"additional_data,omitempty" validate:"omitempty,utf8text,json"`

	Timestamp    time.Time     `json:"timestamp"`
	Duration     time.Duration `json:"duration_ns,omitempty" validate:"gte=0"`
	Success      bool          `json:"success"`
	ErrorMessage string        `json:"error_message,omitempty" validate:"utf8text"`
	StackTrace   string        `json:"stack_trace,omitempty" validate:"utf8text"`

	CorrelationID string `json:"correlation_id,omitempty" validate:"utf8text,max=128"`

	// Module and Process are the policy tags checked before persistence.
	Module  string `json:"module" validate:"omitempty,policykey"`
	Process string `json:"process" validate:"omitempty,policykey"`

	// HTTP request context, set by the request auditing middleware.
	HTTPMethod string `json:"http_method,omitempty" validate:"utf8text,max=16"`
	HTTPPath   string `json:"http_path,omitempty" validate:"utf8text,max=2048"`
	HTTPStatus int    `json:"http_status,omitempty" validate:"gte=0,lte=999"`

	// PermanentRetention exempts the event from retention cleanup.
	PermanentRetention bool       `json:"permanent_retention"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`

	// Integrity chain
	SequenceNumber    int64  `json:"sequence_number"`
	ContentHash       string `json:"content_hash"`
	PreviousHash      string `json:"previous_hash"`
	IntegrityVerified bool   `json:"integrity_verified"`
}

// clearChain resets the persistence-time fields.
func (e *Event) clearChain() {
	e.ID = 0
	e.SequenceNumber = 0
	e.ContentHash = ""
	e.PreviousHash = ""
	e.IntegrityVerified = false
}

// Entity identifies the record an audit event is about.
type Entity struct {
	Type string
	ID   string
}

// Actor is the identity performing an audited operation.
type Actor struct {
	UserID    string
	UserName  string
	IPAddress string
	UserAgent string
	SessionID string
}

type actorKey struct{}

// WithActor returns a context carrying the acting identity.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the identity stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// PolicyRule enables or disables auditing for a (module, process) pair.
// Pairs without a rule are enabled.
type PolicyRule struct {
	Module    string    `json:"module" validate:"required,policykey"`
	Process   string    `json:"process" validate:"required,policykey"`
	Enabled   bool      `json:"enabled"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty" validate:"utf8text,max=256"`
}

// ChainHead is the last committed link of the integrity chain.
type ChainHead struct {
	Sequence int64  `json:"sequence"`
	Hash     string `json:"hash"`
}

// SearchFilter narrows a search. Empty fields do not constrain the result.
type SearchFilter struct {
	// Text matches a substring of the description.
	Text string `json:"text,omitempty"`

	// UserName matches a case-insensitive substring of the user name.
	UserName string `json:"user_name,omitempty"`

	Action     string     `json:"action,omitempty"`
	EntityType string     `json:"entity_type,omitempty"`
	EntityID   string     `json:"entity_id,omitempty"`
	Start      *time.Time `json:"start,omitempty"`
	End        *time.Time `json:"end,omitempty"`
}

// Pagination selects a page of search results.
type Pagination struct {
	Skip int `json:"skip"`
	Take int `json:"take"`
}

// SearchResult is one page of events plus the total match count.
type SearchResult struct {
	Events []Event `json:"events"`
	Total  int64   `json:"total"`
	Skip   int     `json:"skip"`
	Take   int     `json:"take"`
}

// Stats summarizes the audit store.
type Stats struct {
	TotalEvents      int64            `json:"total_events"`
	PermanentEvents  int64            `json:"permanent_events"`
	EventsBySeverity map[string]int64 `json:"events_by_severity"`
	EventsByCategory map[string]int64 `json:"events_by_category"`
	OldestEvent      *time.Time       `json:"oldest_event,omitempty"`
	NewestEvent      *time.Time       `json:"newest_event,omitempty"`
	Head             ChainHead        `json:"head"`
}

// Alert kinds published by the processor.
const (
	AlertStoreUnavailable = "store_unavailable"
	AlertEventsLost       = "events_lost"
	AlertIntegrityBroken  = "integrity_broken"
)

// Alert is an operational signal about the audit pipeline.
type Alert struct {
	Kind     string    `json:"kind"`
	Message  string    `json:"message"`
	Error    string    `json:"error,omitempty"`
	Count    int       `json:"count,omitempty"`
	Sequence int64     `json:"sequence,omitempty"`
	At       time.Time `json:"at"`
}

// Notifier receives persisted events and operational alerts.
// Implementations must not block.
type Notifier interface {
	PublishPersisted(events []*Event)
	PublishAlert(alert Alert)
}
