// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/goccy/go-json"
	"github.com/mssola/useragent"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/logging"
)

// RequestClassifier decides which requests produce audit events. Both
// predicates must be pure and safe for concurrent use.
type RequestClassifier interface {
	ShouldAudit(path, method string) bool
	IsSensitive(path, method string) bool
}

// EventLogger accepts audit events. *audit.Logger satisfies it.
type EventLogger interface {
	Log(ctx context.Context, e *audit.Event) error
}

// AuditConfig names the headers carrying the actor established by the
// upstream identity provider.
type AuditConfig struct {
	UserIDHeader    string
	UserNameHeader  string
	SessionIDHeader string
}

// Module tag for request events; the process tag is the lowercased method.
const httpModule = "http"

const (
	maxUserAgentLength = 1024
	maxPathLength      = 2048
)

// RequestAuditor attaches the request actor to the context and records an
// audit event for requests selected by the classifier.
type RequestAuditor struct {
	classifier RequestClassifier
	logger     EventLogger
	config     AuditConfig
	now        func() time.Time
}

// NewRequestAuditor creates a RequestAuditor. A nil classifier disables
// request events while still propagating the actor.
func NewRequestAuditor(classifier RequestClassifier, logger EventLogger, config AuditConfig) *RequestAuditor {
	return &RequestAuditor{
		classifier: classifier,
		logger:     logger,
		config:     config,
		now:        time.Now,
	}
}

// Middleware wraps next with actor propagation and request auditing.
//
// Auditing never changes the response: classification happens before the
// handler runs and the event is queued after it returns. Queue errors are
// only logged.
func (a *RequestAuditor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor := a.actorFromRequest(r)
		ctx := audit.WithActor(r.Context(), actor)
		r = r.WithContext(ctx)

		path, method := r.URL.Path, r.Method
		var audited, sensitive bool
		if a.classifier != nil && a.logger != nil {
			sensitive = a.classifier.IsSensitive(path, method)
			audited = sensitive || a.classifier.ShouldAudit(path, method)
		}
		if !audited {
			next.ServeHTTP(w, r)
			return
		}

		start := a.now()
		rec := newStatusRecorder(w)
		next.ServeHTTP(rec, r)

		e := a.buildEvent(r, actor, rec, sensitive, start)
		// The request context may already be canceled by the time the
		// handler returns; the event must still be queued.
		if err := a.logger.Log(context.WithoutCancel(ctx), e); err != nil {
			logging.Ctx(ctx).Debug().Err(err).Str("path", path).Msg("request audit event not queued")
		}
	})
}

func (a *RequestAuditor) actorFromRequest(r *http.Request) audit.Actor {
	actor := audit.Actor{
		IPAddress: clientIP(r.RemoteAddr),
		UserAgent: cleanText(r.UserAgent(), maxUserAgentLength),
	}
	if a.config.UserIDHeader != "" {
		actor.UserID = cleanText(r.Header.Get(a.config.UserIDHeader), 128)
	}
	if a.config.UserNameHeader != "" {
		actor.UserName = cleanText(r.Header.Get(a.config.UserNameHeader), 256)
	}
	if a.config.SessionIDHeader != "" {
		actor.SessionID = cleanText(r.Header.Get(a.config.SessionIDHeader), 128)
	}
	return actor
}

func (a *RequestAuditor) buildEvent(r *http.Request, actor audit.Actor, rec *statusRecorder, sensitive bool, start time.Time) *audit.Event {
	status := rec.statusCode
	e := &audit.Event{
		Action:      audit.ActionHTTPRequest,
		EntityID:    routePattern(r),
		Description: r.Method + " " + cleanText(r.URL.Path, 256),
		Severity:    audit.SeverityInfo,
		Category:    audit.CategoryHTTP,
		Timestamp:   start,
		Duration:    a.now().Sub(start),
		Success:     status < http.StatusBadRequest,
		Module:      httpModule,
		Process:     strings.ToLower(r.Method),
		HTTPMethod:  r.Method,
		HTTPPath:    cleanText(r.URL.Path, maxPathLength),
		HTTPStatus:  status,
	}
	if e.EntityID == "unmatched" {
		e.EntityID = ""
	}
	if sensitive {
		e.Category = audit.CategorySecurity
		e.Severity = audit.SeverityWarning
	}
	if status >= http.StatusInternalServerError {
		e.Severity = audit.SeverityError
	}
	if !e.Success {
		e.ErrorMessage = http.StatusText(status)
	}

	if data, err := json.Marshal(requestDetails(r, actor, rec)); err == nil {
		e.AdditionalData = data
	}
	return e
}

// requestDetailsData is the additional data stored with request events.
type requestDetailsData struct {
	RequestID      string `json:"request_id,omitempty"`
	Query          string `json:"query,omitempty"`
	ResponseBytes  int64  `json:"response_bytes"`
	Browser        string `json:"browser,omitempty"`
	BrowserVersion string `json:"browser_version,omitempty"`
	OS             string `json:"os,omitempty"`
	Platform       string `json:"platform,omitempty"`
	Mobile         bool   `json:"mobile,omitempty"`
	Bot            bool   `json:"bot,omitempty"`
}

func requestDetails(r *http.Request, actor audit.Actor, rec *statusRecorder) requestDetailsData {
	d := requestDetailsData{
		RequestID:     GetRequestID(r.Context()),
		Query:         cleanText(r.URL.RawQuery, 1024),
		ResponseBytes: rec.bytes,
	}
	if actor.UserAgent != "" {
		ua := useragent.New(actor.UserAgent)
		d.Browser, d.BrowserVersion = ua.Browser()
		d.OS = ua.OS()
		d.Platform = ua.Platform()
		d.Mobile = ua.Mobile()
		d.Bot = ua.Bot()
	}
	return d
}

// clientIP strips the port from a RemoteAddr. Values that are not an IP
// address are dropped.
func clientIP(remoteAddr string) string {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	if net.ParseIP(host) == nil {
		return ""
	}
	return host
}

// cleanText makes request data storable as audit text. Invalid UTF-8 is
// replaced with U+FFFD, NUL bytes are dropped and the result is cut to at
// most n bytes without splitting a rune.
func cleanText(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	s = strings.ReplaceAll(s, "\x00", "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
