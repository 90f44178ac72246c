// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package api

import (
	"context"
	"time"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/config"
	"github.com/tomtom215/audittrail/internal/eventbus"
	"github.com/tomtom215/audittrail/internal/middleware"
	ws "github.com/tomtom215/audittrail/internal/websocket"
)

// EventLogger queues audit events. *audit.Logger satisfies it.
type EventLogger interface {
	Log(ctx context.Context, e *audit.Event) error
}

// QueryService searches and exports persisted events.
type QueryService interface {
	Search(ctx context.Context, f audit.SearchFilter, page audit.Pagination) (*audit.SearchResult, error)
	Get(ctx context.Context, id int64) (*audit.Event, error)
	Stats(ctx context.Context) (*audit.Stats, error)
	Export(ctx context.Context, f audit.SearchFilter, format audit.Format) (*audit.Export, error)
}

// ChainVerifier checks the integrity chain.
type ChainVerifier interface {
	VerifyChain(ctx context.Context, from, to int64) (*audit.VerifyResult, error)
}

// RetentionCleaner deletes events past retention.
type RetentionCleaner interface {
	Cleanup(ctx context.Context, retentionDays int) (int64, error)
}

// PolicyService reads and changes module/process audit rules.
type PolicyService interface {
	Rules(ctx context.Context) ([]audit.PolicyRule, error)
	SetPolicy(ctx context.Context, rule audit.PolicyRule) error
	IsAuditEnabled(module, process string) bool
}

// ProcessorMonitor exposes processor health.
type ProcessorMonitor interface {
	Status() audit.ProcessorStatus
	Ready() error
}

// AlertSummarizer reports recent operational alerts.
type AlertSummarizer interface {
	Summary() eventbus.AlertSummary
}

// Pinger checks store connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies are the components served by the API. Alerts, Tail,
// Performance and Store are optional.
type Dependencies struct {
	Logger    EventLogger
	Query     QueryService
	Verifier  ChainVerifier
	Retention RetentionCleaner
	Policy    PolicyService
	Processor ProcessorMonitor

	Store       Pinger
	Alerts      AlertSummarizer
	Tail        *ws.Hub
	Performance *middleware.PerformanceMonitor
}

// Handler serves the audit API.
type Handler struct {
	deps      Dependencies
	config    *config.Config
	startTime time.Time
}

// NewHandler creates a Handler.
func NewHandler(deps Dependencies, cfg *config.Config) *Handler {
	return &Handler{
		deps:      deps,
		config:    cfg,
		startTime: time.Now(),
	}
}

func (h *Handler) uptime() float64 {
	return time.Since(h.startTime).Seconds()
}
