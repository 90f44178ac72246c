// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package websocket

import (
	"strings"

	"github.com/tomtom215/audittrail/internal/audit"
)

// Filter narrows the events a client receives. Empty fields match
// everything.
type Filter struct {
	MinSeverity audit.Severity `json:"min_severity,omitempty"`
	EntityType  string         `json:"entity_type,omitempty"`
	Category    audit.Category `json:"category,omitempty"`
}

// eventHeader holds the event fields used for filtering.
type eventHeader struct {
	SequenceNumber int64          `json:"sequence_number"`
	Severity       audit.Severity `json:"severity"`
	EntityName     string         `json:"entity_name"`
	Category       audit.Category `json:"category"`
}

func severityRank(s audit.Severity) int {
	switch s {
	case audit.SeverityInfo:
		return 1
	case audit.SeverityWarning:
		return 2
	case audit.SeverityError:
		return 3
	case audit.SeverityCritical:
		return 4
	default:
		return 0
	}
}

// Valid reports whether the filter only names known values.
func (f *Filter) Valid() bool {
	if f.MinSeverity != "" && !f.MinSeverity.Valid() {
		return false
	}
	if f.Category != "" && !f.Category.Valid() {
		return false
	}
	return true
}

// Matches reports whether an event passes the filter.
func (f *Filter) Matches(h *eventHeader) bool {
	if f == nil {
		return true
	}
	if f.MinSeverity != "" && severityRank(h.Severity) < severityRank(f.MinSeverity) {
		return false
	}
	if f.EntityType != "" && !strings.EqualFold(f.EntityType, h.EntityName) {
		return false
	}
	if f.Category != "" && f.Category != h.Category {
		return false
	}
	return true
}
