// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package eventbus

import (
	"sync"
	"time"

	"github.com/tomtom215/audittrail/internal/audit"
)

// AlertSummary is a point-in-time view of alerts seen by the monitor.
type AlertSummary struct {
	Total  int64            `json:"total"`
	ByKind map[string]int64 `json:"by_kind"`
	Last   *audit.Alert     `json:"last,omitempty"`

	// IntegrityBroken stays set once a verification has failed.
	IntegrityBroken bool `json:"integrity_broken"`

	// Degraded is true while a store or loss alert is within the window.
	Degraded bool `json:"degraded"`
}

// AlertMonitor keeps the alert history used by health reporting.
type AlertMonitor struct {
	window time.Duration
	now    func() time.Time

	mu              sync.RWMutex
	total           int64
	byKind          map[string]int64
	last            *audit.Alert
	lastDegradingAt time.Time
	integrityBroken bool
}

// NewAlertMonitor creates a monitor. Store and loss alerts mark the
// pipeline degraded for window after they arrive.
func NewAlertMonitor(window time.Duration) *AlertMonitor {
	if window <= 0 {
		window = 5 * time.Minute
	}
	return &AlertMonitor{
		window: window,
		now:    time.Now,
		byKind: make(map[string]int64),
	}
}

// Record adds an alert to the history.
func (m *AlertMonitor) Record(a audit.Alert) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.total++
	m.byKind[a.Kind]++
	m.last = &a

	switch a.Kind {
	case audit.AlertIntegrityBroken:
		m.integrityBroken = true
	case audit.AlertStoreUnavailable, audit.AlertEventsLost:
		m.lastDegradingAt = m.now()
	}
}

// Summary returns a copy of the current state.
func (m *AlertMonitor) Summary() AlertSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := AlertSummary{
		Total:           m.total,
		ByKind:          make(map[string]int64, len(m.byKind)),
		IntegrityBroken: m.integrityBroken,
		Degraded:        !m.lastDegradingAt.IsZero() && m.now().Sub(m.lastDegradingAt) < m.window,
	}
	for k, v := range m.byKind {
		s.ByKind[k] = v
	}
	if m.last != nil {
		last := *m.last
		s.Last = &last
	}
	return s
}

// ResetIntegrity clears the integrity flag after an operator has
// investigated and a later verification passed.
func (m *AlertMonitor) ResetIntegrity() {
	m.mu.Lock()
	m.integrityBroken = false
	m.mu.Unlock()
}
