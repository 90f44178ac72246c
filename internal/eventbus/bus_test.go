// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package eventbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/audittrail/internal/audit"
)

type recordingBroadcaster struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (r *recordingBroadcaster) BroadcastRaw(data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.payloads = append(r.payloads, append([]byte(nil), data...))
}

func (r *recordingBroadcaster) snapshot() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]byte(nil), r.payloads...)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

// startBus runs b until the test ends.
func startBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()

	select {
	case <-b.Running():
	case <-time.After(5 * time.Second):
		t.Fatal("bus did not start")
	}

	t.Cleanup(func() {
		cancel()
		if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run returned %v", err)
		}
	})
}

func TestBus_PersistedEventsReachTail(t *testing.T) {
	t.Parallel()

	tail := &recordingBroadcaster{}
	b, err := New(DefaultConfig(), nil, tail)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startBus(t, b)

	events := []*audit.Event{
		{Action: audit.ActionCreate, EntityName: "Asset", SequenceNumber: 7, Severity: audit.SeverityInfo},
		{Action: audit.ActionDelete, EntityName: "Asset", SequenceNumber: 8, Severity: audit.SeverityWarning},
	}
	b.PublishPersisted(events)

	waitFor(t, 2*time.Second, func() bool { return len(tail.snapshot()) == 2 })

	seen := map[int64]bool{}
	for _, payload := range tail.snapshot() {
		var e audit.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			t.Fatalf("tail payload is not an event: %v", err)
		}
		seen[e.SequenceNumber] = true
	}
	if !seen[7] || !seen[8] {
		t.Errorf("expected sequences 7 and 8, got %v", seen)
	}
}

func TestBus_AlertsReachMonitor(t *testing.T) {
	t.Parallel()

	monitor := NewAlertMonitor(time.Minute)
	b, err := New(DefaultConfig(), monitor, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	startBus(t, b)

	b.PublishAlert(audit.Alert{Kind: audit.AlertStoreUnavailable, Message: "store down", At: time.Now()})
	b.PublishAlert(audit.Alert{Kind: audit.AlertIntegrityBroken, Message: "hash mismatch", Sequence: 12, At: time.Now()})

	waitFor(t, 2*time.Second, func() bool { return monitor.Summary().Total == 2 })

	s := monitor.Summary()
	if !s.Degraded || !s.IntegrityBroken {
		t.Errorf("expected degraded and integrity broken, got %+v", s)
	}
	if s.ByKind[audit.AlertStoreUnavailable] != 1 || s.ByKind[audit.AlertIntegrityBroken] != 1 {
		t.Errorf("unexpected counts %+v", s.ByKind)
	}
}

func TestBus_AlertAfterShutdownIsStillRecorded(t *testing.T) {
	t.Parallel()

	b, err := New(DefaultConfig(), nil, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Run(ctx) }()
	<-b.Running()
	cancel()
	<-done

	b.PublishAlert(audit.Alert{Kind: audit.AlertEventsLost, Count: 3})
	if got := b.Monitor().Summary().ByKind[audit.AlertEventsLost]; got != 1 {
		t.Errorf("expected the alert to be recorded, got %d", got)
	}
}

func TestAlertMonitor_DegradedWindow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	m := NewAlertMonitor(time.Minute)
	m.now = func() time.Time { return now }

	m.Record(audit.Alert{Kind: audit.AlertEventsLost})
	if !m.Summary().Degraded {
		t.Error("expected degraded right after a loss alert")
	}

	now = now.Add(2 * time.Minute)
	s := m.Summary()
	if s.Degraded {
		t.Error("degraded state must expire after the window")
	}
	if s.Last == nil || s.Last.Kind != audit.AlertEventsLost {
		t.Errorf("expected last alert to be kept, got %+v", s.Last)
	}
}

func TestAlertMonitor_IntegrityIsSticky(t *testing.T) {
	t.Parallel()

	m := NewAlertMonitor(time.Millisecond)
	m.Record(audit.Alert{Kind: audit.AlertIntegrityBroken})
	time.Sleep(5 * time.Millisecond)

	if !m.Summary().IntegrityBroken {
		t.Fatal("integrity flag must not expire")
	}
	m.ResetIntegrity()
	if m.Summary().IntegrityBroken {
		t.Error("ResetIntegrity must clear the flag")
	}
}
