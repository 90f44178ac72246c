// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// baseTime is a fixed reference instant for deterministic fixtures.
var baseTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

// newEvent returns a minimal valid event.
func newEvent(action, entity, id string) *Event {
	return &Event{
		Action:      action,
		EntityName:  entity,
		EntityID:    id,
		Description: action + " " + entity + " " + id,
		Severity:    SeverityInfo,
		Category:    CategoryCRUD,
		Module:      entity,
		Process:     action,
		Timestamp:   baseTime,
		Success:     true,
	}
}

// appendChained links events after the store's head and persists them.
func appendChained(t *testing.T, store Store, events ...*Event) {
	t.Helper()
	ctx := context.Background()

	head, err := store.ChainHead(ctx)
	if err != nil {
		t.Fatalf("ChainHead failed: %v", err)
	}
	chain := NewChain(head)
	for _, e := range events {
		chain.Prepare(e)
	}
	if err := store.AppendBatch(ctx, events); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
}

// waitFor polls cond until it holds or timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

var errStoreDown = errors.New("connection refused")

// flakyStore fails AppendBatch on demand.
type flakyStore struct {
	*MemoryStore

	// failNext fails that many upcoming writes.
	failNext atomic.Int64

	// down fails every write while set.
	down atomic.Bool

	// commitThenFail persists the next write but reports an error.
	commitThenFail atomic.Bool

	// rejectEntity refuses every batch holding an event for this entity ID.
	// Set it before the store is shared.
	rejectEntity string

	attempts atomic.Int64
}

func newFlakyStore() *flakyStore {
	return &flakyStore{MemoryStore: NewMemoryStore()}
}

func (s *flakyStore) AppendBatch(ctx context.Context, events []*Event) error {
	s.attempts.Add(1)
	if s.down.Load() {
		return errStoreDown
	}
	if s.failNext.Load() > 0 {
		s.failNext.Add(-1)
		return errStoreDown
	}
	for _, e := range events {
		if s.rejectEntity != "" && e.EntityID == s.rejectEntity {
			return fmt.Errorf("%w: insert event %d: invalid byte sequence for encoding", ErrEventRejected, e.SequenceNumber)
		}
	}
	if s.commitThenFail.CompareAndSwap(true, false) {
		if err := s.MemoryStore.AppendBatch(ctx, events); err != nil {
			return err
		}
		return context.DeadlineExceeded
	}
	return s.MemoryStore.AppendBatch(ctx, events)
}

// recordingNotifier captures everything published to it.
type recordingNotifier struct {
	mu        sync.Mutex
	persisted []*Event
	alerts    []Alert
}

func (n *recordingNotifier) PublishPersisted(events []*Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.persisted = append(n.persisted, events...)
}

func (n *recordingNotifier) PublishAlert(a Alert) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, a)
}

func (n *recordingNotifier) alertCount(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, a := range n.alerts {
		if a.Kind == kind {
			count++
		}
	}
	return count
}

func (n *recordingNotifier) persistedCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.persisted)
}

// memSpool is an in-memory Spool.
type memSpool struct {
	mu     sync.Mutex
	events []*Event
}

func (s *memSpool) Load(ctx context.Context) ([]*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...), nil
}

func (s *memSpool) Save(ctx context.Context, events []*Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

func (s *memSpool) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return nil
}

func (s *memSpool) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// assertContiguous checks that the store holds sequences 1..n linked in order.
func assertContiguous(t *testing.T, store Store, n int) {
	t.Helper()
	events, err := store.ListBySequence(context.Background(), 1, int64(n)+100, 0)
	if err != nil {
		t.Fatalf("ListBySequence failed: %v", err)
	}
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
	prevHash := GenesisHash
	for i := range events {
		e := &events[i]
		if e.SequenceNumber != int64(i+1) {
			t.Fatalf("event %d: expected sequence %d, got %d", i, i+1, e.SequenceNumber)
		}
		if e.PreviousHash != prevHash {
			t.Fatalf("event %d: previous hash does not link to predecessor", e.SequenceNumber)
		}
		if got := ComputeHash(e); got != e.ContentHash {
			t.Fatalf("event %d: content hash mismatch", e.SequenceNumber)
		}
		prevHash = e.ContentHash
	}
}
