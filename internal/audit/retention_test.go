// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSweeper_Cleanup(t *testing.T) {
	t.Parallel()

	now := baseTime
	store := NewMemoryStore()

	old := newEvent(ActionUpdate, "Asset", "old")
	old.Timestamp = now.AddDate(0, 0, -40)

	oldPermanent := newEvent(ActionDelete, "Asset", "old-permanent")
	oldPermanent.Timestamp = now.AddDate(0, 0, -40)
	oldPermanent.PermanentRetention = true

	recent := newEvent(ActionUpdate, "Asset", "recent")
	recent.Timestamp = now.AddDate(0, 0, -10)

	expired := newEvent(ActionUpdate, "Asset", "expired")
	expired.Timestamp = now.AddDate(0, 0, -2)
	expiredAt := now.Add(-time.Hour)
	expired.ExpiresAt = &expiredAt

	appendChained(t, store, old, oldPermanent, recent, expired)
	headBefore, _ := store.ChainHead(context.Background())

	s := NewSweeper(store, 30, time.Hour)
	s.now = func() time.Time { return now }

	deleted, err := s.Cleanup(context.Background(), 30)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 deleted, got %d", deleted)
	}

	remaining, _ := store.ListBySequence(context.Background(), 1, 10, 0)
	if len(remaining) != 2 || remaining[0].EntityID != "old-permanent" || remaining[1].EntityID != "recent" {
		t.Errorf("unexpected survivors: %+v", remaining)
	}

	headAfter, _ := store.ChainHead(context.Background())
	if headAfter != headBefore {
		t.Errorf("cleanup must not touch the chain head: %+v -> %+v", headBefore, headAfter)
	}

	// The chain continues from the retained head, not from the survivors.
	next := newEvent(ActionCreate, "Asset", "next")
	appendChained(t, store, next)
	if next.SequenceNumber != 5 {
		t.Errorf("sequence numbers must never be reused, got %d", next.SequenceNumber)
	}
}

func TestSweeper_CleanupRejectsInvalidDays(t *testing.T) {
	t.Parallel()

	s := NewSweeper(NewMemoryStore(), 30, time.Hour)
	for _, days := range []int{0, -1} {
		if _, err := s.Cleanup(context.Background(), days); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("days %d: expected ErrInvalidArgument, got %v", days, err)
		}
	}
}

func TestSweeper_RunSweepsImmediately(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	old := newEvent(ActionUpdate, "Asset", "old")
	old.Timestamp = time.Now().AddDate(0, 0, -400)
	appendChained(t, store, old)

	s := NewSweeper(store, 365, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	waitFor(t, 2*time.Second, func() bool { return store.Len() == 0 })
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
