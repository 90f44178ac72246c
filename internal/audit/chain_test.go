// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestComputeHash_Deterministic(t *testing.T) {
	t.Parallel()

	a := newEvent(ActionUpdate, "WorkOrder", "WO-1")
	a.AdditionalData = json.RawMessage(`{"b":2,"a":1}`)
	a.SequenceNumber = 7
	a.PreviousHash = GenesisHash
	b := *a

	if ComputeHash(a) != ComputeHash(&b) {
		t.Fatal("identical events produced different hashes")
	}
	if got := len(ComputeHash(a)); got != 64 {
		t.Errorf("expected 64 hex characters, got %d", got)
	}
}

func TestComputeHash_DetectsFieldChanges(t *testing.T) {
	t.Parallel()

	base := newEvent(ActionUpdate, "WorkOrder", "WO-1")
	base.SequenceNumber = 3
	base.PreviousHash = GenesisHash
	base.AdditionalData = json.RawMessage(`{"a":1}`)
	want := ComputeHash(base)

	tests := []struct {
		name   string
		mutate func(e *Event)
	}{
		{"description", func(e *Event) { e.Description = "edited" }},
		{"user name", func(e *Event) { e.UserName = "mallory" }},
		{"sequence", func(e *Event) { e.SequenceNumber = 4 }},
		{"previous hash", func(e *Event) { e.PreviousHash = ComputeHash(e) }},
		{"timestamp", func(e *Event) { e.Timestamp = e.Timestamp.Add(time.Second) }},
		{"severity", func(e *Event) { e.Severity = SeverityCritical }},
		{"success", func(e *Event) { e.Success = false }},
		{"retention", func(e *Event) { e.PermanentRetention = true }},
		{"additional data whitespace", func(e *Event) { e.AdditionalData = json.RawMessage(`{"a": 1}`) }},
		{"field boundary", func(e *Event) { e.EntityName, e.EntityID = "WorkOrderW", "O-1" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e := *base
			tt.mutate(&e)
			if ComputeHash(&e) == want {
				t.Errorf("hash unchanged after modifying %s", tt.name)
			}
		})
	}
}

func TestComputeHash_IgnoresStoreAssignedFields(t *testing.T) {
	t.Parallel()

	e := newEvent(ActionCreate, "Asset", "A-9")
	want := ComputeHash(e)

	e.ID = 1234
	e.IntegrityVerified = true
	e.ContentHash = "deadbeef"
	if got := ComputeHash(e); got != want {
		t.Error("ID, ContentHash and IntegrityVerified must not affect the hash")
	}
}

func TestComputeHash_TimeNormalization(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC+2", 2*60*60)
	precise := time.Date(2026, 3, 14, 11, 30, 0, 123456789, loc)

	a := newEvent(ActionCreate, "Asset", "A-1")
	a.Timestamp = precise
	b := newEvent(ActionCreate, "Asset", "A-1")
	b.Timestamp = precise.UTC().Truncate(time.Microsecond)

	if ComputeHash(a) != ComputeHash(b) {
		t.Error("timestamps equal at microsecond precision in UTC must hash identically")
	}
}

func TestChain_PrepareLinksEvents(t *testing.T) {
	t.Parallel()

	chain := NewChain(ChainHead{})
	first := newEvent(ActionCreate, "Asset", "A-1")
	second := newEvent(ActionUpdate, "Asset", "A-1")

	seq, hash := chain.Prepare(first)
	if seq != 1 || first.SequenceNumber != 1 {
		t.Errorf("expected first sequence 1, got %d", seq)
	}
	if first.PreviousHash != GenesisHash {
		t.Errorf("expected genesis previous hash, got %s", first.PreviousHash)
	}
	if hash != first.ContentHash || hash != ComputeHash(first) {
		t.Error("returned hash must match the event's content hash")
	}

	chain.Prepare(second)
	if second.SequenceNumber != 2 {
		t.Errorf("expected second sequence 2, got %d", second.SequenceNumber)
	}
	if second.PreviousHash != first.ContentHash {
		t.Error("second event must link to the first")
	}
}

func TestChain_CommitAndRollback(t *testing.T) {
	t.Parallel()

	chain := NewChain(ChainHead{Sequence: 10, Hash: "abc"})

	e := newEvent(ActionCreate, "Asset", "A-1")
	chain.Prepare(e)
	if head := chain.Head(); head.Sequence != 10 {
		t.Errorf("head must not move before Commit, got %d", head.Sequence)
	}

	chain.Rollback()
	retry := newEvent(ActionCreate, "Asset", "A-1")
	chain.Prepare(retry)
	if retry.SequenceNumber != 11 || retry.PreviousHash != "abc" {
		t.Errorf("after rollback expected sequence 11 linked to abc, got %d/%s", retry.SequenceNumber, retry.PreviousHash)
	}

	chain.Commit()
	if head := chain.Head(); head.Sequence != 11 || head.Hash != retry.ContentHash {
		t.Errorf("unexpected head after commit: %+v", head)
	}
}

func TestChain_PrepareNormalizesTimes(t *testing.T) {
	t.Parallel()

	chain := NewChain(ChainHead{})
	expires := time.Date(2027, 1, 1, 0, 0, 0, 999, time.FixedZone("X", 3600))
	e := newEvent(ActionCreate, "Asset", "A-1")
	e.Timestamp = time.Date(2026, 1, 1, 0, 0, 0, 1500, time.FixedZone("X", 3600))
	e.ExpiresAt = &expires

	chain.Prepare(e)

	if e.Timestamp.Location() != time.UTC || e.Timestamp.Nanosecond()%1000 != 0 {
		t.Errorf("timestamp not normalized: %v", e.Timestamp)
	}
	if e.ExpiresAt.Location() != time.UTC || e.ExpiresAt.Nanosecond() != 0 {
		t.Errorf("expiration not normalized: %v", e.ExpiresAt)
	}
	if expires.Nanosecond() != 999 {
		t.Error("caller's expiration value must not be modified")
	}
}
