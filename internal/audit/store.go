// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store persists audit events and the chain head.
type Store interface {
	// AppendBatch inserts events and advances the chain head in one
	// transaction, setting each event's ID. It returns ErrChainConflict if
	// the first event does not extend the stored head.
	AppendBatch(ctx context.Context, events []*Event) error

	// ChainHead returns the last committed sequence and hash. It survives
	// deletion of the events it points to.
	ChainHead(ctx context.Context) (ChainHead, error)

	Get(ctx context.Context, id int64) (*Event, error)

	// Search returns matching events ordered by timestamp then sequence
	// number, both descending.
	Search(ctx context.Context, filter SearchFilter, skip, take int) ([]Event, error)
	Count(ctx context.Context, filter SearchFilter) (int64, error)

	// ListBySequence returns up to limit events with sequence numbers in
	// [from, to] in ascending order.
	ListBySequence(ctx context.Context, from, to int64, limit int) ([]Event, error)

	// MarkIntegrity sets the integrity flag on events in [from, to].
	MarkIntegrity(ctx context.Context, from, to int64, verified bool) error

	// DeleteExpired removes events that are not permanently retained and
	// were created before createdBefore or expired before now.
	DeleteExpired(ctx context.Context, createdBefore, now time.Time) (int64, error)

	Stats(ctx context.Context) (*Stats, error)
}

// MemoryStore implements Store and PolicyStore using in-memory storage.
// Suitable for development and testing. Data is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	events   []Event // ascending sequence order
	head     ChainHead
	nextID   int64
	policies map[policyKey]PolicyRule
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		head:     ChainHead{Hash: GenesisHash},
		policies: make(map[policyKey]PolicyRule),
	}
}

// AppendBatch implements Store.
func (s *MemoryStore) AppendBatch(ctx context.Context, events []*Event) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkExtends(s.head, events); err != nil {
		return err
	}
	for _, e := range events {
		s.nextID++
		e.ID = s.nextID
		s.events = append(s.events, *e)
	}
	last := events[len(events)-1]
	s.head = ChainHead{Sequence: last.SequenceNumber, Hash: last.ContentHash}
	return nil
}

// checkExtends verifies that events continue the chain at head.
func checkExtends(head ChainHead, events []*Event) error {
	first := events[0]
	if first.SequenceNumber != head.Sequence+1 || first.PreviousHash != head.Hash {
		return fmt.Errorf("%w: head %d, batch starts at %d", ErrChainConflict, head.Sequence, first.SequenceNumber)
	}
	return nil
}

// ChainHead implements Store.
func (s *MemoryStore) ChainHead(ctx context.Context) (ChainHead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head, nil
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, id int64) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := range s.events {
		if s.events[i].ID == id {
			event := s.events[i]
			return &event, nil
		}
	}
	return nil, fmt.Errorf("%w: id %d", ErrNotFound, id)
}

// Search implements Store.
func (s *MemoryStore) Search(ctx context.Context, filter SearchFilter, skip, take int) ([]Event, error) {
	s.mu.RLock()
	matched := s.match(&filter)
	s.mu.RUnlock()

	sort.SliceStable(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].SequenceNumber > matched[j].SequenceNumber
	})

	if skip >= len(matched) {
		return []Event{}, nil
	}
	end := len(matched)
	if take > 0 && skip+take < end {
		end = skip + take
	}
	return matched[skip:end], nil
}

// Count implements Store.
func (s *MemoryStore) Count(ctx context.Context, filter SearchFilter) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.match(&filter))), nil
}

// match returns copies of the events matching filter. Caller holds s.mu.
func (s *MemoryStore) match(filter *SearchFilter) []Event {
	var results []Event
	for i := range s.events {
		if matchesFilter(&s.events[i], filter) {
			results = append(results, s.events[i])
		}
	}
	return results
}

// matchesFilter returns true if the event matches all filter criteria.
func matchesFilter(e *Event, f *SearchFilter) bool {
	if f.Text != "" && !strings.Contains(strings.ToLower(e.Description), strings.ToLower(f.Text)) {
		return false
	}
	if f.UserName != "" && !strings.Contains(strings.ToLower(e.UserName), strings.ToLower(f.UserName)) {
		return false
	}
	if f.Action != "" && e.Action != f.Action {
		return false
	}
	if f.EntityType != "" && e.EntityName != f.EntityType {
		return false
	}
	if f.EntityID != "" && e.EntityID != f.EntityID {
		return false
	}
	if f.Start != nil && e.Timestamp.Before(*f.Start) {
		return false
	}
	if f.End != nil && e.Timestamp.After(*f.End) {
		return false
	}
	return true
}

// ListBySequence implements Store.
func (s *MemoryStore) ListBySequence(ctx context.Context, from, to int64, limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.events), func(i int) bool {
		return s.events[i].SequenceNumber >= from
	})

	var results []Event
	for i := start; i < len(s.events) && s.events[i].SequenceNumber <= to; i++ {
		results = append(results, s.events[i])
		if limit > 0 && len(results) >= limit {
			break
		}
	}
	return results, nil
}

// MarkIntegrity implements Store.
func (s *MemoryStore) MarkIntegrity(ctx context.Context, from, to int64, verified bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.events {
		if seq := s.events[i].SequenceNumber; seq >= from && seq <= to {
			s.events[i].IntegrityVerified = verified
		}
	}
	return nil
}

// DeleteExpired implements Store.
func (s *MemoryStore) DeleteExpired(ctx context.Context, createdBefore, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.events[:0]
	var deleted int64
	for i := range s.events {
		if isExpired(&s.events[i], createdBefore, now) {
			deleted++
			continue
		}
		kept = append(kept, s.events[i])
	}
	clear(s.events[len(kept):])
	s.events = kept
	return deleted, nil
}

func isExpired(e *Event, createdBefore, now time.Time) bool {
	if e.PermanentRetention {
		return false
	}
	if e.Timestamp.Before(createdBefore) {
		return true
	}
	return e.ExpiresAt != nil && e.ExpiresAt.Before(now)
}

// Stats implements Store.
func (s *MemoryStore) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{
		TotalEvents:      int64(len(s.events)),
		EventsBySeverity: make(map[string]int64),
		EventsByCategory: make(map[string]int64),
		Head:             s.head,
	}

	for idx := range s.events {
		event := &s.events[idx]
		stats.EventsBySeverity[string(event.Severity)]++
		stats.EventsByCategory[string(event.Category)]++
		if event.PermanentRetention {
			stats.PermanentEvents++
		}

		if stats.OldestEvent == nil || event.Timestamp.Before(*stats.OldestEvent) {
			t := event.Timestamp
			stats.OldestEvent = &t
		}
		if stats.NewestEvent == nil || event.Timestamp.After(*stats.NewestEvent) {
			t := event.Timestamp
			stats.NewestEvent = &t
		}
	}

	return stats, nil
}

// ListPolicies implements PolicyStore.
func (s *MemoryStore) ListPolicies(ctx context.Context) ([]PolicyRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]PolicyRule, 0, len(s.policies))
	for _, r := range s.policies {
		rules = append(rules, r)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Module != rules[j].Module {
			return rules[i].Module < rules[j].Module
		}
		return rules[i].Process < rules[j].Process
	})
	return rules, nil
}

// SetPolicy implements PolicyStore.
func (s *MemoryStore) SetPolicy(ctx context.Context, rule PolicyRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[newPolicyKey(rule.Module, rule.Process)] = rule
	return nil
}

// Len returns the number of stored events.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
