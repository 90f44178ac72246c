// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/audittrail/internal/metrics"
)

// Queue is the bounded buffer between producers and the processor.
//
// When full, Enqueue evicts the oldest queued INFO/WARNING event to make
// room. ERROR and CRITICAL events are never evicted; if nothing can be
// evicted the producer waits up to the enqueue timeout for space.
//
// Queue supports many producers and a single consumer.
type Queue struct {
	mu       sync.Mutex
	items    []*Event
	capacity int
	timeout  time.Duration
	closed   bool

	// notEmpty holds at most one wakeup token for the consumer.
	notEmpty chan struct{}

	// notFull is closed and replaced to wake every waiting producer.
	notFull     chan struct{}
	fullWaiters int

	pending atomic.Int64
	dropped atomic.Int64

	onDrop func(*Event)
}

// NewQueue creates a queue holding at most capacity events.
func NewQueue(capacity int, enqueueTimeout time.Duration) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		items:    make([]*Event, 0, min(capacity, 1024)),
		capacity: capacity,
		timeout:  enqueueTimeout,
		notEmpty: make(chan struct{}, 1),
		notFull:  make(chan struct{}),
	}
}

// OnDrop registers a callback for evicted events. It is called without the
// queue lock held and must be set before the queue is shared.
func (q *Queue) OnDrop(fn func(*Event)) {
	q.onDrop = fn
}

// Enqueue adds e to the tail of the queue.
func (q *Queue) Enqueue(ctx context.Context, e *Event) error {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	q.mu.Lock()
	for {
		if q.closed {
			q.mu.Unlock()
			return ErrQueueClosed
		}

		if len(q.items) < q.capacity {
			q.items = append(q.items, e)
			q.accepted()
			q.mu.Unlock()
			return nil
		}

		if idx := q.oldestEvictable(); idx >= 0 {
			victim := q.items[idx]
			copy(q.items[idx:], q.items[idx+1:])
			q.items[len(q.items)-1] = e
			// The victim is released by the OnDrop owner through Done.
			q.accepted()
			q.mu.Unlock()

			q.dropped.Add(1)
			if q.onDrop != nil {
				q.onDrop(victim)
			}
			return nil
		}

		if q.timeout <= 0 {
			q.mu.Unlock()
			return ErrQueueSaturated
		}
		if timer == nil {
			timer = time.NewTimer(q.timeout)
		}

		wait := q.notFull
		q.fullWaiters++
		q.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			q.mu.Lock()
			q.fullWaiters--
			q.mu.Unlock()
			return ErrQueueSaturated
		case <-ctx.Done():
			q.mu.Lock()
			q.fullWaiters--
			q.mu.Unlock()
			return fmt.Errorf("%w: %v", ErrQueueSaturated, ctx.Err())
		}

		q.mu.Lock()
		q.fullWaiters--
	}
}

// accepted records a new event. Caller holds q.mu.
func (q *Queue) accepted() {
	metrics.AuditQueuePending.Set(float64(q.pending.Add(1)))
	q.signalNotEmpty()
}

// oldestEvictable returns the index of the oldest INFO/WARNING event, or -1.
func (q *Queue) oldestEvictable() int {
	for i, e := range q.items {
		if e.Severity.evictable() {
			return i
		}
	}
	return -1
}

func (q *Queue) signalNotEmpty() {
	select {
	case q.notEmpty <- struct{}{}:
	default:
	}
}

func (q *Queue) signalNotFull() {
	if q.fullWaiters > 0 {
		close(q.notFull)
		q.notFull = make(chan struct{})
	}
}

// DequeueBatch removes up to limit events from the head of the queue,
// waiting until at least one is available. It returns ErrQueueClosed once
// the queue is closed and empty.
func (q *Queue) DequeueBatch(ctx context.Context, limit int) ([]*Event, error) {
	for {
		if batch := q.TryDequeueBatch(limit); len(batch) > 0 {
			return batch, nil
		}

		q.mu.Lock()
		closed := q.closed && len(q.items) == 0
		q.mu.Unlock()
		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-q.notEmpty:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// TryDequeueBatch removes up to limit events without waiting.
func (q *Queue) TryDequeueBatch(limit int) []*Event {
	if limit < 1 {
		limit = 1
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(limit, len(q.items))
	if n == 0 {
		return nil
	}

	batch := make([]*Event, n)
	copy(batch, q.items[:n])
	clear(q.items[:n])
	q.items = q.items[n:]
	q.signalNotFull()
	return batch
}

// PushFront returns events to the head of the queue in their original
// order. The capacity bound does not apply, so a failed batch is never lost.
func (q *Queue) PushFront(events []*Event) {
	if len(events) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	items := make([]*Event, 0, len(events)+len(q.items))
	items = append(items, events...)
	q.items = append(items, q.items...)
	q.signalNotEmpty()
}

// Restore adds events recovered from a previous run ahead of new traffic.
func (q *Queue) Restore(events []*Event) {
	if len(events) == 0 {
		return
	}
	metrics.AuditQueuePending.Set(float64(q.pending.Add(int64(len(events)))))
	q.PushFront(events)
}

// Done marks n events as finished: persisted, suppressed or lost.
func (q *Queue) Done(n int) {
	if n <= 0 {
		return
	}
	metrics.AuditQueuePending.Set(float64(q.pending.Add(-int64(n))))
}

// Close rejects further Enqueue calls and wakes any waiters. Events already
// queued remain available to the consumer.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.notFull)
	q.notFull = make(chan struct{})
	q.signalNotEmpty()
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns the queue bound.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Pending returns the number of accepted events not yet finished.
func (q *Queue) Pending() int64 {
	return q.pending.Load()
}

// Dropped returns the number of events evicted under saturation.
func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
