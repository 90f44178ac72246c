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
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/audittrail/internal/logging"
	"github.com/tomtom215/audittrail/internal/metrics"
)

// PolicyFilter decides whether events for a module/process pair are kept.
type PolicyFilter interface {
	IsAuditEnabled(module, process string) bool
}

// Spool keeps events that could not be flushed at shutdown so the next
// run can persist them.
type Spool interface {
	Load(ctx context.Context) ([]*Event, error)
	Save(ctx context.Context, events []*Event) error
	Clear(ctx context.Context) error
}

// ProcessorConfig configures batching, retries and shutdown.
type ProcessorConfig struct {
	BatchSize      int
	MaxRetries     int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	WriteTimeout   time.Duration
	DrainTimeout   time.Duration

	// BreakerFailureThreshold consecutive failed writes open the breaker
	// for BreakerOpenTimeout.
	BreakerFailureThreshold uint32
	BreakerOpenTimeout      time.Duration
}

// DefaultProcessorConfig returns production defaults.
func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		BatchSize:               100,
		MaxRetries:              5,
		RetryBaseDelay:          100 * time.Millisecond,
		RetryMaxDelay:           5 * time.Second,
		WriteTimeout:            10 * time.Second,
		DrainTimeout:            10 * time.Second,
		BreakerFailureThreshold: 5,
		BreakerOpenTimeout:      30 * time.Second,
	}
}

func (c *ProcessorConfig) applyDefaults() {
	d := DefaultProcessorConfig()
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMaxDelay < c.RetryBaseDelay {
		c.RetryMaxDelay = c.RetryBaseDelay
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = d.DrainTimeout
	}
	if c.BreakerFailureThreshold == 0 {
		c.BreakerFailureThreshold = d.BreakerFailureThreshold
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = d.BreakerOpenTimeout
	}
}

// ProcessorStatus is a point-in-time view of the processor for health checks.
type ProcessorStatus struct {
	Running             bool       `json:"running"`
	LastSequence        int64      `json:"last_sequence"`
	Pending             int64      `json:"pending"`
	QueueDepth          int        `json:"queue_depth"`
	Dropped             int64      `json:"dropped"`
	Suppressed          int64      `json:"suppressed"`
	Persisted           int64      `json:"persisted"`
	Lost                int64      `json:"lost"`
	ConsecutiveFailures int64      `json:"consecutive_failures"`
	LastError           string     `json:"last_error,omitempty"`
	LastErrorAt         *time.Time `json:"last_error_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
	BreakerState        string     `json:"breaker_state"`
}

// Processor is the single consumer of the queue. It filters events by
// policy, links them into the chain and writes them in batches.
//
// Sequence numbers are assigned only here, so they are contiguous in
// commit order no matter how many goroutines call Log.
type Processor struct {
	cfg      ProcessorConfig
	queue    *Queue
	store    Store
	filter   PolicyFilter
	spool    Spool
	notifier Notifier
	breaker  *gobreaker.CircuitBreaker[struct{}]

	// chain is owned by the Run goroutine.
	chain *Chain

	running      atomic.Bool
	lastSequence atomic.Int64
	persisted    atomic.Int64
	suppressed   atomic.Int64
	lost         atomic.Int64
	failures     atomic.Int64

	mu            sync.Mutex
	lastError     error
	lastErrorAt   time.Time
	lastSuccessAt time.Time
}

// NewProcessor creates a processor. spool and notifier may be nil.
func NewProcessor(cfg ProcessorConfig, queue *Queue, store Store, filter PolicyFilter, spool Spool, notifier Notifier) *Processor {
	cfg.applyDefaults()

	p := &Processor{
		cfg:      cfg,
		queue:    queue,
		store:    store,
		filter:   filter,
		spool:    spool,
		notifier: notifier,
		chain:    NewChain(ChainHead{}),
	}

	p.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "audit-store",
		MaxRequests: 1,
		Timeout:     cfg.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailureThreshold
		},
		// A conflict or rejected event means the store is reachable.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrChainConflict) || errors.Is(err, ErrEventRejected)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.AuditCircuitBreakerState.Set(float64(to))
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("audit store circuit breaker state changed")
		},
	})
	return p
}

// Run consumes the queue until ctx is canceled or the queue is closed,
// then drains what it can within the drain timeout.
func (p *Processor) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return errors.New("audit processor already running")
	}
	defer p.running.Store(false)

	log := logging.WithComponent("audit-processor")

	if err := p.loadHead(ctx); err != nil {
		return err
	}
	p.replaySpool(ctx)

	log.Info().
		Int64("last_sequence", p.chain.Head().Sequence).
		Int("batch_size", p.cfg.BatchSize).
		Msg("audit processor started")

	for {
		batch, err := p.queue.DequeueBatch(ctx, p.cfg.BatchSize)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				p.drain(ctx)
				return nil
			}
			return fmt.Errorf("dequeue: %w", err)
		}

		if err := p.processBatch(ctx, batch); err != nil && ctx.Err() == nil {
			// The batch is back in the queue. Pause before taking it again.
			if !sleepCtx(ctx, p.cfg.RetryMaxDelay) {
				p.drain(ctx)
				return nil
			}
		}
	}
}

// loadHead positions the chain after the last committed event.
func (p *Processor) loadHead(ctx context.Context) error {
	head, err := p.store.ChainHead(ctx)
	if err != nil {
		return fmt.Errorf("%w: load chain head: %w", ErrStoreUnavailable, err)
	}
	p.chain.Reset(head)
	p.lastSequence.Store(head.Sequence)
	metrics.AuditLastSequence.Set(float64(head.Sequence))
	return nil
}

// replaySpool queues events saved by a previous shutdown ahead of new traffic.
func (p *Processor) replaySpool(ctx context.Context) {
	if p.spool == nil {
		return
	}
	events, err := p.spool.Load(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("failed to load audit spool")
		return
	}
	if len(events) == 0 {
		return
	}

	p.queue.Restore(events)
	if err := p.spool.Clear(ctx); err != nil {
		logging.Error().Err(err).Msg("failed to clear audit spool after replay")
	}
	logging.Info().Int("events", len(events)).Msg("replayed spooled audit events")
}

// processBatch persists batch. On failure the unsuppressed events are
// returned to the head of the queue and the error is returned.
func (p *Processor) processBatch(ctx context.Context, batch []*Event) error {
	kept := batch[:0]
	var suppressed int
	for _, e := range batch {
		if p.filter != nil && !p.filter.IsAuditEnabled(e.Module, e.Process) {
			suppressed++
			metrics.AuditEventsSuppressed.WithLabelValues(e.Module).Inc()
			continue
		}
		kept = append(kept, e)
	}
	if suppressed > 0 {
		p.queue.Done(suppressed)
		p.suppressed.Add(int64(suppressed))
	}
	if len(kept) == 0 {
		return nil
	}

	for _, e := range kept {
		p.chain.Prepare(e)
	}

	start := time.Now()
	err := p.writeWithRetry(ctx, kept)
	switch {
	case err == nil:
		p.commit(kept, start)
		return nil
	case errors.Is(err, ErrEventRejected):
		p.abandon(kept)
		if len(kept) == 1 {
			p.discard(kept[0], err)
			return nil
		}
		return p.isolate(ctx, kept)
	}
	p.abandon(kept)
	return p.requeue(ctx, kept, err)
}

// isolate writes events one at a time after the store rejected their
// batch, so only the events it refuses are discarded.
func (p *Processor) isolate(ctx context.Context, events []*Event) error {
	for i, e := range events {
		single := events[i : i+1]
		p.chain.Prepare(e)

		start := time.Now()
		err := p.writeWithRetry(ctx, single)
		switch {
		case err == nil:
			p.commit(single, start)
		case errors.Is(err, ErrEventRejected):
			p.abandon(single)
			p.discard(e, err)
		default:
			p.abandon(single)
			return p.requeue(ctx, events[i:], err)
		}
	}
	return nil
}

// commit advances the chain past events the store has persisted.
func (p *Processor) commit(events []*Event, start time.Time) {
	p.chain.Commit()
	last := events[len(events)-1].SequenceNumber
	p.queue.Done(len(events))
	p.lastSequence.Store(last)
	p.persisted.Add(int64(len(events)))
	p.recordSuccess()
	metrics.RecordBatchWrite(len(events), time.Since(start), last)

	if p.notifier != nil {
		p.notifier.PublishPersisted(events)
	}
}

// abandon undoes Prepare for events that were not written.
func (p *Processor) abandon(events []*Event) {
	p.chain.Rollback()
	for _, e := range events {
		e.clearChain()
	}
}

// requeue returns events to the head of the queue after a failed write.
func (p *Processor) requeue(ctx context.Context, events []*Event, err error) error {
	p.queue.PushFront(events)
	p.recordFailure(err)
	metrics.AuditStoreFailures.WithLabelValues("exhausted").Inc()

	if errors.Is(err, ErrChainConflict) {
		if herr := p.loadHead(ctx); herr != nil {
			logging.Error().Err(herr).Msg("failed to reload chain head after conflict")
		}
	}

	logging.Error().Err(err).Int("events", len(events)).Msg("audit batch write failed, events requeued")
	p.alert(Alert{
		Kind:    AlertStoreUnavailable,
		Message: "audit store write failed",
		Error:   err.Error(),
		Count:   len(events),
	})
	return err
}

// discard drops an event the store refuses. Requeueing it would block
// every event behind it.
func (p *Processor) discard(e *Event, err error) {
	p.queue.Done(1)
	p.lost.Add(1)
	metrics.AuditEventsLost.Inc()
	metrics.AuditStoreFailures.WithLabelValues("rejected").Inc()
	logging.Error().
		Err(err).
		Str("action", e.Action).
		Str("module", e.Module).
		Str("entity_id", e.EntityID).
		Msg("audit event rejected by store, discarded")
	p.alert(Alert{
		Kind:    AlertEventsLost,
		Message: "audit event rejected by store",
		Error:   err.Error(),
		Count:   1,
	})
}

// writeWithRetry writes events with exponential backoff. Each attempt gets
// its own timeout and survives cancellation of ctx so a write in flight at
// shutdown can finish; ctx only cuts the backoff short.
func (p *Processor) writeWithRetry(ctx context.Context, events []*Event) error {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if !sleepCtx(ctx, p.backoff(attempt)) {
				return fmt.Errorf("%w: %w", ErrStoreUnavailable, lastErr)
			}
		}

		err := p.write(ctx, events)
		if err == nil {
			return nil
		}
		metrics.AuditStoreFailures.WithLabelValues("attempt").Inc()

		// The failed write may have committed before the error surfaced.
		if p.committed(ctx, events) {
			return nil
		}
		if errors.Is(err, ErrChainConflict) || errors.Is(err, ErrEventRejected) {
			return err
		}

		lastErr = err
		logging.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Int("max_attempts", p.cfg.MaxRetries+1).
			Msg("audit batch write attempt failed")
	}
	return fmt.Errorf("%w: after %d attempts: %w", ErrStoreUnavailable, p.cfg.MaxRetries+1, lastErr)
}

func (p *Processor) write(ctx context.Context, events []*Event) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.WriteTimeout)
	defer cancel()

	_, err := p.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, p.store.AppendBatch(writeCtx, events)
	})
	return err
}

// committed reports whether the stored head already ends with events.
func (p *Processor) committed(ctx context.Context, events []*Event) bool {
	checkCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.WriteTimeout)
	defer cancel()

	head, err := p.store.ChainHead(checkCtx)
	if err != nil {
		return false
	}
	last := events[len(events)-1]
	return head.Sequence == last.SequenceNumber && head.Hash == last.ContentHash
}

// backoff returns the delay before the given retry attempt.
func (p *Processor) backoff(attempt int) time.Duration {
	delay := p.cfg.RetryBaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.cfg.RetryMaxDelay {
			return p.cfg.RetryMaxDelay
		}
	}
	return delay
}

// drain closes the queue and flushes it within the drain timeout. Events
// left over are counted as lost and written to the spool when configured.
func (p *Processor) drain(ctx context.Context) {
	p.queue.Close()

	drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.DrainTimeout)
	defer cancel()

	for drainCtx.Err() == nil {
		batch := p.queue.TryDequeueBatch(p.cfg.BatchSize)
		if len(batch) == 0 {
			break
		}
		if err := p.processBatch(drainCtx, batch); err != nil {
			sleepCtx(drainCtx, p.cfg.RetryBaseDelay)
		}
	}

	var leftover []*Event
	for {
		batch := p.queue.TryDequeueBatch(p.cfg.BatchSize)
		if len(batch) == 0 {
			break
		}
		leftover = append(leftover, batch...)
	}

	if len(leftover) == 0 {
		logging.Info().Int64("last_sequence", p.lastSequence.Load()).Msg("audit processor drained")
		return
	}

	p.queue.Done(len(leftover))
	p.lost.Add(int64(len(leftover)))
	metrics.AuditEventsLost.Add(float64(len(leftover)))
	logging.Error().
		Int("events", len(leftover)).
		Dur("drain_timeout", p.cfg.DrainTimeout).
		Msg("audit events not flushed before shutdown")
	p.alert(Alert{
		Kind:    AlertEventsLost,
		Message: "audit events not flushed before shutdown",
		Count:   len(leftover),
	})

	if p.spool == nil {
		return
	}
	spoolCtx, cancelSpool := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.WriteTimeout)
	defer cancelSpool()
	if err := p.spool.Save(spoolCtx, leftover); err != nil {
		logging.Error().Err(err).Int("events", len(leftover)).Msg("failed to spool unflushed audit events")
		return
	}
	metrics.AuditEventsSpooled.Add(float64(len(leftover)))
	logging.Warn().Int("events", len(leftover)).Msg("unflushed audit events spooled for next start")
}

func (p *Processor) alert(a Alert) {
	if p.notifier == nil {
		return
	}
	if a.At.IsZero() {
		a.At = time.Now().UTC()
	}
	p.notifier.PublishAlert(a)
}

func (p *Processor) recordFailure(err error) {
	p.failures.Add(1)
	p.mu.Lock()
	p.lastError = err
	p.lastErrorAt = time.Now().UTC()
	p.mu.Unlock()
}

func (p *Processor) recordSuccess() {
	p.failures.Store(0)
	p.mu.Lock()
	p.lastSuccessAt = time.Now().UTC()
	p.mu.Unlock()
}

// Status returns the current processor status.
func (p *Processor) Status() ProcessorStatus {
	s := ProcessorStatus{
		Running:             p.running.Load(),
		LastSequence:        p.lastSequence.Load(),
		Pending:             p.queue.Pending(),
		QueueDepth:          p.queue.Len(),
		Dropped:             p.queue.Dropped(),
		Suppressed:          p.suppressed.Load(),
		Persisted:           p.persisted.Load(),
		Lost:                p.lost.Load(),
		ConsecutiveFailures: p.failures.Load(),
		BreakerState:        p.breaker.State().String(),
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastError != nil {
		s.LastError = p.lastError.Error()
		t := p.lastErrorAt
		s.LastErrorAt = &t
	}
	if !p.lastSuccessAt.IsZero() {
		t := p.lastSuccessAt
		s.LastSuccessAt = &t
	}
	return s
}

// Ready returns an error while the processor is stopped or the store
// breaker is open.
func (p *Processor) Ready() error {
	if !p.running.Load() {
		return errors.New("audit processor not running")
	}
	if p.breaker.State() == gobreaker.StateOpen {
		return fmt.Errorf("%w: circuit breaker open", ErrStoreUnavailable)
	}
	return nil
}

// sleepCtx waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
