// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/thejerf/suture/v4"

	"github.com/tomtom215/audittrail/internal/logging"
)

// Runner is a component with a blocking, context-aware run loop:
// *audit.Sweeper, *eventbus.Bus and *websocket.Hub (via RunWithContext).
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context) error

// Run implements Runner.
func (f RunnerFunc) Run(ctx context.Context) error { return f(ctx) }

// RunnerService supervises a Runner under a fixed name.
type RunnerService struct {
	runner Runner
	name   string
}

// NewRunnerService wraps runner.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{runner: runner, name: name}
}

// Serve implements suture.Service.
func (s *RunnerService) Serve(ctx context.Context) error {
	return s.runner.Run(ctx)
}

func (s *RunnerService) String() string {
	return s.name
}

// ProcessorService supervises the audit processor.
//
// The processor returns nil once it has drained a closed queue. Outside of
// shutdown that means nothing can be ingested any more, so the service is
// not restarted.
type ProcessorService struct {
	processor Runner
}

// NewProcessorService wraps an *audit.Processor.
func NewProcessorService(processor Runner) *ProcessorService {
	return &ProcessorService{processor: processor}
}

// Serve implements suture.Service.
func (s *ProcessorService) Serve(ctx context.Context) error {
	if err := s.processor.Run(ctx); err != nil {
		return fmt.Errorf("audit processor: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	logging.Warn().Msg("audit queue closed, processor will not be restarted")
	return suture.ErrDoNotRestart
}

func (s *ProcessorService) String() string {
	return "audit-processor"
}

// PolicyRefresher matches *audit.Policy.
type PolicyRefresher interface {
	Run(ctx context.Context, interval time.Duration) error
}

// NewPolicyRefreshService reloads audit policy rules every interval, picking
// up changes made by other instances sharing the store.
func NewPolicyRefreshService(policy PolicyRefresher, interval time.Duration) *RunnerService {
	return NewRunnerService("policy-refresh", RunnerFunc(func(ctx context.Context) error {
		return policy.Run(ctx, interval)
	}))
}

// GarbageCollector matches *spool.BadgerSpool.
type GarbageCollector interface {
	RunGC() error
}

// SpoolGCService periodically reclaims spool value-log space.
type SpoolGCService struct {
	spool    GarbageCollector
	interval time.Duration
}

// NewSpoolGCService creates the service. A non-positive interval means 10m.
func NewSpoolGCService(spool GarbageCollector, interval time.Duration) *SpoolGCService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &SpoolGCService{spool: spool, interval: interval}
}

// Serve implements suture.Service. GC errors are logged, not returned: a
// failed collection is retried on the next tick.
func (s *SpoolGCService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.spool.RunGC(); err != nil {
				logging.Warn().Err(err).Msg("spool garbage collection failed")
			}
		}
	}
}

func (s *SpoolGCService) String() string {
	return "spool-gc"
}
