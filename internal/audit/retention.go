// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/audittrail/internal/logging"
	"github.com/tomtom215/audittrail/internal/metrics"
)

// Sweeper deletes audit events past their retention window.
type Sweeper struct {
	store    Store
	days     int
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a sweeper that keeps days of history and runs every
// interval.
func NewSweeper(store Store, days int, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &Sweeper{store: store, days: days, interval: interval, now: time.Now}
}

// Cleanup deletes events older than retentionDays and events whose
// explicit expiration has passed. Permanently retained events and the
// chain head are never touched. It returns the number of events deleted.
func (s *Sweeper) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	if retentionDays < 1 {
		return 0, fmt.Errorf("%w: retention days must be at least 1, got %d", ErrInvalidArgument, retentionDays)
	}

	now := s.now().UTC()
	cutoff := now.AddDate(0, 0, -retentionDays)

	deleted, err := s.store.DeleteExpired(ctx, cutoff, now)
	metrics.RecordRetentionRun(deleted, err)
	if err != nil {
		return 0, fmt.Errorf("delete expired audit events: %w", err)
	}

	if deleted > 0 {
		logging.Ctx(ctx).Info().
			Int64("count", deleted).
			Int("retention_days", retentionDays).
			Time("cutoff", cutoff).
			Msg("Cleaned up old audit events")
	}
	return deleted, nil
}

// Run cleans up once at start and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	if _, err := s.Cleanup(ctx, s.days); err != nil {
		logging.Error().Err(err).Msg("Audit cleanup error")
	}
}
