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
)

// QueryConfig bounds search pages and exports.
type QueryConfig struct {
	DefaultPageSize int
	MaxPageSize     int
	MaxExportRows   int
}

// DefaultQueryConfig returns production defaults.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		DefaultPageSize: 50,
		MaxPageSize:     500,
		MaxExportRows:   100000,
	}
}

// QueryEngine serves searches and exports against a Store.
type QueryEngine struct {
	store Store
	cfg   QueryConfig
	now   func() time.Time
}

// NewQueryEngine creates a query engine. Zero config values take defaults.
func NewQueryEngine(store Store, cfg QueryConfig) *QueryEngine {
	d := DefaultQueryConfig()
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = d.MaxPageSize
	}
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = d.DefaultPageSize
	}
	if cfg.DefaultPageSize > cfg.MaxPageSize {
		cfg.DefaultPageSize = cfg.MaxPageSize
	}
	if cfg.MaxExportRows <= 0 {
		cfg.MaxExportRows = d.MaxExportRows
	}
	return &QueryEngine{store: store, cfg: cfg, now: time.Now}
}

func validateFilter(f *SearchFilter) error {
	if f.Start != nil && f.End != nil && f.Start.After(*f.End) {
		return fmt.Errorf("%w: start is after end", ErrInvalidArgument)
	}
	return nil
}

// Search returns one page of events matching f, newest first, with the
// total number of matches. Take is clamped to the configured page bounds.
func (q *QueryEngine) Search(ctx context.Context, f SearchFilter, page Pagination) (*SearchResult, error) {
	if page.Skip < 0 {
		return nil, fmt.Errorf("%w: skip must not be negative", ErrInvalidArgument)
	}
	if err := validateFilter(&f); err != nil {
		return nil, err
	}

	take := page.Take
	switch {
	case take <= 0:
		take = q.cfg.DefaultPageSize
	case take > q.cfg.MaxPageSize:
		take = q.cfg.MaxPageSize
	}

	events, err := q.store.Search(ctx, f, page.Skip, take)
	if err != nil {
		return nil, fmt.Errorf("search audit events: %w", err)
	}
	total, err := q.store.Count(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("count audit events: %w", err)
	}
	if events == nil {
		events = []Event{}
	}

	return &SearchResult{
		Events: events,
		Total:  total,
		Skip:   page.Skip,
		Take:   take,
	}, nil
}

// Get returns a single event by ID.
func (q *QueryEngine) Get(ctx context.Context, id int64) (*Event, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: invalid event id %d", ErrInvalidArgument, id)
	}
	return q.store.Get(ctx, id)
}

// Stats summarizes the store.
func (q *QueryEngine) Stats(ctx context.Context) (*Stats, error) {
	return q.store.Stats(ctx)
}

// Export encodes every event matching f, up to the export row limit, in
// search order.
func (q *QueryEngine) Export(ctx context.Context, f SearchFilter, format Format) (*Export, error) {
	format, err := ParseFormat(string(format))
	if err != nil {
		return nil, err
	}
	if err := validateFilter(&f); err != nil {
		return nil, err
	}

	events, err := q.store.Search(ctx, f, 0, q.cfg.MaxExportRows+1)
	if err != nil {
		return nil, fmt.Errorf("export audit events: %w", err)
	}

	truncated := len(events) > q.cfg.MaxExportRows
	if truncated {
		events = events[:q.cfg.MaxExportRows]
		logging.Ctx(ctx).Warn().
			Int("limit", q.cfg.MaxExportRows).
			Msg("audit export truncated at row limit")
	}

	export, err := encodeExport(events, format, q.now())
	if err != nil {
		return nil, err
	}
	export.Truncated = truncated
	return export, nil
}
