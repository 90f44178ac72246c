// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/duckdb/duckdb-go/v2"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestClassifyStoreError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want error
	}{
		{
			name: "duckdb invalid utf-8",
			err:  &duckdb.Error{Type: duckdb.ErrorTypeInvalidInput, Msg: "Invalid Input Error: Invalid unicode (byte sequence mismatch) detected in segment statistics update"},
			want: ErrEventRejected,
		},
		{
			name: "duckdb conversion",
			err:  &duckdb.Error{Type: duckdb.ErrorTypeConversion, Msg: "Conversion Error: Could not convert string"},
			want: ErrEventRejected,
		},
		{
			name: "duckdb duplicate sequence",
			err:  &duckdb.Error{Type: duckdb.ErrorTypeConstraint, Msg: `Constraint Error: Duplicate key "sequence_number: 7" violates unique constraint`},
			want: ErrChainConflict,
		},
		{
			name: "duckdb io",
			err:  &duckdb.Error{Type: duckdb.ErrorTypeIO, Msg: "IO Error: Could not write file"},
			want: ErrStoreUnavailable,
		},
		{
			name: "postgres invalid byte sequence",
			err:  &pgconn.PgError{Code: "22021", Message: "invalid byte sequence for encoding \"UTF8\": 0xff"},
			want: ErrEventRejected,
		},
		{
			name: "postgres not null violation",
			err:  &pgconn.PgError{Code: "23502", Message: "null value in column \"action\""},
			want: ErrEventRejected,
		},
		{
			name: "postgres duplicate sequence",
			err:  &pgconn.PgError{Code: pgUniqueViolation, ConstraintName: "audit_events_sequence_number_key"},
			want: ErrChainConflict,
		},
		{
			name: "postgres shutting down",
			err:  &pgconn.PgError{Code: "57P01", Message: "terminating connection due to administrator command"},
			want: ErrStoreUnavailable,
		},
		{
			name: "timeout",
			err:  context.DeadlineExceeded,
			want: ErrStoreUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			wrapped := fmt.Errorf("insert event 7: %w", tt.err)
			if got := classifyStoreError(wrapped); !errors.Is(got, tt.want) {
				t.Errorf("classifyStoreError() = %v, want %v", got, tt.want)
			}
		})
	}
}
