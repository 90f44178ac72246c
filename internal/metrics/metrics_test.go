// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordAPIRequest(t *testing.T) {
	before := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/audit/events", "200"))

	RecordAPIRequest("GET", "/api/v1/audit/events", "200", 15*time.Millisecond)

	after := testutil.ToFloat64(APIRequestsTotal.WithLabelValues("GET", "/api/v1/audit/events", "200"))
	if after != before+1 {
		t.Errorf("expected counter to increase by 1, got %v -> %v", before, after)
	}
}

func TestTrackActiveRequest(t *testing.T) {
	before := testutil.ToFloat64(APIActiveRequests)

	TrackActiveRequest(true)
	if got := testutil.ToFloat64(APIActiveRequests); got != before+1 {
		t.Errorf("expected %v active requests, got %v", before+1, got)
	}
	TrackActiveRequest(false)
	if got := testutil.ToFloat64(APIActiveRequests); got != before {
		t.Errorf("expected %v active requests, got %v", before, got)
	}
}

func TestRecordBatchWrite(t *testing.T) {
	before := testutil.ToFloat64(AuditEventsPersisted)

	RecordBatchWrite(25, 3*time.Millisecond, 1025)

	if got := testutil.ToFloat64(AuditEventsPersisted); got != before+25 {
		t.Errorf("expected persisted to grow by 25, got %v -> %v", before, got)
	}
	if got := testutil.ToFloat64(AuditLastSequence); got != 1025 {
		t.Errorf("expected last sequence 1025, got %v", got)
	}
}

func TestRecordChainVerification(t *testing.T) {
	tests := []struct {
		name  string
		valid bool
		err   error
		label string
	}{
		{"valid chain", true, nil, "valid"},
		{"broken chain", false, nil, "broken"},
		{"store error", false, errors.New("store unavailable"), "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(AuditChainVerifications.WithLabelValues(tt.label))
			RecordChainVerification(tt.valid, tt.err)
			after := testutil.ToFloat64(AuditChainVerifications.WithLabelValues(tt.label))
			if after != before+1 {
				t.Errorf("expected %s counter to increase by 1, got %v -> %v", tt.label, before, after)
			}
		})
	}
}

func TestRecordRetentionRun(t *testing.T) {
	deletedBefore := testutil.ToFloat64(AuditRetentionDeleted)
	errorsBefore := testutil.ToFloat64(AuditRetentionRuns.WithLabelValues("error"))

	RecordRetentionRun(7, nil)
	RecordRetentionRun(0, errors.New("boom"))

	if got := testutil.ToFloat64(AuditRetentionDeleted); got != deletedBefore+7 {
		t.Errorf("expected deleted to grow by 7, got %v -> %v", deletedBefore, got)
	}
	if got := testutil.ToFloat64(AuditRetentionRuns.WithLabelValues("error")); got != errorsBefore+1 {
		t.Errorf("expected error runs to grow by 1, got %v -> %v", errorsBefore, got)
	}
}
