// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion Queue Metrics
	AuditEventsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_enqueued_total",
			Help: "Total number of audit events accepted into the ingestion queue",
		},
		[]string{"severity"},
	)

	AuditEventsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_dropped_total",
			Help: "Total number of queued low-severity audit events evicted under saturation",
		},
		[]string{"severity"},
	)

	AuditEventsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_rejected_total",
			Help: "Total number of audit events rejected at ingestion",
		},
		[]string{"reason"}, // "invalid", "saturated", "closed"
	)

	AuditQueuePending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_queue_pending",
			Help: "Audit events accepted but not yet persisted, suppressed or dropped",
		},
	)

	// Background Processor Metrics
	AuditEventsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_persisted_total",
			Help: "Total number of audit events hashed, sequenced and persisted",
		},
	)

	AuditEventsSuppressed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_events_suppressed_total",
			Help: "Total number of audit events discarded by module/process policy",
		},
		[]string{"module"},
	)

	AuditEventsLost = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_lost_total",
			Help: "Total number of audit events not flushed within the shutdown grace period or rejected by the store",
		},
	)

	AuditEventsSpooled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_events_spooled_total",
			Help: "Total number of unflushed audit events written to the local spool",
		},
	)

	AuditBatchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_batch_size",
			Help:    "Number of events per persisted batch",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	AuditStoreWriteDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "audit_store_write_duration_seconds",
			Help:    "Duration of audit batch writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuditStoreFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_store_failures_total",
			Help: "Total number of failed audit store writes",
		},
		[]string{"stage"}, // "attempt", "exhausted"
	)

	AuditLastSequence = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_chain_last_sequence",
			Help: "Last sequence number committed to the audit store",
		},
	)

	AuditCircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_store_circuit_breaker_state",
			Help: "Audit store circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
	)

	// Integrity and Retention Metrics
	AuditChainVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_chain_verifications_total",
			Help: "Total number of chain verification runs",
		},
		[]string{"result"}, // "valid", "broken", "error"
	)

	AuditRetentionDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_retention_deleted_total",
			Help: "Total number of audit events removed by the retention sweeper",
		},
	)

	AuditRetentionRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_retention_runs_total",
			Help: "Total number of retention sweeps",
		},
		[]string{"result"}, // "success", "error"
	)

	AuditAlerts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_alerts_total",
			Help: "Total number of operational alerts raised by the audit pipeline",
		},
		[]string{"kind"},
	)

	TailMessagesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "audit_tail_messages_dropped_total",
			Help: "Live-tail messages dropped because a client was too slow",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Current number of active API requests",
		},
	)

	TailClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "audit_tail_clients",
			Help: "Current number of connected live-tail websocket clients",
		},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// TrackActiveRequest tracks active API requests.
func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// RecordBatchWrite records a successful audit batch write.
func RecordBatchWrite(size int, duration time.Duration, lastSequence int64) {
	AuditBatchSize.Observe(float64(size))
	AuditStoreWriteDuration.Observe(duration.Seconds())
	AuditEventsPersisted.Add(float64(size))
	AuditLastSequence.Set(float64(lastSequence))
}

// RecordChainVerification records the outcome of a verification run.
func RecordChainVerification(valid bool, err error) {
	switch {
	case err != nil:
		AuditChainVerifications.WithLabelValues("error").Inc()
	case valid:
		AuditChainVerifications.WithLabelValues("valid").Inc()
	default:
		AuditChainVerifications.WithLabelValues("broken").Inc()
	}
}

// RecordRetentionRun records a retention sweep.
func RecordRetentionRun(deleted int64, err error) {
	if err != nil {
		AuditRetentionRuns.WithLabelValues("error").Inc()
		return
	}
	AuditRetentionRuns.WithLabelValues("success").Inc()
	AuditRetentionDeleted.Add(float64(deleted))
}
