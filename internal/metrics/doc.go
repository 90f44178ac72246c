// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package metrics provides Prometheus metrics for the audit pipeline and HTTP API.

All collectors are registered on the default registry through promauto and
exposed at /metrics.

# Available Metrics

Ingestion:
  - audit_events_enqueued_total{severity}
  - audit_events_dropped_total{severity}: low-severity events evicted when the queue is full
  - audit_events_rejected_total{reason}
  - audit_queue_pending

Processing:
  - audit_events_persisted_total
  - audit_events_suppressed_total{module}
  - audit_events_lost_total, audit_events_spooled_total
  - audit_batch_size, audit_store_write_duration_seconds
  - audit_store_failures_total{stage}
  - audit_chain_last_sequence
  - audit_store_circuit_breaker_state

Integrity and retention:
  - audit_chain_verifications_total{result}
  - audit_retention_deleted_total, audit_retention_runs_total{result}

HTTP:
  - api_requests_total{method,endpoint,status_code}
  - api_request_duration_seconds{method,endpoint}
  - api_active_requests
  - audit_tail_clients

Suppressed events are only ever counted here. They are never written to the
operational log.
*/
package metrics
