// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Command server runs the audit trail service.

Events arrive through POST /api/v1/audit/events (and, when HTTP auditing is
enabled, from the service's own request middleware). They are queued,
linked into a SHA-256 hash chain by a single background processor and
written in batches to DuckDB or PostgreSQL. Persisted events are fanned
out to websocket live-tail clients.

# Startup

 1. Configuration: koanf v2 (defaults, optional YAML file, environment)
 2. Logging: zerolog
 3. Database: DuckDB file or PostgreSQL, schema created idempotently
 4. Spool: BadgerDB directory for events not flushed at shutdown
 5. Event bus and live-tail hub
 6. Queue, logger, policy, processor, query, verifier, sweeper
 7. Router: chi with CORS, rate limiting, metrics and request auditing
 8. Supervisor tree: suture v4, see internal/supervisor

# Configuration

Common environment variables:

	DB_DRIVER=duckdb                  # or postgres
	DUCKDB_PATH=/data/audittrail.duckdb
	DATABASE_DSN=postgres://...       # postgres only
	HTTP_PORT=8470
	RETENTION_ENABLED=true
	RETENTION_DAYS=365
	SPOOL_ENABLED=true
	SPOOL_PATH=/data/spool
	HTTP_AUDIT_ENABLED=true
	USER_NAME_HEADER=X-User-Name
	LOG_LEVEL=info

# Signal Handling

SIGINT and SIGTERM cancel the supervisor tree. The HTTP server stops
accepting requests, the processor flushes its queue within
AUDIT_DRAIN_TIMEOUT and spools the remainder, then the spool and database
are closed.
*/
package main
