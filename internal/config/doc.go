// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package config provides centralized configuration management for Audittrail.

Configuration is layered with Koanf v2:
 1. Built-in defaults (defaultConfig)
 2. An optional YAML file: $CONFIG_PATH, ./config.yaml or /etc/audittrail/config.yaml
 3. Mapped environment variables

Unmapped environment variables are ignored.

# Sections

  - audit: ingestion queue, batch processor, retries and circuit breaker
  - retention: scheduled retention sweep
  - query: page sizes, export row bound, verification page size
  - database: duckdb (embedded, default) or postgres
  - spool: local Badger spool for events not flushed at shutdown
  - server: HTTP listener
  - security: rate limiting, CORS and the actor headers set by the gateway
  - http_audit: automatic auditing of HTTP requests
  - logging: zerolog level and format

# Environment Variables

Audit:
  - AUDIT_QUEUE_CAPACITY (default: 10000)
  - AUDIT_ENQUEUE_TIMEOUT (default: 250ms)
  - AUDIT_BATCH_SIZE (default: 100)
  - AUDIT_MAX_RETRIES (default: 5)
  - AUDIT_RETRY_BASE_DELAY / AUDIT_RETRY_MAX_DELAY (default: 100ms / 5s)
  - AUDIT_WRITE_TIMEOUT (default: 10s)
  - AUDIT_DRAIN_TIMEOUT (default: 10s)
  - AUDIT_BREAKER_THRESHOLD / AUDIT_BREAKER_TIMEOUT (default: 5 / 30s)
  - AUDIT_POLICY_REFRESH_INTERVAL (default: 1m)
  - AUDIT_DEFAULT_EXPIRATION (default: 0, disabled)

Retention:
  - RETENTION_ENABLED (default: true)
  - RETENTION_DAYS (default: 365)
  - RETENTION_INTERVAL (default: 24h)

Database:
  - DB_DRIVER: duckdb or postgres (default: duckdb)
  - DUCKDB_PATH (default: /data/audittrail.duckdb)
  - DATABASE_DSN: required for postgres

Server:
  - HTTP_HOST / HTTP_PORT (default: 0.0.0.0 / 8470)
  - ENVIRONMENT: development or production

# Usage

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}
*/
package config
