// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

// Package testinfra provides container-backed infrastructure for
// integration tests.
//
// It uses testcontainers-go to run the external databases the audit store
// supports, so the PostgreSQL dialect is tested against a real server:
//
//	func TestPostgresStore(t *testing.T) {
//	    pg := testinfra.StartPostgres(t)
//	    db, err := sql.Open("pgx", pg.DSN)
//	    // ...
//	}
//
// These tests require Docker and are built only with the integration tag.
// They are skipped when Docker is unavailable.
package testinfra
