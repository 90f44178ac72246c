// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package database opens the connection pool behind the audit store.

Two drivers are supported, selected by database.driver:

  - duckdb: embedded DuckDB (duckdb-go). database.path names the file; an
    empty path keeps the store in memory. threads and max_memory tune the
    engine.
  - postgres: PostgreSQL through pgx's database/sql driver. database.dsn is
    the connection string.

Usage:

	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
	    return err
	}
	defer db.Close()

	store, err := db.NewStore(ctx) // creates the audit schema
*/
package database
