// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Command auditctl is the offline maintenance tool for the audit store.

It opens the database named by the server configuration (koanf: defaults,
optional YAML file, environment) and runs one operation:

	auditctl verify [--from N] [--to N]        # exit status 1 if the chain is broken
	auditctl export --format csv|json|cef [--output FILE] [filters]
	auditctl cleanup [--days N]                # defaults to retention.days
	auditctl policy list
	auditctl policy set MODULE PROCESS --enabled=false [--by NAME]
	auditctl stats

Global flags --driver, --path and --dsn override the database section.

policy set appends a POLICY_CHANGE event to the chain through the same
queue and processor the server uses, so the change is itself audited.

DuckDB permits one writing process per file. Stop the server before
pointing auditctl at its DuckDB file; PostgreSQL stores can be maintained
while the server runs.
*/
package main
