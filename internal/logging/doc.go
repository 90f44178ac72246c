// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

// Package logging provides the process-wide zerolog logger for Audittrail.
//
// This is the operational log of the service itself (startup, failures,
// retries). It is deliberately separate from the audit trail: audit events
// are business records that go through the audit package, never through
// this logger, and the audit pipeline never logs suppressed events so that
// logging cannot feed back into auditing.
//
// # Quick Start
//
//	logging.Init(logging.Config{Level: "info", Format: "json"})
//
//	logging.Info().Str("driver", "duckdb").Msg("Audit store opened")
//	logging.Error().Err(err).Msg("Batch write failed")
//
//	// With request/correlation ids from the context
//	logging.Ctx(ctx).Warn().Msg("Export truncated")
//
// # Components
//
// Long-lived components create a child logger once:
//
//	log := logging.WithComponent("audit-processor")
//	log.Info().Int64("last_sequence", seq).Msg("Cursor loaded")
//
// # Suture Integration
//
// Suture v4 reports through sutureslog, which needs a *slog.Logger.
// NewSlogLogger returns one that writes through zerolog:
//
//	tree, _ := supervisor.NewSupervisorTree(logging.NewSlogLogger(), cfg)
//
// # Configuration
//
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
package logging
