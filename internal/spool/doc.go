// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package spool stores audit events that were still queued when the drain
timeout expired, so they survive a restart.

The processor saves leftovers at shutdown and, on the next start, loads
them back to the head of the ingestion queue before accepting new work.
Replayed events are chained and persisted like any other event; they are
never hashed twice because the chain fields are cleared before spooling.

Storage is BadgerDB. Each event is wrapped in a small JSON envelope and
keyed by a monotonic ordinal from a Badger sequence, which keeps load
order identical to save order across multiple shutdowns.

Usage:

	sp, err := spool.Open(spool.DefaultConfig("/data/spool"))
	if err != nil {
	    return err
	}
	defer sp.Close()

	processor := audit.NewProcessor(cfg, queue, store, policy, sp, bus)
*/
package spool
