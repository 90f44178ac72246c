// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

// Package audit records who changed what, when and from where, in a form
// that can be searched, exported and checked for tampering.
//
// # Architecture
//
// Producers never wait on storage. The pipeline is:
//
//	Logger.Log() -> Queue (bounded) -> Processor -> Store
//	                    |                  |
//	             evicts INFO/WARNING   policy filter, chain, batch write
//
// The Logger validates events and fills defaults (timestamp, severity,
// category, actor from context, module/process tags). The Queue holds
// accepted events; when full it evicts the oldest INFO or WARNING event and
// only makes the producer wait when every queued event is ERROR or CRITICAL.
//
// A single Processor goroutine takes batches from the queue, drops events
// whose module/process pair is disabled by Policy, links the rest into the
// hash chain and writes them in one transaction. Failed writes are retried
// with exponential backoff behind a circuit breaker; a batch that still
// fails goes back to the front of the queue. On shutdown the processor
// drains within a grace period and spools whatever is left.
//
// # Integrity Chain
//
// Every persisted event carries a sequence number, the hash of its
// predecessor and its own SHA-256 content hash. The first event links to
// GenesisHash. ComputeHash covers every field that describes the event,
// including AdditionalData byte for byte. Verifier recomputes hashes and
// checks links; gaps left by retention are reported but are not tampering.
//
// # Storage
//
// SQLStore persists to DuckDB (embedded, default) or PostgreSQL. The chain
// head lives in its own table and is advanced in the same transaction as
// the batch, so it survives retention and is never reused. MemoryStore
// serves tests and ephemeral runs.
//
// # Usage Example
//
//	store := audit.NewSQLStore(db, audit.DuckDB)
//	if err := store.CreateSchema(ctx); err != nil {
//	    return err
//	}
//
//	queue := audit.NewQueue(10000, 250*time.Millisecond)
//	policy := audit.NewPolicy(store)
//	logger := audit.NewLogger(queue, audit.LoggerConfig{})
//	processor := audit.NewProcessor(audit.DefaultProcessorConfig(), queue, store, policy, nil, nil)
//	go processor.Run(ctx)
//
//	ctx = audit.WithActor(ctx, audit.Actor{UserID: "42", UserName: "jdoe"})
//	_ = logger.LogUpdate(ctx, audit.Entity{Type: "WorkOrder", ID: "WO-1001"}, before, after)
//
// # Thread Safety
//
// Logger, Queue, Policy, QueryEngine, Verifier, Sweeper and the stores are
// safe for concurrent use. Chain is owned by the Processor.
package audit
