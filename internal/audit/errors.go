// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import "errors"

var (
	// ErrInvalidArgument is returned for malformed events and parameters.
	ErrInvalidArgument = errors.New("audit: invalid argument")

	// ErrQueueSaturated is returned when an ERROR/CRITICAL event cannot be
	// queued within the enqueue timeout.
	ErrQueueSaturated = errors.New("audit: ingestion queue saturated")

	// ErrQueueClosed is returned after shutdown has begun.
	ErrQueueClosed = errors.New("audit: ingestion queue closed")

	// ErrStoreUnavailable wraps persistence failures.
	ErrStoreUnavailable = errors.New("audit: store unavailable")

	// ErrEventRejected is returned by a store when the data of an event is
	// refused, for example by an encoding or constraint check. Retrying the
	// same event cannot succeed.
	ErrEventRejected = errors.New("audit: event rejected by store")

	// ErrChainConflict is returned by a store when a batch does not extend
	// the persisted chain head.
	ErrChainConflict = errors.New("audit: batch does not extend chain head")

	// ErrIntegrityBroken reports a failed chain verification.
	ErrIntegrityBroken = errors.New("audit: integrity chain broken")

	// ErrNotFound is returned when an event does not exist.
	ErrNotFound = errors.New("audit: event not found")
)
