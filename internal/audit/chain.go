// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"strconv"
	"strings"
	"time"
)

// GenesisHash is the previous hash of the first event in the chain.
var GenesisHash = strings.Repeat("0", 64)

// normalizeTime returns t in UTC truncated to the microsecond precision
// kept by the SQL stores.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// ComputeHash returns the lowercase hex SHA-256 of the event's canonical
// encoding. ID, ContentHash and IntegrityVerified do not participate.
func ComputeHash(e *Event) string {
	h := sha256.New()
	w := canonicalWriter{h: h}

	w.int("sequence_number", e.SequenceNumber)
	w.str("user_id", e.UserID)
	w.str("user_name", e.UserName)
	w.str("ip_address", e.IPAddress)
	w.str("user_agent", e.UserAgent)
	w.str("session_id", e.SessionID)
	w.str("action", e.Action)
	w.str("entity_name", e.EntityName)
	w.str("entity_id", e.EntityID)
	w.str("property_name", e.PropertyName)
	w.str("old_value", e.OldValue)
	w.str("new_value", e.NewValue)
	w.bytes("old_state", e.OldState)
	w.bytes("new_state", e.NewState)
	w.str("description", e.Description)
	w.str("context", e.Context)
	w.str("severity", string(e.Severity))
	w.str("category", string(e.Category))
	w.bytes("additional_data", e.AdditionalData)
	w.time("timestamp", e.Timestamp)
	w.int("duration_ns", int64(e.Duration))
	w.bool("success", e.Success)
	w.str("error_message", e.ErrorMessage)
	w.str("stack_trace", e.StackTrace)
	w.str("correlation_id", e.CorrelationID)
	w.str("module", e.Module)
	w.str("process", e.Process)
	w.str("http_method", e.HTTPMethod)
	w.str("http_path", e.HTTPPath)
	w.int("http_status", int64(e.HTTPStatus))
	w.bool("permanent_retention", e.PermanentRetention)
	if e.ExpiresAt != nil {
		w.time("expires_at", *e.ExpiresAt)
	} else {
		w.str("expires_at", "")
	}
	w.str("previous_hash", e.PreviousHash)

	return hex.EncodeToString(h.Sum(nil))
}

// canonicalWriter writes name:length:value records so no two distinct
// field sets produce the same byte stream.
type canonicalWriter struct {
	h   hash.Hash
	buf []byte
}

func (w *canonicalWriter) bytes(name string, value []byte) {
	w.buf = w.buf[:0]
	w.buf = append(w.buf, name...)
	w.buf = append(w.buf, ':')
	w.buf = strconv.AppendInt(w.buf, int64(len(value)), 10)
	w.buf = append(w.buf, ':')
	w.h.Write(w.buf)
	w.h.Write(value)
	w.h.Write([]byte{'\n'})
}

func (w *canonicalWriter) str(name, value string) {
	w.bytes(name, []byte(value))
}

func (w *canonicalWriter) int(name string, value int64) {
	w.str(name, strconv.FormatInt(value, 10))
}

func (w *canonicalWriter) bool(name string, value bool) {
	w.str(name, strconv.FormatBool(value))
}

func (w *canonicalWriter) time(name string, value time.Time) {
	w.str(name, normalizeTime(value).Format(time.RFC3339Nano))
}

// Chain assigns sequence numbers and hashes. It is owned by a single
// goroutine and is not safe for concurrent use.
//
// Prepared links stay pending until Commit; Rollback returns the cursor to
// the last committed head so a failed batch can be prepared again.
type Chain struct {
	committed ChainHead
	pending   ChainHead
}

// NewChain starts a chain cursor at head. A zero head starts at genesis.
func NewChain(head ChainHead) *Chain {
	c := &Chain{}
	c.Reset(head)
	return c
}

// Reset moves both cursors to head.
func (c *Chain) Reset(head ChainHead) {
	if head.Hash == "" {
		head.Hash = GenesisHash
	}
	c.committed = head
	c.pending = head
}

// Head returns the last committed link.
func (c *Chain) Head() ChainHead {
	return c.committed
}

// Prepare links e after the pending head: it assigns the next sequence
// number, records the previous hash and computes the content hash.
func (c *Chain) Prepare(e *Event) (int64, string) {
	e.Timestamp = normalizeTime(e.Timestamp)
	if e.ExpiresAt != nil {
		exp := normalizeTime(*e.ExpiresAt)
		e.ExpiresAt = &exp
	}

	e.SequenceNumber = c.pending.Sequence + 1
	e.PreviousHash = c.pending.Hash
	e.ContentHash = ComputeHash(e)

	c.pending = ChainHead{Sequence: e.SequenceNumber, Hash: e.ContentHash}
	return e.SequenceNumber, e.ContentHash
}

// Commit makes the pending links durable in the cursor.
func (c *Chain) Commit() {
	c.committed = c.pending
}

// Rollback discards links prepared since the last Commit.
func (c *Chain) Rollback() {
	c.pending = c.committed
}
