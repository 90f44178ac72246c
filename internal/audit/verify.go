// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/tomtom215/audittrail/internal/logging"
	"github.com/tomtom215/audittrail/internal/metrics"
)

// Reasons reported for the first broken event.
const (
	ReasonHashMismatch = "hash_mismatch"
	ReasonBrokenLink   = "broken_link"
	ReasonBadGenesis   = "bad_genesis"
)

const defaultVerifyPageSize = 1000

// Gap is a range of sequence numbers with no stored event, usually left by
// retention cleanup.
type Gap struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

// VerifyResult is the outcome of a chain verification.
type VerifyResult struct {
	From        int64         `json:"from"`
	To          int64         `json:"to"`
	Checked     int64         `json:"checked"`
	Valid       bool          `json:"valid"`
	FirstBroken int64         `json:"first_broken,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	Gaps        []Gap         `json:"gaps,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// Err returns ErrIntegrityBroken wrapped with the failure location, or nil.
func (r *VerifyResult) Err() error {
	if r.Valid {
		return nil
	}
	return fmt.Errorf("%w: sequence %d (%s)", ErrIntegrityBroken, r.FirstBroken, r.Reason)
}

// Verifier recomputes stored hashes and checks chain links.
type Verifier struct {
	store    Store
	pageSize int
	notifier Notifier
}

// NewVerifier creates a verifier reading pageSize events at a time.
// notifier may be nil.
func NewVerifier(store Store, pageSize int, notifier Notifier) *Verifier {
	if pageSize <= 0 {
		pageSize = defaultVerifyPageSize
	}
	return &Verifier{store: store, pageSize: pageSize, notifier: notifier}
}

// VerifyChain checks events with sequence numbers in [from, to]. A zero or
// out-of-range bound is clamped to the stored chain. Verification stops at
// the first broken event, which is flagged as unverified; the events
// checked before it are flagged as verified. Nothing is repaired.
func (v *Verifier) VerifyChain(ctx context.Context, from, to int64) (*VerifyResult, error) {
	start := time.Now()
	result, err := v.verify(ctx, from, to)
	metrics.RecordChainVerification(err == nil && result.Valid, err)
	if err != nil {
		return nil, err
	}
	result.Duration = time.Since(start)

	log := logging.Ctx(ctx)
	if !result.Valid {
		log.Error().
			Int64("sequence", result.FirstBroken).
			Str("reason", result.Reason).
			Msg("audit chain verification failed")
		if v.notifier != nil {
			v.notifier.PublishAlert(Alert{
				Kind:     AlertIntegrityBroken,
				Message:  "audit chain verification failed",
				Error:    result.Reason,
				Sequence: result.FirstBroken,
				At:       time.Now().UTC(),
			})
		}
	} else {
		log.Info().
			Int64("from", result.From).
			Int64("to", result.To).
			Int64("checked", result.Checked).
			Int("gaps", len(result.Gaps)).
			Msg("audit chain verified")
	}
	return result, nil
}

func (v *Verifier) verify(ctx context.Context, from, to int64) (*VerifyResult, error) {
	if from < 0 || to < 0 {
		return nil, fmt.Errorf("%w: negative sequence range", ErrInvalidArgument)
	}
	if to > 0 && from > to {
		return nil, fmt.Errorf("%w: from %d is after to %d", ErrInvalidArgument, from, to)
	}

	head, err := v.store.ChainHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain head: %w", err)
	}
	if from < 1 {
		from = 1
	}
	if to == 0 || to > head.Sequence {
		to = head.Sequence
	}

	result := &VerifyResult{From: from, To: to, Valid: true}
	if from > to {
		return result, nil
	}

	// The predecessor anchors the link check of the first event in range.
	var prev *Event
	if from > 1 {
		before, err := v.store.ListBySequence(ctx, from-1, from-1, 1)
		if err != nil {
			return nil, fmt.Errorf("load predecessor: %w", err)
		}
		if len(before) == 1 {
			prev = &before[0]
		}
	}

	expected := from
	lastGood := int64(0)
	for expected <= to {
		page, err := v.store.ListBySequence(ctx, expected, to, v.pageSize)
		if err != nil {
			return nil, fmt.Errorf("list events from %d: %w", expected, err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			e := &page[i]
			if e.SequenceNumber > expected {
				result.Gaps = append(result.Gaps, Gap{From: expected, To: e.SequenceNumber - 1})
			}

			if reason := checkLink(e, prev); reason != "" {
				result.Valid = false
				result.FirstBroken = e.SequenceNumber
				result.Reason = reason
				v.flag(ctx, from, lastGood, e.SequenceNumber)
				return result, nil
			}

			result.Checked++
			lastGood = e.SequenceNumber
			prev = e
			expected = e.SequenceNumber + 1
		}
	}

	if expected <= to {
		result.Gaps = append(result.Gaps, Gap{From: expected, To: to})
	}
	v.flag(ctx, from, lastGood, 0)
	return result, nil
}

// checkLink returns the reason e fails verification, or "".
func checkLink(e, prev *Event) string {
	if ComputeHash(e) != e.ContentHash {
		return ReasonHashMismatch
	}
	if e.SequenceNumber == 1 && e.PreviousHash != GenesisHash {
		return ReasonBadGenesis
	}
	if prev != nil && prev.SequenceNumber == e.SequenceNumber-1 && e.PreviousHash != prev.ContentHash {
		return ReasonBrokenLink
	}
	return ""
}

// flag records verification results on the stored events. Failures are
// logged; the verification result stands regardless.
func (v *Verifier) flag(ctx context.Context, from, lastGood, broken int64) {
	if lastGood >= from {
		if err := v.store.MarkIntegrity(ctx, from, lastGood, true); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("failed to flag verified events")
		}
	}
	if broken > 0 {
		if err := v.store.MarkIntegrity(ctx, broken, broken, false); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Int64("sequence", broken).Msg("failed to flag broken event")
		}
	}
}
