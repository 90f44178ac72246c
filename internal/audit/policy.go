// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tomtom215/audittrail/internal/logging"
	"github.com/tomtom215/audittrail/internal/validation"
)

// PolicyStore persists module/process policy rules.
type PolicyStore interface {
	ListPolicies(ctx context.Context) ([]PolicyRule, error)
	SetPolicy(ctx context.Context, rule PolicyRule) error
}

type policyKey struct {
	module  string
	process string
}

func newPolicyKey(module, process string) policyKey {
	return policyKey{
		module:  strings.ToLower(strings.TrimSpace(module)),
		process: strings.ToLower(strings.TrimSpace(process)),
	}
}

// NormalizePolicyKey returns module and process in the form rules are
// stored and matched.
func NormalizePolicyKey(module, process string) (string, string) {
	k := newPolicyKey(module, process)
	return k.module, k.process
}

// Policy decides whether events for a (module, process) pair are persisted.
//
// Lookups read an immutable snapshot of the disabled pairs and take no
// locks. Pairs without a rule are enabled, and matching is case-insensitive.
type Policy struct {
	store    PolicyStore
	disabled atomic.Pointer[map[policyKey]struct{}]

	// mu serializes snapshot rebuilds.
	mu sync.Mutex
}

// NewPolicy creates a policy backed by store. Until Load succeeds every
// pair is enabled.
func NewPolicy(store PolicyStore) *Policy {
	p := &Policy{store: store}
	empty := make(map[policyKey]struct{})
	p.disabled.Store(&empty)
	return p
}

// IsAuditEnabled reports whether events tagged module/process are persisted.
func (p *Policy) IsAuditEnabled(module, process string) bool {
	_, off := (*p.disabled.Load())[newPolicyKey(module, process)]
	return !off
}

// Load replaces the snapshot with the rules in the store.
func (p *Policy) Load(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reload(ctx)
}

// reload rebuilds the snapshot. Caller holds p.mu.
func (p *Policy) reload(ctx context.Context) error {
	rules, err := p.store.ListPolicies(ctx)
	if err != nil {
		return fmt.Errorf("list audit policies: %w", err)
	}

	disabled := make(map[policyKey]struct{}, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			disabled[newPolicyKey(r.Module, r.Process)] = struct{}{}
		}
	}
	p.disabled.Store(&disabled)
	return nil
}

// Rules returns the persisted rules.
func (p *Policy) Rules(ctx context.Context) ([]PolicyRule, error) {
	return p.store.ListPolicies(ctx)
}

// SetPolicy persists rule and refreshes the snapshot. The audit/policy pair
// records policy changes and cannot be disabled.
func (p *Policy) SetPolicy(ctx context.Context, rule PolicyRule) error {
	key := newPolicyKey(rule.Module, rule.Process)
	rule.Module, rule.Process = key.module, key.process
	if verr := validation.ValidateStruct(&rule); verr != nil {
		return fmt.Errorf("%w: %s", ErrInvalidArgument, verr.Error())
	}
	if !rule.Enabled && key == newPolicyKey(ModuleAudit, ProcessPolicy) {
		return fmt.Errorf("%w: %s/%s cannot be disabled", ErrInvalidArgument, ModuleAudit, ProcessPolicy)
	}
	if rule.UpdatedAt.IsZero() {
		rule.UpdatedAt = time.Now().UTC()
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.store.SetPolicy(ctx, rule); err != nil {
		return fmt.Errorf("save audit policy: %w", err)
	}
	return p.reload(ctx)
}

// Run reloads the snapshot every interval until ctx is canceled, picking
// up rules changed by other processes.
func (p *Policy) Run(ctx context.Context, interval time.Duration) error {
	log := logging.WithComponent("audit-policy")
	if err := p.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("initial policy load failed")
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Load(ctx); err != nil {
				log.Warn().Err(err).Msg("policy refresh failed")
			}
		}
	}
}
