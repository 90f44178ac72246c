// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicy_EnabledByDefault(t *testing.T) {
	t.Parallel()

	p := NewPolicy(NewMemoryStore())
	if !p.IsAuditEnabled("WorkOrder", "UPDATE") {
		t.Error("pairs without a rule must be enabled")
	}
}

func TestPolicy_SetPolicyIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	p := NewPolicy(store)
	ctx := context.Background()

	err := p.SetPolicy(ctx, PolicyRule{Module: " WorkOrder ", Process: "Update", Enabled: false, UpdatedBy: "admin"})
	if err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}

	for _, pair := range [][2]string{{"workorder", "update"}, {"WORKORDER", "UPDATE"}, {"WorkOrder", "Update"}} {
		if p.IsAuditEnabled(pair[0], pair[1]) {
			t.Errorf("expected %s/%s to be disabled", pair[0], pair[1])
		}
	}
	if !p.IsAuditEnabled("workorder", "create") {
		t.Error("other processes of the module must stay enabled")
	}

	rules, err := p.Rules(ctx)
	if err != nil {
		t.Fatalf("Rules failed: %v", err)
	}
	if len(rules) != 1 || rules[0].Module != "workorder" || rules[0].Process != "update" {
		t.Fatalf("expected one normalized rule, got %+v", rules)
	}
	if rules[0].UpdatedAt.IsZero() || rules[0].UpdatedBy != "admin" {
		t.Errorf("expected update metadata, got %+v", rules[0])
	}
}

func TestPolicy_ReEnable(t *testing.T) {
	t.Parallel()

	p := NewPolicy(NewMemoryStore())
	ctx := context.Background()

	_ = p.SetPolicy(ctx, PolicyRule{Module: "asset", Process: "create", Enabled: false})
	if err := p.SetPolicy(ctx, PolicyRule{Module: "Asset", Process: "CREATE", Enabled: true}); err != nil {
		t.Fatalf("SetPolicy failed: %v", err)
	}
	if !p.IsAuditEnabled("asset", "create") {
		t.Error("expected pair to be enabled again")
	}
}

func TestPolicy_AuditPolicyPairCannotBeDisabled(t *testing.T) {
	t.Parallel()

	p := NewPolicy(NewMemoryStore())
	err := p.SetPolicy(context.Background(), PolicyRule{Module: "Audit", Process: "Policy", Enabled: false})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
	if !p.IsAuditEnabled(ModuleAudit, ProcessPolicy) {
		t.Error("audit/policy must stay enabled")
	}
}

func TestPolicy_RejectsInvalidKeys(t *testing.T) {
	t.Parallel()

	tests := []PolicyRule{
		{Module: "", Process: "update"},
		{Module: "asset", Process: "  "},
		{Module: "work order", Process: "update"},
		{Module: "asset", Process: "up/date"},
	}
	p := NewPolicy(NewMemoryStore())
	for _, rule := range tests {
		if err := p.SetPolicy(context.Background(), rule); !errors.Is(err, ErrInvalidArgument) {
			t.Errorf("%q/%q: expected ErrInvalidArgument, got %v", rule.Module, rule.Process, err)
		}
	}
}

func TestPolicy_LoadPicksUpExternalChanges(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	p := NewPolicy(store)
	ctx := context.Background()

	_ = store.SetPolicy(ctx, PolicyRule{Module: "asset", Process: "update", Enabled: false, UpdatedAt: time.Now()})
	if !p.IsAuditEnabled("asset", "update") {
		t.Fatal("snapshot must not change before Load")
	}
	if err := p.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if p.IsAuditEnabled("asset", "update") {
		t.Error("expected pair disabled after Load")
	}
}

func TestPolicy_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	p := NewPolicy(NewMemoryStore())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx, 10*time.Millisecond) }()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
