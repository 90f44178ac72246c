// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/audittrail/internal/audit"
)

func newPolicyCmd(open opener, opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "List or change module/process audit policies",
	}
	cmd.AddCommand(newPolicyListCmd(open, opts), newPolicySetCmd(open, opts))
	return cmd
}

func newPolicyListCmd(open opener, opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List policy rules; unlisted pairs are audited",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, open, opts, func(ctx context.Context, s *session) error {
				rules, err := s.store.ListPolicies(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "MODULE\tPROCESS\tENABLED\tUPDATED_AT\tUPDATED_BY")
				for _, r := range rules {
					fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%s\n",
						r.Module, r.Process, r.Enabled, r.UpdatedAt.UTC().Format(time.RFC3339), r.UpdatedBy)
				}
				return tw.Flush()
			})
		},
	}
}

func newPolicySetCmd(open opener, opts *globalOptions) *cobra.Command {
	var (
		enabled   bool
		updatedBy string
	)

	cmd := &cobra.Command{
		Use:   "set MODULE PROCESS",
		Short: "Enable or disable auditing for a module/process pair",
		Long: `Stores the rule and appends a POLICY_CHANGE event to the chain. A running
server picks the rule up on its next policy refresh.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, process := args[0], args[1]
			if updatedBy == "" {
				updatedBy = os.Getenv("USER")
			}

			return withSession(cmd, open, opts, func(ctx context.Context, s *session) error {
				policy := audit.NewPolicy(s.store)
				if err := policy.Load(ctx); err != nil {
					return err
				}
				wasEnabled := policy.IsAuditEnabled(module, process)

				rule := audit.PolicyRule{Module: module, Process: process, Enabled: enabled, UpdatedBy: updatedBy}
				if err := policy.SetPolicy(ctx, rule); err != nil {
					return err
				}
				if err := recordPolicyChange(ctx, s.store, policy, module, process, wasEnabled, enabled, updatedBy); err != nil {
					return fmt.Errorf("policy saved but the change was not recorded: %w", err)
				}

				m, p := audit.NormalizePolicyKey(module, process)
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s/%s enabled=%t\n", m, p, enabled)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&enabled, "enabled", true, "whether events of the pair are persisted")
	cmd.Flags().StringVar(&updatedBy, "by", "", "operator recorded on the rule (default: $USER)")
	return cmd
}

// recordPolicyChange appends a POLICY_CHANGE event through a short-lived
// processor so it is chained like any other event.
func recordPolicyChange(ctx context.Context, store audit.Store, policy *audit.Policy, module, process string, was, now bool, by string) error {
	queue := audit.NewQueue(1, 0)
	logger := audit.NewLogger(queue, audit.LoggerConfig{})
	processor := audit.NewProcessor(audit.DefaultProcessorConfig(), queue, store, policy, nil, nil)

	ctx = audit.WithActor(ctx, audit.Actor{UserName: by})
	err := logger.Log(ctx, &audit.Event{
		Action:       audit.ActionPolicyChange,
		EntityName:   "AuditPolicy",
		EntityID:     module + "/" + process,
		PropertyName: "enabled",
		OldValue:     strconv.FormatBool(was),
		NewValue:     strconv.FormatBool(now),
		Description:  "Audit policy changed for " + module + "/" + process,
		Severity:     audit.SeverityWarning,
		Category:     audit.CategoryConfiguration,
		Success:      true,
		Context:      "auditctl",
		Module:       audit.ModuleAudit,
		Process:      audit.ProcessPolicy,
	})
	if err != nil {
		return err
	}

	// A closed queue makes Run flush and return.
	queue.Close()
	if err := processor.Run(ctx); err != nil {
		return err
	}
	if lost := processor.Status().Lost; lost > 0 {
		return fmt.Errorf("%w: %d event not persisted", audit.ErrStoreUnavailable, lost)
	}
	return nil
}
