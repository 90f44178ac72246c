// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/tomtom215/audittrail/internal/audit"
)

func newVerifyCmd(open opener, opts *globalOptions) *cobra.Command {
	var from, to int64

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify the integrity hash chain",
		Long: `Recomputes every event hash in the sequence range and checks the links
between them. Verified events are flagged in the store. The command fails
when the chain is broken.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, open, opts, func(ctx context.Context, s *session) error {
				result, err := audit.NewVerifier(s.store, s.cfg.Query.VerifyPageSize, nil).VerifyChain(ctx, from, to)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, result); err != nil {
					return err
				}
				return result.Err()
			})
		},
	}

	cmd.Flags().Int64Var(&from, "from", 0, "first sequence number (0 = start of chain)")
	cmd.Flags().Int64Var(&to, "to", 0, "last sequence number (0 = chain head)")
	return cmd
}
