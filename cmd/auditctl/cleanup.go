// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/audittrail/internal/audit"
)

func newCleanupCmd(open opener, opts *globalOptions) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete events older than the retention window",
		Long: `Deletes events created more than --days ago and events whose expiration
has passed. Permanently retained events and the chain head are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, open, opts, func(ctx context.Context, s *session) error {
				if !cmd.Flags().Changed("days") {
					days = s.cfg.Retention.Days
				}
				deleted, err := audit.NewSweeper(s.store, days, 0).Cleanup(ctx, days)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %d events older than %d days\n", deleted, days)
				return err
			})
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default: configured retention)")
	return cmd
}
