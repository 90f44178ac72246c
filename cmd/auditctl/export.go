// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/audittrail/internal/audit"
)

func newExportCmd(open opener, opts *globalOptions) *cobra.Command {
	var (
		format, output string
		start, end     string
		filter         audit.SearchFilter
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export events as CSV, JSON or CEF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := audit.ParseFormat(format)
			if err != nil {
				return err
			}
			if filter.Start, err = parseTimeFlag(start, "start"); err != nil {
				return err
			}
			if filter.End, err = parseTimeFlag(end, "end"); err != nil {
				return err
			}

			return withSession(cmd, open, opts, func(ctx context.Context, s *session) error {
				engine := audit.NewQueryEngine(s.store, audit.QueryConfig{MaxExportRows: s.cfg.Query.MaxExportRows})
				export, err := engine.Export(ctx, filter, f)
				if err != nil {
					return err
				}

				if output == "" || output == "-" {
					if _, err := cmd.OutOrStdout().Write(export.Data); err != nil {
						return fmt.Errorf("write export: %w", err)
					}
				} else if err := os.WriteFile(output, export.Data, 0o600); err != nil {
					return fmt.Errorf("write export: %w", err)
				}

				msg := fmt.Sprintf("exported %d events", export.Count)
				if export.Truncated {
					msg += fmt.Sprintf(" (truncated at %d, narrow the filter)", export.Count)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), msg)
				return nil
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "csv", "export format: csv, json or cef")
	flags.StringVarP(&output, "output", "o", "", "output file (default: stdout)")
	flags.StringVar(&filter.Text, "q", "", "free-text search")
	flags.StringVar(&filter.UserName, "user", "", "user name contains")
	flags.StringVar(&filter.Action, "action", "", "exact action")
	flags.StringVar(&filter.EntityType, "entity-type", "", "exact entity type")
	flags.StringVar(&filter.EntityID, "entity-id", "", "exact entity id")
	flags.StringVar(&start, "start", "", "earliest timestamp (RFC 3339)")
	flags.StringVar(&end, "end", "", "latest timestamp (RFC 3339)")
	return cmd
}

func parseTimeFlag(v, name string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fmt.Errorf("--%s must be an RFC 3339 timestamp: %w", name, err)
	}
	return &t, nil
}
