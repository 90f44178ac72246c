// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/config"
	"github.com/tomtom215/audittrail/internal/database"
	"github.com/tomtom215/audittrail/internal/logging"
)

// backend is the store surface the commands use. *audit.SQLStore and
// *audit.MemoryStore satisfy it.
type backend interface {
	audit.Store
	audit.PolicyStore
}

// session is an open store plus the configuration it was opened with.
type session struct {
	cfg   *config.Config
	store backend
	close func() error
}

// opener opens the store for a command.
type opener func(ctx context.Context, opts *globalOptions) (*session, error)

type globalOptions struct {
	configPath string
	driver     string
	path       string
	dsn        string
	logLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(openDatabase).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(open opener) *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "auditctl",
		Short: "Maintenance tool for the audittrail store",
		Long: `auditctl verifies, exports and cleans up the audit trail and manages
module/process audit policies directly against the database.

DuckDB files allow a single writer: stop the server before running
commands against one. PostgreSQL stores can be used while it runs.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.Init(logging.Config{
				Level:     opts.logLevel,
				Format:    "console",
				Timestamp: true,
				Output:    cmd.ErrOrStderr(),
			})
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file path (default: "+config.ConfigPathEnvVar+" or the standard locations)")
	flags.StringVar(&opts.driver, "driver", "", "override database driver (duckdb or postgres)")
	flags.StringVar(&opts.path, "path", "", "override DuckDB file path")
	flags.StringVar(&opts.dsn, "dsn", "", "override PostgreSQL connection string")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level")

	root.AddCommand(
		newVerifyCmd(open, opts),
		newExportCmd(open, opts),
		newCleanupCmd(open, opts),
		newPolicyCmd(open, opts),
		newStatsCmd(open, opts),
	)
	return root
}

// openDatabase loads the configuration, applies flag overrides and opens
// the configured store.
func openDatabase(ctx context.Context, opts *globalOptions) (*session, error) {
	if opts.configPath != "" {
		if err := os.Setenv(config.ConfigPathEnvVar, opts.configPath); err != nil {
			return nil, fmt.Errorf("set config path: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.driver != "" {
		cfg.Database.Driver = opts.driver
	}
	if opts.path != "" {
		cfg.Database.Path = opts.path
	}
	if opts.dsn != "" {
		cfg.Database.DSN = opts.dsn
	}

	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}
	store, err := db.NewStore(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &session{cfg: cfg, store: store, close: db.Close}, nil
}

// withSession opens the store, runs fn and closes the store.
func withSession(cmd *cobra.Command, open opener, opts *globalOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	s, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); cerr != nil {
			logging.Warn().Err(cerr).Msg("Error closing database")
		}
	}()
	return fn(ctx, s)
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
