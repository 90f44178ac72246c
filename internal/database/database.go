// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/config"
	"github.com/tomtom215/audittrail/internal/logging"
)

// DB owns the connection pool behind the audit store.
type DB struct {
	conn    *sql.DB
	cfg     *config.DatabaseConfig
	dialect audit.Dialect

	maxConnectTries int
	connectDelay    time.Duration
}

// Open connects to the configured database and verifies the connection.
// PostgreSQL servers that are still starting are retried with exponential
// backoff.
func Open(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	dialect, err := audit.DialectByName(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db := &DB{
		cfg:             cfg,
		dialect:         dialect,
		maxConnectTries: 5,
		connectDelay:    time.Second,
	}
	if err := db.connect(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

// NewStore returns the audit store on this connection with its schema
// created.
func (db *DB) NewStore(ctx context.Context) (*audit.SQLStore, error) {
	store := audit.NewSQLStore(db.conn, db.dialect)
	if err := store.CreateSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}
	return store, nil
}

// Conn returns the underlying connection pool.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Dialect returns the SQL dialect of the connection.
func (db *DB) Dialect() audit.Dialect {
	return db.dialect
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Close closes the connection pool. DuckDB files are checkpointed first so
// the next start does not replay a large WAL.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	if db.dialect.Name == audit.DuckDB.Name && db.cfg.Path != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if _, err := db.conn.ExecContext(ctx, "CHECKPOINT"); err != nil {
			logging.Warn().Err(err).Msg("Failed to checkpoint database before close")
		}
		cancel()
	}
	return db.conn.Close()
}

// dataSource returns the driver name and connection string for cfg.
func dataSource(cfg *config.DatabaseConfig) (driver, dsn string, err error) {
	switch cfg.Driver {
	case audit.DuckDB.Name:
		return "duckdb", duckDBConnString(cfg), nil
	case audit.Postgres.Name:
		if strings.TrimSpace(cfg.DSN) == "" {
			return "", "", fmt.Errorf("%w: database.dsn is required for postgres", audit.ErrInvalidArgument)
		}
		return "pgx", cfg.DSN, nil
	default:
		return "", "", fmt.Errorf("%w: unknown database driver %q", audit.ErrInvalidArgument, cfg.Driver)
	}
}

// duckDBConnString builds a DuckDB DSN with tuning options. An empty path
// opens an in-memory database.
func duckDBConnString(cfg *config.DatabaseConfig) string {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	params := url.Values{}
	params.Set("threads", strconv.Itoa(numThreads))
	if cfg.MaxMemory != "" {
		params.Set("max_memory", cfg.MaxMemory)
	}
	if cfg.Path != "" {
		params.Set("access_mode", "read_write")
	}
	// Extensions are never needed; avoid network access at startup.
	params.Set("autoinstall_known_extensions", "false")
	params.Set("autoload_known_extensions", "false")

	return cfg.Path + "?" + params.Encode()
}

// ensureDir creates the parent directory of a DuckDB file.
func ensureDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}
