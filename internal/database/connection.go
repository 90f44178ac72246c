// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package database

import (
	"context"
	"database/sql"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/logging"
)

// connect opens the pool and pings it, retrying connection errors with
// exponential backoff.
func (db *DB) connect(ctx context.Context) error {
	driver, dsn, err := dataSource(db.cfg)
	if err != nil {
		return err
	}
	if db.dialect.Name == audit.DuckDB.Name {
		if err := ensureDir(db.cfg.Path); err != nil {
			return err
		}
	}

	var lastErr error
	for attempt := 0; attempt < db.maxConnectTries; attempt++ {
		if attempt > 0 {
			delay := db.connectDelay * time.Duration(1<<uint(attempt-1))
			logging.Warn().Err(lastErr).Int("attempt", attempt+1).Dur("delay", delay).
				Str("driver", db.dialect.Name).Msg("Database not reachable, retrying")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		lastErr = db.attemptConnect(ctx, driver, dsn)
		if lastErr == nil {
			return nil
		}
		if !isConnectionError(lastErr) {
			return lastErr
		}
	}

	return fmt.Errorf("failed to connect after %d attempts: %w", db.maxConnectTries, lastErr)
}

func (db *DB) attemptConnect(ctx context.Context, driver, dsn string) error {
	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		closeQuietly(conn)
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db.conn = conn
	db.configureConnectionPool()
	return nil
}

// configureConnectionPool sets connection pool parameters
func (db *DB) configureConnectionPool() {
	maxOpen := db.cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = runtime.NumCPU()
	}
	db.conn.SetMaxOpenConns(maxOpen)
	db.conn.SetMaxIdleConns(2)
	db.conn.SetConnMaxLifetime(time.Hour)
	db.conn.SetConnMaxIdleTime(5 * time.Minute)
}

// isConnectionError checks if an error indicates the server is unreachable
// rather than a bad query or bad credentials.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	errMsg := strings.ToLower(err.Error())
	for _, s := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"bad connection",
		"no such host",
		"i/o timeout",
		"the database system is starting up",
	} {
		if strings.Contains(errMsg, s) {
			return true
		}
	}
	return false
}
