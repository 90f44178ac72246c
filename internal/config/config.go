// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Audit     AuditConfig     `koanf:"audit"`
	Retention RetentionConfig `koanf:"retention"`
	Query     QueryConfig     `koanf:"query"`
	Database  DatabaseConfig  `koanf:"database"`
	Spool     SpoolConfig     `koanf:"spool"`
	Server    ServerConfig    `koanf:"server"`
	Security  SecurityConfig  `koanf:"security"`
	HTTPAudit HTTPAuditConfig `koanf:"http_audit"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// AuditConfig configures the ingestion queue and background processor.
type AuditConfig struct {
	// QueueCapacity bounds the number of events waiting to be persisted.
	QueueCapacity int `koanf:"queue_capacity"`

	// EnqueueTimeout is how long an ERROR/CRITICAL event waits for space when
	// the queue holds nothing that can be evicted.
	EnqueueTimeout time.Duration `koanf:"enqueue_timeout"`

	BatchSize      int           `koanf:"batch_size"`
	MaxRetries     int           `koanf:"max_retries"`
	RetryBaseDelay time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay  time.Duration `koanf:"retry_max_delay"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`

	// DrainTimeout is the shutdown grace period for flushing queued events.
	DrainTimeout time.Duration `koanf:"drain_timeout"`

	BreakerFailureThreshold uint32        `koanf:"breaker_failure_threshold"`
	BreakerOpenTimeout      time.Duration `koanf:"breaker_open_timeout"`

	PolicyRefreshInterval time.Duration `koanf:"policy_refresh_interval"`

	// DefaultExpiration stamps an expiration on events that do not carry one.
	// Zero leaves expiration to the retention window alone.
	DefaultExpiration time.Duration `koanf:"default_expiration"`
}

// RetentionConfig configures the scheduled retention sweeper.
type RetentionConfig struct {
	Enabled  bool          `koanf:"enabled"`
	Days     int           `koanf:"days"`
	Interval time.Duration `koanf:"interval"`
}

// QueryConfig bounds search, export and verification.
type QueryConfig struct {
	DefaultPageSize int `koanf:"default_page_size"`
	MaxPageSize     int `koanf:"max_page_size"`
	MaxExportRows   int `koanf:"max_export_rows"`
	VerifyPageSize  int `koanf:"verify_page_size"`
}

// DatabaseConfig selects and tunes the audit store.
type DatabaseConfig struct {
	Driver       string `koanf:"driver"` // "duckdb" or "postgres"
	Path         string `koanf:"path"`   // DuckDB file, empty for in-memory
	DSN          string `koanf:"dsn"`    // PostgreSQL connection string
	MaxMemory    string `koanf:"max_memory"`
	Threads      int    `koanf:"threads"` // 0 = DuckDB default
	MaxOpenConns int    `koanf:"max_open_conns"`
}

// SpoolConfig configures the local spool for events not flushed at shutdown.
type SpoolConfig struct {
	Enabled bool   `koanf:"enabled"`
	Path    string `koanf:"path"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // "development" or "production"
}

// Address returns the listen address for the HTTP server.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// SecurityConfig holds request limiting and actor header settings.
type SecurityConfig struct {
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
	CORSOrigins       []string      `koanf:"cors_origins"`

	// Identity is established upstream; these headers carry the actor.
	UserIDHeader   string `koanf:"user_id_header"`
	UserNameHeader string `koanf:"user_name_header"`
}

// HTTPAuditConfig configures automatic auditing of HTTP requests.
type HTTPAuditConfig struct {
	Enabled bool `koanf:"enabled"`

	// ModelPath and PolicyPath override the embedded classifier rules.
	ModelPath  string `koanf:"model_path"`
	PolicyPath string `koanf:"policy_path"`
}

// LoggingConfig holds operational logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Load loads configuration from defaults, an optional YAML file and the
// environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
