// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/audittrail/config.yaml",
	"/etc/audittrail/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Audit: AuditConfig{
			QueueCapacity:           10000,
			EnqueueTimeout:          250 * time.Millisecond,
			BatchSize:               100,
			MaxRetries:              5,
			RetryBaseDelay:          100 * time.Millisecond,
			RetryMaxDelay:           5 * time.Second,
			WriteTimeout:            10 * time.Second,
			DrainTimeout:            10 * time.Second,
			BreakerFailureThreshold: 5,
			BreakerOpenTimeout:      30 * time.Second,
			PolicyRefreshInterval:   time.Minute,
			DefaultExpiration:       0,
		},
		Retention: RetentionConfig{
			Enabled:  true,
			Days:     365,
			Interval: 24 * time.Hour,
		},
		Query: QueryConfig{
			DefaultPageSize: 50,
			MaxPageSize:     500,
			MaxExportRows:   100000,
			VerifyPageSize:  1000,
		},
		Database: DatabaseConfig{
			Driver:       "duckdb",
			Path:         "/data/audittrail.duckdb",
			DSN:          "",
			MaxMemory:    "1GB",
			Threads:      0,
			MaxOpenConns: 10,
		},
		Spool: SpoolConfig{
			Enabled: true,
			Path:    "/data/spool",
		},
		Server: ServerConfig{
			Port:            8470,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Security: SecurityConfig{
			RateLimitReqs:     300,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,
			CORSOrigins:       []string{"*"},
			UserIDHeader:      "X-User-Id",
			UserNameHeader:    "X-User-Name",
		},
		HTTPAudit: HTTPAuditConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any mapped setting
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// AUDIT_BATCH_SIZE -> audit.batch_size
	// DUCKDB_PATH -> database.path
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"security.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars arrive as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lowercased) to koanf paths.
var envMappings = map[string]string{
	// Ingestion and processing
	"audit_queue_capacity":          "audit.queue_capacity",
	"audit_enqueue_timeout":         "audit.enqueue_timeout",
	"audit_batch_size":              "audit.batch_size",
	"audit_max_retries":             "audit.max_retries",
	"audit_retry_base_delay":        "audit.retry_base_delay",
	"audit_retry_max_delay":         "audit.retry_max_delay",
	"audit_write_timeout":           "audit.write_timeout",
	"audit_drain_timeout":           "audit.drain_timeout",
	"audit_breaker_threshold":       "audit.breaker_failure_threshold",
	"audit_breaker_timeout":         "audit.breaker_open_timeout",
	"audit_policy_refresh_interval": "audit.policy_refresh_interval",
	"audit_default_expiration":      "audit.default_expiration",

	// Retention
	"retention_enabled":  "retention.enabled",
	"retention_days":     "retention.days",
	"retention_interval": "retention.interval",

	// Query
	"query_default_page_size": "query.default_page_size",
	"query_max_page_size":     "query.max_page_size",
	"query_max_export_rows":   "query.max_export_rows",
	"query_verify_page_size":  "query.verify_page_size",

	// Database
	"db_driver":         "database.driver",
	"duckdb_path":       "database.path",
	"duckdb_max_memory": "database.max_memory",
	"duckdb_threads":    "database.threads",
	"database_dsn":      "database.dsn",
	"db_max_open_conns": "database.max_open_conns",

	// Spool
	"spool_enabled": "spool.enabled",
	"spool_path":    "spool.path",

	// Server
	"http_port":        "server.port",
	"http_host":        "server.host",
	"http_timeout":     "server.timeout",
	"shutdown_timeout": "server.shutdown_timeout",
	"environment":      "server.environment",

	// Security
	"rate_limit_requests": "security.rate_limit_reqs",
	"rate_limit_window":   "security.rate_limit_window",
	"disable_rate_limit":  "security.rate_limit_disabled",
	"cors_origins":        "security.cors_origins",
	"user_id_header":      "security.user_id_header",
	"user_name_header":    "security.user_name_header",

	// HTTP request auditing
	"http_audit_enabled":     "http_audit.enabled",
	"http_audit_model_path":  "http_audit.model_path",
	"http_audit_policy_path": "http_audit.policy_path",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - AUDIT_BATCH_SIZE -> audit.batch_size
//   - RETENTION_DAYS -> retention.days
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables
	// never pollute the config.
	return ""
}
