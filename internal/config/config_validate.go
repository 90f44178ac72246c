// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package config

import (
	"fmt"
	"time"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateAudit(); err != nil {
		return err
	}

	if err := c.validateRetention(); err != nil {
		return err
	}

	if err := c.validateQuery(); err != nil {
		return err
	}

	if err := c.validateDatabase(); err != nil {
		return err
	}

	if err := c.validateSpool(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	return c.validateLogging()
}

// validateAudit validates queue and processor settings
func (c *Config) validateAudit() error {
	a := c.Audit
	if a.QueueCapacity < 1 {
		return fmt.Errorf("AUDIT_QUEUE_CAPACITY must be at least 1")
	}
	if a.BatchSize < 1 || a.BatchSize > a.QueueCapacity {
		return fmt.Errorf("AUDIT_BATCH_SIZE must be between 1 and AUDIT_QUEUE_CAPACITY (%d)", a.QueueCapacity)
	}
	if a.MaxRetries < 0 {
		return fmt.Errorf("AUDIT_MAX_RETRIES must not be negative")
	}
	if a.RetryBaseDelay <= 0 || a.RetryMaxDelay < a.RetryBaseDelay {
		return fmt.Errorf("AUDIT_RETRY_BASE_DELAY must be positive and not exceed AUDIT_RETRY_MAX_DELAY")
	}
	if a.WriteTimeout <= 0 {
		return fmt.Errorf("AUDIT_WRITE_TIMEOUT must be positive")
	}
	if a.DrainTimeout <= 0 {
		return fmt.Errorf("AUDIT_DRAIN_TIMEOUT must be positive")
	}
	if a.BreakerFailureThreshold < 1 {
		return fmt.Errorf("AUDIT_BREAKER_THRESHOLD must be at least 1")
	}
	if a.PolicyRefreshInterval < time.Second {
		return fmt.Errorf("AUDIT_POLICY_REFRESH_INTERVAL must be at least 1s")
	}
	if a.DefaultExpiration < 0 {
		return fmt.Errorf("AUDIT_DEFAULT_EXPIRATION must not be negative")
	}
	return nil
}

// validateRetention validates the retention sweeper (only if enabled)
func (c *Config) validateRetention() error {
	if !c.Retention.Enabled {
		return nil
	}
	if c.Retention.Days < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1")
	}
	if c.Retention.Interval < time.Minute {
		return fmt.Errorf("RETENTION_INTERVAL must be at least 1m")
	}
	return nil
}

// validateQuery validates paging and export bounds
func (c *Config) validateQuery() error {
	q := c.Query
	if q.MaxPageSize < 1 {
		return fmt.Errorf("QUERY_MAX_PAGE_SIZE must be at least 1")
	}
	if q.DefaultPageSize < 1 || q.DefaultPageSize > q.MaxPageSize {
		return fmt.Errorf("QUERY_DEFAULT_PAGE_SIZE must be between 1 and QUERY_MAX_PAGE_SIZE (%d)", q.MaxPageSize)
	}
	if q.MaxExportRows < 1 {
		return fmt.Errorf("QUERY_MAX_EXPORT_ROWS must be at least 1")
	}
	if q.VerifyPageSize < 1 {
		return fmt.Errorf("QUERY_VERIFY_PAGE_SIZE must be at least 1")
	}
	return nil
}

// validDrivers defines the supported audit store drivers
var validDrivers = map[string]bool{
	"duckdb":   true,
	"postgres": true,
}

// validateDatabase validates the store selection
func (c *Config) validateDatabase() error {
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("DB_DRIVER must be one of: duckdb, postgres")
	}
	if c.Database.Driver == "postgres" && c.Database.DSN == "" {
		return fmt.Errorf("DATABASE_DSN is required when DB_DRIVER=postgres")
	}
	if c.Database.Threads < 0 {
		return fmt.Errorf("DUCKDB_THREADS must not be negative")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must not be negative")
	}
	return nil
}

// validateSpool validates the shutdown spool (only if enabled)
func (c *Config) validateSpool() error {
	if c.Spool.Enabled && c.Spool.Path == "" {
		return fmt.Errorf("SPOOL_PATH is required when SPOOL_ENABLED=true")
	}
	return nil
}

// validateServer validates HTTP server settings
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive")
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return fmt.Errorf("ENVIRONMENT must be one of: development, production")
	}
	return nil
}

// Rate limit constants
const (
	minRateLimitRequests = 1
	maxRateLimitRequests = 100000
	minRateLimitWindow   = time.Second
	maxRateLimitWindow   = time.Hour
)

// validateSecurity validates rate limiting and actor headers
func (c *Config) validateSecurity() error {
	if c.Security.UserIDHeader == "" || c.Security.UserNameHeader == "" {
		return fmt.Errorf("USER_ID_HEADER and USER_NAME_HEADER must not be empty")
	}
	if c.IsProduction() && c.hasWildcardCORS() {
		return fmt.Errorf("CORS_ORIGINS=* (wildcard) is not allowed when ENVIRONMENT=production")
	}
	return c.validateRateLimits()
}

// hasWildcardCORS checks if CORS is configured with wildcard origins
func (c *Config) hasWildcardCORS() bool {
	for _, origin := range c.Security.CORSOrigins {
		if origin == "*" {
			return true
		}
	}
	return false
}

// validateRateLimits validates rate limiting configuration bounds
func (c *Config) validateRateLimits() error {
	if c.Security.RateLimitDisabled {
		return nil
	}
	if c.Security.RateLimitReqs < minRateLimitRequests || c.Security.RateLimitReqs > maxRateLimitRequests {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between %d and %d", minRateLimitRequests, maxRateLimitRequests)
	}
	if c.Security.RateLimitWindow < minRateLimitWindow || c.Security.RateLimitWindow > maxRateLimitWindow {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be between %v and %v", minRateLimitWindow, maxRateLimitWindow)
	}
	return nil
}

// IsProduction returns true if the application is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// validLogLevels defines the allowed log levels
var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validLogFormats defines the allowed log formats
var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	if c.Logging.Format != "" && !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}
