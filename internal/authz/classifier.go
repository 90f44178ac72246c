// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"

	"github.com/tomtom215/audittrail/internal/logging"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Request classes defined by the policy.
const (
	ClassAudit     = "audit"
	ClassSensitive = "sensitive"
)

// ClassifierConfig holds configuration for the request classifier.
type ClassifierConfig struct {
	// ModelPath is the path to the Casbin model file.
	// If empty, uses embedded model.
	ModelPath string

	// PolicyPath is the path to the Casbin policy file.
	// If empty, uses embedded policy.
	PolicyPath string

	// ReloadInterval enables periodic policy reload from PolicyPath.
	// Zero disables reloading.
	ReloadInterval time.Duration

	// CacheTTL is how long decisions are cached. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultClassifierConfig returns default configuration.
func DefaultClassifierConfig() *ClassifierConfig {
	return &ClassifierConfig{
		CacheTTL: 5 * time.Minute,
	}
}

// Classifier decides which HTTP requests are audited and which are
// security-sensitive. Both decisions are pure functions of path and
// method.
type Classifier struct {
	config   *ClassifierConfig
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
}

// NewClassifier loads the model and policy, from files when configured and
// from the embedded defaults otherwise.
func NewClassifier(config *ClassifierConfig) (*Classifier, error) {
	if config == nil {
		config = DefaultClassifierConfig()
	}

	var m model.Model
	var err error
	if config.ModelPath != "" && fileExists(config.ModelPath) {
		m, err = model.NewModelFromFile(config.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if config.PolicyPath != "" && fileExists(config.PolicyPath) {
		enforcer, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(config.PolicyPath))
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}

	c := &Classifier{config: config, enforcer: enforcer}
	if config.CacheTTL > 0 {
		c.cache = newDecisionCache(config.CacheTTL, 0)
	}
	if config.ReloadInterval > 0 && config.PolicyPath != "" {
		c.stop = make(chan struct{})
		c.stopped = make(chan struct{})
		go c.reloadLoop(config.ReloadInterval)
	}

	logging.Info().
		Str("policy_path", config.PolicyPath).
		Int("rules", len(c.Rules())).
		Msg("Request classifier initialized")
	return c, nil
}

// loadEmbeddedPolicy parses and loads a policy CSV.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if parts[0] != "p" || len(parts) != 5 {
			return fmt.Errorf("malformed policy line %q", line)
		}
		if _, err := enforcer.AddPolicy(parts[1:]); err != nil {
			return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
		}
	}
	return nil
}

// matches evaluates one class, consulting the cache first. Errors are
// logged and treated as no match.
func (c *Classifier) matches(class, path, method string) bool {
	method = strings.ToUpper(method)
	if c.cache != nil {
		if matched, ok := c.cache.get(class, path, method); ok {
			AuthzCacheHitsTotal.Inc()
			return matched
		}
	}

	matched, err := c.enforcer.Enforce(class, path, method)
	if err != nil {
		AuthzErrorsTotal.Inc()
		logging.Warn().Err(err).Str("class", class).Str("path", path).Msg("request classification failed")
		return false
	}
	recordClassification(class, matched)

	if c.cache != nil {
		c.cache.set(class, path, method, matched)
	}
	return matched
}

// ShouldAudit reports whether a request is recorded. Sensitive requests
// are always recorded.
func (c *Classifier) ShouldAudit(path, method string) bool {
	return c.matches(ClassAudit, path, method) || c.IsSensitive(path, method)
}

// IsSensitive reports whether a request is security-relevant.
func (c *Classifier) IsSensitive(path, method string) bool {
	return c.matches(ClassSensitive, path, method)
}

// Rules returns the loaded policy rules.
func (c *Classifier) Rules() [][]string {
	rules, err := c.enforcer.GetPolicy()
	if err != nil {
		return nil
	}
	return rules
}

// Reload re-reads the policy file and clears cached decisions.
func (c *Classifier) Reload() error {
	if c.config.PolicyPath == "" {
		return nil
	}
	if err := c.enforcer.LoadPolicy(); err != nil {
		return fmt.Errorf("failed to reload policy: %w", err)
	}
	if c.cache != nil {
		c.cache.clear()
	}
	return nil
}

// reloadLoop reloads the policy file every interval until Close.
func (c *Classifier) reloadLoop(interval time.Duration) {
	defer close(c.stopped)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if err := c.Reload(); err != nil {
				logging.Warn().Err(err).Str("policy_path", c.config.PolicyPath).Msg("request policy reload failed")
			}
		}
	}
}

// Close stops policy auto-reload. It is safe to call more than once.
func (c *Classifier) Close() {
	if c.stop == nil {
		return
	}
	c.closeOnce.Do(func() {
		close(c.stop)
		<-c.stopped
	})
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
