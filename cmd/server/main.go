// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tomtom215/audittrail/internal/api"
	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/authz"
	"github.com/tomtom215/audittrail/internal/config"
	"github.com/tomtom215/audittrail/internal/database"
	"github.com/tomtom215/audittrail/internal/eventbus"
	"github.com/tomtom215/audittrail/internal/logging"
	"github.com/tomtom215/audittrail/internal/middleware"
	"github.com/tomtom215/audittrail/internal/spool"
	"github.com/tomtom215/audittrail/internal/supervisor"
	"github.com/tomtom215/audittrail/internal/supervisor/services"
	ws "github.com/tomtom215/audittrail/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
		Output:    os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error().Err(err).Msg("Audittrail stopped with error")
		stop()
		os.Exit(1)
	}
}

// run wires the components, serves until ctx is canceled and releases
// resources in reverse order.
//
//nolint:gocyclo // sequential setup steps
func run(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("driver", cfg.Database.Driver).
		Str("address", cfg.Server.Address()).
		Bool("retention", cfg.Retention.Enabled).
		Bool("http_audit", cfg.HTTPAudit.Enabled).
		Msg("Starting Audittrail")

	db, err := database.Open(ctx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()

	store, err := db.NewStore(ctx)
	if err != nil {
		return fmt.Errorf("prepare audit store: %w", err)
	}

	var sp *spool.BadgerSpool
	if cfg.Spool.Enabled {
		sp, err = spool.Open(spool.Config{Path: cfg.Spool.Path, SyncWrites: true})
		if err != nil {
			return fmt.Errorf("open spool: %w", err)
		}
		defer func() {
			if err := sp.Close(); err != nil {
				logging.Error().Err(err).Msg("Error closing spool")
			}
		}()
	}

	// Live tail and alerting.
	hub := ws.NewHub()
	monitor := eventbus.NewAlertMonitor(0)
	bus, err := eventbus.New(eventbus.DefaultConfig(), monitor, hub)
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}

	// Ingestion pipeline.
	queue := audit.NewQueue(cfg.Audit.QueueCapacity, cfg.Audit.EnqueueTimeout)
	logger := audit.NewLogger(queue, audit.LoggerConfig{DefaultExpiration: cfg.Audit.DefaultExpiration})

	policy := audit.NewPolicy(store)
	if err := policy.Load(ctx); err != nil {
		// Unknown rules mean everything is audited until the next refresh.
		logging.Warn().Err(err).Msg("Failed to load audit policies, auditing everything")
	}

	var processorSpool audit.Spool
	if sp != nil {
		processorSpool = sp
	}
	processor := audit.NewProcessor(processorConfig(&cfg.Audit), queue, store, policy, processorSpool, bus)

	query := audit.NewQueryEngine(store, audit.QueryConfig{
		DefaultPageSize: cfg.Query.DefaultPageSize,
		MaxPageSize:     cfg.Query.MaxPageSize,
		MaxExportRows:   cfg.Query.MaxExportRows,
	})
	verifier := audit.NewVerifier(store, cfg.Query.VerifyPageSize, bus)
	sweeper := audit.NewSweeper(store, cfg.Retention.Days, cfg.Retention.Interval)

	// HTTP.
	perf := middleware.NewPerformanceMonitor(1000, time.Second)
	var auditor *middleware.RequestAuditor
	if cfg.HTTPAudit.Enabled {
		classifier, err := authz.NewClassifier(&authz.ClassifierConfig{
			ModelPath:      cfg.HTTPAudit.ModelPath,
			PolicyPath:     cfg.HTTPAudit.PolicyPath,
			ReloadInterval: time.Minute,
			CacheTTL:       5 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("create request classifier: %w", err)
		}
		defer classifier.Close()
		auditor = middleware.NewRequestAuditor(classifier, logger, middleware.AuditConfig{
			UserIDHeader:   cfg.Security.UserIDHeader,
			UserNameHeader: cfg.Security.UserNameHeader,
		})
	} else {
		// Still attaches the actor to ingested events.
		auditor = middleware.NewRequestAuditor(nil, nil, middleware.AuditConfig{
			UserIDHeader:   cfg.Security.UserIDHeader,
			UserNameHeader: cfg.Security.UserNameHeader,
		})
	}

	if cfg.Security.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED")
	}
	for _, origin := range cfg.Security.CORSOrigins {
		if origin == "*" {
			logging.Warn().Msg("CORS allows any origin; the live tail accepts any browser origin")
			break
		}
	}

	handler := api.NewHandler(api.Dependencies{
		Logger:      logger,
		Query:       query,
		Verifier:    verifier,
		Retention:   sweeper,
		Policy:      policy,
		Processor:   processor,
		Store:       store,
		Alerts:      monitor,
		Tail:        hub,
		Performance: perf,
	}, cfg)
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromSecurity(&cfg.Security)), auditor, perf)

	server := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.Timeout,
		IdleTimeout:       2 * time.Minute,
	}

	// Supervision.
	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		FailureThreshold: 5,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  cfg.Audit.DrainTimeout + cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return fmt.Errorf("create supervisor tree: %w", err)
	}

	tree.AddDataService(services.NewProcessorService(processor))
	tree.AddDataService(services.NewPolicyRefreshService(policy, cfg.Audit.PolicyRefreshInterval))
	if cfg.Retention.Enabled {
		tree.AddDataService(services.NewRunnerService("retention-sweeper", sweeper))
	}
	if sp != nil {
		tree.AddDataService(services.NewSpoolGCService(sp, 0))
	}
	tree.AddMessagingService(services.NewRunnerService("event-bus", bus))
	tree.AddMessagingService(services.NewRunnerService("tail-hub", services.RunnerFunc(hub.RunWithContext)))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	logging.Info().Str("address", server.Addr).Msg("HTTP server listening")

	err = tree.Serve(ctx)
	logging.Info().Msg("Shutting down")

	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("Service did not stop within the shutdown timeout")
		}
	}

	if status := processor.Status(); status.Lost > 0 {
		logging.Warn().Int64("events", status.Lost).Msg("Audit events were not persisted before shutdown")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func processorConfig(c *config.AuditConfig) audit.ProcessorConfig {
	return audit.ProcessorConfig{
		BatchSize:               c.BatchSize,
		MaxRetries:              c.MaxRetries,
		RetryBaseDelay:          c.RetryBaseDelay,
		RetryMaxDelay:           c.RetryMaxDelay,
		WriteTimeout:            c.WriteTimeout,
		DrainTimeout:            c.DrainTimeout,
		BreakerFailureThreshold: c.BreakerFailureThreshold,
		BreakerOpenTimeout:      c.BreakerOpenTimeout,
	}
}
