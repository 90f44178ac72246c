// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package middleware provides the HTTP middleware used by the API router.

Key Components:

  - RequestID: request and correlation ids for logging and audit events
  - PrometheusMetrics: request counts and latency per chi route pattern
  - PerformanceMonitor: sliding-window latency percentiles for /status
  - Compression: gzip for search and export responses
  - RequestAuditor: actor propagation and automatic HTTP audit events

All middleware has the chi signature func(http.Handler) http.Handler and is
installed with Router.Use so the route pattern is known when a request
completes:

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.PrometheusMetrics)
	r.Use(perf.Middleware)
	r.Use(auditor.Middleware)

Request Auditing:

RequestAuditor asks a RequestClassifier whether a request should be
recorded. Audited requests produce an HTTP_REQUEST event in category HTTP;
sensitive ones are recorded in category SECURITY at WARNING. The actor is
read from configurable headers set by the upstream identity provider and
is stored in the request context so events logged by handlers carry it too.
*/
package middleware
