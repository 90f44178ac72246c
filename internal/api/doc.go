// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package api provides the HTTP interface to the audit trail.

Routes are assembled by Router.SetupChi on a go-chi router:

	GET  /metrics                     Prometheus exposition
	GET  /api/v1/health/live          liveness
	GET  /api/v1/health/ready         readiness (processor and store)
	POST /api/v1/audit/events         queue an event (202)
	GET  /api/v1/audit/events         search, newest first
	GET  /api/v1/audit/events/{id}    single event
	GET  /api/v1/audit/export         CSV, JSON or CEF download
	POST /api/v1/audit/verify         verify the integrity chain
	POST /api/v1/audit/cleanup        apply retention now
	GET  /api/v1/audit/policies       list module/process rules
	PUT  /api/v1/audit/policies       enable or disable a rule
	GET  /api/v1/audit/status         processor, store and alert state
	GET  /api/v1/audit/stream         websocket live tail

# Response Format

Every JSON response uses the APIResponse envelope:

	{
	    "status": "success",
	    "data": { ... },
	    "metadata": {"timestamp": "...", "request_id": "..."}
	}

Errors carry an error object with a stable code (VALIDATION_ERROR,
QUEUE_SATURATED, STORE_UNAVAILABLE, ...). Internal error text is logged,
never returned.

# Middleware

Global: RealIP, request and correlation IDs, panic recovery, CORS and
request metrics. The /api/v1/audit group adds rate limiting, security
headers, the performance monitor and the request auditor, which records
HTTP_REQUEST events for requests the authz classifier selects. Export,
verify and cleanup share a second, stricter per-IP budget (10/min by
default). Responses other than the live tail are gzip compressed on
request.

The actor (user, IP, user agent) is taken from the connection and the
configured identity headers, never from request bodies.
*/
package api
