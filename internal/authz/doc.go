// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package authz classifies HTTP requests for automatic auditing.

The request auditing middleware asks two questions of every request:

  - ShouldAudit(path, method): record an HTTP event for this request?
  - IsSensitive(path, method): record it as a SECURITY event at WARNING?

Both are answered by a Casbin model over (class, path, method). Paths use
keyMatch2 patterns and methods are regular expressions. Deny rules let a
narrow route opt out of a broad allow:

	p, audit, /api/*, ^(POST|PUT|PATCH|DELETE)$, allow
	p, audit, /api/v1/audit/events, ^POST$, deny

The model and a default policy are embedded. Deployments can supply their
own files through http_audit.model_path and http_audit.policy_path.

Identity and roles are resolved upstream; this package never looks at who
made a request.
*/
package authz
