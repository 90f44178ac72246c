// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package supervisor runs the long-lived components under a suture v4
supervision tree.

	audittrail (root)
	├── data-layer
	│   ├── audit-processor
	│   ├── retention-sweeper
	│   ├── policy-refresh
	│   └── spool-gc
	├── messaging-layer
	│   ├── event-bus
	│   └── tail-hub
	└── api-layer
	    └── http-server

Failed services are restarted with suture's decaying failure counter;
supervisor events are logged through sutureslog. Service adapters live in
the services subpackage.

Canceling the context passed to Serve stops the tree. The audit processor
drains its queue and spools what it cannot persist before its service
returns, so ShutdownTimeout must exceed the processor's drain timeout.
*/
package supervisor
