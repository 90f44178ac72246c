// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package services adapts audittrail components to suture.Service.

Each adapter implements Serve(ctx) error and fmt.Stringer, so suture can
name it in its event log:

  - HTTPServerService: ListenAndServe with graceful Shutdown
  - ProcessorService: the audit processor; not restarted once its queue
    is closed
  - RunnerService: any Run(ctx) loop (retention sweeper, event bus, live
    tail hub, policy refresh)
  - SpoolGCService: periodic Badger value-log GC for the shutdown spool

Adapters depend on small interfaces rather than the concrete packages, so
they can be tested with fakes:

	tree.AddDataService(services.NewProcessorService(processor))
	tree.AddDataService(services.NewRunnerService("retention-sweeper", sweeper))
	tree.AddMessagingService(services.NewRunnerService("tail-hub",
	    services.RunnerFunc(hub.RunWithContext)))
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
*/
package services
