// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package eventbus is the in-process message bus between the audit pipeline
and its observers.

It uses a Watermill GoChannel pub/sub with a Watermill router:

	processor/verifier --PublishPersisted--> audit.persisted --> live-tail hub
	                   --PublishAlert------> audit.alerts    --> AlertMonitor + log

Bus implements audit.Notifier. Publishing never waits for subscribers, so a
slow websocket client cannot stall persistence. Delivery order across
messages is not guaranteed; tail clients order by sequence_number.

AlertMonitor keeps the alert history that the readiness endpoint reports:
store and loss alerts degrade health for a window, integrity alerts stay
until reset.
*/
package eventbus
