// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

/*
Package websocket implements the live tail of persisted audit events.

Events reach the hub through BroadcastRaw, which the event bus calls for
every event the processor persists. The hub forwards them to connected
clients as typed messages:

	{"type":"audit_event","data":{...event JSON...}}

Architecture:

	event bus ──BroadcastRaw──► Hub ──► Client (readPump / writePump)
	                                └─► Client ...

Each client has two goroutines:
  - readPump: reads control messages (ping, subscribe)
  - writePump: writes queued messages and keepalive pings

Clients may narrow their stream:

	{"type":"subscribe","data":{"min_severity":"WARNING","entity_type":"WorkOrder"}}

The hub answers with "subscribed" echoing the active filter, or "error".

Backpressure:

Broadcasting never blocks the event bus. When the hub's queue is full the
event is dropped for the tail only; it is already persisted. A client whose
send buffer is full is disconnected and may reconnect and backfill through
the search API using sequence numbers.

Thread Safety:

Hub methods are safe for concurrent use. RunWithContext must run in exactly
one goroutine, normally under the supervisor.
*/
package websocket
