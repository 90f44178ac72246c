// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package websocket

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/audittrail/internal/audit"
)

// startHub runs a hub until the test ends.
func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()
	t.Cleanup(func() {
		cancel()
		if err := <-done; !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
	return hub
}

// createTestClient creates a client without a connection.
func createTestClient(hub *Hub, filter *Filter) *Client {
	return NewClient(hub, nil, filter)
}

func eventJSON(t *testing.T, seq int64, severity audit.Severity, entity string) []byte {
	t.Helper()
	data, err := json.Marshal(&audit.Event{
		Action:         audit.ActionUpdate,
		EntityName:     entity,
		Severity:       severity,
		Category:       audit.CategoryCRUD,
		SequenceNumber: seq,
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return data
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg, ok := <-c.send:
		if !ok {
			t.Fatal("client channel closed")
		}
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return Message{}
}

func expectNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Errorf("expected no message, got %s", msg.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func sequenceOf(t *testing.T, msg Message) int64 {
	t.Helper()
	var h eventHeader
	if err := json.Unmarshal(msg.Data, &h); err != nil {
		t.Fatalf("message data is not an event: %v", err)
	}
	return h.SequenceNumber
}

func TestHub_BroadcastsToAllClients(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	a, b := createTestClient(hub, nil), createTestClient(hub, nil)
	hub.Register <- a
	hub.Register <- b

	hub.BroadcastRaw(eventJSON(t, 1, audit.SeverityInfo, "Asset"))

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		if msg.Type != MessageTypeAuditEvent || sequenceOf(t, msg) != 1 {
			t.Errorf("unexpected message %s %s", msg.Type, msg.Data)
		}
	}
	if hub.GetClientCount() != 2 {
		t.Errorf("expected 2 clients, got %d", hub.GetClientCount())
	}
}

func TestHub_AppliesClientFilters(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	all := createTestClient(hub, nil)
	warnings := createTestClient(hub, &Filter{MinSeverity: audit.SeverityWarning})
	workOrders := createTestClient(hub, &Filter{EntityType: "workorder"})
	hub.Register <- all
	hub.Register <- warnings
	hub.Register <- workOrders

	hub.BroadcastRaw(eventJSON(t, 1, audit.SeverityInfo, "Asset"))
	hub.BroadcastRaw(eventJSON(t, 2, audit.SeverityCritical, "WorkOrder"))

	if seq := sequenceOf(t, receive(t, all)); seq != 1 {
		t.Errorf("unfiltered client: expected 1, got %d", seq)
	}
	if seq := sequenceOf(t, receive(t, all)); seq != 2 {
		t.Errorf("unfiltered client: expected 2, got %d", seq)
	}
	if seq := sequenceOf(t, receive(t, warnings)); seq != 2 {
		t.Errorf("severity filter: expected 2, got %d", seq)
	}
	if seq := sequenceOf(t, receive(t, workOrders)); seq != 2 {
		t.Errorf("entity filter: expected 2, got %d", seq)
	}
	expectNothing(t, warnings)
	expectNothing(t, workOrders)
}

// waitUntil polls cond until it holds or two seconds pass.
func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestHub_DisconnectsSlowClients(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	slow := createTestClient(hub, nil)
	if !hub.Add(slow) {
		t.Fatal("hub stopped before the client registered")
	}
	waitUntil(t, "client registration", func() bool { return hub.GetClientCount() == 1 })

	// Fill the buffer one message at a time so none is dropped on the
	// broadcast channel instead.
	for i := 0; i < cap(slow.send); i++ {
		hub.BroadcastRaw(eventJSON(t, int64(i+1), audit.SeverityInfo, "Asset"))
		want := i + 1
		waitUntil(t, "buffered message", func() bool { return len(slow.send) == want })
	}

	hub.BroadcastRaw(eventJSON(t, int64(cap(slow.send)+1), audit.SeverityInfo, "Asset"))
	waitUntil(t, "slow client disconnect", func() bool { return hub.GetClientCount() == 0 })

	n := 0
	timeout := time.After(2 * time.Second)
drain:
	for {
		select {
		case _, ok := <-slow.send:
			if !ok {
				break drain
			}
			n++
		case <-timeout:
			t.Fatal("slow client channel was not closed")
		}
	}
	if n != cap(slow.send) {
		t.Errorf("expected %d buffered messages before disconnect, got %d", cap(slow.send), n)
	}
}

func TestHub_BroadcastRawIgnoresMalformedPayload(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	c := createTestClient(hub, nil)
	hub.Register <- c

	hub.BroadcastRaw([]byte("not json"))
	expectNothing(t, c)
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	t.Parallel()

	hub := startHub(t)
	c := createTestClient(hub, nil)
	hub.Register <- c
	hub.Unregister <- c

	select {
	case _, ok := <-c.send:
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("client channel not closed")
	}
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.RunWithContext(ctx) }()

	clients := make([]*Client, 3)
	for i := range clients {
		clients[i] = createTestClient(hub, nil)
		hub.Register <- clients[i]
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	for i, c := range clients {
		if _, ok := <-c.send; ok {
			t.Errorf("client %d channel should be closed", i)
		}
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("expected no clients after shutdown, got %d", hub.GetClientCount())
	}
}

func TestGetShutdownReason(t *testing.T) {
	t.Parallel()

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	expired, cancel2 := context.WithTimeout(context.Background(), -time.Second)
	defer cancel2()

	tests := []struct {
		ctx  context.Context
		want ShutdownReason
	}{
		{canceled, ShutdownReasonContextCanceled},
		{expired, ShutdownReasonContextDeadline},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			if got := getShutdownReason(tt.ctx); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFilter_Matches(t *testing.T) {
	t.Parallel()

	header := &eventHeader{Severity: audit.SeverityWarning, EntityName: "WorkOrder", Category: audit.CategoryCRUD}
	tests := []struct {
		name   string
		filter *Filter
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", &Filter{}, true},
		{"severity at threshold", &Filter{MinSeverity: audit.SeverityWarning}, true},
		{"severity below threshold", &Filter{MinSeverity: audit.SeverityError}, false},
		{"entity case-insensitive", &Filter{EntityType: "WORKORDER"}, true},
		{"other entity", &Filter{EntityType: "Asset"}, false},
		{"category", &Filter{Category: audit.CategoryCRUD}, true},
		{"other category", &Filter{Category: audit.CategorySecurity}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(header); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHub_AddAfterShutdown(t *testing.T) {
	t.Parallel()

	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = hub.RunWithContext(ctx)

	if hub.Add(createTestClient(hub, nil)) {
		t.Error("Add must fail once the hub has stopped")
	}
}
