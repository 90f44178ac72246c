// Audittrail - Tamper-Evident Audit Logging for Maintenance Management
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/audittrail

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/audittrail/internal/audit"
	"github.com/tomtom215/audittrail/internal/config"
)

var errPingFailed = errors.New("connection refused")

// fakeProcessor reports a fixed status.
type fakeProcessor struct {
	status   audit.ProcessorStatus
	readyErr error
}

func (f *fakeProcessor) Status() audit.ProcessorStatus { return f.status }
func (f *fakeProcessor) Ready() error                  { return f.readyErr }

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

// testEnv wires the real audit components over an in-memory store.
type testEnv struct {
	store     *audit.MemoryStore
	queue     *audit.Queue
	policy    *audit.Policy
	processor *fakeProcessor
	cfg       *config.Config
	deps      Dependencies
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := audit.NewMemoryStore()
	queue := audit.NewQueue(100, 0)
	t.Cleanup(queue.Close)
	policy := audit.NewPolicy(store)
	processor := &fakeProcessor{status: audit.ProcessorStatus{Running: true, BreakerState: "closed"}}

	cfg := &config.Config{}
	cfg.Retention.Days = 30
	cfg.Security.CORSOrigins = []string{"https://ops.example.com"}

	env := &testEnv{
		store:     store,
		queue:     queue,
		policy:    policy,
		processor: processor,
		cfg:       cfg,
	}
	env.deps = Dependencies{
		Logger:    audit.NewLogger(queue, audit.LoggerConfig{}),
		Query:     audit.NewQueryEngine(store, audit.QueryConfig{}),
		Verifier:  audit.NewVerifier(store, 0, nil),
		Retention: audit.NewSweeper(store, cfg.Retention.Days, time.Hour),
		Policy:    policy,
		Processor: processor,
		Store:     fakePinger{},
	}
	return env
}

// router builds the full route tree with rate limiting off.
func (env *testEnv) router() http.Handler {
	mw := NewChiMiddleware(&ChiMiddlewareConfig{
		CORSAllowedOrigins: env.cfg.Security.CORSOrigins,
		CORSAllowedMethods: []string{"GET", "POST", "PUT"},
		RateLimitDisabled:  true,
	})
	return NewRouter(NewHandler(env.deps, env.cfg), mw, nil, nil).SetupChi()
}

// seed persists events directly, linked after the store's head.
func (env *testEnv) seed(t *testing.T, events ...*audit.Event) {
	t.Helper()
	ctx := context.Background()
	head, err := env.store.ChainHead(ctx)
	if err != nil {
		t.Fatalf("ChainHead failed: %v", err)
	}
	chain := audit.NewChain(head)
	for _, e := range events {
		chain.Prepare(e)
	}
	if err := env.store.AppendBatch(ctx, events); err != nil {
		t.Fatalf("AppendBatch failed: %v", err)
	}
}

func workOrderEvent(id, user string, ts time.Time) *audit.Event {
	return &audit.Event{
		Action:     audit.ActionUpdate,
		EntityName: "WorkOrder",
		EntityID:   id,
		UserName:   user,
		Severity:   audit.SeverityInfo,
		Category:   audit.CategoryCRUD,
		Timestamp:  ts,
		Success:    true,
		Module:     "workorder",
		Process:    "update",
	}
}

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

type testResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *APIError       `json:"error"`
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) testResponse {
	t.Helper()
	var resp testResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("response is not JSON: %v: %s", err, w.Body.String())
	}
	return resp
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	resp := decodeResponse(t, w)
	if err := json.Unmarshal(resp.Data, dst); err != nil {
		t.Fatalf("unexpected data %s: %v", resp.Data, err)
	}
}
