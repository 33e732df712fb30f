package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rickgao/engine-bridge/internal/auth"
	"github.com/rickgao/engine-bridge/internal/model"
	"github.com/rickgao/engine-bridge/internal/version"
)

func testCreds(t *testing.T) *auth.Credentials {
	t.Helper()
	creds, err := auth.LoadCredentials(auth.Options{Token: "test-key"})
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	return creds
}

func asModelError(t *testing.T, err error) *model.Error {
	t.Helper()
	var e *model.Error
	if !errors.As(err, &e) {
		t.Fatalf("expected *model.Error, got %T: %v", err, err)
	}
	return e
}

// TestNewClient tests client construction with various options.
func TestNewClient(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		c := NewClient("https://engine.example.com/", nil)

		if c.baseURL != "https://engine.example.com" {
			t.Errorf("baseURL = %q, want trailing slash trimmed", c.baseURL)
		}
		if c.httpClient.Timeout != DefaultTimeout {
			t.Errorf("Timeout = %v, want %v", c.httpClient.Timeout, DefaultTimeout)
		}
		if c.maxRetries != 0 {
			t.Errorf("maxRetries = %d, want 0", c.maxRetries)
		}
		if c.limiter != nil {
			t.Error("limiter should be nil by default")
		}
		if c.logger == nil {
			t.Error("logger should not be nil")
		}
	})

	t.Run("with options", func(t *testing.T) {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		hc := &http.Client{}
		c := NewClient("https://engine.example.com", nil,
			WithHTTPClient(hc),
			WithTimeout(5*time.Second),
			WithRetries(5, 2*time.Second),
			WithRateLimit(20, 5),
			WithLogger(logger),
		)
		if c.httpClient == hc {
			t.Error("custom HTTP client should be copied")
		}
		if c.httpClient.Timeout != 5*time.Second {
			t.Errorf("Timeout = %v, want 5s", c.httpClient.Timeout)
		}
		if hc.Timeout != 0 {
			t.Errorf("caller's client Timeout = %v, want untouched", hc.Timeout)
		}
		if c.maxRetries != 5 || c.retryBackoff != 2*time.Second {
			t.Errorf("retries = %d/%v, want 5/2s", c.maxRetries, c.retryBackoff)
		}
		if c.limiter == nil || c.limiter.Burst() != 5 {
			t.Error("rate limiter not configured")
		}
	})

	t.Run("shared HTTP client keeps its settings", func(t *testing.T) {
		transport := &http.Transport{}
		shared := &http.Client{Transport: transport, Timeout: 30 * time.Second}
		a := NewClient("https://engine.example.com", nil, WithHTTPClient(shared), WithTimeout(time.Second))
		b := NewClient("https://engine.example.com", nil, WithHTTPClient(shared), WithTimeout(2*time.Second))

		if shared.Timeout != 30*time.Second {
			t.Errorf("shared Timeout = %v, want 30s", shared.Timeout)
		}
		if a.httpClient.Timeout != time.Second || b.httpClient.Timeout != 2*time.Second {
			t.Errorf("timeouts = %v/%v, want 1s/2s", a.httpClient.Timeout, b.httpClient.Timeout)
		}
		if a.httpClient.Transport != transport {
			t.Error("transport should be shared with the caller's client")
		}
	})

	t.Run("zero rate disables limiter", func(t *testing.T) {
		c := NewClient("https://engine.example.com", nil, WithRateLimit(0, 10))
		if c.limiter != nil {
			t.Error("limiter should be nil for zero rate")
		}
	})
}

// TestDoRequest tests error normalization and headers.
func TestDoRequest(t *testing.T) {
	t.Run("successful request with headers", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") != "application/json" {
				t.Errorf("Accept header = %q", r.Header.Get("Accept"))
			}
			if r.Header.Get("Authorization") != "Bearer test-key" {
				t.Errorf("Authorization header = %q", r.Header.Get("Authorization"))
			}
			if r.Header.Get("User-Agent") != version.UserAgent() {
				t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
			}
			w.Write([]byte(`{"status": "ok"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, testCreds(t))
		body, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"status": "ok"}` {
			t.Errorf("body = %q", string(body))
		}
	})

	t.Run("request without credentials", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "" {
				t.Errorf("Authorization header should be empty, got %q", r.Header.Get("Authorization"))
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, nil)
		if _, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("json body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			}
			data, _ := io.ReadAll(r.Body)
			if string(data) != `{"id":"n1","type":"task"}` {
				t.Errorf("body = %s", data)
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, nil)
		_, err := c.doRequest(context.Background(), http.MethodPost, "/test", model.Node{ID: "n1", Type: "task"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("4xx error returns HTTP_ERROR", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "not found"}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, nil)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		e := asModelError(t, err)
		if e.Kind != model.KindHTTP {
			t.Errorf("Kind = %q, want HTTP_ERROR", e.Kind)
		}
		if e.StatusCode != 404 {
			t.Errorf("StatusCode = %d, want 404", e.StatusCode)
		}
		if !strings.Contains(string(e.Body), "not found") {
			t.Errorf("Body should contain 'not found', got %q", e.Body)
		}
	})

	t.Run("transport failure has status 0", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		url := server.URL
		server.Close()

		c := NewClient(url, nil)
		_, err := c.doRequest(context.Background(), http.MethodGet, "/test", nil)
		e := asModelError(t, err)
		if e.Kind != model.KindHTTP || e.StatusCode != 0 {
			t.Errorf("got %s/%d, want HTTP_ERROR/0", e.Kind, e.StatusCode)
		}
		if e.Err == nil {
			t.Error("expected wrapped cause")
		}
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			time.Sleep(100 * time.Millisecond)
		}))
		defer server.Close()

		c := NewClient(server.URL, nil)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := c.doRequest(ctx, http.MethodGet, "/test", nil)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled in chain, got %v", err)
		}
		asModelError(t, err)
	})
}

// TestDoWithRetry tests the opt-in retry logic.
func TestDoWithRetry(t *testing.T) {
	t.Run("no retries by default", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, nil)
		if _, err := c.doWithRetry(context.Background(), "/test"); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("retries on 5xx and succeeds", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) < 3 {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"ok": true}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, nil, WithRetries(3, 10*time.Millisecond))
		body, err := c.doWithRetry(context.Background(), "/test")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != `{"ok": true}` {
			t.Errorf("body = %q", string(body))
		}
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("retries on 429", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&attempts, 1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			w.Write([]byte(`{}`))
		}))
		defer server.Close()

		c := NewClient(server.URL, nil, WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), "/test"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 2 {
			t.Errorf("attempts = %d, want 2", attempts)
		}
	})

	t.Run("does not retry on 4xx", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		c := NewClient(server.URL, nil, WithRetries(3, 10*time.Millisecond))
		if _, err := c.doWithRetry(context.Background(), "/test"); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})

	t.Run("max retries exceeded returns last error", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer server.Close()

		c := NewClient(server.URL, nil, WithRetries(2, 10*time.Millisecond))
		_, err := c.doWithRetry(context.Background(), "/test")
		if e := asModelError(t, err); e.StatusCode != http.StatusBadGateway {
			t.Errorf("StatusCode = %d, want 502", e.StatusCode)
		}
		// 1 initial + 2 retries = 3 attempts
		if attempts != 3 {
			t.Errorf("attempts = %d, want 3", attempts)
		}
	})

	t.Run("POST is never retried", func(t *testing.T) {
		var attempts int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&attempts, 1)
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		c := NewClient(server.URL, nil, WithRetries(3, 10*time.Millisecond))
		if _, err := c.CreateNode(context.Background(), model.Node{Type: "task"}); err == nil {
			t.Fatal("expected error, got nil")
		}
		if attempts != 1 {
			t.Errorf("attempts = %d, want 1", attempts)
		}
	})
}

// recorder captures the last request and replies with a fixed body.
type recorder struct {
	mu     sync.Mutex
	method string
	path   string
	body   string
}

func recordingServer(t *testing.T, reply string) (*httptest.Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		rec.mu.Lock()
		defer rec.mu.Unlock()
		rec.method = r.Method
		rec.path = r.URL.EscapedPath()
		rec.body = string(data)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(server.Close)
	return server, rec
}

func TestGraphOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("GetGraph", func(t *testing.T) {
		server, rec := recordingServer(t, `{"nodes":[{"id":"n1","type":"task"}],"edges":[]}`)
		g, err := NewClient(server.URL, nil).GetGraph(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.method != http.MethodGet || rec.path != "/api/graph" {
			t.Errorf("request = %s %s", rec.method, rec.path)
		}
		if len(g.Nodes) != 1 || g.Nodes[0].ID != "n1" {
			t.Errorf("nodes = %+v", g.Nodes)
		}
	})

	t.Run("UpdateNode escapes id", func(t *testing.T) {
		server, rec := recordingServer(t, `{"id":"a/b","type":"task","label":"x"}`)
		n, err := NewClient(server.URL, nil).UpdateNode(ctx, model.Node{ID: "a/b", Type: "task", Label: "x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.method != http.MethodPut || rec.path != "/api/graph/nodes/a%2Fb" {
			t.Errorf("request = %s %s", rec.method, rec.path)
		}
		if n.Label != "x" {
			t.Errorf("Label = %q", n.Label)
		}
	})

	t.Run("DeleteEdge with empty body", func(t *testing.T) {
		server, rec := recordingServer(t, ``)
		if err := NewClient(server.URL, nil).DeleteEdge(ctx, "e1"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.method != http.MethodDelete || rec.path != "/api/graph/edges/e1" {
			t.Errorf("request = %s %s", rec.method, rec.path)
		}
	})

	t.Run("CreateEdge", func(t *testing.T) {
		server, rec := recordingServer(t, `{"id":"e9","source":"a","target":"b"}`)
		e, err := NewClient(server.URL, nil).CreateEdge(ctx, model.Edge{Source: "a", Target: "b"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.method != http.MethodPost || rec.path != "/api/graph/edges" {
			t.Errorf("request = %s %s", rec.method, rec.path)
		}
		if e.ID != "e9" {
			t.Errorf("ID = %q", e.ID)
		}
	})
}

func TestApprovalOperations(t *testing.T) {
	ctx := context.Background()

	t.Run("Approve sends comment", func(t *testing.T) {
		server, rec := recordingServer(t, `{"id":"ap1","status":"approved"}`)
		a, err := NewClient(server.URL, nil).Approve(ctx, "ap1", "looks good")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.path != "/api/approvals/ap1/approve" || rec.body != `{"comment":"looks good"}` {
			t.Errorf("request = %s %s", rec.path, rec.body)
		}
		if a.Status != "approved" {
			t.Errorf("Status = %q", a.Status)
		}
	})

	t.Run("Approve without comment", func(t *testing.T) {
		server, rec := recordingServer(t, `{}`)
		if _, err := NewClient(server.URL, nil).Approve(ctx, "ap1", ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.body != `{}` {
			t.Errorf("body = %s, want {}", rec.body)
		}
	})

	t.Run("Reject sends reason", func(t *testing.T) {
		server, rec := recordingServer(t, `{"id":"ap1","status":"rejected","reason":"no"}`)
		if _, err := NewClient(server.URL, nil).Reject(ctx, "ap1", "no"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.path != "/api/approvals/ap1/reject" || rec.body != `{"reason":"no"}` {
			t.Errorf("request = %s %s", rec.path, rec.body)
		}
	})

	t.Run("PendingApprovals", func(t *testing.T) {
		server, rec := recordingServer(t, `[{"id":"a"},{"id":"b"}]`)
		list, err := NewClient(server.URL, nil).PendingApprovals(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.path != "/api/approvals/pending" || len(list) != 2 {
			t.Errorf("path = %s, len = %d", rec.path, len(list))
		}
	})
}

func TestValidationAndHealth(t *testing.T) {
	ctx := context.Background()

	server, rec := recordingServer(t, `{"valid":false,"errors":[{"code":"CYCLE","message":"cycle","nodeId":"n1"}],"warnings":[]}`)
	res, err := NewClient(server.URL, nil).ValidateNode(ctx, "n1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.method != http.MethodPost || rec.path != "/api/validation/nodes/n1" {
		t.Errorf("request = %s %s", rec.method, rec.path)
	}
	if res.Valid || len(res.Errors) != 1 || res.Errors[0].NodeID != "n1" {
		t.Errorf("result = %+v", res)
	}

	server, _ = recordingServer(t, `{"status":"ok","timestamp":"2024-01-01T00:00:00Z"}`)
	probe, err := NewClient(server.URL, nil).Health(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !probe.Healthy() {
		t.Errorf("probe = %+v, want healthy", probe)
	}
}

func TestOrchestrate(t *testing.T) {
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		server, rec := recordingServer(t, `{"id":"o1","status":"completed","result":{"x":1}}`)
		res, err := NewClient(server.URL, nil).Orchestrate(ctx, model.OrchestrationRequest{ID: "o1", Payload: json.RawMessage(`{}`)})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.path != "/api/agents/orchestrate" {
			t.Errorf("path = %s", rec.path)
		}
		if string(res.Result) != `{"x":1}` {
			t.Errorf("Result = %s", res.Result)
		}
	})

	t.Run("failed maps to AGENT_ERROR", func(t *testing.T) {
		server, _ := recordingServer(t, `{"id":"o1","status":"failed","error":"planner crashed"}`)
		res, err := NewClient(server.URL, nil).Orchestrate(ctx, model.OrchestrationRequest{ID: "o1"})
		e := asModelError(t, err)
		if e.Kind != model.KindAgent || e.Message != "planner crashed" {
			t.Errorf("error = %v", e)
		}
		if res == nil || res.Status != model.StatusFailed {
			t.Errorf("result = %+v", res)
		}
	})
}

func TestDo(t *testing.T) {
	tests := []struct {
		op     model.Operation
		params string
		method string
		path   string
		body   string
	}{
		{model.OpGetGraph, ``, http.MethodGet, "/api/graph", ""},
		{model.OpHealth, ``, http.MethodGet, "/health", ""},
		{model.OpGetNode, `{"id":"n1"}`, http.MethodGet, "/api/graph/nodes/n1", ""},
		{model.OpCreateNode, `{"id":"","type":"task"}`, http.MethodPost, "/api/graph/nodes", `{"id":"","type":"task"}`},
		{model.OpUpdateNode, `{"id":"n1","type":"task"}`, http.MethodPut, "/api/graph/nodes/n1", `{"id":"n1","type":"task"}`},
		{model.OpDeleteNode, `{"id":"n1"}`, http.MethodDelete, "/api/graph/nodes/n1", ""},
		{model.OpGetEdge, `{"id":"e1"}`, http.MethodGet, "/api/graph/edges/e1", ""},
		{model.OpCreateEdge, `{"source":"a","target":"b"}`, http.MethodPost, "/api/graph/edges", `{"source":"a","target":"b"}`},
		{model.OpUpdateEdge, `{"id":"e1"}`, http.MethodPut, "/api/graph/edges/e1", `{"id":"e1"}`},
		{model.OpDeleteEdge, `{"id":"e1"}`, http.MethodDelete, "/api/graph/edges/e1", ""},
		{model.OpOrchestrate, `{"id":"o1","payload":{}}`, http.MethodPost, "/api/agents/orchestrate", `{"id":"o1","payload":{}}`},
		{model.OpListPendingApproval, ``, http.MethodGet, "/api/approvals/pending", ""},
		{model.OpGetApproval, `{"id":"a1"}`, http.MethodGet, "/api/approvals/a1", ""},
		{model.OpApprove, `{"id":"a1","comment":"ok"}`, http.MethodPost, "/api/approvals/a1/approve", `{"comment":"ok"}`},
		{model.OpReject, `{"id":"a1","reason":"bad"}`, http.MethodPost, "/api/approvals/a1/reject", `{"reason":"bad"}`},
		{model.OpValidateGraph, ``, http.MethodPost, "/api/validation/graph", ""},
		{model.OpValidateNode, `{"id":"n1"}`, http.MethodPost, "/api/validation/nodes/n1", ""},
		{model.OpValidateEdge, `{"id":"e1"}`, http.MethodPost, "/api/validation/edges/e1", ""},
	}

	for _, tt := range tests {
		t.Run(string(tt.op), func(t *testing.T) {
			server, rec := recordingServer(t, `{"status":"completed"}`)
			var params json.RawMessage
			if tt.params != "" {
				params = json.RawMessage(tt.params)
			}

			raw, err := NewClient(server.URL, nil).Do(context.Background(), tt.op, params)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if rec.method != tt.method || rec.path != tt.path {
				t.Errorf("request = %s %s, want %s %s", rec.method, rec.path, tt.method, tt.path)
			}
			if rec.body != tt.body {
				t.Errorf("body = %q, want %q", rec.body, tt.body)
			}
			if string(raw) != `{"status":"completed"}` {
				t.Errorf("result = %s", raw)
			}
		})
	}
}

func TestDo_Errors(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil)

	if _, err := c.Do(context.Background(), "bogus.op", nil); !errors.Is(err, ErrUnknownOperation) {
		t.Errorf("expected ErrUnknownOperation, got %v", err)
	}
	if _, err := c.Do(context.Background(), model.OpGetNode, nil); err == nil {
		t.Error("expected error for missing params")
	}
	if _, err := c.Do(context.Background(), model.OpGetNode, json.RawMessage(`{"id":""}`)); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestDo_OrchestrateFailed(t *testing.T) {
	server, _ := recordingServer(t, `{"id":"o1","status":"failed","error":"boom"}`)
	_, err := NewClient(server.URL, nil).Do(context.Background(), model.OpOrchestrate, json.RawMessage(`{"id":"o1"}`))
	if !model.IsKind(err, model.KindAgent) {
		t.Errorf("expected AGENT_ERROR, got %v", err)
	}
}
