package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/relayhq/agents/events"
	"github.com/relayhq/agents/pipeline"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// trigger records how the router dispatched a run.
type trigger struct {
	mu        sync.Mutex
	fresh     int
	sessionID string
	requestID string
	result    pipeline.Result
}

func (tr *trigger) run(ctx context.Context) pipeline.Result {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.fresh++
	return tr.result
}

func (tr *trigger) resume(ctx context.Context, sessionID, requestID string) pipeline.Result {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.sessionID = sessionID
	tr.requestID = requestID
	return tr.result
}

func newTestRouter(t *testing.T, cfg Config) *gin.Engine {
	t.Helper()
	if cfg.AgentID == "" {
		cfg.AgentID = "curator"
	}
	router, err := NewRouter(cfg)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return router
}

func postRun(router *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/agent/run", nil)
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) pipeline.Result {
	t.Helper()
	var result pipeline.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode result: %v (body %q)", err, rec.Body.String())
	}
	return result
}

func TestNewRouterValidatesConfig(t *testing.T) {
	if _, err := NewRouter(Config{Run: (&trigger{}).run}); err == nil {
		t.Fatal("expected error for missing AgentID")
	}
	if _, err := NewRouter(Config{AgentID: "curator"}); err == nil {
		t.Fatal("expected error for missing Run")
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, Config{Run: (&trigger{}).run})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %q, want %q", body["status"], "ok")
	}
}

func TestRunWithoutHeadersStartsFreshRun(t *testing.T) {
	tr := &trigger{result: pipeline.Result{Success: true, SessionID: "sess-1"}}
	router := newTestRouter(t, Config{Run: tr.run, Continue: tr.resume})

	rec := postRun(router, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if tr.fresh != 1 {
		t.Errorf("fresh runs = %d, want 1", tr.fresh)
	}
	result := decodeResult(t, rec)
	if !result.Success || result.SessionID != "sess-1" {
		t.Errorf("result = %+v, want success with sess-1", result)
	}
}

func TestRunFailureStaysHTTP200(t *testing.T) {
	tr := &trigger{result: pipeline.Result{Success: false, Reason: "model returned invalid JSON"}}
	router := newTestRouter(t, Config{Run: tr.run})

	rec := postRun(router, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	result := decodeResult(t, rec)
	if result.Success {
		t.Error("result.Success = true, want false")
	}
	if result.Reason != "model returned invalid JSON" {
		t.Errorf("result.Reason = %q, want the run's own message", result.Reason)
	}
}

func TestRunWithBothHeadersResumes(t *testing.T) {
	tr := &trigger{result: pipeline.Result{Success: true, SessionID: "sess-7"}}
	router := newTestRouter(t, Config{Run: tr.run, Continue: tr.resume})

	rec := postRun(router, map[string]string{
		HeaderSessionID: "sess-7",
		HeaderRequestID: "req-3",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if tr.fresh != 0 {
		t.Errorf("fresh runs = %d, want 0", tr.fresh)
	}
	if tr.sessionID != "sess-7" || tr.requestID != "req-3" {
		t.Errorf("resume got (%q, %q), want (sess-7, req-3)", tr.sessionID, tr.requestID)
	}
}

func TestRunWithSingleHeaderIsRejected(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		missing string
	}{
		{
			name:    "session id only",
			headers: map[string]string{HeaderSessionID: "sess-7"},
			missing: HeaderRequestID,
		},
		{
			name:    "request id only",
			headers: map[string]string{HeaderRequestID: "req-3"},
			missing: HeaderSessionID,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := &trigger{result: pipeline.Result{Success: true}}
			router := newTestRouter(t, Config{Run: tr.run, Continue: tr.resume})

			rec := postRun(router, tc.headers)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
			}
			if tr.fresh != 0 || tr.sessionID != "" {
				t.Error("no run should have been dispatched")
			}
			result := decodeResult(t, rec)
			if result.Success {
				t.Error("result.Success = true, want false")
			}
			if !strings.Contains(result.Reason, tc.missing) {
				t.Errorf("result.Reason = %q, want mention of %s", result.Reason, tc.missing)
			}
		})
	}
}

func TestContinuationHeadersRejectedWithoutSupport(t *testing.T) {
	tr := &trigger{result: pipeline.Result{Success: true}}
	router := newTestRouter(t, Config{Run: tr.run})

	rec := postRun(router, map[string]string{
		HeaderSessionID: "sess-7",
		HeaderRequestID: "req-3",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	result := decodeResult(t, rec)
	if result.Success {
		t.Error("result.Success = true, want false")
	}
	if !strings.Contains(result.Reason, "continuation") {
		t.Errorf("result.Reason = %q, want mention of continuation", result.Reason)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, Config{Run: (&trigger{}).run, Metrics: true})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if !strings.Contains(rec.Body.String(), "go_") {
		t.Error("expected Prometheus exposition with runtime metrics")
	}
}

func TestMetricsEndpointDisabledByDefault(t *testing.T) {
	router := newTestRouter(t, Config{Run: (&trigger{}).run})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestEventsEndpointRequiresUpgrade(t *testing.T) {
	hub := events.NewHub()
	defer hub.Close()
	router := newTestRouter(t, Config{Run: (&trigger{}).run, Hub: hub})

	// A plain GET is not a websocket handshake; the route must exist
	// and the upgrader must reject it.
	req := httptest.NewRequest(http.MethodGet, "/agent/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code == http.StatusNotFound {
		t.Fatal("events route not registered")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d for a non-websocket request", rec.Code, http.StatusBadRequest)
	}
}
