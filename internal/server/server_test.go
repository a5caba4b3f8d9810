package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"overmind/internal/eventhub"
	"overmind/internal/observability"
	"overmind/internal/shared/logging"
	"overmind/internal/timeline"
)

func newTestServer(t *testing.T) (*Server, *timeline.Store, *eventhub.Hub) {
	t.Helper()
	store := timeline.NewStore()
	hub := eventhub.NewHub()
	t.Cleanup(hub.Close)

	srv, err := NewServer(DefaultConfig(), store, hub, WithLogger(logging.Nop()))
	require.NoError(t, err)
	return srv, store, hub
}

func postEvent(t *testing.T, srv *Server, body string) injectResponse {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(body))
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp injectResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestInjectEventOutcomes(t *testing.T) {
	srv, _, _ := newTestServer(t)

	resp := postEvent(t, srv, `{"type":"RUN_STARTED","payload":{"run_id":"m:1","seq":1}}`)
	require.Equal(t, "applied", resp.Outcome)

	resp = postEvent(t, srv, `{"type":"RUN_STARTED","payload":{"run_id":"m:1","seq":1}}`)
	require.Equal(t, "stale", resp.Outcome)

	resp = postEvent(t, srv, `this is not json`)
	require.Equal(t, "malformed", resp.Outcome)
}

func TestInjectEventBatch(t *testing.T) {
	srv, store, _ := newTestServer(t)

	batch := `[
		{"type":"RUN_STARTED","payload":{"run_id":"m:1","seq":1}},
		{"type":"PHASE_STARTED","payload":{"run_id":"m:1","phase":"planning","seq":2}},
		{"type":"PHASE_STARTED","payload":{"run_id":"m:1","phase":"planning","seq":2}}
	]`

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/events", strings.NewReader(batch))
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp struct {
		Outcomes []string `json:"outcomes"`
		Version  uint64   `json:"version"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, []string{"applied", "applied", "stale"}, resp.Outcomes)

	snapshot := store.Snapshot()
	require.Equal(t, []timeline.PhaseStatus{{Phase: "plan", Status: timeline.StatusRunning}}, snapshot.Timeline)
}

func TestTimelineEndpointServesProjection(t *testing.T) {
	srv, _, _ := newTestServer(t)

	postEvent(t, srv, `{"type":"RUN_STARTED","payload":{"run_id":"m:1","seq":1}}`)
	postEvent(t, srv, `{"type":"PHASE_STARTED","payload":{"run_id":"m:1","phase":"planning","seq":2}}`)
	postEvent(t, srv, `{"type":"PHASE_COMPLETED","payload":{"run_id":"m:1","phase":"planning","seq":3}}`)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var snapshot timeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	require.Equal(t, "m:1", snapshot.ActiveRunID)
	require.Equal(t, int64(3), snapshot.LastSeq)
	require.Equal(t, []timeline.PhaseStatus{{Phase: "plan", Status: timeline.StatusCompleted}}, snapshot.Timeline)
}

func TestTimelineEndpointCachesByVersion(t *testing.T) {
	srv, _, _ := newTestServer(t)

	postEvent(t, srv, `{"type":"PHASE_STARTED","payload":{"run_id":"m:1","phase":"design","seq":1}}`)

	first := httptest.NewRecorder()
	srv.Handler().ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))
	second := httptest.NewRecorder()
	srv.Handler().ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))

	require.Equal(t, first.Body.Bytes(), second.Body.Bytes())

	// A change must invalidate the cached body.
	postEvent(t, srv, `{"type":"PHASE_COMPLETED","payload":{"run_id":"m:1","phase":"design","seq":2}}`)
	third := httptest.NewRecorder()
	srv.Handler().ServeHTTP(third, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))
	require.NotEqual(t, first.Body.Bytes(), third.Body.Bytes())
}

func TestTimelineCacheReflectsBookkeeping(t *testing.T) {
	srv, store, _ := newTestServer(t)

	postEvent(t, srv, `{"type":"PHASE_COMPLETED","payload":{"run_id":"m:1","phase":"planning","seq":1}}`)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))
	var first timeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	require.Equal(t, int64(1), first.LastSeq)

	// A rejected regression still advances the cursor; the endpoint must
	// not keep serving the pre-rejection snapshot.
	resp := postEvent(t, srv, `{"type":"PHASE_STARTED","payload":{"run_id":"m:1","phase":"planning","seq":9}}`)
	require.Equal(t, "rejected", resp.Outcome)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))
	var second timeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	require.Equal(t, store.Snapshot().LastSeq, second.LastSeq)
	require.Equal(t, int64(9), second.LastSeq)
}

func TestRunsEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	postEvent(t, srv, `{"type":"RUN_STARTED","payload":{"run_id":"m:1","seq":1}}`)
	postEvent(t, srv, `{"type":"RUN_STARTED","payload":{"run_id":"m:2","seq":2}}`)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		ActiveRunID string                `json:"active_run_id"`
		Runs        []timeline.RunSummary `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "m:2", resp.ActiveRunID)
	require.Len(t, resp.Runs, 2)
	require.Equal(t, "m:1", resp.Runs[0].ID)
	require.False(t, resp.Runs[0].Active)
	require.True(t, resp.Runs[1].Active)
}

func TestResetEndpointWipesState(t *testing.T) {
	srv, store, _ := newTestServer(t)

	postEvent(t, srv, `{"type":"PHASE_STARTED","payload":{"run_id":"m:1","phase":"execution","seq":9}}`)
	require.NotEmpty(t, store.Snapshot().Timeline)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/reset", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	snapshot := store.Snapshot()
	require.Empty(t, snapshot.Timeline)
	require.Equal(t, int64(-1), snapshot.LastSeq)
}

func TestRequestsOpenServerSpans(t *testing.T) {
	store := timeline.NewStore()
	tracer := &captureTracer{}

	srv, err := NewServer(DefaultConfig(), store, nil,
		WithLogger(logging.Nop()), WithTracer(tracer))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/timeline", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	srv.Handler().ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, []string{observability.SpanHTTPServer, observability.SpanHTTPServer}, tracer.names())
}

type captureTracer struct {
	mu    sync.Mutex
	spans []string
}

func (t *captureTracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, name)
	return ctx, noop.Span{}
}

func (t *captureTracer) names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.spans...)
}

func TestHealthEndpoint(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp.Status)
}
