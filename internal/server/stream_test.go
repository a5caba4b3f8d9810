package server

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"overmind/internal/eventhub"
	"overmind/internal/observability"
	"overmind/internal/shared/logging"
	"overmind/internal/timeline"
)

func TestStreamPushesSnapshots(t *testing.T) {
	store := timeline.NewStore()
	hub := eventhub.NewHub()
	defer hub.Close()

	tracer := &captureTracer{}
	srv, err := NewServer(DefaultConfig(), store, hub, WithLogger(logging.Nop()), WithTracer(tracer))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	defer func() { _ = conn.Close() }()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	// First frame is the current (empty) snapshot.
	var initial timeline.Snapshot
	require.NoError(t, conn.ReadJSON(&initial))
	require.Empty(t, initial.Timeline)
	require.Equal(t, int64(-1), initial.LastSeq)

	// Applying an event through the store publishes an update.
	outcome, changed := store.Apply(timeline.Event{
		Type:  timeline.EventPhaseStarted,
		RunID: "m:1",
		Phase: "planning",
		Seq:   timeline.Seq(1),
	})
	require.Equal(t, timeline.OutcomeApplied, outcome)
	require.True(t, changed)
	hub.Publish(store.Snapshot())

	var update timeline.Snapshot
	require.NoError(t, conn.ReadJSON(&update))
	require.Equal(t, []timeline.PhaseStatus{{Phase: "plan", Status: timeline.StatusRunning}}, update.Timeline)
	require.Equal(t, "m:1", update.ActiveRunID)

	// Both the initial frame and the update carried a push span.
	pushes := 0
	for _, name := range tracer.names() {
		if name == observability.SpanStreamPush {
			pushes++
		}
	}
	require.GreaterOrEqual(t, pushes, 2)
}

func TestStreamUnavailableWithoutHub(t *testing.T) {
	store := timeline.NewStore()

	srv, err := NewServer(DefaultConfig(), store, nil, WithLogger(logging.Nop()))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	if conn != nil {
		_ = conn.Close()
	}
	require.NotNil(t, resp)
	_ = resp.Body.Close()
}
