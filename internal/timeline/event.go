package timeline

import (
	"encoding/json"
	"strings"
)

// Status captures the lifecycle state of a mission phase.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

// Canonical event types emitted by the orchestrator.
const (
	EventRunStarted     = "RUN_STARTED"
	EventPhaseStarted   = "PHASE_STARTED"
	EventPhaseCompleted = "PHASE_COMPLETED"
)

// Legacy brain-event types. These are permanently supported, not
// transitional: old orchestrator builds still emit them.
const (
	LegacyLoopStart      = "loop_start"
	LegacyPhaseStart     = "phase_start"
	LegacyPhaseCompleted = "phase_completed"
	LegacySessionInit    = "session_init"
)

// Event is one decoded progress record from the mission event stream.
// Seq is nil when the producer attached no sequence number.
type Event struct {
	Type  string
	RunID string
	Phase string
	Seq   *int64
}

type wirePayload struct {
	RunID string `json:"run_id"`
	Phase string `json:"phase"`
	Seq   *int64 `json:"seq"`
}

type wireEvent struct {
	Type    string      `json:"type"`
	Payload wirePayload `json:"payload"`
}

// Decode parses a raw wire record into an Event. It never fails hard:
// malformed frames report ok=false and are treated as no-ops upstream.
func Decode(data []byte) (Event, bool) {
	var wire wireEvent
	if err := json.Unmarshal(data, &wire); err != nil {
		return Event{}, false
	}
	eventType := strings.TrimSpace(wire.Type)
	if eventType == "" {
		return Event{}, false
	}
	return Event{
		Type:  eventType,
		RunID: strings.TrimSpace(wire.Payload.RunID),
		Phase: wire.Payload.Phase,
		Seq:   wire.Payload.Seq,
	}, true
}

// Seq builds a sequence pointer for event literals.
func Seq(n int64) *int64 {
	return &n
}
