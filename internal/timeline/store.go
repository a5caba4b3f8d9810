package timeline

import "sync"

// Snapshot is a self-contained copy of the reconciled timeline, safe to
// hand to other goroutines.
type Snapshot struct {
	Version     uint64        `json:"version"`
	ActiveRunID string        `json:"active_run_id"`
	LastSeq     int64         `json:"last_seq"`
	Timeline    []PhaseStatus `json:"timeline"`
	Runs        []RunSummary  `json:"runs"`
}

// Store guards one State for concurrent hosts. The reducer itself is pure;
// the store only serializes event delivery, which is all the engine asks of
// its hosting runtime.
type Store struct {
	mu      sync.RWMutex
	state   State
	version uint64
}

// NewStore creates a store holding the empty initial state.
func NewStore() *Store {
	return &Store{state: NewState()}
}

// Apply reduces one event into the store and reports the outcome plus
// whether the snapshot-visible state changed. Bookkeeping-only events
// (dropped with a fresh sequence number) count as changes: the snapshot
// exposes LastSeq, so its version must move with it.
func (s *Store) Apply(ev Event) (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.state
	next, outcome := ReduceOutcome(s.state, ev)
	changed := outcome == OutcomeApplied || outcome == OutcomeReset ||
		next.LastSeq != prev.LastSeq || next.ActiveRunID != prev.ActiveRunID
	s.state = next
	if changed {
		s.version++
	}
	return outcome, changed
}

// Reset wipes the session unconditionally.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = NewState()
	s.version++
}

// Version reports the number of projection-visible changes so far.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Snapshot derives the full projection from the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Version:     s.version,
		ActiveRunID: s.state.ActiveRunID,
		LastSeq:     s.state.LastSeq,
		Timeline:    s.state.Projection(),
		Runs:        s.state.Runs(),
	}
}
