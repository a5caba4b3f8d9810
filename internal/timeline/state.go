package timeline

// FallbackRunID receives phase events that arrive before any run context is
// known. The orchestrator normally declares a run first, but the engine must
// stay total over streams that never do.
const FallbackRunID = "default"

// initialSeq sits below every producer-assigned sequence number, including
// the 0 some producers start at.
const initialSeq = -1

// RunState tracks the phases of a single mission run. Phase insertion order
// is preserved so the projection can emit phases as they were first seen.
type RunState struct {
	ID     string
	order  []string
	phases map[string]Status
}

func newRunState(id string) *RunState {
	return &RunState{ID: id, phases: make(map[string]Status)}
}

func (r *RunState) set(phase string, status Status) {
	if _, exists := r.phases[phase]; !exists {
		r.order = append(r.order, phase)
	}
	r.phases[phase] = status
}

// Phase reports the status of a phase and whether it has started.
func (r *RunState) Phase(phase string) (Status, bool) {
	status, ok := r.phases[phase]
	return status, ok
}

func (r *RunState) clone() *RunState {
	dup := &RunState{
		ID:     r.ID,
		order:  append([]string(nil), r.order...),
		phases: make(map[string]Status, len(r.phases)),
	}
	for phase, status := range r.phases {
		dup.phases[phase] = status
	}
	return dup
}

// State is the reconciled view of every run seen this session. Values are
// treated as immutable: Reduce returns a fresh State and never mutates its
// input, so hosts may hold onto old states safely.
type State struct {
	ActiveRunID string
	LastSeq     int64
	runs        map[string]*RunState
}

// NewState returns the empty initial state.
func NewState() State {
	return State{LastSeq: initialSeq}
}

// Run looks up a run by id.
func (s State) Run(id string) (*RunState, bool) {
	run, ok := s.runs[id]
	return run, ok
}

// RunCount reports how many runs the session has seen.
func (s State) RunCount() int {
	return len(s.runs)
}

func (s State) clone() State {
	next := State{ActiveRunID: s.ActiveRunID, LastSeq: s.LastSeq}
	if s.runs != nil {
		next.runs = make(map[string]*RunState, len(s.runs))
		for id, run := range s.runs {
			next.runs[id] = run.clone()
		}
	}
	return next
}

func (s *State) ensureRun(id string) *RunState {
	if s.runs == nil {
		s.runs = make(map[string]*RunState)
	}
	run, ok := s.runs[id]
	if !ok {
		run = newRunState(id)
		s.runs[id] = run
	}
	return run
}

// Outcome classifies what an event did to the state. Every outcome except
// OutcomeApplied and OutcomeReset means the projection did not change.
type Outcome int

const (
	// OutcomeApplied means the event mutated run or phase state.
	OutcomeApplied Outcome = iota
	// OutcomeReset means the event wiped the session.
	OutcomeReset
	// OutcomeStale means the ordering guard dropped the event.
	OutcomeStale
	// OutcomeIgnored means the event type is unknown or carried no usable
	// run context; only sequence bookkeeping advanced.
	OutcomeIgnored
	// OutcomeUnresolved means no canonical phase name was derivable.
	OutcomeUnresolved
	// OutcomeRejected means the phase transition was illegal.
	OutcomeRejected
)

// String returns the metric-label form of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeReset:
		return "reset"
	case OutcomeStale:
		return "stale"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeUnresolved:
		return "unresolved"
	case OutcomeRejected:
		return "rejected"
	}
	return "unknown"
}

// Reduce applies one event to the state and returns the resulting state.
// It is a total function: stale, malformed, unresolvable, or illegal input
// degrades to "no state change" rather than an error.
func Reduce(s State, ev Event) State {
	next, _ := ReduceOutcome(s, ev)
	return next
}

// ReduceOutcome is Reduce plus a classification of what happened, for hosts
// that record drop metrics. The state result is identical to Reduce's.
func ReduceOutcome(s State, ev Event) (State, Outcome) {
	entry, known := normalize(ev.Type)

	// A reset always applies, regardless of any sequence number it carries.
	if known && entry.kind == opReset {
		return NewState(), OutcomeReset
	}

	// Ordering guard: a stale sequence drops the event wholesale.
	if ev.Seq != nil && *ev.Seq <= s.LastSeq {
		return s, OutcomeStale
	}

	accept := func(next State) State {
		if ev.Seq != nil {
			next.LastSeq = *ev.Seq
		}
		return next
	}

	if !known || entry.kind == opIgnore {
		return accept(s), OutcomeIgnored
	}

	switch entry.kind {
	case opRunStart:
		if ev.RunID == "" {
			return accept(s), OutcomeIgnored
		}
		next := s.clone()
		next.ensureRun(ev.RunID)
		// Refocus unconditionally: iteration loops reuse run ids and each
		// start signal must still bring its run back to the foreground.
		next.ActiveRunID = ev.RunID
		return accept(next), OutcomeApplied

	case opPhaseSet:
		phase := CanonicalPhase(ev.Phase)
		if phase == "" {
			return accept(s), OutcomeUnresolved
		}
		runID := ev.RunID
		if runID == "" {
			runID = s.ActiveRunID
		}
		if runID == "" {
			runID = FallbackRunID
		}
		if run, ok := s.runs[runID]; ok {
			if current, ok := run.phases[phase]; ok && current == StatusCompleted && entry.status == StatusRunning {
				// Completed phases never regress. The rejected event leaves
				// the run registry and focus untouched; only the sequence
				// cursor advances.
				return accept(s), OutcomeRejected
			}
		}
		next := s.clone()
		run := next.ensureRun(runID)
		// The backend-declared run context wins over whatever run the
		// client last considered active.
		next.ActiveRunID = runID
		run.set(phase, entry.status)
		return accept(next), OutcomeApplied
	}

	return accept(s), OutcomeIgnored
}
