package timeline

import (
	"sort"
	"strconv"
	"strings"
)

// PhaseStatus is one entry of the externally consumable timeline.
type PhaseStatus struct {
	Phase  string `json:"phase"`
	Status Status `json:"status"`
}

// RunSummary describes one run for consumers that want per-run detail
// rather than the merged timeline.
type RunSummary struct {
	ID     string        `json:"id"`
	Active bool          `json:"active"`
	Phases []PhaseStatus `json:"phases"`
}

// Projection merges the phase maps of every known run into the ordered
// timeline. Runs are walked in iteration order (see compareRunIDs), with
// later runs overwriting shared phase keys, so the result reflects the most
// advanced known state of each phase. Phase order is first-seen insertion
// order across the walk.
func (s State) Projection() []PhaseStatus {
	ids := s.sortedRunIDs()

	var order []string
	merged := make(map[string]Status)
	for _, id := range ids {
		run := s.runs[id]
		for _, phase := range run.order {
			if _, seen := merged[phase]; !seen {
				order = append(order, phase)
			}
			merged[phase] = run.phases[phase]
		}
	}

	projection := make([]PhaseStatus, 0, len(order))
	for _, phase := range order {
		projection = append(projection, PhaseStatus{Phase: phase, Status: merged[phase]})
	}
	return projection
}

// Runs returns per-run summaries in the same walk order as Projection.
func (s State) Runs() []RunSummary {
	ids := s.sortedRunIDs()
	summaries := make([]RunSummary, 0, len(ids))
	for _, id := range ids {
		run := s.runs[id]
		phases := make([]PhaseStatus, 0, len(run.order))
		for _, phase := range run.order {
			phases = append(phases, PhaseStatus{Phase: phase, Status: run.phases[phase]})
		}
		summaries = append(summaries, RunSummary{
			ID:     id,
			Active: id == s.ActiveRunID,
			Phases: phases,
		})
	}
	return summaries
}

func (s State) sortedRunIDs() []string {
	ids := make([]string, 0, len(s.runs))
	for id := range s.runs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return compareRunIDs(ids[i], ids[j]) < 0
	})
	return ids
}

// compareRunIDs orders run identifiers for the merge walk. The orchestrator
// names runs "<mission>:<iteration>"; when both ids carry a numeric
// iteration suffix they compare by mission then iteration, so ":10" sorts
// after ":9". Anything else falls back to plain lexical order.
func compareRunIDs(a, b string) int {
	prefixA, iterA, okA := splitIterationSuffix(a)
	prefixB, iterB, okB := splitIterationSuffix(b)
	if okA && okB {
		if prefixA != prefixB {
			return strings.Compare(prefixA, prefixB)
		}
		switch {
		case iterA < iterB:
			return -1
		case iterA > iterB:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func splitIterationSuffix(id string) (prefix string, iteration int, ok bool) {
	cut := strings.LastIndex(id, ":")
	if cut < 0 {
		return "", 0, false
	}
	iteration, err := strconv.Atoi(id[cut+1:])
	if err != nil {
		return "", 0, false
	}
	return id[:cut], iteration, true
}
