package timeline

import "strings"

// opKind tags the canonical operation an event type maps to.
type opKind int

const (
	opIgnore opKind = iota
	opRunStart
	opPhaseSet
	opReset
)

type op struct {
	kind   opKind
	status Status
}

// kindTable is the normalization dispatch table: one entry per known event
// type, canonical and legacy alike. Types absent from the table are ignored
// (they still advance sequence bookkeeping when sequenced).
var kindTable = map[string]op{
	EventRunStarted:      {kind: opRunStart},
	EventPhaseStarted:    {kind: opPhaseSet, status: StatusRunning},
	EventPhaseCompleted:  {kind: opPhaseSet, status: StatusCompleted},
	LegacyLoopStart:      {kind: opRunStart},
	LegacyPhaseStart:     {kind: opPhaseSet, status: StatusRunning},
	LegacyPhaseCompleted: {kind: opPhaseSet, status: StatusCompleted},
	LegacySessionInit:    {kind: opReset},
}

// phaseLabels maps the orchestrator's cognitive-phase labels to the stable
// identifiers used in the projection.
var phaseLabels = map[string]string{
	"planning":    "plan",
	"review_plan": "review",
	"design":      "design",
	"execution":   "execute",
	"reflection":  "reflect",
	"re_planning": "replan",
}

// CanonicalPhase resolves a raw phase label to its canonical name.
// Unrecognized labels pass through case-folded; blank labels resolve to "".
func CanonicalPhase(label string) string {
	folded := strings.ToLower(strings.TrimSpace(label))
	if folded == "" {
		return ""
	}
	if canonical, ok := phaseLabels[folded]; ok {
		return canonical
	}
	return folded
}

func normalize(eventType string) (op, bool) {
	entry, ok := kindTable[eventType]
	return entry, ok
}
