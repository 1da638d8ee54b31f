package common

import "fmt"

// State is the position of one record in the issue-and-print pipeline.
// Mint through Persist are driven by generation and import; Compose onward
// by the carnet orchestrator.
type State int

const (
	StateMint State = iota
	StateEncode
	StateVerifyEncode
	StatePersist
	StateCompose
	StateVerifyRender
	StateWriteArtifact
	StateAccepted
	StateFailed
	StateCancelled
)

var stateNames = [...]string{
	"mint", "encode", "verify-encode", "persist", "compose",
	"verify-render", "write-artifact", "accepted", "failed", "cancelled",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateAccepted || s == StateFailed || s == StateCancelled
}

// Progress is one update of a long-running operation. Current is 1-based.
type Progress struct {
	Current   int
	Total     int
	Remaining int
	State     State
	Message   string
}

// ProgressFunc receives progress updates on the caller's goroutine.
// A nil ProgressFunc discards them.
type ProgressFunc func(Progress)

// Report calls f when it is non-nil.
func (f ProgressFunc) Report(p Progress) {
	if f != nil {
		f(p)
	}
}
