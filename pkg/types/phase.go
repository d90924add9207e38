package types

import "fmt"

// Phase is one step of the development cycle
type Phase string

const (
	PhaseSync    Phase = "sync"
	PhaseBranch  Phase = "branch"
	PhaseCommit  Phase = "commit"
	PhaseVerify  Phase = "verify"
	PhasePR      Phase = "pr"
	PhaseReview  Phase = "review"
	PhaseMerge   Phase = "merge"
	PhaseCleanup Phase = "cleanup"
)

// Phases lists every phase in execution order.
var Phases = []Phase{
	PhaseSync,
	PhaseBranch,
	PhaseCommit,
	PhaseVerify,
	PhasePR,
	PhaseReview,
	PhaseMerge,
	PhaseCleanup,
}

// Index returns the position of p in the cycle, or -1 for unknown phases.
func (p Phase) Index() int {
	for i, candidate := range Phases {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Next returns the phase after p. Cleanup wraps around to Sync.
func (p Phase) Next() Phase {
	i := p.Index()
	if i < 0 || i == len(Phases)-1 {
		return PhaseSync
	}
	return Phases[i+1]
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	return p.Index() >= 0
}

// ParsePhase converts a phase name into a Phase
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown phase %q", s)
	}
	return p, nil
}
