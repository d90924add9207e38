// Package phase tracks where a task is in the development cycle.
package phase

import (
	"errors"
	"fmt"
	"sync"

	"github.com/clintrovert/trunkgate/pkg/types"
)

var (
	// ErrPhaseMismatch is returned when a result does not belong to the
	// current phase. Phases cannot be skipped.
	ErrPhaseMismatch = errors.New("result is not for the current phase")
	// ErrAbandoned is returned when applying results to an abandoned task.
	ErrAbandoned = errors.New("task abandoned")
)

// Status is the machine's disposition within the current phase
type Status string

const (
	StatusActive    Status = "active"
	StatusBlocked   Status = "blocked"
	StatusAbandoned Status = "abandoned"
)

// Snapshot is the serializable machine state
type Snapshot struct {
	Phase  types.Phase `json:"phase"`
	Status Status      `json:"status"`
	// Cycle counts completed Sync..Cleanup loops.
	Cycle int `json:"cycle"`
	// Attempts counts gate evaluations of the current phase.
	Attempts   int               `json:"attempts"`
	Violations []types.Violation `json:"violations,omitempty"`
}

// Machine is the per-task phase state machine. Readers may call it
// concurrently; a task has a single writer.
type Machine struct {
	mu    sync.RWMutex
	state Snapshot
}

// New creates a machine at the start of the cycle
func New() *Machine {
	return &Machine{state: Snapshot{Phase: types.PhaseSync, Status: StatusActive}}
}

// Restore rebuilds a machine from a snapshot
func Restore(s Snapshot) (*Machine, error) {
	if !s.Phase.Valid() {
		return nil, fmt.Errorf("failed to restore machine: unknown phase %q", s.Phase)
	}
	switch s.Status {
	case StatusActive, StatusBlocked, StatusAbandoned:
	default:
		return nil, fmt.Errorf("failed to restore machine: unknown status %q", s.Status)
	}
	s.Violations = append([]types.Violation(nil), s.Violations...)
	return &Machine{state: s}, nil
}

// Current returns the phase the task is in
func (m *Machine) Current() types.Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Phase
}

// Blocked reports whether the last attempt of the current phase failed
func (m *Machine) Blocked() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status == StatusBlocked
}

// Abandoned reports whether the task was discarded
func (m *Machine) Abandoned() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Status == StatusAbandoned
}

// Snapshot returns a copy of the machine state
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.state
	s.Violations = append([]types.Violation(nil), m.state.Violations...)
	return s
}

// Apply records a gate result for the current phase. A passing result
// advances to the next phase, wrapping Cleanup back to Sync. A failing result
// leaves the task blocked on the same phase until another attempt passes.
func (m *Machine) Apply(result types.Result) (types.Phase, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state.Status == StatusAbandoned {
		return m.state.Phase, ErrAbandoned
	}
	if result.Phase != m.state.Phase {
		return m.state.Phase, fmt.Errorf("%w: got %s, at %s", ErrPhaseMismatch, result.Phase, m.state.Phase)
	}

	m.state.Attempts++
	if !result.Passed {
		m.state.Status = StatusBlocked
		m.state.Violations = append([]types.Violation(nil), result.Violations...)
		return m.state.Phase, nil
	}

	if m.state.Phase == types.PhaseCleanup {
		m.state.Cycle++
	}
	m.state.Phase = m.state.Phase.Next()
	m.state.Status = StatusActive
	m.state.Attempts = 0
	m.state.Violations = nil
	return m.state.Phase, nil
}

// Abandon discards the task and resets it to Sync. Work already merged
// stays merged.
func (m *Machine) Abandon() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Phase = types.PhaseSync
	m.state.Status = StatusAbandoned
	m.state.Attempts = 0
	m.state.Violations = nil
}
