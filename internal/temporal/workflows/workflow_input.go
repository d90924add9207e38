package workflows

import (
	"time"

	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// TaskWorkflowInput is the input for the task workflow
type TaskWorkflowInput struct {
	Task types.Task
	// Resume restarts the machine from a saved snapshot instead of Sync.
	Resume *phase.Snapshot
	// RecheckInterval re-attempts a blocked phase on a timer. Zero waits for
	// the revalidate signal only.
	RecheckInterval time.Duration
	// PhaseTimeout bounds one phase attempt.
	PhaseTimeout time.Duration
}

// TaskWorkflowResult is the final state of a task workflow
type TaskWorkflowResult struct {
	Snapshot phase.Snapshot
	Attempts int
}
