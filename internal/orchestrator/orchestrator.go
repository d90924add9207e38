package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/internal/state"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// PhaseRunner performs one attempt of a phase and discards abandoned work
type PhaseRunner interface {
	RunPhase(ctx context.Context, task types.Task, phase types.Phase) (types.Attempt, *types.GateContext)
	// Discard deletes the task branch unless its work already merged.
	Discard(ctx context.Context, task types.Task) error
}

// Orchestrator drives a task through the phase machine locally, persisting
// the machine between invocations.
type Orchestrator struct {
	mu        sync.Mutex
	runner    PhaseRunner
	store     *state.Store
	notifiers []Notifier
	logger    *zap.Logger
}

// New creates a new orchestrator
func New(runner PhaseRunner, store *state.Store, logger *zap.Logger, notifiers ...Notifier) *Orchestrator {
	return &Orchestrator{
		runner:    runner,
		store:     store,
		notifiers: notifiers,
		logger:    logger,
	}
}

// Status returns the saved record of issue
func (o *Orchestrator) Status(issue int) (*state.Record, error) {
	return o.store.Load(issue)
}

func (o *Orchestrator) load(task types.Task) (*state.Record, *phase.Machine, error) {
	rec, err := o.store.Load(task.IssueNumber)
	switch {
	case errors.Is(err, state.ErrNoState):
		m := phase.New()
		return &state.Record{Task: task, Machine: m.Snapshot()}, m, nil
	case err != nil:
		return nil, nil, err
	}

	m, err := phase.Restore(rec.Machine)
	if err != nil {
		return nil, nil, err
	}
	if m.Abandoned() {
		// an abandoned task starts over on its next attempt
		m = phase.New()
		rec.Task.Branch = ""
	}
	// the recorded branch outlives flags passed on later invocations
	branch := rec.Task.Branch
	rec.Task = task
	if rec.Task.Branch == "" {
		rec.Task.Branch = branch
	}
	return rec, m, nil
}

// Step attempts the current phase of task once. A passing gate advances the
// machine; a failing one leaves it blocked on the same phase.
func (o *Orchestrator) Step(ctx context.Context, task types.Task) (types.Attempt, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, m, err := o.load(task)
	if err != nil {
		return types.Attempt{}, fmt.Errorf("failed to load task state: %w", err)
	}
	current := m.Current()
	attempt, g := o.runner.RunPhase(ctx, rec.Task, current)
	next, err := m.Apply(attempt.Result)
	if err != nil {
		return attempt, fmt.Errorf("failed to apply result: %w", err)
	}

	if current == types.PhaseBranch && attempt.Result.Passed && g != nil && g.Branch != nil {
		rec.Task.Branch = g.Branch.Name
	}
	if current == types.PhaseCleanup && attempt.Result.Passed {
		rec.Task.Branch = ""
	}

	rec.Machine = m.Snapshot()
	rec.AddAttempt(attempt)
	if err := o.store.Save(rec); err != nil {
		return attempt, fmt.Errorf("failed to save task state: %w", err)
	}

	o.logger.Info("stepped task",
		zap.Int("issue", task.IssueNumber),
		zap.String("phase", string(current)),
		zap.String("next", string(next)),
		zap.Bool("passed", attempt.Result.Passed),
	)

	notifyAll(ctx, o.logger, o.notifiers, rec.Task, attempt)
	return attempt, nil
}

// Run steps the task until a gate fails or a full cycle completes. It
// returns every attempt made.
func (o *Orchestrator) Run(ctx context.Context, task types.Task) ([]types.Attempt, error) {
	var attempts []types.Attempt
	for {
		if err := ctx.Err(); err != nil {
			return attempts, err
		}
		attempt, err := o.Step(ctx, task)
		if err != nil {
			return attempts, err
		}
		attempts = append(attempts, attempt)
		if !attempt.Result.Passed || attempt.Result.Phase == types.PhaseCleanup {
			return attempts, nil
		}
	}
}

// Abandon discards the task: its branch is deleted unless the work already
// merged, and the machine goes back to Sync marked abandoned. The next Step
// starts a fresh cycle. Merged work is left as is.
func (o *Orchestrator) Abandon(ctx context.Context, task types.Task) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	rec, m, err := o.load(task)
	if err != nil {
		return fmt.Errorf("failed to load task state: %w", err)
	}
	if err := o.runner.Discard(ctx, rec.Task); err != nil {
		return fmt.Errorf("failed to discard task branch: %w", err)
	}

	branch := rec.Task.Branch
	m.Abandon()
	rec.Machine = m.Snapshot()
	rec.Task.Branch = ""
	if err := o.store.Save(rec); err != nil {
		return fmt.Errorf("failed to save task state: %w", err)
	}
	ForgetAll(o.notifiers, rec.Task)

	o.logger.Info("abandoned task",
		zap.Int("issue", task.IssueNumber),
		zap.String("branch", branch),
	)
	return nil
}
