package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/orchestrator"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// RunnerFactory builds the phase runner for a repository
type RunnerFactory func(ctx context.Context, repo types.RepositoryInfo) (orchestrator.PhaseRunner, error)

// PhaseActivities runs phase attempts on the worker
type PhaseActivities struct {
	factory RunnerFactory
	logger  *zap.Logger
}

// NewPhaseActivities creates a new phase activities handler
func NewPhaseActivities(factory RunnerFactory, logger *zap.Logger) *PhaseActivities {
	return &PhaseActivities{
		factory: factory,
		logger:  logger,
	}
}

// RunPhaseActivity performs one attempt of a phase. Gate failures are part of
// the output; only infrastructure problems return an error.
func (a *PhaseActivities) RunPhaseActivity(ctx context.Context, input PhaseInput) (PhaseOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("running phase",
		"issue", input.Task.IssueNumber,
		"phase", string(input.Phase),
		"repository", input.Task.Repository.Owner+"/"+input.Task.Repository.Name,
	)

	runner, err := a.factory(ctx, input.Task.Repository)
	if err != nil {
		return PhaseOutput{}, fmt.Errorf("failed to prepare repository: %w", err)
	}

	attempt, g := runner.RunPhase(ctx, input.Task, input.Phase)
	out := PhaseOutput{Attempt: attempt}
	if g != nil && g.Branch != nil {
		out.Branch = g.Branch.Name
	}

	logger.Info("phase attempt finished",
		"attempt_id", attempt.ID,
		"passed", attempt.Result.Passed,
		"violations", len(attempt.Result.Violations),
	)
	return out, nil
}

// AbandonActivity discards the task branch unless its pull request merged
func (a *PhaseActivities) AbandonActivity(ctx context.Context, input AbandonInput) error {
	logger := activity.GetLogger(ctx)
	logger.Info("abandoning task",
		"issue", input.Task.IssueNumber,
		"branch", input.Task.Branch,
	)

	runner, err := a.factory(ctx, input.Task.Repository)
	if err != nil {
		return fmt.Errorf("failed to prepare repository: %w", err)
	}
	if err := runner.Discard(ctx, input.Task); err != nil {
		return fmt.Errorf("failed to discard task branch: %w", err)
	}
	return nil
}
