package workflows

import (
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/clintrovert/trunkgate/internal/activities"
	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/pkg/types"
)

const (
	// SignalRevalidate re-attempts the blocked phase.
	SignalRevalidate = "revalidate"
	// QueryPhase returns the machine snapshot.
	QueryPhase = "phase"

	defaultPhaseTimeout = 30 * time.Minute
)

// TaskWorkflow drives one task through the phase machine, one activity per
// attempt. A failed gate blocks the workflow until it is revalidated;
// cancelling the workflow abandons the task.
func TaskWorkflow(ctx workflow.Context, input TaskWorkflowInput) (TaskWorkflowResult, error) {
	logger := workflow.GetLogger(ctx)
	task := input.Task
	logger.Info("starting task workflow",
		"issue", task.IssueNumber,
		"repository", task.Repository.Owner+"/"+task.Repository.Name,
	)

	m := phase.New()
	if input.Resume != nil {
		restored, err := phase.Restore(*input.Resume)
		if err != nil {
			return TaskWorkflowResult{}, err
		}
		m = restored
	}

	attempts := 0
	result := func() TaskWorkflowResult {
		return TaskWorkflowResult{Snapshot: m.Snapshot(), Attempts: attempts}
	}

	err := workflow.SetQueryHandler(ctx, QueryPhase, func() (phase.Snapshot, error) {
		return m.Snapshot(), nil
	})
	if err != nil {
		return result(), fmt.Errorf("failed to register query handler: %w", err)
	}

	timeout := input.PhaseTimeout
	if timeout == 0 {
		timeout = defaultPhaseTimeout
	}
	// a failed attempt is reported, never retried
	phaseCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: timeout,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	notifyCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	revalidate := workflow.GetSignalChannel(ctx, SignalRevalidate)

	for {
		current := m.Current()

		var out activities.PhaseOutput
		err := workflow.ExecuteActivity(phaseCtx, activities.RunPhaseActivity, activities.PhaseInput{
			Task:  task,
			Phase: current,
		}).Get(ctx, &out)
		if err != nil {
			if temporal.IsCanceledError(err) || ctx.Err() != nil {
				abandon(ctx, task)
				m.Abandon()
				logger.Info("task abandoned", "issue", task.IssueNumber, "phase", string(current))
				return result(), ctx.Err()
			}
			logger.Error("phase attempt failed", "phase", string(current), "error", err)
			return result(), fmt.Errorf("failed to run %s phase: %w", current, err)
		}

		attempts++
		if _, err := m.Apply(out.Attempt.Result); err != nil {
			return result(), err
		}
		passed := out.Attempt.Result.Passed
		if passed && current == types.PhaseBranch && out.Branch != "" {
			task.Branch = out.Branch
		}

		err = workflow.ExecuteActivity(notifyCtx, activities.NotifyActivity, activities.NotifyInput{
			Task:    task,
			Attempt: out.Attempt,
		}).Get(ctx, nil)
		if err != nil {
			logger.Warn("failed to notify", "attempt_id", out.Attempt.ID, "error", err)
		}

		if passed {
			if current == types.PhaseCleanup {
				logger.Info("task workflow completed", "issue", task.IssueNumber, "attempts", attempts)
				return result(), nil
			}
			continue
		}

		logger.Info("phase blocked",
			"issue", task.IssueNumber,
			"phase", string(current),
			"violations", len(out.Attempt.Result.Violations),
		)
		if cancelled := waitForRevalidate(ctx, revalidate, input.RecheckInterval); cancelled {
			abandon(ctx, task)
			m.Abandon()
			logger.Info("task abandoned", "issue", task.IssueNumber, "phase", string(current))
			return result(), ctx.Err()
		}
	}
}

// waitForRevalidate blocks until the revalidate signal, the recheck timer or
// cancellation. It reports whether the workflow was cancelled.
func waitForRevalidate(ctx workflow.Context, revalidate workflow.ReceiveChannel, recheck time.Duration) bool {
	timerCtx, cancelTimer := workflow.WithCancel(ctx)
	defer cancelTimer()

	// signals sent while the attempt ran are already covered by it
	for revalidate.ReceiveAsync(nil) {
	}

	cancelled := false
	selector := workflow.NewSelector(ctx)
	selector.AddReceive(revalidate, func(c workflow.ReceiveChannel, _ bool) {
		c.Receive(ctx, nil)
	})
	selector.AddReceive(ctx.Done(), func(workflow.ReceiveChannel, bool) {
		cancelled = true
	})
	if recheck > 0 {
		selector.AddFuture(workflow.NewTimer(timerCtx, recheck), func(workflow.Future) {})
	}
	selector.Select(ctx)
	return cancelled
}

// abandon discards the task branch and drops notifier state for the task. It
// runs on a disconnected context since ctx is already cancelled.
func abandon(ctx workflow.Context, task types.Task) {
	logger := workflow.GetLogger(ctx)
	dctx, _ := workflow.NewDisconnectedContext(ctx)
	dctx = workflow.WithActivityOptions(dctx, workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 3},
	})

	input := activities.AbandonInput{Task: task}
	if err := workflow.ExecuteActivity(dctx, activities.AbandonActivity, input).Get(dctx, nil); err != nil {
		logger.Warn("failed to discard task branch", "issue", task.IssueNumber, "error", err)
	}
	if err := workflow.ExecuteActivity(dctx, activities.ForgetActivity, input).Get(dctx, nil); err != nil {
		logger.Warn("failed to forget task", "issue", task.IssueNumber, "error", err)
	}
}
