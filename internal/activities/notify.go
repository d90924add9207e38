package activities

import (
	"context"

	"go.temporal.io/sdk/activity"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/orchestrator"
)

// NotifyActivities forwards attempts to notifiers such as the Jira mirror
type NotifyActivities struct {
	notifiers []orchestrator.Notifier
	logger    *zap.Logger
}

// NewNotifyActivities creates a new notify activities handler
func NewNotifyActivities(logger *zap.Logger, notifiers ...orchestrator.Notifier) *NotifyActivities {
	return &NotifyActivities{
		notifiers: notifiers,
		logger:    logger,
	}
}

// NotifyActivity tells every notifier about an attempt. A failing notifier
// does not stop the others.
func (a *NotifyActivities) NotifyActivity(ctx context.Context, input NotifyInput) error {
	logger := activity.GetLogger(ctx)

	var firstErr error
	for _, n := range a.notifiers {
		if err := n.Notify(ctx, input.Task, input.Attempt); err != nil {
			logger.Warn("failed to notify",
				"attempt_id", input.Attempt.ID,
				"error", err,
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ForgetActivity drops the per-task state notifiers keep for an abandoned task
func (a *NotifyActivities) ForgetActivity(_ context.Context, input AbandonInput) error {
	orchestrator.ForgetAll(a.notifiers, input.Task)
	return nil
}
