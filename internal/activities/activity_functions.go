package activities

import (
	"context"
	"errors"
)

// Activity functions that will be registered with Temporal worker
// These are wrapper functions that call the actual activity implementations

var (
	phaseActivities  *PhaseActivities
	notifyActivities *NotifyActivities
)

// ErrNotInitialized is returned when an activity runs before its handler was set.
var ErrNotInitialized = errors.New("activities not initialized")

// SetPhaseActivities sets the phase activities implementation
func SetPhaseActivities(pa *PhaseActivities) {
	phaseActivities = pa
}

// SetNotifyActivities sets the notify activities implementation
func SetNotifyActivities(na *NotifyActivities) {
	notifyActivities = na
}

// RunPhaseActivity is the activity function for phase attempts
func RunPhaseActivity(ctx context.Context, input PhaseInput) (PhaseOutput, error) {
	if phaseActivities == nil {
		return PhaseOutput{}, ErrNotInitialized
	}
	return phaseActivities.RunPhaseActivity(ctx, input)
}

// NotifyActivity is the activity function for attempt notifications
func NotifyActivity(ctx context.Context, input NotifyInput) error {
	if notifyActivities == nil {
		// notifications are optional
		return nil
	}
	return notifyActivities.NotifyActivity(ctx, input)
}

// AbandonActivity is the activity function for discarding a task branch
func AbandonActivity(ctx context.Context, input AbandonInput) error {
	if phaseActivities == nil {
		return ErrNotInitialized
	}
	return phaseActivities.AbandonActivity(ctx, input)
}

// ForgetActivity is the activity function for dropping notifier task state
func ForgetActivity(ctx context.Context, input AbandonInput) error {
	if notifyActivities == nil {
		return nil
	}
	return notifyActivities.ForgetActivity(ctx, input)
}
