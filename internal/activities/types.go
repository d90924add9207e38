package activities

import (
	"github.com/clintrovert/trunkgate/pkg/types"
)

// PhaseInput is the input of one phase attempt
type PhaseInput struct {
	Task  types.Task
	Phase types.Phase
}

// PhaseOutput is the outcome of one phase attempt
type PhaseOutput struct {
	Attempt types.Attempt
	// Branch is the feature branch the gate saw, if any.
	Branch string
}

// NotifyInput carries an attempt to the notifiers
type NotifyInput struct {
	Task    types.Task
	Attempt types.Attempt
}

// AbandonInput names the task whose branch is discarded
type AbandonInput struct {
	Task types.Task
}
