package jira

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/pkg/types"
)

type mockTracker struct {
	mock.Mock
}

func (m *mockTracker) AddComment(ticketID, comment string) error {
	return m.Called(ticketID, comment).Error(0)
}

func (m *mockTracker) UpdateTaskStatus(ticketID, status string) error {
	return m.Called(ticketID, status).Error(0)
}

var statuses = map[types.Phase]string{
	types.PhasePR:      "In Review",
	types.PhaseCleanup: "Done",
}

func attempt(p types.Phase, violations ...types.Violation) types.Attempt {
	return types.Attempt{
		ID:     "a-1",
		Result: types.Result{Phase: p, Passed: len(violations) == 0, Violations: violations},
	}
}

func TestNotifier_CommentsOnFailure(t *testing.T) {
	tracker := &mockTracker{}
	tracker.On("AddComment", "WEB-7", mock.MatchedBy(func(c string) bool {
		return strings.Contains(c, "blocked in the commit phase") &&
			strings.Contains(c, `FormatViolation [commit-message] bad: "fix bug"`)
	})).Return(nil)

	n := NewNotifier(tracker, statuses, zap.NewNop())
	err := n.Notify(context.Background(), types.Task{IssueNumber: 12, JiraTicketID: "WEB-7"},
		attempt(types.PhaseCommit, types.Violation{
			Kind: types.FormatViolation, Rule: "commit-message", Subject: "fix bug", Message: "bad",
		}))

	require.NoError(t, err)
	tracker.AssertExpectations(t)
}

func TestNotifier_TransitionsOnMappedPhase(t *testing.T) {
	tracker := &mockTracker{}
	tracker.On("UpdateTaskStatus", "WEB-7", "In Review").Return(nil)

	n := NewNotifier(tracker, statuses, zap.NewNop())
	task := types.Task{IssueNumber: 12, JiraTicketID: "WEB-7"}

	require.NoError(t, n.Notify(context.Background(), task, attempt(types.PhasePR)))
	require.NoError(t, n.Notify(context.Background(), task, attempt(types.PhaseVerify)))
	tracker.AssertExpectations(t)
	tracker.AssertNumberOfCalls(t, "UpdateTaskStatus", 1)
}

func TestNotifier_TransitionError(t *testing.T) {
	tracker := &mockTracker{}
	tracker.On("UpdateTaskStatus", "WEB-7", "Done").Return(errors.New("transition to status Done not found"))

	n := NewNotifier(tracker, statuses, zap.NewNop())
	err := n.Notify(context.Background(), types.Task{JiraTicketID: "WEB-7"}, attempt(types.PhaseCleanup))
	assert.Error(t, err)
}

func TestNotifier_IgnoresTasksWithoutTicket(t *testing.T) {
	tracker := &mockTracker{}
	n := NewNotifier(tracker, statuses, zap.NewNop())

	require.NoError(t, n.Notify(context.Background(), types.Task{IssueNumber: 1}, attempt(types.PhasePR)))
	tracker.AssertNotCalled(t, "UpdateTaskStatus", mock.Anything, mock.Anything)
}

func TestTicketKey(t *testing.T) {
	assert.Equal(t, "WEB-42", TicketKey("feat: add login form (WEB-42)"))
	assert.Equal(t, "", TicketKey("no ticket here"))
	assert.Equal(t, "", TicketKey("lowercase web-42"))
}
