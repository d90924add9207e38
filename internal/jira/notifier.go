package jira

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/pkg/types"
)

// Tracker is the part of the Jira client the notifier needs
type Tracker interface {
	AddComment(ticketID, comment string) error
	UpdateTaskStatus(ticketID, status string) error
}

// Notifier mirrors phase attempts onto the task's Jira ticket
type Notifier struct {
	tracker Tracker
	// statuses maps a passed phase to the ticket status it moves to.
	statuses map[types.Phase]string
	logger   *zap.Logger
}

// NewNotifier creates a new Jira notifier
func NewNotifier(tracker Tracker, statuses map[types.Phase]string, logger *zap.Logger) *Notifier {
	return &Notifier{
		tracker:  tracker,
		statuses: statuses,
		logger:   logger,
	}
}

// Notify comments on failed gates and transitions the ticket when a mapped
// phase passes. Tasks without a ticket are ignored.
func (n *Notifier) Notify(_ context.Context, task types.Task, attempt types.Attempt) error {
	if task.JiraTicketID == "" {
		return nil
	}

	result := attempt.Result
	if !result.Passed {
		if err := n.tracker.AddComment(task.JiraTicketID, FormatViolations(task, attempt)); err != nil {
			return err
		}
		return nil
	}

	status, ok := n.statuses[result.Phase]
	if !ok {
		return nil
	}
	if err := n.tracker.UpdateTaskStatus(task.JiraTicketID, status); err != nil {
		n.logger.Warn("failed to transition ticket",
			zap.String("ticket_id", task.JiraTicketID),
			zap.String("status", status),
			zap.Error(err),
		)
		return err
	}
	return nil
}

// FormatViolations renders a failed attempt as a ticket comment.
func FormatViolations(task types.Task, attempt types.Attempt) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Issue #%d is blocked in the %s phase (attempt %s):\n",
		task.IssueNumber, attempt.Result.Phase, attempt.ID))
	for _, v := range attempt.Result.Violations {
		sb.WriteString("* " + v.String() + "\n")
	}
	return sb.String()
}
