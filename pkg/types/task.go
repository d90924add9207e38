package types

import (
	"fmt"
	"time"
)

// Task is one unit of work tracked through the workflow: a single issue and
// the repository it lands in.
type Task struct {
	IssueNumber  int            `json:"issue_number"`
	JiraTicketID string         `json:"jira_ticket_id,omitempty"`
	Repository   RepositoryInfo `json:"repository"`
	// Slug names the feature branch when trunkgate creates it during the
	// Branch phase. Empty means the developer creates the branch.
	Slug string `json:"slug,omitempty"`
	// Branch is the feature branch once the Branch gate has passed.
	Branch   string `json:"branch,omitempty"`
	CreatePR bool   `json:"create_pr"`
}

// ID returns the stable identifier of the task. One task exists per issue.
func (t *Task) ID() string {
	return fmt.Sprintf("task-%s-%s-%d", t.Repository.Owner, t.Repository.Name, t.IssueNumber)
}

// ProcessedTask tracks tasks that have been started by the leader
type ProcessedTask struct {
	IssueNumber int       `json:"issue_number"`
	WorkflowID  string    `json:"workflow_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
