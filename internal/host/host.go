package host

import (
	"context"
	"errors"

	"github.com/clintrovert/trunkgate/pkg/types"
)

// ErrNotFound is returned when an issue or pull request does not exist
var ErrNotFound = errors.New("not found")

// CreatePullRequestOptions are the parameters for opening a pull request
type CreatePullRequestOptions struct {
	Title string
	Body  string
	Base  string
	Head  string
}

// IssueHostClient is the capability set the workflow needs from the issue
// and pull request host.
type IssueHostClient interface {
	GetIssue(ctx context.Context, number int) (*types.Issue, error)
	ListIssues(ctx context.Context, label string) ([]types.Issue, error)
	CreateIssue(ctx context.Context, title, body string) (*types.Issue, error)
	CommentIssue(ctx context.Context, number int, body string) error

	// PullRequestForBranch returns the open pull request whose head is
	// branch, falling back to the most recent one. ErrNotFound when none.
	PullRequestForBranch(ctx context.Context, branch string) (*types.PullRequest, error)
	CreatePullRequest(ctx context.Context, opts CreatePullRequestOptions) (*types.PullRequest, error)
	CommentPullRequest(ctx context.Context, number int, body string) error
	// CIRuns lists the latest run per check for headSHA on branch.
	CIRuns(ctx context.Context, branch, headSHA string) ([]types.CIRun, error)
	// MergePullRequest rebase-merges the pull request, refusing when its
	// head is no longer expectedHead.
	MergePullRequest(ctx context.Context, number int, expectedHead string) error
}

// latestPerName keeps the first run seen for each name. Runs must be ordered
// newest first.
func latestPerName(runs []types.CIRun) []types.CIRun {
	seen := make(map[string]bool)
	out := make([]types.CIRun, 0, len(runs))
	for _, run := range runs {
		if seen[run.Name] {
			continue
		}
		seen[run.Name] = true
		out = append(out, run)
	}
	return out
}

// ciState maps a run status and conclusion to a CI state.
func ciState(status, conclusion string) types.CIState {
	if status != "completed" {
		return types.CIPending
	}
	switch conclusion {
	case "success", "neutral", "skipped":
		return types.CISuccess
	default:
		return types.CIFailure
	}
}

// foldReviews turns the latest review state of each reviewer into one
// decision. Any change request wins over approvals.
func foldReviews(latest map[string]string) types.ReviewDecision {
	decision := types.ReviewPending
	for _, state := range latest {
		switch state {
		case "CHANGES_REQUESTED":
			return types.ReviewChangesRequested
		case "APPROVED":
			decision = types.ReviewApproved
		}
	}
	return decision
}
