package host

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/command"
	"github.com/clintrovert/trunkgate/pkg/types"
)

const (
	ghIssueFields = "number,title,body,state,labels,url"
	ghPRFields    = "number,title,body,state,headRefName,headRefOid,baseRefName,reviewDecision,latestReviews,url"
	ghRunFields   = "databaseId,name,status,conclusion,headSha"
)

// GH talks to the host through the gh command-line tool
type GH struct {
	repo   string
	dir    string
	runner command.Runner
	logger *zap.Logger
}

// NewGH creates a gh-backed client for owner/name
func NewGH(owner, name, dir string, runner command.Runner, logger *zap.Logger) *GH {
	return &GH{
		repo:   owner + "/" + name,
		dir:    dir,
		runner: runner,
		logger: logger,
	}
}

// ghIssue mirrors the fields we read from gh's JSON output.
type ghIssue struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	Body   string `json:"body"`
	State  string `json:"state"` // "OPEN", "CLOSED"
	URL    string `json:"url"`
	Labels []struct {
		Name string `json:"name"`
	} `json:"labels"`
}

type ghPR struct {
	Number         int    `json:"number"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	State          string `json:"state"` // "OPEN", "MERGED", "CLOSED"
	HeadRefName    string `json:"headRefName"`
	HeadRefOid     string `json:"headRefOid"`
	BaseRefName    string `json:"baseRefName"`
	ReviewDecision string `json:"reviewDecision"` // "APPROVED", "CHANGES_REQUESTED", "REVIEW_REQUIRED", ""
	LatestReviews  []struct {
		Author struct {
			Login string `json:"login"`
		} `json:"author"`
		State string `json:"state"`
	} `json:"latestReviews"`
	URL string `json:"url"`
}

type ghRun struct {
	DatabaseID int64  `json:"databaseId"`
	Name       string `json:"name"`
	Status     string `json:"status"`
	Conclusion string `json:"conclusion"`
	HeadSha    string `json:"headSha"`
}

func (g *GH) gh(ctx context.Context, args ...string) (string, error) {
	args = append(args, "--repo", g.repo)
	out, err := g.runner.Run(ctx, command.Cmd{Dir: g.dir, Name: "gh", Args: args})
	if err != nil {
		return "", err
	}
	return out.Stdout, nil
}

// GetIssue fetches one issue
func (g *GH) GetIssue(ctx context.Context, number int) (*types.Issue, error) {
	out, err := g.gh(ctx, "issue", "view", strconv.Itoa(number), "--json", ghIssueFields)
	if err != nil {
		if strings.Contains(err.Error(), "Could not resolve to an issue") {
			return nil, fmt.Errorf("issue #%d: %w", number, ErrNotFound)
		}
		return nil, err
	}
	var raw ghIssue
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse gh issue output: %w", err)
	}
	issue := raw.toIssue()
	return &issue, nil
}

// ListIssues lists open issues carrying label
func (g *GH) ListIssues(ctx context.Context, label string) ([]types.Issue, error) {
	args := []string{"issue", "list", "--state", "open", "--limit", "100", "--json", ghIssueFields}
	if label != "" {
		args = append(args, "--label", label)
	}
	out, err := g.gh(ctx, args...)
	if err != nil {
		return nil, err
	}
	var raw []ghIssue
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse gh issue list output: %w", err)
	}
	issues := make([]types.Issue, 0, len(raw))
	for _, r := range raw {
		issues = append(issues, r.toIssue())
	}
	return issues, nil
}

// CreateIssue opens a new issue
func (g *GH) CreateIssue(ctx context.Context, title, body string) (*types.Issue, error) {
	out, err := g.gh(ctx, "issue", "create", "--title", title, "--body", body)
	if err != nil {
		return nil, err
	}
	number, err := numberFromURL(out)
	if err != nil {
		return nil, err
	}
	g.logger.Info("created issue", zap.Int("issue", number))
	return g.GetIssue(ctx, number)
}

// CommentIssue adds a comment to an issue
func (g *GH) CommentIssue(ctx context.Context, number int, body string) error {
	_, err := g.gh(ctx, "issue", "comment", strconv.Itoa(number), "--body", body)
	return err
}

// PullRequestForBranch finds the pull request whose head is branch
func (g *GH) PullRequestForBranch(ctx context.Context, branch string) (*types.PullRequest, error) {
	out, err := g.gh(ctx, "pr", "list", "--head", branch, "--state", "all", "--json", ghPRFields)
	if err != nil {
		return nil, err
	}
	var prs []ghPR
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("failed to parse gh pr list output: %w", err)
	}

	// prefer open PR; fall back to most recent
	var found *ghPR
	for i := range prs {
		if prs[i].State == "OPEN" {
			found = &prs[i]
			break
		}
	}
	if found == nil && len(prs) > 0 {
		found = &prs[0]
	}
	if found == nil {
		return nil, fmt.Errorf("pull request for %s: %w", branch, ErrNotFound)
	}
	pr := found.toPullRequest()
	return &pr, nil
}

// CreatePullRequest opens a pull request
func (g *GH) CreatePullRequest(ctx context.Context, opts CreatePullRequestOptions) (*types.PullRequest, error) {
	_, err := g.gh(ctx, "pr", "create",
		"--title", opts.Title,
		"--body", opts.Body,
		"--base", opts.Base,
		"--head", opts.Head,
	)
	if err != nil {
		return nil, err
	}
	g.logger.Info("created pull request", zap.String("head", opts.Head))
	return g.PullRequestForBranch(ctx, opts.Head)
}

// CommentPullRequest adds a comment to a pull request
func (g *GH) CommentPullRequest(ctx context.Context, number int, body string) error {
	_, err := g.gh(ctx, "pr", "comment", strconv.Itoa(number), "--body", body)
	return err
}

// CIRuns lists workflow runs for headSHA on branch
func (g *GH) CIRuns(ctx context.Context, branch, headSHA string) ([]types.CIRun, error) {
	out, err := g.gh(ctx, "run", "list", "--branch", branch, "--limit", "50", "--json", ghRunFields)
	if err != nil {
		return nil, err
	}
	var raw []ghRun
	if err := json.Unmarshal([]byte(out), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse gh run list output: %w", err)
	}
	runs := make([]types.CIRun, 0, len(raw))
	for _, r := range raw {
		if headSHA != "" && r.HeadSha != headSHA {
			continue
		}
		runs = append(runs, types.CIRun{
			ID:      r.DatabaseID,
			Name:    r.Name,
			HeadSHA: r.HeadSha,
			State:   ciState(r.Status, r.Conclusion),
		})
	}
	return latestPerName(runs), nil
}

// MergePullRequest rebase-merges a pull request if its head is unchanged
func (g *GH) MergePullRequest(ctx context.Context, number int, expectedHead string) error {
	args := []string{"pr", "merge", strconv.Itoa(number), "--rebase"}
	if expectedHead != "" {
		args = append(args, "--match-head-commit", expectedHead)
	}
	if _, err := g.gh(ctx, args...); err != nil {
		return err
	}
	g.logger.Info("merged pull request",
		zap.Int("pr_number", number),
		zap.String("head", expectedHead),
	)
	return nil
}

func (i ghIssue) toIssue() types.Issue {
	issue := types.Issue{
		Number: i.Number,
		Title:  i.Title,
		Body:   i.Body,
		State:  types.IssueOpen,
		URL:    i.URL,
	}
	if i.State == "CLOSED" {
		issue.State = types.IssueClosed
	}
	for _, l := range i.Labels {
		issue.Labels = append(issue.Labels, l.Name)
	}
	return issue
}

func (p ghPR) toPullRequest() types.PullRequest {
	return types.PullRequest{
		Number:         p.Number,
		Title:          p.Title,
		Body:           p.Body,
		HeadBranch:     p.HeadRefName,
		HeadSHA:        p.HeadRefOid,
		BaseBranch:     p.BaseRefName,
		State:          ghState(p.State),
		ReviewDecision: p.reviewDecision(),
		URL:            p.URL,
	}
}

// reviewDecision is empty when the base branch does not require reviews;
// the latest reviews decide then.
func (p ghPR) reviewDecision() types.ReviewDecision {
	if p.ReviewDecision != "" {
		return ghReviewDecision(p.ReviewDecision)
	}
	latest := make(map[string]string, len(p.LatestReviews))
	for _, r := range p.LatestReviews {
		latest[r.Author.Login] = r.State
	}
	return foldReviews(latest)
}

// ghState maps GitHub PR state strings to our model.
func ghState(s string) types.PRState {
	switch s {
	case "MERGED":
		return types.PRMerged
	case "CLOSED":
		return types.PRClosed
	default:
		return types.PROpen
	}
}

func ghReviewDecision(s string) types.ReviewDecision {
	switch s {
	case "APPROVED":
		return types.ReviewApproved
	case "CHANGES_REQUESTED":
		return types.ReviewChangesRequested
	default:
		return types.ReviewPending
	}
}

// numberFromURL parses the trailing number of an issue or PR URL.
func numberFromURL(out string) (int, error) {
	url := strings.TrimSpace(out)
	if i := strings.LastIndex(url, "\n"); i >= 0 {
		url = url[i+1:]
	}
	n, err := strconv.Atoi(path.Base(url))
	if err != nil {
		return 0, fmt.Errorf("failed to parse number from %q: %w", url, err)
	}
	return n, nil
}

var _ IssueHostClient = (*GH)(nil)
