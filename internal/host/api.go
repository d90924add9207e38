package host

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/clintrovert/trunkgate/pkg/types"
)

// GitHub allows 5000 authenticated requests an hour.
const (
	apiRequestInterval = 720 * time.Millisecond
	apiBurst           = 20
)

// API talks to the host through the GitHub REST API
type API struct {
	client *github.Client
	owner  string
	repo   string
	logger *zap.Logger
}

// NewAPI creates a new GitHub API client authenticated with token
func NewAPI(owner, repo, token string, logger *zap.Logger) *API {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	tc.Transport = &limitedTransport{
		base:    tc.Transport,
		limiter: rate.NewLimiter(rate.Every(apiRequestInterval), apiBurst),
	}

	return NewAPIWithClient(owner, repo, github.NewClient(tc), logger)
}

// NewAPIWithClient wraps an existing go-github client
func NewAPIWithClient(owner, repo string, client *github.Client, logger *zap.Logger) *API {
	return &API{
		client: client,
		owner:  owner,
		repo:   repo,
		logger: logger,
	}
}

// GetIssue fetches one issue
func (a *API) GetIssue(ctx context.Context, number int) (*types.Issue, error) {
	issue, _, err := a.client.Issues.Get(ctx, a.owner, a.repo, number)
	if err != nil {
		return nil, wrapNotFound(fmt.Sprintf("issue #%d", number), err)
	}
	out := toIssue(issue)
	return &out, nil
}

// ListIssues lists open issues carrying label
func (a *API) ListIssues(ctx context.Context, label string) ([]types.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		ListOptions: github.ListOptions{PerPage: 100},
	}
	if label != "" {
		opts.Labels = []string{label}
	}
	issues, _, err := a.client.Issues.ListByRepo(ctx, a.owner, a.repo, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	out := make([]types.Issue, 0, len(issues))
	for _, issue := range issues {
		// the issues endpoint also returns pull requests
		if issue.IsPullRequest() {
			continue
		}
		out = append(out, toIssue(issue))
	}
	return out, nil
}

// CreateIssue opens a new issue
func (a *API) CreateIssue(ctx context.Context, title, body string) (*types.Issue, error) {
	issue, _, err := a.client.Issues.Create(ctx, a.owner, a.repo, &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	a.logger.Info("created issue",
		zap.String("owner", a.owner),
		zap.String("repo", a.repo),
		zap.Int("issue", issue.GetNumber()),
	)
	out := toIssue(issue)
	return &out, nil
}

// CommentIssue adds a comment to an issue
func (a *API) CommentIssue(ctx context.Context, number int, body string) error {
	_, _, err := a.client.Issues.CreateComment(ctx, a.owner, a.repo, number, &github.IssueComment{
		Body: github.String(body),
	})
	if err != nil {
		return fmt.Errorf("failed to comment on #%d: %w", number, err)
	}
	return nil
}

// PullRequestForBranch finds the pull request whose head is branch
func (a *API) PullRequestForBranch(ctx context.Context, branch string) (*types.PullRequest, error) {
	prs, _, err := a.client.PullRequests.List(ctx, a.owner, a.repo, &github.PullRequestListOptions{
		State:       "all",
		Head:        a.owner + ":" + branch,
		ListOptions: github.ListOptions{PerPage: 20},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list pull requests: %w", err)
	}

	var found *github.PullRequest
	for _, pr := range prs {
		if pr.GetState() == "open" {
			found = pr
			break
		}
	}
	if found == nil && len(prs) > 0 {
		found = prs[0]
	}
	if found == nil {
		return nil, fmt.Errorf("pull request for %s: %w", branch, ErrNotFound)
	}

	decision, err := a.reviewDecision(ctx, found.GetNumber())
	if err != nil {
		return nil, err
	}
	out := toPullRequest(found)
	out.ReviewDecision = decision
	return &out, nil
}

// CreatePullRequest opens a pull request
func (a *API) CreatePullRequest(ctx context.Context, opts CreatePullRequestOptions) (*types.PullRequest, error) {
	newPR := &github.NewPullRequest{
		Title: github.String(opts.Title),
		Head:  github.String(opts.Head),
		Base:  github.String(opts.Base),
		Body:  github.String(opts.Body),
	}

	pr, _, err := a.client.PullRequests.Create(ctx, a.owner, a.repo, newPR)
	if err != nil {
		return nil, fmt.Errorf("failed to create pull request: %w", err)
	}

	a.logger.Info("created pull request",
		zap.String("owner", a.owner),
		zap.String("repo", a.repo),
		zap.Int("pr_number", pr.GetNumber()),
		zap.String("pr_url", pr.GetHTMLURL()),
	)

	out := toPullRequest(pr)
	out.ReviewDecision = types.ReviewPending
	return &out, nil
}

// CommentPullRequest adds a comment to a pull request
func (a *API) CommentPullRequest(ctx context.Context, number int, body string) error {
	// pull request conversation comments go through the issues API
	return a.CommentIssue(ctx, number, body)
}

// CIRuns lists check runs for headSHA
func (a *API) CIRuns(ctx context.Context, branch, headSHA string) ([]types.CIRun, error) {
	ref := headSHA
	if ref == "" {
		ref = branch
	}
	res, _, err := a.client.Checks.ListCheckRunsForRef(ctx, a.owner, a.repo, ref, &github.ListCheckRunsOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list check runs for %s: %w", ref, err)
	}

	runs := make([]types.CIRun, 0, len(res.CheckRuns))
	for _, cr := range res.CheckRuns {
		runs = append(runs, types.CIRun{
			ID:      cr.GetID(),
			Name:    cr.GetName(),
			HeadSHA: cr.GetHeadSHA(),
			State:   ciState(cr.GetStatus(), cr.GetConclusion()),
		})
	}
	return latestPerName(runs), nil
}

// MergePullRequest rebase-merges a pull request if its head is unchanged
func (a *API) MergePullRequest(ctx context.Context, number int, expectedHead string) error {
	res, _, err := a.client.PullRequests.Merge(ctx, a.owner, a.repo, number, "", &github.PullRequestOptions{
		MergeMethod: "rebase",
		SHA:         expectedHead,
	})
	if err != nil {
		return fmt.Errorf("failed to merge pull request #%d: %w", number, err)
	}
	if !res.GetMerged() {
		return fmt.Errorf("pull request #%d not merged: %s", number, res.GetMessage())
	}

	a.logger.Info("merged pull request",
		zap.Int("pr_number", number),
		zap.String("sha", res.GetSHA()),
	)
	return nil
}

// reviewDecision folds the latest review of each reviewer into one decision.
func (a *API) reviewDecision(ctx context.Context, number int) (types.ReviewDecision, error) {
	reviews, _, err := a.client.PullRequests.ListReviews(ctx, a.owner, a.repo, number, &github.ListOptions{PerPage: 100})
	if err != nil {
		return "", fmt.Errorf("failed to list reviews for #%d: %w", number, err)
	}

	latest := make(map[string]string)
	for _, r := range reviews {
		switch r.GetState() {
		case "APPROVED", "CHANGES_REQUESTED", "DISMISSED":
			latest[r.GetUser().GetLogin()] = r.GetState()
		}
	}

	return foldReviews(latest), nil
}

func toIssue(issue *github.Issue) types.Issue {
	out := types.Issue{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   issue.GetBody(),
		State:  types.IssueOpen,
		URL:    issue.GetHTMLURL(),
	}
	if issue.GetState() == "closed" {
		out.State = types.IssueClosed
	}
	for _, l := range issue.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	return out
}

func toPullRequest(pr *github.PullRequest) types.PullRequest {
	out := types.PullRequest{
		Number:     pr.GetNumber(),
		Title:      pr.GetTitle(),
		Body:       pr.GetBody(),
		HeadBranch: pr.GetHead().GetRef(),
		HeadSHA:    pr.GetHead().GetSHA(),
		BaseBranch: pr.GetBase().GetRef(),
		State:      types.PROpen,
		URL:        pr.GetHTMLURL(),
	}
	switch {
	case pr.MergedAt != nil || pr.GetMerged():
		out.State = types.PRMerged
	case pr.GetState() == "closed":
		out.State = types.PRClosed
	}
	return out
}

func wrapNotFound(what string, err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("failed to get %s: %w", what, err)
}

var _ IssueHostClient = (*API)(nil)

// limitedTransport holds requests back once the burst is spent
type limitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("failed to wait for rate limit: %w", err)
	}
	return t.base.RoundTrip(req)
}
