// Package orchestrator runs phase actions and gates against the real
// repository and issue host.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/command"
	"github.com/clintrovert/trunkgate/internal/host"
	"github.com/clintrovert/trunkgate/internal/rules"
	"github.com/clintrovert/trunkgate/internal/validator"
	"github.com/clintrovert/trunkgate/internal/vcs"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// Verification is one build, test or lint command run in the Verify phase
type Verification struct {
	Name    string
	Command string
	Args    []string
	Timeout time.Duration
}

// Executor performs one phase attempt: gather state through the adapters,
// run the phase action, evaluate the gate. It keeps no state between calls.
type Executor struct {
	vcs           vcs.VersionControlClient
	host          host.IssueHostClient
	validator     *validator.Validator
	runner        command.Runner
	verifications []Verification
	logger        *zap.Logger
	now           func() time.Time
}

// NewExecutor creates a new executor
func NewExecutor(
	vcsClient vcs.VersionControlClient,
	hostClient host.IssueHostClient,
	v *validator.Validator,
	runner command.Runner,
	verifications []Verification,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		vcs:           vcsClient,
		host:          hostClient,
		validator:     v,
		runner:        runner,
		verifications: verifications,
		logger:        logger,
		now:           time.Now,
	}
}

// RunPhase performs one attempt of phase for task. The returned context is
// what the gate was evaluated against.
func (e *Executor) RunPhase(ctx context.Context, task types.Task, phase types.Phase) (types.Attempt, *types.GateContext) {
	attempt := types.Attempt{
		ID:        uuid.NewString(),
		TaskID:    task.ID(),
		Issue:     task.IssueNumber,
		StartedAt: e.now(),
	}

	e.logger.Info("running phase",
		zap.String("attempt_id", attempt.ID),
		zap.Int("issue", task.IssueNumber),
		zap.String("phase", string(phase)),
	)

	g := &types.GateContext{IssueNumber: task.IssueNumber}

	switch phase {
	case types.PhaseSync:
		e.syncTrunk(ctx, task, g)
		e.loadIssue(ctx, g)
	case types.PhaseBranch:
		e.createBranch(ctx, task, g)
		e.loadIssue(ctx, g)
		e.loadBranch(ctx, task, g)
		e.loadSiblings(ctx, task, g)
	case types.PhaseCommit:
		e.loadBranch(ctx, task, g)
		e.loadCommits(ctx, task, g)
	case types.PhaseVerify:
		e.loadIssue(ctx, g)
		e.loadBranch(ctx, task, g)
		e.loadCommits(ctx, task, g)
		e.runVerifications(ctx, task, g)
	case types.PhasePR:
		e.loadBranch(ctx, task, g)
		e.loadCommits(ctx, task, g)
		e.publish(ctx, task, g)
	case types.PhaseReview:
		e.loadBranch(ctx, task, g)
		e.loadPullRequest(ctx, g, true)
	case types.PhaseMerge:
		return e.finish(attempt, e.merge(ctx, task, g)), g
	case types.PhaseCleanup:
		e.cleanup(ctx, task, g)
	}

	return e.finish(attempt, e.validator.Check(phase, g)), g
}

func (e *Executor) finish(attempt types.Attempt, result types.Result) types.Attempt {
	attempt.Result = result
	attempt.FinishedAt = e.now()

	if result.Passed {
		e.logger.Info("gate passed",
			zap.String("attempt_id", attempt.ID),
			zap.String("phase", string(result.Phase)),
		)
	} else {
		e.logger.Warn("gate failed",
			zap.String("attempt_id", attempt.ID),
			zap.String("phase", string(result.Phase)),
			zap.Int("violations", len(result.Violations)),
		)
	}
	return attempt
}

// withViolations adds action violations to a gate result.
func withViolations(result types.Result, extra ...types.Violation) types.Result {
	if len(extra) == 0 {
		return result
	}
	result.Violations = append(result.Violations, extra...)
	result.Passed = false
	return result
}

func (e *Executor) syncTrunk(ctx context.Context, task types.Task, g *types.GateContext) {
	trunk := task.Repository.Trunk
	if err := e.vcs.Checkout(ctx, trunk); err != nil {
		g.Fail("checkout "+trunk, err)
		return
	}
	// divergence surfaces through the trunk-in-sync rule
	if err := e.vcs.Pull(ctx); err != nil && !errors.Is(err, vcs.ErrNotFastForward) {
		g.Fail("pull", err)
	}
	if err := e.vcs.Fetch(ctx); err != nil {
		g.Fail("fetch", err)
		return
	}
	g.LocalTrunkTip = e.revParse(ctx, g, trunk)
	g.RemoteTrunkTip = e.revParse(ctx, g, task.Repository.RemoteTrunk())
}

// createBranch creates the task branch when the developer is still on trunk
// and a slug was configured.
func (e *Executor) createBranch(ctx context.Context, task types.Task, g *types.GateContext) {
	if task.Slug == "" {
		return
	}
	current, err := e.vcs.CurrentBranch(ctx)
	if err != nil {
		g.Fail("current branch", err)
		return
	}
	if current != task.Repository.Trunk {
		return
	}

	issue, err := e.host.GetIssue(ctx, task.IssueNumber)
	if err != nil {
		// loadIssue reports it
		return
	}
	typ := rules.IssueType(issue.Title)
	if typ == "" {
		return
	}

	name := rules.BranchName(task.IssueNumber, typ, task.Slug)
	if err := e.vcs.CreateBranch(ctx, name, task.Repository.RemoteTrunk()); err != nil {
		g.Fail("create branch "+name, err)
		return
	}
	e.logger.Info("created branch",
		zap.Int("issue", task.IssueNumber),
		zap.String("branch", name),
	)
}

func (e *Executor) loadIssue(ctx context.Context, g *types.GateContext) {
	issue, err := e.host.GetIssue(ctx, g.IssueNumber)
	if err != nil {
		// missing issues surface through the issue-present rule
		if !errors.Is(err, host.ErrNotFound) {
			g.Fail(fmt.Sprintf("get issue #%d", g.IssueNumber), err)
		}
		return
	}
	g.Issue = issue
}

// taskBranch resolves the feature branch of the task: the recorded branch,
// else the checked-out branch, else any local branch named for the issue.
func (e *Executor) taskBranch(ctx context.Context, task types.Task, g *types.GateContext) string {
	if task.Branch != "" {
		return task.Branch
	}
	current, err := e.vcs.CurrentBranch(ctx)
	if err != nil {
		g.Fail("current branch", err)
		return ""
	}
	if current != task.Repository.Trunk {
		return current
	}

	branches, err := e.vcs.Branches(ctx)
	if err != nil {
		g.Fail("list branches", err)
		return ""
	}
	return issueBranch(branches, task)
}

// issueBranch finds the local branch named after the task's issue
func issueBranch(branches []string, task types.Task) string {
	for _, b := range branches {
		if strings.HasPrefix(b, task.Repository.Remote+"/") {
			continue
		}
		if n, _, _, ok := rules.ParseBranch(b); ok && n == task.IssueNumber {
			return b
		}
	}
	return ""
}

func (e *Executor) loadBranch(ctx context.Context, task types.Task, g *types.GateContext) {
	name := e.taskBranch(ctx, task, g)
	g.RemoteTrunkTip = e.revParse(ctx, g, task.Repository.RemoteTrunk())
	if name == "" {
		return
	}

	branch := &types.Branch{Name: name}
	branch.Head = e.revParse(ctx, g, name)
	base, err := e.vcs.MergeBase(ctx, name, task.Repository.RemoteTrunk())
	if err != nil {
		g.Fail("merge-base "+name, err)
	}
	branch.BaseCommit = base
	g.Branch = branch
}

// loadSiblings lists other branches, local or remote, named for the same
// issue as the task branch.
func (e *Executor) loadSiblings(ctx context.Context, task types.Task, g *types.GateContext) {
	if g.Branch == nil {
		return
	}
	branches, err := e.vcs.Branches(ctx)
	if err != nil {
		g.Fail("list branches", err)
		return
	}

	prefix := task.Repository.Remote + "/"
	for _, b := range branches {
		name := strings.TrimPrefix(b, prefix)
		if name == g.Branch.Name {
			continue
		}
		if n, _, _, ok := rules.ParseBranch(name); ok && n == task.IssueNumber {
			g.SiblingBranches = append(g.SiblingBranches, b)
		}
	}
}

func (e *Executor) loadCommits(ctx context.Context, task types.Task, g *types.GateContext) {
	if g.Branch == nil {
		return
	}
	base := task.Repository.RemoteTrunk()
	commits, err := e.vcs.Commits(ctx, base, g.Branch.Name)
	if err != nil {
		g.Fail("list commits", err)
		return
	}
	g.Commits = commits

	files, err := e.vcs.ChangedFiles(ctx, base, g.Branch.Name)
	if err != nil {
		g.Fail("list changed files", err)
		return
	}
	g.ChangedFiles = files
}

func (e *Executor) loadPullRequest(ctx context.Context, g *types.GateContext, withRuns bool) {
	if g.Branch == nil {
		return
	}
	pr, err := e.host.PullRequestForBranch(ctx, g.Branch.Name)
	if err != nil {
		if !errors.Is(err, host.ErrNotFound) {
			g.Fail("find pull request", err)
		}
		return
	}
	if withRuns {
		runs, err := e.host.CIRuns(ctx, pr.HeadBranch, pr.HeadSHA)
		if err != nil {
			g.Fail("list CI runs", err)
		}
		pr.Runs = runs
	}
	g.PullRequest = pr
}

// publish pushes the task branch and opens its pull request when asked to.
func (e *Executor) publish(ctx context.Context, task types.Task, g *types.GateContext) {
	if g.Branch == nil {
		return
	}
	if err := e.vcs.Push(ctx, g.Branch.Name); err != nil {
		g.Fail("push "+g.Branch.Name, err)
		return
	}

	e.loadPullRequest(ctx, g, false)
	if g.PullRequest != nil || !task.CreatePR || len(g.Failures) > 0 || len(g.Commits) == 0 {
		return
	}

	pr, err := e.host.CreatePullRequest(ctx, host.CreatePullRequestOptions{
		Title: rules.Subject(g.Commits[0].Message),
		Body:  PullRequestBody(task.IssueNumber),
		Base:  task.Repository.Trunk,
		Head:  g.Branch.Name,
	})
	if err != nil {
		g.Fail("create pull request", err)
		return
	}
	g.PullRequest = pr
}

func (e *Executor) cleanup(ctx context.Context, task types.Task, g *types.GateContext) {
	name := e.taskBranch(ctx, task, g)
	trunk := task.Repository.Trunk

	if name != "" {
		g.Branch = &types.Branch{Name: name}
		e.loadPullRequest(ctx, g, false)
	}

	if err := e.vcs.Checkout(ctx, trunk); err != nil {
		g.Fail("checkout "+trunk, err)
		return
	}
	if err := e.vcs.Pull(ctx); err != nil {
		g.Fail("pull", err)
	}
	if err := e.vcs.Fetch(ctx); err != nil {
		g.Fail("fetch", err)
	}

	if name != "" && (g.PullRequest == nil || g.PullRequest.State == types.PRMerged) {
		present, err := e.vcs.Branches(ctx)
		if err != nil {
			g.Fail("list branches", err)
		}
		remoteRef := task.Repository.Remote + "/" + name
		for _, b := range present {
			switch b {
			case remoteRef:
				if err := e.vcs.DeleteRemoteBranch(ctx, name); err != nil {
					g.Fail("delete remote branch "+name, err)
				}
			case name:
				if err := e.vcs.DeleteBranch(ctx, name); err != nil {
					g.Fail("delete branch "+name, err)
				}
			}
		}
	}

	e.loadIssue(ctx, g)
	if name == "" {
		return
	}
	remaining, err := e.vcs.Branches(ctx)
	if err != nil {
		g.Fail("list branches", err)
		return
	}
	for _, b := range remaining {
		if b == name || b == task.Repository.Remote+"/"+name {
			g.LeftoverBranches = append(g.LeftoverBranches, b)
		}
	}
}

// Discard deletes the local and remote task branch, checking out trunk first
// when the branch is checked out. A branch whose pull request merged is kept
// for the Cleanup phase. The issue is told which branch was discarded.
func (e *Executor) Discard(ctx context.Context, task types.Task) error {
	branches, err := e.vcs.Branches(ctx)
	if err != nil {
		return fmt.Errorf("failed to list branches: %w", err)
	}
	name := task.Branch
	if name == "" {
		// only a branch named after the issue is discarded, never whatever is
		// checked out
		name = issueBranch(branches, task)
	}
	if name == "" {
		return nil
	}

	pr, err := e.host.PullRequestForBranch(ctx, name)
	switch {
	case err == nil && pr.State == types.PRMerged:
		e.logger.Info("keeping merged branch",
			zap.Int("issue", task.IssueNumber),
			zap.String("branch", name),
		)
		return nil
	case err != nil && !errors.Is(err, host.ErrNotFound):
		return fmt.Errorf("failed to find pull request: %w", err)
	}

	current, err := e.vcs.CurrentBranch(ctx)
	if err != nil {
		return fmt.Errorf("failed to read current branch: %w", err)
	}
	if current == name {
		if err := e.vcs.Checkout(ctx, task.Repository.Trunk); err != nil {
			return fmt.Errorf("failed to checkout %s: %w", task.Repository.Trunk, err)
		}
	}

	remoteRef := task.Repository.Remote + "/" + name
	for _, b := range branches {
		switch b {
		case remoteRef:
			if err := e.vcs.DeleteRemoteBranch(ctx, name); err != nil {
				return fmt.Errorf("failed to delete remote branch %s: %w", name, err)
			}
		case name:
			if err := e.vcs.DeleteBranch(ctx, name); err != nil {
				return fmt.Errorf("failed to delete branch %s: %w", name, err)
			}
		}
	}

	msg := fmt.Sprintf("Task abandoned. Branch `%s` was discarded.", name)
	if err := e.host.CommentIssue(ctx, task.IssueNumber, msg); err != nil {
		e.logger.Warn("failed to comment on issue",
			zap.Int("issue", task.IssueNumber),
			zap.Error(err),
		)
	}

	e.logger.Info("discarded task branch",
		zap.Int("issue", task.IssueNumber),
		zap.String("branch", name),
	)
	return nil
}

func (e *Executor) revParse(ctx context.Context, g *types.GateContext, rev string) string {
	hash, err := e.vcs.RevParse(ctx, rev)
	if err != nil {
		g.Fail("rev-parse "+rev, err)
		return ""
	}
	return hash
}

// PullRequestBody is the default body of a pull request for issue.
func PullRequestBody(issue int) string {
	return fmt.Sprintf("Closes #%d", issue)
}
