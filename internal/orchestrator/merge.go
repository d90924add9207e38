package orchestrator

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/vcs"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// merge runs the pre-merge gate and, when it passes, integrates the branch
// with optimistic concurrency on the trunk tip:
//
//  1. fetch and record the trunk tip
//  2. if the branch is behind, rebase and force-push with a lease on the
//     observed remote branch tip, then wait for CI on the new head
//  3. otherwise fetch again and merge only if the trunk tip is unchanged
//
// Conflicts and moved tips stop the attempt; nothing is retried.
func (e *Executor) merge(ctx context.Context, task types.Task, g *types.GateContext) types.Result {
	if err := e.vcs.Fetch(ctx); err != nil {
		g.Fail("fetch", err)
	}
	g.FetchedTrunkTip = e.revParse(ctx, g, task.Repository.RemoteTrunk())
	e.loadBranch(ctx, task, g)
	// the compare-and-swap below fills this in again
	g.RemoteTrunkTip = ""
	e.loadCommits(ctx, task, g)
	e.loadPullRequest(ctx, g, true)

	pre := e.validator.Check(types.PhaseMerge, g)
	if !pre.Passed {
		return pre
	}

	if v := e.integrate(ctx, task, g); v != nil {
		return withViolations(e.validator.Check(types.PhaseMerge, g), *v)
	}
	if len(g.Failures) > 0 {
		return e.validator.Check(types.PhaseMerge, g)
	}

	// compare-and-swap on the trunk tip
	if err := e.vcs.Fetch(ctx); err != nil {
		g.Fail("fetch", err)
	}
	g.RemoteTrunkTip = e.revParse(ctx, g, task.Repository.RemoteTrunk())
	cas := e.validator.Check(types.PhaseMerge, g)
	if !cas.Passed {
		return cas
	}

	pr := g.PullRequest
	if err := e.host.MergePullRequest(ctx, pr.Number, pr.HeadSHA); err != nil {
		g.Fail("merge pull request", err)
		return e.validator.Check(types.PhaseMerge, g)
	}

	merged, err := e.host.PullRequestForBranch(ctx, g.Branch.Name)
	if err != nil {
		g.Fail("find pull request", err)
		return e.validator.Check(types.PhaseMerge, g)
	}
	g.PullRequest.State = merged.State

	result := e.validator.Check(types.PhaseMerge, g)
	if merged.State != types.PRMerged {
		return withViolations(result, types.Violation{
			Kind:    types.StateMismatch,
			Rule:    "merge-result",
			Subject: pr.URL,
			Message: "pull request did not end merged",
		})
	}

	e.logger.Info("merged task branch",
		zap.Int("issue", task.IssueNumber),
		zap.String("branch", g.Branch.Name),
		zap.String("trunk_tip", g.FetchedTrunkTip),
	)
	return result
}

// integrate brings the branch on top of the fetched trunk tip. It returns a
// violation when the attempt has to stop before merging.
func (e *Executor) integrate(ctx context.Context, task types.Task, g *types.GateContext) *types.Violation {
	branch := g.Branch.Name

	inProgress, err := e.vcs.RebaseInProgress(ctx)
	if err != nil {
		g.Fail("rebase status", err)
		return nil
	}

	switch {
	case inProgress:
		if err := e.vcs.RebaseContinue(ctx); err != nil {
			return e.rebaseViolation(g, err)
		}
	case g.Branch.BaseCommit != g.FetchedTrunkTip:
		if err := e.vcs.Checkout(ctx, branch); err != nil {
			g.Fail("checkout "+branch, err)
			return nil
		}
		if err := e.vcs.Rebase(ctx, task.Repository.RemoteTrunk()); err != nil {
			return e.rebaseViolation(g, err)
		}
	default:
		return nil
	}

	observed := e.revParse(ctx, g, task.Repository.Remote+"/"+branch)
	if observed == "" {
		return nil
	}
	if err := e.vcs.PushWithLease(ctx, branch, observed); err != nil {
		if errors.Is(err, vcs.ErrLeaseRejected) {
			return &types.Violation{
				Kind:    types.StateMismatch,
				Rule:    "merge-push",
				Subject: branch,
				Message: "remote branch moved since it was fetched; fetch and retry",
			}
		}
		g.Fail("push "+branch, err)
		return nil
	}

	e.logger.Info("rebased task branch onto trunk",
		zap.Int("issue", task.IssueNumber),
		zap.String("branch", branch),
		zap.String("trunk_tip", g.FetchedTrunkTip),
	)
	return &types.Violation{
		Kind:    types.MissingArtifact,
		Rule:    "merge-ci",
		Subject: branch,
		Message: "branch rebased onto trunk; waiting for CI on the new head",
	}
}

func (e *Executor) rebaseViolation(g *types.GateContext, err error) *types.Violation {
	if errors.Is(err, vcs.ErrRebaseConflict) {
		return &types.Violation{
			Kind:    types.StateMismatch,
			Rule:    "merge-rebase",
			Subject: g.Branch.Name,
			Message: "rebase stopped on conflicts; resolve them and re-run",
		}
	}
	g.Fail("rebase "+g.Branch.Name, err)
	return nil
}
