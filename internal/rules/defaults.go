package rules

import (
	"fmt"
	"regexp"

	"github.com/clintrovert/trunkgate/pkg/types"
)

// Options tunes the default policy.
type Options struct {
	TestFilePatterns []string
	DocFilePatterns  []string
	// TestRequiredTypes lists branch types that must add or change tests.
	TestRequiredTypes []string
}

// DefaultOptions returns the standard policy options.
func DefaultOptions() Options {
	return Options{
		TestFilePatterns:  DefaultTestFilePatterns,
		DocFilePatterns:   DefaultDocFilePatterns,
		TestRequiredTypes: []string{"feat", "fix"},
	}
}

type policy struct {
	testFiles     []*regexp.Regexp
	docFiles      []*regexp.Regexp
	testRequiredT map[string]bool
}

// Default builds a registry holding the standard gate for every phase.
func Default(opts Options) (*Registry, error) {
	testFiles, err := compileAll(opts.TestFilePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to compile test file patterns: %w", err)
	}
	docFiles, err := compileAll(opts.DocFilePatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to compile doc file patterns: %w", err)
	}
	p := &policy{
		testFiles:     testFiles,
		docFiles:      docFiles,
		testRequiredT: make(map[string]bool),
	}
	for _, t := range opts.TestRequiredTypes {
		p.testRequiredT[t] = true
	}

	r := NewRegistry()
	for _, phase := range types.Phases {
		r.MustRegister(phase, CallFailures())
	}

	r.MustRegister(types.PhaseSync,
		issuePresent(),
		Require("issue-open", types.PolicyViolation, "issue is not open", func(ctx *types.GateContext) bool {
			return ctx.Issue == nil || ctx.Issue.State == types.IssueOpen
		}),
		Pattern("issue-title", types.FormatViolation, IssueTitleRe, issueTitle),
		Require("issue-acceptance-criteria", types.MissingArtifact, "issue body has no checklist item", func(ctx *types.GateContext) bool {
			return ctx.Issue == nil || HasChecklistItem(ctx.Issue.Body)
		}),
		trunkInSync(),
	)

	r.MustRegister(types.PhaseBranch,
		Require("branch-present", types.MissingArtifact, "no feature branch checked out", func(ctx *types.GateContext) bool {
			return ctx.Branch != nil && ctx.Branch.Name != ""
		}),
		Pattern("branch-name", types.FormatViolation, BranchNameRe, branchName),
		branchIssue(),
		branchType(),
		Predicate("one-branch-per-issue", func(ctx *types.GateContext) []types.Violation {
			var out []types.Violation
			for _, b := range ctx.SiblingBranches {
				out = append(out, types.Violation{
					Kind:    types.PolicyViolation,
					Subject: b,
					Message: fmt.Sprintf("issue #%d already has another branch", ctx.IssueNumber),
				})
			}
			return out
		}),
		Require("branch-base", types.StateMismatch, "branch is not based on the current trunk tip", func(ctx *types.GateContext) bool {
			if ctx.Branch == nil || ctx.Branch.BaseCommit == "" || ctx.RemoteTrunkTip == "" {
				return true
			}
			return ctx.Branch.BaseCommit == ctx.RemoteTrunkTip
		}),
	)

	r.MustRegister(types.PhaseCommit,
		NonEmpty("commits-present", types.MissingArtifact, "branch has no commits", commitSubjects),
		Pattern("commit-message", types.FormatViolation, CommitMessageRe, commitSubjects),
		noMergeCommits(),
		p.singleCategory(),
	)

	r.MustRegister(types.PhaseVerify,
		Require("verification-ran", types.MissingArtifact, "no verification command ran", func(ctx *types.GateContext) bool {
			return len(ctx.Checks) > 0
		}),
		ExitCodes("verification-exit-codes", types.PolicyViolation, func(ctx *types.GateContext) []types.CheckOutcome {
			return ctx.Checks
		}),
		p.testsAdded(),
	)

	r.MustRegister(types.PhasePR,
		prPresent(),
		Pattern("pr-title", types.FormatViolation, CommitMessageRe, func(ctx *types.GateContext) []string {
			if ctx.PullRequest == nil {
				return nil
			}
			return []string{ctx.PullRequest.Title}
		}),
		Pattern("pr-closing-reference", types.FormatViolation, ClosingReferenceRe, prBody),
		Require("pr-closes-task-issue", types.FormatViolation, "closing reference does not name the task issue", func(ctx *types.GateContext) bool {
			if ctx.PullRequest == nil {
				return true
			}
			refs := ClosedIssues(ctx.PullRequest.Body)
			if len(refs) == 0 {
				return true
			}
			for _, n := range refs {
				if n == ctx.IssueNumber {
					return true
				}
			}
			return false
		}),
		Require("pr-open", types.StateMismatch, "pull request is not open", func(ctx *types.GateContext) bool {
			return ctx.PullRequest == nil || ctx.PullRequest.State == types.PROpen
		}),
		Require("pr-head-branch", types.StateMismatch, "pull request head is not the task branch", func(ctx *types.GateContext) bool {
			if ctx.PullRequest == nil || ctx.Branch == nil || ctx.PullRequest.HeadBranch == "" {
				return true
			}
			return ctx.PullRequest.HeadBranch == ctx.Branch.Name
		}),
	)

	r.MustRegister(types.PhaseReview, append([]Rule{prPresent()}, ciAndReview()...)...)

	r.MustRegister(types.PhaseMerge, append([]Rule{prPresent(), noMergeCommits()}, append(ciAndReview(),
		Require("trunk-unchanged", types.StateMismatch, "trunk moved since last fetch; retry from fetch", func(ctx *types.GateContext) bool {
			if ctx.FetchedTrunkTip == "" || ctx.RemoteTrunkTip == "" {
				return true
			}
			return ctx.FetchedTrunkTip == ctx.RemoteTrunkTip
		}),
	)...)...)

	r.MustRegister(types.PhaseCleanup,
		prPresent(),
		Require("pr-merged", types.StateMismatch, "pull request is not merged", func(ctx *types.GateContext) bool {
			return ctx.PullRequest == nil || ctx.PullRequest.State == types.PRMerged
		}),
		Predicate("branch-removed", func(ctx *types.GateContext) []types.Violation {
			var out []types.Violation
			for _, ref := range ctx.LeftoverBranches {
				out = append(out, types.Violation{
					Kind:    types.StateMismatch,
					Subject: ref,
					Message: "task branch still exists",
				})
			}
			return out
		}),
		issuePresent(),
		Require("issue-closed", types.StateMismatch, "issue is still open", func(ctx *types.GateContext) bool {
			return ctx.Issue == nil || ctx.Issue.State == types.IssueClosed
		}),
	)

	return r, nil
}

func issuePresent() Rule {
	return Require("issue-present", types.MissingArtifact, "issue not found", func(ctx *types.GateContext) bool {
		return ctx.Issue != nil
	})
}

func prPresent() Rule {
	return Require("pr-present", types.MissingArtifact, "no pull request for the task branch", func(ctx *types.GateContext) bool {
		return ctx.PullRequest != nil
	})
}

func trunkInSync() Rule {
	return Predicate("trunk-in-sync", func(ctx *types.GateContext) []types.Violation {
		if ctx.LocalTrunkTip == "" || ctx.RemoteTrunkTip == "" {
			return []types.Violation{{Kind: types.MissingArtifact, Message: "trunk tip could not be resolved"}}
		}
		if ctx.LocalTrunkTip != ctx.RemoteTrunkTip {
			return []types.Violation{{
				Kind:    types.StateMismatch,
				Subject: ctx.LocalTrunkTip,
				Message: fmt.Sprintf("local trunk diverged from remote %s", ctx.RemoteTrunkTip),
			}}
		}
		return nil
	})
}

func branchIssue() Rule {
	return Predicate("branch-issue", func(ctx *types.GateContext) []types.Violation {
		if ctx.Branch == nil {
			return nil
		}
		n, _, _, ok := ParseBranch(ctx.Branch.Name)
		if !ok || n == ctx.IssueNumber {
			return nil
		}
		return []types.Violation{{
			Kind:    types.FormatViolation,
			Subject: ctx.Branch.Name,
			Message: fmt.Sprintf("branch belongs to issue #%d, task is issue #%d", n, ctx.IssueNumber),
		}}
	})
}

func branchType() Rule {
	return Predicate("branch-type", func(ctx *types.GateContext) []types.Violation {
		if ctx.Branch == nil || ctx.Issue == nil {
			return nil
		}
		_, typ, _, ok := ParseBranch(ctx.Branch.Name)
		want := IssueType(ctx.Issue.Title)
		if !ok || want == "" || typ == want {
			return nil
		}
		return []types.Violation{{
			Kind:    types.FormatViolation,
			Subject: ctx.Branch.Name,
			Message: fmt.Sprintf("branch type %q does not match issue type %q", typ, want),
		}}
	})
}

func noMergeCommits() Rule {
	return Count("no-merge-commits", types.PolicyViolation, 0, "merge commits in branch history", func(ctx *types.GateContext) int {
		n := 0
		for _, c := range ctx.Commits {
			if c.IsMerge() {
				n++
			}
		}
		return n
	})
}

func ciAndReview() []Rule {
	return []Rule{
		Require("ci-runs-present", types.MissingArtifact, "no CI run for the pull request head", func(ctx *types.GateContext) bool {
			return ctx.PullRequest == nil || len(ctx.PullRequest.Runs) > 0
		}),
		ciRuns("ci-no-failures", types.CIFailure, types.PolicyViolation, "CI run failed"),
		ciRuns("ci-no-pending", types.CIPending, types.MissingArtifact, "CI run has not completed"),
		Predicate("review-approved", func(ctx *types.GateContext) []types.Violation {
			if ctx.PullRequest == nil {
				return nil
			}
			switch ctx.PullRequest.ReviewDecision {
			case types.ReviewApproved:
				return nil
			case types.ReviewChangesRequested:
				return []types.Violation{{Kind: types.PolicyViolation, Message: "reviewer requested changes"}}
			default:
				return []types.Violation{{Kind: types.MissingArtifact, Message: "pull request is not approved"}}
			}
		}),
	}
}

func ciRuns(name string, state types.CIState, kind types.ViolationKind, message string) Rule {
	return Predicate(name, func(ctx *types.GateContext) []types.Violation {
		if ctx.PullRequest == nil {
			return nil
		}
		var out []types.Violation
		for _, run := range ctx.PullRequest.Runs {
			if run.State == state {
				out = append(out, types.Violation{Kind: kind, Subject: run.Name, Message: message})
			}
		}
		return out
	})
}

// singleCategory rejects docs and test commits that touch files outside
// their category.
func (p *policy) singleCategory() Rule {
	return Predicate("single-category", func(ctx *types.GateContext) []types.Violation {
		var out []types.Violation
		for _, c := range ctx.Commits {
			if c.IsMerge() {
				continue
			}
			subject := Subject(c.Message)
			var allowed []*regexp.Regexp
			switch CommitType(subject) {
			case "docs":
				allowed = p.docFiles
			case "test":
				allowed = p.testFiles
			default:
				continue
			}
			for _, f := range c.ChangedFiles {
				if !matchesAny(allowed, f) {
					out = append(out, types.Violation{
						Kind:    types.PolicyViolation,
						Subject: subject,
						Message: fmt.Sprintf("mixed-type commit touches %s", f),
					})
					break
				}
			}
		}
		return out
	})
}

func (p *policy) testsAdded() Rule {
	return Predicate("tests-added", func(ctx *types.GateContext) []types.Violation {
		typ := ""
		if ctx.Branch != nil {
			_, typ, _, _ = ParseBranch(ctx.Branch.Name)
		}
		if typ == "" && ctx.Issue != nil {
			typ = IssueType(ctx.Issue.Title)
		}
		if !p.testRequiredT[typ] {
			return nil
		}
		for _, f := range ctx.ChangedFiles {
			if matchesAny(p.testFiles, f) {
				return nil
			}
		}
		return []types.Violation{{
			Kind:    types.MissingArtifact,
			Message: fmt.Sprintf("%s change adds no test files", typ),
		}}
	})
}

func issueTitle(ctx *types.GateContext) []string {
	if ctx.Issue == nil {
		return nil
	}
	return []string{ctx.Issue.Title}
}

func branchName(ctx *types.GateContext) []string {
	if ctx.Branch == nil || ctx.Branch.Name == "" {
		return nil
	}
	return []string{ctx.Branch.Name}
}

func commitSubjects(ctx *types.GateContext) []string {
	out := make([]string, 0, len(ctx.Commits))
	for _, c := range ctx.Commits {
		if c.IsMerge() {
			continue
		}
		out = append(out, Subject(c.Message))
	}
	return out
}

func prBody(ctx *types.GateContext) []string {
	if ctx.PullRequest == nil {
		return nil
	}
	return []string{ctx.PullRequest.Body}
}
