package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/clintrovert/trunkgate/internal/advisor"
	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/internal/state"
	"github.com/clintrovert/trunkgate/internal/validator"
	"github.com/clintrovert/trunkgate/pkg/types"
)

func TestResult(t *testing.T) {
	out := Result(types.Result{Phase: types.PhaseSync, Passed: true})
	assert.Contains(t, out, "PASS")
	assert.Contains(t, out, "sync")

	out = Result(types.Result{
		Phase: types.PhaseBranch,
		Violations: []types.Violation{{
			Kind:    types.FormatViolation,
			Rule:    "branch-format",
			Subject: "feature/login",
			Message: "branch name does not match pattern",
		}},
	})
	assert.Contains(t, out, "FAIL")
	assert.Contains(t, out, "FormatViolation")
	assert.Contains(t, out, "branch-format")
	assert.Contains(t, out, `"feature/login"`)
}

func TestAttempt(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out := Attempt(types.Attempt{
		ID:         "0f8fad5b-d9cb-469f-a165-70867728950e",
		Issue:      123,
		Result:     types.Result{Phase: types.PhaseVerify, Passed: true},
		StartedAt:  start,
		FinishedAt: start.Add(1500 * time.Millisecond),
	})
	assert.Contains(t, out, "issue #123 attempt 0f8fad5b (1.5s)")
	assert.Contains(t, out, "verify")
}

func TestStatus(t *testing.T) {
	out := Status(&state.Record{
		Task: types.Task{IssueNumber: 123, Branch: "123-feat-add-login-form"},
		Machine: phase.Snapshot{
			Phase:    types.PhaseVerify,
			Status:   phase.StatusBlocked,
			Attempts: 2,
			Violations: []types.Violation{
				{Kind: types.PolicyViolation, Rule: "verification-passes", Message: "go test exited 1"},
			},
		},
	})
	assert.Contains(t, out, "Issue #123")
	assert.Contains(t, out, "123-feat-add-login-form")
	assert.Contains(t, out, "✓ commit")
	assert.Contains(t, out, "✗ verify")
	assert.Contains(t, out, "· merge")
	assert.Contains(t, out, "status blocked, cycle 0, attempts 2")
	assert.Contains(t, out, "verification-passes")
}

func TestAdvice(t *testing.T) {
	out := Advice(&advisor.Advice{
		Source: "ai",
		Recommendation: validator.Recommendation{
			Split:   true,
			Reasons: []string{"history mixes change types: feat, fix"},
			Groups:  []string{"type:feat", "type:fix"},
		},
		Suggestions: []advisor.Suggestion{
			{Kind: advisor.SuggestCommitMessage, Text: "feat(auth): add login form handler", Compliant: true},
			{Kind: advisor.SuggestIssueTitle, Text: "add sessions"},
		},
	})
	assert.Contains(t, out, "split recommended")
	assert.Contains(t, out, "(ai)")
	assert.Contains(t, out, "history mixes change types")
	assert.Contains(t, out, "groups: type:feat, type:fix")
	assert.Contains(t, out, "✓ commit-message feat(auth): add login form handler")
	assert.Contains(t, out, "✗ issue-title add sessions")
}
