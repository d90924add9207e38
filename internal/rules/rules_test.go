package rules

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clintrovert/trunkgate/pkg/types"
)

func TestIssueTitlePattern(t *testing.T) {
	tests := []struct {
		title string
		want  bool
	}{
		{"feat: " + strings.Repeat("a", 10), true},
		{"feat: " + strings.Repeat("a", 72), true},
		{"feat: " + strings.Repeat("a", 9), false},
		{"feat: " + strings.Repeat("a", 73), false},
		{"docs: explain the release flow", true},
		{"style: reformat everything", false},
		{"feat:no space after colon", false},
		{"Feat: capitalised type here", false},
		{"feat: add login", false},
	}
	for _, tt := range tests {
		t.Run(tt.title, func(t *testing.T) {
			assert.Equal(t, tt.want, IssueTitleRe.MatchString(tt.title))
		})
	}
}

func TestBranchNamePattern(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"12-feat-abc", true},
		{"12-feat-ab", false},
		{"123-feat-login", true},
		{"7-docs-" + strings.Repeat("x", 30), true},
		{"7-docs-" + strings.Repeat("x", 31), false},
		{"feat-login", false},
		{"12-test-login", false},
		{"12-fix-Login", false},
		{"12-fix-multi-word-slug", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BranchNameRe.MatchString(tt.name))
		})
	}
}

func TestCommitMessagePattern(t *testing.T) {
	assert.True(t, CommitMessageRe.MatchString("feat(auth): add jwt check"))
	assert.True(t, CommitMessageRe.MatchString("test(api-v2): cover error paths"))
	assert.False(t, CommitMessageRe.MatchString("fix bug"))
	assert.False(t, CommitMessageRe.MatchString("feat: add jwt check"))
	assert.False(t, CommitMessageRe.MatchString("feat(Auth): add jwt check"))
	assert.False(t, CommitMessageRe.MatchString("feat(auth): too short"))
}

func TestClosingReferencePattern(t *testing.T) {
	assert.True(t, ClosingReferenceRe.MatchString("Closes #42"))
	assert.True(t, ClosingReferenceRe.MatchString("Summary\n\nCloses #42\n"))
	// The match is case-sensitive.
	assert.False(t, ClosingReferenceRe.MatchString("closes #42"))
	assert.Equal(t, []int{42, 7}, ClosedIssues("Closes #42 and Closes #7"))
}

func TestParseBranch(t *testing.T) {
	n, typ, slug, ok := ParseBranch("123-feat-jwt-login")
	require.True(t, ok)
	assert.Equal(t, 123, n)
	assert.Equal(t, "feat", typ)
	assert.Equal(t, "jwt-login", slug)

	_, _, _, ok = ParseBranch("main")
	assert.False(t, ok)
	assert.Equal(t, "9-fix-crash", BranchName(9, "fix", "crash"))
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"feat: add login form":                          "add-login-form",
		"fix: Crash on   empty (nil) input!":             "crash-on-empty-nil-input",
		"docs: describe the configuration file in depth": "describe-the-configuration-fil",
		"chore: v2":                                      "",
	}
	for title, want := range tests {
		got := Slug(title)
		assert.Equal(t, want, got, title)
		if got != "" {
			assert.True(t, BranchNameRe.MatchString(BranchName(1, "feat", got)), got)
		}
	}
}

func TestChecklist(t *testing.T) {
	assert.True(t, HasChecklistItem("## Acceptance\n- [ ] works\n"))
	assert.True(t, HasChecklistItem("* [x] done"))
	assert.False(t, HasChecklistItem("- works"))
	assert.Equal(t, 2, CountChecklistItems("- [ ] a\n- [x] b\n"))
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	rule := Require("always", types.PolicyViolation, "never", func(*types.GateContext) bool { return true })

	require.NoError(t, r.Register(types.PhaseSync, rule))
	assert.ErrorIs(t, r.Register(types.PhaseSync, rule), ErrDuplicateRule)
	assert.ErrorIs(t, r.Register(types.Phase("deploy"), rule), ErrUnknownPhase)
	assert.Len(t, r.Rules(types.PhaseSync), 1)
	assert.Empty(t, r.Rules(types.PhaseBranch))
}

func TestRegistry_ValidateReportsAllViolations(t *testing.T) {
	r := NewRegistry()
	r.MustRegister(types.PhaseCommit,
		Pattern("commit-message", types.FormatViolation, CommitMessageRe, commitSubjects),
		noMergeCommits(),
	)

	ctx := &types.GateContext{Commits: []types.Commit{
		{Hash: "a", Parents: []string{"p"}, Message: "fix bug"},
		{Hash: "b", Parents: []string{"p", "q"}, Message: "Merge branch 'master'"},
		{Hash: "c", Parents: []string{"p"}, Message: "wip"},
	}}
	got := r.Validate(types.PhaseCommit, ctx)

	require.Len(t, got, 3)
	assert.Equal(t, "commit-message", got[0].Rule)
	assert.Equal(t, "fix bug", got[0].Subject)
	assert.Equal(t, "wip", got[1].Subject)
	assert.Equal(t, "no-merge-commits", got[2].Rule)
	assert.Equal(t, types.PolicyViolation, got[2].Kind)
}

func TestRegistry_ValidateNilContext(t *testing.T) {
	r, err := Default(DefaultOptions())
	require.NoError(t, err)

	got := r.Validate(types.PhaseSync, nil)
	assert.NotEmpty(t, got)
}

func TestDefault_SingleCategory(t *testing.T) {
	r, err := Default(DefaultOptions())
	require.NoError(t, err)

	ctx := &types.GateContext{Commits: []types.Commit{
		{Hash: "a", Parents: []string{"p"}, Message: "docs(readme): describe the merge flow", ChangedFiles: []string{"README.md", "main.go"}},
		{Hash: "b", Parents: []string{"p"}, Message: "test(rules): cover branch boundaries", ChangedFiles: []string{"internal/rules/rules_test.go"}},
	}}
	got := r.Validate(types.PhaseCommit, ctx)

	require.Len(t, got, 1)
	assert.Equal(t, "single-category", got[0].Rule)
	assert.Contains(t, got[0].Message, "main.go")
}

func TestDefault_TestsAdded(t *testing.T) {
	r, err := Default(DefaultOptions())
	require.NoError(t, err)

	ctx := &types.GateContext{
		Branch:       &types.Branch{Name: "5-feat-login"},
		Checks:       []types.CheckOutcome{{Name: "test", ExitCode: 0}},
		ChangedFiles: []string{"auth/login.go"},
	}
	got := r.Validate(types.PhaseVerify, ctx)
	require.Len(t, got, 1)
	assert.Equal(t, types.MissingArtifact, got[0].Kind)

	ctx.ChangedFiles = append(ctx.ChangedFiles, "auth/login_test.go")
	assert.Empty(t, r.Validate(types.PhaseVerify, ctx))

	ctx.Branch.Name = "5-chore-bump-deps"
	ctx.ChangedFiles = []string{"go.mod"}
	assert.Empty(t, r.Validate(types.PhaseVerify, ctx))
}

func TestDefault_CallFailuresAreReported(t *testing.T) {
	r, err := Default(DefaultOptions())
	require.NoError(t, err)

	ctx := &types.GateContext{
		PullRequest: &types.PullRequest{ReviewDecision: types.ReviewApproved, Runs: []types.CIRun{{Name: "ci", State: types.CISuccess}}},
		Failures:    []types.CallFailure{{Call: "gh run list", Message: "HTTP 401: Bad credentials"}},
	}
	got := r.Validate(types.PhaseReview, ctx)

	require.Len(t, got, 1)
	assert.Equal(t, types.ExternalCallFailure, got[0].Kind)
	assert.Equal(t, "HTTP 401: Bad credentials", got[0].Message)
}

func TestDefault_InvalidPattern(t *testing.T) {
	opts := DefaultOptions()
	opts.TestFilePatterns = []string{"("}
	_, err := Default(opts)
	assert.Error(t, err)
}
