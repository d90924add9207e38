package validator

import (
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/rules"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// Validator evaluates phase gates against a rule registry. It never mutates
// external state and reports every violation in one pass.
type Validator struct {
	registry *rules.Registry
	logger   *zap.Logger
}

// New creates a validator backed by registry
func New(registry *rules.Registry, logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		registry: registry,
		logger:   logger,
	}
}

// Check evaluates the gate of phase against ctx
func (v *Validator) Check(phase types.Phase, ctx *types.GateContext) types.Result {
	result := types.Result{Phase: phase}
	if !phase.Valid() {
		result.Violations = []types.Violation{{
			Kind:    types.PolicyViolation,
			Rule:    "phase",
			Subject: string(phase),
			Message: "unknown phase",
		}}
		return result
	}

	result.Violations = v.registry.Validate(phase, ctx)
	result.Passed = len(result.Violations) == 0

	v.logger.Debug("evaluated gate",
		zap.String("phase", string(phase)),
		zap.Bool("passed", result.Passed),
		zap.Int("violations", len(result.Violations)),
	)
	return result
}

// IssueTitle validates a single issue title.
func (v *Validator) IssueTitle(title string) types.Result {
	return single(types.PhaseSync, "issue-title", title, rules.IssueTitleRe)
}

// BranchName validates a single branch name.
func (v *Validator) BranchName(name string) types.Result {
	return single(types.PhaseBranch, "branch-name", name, rules.BranchNameRe)
}

// CommitMessage validates the subject line of a commit message.
func (v *Validator) CommitMessage(message string) types.Result {
	return single(types.PhaseCommit, "commit-message", rules.Subject(message), rules.CommitMessageRe)
}

// PRBody validates that a pull request body carries a closing reference.
func (v *Validator) PRBody(body string) types.Result {
	return single(types.PhasePR, "pr-closing-reference", body, rules.ClosingReferenceRe)
}

// NewIssue validates an issue before it is filed: the title format and at
// least one acceptance criterion in the body.
func (v *Validator) NewIssue(title, body string) types.Result {
	res := v.IssueTitle(title)
	if !rules.HasChecklistItem(body) {
		res.Passed = false
		res.Violations = append(res.Violations, types.Violation{
			Kind:    types.MissingArtifact,
			Rule:    "issue-acceptance-criteria",
			Message: "issue body has no checklist item",
		})
	}
	return res
}

func single(phase types.Phase, name, candidate string, re interface{ MatchString(string) bool }) types.Result {
	if re.MatchString(candidate) {
		return types.Result{Phase: phase, Passed: true}
	}
	return types.Result{
		Phase: phase,
		Violations: []types.Violation{{
			Kind:    types.FormatViolation,
			Rule:    name,
			Subject: candidate,
			Message: "does not match the required format",
		}},
	}
}
