package types

import (
	"fmt"
	"strings"
)

// ViolationKind classifies why a gate failed
type ViolationKind string

const (
	FormatViolation     ViolationKind = "FormatViolation"
	MissingArtifact     ViolationKind = "MissingArtifact"
	StateMismatch       ViolationKind = "StateMismatch"
	ExternalCallFailure ViolationKind = "ExternalCallFailure"
	PolicyViolation     ViolationKind = "PolicyViolation"
)

// Recoverable reports whether the developer can fix the violation locally by
// editing and re-validating. StateMismatch needs manual conflict resolution
// and ExternalCallFailure is fatal for the current attempt.
func (k ViolationKind) Recoverable() bool {
	return k == FormatViolation || k == MissingArtifact
}

// Violation is one failed rule
type Violation struct {
	Kind    ViolationKind `json:"kind"`
	Rule    string        `json:"rule"`
	Subject string        `json:"subject,omitempty"`
	Message string        `json:"message"`
}

func (v Violation) String() string {
	if v.Subject != "" {
		return fmt.Sprintf("%s [%s] %s: %q", v.Kind, v.Rule, v.Message, v.Subject)
	}
	return fmt.Sprintf("%s [%s] %s", v.Kind, v.Rule, v.Message)
}

// Result is the outcome of evaluating one phase gate
type Result struct {
	Phase      Phase       `json:"phase"`
	Passed     bool        `json:"passed"`
	Violations []Violation `json:"violations,omitempty"`
}

// Kinds returns the distinct violation kinds in first-seen order.
func (r Result) Kinds() []ViolationKind {
	seen := make(map[ViolationKind]bool)
	var kinds []ViolationKind
	for _, v := range r.Violations {
		if !seen[v.Kind] {
			seen[v.Kind] = true
			kinds = append(kinds, v.Kind)
		}
	}
	return kinds
}

// Error renders a failed result as a single error message.
func (r Result) Error() string {
	if r.Passed {
		return ""
	}
	lines := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		lines = append(lines, v.String())
	}
	return fmt.Sprintf("%s gate failed: %s", r.Phase, strings.Join(lines, "; "))
}
