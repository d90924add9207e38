// Package advisor suggests how to split work and phrase titles and commit
// messages. Its output is advisory and never part of a gate.
package advisor

import (
	"context"

	"github.com/clintrovert/trunkgate/internal/validator"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// Request is the work an advisor looks at
type Request struct {
	Issue        *types.Issue
	Commits      []types.Commit
	ChangedFiles []string
}

// SuggestionKind names what a suggestion proposes
type SuggestionKind string

const (
	SuggestIssueTitle    SuggestionKind = "issue-title"
	SuggestCommitMessage SuggestionKind = "commit-message"
)

// Suggestion is one proposed title or message, already checked against the
// matching pattern.
type Suggestion struct {
	Kind       SuggestionKind    `json:"kind"`
	Text       string            `json:"text"`
	Compliant  bool              `json:"compliant"`
	Violations []types.Violation `json:"violations,omitempty"`
}

// Advice is the outcome of one advisor run
type Advice struct {
	Source         string                   `json:"source"`
	Recommendation validator.Recommendation `json:"recommendation"`
	Suggestions    []Suggestion             `json:"suggestions,omitempty"`
}

// Advisor interface for generating advice
type Advisor interface {
	Advise(ctx context.Context, req Request) (*Advice, error)
}

// Heuristic advises from issue and diff shape alone
type Heuristic struct{}

// Advise implements Advisor
func (Heuristic) Advise(_ context.Context, req Request) (*Advice, error) {
	return &Advice{
		Source:         "heuristic",
		Recommendation: validator.Advise(req.Issue, req.Commits, req.ChangedFiles),
	}, nil
}
