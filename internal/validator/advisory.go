package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/clintrovert/trunkgate/internal/rules"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// Thresholds above which work is better split into several issues.
const (
	maxChecklistItems = 6
	maxTopLevelDirs   = 3
)

// Recommendation is non-binding advice about how to scope a task
type Recommendation struct {
	Split   bool     `json:"split"`
	Reasons []string `json:"reasons,omitempty"`
	// Groups proposes how to partition the work when Split is set.
	Groups []string `json:"groups,omitempty"`
}

// Advise inspects an issue and its branch history and recommends whether the
// work should be split into multiple issues. It is never part of a gate.
func Advise(issue *types.Issue, commits []types.Commit, changedFiles []string) Recommendation {
	var rec Recommendation

	if issue != nil {
		if n := rules.CountChecklistItems(issue.Body); n > maxChecklistItems {
			rec.Reasons = append(rec.Reasons, fmt.Sprintf("issue has %d checklist items", n))
		}
	}

	commitTypes := make(map[string]bool)
	for _, c := range commits {
		if t := rules.CommitType(rules.Subject(c.Message)); t != "" {
			commitTypes[t] = true
		}
	}
	// feat/fix paired with test or docs is one unit of work.
	intent := make([]string, 0, len(commitTypes))
	for t := range commitTypes {
		if t != "test" && t != "docs" && t != "style" {
			intent = append(intent, t)
		}
	}
	sort.Strings(intent)
	if len(intent) > 1 {
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("history mixes change types: %s", strings.Join(intent, ", ")))
		for _, t := range intent {
			rec.Groups = append(rec.Groups, "type:"+t)
		}
	}

	dirs := topLevelDirs(changedFiles)
	if len(dirs) > maxTopLevelDirs {
		rec.Reasons = append(rec.Reasons, fmt.Sprintf("changes span %d top-level directories", len(dirs)))
		if len(rec.Groups) == 0 {
			for _, d := range dirs {
				rec.Groups = append(rec.Groups, "dir:"+d)
			}
		}
	}

	rec.Split = len(rec.Reasons) > 0
	return rec
}

func topLevelDirs(files []string) []string {
	seen := make(map[string]bool)
	for _, f := range files {
		dir, _, ok := strings.Cut(f, "/")
		if !ok {
			dir = "."
		}
		seen[dir] = true
	}
	out := make([]string, 0, len(seen))
	for d := range seen {
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
