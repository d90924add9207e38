// Package report renders gate results for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/clintrovert/trunkgate/internal/advisor"
	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/internal/state"
	"github.com/clintrovert/trunkgate/pkg/types"
)

var (
	passStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true)
	currentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	kindStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
	boxStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

// Result renders a gate result with one line per violation
func Result(res types.Result) string {
	var b strings.Builder
	if res.Passed {
		b.WriteString(passStyle.Render("PASS"))
	} else {
		b.WriteString(failStyle.Render("FAIL"))
	}
	b.WriteString(" " + headerStyle.Render(string(res.Phase)))

	for _, v := range res.Violations {
		b.WriteString("\n  ")
		b.WriteString(violation(v))
	}
	return b.String()
}

func violation(v types.Violation) string {
	line := kindStyle.Render(string(v.Kind)) + " " + v.Rule + ": " + v.Message
	if v.Subject != "" {
		line += "\n    " + detailStyle.Render(fmt.Sprintf("%q", v.Subject))
	}
	return line
}

// Attempt renders a phase attempt with its timing
func Attempt(a types.Attempt) string {
	header := detailStyle.Render(fmt.Sprintf("issue #%d attempt %s (%s)", a.Issue, shortID(a.ID), a.Duration().Round(time.Millisecond)))
	return header + "\n" + Result(a.Result)
}

// Status renders the progress of a task through the cycle
func Status(rec *state.Record) string {
	snap := rec.Machine
	current := snap.Phase.Index()

	steps := make([]string, 0, len(types.Phases))
	for i, p := range types.Phases {
		name := string(p)
		switch {
		case i < current:
			steps = append(steps, passStyle.Render("✓ "+name))
		case i > current:
			steps = append(steps, pendingStyle.Render("· "+name))
		case snap.Status == phase.StatusBlocked:
			steps = append(steps, failStyle.Render("✗ "+name))
		case snap.Status == phase.StatusAbandoned:
			steps = append(steps, pendingStyle.Render("– "+name))
		default:
			steps = append(steps, currentStyle.Render("▶ "+name))
		}
	}

	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("Issue #%d", rec.Task.IssueNumber)))
	if rec.Task.Branch != "" {
		b.WriteString(" " + detailStyle.Render(rec.Task.Branch))
	}
	b.WriteString("\n")
	b.WriteString(strings.Join(steps, "  "))
	b.WriteString("\n")
	b.WriteString(detailStyle.Render(fmt.Sprintf("status %s, cycle %d, attempts %d", snap.Status, snap.Cycle, snap.Attempts)))
	for _, v := range snap.Violations {
		b.WriteString("\n  ")
		b.WriteString(violation(v))
	}
	return boxStyle.Render(b.String())
}

// Advice renders advisor output
func Advice(a *advisor.Advice) string {
	var b strings.Builder
	rec := a.Recommendation
	if rec.Split {
		b.WriteString(failStyle.Render("split recommended"))
	} else {
		b.WriteString(passStyle.Render("scope looks fine"))
	}
	b.WriteString(" " + detailStyle.Render("("+a.Source+")"))

	for _, r := range rec.Reasons {
		b.WriteString("\n  - " + r)
	}
	if len(rec.Groups) > 0 {
		b.WriteString("\n  groups: " + strings.Join(rec.Groups, ", "))
	}
	for _, s := range a.Suggestions {
		mark := passStyle.Render("✓")
		if !s.Compliant {
			mark = failStyle.Render("✗")
		}
		b.WriteString(fmt.Sprintf("\n  %s %s %s", mark, detailStyle.Render(string(s.Kind)), s.Text))
	}
	return b.String()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
