package rules

import (
	"fmt"
	"regexp"

	"github.com/clintrovert/trunkgate/pkg/types"
)

type ruleFunc struct {
	name string
	fn   func(ctx *types.GateContext) []types.Violation
}

func (r ruleFunc) Name() string { return r.name }

func (r ruleFunc) Evaluate(ctx *types.GateContext) []types.Violation {
	out := r.fn(ctx)
	for i := range out {
		if out[i].Rule == "" {
			out[i].Rule = r.name
		}
	}
	return out
}

// Predicate wraps an arbitrary pure function as a rule.
func Predicate(name string, fn func(ctx *types.GateContext) []types.Violation) Rule {
	return ruleFunc{name: name, fn: fn}
}

// Pattern fails for every extracted candidate that does not match re.
func Pattern(name string, kind types.ViolationKind, re *regexp.Regexp, extract func(ctx *types.GateContext) []string) Rule {
	return Predicate(name, func(ctx *types.GateContext) []types.Violation {
		var out []types.Violation
		for _, candidate := range extract(ctx) {
			if !re.MatchString(candidate) {
				out = append(out, types.Violation{
					Kind:    kind,
					Subject: candidate,
					Message: fmt.Sprintf("does not match %s", re.String()),
				})
			}
		}
		return out
	})
}

// Require fails once when cond is false.
func Require(name string, kind types.ViolationKind, message string, cond func(ctx *types.GateContext) bool) Rule {
	return Predicate(name, func(ctx *types.GateContext) []types.Violation {
		if cond(ctx) {
			return nil
		}
		return []types.Violation{{Kind: kind, Message: message}}
	})
}

// Count fails when the counted value differs from want.
func Count(name string, kind types.ViolationKind, want int, message string, count func(ctx *types.GateContext) int) Rule {
	return Predicate(name, func(ctx *types.GateContext) []types.Violation {
		got := count(ctx)
		if got == want {
			return nil
		}
		return []types.Violation{{
			Kind:    kind,
			Message: fmt.Sprintf("%s: want %d, got %d", message, want, got),
		}}
	})
}

// NonEmpty fails when the extracted set is empty.
func NonEmpty(name string, kind types.ViolationKind, message string, set func(ctx *types.GateContext) []string) Rule {
	return Require(name, kind, message, func(ctx *types.GateContext) bool {
		return len(set(ctx)) > 0
	})
}

// ExitCodes fails for every check outcome with a non-zero exit code.
func ExitCodes(name string, kind types.ViolationKind, checks func(ctx *types.GateContext) []types.CheckOutcome) Rule {
	return Predicate(name, func(ctx *types.GateContext) []types.Violation {
		var out []types.Violation
		for _, c := range checks(ctx) {
			if c.ExitCode != 0 {
				out = append(out, types.Violation{
					Kind:    kind,
					Subject: c.Name,
					Message: fmt.Sprintf("exited with code %d", c.ExitCode),
				})
			}
		}
		return out
	})
}

// CallFailures reports every adapter failure recorded in the context verbatim.
func CallFailures() Rule {
	return Predicate("external-calls", func(ctx *types.GateContext) []types.Violation {
		var out []types.Violation
		for _, f := range ctx.Failures {
			out = append(out, types.Violation{
				Kind:    types.ExternalCallFailure,
				Subject: f.Call,
				Message: f.Message,
			})
		}
		return out
	})
}
