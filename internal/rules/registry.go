package rules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/clintrovert/trunkgate/pkg/types"
)

var (
	// ErrUnknownPhase is returned when registering a rule for an unknown phase.
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrDuplicateRule is returned when a phase already has a rule by that name.
	ErrDuplicateRule = errors.New("duplicate rule")
)

// Rule is a pure check over a gate context. It returns one violation per
// failing candidate and never performs I/O.
type Rule interface {
	Name() string
	Evaluate(ctx *types.GateContext) []types.Violation
}

// Registry holds the rules for each phase in registration order
type Registry struct {
	mu    sync.RWMutex
	rules map[types.Phase][]Rule
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{rules: make(map[types.Phase][]Rule)}
}

// Register adds rule to phase.
func (r *Registry) Register(phase types.Phase, rule Rule) error {
	if !phase.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownPhase, phase)
	}
	if rule == nil {
		return errors.New("rule is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.rules[phase] {
		if existing.Name() == rule.Name() {
			return fmt.Errorf("%w: %s/%s", ErrDuplicateRule, phase, rule.Name())
		}
	}
	r.rules[phase] = append(r.rules[phase], rule)
	return nil
}

// MustRegister is Register for static setup; it panics on error.
func (r *Registry) MustRegister(phase types.Phase, rules ...Rule) {
	for _, rule := range rules {
		if err := r.Register(phase, rule); err != nil {
			panic(err)
		}
	}
}

// Rules returns a copy of the rules registered for phase.
func (r *Registry) Rules(phase types.Phase) []Rule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Rule, len(r.rules[phase]))
	copy(out, r.rules[phase])
	return out
}

// Validate evaluates every rule of phase and returns all violations.
func (r *Registry) Validate(phase types.Phase, ctx *types.GateContext) []types.Violation {
	if ctx == nil {
		ctx = &types.GateContext{}
	}
	var violations []types.Violation
	for _, rule := range r.Rules(phase) {
		violations = append(violations, rule.Evaluate(ctx)...)
	}
	return violations
}
