package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clintrovert/trunkgate/pkg/types"
)

func attempt(phase types.Phase, violations ...types.Violation) types.Attempt {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return types.Attempt{
		Result: types.Result{
			Phase:      phase,
			Passed:     len(violations) == 0,
			Violations: violations,
		},
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Second),
	}
}

func TestMetrics_Notify(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	ctx := context.Background()
	a := types.Task{IssueNumber: 1, Repository: types.RepositoryInfo{Owner: "acme", Name: "web"}}
	b := types.Task{IssueNumber: 2, Repository: types.RepositoryInfo{Owner: "acme", Name: "web"}}

	require.NoError(t, m.Notify(ctx, a, attempt(types.PhaseSync)))
	require.NoError(t, m.Notify(ctx, a, attempt(types.PhaseBranch,
		types.Violation{Kind: types.FormatViolation, Rule: "branch-format"},
		types.Violation{Kind: types.StateMismatch, Rule: "branch-from-trunk"},
	)))
	require.NoError(t, m.Notify(ctx, b, attempt(types.PhaseVerify,
		types.Violation{Kind: types.PolicyViolation, Rule: "verification-passes"},
	)))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateResultsTotal.WithLabelValues("sync", OutcomePassed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GateResultsTotal.WithLabelValues("branch", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViolationsTotal.WithLabelValues("branch", "FormatViolation")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ViolationsTotal.WithLabelValues("verify", "PolicyViolation")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BlockedTasks))

	require.NoError(t, m.Notify(ctx, a, attempt(types.PhaseBranch)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BlockedTasks))

	m.Forget(b)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.BlockedTasks))

	assert.Equal(t, 3, testutil.CollectAndCount(m.PhaseDuration))
}

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.GateResultsTotal.WithLabelValues("sync", OutcomePassed).Inc()

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "trunkgate_gate_results_total")
	assert.Contains(t, names, "trunkgate_blocked_tasks")
}
