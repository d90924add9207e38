package phase

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clintrovert/trunkgate/pkg/types"
)

func pass(p types.Phase) types.Result {
	return types.Result{Phase: p, Passed: true}
}

func fail(p types.Phase, kind types.ViolationKind) types.Result {
	return types.Result{
		Phase:      p,
		Violations: []types.Violation{{Kind: kind, Rule: "r", Message: "m"}},
	}
}

func TestMachine_FullCycle(t *testing.T) {
	m := New()
	assert.Equal(t, types.PhaseSync, m.Current())

	for i, p := range types.Phases {
		next, err := m.Apply(pass(p))
		require.NoError(t, err)
		assert.Equal(t, p.Next(), next, "after phase %d", i)
	}

	snap := m.Snapshot()
	assert.Equal(t, types.PhaseSync, snap.Phase)
	assert.Equal(t, 1, snap.Cycle)
	assert.Equal(t, StatusActive, snap.Status)
}

func TestMachine_NoSkipping(t *testing.T) {
	m := New()
	_, err := m.Apply(pass(types.PhaseBranch))
	assert.ErrorIs(t, err, ErrPhaseMismatch)
	assert.Equal(t, types.PhaseSync, m.Current())
}

func TestMachine_BlockedThenResume(t *testing.T) {
	m := New()
	next, err := m.Apply(fail(types.PhaseSync, types.StateMismatch))
	require.NoError(t, err)
	assert.Equal(t, types.PhaseSync, next)
	assert.True(t, m.Blocked())
	assert.Len(t, m.Snapshot().Violations, 1)

	// blocked only exits through another attempt of the same phase
	_, err = m.Apply(pass(types.PhaseBranch))
	assert.ErrorIs(t, err, ErrPhaseMismatch)

	_, err = m.Apply(fail(types.PhaseSync, types.MissingArtifact))
	require.NoError(t, err)
	assert.Equal(t, 2, m.Snapshot().Attempts)

	next, err = m.Apply(pass(types.PhaseSync))
	require.NoError(t, err)
	assert.Equal(t, types.PhaseBranch, next)
	assert.False(t, m.Blocked())
	assert.Empty(t, m.Snapshot().Violations)
	assert.Zero(t, m.Snapshot().Attempts)
}

func TestMachine_Abandon(t *testing.T) {
	m := New()
	_, err := m.Apply(pass(types.PhaseSync))
	require.NoError(t, err)

	_, err = m.Apply(fail(types.PhaseBranch, types.FormatViolation))
	require.NoError(t, err)

	m.Abandon()
	assert.True(t, m.Abandoned())
	assert.Equal(t, types.PhaseSync, m.Current())
	assert.Zero(t, m.Snapshot().Attempts)
	assert.Empty(t, m.Snapshot().Violations)

	_, err = m.Apply(pass(types.PhaseSync))
	assert.ErrorIs(t, err, ErrAbandoned)
}

func TestMachine_SnapshotRestore(t *testing.T) {
	m := New()
	_, _ = m.Apply(pass(types.PhaseSync))
	_, _ = m.Apply(fail(types.PhaseBranch, types.FormatViolation))

	restored, err := Restore(m.Snapshot())
	require.NoError(t, err)
	assert.Equal(t, m.Snapshot(), restored.Snapshot())
	assert.True(t, restored.Blocked())

	_, err = Restore(Snapshot{Phase: "deploy", Status: StatusActive})
	assert.Error(t, err)
	_, err = Restore(Snapshot{Phase: types.PhaseSync, Status: "weird"})
	assert.Error(t, err)
}

func TestMachine_ConcurrentReaders(t *testing.T) {
	m := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = m.Current()
				_ = m.Snapshot()
			}
		}()
	}
	for _, p := range types.Phases {
		_, err := m.Apply(pass(p))
		require.NoError(t, err)
	}
	wg.Wait()
	assert.Equal(t, 1, m.Snapshot().Cycle)
}
