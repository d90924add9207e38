package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/internal/state"
	"github.com/clintrovert/trunkgate/pkg/types"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	configPath, outputJSON, verbose = "", false, false
	taskSlug, taskCreatePR, taskJira = "", false, ""
	validateContextFile = "-"
	issueTitle, issueBody = "", "-"
	commitMessage, commitAll = "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCommands_Registered(t *testing.T) {
	names := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		names[cmd.Name()] = true
	}
	for _, want := range []string{"validate", "status", "step", "run", "abandon", "advise", "watch", "issue", "commit", "rebase"} {
		assert.True(t, names[want], "missing command %s", want)
	}
}

func TestValidate_Single(t *testing.T) {
	t.Chdir(t.TempDir())

	tests := []struct {
		args []string
		pass bool
	}{
		{[]string{"validate", "issue-title", "feat: add login form"}, true},
		{[]string{"validate", "issue-title", "feat: add login"}, false},
		{[]string{"validate", "branch", "123-feat-add-login-form"}, true},
		{[]string{"validate", "branch", "feature/login"}, false},
		{[]string{"validate", "commit", "feat(auth): add jwt check"}, true},
		{[]string{"validate", "commit", "added stuff"}, false},
		{[]string{"validate", "pr-body", "Closes #123"}, true},
		{[]string{"validate", "pr-body", "closes #123"}, false},
	}

	for _, tt := range tests {
		t.Run(strings.Join(tt.args[1:], " "), func(t *testing.T) {
			out, err := execute(t, "", tt.args...)
			if tt.pass {
				require.NoError(t, err)
				assert.Contains(t, out, "PASS")
			} else {
				assert.ErrorIs(t, err, errGateFailed)
				assert.Contains(t, out, "FAIL")
			}
		})
	}
}

func TestValidate_CommitFromStdin(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "fix(db): handle nil rows\n\nLonger body.\n", "validate", "commit", "--json", "-")
	require.NoError(t, err)

	var res types.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Passed)
}

func TestValidate_Phase(t *testing.T) {
	t.Chdir(t.TempDir())

	gate := `{"issue_number": 1, "local_trunk_tip": "t1", "remote_trunk_tip": "t2",
		"issue": {"number": 1, "title": "fix: handle nil rows", "body": "- [ ] no panic", "state": "open"}}`
	out, err := execute(t, gate, "validate", "phase", "sync", "--json")
	assert.ErrorIs(t, err, errGateFailed)

	var res types.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Violations, 1)
	assert.Equal(t, types.StateMismatch, res.Violations[0].Kind)

	_, err = execute(t, gate, "validate", "phase", "deploy")
	assert.Error(t, err)
}

func TestStatus(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "trunkgate.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("repository:\n  owner: acme\n  name: web\n  path: "+dir+"\n"), 0600))

	store := state.ForRepository(dir)
	require.NoError(t, store.Save(&state.Record{
		Task:    types.Task{IssueNumber: 123, Branch: "123-feat-add-login-form"},
		Machine: phase.Snapshot{Phase: types.PhaseVerify, Status: phase.StatusBlocked, Attempts: 1},
	}))

	out, err := execute(t, "", "status", "123", "--config", cfgPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Issue #123")
	assert.Contains(t, out, "✗ verify")

	out, err = execute(t, "", "status", "123", "--config", cfgPath, "--json")
	require.NoError(t, err)
	var rec state.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, types.PhaseVerify, rec.Machine.Phase)

	_, err = execute(t, "", "status", "7", "--config", cfgPath)
	assert.Error(t, err)

	_, err = execute(t, "", "status", "seven", "--config", cfgPath)
	assert.Error(t, err)
}

func TestCycleComplete(t *testing.T) {
	assert.False(t, cycleComplete(nil))
	assert.False(t, cycleComplete([]types.Attempt{
		{Result: types.Result{Phase: types.PhaseCleanup, Passed: false}},
	}))
	assert.True(t, cycleComplete([]types.Attempt{
		{Result: types.Result{Phase: types.PhaseMerge, Passed: true}},
		{Result: types.Result{Phase: types.PhaseCleanup, Passed: true}},
	}))
}
