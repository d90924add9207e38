package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clintrovert/trunkgate/pkg/types"
)

func TestIssueCreate_RejectedBeforeFiling(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "trunkgate.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("repository:\n  owner: acme\n  name: web\n  path: "+dir+"\n"), 0600))

	out, err := execute(t, "no acceptance criteria", "issue", "create", "--config", cfgPath, "--json", "-t", "login")
	assert.ErrorIs(t, err, errGateFailed)

	var res types.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Len(t, res.Violations, 2)
	assert.Equal(t, "issue-title", res.Violations[0].Rule)
	assert.Equal(t, "issue-acceptance-criteria", res.Violations[1].Rule)
}

func TestIssueCreate_RequiresTitle(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "- [ ] one", "issue", "create")
	assert.Error(t, err)
}
