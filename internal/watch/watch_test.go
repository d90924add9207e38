package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func initRepo(t *testing.T) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	commit(t, dir, repo, "README.md", "chore: initial commit")
	return dir, repo
}

func commit(t *testing.T, dir string, repo *git.Repository, file, msg string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(msg+"\n"), 0o644))
	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add(file)
	require.NoError(t, err)
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "dev", Email: "dev@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func TestNew_NotGitRepo(t *testing.T) {
	_, err := New(t.TempDir(), 0, 0, zap.NewNop())
	assert.ErrorIs(t, err, ErrNotGitRepo)
}

func TestWatcher_Fingerprint(t *testing.T) {
	dir, repo := initRepo(t)
	w, err := New(dir, 0, 0, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	before, err := w.Fingerprint()
	require.NoError(t, err)
	again, err := w.Fingerprint()
	require.NoError(t, err)
	assert.Equal(t, before, again)

	commit(t, dir, repo, "main.go", "feat: add the main entrypoint")
	after, err := w.Fingerprint()
	require.NoError(t, err)
	assert.NotEqual(t, before, after)
}

func TestWatcher_RunTriggersOnCommit(t *testing.T) {
	dir, repo := initRepo(t)
	w, err := New(dir, 20*time.Millisecond, 0, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	calls := make(chan int, 4)
	n := 0
	fn := func(context.Context) (bool, error) {
		n++
		calls <- n
		return n == 2, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx, fn) }()

	assert.Equal(t, 1, <-calls)
	commit(t, dir, repo, "main.go", "feat: add the main entrypoint")

	select {
	case got := <-calls:
		assert.Equal(t, 2, got)
	case <-ctx.Done():
		t.Fatal("commit did not trigger a run")
	}
	require.NoError(t, <-errCh)
}

func TestWatcher_RunInterval(t *testing.T) {
	dir, _ := initRepo(t)
	w, err := New(dir, 0, 10*time.Millisecond, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	n := 0
	err = w.Run(context.Background(), func(context.Context) (bool, error) {
		n++
		return n == 3, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestWatcher_RunStopsOnError(t *testing.T) {
	dir, _ := initRepo(t)
	w, err := New(dir, 0, 0, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	err = w.Run(context.Background(), func(context.Context) (bool, error) {
		return false, assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
}

func TestWatcher_RunCanceled(t *testing.T) {
	dir, _ := initRepo(t)
	w, err := New(dir, 0, 0, zap.NewNop())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	err = w.Run(ctx, func(context.Context) (bool, error) {
		cancel()
		return false, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
