package vcs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/pkg/types"
)

// DefaultCloneBase is where repositories are cloned from
const DefaultCloneBase = "https://github.com"

// Workspace keeps clones of task repositories for workers that do not run
// inside a checkout.
type Workspace struct {
	root   string
	base   string
	token  string
	logger *zap.Logger
}

// NewWorkspace creates a workspace rooted at root. base is the clone URL
// prefix, DefaultCloneBase when empty.
func NewWorkspace(root, base, token string, logger *zap.Logger) *Workspace {
	if base == "" {
		base = DefaultCloneBase
	}
	return &Workspace{root: root, base: base, token: token, logger: logger}
}

// Path returns where the clone of owner/name lives
func (w *Workspace) Path(owner, name string) string {
	return filepath.Join(w.root, owner, name)
}

// Prepare returns repo pointing at its clone, cloning it on first use. An
// existing clone is reused as is; the phases fetch for themselves.
func (w *Workspace) Prepare(ctx context.Context, repo types.RepositoryInfo) (types.RepositoryInfo, error) {
	path := w.Path(repo.Owner, repo.Name)
	repo.Path = path

	if _, err := git.PlainOpen(path); err == nil {
		return repo, nil
	} else if !errors.Is(err, git.ErrRepositoryNotExists) {
		return repo, fmt.Errorf("failed to open clone: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return repo, fmt.Errorf("failed to create directory: %w", err)
	}

	_, err := git.PlainCloneContext(ctx, path, false, &git.CloneOptions{
		URL:           fmt.Sprintf("%s/%s/%s.git", w.base, repo.Owner, repo.Name),
		RemoteName:    repo.Remote,
		ReferenceName: plumbing.NewBranchReferenceName(repo.Trunk),
		Auth:          w.auth(),
	})
	if err != nil {
		os.RemoveAll(path)
		return repo, fmt.Errorf("failed to clone repository: %w", err)
	}

	w.logger.Info("cloned repository",
		zap.String("owner", repo.Owner),
		zap.String("repo", repo.Name),
		zap.String("path", path),
	)
	return repo, nil
}

func (w *Workspace) auth() transport.AuthMethod {
	if w.token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: w.token}
}
