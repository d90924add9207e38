package vcs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/command"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// Client reads repository state with go-git and runs mutating operations
// through the git CLI.
type Client struct {
	repoPath string
	remote   string
	runner   command.Runner
	logger   *zap.Logger
}

// NewClient creates a client for the repository at repoPath
func NewClient(repoPath, remote string, runner command.Runner, logger *zap.Logger) *Client {
	return &Client{
		repoPath: repoPath,
		remote:   remote,
		runner:   runner,
		logger:   logger,
	}
}

func (c *Client) open() (*git.Repository, error) {
	r, err := git.PlainOpen(c.repoPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}
	return r, nil
}

func (c *Client) git(ctx context.Context, args ...string) (string, error) {
	out, err := c.runner.Run(ctx, command.Cmd{Dir: c.repoPath, Name: "git", Args: args})
	if err != nil {
		return out.Stdout, err
	}
	return strings.TrimSpace(out.Stdout), nil
}

// CurrentBranch returns the short name of the checked out branch
func (c *Client) CurrentBranch(ctx context.Context) (string, error) {
	r, err := c.open()
	if err != nil {
		return "", err
	}
	head, err := r.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", fmt.Errorf("HEAD is detached at %s", head.Hash())
	}
	return head.Name().Short(), nil
}

// RevParse resolves rev to a full commit hash
func (c *Client) RevParse(ctx context.Context, rev string) (string, error) {
	r, err := c.open()
	if err != nil {
		return "", err
	}
	hash, err := r.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	return hash.String(), nil
}

// MergeBase returns the best common ancestor of a and b
func (c *Client) MergeBase(ctx context.Context, a, b string) (string, error) {
	r, err := c.open()
	if err != nil {
		return "", err
	}
	ca, err := resolveCommit(r, a)
	if err != nil {
		return "", err
	}
	cb, err := resolveCommit(r, b)
	if err != nil {
		return "", err
	}
	bases, err := ca.MergeBase(cb)
	if err != nil {
		return "", fmt.Errorf("failed to compute merge base: %w", err)
	}
	if len(bases) == 0 {
		return "", fmt.Errorf("%s and %s share no history", a, b)
	}
	return bases[0].Hash.String(), nil
}

// Branches lists local branches and remote-tracking branches ("origin/x")
func (c *Client) Branches(ctx context.Context) ([]string, error) {
	r, err := c.open()
	if err != nil {
		return nil, err
	}
	refs, err := r.References()
	if err != nil {
		return nil, fmt.Errorf("failed to list references: %w", err)
	}
	defer refs.Close()

	var names []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		if ref.Name().IsBranch() || ref.Name().IsRemote() {
			names = append(names, ref.Name().Short())
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to iterate references: %w", err)
	}
	return names, nil
}

// Commits returns the commits reachable from head but not from base, oldest
// first, including merge commits.
func (c *Client) Commits(ctx context.Context, base, head string) ([]types.Commit, error) {
	out, err := c.git(ctx, "rev-list", "--reverse", base+".."+head)
	if err != nil {
		return nil, err
	}
	r, err := c.open()
	if err != nil {
		return nil, err
	}

	var commits []types.Commit
	for _, line := range strings.Fields(out) {
		obj, err := r.CommitObject(plumbing.NewHash(line))
		if err != nil {
			return nil, fmt.Errorf("failed to load commit %s: %w", line, err)
		}
		commit := types.Commit{
			Hash:    obj.Hash.String(),
			Message: strings.TrimSpace(obj.Message),
		}
		for _, p := range obj.ParentHashes {
			commit.Parents = append(commit.Parents, p.String())
		}
		if !commit.IsMerge() {
			commit.ChangedFiles, err = changedFiles(obj)
			if err != nil {
				return nil, err
			}
		}
		commits = append(commits, commit)
	}
	return commits, nil
}

// ChangedFiles lists the paths changed on head since it forked from base
func (c *Client) ChangedFiles(ctx context.Context, base, head string) ([]string, error) {
	out, err := c.git(ctx, "diff", "--name-only", base+"..."+head)
	if err != nil {
		return nil, err
	}
	return strings.Fields(out), nil
}

// Checkout switches to an existing branch
func (c *Client) Checkout(ctx context.Context, branch string) error {
	_, err := c.git(ctx, "checkout", branch)
	return err
}

// CreateBranch creates name at base and checks it out
func (c *Client) CreateBranch(ctx context.Context, name, base string) error {
	if _, err := c.git(ctx, "checkout", "-b", name, base); err != nil {
		return err
	}
	c.logger.Info("created branch",
		zap.String("branch", name),
		zap.String("base", base),
	)
	return nil
}

// DeleteBranch force-deletes a local branch. Rebase-merged branches are
// never ancestors of trunk, so a safe delete would always refuse.
func (c *Client) DeleteBranch(ctx context.Context, name string) error {
	_, err := c.git(ctx, "branch", "-D", name)
	return err
}

// DeleteRemoteBranch removes the branch from the remote
func (c *Client) DeleteRemoteBranch(ctx context.Context, name string) error {
	_, err := c.git(ctx, "push", c.remote, "--delete", name)
	return err
}

// Add stages paths
func (c *Client) Add(ctx context.Context, paths ...string) error {
	_, err := c.git(ctx, append([]string{"add", "--"}, paths...)...)
	return err
}

// Commit records the staged changes
func (c *Client) Commit(ctx context.Context, message string) error {
	_, err := c.git(ctx, "commit", "-m", message)
	return err
}

// Fetch updates remote-tracking refs and prunes deleted branches
func (c *Client) Fetch(ctx context.Context) error {
	_, err := c.git(ctx, "fetch", "--prune", c.remote)
	return err
}

// Pull fast-forwards the current branch from its upstream
func (c *Client) Pull(ctx context.Context) error {
	_, err := c.git(ctx, "pull", "--ff-only", c.remote)
	if err != nil && strings.Contains(err.Error(), "Not possible to fast-forward") {
		return fmt.Errorf("%w: %v", ErrNotFastForward, err)
	}
	return err
}

// Rebase replays the current branch onto onto. On conflicts the rebase is
// left in progress and ErrRebaseConflict is returned.
func (c *Client) Rebase(ctx context.Context, onto string) error {
	return c.rebase(ctx, "rebase", onto)
}

// RebaseContinue resumes a rebase after the conflicts were resolved by hand
func (c *Client) RebaseContinue(ctx context.Context) error {
	return c.rebase(ctx, "-c", "core.editor=true", "rebase", "--continue")
}

// RebaseAbort cancels an in-progress rebase
func (c *Client) RebaseAbort(ctx context.Context) error {
	_, err := c.git(ctx, "rebase", "--abort")
	return err
}

func (c *Client) rebase(ctx context.Context, args ...string) error {
	out, err := c.git(ctx, args...)
	if err == nil {
		return nil
	}
	inProgress, stateErr := c.RebaseInProgress(ctx)
	if stateErr == nil && inProgress {
		c.logger.Warn("rebase stopped on conflicts", zap.String("output", strings.TrimSpace(out)))
		return fmt.Errorf("%w: %v", ErrRebaseConflict, err)
	}
	return err
}

// RebaseInProgress reports whether a rebase is waiting for resolution
func (c *Client) RebaseInProgress(ctx context.Context) (bool, error) {
	for _, dir := range []string{"rebase-merge", "rebase-apply"} {
		path, err := c.git(ctx, "rev-parse", "--git-path", dir)
		if err != nil {
			return false, err
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(c.repoPath, path)
		}
		if _, err := os.Stat(path); err == nil {
			return true, nil
		}
	}
	return false, nil
}

// Push publishes branch and sets its upstream
func (c *Client) Push(ctx context.Context, branch string) error {
	_, err := c.git(ctx, "push", "--set-upstream", c.remote, branch)
	return err
}

// PushWithLease force-pushes branch only if the remote branch still points
// at expected.
func (c *Client) PushWithLease(ctx context.Context, branch, expected string) error {
	lease := fmt.Sprintf("--force-with-lease=%s:%s", branch, expected)
	_, err := c.git(ctx, "push", lease, c.remote, branch)
	if err != nil && (strings.Contains(err.Error(), "stale info") || strings.Contains(err.Error(), "[rejected]")) {
		return fmt.Errorf("%w: %v", ErrLeaseRejected, err)
	}
	if err != nil {
		return err
	}
	c.logger.Info("pushed branch with lease",
		zap.String("branch", branch),
		zap.String("expected", expected),
	)
	return nil
}

func resolveCommit(r *git.Repository, rev string) (*object.Commit, error) {
	hash, err := r.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", rev, err)
	}
	commit, err := r.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", rev, err)
	}
	return commit, nil
}

func changedFiles(commit *object.Commit) ([]string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree of %s: %w", commit.Hash, err)
	}

	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		parent, err := commit.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent of %s: %w", commit.Hash, err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("failed to load parent tree of %s: %w", commit.Hash, err)
		}
	}

	changes, err := object.DiffTree(parentTree, tree)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s: %w", commit.Hash, err)
	}
	files := make([]string, 0, len(changes))
	for _, ch := range changes {
		name := ch.To.Name
		if name == "" {
			name = ch.From.Name
		}
		files = append(files, name)
	}
	return files, nil
}

var _ VersionControlClient = (*Client)(nil)
