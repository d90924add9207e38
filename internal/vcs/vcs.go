package vcs

import (
	"context"
	"errors"

	"github.com/clintrovert/trunkgate/pkg/types"
)

var (
	// ErrRebaseConflict means a rebase stopped on conflicts. The rebase is
	// left in progress for manual resolution.
	ErrRebaseConflict = errors.New("rebase stopped on conflicts")
	// ErrLeaseRejected means a force-with-lease push found the remote branch
	// moved since it was last observed.
	ErrLeaseRejected = errors.New("remote branch moved since last fetch")
	// ErrNotFastForward means pull refused because local and remote diverged.
	ErrNotFastForward = errors.New("local branch diverged from remote")
)

// VersionControlClient is the capability set the workflow needs from version
// control. Any backing tool can implement it.
type VersionControlClient interface {
	CurrentBranch(ctx context.Context) (string, error)
	RevParse(ctx context.Context, rev string) (string, error)
	MergeBase(ctx context.Context, a, b string) (string, error)
	Branches(ctx context.Context) ([]string, error)
	Commits(ctx context.Context, base, head string) ([]types.Commit, error)
	ChangedFiles(ctx context.Context, base, head string) ([]string, error)

	Checkout(ctx context.Context, branch string) error
	CreateBranch(ctx context.Context, name, base string) error
	DeleteBranch(ctx context.Context, name string) error
	DeleteRemoteBranch(ctx context.Context, name string) error
	Add(ctx context.Context, paths ...string) error
	Commit(ctx context.Context, message string) error
	Fetch(ctx context.Context) error
	Pull(ctx context.Context) error
	Rebase(ctx context.Context, onto string) error
	RebaseContinue(ctx context.Context) error
	RebaseAbort(ctx context.Context) error
	RebaseInProgress(ctx context.Context) (bool, error)
	Push(ctx context.Context, branch string) error
	PushWithLease(ctx context.Context, branch, expected string) error
}
