// Package watch re-runs a task whenever the local repository changes.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"go.uber.org/zap"
)

// DefaultDebounce is how long the watcher waits for git to settle
const DefaultDebounce = 500 * time.Millisecond

var (
	// ErrNotGitRepo is returned when the path has no .git directory
	ErrNotGitRepo = errors.New("not a git repository")
)

// Func is called on every change. Returning done stops the watcher.
type Func func(ctx context.Context) (done bool, err error)

// Watcher triggers a Func when refs or HEAD of a repository move
type Watcher struct {
	gitDir   string
	repo     *git.Repository
	fsw      *fsnotify.Watcher
	debounce time.Duration
	interval time.Duration
	logger   *zap.Logger
}

// New watches the repository at path. A non-zero interval also triggers on a
// timer, which picks up remote changes such as CI and review state.
func New(path string, debounce, interval time.Duration, logger *zap.Logger) (*Watcher, error) {
	gitDir := filepath.Join(path, ".git")
	if info, err := os.Stat(gitDir); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotGitRepo, path)
	}

	repo, err := git.PlainOpen(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem watcher: %w", err)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		gitDir:   gitDir,
		repo:     repo,
		fsw:      fsw,
		debounce: debounce,
		interval: interval,
		logger:   logger,
	}

	if err := w.addDirs(); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return w, nil
}

// addDirs registers .git and every directory holding refs or reflogs.
// fsnotify does not recurse.
func (w *Watcher) addDirs() error {
	if err := w.fsw.Add(w.gitDir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.gitDir, err)
	}

	for _, root := range []string{"refs/heads", "refs/remotes", "logs"} {
		err := filepath.WalkDir(filepath.Join(w.gitDir, root), func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return w.fsw.Add(path)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("failed to watch %s: %w", root, err)
		}
	}
	return nil
}

// Fingerprint summarises HEAD and every ref. It only changes when a ref moves.
func (w *Watcher) Fingerprint() (string, error) {
	var lines []string

	head, err := w.repo.Head()
	switch {
	case err == nil:
		lines = append(lines, "HEAD "+head.Name().String()+" "+head.Hash().String())
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		lines = append(lines, "HEAD unborn")
	default:
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}

	refs, err := w.repo.References()
	if err != nil {
		return "", fmt.Errorf("failed to list references: %w", err)
	}
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.HashReference {
			lines = append(lines, ref.Name().String()+" "+ref.Hash().String())
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to read references: %w", err)
	}

	sort.Strings(lines[1:])
	return strings.Join(lines, "\n"), nil
}

// Run calls fn once, then again after every change until fn reports done,
// fn fails or ctx ends.
func (w *Watcher) Run(ctx context.Context, fn Func) error {
	last, err := w.trigger(ctx, fn, "start")
	if err != nil || last == "" {
		return err
	}

	debounce := time.NewTimer(w.debounce)
	debounce.Stop()
	defer debounce.Stop()

	var tick <-chan time.Time
	if w.interval > 0 {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if strings.HasSuffix(event.Name, ".lock") {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.fsw.Add(event.Name)
				}
			}
			debounce.Reset(w.debounce)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("filesystem watcher error", zap.Error(err))

		case <-debounce.C:
			current, err := w.Fingerprint()
			if err != nil {
				w.logger.Warn("failed to fingerprint repository", zap.Error(err))
				continue
			}
			if current == last {
				continue
			}
			if last, err = w.trigger(ctx, fn, "refs changed"); err != nil || last == "" {
				return err
			}

		case <-tick:
			if last, err = w.trigger(ctx, fn, "interval"); err != nil || last == "" {
				return err
			}
		}
	}
}

// trigger runs fn and returns the fingerprint after it, or "" when fn is
// done. Refs moved by fn itself do not trigger another run.
func (w *Watcher) trigger(ctx context.Context, fn Func, reason string) (string, error) {
	w.logger.Debug("running task", zap.String("reason", reason))

	done, err := fn(ctx)
	if err != nil {
		return "", err
	}
	if done {
		return "", nil
	}

	fp, err := w.Fingerprint()
	if err != nil {
		return "", err
	}
	return fp, nil
}

// Close stops watching
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
