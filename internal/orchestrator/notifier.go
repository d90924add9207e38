package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/host"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// Notifier is told about every phase attempt
type Notifier interface {
	Notify(ctx context.Context, task types.Task, attempt types.Attempt) error
}

// Forgetter is a notifier that keeps per-task state, dropped when the task is
// abandoned
type Forgetter interface {
	Forget(task types.Task)
}

// ForgetAll tells every notifier that keeps task state to drop task
func ForgetAll(notifiers []Notifier, task types.Task) {
	for _, n := range notifiers {
		if f, ok := n.(Forgetter); ok {
			f.Forget(task)
		}
	}
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(ctx context.Context, task types.Task, attempt types.Attempt) error

func (f NotifierFunc) Notify(ctx context.Context, task types.Task, attempt types.Attempt) error {
	return f(ctx, task, attempt)
}

// LogNotifier writes every violation of a failed attempt to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, task types.Task, attempt types.Attempt) error {
	for _, v := range attempt.Result.Violations {
		n.logger.Warn("violation",
			zap.String("attempt_id", attempt.ID),
			zap.Int("issue", task.IssueNumber),
			zap.String("phase", string(attempt.Result.Phase)),
			zap.String("kind", string(v.Kind)),
			zap.String("rule", v.Rule),
			zap.String("subject", v.Subject),
			zap.String("message", v.Message),
		)
	}
	return nil
}

// notifyAll fans an attempt out to every notifier. Notifier errors are logged
// and never fail the attempt.
func notifyAll(ctx context.Context, logger *zap.Logger, notifiers []Notifier, task types.Task, attempt types.Attempt) {
	for _, n := range notifiers {
		if err := n.Notify(ctx, task, attempt); err != nil {
			logger.Warn("failed to notify",
				zap.String("attempt_id", attempt.ID),
				zap.Error(err),
			)
		}
	}
}

// HostFactory returns the issue host client for a repository
type HostFactory func(repo types.RepositoryInfo) host.IssueHostClient

// CommentNotifier posts the violations of failed pull request, review and
// merge gates on the pull request. Attempts that only wait for CI or a
// review are not posted, and neither is the set posted last for the task.
type CommentNotifier struct {
	hostFor HostFactory
	logger  *zap.Logger

	mu   sync.Mutex
	last map[string]string
}

// NewCommentNotifier creates a new pull request comment notifier
func NewCommentNotifier(hostFor HostFactory, logger *zap.Logger) *CommentNotifier {
	return &CommentNotifier{
		hostFor: hostFor,
		logger:  logger,
		last:    make(map[string]string),
	}
}

func (n *CommentNotifier) Notify(ctx context.Context, task types.Task, attempt types.Attempt) error {
	res := attempt.Result
	switch res.Phase {
	case types.PhasePR, types.PhaseReview, types.PhaseMerge:
	default:
		return nil
	}
	if res.Passed {
		n.Forget(task)
		return nil
	}
	if task.Branch == "" || onlyWaiting(res) {
		return nil
	}

	body := ViolationComment(res)
	n.mu.Lock()
	seen := n.last[task.ID()] == body
	n.mu.Unlock()
	if seen {
		return nil
	}

	h := n.hostFor(task.Repository)
	pr, err := h.PullRequestForBranch(ctx, task.Branch)
	if errors.Is(err, host.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to find pull request: %w", err)
	}
	if err := h.CommentPullRequest(ctx, pr.Number, body); err != nil {
		return fmt.Errorf("failed to comment on pull request #%d: %w", pr.Number, err)
	}

	n.mu.Lock()
	n.last[task.ID()] = body
	n.mu.Unlock()

	n.logger.Info("commented violations",
		zap.Int("issue", task.IssueNumber),
		zap.Int("pr_number", pr.Number),
		zap.String("phase", string(res.Phase)),
	)
	return nil
}

// Forget drops the last posted comment of task
func (n *CommentNotifier) Forget(task types.Task) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.last, task.ID())
}

// onlyWaiting reports whether every violation is a missing artifact, such as
// CI still running or a review not yet given.
func onlyWaiting(res types.Result) bool {
	for _, v := range res.Violations {
		if v.Kind != types.MissingArtifact {
			return false
		}
	}
	return true
}

// ViolationComment renders a failed gate as a Markdown comment
func ViolationComment(res types.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**trunkgate**: the %s gate failed.\n\n", res.Phase)
	for _, v := range res.Violations {
		fmt.Fprintf(&b, "- %s `%s`: %s", v.Kind, v.Rule, v.Message)
		if v.Subject != "" {
			fmt.Fprintf(&b, " (`%s`)", v.Subject)
		}
		b.WriteString("\n")
	}
	return b.String()
}
