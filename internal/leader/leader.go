// Package leader turns labelled issues into running task workflows.
package leader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/temporal"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// Workflow statuses recorded for started tasks
const (
	StatusStarted = "started"
	StatusRunning = "running"
	StatusFailed  = "failed"
)

// TaskStarter starts the workflow of a task
type TaskStarter interface {
	StartTask(ctx context.Context, task types.Task) (string, error)
}

// Leader coordinates issue polling and workflow spawning
type Leader struct {
	poller  *Poller
	starter TaskStarter
	logger  *zap.Logger

	mu    sync.RWMutex
	tasks map[int]types.ProcessedTask
	now   func() time.Time
}

// New creates a new leader. poller may be nil when tasks are only submitted
// through Submit.
func New(poller *Poller, starter TaskStarter, logger *zap.Logger) *Leader {
	return &Leader{
		poller:  poller,
		starter: starter,
		logger:  logger,
		tasks:   make(map[int]types.ProcessedTask),
		now:     time.Now,
	}
}

// Start runs the orchestration loop until ctx is done
func (l *Leader) Start(ctx context.Context) error {
	if l.poller == nil {
		<-ctx.Done()
		return ctx.Err()
	}

	taskChan := make(chan types.Task, 10)
	go l.poller.Start(ctx, taskChan)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-taskChan:
			if _, err := l.Submit(ctx, task); err != nil {
				l.logger.Error("failed to process task",
					zap.Int("issue", task.IssueNumber),
					zap.Error(err),
				)
				// A failed start is retried on a later poll.
				l.poller.Forget(task.IssueNumber)
			}
		}
	}
}

// Submit starts the workflow of a task. A task whose workflow is already
// running is not an error.
func (l *Leader) Submit(ctx context.Context, task types.Task) (types.ProcessedTask, error) {
	l.logger.Info("processing task",
		zap.Int("issue", task.IssueNumber),
		zap.String("repository", task.Repository.Owner+"/"+task.Repository.Name),
	)

	workflowID, err := l.starter.StartTask(ctx, task)
	status := StatusStarted
	switch {
	case errors.Is(err, temporal.ErrTaskRunning):
		status = StatusRunning
		err = nil
	case err != nil:
		l.record(task.IssueNumber, task.ID(), StatusFailed)
		return types.ProcessedTask{}, fmt.Errorf("failed to start workflow: %w", err)
	}

	l.logger.Info("started workflow for task",
		zap.Int("issue", task.IssueNumber),
		zap.String("workflow_id", workflowID),
		zap.String("status", status),
	)
	return l.record(task.IssueNumber, workflowID, status), nil
}

func (l *Leader) record(issue int, workflowID, status string) types.ProcessedTask {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	pt, ok := l.tasks[issue]
	if !ok {
		pt = types.ProcessedTask{IssueNumber: issue, CreatedAt: now}
	}
	pt.WorkflowID = workflowID
	pt.Status = status
	pt.UpdatedAt = now
	l.tasks[issue] = pt
	return pt
}

// Tasks returns every task the leader has handled, ordered by issue
func (l *Leader) Tasks() []types.ProcessedTask {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.ProcessedTask, 0, len(l.tasks))
	for _, pt := range l.tasks {
		out = append(out, pt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueNumber < out[j].IssueNumber })
	return out
}

// Task returns the record of one issue
func (l *Leader) Task(issue int) (types.ProcessedTask, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	pt, ok := l.tasks[issue]
	return pt, ok
}
