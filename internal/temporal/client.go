package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/internal/temporal/workflows"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// ErrTaskRunning is returned when a workflow already runs for the issue.
var ErrTaskRunning = errors.New("task workflow already running")

// workflowClient is the part of client.Client the task API uses.
type workflowClient interface {
	ExecuteWorkflow(ctx context.Context, options client.StartWorkflowOptions, workflow interface{}, args ...interface{}) (client.WorkflowRun, error)
	QueryWorkflow(ctx context.Context, workflowID, runID, queryType string, args ...interface{}) (converter.EncodedValue, error)
	SignalWorkflow(ctx context.Context, workflowID, runID, signalName string, arg interface{}) error
	CancelWorkflow(ctx context.Context, workflowID, runID string) error
	CheckHealth(ctx context.Context, request *client.CheckHealthRequest) (*client.CheckHealthResponse, error)
	Close()
}

// Client wraps Temporal client functionality
type Client struct {
	temporalClient  workflowClient
	logger          *zap.Logger
	taskQueue       string
	recheckInterval time.Duration
	phaseTimeout    time.Duration
}

// Options tune the task workflows the client starts
type Options struct {
	RecheckInterval time.Duration
	PhaseTimeout    time.Duration
}

// NewClient creates a new Temporal client
func NewClient(address, namespace, taskQueue string, opts Options, logger *zap.Logger) (*Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  address,
		Namespace: namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create temporal client: %w", err)
	}

	return newClient(c, taskQueue, opts, logger), nil
}

func newClient(c workflowClient, taskQueue string, opts Options, logger *zap.Logger) *Client {
	return &Client{
		temporalClient:  c,
		logger:          logger,
		taskQueue:       taskQueue,
		recheckInterval: opts.RecheckInterval,
		phaseTimeout:    opts.PhaseTimeout,
	}
}

// StartTask starts the workflow of a task. One workflow runs per issue.
func (c *Client) StartTask(ctx context.Context, task types.Task) (string, error) {
	workflowOptions := client.StartWorkflowOptions{
		ID:                                       task.ID(),
		TaskQueue:                                c.taskQueue,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}

	workflowInput := workflows.TaskWorkflowInput{
		Task:            task,
		RecheckInterval: c.recheckInterval,
		PhaseTimeout:    c.phaseTimeout,
	}

	we, err := c.temporalClient.ExecuteWorkflow(ctx, workflowOptions, workflows.TaskWorkflow, workflowInput)
	if err != nil {
		var started *serviceerror.WorkflowExecutionAlreadyStarted
		if errors.As(err, &started) {
			return task.ID(), fmt.Errorf("%s: %w", task.ID(), ErrTaskRunning)
		}
		return "", fmt.Errorf("failed to start workflow: %w", err)
	}

	c.logger.Info("started workflow",
		zap.String("workflow_id", we.GetID()),
		zap.String("run_id", we.GetRunID()),
		zap.Int("issue", task.IssueNumber),
	)

	return we.GetID(), nil
}

// QueryPhase returns the machine snapshot of a running or finished task
func (c *Client) QueryPhase(ctx context.Context, workflowID string) (phase.Snapshot, error) {
	var snap phase.Snapshot
	val, err := c.temporalClient.QueryWorkflow(ctx, workflowID, "", workflows.QueryPhase)
	if err != nil {
		return snap, fmt.Errorf("failed to query workflow: %w", err)
	}
	if err := val.Get(&snap); err != nil {
		return snap, fmt.Errorf("failed to decode phase: %w", err)
	}
	return snap, nil
}

// Revalidate re-attempts the blocked phase of a task
func (c *Client) Revalidate(ctx context.Context, workflowID string) error {
	if err := c.temporalClient.SignalWorkflow(ctx, workflowID, "", workflows.SignalRevalidate, nil); err != nil {
		return fmt.Errorf("failed to signal workflow: %w", err)
	}
	c.logger.Info("requested revalidation", zap.String("workflow_id", workflowID))
	return nil
}

// Abandon cancels the workflow of a task
func (c *Client) Abandon(ctx context.Context, workflowID string) error {
	if err := c.temporalClient.CancelWorkflow(ctx, workflowID, ""); err != nil {
		return fmt.Errorf("failed to cancel workflow: %w", err)
	}
	c.logger.Info("abandoned task", zap.String("workflow_id", workflowID))
	return nil
}

// CheckHealth reports whether the Temporal frontend is reachable
func (c *Client) CheckHealth(ctx context.Context) error {
	if _, err := c.temporalClient.CheckHealth(ctx, &client.CheckHealthRequest{}); err != nil {
		return fmt.Errorf("failed to check temporal health: %w", err)
	}
	return nil
}

// Close closes the Temporal client
func (c *Client) Close() {
	c.temporalClient.Close()
}
