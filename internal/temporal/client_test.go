package temporal

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/converter"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/internal/temporal/workflows"
	"github.com/clintrovert/trunkgate/pkg/types"
)

type fakeRun struct {
	client.WorkflowRun
	id string
}

func (r fakeRun) GetID() string    { return r.id }
func (r fakeRun) GetRunID() string { return "run-1" }

type jsonValue struct {
	v any
}

func (j jsonValue) HasValue() bool { return j.v != nil }

func (j jsonValue) Get(ptr interface{}) error {
	data, err := json.Marshal(j.v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, ptr)
}

type fakeWorkflowClient struct {
	started   []client.StartWorkflowOptions
	inputs    []workflows.TaskWorkflowInput
	startErr  error
	signals   []string
	cancelled []string
	snapshot  phase.Snapshot
	healthErr error
}

func (f *fakeWorkflowClient) ExecuteWorkflow(_ context.Context, options client.StartWorkflowOptions, _ interface{}, args ...interface{}) (client.WorkflowRun, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.started = append(f.started, options)
	f.inputs = append(f.inputs, args[0].(workflows.TaskWorkflowInput))
	return fakeRun{id: options.ID}, nil
}

func (f *fakeWorkflowClient) QueryWorkflow(_ context.Context, _, _, queryType string, _ ...interface{}) (converter.EncodedValue, error) {
	if queryType != workflows.QueryPhase {
		return nil, errors.New("unknown query")
	}
	return jsonValue{v: f.snapshot}, nil
}

func (f *fakeWorkflowClient) SignalWorkflow(_ context.Context, workflowID, _, signalName string, _ interface{}) error {
	f.signals = append(f.signals, workflowID+":"+signalName)
	return nil
}

func (f *fakeWorkflowClient) CancelWorkflow(_ context.Context, workflowID, _ string) error {
	f.cancelled = append(f.cancelled, workflowID)
	return nil
}

func (f *fakeWorkflowClient) CheckHealth(context.Context, *client.CheckHealthRequest) (*client.CheckHealthResponse, error) {
	return &client.CheckHealthResponse{}, f.healthErr
}

func (f *fakeWorkflowClient) Close() {}

func testTask() types.Task {
	return types.Task{
		IssueNumber: 42,
		Repository:  types.RepositoryInfo{Owner: "acme", Name: "widgets"},
	}
}

func TestClient_StartTask(t *testing.T) {
	fake := &fakeWorkflowClient{}
	c := newClient(fake, "trunkgate", Options{}, zap.NewNop())

	id, err := c.StartTask(context.Background(), testTask())
	require.NoError(t, err)
	assert.Equal(t, "task-acme-widgets-42", id)
	require.Len(t, fake.started, 1)
	assert.Equal(t, "trunkgate", fake.started[0].TaskQueue)
	assert.True(t, fake.started[0].WorkflowExecutionErrorWhenAlreadyStarted)
	assert.Equal(t, 42, fake.inputs[0].Task.IssueNumber)
}

func TestClient_StartTaskAlreadyRunning(t *testing.T) {
	fake := &fakeWorkflowClient{
		startErr: serviceerror.NewWorkflowExecutionAlreadyStarted("already started", "", "run-0"),
	}
	c := newClient(fake, "trunkgate", Options{}, zap.NewNop())

	id, err := c.StartTask(context.Background(), testTask())
	assert.ErrorIs(t, err, ErrTaskRunning)
	assert.Equal(t, "task-acme-widgets-42", id)
}

func TestClient_QueryRevalidateAbandon(t *testing.T) {
	fake := &fakeWorkflowClient{snapshot: phase.Snapshot{Phase: types.PhaseReview, Status: phase.StatusBlocked}}
	c := newClient(fake, "trunkgate", Options{}, zap.NewNop())
	ctx := context.Background()

	snap, err := c.QueryPhase(ctx, "task-acme-widgets-42")
	require.NoError(t, err)
	assert.Equal(t, types.PhaseReview, snap.Phase)
	assert.Equal(t, phase.StatusBlocked, snap.Status)

	require.NoError(t, c.Revalidate(ctx, "task-acme-widgets-42"))
	assert.Equal(t, []string{"task-acme-widgets-42:revalidate"}, fake.signals)

	require.NoError(t, c.Abandon(ctx, "task-acme-widgets-42"))
	assert.Equal(t, []string{"task-acme-widgets-42"}, fake.cancelled)
}

func TestClient_CheckHealth(t *testing.T) {
	fake := &fakeWorkflowClient{}
	c := newClient(fake, "trunkgate-queue", Options{}, zap.NewNop())
	require.NoError(t, c.CheckHealth(context.Background()))

	fake.healthErr = errors.New("connection refused")
	assert.Error(t, c.CheckHealth(context.Background()))
}
