// Package rest exposes the validator and task control over HTTP.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/clintrovert/trunkgate/internal/phase"
	"github.com/clintrovert/trunkgate/internal/validator"
	"github.com/clintrovert/trunkgate/pkg/types"
)

// TaskSubmitter starts task workflows and remembers them
type TaskSubmitter interface {
	Submit(ctx context.Context, task types.Task) (types.ProcessedTask, error)
	Tasks() []types.ProcessedTask
}

// TaskController drives running task workflows
type TaskController interface {
	QueryPhase(ctx context.Context, workflowID string) (phase.Snapshot, error)
	Revalidate(ctx context.Context, workflowID string) error
	Abandon(ctx context.Context, workflowID string) error
}

// TaskFactory builds the task of an issue in the served repository
type TaskFactory func(issue int) types.Task

// Handler handles REST API requests
type Handler struct {
	validator  *validator.Validator
	submitter  TaskSubmitter
	controller TaskController
	newTask    TaskFactory
	logger     *zap.Logger
}

// NewHandler creates a new REST handler
func NewHandler(
	v *validator.Validator,
	submitter TaskSubmitter,
	controller TaskController,
	newTask TaskFactory,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		validator:  v,
		submitter:  submitter,
		controller: controller,
		newTask:    newTask,
		logger:     logger,
	}
}

// StartTaskRequest represents a request to start a task
type StartTaskRequest struct {
	IssueNumber  int    `json:"issue_number"`
	Slug         string `json:"slug,omitempty"`
	JiraTicketID string `json:"jira_ticket_id,omitempty"`
	CreatePR     *bool  `json:"create_pr,omitempty"`
}

// TaskStatusResponse represents the state of a task
type TaskStatusResponse struct {
	WorkflowID string         `json:"workflow_id"`
	Snapshot   phase.Snapshot `json:"snapshot"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Validate handles POST /validate/{phase}
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	p, err := types.ParsePhase(chi.URLParam(r, "phase"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	var gate types.GateContext
	if err := json.NewDecoder(r.Body).Decode(&gate); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	writeJSON(w, http.StatusOK, h.validator.Check(p, &gate))
}

// StartTask handles POST /tasks
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	var req StartTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.IssueNumber <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("issue_number must be positive"))
		return
	}

	task := h.newTask(req.IssueNumber)
	task.Slug = req.Slug
	task.JiraTicketID = req.JiraTicketID
	if req.CreatePR != nil {
		task.CreatePR = *req.CreatePR
	}

	pt, err := h.submitter.Submit(r.Context(), task)
	if err != nil {
		h.logger.Error("failed to start task", zap.Int("issue", req.IssueNumber), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusAccepted, pt)
}

// ListTasks handles GET /tasks
func (h *Handler) ListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.submitter.Tasks())
}

// GetTask handles GET /tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := h.workflowID(w, r)
	if !ok {
		return
	}

	snap, err := h.controller.QueryPhase(r.Context(), workflowID)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, TaskStatusResponse{WorkflowID: workflowID, Snapshot: snap})
}

// RevalidateTask handles POST /tasks/{id}/revalidate
func (h *Handler) RevalidateTask(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := h.workflowID(w, r)
	if !ok {
		return
	}

	if err := h.controller.Revalidate(r.Context(), workflowID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// AbandonTask handles DELETE /tasks/{id}
func (h *Handler) AbandonTask(w http.ResponseWriter, r *http.Request) {
	workflowID, ok := h.workflowID(w, r)
	if !ok {
		return
	}

	if err := h.controller.Abandon(r.Context(), workflowID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Health handles GET /health
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) workflowID(w http.ResponseWriter, r *http.Request) (string, bool) {
	issue, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || issue <= 0 {
		writeError(w, http.StatusBadRequest, errors.New("task id must be an issue number"))
		return "", false
	}
	task := h.newTask(issue)
	return task.ID(), true
}

// RegisterRoutes registers REST API routes. metrics serves /metrics when set.
func (h *Handler) RegisterRoutes(r chi.Router, metrics http.Handler) {
	r.Get("/health", h.Health)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/validate/{phase}", h.Validate)
		r.Post("/tasks", h.StartTask)
		r.Get("/tasks", h.ListTasks)
		r.Get("/tasks/{id}", h.GetTask)
		r.Post("/tasks/{id}/revalidate", h.RevalidateTask)
		r.Delete("/tasks/{id}", h.AbandonTask)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
