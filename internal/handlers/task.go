package handlers

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_task_service.go -package=mocks klee-ai/internal/handlers TaskService

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"klee-ai/internal/service"
	"klee-ai/internal/storage"
)

// TaskService creates and advances background tasks. tasks.Service implements it.
type TaskService interface {
	Create(ctx context.Context, taskType storage.TaskType, payload string) (*storage.Task, error)
	Get(ctx context.Context, id string) (*storage.Task, error)
	AddProgress(ctx context.Context, id string, delta float64) (*storage.Task, error)
}

// TaskHandler serves the background task endpoints.
type TaskHandler struct {
	tasks TaskService
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(tasks TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

// CreateTaskRequest is the body of POST /api/tasks.
//
// swagger:model CreateTaskRequest
type CreateTaskRequest struct {
	Type    storage.TaskType `json:"type"`
	Payload string           `json:"payload"`
}

// ProgressRequest is the body of POST /api/tasks/{id}/progress.
//
// swagger:model ProgressRequest
type ProgressRequest struct {
	// Amount to add; negative values are treated as zero
	Delta float64 `json:"delta"`
}

// Create handles POST /api/tasks.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		writeServiceError(r.Context(), w, &service.ValidationError{Field: "type", Message: "is required"})
		return
	}

	task, err := h.tasks.Create(r.Context(), req.Type, req.Payload)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// Get handles GET /api/tasks/{id}.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	task, err := h.tasks.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// AddProgress handles POST /api/tasks/{id}/progress.
func (h *TaskHandler) AddProgress(w http.ResponseWriter, r *http.Request) {
	var req ProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	task, err := h.tasks.AddProgress(r.Context(), chi.URLParam(r, "id"), req.Delta)
	if err != nil {
		writeServiceError(r.Context(), w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}
