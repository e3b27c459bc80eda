package tasks

import (
	"context"
	"fmt"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
	"klee-ai/internal/storage"
)

// Service owns the status of background tasks. Progress goes through the Tracker.
type Service struct {
	store   storage.TaskStore
	tracker *Tracker
}

// NewService creates a task service.
func NewService(store storage.TaskStore, tracker *Tracker) *Service {
	return &Service{store: store, tracker: tracker}
}

// Tracker returns the progress tracker used by the service.
func (s *Service) Tracker() *Tracker {
	return s.tracker
}

// Create inserts a task in status created with zero progress.
func (s *Service) Create(ctx context.Context, taskType storage.TaskType, payload string) (*storage.Task, error) {
	switch taskType {
	case storage.TaskParsingPDF, storage.TaskParsingFolder:
	default:
		return nil, apperr.New(apperr.ErrConfig, "tasks.Create", fmt.Sprintf("unknown task type %q", taskType))
	}

	task := &storage.Task{Type: taskType, Status: storage.TaskCreated, Payload: payload}
	if err := s.store.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "task created", "task_id", task.ID, "type", taskType)
	return task, nil
}

// Get returns a task.
func (s *Service) Get(ctx context.Context, id string) (*storage.Task, error) {
	return s.store.Get(ctx, id)
}

// AddProgress forwards to the tracker.
func (s *Service) AddProgress(ctx context.Context, id string, delta float64) (*storage.Task, error) {
	return s.tracker.AddProgress(ctx, id, delta)
}

// Start marks a task in progress.
func (s *Service) Start(ctx context.Context, id string) error {
	return s.setStatus(ctx, id, storage.TaskInProgress)
}

// Complete fills the remaining progress and marks the task done.
func (s *Service) Complete(ctx context.Context, id string) error {
	if _, err := s.tracker.AddProgress(ctx, id, 1); err != nil {
		return err
	}
	return s.setStatus(ctx, id, storage.TaskDone)
}

// Fail marks a task failed. Progress is kept as it was.
func (s *Service) Fail(ctx context.Context, id string, cause error) error {
	contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "task failed", "task_id", id, "error", cause)
	return s.setStatus(ctx, id, storage.TaskFailed)
}

func (s *Service) setStatus(ctx context.Context, id string, status storage.TaskStatus) error {
	if err := s.store.SetStatus(ctx, id, status); err != nil {
		return fmt.Errorf("failed to set task %s to %s: %w", id, status, err)
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "task status changed", "task_id", id, "status", status)
	return nil
}
