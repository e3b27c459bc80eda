package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_task_store.go -package=mocks klee-ai/internal/storage TaskStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// TaskStore defines the interface for background task storage operations.
type TaskStore interface {
	// Create inserts a task. An empty id is generated.
	Create(ctx context.Context, task *Task) error
	// Get gets a task by id. Returns ErrNotFound if not found.
	Get(ctx context.Context, id string) (*Task, error)
	// CompareAndSetProgress writes next only if the stored progress still equals expected.
	// It reports whether the row was updated.
	CompareAndSetProgress(ctx context.Context, id string, expected, next float64) (bool, error)
	// SetStatus changes the status of a task. Returns ErrNotFound if not found.
	SetStatus(ctx context.Context, id string, status TaskStatus) error
}

// TaskRepo provides methods for background task operations.
// It implements the TaskStore interface.
type TaskRepo struct {
	db *sql.DB
}

var _ TaskStore = (*TaskRepo)(nil)

// NewTaskRepo creates a new TaskRepo.
func NewTaskRepo(db *sql.DB) *TaskRepo {
	return &TaskRepo{db: db}
}

// Create inserts a task. An empty id is generated.
func (r *TaskRepo) Create(ctx context.Context, task *Task) error {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.Status == "" {
		task.Status = TaskCreated
	}
	task.CreateAt = now()
	task.UpdateAt = task.CreateAt

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO background_task (id, type, status, payload, progress, create_at, update_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		task.ID, task.Type, task.Status, task.Payload, task.Progress, task.CreateAt, task.UpdateAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}
	return nil
}

// Get gets a task by id. Returns ErrNotFound if not found.
func (r *TaskRepo) Get(ctx context.Context, id string) (*Task, error) {
	var t Task
	err := r.db.QueryRowContext(ctx,
		"SELECT id, type, status, payload, progress, create_at, update_at FROM background_task WHERE id = ?", id,
	).Scan(&t.ID, &t.Type, &t.Status, &t.Payload, &t.Progress, &t.CreateAt, &t.UpdateAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query task: %w", err)
	}
	return &t, nil
}

// CompareAndSetProgress writes next only if the stored progress still equals expected.
func (r *TaskRepo) CompareAndSetProgress(ctx context.Context, id string, expected, next float64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE background_task SET progress = ?, update_at = ? WHERE id = ? AND progress = ?",
		next, now(), id, expected,
	)
	if err != nil {
		return false, fmt.Errorf("failed to update task progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// SetStatus changes the status of a task. Returns ErrNotFound if not found.
func (r *TaskRepo) SetStatus(ctx context.Context, id string, status TaskStatus) error {
	res, err := r.db.ExecContext(ctx,
		"UPDATE background_task SET status = ?, update_at = ? WHERE id = ?",
		status, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
