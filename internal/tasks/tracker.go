// Package tasks creates background tasks and tracks their progress.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
	"klee-ai/internal/storage"
)

// DefaultMaxRetries is the number of read-compute-update cycles AddProgress attempts.
const DefaultMaxRetries = 3

// Tracker adds progress to tasks with an optimistic conditional update, so
// concurrent workers never lose each other's increments.
type Tracker struct {
	store      storage.TaskStore
	maxRetries int
	maxWait    time.Duration
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithMaxRetries sets the number of attempts before giving up.
func WithMaxRetries(n int) TrackerOption {
	return func(t *Tracker) {
		if n > 0 {
			t.maxRetries = n
		}
	}
}

// WithMaxWait bounds the wall-clock time of one AddProgress call. Zero disables it.
func WithMaxWait(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d >= 0 {
			t.maxWait = d
		}
	}
}

// NewTracker creates a tracker over store.
func NewTracker(store storage.TaskStore, opts ...TrackerOption) *Tracker {
	t := &Tracker{store: store, maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AddProgress raises the progress of taskID by delta, clamped to [cur, 1].
// A negative delta counts as zero and a non-finite one is apperr.ErrConfig.
// Status is left alone. A missing task is apperr.ErrNotFound; running out of attempts (or MaxWait) is
// apperr.ErrConcurrencyExhausted.
func (t *Tracker) AddProgress(ctx context.Context, taskID string, delta float64) (*storage.Task, error) {
	logger := contextutil.LoggerFromContext(ctx)
	if math.IsNaN(delta) || math.IsInf(delta, 0) {
		return nil, apperr.New(apperr.ErrConfig, "tasks.AddProgress", fmt.Sprintf("progress delta %v is not finite", delta))
	}
	delta = max(delta, 0)

	attemptCtx := ctx
	if t.maxWait > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, t.maxWait)
		defer cancel()
	}

	for attempt := 1; attempt <= t.maxRetries; attempt++ {
		if err := attemptCtx.Err(); err != nil {
			return nil, t.stopped(ctx, taskID, attempt-1, err)
		}

		task, err := t.store.Get(attemptCtx, taskID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, apperr.Wrap(apperr.ErrNotFound, "tasks.AddProgress", fmt.Errorf("task %s: %w", taskID, err))
			}
			if attemptCtx.Err() != nil {
				return nil, t.stopped(ctx, taskID, attempt-1, attemptCtx.Err())
			}
			return nil, fmt.Errorf("failed to read task: %w", err)
		}

		next := min(task.Progress+delta, 1.0)
		ok, err := t.store.CompareAndSetProgress(attemptCtx, taskID, task.Progress, next)
		if err != nil {
			if attemptCtx.Err() != nil {
				return nil, t.stopped(ctx, taskID, attempt, attemptCtx.Err())
			}
			return nil, fmt.Errorf("failed to update task progress: %w", err)
		}
		if ok {
			task.Progress = next
			return task, nil
		}

		logger.DebugContext(ctx, "task progress conflict", "task_id", taskID, "attempt", attempt)
	}

	logger.WarnContext(ctx, "task progress retries exhausted", "task_id", taskID, "attempts", t.maxRetries)
	return nil, apperr.New(apperr.ErrConcurrencyExhausted, "tasks.AddProgress",
		fmt.Sprintf("task %s: progress not updated after %d attempts", taskID, t.maxRetries))
}

// stopped maps a done context to the caller's error, or to exhaustion when
// only the MaxWait budget ran out.
func (t *Tracker) stopped(ctx context.Context, taskID string, attempts int, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	contextutil.LoggerFromContext(ctx).WarnContext(ctx, "task progress wait exceeded",
		"task_id", taskID, "attempts", attempts, "max_wait", t.maxWait)
	return apperr.Wrap(apperr.ErrConcurrencyExhausted, "tasks.AddProgress", err)
}
