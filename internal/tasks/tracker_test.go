package tasks

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"klee-ai/internal/apperr"
	"klee-ai/internal/storage"
	"klee-ai/internal/storage/mocks"
)

func newTaskRepo(t *testing.T) *storage.TaskRepo {
	t.Helper()
	db, err := storage.New(filepath.Join(t.TempDir(), "tasks.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	require.NoError(t, storage.Migrate(db))
	return storage.NewTaskRepo(db)
}

func TestTracker_AddProgress(t *testing.T) {
	ctx := context.Background()
	repo := newTaskRepo(t)
	tracker := NewTracker(repo)

	task := &storage.Task{Type: storage.TaskParsingFolder}
	require.NoError(t, repo.Create(ctx, task))

	tests := []struct {
		name  string
		delta float64
		want  float64
	}{
		{name: "adds delta", delta: 0.25, want: 0.25},
		{name: "negative delta is ignored", delta: -0.5, want: 0.25},
		{name: "zero delta", delta: 0, want: 0.25},
		{name: "clamps at one", delta: 5, want: 1},
		{name: "stays at one", delta: 0.1, want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tracker.AddProgress(ctx, task.ID, tt.delta)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got.Progress, 1e-9)

			stored, err := repo.Get(ctx, task.ID)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, stored.Progress, 1e-9)
			assert.Equal(t, storage.TaskCreated, stored.Status, "progress must not change status")
		})
	}
}

func TestTracker_AddProgress_NotFound(t *testing.T) {
	_, err := NewTracker(newTaskRepo(t)).AddProgress(context.Background(), "missing", 0.1)
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "err = %v", err)
}

func TestTracker_AddProgress_RejectsNonFinite(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockTaskStore(ctrl)
	store.EXPECT().Get(gomock.Any(), gomock.Any()).Times(0)
	store.EXPECT().CompareAndSetProgress(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	tracker := NewTracker(store)

	for _, delta := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := tracker.AddProgress(context.Background(), "t1", delta)
		assert.True(t, errors.Is(err, apperr.ErrConfig), "delta %v: err = %v", delta, err)
	}
}

// With enough attempts every concurrent increment lands exactly once.
func TestTracker_ConcurrentConvergence(t *testing.T) {
	ctx := context.Background()
	repo := newTaskRepo(t)
	tracker := NewTracker(repo, WithMaxRetries(1000))

	task := &storage.Task{Type: storage.TaskParsingFolder}
	require.NoError(t, repo.Create(ctx, task))

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.AddProgress(ctx, task.ID, 0.05)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got.Progress, 1e-9)
}

// With the default budget some calls may give up, but every call that
// reports success is reflected in the final value and none is counted twice.
func TestTracker_ConcurrentSuccessesAreExact(t *testing.T) {
	ctx := context.Background()
	repo := newTaskRepo(t)
	tracker := NewTracker(repo)

	task := &storage.Task{Type: storage.TaskParsingFolder}
	require.NoError(t, repo.Create(ctx, task))

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.AddProgress(ctx, task.ID, 0.05)
			if err != nil {
				assert.True(t, errors.Is(err, apperr.ErrConcurrencyExhausted), "err = %v", err)
				return
			}
			mu.Lock()
			successes++
			mu.Unlock()
		}()
	}
	wg.Wait()

	got, err := repo.Get(ctx, task.ID)
	require.NoError(t, err)
	assert.InDelta(t, float64(successes)*0.05, got.Progress, 1e-9)
	assert.GreaterOrEqual(t, successes, 1)
}

func TestTracker_RetriesExhausted(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockTaskStore(ctrl)

	store.EXPECT().Get(gomock.Any(), "t1").Return(&storage.Task{ID: "t1", Progress: 0.2}, nil).Times(3)
	store.EXPECT().CompareAndSetProgress(gomock.Any(), "t1", 0.2, 0.5).Return(false, nil).Times(3)

	_, err := NewTracker(store).AddProgress(context.Background(), "t1", 0.3)
	assert.True(t, errors.Is(err, apperr.ErrConcurrencyExhausted), "err = %v", err)
}

func TestTracker_RetriesThenSucceeds(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockTaskStore(ctrl)

	gomock.InOrder(
		store.EXPECT().Get(gomock.Any(), "t1").Return(&storage.Task{ID: "t1", Progress: 0}, nil),
		store.EXPECT().CompareAndSetProgress(gomock.Any(), "t1", 0.0, 0.5).Return(false, nil),
		store.EXPECT().Get(gomock.Any(), "t1").Return(&storage.Task{ID: "t1", Progress: 0.25}, nil),
		store.EXPECT().CompareAndSetProgress(gomock.Any(), "t1", 0.25, 0.75).Return(true, nil),
	)

	got, err := NewTracker(store).AddProgress(context.Background(), "t1", 0.5)
	require.NoError(t, err)
	assert.Equal(t, 0.75, got.Progress)
}

func TestTracker_MaxWait(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockTaskStore(ctrl)

	store.EXPECT().Get(gomock.Any(), "t1").DoAndReturn(func(ctx context.Context, id string) (*storage.Task, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := NewTracker(store, WithMaxRetries(100), WithMaxWait(20*time.Millisecond)).AddProgress(context.Background(), "t1", 0.1)
	assert.True(t, errors.Is(err, apperr.ErrConcurrencyExhausted), "err = %v", err)
}

func TestTracker_CallerCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockTaskStore(ctrl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewTracker(store, WithMaxWait(time.Second)).AddProgress(ctx, "t1", 0.1)
	assert.True(t, errors.Is(err, context.Canceled), "err = %v", err)
	assert.False(t, errors.Is(err, apperr.ErrConcurrencyExhausted))
}
