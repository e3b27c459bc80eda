package cli

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klee-ai/internal/indexer"
	"klee-ai/internal/storage"
)

type fakeKnowledge struct {
	created []storage.Knowledge
}

func (f *fakeKnowledge) Create(_ context.Context, k *storage.Knowledge) error {
	k.ID = "k1"
	f.created = append(f.created, *k)
	return nil
}

func (f *fakeKnowledge) List(context.Context) ([]storage.Knowledge, error) {
	return f.created, nil
}

// fakeTasks reports the given states in order, repeating the last one.
type fakeTasks struct {
	mu     sync.Mutex
	states []storage.Task
	reads  int
}

func (f *fakeTasks) Get(_ context.Context, id string) (*storage.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.states) == 0 {
		return nil, storage.ErrNotFound
	}
	i := f.reads
	if i >= len(f.states) {
		i = len(f.states) - 1
	}
	f.reads++
	t := f.states[i]
	t.ID = id
	return &t, nil
}

type fakeImporter struct {
	folder  string
	refresh *indexer.RefreshResult
	err     error
	waited  bool
}

func (f *fakeImporter) StartImport(_ context.Context, _, folder string) (*storage.Task, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.folder = folder
	return &storage.Task{ID: "t1", Status: storage.TaskCreated}, nil
}

func (f *fakeImporter) Refresh(context.Context, string) (*indexer.RefreshResult, error) {
	return f.refresh, f.err
}

func (f *fakeImporter) Wait() { f.waited = true }

func setupCLITest(t *testing.T, k KnowledgeService, tr TaskReader, i Importer) *bytes.Buffer {
	t.Helper()
	oldK, oldT, oldI, oldPoll := knowledgeService, taskReader, importer, pollInterval
	Configure(k, tr, i)
	pollInterval = time.Millisecond
	createFolder = ""

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	t.Cleanup(func() {
		Configure(oldK, oldT, oldI)
		pollInterval = oldPoll
		createFolder = ""
		rootCmd.SetArgs(nil)
	})
	return buf
}

func run(args ...string) error {
	rootCmd.SetArgs(args)
	return Execute(context.Background())
}

func TestImportCmd_WaitsForTask(t *testing.T) {
	tasks := &fakeTasks{states: []storage.Task{
		{Status: storage.TaskInProgress, Progress: 0.25},
		{Status: storage.TaskInProgress, Progress: 0.5},
		{Status: storage.TaskDone, Progress: 1},
	}}
	imp := &fakeImporter{}
	buf := setupCLITest(t, &fakeKnowledge{}, tasks, imp)

	require.NoError(t, run("import", "k1", "/data/k1"))
	assert.Equal(t, "/data/k1", imp.folder)
	assert.True(t, imp.waited)
	assert.Contains(t, buf.String(), "Importing... 25%")
	assert.Contains(t, buf.String(), "Imported /data/k1: 100%")
}

func TestImportCmd_FailedTask(t *testing.T) {
	tasks := &fakeTasks{states: []storage.Task{{Status: storage.TaskFailed, Progress: 1}}}
	setupCLITest(t, &fakeKnowledge{}, tasks, &fakeImporter{})

	err := run("import", "k1", "/data/k1")
	assert.ErrorContains(t, err, "failed")
}

func TestImportCmd_StartError(t *testing.T) {
	setupCLITest(t, &fakeKnowledge{}, &fakeTasks{}, &fakeImporter{err: storage.ErrNotFound})

	err := run("import", "nope", "/data/k1")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "err = %v", err)
}

func TestImportCmd_RequiresArgs(t *testing.T) {
	setupCLITest(t, &fakeKnowledge{}, &fakeTasks{}, &fakeImporter{})
	assert.Error(t, run("import", "k1"))
}

func TestKnowledgeCreateCmd(t *testing.T) {
	k := &fakeKnowledge{}
	tasks := &fakeTasks{states: []storage.Task{{Status: storage.TaskDone, Progress: 1}}}
	imp := &fakeImporter{}
	buf := setupCLITest(t, k, tasks, imp)

	require.NoError(t, run("knowledge", "create", "Research", "--folder", "/data/research"))
	require.Len(t, k.created, 1)
	assert.Equal(t, "Research", k.created[0].Title)
	assert.Equal(t, "/data/research", imp.folder)
	assert.Contains(t, buf.String(), "Created knowledge k1 (Research)")
}

func TestKnowledgeListCmd(t *testing.T) {
	k := &fakeKnowledge{created: []storage.Knowledge{
		{ID: "k1", Title: "Research", FolderPath: "/data/research"},
		{ID: "k2", Title: "Empty"},
	}}
	buf := setupCLITest(t, k, &fakeTasks{}, &fakeImporter{})

	require.NoError(t, run("knowledge", "list"))
	assert.Contains(t, buf.String(), "k1\tResearch\t/data/research")
	assert.Contains(t, buf.String(), "k2\tEmpty\t-")
}

func TestRefreshCmd(t *testing.T) {
	imp := &fakeImporter{refresh: &indexer.RefreshResult{Added: []string{"f4"}, Updated: []string{"f1"}, Removed: []string{"f2"}}}
	buf := setupCLITest(t, &fakeKnowledge{}, &fakeTasks{}, imp)

	require.NoError(t, run("refresh", "k1"))
	assert.Contains(t, buf.String(), "Refreshed k1: 1 added, 1 updated, 1 removed")
}

func TestTaskCmd(t *testing.T) {
	tasks := &fakeTasks{states: []storage.Task{{Type: storage.TaskParsingFolder, Status: storage.TaskInProgress, Progress: 0.4}}}
	buf := setupCLITest(t, &fakeKnowledge{}, tasks, &fakeImporter{})

	require.NoError(t, run("task", "t9"))
	out := buf.String()
	assert.Contains(t, out, "Task:     t9")
	assert.Contains(t, out, "Status:   in_progress")
	assert.Contains(t, out, "Progress: 40%")
}

func TestTaskCmd_Missing(t *testing.T) {
	setupCLITest(t, &fakeKnowledge{}, &fakeTasks{}, &fakeImporter{})
	err := run("task", "nope")
	assert.True(t, errors.Is(err, storage.ErrNotFound), "err = %v", err)
}

func TestCommands_NotConfigured(t *testing.T) {
	setupCLITest(t, nil, nil, nil)
	assert.ErrorIs(t, run("refresh", "k1"), errNotConfigured)
}
