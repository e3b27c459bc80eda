// Package indexer imports knowledge folders and notes into per-source indexes
// and keeps them in step with the files on disk.
package indexer

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_indexes.go -package=mocks klee-ai/internal/indexer Indexes

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
	"klee-ai/internal/index"
	"klee-ai/internal/loader"
	"klee-ai/internal/storage"
	"klee-ai/internal/tasks"
	"klee-ai/internal/vectorstore"
)

// importConcurrency bounds how many files of one folder are indexed at once.
const importConcurrency = 4

// Indexes builds, loads and removes per-source indexes. index.Builder
// implements it.
type Indexes interface {
	BuildOrLoad(ctx context.Context, sourceID string, src loader.Source) (*index.Index, error)
	Delete(ctx context.Context, sourceID string) error
}

// Pipeline imports knowledge folders and notes.
type Pipeline struct {
	knowledge storage.KnowledgeStore
	notes     storage.NoteStore
	tasks     *tasks.Service
	indexes   Indexes
	notesDir  string

	// lease serialises imports and refreshes of one knowledge base.
	lease *index.Lease
	wg    sync.WaitGroup
}

// NewPipeline creates a new indexing pipeline.
func NewPipeline(knowledge storage.KnowledgeStore, notes storage.NoteStore, taskSvc *tasks.Service, indexes Indexes, notesDir string) *Pipeline {
	return &Pipeline{
		knowledge: knowledge,
		notes:     notes,
		tasks:     taskSvc,
		indexes:   indexes,
		notesDir:  notesDir,
		lease:     index.NewLease(),
	}
}

type importPayload struct {
	KnowledgeID string `json:"knowledge_id"`
	Folder      string `json:"folder"`
}

// StartImport creates a parsing_folder task and imports folder in the
// background. The returned task is in its created state; poll it for progress.
func (p *Pipeline) StartImport(ctx context.Context, knowledgeID, folder string) (*storage.Task, error) {
	task, err := p.createImportTask(ctx, knowledgeID, folder)
	if err != nil {
		return nil, err
	}

	bg := contextutil.Detach(ctx)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.runImport(bg, task.ID, knowledgeID, folder); err != nil {
			contextutil.LoggerFromContext(bg).ErrorContext(bg, "folder import failed",
				"task_id", task.ID,
				"knowledge_id", knowledgeID,
				"error", err,
			)
		}
	}()
	return task, nil
}

// ImportFolder imports folder into knowledgeID and returns the finished task.
func (p *Pipeline) ImportFolder(ctx context.Context, knowledgeID, folder string) (*storage.Task, error) {
	task, err := p.createImportTask(ctx, knowledgeID, folder)
	if err != nil {
		return nil, err
	}
	runErr := p.runImport(ctx, task.ID, knowledgeID, folder)

	final, err := p.tasks.Get(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	return final, runErr
}

// Wait blocks until every background import has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

func (p *Pipeline) createImportTask(ctx context.Context, knowledgeID, folder string) (*storage.Task, error) {
	if _, err := p.knowledge.Get(ctx, knowledgeID); err != nil {
		return nil, fmt.Errorf("failed to get knowledge %s: %w", knowledgeID, err)
	}
	payload, err := json.Marshal(importPayload{KnowledgeID: knowledgeID, Folder: folder})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return p.tasks.Create(ctx, storage.TaskParsingFolder, string(payload))
}

// runImport registers and indexes every file of folder, adding 1/n progress
// per file. The task fails only when every file failed.
func (p *Pipeline) runImport(ctx context.Context, taskID, knowledgeID, folder string) error {
	logger := contextutil.LoggerFromContext(ctx).With("task_id", taskID, "knowledge_id", knowledgeID)

	release, err := p.lease.Acquire(ctx, knowledgeID)
	if err != nil {
		return err
	}
	defer release()

	if err := p.tasks.Start(ctx, taskID); err != nil {
		return err
	}

	fail := func(cause error) error {
		if err := p.tasks.Fail(ctx, taskID, cause); err != nil {
			logger.ErrorContext(ctx, "failed to mark task failed", "error", err)
		}
		return cause
	}

	if err := p.knowledge.SetFolder(ctx, knowledgeID, folder); err != nil {
		return fail(err)
	}
	files, err := loader.ScanFolder(ctx, folder)
	if err != nil {
		return fail(err)
	}
	known, err := p.knownFiles(ctx, knowledgeID)
	if err != nil {
		return fail(err)
	}

	logger.InfoContext(ctx, "importing folder", "folder", folder, "files", len(files))
	if len(files) == 0 {
		return p.tasks.Complete(ctx, taskID)
	}

	step := 1 / float64(len(files))
	var failed atomic.Int32
	var g errgroup.Group
	g.SetLimit(importConcurrency)
	for _, f := range files {
		g.Go(func() error {
			if _, err := p.importFile(ctx, knowledgeID, f, known[f.AbsPath]); err != nil {
				failed.Add(1)
				logger.WarnContext(ctx, "failed to import file", "path", f.AbsPath, "error", err)
			}
			if _, err := p.tasks.AddProgress(ctx, taskID, step); err != nil {
				logger.WarnContext(ctx, "failed to record progress", "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if int(failed.Load()) == len(files) {
		return fail(fmt.Errorf("all %d files failed to import", len(files)))
	}
	if err := p.tasks.Complete(ctx, taskID); err != nil {
		return err
	}
	logger.InfoContext(ctx, "folder imported", "files", len(files), "failed", failed.Load())
	return nil
}

// importFile registers f unless it is already known and builds its index.
func (p *Pipeline) importFile(ctx context.Context, knowledgeID string, f loader.ScannedFile, known *storage.KnowledgeFile) (*storage.KnowledgeFile, error) {
	kf := known
	if kf == nil {
		kf = &storage.KnowledgeFile{
			KnowledgeID: knowledgeID,
			Name:        f.Name,
			Path:        f.AbsPath,
			Format:      f.Format,
			Size:        f.Size,
		}
		if err := p.knowledge.AddFile(ctx, kf); err != nil {
			return nil, err
		}
	}
	if _, err := p.indexes.BuildOrLoad(ctx, kf.ID, loader.FileSource{SourceID: kf.ID, Path: kf.Path}); err != nil {
		return kf, fmt.Errorf("failed to index %s: %w", kf.Path, err)
	}
	return kf, nil
}

func (p *Pipeline) knownFiles(ctx context.Context, knowledgeID string) (map[string]*storage.KnowledgeFile, error) {
	files, err := p.knowledge.ListFiles(ctx, knowledgeID)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]*storage.KnowledgeFile, len(files))
	for i := range files {
		byPath[files[i].Path] = &files[i]
	}
	return byPath, nil
}

// RefreshResult lists the file ids touched by a refresh.
type RefreshResult struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}

// Refresh rescans the folder of knowledgeID. New paths are imported, paths
// whose size changed are re-indexed and paths gone from disk are removed
// together with their indexes.
func (p *Pipeline) Refresh(ctx context.Context, knowledgeID string) (*RefreshResult, error) {
	logger := contextutil.LoggerFromContext(ctx).With("knowledge_id", knowledgeID)

	k, err := p.knowledge.Get(ctx, knowledgeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge %s: %w", knowledgeID, err)
	}
	if k.FolderPath == "" {
		return nil, apperr.New(apperr.ErrConfig, "indexer.Refresh", "knowledge has no folder")
	}

	release, err := p.lease.Acquire(ctx, knowledgeID)
	if err != nil {
		return nil, err
	}
	defer release()

	files, err := loader.ScanFolder(ctx, k.FolderPath)
	if err != nil {
		return nil, err
	}
	known, err := p.knownFiles(ctx, knowledgeID)
	if err != nil {
		return nil, err
	}

	res := &RefreshResult{}
	seen := make(map[string]bool, len(files))
	for _, f := range files {
		seen[f.AbsPath] = true
		kf, ok := known[f.AbsPath]
		switch {
		case !ok:
			added, err := p.importFile(ctx, knowledgeID, f, nil)
			if err != nil {
				logger.WarnContext(ctx, "failed to import new file", "path", f.AbsPath, "error", err)
				continue
			}
			res.Added = append(res.Added, added.ID)
		case kf.Size != f.Size:
			if err := p.reindexFile(ctx, kf, f.Size); err != nil {
				logger.WarnContext(ctx, "failed to re-index changed file", "path", f.AbsPath, "error", err)
				continue
			}
			res.Updated = append(res.Updated, kf.ID)
		}
	}

	for path, kf := range known {
		if seen[path] {
			continue
		}
		if err := p.removeFile(ctx, kf); err != nil {
			logger.WarnContext(ctx, "failed to remove deleted file", "path", path, "error", err)
			continue
		}
		res.Removed = append(res.Removed, kf.ID)
	}

	logger.InfoContext(ctx, "knowledge refreshed",
		"added", len(res.Added),
		"updated", len(res.Updated),
		"removed", len(res.Removed),
	)
	return res, nil
}

func (p *Pipeline) reindexFile(ctx context.Context, kf *storage.KnowledgeFile, size int64) error {
	if err := p.indexes.Delete(ctx, kf.ID); err != nil {
		return err
	}
	if _, err := p.indexes.BuildOrLoad(ctx, kf.ID, loader.FileSource{SourceID: kf.ID, Path: kf.Path}); err != nil {
		return fmt.Errorf("failed to rebuild index: %w", err)
	}
	return p.knowledge.UpdateFileSize(ctx, kf.ID, size)
}

func (p *Pipeline) removeFile(ctx context.Context, kf *storage.KnowledgeFile) error {
	if err := p.knowledge.DeleteFile(ctx, kf.ID); err != nil {
		return err
	}
	return p.indexes.Delete(ctx, kf.ID)
}

// UpsertNote stores note and re-indexes it.
func (p *Pipeline) UpsertNote(ctx context.Context, note *storage.Note) error {
	if err := loader.CheckSourceID(note.ID); err != nil {
		return err
	}
	if err := p.notes.Upsert(ctx, note); err != nil {
		return fmt.Errorf("failed to upsert note: %w", err)
	}
	return p.IndexNote(ctx, note.ID)
}

// IndexNote snapshots the note's content to its store.txt and rebuilds the
// note's index from that snapshot.
func (p *Pipeline) IndexNote(ctx context.Context, noteID string) error {
	path, err := loader.NoteSnapshotPath(p.notesDir, noteID)
	if err != nil {
		return err
	}
	note, err := p.notes.Get(ctx, noteID)
	if err != nil {
		return fmt.Errorf("failed to get note %s: %w", noteID, err)
	}

	if err := vectorstore.WriteFileAtomic(path, []byte(note.Content)); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, "indexer.IndexNote", err)
	}
	if err := p.indexes.Delete(ctx, note.ID); err != nil {
		return err
	}
	ix, err := p.indexes.BuildOrLoad(ctx, note.ID, loader.FileSource{SourceID: note.ID, Path: path})
	if err != nil {
		return fmt.Errorf("failed to index note %s: %w", note.ID, err)
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "indexed note", "note_id", note.ID, "nodes", ix.Len())
	return nil
}
