package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"klee-ai/internal/contextutil"
	"klee-ai/internal/loader"
)

// DefaultDebounce is how long a folder must stay quiet before it is refreshed.
const DefaultDebounce = 2 * time.Second

// Refresher re-syncs one knowledge base with its folder. Pipeline implements it.
type Refresher interface {
	Refresh(ctx context.Context, knowledgeID string) (*RefreshResult, error)
}

// Watcher turns file system events below registered knowledge folders into
// debounced Refresh calls, one per knowledge base.
type Watcher struct {
	fsw       *fsnotify.Watcher
	refresher Refresher
	debounce  time.Duration

	mu     sync.Mutex
	roots  map[string]string // folder -> knowledge id
	timers map[string]*time.Timer
	wg     sync.WaitGroup
}

// NewWatcher creates a watcher. debounce <= 0 means DefaultDebounce.
func NewWatcher(refresher Refresher, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		fsw:       fsw,
		refresher: refresher,
		debounce:  debounce,
		roots:     make(map[string]string),
		timers:    make(map[string]*time.Timer),
	}, nil
}

// Add watches folder and every non-hidden directory below it on behalf of
// knowledgeID.
func (w *Watcher) Add(knowledgeID, folder string) error {
	root, err := filepath.Abs(folder)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", folder, err)
	}

	w.mu.Lock()
	w.roots[root] = knowledgeID
	w.mu.Unlock()

	return w.addTree(root)
}

func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && loader.IsHidden(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Run dispatches events until ctx is done, then stops pending refreshes and
// closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)
	defer w.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			logger.WarnContext(ctx, "file watcher error", "error", err)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if loader.IsHidden(filepath.Base(event.Name)) || event.Op == fsnotify.Chmod {
		return
	}
	knowledgeID, ok := w.owner(event.Name)
	if !ok {
		return
	}

	if event.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to watch new directory", "path", event.Name, "error", err)
			}
		}
	}
	w.schedule(ctx, knowledgeID)
}

// owner returns the knowledge id of the deepest registered root containing path.
func (w *Watcher) owner(path string) (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	best, id := "", ""
	for root, kid := range w.roots {
		if (path == root || strings.HasPrefix(path, root+string(filepath.Separator))) && len(root) > len(best) {
			best, id = root, kid
		}
	}
	return id, best != ""
}

// schedule (re)starts the debounce timer of knowledgeID.
func (w *Watcher) schedule(ctx context.Context, knowledgeID string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[knowledgeID]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[knowledgeID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, knowledgeID)
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()

		logger := contextutil.LoggerFromContext(ctx)
		res, err := w.refresher.Refresh(ctx, knowledgeID)
		if err != nil {
			logger.ErrorContext(ctx, "knowledge refresh failed", "knowledge_id", knowledgeID, "error", err)
			return
		}
		logger.InfoContext(ctx, "knowledge refreshed from watcher",
			"knowledge_id", knowledgeID,
			"added", len(res.Added),
			"updated", len(res.Updated),
			"removed", len(res.Removed),
		)
	})
}

func (w *Watcher) stop() {
	w.mu.Lock()
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
	w.mu.Unlock()
	w.wg.Wait()
	_ = w.fsw.Close()
}
