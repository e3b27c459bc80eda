package index

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks klee-ai/internal/index Embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
	"klee-ai/internal/loader"
	"klee-ai/internal/vectorstore"
)

// DocStoreFileName is the node store file inside a source directory.
const DocStoreFileName = "docstore.json"

const docStoreVersion = 1

// DefaultChunkSizes are the token sizes of each level, coarsest first.
var DefaultChunkSizes = []int{2048, 512, 128}

// Embedder turns texts into vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Builder builds indexes on first use and loads them afterwards. Builds for
// one source id are serialised through a Lease; loaded indexes are cached.
type Builder struct {
	root       string
	chunkSizes []int
	batchSize  int
	splitter   *Splitter
	embedder   Embedder
	store      vectorstore.VectorStore
	lease      *Lease

	mu    sync.RWMutex
	cache map[string]*Index
}

// Option configures a Builder.
type Option func(*Builder)

// WithChunkSizes sets the per-level token sizes, coarsest first.
func WithChunkSizes(sizes []int) Option {
	return func(b *Builder) {
		if len(sizes) > 0 {
			b.chunkSizes = append([]int(nil), sizes...)
		}
	}
}

// WithEmbedBatchSize sets how many leaves are embedded per request.
func WithEmbedBatchSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithSplitter replaces the default splitter.
func WithSplitter(s *Splitter) Option {
	return func(b *Builder) {
		b.splitter = s
	}
}

// NewBuilder creates a builder that keeps node stores under root/<sourceID>/.
func NewBuilder(root string, store vectorstore.VectorStore, embedder Embedder, tok Tokenizer, opts ...Option) *Builder {
	b := &Builder{
		root:       root,
		chunkSizes: append([]int(nil), DefaultChunkSizes...),
		batchSize:  64,
		splitter:   NewSplitter(tok, DefaultOverlap),
		embedder:   embedder,
		store:      store,
		lease:      NewLease(),
		cache:      make(map[string]*Index),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dir returns the directory holding sourceID's persisted files.
func (b *Builder) Dir(sourceID string) string {
	return filepath.Join(b.root, sourceID)
}

// Exists reports whether both the node store and the leaf collection of
// sourceID are present.
func (b *Builder) Exists(ctx context.Context, sourceID string) (bool, error) {
	if err := loader.CheckSourceID(sourceID); err != nil {
		return false, err
	}
	if _, err := os.Stat(filepath.Join(b.Dir(sourceID), DocStoreFileName)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, apperr.Wrap(apperr.ErrPersistence, "index.Exists", err)
	}
	ok, err := b.store.CollectionExists(ctx, sourceID)
	if err != nil {
		return false, apperr.Wrap(apperr.ErrPersistence, "index.Exists", err)
	}
	return ok, nil
}

// BuildOrLoad returns the index for sourceID, loading it when persisted and
// building it from src otherwise. A build runs to completion even if ctx is
// cancelled once it has started.
func (b *Builder) BuildOrLoad(ctx context.Context, sourceID string, src loader.Source) (*Index, error) {
	if err := loader.CheckSourceID(sourceID); err != nil {
		return nil, err
	}
	if ix := b.cached(sourceID); ix != nil {
		return ix, nil
	}

	release, err := b.lease.Acquire(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Another caller may have finished while we waited.
	if ix := b.cached(sourceID); ix != nil {
		return ix, nil
	}

	exists, err := b.Exists(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	var ix *Index
	if exists {
		ix, err = b.load(sourceID)
	} else {
		ix, err = b.build(contextutil.Detach(ctx), sourceID, src)
	}
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.cache[sourceID] = ix
	b.mu.Unlock()
	return ix, nil
}

// Load returns the persisted index of sourceID without building it.
// A source that was never built is apperr.ErrNotFound.
func (b *Builder) Load(ctx context.Context, sourceID string) (*Index, error) {
	if ix := b.cached(sourceID); ix != nil {
		return ix, nil
	}
	exists, err := b.Exists(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.New(apperr.ErrNotFound, "index.Load", fmt.Sprintf("source %s has no index", sourceID))
	}
	ix, err := b.load(sourceID)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.cache[sourceID] = ix
	b.mu.Unlock()
	return ix, nil
}

// Delete removes the index of sourceID: cache entry, leaf collection and directory.
func (b *Builder) Delete(ctx context.Context, sourceID string) error {
	if err := loader.CheckSourceID(sourceID); err != nil {
		return err
	}
	release, err := b.lease.Acquire(ctx, sourceID)
	if err != nil {
		return err
	}
	defer release()

	b.mu.Lock()
	delete(b.cache, sourceID)
	b.mu.Unlock()

	if err := b.store.DeleteCollection(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete collection for %s: %w", sourceID, err)
	}
	if err := os.RemoveAll(b.Dir(sourceID)); err != nil {
		return fmt.Errorf("failed to remove index directory for %s: %w", sourceID, err)
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "index deleted", "source_id", sourceID)
	return nil
}

func (b *Builder) cached(sourceID string) *Index {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.cache[sourceID]
}

type docStore struct {
	Version    int     `json:"version"`
	SourceID   string  `json:"source_id"`
	ChunkSizes []int   `json:"chunk_sizes"`
	Nodes      []*Node `json:"nodes"`
}

func (b *Builder) load(sourceID string) (*Index, error) {
	path := filepath.Join(b.Dir(sourceID), DocStoreFileName)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, "index.load", err)
	}

	var ds docStore
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, "index.load", fmt.Errorf("corrupt node store %s: %w", path, err))
	}
	if ds.Version != docStoreVersion || ds.SourceID != sourceID {
		return nil, apperr.New(apperr.ErrPersistence, "index.load",
			fmt.Sprintf("node store %s has version %d for source %q", path, ds.Version, ds.SourceID))
	}

	ix, err := NewIndex(sourceID, ds.ChunkSizes, ds.Nodes, b.store)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, "index.load", fmt.Errorf("invalid node store %s: %w", path, err))
	}
	return ix, nil
}

func (b *Builder) build(ctx context.Context, sourceID string, src loader.Source) (*Index, error) {
	logger := contextutil.LoggerFromContext(ctx)

	docs, err := src.Documents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents for %s: %w", sourceID, err)
	}

	ix := &Index{
		sourceID:   sourceID,
		chunkSizes: append([]int(nil), b.chunkSizes...),
		nodes:      make(map[string]*Node),
		store:      b.store,
	}
	for _, doc := range docs {
		for _, text := range b.splitter.Split(doc.Text, b.chunkSizes[0]) {
			b.addNode(ix, doc, text, 0, nil)
		}
	}

	// Half-written leftovers from an interrupted build are discarded first.
	if err := b.store.DeleteCollection(ctx, sourceID); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, "index.build", err)
	}
	if err := b.store.EnsureCollection(ctx, sourceID, b.embedder.Dimensions()); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, "index.build", err)
	}
	if err := b.writeLeaves(ctx, ix); err != nil {
		return nil, err
	}

	ds := docStore{Version: docStoreVersion, SourceID: sourceID, ChunkSizes: ix.chunkSizes, Nodes: ix.Nodes()}
	data, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal node store: %w", err)
	}
	if err := vectorstore.WriteFileAtomic(filepath.Join(b.Dir(sourceID), DocStoreFileName), data); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, "index.build", err)
	}

	logger.InfoContext(ctx, "index built",
		"source_id", sourceID,
		"documents", len(docs),
		"nodes", ix.Len(),
		"leaves", len(ix.Leaves()),
	)
	return ix, nil
}

// addNode adds a node for text at level and recursively splits it into the next level.
func (b *Builder) addNode(ix *Index, doc loader.Document, text string, level int, parent *Node) {
	n := &Node{
		ID:         uuid.New().String(),
		SourceID:   ix.sourceID,
		DocumentID: doc.ID,
		Text:       text,
		Level:      level,
	}
	if parent != nil {
		n.ParentID = parent.ID
		parent.ChildIDs = append(parent.ChildIDs, n.ID)
	}
	ix.nodes[n.ID] = n
	ix.order = append(ix.order, n.ID)

	if level+1 >= len(b.chunkSizes) {
		return
	}
	for _, child := range b.splitter.Split(text, b.chunkSizes[level+1]) {
		b.addNode(ix, doc, child, level+1, n)
	}
}

func (b *Builder) writeLeaves(ctx context.Context, ix *Index) error {
	leaves := ix.Leaves()
	for start := 0; start < len(leaves); start += b.batchSize {
		end := min(start+b.batchSize, len(leaves))
		batch := leaves[start:end]

		texts := make([]string, len(batch))
		for i, n := range batch {
			texts[i] = n.Text
		}
		vecs, err := b.embedder.Embed(ctx, texts)
		if err != nil {
			return apperr.Wrap(apperr.ErrModelLoad, "index.build", fmt.Errorf("failed to embed leaves: %w", err))
		}
		if len(vecs) != len(batch) {
			return fmt.Errorf("embedder returned %d vectors for %d leaves", len(vecs), len(batch))
		}

		points := make([]vectorstore.Point, len(batch))
		for i, n := range batch {
			points[i] = vectorstore.Point{
				ID:  n.ID,
				Vec: vecs[i],
				Meta: map[string]any{
					"source_id":   n.SourceID,
					"document_id": n.DocumentID,
					"parent_id":   n.ParentID,
				},
			}
		}
		if err := b.store.Upsert(ctx, ix.sourceID, points); err != nil {
			return apperr.Wrap(apperr.ErrPersistence, "index.build", err)
		}
	}
	return nil
}
