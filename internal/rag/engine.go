// Package rag answers questions over a set of indexed sources: it builds or
// loads one index per source, expands the question into sub-queries, fuses
// the auto-merged spans of every source and synthesizes a streamed answer.
package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_indexes.go -package=mocks klee-ai/internal/rag Indexes

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
	"klee-ai/internal/index"
	"klee-ai/internal/loader"
	"klee-ai/internal/retriever"
	"klee-ai/internal/storage"
)

// buildConcurrency bounds concurrent per-source build-or-load calls.
const buildConcurrency = 4

// Indexes builds an index on first use and loads it afterwards.
type Indexes interface {
	BuildOrLoad(ctx context.Context, sourceID string, src loader.Source) (*index.Index, error)
}

// KnowledgeFiles resolves knowledge and file ids to files on disk.
// storage.KnowledgeStore satisfies it.
type KnowledgeFiles interface {
	ListFiles(ctx context.Context, knowledgeID string) ([]storage.KnowledgeFile, error)
	GetFile(ctx context.Context, id string) (*storage.KnowledgeFile, error)
}

// Engine fuses retrieval over many sources into one answer.
type Engine struct {
	indexes    Indexes
	files      KnowledgeFiles
	embedder   index.Embedder
	notesDir   string
	defaultDir string
}

// NewEngine creates an engine. Notes are read from their snapshots under
// notesDir; defaultDir backs the fallback source and is created on demand.
func NewEngine(indexes Indexes, files KnowledgeFiles, embedder index.Embedder, notesDir, defaultDir string) *Engine {
	return &Engine{
		indexes:    indexes,
		files:      files,
		embedder:   embedder,
		notesDir:   notesDir,
		defaultDir: defaultDir,
	}
}

// target is one source to retrieve from.
type target struct {
	id     string
	kind   SourceKind
	source loader.Source
}

// QueryHandle holds the fused spans of one question and answers it on demand.
type QueryHandle struct {
	req          Request
	spans        []retriever.Span
	ownKnowledge bool
	synth        Synthesizer
}

// Spans returns the fused context spans, best first.
func (h *QueryHandle) Spans() []retriever.Span {
	return h.spans
}

// OwnKnowledge reports whether the active indexes held no nodes, so the
// answer comes from the model alone.
func (h *QueryHandle) OwnKnowledge() bool {
	return h.ownKnowledge
}

// Stream synthesizes the answer and calls fn once per fragment.
func (h *QueryHandle) Stream(ctx context.Context, fn func(chunk string) error) error {
	return h.synth.Synthesize(ctx, h.req.Provider, SynthesisInput{
		Question:     h.req.Question,
		Spans:        h.spans,
		OwnKnowledge: h.ownKnowledge,
	}, fn)
}

// Answer synthesizes the whole answer.
func (h *QueryHandle) Answer(ctx context.Context) (string, error) {
	var (
		mu  sync.Mutex
		out []byte
	)
	err := h.Stream(ctx, func(chunk string) error {
		mu.Lock()
		out = append(out, chunk...)
		mu.Unlock()
		return nil
	})
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CombineQuery retrieves context for req from every requested source and
// returns a handle that streams the answer.
func (e *Engine) CombineQuery(ctx context.Context, req Request) (*QueryHandle, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if req.Provider == nil {
		return nil, apperr.New(apperr.ErrConfig, "rag.CombineQuery", "no provider for request")
	}
	mode, err := ParseMode(string(req.Mode))
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrConfig, "rag.CombineQuery", err)
	}
	req.Mode = mode
	if req.NumQueries <= 0 {
		req.NumQueries = DefaultNumQueries
	}
	if req.TopK <= 0 {
		req.TopK = DefaultTopK
	}

	targets := e.resolveTargets(ctx, req)
	retrievers := e.buildRetrievers(ctx, targets)
	if len(retrievers) == 0 {
		logger.InfoContext(ctx, "no active sources, using default source")
		def, err := e.defaultRetriever(ctx)
		if err != nil {
			return nil, err
		}
		retrievers = []*retriever.AutoMerging{def}
	}

	handle := &QueryHandle{req: req, synth: SynthesizerFor(mode)}

	totalNodes := 0
	for _, r := range retrievers {
		totalNodes += r.Index.Len()
	}
	if totalNodes == 0 {
		logger.InfoContext(ctx, "active indexes are empty, answering from own knowledge",
			"retrievers", len(retrievers),
		)
		handle.ownKnowledge = true
		return handle, nil
	}

	queries := e.GenerateQueries(ctx, req)
	spans, err := e.fanOut(ctx, retrievers, queries)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*index.Index, len(retrievers))
	for _, r := range retrievers {
		byID[r.Index.SourceID()] = r.Index
	}
	handle.spans = Fuse(spans, req.TopK, func(id string) *index.Index { return byID[id] })

	logger.InfoContext(ctx, "fused retrieval",
		"retrievers", len(retrievers),
		"queries", len(queries),
		"spans", len(handle.spans),
		"mode", mode,
	)
	return handle, nil
}

// GenerateQueries returns the original question followed by up to
// NumQueries-1 generated sub-queries. Generation failure falls back to the
// question alone.
func (e *Engine) GenerateQueries(ctx context.Context, req Request) []string {
	queries := []string{req.Question}
	n := req.NumQueries - 1
	if n <= 0 || req.Provider == nil {
		return queries
	}

	reply, err := req.Provider.Complete(ctx, queryGenPrompt(n, req.Question))
	if err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "sub-query generation failed, using question only",
			"error", err,
		)
		return queries
	}
	return append(queries, parseQueries(reply, req.Question, n)...)
}

// Fuse merges span lists from many retrievers and sub-queries. A node seen
// more than once keeps its best score. With lookup set, a span whose ancestor
// another sub-query already returned is dropped. The result is sorted best
// first and capped at topK.
func Fuse(lists [][]retriever.Span, topK int, lookup func(sourceID string) *index.Index) []retriever.Span {
	best := make(map[string]retriever.Span)
	for _, list := range lists {
		for _, s := range list {
			if cur, ok := best[s.NodeID]; !ok || s.Score > cur.Score {
				best[s.NodeID] = s
			}
		}
	}

	out := make([]retriever.Span, 0, len(best))
	for _, s := range best {
		out = append(out, s)
	}
	retriever.SortSpans(out)
	if lookup != nil {
		out = retriever.DropCovered(out, lookup)
	}
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out
}

// resolveTargets expands the request into one target per index. Sources that
// cannot be resolved are logged and skipped.
func (e *Engine) resolveTargets(ctx context.Context, req Request) []target {
	logger := contextutil.LoggerFromContext(ctx)
	seen := make(map[string]bool)
	var targets []target
	add := func(t target) {
		if seen[t.id] {
			return
		}
		seen[t.id] = true
		targets = append(targets, t)
	}

	for _, kid := range req.KnowledgeIDs {
		files, err := e.files.ListFiles(ctx, kid)
		if err != nil {
			logger.WarnContext(ctx, "dropping knowledge source", "knowledge_id", kid, "error", err)
			continue
		}
		for _, f := range files {
			add(target{id: f.ID, kind: SourceKnowledge, source: loader.FileSource{SourceID: f.ID, Path: f.Path}})
		}
	}

	for _, fid := range req.FileIDs {
		f, err := e.files.GetFile(ctx, fid)
		if err != nil {
			logger.WarnContext(ctx, "dropping file source", "file_id", fid, "error", err)
			continue
		}
		add(target{id: f.ID, kind: SourceFile, source: loader.FileSource{SourceID: f.ID, Path: f.Path}})
	}

	for _, nid := range req.NoteIDs {
		path, err := loader.NoteSnapshotPath(e.notesDir, nid)
		if err != nil {
			logger.WarnContext(ctx, "dropping note source", "note_id", nid, "error", err)
			continue
		}
		add(target{id: nid, kind: SourceNote, source: loader.FileSource{SourceID: nid, Path: path}})
	}
	return targets
}

// buildRetrievers builds or loads every target concurrently. A failing target
// is dropped; the order of the result follows targets.
func (e *Engine) buildRetrievers(ctx context.Context, targets []target) []*retriever.AutoMerging {
	if len(targets) == 0 {
		return nil
	}
	logger := contextutil.LoggerFromContext(ctx)

	results := make([]*retriever.AutoMerging, len(targets))
	var g errgroup.Group
	g.SetLimit(buildConcurrency)
	for i, t := range targets {
		g.Go(func() error {
			ix, err := e.indexes.BuildOrLoad(ctx, t.id, t.source)
			if err != nil {
				logger.WarnContext(ctx, "dropping source",
					"source_id", t.id,
					"kind", t.kind,
					"error", err,
				)
				return nil
			}
			p := ParamsFor(t.kind)
			results[i] = retriever.New(ix, p.TopK, p.Ratio)
			return nil
		})
	}
	_ = g.Wait()

	out := make([]*retriever.AutoMerging, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}

func (e *Engine) defaultRetriever(ctx context.Context) (*retriever.AutoMerging, error) {
	if err := os.MkdirAll(e.defaultDir, 0o755); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, "rag.defaultRetriever",
			fmt.Errorf("failed to create default source dir: %w", err))
	}
	ix, err := e.indexes.BuildOrLoad(ctx, DefaultSourceID, loader.DirSource{SourceID: DefaultSourceID, Dir: e.defaultDir})
	if err != nil {
		return nil, fmt.Errorf("failed to load default source: %w", err)
	}
	p := ParamsFor(SourceDefault)
	return retriever.New(ix, p.TopK, p.Ratio), nil
}

// fanOut embeds every query once and runs every retriever against every
// query embedding.
func (e *Engine) fanOut(ctx context.Context, retrievers []*retriever.AutoMerging, queries []string) ([][]retriever.Span, error) {
	vecs, err := e.embedder.Embed(ctx, queries)
	if err != nil {
		return nil, fmt.Errorf("failed to embed queries: %w", err)
	}
	if len(vecs) != len(queries) {
		return nil, errors.New("embedder returned wrong number of vectors")
	}

	logger := contextutil.LoggerFromContext(ctx)
	results := make([][]retriever.Span, len(retrievers)*len(vecs))
	var g errgroup.Group
	for i, r := range retrievers {
		for j, v := range vecs {
			slot := i*len(vecs) + j
			g.Go(func() error {
				spans, err := r.Retrieve(ctx, v)
				if err != nil {
					// A failing retriever is dropped from this fusion.
					logger.WarnContext(ctx, "dropping retriever result",
						"source_id", r.Index.SourceID(),
						"query", j,
						"error", err,
					)
					return nil
				}
				results[slot] = spans
				return nil
			})
		}
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}
