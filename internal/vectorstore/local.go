package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
)

// LocalFileName is the name of the leaf vector file inside a collection directory.
const LocalFileName = "vector_store.json"

var _ VectorStore = (*LocalStore)(nil)

// LocalStore keeps each collection as a JSON file at <root>/<collection>/vector_store.json
// and searches it by brute-force cosine similarity. Loaded collections are cached.
type LocalStore struct {
	root string

	mu          sync.RWMutex
	collections map[string]*localCollection
}

type localCollection struct {
	VectorSize int                   `json:"vector_size"`
	Points     map[string]localPoint `json:"points"`
}

type localPoint struct {
	Vec  []float32      `json:"vec"`
	Meta map[string]any `json:"meta,omitempty"`
}

// NewLocalStore creates a store rooted at root.
func NewLocalStore(root string) *LocalStore {
	return &LocalStore{root: root, collections: make(map[string]*localCollection)}
}

func (s *LocalStore) path(collection string) string {
	return filepath.Join(s.root, collection, LocalFileName)
}

// load returns the cached collection, reading it from disk on first use.
// The caller must hold s.mu for writing.
func (s *LocalStore) load(collection string) (*localCollection, error) {
	if c, ok := s.collections[collection]; ok {
		return c, nil
	}

	raw, err := os.ReadFile(s.path(collection))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperr.Wrap(apperr.ErrNotFound, "vectorstore.LocalStore", fmt.Errorf("collection %s does not exist", collection))
		}
		return nil, apperr.Wrap(apperr.ErrPersistence, "vectorstore.LocalStore", err)
	}

	var c localCollection
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, apperr.Wrap(apperr.ErrPersistence, "vectorstore.LocalStore", fmt.Errorf("corrupt vector store %s: %w", collection, err))
	}
	if c.Points == nil {
		c.Points = make(map[string]localPoint)
	}
	s.collections[collection] = &c
	return &c, nil
}

func (s *LocalStore) save(collection string, c *localCollection) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal collection: %w", err)
	}
	if err := WriteFileAtomic(s.path(collection), data); err != nil {
		return apperr.Wrap(apperr.ErrPersistence, "vectorstore.LocalStore", err)
	}
	return nil
}

// EnsureCollection creates an empty collection file if none exists.
func (s *LocalStore) EnsureCollection(ctx context.Context, collection string, vectorSize int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(collection)
	if err == nil {
		if c.VectorSize != vectorSize {
			return fmt.Errorf("collection vector size mismatch: expected %d, got %d", vectorSize, c.VectorSize)
		}
		return nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return err
	}

	c = &localCollection{VectorSize: vectorSize, Points: make(map[string]localPoint)}
	if err := s.save(collection, c); err != nil {
		return err
	}
	s.collections[collection] = c
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "collection created", "collection", collection, "vector_size", vectorSize)
	return nil
}

// CollectionExists reports whether the collection file is present.
func (s *LocalStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	s.mu.RLock()
	_, cached := s.collections[collection]
	s.mu.RUnlock()
	if cached {
		return true, nil
	}

	_, err := os.Stat(s.path(collection))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to check collection existence: %w", err)
}

// DeleteCollection removes the collection file and evicts it from the cache.
func (s *LocalStore) DeleteCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections, collection)
	if err := os.Remove(s.path(collection)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Upsert inserts or updates points and rewrites the collection file.
func (s *LocalStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(collection)
	if err != nil {
		return err
	}
	for _, p := range points {
		if c.VectorSize != 0 && len(p.Vec) != c.VectorSize {
			return fmt.Errorf("point %s has size %d, expected %d", p.ID, len(p.Vec), c.VectorSize)
		}
		c.Points[p.ID] = localPoint{Vec: p.Vec, Meta: p.Meta}
	}
	if err := s.save(collection, c); err != nil {
		return err
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search scores every point in the collection and returns the best k.
func (s *LocalStore) Search(ctx context.Context, collection string, query []float32, k int, filters map[string]any) ([]SearchResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	s.mu.Lock()
	c, err := s.load(collection)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	results := make([]SearchResult, 0, len(c.Points))
	for id, p := range c.Points {
		if !matches(p.Meta, filters) {
			continue
		}
		results = append(results, SearchResult{PointID: id, Score: Cosine(query, p.Vec), Meta: p.Meta})
	}
	s.mu.RUnlock()

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PointID < results[j].PointID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// Delete removes points by id.
func (s *LocalStore) Delete(ctx context.Context, collection string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.load(collection)
	if err != nil {
		return err
	}
	for _, id := range ids {
		delete(c.Points, id)
	}
	return s.save(collection, c)
}

func matches(meta, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := meta[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a zero
// vector or their lengths differ.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// WriteFileAtomic writes data to a temp file in the target directory and
// renames it into place, so readers never observe a partial file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}
