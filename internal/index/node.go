// Package index builds, persists and loads the hierarchical node tree of a
// source together with the leaf vector collection used to search it.
package index

import (
	"context"
	"fmt"
	"sort"

	"klee-ai/internal/vectorstore"
)

// Node is one chunk of a document at one level of the hierarchy.
// Level 0 is the coarsest. Leaves have no children.
type Node struct {
	ID         string   `json:"id"`
	SourceID   string   `json:"source_id"`
	DocumentID string   `json:"document_id"`
	Text       string   `json:"text"`
	Level      int      `json:"level"`
	ParentID   string   `json:"parent_id,omitempty"`
	ChildIDs   []string `json:"child_ids,omitempty"`
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool {
	return len(n.ChildIDs) == 0
}

// Index is the immutable node tree of one source plus a handle on its leaf
// vector collection. It is safe for concurrent readers.
type Index struct {
	sourceID   string
	chunkSizes []int
	nodes      map[string]*Node
	order      []string // insertion order, parents before children
	store      vectorstore.VectorStore
}

// Hit is a leaf returned by a vector search.
type Hit struct {
	Node  *Node
	Score float32
}

// NewIndex assembles an index from nodes listed parents first and checks the
// tree invariant. store holds the leaf vectors under collection sourceID.
func NewIndex(sourceID string, chunkSizes []int, nodes []*Node, store vectorstore.VectorStore) (*Index, error) {
	ix := &Index{
		sourceID:   sourceID,
		chunkSizes: append([]int(nil), chunkSizes...),
		nodes:      make(map[string]*Node, len(nodes)),
		order:      make([]string, 0, len(nodes)),
		store:      store,
	}
	for _, n := range nodes {
		if n == nil || n.ID == "" {
			return nil, fmt.Errorf("node without id")
		}
		if _, dup := ix.nodes[n.ID]; dup {
			return nil, fmt.Errorf("duplicate node %s", n.ID)
		}
		ix.nodes[n.ID] = n
		ix.order = append(ix.order, n.ID)
	}
	if err := ix.validate(); err != nil {
		return nil, err
	}
	return ix, nil
}

// SourceID returns the id of the source this index covers.
func (ix *Index) SourceID() string {
	return ix.sourceID
}

// ChunkSizes returns the token sizes of each level, coarsest first.
func (ix *Index) ChunkSizes() []int {
	return append([]int(nil), ix.chunkSizes...)
}

// Len returns the number of nodes at every level.
func (ix *Index) Len() int {
	return len(ix.nodes)
}

// Node returns the node with id.
func (ix *Index) Node(id string) (*Node, bool) {
	n, ok := ix.nodes[id]
	return n, ok
}

// Nodes returns every node, parents before children.
func (ix *Index) Nodes() []*Node {
	out := make([]*Node, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.nodes[id])
	}
	return out
}

// Leaves returns the searchable nodes, in tree order.
func (ix *Index) Leaves() []*Node {
	var out []*Node
	for _, id := range ix.order {
		if n := ix.nodes[id]; n.IsLeaf() {
			out = append(out, n)
		}
	}
	return out
}

// Roots returns the level-0 nodes.
func (ix *Index) Roots() []*Node {
	var out []*Node
	for _, id := range ix.order {
		if n := ix.nodes[id]; n.ParentID == "" {
			out = append(out, n)
		}
	}
	return out
}

// Search returns up to k leaves closest to query. An empty index returns no hits.
func (ix *Index) Search(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if len(ix.nodes) == 0 || k <= 0 {
		return nil, nil
	}

	results, err := ix.store.Search(ctx, ix.sourceID, query, k, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to search source %s: %w", ix.sourceID, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		n, ok := ix.nodes[r.PointID]
		if !ok || !n.IsLeaf() {
			continue
		}
		hits = append(hits, Hit{Node: n, Score: r.Score})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Node.ID < hits[j].Node.ID
	})
	return hits, nil
}

// validate checks the tree invariant: parent links and child lists agree,
// every non-root has exactly one parent, and levels grow by one per edge,
// which rules out cycles.
func (ix *Index) validate() error {
	seenChild := make(map[string]string, len(ix.nodes))
	for _, n := range ix.nodes {
		for _, cid := range n.ChildIDs {
			c, ok := ix.nodes[cid]
			if !ok {
				return fmt.Errorf("node %s lists missing child %s", n.ID, cid)
			}
			if c.ParentID != n.ID {
				return fmt.Errorf("node %s has parent %s, listed under %s", cid, c.ParentID, n.ID)
			}
			if prev, dup := seenChild[cid]; dup {
				return fmt.Errorf("node %s listed under both %s and %s", cid, prev, n.ID)
			}
			seenChild[cid] = n.ID
			if c.Level != n.Level+1 {
				return fmt.Errorf("node %s at level %d under level %d parent", cid, c.Level, n.Level)
			}
		}
	}
	for _, n := range ix.nodes {
		if n.ParentID == "" {
			if n.Level != 0 {
				return fmt.Errorf("root node %s at level %d", n.ID, n.Level)
			}
			continue
		}
		if _, ok := seenChild[n.ID]; !ok {
			return fmt.Errorf("node %s is not listed by its parent %s", n.ID, n.ParentID)
		}
	}
	return nil
}
