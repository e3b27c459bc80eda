// Package retriever searches the leaves of an index and merges groups of
// sibling hits back into their parent chunk.
package retriever

import (
	"context"
	"fmt"
	"sort"

	"klee-ai/internal/contextutil"
	"klee-ai/internal/index"
)

const (
	// DefaultTopK is the number of leaves fetched when TopK is not set.
	DefaultTopK = 12
	// DefaultRatio is the share of a parent's children that must be present
	// for the parent to replace them.
	DefaultRatio = 0.2
)

// Span is a piece of retrieved context: a leaf or a merged ancestor.
type Span struct {
	NodeID   string  `json:"node_id"`
	SourceID string  `json:"source_id"`
	Text     string  `json:"text"`
	Score    float64 `json:"score"`
	Level    int     `json:"level"`
}

// AutoMerging retrieves leaves from one index and merges them up the tree.
type AutoMerging struct {
	Index *index.Index
	TopK  int
	Ratio float64
}

// New returns a retriever over ix.
func New(ix *index.Index, topK int, ratio float64) *AutoMerging {
	return &AutoMerging{Index: ix, TopK: topK, Ratio: ratio}
}

// Retrieve searches up to TopK leaves closest to queryVec and merges them.
func (r *AutoMerging) Retrieve(ctx context.Context, queryVec []float32) ([]Span, error) {
	topK := r.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}

	hits, err := r.Index.Search(ctx, queryVec, topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search leaves: %w", err)
	}

	spans := make([]Span, 0, len(hits))
	for _, h := range hits {
		spans = append(spans, spanOf(h.Node, float64(h.Score)))
	}
	merged := MergeUp(r.Index, spans, r.Ratio)

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "auto-merge retrieval",
		"source_id", r.Index.SourceID(),
		"leaves", len(spans),
		"spans", len(merged),
	)
	return merged, nil
}

// MergeUp replaces groups of sibling spans by their parent whenever the
// present share of the parent's children reaches ratio. A merged parent
// scores the mean of its present children. Passes repeat until nothing
// qualifies, so MergeUp(MergeUp(x)) == MergeUp(x). The result never holds a
// span together with one of its ancestors and is sorted by score desc, then
// node id.
func MergeUp(ix *index.Index, hits []Span, ratio float64) []Span {
	set := make(map[string]Span, len(hits))
	for _, h := range hits {
		if prev, ok := set[h.NodeID]; !ok || h.Score > prev.Score {
			set[h.NodeID] = h
		}
	}

	// An input span inside another input span is covered by it.
	for id := range set {
		if hasAncestorIn(ix, id, set) {
			delete(set, id)
		}
	}

	for {
		candidates := mergeCandidates(ix, set, ratio)
		if len(candidates) == 0 {
			break
		}
		for _, c := range candidates {
			// An earlier merge in this pass may already cover c.
			if _, done := set[c.NodeID]; done || hasAncestorIn(ix, c.NodeID, set) {
				continue
			}
			removeDescendants(ix, c.NodeID, set)
			set[c.NodeID] = c
		}
	}

	out := make([]Span, 0, len(set))
	for _, s := range set {
		out = append(out, s)
	}
	SortSpans(out)
	return out
}

// DropCovered removes spans that have an ancestor among spans, keeping the
// order of the rest. lookup returns the index of a span's source; spans whose
// source it does not know are kept.
func DropCovered(spans []Span, lookup func(sourceID string) *index.Index) []Span {
	set := make(map[string]Span, len(spans))
	for _, s := range spans {
		set[s.NodeID] = s
	}
	out := make([]Span, 0, len(spans))
	for _, s := range spans {
		if ix := lookup(s.SourceID); ix != nil && hasAncestorIn(ix, s.NodeID, set) {
			continue
		}
		out = append(out, s)
	}
	return out
}

// SortSpans orders spans by score descending, ties by node id.
func SortSpans(spans []Span) {
	sort.Slice(spans, func(i, j int) bool {
		if spans[i].Score != spans[j].Score {
			return spans[i].Score > spans[j].Score
		}
		return spans[i].NodeID < spans[j].NodeID
	})
}

// mergeCandidates returns the parents that qualify in this pass, best first.
func mergeCandidates(ix *index.Index, set map[string]Span, ratio float64) []Span {
	type group struct {
		present int
		sum     float64
	}
	groups := make(map[string]*group)
	for id, s := range set {
		n, ok := ix.Node(id)
		if !ok || n.ParentID == "" {
			continue
		}
		g := groups[n.ParentID]
		if g == nil {
			g = &group{}
			groups[n.ParentID] = g
		}
		g.present++
		g.sum += s.Score
	}

	var out []Span
	for pid, g := range groups {
		parent, ok := ix.Node(pid)
		if !ok || len(parent.ChildIDs) == 0 {
			continue
		}
		if float64(g.present)/float64(len(parent.ChildIDs)) < ratio {
			continue
		}
		out = append(out, spanOf(parent, g.sum/float64(g.present)))
	}
	SortSpans(out)
	return out
}

func hasAncestorIn(ix *index.Index, id string, set map[string]Span) bool {
	n, ok := ix.Node(id)
	for ok && n.ParentID != "" {
		if _, present := set[n.ParentID]; present {
			return true
		}
		n, ok = ix.Node(n.ParentID)
	}
	return false
}

func removeDescendants(ix *index.Index, id string, set map[string]Span) {
	n, ok := ix.Node(id)
	if !ok {
		return
	}
	for _, cid := range n.ChildIDs {
		delete(set, cid)
		removeDescendants(ix, cid, set)
	}
}

func spanOf(n *index.Node, score float64) Span {
	return Span{
		NodeID:   n.ID,
		SourceID: n.SourceID,
		Text:     n.Text,
		Score:    score,
		Level:    n.Level,
	}
}
