package rag

import (
	"fmt"

	"klee-ai/internal/llm"
)

// SourceKind selects the retriever parameters of a source.
type SourceKind string

const (
	SourceKnowledge SourceKind = "knowledge"
	SourceFile      SourceKind = "file"
	SourceNote      SourceKind = "note"
	SourceDefault   SourceKind = "default"
)

// DefaultSourceID is the source used when a question names no sources.
const DefaultSourceID = "default"

// RetrieverParams are the auto-merging settings of one source kind.
type RetrieverParams struct {
	// TopK is the number of leaves fetched per sub-query.
	TopK int
	// Ratio is the share of a parent's children needed to merge them.
	Ratio float64
}

var retrieverParams = map[SourceKind]RetrieverParams{
	SourceKnowledge: {TopK: 6, Ratio: 0.5},
	SourceFile:      {TopK: 6, Ratio: 0.5},
	SourceNote:      {TopK: 12, Ratio: 0.2},
	SourceDefault:   {TopK: 12, Ratio: 0.2},
}

// ParamsFor returns the retriever parameters of kind. Unknown kinds get the
// default fallback parameters.
func ParamsFor(kind SourceKind) RetrieverParams {
	if p, ok := retrieverParams[kind]; ok {
		return p
	}
	return retrieverParams[SourceDefault]
}

// Mode selects how retrieved spans are turned into an answer.
type Mode string

const (
	// ModeCompact answers from one context block with one model call.
	ModeCompact Mode = "compact"
	// ModeRefine answers from the first span and revises per later span.
	ModeRefine Mode = "refine"
)

// ParseMode converts a request string into a Mode. Empty means compact.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeCompact:
		return ModeCompact, nil
	case ModeRefine:
		return ModeRefine, nil
	default:
		return "", fmt.Errorf("unknown response mode %q", s)
	}
}

const (
	// DefaultNumQueries is the number of queries run per question, the original included.
	DefaultNumQueries = 4
	// DefaultTopK caps the fused span list.
	DefaultTopK = 12
)

// Request is one question over a set of sources.
type Request struct {
	// Question is the user's question, language suffix included.
	Question string
	// KnowledgeIDs expand to one source per knowledge file.
	KnowledgeIDs []string
	// FileIDs are knowledge files attached one by one.
	FileIDs []string
	// NoteIDs are indexed note snapshots.
	NoteIDs []string
	// Provider answers this request. It is resolved per conversation.
	Provider llm.Provider
	// Mode selects the synthesizer. Empty means compact.
	Mode Mode
	// NumQueries includes the original question. 0 means DefaultNumQueries.
	NumQueries int
	// TopK caps the fused spans. 0 means DefaultTopK.
	TopK int
}
