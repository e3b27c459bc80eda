package rag

import (
	"context"
	"fmt"
	"strings"

	"klee-ai/internal/contextutil"
	"klee-ai/internal/llm"
	"klee-ai/internal/retriever"
)

// SynthesisInput is what a synthesizer answers from.
type SynthesisInput struct {
	Question string
	Spans    []retriever.Span
	// OwnKnowledge is set when the active indexes hold no nodes at all.
	OwnKnowledge bool
}

// Synthesizer turns retrieved spans into a streamed answer.
type Synthesizer interface {
	Synthesize(ctx context.Context, p llm.Provider, in SynthesisInput, fn func(chunk string) error) error
}

// SynthesizerFor returns the synthesizer of mode. Unknown modes are compact.
func SynthesizerFor(mode Mode) Synthesizer {
	if mode == ModeRefine {
		return Refine{}
	}
	return Compact{}
}

// Compact packs every span into one context block and streams one model call.
type Compact struct{}

// Synthesize implements Synthesizer.
func (Compact) Synthesize(ctx context.Context, p llm.Provider, in SynthesisInput, fn func(chunk string) error) error {
	prompt := ownKnowledgePrompt(in.Question)
	if !in.OwnKnowledge {
		prompt = textQAPrompt(joinSpans(in.Spans), in.Question)
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "compact synthesis",
		"spans", len(in.Spans),
		"own_knowledge", in.OwnKnowledge,
		"prompt_length", len(prompt),
	)
	return p.Stream(ctx, prompt, fn)
}

// Refine answers from the first span, then revises the answer once per later
// span. Only the last model call is streamed.
type Refine struct{}

// Synthesize implements Synthesizer.
func (Refine) Synthesize(ctx context.Context, p llm.Provider, in SynthesisInput, fn func(chunk string) error) error {
	if in.OwnKnowledge || len(in.Spans) <= 1 {
		return Compact{}.Synthesize(ctx, p, in, fn)
	}
	logger := contextutil.LoggerFromContext(ctx)

	answer, err := p.Complete(ctx, textQAPrompt(in.Spans[0].Text, in.Question))
	if err != nil {
		return fmt.Errorf("failed to answer from first span: %w", err)
	}

	last := len(in.Spans) - 1
	for i := 1; i < last; i++ {
		next, err := p.Complete(ctx, refinePrompt(in.Question, llm.StripThinking(answer), in.Spans[i].Text))
		if err != nil {
			return fmt.Errorf("failed to refine with span %d: %w", i, err)
		}
		answer = next
		logger.DebugContext(ctx, "refined answer", "step", i, "answer_length", len(answer))
	}

	return p.Stream(ctx, refinePrompt(in.Question, llm.StripThinking(answer), in.Spans[last].Text), fn)
}

func joinSpans(spans []retriever.Span) string {
	texts := make([]string, 0, len(spans))
	for _, s := range spans {
		texts = append(texts, s.Text)
	}
	return strings.Join(texts, "\n\n")
}
