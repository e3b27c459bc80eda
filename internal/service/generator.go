package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_generator.go -package=mocks klee-ai/internal/service Generator

import (
	"context"
	"fmt"
	"strings"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
	"klee-ai/internal/llm"
	"klee-ai/internal/rag"
	"klee-ai/internal/storage"
)

// GenerateInput is everything a generator needs to answer one question.
type GenerateInput struct {
	// Question carries the conversation's language suffix.
	Question     string
	Conversation *storage.Conversation
	// History holds earlier successful messages, oldest first.
	History  []storage.ChatMessage
	Provider llm.Provider
	Mode     rag.Mode
}

// Generator produces answer fragments. fn is called once per fragment, in
// order; a non-nil error from fn stops generation and is returned wrapped.
type Generator interface {
	Generate(ctx context.Context, in GenerateInput, fn func(fragment string) error) error
}

// QueryEngine runs retrieval for one question.
type QueryEngine interface {
	CombineQuery(ctx context.Context, req rag.Request) (*rag.QueryHandle, error)
}

// LocalGenerator answers from the conversation's indexed sources.
type LocalGenerator struct {
	engine QueryEngine
}

var _ Generator = (*LocalGenerator)(nil)

// NewLocalGenerator creates a generator over engine.
func NewLocalGenerator(engine QueryEngine) *LocalGenerator {
	return &LocalGenerator{engine: engine}
}

// Generate implements Generator.
func (g *LocalGenerator) Generate(ctx context.Context, in GenerateInput, fn func(fragment string) error) error {
	h, err := g.engine.CombineQuery(ctx, ragRequest(in))
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "local generation",
		"spans", len(h.Spans()),
		"own_knowledge", h.OwnKnowledge(),
	)
	return h.Stream(ctx, fn)
}

func ragRequest(in GenerateInput) rag.Request {
	req := rag.Request{
		Question: in.Question,
		Provider: in.Provider,
		Mode:     in.Mode,
	}
	if c := in.Conversation; c != nil {
		req.KnowledgeIDs = c.KnowledgeIDs
		req.FileIDs = c.FileIDs
		req.NoteIDs = c.NoteIDs
	}
	return req
}

// MessageStreamer streams a reply to a whole message list. llm.RemoteClient
// implements it.
type MessageStreamer interface {
	StreamMessages(ctx context.Context, messages []llm.Message, fn func(chunk string) error) error
}

// remoteHistory is how many earlier messages are forwarded to the remote service.
const remoteHistory = 4

// RemoteGenerator retrieves context from the conversation's sources and
// forwards it with the recent history to the remote completion service. The
// request provider must implement MessageStreamer.
type RemoteGenerator struct {
	engine QueryEngine
}

var _ Generator = (*RemoteGenerator)(nil)

// NewRemoteGenerator creates a remote generator that retrieves through engine.
func NewRemoteGenerator(engine QueryEngine) *RemoteGenerator {
	return &RemoteGenerator{engine: engine}
}

// Generate implements Generator.
func (g *RemoteGenerator) Generate(ctx context.Context, in GenerateInput, fn func(fragment string) error) error {
	streamer, ok := in.Provider.(MessageStreamer)
	if !ok {
		return apperr.New(apperr.ErrConfig, "service.RemoteGenerator", "provider cannot stream message lists")
	}

	h, err := g.engine.CombineQuery(ctx, ragRequest(in))
	if err != nil {
		return fmt.Errorf("failed to retrieve context: %w", err)
	}
	texts := make([]string, 0, len(h.Spans()))
	for _, sp := range h.Spans() {
		texts = append(texts, sp.Text)
	}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "remote generation", "spans", len(texts))

	history := in.History
	if len(history) > remoteHistory {
		history = history[len(history)-remoteHistory:]
	}
	messages := make([]llm.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Status != storage.MessageSuccess || m.Content == "" {
			continue
		}
		messages = append(messages, llm.Message{Role: m.Role, Content: m.Content})
	}
	messages = append(messages, llm.Message{
		Role:    storage.RoleUser,
		Content: remotePrompt(strings.Join(texts, "\n\n"), in.Question),
	})

	return streamer.StreamMessages(ctx, messages, fn)
}

func remotePrompt(text, question string) string {
	return fmt.Sprintf("1. Using as many sentences as possible from the text I provided: ```%s``` to support the answer\n"+
		"2. If the answer is unrelated to the question, you can freely express yourself\n"+
		"3. Do not directly output the provided text content\n"+
		"4. If no text is provided, please provide your own response and organize the answer.\n"+
		"My question is: %s", text, question)
}
