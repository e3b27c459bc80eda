// Package service runs streaming answer sessions: it persists the question
// and the growing answer, streams events to the client and records how each
// answer ended.
package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_model_guard.go -package=mocks klee-ai/internal/service ModelGuard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
	"klee-ai/internal/llm"
	"klee-ai/internal/rag"
	"klee-ai/internal/storage"
)

// DefaultCheckpointEvery is how many fragments pass between content checkpoints.
const DefaultCheckpointEvery = 32

// Conversation languages.
const (
	LanguageAuto    = "auto"
	LanguageChinese = "zh"
	LanguageEnglish = "en"
)

// LanguageSuffix returns the instruction appended to questions asked in a
// conversation with the given language.
func LanguageSuffix(language string) string {
	switch language {
	case LanguageChinese:
		return ".Please answer in Chinese."
	case LanguageEnglish:
		return ".Please reply in English."
	default:
		return ""
	}
}

// ModelGuard keeps a local model loaded while it is held. llm.ModelGuard
// implements it.
type ModelGuard interface {
	Acquire(ctx context.Context, modelName string) (func(), error)
}

// Resolver picks the provider of a conversation. ProviderResolver implements it.
type Resolver interface {
	Resolve(kind, model string) (ResolvedProvider, error)
}

// AskRequest is one question in a conversation.
type AskRequest struct {
	ConversationID string
	Question       string
	// Provider answers this question. When nil it is resolved from the
	// conversation's provider kind and model.
	Provider llm.Provider
	Kind     llm.Kind
	Model    string
	Mode     rag.Mode
}

// Session runs answer sessions. One Session serves every request; per-answer
// state lives on the stack of Run.
type Session struct {
	messages        storage.MessageStore
	conversations   storage.ConversationStore
	local           Generator
	remote          Generator
	resolver        Resolver
	guard           ModelGuard
	titles          *TitleGenerator
	checkpointEvery int
}

// Option configures a Session.
type Option func(*Session)

// WithCheckpointEvery sets how many fragments pass between checkpoints.
func WithCheckpointEvery(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.checkpointEvery = n
		}
	}
}

// WithModelGuard loads local models for the duration of each answer.
func WithModelGuard(g ModelGuard) Option {
	return func(s *Session) { s.guard = g }
}

// WithResolver resolves providers for requests that do not carry one.
func WithResolver(r Resolver) Option {
	return func(s *Session) { s.resolver = r }
}

// WithTitles names untitled conversations after their first answer.
func WithTitles(t *TitleGenerator) Option {
	return func(s *Session) { s.titles = t }
}

// NewSession creates a Session. local answers from indexed sources; remote
// serves providers proxied through the remote completion service.
func NewSession(messages storage.MessageStore, conversations storage.ConversationStore, local, remote Generator, opts ...Option) *Session {
	s := &Session{
		messages:        messages,
		conversations:   conversations,
		local:           local,
		remote:          remote,
		checkpointEvery: DefaultCheckpointEvery,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run answers req and reports progress to sink: one sending event, a pending
// event per fragment and exactly one success or error event. Errors returned
// before the sending event leave nothing persisted.
func (s *Session) Run(ctx context.Context, req AskRequest, sink EventSink) error {
	logger := contextutil.LoggerFromContext(ctx).With("conversation_id", req.ConversationID)

	question := strings.TrimSpace(req.Question)
	if req.ConversationID == "" {
		return &ValidationError{Field: "conversation_id", Message: "is required"}
	}
	if question == "" {
		return &ValidationError{Field: "question", Message: "cannot be empty"}
	}

	conv, err := s.conversations.Get(ctx, req.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation: %w", err)
	}
	if err := s.resolve(&req, conv); err != nil {
		return err
	}

	if req.Kind == llm.KindLocal && s.guard != nil {
		release, err := s.guard.Acquire(ctx, req.Model)
		if err != nil {
			logger.ErrorContext(ctx, "failed to load model", "model", req.Model, "error", err)
			return err
		}
		defer release()
	}

	history, err := s.messages.ListByConversation(ctx, conv.ID)
	if err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	user := &storage.ChatMessage{
		ConversationID: conv.ID,
		Role:           storage.RoleUser,
		Content:        question,
		Status:         storage.MessageSuccess,
	}
	bot := &storage.ChatMessage{
		ConversationID: conv.ID,
		Role:           storage.RoleAssistant,
		Status:         storage.MessageSending,
	}
	if err := s.messages.CreatePair(ctx, user, bot); err != nil {
		return fmt.Errorf("failed to create messages: %w", err)
	}

	// From here on the answer row must reach a terminal status even if the
	// client goes away.
	persistCtx := context.WithoutCancel(ctx)

	if err := sink.Send(ctx, EventSending, MessagesPayload{UserMessage: user, BotMessage: bot, ConversationID: conv.ID}); err != nil {
		return s.disconnected(persistCtx, bot, "", err)
	}

	gen := s.local
	if req.Kind.IsRemote() {
		gen = s.remote
	}

	var (
		content   strings.Builder
		fragments int
	)
	genErr := gen.Generate(ctx, GenerateInput{
		Question:     question + LanguageSuffix(conv.LanguageID),
		Conversation: conv,
		History:      history,
		Provider:     req.Provider,
		Mode:         req.Mode,
	}, func(fragment string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		content.WriteString(fragment)
		fragments++

		pending := *bot
		pending.Content = content.String()
		pending.Status = storage.MessagePending
		if err := sink.Send(ctx, EventPending, &pending); err != nil {
			return fmt.Errorf("%w: %w", errClientGone, err)
		}

		if fragments%s.checkpointEvery == 0 {
			if err := s.messages.Checkpoint(ctx, bot.ID, pending.Content); err != nil {
				logger.WarnContext(ctx, "failed to checkpoint answer", "message_id", bot.ID, "error", err)
			}
		}
		return nil
	})

	answer := content.String()
	switch {
	case genErr == nil:
		return s.succeed(ctx, persistCtx, req, conv, question, user, bot, answer, sink)
	case ctx.Err() != nil || errors.Is(genErr, errClientGone):
		return s.disconnected(persistCtx, bot, answer, genErr)
	default:
		return s.fail(ctx, persistCtx, conv.ID, user, bot, answer, genErr, sink)
	}
}

// resolve fills in the provider of req from the conversation when the caller
// did not pick one.
func (s *Session) resolve(req *AskRequest, conv *storage.Conversation) error {
	if req.Provider != nil {
		return nil
	}
	if s.resolver == nil {
		return apperr.New(apperr.ErrConfig, "service.Session", "no provider for request")
	}
	rp, err := s.resolver.Resolve(conv.ProviderKind, conv.Model)
	if err != nil {
		return fmt.Errorf("failed to resolve provider: %w", err)
	}
	req.Provider, req.Kind, req.Model = rp.Provider, rp.Kind, rp.Model
	return nil
}

func (s *Session) succeed(ctx, persistCtx context.Context, req AskRequest, conv *storage.Conversation, question string, user, bot *storage.ChatMessage, answer string, sink EventSink) error {
	logger := contextutil.LoggerFromContext(ctx)

	final, err := s.messages.Finalize(persistCtx, bot.ID, answer, storage.MessageSuccess, "", "")
	if err != nil {
		logger.ErrorContext(ctx, "failed to store answer", "message_id", bot.ID, "error", err)
		failed := *bot
		failed.Content, failed.Status, failed.ErrorCode, failed.ErrorMessage = answer, storage.MessageError, CodeChatError, err.Error()
		_ = sink.Send(ctx, EventError, MessagesPayload{UserMessage: user, BotMessage: &failed, ConversationID: conv.ID})
		return fmt.Errorf("failed to store answer: %w", err)
	}
	if err := sink.Send(ctx, EventSuccess, MessagesPayload{UserMessage: user, BotMessage: final, ConversationID: conv.ID}); err != nil {
		logger.WarnContext(ctx, "failed to send success event", "error", err)
	}

	logger.InfoContext(ctx, "answer completed", "message_id", bot.ID, "answer_length", len(answer))

	if conv.Title == "" && s.titles != nil {
		s.nameConversation(persistCtx, req.Provider, conv.ID, question, answer)
	}
	return nil
}

func (s *Session) fail(ctx, persistCtx context.Context, conversationID string, user, bot *storage.ChatMessage, answer string, genErr error, sink EventSink) error {
	logger := contextutil.LoggerFromContext(ctx)
	err := apperr.Wrap(apperr.ErrGeneration, "service.Session", genErr)
	code := errorCode(genErr)
	logger.ErrorContext(ctx, "answer failed", "message_id", bot.ID, "code", code, "error", genErr)

	final, ferr := s.messages.Finalize(persistCtx, bot.ID, answer, storage.MessageError, code, genErr.Error())
	if ferr != nil {
		logger.ErrorContext(ctx, "failed to store failed answer", "message_id", bot.ID, "error", ferr)
		failed := *bot
		failed.Content, failed.Status, failed.ErrorCode, failed.ErrorMessage = answer, storage.MessageError, code, genErr.Error()
		final = &failed
	}
	if serr := sink.Send(ctx, EventError, MessagesPayload{UserMessage: user, BotMessage: final, ConversationID: conversationID}); serr != nil {
		logger.WarnContext(ctx, "failed to send error event", "error", serr)
	}
	return err
}

func (s *Session) disconnected(persistCtx context.Context, bot *storage.ChatMessage, answer string, cause error) error {
	logger := contextutil.LoggerFromContext(persistCtx)
	logger.InfoContext(persistCtx, "client disconnected", "message_id", bot.ID, "answer_length", len(answer), "cause", cause)

	if _, err := s.messages.Finalize(persistCtx, bot.ID, answer, storage.MessageError, CodeClientDisconnected, cause.Error()); err != nil {
		logger.ErrorContext(persistCtx, "failed to store interrupted answer", "message_id", bot.ID, "error", err)
	}
	return fmt.Errorf("client disconnected: %w", cause)
}

func (s *Session) nameConversation(ctx context.Context, p llm.Provider, conversationID, question, answer string) {
	logger := contextutil.LoggerFromContext(ctx)
	title, err := s.titles.Generate(ctx, p, question, answer)
	if err != nil {
		logger.WarnContext(ctx, "failed to name conversation", "error", err)
		return
	}
	if err := s.conversations.SetTitle(ctx, conversationID, title); err != nil {
		logger.WarnContext(ctx, "failed to store conversation title", "error", err)
	}
}
