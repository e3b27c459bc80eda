package handlers

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_chat_runner.go -package=mocks klee-ai/internal/handlers ChatRunner

import (
	"context"
	"net/http"

	"klee-ai/internal/contextutil"
	"klee-ai/internal/rag"
	"klee-ai/internal/service"
)

// ChatRunner runs one streaming answer session. service.Session implements it.
type ChatRunner interface {
	Run(ctx context.Context, req service.AskRequest, sink service.EventSink) error
}

// ChatHandler streams answers as Server-Sent Events.
type ChatHandler struct {
	session  ChatRunner
	resolver service.Resolver
}

// NewChatHandler creates a new ChatHandler. resolver may be nil, in which
// case the provider always comes from the conversation.
func NewChatHandler(session ChatRunner, resolver service.Resolver) *ChatHandler {
	return &ChatHandler{
		session:  session,
		resolver: resolver,
	}
}

// ChatRequest represents the HTTP request payload for a streamed answer.
//
// swagger:model ChatRequest
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Question       string `json:"question"`

	// Provider kind overriding the conversation's, e.g. "ollama" or "klee"
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	// Response mode: "compact" (default) or "refine"
	Mode string `json:"mode,omitempty"`
}

// ServeHTTP handles POST /api/chat/stream.
//
// Errors raised before the first event are written as JSON. Once the stream
// has started they arrive as an SSE error event and the connection is closed.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req ChatRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	mode, err := rag.ParseMode(req.Mode)
	if err != nil {
		writeServiceError(ctx, w, &service.ValidationError{Field: "mode", Message: err.Error()})
		return
	}

	ask := service.AskRequest{
		ConversationID: req.ConversationID,
		Question:       req.Question,
		Mode:           mode,
	}
	if req.Provider != "" && h.resolver != nil {
		rp, err := h.resolver.Resolve(req.Provider, req.Model)
		if err != nil {
			writeServiceError(ctx, w, err)
			return
		}
		ask.Provider, ask.Kind, ask.Model = rp.Provider, rp.Kind, rp.Model
	}

	sink := service.NewSSESink(w)
	if err := h.session.Run(ctx, ask, sink); err != nil {
		if !sink.Started() {
			writeServiceError(ctx, w, err)
			return
		}
		logger.WarnContext(ctx, "answer stream ended with error", "error", err)
	}
}
