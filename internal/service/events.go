package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_event_sink.go -package=mocks klee-ai/internal/service EventSink

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"klee-ai/internal/storage"
)

// Event names, in the order a session emits them.
const (
	EventSending = "sending"
	EventPending = "pending"
	EventSuccess = "success"
	EventError   = "error"
)

// EventSink receives the events of one answer session.
type EventSink interface {
	Send(ctx context.Context, event string, payload any) error
}

// MessagesPayload is the data of the sending, success and error events:
// both rows of the turn and their conversation.
type MessagesPayload struct {
	UserMessage    *storage.ChatMessage `json:"userMessage"`
	BotMessage     *storage.ChatMessage `json:"botMessage"`
	ConversationID string               `json:"conversation_id"`
}

// EncodeEvent frames one server-sent event.
func EncodeEvent(event string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event, data), nil
}

// SSESink writes events to an HTTP response as text/event-stream and flushes
// after each one. Headers are written on the first event, so a request that
// fails before streaming can still get a JSON error response.
type SSESink struct {
	w  http.ResponseWriter
	rc *http.ResponseController

	mu      sync.Mutex
	started bool
}

var _ EventSink = (*SSESink)(nil)

// NewSSESink creates a sink over w.
func NewSSESink(w http.ResponseWriter) *SSESink {
	return &SSESink{w: w, rc: http.NewResponseController(w)}
}

// Send implements EventSink.
func (s *SSESink) Send(ctx context.Context, event string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	frame, err := EncodeEvent(event, payload)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		h := s.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		s.w.WriteHeader(http.StatusOK)
		s.started = true
	}

	if _, err := s.w.Write(frame); err != nil {
		return fmt.Errorf("failed to write %s event: %w", event, err)
	}
	if err := s.rc.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s event: %w", event, err)
	}
	return nil
}

// Started reports whether any event has been written.
func (s *SSESink) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}
