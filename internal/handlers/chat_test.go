package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/mock/gomock"

	"klee-ai/internal/apperr"
	"klee-ai/internal/handlers/mocks"
	"klee-ai/internal/llm"
	"klee-ai/internal/rag"
	"klee-ai/internal/service"
	"klee-ai/internal/storage"
)

type stubResolver struct {
	err error
}

func (s stubResolver) Resolve(kind, model string) (service.ResolvedProvider, error) {
	if s.err != nil {
		return service.ResolvedProvider{}, s.err
	}
	return service.ResolvedProvider{Kind: llm.Kind(kind), Model: model}, nil
}

func postJSON(t *testing.T, path string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if s, ok := body.(string); ok {
		buf.WriteString(s)
	} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
		t.Fatalf("failed to encode body: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, path, &buf)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error body %q: %v", w.Body.String(), err)
	}
	return resp
}

func TestChatHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		resolver   service.Resolver
		mockSetup  func(*mocks.MockChatRunner)
		wantStatus int
		wantKind   string
		wantBody   []string
	}{
		{
			name: "streams events",
			body: ChatRequest{ConversationID: "c1", Question: "hi"},
			mockSetup: func(m *mocks.MockChatRunner) {
				m.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, req service.AskRequest, sink service.EventSink) error {
						if req.ConversationID != "c1" || req.Question != "hi" || req.Mode != rag.ModeCompact {
							t.Errorf("unexpected request %+v", req)
						}
						_ = sink.Send(ctx, service.EventSending, service.MessagesPayload{ConversationID: "c1"})
						_ = sink.Send(ctx, service.EventPending, &storage.ChatMessage{ID: "b1", Content: "he"})
						return sink.Send(ctx, service.EventSuccess, &storage.ChatMessage{ID: "b1", Content: "hello"})
					})
			},
			wantStatus: http.StatusOK,
			wantBody:   []string{"event: sending\n", "event: pending\n", "event: success\n"},
		},
		{
			name: "error before first event is JSON",
			body: ChatRequest{ConversationID: "c1"},
			mockSetup: func(m *mocks.MockChatRunner) {
				m.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(&service.ValidationError{Field: "question", Message: "cannot be empty"})
			},
			wantStatus: http.StatusBadRequest,
			wantKind:   "invalid_input",
		},
		{
			name: "unknown conversation",
			body: ChatRequest{ConversationID: "nope", Question: "hi"},
			mockSetup: func(m *mocks.MockChatRunner) {
				m.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).Return(storage.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
			wantKind:   "not_found",
		},
		{
			name: "model load failure",
			body: ChatRequest{ConversationID: "c1", Question: "hi"},
			mockSetup: func(m *mocks.MockChatRunner) {
				m.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
					Return(apperr.Wrap(apperr.ErrModelLoad, "llm.ModelGuard", errors.New("connection refused")))
			},
			wantStatus: http.StatusBadGateway,
			wantKind:   "model_load_error",
		},
		{
			name: "error after first event stays in the stream",
			body: ChatRequest{ConversationID: "c1", Question: "hi"},
			mockSetup: func(m *mocks.MockChatRunner) {
				m.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, _ service.AskRequest, sink service.EventSink) error {
						_ = sink.Send(ctx, service.EventSending, service.MessagesPayload{ConversationID: "c1"})
						_ = sink.Send(ctx, service.EventError, &storage.ChatMessage{ID: "b1", Status: storage.MessageError})
						return apperr.Wrap(apperr.ErrGeneration, "service.Session", errors.New("boom"))
					})
			},
			wantStatus: http.StatusOK,
			wantBody:   []string{"event: sending\n", "event: error\n"},
		},
		{
			name:     "provider override is resolved",
			body:     ChatRequest{ConversationID: "c1", Question: "hi", Provider: "ollama", Model: "llama3", Mode: "refine"},
			resolver: stubResolver{},
			mockSetup: func(m *mocks.MockChatRunner) {
				m.EXPECT().Run(gomock.Any(), gomock.Any(), gomock.Any()).
					DoAndReturn(func(ctx context.Context, req service.AskRequest, sink service.EventSink) error {
						if req.Kind != llm.KindOllama || req.Model != "llama3" || req.Mode != rag.ModeRefine {
							t.Errorf("unexpected request %+v", req)
						}
						return sink.Send(ctx, service.EventSuccess, nil)
					})
			},
			wantStatus: http.StatusOK,
			wantBody:   []string{"event: success\n"},
		},
		{
			name:       "unknown provider kind",
			body:       ChatRequest{ConversationID: "c1", Question: "hi", Provider: "gemini"},
			resolver:   stubResolver{err: apperr.New(apperr.ErrConfig, "service.ProviderResolver", "unknown provider")},
			mockSetup:  func(m *mocks.MockChatRunner) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   "config_error",
		},
		{
			name:       "unknown mode",
			body:       ChatRequest{ConversationID: "c1", Question: "hi", Mode: "tree_summarize"},
			mockSetup:  func(m *mocks.MockChatRunner) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   "invalid_input",
		},
		{
			name:       "invalid JSON body",
			body:       "invalid json",
			mockSetup:  func(m *mocks.MockChatRunner) {},
			wantStatus: http.StatusBadRequest,
			wantKind:   "invalid_input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			runner := mocks.NewMockChatRunner(ctrl)
			tt.mockSetup(runner)

			handler := NewChatHandler(runner, tt.resolver)
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, postJSON(t, "/api/chat/stream", tt.body))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %q)", w.Code, tt.wantStatus, w.Body.String())
			}
			if tt.wantKind != "" {
				if got := decodeError(t, w).Kind; got != tt.wantKind {
					t.Errorf("kind = %q, want %q", got, tt.wantKind)
				}
				return
			}
			if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
				t.Errorf("Content-Type = %q, want text/event-stream", ct)
			}
			body := w.Body.String()
			for _, want := range tt.wantBody {
				if !strings.Contains(body, want) {
					t.Errorf("body %q does not contain %q", body, want)
				}
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantKind   string
	}{
		{"validation", &service.ValidationError{Field: "f", Message: "m"}, http.StatusBadRequest, "invalid_input"},
		{"not found", storage.ErrNotFound, http.StatusNotFound, "not_found"},
		{"config", apperr.New(apperr.ErrConfig, "op", "bad"), http.StatusBadRequest, "config_error"},
		{"exhausted", apperr.New(apperr.ErrConcurrencyExhausted, "op", "busy"), http.StatusConflict, "concurrency_exhausted"},
		{"model load", apperr.New(apperr.ErrModelLoad, "op", "down"), http.StatusBadGateway, "model_load_error"},
		{"generation", apperr.New(apperr.ErrGeneration, "op", "cut"), http.StatusBadGateway, "generation_error"},
		{"persistence", apperr.New(apperr.ErrPersistence, "op", "disk"), http.StatusInternalServerError, "persistence_error"},
		{"untyped", errors.New("oops"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, kind := statusFor(tt.err)
			if status != tt.wantStatus || kind != tt.wantKind {
				t.Errorf("statusFor() = (%d, %q), want (%d, %q)", status, kind, tt.wantStatus, tt.wantKind)
			}
		})
	}
}

func TestWriteServiceError_HidesInternalMessage(t *testing.T) {
	w := httptest.NewRecorder()
	writeServiceError(context.Background(), w, errors.New("database is locked at /var/lib/klee.db"))

	resp := decodeError(t, w)
	if resp.Error != "internal error" {
		t.Errorf("error = %q, want internal error", resp.Error)
	}
}
