package service_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klee-ai/internal/service"
	"klee-ai/internal/storage"
)

func TestEncodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		event   string
		payload any
		want    string
	}{
		{
			name:    "message",
			event:   service.EventPending,
			payload: map[string]string{"content": "line one\nline two"},
			want:    "event: pending\ndata: {\"content\":\"line one\\nline two\"}\n\n",
		},
		{
			name:    "sending payload keys",
			event:   service.EventSending,
			payload: service.MessagesPayload{ConversationID: "c1"},
			want:    "event: sending\ndata: {\"userMessage\":null,\"botMessage\":null,\"conversation_id\":\"c1\"}\n\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := service.EncodeEvent(tt.event, tt.payload)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestEncodeEvent_Unmarshalable(t *testing.T) {
	_, err := service.EncodeEvent(service.EventPending, make(chan int))
	assert.Error(t, err)
}

func TestSSESink(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := service.NewSSESink(rec)
	assert.False(t, sink.Started())

	ctx := context.Background()
	require.NoError(t, sink.Send(ctx, service.EventPending, &storage.ChatMessage{ID: "m1", Content: "hi", Status: storage.MessagePending}))
	require.NoError(t, sink.Send(ctx, service.EventSuccess, map[string]int{"n": 1}))

	assert.True(t, sink.Started())
	assert.True(t, rec.Flushed)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Contains(t, rec.Body.String(), "event: pending\ndata: {\"id\":\"m1\"")
	assert.Contains(t, rec.Body.String(), "event: success\ndata: {\"n\":1}\n\n")
}

func TestSSESink_CancelledContext(t *testing.T) {
	rec := httptest.NewRecorder()
	sink := service.NewSSESink(rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, sink.Send(ctx, service.EventPending, nil))
	assert.False(t, sink.Started())
	assert.Empty(t, rec.Body.String())
}
