package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klee-ai/internal/apperr"
	"klee-ai/internal/index"
	"klee-ai/internal/llm"
	"klee-ai/internal/loader"
	"klee-ai/internal/rag"
	"klee-ai/internal/service"
	"klee-ai/internal/storage"
	"klee-ai/internal/vectorstore"
)

// newNoteEngine returns an engine whose note n1 holds text.
func newNoteEngine(t *testing.T, text string) *rag.Engine {
	t.Helper()
	root := t.TempDir()
	notesDir := filepath.Join(root, "notes")
	snapshot, err := loader.NoteSnapshotPath(notesDir, "n1")
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(snapshot), 0o755))
	require.NoError(t, os.WriteFile(snapshot, []byte(text), 0o644))

	vecDir := filepath.Join(root, "vector")
	builder := index.NewBuilder(vecDir, vectorstore.NewLocalStore(vecDir), llm.NewHashEmbedder(32), index.RuneCounter{})
	return rag.NewEngine(builder, nil, llm.NewHashEmbedder(32), notesDir, filepath.Join(root, "default"))
}

type remoteRequest struct {
	Provider string        `json:"provider"`
	Messages []llm.Message `json:"messages"`
	Model    string        `json:"model"`
}

func TestRemoteGenerator_Generate(t *testing.T) {
	var (
		mu   sync.Mutex
		reqs []remoteRequest
		auth string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var got remoteRequest
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		mu.Lock()
		reqs = append(reqs, got)
		auth = r.Header.Get("Authorization")
		mu.Unlock()
		_, _ = w.Write([]byte("Hello from "))
		w.(http.Flusher).Flush()
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()

	engine := newNoteEngine(t, "The roof tiles were replaced in March with terracotta.")
	in := service.GenerateInput{
		Question:     "when were the tiles replaced?",
		Conversation: &storage.Conversation{NoteIDs: []string{"n1"}},
		History: []storage.ChatMessage{
			{Role: storage.RoleUser, Content: "too old", Status: storage.MessageSuccess},
			{Role: storage.RoleAssistant, Content: "also too old", Status: storage.MessageSuccess},
			{Role: storage.RoleUser, Content: "hi", Status: storage.MessageSuccess},
			{Role: storage.RoleAssistant, Content: "hello", Status: storage.MessageSuccess},
			{Role: storage.RoleUser, Content: "lost", Status: storage.MessageSuccess},
			{Role: storage.RoleAssistant, Content: "half", Status: storage.MessageError},
		},
		Provider: llm.NewRemoteClient(srv.URL, "secret", "claude-3-5-sonnet"),
	}

	var answer strings.Builder
	err := service.NewRemoteGenerator(engine).Generate(context.Background(), in, func(s string) error {
		answer.WriteString(s)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello from remote", answer.String())
	assert.Equal(t, "Bearer secret", auth)

	// Sub-query generation goes first; the answer request is the last one.
	require.NotEmpty(t, reqs)
	got := reqs[len(reqs)-1]
	assert.Equal(t, "CLAUDE", got.Provider)
	assert.Equal(t, "claude-3-5-sonnet", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, []llm.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "lost"},
	}, got.Messages[:3])

	last := got.Messages[3]
	assert.Equal(t, "user", last.Role)
	assert.Contains(t, last.Content, "terracotta")
	assert.Contains(t, last.Content, "My question is: when were the tiles replaced?")
}

func TestRemoteGenerator_StatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"code":"insufficient_balance","msg":"top up"}`))
	}))
	defer srv.Close()

	in := service.GenerateInput{Question: "q", Conversation: &storage.Conversation{}, Provider: llm.NewRemoteClient(srv.URL, "t", "gpt-4o")}
	err := service.NewRemoteGenerator(newNoteEngine(t, "unused")).Generate(context.Background(), in, func(string) error { return nil })

	var se *llm.StatusError
	require.True(t, errors.As(err, &se), "err = %v", err)
	assert.Equal(t, "insufficient_balance", se.Code)
}

func TestRemoteGenerator_RequiresMessageStreamer(t *testing.T) {
	g := service.NewRemoteGenerator(newNoteEngine(t, "unused"))
	err := g.Generate(context.Background(), service.GenerateInput{Provider: &stubProvider{}}, func(string) error { return nil })
	assert.True(t, errors.Is(err, apperr.ErrConfig), "err = %v", err)
}

type promptRecorder struct {
	stubProvider
	prompts []string
}

func (p *promptRecorder) Stream(ctx context.Context, prompt string, fn func(string) error) error {
	p.prompts = append(p.prompts, prompt)
	return fn(p.reply)
}

func TestLocalGenerator_EmptySourcesAnswerFromOwnKnowledge(t *testing.T) {
	root := t.TempDir()
	vecDir := filepath.Join(root, "vector")
	builder := index.NewBuilder(vecDir, vectorstore.NewLocalStore(vecDir), llm.NewHashEmbedder(32), index.RuneCounter{})
	engine := rag.NewEngine(builder, nil, llm.NewHashEmbedder(32), filepath.Join(root, "notes"), filepath.Join(root, "default"))

	p := &promptRecorder{stubProvider: stubProvider{reply: "Canberra"}}
	in := service.GenerateInput{
		Question:     "capital of Australia?",
		Conversation: &storage.Conversation{},
		Provider:     p,
	}

	var answer string
	err := service.NewLocalGenerator(engine).Generate(context.Background(), in, func(s string) error {
		answer += s
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "Canberra", answer)
	require.Len(t, p.prompts, 1)
	assert.Contains(t, p.prompts[0], "use your maximum ability to answer")
	assert.Contains(t, p.prompts[0], "capital of Australia?")
}
