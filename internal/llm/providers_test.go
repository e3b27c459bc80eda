package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"klee-ai/internal/apperr"
)

func TestAnthropicClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("expected /v1/messages, got %s", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "secret" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}
		var req anthropicRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.MaxTokens != anthropicMaxTokens || req.Model != "claude-3-5-sonnet" {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"Hello "},{"type":"tool_use"},{"type":"text","text":"there"}]}`))
	}))
	defer server.Close()

	got, err := NewAnthropicClient(server.URL, "secret", "claude-3-5-sonnet").Complete(context.Background(), "hi")
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if got != "Hello there" {
		t.Errorf("Complete() = %q, want %q", got, "Hello there")
	}
}

func TestAnthropicClient_Stream(t *testing.T) {
	tests := []struct {
		name       string
		events     []string
		wantChunks []string
		wantErr    bool
	}{
		{
			name: "deltas until message_stop",
			events: []string{
				`{"type":"message_start"}`,
				`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Sun"}}`,
				`{"type":"content_block_delta","delta":{"type":"text_delta","text":"light"}}`,
				`{"type":"message_stop"}`,
				`{"type":"content_block_delta","delta":{"type":"text_delta","text":"ignored"}}`,
			},
			wantChunks: []string{"Sun", "light"},
		},
		{
			name: "error event",
			events: []string{
				`{"type":"content_block_delta","delta":{"type":"text_delta","text":"a"}}`,
				`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`,
			},
			wantChunks: []string{"a"},
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				for _, e := range tt.events {
					_, _ = w.Write([]byte("event: x\ndata: " + e + "\n\n"))
				}
			}))
			defer server.Close()

			var got []string
			err := NewAnthropicClient(server.URL, "k", "m").Stream(context.Background(), "q", func(c string) error {
				got = append(got, c)
				return nil
			})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Stream() error = %v, wantErr %v", err, tt.wantErr)
			}
			if strings.Join(got, "|") != strings.Join(tt.wantChunks, "|") {
				t.Errorf("Stream() chunks = %q, want %q", got, tt.wantChunks)
			}
		})
	}
}

func TestOllamaClient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("expected /api/generate, got %s", r.URL.Path)
		}
		var req ollamaGenerateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if !req.Stream {
			_, _ = w.Write([]byte(`{"response":"full answer","done":true}`))
			return
		}
		_, _ = w.Write([]byte("{\"response\":\"part1\"}\n\n{\"response\":\"part2\"}\n{\"response\":\"\",\"done\":true}\n"))
	}))
	defer server.Close()

	client := NewOllamaClient(server.URL, "llama3")

	got, err := client.Complete(context.Background(), "q")
	if err != nil || got != "full answer" {
		t.Errorf("Complete() = %q, %v", got, err)
	}

	var chunks []string
	err = client.Stream(context.Background(), "q", func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	if strings.Join(chunks, "") != "part1part2" {
		t.Errorf("Stream() chunks = %q", chunks)
	}
}

func TestRemoteClient_StreamMessages(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Client") != "kleectl" {
			t.Errorf("X-Client = %q", r.Header.Get("X-Client"))
		}
		var req remoteRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Provider != "CLAUDE" || req.Model != "claude-3-haiku" || len(req.Messages) != 1 {
			t.Errorf("request = %+v", req)
		}

		flusher := w.(http.Flusher)
		// "你好" split in the middle of the first rune.
		payload := []byte("ok 你好")
		_, _ = w.Write(payload[:4])
		flusher.Flush()
		time.Sleep(10 * time.Millisecond)
		_, _ = w.Write(payload[4:])
	}))
	defer server.Close()

	client := NewRemoteClient(server.URL, "tok", "claude-3-haiku").WithHeader("X-Client", "kleectl")
	var chunks []string
	err := client.StreamMessages(context.Background(), []Message{{Role: "user", Content: "hi"}}, func(c string) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("StreamMessages() error = %v", err)
	}
	if strings.Join(chunks, "") != "ok 你好" {
		t.Errorf("StreamMessages() = %q", chunks)
	}
	for _, c := range chunks {
		if !utf8.ValidString(c) {
			t.Errorf("fragment %q is not valid UTF-8", c)
		}
	}
}

func TestRemoteClient_ErrorCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"code":"insufficient_credit"}`))
	}))
	defer server.Close()

	_, err := NewRemoteClient(server.URL, "tok", "gpt-4o").Complete(context.Background(), "q")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Complete() error = %v, want *StatusError", err)
	}
	if se.Code != "insufficient_credit" {
		t.Errorf("Code = %q, want insufficient_credit", se.Code)
	}
}

func TestUpstreamProvider(t *testing.T) {
	tests := map[string]string{
		"claude-3-haiku":    "CLAUDE",
		"DeepSeek-R1":       "DEEPSEEK",
		"gpt-4o":            "OPENAI",
		"":                  "OPENAI",
		"anthropic/claude3": "CLAUDE",
	}
	for model, want := range tests {
		if got := upstreamProvider(model); got != want {
			t.Errorf("upstreamProvider(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestValidPrefix(t *testing.T) {
	b := []byte("a你")
	if got := validPrefix(b); got != len(b) {
		t.Errorf("validPrefix(full) = %d, want %d", got, len(b))
	}
	if got := validPrefix(b[:2]); got != 1 {
		t.Errorf("validPrefix(partial) = %d, want 1", got)
	}
	if got := validPrefix(nil); got != 0 {
		t.Errorf("validPrefix(nil) = %d, want 0", got)
	}
}

type fakeProvider struct {
	calls atomic.Int32
	err   error
}

func (f *fakeProvider) Complete(ctx context.Context, prompt string) (string, error) {
	f.calls.Add(1)
	return "done", f.err
}

func (f *fakeProvider) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	f.calls.Add(1)
	if f.err != nil {
		return f.err
	}
	return fn("done")
}

func TestRateLimited(t *testing.T) {
	inner := &fakeProvider{err: &StatusError{StatusCode: http.StatusTooManyRequests, RetryAfter: 60}}
	limiter := NewRateLimiter(0, 1)
	p := RateLimited(inner, limiter)

	if _, err := p.Complete(context.Background(), "q"); err == nil {
		t.Fatal("Complete() expected error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := p.Stream(ctx, "q", func(string) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Stream() after 429 error = %v, want deadline exceeded", err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("inner called %d times, want 1", inner.calls.Load())
	}
}

func TestRateLimited_NilLimiter(t *testing.T) {
	inner := &fakeProvider{}
	if p := RateLimited(inner, nil); p != Provider(inner) {
		t.Error("RateLimited(nil) should return the provider unchanged")
	}
}

func newModelServer(t *testing.T, loads, unloads *atomic.Int32, fail bool) *httptest.Server {
	t.Helper()
	var inCache atomic.Bool
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/models":
			st := ModelStatus{ID: "qwen", InCache: inCache.Load()}
			if fail {
				failed, code := true, 3
				st.Status.Failed = &failed
				st.Status.ExitCode = &code
			}
			_ = json.NewEncoder(w).Encode(ModelsResponse{Data: []ModelStatus{st}})
		case "/models/load":
			loads.Add(1)
			if !fail {
				inCache.Store(true)
			}
			_, _ = w.Write([]byte(`{"success":true}`))
		case "/models/unload":
			unloads.Add(1)
			inCache.Store(false)
			_, _ = w.Write([]byte(`{"success":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestModelGuard_RefCounting(t *testing.T) {
	var loads, unloads atomic.Int32
	server := newModelServer(t, &loads, &unloads, false)
	defer server.Close()

	loader := NewModelLoader(server.URL)
	loader.pollInterval = time.Millisecond
	guard := NewModelGuard(loader)

	ctx := context.Background()
	release1, err := guard.Acquire(ctx, "qwen")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	release2, err := guard.Acquire(ctx, "qwen")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if guard.Holders("qwen") != 2 {
		t.Errorf("Holders() = %d, want 2", guard.Holders("qwen"))
	}

	release1()
	release1()
	if unloads.Load() != 0 {
		t.Error("model unloaded while still held")
	}
	release2()

	if loads.Load() != 1 {
		t.Errorf("loads = %d, want 1", loads.Load())
	}
	if unloads.Load() != 1 {
		t.Errorf("unloads = %d, want 1", unloads.Load())
	}
	if guard.Holders("qwen") != 0 {
		t.Errorf("Holders() = %d, want 0", guard.Holders("qwen"))
	}
}

func TestModelGuard_LoadFailure(t *testing.T) {
	var loads, unloads atomic.Int32
	server := newModelServer(t, &loads, &unloads, true)
	defer server.Close()

	loader := NewModelLoader(server.URL)
	loader.pollInterval = time.Millisecond
	guard := NewModelGuard(loader)

	_, err := guard.Acquire(context.Background(), "qwen")
	if !errors.Is(err, apperr.ErrModelLoad) {
		t.Fatalf("Acquire() error = %v, want ErrModelLoad", err)
	}
	if guard.Holders("qwen") != 0 {
		t.Errorf("Holders() = %d after failure, want 0", guard.Holders("qwen"))
	}
}
