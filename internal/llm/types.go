package llm

import (
	"context"
	"fmt"
)

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	Temperature float32
}

// Provider is an opaque text-completion backend.
// Complete blocks for the full reply; Stream invokes fn once per fragment, in order,
// and stops pulling from the backend as soon as fn returns an error.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Stream(ctx context.Context, prompt string, fn func(chunk string) error) error
}

// Kind names a provider backend. The set is closed; see New.
type Kind string

const (
	KindOllama   Kind = "ollama"
	KindOpenAI   Kind = "openai"
	KindClaude   Kind = "claude"
	KindDeepSeek Kind = "deepseek"
	KindLocal    Kind = "local"
	KindKlee     Kind = "klee"
)

// Kinds lists every supported provider kind.
var Kinds = []Kind{KindOllama, KindOpenAI, KindClaude, KindDeepSeek, KindLocal, KindKlee}

// ParseKind converts a provider id string into a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown provider kind %q", s)
}

// IsLocal reports whether the kind runs on this machine and holds a model in memory.
func (k Kind) IsLocal() bool {
	return k == KindLocal || k == KindOllama
}

// IsRemote reports whether answers for this kind are proxied through the remote completion service.
func (k Kind) IsRemote() bool {
	return k == KindKlee
}

// StatusError is returned when a backend answers with a non-200 status.
type StatusError struct {
	StatusCode int
	Body       string
	// Code is the backend's machine-readable error code, when it sent one.
	Code string
	// RetryAfter is the Retry-After header in seconds, or 0.
	RetryAfter int
}

func (e *StatusError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("bad status %d: %s", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("bad status %d: %s", e.StatusCode, e.Body)
}
