package service_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"klee-ai/internal/apperr"
	"klee-ai/internal/config"
	"klee-ai/internal/llm"
	"klee-ai/internal/service"
)

func testConfig() config.Config {
	return config.Config{
		Provider: config.ProviderProfile{Name: "default", Kind: "local", BaseURL: "http://localhost:8080", Model: "qwen2.5"},
		Providers: map[string]config.ProviderProfile{
			"work": {Name: "work", Kind: "claude", APIKey: "k", Model: "claude-3-5-sonnet-latest"},
		},
		RemoteCompletionURL:   "https://remote.example/complete",
		RemoteCompletionToken: "tok",
	}
}

func TestProviderResolver_Resolve(t *testing.T) {
	r := service.NewProviderResolver(testConfig(), llm.NewRateLimiter(0, 1))

	tests := []struct {
		name      string
		kind      string
		model     string
		wantKind  llm.Kind
		wantModel string
	}{
		{name: "empty kind uses default", wantKind: llm.KindLocal, wantModel: "qwen2.5"},
		{name: "profile by kind", kind: "claude", wantKind: llm.KindClaude, wantModel: "claude-3-5-sonnet-latest"},
		{name: "model override", kind: "claude", model: "claude-3-5-haiku", wantKind: llm.KindClaude, wantModel: "claude-3-5-haiku"},
		{name: "klee without profile", kind: "klee", model: "gpt-4o", wantKind: llm.KindKlee, wantModel: "gpt-4o"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.kind, tt.model)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, got.Kind)
			assert.Equal(t, tt.wantModel, got.Model)
			assert.NotNil(t, got.Provider)
		})
	}
}

func TestProviderResolver_KleeStreamsMessages(t *testing.T) {
	got, err := service.NewProviderResolver(testConfig(), llm.NewRateLimiter(1, 1)).Resolve("klee", "")
	require.NoError(t, err)
	_, ok := got.Provider.(service.MessageStreamer)
	assert.True(t, ok, "remote provider must not be hidden behind the rate limiter")
}

func TestProviderResolver_UnknownKind(t *testing.T) {
	_, err := service.NewProviderResolver(testConfig(), nil).Resolve("deepseek", "")
	assert.True(t, errors.Is(err, apperr.ErrConfig), "err = %v", err)
}
