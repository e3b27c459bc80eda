package llm

import (
	"fmt"

	"klee-ai/internal/apperr"
)

// ProviderConfig is the per-request selection of a backend and its credentials.
type ProviderConfig struct {
	Kind    Kind
	BaseURL string
	APIKey  string
	Model   string
}

const (
	openAIDefaultBaseURL   = "https://api.openai.com"
	deepSeekDefaultBaseURL = "https://api.deepseek.com"
)

// New resolves cfg into a concrete Provider. Every Kind is handled here; an
// unknown kind is a configuration error.
func New(cfg ProviderConfig) (Provider, error) {
	switch cfg.Kind {
	case KindOpenAI:
		return NewClient(withDefault(cfg.BaseURL, openAIDefaultBaseURL), cfg.APIKey, cfg.Model), nil
	case KindDeepSeek:
		return NewClient(withDefault(cfg.BaseURL, deepSeekDefaultBaseURL), cfg.APIKey, cfg.Model), nil
	case KindLocal:
		if cfg.BaseURL == "" {
			return nil, apperr.New(apperr.ErrConfig, "llm.New", "local provider needs a base url")
		}
		return NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case KindClaude:
		if cfg.APIKey == "" {
			return nil, apperr.New(apperr.ErrConfig, "llm.New", "claude provider needs an api key")
		}
		return NewAnthropicClient(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	case KindOllama:
		return NewOllamaClient(cfg.BaseURL, cfg.Model), nil
	case KindKlee:
		return NewRemoteClient(cfg.BaseURL, cfg.APIKey, cfg.Model), nil
	default:
		return nil, apperr.Wrap(apperr.ErrConfig, "llm.New", fmt.Errorf("unknown provider kind %q", cfg.Kind))
	}
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
