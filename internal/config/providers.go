package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Provider kinds accepted in profiles. internal/llm turns these into its closed Kind type.
var knownKinds = map[string]struct{}{
	"ollama":   {},
	"openai":   {},
	"claude":   {},
	"deepseek": {},
	"local":    {},
	"klee":     {},
}

// ProviderProfile describes one language-model backend and its credentials.
type ProviderProfile struct {
	Name    string `toml:"-"`
	Kind    string `toml:"kind"`
	BaseURL string `toml:"base_url"`
	APIKey  string `toml:"api_key"`
	Model   string `toml:"model"`
}

// Validate checks that the profile names a supported kind and a model.
func (p ProviderProfile) Validate() error {
	if _, ok := knownKinds[p.Kind]; !ok {
		return fmt.Errorf("unknown provider kind %q", p.Kind)
	}
	if p.Model == "" && p.Kind != "klee" {
		return fmt.Errorf("provider %q has no model", p.Name)
	}
	return nil
}

type providersFile struct {
	Providers map[string]ProviderProfile `toml:"providers"`
}

// LoadProviders reads named provider profiles from a TOML file:
//
//	[providers.work-claude]
//	kind = "claude"
//	api_key = "..."
//	model = "claude-3-5-sonnet-latest"
func LoadProviders(path string) (map[string]ProviderProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read providers file: %w", err)
	}

	var file providersFile
	if err := toml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse providers file %s: %w", path, err)
	}

	profiles := make(map[string]ProviderProfile, len(file.Providers))
	for name, p := range file.Providers {
		p.Name = name
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid provider %q: %w", name, err)
		}
		profiles[name] = p
	}
	return profiles, nil
}
