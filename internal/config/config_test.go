package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// setEnv sets an environment variable, ignoring errors (for test setup)
func setEnv(key, value string) {
	_ = os.Setenv(key, value)
}

// unsetEnv unsets an environment variable, ignoring errors (for test cleanup)
func unsetEnv(key string) {
	_ = os.Unsetenv(key)
}

var envVars = []string{
	"API_PORT", "DB_PATH", "DATA_DIR", "LOG_LEVEL", "LOG_FORMAT",
	"LLM_PROVIDER", "LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL",
	"LLM_RATE_LIMIT_RPS", "LLM_RATE_LIMIT_BURST",
	"EMBEDDING_BASE_URL", "EMBEDDING_MODEL_NAME", "EMBEDDING_API_KEY", "EMBEDDING_VECTOR_SIZE",
	"VECTOR_BACKEND", "QDRANT_URL", "REMOTE_COMPLETION_URL", "REMOTE_COMPLETION_TOKEN",
	"CHUNK_SIZES", "PROGRESS_MAX_RETRIES", "PROGRESS_MAX_WAIT", "WATCH_KNOWLEDGE", "PROVIDERS_FILE",
}

func clearEnv(t *testing.T) {
	t.Helper()
	originalEnv := make(map[string]string)
	for _, key := range envVars {
		originalEnv[key] = os.Getenv(key)
		unsetEnv(key)
	}
	t.Cleanup(func() {
		for key, value := range originalEnv {
			if value != "" {
				setEnv(key, value)
			} else {
				unsetEnv(key)
			}
		}
	})
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		setupEnv    func(*testing.T)
		wantErr     bool
		checkConfig func(Config) bool
	}{
		{
			name:     "defaults",
			setupEnv: func(t *testing.T) {},
			checkConfig: func(cfg Config) bool {
				return cfg.APIPort == "6190" &&
					cfg.Provider.Kind == "local" &&
					cfg.VectorBackend == VectorBackendFile &&
					len(cfg.ChunkSizes) == 3 && cfg.ChunkSizes[0] == 2048 && cfg.ChunkSizes[2] == 128 &&
					cfg.ProgressMaxRetries == 3 &&
					cfg.ProgressMaxWait == 0 &&
					cfg.LogLevel == slog.LevelInfo
			},
		},
		{
			name: "overrides",
			setupEnv: func(t *testing.T) {
				setEnv("LLM_PROVIDER", "ollama")
				setEnv("LLM_MODEL", "llama3.1")
				setEnv("CHUNK_SIZES", "1024, 256")
				setEnv("PROGRESS_MAX_WAIT", "2s")
				setEnv("LOG_LEVEL", "debug")
				setEnv("WATCH_KNOWLEDGE", "true")
			},
			checkConfig: func(cfg Config) bool {
				return cfg.Provider.Kind == "ollama" &&
					cfg.Provider.Model == "llama3.1" &&
					len(cfg.ChunkSizes) == 2 &&
					cfg.ProgressMaxWait == 2*time.Second &&
					cfg.LogLevel == slog.LevelDebug &&
					cfg.WatchKnowledge
			},
		},
		{
			name:     "unknown provider",
			setupEnv: func(t *testing.T) { setEnv("LLM_PROVIDER", "gemini") },
			wantErr:  true,
		},
		{
			name:     "chunk sizes not decreasing",
			setupEnv: func(t *testing.T) { setEnv("CHUNK_SIZES", "128,512") },
			wantErr:  true,
		},
		{
			name:     "invalid vector size",
			setupEnv: func(t *testing.T) { setEnv("EMBEDDING_VECTOR_SIZE", "abc") },
			wantErr:  true,
		},
		{
			name:     "zero retries",
			setupEnv: func(t *testing.T) { setEnv("PROGRESS_MAX_RETRIES", "0") },
			wantErr:  true,
		},
		{
			name:     "unknown vector backend",
			setupEnv: func(t *testing.T) { setEnv("VECTOR_BACKEND", "faiss") },
			wantErr:  true,
		},
		{
			name:     "bad log format",
			setupEnv: func(t *testing.T) { setEnv("LOG_FORMAT", "xml") },
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			dataDir := t.TempDir()
			setEnv("DATA_DIR", dataDir)
			setEnv("DB_PATH", filepath.Join(dataDir, "db", "klee.db"))
			tt.setupEnv(t)

			cfg, err := Load()
			if tt.wantErr {
				if err == nil {
					t.Error("Load() expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Load() unexpected error: %v", err)
			}
			if tt.checkConfig != nil && !tt.checkConfig(cfg) {
				t.Errorf("Load() config check failed: %+v", cfg)
			}
			if _, err := os.Stat(filepath.Join(dataDir, "db")); err != nil {
				t.Errorf("Load() did not create db directory: %v", err)
			}
		})
	}
}

func TestConfig_Profile(t *testing.T) {
	cfg := Config{
		Provider: ProviderProfile{Name: "default", Kind: "local", Model: "m"},
		Providers: map[string]ProviderProfile{
			"cloud": {Name: "cloud", Kind: "openai", Model: "gpt-4o"},
		},
	}

	if p, ok := cfg.Profile(""); !ok || p.Kind != "local" {
		t.Errorf("Profile(\"\") = %+v, %v", p, ok)
	}
	if p, ok := cfg.Profile("cloud"); !ok || p.Model != "gpt-4o" {
		t.Errorf("Profile(cloud) = %+v, %v", p, ok)
	}
	if _, ok := cfg.Profile("missing"); ok {
		t.Error("Profile(missing) should not be found")
	}
}

func TestLoadProviders(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "providers.toml")
	content := `
[providers.work]
kind = "claude"
api_key = "sk-test"
model = "claude-3-5-sonnet-latest"

[providers.home]
kind = "ollama"
base_url = "http://localhost:11434"
model = "qwen2.5"
`
	if err := os.WriteFile(valid, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	profiles, err := LoadProviders(valid)
	if err != nil {
		t.Fatalf("LoadProviders() error = %v", err)
	}
	if len(profiles) != 2 {
		t.Fatalf("LoadProviders() got %d profiles, want 2", len(profiles))
	}
	if profiles["work"].Name != "work" || profiles["work"].Kind != "claude" {
		t.Errorf("work profile = %+v", profiles["work"])
	}
	if profiles["home"].BaseURL != "http://localhost:11434" {
		t.Errorf("home profile = %+v", profiles["home"])
	}

	invalid := filepath.Join(dir, "bad.toml")
	if err := os.WriteFile(invalid, []byte("[providers.x]\nkind = \"bard\"\nmodel = \"m\"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProviders(invalid); err == nil {
		t.Error("LoadProviders() expected error for unknown kind")
	}

	if _, err := LoadProviders(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("LoadProviders() expected error for missing file")
	}
}
