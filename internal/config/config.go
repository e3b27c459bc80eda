package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
// It is loaded once at startup and passed by value; nothing mutates it afterwards.
type Config struct {
	APIPort   string
	DBPath    string
	DataDir   string
	LogLevel  slog.Level
	LogFormat string

	// Provider is the default provider profile used when a conversation names none.
	Provider ProviderProfile
	// Providers holds named profiles loaded from PROVIDERS_FILE.
	Providers         map[string]ProviderProfile
	LLMRateLimitRPS   float64
	LLMRateLimitBurst int

	EmbeddingBaseURL    string
	EmbeddingModelName  string
	EmbeddingAPIKey     string
	EmbeddingVectorSize int

	VectorBackend string
	QdrantURL     string

	RemoteCompletionURL   string
	RemoteCompletionToken string

	ChunkSizes         []int
	ProgressMaxRetries int
	ProgressMaxWait    time.Duration
	WatchKnowledge     bool
}

// Vector backends.
const (
	VectorBackendFile   = "file"
	VectorBackendQdrant = "qdrant"
)

// Load reads configuration from environment variables and returns a Config.
// It applies defaults for optional fields and validates the rest.
// A .env file in the working directory or one of its parents is loaded first;
// variables already set in the environment take precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	wd, err := os.Getwd()
	if err == nil {
		dir := wd
		for i := 0; i < 5; i++ {
			envPath := filepath.Join(dir, ".env")
			if _, err := os.Stat(envPath); err == nil {
				_ = godotenv.Load(envPath)
				break
			}
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}

	cfg := Config{
		APIPort:   getEnv("API_PORT", "6190"),
		DBPath:    getEnv("DB_PATH", "./data/klee.db"),
		DataDir:   getEnv("DATA_DIR", "./data"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
		Provider: ProviderProfile{
			Name:    "default",
			Kind:    getEnv("LLM_PROVIDER", "local"),
			BaseURL: getEnv("LLM_BASE_URL", "http://localhost:8080"),
			APIKey:  getEnv("LLM_API_KEY", "dummy-key"),
			Model:   getEnv("LLM_MODEL", "Llama-3.1-8B-Instruct"),
		},
		EmbeddingBaseURL:      getEnv("EMBEDDING_BASE_URL", ""),
		EmbeddingModelName:    getEnv("EMBEDDING_MODEL_NAME", "bge-m3"),
		EmbeddingAPIKey:       getEnv("EMBEDDING_API_KEY", getEnv("LLM_API_KEY", "dummy-key")),
		VectorBackend:         getEnv("VECTOR_BACKEND", VectorBackendFile),
		QdrantURL:             getEnv("QDRANT_URL", "http://localhost:6333"),
		RemoteCompletionURL:   getEnv("REMOTE_COMPLETION_URL", ""),
		RemoteCompletionToken: getEnv("REMOTE_COMPLETION_TOKEN", ""),
	}

	if cfg.LogLevel, err = parseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return Config{}, err
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return Config{}, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat)
	}

	if cfg.EmbeddingVectorSize, err = getInt("EMBEDDING_VECTOR_SIZE", 384); err != nil {
		return Config{}, err
	}
	if cfg.EmbeddingVectorSize <= 0 {
		return Config{}, fmt.Errorf("EMBEDDING_VECTOR_SIZE must be greater than 0")
	}

	if cfg.LLMRateLimitRPS, err = getFloat("LLM_RATE_LIMIT_RPS", 0); err != nil {
		return Config{}, err
	}
	if cfg.LLMRateLimitBurst, err = getInt("LLM_RATE_LIMIT_BURST", 4); err != nil {
		return Config{}, err
	}

	if cfg.ChunkSizes, err = parseChunkSizes(getEnv("CHUNK_SIZES", "2048,512,128")); err != nil {
		return Config{}, err
	}

	if cfg.ProgressMaxRetries, err = getInt("PROGRESS_MAX_RETRIES", 3); err != nil {
		return Config{}, err
	}
	if cfg.ProgressMaxRetries <= 0 {
		return Config{}, fmt.Errorf("PROGRESS_MAX_RETRIES must be greater than 0")
	}
	if cfg.ProgressMaxWait, err = getDuration("PROGRESS_MAX_WAIT", 0); err != nil {
		return Config{}, err
	}

	if cfg.WatchKnowledge, err = getBool("WATCH_KNOWLEDGE", false); err != nil {
		return Config{}, err
	}

	switch cfg.VectorBackend {
	case VectorBackendFile, VectorBackendQdrant:
	default:
		return Config{}, fmt.Errorf("VECTOR_BACKEND must be %q or %q, got %q", VectorBackendFile, VectorBackendQdrant, cfg.VectorBackend)
	}

	if err := cfg.Provider.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid default provider: %w", err)
	}

	cfg.Providers = map[string]ProviderProfile{}
	if path := getEnv("PROVIDERS_FILE", ""); path != "" {
		profiles, err := LoadProviders(path)
		if err != nil {
			return Config{}, err
		}
		cfg.Providers = profiles
	}

	for _, dir := range []string{filepath.Dir(cfg.DBPath), cfg.DataDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return Config{}, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	return cfg, nil
}

// IndexDir is where per-source index directories live.
func (c Config) IndexDir() string {
	return filepath.Join(c.DataDir, "vector")
}

// NotesDir is where note snapshots (store.txt) are written before indexing.
func (c Config) NotesDir() string {
	return filepath.Join(c.DataDir, "notes")
}

// DefaultSourceDir backs the fallback retriever used when a question has no sources.
func (c Config) DefaultSourceDir() string {
	return filepath.Join(c.DataDir, "default")
}

// Profile returns the named provider profile, falling back to the default provider.
func (c Config) Profile(name string) (ProviderProfile, bool) {
	if name == "" || name == c.Provider.Name {
		return c.Provider, true
	}
	p, ok := c.Providers[name]
	return p, ok
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	return v, nil
}

func getFloat(key string, defaultValue float64) (float64, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid number: %w", key, err)
	}
	return v, nil
}

func getBool(key string, defaultValue bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	return v, nil
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration: %w", key, err)
	}
	if v < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return v, nil
}

func parseLevel(raw string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(raw)); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL is invalid: %w", err)
	}
	return level, nil
}

// parseChunkSizes parses a comma separated, strictly decreasing list of token sizes.
func parseChunkSizes(raw string) ([]int, error) {
	parts := strings.Split(raw, ",")
	sizes := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("CHUNK_SIZES must be integers: %w", err)
		}
		if n <= 0 {
			return nil, fmt.Errorf("CHUNK_SIZES must be positive, got %d", n)
		}
		if len(sizes) > 0 && n >= sizes[len(sizes)-1] {
			return nil, fmt.Errorf("CHUNK_SIZES must be ordered coarsest to finest, got %q", raw)
		}
		sizes = append(sizes, n)
	}
	if len(sizes) == 0 {
		return nil, fmt.Errorf("CHUNK_SIZES must not be empty")
	}
	return sizes, nil
}
