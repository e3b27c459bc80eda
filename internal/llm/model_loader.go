package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"klee-ai/internal/apperr"
	"klee-ai/internal/contextutil"
)

// ModelLoader loads and unloads models on a local llama.cpp router server
// through its /models endpoints.
type ModelLoader struct {
	baseURL      string
	client       *http.Client
	pollInterval time.Duration
	maxAttempts  int
}

// NewModelLoader creates a new model loader.
func NewModelLoader(baseURL string) *ModelLoader {
	return &ModelLoader{
		baseURL:      strings.TrimRight(baseURL, "/"),
		client:       newHTTPClient(),
		pollInterval: time.Second,
		maxAttempts:  30,
	}
}

type modelRequest struct {
	Model string `json:"model"`
}

// LoadModelResponse represents the response from the load and unload endpoints.
type LoadModelResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ModelStatus represents the status of a model from the /models endpoint.
type ModelStatus struct {
	ID      string `json:"id"`
	InCache bool   `json:"in_cache"`
	Status  struct {
		Value    string `json:"value"`
		ExitCode *int   `json:"exit_code,omitempty"`
		Failed   *bool  `json:"failed,omitempty"`
	} `json:"status"`
}

// ModelsResponse represents the response from the /models endpoint.
type ModelsResponse struct {
	Data []ModelStatus `json:"data"`
}

func (ml *ModelLoader) status(ctx context.Context, modelName string) (*ModelStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ml.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	resp, err := ml.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to check model status: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var modelsResp ModelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, fmt.Errorf("failed to decode models response: %w", err)
	}

	for _, model := range modelsResp.Data {
		if model.ID == modelName {
			return &model, nil
		}
	}
	return nil, nil
}

// IsModelLoaded checks if a model is already loaded (in cache).
func (ml *ModelLoader) IsModelLoaded(ctx context.Context, modelName string) (bool, error) {
	st, err := ml.status(ctx, modelName)
	if err != nil {
		return false, err
	}
	return st != nil && st.InCache, nil
}

func (ml *ModelLoader) post(ctx context.Context, path, modelName string) error {
	body, err := json.Marshal(modelRequest{Model: modelName})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ml.baseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := ml.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var out LoadModelResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	if !out.Success {
		return fmt.Errorf("%s failed: %s", path, out.Error)
	}
	return nil
}

// LoadModel loads a model unless it is already in cache, then polls until the
// server reports it loaded or failed.
func (ml *ModelLoader) LoadModel(ctx context.Context, modelName string) error {
	if loaded, err := ml.IsModelLoaded(ctx, modelName); err == nil && loaded {
		return nil
	}

	if err := ml.post(ctx, "/models/load", modelName); err != nil {
		return err
	}

	// /models/load returns before loading finishes, so poll for the outcome.
	for i := 0; i < ml.maxAttempts; i++ {
		st, err := ml.status(ctx, modelName)
		if err == nil && st != nil {
			if st.InCache {
				return nil
			}
			if st.Status.Failed != nil && *st.Status.Failed {
				exitCode := 0
				if st.Status.ExitCode != nil {
					exitCode = *st.Status.ExitCode
				}
				return fmt.Errorf("model load failed with exit code %d", exitCode)
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ml.pollInterval):
		}
	}

	return fmt.Errorf("model did not load within timeout period")
}

// UnloadModel asks the server to release a model's memory.
func (ml *ModelLoader) UnloadModel(ctx context.Context, modelName string) error {
	return ml.post(ctx, "/models/unload", modelName)
}

// ModelGuard hands out reference-counted model handles. The model is loaded on
// first Acquire and unloaded when the last holder releases it.
type ModelGuard struct {
	loader *ModelLoader

	mu   sync.Mutex
	refs map[string]int
}

// NewModelGuard creates a guard over loader.
func NewModelGuard(loader *ModelLoader) *ModelGuard {
	return &ModelGuard{loader: loader, refs: make(map[string]int)}
}

// Acquire makes sure modelName is loaded and returns a release func that must
// be called exactly once, typically with defer.
func (g *ModelGuard) Acquire(ctx context.Context, modelName string) (func(), error) {
	g.mu.Lock()
	first := g.refs[modelName] == 0
	g.refs[modelName]++
	g.mu.Unlock()

	if first {
		if err := g.loader.LoadModel(ctx, modelName); err != nil {
			g.mu.Lock()
			g.refs[modelName]--
			if g.refs[modelName] <= 0 {
				delete(g.refs, modelName)
			}
			g.mu.Unlock()
			return nil, apperr.Wrap(apperr.ErrModelLoad, "llm.ModelGuard.Acquire", err)
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			g.mu.Lock()
			g.refs[modelName]--
			last := g.refs[modelName] <= 0
			if last {
				delete(g.refs, modelName)
			}
			g.mu.Unlock()

			if !last {
				return
			}
			unloadCtx, cancel := context.WithTimeout(contextutil.Detach(ctx), 10*time.Second)
			defer cancel()
			if err := g.loader.UnloadModel(unloadCtx, modelName); err != nil {
				contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to unload model", "model", modelName, "error", err)
			}
		})
	}
	return release, nil
}

// Holders returns how many handles are outstanding for modelName.
func (g *ModelGuard) Holders(modelName string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.refs[modelName]
}
