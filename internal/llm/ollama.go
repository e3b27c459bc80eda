package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

const ollamaDefaultBaseURL = "http://localhost:11434"

var _ Provider = (*OllamaClient)(nil)

// OllamaClient talks to a local Ollama server through /api/generate.
type OllamaClient struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaClient creates a client for the ollama kind.
func NewOllamaClient(baseURL, model string) *OllamaClient {
	if baseURL == "" {
		baseURL = ollamaDefaultBaseURL
	}
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  newHTTPClient(),
	}
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

// Complete runs a non-streaming generate call.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.generate(ctx, prompt, false)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	var out ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama error: %s", out.Error)
	}
	return out.Response, nil
}

// Stream reads the newline-delimited JSON objects Ollama emits while generating.
func (c *OllamaClient) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	resp, err := c.generate(ctx, prompt, true)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var part ollamaGenerateResponse
		if err := json.Unmarshal(line, &part); err != nil {
			continue
		}
		if part.Error != "" {
			return fmt.Errorf("ollama error: %s", part.Error)
		}
		if part.Response != "" {
			if err := fn(part.Response); err != nil {
				return fmt.Errorf("callback error: %w", err)
			}
		}
		if part.Done {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read stream: %w", err)
	}
	return nil
}

func (c *OllamaClient) generate(ctx context.Context, prompt string, stream bool) (*http.Response, error) {
	body, err := json.Marshal(ollamaGenerateRequest{Model: c.model, Prompt: prompt, Stream: stream})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() {
			_ = resp.Body.Close()
		}()
		return nil, newStatusError(resp)
	}
	return resp, nil
}
