package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

var _ Provider = (*RemoteClient)(nil)

// RemoteClient proxies completions through the hosted completion service.
// The service answers with a chunked plain-text body; on failure it returns a
// non-200 status with a JSON body carrying a "code".
type RemoteClient struct {
	url    string
	token  string
	model  string
	client *http.Client
	header http.Header
}

// NewRemoteClient creates a client for the klee kind.
func NewRemoteClient(url, token, model string) *RemoteClient {
	return &RemoteClient{
		url:    url,
		token:  token,
		model:  model,
		client: newHTTPClient(),
		header: http.Header{},
	}
}

// WithHeader returns a copy of the client that also sends key: value on every request.
func (c *RemoteClient) WithHeader(key, value string) *RemoteClient {
	clone := *c
	clone.header = c.header.Clone()
	clone.header.Set(key, value)
	return &clone
}

type remoteRequest struct {
	Provider string    `json:"provider"`
	Messages []Message `json:"messages"`
	Model    string    `json:"model"`
}

// Complete collects the whole streamed body.
func (c *RemoteClient) Complete(ctx context.Context, prompt string) (string, error) {
	var sb strings.Builder
	err := c.Stream(ctx, prompt, func(chunk string) error {
		sb.WriteString(chunk)
		return nil
	})
	return sb.String(), err
}

// Stream sends a single user prompt.
func (c *RemoteClient) Stream(ctx context.Context, prompt string, fn func(chunk string) error) error {
	return c.StreamMessages(ctx, []Message{{Role: "user", Content: prompt}}, fn)
}

// StreamMessages posts the full message list and forwards each body read as a fragment.
func (c *RemoteClient) StreamMessages(ctx context.Context, messages []Message, fn func(chunk string) error) error {
	if c.url == "" {
		return fmt.Errorf("remote completion url is not configured")
	}

	body, err := json.Marshal(remoteRequest{
		Provider: upstreamProvider(c.model),
		Messages: messages,
		Model:    c.model,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return newStatusError(resp)
	}

	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			// Hold back a trailing partial rune until the next read completes it.
			cut := validPrefix(pending)
			if cut > 0 {
				if err := fn(string(pending[:cut])); err != nil {
					return fmt.Errorf("callback error: %w", err)
				}
				pending = append(pending[:0], pending[cut:]...)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return fmt.Errorf("failed to read stream: %w", readErr)
		}
	}
	if len(pending) > 0 {
		if err := fn(string(pending)); err != nil {
			return fmt.Errorf("callback error: %w", err)
		}
	}
	return nil
}

// validPrefix returns the length of the longest prefix of b that does not end inside a rune.
func validPrefix(b []byte) int {
	end := len(b)
	for i := 0; i < utf8.UTFMax && end-i > 0; i++ {
		start := end - i - 1
		if !utf8.RuneStart(b[start]) {
			continue
		}
		if utf8.FullRune(b[start:end]) {
			return end
		}
		return start
	}
	return end
}

// upstreamProvider picks the provider name the remote service expects from the model id.
func upstreamProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return "CLAUDE"
	case strings.Contains(m, "deepseek"):
		return "DEEPSEEK"
	default:
		return "OPENAI"
	}
}
