// Package openai implements promptflow.Generator against an OpenAI-compatible
// chat-completions endpoint (OpenAI, LM Studio, Ollama, vLLM, ...).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/meikuraledutech/promptflow"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini"
	defaultTimeout = 60 * time.Second
)

// Client generates text with the chat-completions API.
type Client struct {
	baseURL      string
	apiKey       string
	model        string
	systemPrompt string
	httpClient   *http.Client
}

// Compile-time check: Client must implement promptflow.Generator.
var _ promptflow.Generator = (*Client)(nil)

// Option configures optional Client behavior.
type Option func(*Client)

// WithBaseURL overrides the API base URL, e.g. "http://localhost:1234/v1".
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(url, "/") }
}

// WithAPIKey sets the bearer token. Local servers usually need none.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithModel selects the model name sent with every request.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithSystemPrompt prepends a system message to every request.
func WithSystemPrompt(prompt string) Option {
	return func(c *Client) { c.systemPrompt = prompt }
}

// WithHTTPClient replaces the HTTP client, including its timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Client with defaults for anything not set by opts.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type chatRequest struct {
	Model    string                   `json:"model"`
	Messages []promptflow.ChatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message promptflow.ChatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generate sends prompt as the user message and returns the first choice's content.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var messages []promptflow.ChatMessage
	if c.systemPrompt != "" {
		messages = append(messages, promptflow.ChatMessage{Role: "system", Content: c.systemPrompt})
	}
	messages = append(messages, promptflow.ChatMessage{Role: "user", Content: prompt})

	body, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return "", fmt.Errorf("openai: marshal request: %w", err)
	}

	url := c.baseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("openai: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("openai: send request: %w", err)
	}
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			slog.Warn("failed to close response body", "error", closeErr, "url", url)
		}
	}()

	respBody, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("openai: read response: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("openai: status %d: %s", res.StatusCode, preview(respBody))
	}

	var out chatResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("openai: decode response %s: %w", preview(respBody), err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("openai: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai: response without choices")
	}
	return out.Choices[0].Message.Content, nil
}

func preview(b []byte) string {
	const limit = 200
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
