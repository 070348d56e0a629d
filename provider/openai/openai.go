// Package openai implements provider.Client against an OpenAI-compatible
// chat-completions endpoint (NVIDIA Build, Ollama, vLLM, OpenAI itself).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fuwadog/patchpilot/provider"
)

const providerName = "openai"

// Config holds client configuration.
type Config struct {
	// BaseURL is the API root, e.g. "https://integrate.api.nvidia.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token. Use "ollama" for local Ollama.
	APIKey string

	// Model is the default model for requests that leave Model empty.
	Model string

	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int

	// RetryDelay is the base backoff delay, doubled per attempt.
	RetryDelay time.Duration

	// HTTPClient overrides the default client (mainly for tests).
	HTTPClient *http.Client
}

// Client talks to an OpenAI-compatible chat-completions endpoint.
type Client struct {
	cfg  Config
	http *http.Client
}

// New creates a client. BaseURL and Model are required.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("openai: base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai: model is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 1500 * time.Millisecond
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// Name implements provider.Client.
func (c *Client) Name() string {
	return providerName + ":" + c.cfg.Model
}

// Close implements provider.Client.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// chatRequest is the wire format for /chat/completions.
type chatRequest struct {
	Model         string         `json:"model"`
	Messages      []wireMessage  `json:"messages"`
	Temperature   float64        `json:"temperature,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Complete implements provider.Client. Transient failures are retried
// with exponential backoff up to MaxRetries attempts.
func (c *Client) Complete(ctx context.Context, req provider.Request) (*provider.Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
		}
		resp, err := c.completeOnce(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !provider.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, provider.NewError(providerName, "complete",
		fmt.Errorf("all %d attempts failed: %w", c.cfg.MaxRetries, lastErr), false)
}

func (c *Client) completeOnce(ctx context.Context, req provider.Request) (*provider.Response, error) {
	body, err := c.do(ctx, "complete", c.buildRequest(req, false))
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(body).Decode(&parsed); err != nil {
		return nil, provider.NewError(providerName, "complete",
			fmt.Errorf("decode response: %w", err), false)
	}
	if len(parsed.Choices) == 0 {
		return nil, provider.NewError(providerName, "complete",
			errors.New("response contained no choices"), false)
	}

	resp := &provider.Response{
		Content:      parsed.Choices[0].Message.Content,
		Model:        parsed.Model,
		FinishReason: parsed.Choices[0].FinishReason,
	}
	if parsed.Usage != nil {
		resp.Usage = provider.TokenUsage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		}
	}
	return resp, nil
}

// buildRequest converts the provider request to the wire format.
func (c *Client) buildRequest(req provider.Request, stream bool) chatRequest {
	model := req.Model
	if model == "" {
		model = c.cfg.Model
	}
	messages := make([]wireMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = wireMessage{Role: string(m.Role), Content: m.Content}
	}
	wire := chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      stream,
	}
	if stream {
		wire.StreamOptions = &streamOptions{IncludeUsage: true}
	}
	return wire
}

// do posts the request and returns the response body, translating HTTP
// failures into the provider error taxonomy.
func (c *Client) do(ctx context.Context, op string, wire chatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, provider.NewError(providerName, op, fmt.Errorf("encode request: %w", err), false)
	}

	url := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, provider.NewError(providerName, op, err, false)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, provider.NewError(providerName, op, provider.ErrTimeout, true)
		}
		return nil, provider.NewError(providerName, op,
			fmt.Errorf("%w: %v", provider.ErrUnavailable, err), true)
	}

	if httpResp.StatusCode != http.StatusOK {
		defer httpResp.Body.Close()
		return nil, c.statusError(op, httpResp)
	}
	return httpResp.Body, nil
}

// statusError maps a non-200 response to a sentinel error.
func (c *Client) statusError(op string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(raw))
	var parsed apiError
	if err := json.Unmarshal(raw, &parsed); err == nil && parsed.Error.Message != "" {
		msg = parsed.Error.Message
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return provider.NewError(providerName, op,
			fmt.Errorf("%w: %s", provider.ErrAuth, msg), false)
	case resp.StatusCode == http.StatusTooManyRequests:
		return provider.NewError(providerName, op,
			fmt.Errorf("%w: %s", provider.ErrRateLimited, msg), true)
	case resp.StatusCode >= 500:
		return provider.NewError(providerName, op,
			fmt.Errorf("%w: HTTP %d: %s", provider.ErrUnavailable, resp.StatusCode, msg), true)
	case resp.StatusCode == http.StatusBadRequest &&
		strings.Contains(strings.ToLower(msg), "context length"):
		return provider.NewError(providerName, op,
			fmt.Errorf("%w: %s", provider.ErrContextTooLong, msg), false)
	default:
		return provider.NewError(providerName, op,
			fmt.Errorf("%w: HTTP %d: %s", provider.ErrInvalidRequest, resp.StatusCode, msg), false)
	}
}

// backoff sleeps for the attempt's backoff window or until ctx is done.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.cfg.RetryDelay << (attempt - 1)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
