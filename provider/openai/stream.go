package openai

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/fuwadog/patchpilot/provider"
)

// streamChunk is one SSE data payload from /chat/completions.
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *wireUsage `json:"usage"`
}

// Stream implements provider.Client. The connection attempt is retried
// with backoff; once chunks start flowing, failures surface on the
// channel via chunk.Err and are not retried (a partial stream cannot be
// transparently resumed).
func (c *Client) Stream(ctx context.Context, req provider.Request) (<-chan provider.StreamChunk, error) {
	var body io.ReadCloser
	var lastErr error
	for attempt := 0; attempt < c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.backoff(ctx, attempt); err != nil {
				return nil, err
			}
			slog.Debug("retrying stream request", "attempt", attempt+1, "error", lastErr)
		}
		var err error
		body, err = c.do(ctx, "stream", c.buildRequest(req, true))
		if err == nil {
			break
		}
		lastErr = err
		if !provider.IsRetryable(err) {
			return nil, err
		}
	}
	if body == nil {
		return nil, provider.NewError(providerName, "stream",
			fmt.Errorf("all %d attempts failed: %w", c.cfg.MaxRetries, lastErr), false)
	}

	out := make(chan provider.StreamChunk, 16)
	go c.readStream(body, out)
	return out, nil
}

// readStream parses SSE lines from the response body into chunks.
func (c *Client) readStream(body io.ReadCloser, out chan<- provider.StreamChunk) {
	defer close(out)
	defer body.Close()

	var usage *provider.TokenUsage

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Debug("failed to parse stream event", "error", err, "payload", payload)
			continue
		}

		if chunk.Usage != nil {
			usage = &provider.TokenUsage{
				PromptTokens:     chunk.Usage.PromptTokens,
				CompletionTokens: chunk.Usage.CompletionTokens,
				TotalTokens:      chunk.Usage.TotalTokens,
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content == "" && delta.ReasoningContent == "" {
			continue
		}
		out <- provider.StreamChunk{
			Content:   delta.Content,
			Reasoning: delta.ReasoningContent,
		}
	}

	if err := scanner.Err(); err != nil {
		out <- provider.StreamChunk{
			Err: provider.NewError(providerName, "stream", fmt.Errorf("read stream: %w", err), false),
		}
		return
	}
	out <- provider.StreamChunk{Done: true, Usage: usage}
}
