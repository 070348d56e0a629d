// Package provider defines the interface patchpilot uses to talk to an
// LLM backend. The core of the program only sees this contract; transport
// details (HTTP, SSE framing, retries) live in the implementations.
package provider

import "context"

// Client is the interface for LLM backends.
// Implementations must be safe for concurrent use.
type Client interface {
	// Complete sends a request and returns the full response.
	// The context controls cancellation and timeouts.
	Complete(ctx context.Context, req Request) (*Response, error)

	// Stream sends a request and returns a channel of response chunks.
	// The channel is closed when streaming completes (check chunk.Done).
	// Errors during streaming are delivered via chunk.Err.
	Stream(ctx context.Context, req Request) (<-chan StreamChunk, error)

	// Name returns a human-readable provider name (e.g. "openai:gpt-4o").
	Name() string

	// Close releases any resources held by the client.
	Close() error
}
