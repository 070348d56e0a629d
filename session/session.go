// Package session drives one interactive chat session: it assembles the
// prompt from the system message, the materialized file context, and the
// rolling conversation history, streams the provider, and feeds reported
// usage back into the context manager.
package session

import (
	gocontext "context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/fuwadog/patchpilot/context"
	"github.com/fuwadog/patchpilot/provider"
	"github.com/fuwadog/patchpilot/tokens"
)

// Sink receives streamed model output as it arrives.
type Sink interface {
	// Content receives response text.
	Content(text string)

	// Reasoning receives thinking tokens for models that expose them.
	Reasoning(text string)
}

// Config holds session parameters.
type Config struct {
	// SystemPrompt is prepended to every request.
	SystemPrompt string

	// Temperature for provider requests.
	Temperature float64

	// MaxResponseTokens caps the model response length.
	MaxResponseTokens int

	// MaxPromptTokens bounds the assembled prompt; oldest history
	// messages are dropped until the estimate fits.
	MaxPromptTokens int

	// MaxHistoryMessages bounds the rolling conversation window.
	MaxHistoryMessages int
}

// Session owns one conversation with the model.
type Session struct {
	id      string
	cfg     Config
	client  provider.Client
	ctx     *context.Manager
	counter tokens.Counter

	mu      sync.Mutex
	history []provider.Message
}

// New creates a session over the given provider and session context.
func New(client provider.Client, ctx *context.Manager, cfg Config) *Session {
	return &Session{
		id:      uuid.NewString(),
		cfg:     cfg,
		client:  client,
		ctx:     ctx,
		counter: tokens.NewEstimatingCounter(),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Send sends userText to the model, streaming output to sink, and
// returns the full assistant reply. When record is true the user message
// and the reply enter the conversation history; pass false for internal
// structured prompts (the /fix family) that should stay ephemeral.
//
// Usage is reported to the context manager only when the provider
// delivers a complete final chunk, so a cancelled call never applies a
// partial usage pair.
func (s *Session) Send(ctx gocontext.Context, userText string, record bool, sink Sink) (string, error) {
	var ephemeral string
	s.mu.Lock()
	if record {
		s.history = append(s.history, provider.NewMessage(provider.RoleUser, userText))
		s.trimHistoryWindow()
	} else {
		ephemeral = userText
	}
	messages := s.assemble(ephemeral)
	s.mu.Unlock()

	chunks, err := s.client.Stream(ctx, provider.Request{
		Messages:    messages,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxResponseTokens,
	})
	if err != nil {
		return "", err
	}

	var full string
	for chunk := range chunks {
		if chunk.Err != nil {
			return full, chunk.Err
		}
		if chunk.Reasoning != "" && sink != nil {
			sink.Reasoning(chunk.Reasoning)
		}
		if chunk.Content != "" {
			full += chunk.Content
			if sink != nil {
				sink.Content(chunk.Content)
			}
		}
		if chunk.Done && chunk.Usage != nil {
			s.ctx.ReportUsage(chunk.Usage.PromptTokens, chunk.Usage.CompletionTokens)
			slog.Debug("usage reported",
				"session", s.id,
				"prompt_tokens", chunk.Usage.PromptTokens,
				"completion_tokens", chunk.Usage.CompletionTokens)
		}
	}

	if full != "" && record {
		s.mu.Lock()
		s.history = append(s.history, provider.NewMessage(provider.RoleAssistant, full))
		s.trimHistoryWindow()
		s.mu.Unlock()
	}
	return full, nil
}

// RecordUserIntent appends a user message to the history without sending
// it, used to keep a trace of /fix-style commands whose structured prompt
// is sent ephemerally.
func (s *Session) RecordUserIntent(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, provider.NewMessage(provider.RoleUser, text))
	s.trimHistoryWindow()
}

// HistoryLen returns the number of messages in the rolling window.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// Reset clears the conversation history. The session context manager is
// reset separately by the owner.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = nil
}

// assemble builds the message list: system prompt, materialized file
// context, conversation history, and an optional ephemeral user message.
// Oldest history messages are dropped while the token estimate exceeds
// the prompt budget. Caller must hold the mutex.
func (s *Session) assemble(ephemeral string) []provider.Message {
	fileContext := s.ctx.Materialize()

	fixed := s.counter.Count(s.cfg.SystemPrompt) + s.counter.Count(fileContext) + s.counter.Count(ephemeral)

	history := s.history
	for len(history) > 0 && fixed+s.historyTokens(history) > s.cfg.MaxPromptTokens {
		history = history[1:]
	}
	if dropped := len(s.history) - len(history); dropped > 0 {
		slog.Debug("dropped oldest history messages to fit prompt budget",
			"session", s.id, "dropped", dropped)
	}

	messages := make([]provider.Message, 0, len(history)+3)
	if s.cfg.SystemPrompt != "" {
		messages = append(messages, provider.NewMessage(provider.RoleSystem, s.cfg.SystemPrompt))
	}
	if fileContext != "" {
		messages = append(messages, provider.NewMessage(provider.RoleUser, fileContext))
	}
	messages = append(messages, history...)
	if ephemeral != "" {
		messages = append(messages, provider.NewMessage(provider.RoleUser, ephemeral))
	}
	return messages
}

// historyTokens estimates the token total of a history slice.
func (s *Session) historyTokens(history []provider.Message) int {
	total := 0
	for _, m := range history {
		total += s.counter.Count(m.Content)
	}
	return total
}

// trimHistoryWindow drops oldest messages beyond the count window.
// Caller must hold the mutex.
func (s *Session) trimHistoryWindow() {
	if max := s.cfg.MaxHistoryMessages; max > 0 && len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}
