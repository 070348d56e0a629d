// Package config holds runtime configuration: defaults, an optional TOML
// file, and environment overrides, applied in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultFile is the TOML file Load looks for in the working directory.
const DefaultFile = "patchpilot.toml"

// Duration wraps time.Duration so TOML values like "1.5s" decode.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultSystemPrompt is the system message used when none is configured.
const DefaultSystemPrompt = "You are a helpful AI assistant that can read, " +
	"understand, and edit TypeScript, JavaScript, CSS and Python projects. " +
	"When given a file, explain issues and propose edits."

// Config holds all runtime settings.
type Config struct {
	// --- Provider ---

	// BaseURL is the OpenAI-compatible API root.
	BaseURL string `toml:"base_url"`

	// APIKey authenticates provider requests.
	APIKey string `toml:"api_key"`

	// Model is the provider-specific model name.
	Model string `toml:"model"`

	// Temperature for completions.
	Temperature float64 `toml:"temperature"`

	// SystemPrompt is prepended to every request.
	SystemPrompt string `toml:"system_prompt"`

	// --- Context budget ---
	// MaxContextTokens and PinnedFilesLimit are fixed for the lifetime
	// of a session; changing them requires a restart.

	// MaxContextTokens is the total token budget for file context.
	MaxContextTokens int `toml:"max_context_tokens"`

	// PinnedFilesLimit caps how many files may be pinned at once.
	PinnedFilesLimit int `toml:"pinned_files_limit"`

	// --- File loading ---

	// MaxFiles caps how many files a folder load may bring in.
	MaxFiles int `toml:"max_files"`

	// MaxFileTokens bounds a single file's contribution to context.
	MaxFileTokens int `toml:"max_file_tokens"`

	// Extensions are the glob patterns folder discovery matches.
	Extensions []string `toml:"extensions"`

	// --- Conversation ---

	// MaxConvoMessages bounds the rolling history window.
	MaxConvoMessages int `toml:"max_convo_messages"`

	// MaxResponseTokens caps the model response length.
	MaxResponseTokens int `toml:"max_response_tokens"`

	// --- Safety and retry ---

	// MaxRetries bounds provider retry attempts for transient failures.
	MaxRetries int `toml:"max_retries"`

	// RetryDelay is the base backoff delay, doubled per attempt.
	RetryDelay Duration `toml:"retry_delay"`

	// BackupOnWrite saves a timestamped copy before a patch overwrites.
	BackupOnWrite bool `toml:"backup_on_write"`

	// DiffPreview shows a unified diff before applying a patch.
	DiffPreview bool `toml:"diff_preview"`

	// WatchFiles reloads loaded files when they change on disk.
	WatchFiles bool `toml:"watch_files"`
}

// Default returns a Config with the stock defaults.
func Default() Config {
	return Config{
		BaseURL:           "https://integrate.api.nvidia.com/v1",
		Model:             "z-ai/glm4.7",
		Temperature:       0.4,
		SystemPrompt:      DefaultSystemPrompt,
		MaxContextTokens:  4500,
		PinnedFilesLimit:  4,
		MaxFiles:          12,
		MaxFileTokens:     1500,
		MaxConvoMessages:  40,
		MaxResponseTokens: 4096,
		MaxRetries:        3,
		RetryDelay:        Duration(1500 * time.Millisecond),
		BackupOnWrite:     true,
		DiffPreview:       true,
		WatchFiles:        false,
	}
}

// Load builds the effective configuration: defaults, then the TOML file
// at path if it exists, then environment overrides. An empty path means
// DefaultFile; a missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}
	if err := cfg.loadFile(path); err != nil {
		return cfg, err
	}
	cfg.LoadFromEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if _, err := toml.DecodeFile(path, c); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}

// LoadFromEnv overrides fields from environment variables. Set variables
// take precedence over file and default values.
//
// Supported variables: OPENAI_BASE_URL, OPENAI_API_KEY, AI_MODEL,
// AI_TEMPERATURE, SYSTEM_PROMPT, MAX_CONTEXT_TOKENS, PINNED_FILES_LIMIT,
// MAX_FILES, MAX_FILE_TOKENS, MAX_CONVO_MESSAGES, MAX_RESPONSE_TOKENS,
// MAX_RETRIES, RETRY_DELAY, BACKUP_ON_WRITE, DIFF_PREVIEW, WATCH_FILES.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.APIKey = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("AI_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Temperature = f
		}
	}
	if v := os.Getenv("SYSTEM_PROMPT"); v != "" {
		c.SystemPrompt = v
	}
	setInt(&c.MaxContextTokens, "MAX_CONTEXT_TOKENS")
	setInt(&c.PinnedFilesLimit, "PINNED_FILES_LIMIT")
	setInt(&c.MaxFiles, "MAX_FILES")
	setInt(&c.MaxFileTokens, "MAX_FILE_TOKENS")
	setInt(&c.MaxConvoMessages, "MAX_CONVO_MESSAGES")
	setInt(&c.MaxResponseTokens, "MAX_RESPONSE_TOKENS")
	setInt(&c.MaxRetries, "MAX_RETRIES")
	if v := os.Getenv("RETRY_DELAY"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.RetryDelay = Duration(f * float64(time.Second))
		}
	}
	setBool(&c.BackupOnWrite, "BACKUP_ON_WRITE")
	setBool(&c.DiffPreview, "DIFF_PREVIEW")
	setBool(&c.WatchFiles, "WATCH_FILES")
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

// Validate checks the configuration for impossible values.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxContextTokens <= 0 {
		return fmt.Errorf("max_context_tokens must be > 0, got %d", c.MaxContextTokens)
	}
	if c.PinnedFilesLimit < 0 {
		return fmt.Errorf("pinned_files_limit must be >= 0, got %d", c.PinnedFilesLimit)
	}
	if c.MaxFiles <= 0 {
		return fmt.Errorf("max_files must be > 0, got %d", c.MaxFiles)
	}
	if c.MaxFileTokens <= 0 {
		return fmt.Errorf("max_file_tokens must be > 0, got %d", c.MaxFileTokens)
	}
	if c.MaxFileTokens > c.MaxContextTokens {
		return fmt.Errorf("max_file_tokens (%d) exceeds max_context_tokens (%d)",
			c.MaxFileTokens, c.MaxContextTokens)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("retry_delay must be >= 0, got %v", c.RetryDelay.Std())
	}
	return nil
}
