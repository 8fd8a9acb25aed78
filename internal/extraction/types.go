// Package extraction pulls structured facts (phone, email, person name,
// time and location expressions, action intent) out of raw entry text.
// It supports heuristic (pattern-based) and LLM-based extraction.
package extraction

import (
	"context"
	"time"
)

// Facts holds the structured facts extracted from one entry's text.
// Every field is optional; the zero value means nothing was found.
type Facts struct {
	Phone        string `json:"phone,omitempty"`
	Email        string `json:"email,omitempty"`
	PersonName   string `json:"personName,omitempty"`
	Time         string `json:"time,omitempty"`
	Location     string `json:"location,omitempty"`
	ActionIntent string `json:"actionIntent,omitempty"`
}

// Empty reports whether no facts were extracted.
func (f Facts) Empty() bool {
	return f == Facts{}
}

// Extractor extracts facts from raw entry text. Implementations must not
// block longer than their configured timeout.
type Extractor interface {
	Extract(ctx context.Context, text string) (Facts, error)
}

// Completer is the outbound text-generation capability. Extraction and
// research share this transport.
type Completer interface {
	// Complete sends a prompt and returns the raw completion text.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)

	// Available returns true if the completer is configured and ready.
	Available() bool
}

// Config holds extraction configuration.
type Config struct {
	// Provider selects the extractor: "disabled", "heuristic",
	// "anthropic", or "openai".
	Provider string `koanf:"provider"`

	// Providers holds per-provider settings keyed by provider name.
	Providers map[string]ProviderConfig `koanf:"providers"`

	// Timeout bounds each extraction call. The pipeline treats a timed
	// out call the same as a malformed response.
	Timeout time.Duration `koanf:"timeout"`

	// MaxTokens caps the completion size per extraction call.
	MaxTokens int `koanf:"max_tokens"`
}

// ProviderConfig holds provider-specific settings.
type ProviderConfig struct {
	Model   string `koanf:"model"`
	APIKey  string `koanf:"api_key"`
	BaseURL string `koanf:"base_url"`
}

// DefaultConfig returns a default extraction configuration.
func DefaultConfig() Config {
	return Config{
		Provider:  "heuristic",
		Timeout:   30 * time.Second,
		MaxTokens: 512,
	}
}
