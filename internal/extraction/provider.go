package extraction

import (
	"context"
	"fmt"
)

// New creates an extractor based on configuration.
func New(cfg Config) (Extractor, error) {
	switch cfg.Provider {
	case "", "disabled":
		return &NoOpExtractor{}, nil
	case "heuristic":
		return NewHeuristicExtractor(), nil
	case "anthropic", "openai":
		completer, err := NewCompleter(cfg)
		if err != nil {
			return nil, err
		}
		return NewLLMExtractor(completer, cfg.Timeout, cfg.MaxTokens), nil
	default:
		return nil, fmt.Errorf("unknown extraction provider: %s", cfg.Provider)
	}
}

// NewCompleter creates the completion transport for the configured
// provider. Research shares this transport with extraction.
func NewCompleter(cfg Config) (Completer, error) {
	providerCfg, ok := cfg.Providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("provider %q not configured", cfg.Provider)
	}
	switch cfg.Provider {
	case "anthropic":
		return newAnthropicCompleter(providerCfg, cfg.Timeout)
	case "openai":
		return newOpenAICompleter(providerCfg, cfg.Timeout)
	default:
		return nil, fmt.Errorf("provider %q has no completion transport", cfg.Provider)
	}
}

// NoOpExtractor extracts nothing.
type NoOpExtractor struct{}

// Extract returns empty facts.
func (n *NoOpExtractor) Extract(_ context.Context, _ string) (Facts, error) {
	return Facts{}, nil
}

var _ Extractor = (*NoOpExtractor)(nil)
