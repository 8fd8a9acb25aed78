package extraction

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"time"

	"golang.org/x/time/rate"
)

// Default configuration values.
const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	defaultAnthropicModel   = "claude-3-5-haiku-20241022"
	defaultOpenAIBaseURL    = "https://api.openai.com"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultMaxRetries       = 3
	defaultBaseBackoff      = 1 * time.Second
)

// Rate limiter defaults: 50 requests per minute for both APIs.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// anthropicCompleter implements Completer using Anthropic's messages API.
type anthropicCompleter struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// newAnthropicCompleter creates an Anthropic-backed completer.
func newAnthropicCompleter(cfg ProviderConfig, timeout time.Duration) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultAnthropicModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	return &anthropicCompleter{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

type anthropicError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Complete sends a single-turn prompt to Claude.
func (a *anthropicCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return "", classifyError(err)
	}

	req := anthropicRequest{
		Model:       a.model,
		MaxTokens:   maxTokens,
		Temperature: 0.2, // low temperature for consistent extraction
		Messages: []anthropicMessage{
			{Role: "user", Content: scrubSecrets(prompt)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", classifyError(ctx.Err())
			}
		}

		text, err := a.doRequest(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", classifyError(err)
		}
	}
	return "", classifyError(fmt.Errorf("max retries exceeded: %w", lastErr))
}

func (a *anthropicCompleter) doRequest(ctx context.Context, req anthropicRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", a.baseURL+"/v1/messages", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", a.apiKey)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp anthropicError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", NewError(ErrKindUnavailable, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message))
		}
		return "", NewError(ErrKindUnavailable, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body)))
	}

	var claudeResp anthropicResponse
	if err := json.Unmarshal(body, &claudeResp); err != nil {
		return "", NewError(ErrKindMalformed, fmt.Errorf("failed to parse response: %w", err))
	}
	if len(claudeResp.Content) == 0 {
		return "", NewError(ErrKindMalformed, fmt.Errorf("empty response from API"))
	}
	return claudeResp.Content[0].Text, nil
}

// Available returns true if the completer is configured.
func (a *anthropicCompleter) Available() bool {
	return a.apiKey != ""
}

// openAICompleter implements Completer using OpenAI's chat API.
type openAICompleter struct {
	model      string
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
}

// newOpenAICompleter creates an OpenAI-backed completer.
func newOpenAICompleter(cfg ProviderConfig, timeout time.Duration) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key required")
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}

	return &openAICompleter{
		model:      model,
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), defaultBurst),
		maxRetries: defaultMaxRetries,
	}, nil
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

type openAIError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends a single-turn prompt to the chat completions API.
func (o *openAICompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if err := o.limiter.Wait(ctx); err != nil {
		return "", classifyError(err)
	}

	req := openAIRequest{
		Model:       o.model,
		MaxTokens:   maxTokens,
		Temperature: 0.2,
		Messages: []openAIMessage{
			{Role: "user", Content: scrubSecrets(prompt)},
		},
	}

	var lastErr error
	for attempt := 0; attempt <= o.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-1))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", classifyError(ctx.Err())
			}
		}

		text, err := o.doRequest(ctx, req)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return "", classifyError(err)
		}
	}
	return "", classifyError(fmt.Errorf("max retries exceeded: %w", lastErr))
}

func (o *openAICompleter) doRequest(ctx context.Context, req openAIRequest) (string, error) {
	jsonData, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/v1/chat/completions", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(httpReq)
	if err != nil {
		return "", &retryableError{err: fmt.Errorf("API request failed: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &retryableError{err: fmt.Errorf("rate limited (429)")}
	}
	if resp.StatusCode >= 500 {
		return "", &retryableError{err: fmt.Errorf("server error (%d): %s", resp.StatusCode, string(body))}
	}
	if resp.StatusCode != http.StatusOK {
		var errResp openAIError
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return "", NewError(ErrKindUnavailable, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error.Message))
		}
		return "", NewError(ErrKindUnavailable, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(body)))
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(body, &openAIResp); err != nil {
		return "", NewError(ErrKindMalformed, fmt.Errorf("failed to parse response: %w", err))
	}
	if len(openAIResp.Choices) == 0 {
		return "", NewError(ErrKindMalformed, fmt.Errorf("empty response from API"))
	}
	return openAIResp.Choices[0].Message.Content, nil
}

// Available returns true if the completer is configured.
func (o *openAICompleter) Available() bool {
	return o.apiKey != ""
}

// scrubSecrets removes common secret patterns from content before sending
// it to an external API.
func scrubSecrets(content string) string {
	patterns := []struct {
		regex       *regexp.Regexp
		replacement string
	}{
		{
			regexp.MustCompile(`sk-ant-[a-zA-Z0-9-]{20,}`),
			"[REDACTED:ANTHROPIC_KEY]",
		},
		{
			regexp.MustCompile(`sk-[a-zA-Z0-9]{20,}`),
			"[REDACTED:OPENAI_KEY]",
		},
		{
			regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_\-\.=]{20,}`),
			"[REDACTED:BEARER_TOKEN]",
		},
		{
			regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[:=]\s*["']?\s*([^"'\s]{4,})["']?`),
			"$1=[REDACTED:PASSWORD]",
		},
	}

	result := content
	for _, p := range patterns {
		result = p.regex.ReplaceAllString(result, p.replacement)
	}
	return result
}

// Ensure interfaces are implemented.
var _ Completer = (*anthropicCompleter)(nil)
var _ Completer = (*openAICompleter)(nil)
