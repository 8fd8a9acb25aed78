package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// extractPrompt instructs the model to return the fact fields as JSON.
const extractPrompt = `Extract structured facts from the following captured text snippet.

Respond with a JSON object containing only these keys (omit keys with no value):
- "phone": a phone number found in the text
- "email": an email address found in the text
- "personName": the name of a person mentioned
- "time": the time expression exactly as written (e.g. "tomorrow 3pm")
- "location": a place or address expression exactly as written
- "actionIntent": a short phrase describing the action the text asks for

Respond ONLY with the JSON object, no additional text.

Text:
`

// LLMExtractor extracts facts through a text-generation capability and
// backfills phone/email from the regex detectors when the model misses
// them.
type LLMExtractor struct {
	completer Completer
	timeout   time.Duration
	maxTokens int
}

// NewLLMExtractor creates an extractor over the given completer.
func NewLLMExtractor(completer Completer, timeout time.Duration, maxTokens int) *LLMExtractor {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	if maxTokens <= 0 {
		maxTokens = DefaultConfig().MaxTokens
	}
	return &LLMExtractor{completer: completer, timeout: timeout, maxTokens: maxTokens}
}

// Extract sends one completion call per entry. Failures are returned as
// *Error values; callers substitute empty facts rather than abort.
func (e *LLMExtractor) Extract(ctx context.Context, text string) (Facts, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	raw, err := e.completer.Complete(ctx, extractPrompt+text, e.maxTokens)
	if err != nil {
		return Facts{}, classifyError(err)
	}

	facts, err := parseFactsJSON(raw)
	if err != nil {
		return Facts{}, err
	}

	// The regex detectors are more reliable than the model for phone and
	// email; fill in anything the model missed.
	detected := Detect(text)
	if facts.Phone == "" {
		facts.Phone = detected.Phone
	}
	if facts.Email == "" {
		facts.Email = detected.Email
	}
	return facts, nil
}

// parseFactsJSON parses the model response, tolerating markdown fences.
func parseFactsJSON(content string) (Facts, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var facts Facts
	if err := json.Unmarshal([]byte(content), &facts); err != nil {
		return Facts{}, NewError(ErrKindMalformed, fmt.Errorf("unparseable facts response: %w", err))
	}
	return facts, nil
}

var _ Extractor = (*LLMExtractor)(nil)
