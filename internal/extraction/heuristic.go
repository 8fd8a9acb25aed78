package extraction

import (
	"context"
	"regexp"
	"strings"
)

// Detection regexes. The phone pattern accepts common US-style groupings;
// the email pattern is deliberately loose.
var (
	phoneRe = regexp.MustCompile(`\+?\d{1,2}?[\s.-]?\(?\d{3}\)?[\s.-]?\d{3}[\s.-]?\d{4}`)
	emailRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	timeRe  = regexp.MustCompile(`(?i)\b(tomorrow|today|next\s+week|\d{1,2}(:\d{2})?\s*(am|pm)|\d{1,2}:\d{2})\b`)
)

// HeuristicExtractor implements Extractor using pattern matching only.
// It detects phone numbers, email addresses, and time expressions without
// any outbound call; person names, locations, and action intent need the
// LLM extractor.
type HeuristicExtractor struct{}

// NewHeuristicExtractor creates a pattern-based extractor.
func NewHeuristicExtractor() *HeuristicExtractor {
	return &HeuristicExtractor{}
}

// Extract finds facts via regex detection. It never fails.
func (h *HeuristicExtractor) Extract(_ context.Context, text string) (Facts, error) {
	return Detect(text), nil
}

// Detect runs the regex detectors over text.
func Detect(text string) Facts {
	facts := Facts{}
	if m := phoneRe.FindString(text); m != "" {
		facts.Phone = strings.TrimSpace(m)
	}
	if m := emailRe.FindString(text); m != "" {
		facts.Email = m
	}
	if m := timeRe.FindString(text); m != "" {
		facts.Time = expandTimeExpression(text, m)
	}
	return facts
}

// expandTimeExpression widens a single matched token to the full
// expression, so "tomorrow" in "tomorrow at 3pm" carries the clock time.
func expandTimeExpression(text, match string) string {
	idx := strings.Index(strings.ToLower(text), strings.ToLower(match))
	if idx < 0 {
		return match
	}
	rest := text[idx:]
	// Take up to four following tokens; the time rule table ignores what
	// it cannot parse.
	fields := strings.Fields(rest)
	if len(fields) > 4 {
		fields = fields[:4]
	}
	return strings.Join(fields, " ")
}

// PureData reports whether content, with detected phone numbers and email
// addresses removed, carries no narrative text. A bare number string does
// not warrant research generation.
func PureData(content string) bool {
	stripped := phoneRe.ReplaceAllString(content, "")
	stripped = emailRe.ReplaceAllString(stripped, "")
	stripped = strings.TrimFunc(stripped, func(r rune) bool {
		return r == ' ' || r == ',' || r == ';' || r == ':' || r == '-' || r == '\n' || r == '\t'
	})
	return stripped == ""
}

var _ Extractor = (*HeuristicExtractor)(nil)
