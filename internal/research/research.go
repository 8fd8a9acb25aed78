// Package research generates a short briefing for narrative note
// entries. It shares the completion transport with extraction; a note
// whose content is pure data (just a phone number or email) gets no
// briefing. Research is best-effort and never affects entry status.
package research

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/entry"
	"github.com/fyrsmithlabs/snipd/internal/extraction"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultMaxTokens = 512
)

const briefingPrompt = `Write a short research briefing (3 sentences max) with useful
context for the following note. Mention relevant background only; do not
restate the note. Note:

%s`

// Generator produces briefings for note entries.
type Generator struct {
	completer extraction.Completer
	timeout   time.Duration
	maxTokens int
	logger    *zap.Logger
}

// New creates a generator. A nil completer disables research.
func New(completer extraction.Completer, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		completer: completer,
		timeout:   defaultTimeout,
		maxTokens: defaultMaxTokens,
		logger:    logger.Named("research"),
	}
}

// WithTimeout overrides the per-call timeout.
func (g *Generator) WithTimeout(d time.Duration) *Generator {
	if d > 0 {
		g.timeout = d
	}
	return g
}

// Wants reports whether the entry qualifies for a briefing: a note with
// narrative content and a configured completer.
func (g *Generator) Wants(e *entry.Entry) bool {
	if g.completer == nil || !g.completer.Available() {
		return false
	}
	if e.Kind != entry.KindNote {
		return false
	}
	return !extraction.PureData(e.Content)
}

// Generate produces the briefing text. Callers should treat an error as
// a skipped briefing, not a failed entry.
func (g *Generator) Generate(ctx context.Context, e *entry.Entry) (string, error) {
	if !g.Wants(e) {
		return "", nil
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	out, err := g.completer.Complete(ctx, fmt.Sprintf(briefingPrompt, e.Content), g.maxTokens)
	if err != nil {
		g.logger.Warn("briefing generation failed",
			zap.String("entry_id", e.ID), zap.Error(err))
		return "", fmt.Errorf("generate briefing: %w", err)
	}
	return strings.TrimSpace(out), nil
}
