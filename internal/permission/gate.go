// Package permission gates capability access. The gate resolves the
// OS-level grant for each capability type at most once per process
// lifetime: the first caller triggers the request, concurrent callers
// wait for and share its outcome.
package permission

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/capability"
	"github.com/fyrsmithlabs/snipd/internal/entry"
)

// State is the gate's view of one capability's grant.
type State string

const (
	StateUnknown    State = "unknown"
	StateRequesting State = "requesting"
	StateGranted    State = "granted"
	StateDenied     State = "denied"
	StateRestricted State = "restricted"
)

// ErrorKind classifies a permission failure.
type ErrorKind string

const (
	ErrKindDenied     ErrorKind = "denied"
	ErrKindRestricted ErrorKind = "restricted"
)

// Error indicates a capability is not usable. It is terminal for the
// capability until the process restarts or the grant changes out of band.
type Error struct {
	Capability entry.ActionType
	Kind       ErrorKind
}

func (e *Error) Error() string {
	return fmt.Sprintf("permission %s for capability %s", e.Kind, e.Capability)
}

// PromptRecorder receives the outcome of each permission prompt the
// gate triggers. Implemented by telemetry.PermissionMetrics.
type PromptRecorder interface {
	RecordPrompt(ctx context.Context, capabilityType, outcome string)
}

// grant tracks one capability's resolution. done is closed when the
// in-flight request resolves.
type grant struct {
	state  State
	status capability.AuthStatus
	err    error
	done   chan struct{}
}

// Gate caches grant outcomes and serializes the first permission request
// per capability type so concurrent actions never trigger duplicate
// prompts.
type Gate struct {
	mu          sync.Mutex
	authorizers map[entry.ActionType]capability.Authorizer
	grants      map[entry.ActionType]*grant
	logger      *zap.Logger
	metrics     PromptRecorder
}

// NewGate creates a gate over the given per-capability authorizers.
func NewGate(authorizers map[entry.ActionType]capability.Authorizer, logger *zap.Logger) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		authorizers: authorizers,
		grants:      make(map[entry.ActionType]*grant),
		logger:      logger,
	}
}

// WithMetrics records prompt outcomes on the given recorder.
func (g *Gate) WithMetrics(m PromptRecorder) *Gate {
	g.metrics = m
	return g
}

// State returns the gate's current view of a capability, including the
// transient requesting state while a prompt is in flight.
func (g *Gate) State(t entry.ActionType) State {
	g.mu.Lock()
	defer g.mu.Unlock()
	if gr, ok := g.grants[t]; ok {
		return gr.state
	}
	return StateUnknown
}

// Ensure returns nil once the capability is granted. The first call for
// a capability checks and, if undetermined, requests the grant; callers
// arriving during the request wait for its single resolved outcome.
func (g *Gate) Ensure(ctx context.Context, t entry.ActionType) error {
	g.mu.Lock()
	if gr, ok := g.grants[t]; ok {
		if gr.state != StateRequesting {
			g.mu.Unlock()
			return outcome(t, gr)
		}
		g.mu.Unlock()
		select {
		case <-gr.done:
			return outcome(t, gr)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	auth, ok := g.authorizers[t]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("no authorizer for capability %s", t)
	}

	gr := &grant{state: StateRequesting, done: make(chan struct{})}
	g.grants[t] = gr
	g.mu.Unlock()

	prompted := false
	status, err := auth.CheckPermission(ctx)
	if err == nil && status == capability.AuthNotDetermined {
		g.logger.Info("requesting capability permission", zap.String("capability", string(t)))
		prompted = true
		status, err = auth.RequestPermission(ctx)
	}

	g.mu.Lock()
	gr.status = status
	gr.err = err
	switch {
	case err != nil:
		// A failed check is not a grant outcome; let a later caller
		// retry instead of caching the failure for the process lifetime.
		gr.state = StateUnknown
		delete(g.grants, t)
	case status == capability.AuthGranted:
		gr.state = StateGranted
	case status == capability.AuthRestricted:
		gr.state = StateRestricted
	default:
		gr.state = StateDenied
	}
	close(gr.done)
	g.mu.Unlock()

	if err == nil {
		g.logger.Info("capability permission resolved",
			zap.String("capability", string(t)),
			zap.String("status", string(status)))
		if prompted && g.metrics != nil {
			g.metrics.RecordPrompt(ctx, string(t), string(gr.state))
		}
	}
	return outcome(t, gr)
}

// outcome converts a resolved grant into the caller-facing result.
func outcome(t entry.ActionType, gr *grant) error {
	if gr.err != nil {
		return fmt.Errorf("permission check for %s: %w", t, gr.err)
	}
	switch gr.status {
	case capability.AuthGranted:
		return nil
	case capability.AuthRestricted:
		return &Error{Capability: t, Kind: ErrKindRestricted}
	default:
		return &Error{Capability: t, Kind: ErrKindDenied}
	}
}
