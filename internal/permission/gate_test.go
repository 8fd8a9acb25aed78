package permission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/snipd/internal/capability"
	"github.com/fyrsmithlabs/snipd/internal/entry"
)

// fakeAuthorizer lets tests script the check/request sequence.
type fakeAuthorizer struct {
	check    capability.AuthStatus
	request  capability.AuthStatus
	checkErr error
	block    chan struct{} // when set, RequestPermission blocks until closed

	checkCalls   atomic.Int32
	requestCalls atomic.Int32
}

func (f *fakeAuthorizer) CheckPermission(_ context.Context) (capability.AuthStatus, error) {
	f.checkCalls.Add(1)
	return f.check, f.checkErr
}

func (f *fakeAuthorizer) RequestPermission(ctx context.Context) (capability.AuthStatus, error) {
	f.requestCalls.Add(1)
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return capability.AuthNotDetermined, ctx.Err()
		}
	}
	return f.request, nil
}

func newGate(t entry.ActionType, auth capability.Authorizer) *Gate {
	return NewGate(map[entry.ActionType]capability.Authorizer{t: auth}, nil)
}

func TestGate_GrantedOutcome(t *testing.T) {
	auth := &fakeAuthorizer{check: capability.AuthNotDetermined, request: capability.AuthGranted}
	gate := newGate(entry.ActionContact, auth)

	require.NoError(t, gate.Ensure(context.Background(), entry.ActionContact))
	assert.Equal(t, StateGranted, gate.State(entry.ActionContact))
	assert.Equal(t, int32(1), auth.requestCalls.Load())
}

func TestGate_AlreadyGrantedSkipsRequest(t *testing.T) {
	auth := &fakeAuthorizer{check: capability.AuthGranted}
	gate := newGate(entry.ActionReminder, auth)

	require.NoError(t, gate.Ensure(context.Background(), entry.ActionReminder))
	assert.Equal(t, int32(0), auth.requestCalls.Load())
}

func TestGate_DeniedIsTerminal(t *testing.T) {
	auth := &fakeAuthorizer{check: capability.AuthNotDetermined, request: capability.AuthDenied}
	gate := newGate(entry.ActionCalendar, auth)
	ctx := context.Background()

	err := gate.Ensure(ctx, entry.ActionCalendar)
	var permErr *Error
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, ErrKindDenied, permErr.Kind)

	// Second call uses the cache; no new prompt.
	err = gate.Ensure(ctx, entry.ActionCalendar)
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, int32(1), auth.requestCalls.Load())
	assert.Equal(t, int32(1), auth.checkCalls.Load())
}

func TestGate_RestrictedOutcome(t *testing.T) {
	auth := &fakeAuthorizer{check: capability.AuthRestricted}
	gate := newGate(entry.ActionMap, auth)

	err := gate.Ensure(context.Background(), entry.ActionMap)
	var permErr *Error
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, ErrKindRestricted, permErr.Kind)
}

func TestGate_ConcurrentCallersSinglePrompt(t *testing.T) {
	block := make(chan struct{})
	auth := &fakeAuthorizer{
		check:   capability.AuthNotDetermined,
		request: capability.AuthGranted,
		block:   block,
	}
	gate := newGate(entry.ActionContact, auth)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = gate.Ensure(ctx, entry.ActionContact)
		}(i)
	}

	// The requesting state is visible to callers while the prompt is
	// outstanding.
	require.Eventually(t, func() bool {
		return gate.State(entry.ActionContact) == StateRequesting
	}, time.Second, time.Millisecond)

	close(block)
	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "caller %d", i)
	}
	assert.Equal(t, int32(1), auth.requestCalls.Load(), "exactly one OS prompt")
}

func TestGate_CheckErrorNotCached(t *testing.T) {
	auth := &fakeAuthorizer{checkErr: errors.New("bridge unavailable")}
	gate := newGate(entry.ActionReminder, auth)
	ctx := context.Background()

	err := gate.Ensure(ctx, entry.ActionReminder)
	require.Error(t, err)
	var permErr *Error
	assert.False(t, errors.As(err, &permErr), "a check failure is not a denial")

	// The failure was not cached; the next caller retries the check.
	_ = gate.Ensure(ctx, entry.ActionReminder)
	assert.Equal(t, int32(2), auth.checkCalls.Load())
}

type fakeRecorder struct {
	mu       sync.Mutex
	outcomes []string
}

func (f *fakeRecorder) RecordPrompt(_ context.Context, _, outcome string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, outcome)
}

func TestGate_RecordsPromptOutcome(t *testing.T) {
	auth := &fakeAuthorizer{check: capability.AuthNotDetermined, request: capability.AuthDenied}
	rec := &fakeRecorder{}
	gate := newGate(entry.ActionMap, auth).WithMetrics(rec)
	ctx := context.Background()

	_ = gate.Ensure(ctx, entry.ActionMap)
	// Cached outcome; no second prompt, no second record.
	_ = gate.Ensure(ctx, entry.ActionMap)

	assert.Equal(t, []string{"denied"}, rec.outcomes)
}

func TestGate_NoPromptNoRecord(t *testing.T) {
	auth := &fakeAuthorizer{check: capability.AuthGranted}
	rec := &fakeRecorder{}
	gate := newGate(entry.ActionReminder, auth).WithMetrics(rec)

	require.NoError(t, gate.Ensure(context.Background(), entry.ActionReminder))
	assert.Empty(t, rec.outcomes)
}

func TestGate_UnknownCapability(t *testing.T) {
	gate := NewGate(map[entry.ActionType]capability.Authorizer{}, nil)
	err := gate.Ensure(context.Background(), entry.ActionReminder)
	require.Error(t, err)
}
