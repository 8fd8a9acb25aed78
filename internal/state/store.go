// Package state is the single point of mutation for entry and action
// status. Every write is handed off as a message to one serialized loop;
// no caller mutates shared state in place. Observers therefore see a
// consistent, totally ordered view per entry no matter which concurrent
// task produced the write.
package state

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/entry"
)

// Repository is the persistence the store writes through.
type Repository interface {
	GetEntry(ctx context.Context, id string) (*entry.Entry, error)
	UpdateEntryStatus(ctx context.Context, id string, status entry.Status) error
	SaveMetadata(ctx context.Context, id string, md *entry.Metadata) error
}

// Snapshot is one observed view of an entry's state.
type Snapshot struct {
	EntryID  string
	Status   entry.Status
	Metadata *entry.Metadata
}

// ActionUpdate carries the fields a status transition may set alongside
// the new status.
type ActionUpdate struct {
	Payload     entry.Payload
	ExecutedAt  *time.Time
	ExternalID  string
	FailReason  string
	ReverseData map[string]any
}

// entryState is the loop's in-memory view of one entry.
type entryState struct {
	status entry.Status
	md     *entry.Metadata
}

// op is one mutation handed to the serialization loop.
type op struct {
	ctx     context.Context
	entryID string
	apply   func(ctx context.Context, st *entryState) opResult
	reply   chan opResult
}

// opResult carries an op's outcome back over the reply channel. The
// channel is the only communication between the loop and the caller;
// ops never write into caller-captured variables.
type opResult struct {
	claimed  bool
	metadata *entry.Metadata
	err      error
}

type observer struct {
	ch chan Snapshot
}

// Store serializes all entry mutations through one loop.
type Store struct {
	repo   Repository
	logger *zap.Logger
	ops    chan op

	// Loop-owned state; only the Run goroutine touches these.
	cache     map[string]*entryState
	observers map[string]map[*observer]struct{}

	// subscribe/unsubscribe also go through the loop.
	subs   chan subReq
	unsubs chan *observerHandle

	done chan struct{}
}

type subReq struct {
	entryID string
	reply   chan *observerHandle
}

// observerHandle pairs an observer with its entry for unsubscription.
type observerHandle struct {
	entryID string
	obs     *observer
}

// NewStore creates a store over the repository. Call Start before use.
func NewStore(repo Repository, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		repo:      repo,
		logger:    logger.Named("state"),
		ops:       make(chan op),
		cache:     make(map[string]*entryState),
		observers: make(map[string]map[*observer]struct{}),
		subs:      make(chan subReq),
		unsubs:    make(chan *observerHandle),
		done:      make(chan struct{}),
	}
}

// Start launches the serialization loop. It returns immediately; the
// loop runs until ctx is cancelled.
func (s *Store) Start(ctx context.Context) {
	go s.run(ctx)
}

func (s *Store) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case o := <-s.ops:
			st, err := s.load(o.ctx, o.entryID)
			res := opResult{err: err}
			if err == nil {
				res = o.apply(o.ctx, st)
			}
			if res.err == nil {
				s.broadcast(o.entryID, st)
			}
			o.reply <- res
		case req := <-s.subs:
			obs := &observer{ch: make(chan Snapshot, 16)}
			if s.observers[req.entryID] == nil {
				s.observers[req.entryID] = make(map[*observer]struct{})
			}
			s.observers[req.entryID][obs] = struct{}{}
			req.reply <- &observerHandle{entryID: req.entryID, obs: obs}
		case h := <-s.unsubs:
			if set, ok := s.observers[h.entryID]; ok {
				if _, ok := set[h.obs]; ok {
					delete(set, h.obs)
					close(h.obs.ch)
				}
				if len(set) == 0 {
					delete(s.observers, h.entryID)
				}
			}
		}
	}
}

// load returns the loop's view of an entry, reading through to the
// repository on first touch.
func (s *Store) load(ctx context.Context, entryID string) (*entryState, error) {
	if st, ok := s.cache[entryID]; ok {
		return st, nil
	}
	e, err := s.repo.GetEntry(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("load entry %s: %w", entryID, err)
	}
	st := &entryState{status: e.Status, md: e.Metadata}
	if st.md == nil {
		st.md = &entry.Metadata{}
	}
	s.cache[entryID] = st
	return st, nil
}

// broadcast delivers a snapshot to every observer of the entry. A full
// observer buffer drops that observer's snapshot rather than stalling
// the loop.
func (s *Store) broadcast(entryID string, st *entryState) {
	set := s.observers[entryID]
	if len(set) == 0 {
		return
	}
	snap := Snapshot{EntryID: entryID, Status: st.status, Metadata: st.md.Clone()}
	for obs := range set {
		select {
		case obs.ch <- snap:
		default:
			s.logger.Warn("observer buffer full, dropping snapshot",
				zap.String("entry_id", entryID))
		}
	}
}

// send hands an op to the loop and waits for its result. Once the loop
// has accepted the op it always replies, so the receive is unconditional:
// a caller whose ctx is cancelled mid-op still learns the real outcome
// (the op's repository calls carry that ctx and fail on their own).
func (s *Store) send(ctx context.Context, entryID string, apply func(context.Context, *entryState) opResult) opResult {
	o := op{ctx: ctx, entryID: entryID, apply: apply, reply: make(chan opResult, 1)}
	select {
	case s.ops <- o:
	case <-s.done:
		return opResult{err: fmt.Errorf("state store stopped")}
	case <-ctx.Done():
		return opResult{err: ctx.Err()}
	}
	return <-o.reply
}

// BeginProcessing claims an entry for processing. It returns false if
// the entry is not in status unprocessed, which makes duplicate
// concurrent attempts impossible.
func (s *Store) BeginProcessing(ctx context.Context, entryID string) (bool, error) {
	res := s.send(ctx, entryID, func(ctx context.Context, st *entryState) opResult {
		if st.status != entry.StatusUnprocessed {
			return opResult{}
		}
		if err := s.repo.UpdateEntryStatus(ctx, entryID, entry.StatusProcessing); err != nil {
			return opResult{err: err}
		}
		st.status = entry.StatusProcessing
		return opResult{claimed: true}
	})
	return res.claimed, res.err
}

// FinishEntry records the processing record (if any) and moves the entry
// to its terminal status for this attempt.
func (s *Store) FinishEntry(ctx context.Context, entryID string, status entry.Status, rec *entry.ProcessingRecord) error {
	if status != entry.StatusProcessed && status != entry.StatusFailed {
		return fmt.Errorf("invalid terminal status %q", status)
	}
	return s.send(ctx, entryID, func(ctx context.Context, st *entryState) opResult {
		if rec != nil {
			next := st.md.Clone()
			next.ProcessingMeta = rec
			if err := s.repo.SaveMetadata(ctx, entryID, next); err != nil {
				return opResult{err: err}
			}
			st.md = next
		}
		if err := s.repo.UpdateEntryStatus(ctx, entryID, status); err != nil {
			return opResult{err: err}
		}
		st.status = status
		return opResult{}
	}).err
}

// ApplyEntryMetadata replaces the entry's metadata wholesale. Used by
// the coordinator to publish the proposed action list in decision order.
func (s *Store) ApplyEntryMetadata(ctx context.Context, entryID string, md *entry.Metadata) error {
	return s.send(ctx, entryID, func(ctx context.Context, st *entryState) opResult {
		if err := s.repo.SaveMetadata(ctx, entryID, md); err != nil {
			return opResult{err: err}
		}
		st.md = md.Clone()
		return opResult{}
	}).err
}

// ApplyActionStatus transitions one action, applying any accompanying
// field updates, and persists the result. Illegal transitions are
// rejected without touching the stored state.
func (s *Store) ApplyActionStatus(ctx context.Context, entryID, actionID string, to entry.ActionStatus, update ActionUpdate) error {
	return s.send(ctx, entryID, func(ctx context.Context, st *entryState) opResult {
		act := st.md.Action(actionID)
		if act == nil {
			return opResult{err: fmt.Errorf("action %s not found on entry %s", actionID, entryID)}
		}
		updated := act.Clone()
		if update.Payload != nil {
			updated.Payload = update.Payload
		}
		if update.ExecutedAt != nil {
			updated.ExecutedAt = update.ExecutedAt
		}
		if update.ExternalID != "" {
			updated.ExternalID = update.ExternalID
		}
		if update.FailReason != "" {
			updated.FailReason = update.FailReason
		}
		if update.ReverseData != nil {
			updated.ReverseData = update.ReverseData
		}
		if err := updated.Transition(to); err != nil {
			return opResult{err: err}
		}
		// Persist a copy first; the cached view only advances once the
		// write lands.
		next := st.md.Clone()
		*next.Action(actionID) = updated
		if err := s.repo.SaveMetadata(ctx, entryID, next); err != nil {
			return opResult{err: err}
		}
		st.md = next
		return opResult{}
	}).err
}

// ApplyResearch attaches research content to the entry's metadata.
func (s *Store) ApplyResearch(ctx context.Context, entryID, research string) error {
	return s.send(ctx, entryID, func(ctx context.Context, st *entryState) opResult {
		next := st.md.Clone()
		next.Research = research
		if err := s.repo.SaveMetadata(ctx, entryID, next); err != nil {
			return opResult{err: err}
		}
		st.md = next
		return opResult{}
	}).err
}

// Metadata returns a consistent copy of the entry's current metadata.
func (s *Store) Metadata(ctx context.Context, entryID string) (*entry.Metadata, error) {
	res := s.send(ctx, entryID, func(_ context.Context, st *entryState) opResult {
		return opResult{metadata: st.md.Clone()}
	})
	return res.metadata, res.err
}

// Observe subscribes to metadata snapshots for one entry. The returned
// cancel function must be called when done.
func (s *Store) Observe(ctx context.Context, entryID string) (<-chan Snapshot, func(), error) {
	req := subReq{entryID: entryID, reply: make(chan *observerHandle, 1)}
	select {
	case s.subs <- req:
	case <-s.done:
		return nil, nil, fmt.Errorf("state store stopped")
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
	h := <-req.reply
	cancel := func() {
		select {
		case s.unsubs <- h:
		case <-s.done:
		}
	}
	return h.obs.ch, cancel, nil
}
