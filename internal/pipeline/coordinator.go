// Package pipeline orchestrates entry processing: claim, extract,
// decide, execute, record. At most five entries are in flight at once;
// within an entry, actions run concurrently and fail independently.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/snipd/internal/decision"
	"github.com/fyrsmithlabs/snipd/internal/entry"
	"github.com/fyrsmithlabs/snipd/internal/executor"
	"github.com/fyrsmithlabs/snipd/internal/extraction"
	"github.com/fyrsmithlabs/snipd/internal/research"
	"github.com/fyrsmithlabs/snipd/internal/state"
	"github.com/fyrsmithlabs/snipd/internal/telemetry"
)

// Version tags ProcessingRecords with the extractor/decision revision.
const Version = "v1"

const (
	// MaxConcurrentEntries bounds in-flight entries; it also caps
	// simultaneous outbound extraction calls and permission-prompt
	// contention.
	MaxConcurrentEntries = 5

	defaultBatchSize = 16
	defaultInterval  = 5 * time.Second
)

// EntrySource supplies the unprocessed backlog.
type EntrySource interface {
	ListUnprocessed(ctx context.Context, limit int) ([]*entry.Entry, error)
}

// Coordinator drives entries from unprocessed to a terminal status.
type Coordinator struct {
	source    EntrySource
	state     *state.Store
	extractor extraction.Extractor
	engine    *decision.Engine
	exec      *executor.Executor
	research  *research.Generator
	metrics   *telemetry.PipelineMetrics
	logger    *zap.Logger

	interval  time.Duration
	batchSize int
	nudge     chan struct{}
	now       func() time.Time
}

// Options tunes the coordinator. Zero values take defaults.
type Options struct {
	Interval  time.Duration
	BatchSize int
	Research  *research.Generator
	Metrics   *telemetry.PipelineMetrics
	Now       func() time.Time
}

// New creates a coordinator.
func New(source EntrySource, st *state.Store, ex extraction.Extractor, eng *decision.Engine, exec *executor.Executor, logger *zap.Logger, opts Options) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		source:    source,
		state:     st,
		extractor: ex,
		engine:    eng,
		exec:      exec,
		research:  opts.Research,
		metrics:   opts.Metrics,
		logger:    logger.Named("pipeline"),
		interval:  opts.Interval,
		batchSize: opts.BatchSize,
		nudge:     make(chan struct{}, 1),
		now:       opts.Now,
	}
	if c.interval <= 0 {
		c.interval = defaultInterval
	}
	if c.batchSize <= 0 {
		c.batchSize = defaultBatchSize
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Nudge wakes the run loop ahead of the next poll tick. Safe to call
// from any goroutine; a pending nudge coalesces.
func (c *Coordinator) Nudge() {
	select {
	case c.nudge <- struct{}{}:
	default:
	}
}

// Run polls for unprocessed entries until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		if err := c.Drain(ctx); err != nil {
			c.logger.Error("drain failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		case <-c.nudge:
		}
	}
}

// Drain processes the current unprocessed backlog and returns when it
// is empty. Used by the run loop and by one-shot invocation. A pass in
// which no listed entry could be claimed is surfaced as an error rather
// than retried: re-listing an unclaimable backlog would spin hot, so
// pacing is left to Run's ticker (or the one-shot caller).
func (c *Coordinator) Drain(ctx context.Context) error {
	for {
		entries, err := c.source.ListUnprocessed(ctx, c.batchSize)
		if err != nil {
			return fmt.Errorf("list unprocessed: %w", err)
		}
		if len(entries) == 0 {
			return nil
		}
		var claimed atomic.Int32
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(MaxConcurrentEntries)
		for _, e := range entries {
			e := e
			g.Go(func() error {
				if c.processEntry(gctx, e) {
					claimed.Add(1)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if claimed.Load() == 0 {
			return fmt.Errorf("no progress: none of %d backlog entries could be claimed", len(entries))
		}
	}
}

// processEntry runs one entry to a terminal status and reports whether
// it claimed the entry. Action-level failures never escalate; only a
// failure to record outcomes at all marks the entry failed.
func (c *Coordinator) processEntry(ctx context.Context, e *entry.Entry) bool {
	log := c.logger.With(zap.String("entry_id", e.ID), zap.String("kind", string(e.Kind)))

	claimed, err := c.state.BeginProcessing(ctx, e.ID)
	if err != nil {
		log.Error("claim failed", zap.Error(err))
		return false
	}
	if !claimed {
		log.Debug("entry already claimed, skipping")
		return false
	}
	start := c.now()

	var facts extraction.Facts
	if f, err := c.extractor.Extract(ctx, e.Content); err != nil {
		// Best-effort: an extraction failure never abandons the entry.
		log.Warn("extraction failed, continuing with empty facts", zap.Error(err))
		if c.metrics != nil {
			c.metrics.RecordExtractionFailure(ctx)
		}
	} else {
		facts = f
	}

	actions := c.engine.Decide(e.Kind, e.Content, facts)
	log.Info("decided actions", zap.Int("count", len(actions)))

	md := e.Metadata.Clone()
	if md == nil {
		md = &entry.Metadata{}
	}
	md.Actions = actions
	if err := c.state.ApplyEntryMetadata(ctx, e.ID, md); err != nil {
		c.finish(ctx, e, entry.StatusFailed, nil, start)
		log.Error("publish actions failed", zap.Error(err))
		return true
	}

	// Actions run concurrently; Execute records per-action failures
	// itself and only returns coordination errors.
	var g errgroup.Group
	coordFailed := false
	for _, act := range actions {
		act := act
		g.Go(func() error {
			if err := c.exec.Execute(ctx, e.ID, act); err != nil {
				log.Error("action coordination failed",
					zap.String("action_id", act.ID), zap.Error(err))
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		coordFailed = true
	}

	if c.research != nil {
		if out, err := c.research.Generate(ctx, e); err == nil && out != "" {
			if err := c.state.ApplyResearch(ctx, e.ID, out); err != nil {
				log.Warn("research publish failed", zap.Error(err))
			}
		}
	}

	c.recordActionMetrics(ctx, e.ID)

	status := entry.StatusProcessed
	if coordFailed {
		status = entry.StatusFailed
	}
	rec := &entry.ProcessingRecord{
		ProcessedAt: c.now().UTC(),
		Version:     Version,
		DurationMS:  c.now().Sub(start).Milliseconds(),
	}
	c.finish(ctx, e, status, rec, start)
	return true
}

func (c *Coordinator) finish(ctx context.Context, e *entry.Entry, status entry.Status, rec *entry.ProcessingRecord, start time.Time) {
	if err := c.state.FinishEntry(ctx, e.ID, status, rec); err != nil {
		c.logger.Error("finish entry failed",
			zap.String("entry_id", e.ID), zap.Error(err))
		status = entry.StatusFailed
		// Last resort: try to at least land the failed status.
		if rec != nil {
			_ = c.state.FinishEntry(ctx, e.ID, status, nil)
		}
	}
	if c.metrics != nil {
		c.metrics.RecordEntry(ctx, string(status), c.now().Sub(start))
	}
	c.logger.Info("entry finished",
		zap.String("entry_id", e.ID), zap.String("status", string(status)))
}

func (c *Coordinator) recordActionMetrics(ctx context.Context, entryID string) {
	if c.metrics == nil {
		return
	}
	md, err := c.state.Metadata(ctx, entryID)
	if err != nil {
		return
	}
	for _, act := range md.Actions {
		c.metrics.RecordAction(ctx, string(act.Type), string(act.Status))
	}
}
