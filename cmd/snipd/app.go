package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/snipd/internal/capability"
	"github.com/fyrsmithlabs/snipd/internal/config"
	"github.com/fyrsmithlabs/snipd/internal/decision"
	"github.com/fyrsmithlabs/snipd/internal/entry"
	"github.com/fyrsmithlabs/snipd/internal/executor"
	"github.com/fyrsmithlabs/snipd/internal/extraction"
	"github.com/fyrsmithlabs/snipd/internal/logging"
	"github.com/fyrsmithlabs/snipd/internal/permission"
	"github.com/fyrsmithlabs/snipd/internal/pipeline"
	"github.com/fyrsmithlabs/snipd/internal/research"
	"github.com/fyrsmithlabs/snipd/internal/state"
	"github.com/fyrsmithlabs/snipd/internal/store"
	"github.com/fyrsmithlabs/snipd/internal/telemetry"
)

// app holds the wired process dependencies.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	repo   *store.Store
	bridge *capability.Bridge
	state  *state.Store
	exec   *executor.Executor
	coord  *pipeline.Coordinator
}

// buildApp wires the full dependency graph. The state store's write
// loop is started on ctx; cancelling ctx stops it.
func buildApp(ctx context.Context, cfg *config.Config, metrics *telemetry.PipelineMetrics) (*app, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	dir, err := cfg.StorageDir()
	if err != nil {
		return nil, err
	}
	repo, err := store.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open entry store: %w", err)
	}

	bridge, err := capability.OpenBridge(dir, capability.NewAutoGrantPolicy(cfg.Grants.AutoGrant))
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("open capability bridge: %w", err)
	}

	reminders := capability.NewReminders(bridge)
	calendar := capability.NewCalendar(bridge)
	contacts := capability.NewContacts(bridge)
	maps := capability.NewMaps(bridge, cfg.Maps)

	gate := permission.NewGate(map[entry.ActionType]capability.Authorizer{
		entry.ActionReminder: reminders,
		entry.ActionCalendar: calendar,
		entry.ActionContact:  contacts,
		entry.ActionMap:      maps,
	}, logger)
	if metrics != nil {
		gate.WithMetrics(telemetry.NewPermissionMetrics(logger))
	}

	st := state.NewStore(repo, logger)
	st.Start(ctx)

	exec := executor.New(gate, executor.Adapters{
		Reminders: reminders,
		Calendar:  calendar,
		Contacts:  contacts,
		Maps:      maps,
	}, st, logger).WithTimeout(cfg.Extraction.Timeout)

	extractor, err := extraction.New(cfg.Extraction)
	if err != nil {
		bridge.Close()
		repo.Close()
		return nil, fmt.Errorf("create extractor: %w", err)
	}
	pc := cfg.Extraction.Providers[cfg.Extraction.Provider]
	logger.Info("extraction configured",
		zap.String("provider", cfg.Extraction.Provider),
		logging.RedactedString("api_key", pc.APIKey))

	// Research rides on the LLM transport; heuristic or disabled
	// extraction means no briefings.
	var gen *research.Generator
	if completer, err := extraction.NewCompleter(cfg.Extraction); err == nil {
		gen = research.New(completer, logger)
		gen.WithTimeout(cfg.Extraction.Timeout)
	}

	coord := pipeline.New(repo, st, extractor, decision.NewEngine(), exec, logger, pipeline.Options{
		Interval:  cfg.Pipeline.Interval,
		BatchSize: cfg.Pipeline.BatchSize,
		Research:  gen,
		Metrics:   metrics,
	})

	return &app{
		cfg:    cfg,
		logger: logger,
		repo:   repo,
		bridge: bridge,
		state:  st,
		exec:   exec,
		coord:  coord,
	}, nil
}

// close releases storage handles.
func (a *app) close() {
	if err := a.bridge.Close(); err != nil {
		a.logger.Warn("close bridge", zap.Error(err))
	}
	if err := a.repo.Close(); err != nil {
		a.logger.Warn("close store", zap.Error(err))
	}
	_ = a.logger.Sync()
}
