package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const pipelineInstrumentationName = "github.com/fyrsmithlabs/snipd/internal/pipeline"

// PipelineMetrics holds the processing pipeline instruments.
type PipelineMetrics struct {
	meter              metric.Meter
	logger             *zap.Logger
	entriesProcessed   metric.Int64Counter
	entryDuration      metric.Float64Histogram
	actionsExecuted    metric.Int64Counter
	extractionFailures metric.Int64Counter
}

// NewPipelineMetrics creates the pipeline instruments off the global
// meter provider.
func NewPipelineMetrics(logger *zap.Logger) *PipelineMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &PipelineMetrics{
		meter:  otel.Meter(pipelineInstrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *PipelineMetrics) init() {
	var err error

	m.entriesProcessed, err = m.meter.Int64Counter(
		"snipd.pipeline.entries_total",
		metric.WithDescription("Entries run to a terminal status, labeled by status (processed, failed)."),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		m.logger.Warn("failed to create entries counter", zap.Error(err))
	}

	m.entryDuration, err = m.meter.Float64Histogram(
		"snipd.pipeline.entry_duration_seconds",
		metric.WithDescription("Wall-clock time to process one entry, extraction through execution."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0),
	)
	if err != nil {
		m.logger.Warn("failed to create entry duration histogram", zap.Error(err))
	}

	m.actionsExecuted, err = m.meter.Int64Counter(
		"snipd.pipeline.actions_total",
		metric.WithDescription("Actions run to a terminal status, labeled by type (reminder, calendar, contact, map) and status (executed, failed)."),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		m.logger.Warn("failed to create actions counter", zap.Error(err))
	}

	m.extractionFailures, err = m.meter.Int64Counter(
		"snipd.pipeline.extraction_failures_total",
		metric.WithDescription("Extraction calls that returned an error; the entry continues with empty facts."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		m.logger.Warn("failed to create extraction failures counter", zap.Error(err))
	}
}

// RecordEntry records one entry reaching a terminal status.
func (m *PipelineMetrics) RecordEntry(ctx context.Context, status string, dur time.Duration) {
	attrs := metric.WithAttributes(attribute.String("status", status))
	if m.entriesProcessed != nil {
		m.entriesProcessed.Add(ctx, 1, attrs)
	}
	if m.entryDuration != nil {
		m.entryDuration.Record(ctx, dur.Seconds(), attrs)
	}
}

// RecordAction records one action reaching a terminal status.
func (m *PipelineMetrics) RecordAction(ctx context.Context, actionType, status string) {
	if m.actionsExecuted == nil {
		return
	}
	m.actionsExecuted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", actionType),
		attribute.String("status", status),
	))
}

// RecordExtractionFailure records a failed extraction call.
func (m *PipelineMetrics) RecordExtractionFailure(ctx context.Context) {
	if m.extractionFailures == nil {
		return
	}
	m.extractionFailures.Add(ctx, 1)
}
