package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const permissionInstrumentationName = "github.com/fyrsmithlabs/snipd/internal/permission"

// PermissionMetrics holds the capability grant instruments.
type PermissionMetrics struct {
	logger  *zap.Logger
	prompts metric.Int64Counter
}

// NewPermissionMetrics creates the permission instruments off the global
// meter provider.
func NewPermissionMetrics(logger *zap.Logger) *PermissionMetrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &PermissionMetrics{logger: logger}

	var err error
	m.prompts, err = otel.Meter(permissionInstrumentationName).Int64Counter(
		"snipd.permission.prompts_total",
		metric.WithDescription("Permission prompts shown, labeled by capability and outcome (granted, denied, restricted)."),
		metric.WithUnit("{prompt}"),
	)
	if err != nil {
		m.logger.Warn("failed to create permission prompts counter", zap.Error(err))
	}
	return m
}

// RecordPrompt records one resolved permission prompt.
func (m *PermissionMetrics) RecordPrompt(ctx context.Context, capabilityType, outcome string) {
	if m.prompts == nil {
		return
	}
	m.prompts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capabilityType),
		attribute.String("outcome", outcome),
	))
}
