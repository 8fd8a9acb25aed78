// Package telemetry wires OpenTelemetry metrics to a Prometheus
// registry so the HTTP server can expose /metrics. Telemetry failures
// degrade to no-op instruments; they never crash the pipeline.
package telemetry

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/zap"
)

// Telemetry owns the meter provider and the scrape endpoint.
type Telemetry struct {
	provider *sdkmetric.MeterProvider
	registry *prometheus.Registry
	logger   *zap.Logger
}

// Setup installs a Prometheus-backed global meter provider.
func Setup(logger *zap.Logger) (*Telemetry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return &Telemetry{
		provider: provider,
		registry: registry,
		logger:   logger.Named("telemetry"),
	}, nil
}

// Handler returns the /metrics scrape handler.
func (t *Telemetry) Handler() http.Handler {
	return promhttp.HandlerFor(t.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}
