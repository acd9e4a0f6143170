// Package metrics provides functions to wire up metrics export for a
// running projector process.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	ExporterType   string
	PrometheusPort int
	OTLPEndpoint   string
	SamplingRate   float64
	ResourceAttrs  map[string]string
}

// SetupMetrics wires up the configured exporter and registers the
// resulting MeterProvider as the global one.
func SetupMetrics(config *MetricsConfig) (*metric.MeterProvider, error) {
	if config == nil {
		config = &MetricsConfig{
			ExporterType: "prometheus",
			SamplingRate: 1.0,
		}
	}

	var reader metric.Reader
	var err error

	switch config.ExporterType {
	case "prometheus":
		reader, err = setupPrometheusExporter()
	case "otlp":
		reader, err = setupOTLPExporter(config.OTLPEndpoint)
	default:
		return nil, fmt.Errorf("unknown exporter type: %s", config.ExporterType)
	}

	if err != nil {
		return nil, err
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(buildResourceAttributes(config.ResourceAttrs)...),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	provider := metric.NewMeterProvider(
		metric.WithReader(reader),
		metric.WithResource(res),
	)

	otel.SetMeterProvider(provider)

	return provider, nil
}

func setupPrometheusExporter() (metric.Reader, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}
	return exporter, nil
}

// setupOTLPExporter is not implemented: the OTLP metrics exporter isn't in
// this module's dependency set (only the OTLP trace exporter is). Use the
// Prometheus exporter for metrics.
func setupOTLPExporter(endpoint string) (metric.Reader, error) {
	return nil, fmt.Errorf("OTLP exporter for metrics is not implemented; use the Prometheus exporter")
}

func buildResourceAttributes(attrs map[string]string) []attribute.KeyValue {
	result := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, attribute.String(k, v))
	}
	return result
}

// ShutdownMetrics flushes and shuts down provider.
func ShutdownMetrics(ctx context.Context, provider *metric.MeterProvider) error {
	if provider == nil {
		return nil
	}

	return provider.Shutdown(ctx)
}

