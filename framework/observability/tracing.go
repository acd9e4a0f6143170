// Copyright 2024 Projector Contributors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package observability wires the projector core to OpenTelemetry tracing.
// A BatchDriver accepts a *TracingManager as an option and wraps each batch,
// transaction, and handler invocation in a span through it; a nil manager
// (the default) traces through a no-op tracer.
package observability

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
)

// TracingConfig configures the projector's trace provider.
type TracingConfig struct {
	Enabled          bool
	ServiceName      string
	ServiceVersion   string
	Exporter         string // "otlp" or "stdout"
	ExporterEndpoint string
	SamplingRate     float64 // 0.0 - 1.0
	Environment      string
}

// TracingManager owns the trace provider for a running projector process.
// Disabled by default: a projector embedded as a library should not force
// tracing infrastructure on its host unless asked.
type TracingManager struct {
	config   TracingConfig
	tracer   trace.Tracer
	provider *sdktrace.TracerProvider
	exporter sdktrace.SpanExporter
	running  bool
	mu       sync.RWMutex
}

// NewTracingManager builds a TracingManager. With config.Enabled false it
// returns a manager whose Tracer() is nil and whose Start/Stop are no-ops.
func NewTracingManager(config TracingConfig) (*TracingManager, error) {
	if !config.Enabled {
		return &TracingManager{config: config}, nil
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.ServiceName),
			semconv.ServiceVersionKey.String(config.ServiceVersion),
			semconv.DeploymentEnvironmentKey.String(config.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := createExporter(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	sampler := sdktrace.TraceIDRatioBased(config.SamplingRate)
	if config.SamplingRate >= 1.0 {
		sampler = sdktrace.AlwaysSample()
	} else if config.SamplingRate <= 0.0 {
		sampler = sdktrace.NeverSample()
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &TracingManager{
		config:   config,
		tracer:   tp.Tracer(config.ServiceName),
		provider: tp,
		exporter: exporter,
	}, nil
}

func createExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	switch config.Exporter {
	case "otlp":
		client := otlptracehttp.NewClient(
			otlptracehttp.WithEndpoint(config.ExporterEndpoint),
			otlptracehttp.WithInsecure(),
		)
		return otlptrace.New(context.Background(), client)
	case "stdout":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	default:
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
}

// Start marks the manager running. Tracing itself is already active once
// NewTracingManager returns; Start/Stop exist so TracingManager can sit
// behind the same lifecycle convention as the rest of the framework.
func (tm *TracingManager) Start(ctx context.Context) error {
	tm.mu.Lock()
	tm.running = true
	tm.mu.Unlock()
	return nil
}

// Stop flushes and shuts down the trace provider.
func (tm *TracingManager) Stop(ctx context.Context) error {
	tm.mu.Lock()
	tm.running = false
	tm.mu.Unlock()

	if tm.provider != nil {
		return tm.provider.Shutdown(ctx)
	}
	return nil
}

// IsRunning reports whether Start has been called without a matching Stop.
func (tm *TracingManager) IsRunning() bool {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.running
}

// Tracer returns the manager's tracer, or nil if tracing is disabled.
func (tm *TracingManager) Tracer() trace.Tracer {
	return tm.tracer
}

func (tm *TracingManager) tracerOrNoop() trace.Tracer {
	if tm == nil || tm.tracer == nil {
		return otel.Tracer("projector")
	}
	return tm.tracer
}

// TraceBatch wraps one BatchDriver.projectBatch attempt in a span, tagging
// it with the batch's size and whether it is the last of its page.
func (tm *TracingManager) TraceBatch(ctx context.Context, size int, isLastOfPage bool, fn func(context.Context) error) error {
	ctx, span := tm.tracerOrNoop().Start(ctx, "projector.batch")
	defer span.End()

	span.SetAttributes(
		attribute.Int("projector.batch.size", size),
		attribute.Bool("projector.batch.is_last_of_page", isLastOfPage),
	)

	err := fn(ctx)
	span.SetAttributes(attribute.Bool("projector.batch.success", err == nil))
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// TraceTransaction wraps dispatch of a single transaction's events.
func (tm *TracingManager) TraceTransaction(ctx context.Context, transactionID string, checkpoint int64, fn func(context.Context) error) error {
	ctx, span := tm.tracerOrNoop().Start(ctx, "projector.transaction")
	defer span.End()

	span.SetAttributes(
		attribute.String("projector.transaction.id", transactionID),
		attribute.Int64("projector.transaction.checkpoint", checkpoint),
	)

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("projector.transaction.success", false))
	} else {
		span.SetAttributes(attribute.Bool("projector.transaction.success", true))
	}
	return err
}

// TraceHandler wraps a single event-map handler invocation (create, update,
// delete, or custom) for eventKind.
func (tm *TracingManager) TraceHandler(ctx context.Context, eventKind string, fn func(context.Context) error) error {
	ctx, span := tm.tracerOrNoop().Start(ctx, fmt.Sprintf("projector.handler.%s", eventKind))
	defer span.End()

	span.SetAttributes(attribute.String("projector.event.kind", eventKind))

	err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.Bool("projector.handler.success", false))
	} else {
		span.SetAttributes(attribute.Bool("projector.handler.success", true))
	}
	return err
}
