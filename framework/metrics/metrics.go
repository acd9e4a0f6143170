// Package metrics collects OpenTelemetry instruments for a running
// projector: batches processed, transactions projected, events dispatched,
// retries consulted, and checkpoint writes.
package metrics

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics is the projector's instrument set. A nil *Metrics is valid and
// every method becomes a no-op, so instrumentation is always optional.
type Metrics struct {
	batchesTotal      metric.Int64Counter
	transactionsTotal metric.Int64Counter
	eventsTotal       metric.Int64Counter
	retriesTotal      metric.Int64Counter
	checkpointWrites  metric.Int64Counter
	batchDuration     metric.Float64Histogram
	errorsTotal       metric.Int64Counter
	activeBatches     metric.Int64UpDownCounter
}

// NewMetrics builds a Metrics collector registered under the "projector"
// meter name.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter("projector")

	batchesTotal, err := meter.Int64Counter(
		"projector_batches_total",
		metric.WithDescription("Total number of batches projected"),
	)
	if err != nil {
		return nil, err
	}

	transactionsTotal, err := meter.Int64Counter(
		"projector_transactions_total",
		metric.WithDescription("Total number of transactions projected"),
	)
	if err != nil {
		return nil, err
	}

	eventsTotal, err := meter.Int64Counter(
		"projector_events_total",
		metric.WithDescription("Total number of events dispatched, including no-op lookups"),
	)
	if err != nil {
		return nil, err
	}

	retriesTotal, err := meter.Int64Counter(
		"projector_retries_total",
		metric.WithDescription("Total number of retry-policy resolutions, by resolution"),
	)
	if err != nil {
		return nil, err
	}

	checkpointWrites, err := meter.Int64Counter(
		"projector_checkpoint_writes_total",
		metric.WithDescription("Total number of checkpoint state rows persisted"),
	)
	if err != nil {
		return nil, err
	}

	batchDuration, err := meter.Float64Histogram(
		"projector_batch_duration_seconds",
		metric.WithDescription("Batch processing duration in seconds, one store transaction per batch"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errorsTotal, err := meter.Int64Counter(
		"projector_errors_total",
		metric.WithDescription("Total number of batch failures, by kind"),
	)
	if err != nil {
		return nil, err
	}

	activeBatches, err := meter.Int64UpDownCounter(
		"projector_active_batches",
		metric.WithDescription("Number of batches currently open against the store"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		batchesTotal:      batchesTotal,
		transactionsTotal: transactionsTotal,
		eventsTotal:       eventsTotal,
		retriesTotal:      retriesTotal,
		checkpointWrites:  checkpointWrites,
		batchDuration:     batchDuration,
		errorsTotal:       errorsTotal,
		activeBatches:     activeBatches,
	}, nil
}

// RecordBatch records one completed batch attempt: its size, duration,
// and whether it succeeded.
func (m *Metrics) RecordBatch(ctx context.Context, size int, duration time.Duration, success bool) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
		attribute.Int("size", size),
	}
	m.batchesTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.batchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	if !success {
		m.errorsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "batch")))
	}
}

// RecordTransaction records one transaction having been fully projected.
func (m *Metrics) RecordTransaction(ctx context.Context) {
	if m == nil {
		return
	}
	m.transactionsTotal.Add(ctx, 1)
}

// RecordEvent records one event having been dispatched through an
// EventMap, whether or not a handler matched.
func (m *Metrics) RecordEvent(ctx context.Context, eventKind string, handled bool) {
	if m == nil {
		return
	}
	m.eventsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event_kind", eventKind),
		attribute.Bool("handled", handled),
	))
}

// RecordRetryResolution records one ExceptionPolicy decision.
func (m *Metrics) RecordRetryResolution(ctx context.Context, resolution string) {
	if m == nil {
		return
	}
	m.retriesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("resolution", resolution)))
}

// RecordCheckpointWrite records one checkpoint state row persisted.
func (m *Metrics) RecordCheckpointWrite(ctx context.Context) {
	if m == nil {
		return
	}
	m.checkpointWrites.Add(ctx, 1)
}

// IncrementActiveBatches marks a batch as having opened its store
// transaction.
func (m *Metrics) IncrementActiveBatches(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeBatches.Add(ctx, 1)
}

// DecrementActiveBatches marks a batch's store transaction as closed,
// committed or rolled back.
func (m *Metrics) DecrementActiveBatches(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeBatches.Add(ctx, -1)
}
