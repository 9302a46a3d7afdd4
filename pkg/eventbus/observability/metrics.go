package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records eventbus metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEmit records one emission and its current subscriber count.
	RecordEmit(ctx context.Context, event string, subscribers int)

	// RecordDelivery records a completed delivery with its terminal outcome.
	RecordDelivery(ctx context.Context, event string, success bool, duration time.Duration)

	// RecordRetry records one retried delivery attempt.
	RecordRetry(ctx context.Context, event string)

	// RecordDeadLetter records a delivery that exhausted its retries.
	RecordDeadLetter(ctx context.Context, event string)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	emits           metric.Int64Counter
	deliveries      metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	retries         metric.Int64Counter
	deadLetters     metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventbus")

	emits, err := meter.Int64Counter("eventbus.emits",
		metric.WithDescription("Number of emitted events"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("eventbus.deliveries",
		metric.WithDescription("Number of completed handler deliveries"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("eventbus.delivery.latency_ms",
		metric.WithDescription("Delivery latency in milliseconds, retries included"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	retries, err := meter.Int64Counter("eventbus.retries",
		metric.WithDescription("Number of retried delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	deadLetters, err := meter.Int64Counter("eventbus.dead_letters",
		metric.WithDescription("Number of dead-lettered deliveries"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		emits:           emits,
		deliveries:      deliveries,
		deliveryLatency: deliveryLatency,
		retries:         retries,
		deadLetters:     deadLetters,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEmit records one emission.
func (m *otelMetrics) RecordEmit(ctx context.Context, event string, subscribers int) {
	m.emits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
		attribute.Int("subscribers", subscribers),
	))
}

// RecordDelivery records a completed delivery.
func (m *otelMetrics) RecordDelivery(ctx context.Context, event string, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("event", event),
		attribute.Bool("success", success),
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.deliveryLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordRetry records one retried attempt.
func (m *otelMetrics) RecordRetry(ctx context.Context, event string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
	))
}

// RecordDeadLetter records a dead-lettered delivery.
func (m *otelMetrics) RecordDeadLetter(ctx context.Context, event string) {
	m.deadLetters.Add(ctx, 1, metric.WithAttributes(
		attribute.String("event", event),
	))
}
