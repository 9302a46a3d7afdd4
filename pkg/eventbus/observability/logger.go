// Package observability provides production-grade observability features
// for eventbus: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds delivery context to a logger.
// Returns a new logger with event and delivery_id fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "post.created", deliveryID)
//	enriched.Warn("attempt failed") // includes event, delivery_id
func EnrichLogger(logger *slog.Logger, event, deliveryID string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("event", event),
		slog.String("delivery_id", deliveryID),
	)
}

// LogEmit logs the dispatch of one emission.
func LogEmit(logger *slog.Logger, event string, subscribers int) {
	if logger == nil {
		return
	}
	logger.Debug("event emitted",
		slog.String("event", event),
		slog.Int("subscribers", subscribers),
	)
}

// LogRetry logs a failed delivery attempt that will be retried.
func LogRetry(logger *slog.Logger, attempt int, backoff time.Duration, err error) {
	if logger == nil {
		return
	}
	logger.Warn("delivery attempt failed, retrying",
		slog.Int("attempt", attempt),
		slog.Duration("backoff", backoff),
		slog.String("error", err.Error()),
	)
}

// LogDeadLetter logs a delivery that exhausted its retries.
func LogDeadLetter(logger *slog.Logger, attempts int, err error) {
	if logger == nil {
		return
	}
	logger.Error("delivery dead-lettered",
		slog.Int("attempts", attempts),
		slog.String("error", err.Error()),
	)
}

// LogDelivered logs a successful delivery.
func LogDelivered(logger *slog.Logger, attempts int, durationMs float64) {
	if logger == nil {
		return
	}
	logger.Debug("delivery completed",
		slog.Int("attempts", attempts),
		slog.Float64("duration_ms", durationMs),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
