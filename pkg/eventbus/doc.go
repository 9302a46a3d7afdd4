/*
Package eventbus provides an in-process event dispatcher with automatic
retry and dead-letter handling.

# Overview

eventbus decouples producers of domain occurrences from the handlers that
react to them. A producer emits a named event with an opaque payload; every
subscriber for that name is dispatched in registration order, and each
delivery runs its own bounded retry sequence with exponential backoff.
Deliveries that exhaust their retries are appended to a dead-letter sink and
announced through a reserved meta-event, so operators see permanent failures
instead of losing them.

It is a best-effort, single-process notification bus, not a durable message
queue: events are not persisted or buffered, there is no cross-process
delivery, and a handler registered after an emission never sees it.

# Basic Usage

Create a bus, subscribe, emit:

	bus := eventbus.NewBus(eventbus.DefaultBusConfig)

	sub := bus.On("post.created", eventbus.Typed(func(ctx context.Context, p PostCreated) error {
	    return notify(ctx, p.Author)
	}))
	defer sub.Unsubscribe()

	bus.Emit(ctx, "post.created", PostCreated{ID: 7, Author: "ada"})

Emit is fire-and-forget: it returns immediately and reports no per-handler
outcome. Handler errors never reach the producer.

# Retry

Every delivery is retried uniformly per the bus's RetryConfig. The wait
after failed attempt k is min(InitialDelay * BackoffFactor^k, MaxDelay).
With the defaults (3 retries, 100ms initial, factor 2) a failing handler is
attempted 4 times with waits of 100ms, 200ms and 400ms in between. Each
attempt is a fresh invocation, so handlers must be idempotent.

# Dead Letters

Exhausted deliveries land in the configured Sink. MemorySink keeps them for
the process lifetime; SQLiteSink keeps them across restarts. Monitors can
subscribe to the reserved DeadLetterEvent name, or poll the sink:

	bus.On(eventbus.DeadLetterEvent, func(ctx context.Context, payload any) error {
	    dl := payload.(*eventbus.DeadLetter)
	    alert(dl.Event, dl.Err)
	    return nil
	})

	entries, _ := bus.DeadLetters(ctx)
	_ = bus.ClearDeadLetters(ctx)

The meta-event is a notification, not a substitute for the sink: a monitor
that subscribed late still finds the entry via DeadLetters.

# Observability

Structured logging uses slog; metrics and tracing use OpenTelemetry through
the observability subpackage and are opt-in:

	bus := eventbus.NewBus(eventbus.BusConfig{
	    Logger:  logger,
	    Metrics: observability.NewMetricsRecorder(),
	    Spans:   observability.NewSpanManager(),
	})
*/
package eventbus
