package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/eventbus/pkg/eventbus/observability"
)

// DeadLetterEvent is the reserved meta-event name. The bus emits it, with a
// *DeadLetter payload, after a delivery exhausts its retries. Monitors
// subscribe to it exactly as they would to a domain event.
const DeadLetterEvent = "eventbus.deadletter"

// BusConfig configures dispatcher behavior.
type BusConfig struct {
	// MaxListeners warns when a single event name accumulates more than
	// this many subscribers. Leak signal only, never a hard limit.
	// Default: 0 (disabled)
	MaxListeners int

	// Retry governs every handler delivery uniformly.
	// The zero value means DefaultRetry.
	Retry RetryConfig

	// Sink receives deliveries that exhausted their retries.
	// Default: an unbounded MemorySink.
	Sink Sink

	// Logger receives retry and dead-letter logs.
	// Default: slog.Default()
	Logger *slog.Logger

	// Metrics records delivery metrics.
	// Default: observability.NoopMetrics{}
	Metrics observability.MetricsRecorder

	// Spans traces deliveries.
	// Default: observability.NoopSpanManager{}
	Spans observability.SpanManager

	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(event string, attempt int, err error)

	// OnDeadLetter is called after an entry is appended to the sink.
	OnDeadLetter func(dl *DeadLetter)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	Retry: DefaultRetry,
}

// Bus is an in-process dispatcher that decouples event producers from
// consumers while tolerating transient consumer failures. Emit fans out to
// all current subscribers; each delivery runs its own retry sequence and,
// on exhaustion, lands in the dead-letter sink.
//
// A Bus is created once and lives for the process lifetime; there is no
// teardown beyond RemoveAllListeners. Construct isolated instances for
// tests rather than sharing a global.
type Bus struct {
	cfg     BusConfig
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	sink    Sink

	mu       sync.RWMutex
	bindings map[string][]*binding

	nextID atomic.Uint64
}

// binding associates one registered handler with its delivery bookkeeping.
// The registry owns the binding; once removed, the bus holds no reference
// to the handler.
type binding struct {
	id      uint64
	event   string
	handler Handler
	once    bool
	removed atomic.Bool
}

// Subscription is the removal token for one registration. It does not own
// the handler; dropping it without calling Unsubscribe leaves the
// subscription active.
type Subscription interface {
	// Unsubscribe removes the binding. Idempotent: removing an already
	// removed binding is a no-op.
	Unsubscribe()
}

type subscription struct {
	bus *Bus
	b   *binding
}

func (s *subscription) Unsubscribe() {
	s.bus.remove(s.b)
}

// NewBus creates a new dispatcher.
func NewBus(cfg BusConfig) *Bus {
	if cfg.Retry == (RetryConfig{}) {
		cfg.Retry = DefaultRetry
	} else {
		cfg.Retry = cfg.Retry.withDefaults()
	}
	if cfg.Sink == nil {
		cfg.Sink = NewMemorySink(MemorySinkConfig{})
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observability.NoopMetrics{}
	}
	if cfg.Spans == nil {
		cfg.Spans = observability.NoopSpanManager{}
	}

	return &Bus{
		cfg:      cfg,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		spans:    cfg.Spans,
		sink:     cfg.Sink,
		bindings: make(map[string][]*binding),
	}
}

// On registers a persistent subscription for an event name. Registering the
// same handler value twice yields two bindings that both fire.
func (b *Bus) On(event string, h Handler) Subscription {
	return b.subscribe(event, h, false)
}

// Once registers a subscription that is removed the first time the event is
// dispatched to it. Removal happens at dispatch time: the single triggering
// emission still runs the full retry sequence, but a second emission will
// not re-trigger the handler even while those retries are in flight.
func (b *Bus) Once(event string, h Handler) Subscription {
	return b.subscribe(event, h, true)
}

func (b *Bus) subscribe(event string, h Handler, once bool) Subscription {
	bnd := &binding{
		id:      b.nextID.Add(1),
		event:   event,
		handler: h,
		once:    once,
	}

	b.mu.Lock()
	b.bindings[event] = append(b.bindings[event], bnd)
	n := len(b.bindings[event])
	b.mu.Unlock()

	if b.cfg.MaxListeners > 0 && n > b.cfg.MaxListeners {
		b.logger.Warn("possible subscription leak",
			slog.String("event", event),
			slog.Int("listeners", n),
			slog.Int("max_listeners", b.cfg.MaxListeners),
		)
	}

	return &subscription{bus: b, b: bnd}
}

// remove unregisters a binding. The removed flag makes removal idempotent;
// the slice is reallocated so a dispatch snapshot taken earlier keeps
// iterating its own backing array.
func (b *Bus) remove(bnd *binding) {
	if !bnd.removed.CompareAndSwap(false, true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.bindings[bnd.event]
	for i, cur := range list {
		if cur == bnd {
			b.bindings[bnd.event] = append(append([]*binding(nil), list[:i]...), list[i+1:]...)
			break
		}
	}
	if len(b.bindings[bnd.event]) == 0 {
		delete(b.bindings, bnd.event)
	}
}

// RemoveAllListeners clears all bindings for the given event names, or for
// every event name when called with none.
func (b *Bus) RemoveAllListeners(events ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(events) == 0 {
		for _, list := range b.bindings {
			for _, bnd := range list {
				bnd.removed.Store(true)
			}
		}
		b.bindings = make(map[string][]*binding)
		return
	}

	for _, event := range events {
		for _, bnd := range b.bindings[event] {
			bnd.removed.Store(true)
		}
		delete(b.bindings, event)
	}
}

// ListenerCount returns the number of subscribers for an event name.
func (b *Bus) ListenerCount(event string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.bindings[event])
}

// EventNames returns all event names with at least one subscriber.
func (b *Bus) EventNames() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	names := make([]string, 0, len(b.bindings))
	for name := range b.bindings {
		names = append(names, name)
	}
	return names
}

// Emit dispatches payload to every handler currently subscribed to event,
// in registration order. Delivery is fire-and-forget: each handler runs its
// own asynchronous retry sequence and no outcome is reported to the caller.
// With no subscribers Emit is a no-op.
//
// The payload is never mutated by the bus; handlers that mutate a shared
// payload race with each other.
func (b *Bus) Emit(ctx context.Context, event string, payload any) {
	b.mu.RLock()
	snapshot := append([]*binding(nil), b.bindings[event]...)
	b.mu.RUnlock()

	b.metrics.RecordEmit(ctx, event, len(snapshot))
	observability.LogEmit(b.logger, event, len(snapshot))

	if len(snapshot) == 0 {
		return
	}

	// Deliveries outlive the Emit call; the caller's cancellation must not
	// abort retries already in flight.
	dctx := context.WithoutCancel(ctx)

	for _, bnd := range snapshot {
		if bnd.removed.Load() {
			continue
		}
		if bnd.once {
			// Removed at dispatch time, before its retries run.
			b.remove(bnd)
		}
		go b.deliver(dctx, bnd, event, payload)
	}
}

// deliver drives one handler through the retry executor and, on exhaustion,
// records the failure and announces it via the meta-event.
func (b *Bus) deliver(ctx context.Context, bnd *binding, event string, payload any) {
	deliveryID := uuid.New().String()
	log := observability.EnrichLogger(b.logger, event, deliveryID)

	ctx, span := b.spans.StartDeliverySpan(ctx, event, deliveryID)

	res := retryLoop(ctx, b.cfg.Retry, func(ctx context.Context) error {
		return bnd.handler(ctx, payload)
	}, func(attempt int, err error) {
		if attempt >= b.cfg.Retry.MaxRetries {
			return
		}
		observability.LogRetry(log, attempt+1, b.cfg.Retry.Backoff(attempt), err)
		b.metrics.RecordRetry(ctx, event)
		if b.cfg.OnRetry != nil {
			b.cfg.OnRetry(event, attempt, err)
		}
	})

	b.metrics.RecordDelivery(ctx, event, res.Err == nil, res.Duration)
	b.spans.EndSpanWithError(span, res.Err)

	if res.Err == nil {
		observability.LogDelivered(log, res.Attempts, float64(res.Duration.Milliseconds()))
		return
	}

	dl := &DeadLetter{
		ID:       deliveryID,
		Event:    event,
		Payload:  payload,
		Err:      res.Err,
		Attempts: res.Attempts,
		FailedAt: time.Now(),
	}

	observability.LogDeadLetter(log, res.Attempts, &DeliveryError{
		Event:    event,
		Attempts: res.Attempts,
		Err:      res.Err,
	})

	if err := b.sink.Append(ctx, dl); err != nil {
		log.Error("dead letter append failed", slog.String("error", err.Error()))
	}
	b.metrics.RecordDeadLetter(ctx, event)

	if b.cfg.OnDeadLetter != nil {
		b.cfg.OnDeadLetter(dl)
	}

	// A permanently failing meta-event subscriber must not announce itself
	// forever; its entry is still in the sink.
	if event != DeadLetterEvent {
		b.Emit(ctx, DeadLetterEvent, dl)
	}
}

// DeadLetters returns a snapshot of the dead-letter sink.
func (b *Bus) DeadLetters(ctx context.Context) ([]DeadLetter, error) {
	return b.sink.Snapshot(ctx)
}

// ClearDeadLetters empties the dead-letter sink.
func (b *Bus) ClearDeadLetters(ctx context.Context) error {
	return b.sink.Clear(ctx)
}

// Sink returns the configured dead-letter sink.
func (b *Bus) Sink() Sink {
	return b.sink
}
