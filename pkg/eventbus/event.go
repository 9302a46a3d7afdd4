package eventbus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler consumes one emitted payload. A nil return means the delivery
// succeeded; any error triggers the bus's retry sequence. Handlers may be
// invoked more than once for the same emission, so they must be safe to
// re-invoke.
type Handler func(ctx context.Context, payload any) error

// Typed adapts a function taking a concrete payload type to a Handler.
//
// Payload conversion, in order:
//   - a payload already of type T is passed through
//   - json.RawMessage and []byte payloads are unmarshaled into T
//   - map[string]any payloads go through a marshal/unmarshal round trip
//
// Anything else fails the delivery, which flows through the normal
// retry and dead-letter path.
func Typed[T any](fn func(ctx context.Context, payload T) error) Handler {
	return func(ctx context.Context, payload any) error {
		var v T

		switch p := payload.(type) {
		case T:
			v = p
		case json.RawMessage:
			if err := json.Unmarshal(p, &v); err != nil {
				return fmt.Errorf("eventbus: unmarshal payload into %T: %w", v, err)
			}
		case []byte:
			if err := json.Unmarshal(p, &v); err != nil {
				return fmt.Errorf("eventbus: unmarshal payload into %T: %w", v, err)
			}
		case map[string]any:
			// JSON round trip path
			raw, err := json.Marshal(p)
			if err != nil {
				return fmt.Errorf("eventbus: marshal payload: %w", err)
			}
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("eventbus: unmarshal payload into %T: %w", v, err)
			}
		default:
			return fmt.Errorf("eventbus: payload type %T does not match %T", payload, v)
		}

		return fn(ctx, v)
	}
}
