package eventbus

import (
	"errors"
	"fmt"
)

// ErrSinkClosed is returned by sink operations after Close.
var ErrSinkClosed = errors.New("eventbus: sink is closed")

// DeliveryError is the terminal failure of one handler delivery: the last
// attempt's error together with how many attempts were made.
type DeliveryError struct {
	Event    string // event name
	Attempts int    // attempts made, retries included
	Err      error  // final attempt's error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("event %s: delivery failed after %d attempts: %v", e.Event, e.Attempts, e.Err)
}

// Unwrap returns the final attempt's error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}
