package eventbus

import (
	"context"
	"sync"
	"time"
)

// DeadLetter records one delivery that exhausted its retries.
// Entries are immutable once appended.
type DeadLetter struct {
	ID       string    `json:"id"`       // unique entry ID
	Event    string    `json:"event"`    // event name
	Payload  any       `json:"payload"`  // payload as emitted
	Err      error     `json:"-"`        // final attempt's error
	Attempts int       `json:"attempts"` // attempts made, retries included
	FailedAt time.Time `json:"failed_at"`
}

// Sink is an ordered record of terminally failed deliveries, kept for
// operator inspection and manual reprocessing. The bus appends; retention
// is the caller's decision via Clear.
type Sink interface {
	// Append adds an entry. Entries are never merged or reordered.
	Append(ctx context.Context, dl *DeadLetter) error

	// Snapshot returns a copy of the current entries in append order.
	// Mutating the returned slice does not affect the sink.
	Snapshot(ctx context.Context) ([]DeadLetter, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Len returns the number of entries.
	Len(ctx context.Context) (int, error)
}

// MemorySinkConfig configures the in-memory sink.
type MemorySinkConfig struct {
	// MaxSize bounds the sink; the oldest entry is evicted on overflow.
	// Default: 0 (unbounded)
	MaxSize int
}

// MemorySink is an in-memory Sink. It lives for the process lifetime and is
// the default sink for a Bus.
type MemorySink struct {
	mu      sync.Mutex
	entries []DeadLetter
	cfg     MemorySinkConfig

	// Metrics
	appended int64
	evicted  int64
	cleared  int64
}

// Compile-time interface check.
var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates a new in-memory dead-letter sink.
func NewMemorySink(cfg MemorySinkConfig) *MemorySink {
	return &MemorySink{cfg: cfg}
}

// Append adds an entry, evicting the oldest when MaxSize is exceeded.
func (s *MemorySink) Append(_ context.Context, dl *DeadLetter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, *dl)
	s.appended++

	if s.cfg.MaxSize > 0 && len(s.entries) > s.cfg.MaxSize {
		over := len(s.entries) - s.cfg.MaxSize
		s.entries = append([]DeadLetter(nil), s.entries[over:]...)
		s.evicted += int64(over)
	}
	return nil
}

// Snapshot returns a defensive copy of the entries.
func (s *MemorySink) Snapshot(_ context.Context) ([]DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]DeadLetter(nil), s.entries...), nil
}

// Clear empties the sink.
func (s *MemorySink) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cleared += int64(len(s.entries))
	s.entries = nil
	return nil
}

// Len returns the number of entries.
func (s *MemorySink) Len(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// Stats returns sink statistics.
func (s *MemorySink) Stats() SinkStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SinkStats{
		Size:     len(s.entries),
		Appended: s.appended,
		Evicted:  s.evicted,
		Cleared:  s.cleared,
	}
}

// SinkStats provides statistics about a MemorySink.
type SinkStats struct {
	Size     int   // current entry count
	Appended int64 // total entries appended
	Evicted  int64 // total entries evicted by the size bound
	Cleared  int64 // total entries removed by Clear
}
