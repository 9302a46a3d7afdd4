// Package config loads dispatcher configuration from YAML or JSON files.
//
// The recognized keys mirror the process-wide settings read once at
// startup: listener-leak warning threshold, retry bounds, and the
// dead-letter sink shape. The backoff multiplier is fixed at 2 and is
// deliberately not a file key.
package config

import (
	"fmt"
	"time"

	"github.com/randalmurphal/eventbus/pkg/eventbus"
)

// File is the on-disk configuration shape.
type File struct {
	// MaxListeners warns about likely subscription leaks. 0 disables.
	MaxListeners int `yaml:"max_listeners" json:"max_listeners"`

	// MaxRetries is the number of retries per delivery (total attempts =
	// MaxRetries + 1). Absent means the default; an explicit 0 disables
	// retries.
	MaxRetries *int `yaml:"max_retries" json:"max_retries"`

	// InitialDelayMs / MaxDelayMs bound the exponential backoff.
	InitialDelayMs int `yaml:"initial_delay_ms" json:"initial_delay_ms"`
	MaxDelayMs     int `yaml:"max_delay_ms" json:"max_delay_ms"`

	// DeadLetterMaxSize bounds the in-memory sink. 0 keeps it unbounded.
	DeadLetterMaxSize int `yaml:"dead_letter_max_size" json:"dead_letter_max_size"`

	// DeadLetterPath, when set, stores dead letters in a SQLite database
	// at this path instead of in memory.
	DeadLetterPath string `yaml:"dead_letter_path" json:"dead_letter_path"`
}

// Validate checks the configuration for contradictions.
func (f *File) Validate() error {
	if f.MaxListeners < 0 {
		return fmt.Errorf("max_listeners must be non-negative, got %d", f.MaxListeners)
	}
	if f.MaxRetries != nil && *f.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative, got %d", *f.MaxRetries)
	}
	if f.InitialDelayMs < 0 {
		return fmt.Errorf("initial_delay_ms must be non-negative, got %d", f.InitialDelayMs)
	}
	if f.MaxDelayMs < 0 {
		return fmt.Errorf("max_delay_ms must be non-negative, got %d", f.MaxDelayMs)
	}
	if f.MaxDelayMs > 0 && f.InitialDelayMs > f.MaxDelayMs {
		return fmt.Errorf("max_delay_ms (%d) must be >= initial_delay_ms (%d)", f.MaxDelayMs, f.InitialDelayMs)
	}
	if f.DeadLetterMaxSize < 0 {
		return fmt.Errorf("dead_letter_max_size must be non-negative, got %d", f.DeadLetterMaxSize)
	}
	if f.DeadLetterPath != "" && f.DeadLetterMaxSize > 0 {
		return fmt.Errorf("dead_letter_path and dead_letter_max_size are mutually exclusive")
	}
	return nil
}

// BusConfig builds the dispatcher configuration. Unset keys fall back to
// eventbus defaults. When DeadLetterPath is set, the returned config owns a
// SQLiteSink; the caller is responsible for closing it at shutdown.
func (f *File) BusConfig() (eventbus.BusConfig, error) {
	if err := f.Validate(); err != nil {
		return eventbus.BusConfig{}, err
	}

	retry := eventbus.DefaultRetry
	if f.MaxRetries != nil {
		retry.MaxRetries = *f.MaxRetries
	}
	if f.InitialDelayMs > 0 {
		retry.InitialDelay = time.Duration(f.InitialDelayMs) * time.Millisecond
	}
	if f.MaxDelayMs > 0 {
		retry.MaxDelay = time.Duration(f.MaxDelayMs) * time.Millisecond
	}
	if retry.MaxDelay < retry.InitialDelay {
		retry.MaxDelay = retry.InitialDelay
	}

	cfg := eventbus.BusConfig{
		MaxListeners: f.MaxListeners,
		Retry:        retry,
	}

	switch {
	case f.DeadLetterPath != "":
		sink, err := eventbus.NewSQLiteSink(f.DeadLetterPath)
		if err != nil {
			return eventbus.BusConfig{}, fmt.Errorf("open dead-letter store: %w", err)
		}
		cfg.Sink = sink
	case f.DeadLetterMaxSize > 0:
		cfg.Sink = eventbus.NewMemorySink(eventbus.MemorySinkConfig{MaxSize: f.DeadLetterMaxSize})
	}

	return cfg, nil
}
