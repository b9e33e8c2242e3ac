// Package storage persists performance events in an ordered, append-only
// log that can be exported later for offline analysis.
package storage

import (
	"context"
	"fmt"
	"time"

	"perflog/event"
)

// PersistenceError reports a failed write or read against the durable
// sink. The in-memory aggregates are unaffected when an append fails, so
// callers can distinguish "my metric is lost" from "my input was
// malformed" and log-and-continue.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("metric store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Store abstracts a durable, append-only back-end for performance events.
type Store interface {
	// Append persists one event. It is synchronous and never silently
	// drops: a failed write surfaces as *PersistenceError.
	Append(ctx context.Context, ev event.Event) error

	// Export returns every persisted event in insertion order. Calling it
	// repeatedly neither duplicates nor mutates entries.
	Export(ctx context.Context) ([]event.Event, error)

	// Query returns events of one kind with timestamps in [from, to],
	// in insertion order. An empty kind matches all kinds.
	Query(ctx context.Context, kind event.Kind, from, to time.Time) ([]event.Event, error)

	// Close releases any resources (e.g. DB connections).
	Close() error
}

func persistErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Err: err}
}
