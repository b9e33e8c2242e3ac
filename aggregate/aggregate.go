// Package aggregate keeps running statistics over performance events,
// one bucket per (kind, subject) pair. Buckets are purely derived state:
// they can always be rebuilt by replaying the durable metric store.
package aggregate

import (
	"sync"

	"perflog/event"
)

// Key identifies one bucket of running statistics.
type Key struct {
	Kind    event.Kind
	Subject string
}

type bucket struct {
	count        uint64
	sumDuration  float64
	minDuration  float64
	maxDuration  float64
	successCount uint64
	errorCount   uint64
	stats        welford
}

// Aggregator owns the bucket table. All mutation goes through Update,
// guarded by a single mutex so concurrent call sites never lose counts.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[Key]*bucket
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{buckets: make(map[Key]*bucket)}
}

// Update folds one event into its bucket in O(1). The bucket is created
// lazily on the first event for its key.
func (a *Aggregator) Update(ev event.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	k := Key{Kind: ev.Kind, Subject: ev.Subject}
	b, ok := a.buckets[k]
	if !ok {
		b = &bucket{
			minDuration: ev.DurationSeconds,
			maxDuration: ev.DurationSeconds,
		}
		a.buckets[k] = b
	}
	b.count++
	b.sumDuration += ev.DurationSeconds
	if ev.DurationSeconds < b.minDuration {
		b.minDuration = ev.DurationSeconds
	}
	if ev.DurationSeconds > b.maxDuration {
		b.maxDuration = ev.DurationSeconds
	}
	if ev.Failed() {
		b.errorCount++
	} else {
		b.successCount++
	}
	b.stats.add(ev.DurationSeconds)
}

// Reset drops every bucket. The metric store is unaffected; use it for
// test isolation or a periodic rollover.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets = make(map[Key]*bucket)
}
