// Package collector is the single entry point instrumented call sites
// use to report performance events. Each event is folded into the
// in-memory aggregates first and then appended to the durable store, so
// a failed persist never hides the event from summaries.
package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"perflog/aggregate"
	"perflog/event"
	"perflog/storage"
)

// Collector routes events to the metric store and the aggregator and
// exposes reporter queries. It is safe for concurrent use; construct one
// per process and inject it into call sites.
type Collector struct {
	store    storage.Store
	agg      *aggregate.Aggregator
	reporter *aggregate.Reporter
	log      *zap.Logger
	clock    func() time.Time

	mu     sync.Mutex
	lastTS time.Time
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock replaces the wall clock, for tests.
func WithClock(clock func() time.Time) Option {
	return func(c *Collector) { c.clock = clock }
}

// New builds a Collector around the given store. The logger carries the
// human-readable narrative log; pass zap.NewNop() to disable it.
func New(store storage.Store, log *zap.Logger, opts ...Option) *Collector {
	c := &Collector{
		store: store,
		agg:   aggregate.New(),
		log:   log,
		clock: time.Now,
	}
	c.reporter = aggregate.NewReporter(c.agg)
	for _, o := range opts {
		o(c)
	}
	return c
}

// Replay rebuilds the in-memory aggregates from the store. Buckets are
// derived state, so a restarted process recovers its running statistics
// from the durable log.
func (c *Collector) Replay(ctx context.Context) error {
	evs, err := c.store.Export(ctx)
	if err != nil {
		return err
	}
	c.agg.Reset()
	for _, ev := range evs {
		c.agg.Update(ev)
	}
	c.log.Info("aggregates rebuilt from metric store", zap.Int("events", len(evs)))
	return nil
}

// stamp returns a timestamp that never decreases within the process,
// even if the wall clock steps backwards. Callers hold c.mu.
func (c *Collector) stamp() time.Time {
	now := c.clock()
	if now.Before(c.lastTS) {
		now = c.lastTS
	}
	c.lastTS = now
	return now
}

func (c *Collector) record(ctx context.Context, ev event.Event) error {
	c.mu.Lock()
	ev.Timestamp = c.stamp()
	c.agg.Update(ev)
	c.mu.Unlock()
	return c.store.Append(ctx, ev)
}

// LogModelLoading records a ModelLoad event for the given model.
func (c *Collector) LogModelLoading(ctx context.Context, model string, seconds float64, device string) error {
	ev, err := event.NewModelLoad(model, seconds, device)
	if err != nil {
		return err
	}
	c.log.Info(fmt.Sprintf("Model %q loaded on %s in %.4f seconds", model, device, seconds),
		zap.String("kind", string(event.ModelLoad)),
		zap.String("model", model),
		zap.String("device", device),
		zap.Float64("duration_seconds", seconds))
	return c.record(ctx, ev)
}

// LogInference records an Inference event. The subject (typically a
// chunk identifier) keys the bucket; throughput in chars/s is attached
// to the event, 0 when the duration is 0.
func (c *Collector) LogInference(ctx context.Context, model string, seconds float64, inputLen, outputLen int, subject string) error {
	ev, err := event.NewInference(model, seconds, inputLen, outputLen, subject)
	if err != nil {
		return err
	}
	throughput, _ := ev.Extra["throughput"].(float64)
	c.log.Info(fmt.Sprintf("Inference completed - Model: %s, Time: %.4fs, Input: %d chars, Output: %d chars, Throughput: %.2f chars/s",
		model, seconds, inputLen, outputLen, throughput),
		zap.String("kind", string(event.Inference)),
		zap.String("model", model),
		zap.String("subject", subject),
		zap.Float64("duration_seconds", seconds),
		zap.Int("input_size", inputLen),
		zap.Int("output_size", outputLen),
		zap.Float64("throughput", throughput))
	return c.record(ctx, ev)
}

// LogPreprocessing records a Preprocessing event for one operation.
func (c *Collector) LogPreprocessing(ctx context.Context, operation string, seconds float64, textLen, chunkCount int) error {
	ev, err := event.NewPreprocessing(operation, seconds, textLen, chunkCount)
	if err != nil {
		return err
	}
	throughput, _ := ev.Extra["throughput"].(float64)
	c.log.Info(fmt.Sprintf("Preprocessing %q completed - Text: %d chars, Time: %.4fs, Chunks: %d, Throughput: %.2f chars/s",
		operation, textLen, seconds, chunkCount, throughput),
		zap.String("kind", string(event.Preprocessing)),
		zap.String("operation", operation),
		zap.Float64("duration_seconds", seconds),
		zap.Int("input_size", textLen),
		zap.Int("chunk_count", chunkCount))
	return c.record(ctx, ev)
}

// LogTotalProcessing records a TotalProcessing event for one end-to-end
// summarization run.
func (c *Collector) LogTotalProcessing(ctx context.Context, seconds float64, chunkCount, successCount, errorCount int) error {
	ev, err := event.NewTotalProcessing(seconds, chunkCount, successCount, errorCount)
	if err != nil {
		return err
	}
	errorRate, _ := ev.Extra["error_rate"].(float64)
	c.log.Info(fmt.Sprintf("Total processing completed - Time: %.4fs, Chunks: %d, Success: %d, Errors: %d (%.1f%%)",
		seconds, chunkCount, successCount, errorCount, errorRate*100),
		zap.String("kind", string(event.TotalProcessing)),
		zap.Float64("duration_seconds", seconds),
		zap.Int("chunk_count", chunkCount),
		zap.Int("success_count", successCount),
		zap.Int("error_count", errorCount),
		zap.Float64("error_rate", errorRate))
	return c.record(ctx, ev)
}

// LogError records an Error event. Callers may record it alongside, or
// instead of, the success event for the same operation.
func (c *Collector) LogError(ctx context.Context, source, message string, metadata map[string]any) error {
	ev := event.NewError(source, message, metadata)
	c.log.Error(fmt.Sprintf("ERROR [%s]: %s", source, message),
		zap.String("kind", string(event.Error)),
		zap.String("source", source),
		zap.Any("metadata", metadata))
	return c.record(ctx, ev)
}

// Summary returns the snapshot for the exact (kind, subject) bucket.
func (c *Collector) Summary(kind event.Kind, subject string) aggregate.Snapshot {
	return c.reporter.Summary(kind, subject)
}

// SummaryKind merges every subject of the given kind.
func (c *Collector) SummaryKind(kind event.Kind) aggregate.Snapshot {
	return c.reporter.SummaryKind(kind)
}

// SummaryAll returns a snapshot per known bucket. Called before any
// event is logged it returns an empty map, never an error.
func (c *Collector) SummaryAll() map[aggregate.Key]aggregate.Snapshot {
	return c.reporter.SummaryAll()
}

// Export returns the full persisted event sequence in insertion order.
func (c *Collector) Export(ctx context.Context) ([]event.Event, error) {
	return c.store.Export(ctx)
}

// Reset clears the in-memory aggregates. The metric store keeps its
// history.
func (c *Collector) Reset() {
	c.agg.Reset()
}

// StartTimer returns the current time for use with Since.
func (c *Collector) StartTimer() time.Time {
	return c.clock()
}

// Since converts the elapsed time since start into seconds, the unit the
// logging methods take.
func (c *Collector) Since(start time.Time) float64 {
	return c.clock().Sub(start).Seconds()
}

// Close flushes the narrative log and closes the metric store.
func (c *Collector) Close() error {
	_ = c.log.Sync()
	return c.store.Close()
}
