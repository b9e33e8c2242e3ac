package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"perflog/event"
)

// JSONL appends one JSON object per line to a plain file. It is the
// lighter alternative to the SQLite back-end: no schema, easy to tail,
// trivially consumed by offline tooling.
type JSONL struct {
	mu   sync.Mutex
	path string
	f    *os.File
	log  *zap.Logger
}

// NewJSONL opens (or creates) the log file at path for appending.
func NewJSONL(path string, log *zap.Logger) (*JSONL, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open jsonl file: %w", err)
	}
	return &JSONL{path: path, f: f, log: log}, nil
}

// Append writes one event as a single JSON line. Writes are serialized
// by a mutex so concurrent events never interleave partially.
func (j *JSONL) Append(ctx context.Context, ev event.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return persistErr("append", fmt.Errorf("encode event: %w", err))
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return persistErr("append", fmt.Errorf("store is closed"))
	}
	if _, err := j.f.Write(append(b, '\n')); err != nil {
		return persistErr("append", err)
	}
	j.log.Debug("event persisted",
		zap.String("kind", string(ev.Kind)), zap.String("subject", ev.Subject))
	return nil
}

// Export re-reads the whole file and returns every event in insertion
// order.
func (j *JSONL) Export(ctx context.Context) ([]event.Event, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	f, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, persistErr("export", err)
	}
	defer f.Close()

	var out []event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var ev event.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return nil, persistErr("export", fmt.Errorf("decode line: %w", err))
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, persistErr("export", err)
	}
	return out, nil
}

// Query filters the exported sequence by kind and time range.
func (j *JSONL) Query(ctx context.Context, kind event.Kind, from, to time.Time) ([]event.Event, error) {
	all, err := j.Export(ctx)
	if err != nil {
		return nil, err
	}
	var out []event.Event
	for _, ev := range all {
		if kind != "" && ev.Kind != kind {
			continue
		}
		if ev.Timestamp.Before(from) || ev.Timestamp.After(to) {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// Close flushes and closes the underlying file.
func (j *JSONL) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.f == nil {
		return nil
	}
	err := j.f.Close()
	j.f = nil
	return err
}
