package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"perflog/collector"
	"perflog/event"
	"perflog/storage"
)

func newTestServer(t *testing.T) (*Server, *collector.Collector) {
	t.Helper()
	store, err := storage.NewJSONL(filepath.Join(t.TempDir(), "perflog.jsonl"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	col := collector.New(store, zap.NewNop())
	return New(col, zap.NewNop()), col
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestSummaryEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/performance/summary")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSummaryAfterEvents(t *testing.T) {
	s, col := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, col.LogModelLoading(ctx, "t5-small", 3.5869, "cpu"))
	require.NoError(t, col.LogInference(ctx, "t5-small", 1.9426, 54, 54, "chunk_1"))

	rec := get(t, s, "/api/v1/performance/summary")
	require.Equal(t, http.StatusOK, rec.Code)

	var entries []summaryEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)

	// Sorted by kind, then subject.
	assert.Equal(t, event.Inference, entries[0].Kind)
	assert.Equal(t, "chunk_1", entries[0].Subject)
	assert.Equal(t, uint64(1), entries[0].Count)
	assert.Equal(t, event.ModelLoad, entries[1].Kind)
	assert.Equal(t, "t5-small", entries[1].Subject)
}

func TestSummaryKind(t *testing.T) {
	s, col := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, col.LogInference(ctx, "t5-small", 1.0, 54, 54, "chunk_1"))
	require.NoError(t, col.LogInference(ctx, "t5-small", 3.0, 54, 54, "chunk_2"))

	rec := get(t, s, "/api/v1/performance/summary/Inference")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		Count           uint64  `json:"count"`
		AverageDuration float64 `json:"average_duration"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(2), snap.Count)
	assert.InDelta(t, 2.0, snap.AverageDuration, 1e-9)
}

func TestSummaryKindWithSubject(t *testing.T) {
	s, col := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, col.LogInference(ctx, "t5-small", 1.0, 54, 54, "chunk_1"))
	require.NoError(t, col.LogInference(ctx, "t5-small", 3.0, 54, 54, "chunk_2"))

	rec := get(t, s, "/api/v1/performance/summary/Inference?subject=chunk_2")
	require.Equal(t, http.StatusOK, rec.Code)

	var snap struct {
		Count           uint64  `json:"count"`
		AverageDuration float64 `json:"average_duration"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, uint64(1), snap.Count)
	assert.InDelta(t, 3.0, snap.AverageDuration, 1e-9)
}

func TestSummaryUnknownKind(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/performance/summary/MemoryUsage")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExport(t *testing.T) {
	s, col := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, col.LogModelLoading(ctx, "t5-small", 3.5869, "cpu"))
	require.NoError(t, col.LogInference(ctx, "t5-small", 1.9426, 54, 54, "chunk_1"))

	rec := get(t, s, "/api/v1/performance/export")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []event.Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, event.ModelLoad, events[0].Kind)
	assert.Equal(t, event.Inference, events[1].Kind)
}

func TestExportEmpty(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/api/v1/performance/export")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
