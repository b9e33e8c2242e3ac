package aggregate

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perflog/event"
)

func inference(t *testing.T, seconds float64, subject string) event.Event {
	t.Helper()
	ev, err := event.NewInference("t5-small", seconds, 100, 50, subject)
	require.NoError(t, err)
	return ev
}

func TestUpdateRunningStats(t *testing.T) {
	agg := New()
	rep := NewReporter(agg)

	durations := []float64{1.0, 2.0, 3.0, 4.0}
	for _, d := range durations {
		agg.Update(inference(t, d, "chunk_1"))
	}

	snap := rep.Summary(event.Inference, "chunk_1")
	assert.Equal(t, uint64(4), snap.Count)
	assert.InDelta(t, 2.5, snap.AverageDuration, 1e-9)
	assert.Equal(t, 1.0, snap.MinDuration)
	assert.Equal(t, 4.0, snap.MaxDuration)
	assert.Equal(t, uint64(4), snap.SuccessCount)
	assert.Equal(t, uint64(0), snap.ErrorCount)
	assert.Equal(t, 0.0, snap.ErrorRate)
}

func TestVariance(t *testing.T) {
	agg := New()
	rep := NewReporter(agg)

	for _, d := range []float64{1.0, 2.0, 3.0, 4.0} {
		agg.Update(inference(t, d, "chunk_1"))
	}

	// Sample variance of 1..4 is 5/3.
	snap := rep.Summary(event.Inference, "chunk_1")
	assert.InDelta(t, 5.0/3.0, snap.Variance, 1e-9)
}

func TestErrorRateExact(t *testing.T) {
	agg := New()
	rep := NewReporter(agg)

	for i := 0; i < 8; i++ {
		agg.Update(inference(t, 1.0, "chunk_1"))
	}
	for i := 0; i < 2; i++ {
		ev := inference(t, 1.0, "chunk_1")
		ev.Extra["failed"] = true
		agg.Update(ev)
	}

	snap := rep.Summary(event.Inference, "chunk_1")
	assert.Equal(t, uint64(8), snap.SuccessCount)
	assert.Equal(t, uint64(2), snap.ErrorCount)
	assert.Equal(t, 0.2, snap.ErrorRate)
}

func TestErrorKindCountsAsError(t *testing.T) {
	agg := New()
	rep := NewReporter(agg)

	agg.Update(event.NewError("inference", "boom", nil))

	snap := rep.Summary(event.Error, "inference")
	assert.Equal(t, uint64(1), snap.Count)
	assert.Equal(t, uint64(1), snap.ErrorCount)
	assert.Equal(t, 1.0, snap.ErrorRate)
}

func TestSummaryUnknownBucketIsZero(t *testing.T) {
	rep := NewReporter(New())
	assert.Equal(t, Snapshot{}, rep.Summary(event.ModelLoad, "t5-small"))
	assert.Equal(t, Snapshot{}, rep.SummaryKind(event.Inference))
	assert.Empty(t, rep.SummaryAll())
}

func TestSummaryKindWeightedMerge(t *testing.T) {
	agg := New()
	rep := NewReporter(agg)

	// chunk_1: two events averaging 2.0; chunk_2: one event of 8.0.
	agg.Update(inference(t, 1.0, "chunk_1"))
	agg.Update(inference(t, 3.0, "chunk_1"))
	agg.Update(inference(t, 8.0, "chunk_2"))

	snap := rep.SummaryKind(event.Inference)
	assert.Equal(t, uint64(3), snap.Count)
	assert.InDelta(t, 4.0, snap.AverageDuration, 1e-9) // (1+3+8)/3, count-weighted
	assert.Equal(t, 1.0, snap.MinDuration)
	assert.Equal(t, 8.0, snap.MaxDuration)
}

func TestSummaryAll(t *testing.T) {
	agg := New()
	rep := NewReporter(agg)

	agg.Update(inference(t, 1.0, "chunk_1"))
	ml, err := event.NewModelLoad("t5-small", 3.5869, "cpu")
	require.NoError(t, err)
	agg.Update(ml)

	all := rep.SummaryAll()
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[Key{Kind: event.Inference, Subject: "chunk_1"}].Count)
	assert.Equal(t, uint64(1), all[Key{Kind: event.ModelLoad, Subject: "t5-small"}].Count)
}

func TestReset(t *testing.T) {
	agg := New()
	rep := NewReporter(agg)

	agg.Update(inference(t, 1.0, "chunk_1"))
	require.NotEmpty(t, rep.SummaryAll())

	agg.Reset()
	assert.Empty(t, rep.SummaryAll())
}

func TestConcurrentUpdatesExactCount(t *testing.T) {
	const (
		goroutines = 8
		perWorker  = 250
	)
	agg := New()
	rep := NewReporter(agg)
	ev := inference(t, 1.0, "chunk_1")

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				agg.Update(ev)
			}
		}()
	}
	wg.Wait()

	snap := rep.Summary(event.Inference, "chunk_1")
	assert.Equal(t, uint64(goroutines*perWorker), snap.Count)
}

func TestWelford(t *testing.T) {
	var w welford
	for _, v := range []float64{2, 4, 4, 4, 5, 5, 7, 9} {
		w.add(v)
	}
	assert.InDelta(t, 5.0, w.mean, 1e-9)
	// Population variance is 4; sample variance is 32/7.
	assert.InDelta(t, 32.0/7.0, w.variance(), 1e-9)

	w.reset()
	assert.Equal(t, uint64(0), w.count)
	assert.Equal(t, 0.0, w.variance())
}
