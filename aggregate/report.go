package aggregate

import "perflog/event"

// Snapshot is a point-in-time, immutable read of one bucket, or of a
// merge across buckets. A zero Snapshot means no matching events were
// recorded; queries never fail.
type Snapshot struct {
	Count           uint64  `json:"count"`
	AverageDuration float64 `json:"average_duration"`
	MinDuration     float64 `json:"min_duration"`
	MaxDuration     float64 `json:"max_duration"`
	Variance        float64 `json:"variance"`
	SuccessCount    uint64  `json:"success_count"`
	ErrorCount      uint64  `json:"error_count"`
	ErrorRate       float64 `json:"error_rate"`
}

// Reporter is a read-only view over an Aggregator. Snapshots reflect the
// aggregator state at call time and have no side effects.
type Reporter struct {
	agg *Aggregator
}

// NewReporter wraps the aggregator in a read-only view.
func NewReporter(agg *Aggregator) *Reporter {
	return &Reporter{agg: agg}
}

func (b *bucket) snapshot() Snapshot {
	s := Snapshot{
		Count:        b.count,
		MinDuration:  b.minDuration,
		MaxDuration:  b.maxDuration,
		Variance:     b.stats.variance(),
		SuccessCount: b.successCount,
		ErrorCount:   b.errorCount,
	}
	if b.count > 0 {
		s.AverageDuration = b.sumDuration / float64(b.count)
	}
	if total := b.successCount + b.errorCount; total > 0 {
		s.ErrorRate = float64(b.errorCount) / float64(total)
	}
	return s
}

// Summary returns the snapshot for the exact (kind, subject) bucket.
func (r *Reporter) Summary(kind event.Kind, subject string) Snapshot {
	r.agg.mu.Lock()
	defer r.agg.mu.Unlock()
	b, ok := r.agg.buckets[Key{Kind: kind, Subject: subject}]
	if !ok {
		return Snapshot{}
	}
	return b.snapshot()
}

// SummaryKind merges every subject of the given kind: counts are summed
// and the average duration is weighted by bucket count. Variance is only
// reported for exact buckets and stays 0 in a merged snapshot.
func (r *Reporter) SummaryKind(kind event.Kind) Snapshot {
	r.agg.mu.Lock()
	defer r.agg.mu.Unlock()

	var (
		out   Snapshot
		sum   float64
		first = true
	)
	for k, b := range r.agg.buckets {
		if k.Kind != kind {
			continue
		}
		out.Count += b.count
		out.SuccessCount += b.successCount
		out.ErrorCount += b.errorCount
		sum += b.sumDuration
		if first || b.minDuration < out.MinDuration {
			out.MinDuration = b.minDuration
		}
		if first || b.maxDuration > out.MaxDuration {
			out.MaxDuration = b.maxDuration
		}
		first = false
	}
	if out.Count > 0 {
		out.AverageDuration = sum / float64(out.Count)
	}
	if total := out.SuccessCount + out.ErrorCount; total > 0 {
		out.ErrorRate = float64(out.ErrorCount) / float64(total)
	}
	return out
}

// SummaryAll returns a snapshot for every known bucket.
func (r *Reporter) SummaryAll() map[Key]Snapshot {
	r.agg.mu.Lock()
	defer r.agg.mu.Unlock()

	out := make(map[Key]Snapshot, len(r.agg.buckets))
	for k, b := range r.agg.buckets {
		out[k] = b.snapshot()
	}
	return out
}
