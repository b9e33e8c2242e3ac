package aggregate

// welford tracks a running mean and variance using Welford's online
// algorithm, so a bucket never recomputes over its history.
type welford struct {
	count uint64
	mean  float64
	m2    float64
}

// add folds one value into the estimate.
func (w *welford) add(v float64) {
	w.count++
	delta := v - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (v - w.mean)
}

// variance returns the sample variance, or 0 with fewer than two values.
func (w *welford) variance() float64 {
	if w.count < 2 {
		return 0
	}
	return w.m2 / float64(w.count-1)
}

func (w *welford) reset() {
	*w = welford{}
}
