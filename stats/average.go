package stats

// RunningAverage keeps the average of all the samples added
// to it without keeping the samples themselves. It is not safe
// for concurrent use
type RunningAverage struct {
	count uint64
	value float64
}

// Add adds a sample and returns the updated average
func (a *RunningAverage) Add(sample float64) float64 {
	a.count++
	return a.Update(sample, a.count)
}

// Update folds the sample into the average assuming that it is the
// n-th sample. The average becomes (avg*(n-1)+sample)/n
func (a *RunningAverage) Update(sample float64, n uint64) float64 {
	if n == 0 {
		return a.value
	}

	a.count = n
	a.value = (a.value*float64(n-1) + sample) / float64(n)
	return a.value
}

// Value returns the current average
func (a *RunningAverage) Value() float64 {
	return a.value
}

// Reset discards all the samples
func (a *RunningAverage) Reset() {
	a.count = 0
	a.value = 0
}
