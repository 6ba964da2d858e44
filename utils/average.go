package utils

import "sync"

// RollingAverage computes the mean of the last n samples added to it.
type RollingAverage struct {
	mu     sync.Mutex
	data   []float64
	pos    int
	filled bool
}

// NewRollingAverage returns a rolling average over numSamples samples.
func NewRollingAverage(numSamples int) *RollingAverage {
	if numSamples < 1 {
		numSamples = 1
	}
	return &RollingAverage{data: make([]float64, numSamples)}
}

// NumSamples returns the window size.
func (ra *RollingAverage) NumSamples() int {
	return len(ra.data)
}

// Add stores a sample, evicting the oldest one once the window is full.
func (ra *RollingAverage) Add(x float64) {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	ra.data[ra.pos] = x
	ra.pos++
	if ra.pos >= len(ra.data) {
		ra.pos = 0
		ra.filled = true
	}
}

// Average returns the mean of the samples seen so far, up to the window size.
func (ra *RollingAverage) Average() float64 {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	n := len(ra.data)
	if !ra.filled {
		n = ra.pos
	}
	if n == 0 {
		return 0
	}

	sum := 0.0
	for _, d := range ra.data[:n] {
		sum += d
	}
	return sum / float64(n)
}

// Reset forgets every sample.
func (ra *RollingAverage) Reset() {
	ra.mu.Lock()
	defer ra.mu.Unlock()
	for i := range ra.data {
		ra.data[i] = 0
	}
	ra.pos = 0
	ra.filled = false
}
