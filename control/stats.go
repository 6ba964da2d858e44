package control

import (
	"time"

	"github.com/montanaflynn/stats"
)

const timingWindow = 1000

// Stats describes the achieved timing of the loop.
type Stats struct {
	Ticks uint64
	// TickMean, TickP99 and TickMax describe how long the work of a tick took.
	TickMean time.Duration
	TickP99  time.Duration
	TickMax  time.Duration
	// Frequency is the achieved tick rate in Hz.
	Frequency float64
}

// timing keeps the most recent tick durations and intervals, in seconds.
type timing struct {
	elapsed []float64
	dt      []float64
	pos     int
	full    bool
}

func newTiming(window int) *timing {
	return &timing{elapsed: make([]float64, window), dt: make([]float64, window)}
}

func (t *timing) add(elapsed, dt time.Duration) {
	t.elapsed[t.pos] = elapsed.Seconds()
	t.dt[t.pos] = dt.Seconds()
	t.pos++
	if t.pos == len(t.elapsed) {
		t.pos = 0
		t.full = true
	}
}

func (t *timing) len() int {
	if t.full {
		return len(t.elapsed)
	}
	return t.pos
}

func (t *timing) stats(ticks uint64) (Stats, error) {
	n := t.len()
	elapsed := stats.Float64Data(t.elapsed[:n])
	mean, err := elapsed.Mean()
	if err != nil {
		return Stats{}, err
	}
	p99, err := elapsed.Percentile(99)
	if err != nil {
		return Stats{}, err
	}
	maxElapsed, err := elapsed.Max()
	if err != nil {
		return Stats{}, err
	}
	meanDt, err := stats.Mean(t.dt[:n])
	if err != nil {
		return Stats{}, err
	}

	out := Stats{
		Ticks:    ticks,
		TickMean: seconds(mean),
		TickP99:  seconds(p99),
		TickMax:  seconds(maxElapsed),
	}
	if meanDt > 0 {
		out.Frequency = 1 / meanDt
	}
	return out, nil
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
