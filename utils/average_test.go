package utils

import (
	"testing"

	"go.viam.com/test"
)

func TestRollingAverage(t *testing.T) {
	ra := NewRollingAverage(4)
	test.That(t, ra.NumSamples(), test.ShouldEqual, 4)
	test.That(t, ra.Average(), test.ShouldEqual, 0)

	ra.Add(2)
	ra.Add(4)
	test.That(t, ra.Average(), test.ShouldEqual, 3)

	ra.Add(6)
	ra.Add(8)
	test.That(t, ra.Average(), test.ShouldEqual, 5)

	// The oldest sample (2) is evicted.
	ra.Add(10)
	test.That(t, ra.Average(), test.ShouldEqual, 7)

	ra.Reset()
	test.That(t, ra.Average(), test.ShouldEqual, 0)

	test.That(t, NewRollingAverage(0).NumSamples(), test.ShouldEqual, 1)
}
