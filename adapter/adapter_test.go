package adapter_test

import (
	"math"
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/flexblock/adapter"
	"go.viam.com/flexblock/flex"
	"go.viam.com/flexblock/logging"
	"go.viam.com/flexblock/testutils/inject"
)

// newDevice returns a device publishing raw lengths and recording override offsets.
func newDevice(raw *[]float64, offsets map[int]float64) *inject.Device {
	return &inject.Device{
		StateFunc: func() flex.State {
			return flex.State{RawRopeLengths: append([]float64(nil), *raw...)}
		},
		InputFunc: func() flex.Input {
			return flex.NewInput(len(*raw))
		},
		SetOverrideOffsetFunc: func(rope int, value float64) error {
			offsets[rope] = value
			return nil
		},
	}
}

func TestChainSkipsDisabledAdapters(t *testing.T) {
	var order []string
	first := adapter.NewFunc("first", func(adapter.Device, time.Duration) { order = append(order, "first") })
	second := adapter.NewFunc("second", func(adapter.Device, time.Duration) { order = append(order, "second") })
	third := adapter.NewFunc("third", func(adapter.Device, time.Duration) { order = append(order, "third") })

	chain := adapter.NewChain(first, second)
	chain.Add(third)
	test.That(t, chain.Adapters(), test.ShouldHaveLength, 3)

	chain.Compute(&inject.Device{}, time.Millisecond)
	test.That(t, order, test.ShouldResemble, []string{"first", "second", "third"})

	order = nil
	second.SetEnabled(false)
	test.That(t, second.Enabled(), test.ShouldBeFalse)
	chain.Compute(&inject.Device{}, time.Millisecond)
	test.That(t, order, test.ShouldResemble, []string{"first", "third"})

	order = nil
	second.SetEnabled(true)
	chain.Compute(&inject.Device{}, time.Millisecond)
	test.That(t, order, test.ShouldResemble, []string{"first", "second", "third"})
}

func TestLag(t *testing.T) {
	logger := logging.NewTestLogger(t)
	a, err := adapter.New(adapter.Config{
		Name:       "smooth",
		Type:       adapter.TypeLag,
		Attributes: map[string]interface{}{"time_constant_ms": 100},
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.Name(), test.ShouldEqual, "smooth")
	test.That(t, a.Enabled(), test.ShouldBeTrue)

	raw := []float64{1, 2}
	offsets := map[int]float64{}
	device := newDevice(&raw, offsets)

	// The filter starts on the first sample.
	a.Compute(device, 100*time.Millisecond)
	test.That(t, offsets[0], test.ShouldEqual, 0)
	test.That(t, offsets[1], test.ShouldEqual, 0)

	// One time constant after a step the filter covered 1 - 1/e of it.
	raw = []float64{2, 2}
	a.Compute(device, 100*time.Millisecond)
	test.That(t, offsets[0], test.ShouldAlmostEqual, -math.Exp(-1), 1e-9)
	test.That(t, offsets[1], test.ShouldEqual, 0)
	test.That(t, a.(*adapter.Lag).Filtered()[0], test.ShouldAlmostEqual, 2-math.Exp(-1), 1e-9)

	for i := 0; i < 200; i++ {
		a.Compute(device, 100*time.Millisecond)
	}
	test.That(t, offsets[0], test.ShouldAlmostEqual, 0, 1e-9)
}

func TestMovingAverage(t *testing.T) {
	logger := logging.NewTestLogger(t)
	a, err := adapter.New(adapter.Config{
		Name:       "average",
		Type:       adapter.TypeMovingAverage,
		Attributes: map[string]interface{}{"window": "2", "gain": 0.5},
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	raw := []float64{1}
	offsets := map[int]float64{}
	device := newDevice(&raw, offsets)

	a.Compute(device, time.Millisecond)
	test.That(t, offsets[0], test.ShouldEqual, 0)

	raw = []float64{3}
	a.Compute(device, time.Millisecond)
	test.That(t, offsets[0], test.ShouldAlmostEqual, -0.5)

	raw = []float64{5}
	a.Compute(device, time.Millisecond)
	test.That(t, offsets[0], test.ShouldAlmostEqual, -0.5)
}

func TestLogAdapter(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	a, err := adapter.New(adapter.Config{
		Name:       "log",
		Type:       adapter.TypeLog,
		Attributes: map[string]interface{}{"interval_ms": 60000},
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	raw := []float64{1}
	device := newDevice(&raw, map[int]float64{})
	for i := 0; i < 10; i++ {
		a.Compute(device, time.Millisecond)
	}
	test.That(t, logs.FilterMessage("flexblock state").Len(), test.ShouldEqual, 1)
}

func TestNewDisabled(t *testing.T) {
	a, err := adapter.New(adapter.Config{Name: "log", Type: adapter.TypeLog, Disabled: true}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, a.Enabled(), test.ShouldBeFalse)
}

func TestConfigValidate(t *testing.T) {
	for _, tc := range []struct {
		name string
		cfg  adapter.Config
		err  string
	}{
		{"no name", adapter.Config{Type: adapter.TypeLog}, `"name" is required`},
		{"no type", adapter.Config{Name: "a"}, `"type" is required`},
		{"unknown type", adapter.Config{Name: "a", Type: "kalman"}, `unknown adapter type "kalman"`},
		{
			"bad time constant",
			adapter.Config{Name: "a", Type: adapter.TypeLag, Attributes: map[string]interface{}{"time_constant_ms": 0}},
			"time_constant_ms must be positive",
		},
		{
			"unknown attribute",
			adapter.Config{Name: "a", Type: adapter.TypeMovingAverage, Attributes: map[string]interface{}{"window": 3, "size": 3}},
			"size",
		},
		{
			"bad window",
			adapter.Config{Name: "a", Type: adapter.TypeMovingAverage, Attributes: map[string]interface{}{"window": 0}},
			"window must be at least 1",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate("adapters.0")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.err)
		})
	}

	cfg := adapter.Config{Name: "a", Type: adapter.TypeLag, Attributes: map[string]interface{}{"time_constant_ms": 50}}
	test.That(t, cfg.Validate("adapters.0"), test.ShouldBeNil)

	_, err := adapter.New(adapter.Config{Name: "a", Type: "kalman"}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeError, `adapter a has unknown type "kalman"`)
}
