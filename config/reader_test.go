package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/flexblock/adapter"
	"go.viam.com/flexblock/control"
	"go.viam.com/flexblock/logging"
	"go.viam.com/flexblock/mac"
	"go.viam.com/flexblock/shape"
)

// repoFile returns the path of a file given relative to the repository root.
func repoFile(t *testing.T, name string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	test.That(t, ok, test.ShouldBeTrue)
	return filepath.Join(filepath.Dir(thisFile), "..", name)
}

func TestFromReaderValidate(t *testing.T) {
	_, err := FromReader("somepath", strings.NewReader(""))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "EOF")

	_, err = FromReader("somepath", strings.NewReader(`{"cloud": 1}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `unknown field "cloud"`)

	conf, err := FromReader("somepath", strings.NewReader(`{}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.ConfigFilePath, test.ShouldEqual, "somepath")
	test.That(t, conf.Shape, test.ShouldResemble, shape.Default())
	test.That(t, conf.Loop, test.ShouldResemble, control.DefaultConfig())
	test.That(t, conf.Master, test.ShouldBeNil)
	test.That(t, conf.Log.Level, test.ShouldEqual, logging.INFO)

	// Absent loop fields keep their defaults.
	conf, err = FromReader("somepath", strings.NewReader(`{"loop": {"frequency": 500}, "log": {"level": "debug"}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Loop.Frequency, test.ShouldEqual, 500)
	test.That(t, conf.Loop.StepsPerMeter, test.ShouldEqual, control.DefaultStepsPerMeter)
	test.That(t, conf.Log.Level, test.ShouldEqual, logging.DEBUG)

	// An explicit zero drive limit is not replaced by its default.
	conf, err = FromReader("somepath", strings.NewReader(`{"mac": {"torque_pct": 0}}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.MAC.TorquePct(), test.ShouldEqual, 0)
	test.That(t, conf.MAC.VelocityRPM(), test.ShouldEqual, mac.DefaultVelocity)

	_, err = FromReader("somepath", strings.NewReader(`{"master": {}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"adapter" is required`)

	_, err = FromReader("somepath", strings.NewReader(`{"adapters": [{"type": "lag"}]}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `adapters.0`)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"name" is required`)

	_, err = FromReader("somepath", strings.NewReader(
		`{"adapters": [{"name": "a", "type": "log"}, {"name": "a", "type": "log"}]}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `adapter name "a" is not unique`)

	// Every section is validated, not only the first failing one.
	_, err = FromReader("somepath", strings.NewReader(`{"loop": {"frequency": -1}, "mac": {"torque_pct": 900}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "frequency must be in")
	test.That(t, err.Error(), test.ShouldContainSubstring, "torque_pct must be in")

	_, err = FromReader("somepath", strings.NewReader(`{"loop": {"motor_mapping": [0, 1]}}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "motor_mapping has 2 entries but there are 8 ropes")

	_, err = FromReader("somepath", strings.NewReader(`{"shape": {}, "shape_file": "x.json"}`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "only one of shape and shape_file")
}

func TestInlineShape(t *testing.T) {
	conf, err := FromReader("somepath", strings.NewReader(`{
		"shape": {
			"name": "pair",
			"motors": 2,
			"size": {"name": "small", "values": {"object": [1, 1, 1], "frame": [2, 2, 2]}},
			"points": {"object": [[0, 0, -1], [0, 0, 1]], "frame": [[0, 0, -1], [0, 0, 1]]},
			"elements": {"object": [[0, 1]], "object2frame": [[0, 0], [1, 1]], "frame": [[0, 1]]}
		},
		"loop": {"motor_mapping": [1, 0]}
	}`))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, conf.Shape.Name, test.ShouldEqual, "pair")
	test.That(t, conf.Shape.Motors, test.ShouldEqual, 2)
}

func TestReadExampleConfig(t *testing.T) {
	t.Setenv("FLEXBLOCK_ADAPTER", "enp3s0")
	conf, err := Read(repoFile(t, "etc/flexblock.json"))
	test.That(t, err, test.ShouldBeNil)

	test.That(t, conf.Master, test.ShouldNotBeNil)
	test.That(t, conf.Master.Adapter, test.ShouldEqual, "enp3s0")
	test.That(t, conf.Master.ForceOperational, test.ShouldBeTrue)
	test.That(t, conf.Shape, test.ShouldResemble, shape.Default())
	test.That(t, conf.Loop.EnableMotors, test.ShouldBeTrue)
	test.That(t, conf.MAC.RecoveryDelayMs, test.ShouldEqual, 500)
	test.That(t, conf.MAC.TorquePct(), test.ShouldEqual, 120)
	test.That(t, conf.Adapters, test.ShouldHaveLength, 2)
	test.That(t, conf.Adapters[0].Type, test.ShouldEqual, adapter.TypeLag)
	test.That(t, conf.Log.File.MaxBackups, test.ShouldEqual, 5)
	test.That(t, conf.PresetsPath(), test.ShouldEqual, repoFile(t, "etc/presets.json"))

	presets, err := ReadPresets(conf.PresetsPath())
	test.That(t, err, test.ShouldBeNil)
	initial, ok := presets.Input(InitialPreset, 8)
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, initial.Slack, test.ShouldEqual, 0.02)
	test.That(t, initial.Drive, test.ShouldHaveLength, 8)
	_, ok = presets.Input("missing", 8)
	test.That(t, ok, test.ShouldBeFalse)
}

func TestReadMissingShapeFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "flexblock.json")
	test.That(t, os.WriteFile(path, []byte(`{"shape_file": "nope.yaml"}`), 0o600), test.ShouldBeNil)
	_, err := Read(path)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read shape file")
	test.That(t, err.Error(), test.ShouldContainSubstring, filepath.Join(dir, "nope.yaml"))
}

func TestPresetsWatcher(t *testing.T) {
	logger := logging.NewTestLogger(t)
	path := filepath.Join(t.TempDir(), "presets.json")
	write := func(slack string) {
		t.Helper()
		data := `{"initial": {"drive": [0, 0], "override": [0, 0], "slack": ` + slack + `}}`
		test.That(t, os.WriteFile(path, []byte(data), 0o600), test.ShouldBeNil)
	}
	write("0.1")

	var mu sync.Mutex
	var last Presets
	w, err := NewWatcher(logger, path, func(p Presets) {
		mu.Lock()
		defer mu.Unlock()
		last = p
	})
	test.That(t, err, test.ShouldBeNil)
	defer func() {
		test.That(t, w.Close(), test.ShouldBeNil)
	}()

	write("0.25")
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mu.Lock()
		defer mu.Unlock()
		test.That(tb, last, test.ShouldNotBeNil)
		test.That(tb, last["initial"].Slack, test.ShouldEqual, 0.25)
	})

	// Unrelated files in the directory are ignored.
	test.That(t, os.WriteFile(filepath.Join(filepath.Dir(path), "other.json"), []byte("{"), 0o600), test.ShouldBeNil)
	test.That(t, w.Close(), test.ShouldBeNil)
}
