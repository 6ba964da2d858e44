package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.viam.com/test"
)

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runApp(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var out, errOut lockedBuffer
	err := NewApp(&out, &errOut).Run(append([]string{"flexblock"}, args...))
	return out.String(), errOut.String(), err
}

func writeFile(t *testing.T, dir, name, data string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	test.That(t, os.WriteFile(path, []byte(data), 0o600), test.ShouldBeNil)
	return path
}

func TestValidateAction(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "presets.json", `{"lean": {"drive": [1], "override": [0], "slack": 0}}`)
	path := writeFile(t, dir, "flexblock.json", `{
		"adapters": [{"name": "smooth", "type": "lag", "disabled": true, "attributes": {"time_constant_ms": 50}}],
		"presets_file": "presets.json"
	}`)

	out, errOut, err := runApp(t, "validate", "--config", path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "flexblock (8 ropes, 8 object points, 12 object edges)")
	test.That(t, out, test.ShouldContainSubstring, "none, simulation only")
	test.That(t, out, test.ShouldContainSubstring, "smooth (lag, disabled)")
	test.That(t, out, test.ShouldContainSubstring, "config is valid")
	test.That(t, errOut, test.ShouldContainSubstring, `Warning: presets file`)

	bad := writeFile(t, dir, "bad.json", `{"master": {"cycle_time_us": -1}}`)
	_, _, err = runApp(t, "validate", "--config", bad)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"adapter" is required`)

	_, _, err = runApp(t, "validate")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "config")
}

func TestSimulateAction(t *testing.T) {
	out, _, err := runApp(t, "simulate", "--steps", "200", "--drive", "0=1", "--drive", "5 = 0.5", "--slack", "0.01")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "flexblock after 200 steps (0.200s)")
	test.That(t, out, test.ShouldContainSubstring, "CHANGE (MM)")
	test.That(t, out, test.ShouldContainSubstring, "peak acceleration")

	_, _, err = runApp(t, "simulate", "--steps", "0")
	test.That(t, err, test.ShouldBeError, "--steps must be positive, got 0")

	_, _, err = runApp(t, "simulate", "--drive", "9=1")
	test.That(t, err, test.ShouldBeError, `drive "9=1" names rope 9 but there are 8 ropes`)

	_, _, err = runApp(t, "simulate", "--shape", filepath.Join(t.TempDir(), "missing.yaml"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read shape file")
}

func TestSimulateRealtime(t *testing.T) {
	out, _, err := runApp(t, "simulate", "--steps", "1", "--realtime", "100ms")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "control loop")
	test.That(t, out, test.ShouldContainSubstring, "tick p99")
}

func TestRunAction(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "presets.json", `{"initial": {"drive": [0, 0, 0, 0, 0, 0, 0, 0], "override": [0, 0, 0, 0, 0, 0, 0, 0], "slack": 0.01}}`)
	path := writeFile(t, dir, "flexblock.json", `{
		"loop": {"enable_motors": true},
		"master": {"adapter": "sim"},
		"adapters": [{"name": "status", "type": "log"}],
		"presets_file": "presets.json"
	}`)

	out, errOut, err := runApp(t, "--debug", "run", "--config", path, "--duration", "300ms")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out, test.ShouldContainSubstring, "control loop")
	test.That(t, out, test.ShouldContainSubstring, "MAC400-0")
	test.That(t, out, test.ShouldContainSubstring, "MAC400-7")
	test.That(t, out, test.ShouldContainSubstring, "position")
	test.That(t, errOut, test.ShouldContainSubstring, "flexblock running")
	test.That(t, errOut, test.ShouldContainSubstring, "shutting down")

	eth := writeFile(t, dir, "eth.json", `{"master": {"adapter": "eth0"}}`)
	_, _, err = runApp(t, "run", "--config", eth, "--duration", "10ms")
	test.That(t, err, test.ShouldBeError, `no fieldbus transport for adapter "eth0", only "sim" is built in`)
}

func TestParseDrive(t *testing.T) {
	drive, err := parseDrive([]string{"1=0.5", "3=-1"}, 4)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, drive, test.ShouldResemble, []float64{0, 0.5, 0, -1})

	_, err = parseDrive([]string{"1"}, 4)
	test.That(t, err, test.ShouldBeError, `drive "1" must look like ROPE=VALUE`)
	_, err = parseDrive([]string{"a=1"}, 4)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid rope index")
	_, err = parseDrive([]string{"1=x"}, 4)
	test.That(t, err.Error(), test.ShouldContainSubstring, "invalid value")
}
