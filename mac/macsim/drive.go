// Package macsim simulates a servo drive on a fake fieldbus.
package macsim

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"go.viam.com/flexblock/fieldbus/fake"
	"go.viam.com/flexblock/mac"
)

// StepsPerRevolution is the encoder resolution of the simulated drive.
const StepsPerRevolution = 8192

// Drive follows the target position in position mode at the requested velocity, runs at the
// requested velocity in velocity mode and holds still in passive mode. Injected faults latch
// until the clear errors command is received.
type Drive struct {
	mu          sync.Mutex
	name        string
	position    float64
	velocity    float64
	mode        uint32
	errors      uint32
	lastCommand uint32
	pins        uint32
	registers   map[uint8]uint32
}

var _ fake.Device = (*Drive)(nil)

// NewDrive returns a passive drive at the given position.
func NewDrive(name string, position int32) *Drive {
	return &Drive{
		name:      name,
		position:  float64(position),
		registers: map[uint8]uint32{},
	}
}

// Name implements fake.Device.
func (d *Drive) Name() string { return d.name }

// InputSize implements fake.Device.
func (d *Drive) InputSize() int { return mac.InputSize }

// OutputSize implements fake.Device.
func (d *Drive) OutputSize() int { return mac.OutputSize }

// Process implements fake.Device.
func (d *Drive) Process(outputs, inputs []byte, dt time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.velocity = 0
	if outputs != nil {
		var out mac.OutputImage
		if err := out.Unmarshal(outputs); err == nil {
			d.apply(&out, dt.Seconds())
		}
	}

	in := mac.InputImage{
		Mode:     d.mode,
		Position: int32(math.Round(d.position)),
		Velocity: mac.VelocityCounts(d.velocity),
		Errors:   d.errors,
	}
	//nolint:errcheck
	in.Marshal(inputs)
}

func (d *Drive) apply(out *mac.OutputImage, dt float64) {
	if out.Command == mac.ClearErrorsCommand && d.lastCommand != mac.ClearErrorsCommand {
		d.errors = 0
	}
	d.lastCommand = out.Command
	d.mode = out.Mode
	d.pins = out.Pins
	if d.errors != 0 {
		return
	}

	maxRPM := math.Abs(mac.CountsToRPM(out.Velocity))
	switch mac.Mode(out.Mode) {
	case mac.ModePosition:
		maxStep := maxRPM / 60 * StepsPerRevolution * dt
		delta := float64(out.Position) - d.position
		if math.Abs(delta) > maxStep {
			delta = math.Copysign(maxStep, delta)
		}
		d.position += delta
		if dt > 0 {
			d.velocity = delta / dt / StepsPerRevolution * 60
		}
	case mac.ModeVelocity:
		d.velocity = mac.CountsToRPM(out.Velocity)
		d.position += d.velocity / 60 * StepsPerRevolution * dt
	case mac.ModePassive:
	}
}

// SDOWrite implements fake.Device. Writing the control bits with the load position bit set makes
// the position register the new absolute position.
func (d *Drive) SDOWrite(index uint16, subindex uint8, data []byte) error {
	if index != mac.SDOIndex {
		return errors.Errorf("unknown object 0x%04x", index)
	}
	if len(data) < 4 {
		return errors.Errorf("register %d needs 4 bytes, got %d", subindex, len(data))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	v := binary.LittleEndian.Uint32(data)
	d.registers[subindex] = v
	if subindex == mac.RegisterControlBits && v&mac.ControlBitLoadPosition != 0 {
		d.position = float64(int32(d.registers[mac.RegisterPosition]))
	}
	return nil
}

// Register returns the last value written to a drive register.
func (d *Drive) Register(register uint8) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.registers[register]
}

// Position returns the position of the drive in steps.
func (d *Drive) Position() int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int32(math.Round(d.position))
}

// Mode returns the mode last written to the drive.
func (d *Drive) Mode() mac.Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return mac.Mode(d.mode)
}

// Pins returns the digital outputs last written to the drive.
func (d *Drive) Pins() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pins
}

// InjectFault latches a fault. The drive stops following its target until errors are cleared.
func (d *Drive) InjectFault(e mac.DriveError) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.errors |= uint32(e) | uint32(mac.ErrorAny)
}
