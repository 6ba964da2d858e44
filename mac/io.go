package mac

import (
	"math"

	"github.com/samber/lo"
	"go.uber.org/atomic"
)

// Drive limits and unit conversions.
const (
	// MaxVelocity is the velocity limit in RPM.
	MaxVelocity = 3000.0
	// MaxTorque is the torque limit in percent of the nominal torque.
	MaxTorque = 300.0

	velocityCountsPerRPM        = 2.77056
	accelerationCountsPerRPMSec = 0.27306
	torqueCountsPerPercent      = 1023.0 / 300.0
)

// Outputs holds the values written to a drive besides its target position. Every field is stored
// on its own; readers may see a mix of old and new fields within one cycle.
type Outputs struct {
	mode         atomic.Uint32
	velocity     atomic.Int32
	acceleration atomic.Uint32
	torque       atomic.Uint32
	clearErrors  atomic.Bool
}

// SetMode sets the drive mode.
func (o *Outputs) SetMode(m Mode) {
	o.mode.Store(uint32(m))
}

// Mode returns the requested drive mode.
func (o *Outputs) Mode() Mode {
	return Mode(o.mode.Load())
}

// SetVelocity sets the velocity in RPM, clamped to ±MaxVelocity.
func (o *Outputs) SetVelocity(rpm float64) {
	rpm = lo.Clamp(rpm, -MaxVelocity, MaxVelocity)
	o.velocity.Store(VelocityCounts(rpm))
}

// Velocity returns the requested velocity in RPM.
func (o *Outputs) Velocity() float64 {
	return CountsToRPM(o.velocity.Load())
}

// SetAcceleration sets the acceleration in RPM/s. Negative values are clamped to zero.
func (o *Outputs) SetAcceleration(rpmPerSec float64) {
	rpmPerSec = math.Max(rpmPerSec, 0)
	o.acceleration.Store(uint32(math.Round(rpmPerSec * accelerationCountsPerRPMSec)))
}

// Acceleration returns the requested acceleration in RPM/s.
func (o *Outputs) Acceleration() float64 {
	return float64(o.acceleration.Load()) / accelerationCountsPerRPMSec
}

// SetTorque sets the torque limit in percent, clamped to [0, MaxTorque].
func (o *Outputs) SetTorque(pct float64) {
	pct = lo.Clamp(pct, 0, MaxTorque)
	o.torque.Store(uint32(math.Round(pct * torqueCountsPerPercent)))
}

// Torque returns the requested torque limit in percent.
func (o *Outputs) Torque() float64 {
	return float64(o.torque.Load()) / torqueCountsPerPercent
}

// Inputs holds the last values a drive reported.
type Inputs struct {
	mode     atomic.Uint32
	position atomic.Int32
	velocity atomic.Int32
	torque   atomic.Int32
	errors   atomic.Uint32
}

func (in *Inputs) store(img *InputImage) {
	in.mode.Store(img.Mode)
	in.position.Store(img.Position)
	in.velocity.Store(img.Velocity)
	in.torque.Store(img.Torque)
	in.errors.Store(img.Errors)
}

// Mode returns the reported drive mode.
func (in *Inputs) Mode() Mode {
	return Mode(in.mode.Load())
}

// Position returns the reported position in motor steps.
func (in *Inputs) Position() int32 {
	return in.position.Load()
}

// Velocity returns the reported velocity in RPM.
func (in *Inputs) Velocity() float64 {
	return CountsToRPM(in.velocity.Load())
}

// Torque returns the reported torque in percent.
func (in *Inputs) Torque() float64 {
	return float64(in.torque.Load()) / torqueCountsPerPercent
}

// HasError reports whether the drive raised its aggregate fault bit.
func (in *Inputs) HasError() bool {
	return DriveError(in.errors.Load())&ErrorAny != 0
}

// Errors decodes the individual fault bits. Only meaningful when HasError is true.
func (in *Inputs) Errors() []DriveError {
	return DecodeErrors(in.errors.Load())
}

// VelocityCounts converts RPM to the drive's velocity unit.
func VelocityCounts(rpm float64) int32 {
	return int32(math.Round(rpm * velocityCountsPerRPM))
}

// CountsToRPM converts the drive's velocity unit to RPM.
func CountsToRPM(counts int32) float64 {
	return float64(counts) / velocityCountsPerRPM
}
