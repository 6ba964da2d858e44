package mac

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Mode is the operating mode of a drive.
type Mode uint32

// The drive modes.
const (
	ModePassive  Mode = 0
	ModeVelocity Mode = 1
	ModePosition Mode = 2
)

func (m Mode) String() string {
	switch m {
	case ModePassive:
		return "passive"
	case ModeVelocity:
		return "velocity"
	case ModePosition:
		return "position"
	default:
		return fmt.Sprintf("mode(%d)", uint32(m))
	}
}

// ModeFromString parses a mode name.
func ModeFromString(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "passive":
		return ModePassive, nil
	case "velocity":
		return ModeVelocity, nil
	case "position", "":
		return ModePosition, nil
	default:
		return ModePassive, errors.Errorf("unknown drive mode %q", s)
	}
}

// DriveError is one fault bit reported by a drive.
type DriveError uint32

// The fault bits, in the order the drive reports them. ErrorAny is set whenever any other bit is.
const (
	ErrorThermal DriveError = 1 << iota
	ErrorFollow
	ErrorBrakeResistor
	ErrorPositionLimit
	ErrorTemperature
	ErrorUnderVoltage
	ErrorOverVoltage
	ErrorOverCurrent
	ErrorOverSpeed
	ErrorEncoder
	ErrorControlVoltage
	ErrorComms
	ErrorCurrentLoop
	ErrorSlave
	ErrorInit
	ErrorFlash
	ErrorSafeTorque

	ErrorAny DriveError = 1 << 31
)

var driveErrorNames = []string{
	"thermal", "follow", "brake_resistor", "position_limit", "temperature", "under_voltage",
	"over_voltage", "over_current", "over_speed", "encoder", "control_voltage", "comms",
	"current_loop", "slave", "init", "flash", "safe_torque",
}

func (e DriveError) String() string {
	if e == ErrorAny {
		return "any"
	}
	for i, name := range driveErrorNames {
		if e == 1<<i {
			return name
		}
	}
	return fmt.Sprintf("error(0x%08x)", uint32(e))
}

// DecodeErrors returns every individual fault bit set in bits, ErrorAny excluded.
func DecodeErrors(bits uint32) []DriveError {
	var out []DriveError
	for i := range driveErrorNames {
		if bits&(1<<i) != 0 {
			out = append(out, DriveError(1<<i))
		}
	}
	return out
}

// Position is the per slave data written by the control loop: a target in motor steps and the
// requested digital pins, one bit per pin.
type Position struct {
	Position int32
	Pins     uint32
}
