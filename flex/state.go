package flex

import "github.com/golang/geo/r3"

// State is what the control loop publishes after every tick.
type State struct {
	Tick uint64
	// Points are the object points followed by the frame points.
	Points []r3.Vector
	// RawRopeLengths are the suspension element lengths straight out of the engine, in meters.
	RawRopeLengths []float64
	// RopeLengths include slack, overrides and the sinus term, in meters.
	RopeLengths []float64
	// Steps are RopeLengths converted to motor steps.
	Steps             []float64
	MotorSpeed        float64
	MotorAcceleration float64
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.Points = append([]r3.Vector(nil), s.Points...)
	out.RawRopeLengths = append([]float64(nil), s.RawRopeLengths...)
	out.RopeLengths = append([]float64(nil), s.RopeLengths...)
	out.Steps = append([]float64(nil), s.Steps...)
	return out
}
