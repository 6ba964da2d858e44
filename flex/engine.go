package flex

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/floats"
)

// Solver constants. These are tuning values of the integrator, not SI quantities.
const (
	// SpringForce scales the pull of an object element stretched away from its rest length.
	SpringForce = 10.0
	// SuspensionForce scales a rope's drive value into a force magnitude.
	SuspensionForce = 2.0
	// DriveBias is added to every drive value before scaling.
	DriveBias = 0.2
	// Damping is applied to the spring accumulator every step.
	Damping = 0.95

	directGain     = 0.01
	correctionGain = 0.2
	correctionRate = 0.2
)

// An Engine owns the mutable state of the relaxation solver. It is not safe for concurrent use:
// one goroutine, normally the control loop, drives it.
type Engine struct {
	topo      *Topology
	frequency float64

	points     []r3.Vector
	vectors    []r3.Vector
	lengths    []float64
	refLengths []float64
	deltas     []float64

	// force magnitude per suspension element, indexed by rope.
	ropeForce []float64

	change     []r3.Vector
	changeCorr []r3.Vector

	displacement []float64
	motorSpeed   float64
	motorAccel   float64
}

// NewEngine returns an engine at the rest state of topo. Reference lengths are captured here
// and never change afterwards. frequency is the rate Relax is called at and only affects the
// motor speed estimate.
func NewEngine(topo *Topology, frequency float64) *Engine {
	nPrimary := len(topo.Elements)
	e := &Engine{
		topo:         topo,
		frequency:    frequency,
		points:       append([]r3.Vector(nil), topo.Points...),
		vectors:      make([]r3.Vector, nPrimary),
		lengths:      make([]float64, nPrimary),
		refLengths:   make([]float64, nPrimary),
		deltas:       make([]float64, nPrimary),
		ropeForce:    make([]float64, topo.Motors),
		change:       make([]r3.Vector, topo.ObjectPoints),
		changeCorr:   make([]r3.Vector, topo.ObjectPoints),
		displacement: make([]float64, topo.ObjectPoints),
	}
	e.calcElements()
	copy(e.refLengths, e.lengths)
	e.motorSpeed, e.motorAccel = 0, 0

	if err := e.SetMotorDrive(make([]float64, topo.Motors)); err != nil {
		panic(err)
	}
	return e
}

// Topology returns the topology the engine was built from.
func (e *Engine) Topology() *Topology {
	return e.topo
}

// SetMotorDrive stores one drive value per rope. Each is biased and scaled into the force the
// rope applies on the next Relax.
func (e *Engine) SetMotorDrive(values []float64) error {
	if len(values) != len(e.ropeForce) {
		return NewDriveCountError(len(e.ropeForce), len(values))
	}
	for i, v := range values {
		e.ropeForce[i] = (v + DriveBias) * SuspensionForce
	}
	return nil
}

// Relax runs one integration step and recomputes the primary elements.
func (e *Engine) Relax() {
	for i := range e.deltas {
		e.deltas[i] = e.lengths[i] - e.refLengths[i]
	}

	for p := 0; p < e.topo.ObjectPoints; p++ {
		var force, forceCorr r3.Vector

		for _, el := range e.topo.suspension[p] {
			force = force.Add(e.suspensionForce(el))
		}

		// Object elements transmit the ropes pulling on their opposite end, and act as springs.
		for _, el := range e.topo.edgesFrom[p] {
			force = force.Add(e.projectedForce(el, e.topo.Elements[el][1]))
			forceCorr = forceCorr.Add(e.springForce(el, 1))
		}
		for _, el := range e.topo.edgesTo[p] {
			force = force.Add(e.projectedForce(el, e.topo.Elements[el][0]))
			forceCorr = forceCorr.Add(e.springForce(el, -1))
		}

		e.change[p] = force
		e.changeCorr[p] = e.changeCorr[p].Add(forceCorr.Mul(correctionRate))
	}

	for p := range e.changeCorr {
		e.changeCorr[p] = e.changeCorr[p].Mul(Damping)
	}

	for p := 0; p < e.topo.ObjectPoints; p++ {
		step := e.change[p].Mul(directGain).Add(e.changeCorr[p].Mul(correctionGain))
		e.points[p] = e.points[p].Add(step)
		e.displacement[p] = step.Norm()
	}

	e.calcElements()
}

// suspensionForce is the pull of a rope on its object point.
func (e *Engine) suspensionForce(el int) r3.Vector {
	rope := el - e.topo.SuspensionStart()
	return e.vectors[el].Mul(e.lengths[el] * e.ropeForce[rope])
}

// projectedForce is the component along object element el of the pull of the first rope of
// the element's opposite point.
func (e *Engine) projectedForce(el, opposite int) r3.Vector {
	v1 := e.vectors[el]
	v2 := e.suspensionForce(e.topo.suspension[opposite][0])
	return v1.Mul(v1.Dot(v2))
}

// springForce pulls a stretched object element back toward its rest length. direction is 1 when
// the point is the element's first endpoint and -1 when it is the second.
func (e *Engine) springForce(el int, direction float64) r3.Vector {
	return e.vectors[el].Mul(e.deltas[el] * SpringForce * direction)
}

func (e *Engine) calcElements() {
	start, end := e.topo.SuspensionStart(), e.topo.SuspensionEnd()
	maxChange := 0.0
	for i, el := range e.topo.Elements {
		v := e.points[el[1]].Sub(e.points[el[0]])
		length := v.Norm()
		if i >= start && i < end {
			maxChange = math.Max(maxChange, math.Abs(length-e.lengths[i]))
		}
		e.lengths[i] = length
		e.vectors[i] = v.Mul(1 / length)
	}

	speed := maxChange * e.frequency
	e.motorAccel = (speed - e.motorSpeed) * e.frequency
	e.motorSpeed = speed
}

// RopeLengths returns the current length of every suspension element, in rope order.
func (e *Engine) RopeLengths() []float64 {
	return append([]float64(nil), e.lengths[e.topo.SuspensionStart():e.topo.SuspensionEnd()]...)
}

// ElementLengths returns the current lengths of the primary elements.
func (e *Engine) ElementLengths() []float64 {
	return append([]float64(nil), e.lengths...)
}

// ReferenceLengths returns the rest lengths of the primary elements.
func (e *Engine) ReferenceLengths() []float64 {
	return append([]float64(nil), e.refLengths...)
}

// ObjectPoints returns the current object points.
func (e *Engine) ObjectPoints() []r3.Vector {
	return append([]r3.Vector(nil), e.points[:e.topo.ObjectPoints]...)
}

// Points returns the object points followed by the frame points.
func (e *Engine) Points() []r3.Vector {
	return append([]r3.Vector(nil), e.points...)
}

// MaxDisplacement is the largest distance an object point moved during the last Relax.
func (e *Engine) MaxDisplacement() float64 {
	return floats.Max(e.displacement)
}

// MotorSpeed estimates the fastest rope's speed, in meters per second, over the last Relax.
func (e *Engine) MotorSpeed() float64 {
	return e.motorSpeed
}

// MotorAcceleration estimates the change of MotorSpeed, in meters per second squared.
func (e *Engine) MotorAcceleration() float64 {
	return e.motorAccel
}
