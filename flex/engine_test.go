package flex

import (
	"math"
	"math/rand"
	"testing"

	"go.viam.com/test"

	"go.viam.com/flexblock/shape"
)

func newDefaultEngine(t *testing.T, frequency float64) *Engine {
	t.Helper()
	topo, err := NewTopology(shape.Default())
	test.That(t, err, test.ShouldBeNil)
	return NewEngine(topo, frequency)
}

func TestTopology(t *testing.T) {
	desc := shape.Default()
	topo, err := NewTopology(desc)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, topo.Points, test.ShouldHaveLength, 16)
	test.That(t, topo.Elements, test.ShouldHaveLength, 20)
	test.That(t, topo.AllElements, test.ShouldHaveLength, 24)
	test.That(t, topo.SuspensionStart(), test.ShouldEqual, 12)
	test.That(t, topo.SuspensionEnd(), test.ShouldEqual, 20)

	for i := topo.SuspensionStart(); i < topo.SuspensionEnd(); i++ {
		el := topo.Elements[i]
		test.That(t, el[0], test.ShouldBeLessThan, topo.ObjectPoints)
		test.That(t, el[1], test.ShouldBeGreaterThanOrEqualTo, topo.ObjectPoints)
		test.That(t, el[1], test.ShouldEqual, desc.Elements.Object2Frame[i-12][1]+8)
	}
	for i, el := range topo.AllElements[20:] {
		test.That(t, el[0], test.ShouldEqual, desc.Elements.Frame[i][0]+8)
		test.That(t, el[1], test.ShouldEqual, desc.Elements.Frame[i][1]+8)
	}
	// The input descriptor is left untouched.
	test.That(t, desc.Elements.Object2Frame[3], test.ShouldResemble, [2]int{3, 3})

	// Object points are scaled by half the object size, frame points by half the frame size.
	test.That(t, topo.Points[0].X, test.ShouldEqual, -0.5)
	test.That(t, topo.Points[15].Z, test.ShouldEqual, 1.5)

	for p := 0; p < topo.ObjectPoints; p++ {
		test.That(t, topo.SuspensionElements(p), test.ShouldResemble, []int{12 + p})
	}
}

func TestTopologyErrors(t *testing.T) {
	desc := shape.Default()
	desc.Motors = 7
	_, err := NewTopology(desc)
	test.That(t, err, test.ShouldBeError, `shape "flexblock" has 8 object2frame elements but 7 motors`)

	desc = shape.Default()
	desc.Elements.Object2Frame[2] = [2]int{2, 9}
	_, err = NewTopology(desc)
	test.That(t, err, test.ShouldBeError, "object2frame element 2 [2 9] out of range")

	desc = shape.Default()
	desc.Elements.Frame[1] = [2]int{-1, 5}
	_, err = NewTopology(desc)
	test.That(t, err, test.ShouldBeError, "frame element 1 [-1 5] out of range")

	_, err = NewTopology(nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestReferenceLengthsNeverChange(t *testing.T) {
	engine := newDefaultEngine(t, 1000)
	ref := engine.ReferenceLengths()
	initial := engine.ElementLengths()
	test.That(t, ref, test.ShouldResemble, initial)

	//nolint:gosec
	rnd := rand.New(rand.NewSource(7))
	drive := make([]float64, 8)
	for step := 0; step < 500; step++ {
		if step%50 == 0 {
			for i := range drive {
				drive[i] = rnd.Float64()
			}
			test.That(t, engine.SetMotorDrive(drive), test.ShouldBeNil)
		}
		engine.Relax()
		test.That(t, engine.ReferenceLengths(), test.ShouldResemble, ref)
	}
	test.That(t, engine.ElementLengths(), test.ShouldNotResemble, initial)
}

func TestSymmetricRestState(t *testing.T) {
	engine := newDefaultEngine(t, 1000)
	topo := engine.Topology()

	for step := 0; step < 1000; step++ {
		engine.Relax()
	}
	test.That(t, engine.MaxDisplacement(), test.ShouldBeLessThan, 1e-9)

	ropes := engine.RopeLengths()
	test.That(t, ropes, test.ShouldHaveLength, 8)
	for _, l := range ropes {
		test.That(t, l, test.ShouldAlmostEqual, math.Sqrt(3), 1e-9)
	}

	points := engine.Points()
	for p := 0; p < topo.ObjectPoints; p++ {
		frame := points[topo.Elements[topo.SuspensionElements(p)[0]][1]]
		test.That(t, points[p].Sub(frame).Norm(), test.ShouldAlmostEqual, math.Sqrt(3), 1e-9)
	}
}

func TestDampingReturnsToRest(t *testing.T) {
	engine := newDefaultEngine(t, 1000)
	drive := make([]float64, 8)
	drive[0] = 1
	drive[5] = 0.6
	test.That(t, engine.SetMotorDrive(drive), test.ShouldBeNil)
	for step := 0; step < 200; step++ {
		engine.Relax()
	}
	test.That(t, engine.MaxDisplacement(), test.ShouldBeGreaterThan, 1e-3)
	disturbed := engine.RopeLengths()
	test.That(t, disturbed[0], test.ShouldBeLessThan, math.Sqrt(3)-1e-3)

	test.That(t, engine.SetMotorDrive(make([]float64, 8)), test.ShouldBeNil)
	var early, late float64
	for step := 0; step < 4000; step++ {
		engine.Relax()
		switch {
		case step < 200:
			early = math.Max(early, engine.MaxDisplacement())
		case step >= 3500:
			late = math.Max(late, engine.MaxDisplacement())
		}
	}
	test.That(t, late, test.ShouldBeLessThan, early)
	test.That(t, engine.MaxDisplacement(), test.ShouldBeLessThan, 1e-9)
	for _, l := range engine.RopeLengths() {
		test.That(t, l, test.ShouldAlmostEqual, math.Sqrt(3), 1e-9)
	}
}

func TestDriveShortensRope(t *testing.T) {
	engine := newDefaultEngine(t, 100)
	drive := make([]float64, 8)
	drive[0] = 1
	test.That(t, engine.SetMotorDrive(drive), test.ShouldBeNil)
	engine.Relax()

	ropes := engine.RopeLengths()
	// Corner 0 feels 2.4 of direct pull against 1.2 projected back through its three edges, so
	// it moves 0.02 along every axis toward its frame corner.
	test.That(t, ropes[0], test.ShouldAlmostEqual, 0.98*math.Sqrt(3), 1e-12)
	test.That(t, ropes[7], test.ShouldAlmostEqual, math.Sqrt(3), 1e-12)
	test.That(t, ropes[1], test.ShouldBeGreaterThan, math.Sqrt(3))

	test.That(t, engine.MaxDisplacement(), test.ShouldAlmostEqual, 0.02*math.Sqrt(3), 1e-12)
	test.That(t, engine.MotorSpeed(), test.ShouldAlmostEqual, 0.02*math.Sqrt(3)*100, 1e-9)
	test.That(t, engine.MotorAcceleration(), test.ShouldAlmostEqual, 0.02*math.Sqrt(3)*100*100, 1e-6)
}

func TestSetMotorDrive(t *testing.T) {
	engine := newDefaultEngine(t, 1000)
	err := engine.SetMotorDrive(make([]float64, 3))
	test.That(t, err, test.ShouldBeError, "expected 8 values, one per rope, but got 3")
}

func TestInputClone(t *testing.T) {
	in := NewInput(8)
	in.Drive[2] = 0.5
	in.Slack = 0.1

	out := in.Clone()
	out.Drive[2] = 0.9
	test.That(t, in.Drive[2], test.ShouldEqual, 0.5)
	test.That(t, out.Slack, test.ShouldEqual, 0.1)

	resized := in.Resize(4)
	test.That(t, resized.Drive, test.ShouldResemble, []float64{0, 0, 0.5, 0})
	test.That(t, resized.Override, test.ShouldHaveLength, 4)
	test.That(t, resized.Slack, test.ShouldEqual, 0.1)
}
