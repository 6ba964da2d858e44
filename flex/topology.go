// Package flex implements the flexblock relaxation solver. A Topology is built once from a shape
// descriptor and an Engine moves the object points under the pull of the suspension ropes.
package flex

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/flexblock/shape"
)

// Topology is the concatenated, zero indexed and scaled form of a shape descriptor.
//
// Points holds the object points followed by the frame points. Elements holds the primary
// elements, the object elements followed by the suspension (object to frame) elements. All
// elements are followed by the frame elements in AllElements.
type Topology struct {
	Name          string
	Motors        int
	Points        []r3.Vector
	Elements      [][2]int
	AllElements   [][2]int
	ObjectPoints  int
	FramePoints   int
	ObjectEdges   int
	SuspensionLen int

	// suspension[p] lists the indices into Elements of the suspension elements whose first
	// endpoint is object point p.
	suspension [][]int
	// edgesFrom[p] and edgesTo[p] list the object elements having p as first or second endpoint.
	edgesFrom [][]int
	edgesTo   [][]int
}

// NewTopology builds a Topology. A motor count that differs from the number of suspension
// elements, or an element naming a point that does not exist, is a configuration fault.
func NewTopology(desc *shape.Descriptor) (*Topology, error) {
	if desc == nil {
		return nil, errors.New("no shape descriptor")
	}
	nObject := len(desc.Points.Object)
	nFrame := len(desc.Points.Frame)
	if nObject == 0 {
		return nil, errors.Errorf("shape %q has no object points", desc.Name)
	}
	if len(desc.Elements.Object2Frame) != desc.Motors {
		return nil, errors.Errorf(
			"shape %q has %d object2frame elements but %d motors", desc.Name, len(desc.Elements.Object2Frame), desc.Motors)
	}

	topo := &Topology{
		Name:          desc.Name,
		Motors:        desc.Motors,
		ObjectPoints:  nObject,
		FramePoints:   nFrame,
		ObjectEdges:   len(desc.Elements.Object),
		SuspensionLen: len(desc.Elements.Object2Frame),
		suspension:    make([][]int, nObject),
		edgesFrom:     make([][]int, nObject),
		edgesTo:       make([][]int, nObject),
	}

	topo.Points = make([]r3.Vector, 0, nObject+nFrame)
	for _, p := range desc.ScaledObjectPoints() {
		topo.Points = append(topo.Points, p.Vector())
	}
	for _, p := range desc.ScaledFramePoints() {
		topo.Points = append(topo.Points, p.Vector())
	}

	inRange := func(idx, lo, hi int) bool { return idx >= lo && idx < hi }

	topo.Elements = make([][2]int, 0, topo.ObjectEdges+topo.SuspensionLen)
	for i, el := range desc.Elements.Object {
		if !inRange(el[0], 0, nObject) || !inRange(el[1], 0, nObject) {
			return nil, errors.Errorf("object element %d %v out of range", i, el)
		}
		topo.edgesFrom[el[0]] = append(topo.edgesFrom[el[0]], len(topo.Elements))
		topo.edgesTo[el[1]] = append(topo.edgesTo[el[1]], len(topo.Elements))
		topo.Elements = append(topo.Elements, el)
	}
	for i, el := range desc.Elements.Object2Frame {
		shifted := [2]int{el[0], el[1] + nObject}
		if !inRange(shifted[0], 0, nObject) || !inRange(shifted[1], nObject, nObject+nFrame) {
			return nil, errors.Errorf("object2frame element %d %v out of range", i, el)
		}
		topo.suspension[shifted[0]] = append(topo.suspension[shifted[0]], len(topo.Elements))
		topo.Elements = append(topo.Elements, shifted)
	}

	topo.AllElements = make([][2]int, 0, len(topo.Elements)+len(desc.Elements.Frame))
	topo.AllElements = append(topo.AllElements, topo.Elements...)
	for i, el := range desc.Elements.Frame {
		shifted := [2]int{el[0] + nObject, el[1] + nObject}
		if !inRange(shifted[0], nObject, nObject+nFrame) || !inRange(shifted[1], nObject, nObject+nFrame) {
			return nil, errors.Errorf("frame element %d %v out of range", i, el)
		}
		topo.AllElements = append(topo.AllElements, shifted)
	}

	for _, from := range topo.edgesFrom {
		for _, el := range from {
			for _, end := range topo.Elements[el] {
				if len(topo.suspension[end]) == 0 {
					return nil, errors.Errorf("object point %d is joined to the object but not suspended", end)
				}
			}
		}
	}
	return topo, nil
}

// SuspensionStart is the index in Elements of the first suspension element.
func (t *Topology) SuspensionStart() int {
	return t.ObjectEdges
}

// SuspensionEnd is one past the index in Elements of the last suspension element.
func (t *Topology) SuspensionEnd() int {
	return t.ObjectEdges + t.SuspensionLen
}

// SuspensionElements returns the indices into Elements of the ropes attached to object point p.
func (t *Topology) SuspensionElements(p int) []int {
	return t.suspension[p]
}
