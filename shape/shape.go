// Package shape describes the geometry of a flexblock: the movable object's corners, the fixed
// frame's anchor points and the elements (edges and ropes) connecting them.
//
// A Descriptor is plain data. Indices in the object2frame and frame element lists are relative to
// their own point set; concatenating the two point sets is the consumer's job.
package shape

import (
	"github.com/golang/geo/r3"
)

// Vec3 is a 3D coordinate as it appears in a descriptor document.
type Vec3 [3]float64

// Vector converts the coordinate to an r3.Vector.
func (v Vec3) Vector() r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

// Scale multiplies each component by the matching component of s.
func (v Vec3) Scale(s Vec3) Vec3 {
	return Vec3{v[0] * s[0], v[1] * s[1], v[2] * s[2]}
}

// SizeValues holds the real world extents, in meters, of the object and of the frame.
type SizeValues struct {
	Object Vec3 `json:"object" yaml:"object"`
	Frame  Vec3 `json:"frame" yaml:"frame"`
}

// Size is a named set of extents.
type Size struct {
	Name   string     `json:"name" yaml:"name"`
	Values SizeValues `json:"values" yaml:"values"`
}

// Points are unit coordinates, scaled by half the matching size at build time.
type Points struct {
	Object []Vec3 `json:"object" yaml:"object"`
	Frame  []Vec3 `json:"frame" yaml:"frame"`
}

// Elements are index pairs. Object elements connect two object points, object2frame elements
// connect an object point (first) to a frame point (second) and frame elements connect two frame
// points.
type Elements struct {
	Object       [][2]int `json:"object" yaml:"object"`
	Object2Frame [][2]int `json:"object2frame" yaml:"object2frame"`
	Frame        [][2]int `json:"frame" yaml:"frame"`
}

// A Descriptor is the declarative definition of a flexblock.
type Descriptor struct {
	Name     string   `json:"name" yaml:"name"`
	Motors   int      `json:"motors" yaml:"motors"`
	Size     Size     `json:"size" yaml:"size"`
	Points   Points   `json:"points" yaml:"points"`
	Elements Elements `json:"elements" yaml:"elements"`
}

// Default returns the flexblock cuboid: eight corners each hung from the matching corner of a
// frame three times its size, with four vertical frame posts.
//
// Corner i sits at (±1, ±1, ±1) where bit 0 of i selects x, bit 1 selects y and bit 2 selects z.
func Default() *Descriptor {
	corners := make([]Vec3, 8)
	for i := range corners {
		for axis := 0; axis < 3; axis++ {
			corners[i][axis] = -1
			if i&(1<<axis) != 0 {
				corners[i][axis] = 1
			}
		}
	}

	// Cube edges join corners that differ in exactly one bit.
	edges := make([][2]int, 0, 12)
	for axis := 0; axis < 3; axis++ {
		for i := 0; i < 8; i++ {
			if i&(1<<axis) == 0 {
				edges = append(edges, [2]int{i, i | 1<<axis})
			}
		}
	}

	ropes := make([][2]int, 8)
	for i := range ropes {
		ropes[i] = [2]int{i, i}
	}

	posts := make([][2]int, 4)
	for i := range posts {
		posts[i] = [2]int{i, i + 4}
	}

	return &Descriptor{
		Name:   "flexblock",
		Motors: 8,
		Size: Size{
			Name: "default",
			Values: SizeValues{
				Object: Vec3{1, 1, 1},
				Frame:  Vec3{3, 3, 3},
			},
		},
		Points: Points{
			Object: corners,
			Frame:  append([]Vec3(nil), corners...),
		},
		Elements: Elements{
			Object:       edges,
			Object2Frame: ropes,
			Frame:        posts,
		},
	}
}

// ScaledObjectPoints returns the object points in meters.
func (d *Descriptor) ScaledObjectPoints() []Vec3 {
	return scaleAll(d.Points.Object, d.Size.Values.Object)
}

// ScaledFramePoints returns the frame points in meters.
func (d *Descriptor) ScaledFramePoints() []Vec3 {
	return scaleAll(d.Points.Frame, d.Size.Values.Frame)
}

func scaleAll(points []Vec3, size Vec3) []Vec3 {
	half := Vec3{size[0] * 0.5, size[1] * 0.5, size[2] * 0.5}
	out := make([]Vec3, len(points))
	for i, p := range points {
		out[i] = p.Scale(half)
	}
	return out
}
