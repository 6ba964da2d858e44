package shape

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

// Validate checks that the descriptor describes a topology the relaxation solver can run. The
// returned error combines every problem found.
func (d *Descriptor) Validate(path string) error {
	var errs error
	fail := func(err error) {
		errs = multierr.Append(errs, goutils.NewConfigValidationError(path, err))
	}

	if d.Motors <= 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "motors"))
	}
	nObject, nFrame := len(d.Points.Object), len(d.Points.Frame)
	if nObject == 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "points.object"))
	}
	if nFrame == 0 {
		errs = multierr.Append(errs, goutils.NewConfigValidationFieldRequiredError(path, "points.frame"))
	}
	for axis := 0; axis < 3; axis++ {
		if d.Size.Values.Object[axis] <= 0 || d.Size.Values.Frame[axis] <= 0 {
			fail(errors.Errorf("size %q must be positive on every axis", d.Size.Name))
			break
		}
	}
	if d.Motors > 0 && len(d.Elements.Object2Frame) != d.Motors {
		fail(errors.Errorf("%d object2frame elements but %d motors", len(d.Elements.Object2Frame), d.Motors))
	}
	if errs != nil {
		return errs
	}

	objectPoints := d.ScaledObjectPoints()
	framePoints := d.ScaledFramePoints()
	checkElements := func(kind string, elements [][2]int, first, second []Vec3) {
		for i, el := range elements {
			if el[0] < 0 || el[0] >= len(first) || el[1] < 0 || el[1] >= len(second) {
				fail(errors.Errorf("%s element %d %v references a point out of range", kind, i, el))
				continue
			}
			if first[el[0]] == second[el[1]] {
				fail(errors.Errorf("%s element %d %v has zero length", kind, i, el))
			}
		}
	}
	checkElements("object", d.Elements.Object, objectPoints, objectPoints)
	checkElements("object2frame", d.Elements.Object2Frame, objectPoints, framePoints)
	checkElements("frame", d.Elements.Frame, framePoints, framePoints)

	suspended := make([]bool, nObject)
	for _, el := range d.Elements.Object2Frame {
		if el[0] >= 0 && el[0] < nObject {
			suspended[el[0]] = true
		}
	}
	for i, ok := range suspended {
		if !ok {
			fail(errors.Errorf("object point %d has no object2frame element", i))
		}
	}
	return errs
}
