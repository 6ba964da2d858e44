package flex

import "github.com/pkg/errors"

// NewDriveCountError is returned when a drive or override slice does not have one value per rope.
func NewDriveCountError(expected, actual int) error {
	return errors.Errorf("expected %d values, one per rope, but got %d", expected, actual)
}
