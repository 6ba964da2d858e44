package utils

import (
	"github.com/pkg/errors"
)

// NewIndexOutOfRangeError is used when an index addresses past the end of a fixed size table.
func NewIndexOutOfRangeError(what string, index, size int) error {
	return errors.Errorf("%s index %d out of range [0, %d)", what, index, size)
}
