package mac

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Process image sizes, in bytes, of one drive.
const (
	OutputSize = 28
	InputSize  = 20
)

// OutputImage is the layout of the data written to a drive every cycle.
type OutputImage struct {
	Mode         uint32
	Position     int32
	Velocity     int32
	Acceleration uint32
	Torque       uint32
	Pins         uint32
	Command      uint32
}

// Marshal encodes the image into buf, which must hold OutputSize bytes.
func (o *OutputImage) Marshal(buf []byte) error {
	if len(buf) < OutputSize {
		return errors.Errorf("output image needs %d bytes, got %d", OutputSize, len(buf))
	}
	le := binary.LittleEndian
	le.PutUint32(buf[0:], o.Mode)
	le.PutUint32(buf[4:], uint32(o.Position))
	le.PutUint32(buf[8:], uint32(o.Velocity))
	le.PutUint32(buf[12:], o.Acceleration)
	le.PutUint32(buf[16:], o.Torque)
	le.PutUint32(buf[20:], o.Pins)
	le.PutUint32(buf[24:], o.Command)
	return nil
}

// Unmarshal decodes the image from buf.
func (o *OutputImage) Unmarshal(buf []byte) error {
	if len(buf) < OutputSize {
		return errors.Errorf("output image needs %d bytes, got %d", OutputSize, len(buf))
	}
	le := binary.LittleEndian
	o.Mode = le.Uint32(buf[0:])
	o.Position = int32(le.Uint32(buf[4:]))
	o.Velocity = int32(le.Uint32(buf[8:]))
	o.Acceleration = le.Uint32(buf[12:])
	o.Torque = le.Uint32(buf[16:])
	o.Pins = le.Uint32(buf[20:])
	o.Command = le.Uint32(buf[24:])
	return nil
}

// InputImage is the layout of the data a drive reports every cycle.
type InputImage struct {
	Mode     uint32
	Position int32
	Velocity int32
	Torque   int32
	Errors   uint32
}

// Marshal encodes the image into buf, which must hold InputSize bytes.
func (in *InputImage) Marshal(buf []byte) error {
	if len(buf) < InputSize {
		return errors.Errorf("input image needs %d bytes, got %d", InputSize, len(buf))
	}
	le := binary.LittleEndian
	le.PutUint32(buf[0:], in.Mode)
	le.PutUint32(buf[4:], uint32(in.Position))
	le.PutUint32(buf[8:], uint32(in.Velocity))
	le.PutUint32(buf[12:], uint32(in.Torque))
	le.PutUint32(buf[16:], in.Errors)
	return nil
}

// Unmarshal decodes the image from buf.
func (in *InputImage) Unmarshal(buf []byte) error {
	if len(buf) < InputSize {
		return errors.Errorf("input image needs %d bytes, got %d", InputSize, len(buf))
	}
	le := binary.LittleEndian
	in.Mode = le.Uint32(buf[0:])
	in.Position = int32(le.Uint32(buf[4:]))
	in.Velocity = int32(le.Uint32(buf[8:]))
	in.Torque = int32(le.Uint32(buf[12:]))
	in.Errors = le.Uint32(buf[16:])
	return nil
}
