package inject

import (
	"go.viam.com/flexblock/adapter"
	"go.viam.com/flexblock/flex"
)

// Device is an injected adapter.Device.
type Device struct {
	adapter.Device
	StateFunc             func() flex.State
	InputFunc             func() flex.Input
	SetOverrideOffsetFunc func(rope int, value float64) error
}

// State calls the injected State or the real version.
func (d *Device) State() flex.State {
	if d.StateFunc == nil {
		return d.Device.State()
	}
	return d.StateFunc()
}

// Input calls the injected Input or the real version.
func (d *Device) Input() flex.Input {
	if d.InputFunc == nil {
		return d.Device.Input()
	}
	return d.InputFunc()
}

// SetOverrideOffset calls the injected SetOverrideOffset or the real version.
func (d *Device) SetOverrideOffset(rope int, value float64) error {
	if d.SetOverrideOffsetFunc == nil {
		return d.Device.SetOverrideOffset(rope, value)
	}
	return d.SetOverrideOffsetFunc(rope, value)
}
