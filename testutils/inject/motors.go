package inject

import (
	"context"

	"go.viam.com/flexblock/control"
	"go.viam.com/flexblock/mac"
)

// Motors is an injected control.Motors.
type Motors struct {
	control.Motors
	RunningFunc         func() bool
	SlaveCountFunc      func() int
	OperationalFunc     func(slave int) bool
	StopFunc            func(ctx context.Context) error
	PositionDataFunc    func() []mac.Position
	SetPositionDataFunc func(positions []mac.Position) error
	ActualPositionFunc  func(slave int) (int32, error)
	SetDigitalPinFunc   func(slave, pin int, on bool) error
}

// Running calls the injected Running or the real version.
func (m *Motors) Running() bool {
	if m.RunningFunc == nil {
		return m.Motors.Running()
	}
	return m.RunningFunc()
}

// SlaveCount calls the injected SlaveCount or the real version.
func (m *Motors) SlaveCount() int {
	if m.SlaveCountFunc == nil {
		return m.Motors.SlaveCount()
	}
	return m.SlaveCountFunc()
}

// Operational calls the injected Operational or the real version.
func (m *Motors) Operational(slave int) bool {
	if m.OperationalFunc == nil {
		return m.Motors.Operational(slave)
	}
	return m.OperationalFunc(slave)
}

// Stop calls the injected Stop or the real version.
func (m *Motors) Stop(ctx context.Context) error {
	if m.StopFunc == nil {
		return m.Motors.Stop(ctx)
	}
	return m.StopFunc(ctx)
}

// PositionData calls the injected PositionData or the real version.
func (m *Motors) PositionData() []mac.Position {
	if m.PositionDataFunc == nil {
		return m.Motors.PositionData()
	}
	return m.PositionDataFunc()
}

// SetPositionData calls the injected SetPositionData or the real version.
func (m *Motors) SetPositionData(positions []mac.Position) error {
	if m.SetPositionDataFunc == nil {
		return m.Motors.SetPositionData(positions)
	}
	return m.SetPositionDataFunc(positions)
}

// ActualPosition calls the injected ActualPosition or the real version.
func (m *Motors) ActualPosition(slave int) (int32, error) {
	if m.ActualPositionFunc == nil {
		return m.Motors.ActualPosition(slave)
	}
	return m.ActualPositionFunc(slave)
}

// SetDigitalPin calls the injected SetDigitalPin or the real version.
func (m *Motors) SetDigitalPin(slave, pin int, on bool) error {
	if m.SetDigitalPinFunc == nil {
		return m.Motors.SetDigitalPin(slave, pin, on)
	}
	return m.SetDigitalPinFunc(slave, pin, on)
}
