// Package mac controls a bus of integrated servo motors. The Controller is the fieldbus handler:
// it seeds and exchanges per slave position, velocity, torque and mode data every bus cycle
// while the control loop writes target positions from its own goroutine.
package mac

import (
	"context"
	"encoding/binary"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	goutils "go.viam.com/utils"

	"go.viam.com/flexblock/fieldbus"
	"go.viam.com/flexblock/logging"
	"go.viam.com/flexblock/utils"
)

// MaxPins is the number of digital outputs of a drive.
const MaxPins = 2

// Drive registers are reached through one SDO object, one sub index per register.
const (
	SDOIndex            uint16 = 0x2012
	RegisterPosition    uint8  = 10
	RegisterControlBits uint8  = 36

	// ControlBitKeepPosition keeps the position across mode switches.
	ControlBitKeepPosition uint32 = 1 << 5
	// ControlBitLoadPosition loads RegisterPosition as the absolute position on the next
	// transition to operational.
	ControlBitLoadPosition uint32 = 1 << 6
	// ControlBitSearchZero runs the zero search on the next transition to operational.
	ControlBitSearchZero uint32 = 1 << 8

	// ClearErrorsCommand clears the latched fault bits of a drive.
	ClearErrorsCommand uint32 = 8
)

const emergencyStopWait = 100 * time.Millisecond

// SlaveInfo summarizes one slave.
type SlaveInfo struct {
	Index          int
	Name           string
	State          fieldbus.SlaveState
	Mode           Mode
	TargetPosition int32
	ActualPosition int32
	Errors         []DriveError
}

// Controller exchanges drive data over a fieldbus master.
type Controller struct {
	cfg    Config
	mode   Mode
	master *fieldbus.Master
	logger logging.Logger
	clock  clock.Clock

	// slavesMu guards the per slave slices, which are replaced on every start.
	slavesMu sync.RWMutex
	outputs  []*Outputs
	inputs   []*Inputs

	positionMu sync.Mutex
	positions  []Position

	resetPending atomic.Bool
	resetValue   atomic.Int32
	applyReset   bool
	cycles       atomic.Uint64

	// Owned by the process worker.
	outBuf []byte
	inBuf  []byte
}

var _ fieldbus.Handler = (*Controller)(nil)

// NewController returns a controller that becomes the handler of master. A nil clock means the
// wall clock.
func NewController(logger logging.Logger, cfg Config, master *fieldbus.Master, clk clock.Clock) (*Controller, error) {
	if err := cfg.Validate("mac"); err != nil {
		return nil, err
	}
	mode, err := ModeFromString(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	c := &Controller{
		cfg:    cfg,
		mode:   mode,
		master: master,
		logger: logger,
		clock:  clk,
		outBuf: make([]byte, OutputSize),
		inBuf:  make([]byte, InputSize),
	}
	master.SetHandler(c)
	return c, nil
}

// Start starts the fieldbus master, which walks every slave up to operational.
func (c *Controller) Start(ctx context.Context) error {
	return c.master.Start(ctx)
}

// Stop stops the fieldbus master.
func (c *Controller) Stop(ctx context.Context) error {
	return c.master.Stop(ctx)
}

// Running reports whether process data is being exchanged.
func (c *Controller) Running() bool {
	return c.master.Running()
}

// SlaveCount returns the number of slaves found on the last start.
func (c *Controller) SlaveCount() int {
	c.slavesMu.RLock()
	defer c.slavesMu.RUnlock()
	return len(c.outputs)
}

// Operational reports whether a slave is in the operational state.
func (c *Controller) Operational(slave int) bool {
	return c.master.SlaveState(slave) == fieldbus.StateOperational
}

// Cycles returns the number of process cycles run since the controller was created.
func (c *Controller) Cycles() uint64 {
	return c.cycles.Load()
}

func (c *Controller) slave(slave int) (*Outputs, *Inputs, error) {
	c.slavesMu.RLock()
	defer c.slavesMu.RUnlock()
	if slave < 0 || slave >= len(c.outputs) {
		return nil, nil, utils.NewIndexOutOfRangeError("slave", slave, len(c.outputs))
	}
	return c.outputs[slave], c.inputs[slave], nil
}

// PositionData returns a copy of the position data of every slave.
func (c *Controller) PositionData() []Position {
	c.positionMu.Lock()
	defer c.positionMu.Unlock()
	return append([]Position(nil), c.positions...)
}

// SetPositionData replaces the position data of every slave.
func (c *Controller) SetPositionData(positions []Position) error {
	c.positionMu.Lock()
	defer c.positionMu.Unlock()
	if len(positions) != len(c.positions) {
		return errors.Errorf("expected position data for %d slaves, got %d", len(c.positions), len(positions))
	}
	copy(c.positions, positions)
	return nil
}

// SetPosition sets the target position of one slave, in motor steps.
func (c *Controller) SetPosition(slave int, steps int32) error {
	c.positionMu.Lock()
	defer c.positionMu.Unlock()
	if slave < 0 || slave >= len(c.positions) {
		return utils.NewIndexOutOfRangeError("slave", slave, len(c.positions))
	}
	c.positions[slave].Position = steps
	return nil
}

// Position returns the target position of one slave.
func (c *Controller) Position(slave int) (int32, error) {
	c.positionMu.Lock()
	defer c.positionMu.Unlock()
	if slave < 0 || slave >= len(c.positions) {
		return 0, utils.NewIndexOutOfRangeError("slave", slave, len(c.positions))
	}
	return c.positions[slave].Position, nil
}

// SetDigitalPin requests a digital output of one slave.
func (c *Controller) SetDigitalPin(slave, pin int, on bool) error {
	if pin < 0 || pin >= MaxPins {
		return utils.NewIndexOutOfRangeError("pin", pin, MaxPins)
	}
	c.positionMu.Lock()
	defer c.positionMu.Unlock()
	if slave < 0 || slave >= len(c.positions) {
		return utils.NewIndexOutOfRangeError("slave", slave, len(c.positions))
	}
	if on {
		c.positions[slave].Pins |= 1 << pin
	} else {
		c.positions[slave].Pins &^= 1 << pin
	}
	return nil
}

// ActualPosition returns the last position a slave reported, in motor steps.
func (c *Controller) ActualPosition(slave int) (int32, error) {
	_, in, err := c.slave(slave)
	if err != nil {
		return 0, err
	}
	return in.Position(), nil
}

// Outputs returns the requested drive values of one slave.
func (c *Controller) Outputs(slave int) (*Outputs, error) {
	out, _, err := c.slave(slave)
	return out, err
}

// Inputs returns the reported drive values of one slave.
func (c *Controller) Inputs(slave int) (*Inputs, error) {
	_, in, err := c.slave(slave)
	return in, err
}

// SetVelocity sets the velocity of one slave in RPM.
func (c *Controller) SetVelocity(slave int, rpm float64) error {
	out, _, err := c.slave(slave)
	if err != nil {
		return err
	}
	out.SetVelocity(rpm)
	return nil
}

// SetAcceleration sets the acceleration of one slave in RPM/s.
func (c *Controller) SetAcceleration(slave int, rpmPerSec float64) error {
	out, _, err := c.slave(slave)
	if err != nil {
		return err
	}
	out.SetAcceleration(rpmPerSec)
	return nil
}

// SetTorque sets the torque limit of one slave in percent.
func (c *Controller) SetTorque(slave int, pct float64) error {
	out, _, err := c.slave(slave)
	if err != nil {
		return err
	}
	out.SetTorque(pct)
	return nil
}

// SetMode sets the drive mode of one slave.
func (c *Controller) SetMode(slave int, m Mode) error {
	out, _, err := c.slave(slave)
	if err != nil {
		return err
	}
	out.SetMode(m)
	return nil
}

// HasError reports whether a slave raised its aggregate fault bit.
func (c *Controller) HasError(slave int) bool {
	_, in, err := c.slave(slave)
	if err != nil {
		return false
	}
	return in.HasError()
}

// Errors decodes the fault bits of a slave. Only call it after HasError returned true.
func (c *Controller) Errors(slave int) ([]DriveError, error) {
	_, in, err := c.slave(slave)
	if err != nil {
		return nil, err
	}
	return in.Errors(), nil
}

// ClearErrors sends the clear errors command to a slave once. It has to be reissued when the
// fault comes back.
func (c *Controller) ClearErrors(slave int) error {
	out, _, err := c.slave(slave)
	if err != nil {
		return err
	}
	out.clearErrors.Store(true)
	return nil
}

// ResetPosition loads value as the absolute position of every slave. It is applied on the next
// transition to pre-operational, so the controller has to be restarted for it to take effect.
func (c *Controller) ResetPosition(value int32) {
	c.resetValue.Store(value)
	c.resetPending.Store(true)
}

// EmergencyStop puts every slave in passive mode, waits for that to reach the bus and stops.
func (c *Controller) EmergencyStop(ctx context.Context) error {
	c.slavesMu.RLock()
	for _, out := range c.outputs {
		out.SetMode(ModePassive)
	}
	c.slavesMu.RUnlock()

	if c.Running() {
		start := c.cycles.Load()
		waitCtx, cancel := context.WithTimeout(ctx, emergencyStopWait)
		for c.cycles.Load() < start+2 {
			if !goutils.SelectContextOrWait(waitCtx, time.Millisecond) {
				break
			}
		}
		cancel()
	}
	c.logger.Warn("emergency stop")
	return c.Stop(ctx)
}

// Slaves describes every slave found on the last start.
func (c *Controller) Slaves() []SlaveInfo {
	positions := c.PositionData()
	session := c.master.Session()

	c.slavesMu.RLock()
	defer c.slavesMu.RUnlock()
	infos := make([]SlaveInfo, len(c.outputs))
	for i := range c.outputs {
		infos[i] = SlaveInfo{
			Index:          i,
			Name:           session.SlaveName(i),
			State:          c.master.SlaveState(i),
			Mode:           c.inputs[i].Mode(),
			ActualPosition: c.inputs[i].Position(),
		}
		if i < len(positions) {
			infos[i].TargetPosition = positions[i].Position
		}
		if c.inputs[i].HasError() {
			infos[i].Errors = c.inputs[i].Errors()
		}
	}
	return infos
}

// OnStart allocates the per slave data.
func (c *Controller) OnStart() {
	count := c.master.SlaveCount()
	outputs := make([]*Outputs, count)
	inputs := make([]*Inputs, count)
	for i := range outputs {
		out := &Outputs{}
		out.SetMode(c.mode)
		out.SetVelocity(c.cfg.VelocityRPM())
		out.SetAcceleration(c.cfg.AccelerationRPMPerSec())
		out.SetTorque(c.cfg.TorquePct())
		outputs[i] = out
		inputs[i] = &Inputs{}
	}

	c.slavesMu.Lock()
	c.outputs = outputs
	c.inputs = inputs
	c.slavesMu.Unlock()

	c.positionMu.Lock()
	c.positions = make([]Position, count)
	c.positionMu.Unlock()

	c.applyReset = c.resetPending.Swap(false)
	c.logger.Infow("motor controller started", "slaves", count, "mode", c.mode)
}

// OnPreOperational writes the control bits, and the reset position when one is pending.
func (c *Controller) OnPreOperational(slave int) {
	bits := ControlBitKeepPosition
	if c.applyReset {
		value := c.resetValue.Load()
		if err := c.master.SDOWrite(slave, SDOIndex, RegisterPosition, encodeRegister(uint32(value))); err != nil {
			c.logger.Errorw("cannot write reset position", "slave", slave, "error", err)
			return
		}
		bits |= ControlBitLoadPosition
		bits &^= ControlBitSearchZero
		c.logger.Infow("resetting position", "slave", slave, "position", value)
	}
	if err := c.master.SDOWrite(slave, SDOIndex, RegisterControlBits, encodeRegister(bits)); err != nil {
		c.logger.Errorw("cannot write control bits", "slave", slave, "error", err)
	}
}

// OnSafeOperational seeds the target position of a slave with its actual position, so resuming
// control does not jump, then sleeps the recovery delay.
func (c *Controller) OnSafeOperational(slave int) {
	_, in, err := c.slave(slave)
	if err != nil {
		c.logger.Errorw("unknown slave entered safe-operational", "slave", slave, "error", err)
		return
	}
	buf := make([]byte, InputSize)
	var img InputImage
	if err := c.master.Session().ReadInputs(slave, buf); err != nil {
		c.logger.Errorw("cannot read inputs", "slave", slave, "error", err)
	} else if err := img.Unmarshal(buf); err == nil {
		in.store(&img)
	}
	if err := c.SetPosition(slave, in.Position()); err != nil {
		c.logger.Errorw("cannot seed target position", "slave", slave, "error", err)
	}
	c.logger.Debugw("seeded target position", "slave", slave, "position", in.Position())

	if c.cfg.RecoveryDelayMs > 0 {
		c.clock.Sleep(time.Duration(c.cfg.RecoveryDelayMs) * time.Millisecond)
	}
}

// OnOperational logs the transition.
func (c *Controller) OnOperational(slave int) {
	c.logger.Infow("slave operational", "slave", slave)
}

// OnProcess copies the inputs of every slave out of the process image and writes its outputs.
func (c *Controller) OnProcess() {
	positions := c.PositionData()
	session := c.master.Session()

	c.slavesMu.RLock()
	defer c.slavesMu.RUnlock()
	for i, out := range c.outputs {
		var img InputImage
		if err := session.ReadInputs(i, c.inBuf); err == nil {
			if err := img.Unmarshal(c.inBuf); err == nil {
				c.inputs[i].store(&img)
			}
		}
		if i >= len(positions) {
			continue
		}

		target := positions[i]
		pins := target.Pins
		if c.cfg.SoftwarePin {
			on := int64(target.Position)-int64(c.inputs[i].Position()) > int64(c.cfg.SoftwarePinThreshold)
			if c.cfg.SoftwarePinInvert {
				on = !on
			}
			if on {
				pins |= 1 << c.cfg.SoftwarePinIndex
			} else {
				pins &^= 1 << c.cfg.SoftwarePinIndex
			}
		}

		command := uint32(0)
		if out.clearErrors.CompareAndSwap(true, false) {
			command = ClearErrorsCommand
		}

		outImg := OutputImage{
			Mode:         uint32(out.Mode()),
			Position:     target.Position,
			Velocity:     out.velocity.Load(),
			Acceleration: out.acceleration.Load(),
			Torque:       out.torque.Load(),
			Pins:         pins,
			Command:      command,
		}
		if err := outImg.Marshal(c.outBuf); err != nil {
			continue
		}
		if err := session.WriteOutputs(i, c.outBuf); err != nil {
			c.logger.Debugw("cannot write outputs", "slave", i, "error", err)
		}
	}
	c.cycles.Inc()
}

// OnStopProcessing is called before the process worker stops.
func (c *Controller) OnStopProcessing() {
	c.logger.Debug("motor controller stops processing")
}

// OnStop is called once the process worker stopped. The slave data is kept for inspection.
func (c *Controller) OnStop() {
	c.logger.Info("motor controller stopped")
}

func encodeRegister(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}
