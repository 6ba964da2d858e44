// Package control runs the relaxation engine at a fixed frequency and drives the motors with the
// result.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
	"golang.org/x/time/rate"

	"go.viam.com/flexblock/adapter"
	"go.viam.com/flexblock/flex"
	"go.viam.com/flexblock/logging"
	"go.viam.com/flexblock/mac"
	"go.viam.com/flexblock/utils"
)

// Motors is the motor interface the loop writes target positions to.
type Motors interface {
	// Running reports whether the motor interface is processing.
	Running() bool
	SlaveCount() int
	// Operational reports whether a slave is in the fieldbus operational state.
	Operational(slave int) bool
	// Stop stops the motor interface. The loop calls it when a slave drops out of operational.
	Stop(ctx context.Context) error
	// PositionData returns a copy of the per slave position data.
	PositionData() []mac.Position
	// SetPositionData replaces the target positions of every slave.
	SetPositionData(positions []mac.Position) error
	// ActualPosition returns the last position a slave reported, in steps.
	ActualPosition(slave int) (int32, error)
	SetDigitalPin(slave, pin int, on bool) error
}

// Loop holds the loop config and state.
type Loop struct {
	cfg      Config
	engine   *flex.Engine
	motors   Motors
	adapters *adapter.Chain
	logger   logging.Logger
	clock    clock.Clock
	period   time.Duration
	mapping  []int

	mu      sync.Mutex
	workers *goutils.StoppableWorkers

	inputMu         sync.Mutex
	input           flex.Input
	overrideOffsets []float64

	outputMu   sync.Mutex
	state      flex.State
	lastInput  flex.Input
	tickTiming *timing

	// Owned by the loop goroutine.
	phase      float64
	tick       uint64
	halted     bool
	pinState   []bool
	overrunLog rate.Sometimes
}

// NewLoop constructs a loop for the engine. motors may be nil, in which case the loop only
// simulates. A nil clock means the wall clock.
func NewLoop(logger logging.Logger, cfg Config, engine *flex.Engine, motors Motors, clk clock.Clock) (*Loop, error) {
	motorCount := engine.Topology().Motors
	if err := cfg.Validate("loop", motorCount); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	l := &Loop{
		cfg:             cfg,
		engine:          engine,
		motors:          motors,
		adapters:        adapter.NewChain(),
		logger:          logger,
		clock:           clk,
		period:          time.Duration(float64(time.Second) / cfg.Frequency),
		mapping:         cfg.mapping(motorCount),
		input:           flex.NewInput(motorCount),
		overrideOffsets: make([]float64, motorCount),
		lastInput:       flex.NewInput(motorCount),
		tickTiming:      newTiming(timingWindow),
		overrunLog:      rate.Sometimes{Interval: 10 * time.Second},
	}
	raw := l.engine.RopeLengths()
	l.publish(raw, ComposeRopeLengths(raw, l.input, cfg, 0), l.input.Clone())
	return l, nil
}

// Adapters returns the chain run after every tick.
func (l *Loop) Adapters() *adapter.Chain {
	return l.adapters
}

// Start starts the loop goroutine. Starting a running loop does nothing.
func (l *Loop) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers != nil {
		return
	}
	l.halted = false
	l.pinState = nil
	l.logger.Infow("starting control loop", "frequency", l.cfg.Frequency, "period", l.period)
	l.workers = goutils.NewBackgroundStoppableWorkers(l.run)
}

// Stop stops the loop goroutine and waits for it to exit. An in flight tick completes first.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers == nil {
		return
	}
	l.workers.Stop()
	l.workers = nil
	l.logger.Info("control loop stopped")
}

// Running reports whether the loop goroutine is active.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers != nil
}

func (l *Loop) run(ctx context.Context) {
	last := l.clock.Now()
	dt := l.period
	for {
		if ctx.Err() != nil {
			return
		}
		start := l.clock.Now()
		if l.tick > 0 {
			dt = start.Sub(last)
		}
		last = start

		l.step(ctx, dt)

		elapsed := l.clock.Since(start)
		l.outputMu.Lock()
		l.tickTiming.add(elapsed, dt)
		l.outputMu.Unlock()

		remaining := l.period - elapsed
		if remaining <= 0 {
			l.overrunLog.Do(func() {
				l.logger.Debugw("control tick overran its period", "elapsed", elapsed, "period", l.period)
			})
			continue
		}
		timer := l.clock.Timer(remaining)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// step runs one tick: input snapshot, relaxation, rope lengths, motor write, publication and
// adapters, in that order.
func (l *Loop) step(ctx context.Context, dt time.Duration) {
	in := l.snapshot()

	if err := l.engine.SetMotorDrive(in.Drive); err != nil {
		// Input is resized on every write, so this is a programming error.
		l.logger.Errorw("cannot set motor drive", "error", err)
		return
	}
	l.engine.Relax()

	raw := l.engine.RopeLengths()
	l.phase += dt.Seconds() * in.SinusFrequency
	lengths := ComposeRopeLengths(raw, in, l.cfg, l.phase)

	if l.motors != nil && l.cfg.EnableMotors {
		l.writeMotors(ctx, lengths)
	}

	l.tick++
	l.publish(raw, lengths, in)

	l.adapters.Compute(l, dt)
}

// writeMotors stops the motors if any slave is not operational. Otherwise it writes the target
// positions and the edge triggered digital pins.
func (l *Loop) writeMotors(ctx context.Context, lengths []float64) {
	if l.halted || !l.motors.Running() {
		return
	}

	slaves := l.motors.SlaveCount()
	for s := 0; s < slaves; s++ {
		if l.motors.Operational(s) {
			continue
		}
		l.halted = true
		l.logger.Errorw("slave is not operational, stopping motors", "slave", s)
		if err := l.motors.Stop(ctx); err != nil {
			l.logger.Errorw("error stopping motors", "error", err)
		}
		return
	}

	data := l.motors.PositionData()
	for rope, slave := range l.mapping {
		if slave < 0 || slave >= len(data) {
			continue
		}
		data[slave].Position = l.cfg.StepPosition(lengths[rope])
	}
	if err := l.motors.SetPositionData(data); err != nil {
		l.logger.Errorw("cannot set position data", "error", err)
		return
	}

	if !l.cfg.EnableDigitalPin {
		return
	}
	if len(l.pinState) != slaves {
		l.pinState = make([]bool, slaves)
	}
	for rope, slave := range l.mapping {
		if slave < 0 || slave >= slaves {
			continue
		}
		actual, err := l.motors.ActualPosition(slave)
		if err != nil {
			continue
		}
		on := lengths[rope]-l.cfg.StepsToMeters(float64(actual)) > l.cfg.PinThreshold
		if on == l.pinState[slave] {
			continue
		}
		if err := l.motors.SetDigitalPin(slave, l.cfg.DigitalPin, on); err != nil {
			l.logger.Warnw("cannot set digital pin", "slave", slave, "error", err)
			continue
		}
		l.pinState[slave] = on
	}
}

func (l *Loop) publish(raw, lengths []float64, in flex.Input) {
	steps := make([]float64, len(lengths))
	for i, length := range lengths {
		steps[i] = l.cfg.MetersToSteps(length)
	}
	state := flex.State{
		Tick:              l.tick,
		Points:            l.engine.Points(),
		RawRopeLengths:    raw,
		RopeLengths:       lengths,
		Steps:             steps,
		MotorSpeed:        l.engine.MotorSpeed(),
		MotorAcceleration: l.engine.MotorAcceleration(),
	}

	l.outputMu.Lock()
	l.state = state
	l.lastInput = in
	l.outputMu.Unlock()
}

// State returns a copy of the state published by the last tick.
func (l *Loop) State() flex.State {
	l.outputMu.Lock()
	defer l.outputMu.Unlock()
	return l.state.Clone()
}

// snapshot copies the input with the adapter offsets folded into the overrides.
func (l *Loop) snapshot() flex.Input {
	l.inputMu.Lock()
	defer l.inputMu.Unlock()
	in := l.input.Clone()
	for i, offset := range l.overrideOffsets {
		in.Override[i] += offset
	}
	return in
}

// Input returns a copy of the current operator input.
func (l *Loop) Input() flex.Input {
	l.inputMu.Lock()
	defer l.inputMu.Unlock()
	return l.input.Clone()
}

// LastInput returns the input, overrides offsets included, used by the last tick.
func (l *Loop) LastInput() flex.Input {
	l.outputMu.Lock()
	defer l.outputMu.Unlock()
	return l.lastInput.Clone()
}

// SetInput replaces the whole operator input. Drive and override must have one value per rope.
func (l *Loop) SetInput(in flex.Input) error {
	motors := len(l.overrideOffsets)
	if len(in.Drive) != motors {
		return flex.NewDriveCountError(motors, len(in.Drive))
	}
	if len(in.Override) != motors {
		return flex.NewDriveCountError(motors, len(in.Override))
	}
	in = in.Clone()
	l.inputMu.Lock()
	l.input = in
	l.inputMu.Unlock()
	return nil
}

// SetDrive sets the drive value of one rope.
func (l *Loop) SetDrive(rope int, value float64) error {
	l.inputMu.Lock()
	defer l.inputMu.Unlock()
	if rope < 0 || rope >= len(l.input.Drive) {
		return utils.NewIndexOutOfRangeError("rope", rope, len(l.input.Drive))
	}
	l.input.Drive[rope] = value
	return nil
}

// SetOverride sets the manual length offset of one rope.
func (l *Loop) SetOverride(rope int, value float64) error {
	l.inputMu.Lock()
	defer l.inputMu.Unlock()
	if rope < 0 || rope >= len(l.input.Override) {
		return utils.NewIndexOutOfRangeError("rope", rope, len(l.input.Override))
	}
	l.input.Override[rope] = value
	return nil
}

// SetOverrideOffset sets an adapter owned offset added to the override of one rope.
func (l *Loop) SetOverrideOffset(rope int, value float64) error {
	l.inputMu.Lock()
	defer l.inputMu.Unlock()
	if rope < 0 || rope >= len(l.overrideOffsets) {
		return utils.NewIndexOutOfRangeError("rope", rope, len(l.overrideOffsets))
	}
	l.overrideOffsets[rope] = value
	return nil
}

// SetSlack sets the slack added to every rope.
func (l *Loop) SetSlack(value float64) {
	l.inputMu.Lock()
	l.input.Slack = value
	l.inputMu.Unlock()
}

// SetSinusAmplitude sets the amplitude, in meters, of the sinusoidal length modulation.
func (l *Loop) SetSinusAmplitude(value float64) {
	l.inputMu.Lock()
	l.input.SinusAmplitude = value
	l.inputMu.Unlock()
}

// SetSinusFrequency sets the phase velocity, in radians per second, of the sinusoidal length
// modulation. The phase is continuous across changes.
func (l *Loop) SetSinusFrequency(value float64) {
	l.inputMu.Lock()
	l.input.SinusFrequency = value
	l.inputMu.Unlock()
}

// Stats returns timing statistics over the most recent ticks.
func (l *Loop) Stats() (Stats, error) {
	l.outputMu.Lock()
	defer l.outputMu.Unlock()
	if l.tickTiming.len() == 0 {
		return Stats{}, errors.New("no ticks recorded")
	}
	return l.tickTiming.stats(l.state.Tick)
}
