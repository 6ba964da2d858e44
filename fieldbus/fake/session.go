// Package fake implements an in-memory fieldbus session. Every slave is a Device that consumes
// its output image and produces its input image once per exchange.
package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/flexblock/fieldbus"
	"go.viam.com/flexblock/utils"
)

// Device simulates one slave.
type Device interface {
	Name() string
	InputSize() int
	OutputSize() int
	// Process is called on every exchange. outputs is nil while the slave is not operational.
	Process(outputs, inputs []byte, dt time.Duration)
	SDOWrite(index uint16, subindex uint8, data []byte) error
}

// Session is a fieldbus.Session over simulated devices.
type Session struct {
	mu      sync.Mutex
	clock   clock.Clock
	devices []Device

	adapter   string
	open      bool
	mapped    bool
	present   []bool
	states    []fieldbus.SlaveState
	inputs    [][]byte
	outputs   [][]byte
	last      time.Time
	exchanges int

	// OpenErr, when set, is returned by Open.
	OpenErr error
}

var _ fieldbus.Session = (*Session)(nil)

// NewSession returns a closed session over the given devices. A nil clock means the wall clock.
func NewSession(clk clock.Clock, devices ...Device) *Session {
	if clk == nil {
		clk = clock.New()
	}
	s := &Session{
		clock:   clk,
		devices: devices,
		present: make([]bool, len(devices)),
		states:  make([]fieldbus.SlaveState, len(devices)),
		inputs:  make([][]byte, len(devices)),
		outputs: make([][]byte, len(devices)),
	}
	for i, d := range devices {
		s.present[i] = true
		s.inputs[i] = make([]byte, d.InputSize())
		s.outputs[i] = make([]byte, d.OutputSize())
	}
	return s
}

// Open implements fieldbus.Session.
func (s *Session) Open(adapter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.OpenErr != nil {
		return s.OpenErr
	}
	s.adapter = adapter
	s.open = true
	s.last = s.clock.Now()
	return nil
}

// Close implements fieldbus.Session.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open = false
	s.mapped = false
	for i := range s.states {
		s.states[i] = fieldbus.StateNone
	}
	return nil
}

// IsOpen reports whether the session is open.
func (s *Session) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Adapter returns the adapter the session was opened on.
func (s *Session) Adapter() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adapter
}

// ConfigInit implements fieldbus.Session. Every present slave enters pre-operational.
func (s *Session) ConfigInit() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, errors.New("session is not open")
	}
	for i := range s.devices {
		if s.present[i] {
			s.states[i] = fieldbus.StatePreOperational
		}
	}
	return len(s.devices), nil
}

// ConfigDC implements fieldbus.Session.
func (s *Session) ConfigDC() error {
	return nil
}

// ConfigMap implements fieldbus.Session. Every pre-operational slave enters safe-operational
// with its inputs refreshed once.
func (s *Session) ConfigMap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mapped = true
	for i, st := range s.states {
		if st == fieldbus.StatePreOperational {
			s.states[i] = fieldbus.StateSafeOperational
			s.devices[i].Process(nil, s.inputs[i], 0)
		}
	}
	return nil
}

// SlaveName implements fieldbus.Session.
func (s *Session) SlaveName(slave int) string {
	if slave < 0 || slave >= len(s.devices) {
		return ""
	}
	return s.devices[slave].Name()
}

// ReadState implements fieldbus.Session.
func (s *Session) ReadState() error {
	return nil
}

// State implements fieldbus.Session.
func (s *Session) State(slave int) fieldbus.SlaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slave < 0 || slave >= len(s.states) {
		return fieldbus.StateNone
	}
	return s.states[slave]
}

// ALStatus implements fieldbus.Session.
func (s *Session) ALStatus(slave int) uint16 {
	if s.State(slave)&fieldbus.StateError != 0 {
		return 0x001b
	}
	return 0
}

// RequestState implements fieldbus.Session. Absent slaves stay in StateNone and the operational
// state is only reachable once the process data is mapped.
func (s *Session) RequestState(slave int, state fieldbus.SlaveState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slave == fieldbus.AllSlaves {
		for i := range s.states {
			s.requestLocked(i, state)
		}
		return nil
	}
	if slave < 0 || slave >= len(s.states) {
		return utils.NewIndexOutOfRangeError("slave", slave, len(s.states))
	}
	s.requestLocked(slave, state)
	return nil
}

func (s *Session) requestLocked(slave int, state fieldbus.SlaveState) {
	if !s.present[slave] {
		return
	}
	cur := s.states[slave]
	if state&fieldbus.StateAck != 0 {
		s.states[slave] = cur &^ fieldbus.StateError
		return
	}
	if cur&fieldbus.StateError != 0 {
		return
	}
	if state >= fieldbus.StateSafeOperational && !s.mapped {
		return
	}
	s.states[slave] = state
}

// StateCheck implements fieldbus.Session. Transitions are immediate, so it never waits.
func (s *Session) StateCheck(slave int, state fieldbus.SlaveState, timeout time.Duration) fieldbus.SlaveState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slave != fieldbus.AllSlaves {
		if slave < 0 || slave >= len(s.states) {
			return fieldbus.StateNone
		}
		return s.states[slave]
	}
	if len(s.states) == 0 {
		return fieldbus.StateNone
	}
	lowest := s.states[0]
	for _, st := range s.states[1:] {
		if st < lowest {
			lowest = st
		}
	}
	return lowest
}

// Exchange implements fieldbus.Session. Operational slaves count 3 towards the work counter and
// consume their outputs, safe-operational slaves count 1 and only refresh their inputs.
func (s *Session) Exchange(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return 0, errors.New("session is not open")
	}
	now := s.clock.Now()
	dt := now.Sub(s.last)
	s.last = now
	s.exchanges++

	wkc := 0
	for i, d := range s.devices {
		switch s.states[i] {
		case fieldbus.StateOperational:
			d.Process(s.outputs[i], s.inputs[i], dt)
			wkc += 3
		case fieldbus.StateSafeOperational:
			d.Process(nil, s.inputs[i], dt)
			wkc++
		}
	}
	return wkc, nil
}

// Exchanges returns the number of exchanges since the session was created.
func (s *Session) Exchanges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchanges
}

// ExpectedWorkCounter implements fieldbus.Session.
func (s *Session) ExpectedWorkCounter() int {
	return len(s.devices)*2 + len(s.devices)
}

// ReadInputs implements fieldbus.Session.
func (s *Session) ReadInputs(slave int, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slave < 0 || slave >= len(s.inputs) {
		return utils.NewIndexOutOfRangeError("slave", slave, len(s.inputs))
	}
	if len(buf) < len(s.inputs[slave]) {
		return fmt.Errorf("input buffer of %d bytes, slave %d maps %d", len(buf), slave, len(s.inputs[slave]))
	}
	copy(buf, s.inputs[slave])
	return nil
}

// WriteOutputs implements fieldbus.Session.
func (s *Session) WriteOutputs(slave int, buf []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slave < 0 || slave >= len(s.outputs) {
		return utils.NewIndexOutOfRangeError("slave", slave, len(s.outputs))
	}
	if len(buf) < len(s.outputs[slave]) {
		return fmt.Errorf("output buffer of %d bytes, slave %d maps %d", len(buf), slave, len(s.outputs[slave]))
	}
	copy(s.outputs[slave], buf)
	return nil
}

// SDOWrite implements fieldbus.Session.
func (s *Session) SDOWrite(slave int, index uint16, subindex uint8, data []byte) error {
	if slave < 0 || slave >= len(s.devices) {
		return utils.NewIndexOutOfRangeError("slave", slave, len(s.devices))
	}
	return s.devices[slave].SDOWrite(index, subindex, data)
}

// Reconfigure implements fieldbus.Session. A present slave returns to safe-operational.
func (s *Session) Reconfigure(slave int, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slave < 0 || slave >= len(s.states) || !s.present[slave] {
		return false
	}
	s.states[slave] = fieldbus.StateSafeOperational
	return true
}

// Recover implements fieldbus.Session. A slave that is back on the bus enters init.
func (s *Session) Recover(slave int, timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slave < 0 || slave >= len(s.states) || !s.present[slave] {
		return false
	}
	s.states[slave] = fieldbus.StateInit
	return true
}

// SetState forces the state of a slave.
func (s *Session) SetState(slave int, state fieldbus.SlaveState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[slave] = state
}

// Disconnect removes a slave from the bus.
func (s *Session) Disconnect(slave int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present[slave] = false
	s.states[slave] = fieldbus.StateNone
}

// Reconnect puts a disconnected slave back on the bus. It stays in StateNone until recovered.
func (s *Session) Reconnect(slave int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.present[slave] = true
}
