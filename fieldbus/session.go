// Package fieldbus runs the cyclic process data exchange with a bus of motor drives. The bus
// itself is reached through a Session; the Master owns the slave state machine and the process
// and error workers, and notifies a Handler at every lifecycle transition.
package fieldbus

import (
	"context"
	"fmt"
	"time"
)

// AllSlaves addresses every slave on the bus in RequestState and StateCheck.
const AllSlaves = -1

// SlaveState is the application layer state of a slave.
type SlaveState uint16

// The slave states. StateError is a flag combined with one of the other states, StateAck
// acknowledges it.
const (
	StateNone            SlaveState = 0x00
	StateInit            SlaveState = 0x01
	StatePreOperational  SlaveState = 0x02
	StateBoot            SlaveState = 0x03
	StateSafeOperational SlaveState = 0x04
	StateOperational     SlaveState = 0x08
	StateError           SlaveState = 0x10
	StateAck             SlaveState = 0x10
)

func (s SlaveState) String() string {
	var name string
	switch s &^ StateError {
	case StateNone:
		name = "none"
	case StateInit:
		name = "init"
	case StatePreOperational:
		name = "pre_operational"
	case StateBoot:
		name = "boot"
	case StateSafeOperational:
		name = "safe_operational"
	case StateOperational:
		name = "operational"
	default:
		name = fmt.Sprintf("0x%02x", uint16(s&^StateError))
	}
	if s&StateError != 0 {
		name += "+error"
	}
	return name
}

// Session is the transport to one bus. Slave indices are zero based.
//
// State, ALStatus and SlaveName report the values cached by the last ReadState or StateCheck.
// ReadInputs and WriteOutputs copy between the caller's buffer and the process image and are
// safe to call while Exchange runs on another goroutine.
type Session interface {
	// Open binds the session to a network adapter.
	Open(adapter string) error
	Close() error
	// ConfigInit enumerates the bus and returns the number of slaves found.
	ConfigInit() (int, error)
	// ConfigDC configures distributed clocks on every capable slave.
	ConfigDC() error
	// ConfigMap maps the process data objects of every slave into the process image.
	ConfigMap() error

	SlaveName(slave int) string
	ReadState() error
	State(slave int) SlaveState
	ALStatus(slave int) uint16
	RequestState(slave int, state SlaveState) error
	// StateCheck waits up to timeout for a slave to reach a state and returns the state reached.
	// For AllSlaves the lowest state on the bus is returned.
	StateCheck(slave int, state SlaveState, timeout time.Duration) SlaveState

	// Exchange sends the output image and receives the input image, returning the work counter.
	Exchange(ctx context.Context) (int, error)
	// ExpectedWorkCounter is outputsWKC*2 + inputsWKC of the mapped group.
	ExpectedWorkCounter() int
	ReadInputs(slave int, buf []byte) error
	WriteOutputs(slave int, buf []byte) error

	SDOWrite(slave int, index uint16, subindex uint8, data []byte) error
	// Reconfigure brings a slave that dropped below operational back to its configured state.
	Reconfigure(slave int, timeout time.Duration) bool
	// Recover re-establishes a slave that vanished from the bus.
	Recover(slave int, timeout time.Duration) bool
}

// Handler is notified by the Master. OnProcess is called once per cycle on the process worker;
// the slave hooks are called on the goroutine that drives the transition.
type Handler interface {
	OnStart()
	OnPreOperational(slave int)
	OnSafeOperational(slave int)
	OnOperational(slave int)
	OnProcess()
	OnStopProcessing()
	OnStop()
}
