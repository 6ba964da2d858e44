// Package adapter contains post-processors that run on the control loop goroutine after every
// completed tick. Adapters can observe the published state and feed override offsets back into
// the next tick.
package adapter

import (
	"sync"
	"time"

	"go.uber.org/atomic"

	"go.viam.com/flexblock/flex"
)

// Device is the view of a control loop that adapters compute against.
type Device interface {
	// State returns the state published by the tick that just completed.
	State() flex.State
	// Input returns the operator input used by that tick.
	Input() flex.Input
	// SetOverrideOffset sets a length offset, in override units, added to the operator override
	// of a rope from the next tick on.
	SetOverrideOffset(rope int, value float64) error
}

// An Adapter post-processes a completed tick. Compute is called on the control loop goroutine
// and must not block.
type Adapter interface {
	Name() string
	Enabled() bool
	Compute(device Device, dt time.Duration)
}

// Toggle holds the enabled state of an adapter. Embed it to satisfy Enabled.
type Toggle struct {
	disabled atomic.Bool
}

// Enabled reports whether the adapter runs.
func (t *Toggle) Enabled() bool {
	return !t.disabled.Load()
}

// SetEnabled enables or disables the adapter. It takes effect on the next tick.
func (t *Toggle) SetEnabled(enabled bool) {
	t.disabled.Store(!enabled)
}

// A Chain runs adapters in attachment order.
type Chain struct {
	mu       sync.RWMutex
	adapters []Adapter
}

// NewChain returns a chain of the given adapters.
func NewChain(adapters ...Adapter) *Chain {
	return &Chain{adapters: append([]Adapter(nil), adapters...)}
}

// Add appends an adapter to the chain.
func (c *Chain) Add(a Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters = append(c.adapters, a)
}

// Adapters returns the attached adapters.
func (c *Chain) Adapters() []Adapter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Adapter(nil), c.adapters...)
}

// Compute calls Compute on every enabled adapter. Disabled adapters are skipped entirely.
func (c *Chain) Compute(device Device, dt time.Duration) {
	for _, a := range c.Adapters() {
		if !a.Enabled() {
			continue
		}
		a.Compute(device, dt)
	}
}

// Func is an adapter backed by a function.
type Func struct {
	Toggle
	name string
	fn   func(device Device, dt time.Duration)
}

// NewFunc returns an enabled adapter that calls fn.
func NewFunc(name string, fn func(device Device, dt time.Duration)) *Func {
	return &Func{name: name, fn: fn}
}

// Name returns the adapter name.
func (f *Func) Name() string {
	return f.name
}

// Compute calls the wrapped function.
func (f *Func) Compute(device Device, dt time.Duration) {
	f.fn(device, dt)
}
