// Package fake implements simulated operator inputs.
package fake

import (
	"context"
	"sync"

	"go.viam.com/cutterdrive/arbiter"
	"go.viam.com/cutterdrive/components/board"
)

var _ board.InputReader = &Inputs{}

// Inputs holds switch states set by a simulation or test.
type Inputs struct {
	mu     sync.Mutex
	inputs arbiter.Inputs
	err    error
}

// Set replaces all input states.
func (f *Inputs) Set(in arbiter.Inputs) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = in
}

// SetEnable sets the cutter enable switch.
func (f *Inputs) SetEnable(asserted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs.Enable = asserted
}

// SetOverride sets the irrigation override switch.
func (f *Inputs) SetOverride(asserted bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs.Override = asserted
}

// SetError makes ReadInputs fail with err until cleared with nil.
func (f *Inputs) SetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// ReadInputs returns the current switch states.
func (f *Inputs) ReadInputs(ctx context.Context) (arbiter.Inputs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inputs, f.err
}

// Close does nothing.
func (f *Inputs) Close(ctx context.Context) error {
	return nil
}
