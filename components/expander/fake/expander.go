// Package fake implements an in memory relay expander.
package fake

import (
	"context"
	"sync"

	"go.viam.com/cutterdrive/arbiter"
)

var (
	_ arbiter.Relays           = &Expander{}
	_ arbiter.IrrigationSensor = &Expander{}
)

// Expander remembers the last word on each port and reports a settable pump current.
type Expander struct {
	mu      sync.Mutex
	words   map[arbiter.Port]arbiter.RelayWord
	writes  int
	current uint32
	err     error
}

// NewExpander returns an expander with nothing written.
func NewExpander() *Expander {
	return &Expander{words: map[arbiter.Port]arbiter.RelayWord{}}
}

// SetRelayWord stores word for port.
func (e *Expander) SetRelayWord(ctx context.Context, port arbiter.Port, word arbiter.RelayWord) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.words[port] = word
	e.writes++
	return nil
}

// Word returns the last word written to port.
func (e *Expander) Word(port arbiter.Port) (arbiter.RelayWord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	w, ok := e.words[port]
	return w, ok
}

// Writes counts successful writes.
func (e *Expander) Writes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.writes
}

// SetCurrent sets the reported pump current.
func (e *Expander) SetCurrent(current uint32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current = current
}

// SetError makes every write and read fail with err until cleared with nil.
func (e *Expander) SetError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

// ReadIrrigationCurrent returns the current set with SetCurrent.
func (e *Expander) ReadIrrigationCurrent(ctx context.Context) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current, e.err
}

// Close does nothing.
func (e *Expander) Close(ctx context.Context) error {
	return nil
}
