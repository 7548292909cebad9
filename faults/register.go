package faults

import (
	"sync"

	"go.viam.com/cutterdrive/logging"
)

// Register is the Sink used by the drive. It is safe for concurrent use so status readers can
// inspect the flags while the control loop writes them.
type Register struct {
	mu     sync.Mutex
	flags  Code
	logger logging.Logger

	// onNonClearable is called, without the lock held, whenever a non-clearable bit goes from
	// clear to set.
	onNonClearable func(code Code)
}

// NewRegister returns an empty register. onNonClearable may be nil.
func NewRegister(logger logging.Logger, onNonClearable func(code Code)) *Register {
	return &Register{logger: logger, onNonClearable: onNonClearable}
}

// SetFault sets the bits of code. Setting an already-set bit does nothing.
func (r *Register) SetFault(code Code) {
	r.mu.Lock()
	added := code &^ r.flags
	r.flags |= code
	r.mu.Unlock()

	if added == 0 {
		return
	}
	switch ClassOf(added) {
	case NonClearableClass:
		r.logger.Errorw("fault latched", "code", added.String(), "class", NonClearableClass.String())
		if r.onNonClearable != nil {
			r.onNonClearable(added & NonClearable)
		}
	case Retryable:
		r.logger.Warnw("fault set", "code", added.String())
	case Advisory:
		r.logger.Debugw("warning set", "code", added.String())
	}
}

// ClearFault clears the clearable bits of code.
func (r *Register) ClearFault(code Code) {
	r.mu.Lock()
	removed := r.flags & code &^ NonClearable
	r.flags &^= removed
	r.mu.Unlock()

	if removed != 0 {
		r.logger.Debugw("fault cleared", "code", removed.String())
	}
}

// ClearFaults clears every bit except the non-clearable faults.
func (r *Register) ClearFaults() {
	r.ClearFault(^Code(0))
}

// Faulted reports whether any bit of mask is set.
func (r *Register) Faulted(mask Code) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags&mask != 0
}

// Flags returns a snapshot of every set bit.
func (r *Register) Flags() Code {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.flags
}

// ServiceReset clears every bit, including non-clearable faults. It is the external reset path
// and is never called by the control loop itself.
func (r *Register) ServiceReset() {
	r.mu.Lock()
	prev := r.flags
	r.flags = 0
	r.mu.Unlock()

	if prev != 0 {
		r.logger.Infow("service reset", "cleared", prev.String())
	}
}
