// Package fake implements a simulated hand-piece.
package fake

import (
	"context"
	"math"
	"sync"

	"go.viam.com/cutterdrive/components/handpiece"
	"go.viam.com/cutterdrive/hall"
	"go.viam.com/cutterdrive/logging"
)

// Travel is how many counts sensor 0 rises between a released and a fully pulled trigger.
const Travel = 127

// ReleasedSample is what the simulated hand-piece reports with the trigger released.
var ReleasedSample = hall.Sample{
	Hall:           [hall.NumSensors]uint16{100, 150, 190, 220},
	VoltageMonitor: [2]uint16{256, 426},
	TempRaw:        150,
}

var _ handpiece.Source = &Handpiece{}

// A Handpiece generates samples from a simulated trigger position.
type Handpiece struct {
	mu       sync.Mutex
	logger   logging.Logger
	attached bool
	inverted bool
	position float64
	timeout  bool
	invalid  bool
	closed   bool
}

// NewHandpiece returns an attached hand-piece with the trigger released. An inverted hand-piece
// reports mirrored readings.
func NewHandpiece(inverted bool, logger logging.Logger) *Handpiece {
	return &Handpiece{logger: logger, attached: true, inverted: inverted}
}

// SetTrigger sets the trigger position between 0 (released) and 1 (fully pulled).
func (h *Handpiece) SetTrigger(position float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.position = math.Max(0, math.Min(1, position))
}

// SetAttached simulates plugging the hand-piece in or out. A detached hand-piece reports zero
// samples.
func (h *Handpiece) SetAttached(attached bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.attached = attached
	h.logger.Debugw("simulated hand-piece", "attached", attached)
}

// SetTimeout makes every read time out until cleared.
func (h *Handpiece) SetTimeout(timeout bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.timeout = timeout
}

// SetInvalid makes every read report an A2D fault until cleared.
func (h *Handpiece) SetInvalid(invalid bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.invalid = invalid
}

// ReadSample returns the sample for the current trigger position.
func (h *Handpiece) ReadSample(ctx context.Context) (hall.Sample, error) {
	if err := ctx.Err(); err != nil {
		return hall.Sample{}, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.closed || h.timeout:
		return hall.Sample{}, handpiece.ErrTimeout
	case !h.attached:
		return hall.Sample{}, nil
	case h.invalid:
		return hall.Sample{}, handpiece.ErrInvalidSample
	}

	s := ReleasedSample
	s.Hall[0] += uint16(math.Round(h.position * Travel))
	if h.inverted {
		for i, v := range s.Hall {
			s.Hall[i] = 512 - v
		}
	}
	return s, nil
}

// Close makes further reads time out.
func (h *Handpiece) Close(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}
