// Package control contains the speed loop used by the simulated drive.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// SpeedLoop is a PI controller from a speed error in RPM to a duty cycle in percent. The
// integral gain can be swapped while running, which is how the drive moves from the speed loop
// gain to the power loop gain above the switch speed.
type SpeedLoop struct {
	mu    sync.Mutex
	Kp    float64
	Ki    float64
	error float64
	int   float64
	sat   int
	y     float64
}

// NewSpeedLoop returns a SpeedLoop with the given gains.
func NewSpeedLoop(kp, ki float64) (*SpeedLoop, error) {
	if kp < 0 || ki < 0 {
		return nil, errors.Errorf("speed loop gains must not be negative, got Kp=%v Ki=%v", kp, ki)
	}
	if kp == 0 && ki == 0 {
		return nil, errors.New("speed loop should have at least one of Kp or Ki")
	}
	return &SpeedLoop{Kp: kp, Ki: ki}, nil
}

// Next returns the duty cycle for one step, dt is the time since the previous call. Returns
// false when the integral is saturating in the direction of the error; the previous output
// should then be kept.
func (p *SpeedLoop) Next(ctx context.Context, setPoint, measured float64, dt time.Duration) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	dtS := dt.Seconds()
	error := setPoint - measured
	if (p.sat > 0 && error > 0) || (p.sat < 0 && error < 0) {
		return p.y, false
	}
	p.int += p.Ki * p.error * dtS
	switch {
	case p.int > 100:
		p.int = 100
		p.sat = 1
	case p.int < 0:
		p.int = 0
		p.sat = -1
	default:
		p.sat = 0
	}
	output := p.Kp*error + p.int
	p.error = error
	if output > 100 {
		output = 100
	} else if output < 0 {
		output = 0
	}
	p.y = output
	return p.y, true
}

// SetIntegralGain replaces the integral gain, keeping the accumulated integral.
func (p *SpeedLoop) SetIntegralGain(ki float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Ki = ki
}

// IntegralGain returns the current integral gain.
func (p *SpeedLoop) IntegralGain() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Ki
}

// Reset clears the integral and the saturation state.
func (p *SpeedLoop) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.int = 0
	p.error = 0
	p.sat = 0
	p.y = 0
}

// Output returns the last duty cycle.
func (p *SpeedLoop) Output() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.y
}
