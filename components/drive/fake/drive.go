// Package fake implements a simulated BLDC drive.
package fake

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/cutterdrive/arbiter"
	"go.viam.com/cutterdrive/control"
	"go.viam.com/cutterdrive/logging"
	"go.viam.com/cutterdrive/utils"
)

const (
	defaultMaxRPM     = 15000
	defaultKp         = 0.004
	defaultStepPeriod = time.Millisecond
	// defaultTimeConstant is the first order lag between duty cycle and rotor speed.
	defaultTimeConstant = 50 * time.Millisecond
	stoppedRPM          = 1
)

// Config describes the simulated drive.
type Config struct {
	MaxRPM float64 `json:"max_rpm,omitempty"`
	Kp     float64 `json:"kp,omitempty"`
	Ki     float64 `json:"ki,omitempty"`
	// StepPeriodMs is how often the simulation advances when started with Start.
	StepPeriodMs int `json:"step_period_ms,omitempty"`
}

var _ arbiter.Driver = &Drive{}

// A Drive simulates a speed controlled motor.
type Drive struct {
	mu         sync.Mutex
	logger     logging.Logger
	loop       *control.SpeedLoop
	maxRPM     float64
	period     time.Duration
	running    bool
	dir        arbiter.Direction
	target     uint32
	rpm        float64
	duty       float64
	phaseShort bool
	workers    utils.StoppableWorkers
}

// NewDrive returns a stopped drive.
func NewDrive(cfg Config, logger logging.Logger) (*Drive, error) {
	if cfg.MaxRPM < 0 {
		return nil, errors.New("max_rpm must not be negative")
	}
	d := &Drive{logger: logger, maxRPM: cfg.MaxRPM, period: time.Duration(cfg.StepPeriodMs) * time.Millisecond}
	if d.maxRPM == 0 {
		logger.Infof("Max RPM not provided to a fake drive, defaulting to %v", defaultMaxRPM)
		d.maxRPM = defaultMaxRPM
	}
	if d.period <= 0 {
		d.period = defaultStepPeriod
	}
	kp := cfg.Kp
	if kp == 0 {
		kp = defaultKp
	}
	loop, err := control.NewSpeedLoop(kp, cfg.Ki)
	if err != nil {
		return nil, err
	}
	d.loop = loop
	return d, nil
}

// Start advances the simulation on clk until Close.
func (d *Drive) Start(clk clock.Clock) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.workers != nil {
		return
	}
	d.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		ticker := clk.Ticker(d.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				d.Step(ctx, d.period)
			}
		}
	})
}

// Step advances the simulation by dt.
func (d *Drive) Step(ctx context.Context, dt time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		if duty, ok := d.loop.Next(ctx, float64(d.target), d.rpm, dt); ok {
			d.duty = duty
		}
	} else {
		d.duty = 0
	}
	goal := d.duty / 100 * d.maxRPM
	d.rpm += (goal - d.rpm) * (1 - math.Exp(-dt.Seconds()/defaultTimeConstant.Seconds()))
	if !d.running && d.rpm < stoppedRPM {
		d.rpm = 0
	}
}

// RPM is the simulated rotor speed.
func (d *Drive) RPM() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rpm
}

// Target is the commanded speed.
func (d *Drive) Target() uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.target
}

// Direction is the last commanded direction.
func (d *Drive) Direction() arbiter.Direction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dir
}

// InjectPhaseShort makes the phase short self check fail until cleared.
func (d *Drive) InjectPhaseShort(short bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.phaseShort = short
}

// IsRunning reports whether the drive is commutating.
func (d *Drive) IsRunning(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running, nil
}

// Run starts commutating in dir.
func (d *Drive) Run(ctx context.Context, dir arbiter.Direction) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = true
	d.dir = dir
	d.logger.Debugw("drive running", "direction", dir.String(), "target", d.target)
	return nil
}

// Stop ramps the drive down.
func (d *Drive) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return nil
}

// EmergencyStop cuts the drive immediately.
func (d *Drive) EmergencyStop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		d.logger.Debug("drive emergency stop")
	}
	d.running = false
	d.duty = 0
	d.loop.Reset()
	return nil
}

// SetTargetSpeed sets the speed command in RPM.
func (d *Drive) SetTargetSpeed(ctx context.Context, rpm uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if float64(rpm) > d.maxRPM {
		return errors.Errorf("target %d RPM exceeds the drive maximum of %v", rpm, d.maxRPM)
	}
	d.target = rpm
	return nil
}

// SetIntegralGain swaps the speed loop integral gain.
func (d *Drive) SetIntegralGain(ctx context.Context, ki float64) error {
	if ki < 0 {
		return errors.Errorf("integral gain must not be negative, got %v", ki)
	}
	d.loop.SetIntegralGain(ki)
	return nil
}

// ResetIntegrator clears the speed loop integrator.
func (d *Drive) ResetIntegrator(ctx context.Context) error {
	d.loop.Reset()
	return nil
}

// CheckPhaseShort reports the injected phase short state.
func (d *Drive) CheckPhaseShort(ctx context.Context) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.phaseShort, nil
}

// Close stops the simulation.
func (d *Drive) Close(ctx context.Context) error {
	d.mu.Lock()
	workers := d.workers
	d.workers = nil
	d.running = false
	d.mu.Unlock()
	if workers != nil {
		workers.Stop()
	}
	return nil
}
