// Package arbiter decides, once per control cycle, whether the cutter motor runs, at what target
// speed, and what the relay expander drives.
package arbiter

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/cutterdrive/faults"
	"go.viam.com/cutterdrive/hall"
	"go.viam.com/cutterdrive/logging"
)

// Driver is the motor drive as seen by the arbitrator.
type Driver interface {
	IsRunning(ctx context.Context) (bool, error)
	Run(ctx context.Context, dir Direction) error
	Stop(ctx context.Context) error
	EmergencyStop(ctx context.Context) error
	SetTargetSpeed(ctx context.Context, rpm uint32) error
	SetIntegralGain(ctx context.Context, ki float64) error
	ResetIntegrator(ctx context.Context) error
	// CheckPhaseShort runs the pre-start self check and reports whether a short was seen.
	CheckPhaseShort(ctx context.Context) (bool, error)
}

// Relays writes words to the relay expander.
type Relays interface {
	SetRelayWord(ctx context.Context, port Port, word RelayWord) error
}

// IrrigationSensor reads the irrigation pump current.
type IrrigationSensor interface {
	ReadIrrigationCurrent(ctx context.Context) (uint32, error)
}

// Dependencies are the collaborators of an Arbitrator.
type Dependencies struct {
	Driver     Driver
	Relays     Relays
	Irrigation IrrigationSensor
	Faults     faults.Sink
}

// Inputs are the operator inputs of one cycle, true when asserted.
type Inputs struct {
	Enable       bool
	Override     bool
	CurrentFault bool
}

// State is carried by an Arbitrator across cycles.
type State struct {
	Running bool
	// Started is set once the throttle has been non-zero since the last stop.
	Started                    bool
	PhaseShortCount            int
	IrrigationOverCurrentCount int
	IntegralGainSwitched       bool
	OverrideActive             bool
	EnableLatched              bool
	Relays                     RelayStatus
	TargetSpeed                uint32
	// OpTimeUpdatePending is set on every stop and cleared by ConsumeOpTimeUpdate.
	OpTimeUpdatePending bool
	TriggerFull         bool
}

// Status summarizes one Tick.
type Status struct {
	// Calibrated is false while no calibration is held.
	Calibrated   bool
	Level        int
	Trigger      int
	TargetSpeed  uint32
	Running      bool
	TemperatureC int16
	Mask         hall.Mask
	Fatal        bool
}

// An Arbitrator owns the calibration, throttle and arbitration state of one drive. It is not
// safe for concurrent use; a single control task must own it.
type Arbitrator struct {
	cfg    Config
	deps   Dependencies
	logger logging.Logger

	decoder *hall.Decoder
	cal     *hall.Calibration
	state   State
}

// New returns an Arbitrator with no calibration.
func New(cfg Config, deps Dependencies, logger logging.Logger) (*Arbitrator, error) {
	if err := cfg.Validate("engine"); err != nil {
		return nil, err
	}
	if deps.Driver == nil || deps.Relays == nil || deps.Faults == nil {
		return nil, errors.New("arbiter requires a driver, relays and a fault sink")
	}
	if cfg.IrrigationLevel > 0 && deps.Irrigation == nil {
		return nil, errors.New("irrigation is configured but no irrigation sensor was given")
	}
	return &Arbitrator{
		cfg:     cfg,
		deps:    deps,
		logger:  logger,
		decoder: hall.NewDecoder(cfg.CutType, deps.Faults, hall.DecoderOptions{StrictSequence: cfg.StrictSequence}),
	}, nil
}

// State returns a copy of the arbitration state.
func (a *Arbitrator) State() State {
	return a.state
}

// ThrottleState returns a copy of the decoder state.
func (a *Arbitrator) ThrottleState() hall.ThrottleState {
	return a.decoder.State()
}

// Calibration returns the held calibration, nil when not calibrated.
func (a *Arbitrator) Calibration() *hall.Calibration {
	return a.cal
}

// Invalidate drops the calibration. The next Tick recalibrates before any decode.
func (a *Arbitrator) Invalidate() {
	if a.cal != nil {
		a.logger.Debug("calibration invalidated")
	}
	a.cal = nil
}

// Reset invalidates the calibration and returns all carried state to its defaults. The last
// commanded relay word is kept.
func (a *Arbitrator) Reset() {
	a.Invalidate()
	a.decoder.Reset()
	a.state = State{Relays: a.state.Relays}
}

// ConsumeOpTimeUpdate reports and clears the pending operating time update.
func (a *Arbitrator) ConsumeOpTimeUpdate() bool {
	pending := a.state.OpTimeUpdatePending
	a.state.OpTimeUpdatePending = false
	return pending
}

// SafeRelays commands the disabled relay word.
func (a *Arbitrator) SafeRelays(ctx context.Context) error {
	return a.setRelays(ctx, RelaysDisabled)
}

// EmergencyStop stops the motor immediately and clears the start state.
func (a *Arbitrator) EmergencyStop(ctx context.Context) {
	a.emergencyStop(ctx, a.state.Running)
	a.state.Running = false
}

// latch stops the motor and then raises a non-clearable code, so the stop and the fault land on
// the same cycle and the carried state matches the drive.
func (a *Arbitrator) latch(ctx context.Context, code faults.Code, wasRunning bool) {
	a.emergencyStop(ctx, wasRunning)
	a.deps.Faults.SetFault(code)
}

func (a *Arbitrator) emergencyStop(ctx context.Context, wasRunning bool) {
	if err := a.deps.Driver.EmergencyStop(ctx); err != nil {
		a.logger.Errorw("emergency stop failed", "error", err)
		a.deps.Faults.SetFault(faults.FaultSystemError)
	}
	if wasRunning {
		a.state.OpTimeUpdatePending = true
	}
	a.state.Started = false
	a.state.IntegralGainSwitched = false
}
