// Package inject provides func-field fakes of the drive collaborators for tests. Every method
// falls back to the embedded interface when its func is nil.
package inject

import (
	"context"

	"go.viam.com/cutterdrive/arbiter"
)

// Driver is an injected arbiter.Driver.
type Driver struct {
	arbiter.Driver
	IsRunningFunc       func(ctx context.Context) (bool, error)
	RunFunc             func(ctx context.Context, dir arbiter.Direction) error
	StopFunc            func(ctx context.Context) error
	EmergencyStopFunc   func(ctx context.Context) error
	SetTargetSpeedFunc  func(ctx context.Context, rpm uint32) error
	SetIntegralGainFunc func(ctx context.Context, ki float64) error
	ResetIntegratorFunc func(ctx context.Context) error
	CheckPhaseShortFunc func(ctx context.Context) (bool, error)
}

// IsRunning calls the injected IsRunning or the real version.
func (d *Driver) IsRunning(ctx context.Context) (bool, error) {
	if d.IsRunningFunc == nil {
		return d.Driver.IsRunning(ctx)
	}
	return d.IsRunningFunc(ctx)
}

// Run calls the injected Run or the real version.
func (d *Driver) Run(ctx context.Context, dir arbiter.Direction) error {
	if d.RunFunc == nil {
		return d.Driver.Run(ctx, dir)
	}
	return d.RunFunc(ctx, dir)
}

// Stop calls the injected Stop or the real version.
func (d *Driver) Stop(ctx context.Context) error {
	if d.StopFunc == nil {
		return d.Driver.Stop(ctx)
	}
	return d.StopFunc(ctx)
}

// EmergencyStop calls the injected EmergencyStop or the real version.
func (d *Driver) EmergencyStop(ctx context.Context) error {
	if d.EmergencyStopFunc == nil {
		return d.Driver.EmergencyStop(ctx)
	}
	return d.EmergencyStopFunc(ctx)
}

// SetTargetSpeed calls the injected SetTargetSpeed or the real version.
func (d *Driver) SetTargetSpeed(ctx context.Context, rpm uint32) error {
	if d.SetTargetSpeedFunc == nil {
		return d.Driver.SetTargetSpeed(ctx, rpm)
	}
	return d.SetTargetSpeedFunc(ctx, rpm)
}

// SetIntegralGain calls the injected SetIntegralGain or the real version.
func (d *Driver) SetIntegralGain(ctx context.Context, ki float64) error {
	if d.SetIntegralGainFunc == nil {
		return d.Driver.SetIntegralGain(ctx, ki)
	}
	return d.SetIntegralGainFunc(ctx, ki)
}

// ResetIntegrator calls the injected ResetIntegrator or the real version.
func (d *Driver) ResetIntegrator(ctx context.Context) error {
	if d.ResetIntegratorFunc == nil {
		return d.Driver.ResetIntegrator(ctx)
	}
	return d.ResetIntegratorFunc(ctx)
}

// CheckPhaseShort calls the injected CheckPhaseShort or the real version.
func (d *Driver) CheckPhaseShort(ctx context.Context) (bool, error) {
	if d.CheckPhaseShortFunc == nil {
		return d.Driver.CheckPhaseShort(ctx)
	}
	return d.CheckPhaseShortFunc(ctx)
}
