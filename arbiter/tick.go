package arbiter

import (
	"context"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/cutterdrive/faults"
	"go.viam.com/cutterdrive/hall"
)

// Tick runs one control cycle on a raw sample. It never fails; every collaborator error is
// logged and the cycle continues with a defined result.
func (a *Arbitrator) Tick(ctx context.Context, raw hall.Sample, in Inputs) Status {
	if a.cal == nil {
		if a.isRunning(ctx) {
			a.logger.Warn("motor running without a calibration, stopping")
			a.emergencyStop(ctx, true)
		}
		a.state.Running = false
		a.calibrate(raw)
		return Status{Calibrated: a.cal != nil, Level: a.decoder.State().Level}
	}

	sample := a.decoder.Polarity().Apply(raw)
	running := a.isRunning(ctx)
	defer func() { a.state.Running = running }()

	res, err := a.decoder.Decode(sample, a.cal, running)
	if err != nil {
		return a.status(res, res.Level, running, sample)
	}
	if res.Fatal {
		a.logger.Errorw("three or more hall sensors out of range", "mask", res.Mask, "hall", sample.Hall)
		a.latch(ctx, faults.FaultHPHall, running)
		running = false
		return a.status(res, res.Level, running, sample)
	}
	level := res.Level

	// Refresh the command as soon as the override is released.
	if !in.Override && a.state.OverrideActive {
		a.state.OverrideActive = false
		if refreshed, err := a.decoder.Decode(sample, a.cal, running); err == nil && !refreshed.Fatal {
			res = refreshed
			level = refreshed.Level
		}
		a.applySpeed(ctx, level, sample)
	}

	// A newly asserted override recalibrates so a stuck trigger cannot start the motor.
	if in.Override && !a.state.OverrideActive {
		if !a.recalibrate(sample) {
			if running {
				a.logger.Warn("override recalibration failed while running, stopping")
				a.emergencyStop(ctx, true)
				running = false
			}
			goutils.UncheckedError(a.setRelays(ctx, RelaysDisabled))
			return a.status(res, level, running, sample)
		}
		a.state.OverrideActive = true
	}
	if a.state.OverrideActive {
		level = a.decoder.State().Trigger
	}
	a.applySpeed(ctx, level, sample)

	if in.CurrentFault {
		a.latch(ctx, faults.FaultCurrentHighHW, running)
		running = false
	}

	if in.Enable || in.Override {
		if in.Enable && !a.state.EnableLatched {
			goutils.UncheckedError(a.setRelays(ctx, a.state.Relays.Word|RelayMain|RelayCutter))
			a.state.EnableLatched = true
		}

		if !a.state.Started && level > 0 {
			passed, short := a.phaseShortPassed(ctx)
			if short {
				a.latch(ctx, faults.FaultMotorShort, running)
				running = false
				a.resyncIrrigation(ctx, running)
			}
			if !passed {
				return a.status(res, level, running, sample)
			}
		}
		if a.deps.Faults.Faulted(faults.FaultCurrentOffset) {
			return a.status(res, level, running, sample)
		}
		if level > 0 {
			a.state.Started = true
		}
		if level > 0 && !running {
			running = a.start(ctx, level, in)
		}
	}

	if (!in.Enable && !in.Override) || level == 0 {
		if running {
			a.logger.Infow("motor stopped", "level", level, "enable", in.Enable, "override", in.Override)
			a.emergencyStop(ctx, true)
			running = false
		}
	}

	if !in.Enable && a.state.EnableLatched {
		goutils.UncheckedError(a.setRelays(ctx, RelaysDisabled))
		a.state.EnableLatched = false
	}

	switch a.decoder.State().Trigger {
	case hall.NumSpeedSteps:
		a.state.TriggerFull = true
	case 0:
		a.state.TriggerFull = false
	}

	if running && a.cfg.IrrigationLevel > 0 && a.irrigationShorted(ctx) {
		a.latch(ctx, faults.FaultIrrigationShort, running)
		running = false
	}
	a.resyncIrrigation(ctx, running)

	return a.status(res, level, running, sample)
}

func (a *Arbitrator) status(res hall.Result, level int, running bool, s hall.Sample) Status {
	return Status{
		Calibrated:   a.cal != nil,
		Level:        level,
		Trigger:      res.Trigger,
		TargetSpeed:  a.state.TargetSpeed,
		Running:      running,
		TemperatureC: s.TemperatureC(),
		Mask:         res.Mask,
		Fatal:        res.Fatal,
	}
}

func (a *Arbitrator) calibrate(raw hall.Sample) {
	if raw.IsZero() {
		return
	}
	a.decoder.ObservePolarity(raw)
	a.recalibrate(a.decoder.Polarity().Apply(raw))
}

func (a *Arbitrator) recalibrate(s hall.Sample) bool {
	a.Invalidate()
	cal, err := hall.Calibrate(s, a.cfg.CutType, a.deps.Faults)
	if err != nil {
		if errors.Is(err, hall.ErrNotReady) {
			a.logger.Debug("hand-piece link not ready")
		} else {
			a.logger.Warnw("hall calibration failed", "error", err, "hall", s.Hall)
		}
		return false
	}
	a.cal = cal
	a.deps.Faults.ClearFault(faults.FaultHallInit)
	a.logger.Infow("hall calibrated",
		"floor", cal.Floor, "ceiling", cal.Ceiling, "spacing", cal.Spacing, "polarity", a.decoder.Polarity().String())
	return true
}

func (a *Arbitrator) isRunning(ctx context.Context) bool {
	running, err := a.deps.Driver.IsRunning(ctx)
	if err != nil {
		a.logger.Errorw("cannot read drive state", "error", err)
		a.deps.Faults.SetFault(faults.FaultSystemError)
		return a.state.Running
	}
	return running
}

// applySpeed maps level to the speed command and applies the gain switch and voltage checks.
func (a *Arbitrator) applySpeed(ctx context.Context, level int, s hall.Sample) {
	target := a.cfg.TargetSpeed(level)
	if target != a.state.TargetSpeed {
		if err := a.deps.Driver.SetTargetSpeed(ctx, target); err != nil {
			a.logger.Errorw("cannot set target speed", "rpm", target, "error", err)
			a.deps.Faults.SetFault(faults.FaultSystemError)
		} else {
			a.state.TargetSpeed = target
		}
	}

	if target > a.cfg.GainSwitchSpeed && !a.state.IntegralGainSwitched {
		if err := a.deps.Driver.SetIntegralGain(ctx, a.cfg.PowerIntegralGain); err != nil {
			a.logger.Errorw("cannot switch integral gain", "error", err)
			a.deps.Faults.SetFault(faults.FaultSystemError)
		} else {
			a.state.IntegralGainSwitched = true
		}
	}

	for i, v := range s.VoltageMonitor {
		expected, noise := int(a.cfg.VoltageExpected[i]), int(a.cfg.VoltageNoise)
		if int(v) > expected+noise || int(v) < expected-noise {
			a.deps.Faults.SetFault(faults.WarnHPVoltageRange)
		}
	}
}

// phaseShortPassed runs the pre-start phase-short check. A failing check ends the cycle; short
// reports that the failures reached the lockout count.
func (a *Arbitrator) phaseShortPassed(ctx context.Context) (passed, short bool) {
	shorted, err := a.deps.Driver.CheckPhaseShort(ctx)
	if err != nil {
		a.logger.Errorw("phase short check failed", "error", err)
		a.deps.Faults.SetFault(faults.FaultSystemError)
		return false, false
	}
	if !shorted {
		a.state.PhaseShortCount = 0
		return true, false
	}

	a.state.PhaseShortCount++
	if a.state.PhaseShortCount > a.cfg.PhaseShortCycles {
		a.logger.Errorw("motor phase short", "cycles", a.state.PhaseShortCount)
		a.state.PhaseShortCount = 0
		return false, true
	}
	return false, false
}

func (a *Arbitrator) start(ctx context.Context, level int, in Inputs) bool {
	if a.deps.Faults.Faulted(faults.NonClearable) {
		a.logger.Debug("start refused while a non-clearable fault is latched")
		return false
	}

	a.state.IntegralGainSwitched = false
	if err := a.deps.Driver.SetIntegralGain(ctx, a.cfg.SpeedIntegralGain); err != nil {
		a.logger.Errorw("cannot reset integral gain", "error", err)
	}
	if err := a.deps.Driver.ResetIntegrator(ctx); err != nil {
		a.logger.Errorw("cannot reset speed integrator", "error", err)
	}
	a.deps.Faults.ClearFaults()

	if err := a.deps.Driver.Run(ctx, a.cfg.Direction); err != nil {
		a.logger.Errorw("cannot start motor", "error", err)
		a.deps.Faults.SetFault(faults.FaultSystemError)
		return false
	}

	word := RelayMain
	if in.Enable {
		word |= RelayCutter
	}
	if a.cfg.IrrigationLevel > 0 {
		word |= RelayIrrigation
	}
	goutils.UncheckedError(a.setRelays(ctx, word))
	a.logger.Infow("motor started", "level", level, "rpm", a.state.TargetSpeed, "direction", a.cfg.Direction.String())
	return true
}

// irrigationShorted samples the pump current and reports a short once the limit has been
// exceeded for more than the configured number of cycles.
func (a *Arbitrator) irrigationShorted(ctx context.Context) bool {
	current, err := a.deps.Irrigation.ReadIrrigationCurrent(ctx)
	if err != nil {
		a.logger.Warnw("cannot read irrigation current", "error", err)
		return false
	}
	if current > a.cfg.IrrigationCurrentLimit {
		a.state.IrrigationOverCurrentCount++
	} else {
		a.state.IrrigationOverCurrentCount = 0
	}
	if a.state.IrrigationOverCurrentCount > a.cfg.IrrigationShortCycles {
		a.logger.Errorw("irrigation short", "current", current, "cycles", a.state.IrrigationOverCurrentCount)
		a.state.IrrigationOverCurrentCount = 0
		return true
	}
	return false
}

// resyncIrrigation corrects the irrigation bit of the last commanded word when it disagrees with
// the running state.
func (a *Arbitrator) resyncIrrigation(ctx context.Context, running bool) {
	if !a.state.Relays.Known {
		return
	}
	want := running && a.cfg.IrrigationLevel > 0
	have := a.state.Relays.Word&RelayIrrigation != 0
	if want != have {
		goutils.UncheckedError(a.setRelays(ctx, a.state.Relays.Word^RelayIrrigation))
	}
}

func (a *Arbitrator) setRelays(ctx context.Context, word RelayWord) error {
	if a.state.Relays.Known && a.state.Relays.Word == word {
		return nil
	}
	if err := a.deps.Relays.SetRelayWord(ctx, PortA, word); err != nil {
		a.logger.Warnw("relay write failed", "word", word.String(), "error", err)
		a.state.Relays.Known = false
		return err
	}
	a.state.Relays = RelayStatus{Word: word, Known: true}
	a.logger.Debugw("relays commanded", "word", word.String())
	return nil
}
