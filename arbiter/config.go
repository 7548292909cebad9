package arbiter

import (
	"github.com/pkg/errors"

	"go.viam.com/cutterdrive/hall"
)

// Direction is the commanded rotation.
type Direction int

const (
	// DirectionForward is the default cutting direction.
	DirectionForward Direction = iota
	// DirectionReverse runs the cutter backwards.
	DirectionReverse
)

func (d Direction) String() string {
	if d == DirectionReverse {
		return "reverse"
	}
	return "forward"
}

// DirectionFromString parses "forward" or "reverse".
func DirectionFromString(s string) (Direction, error) {
	switch s {
	case "forward", "":
		return DirectionForward, nil
	case "reverse":
		return DirectionReverse, nil
	}
	return DirectionForward, errors.Errorf("unknown direction %q", s)
}

// Config is the read-only parameter set of an Arbitrator.
type Config struct {
	// MinSpeed and MaxSpeed clamp every non-zero target, in RPM.
	MinSpeed uint32
	MaxSpeed uint32
	// BaseUISpeed and MaxUISpeed are the targets of level 1 and the last level.
	BaseUISpeed uint32
	MaxUISpeed  uint32
	NumSteps    int

	// GainSwitchSpeed is the target above which the power loop integral gain is used.
	GainSwitchSpeed   uint32
	SpeedIntegralGain float64
	PowerIntegralGain float64

	IrrigationLevel int
	CutType         hall.CutType
	Direction       Direction

	IrrigationCurrentLimit uint32
	// IrrigationShortCycles over-limit cycles in a row are tolerated before the short fault.
	IrrigationShortCycles int
	// PhaseShortCycles failing phase-short checks in a row are tolerated before the short fault.
	PhaseShortCycles int

	// VoltageExpected are the expected 1.5V and 2.5V monitor counts.
	VoltageExpected [2]uint16
	VoltageNoise    uint16

	StrictSequence bool
}

// DefaultConfig returns the factory parameters.
func DefaultConfig() Config {
	return Config{
		MinSpeed:               500,
		MaxSpeed:               12000,
		BaseUISpeed:            0,
		MaxUISpeed:             12000,
		NumSteps:               hall.NumSpeedSteps,
		GainSwitchSpeed:        3600,
		SpeedIntegralGain:      0.0002,
		PowerIntegralGain:      0.001,
		IrrigationLevel:        0,
		CutType:                hall.CutTrigger,
		Direction:              DirectionForward,
		IrrigationCurrentLimit: 12222,
		IrrigationShortCycles:  10,
		PhaseShortCycles:       30,
		VoltageExpected:        [2]uint16{256, 426},
		VoltageNoise:           35,
	}
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.MinSpeed > cfg.MaxSpeed {
		return errors.Errorf("%s: min_speed (%d) must not exceed max_speed (%d)", path, cfg.MinSpeed, cfg.MaxSpeed)
	}
	if cfg.BaseUISpeed > cfg.MaxUISpeed {
		return errors.Errorf("%s: base_ui_speed (%d) must not exceed max_ui_speed (%d)", path, cfg.BaseUISpeed, cfg.MaxUISpeed)
	}
	if cfg.NumSteps < 2 {
		return errors.Errorf("%s: num_steps must be at least 2, got %d", path, cfg.NumSteps)
	}
	if cfg.IrrigationLevel < 0 {
		return errors.Errorf("%s: irrigation_level must not be negative", path)
	}
	if cfg.PhaseShortCycles < 0 || cfg.IrrigationShortCycles < 0 {
		return errors.Errorf("%s: fault cycle counts must not be negative", path)
	}
	if cfg.SpeedIntegralGain < 0 || cfg.PowerIntegralGain < 0 {
		return errors.Errorf("%s: integral gains must not be negative", path)
	}
	switch cfg.CutType {
	case hall.CutTrigger, hall.CutFootPedal:
	default:
		return errors.Errorf("%s: unknown cut type %v", path, cfg.CutType)
	}
	return nil
}

// TargetSpeed maps a throttle level to a speed in RPM. Level 0 is 0, any other level is
// clamped to [MinSpeed, MaxSpeed].
func (cfg *Config) TargetSpeed(level int) uint32 {
	if level <= 0 {
		return 0
	}
	span := uint64(cfg.MaxUISpeed - cfg.BaseUISpeed)
	target := uint64(cfg.BaseUISpeed) + uint64(level-1)*span/uint64(cfg.NumSteps-1)
	if target < uint64(cfg.MinSpeed) {
		target = uint64(cfg.MinSpeed)
	}
	if target > uint64(cfg.MaxSpeed) {
		target = uint64(cfg.MaxSpeed)
	}
	return uint32(target)
}
