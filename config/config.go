// Package config loads the cutter drive configuration file.
package config

import (
	"os"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"go.viam.com/cutterdrive/arbiter"
	"go.viam.com/cutterdrive/components/board"
	drivefake "go.viam.com/cutterdrive/components/drive/fake"
	"go.viam.com/cutterdrive/components/expander"
	"go.viam.com/cutterdrive/components/handpiece"
	"go.viam.com/cutterdrive/hall"
	"go.viam.com/cutterdrive/logging"
	"go.viam.com/cutterdrive/utils"
)

// DefaultCycleHz is the control cycle rate.
const DefaultCycleHz = 200

// Config is the full configuration of one drive.
type Config struct {
	Engine    EngineConfig     `json:"engine"`
	Handpiece handpiece.Config `json:"handpiece"`
	Board     board.Config     `json:"board"`
	Expander  expander.Config  `json:"expander"`
	Drive     drivefake.Config `json:"drive"`
	Log       LogConfig        `json:"log"`
	Capture   CaptureConfig    `json:"capture"`
}

// EngineConfig holds the arbitration parameters.
type EngineConfig struct {
	CycleHz         int    `json:"cycle_hz"`
	CutType         string `json:"cut_type"`
	Direction       string `json:"direction"`
	IrrigationLevel int    `json:"irrigation_level"`

	MinSpeed        uint32 `json:"min_speed"`
	MaxSpeed        uint32 `json:"max_speed"`
	BaseUISpeed     uint32 `json:"base_ui_speed"`
	MaxUISpeed      uint32 `json:"max_ui_speed"`
	NumSteps        int    `json:"num_steps"`
	GainSwitchSpeed uint32 `json:"gain_switch_speed"`

	SpeedIntegralGain float64 `json:"speed_integral_gain"`
	PowerIntegralGain float64 `json:"power_integral_gain"`

	IrrigationCurrentLimit uint32    `json:"irrigation_current_limit"`
	IrrigationShortCycles  int       `json:"irrigation_short_cycles"`
	PhaseShortCycles       int       `json:"phase_short_cycles"`
	VoltageExpected        [2]uint16 `json:"voltage_expected"`
	VoltageNoise           uint16    `json:"voltage_noise"`

	StrictSequence bool `json:"strict_sequence"`
	// ResetCycles is how long the hand-piece reset line is held.
	ResetCycles int `json:"reset_cycles"`
}

// LogConfig selects the log level and an optional rotating log file.
type LogConfig struct {
	Level      string `json:"level"`
	File       string `json:"file,omitempty"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
}

// CaptureConfig enables per cycle capture when Path is set.
type CaptureConfig struct {
	Path string `json:"path,omitempty"`
}

// DefaultConfig returns the factory configuration with every adapter simulated.
func DefaultConfig() Config {
	engine := arbiter.DefaultConfig()
	return Config{
		Engine: EngineConfig{
			CycleHz:                DefaultCycleHz,
			CutType:                engine.CutType.String(),
			Direction:              engine.Direction.String(),
			IrrigationLevel:        engine.IrrigationLevel,
			MinSpeed:               engine.MinSpeed,
			MaxSpeed:               engine.MaxSpeed,
			BaseUISpeed:            engine.BaseUISpeed,
			MaxUISpeed:             engine.MaxUISpeed,
			NumSteps:               engine.NumSteps,
			GainSwitchSpeed:        engine.GainSwitchSpeed,
			SpeedIntegralGain:      engine.SpeedIntegralGain,
			PowerIntegralGain:      engine.PowerIntegralGain,
			IrrigationCurrentLimit: engine.IrrigationCurrentLimit,
			IrrigationShortCycles:  engine.IrrigationShortCycles,
			PhaseShortCycles:       engine.PhaseShortCycles,
			VoltageExpected:        engine.VoltageExpected,
			VoltageNoise:           engine.VoltageNoise,
			ResetCycles:            100,
		},
		Handpiece: handpiece.Config{Simulate: true},
		Board:     board.Config{Simulate: true},
		Expander:  expander.Config{Simulate: true},
		Log:       LogConfig{Level: "info"},
	}
}

// Read loads the configuration file at path over the defaults.
func Read(path string) (*Config, error) {
	//nolint:gosec
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading config %s", path)
	}
	cfg, err := FromYAML(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// FromYAML decodes a yaml document over the defaults and validates the result. Keys with no
// matching field are rejected.
func FromYAML(data []byte) (*Config, error) {
	var attributes map[string]interface{}
	if err := yaml.Unmarshal(data, &attributes); err != nil {
		return nil, errors.Wrap(err, "parsing yaml")
	}

	cfg := DefaultConfig()
	if attributes != nil {
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			TagName:          "json",
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			Result:           &cfg,
		})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(attributes); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate() error {
	if err := cfg.Engine.Validate("engine"); err != nil {
		return err
	}
	if err := cfg.Handpiece.Validate("handpiece"); err != nil {
		return err
	}
	if err := cfg.Board.Validate("board"); err != nil {
		return err
	}
	if err := cfg.Expander.Validate("expander"); err != nil {
		return err
	}
	if cfg.Drive.MaxRPM < 0 {
		return utils.NewConfigValidationError("drive", errors.New("max_rpm must not be negative"))
	}
	if cfg.Drive.MaxRPM > 0 && float64(cfg.Engine.MaxSpeed) > cfg.Drive.MaxRPM {
		return utils.NewConfigValidationError("drive",
			errors.Errorf("engine max_speed %d exceeds the drive max_rpm %v", cfg.Engine.MaxSpeed, cfg.Drive.MaxRPM))
	}
	if _, err := logging.LevelFromString(cfg.Log.Level); err != nil {
		return utils.NewConfigValidationError("log", err)
	}
	return nil
}

// Validate ensures all parts of the engine config are valid.
func (cfg *EngineConfig) Validate(path string) error {
	if cfg.CycleHz <= 0 || cfg.CycleHz > 1000 {
		return utils.NewConfigValidationError(path, errors.Errorf("cycle_hz must be between 1 and 1000, got %d", cfg.CycleHz))
	}
	if cfg.ResetCycles < 0 {
		return utils.NewConfigValidationError(path, errors.New("reset_cycles must not be negative"))
	}
	engine, err := cfg.ArbiterConfig()
	if err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return engine.Validate(path)
}

// ArbiterConfig converts the engine section into arbitration parameters.
func (cfg *EngineConfig) ArbiterConfig() (arbiter.Config, error) {
	cutType, err := hall.CutTypeFromString(cfg.CutType)
	if err != nil {
		return arbiter.Config{}, err
	}
	direction, err := arbiter.DirectionFromString(cfg.Direction)
	if err != nil {
		return arbiter.Config{}, err
	}
	return arbiter.Config{
		MinSpeed:               cfg.MinSpeed,
		MaxSpeed:               cfg.MaxSpeed,
		BaseUISpeed:            cfg.BaseUISpeed,
		MaxUISpeed:             cfg.MaxUISpeed,
		NumSteps:               cfg.NumSteps,
		GainSwitchSpeed:        cfg.GainSwitchSpeed,
		SpeedIntegralGain:      cfg.SpeedIntegralGain,
		PowerIntegralGain:      cfg.PowerIntegralGain,
		IrrigationLevel:        cfg.IrrigationLevel,
		CutType:                cutType,
		Direction:              direction,
		IrrigationCurrentLimit: cfg.IrrigationCurrentLimit,
		IrrigationShortCycles:  cfg.IrrigationShortCycles,
		PhaseShortCycles:       cfg.PhaseShortCycles,
		VoltageExpected:        cfg.VoltageExpected,
		VoltageNoise:           cfg.VoltageNoise,
		StrictSequence:         cfg.StrictSequence,
	}, nil
}
