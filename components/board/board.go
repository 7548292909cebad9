// Package board reads the operator inputs wired to the controller: the cutter enable switch, the
// irrigation override switch and the drive over-current comparator.
package board

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/cutterdrive/arbiter"
	"go.viam.com/cutterdrive/utils"
)

// An InputReader samples the operator inputs once per control cycle.
type InputReader interface {
	ReadInputs(ctx context.Context) (arbiter.Inputs, error)
	Close(ctx context.Context) error
}

// A Pin is one digital input line reporting its electrical level.
type Pin interface {
	Get(ctx context.Context) (bool, error)
	Close() error
}

// Config names the input lines on a GPIO character device.
type Config struct {
	Chip             string  `json:"chip"`
	EnableLine       *uint32 `json:"enable_line"`
	OverrideLine     *uint32 `json:"override_line"`
	CurrentFaultLine *uint32 `json:"current_fault_line,omitempty"`
	// ActiveHigh flips the default active-low interpretation of every line.
	ActiveHigh bool `json:"active_high,omitempty"`
	// Simulate replaces the GPIO lines with simulated switches.
	Simulate bool `json:"simulate,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Simulate {
		return nil
	}
	if cfg.Chip == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "chip")
	}
	if cfg.EnableLine == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "enable_line")
	}
	if cfg.OverrideLine == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "override_line")
	}
	if *cfg.EnableLine == *cfg.OverrideLine {
		return utils.NewConfigValidationError(path,
			errors.Errorf("enable_line and override_line are both line %d", *cfg.EnableLine))
	}
	return nil
}

type pinReader struct {
	mu           sync.Mutex
	enable       Pin
	override     Pin
	currentFault Pin
	activeHigh   bool
}

// NewPinReader reads inputs from already opened pins. currentFault may be nil when the
// comparator is not wired.
func NewPinReader(enable, override, currentFault Pin, activeHigh bool) (InputReader, error) {
	if enable == nil || override == nil {
		return nil, errors.New("enable and override pins are required")
	}
	return &pinReader{enable: enable, override: override, currentFault: currentFault, activeHigh: activeHigh}, nil
}

func (r *pinReader) ReadInputs(ctx context.Context) (arbiter.Inputs, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var in arbiter.Inputs
	var err error
	if in.Enable, err = r.asserted(ctx, r.enable); err != nil {
		return arbiter.Inputs{}, errors.Wrap(err, "reading enable input")
	}
	if in.Override, err = r.asserted(ctx, r.override); err != nil {
		return arbiter.Inputs{}, errors.Wrap(err, "reading override input")
	}
	if r.currentFault != nil {
		if in.CurrentFault, err = r.asserted(ctx, r.currentFault); err != nil {
			return arbiter.Inputs{}, errors.Wrap(err, "reading current fault input")
		}
	}
	return in, nil
}

func (r *pinReader) asserted(ctx context.Context, pin Pin) (bool, error) {
	high, err := pin.Get(ctx)
	if err != nil {
		return false, err
	}
	return high == r.activeHigh, nil
}

func (r *pinReader) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := multierr.Combine(r.enable.Close(), r.override.Close())
	if r.currentFault != nil {
		err = multierr.Append(err, r.currentFault.Close())
	}
	return err
}
