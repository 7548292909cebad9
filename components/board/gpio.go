//go:build linux

package board

import (
	"context"
	"sync"

	"github.com/mkch/gpio"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/cutterdrive/logging"
)

const consumer = "cutterd"

type gpioPin struct {
	// devicePath and offset are immutable.
	devicePath string
	offset     uint32

	mu   sync.Mutex
	line *gpio.Line
}

// Must be called with the mutex held.
func (pin *gpioPin) open() error {
	if pin.line != nil {
		return nil
	}

	chip, err := gpio.OpenChip(pin.devicePath)
	if err != nil {
		return err
	}
	defer goutils.UncheckedErrorFunc(chip.Close)

	line, err := chip.OpenLine(pin.offset, 0, gpio.Input, consumer)
	if err != nil {
		return errors.Wrapf(err, "opening line %d of %s", pin.offset, pin.devicePath)
	}
	pin.line = line
	return nil
}

func (pin *gpioPin) Get(ctx context.Context) (bool, error) {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if err := pin.open(); err != nil {
		return false, err
	}
	value, err := pin.line.Value()
	if err != nil {
		return false, err
	}
	// Any non-zero value is high.
	return value != 0, nil
}

func (pin *gpioPin) Close() error {
	pin.mu.Lock()
	defer pin.mu.Unlock()

	if pin.line == nil {
		return nil
	}
	err := pin.line.Close()
	pin.line = nil
	return err
}

// NewGPIOReader opens the configured lines of a GPIO character device.
func NewGPIOReader(cfg Config, logger logging.Logger) (InputReader, error) {
	if err := cfg.Validate("board"); err != nil {
		return nil, err
	}
	pins := []*gpioPin{
		{devicePath: cfg.Chip, offset: *cfg.EnableLine},
		{devicePath: cfg.Chip, offset: *cfg.OverrideLine},
	}
	if cfg.CurrentFaultLine != nil {
		pins = append(pins, &gpioPin{devicePath: cfg.Chip, offset: *cfg.CurrentFaultLine})
	} else {
		logger.Info("no current fault line configured, over-current comparator input is ignored")
	}

	for _, pin := range pins {
		pin.mu.Lock()
		err := pin.open()
		pin.mu.Unlock()
		if err != nil {
			for _, p := range pins {
				err = multierr.Append(err, p.Close())
			}
			return nil, err
		}
	}

	var currentFault Pin
	if len(pins) > 2 {
		currentFault = pins[2]
	}
	return NewPinReader(pins[0], pins[1], currentFault, cfg.ActiveHigh)
}
