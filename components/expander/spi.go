package expander

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"

	"go.viam.com/cutterdrive/logging"
)

const defaultClockMHz = 4

// Open initializes the host drivers and connects to the configured SPI ports.
func Open(cfg Config, logger logging.Logger) (*Expander, error) {
	if err := cfg.Validate("expander"); err != nil {
		return nil, err
	}
	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing periph host drivers")
	}
	clock := cfg.ClockMHz
	if clock == 0 {
		clock = defaultClockMHz
	}

	var closers []func() error
	closeAll := func(err error) error {
		for _, c := range closers {
			err = multierr.Append(err, c())
		}
		return err
	}

	connect := func(name string) (Conn, error) {
		port, err := spireg.Open(name)
		if err != nil {
			return nil, errors.Wrapf(err, "opening spi port %q", name)
		}
		closers = append(closers, port.Close)
		c, err := port.Connect(physic.MegaHertz*physic.Frequency(clock), spi.Mode0, 8)
		if err != nil {
			return nil, errors.Wrapf(err, "connecting to spi port %q", name)
		}
		return c, nil
	}

	relays, err := connect(cfg.RelayPort)
	if err != nil {
		return nil, closeAll(err)
	}
	adc, err := connect(cfg.ADCPort)
	if err != nil {
		return nil, closeAll(err)
	}
	e, err := New(relays, adc, logger)
	if err != nil {
		return nil, closeAll(err)
	}
	e.closers = closers
	logger.Infow("relay expander ready", "relay_port", cfg.RelayPort, "adc_port", cfg.ADCPort, "clock_mhz", clock)
	return e, nil
}
