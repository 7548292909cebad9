// Package expander drives the SPI relay expander and reads the irrigation pump current ADC.
package expander

import (
	"context"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/cutterdrive/arbiter"
	"go.viam.com/cutterdrive/logging"
	"go.viam.com/cutterdrive/utils"
)

// Register addresses of the expander, sent as the first 16-bit word of a write.
const (
	regDirectionA uint16 = 0x4000
	regDirectionB uint16 = 0x4001
	regOutputA    uint16 = 0x4012
	regOutputB    uint16 = 0x4013
	// allOutputs configures every pin of a port as an output.
	allOutputs uint16 = 0x0000
)

// A Conn is a full duplex SPI connection. periph's conn.Conn satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// Config names the SPI ports of the expander and the current ADC.
type Config struct {
	RelayPort string `json:"relay_port"`
	ADCPort   string `json:"adc_port"`
	// ClockMHz is the SPI clock, 4 MHz when unset.
	ClockMHz int `json:"clock_mhz,omitempty"`
	// Simulate replaces the SPI devices with an in memory expander.
	Simulate bool `json:"simulate,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Simulate {
		return nil
	}
	if cfg.RelayPort == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "relay_port")
	}
	if cfg.ADCPort == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "adc_port")
	}
	if cfg.ClockMHz < 0 || cfg.ClockMHz > 20 {
		return utils.NewConfigValidationError(path, errors.Errorf("clock_mhz must be between 0 and 20, got %d", cfg.ClockMHz))
	}
	return nil
}

var (
	_ arbiter.Relays           = &Expander{}
	_ arbiter.IrrigationSensor = &Expander{}
)

// Expander implements the relay and irrigation current collaborators of the arbitrator.
type Expander struct {
	mu     sync.Mutex
	relays Conn
	adc    Conn
	logger logging.Logger

	closers []func() error
}

// New configures both expander ports as outputs.
func New(relays, adc Conn, logger logging.Logger) (*Expander, error) {
	e := &Expander{relays: relays, adc: adc, logger: logger}
	for _, reg := range []uint16{regDirectionA, regDirectionB} {
		if err := e.write(reg, allOutputs); err != nil {
			return nil, errors.Wrap(err, "configuring expander ports")
		}
	}
	return e, nil
}

func (e *Expander) write(reg, value uint16) error {
	var tx [4]byte
	binary.BigEndian.PutUint16(tx[:2], reg)
	binary.BigEndian.PutUint16(tx[2:], value)
	return e.relays.Tx(tx[:], nil)
}

// SetRelayWord writes word to the output latch of port.
func (e *Expander) SetRelayWord(ctx context.Context, port arbiter.Port, word arbiter.RelayWord) error {
	var reg uint16
	switch port {
	case arbiter.PortA:
		reg = regOutputA
	case arbiter.PortB:
		reg = regOutputB
	default:
		return errors.Errorf("unknown expander port %v", port)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.write(reg, uint16(word)); err != nil {
		return errors.Wrapf(err, "writing expander port %v", port)
	}
	return nil
}

// ReadIrrigationCurrent clocks one 16-bit conversion out of the current ADC.
func (e *Expander) ReadIrrigationCurrent(ctx context.Context) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	var rx [2]byte
	if err := e.adc.Tx(make([]byte, len(rx)), rx[:]); err != nil {
		return 0, errors.Wrap(err, "reading irrigation current")
	}
	return uint32(binary.BigEndian.Uint16(rx[:])), nil
}

// Close releases the SPI ports.
func (e *Expander) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var err error
	for _, c := range e.closers {
		err = multierr.Append(err, c())
	}
	e.closers = nil
	return err
}
