package inject

import (
	"context"

	"go.viam.com/cutterdrive/arbiter"
)

// Relays is an injected arbiter.Relays.
type Relays struct {
	arbiter.Relays
	SetRelayWordFunc func(ctx context.Context, port arbiter.Port, word arbiter.RelayWord) error
}

// SetRelayWord calls the injected SetRelayWord or the real version.
func (r *Relays) SetRelayWord(ctx context.Context, port arbiter.Port, word arbiter.RelayWord) error {
	if r.SetRelayWordFunc == nil {
		return r.Relays.SetRelayWord(ctx, port, word)
	}
	return r.SetRelayWordFunc(ctx, port, word)
}

// IrrigationSensor is an injected arbiter.IrrigationSensor.
type IrrigationSensor struct {
	arbiter.IrrigationSensor
	ReadIrrigationCurrentFunc func(ctx context.Context) (uint32, error)
}

// ReadIrrigationCurrent calls the injected ReadIrrigationCurrent or the real version.
func (s *IrrigationSensor) ReadIrrigationCurrent(ctx context.Context) (uint32, error) {
	if s.ReadIrrigationCurrentFunc == nil {
		return s.IrrigationSensor.ReadIrrigationCurrent(ctx)
	}
	return s.ReadIrrigationCurrentFunc(ctx)
}
