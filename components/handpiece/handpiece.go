// Package handpiece reads Hall sensor samples streamed by a detachable hand-piece.
package handpiece

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/cutterdrive/hall"
	"go.viam.com/cutterdrive/utils"
)

var (
	// ErrTimeout is returned when no complete frame arrived within the read timeout.
	ErrTimeout = errors.New("hand-piece sample timed out")
	// ErrInvalidSample is returned for a frame with a zero temperature or hall word, which is how
	// the hand-piece A2D reports an open or shorted line.
	ErrInvalidSample = errors.New("hand-piece A2D reported an invalid sample")
)

// A Source delivers one sample per control cycle. A zero sample means the link is not ready yet.
type Source interface {
	ReadSample(ctx context.Context) (hall.Sample, error)
	Close(ctx context.Context) error
}

// Config describes the serial link to the hand-piece.
type Config struct {
	Device        string `json:"device"`
	Baud          int    `json:"baud,omitempty"`
	ReadTimeoutMs int    `json:"read_timeout_ms,omitempty"`
	// Simulate replaces the serial link with a simulated hand-piece.
	Simulate bool `json:"simulate,omitempty"`
}

const (
	defaultBaud          = 115200
	defaultReadTimeoutMs = 100
)

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	if cfg.Simulate {
		return nil
	}
	if cfg.Device == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "device")
	}
	if cfg.Baud < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("baud must not be negative, got %d", cfg.Baud))
	}
	if cfg.ReadTimeoutMs < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("read_timeout_ms must not be negative, got %d", cfg.ReadTimeoutMs))
	}
	return nil
}
