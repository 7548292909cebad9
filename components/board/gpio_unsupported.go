//go:build !linux

package board

import (
	"github.com/pkg/errors"

	"go.viam.com/cutterdrive/logging"
)

// NewGPIOReader is only available on Linux.
func NewGPIOReader(cfg Config, logger logging.Logger) (InputReader, error) {
	return nil, errors.New("GPIO inputs are only supported on linux, use simulate")
}
