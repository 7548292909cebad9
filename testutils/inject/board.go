package inject

import (
	"context"

	"go.viam.com/cutterdrive/arbiter"
	"go.viam.com/cutterdrive/components/board"
)

// InputReader is an injected board.InputReader.
type InputReader struct {
	board.InputReader
	ReadInputsFunc func(ctx context.Context) (arbiter.Inputs, error)
	CloseFunc      func(ctx context.Context) error
}

// ReadInputs calls the injected ReadInputs or the real version.
func (r *InputReader) ReadInputs(ctx context.Context) (arbiter.Inputs, error) {
	if r.ReadInputsFunc == nil {
		return r.InputReader.ReadInputs(ctx)
	}
	return r.ReadInputsFunc(ctx)
}

// Close calls the injected Close or the real version.
func (r *InputReader) Close(ctx context.Context) error {
	if r.CloseFunc == nil {
		if r.InputReader == nil {
			return nil
		}
		return r.InputReader.Close(ctx)
	}
	return r.CloseFunc(ctx)
}
