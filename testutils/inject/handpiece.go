package inject

import (
	"context"

	"go.viam.com/cutterdrive/components/handpiece"
	"go.viam.com/cutterdrive/hall"
)

// Source is an injected handpiece.Source.
type Source struct {
	handpiece.Source
	ReadSampleFunc func(ctx context.Context) (hall.Sample, error)
	CloseFunc      func(ctx context.Context) error
}

// ReadSample calls the injected ReadSample or the real version.
func (s *Source) ReadSample(ctx context.Context) (hall.Sample, error) {
	if s.ReadSampleFunc == nil {
		return s.Source.ReadSample(ctx)
	}
	return s.ReadSampleFunc(ctx)
}

// Close calls the injected Close or the real version.
func (s *Source) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		if s.Source == nil {
			return nil
		}
		return s.Source.Close(ctx)
	}
	return s.CloseFunc(ctx)
}
