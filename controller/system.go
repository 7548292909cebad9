package controller

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"go.viam.com/cutterdrive/arbiter"
	"go.viam.com/cutterdrive/components/board"
	boardfake "go.viam.com/cutterdrive/components/board/fake"
	drivefake "go.viam.com/cutterdrive/components/drive/fake"
	"go.viam.com/cutterdrive/components/expander"
	expanderfake "go.viam.com/cutterdrive/components/expander/fake"
	"go.viam.com/cutterdrive/components/handpiece"
	handpiecefake "go.viam.com/cutterdrive/components/handpiece/fake"
	"go.viam.com/cutterdrive/config"
	"go.viam.com/cutterdrive/faults"
	"go.viam.com/cutterdrive/ftdc"
	"go.viam.com/cutterdrive/logging"
)

type relayExpander interface {
	arbiter.Relays
	arbiter.IrrigationSensor
	Close(ctx context.Context) error
}

// A System is a controller together with the adapters it was built from. The simulated
// adapters are nil when the matching hardware is configured.
type System struct {
	Controller *Controller
	Faults     *faults.Register
	Drive      *drivefake.Drive

	Handpiece *handpiecefake.Handpiece
	Inputs    *boardfake.Inputs
	Expander  *expanderfake.Expander

	relays relayExpander
}

// Build wires the adapters selected by cfg into a stopped controller.
func Build(cfg *config.Config, clk clock.Clock, logger logging.Logger) (_ *System, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}

	sys := &System{}
	var closers []func() error
	defer func() {
		if err != nil {
			for _, c := range closers {
				err = multierr.Append(err, c())
			}
		}
	}()
	ctx := context.Background()

	drive, err := drivefake.NewDrive(cfg.Drive, logger.Sublogger("drive"))
	if err != nil {
		return nil, err
	}
	drive.Start(clk)
	closers = append(closers, func() error { return drive.Close(ctx) })
	sys.Drive = drive

	// The arbitrator stops the motor itself for every non-clearable code it raises.
	sys.Faults = faults.NewRegister(logger.Sublogger("faults"), nil)

	if cfg.Expander.Simulate {
		sys.Expander = expanderfake.NewExpander()
		sys.relays = sys.Expander
	} else {
		spiExpander, err := expander.Open(cfg.Expander, logger.Sublogger("expander"))
		if err != nil {
			return nil, err
		}
		sys.relays = spiExpander
	}
	closers = append(closers, func() error { return sys.relays.Close(ctx) })

	var source handpiece.Source
	if cfg.Handpiece.Simulate {
		sys.Handpiece = handpiecefake.NewHandpiece(false, logger.Sublogger("handpiece"))
		source = sys.Handpiece
	} else {
		source, err = handpiece.NewSerialSource(cfg.Handpiece, logger.Sublogger("handpiece"))
		if err != nil {
			return nil, err
		}
	}
	closers = append(closers, func() error { return source.Close(ctx) })

	var inputs board.InputReader
	if cfg.Board.Simulate {
		sys.Inputs = &boardfake.Inputs{}
		inputs = sys.Inputs
	} else {
		inputs, err = board.NewGPIOReader(cfg.Board, logger.Sublogger("board"))
		if err != nil {
			return nil, err
		}
	}
	closers = append(closers, func() error { return inputs.Close(ctx) })

	engine, err := cfg.Engine.ArbiterConfig()
	if err != nil {
		return nil, err
	}
	arb, err := arbiter.New(engine, arbiter.Dependencies{
		Driver:     drive,
		Relays:     sys.relays,
		Irrigation: sys.relays,
		Faults:     sys.Faults,
	}, logger.Sublogger("arbiter"))
	if err != nil {
		return nil, err
	}

	var recorder *ftdc.Recorder
	if cfg.Capture.Path != "" {
		recorder, err = ftdc.OpenRecorder(cfg.Capture.Path, logger.Sublogger("capture"))
		if err != nil {
			return nil, err
		}
		closers = append(closers, recorder.Close)
	}

	sys.Controller, err = New(Options{
		CycleHz:     cfg.Engine.CycleHz,
		ResetCycles: cfg.Engine.ResetCycles,
		Clock:       clk,
		Recorder:    recorder,
	}, Dependencies{
		Arbiter: arb,
		Source:  source,
		Inputs:  inputs,
		Relays:  sys.relays,
		Faults:  sys.Faults,
	}, logger.Sublogger("controller"))
	if err != nil {
		return nil, err
	}
	return sys, nil
}

// Close stops the controller and releases every adapter.
func (s *System) Close(ctx context.Context) error {
	return multierr.Combine(
		s.Controller.Close(ctx),
		s.relays.Close(ctx),
		s.Drive.Close(ctx),
	)
}
