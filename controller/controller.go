// Package controller runs the control cycle: it reads the hand-piece and the operator inputs,
// drives the arbitrator and performs the hand-piece attach sequence.
package controller

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"go.uber.org/multierr"

	"go.viam.com/cutterdrive/arbiter"
	"go.viam.com/cutterdrive/components/board"
	"go.viam.com/cutterdrive/components/handpiece"
	"go.viam.com/cutterdrive/faults"
	"go.viam.com/cutterdrive/ftdc"
	"go.viam.com/cutterdrive/hall"
	"go.viam.com/cutterdrive/logging"
	"go.viam.com/cutterdrive/utils"
)

type command int

const (
	cmdAttach command = iota
	cmdDetach
	cmdClearFaults
	cmdServiceReset
)

func (c command) String() string {
	switch c {
	case cmdAttach:
		return "attach"
	case cmdDetach:
		return "detach"
	case cmdClearFaults:
		return "clear_faults"
	case cmdServiceReset:
		return "service_reset"
	}
	return "unknown"
}

// Options tune the control cycle.
type Options struct {
	CycleHz int
	// ResetCycles is how many cycles the hand-piece reset line is held on attach.
	ResetCycles int
	// Clock drives the cycle ticker, the wall clock when nil.
	Clock clock.Clock
	// Recorder captures every cycle when set. The controller closes it.
	Recorder *ftdc.Recorder
}

// Dependencies are the collaborators of a Controller. Relays must be the same expander the
// arbitrator writes to.
type Dependencies struct {
	Arbiter *arbiter.Arbitrator
	Source  handpiece.Source
	Inputs  board.InputReader
	Relays  arbiter.Relays
	Faults  *faults.Register
}

// Snapshot is the externally visible state after the last cycle.
type Snapshot struct {
	Status arbiter.Status
	Faults faults.Code
	Cycles uint64
	// OperatingTime is the accumulated time the motor ran.
	OperatingTime time.Duration
	Resetting     bool
	Attached      bool
}

// A Controller owns an Arbitrator and is its only writer.
type Controller struct {
	opts   Options
	deps   Dependencies
	logger logging.Logger
	period time.Duration

	cmds    chan command
	workers utils.StoppableWorkers

	// owned by the cycle goroutine
	resetRemaining int
	attached       bool
	runningCycles  uint64
	captureFailed  bool

	mu       sync.Mutex
	snapshot Snapshot
}

// New returns a stopped controller.
func New(opts Options, deps Dependencies, logger logging.Logger) (*Controller, error) {
	if deps.Arbiter == nil || deps.Source == nil || deps.Inputs == nil || deps.Relays == nil || deps.Faults == nil {
		return nil, errors.New("controller requires an arbiter, a sample source, inputs, relays and a fault register")
	}
	if opts.CycleHz <= 0 {
		return nil, errors.Errorf("cycle rate must be positive, got %d", opts.CycleHz)
	}
	if opts.ResetCycles < 0 {
		return nil, errors.Errorf("reset cycles must not be negative, got %d", opts.ResetCycles)
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Controller{
		opts:   opts,
		deps:   deps,
		logger: logger,
		period: time.Second / time.Duration(opts.CycleHz),
		cmds:   make(chan command, 8),
	}, nil
}

// Start attaches the hand-piece and runs the control cycle until Close.
func (c *Controller) Start(ctx context.Context) error {
	if c.workers != nil {
		return errors.New("controller already started")
	}
	if err := c.Attach(ctx); err != nil {
		return err
	}
	c.logger.Infow("control cycle starting", "rate_hz", c.opts.CycleHz, "reset_cycles", c.opts.ResetCycles)
	c.workers = utils.NewStoppableWorkersWithContext(ctx, func(ctx context.Context) {
		ticker := c.opts.Clock.Ticker(c.period)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.cycle(ctx)
			}
		}
	})
	return nil
}

func (c *Controller) send(ctx context.Context, cmd command) error {
	select {
	case c.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Attach runs the hand-piece reset sequence and recalibrates at the next cycle boundary.
func (c *Controller) Attach(ctx context.Context) error {
	return c.send(ctx, cmdAttach)
}

// Detach stops the motor, commands the safe relay word and drops all engine state.
func (c *Controller) Detach(ctx context.Context) error {
	return c.send(ctx, cmdDetach)
}

// ClearFaults clears the clearable faults.
func (c *Controller) ClearFaults(ctx context.Context) error {
	return c.send(ctx, cmdClearFaults)
}

// ServiceReset clears every fault, non-clearable ones included.
func (c *Controller) ServiceReset(ctx context.Context) error {
	return c.send(ctx, cmdServiceReset)
}

// Snapshot returns the state after the last cycle.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

func (c *Controller) applyCommands(ctx context.Context) {
	for {
		select {
		case cmd := <-c.cmds:
			c.logger.Debugw("applying command", "command", cmd.String())
			switch cmd {
			case cmdAttach:
				c.attached = true
				c.resetRemaining = c.opts.ResetCycles
				c.deps.Arbiter.EmergencyStop(ctx)
				c.holdReset(ctx)
			case cmdDetach:
				c.attached = false
				c.resetRemaining = 0
				c.safeStop(ctx)
				c.deps.Arbiter.Reset()
			case cmdClearFaults:
				c.deps.Faults.ClearFaults()
			case cmdServiceReset:
				c.deps.Faults.ServiceReset()
			}
		default:
			return
		}
	}
}

func (c *Controller) holdReset(ctx context.Context) {
	if c.resetRemaining == 0 {
		c.releaseReset(ctx)
		return
	}
	if err := c.deps.Relays.SetRelayWord(ctx, arbiter.PortB, arbiter.ResetHold); err != nil {
		c.logger.Errorw("cannot hold hand-piece reset", "error", err)
	}
}

// releaseReset ends the attach sequence. The next valid sample calibrates.
func (c *Controller) releaseReset(ctx context.Context) {
	if err := c.deps.Relays.SetRelayWord(ctx, arbiter.PortB, arbiter.ResetRelease); err != nil {
		c.logger.Errorw("cannot release hand-piece reset", "error", err)
	}
	if err := c.deps.Arbiter.SafeRelays(ctx); err != nil {
		c.logger.Errorw("cannot command safe relays", "error", err)
	}
	c.deps.Arbiter.Reset()
	c.logger.Info("hand-piece reset released")
}

func (c *Controller) safeStop(ctx context.Context) {
	c.deps.Arbiter.EmergencyStop(ctx)
	if err := c.deps.Arbiter.SafeRelays(ctx); err != nil {
		c.logger.Errorw("cannot command safe relays", "error", err)
	}
	c.consumeOpTime()
}

// cycle runs one control period.
func (c *Controller) cycle(ctx context.Context) {
	ctx, span := trace.StartSpan(ctx, "controller::cycle")
	defer span.End()

	c.applyCommands(ctx)
	status, ticked := c.step(ctx)
	if ticked {
		if status.Running {
			c.runningCycles++
		}
		c.consumeOpTime()
	}

	c.mu.Lock()
	c.snapshot.Cycles++
	if ticked {
		c.snapshot.Status = status
	}
	c.snapshot.Faults = c.deps.Faults.Flags()
	c.snapshot.OperatingTime = c.operatingTime()
	c.snapshot.Resetting = c.resetRemaining > 0
	c.snapshot.Attached = c.attached
	c.mu.Unlock()
}

// step returns the arbitration status and whether the arbitrator ran this cycle.
func (c *Controller) step(ctx context.Context) (arbiter.Status, bool) {
	if !c.attached {
		return arbiter.Status{}, false
	}
	if c.resetRemaining > 0 {
		c.resetRemaining--
		if c.resetRemaining == 0 {
			c.releaseReset(ctx)
		}
		return arbiter.Status{}, false
	}

	sample, ok := c.readSample(ctx)
	if !ok {
		return arbiter.Status{}, false
	}

	in, err := c.deps.Inputs.ReadInputs(ctx)
	if err != nil {
		// Deasserted inputs stop the motor.
		c.logger.Errorw("cannot read operator inputs", "error", err)
		c.deps.Faults.SetFault(faults.FaultSystemError)
		in = arbiter.Inputs{}
	}

	_, span := trace.StartSpan(ctx, "arbiter::Tick")
	status := c.deps.Arbiter.Tick(ctx, sample, in)
	span.End()

	c.capture(sample, status)
	return status, true
}

func (c *Controller) readSample(ctx context.Context) (hall.Sample, bool) {
	sample, err := c.deps.Source.ReadSample(ctx)
	switch {
	case err == nil:
	case errors.Is(err, handpiece.ErrInvalidSample):
		c.deps.Faults.SetFault(faults.FaultHPA2D)
		return hall.Sample{}, false
	default:
		if !errors.Is(err, handpiece.ErrTimeout) {
			c.logger.Warnw("hand-piece read failed", "error", err)
		}
		c.deps.Faults.SetFault(faults.FaultHPComm)
		return hall.Sample{}, false
	}

	if c.deps.Faults.Faulted(faults.FaultHPComm) {
		c.deps.Faults.ClearFault(faults.FaultHPComm)
		c.logger.Info("hand-piece link recovered")
	}
	if sample.IsZero() {
		return hall.Sample{}, false
	}
	return sample, true
}

// consumeOpTime logs the operating time whenever the motor stopped.
func (c *Controller) consumeOpTime() {
	if c.deps.Arbiter.ConsumeOpTimeUpdate() {
		c.logger.Infow("operating time updated", "total", c.operatingTime().String())
	}
}

func (c *Controller) operatingTime() time.Duration {
	return time.Duration(c.runningCycles) * c.period
}

type faultStats struct {
	Flags uint32
}

func (c *Controller) capture(sample hall.Sample, status arbiter.Status) {
	if c.opts.Recorder == nil || c.captureFailed {
		return
	}
	err := c.opts.Recorder.Add(c.opts.Clock.Now(), map[string]any{
		"arbiter": status,
		"hall":    sample,
		"faults":  faultStats{Flags: uint32(c.deps.Faults.Flags())},
	})
	if err != nil {
		c.captureFailed = true
		c.logger.Errorw("cycle capture failed, capture disabled", "error", err)
	}
}

// Close stops the cycle, stops the motor, commands the safe relay word and closes every
// collaborator.
func (c *Controller) Close(ctx context.Context) error {
	if c.workers != nil {
		c.workers.Stop()
		c.workers = nil
	}
	c.safeStop(ctx)

	err := multierr.Combine(
		c.deps.Source.Close(ctx),
		c.deps.Inputs.Close(ctx),
	)
	if c.opts.Recorder != nil {
		err = multierr.Append(err, c.opts.Recorder.Close())
	}
	return err
}
