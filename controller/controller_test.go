package controller

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap/zaptest/observer"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/cutterdrive/arbiter"
	boardfake "go.viam.com/cutterdrive/components/board/fake"
	drivefake "go.viam.com/cutterdrive/components/drive/fake"
	expanderfake "go.viam.com/cutterdrive/components/expander/fake"
	handpiecefake "go.viam.com/cutterdrive/components/handpiece/fake"
	"go.viam.com/cutterdrive/config"
	"go.viam.com/cutterdrive/faults"
	"go.viam.com/cutterdrive/ftdc"
	"go.viam.com/cutterdrive/logging"
	"go.viam.com/cutterdrive/testutils/inject"
)

type harness struct {
	c         *Controller
	handpiece *handpiecefake.Handpiece
	inputs    *boardfake.Inputs
	expander  *expanderfake.Expander
	drive     *drivefake.Drive
	faults    *faults.Register
	logs      *observer.ObservedLogs
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	logger, logs := logging.NewObservedTestLogger(t)
	h := &harness{
		handpiece: handpiecefake.NewHandpiece(false, logger),
		inputs:    &boardfake.Inputs{},
		expander:  expanderfake.NewExpander(),
		logs:      logs,
	}
	var err error
	h.drive, err = drivefake.NewDrive(drivefake.Config{}, logger)
	test.That(t, err, test.ShouldBeNil)
	h.faults = faults.NewRegister(logger, nil)

	arb, err := arbiter.New(arbiter.DefaultConfig(), arbiter.Dependencies{
		Driver:     h.drive,
		Relays:     h.expander,
		Irrigation: h.expander,
		Faults:     h.faults,
	}, logger)
	test.That(t, err, test.ShouldBeNil)

	if opts.CycleHz == 0 {
		opts.CycleHz = 200
	}
	h.c, err = New(opts, Dependencies{
		Arbiter: arb,
		Source:  h.handpiece,
		Inputs:  h.inputs,
		Relays:  h.expander,
		Faults:  h.faults,
	}, logger)
	test.That(t, err, test.ShouldBeNil)
	return h
}

// attach runs the attach command and the calibration cycle.
func (h *harness) attach(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	test.That(t, h.c.Attach(ctx), test.ShouldBeNil)
	h.c.cycle(ctx)
	test.That(t, h.c.Snapshot().Status.Calibrated, test.ShouldBeTrue)
}

func (h *harness) word(t *testing.T, port arbiter.Port) arbiter.RelayWord {
	t.Helper()
	w, ok := h.expander.Word(port)
	test.That(t, ok, test.ShouldBeTrue)
	return w
}

func TestNew(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := New(Options{CycleHz: 200}, Dependencies{}, logger)
	test.That(t, err, test.ShouldNotBeNil)

	deps := Dependencies{
		Arbiter: &arbiter.Arbitrator{},
		Source:  &inject.Source{},
		Inputs:  &inject.InputReader{},
		Relays:  &inject.Relays{},
		Faults:  faults.NewRegister(logger, nil),
	}
	_, err = New(Options{}, deps, logger)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = New(Options{CycleHz: 200, ResetCycles: -1}, deps, logger)
	test.That(t, err, test.ShouldNotBeNil)

	c, err := New(Options{CycleHz: 200}, deps, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, c.period, test.ShouldEqual, 5*time.Millisecond)
}

func TestAttachSequence(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{ResetCycles: 3})

	test.That(t, h.c.Attach(ctx), test.ShouldBeNil)
	h.c.cycle(ctx)
	test.That(t, h.word(t, arbiter.PortB), test.ShouldEqual, arbiter.ResetHold)
	test.That(t, h.c.Snapshot().Resetting, test.ShouldBeTrue)

	h.c.cycle(ctx)
	h.c.cycle(ctx)
	snap := h.c.Snapshot()
	test.That(t, snap.Resetting, test.ShouldBeFalse)
	test.That(t, snap.Status.Calibrated, test.ShouldBeFalse)
	test.That(t, h.word(t, arbiter.PortB), test.ShouldEqual, arbiter.ResetRelease)
	test.That(t, h.word(t, arbiter.PortA), test.ShouldEqual, arbiter.RelaysDisabled)

	h.c.cycle(ctx)
	snap = h.c.Snapshot()
	test.That(t, snap.Status.Calibrated, test.ShouldBeTrue)
	test.That(t, snap.Attached, test.ShouldBeTrue)
	test.That(t, snap.Cycles, test.ShouldEqual, uint64(4))
}

func TestRunAndOperatingTime(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	h.attach(t)

	h.inputs.SetEnable(true)
	h.handpiece.SetTrigger(1)
	h.c.cycle(ctx)
	snap := h.c.Snapshot()
	test.That(t, snap.Status.Running, test.ShouldBeTrue)
	test.That(t, snap.Status.Level, test.ShouldEqual, 128)
	cfg := arbiter.DefaultConfig()
	test.That(t, h.drive.Target(), test.ShouldEqual, cfg.TargetSpeed(128))
	test.That(t, h.word(t, arbiter.PortA), test.ShouldEqual, arbiter.RelayMain|arbiter.RelayCutter)

	h.c.cycle(ctx)
	h.handpiece.SetTrigger(0)
	h.c.cycle(ctx)
	snap = h.c.Snapshot()
	test.That(t, snap.Status.Running, test.ShouldBeFalse)
	running, err := h.drive.IsRunning(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, running, test.ShouldBeFalse)
	test.That(t, snap.OperatingTime, test.ShouldEqual, 10*time.Millisecond)
	test.That(t, h.logs.FilterMessage("operating time updated").Len(), test.ShouldEqual, 1)
}

func TestLinkFaults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	h.attach(t)

	t.Run("timeout carries state", func(t *testing.T) {
		h.handpiece.SetTimeout(true)
		h.c.cycle(ctx)
		snap := h.c.Snapshot()
		test.That(t, snap.Faults&faults.FaultHPComm, test.ShouldNotEqual, faults.Code(0))
		test.That(t, snap.Status.Calibrated, test.ShouldBeTrue)

		h.handpiece.SetTimeout(false)
		h.c.cycle(ctx)
		test.That(t, h.c.Snapshot().Faults&faults.FaultHPComm, test.ShouldEqual, faults.Code(0))
	})

	t.Run("invalid sample", func(t *testing.T) {
		h.handpiece.SetInvalid(true)
		h.c.cycle(ctx)
		test.That(t, h.faults.Faulted(faults.FaultHPA2D), test.ShouldBeTrue)
		h.handpiece.SetInvalid(false)
		test.That(t, h.c.ClearFaults(ctx), test.ShouldBeNil)
		h.c.cycle(ctx)
		test.That(t, h.faults.Faulted(faults.FaultHPA2D), test.ShouldBeFalse)
	})

	t.Run("zero sample is skipped", func(t *testing.T) {
		before := h.c.Snapshot()
		h.handpiece.SetAttached(false)
		h.c.cycle(ctx)
		after := h.c.Snapshot()
		test.That(t, after.Cycles, test.ShouldEqual, before.Cycles+1)
		test.That(t, after.Status, test.ShouldResemble, before.Status)
		h.handpiece.SetAttached(true)
	})
}

func TestDetach(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	h.attach(t)
	h.inputs.SetEnable(true)
	h.handpiece.SetTrigger(1)
	h.c.cycle(ctx)
	test.That(t, h.c.Snapshot().Status.Running, test.ShouldBeTrue)

	test.That(t, h.c.Detach(ctx), test.ShouldBeNil)
	h.c.cycle(ctx)
	snap := h.c.Snapshot()
	test.That(t, snap.Attached, test.ShouldBeFalse)
	running, err := h.drive.IsRunning(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, running, test.ShouldBeFalse)
	test.That(t, h.word(t, arbiter.PortA), test.ShouldEqual, arbiter.RelaysDisabled)
	test.That(t, h.logs.FilterMessage("operating time updated").Len(), test.ShouldEqual, 1)

	// nothing is read while detached
	h.handpiece.SetTimeout(true)
	h.c.cycle(ctx)
	test.That(t, h.faults.Faulted(faults.FaultHPComm), test.ShouldBeFalse)
}

func TestFaultCommands(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	h.attach(t)

	h.faults.SetFault(faults.FaultMotorShort | faults.FaultHPComm)
	test.That(t, h.c.ClearFaults(ctx), test.ShouldBeNil)
	h.c.cycle(ctx)
	snap := h.c.Snapshot()
	test.That(t, snap.Faults&faults.FaultMotorShort, test.ShouldEqual, faults.FaultMotorShort)
	test.That(t, snap.Faults&faults.FaultHPComm, test.ShouldEqual, faults.Code(0))

	test.That(t, h.c.ServiceReset(ctx), test.ShouldBeNil)
	h.c.cycle(ctx)
	test.That(t, h.c.Snapshot().Faults&faults.NonClearable, test.ShouldEqual, faults.Code(0))
}

func TestInputFailureStopsMotor(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Options{})
	h.attach(t)
	h.inputs.SetEnable(true)
	h.handpiece.SetTrigger(1)
	h.c.cycle(ctx)
	test.That(t, h.c.Snapshot().Status.Running, test.ShouldBeTrue)

	h.inputs.SetError(errors.New("gpio chip gone"))
	h.c.cycle(ctx)
	test.That(t, h.c.Snapshot().Status.Running, test.ShouldBeFalse)
	test.That(t, h.faults.Faulted(faults.FaultSystemError), test.ShouldBeTrue)
}

func TestCapture(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := logging.NewTestLogger(t)
	h := newHarness(t, Options{Recorder: ftdc.NewRecorder(&buf, logger), Clock: clock.NewMock()})
	h.attach(t)
	h.inputs.SetEnable(true)
	h.handpiece.SetTrigger(0.5)
	h.c.cycle(ctx)
	test.That(t, h.c.Close(ctx), test.ShouldBeNil)

	datums, err := ftdc.Parse(&buf)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(datums), test.ShouldEqual, 2)
	level, ok := datums[1].Value("arbiter.Level")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, level, test.ShouldEqual, float32(h.c.Snapshot().Status.Level))
	hall0, ok := datums[1].Value("hall.Hall.0")
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, hall0, test.ShouldEqual, float32(164))
	_, ok = datums[0].Value("faults.Flags")
	test.That(t, ok, test.ShouldBeTrue)
}

func TestStartOnClock(t *testing.T) {
	ctx := context.Background()
	mock := clock.NewMock()
	h := newHarness(t, Options{Clock: mock, ResetCycles: 2})

	test.That(t, h.c.Start(ctx), test.ShouldBeNil)
	test.That(t, h.c.Start(ctx), test.ShouldNotBeNil)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mock.Add(h.c.period)
		test.That(tb, h.c.Snapshot().Status.Calibrated, test.ShouldBeTrue)
	})
	test.That(t, h.c.Close(ctx), test.ShouldBeNil)
	test.That(t, h.word(t, arbiter.PortA), test.ShouldEqual, arbiter.RelaysDisabled)
}

func TestBuildSimulated(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Engine.ResetCycles = 0
	sys, err := Build(&cfg, clock.NewMock(), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, sys.Handpiece, test.ShouldNotBeNil)
	test.That(t, sys.Inputs, test.ShouldNotBeNil)
	test.That(t, sys.Expander, test.ShouldNotBeNil)

	test.That(t, sys.Controller.Attach(ctx), test.ShouldBeNil)
	sys.Controller.cycle(ctx)
	sys.Controller.cycle(ctx)
	test.That(t, sys.Controller.Snapshot().Status.Calibrated, test.ShouldBeTrue)

	test.That(t, sys.Close(ctx), test.ShouldBeNil)

	cfg.Engine.CycleHz = 0
	_, err = Build(&cfg, nil, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}
