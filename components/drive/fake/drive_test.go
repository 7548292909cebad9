package fake

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/cutterdrive/arbiter"
	"go.viam.com/cutterdrive/logging"
)

func TestDriveSpinsUpAndStops(t *testing.T) {
	ctx := context.Background()
	logger := logging.NewTestLogger(t)
	d, err := NewDrive(Config{MaxRPM: 12000, Kp: 0.01, Ki: 0.05}, logger)
	test.That(t, err, test.ShouldBeNil)

	test.That(t, d.SetTargetSpeed(ctx, 6000), test.ShouldBeNil)
	test.That(t, d.Run(ctx, arbiter.DirectionReverse), test.ShouldBeNil)
	running, err := d.IsRunning(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, running, test.ShouldBeTrue)
	test.That(t, d.Direction(), test.ShouldEqual, arbiter.DirectionReverse)

	for i := 0; i < 2000; i++ {
		d.Step(ctx, time.Millisecond)
	}
	test.That(t, d.RPM(), test.ShouldBeGreaterThan, 1000.0)

	test.That(t, d.EmergencyStop(ctx), test.ShouldBeNil)
	running, err = d.IsRunning(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, running, test.ShouldBeFalse)
	for i := 0; i < 2000; i++ {
		d.Step(ctx, time.Millisecond)
	}
	test.That(t, d.RPM(), test.ShouldEqual, 0.0)
}

func TestDriveLimits(t *testing.T) {
	ctx := context.Background()
	d, err := NewDrive(Config{MaxRPM: 12000}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	err = d.SetTargetSpeed(ctx, 20000)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, d.Target(), test.ShouldEqual, uint32(0))

	test.That(t, d.SetIntegralGain(ctx, -1), test.ShouldNotBeNil)
	test.That(t, d.SetIntegralGain(ctx, 0.2), test.ShouldBeNil)
	test.That(t, d.loop.IntegralGain(), test.ShouldEqual, 0.2)

	_, err = NewDrive(Config{MaxRPM: -1}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestDrivePhaseShort(t *testing.T) {
	ctx := context.Background()
	d, err := NewDrive(Config{}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)

	short, err := d.CheckPhaseShort(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, short, test.ShouldBeFalse)

	d.InjectPhaseShort(true)
	short, err = d.CheckPhaseShort(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, short, test.ShouldBeTrue)
}

func TestDriveStartOnClock(t *testing.T) {
	ctx := context.Background()
	d, err := NewDrive(Config{MaxRPM: 12000, StepPeriodMs: 1}, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d.SetTargetSpeed(ctx, 6000), test.ShouldBeNil)
	test.That(t, d.Run(ctx, arbiter.DirectionForward), test.ShouldBeNil)

	mock := clock.NewMock()
	d.Start(mock)
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		mock.Add(10 * time.Millisecond)
		test.That(tb, d.RPM(), test.ShouldBeGreaterThan, 0.0)
	})
	test.That(t, d.Close(ctx), test.ShouldBeNil)
}
