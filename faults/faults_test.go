package faults

import (
	"testing"

	"go.viam.com/test"

	"go.viam.com/cutterdrive/logging"
)

func TestWarningBits(t *testing.T) {
	test.That(t, WarnHallSpeedHigh(0), test.ShouldEqual, Code(0x01000000))
	test.That(t, WarnHallSpeedHigh(3), test.ShouldEqual, Code(0x08000000))
	test.That(t, WarnHallSpeedLow(0), test.ShouldEqual, Code(0x10000000))
	test.That(t, WarnHallSpeedLow(3), test.ShouldEqual, Code(0x80000000))

	for i := 0; i < 4; i++ {
		test.That(t, WarnHallSpeedHigh(i)&AllFaults, test.ShouldEqual, Code(0))
		test.That(t, WarnHallSpeedLow(i)&AllFaults, test.ShouldEqual, Code(0))
	}
}

func TestClassOf(t *testing.T) {
	test.That(t, ClassOf(WarnHallSpeedRange), test.ShouldEqual, Advisory)
	test.That(t, ClassOf(WarnHallSpeedLow(2)|WarnHPVoltageRange), test.ShouldEqual, Advisory)
	test.That(t, ClassOf(FaultHallInit), test.ShouldEqual, Retryable)
	test.That(t, ClassOf(FaultHPComm), test.ShouldEqual, Retryable)
	test.That(t, ClassOf(FaultHPA2D), test.ShouldEqual, Retryable)
	for _, code := range []Code{FaultHPHall, FaultMotorShort, FaultIrrigationShort, FaultCurrentHighHW} {
		test.That(t, ClassOf(code), test.ShouldEqual, NonClearableClass)
	}
	test.That(t, ClassOf(FaultHPComm|FaultMotorShort), test.ShouldEqual, NonClearableClass)
}

func TestCodeString(t *testing.T) {
	test.That(t, Code(0).String(), test.ShouldEqual, "none")
	test.That(t, FaultHPHall.String(), test.ShouldEqual, "hp_hall")
	test.That(t, (FaultHPComm | WarnHallSpeedLow(1)).String(), test.ShouldEqual, "hp_comm|hall_speed_low_1")
	test.That(t, Code(0x00010000).String(), test.ShouldEqual, "0x00010000")
}

func TestRegister(t *testing.T) {
	logger := logging.NewTestLogger(t)

	t.Run("set is idempotent", func(t *testing.T) {
		var stops []Code
		reg := NewRegister(logger, func(code Code) { stops = append(stops, code) })
		reg.SetFault(FaultMotorShort)
		reg.SetFault(FaultMotorShort)
		reg.SetFault(FaultMotorShort | WarnHallSpeedRange)
		test.That(t, stops, test.ShouldResemble, []Code{FaultMotorShort})
		test.That(t, reg.Flags(), test.ShouldEqual, FaultMotorShort|WarnHallSpeedRange)
	})

	t.Run("clear keeps non-clearable", func(t *testing.T) {
		reg := NewRegister(logger, nil)
		reg.SetFault(FaultHPHall | FaultHPComm | WarnHPVoltageRange)
		reg.ClearFaults()
		test.That(t, reg.Flags(), test.ShouldEqual, FaultHPHall)
		test.That(t, reg.Faulted(NonClearable), test.ShouldBeTrue)
		test.That(t, reg.Faulted(FaultHPComm), test.ShouldBeFalse)

		reg.ClearFault(FaultHPHall)
		test.That(t, reg.Faulted(FaultHPHall), test.ShouldBeTrue)

		reg.ServiceReset()
		test.That(t, reg.Flags(), test.ShouldEqual, Code(0))
	})

	t.Run("clear single", func(t *testing.T) {
		reg := NewRegister(logger, nil)
		reg.SetFault(FaultHPComm | FaultHPA2D)
		reg.ClearFault(FaultHPComm)
		test.That(t, reg.Flags(), test.ShouldEqual, FaultHPA2D)
	})

	t.Run("hook fires again after service reset", func(t *testing.T) {
		count := 0
		reg := NewRegister(logger, func(Code) { count++ })
		reg.SetFault(FaultIrrigationShort)
		reg.ServiceReset()
		reg.SetFault(FaultIrrigationShort)
		test.That(t, count, test.ShouldEqual, 2)
	})
}
