package hall

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.viam.com/test"

	"go.viam.com/cutterdrive/faults"
	"go.viam.com/cutterdrive/logging"
)

var released = Sample{
	Hall:           [NumSensors]uint16{100, 150, 190, 220},
	VoltageMonitor: [2]uint16{256, 426},
	TempRaw:        150,
}

func withHall(h0, h1, h2, h3 uint16) Sample {
	s := released
	s.Hall = [NumSensors]uint16{h0, h1, h2, h3}
	return s
}

func newSink(t *testing.T) *faults.Register {
	return faults.NewRegister(logging.NewTestLogger(t), nil)
}

func TestPack(t *testing.T) {
	delta := [NumSensors]uint32{1, 2, 3, 4}
	test.That(t, Pack(delta, OrderForward), test.ShouldEqual, uint32(1<<21|2<<14|3<<7|4))
	test.That(t, Pack(delta, OrderReverse), test.ShouldEqual, uint32(4<<21|3<<14|2<<7|1))
	test.That(t, Unpack(Pack(delta, OrderForward), OrderForward), test.ShouldResemble, delta)
	test.That(t, Unpack(Pack(delta, OrderReverse), OrderReverse), test.ShouldResemble, delta)

	// Each field saturates at 7 bits rather than spilling into its neighbour.
	clamped := Unpack(Pack([NumSensors]uint32{500, 0, 128, 127}, OrderForward), OrderForward)
	test.That(t, clamped, test.ShouldResemble, [NumSensors]uint32{127, 0, 127, 127})
	test.That(t, Pack([NumSensors]uint32{999, 999, 999, 999}, OrderForward), test.ShouldBeLessThan, uint32(1<<28))
}

func TestSample(t *testing.T) {
	test.That(t, Sample{}.IsZero(), test.ShouldBeTrue)
	test.That(t, Sample{TempRaw: 1}.IsZero(), test.ShouldBeFalse)

	test.That(t, Sample{TempRaw: 154}.TemperatureC(), test.ShouldEqual, int16(25))
	test.That(t, Sample{TempRaw: 102}.TemperatureC(), test.ShouldEqual, int16(-1))
}

func TestPolarity(t *testing.T) {
	test.That(t, DetectPolarity(released), test.ShouldEqual, PolarityNormal)
	test.That(t, PolarityNormal.Apply(released), test.ShouldResemble, released)

	raw := withHall(400, 350, 320, 600)
	test.That(t, DetectPolarity(raw), test.ShouldEqual, PolarityInverted)
	test.That(t, PolarityInverted.Apply(raw).Hall, test.ShouldResemble, [NumSensors]uint16{112, 162, 192, 0})
	test.That(t, PolarityInverted.String(), test.ShouldEqual, "inverted")
}

func TestCalibrate(t *testing.T) {
	t.Run("released trigger", func(t *testing.T) {
		sink := newSink(t)
		cal, err := Calibrate(released, CutTrigger, sink)
		test.That(t, err, test.ShouldBeNil)

		expected := &Calibration{
			Floor:         100,
			Ceiling:       220,
			Baseline:      released.Hall,
			ZeroIndex:     0,
			PackedForward: 50<<14 | 90<<7 | 120,
			PackedReverse: 50<<7 | 90<<14 | 120<<21,
			Spacing:       ((50<<7 | 90<<14 | 120<<21) - (50<<14 | 90<<7 | 120)) / NumSpeedSteps,
		}
		test.That(t, cmp.Diff(expected, cal), test.ShouldBeEmpty)
		test.That(t, cal.PackedReverse, test.ShouldBeGreaterThanOrEqualTo, cal.PackedForward)
		test.That(t, cal.Spacing, test.ShouldBeGreaterThan, uint32(0))
		for i := 0; i < NumSensors; i++ {
			test.That(t, cal.Min(i), test.ShouldEqual, uint16(100))
		}
		test.That(t, sink.Flags(), test.ShouldEqual, faults.Code(0))
	})

	t.Run("link not ready", func(t *testing.T) {
		sink := newSink(t)
		cal, err := Calibrate(Sample{}, CutTrigger, sink)
		test.That(t, err, test.ShouldEqual, ErrNotReady)
		test.That(t, cal, test.ShouldBeNil)
		test.That(t, sink.Flags(), test.ShouldEqual, faults.Code(0))
	})

	t.Run("trigger not released", func(t *testing.T) {
		for _, s := range []Sample{
			withHall(150, 100, 190, 220),
			withHall(150, 190, 100, 220),
			withHall(150, 190, 220, 100),
		} {
			sink := newSink(t)
			cal, err := Calibrate(s, CutTrigger, sink)
			test.That(t, cal, test.ShouldBeNil)
			var calErr *CalibrationError
			test.That(t, err, test.ShouldHaveSameTypeAs, calErr)
			test.That(t, err.(*CalibrationError).Fault, test.ShouldEqual, faults.FaultHallInit)
			test.That(t, sink.Faulted(faults.FaultHallInit), test.ShouldBeTrue)
		}
	})

	t.Run("foot pedal accepts any index", func(t *testing.T) {
		sink := newSink(t)
		cal, err := Calibrate(withHall(150, 100, 190, 220), CutFootPedal, sink)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cal.ZeroIndex, test.ShouldEqual, 1)
		test.That(t, sink.Faulted(faults.FaultHallInit), test.ShouldBeFalse)
	})

	t.Run("out of range sensor is excluded", func(t *testing.T) {
		sink := newSink(t)
		cal, err := Calibrate(withHall(100, 150, 190, 300), CutTrigger, sink)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, cal.Ceiling, test.ShouldEqual, uint16(190))
		test.That(t, cal.Mask.Has(3), test.ShouldBeTrue)
		test.That(t, sink.Faulted(faults.WarnHallSpeedHigh(3)), test.ShouldBeTrue)
		// 190 - 100 is below the range floor.
		test.That(t, sink.Faulted(faults.WarnHallSpeedRange), test.ShouldBeTrue)
	})

	t.Run("open sensor", func(t *testing.T) {
		sink := newSink(t)
		cal, err := Calibrate(withHall(100, 260, 240, 280), CutTrigger, sink)
		test.That(t, err, test.ShouldBeNil)
		// Sensor 1 sits at the open level next to the zero sensor. Sensor 2 is too far away.
		test.That(t, cal.Mask, test.ShouldEqual, Mask(1<<1))
		test.That(t, sink.Faulted(faults.WarnHallSpeedLow(1)), test.ShouldBeTrue)
		test.That(t, sink.Faulted(faults.WarnHallSpeedLow(2)), test.ShouldBeFalse)
	})

	t.Run("no travel", func(t *testing.T) {
		sink := newSink(t)
		cal, err := Calibrate(withHall(100, 150, 150, 100), CutTrigger, sink)
		test.That(t, cal, test.ShouldBeNil)
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, err.Error(), test.ShouldContainSubstring, "no travel")
	})

	t.Run("every sensor out of range", func(t *testing.T) {
		sink := newSink(t)
		_, err := Calibrate(withHall(10, 20, 30, 40), CutTrigger, sink)
		test.That(t, err, test.ShouldNotBeNil)
		for i := 0; i < NumSensors; i++ {
			test.That(t, sink.Faulted(faults.WarnHallSpeedLow(i)), test.ShouldBeTrue)
		}
	})
}

func calibrated(t *testing.T, mode CutType, opts DecoderOptions) (*Decoder, *Calibration, *faults.Register) {
	t.Helper()
	sink := newSink(t)
	cal, err := Calibrate(released, mode, sink)
	test.That(t, err, test.ShouldBeNil)
	return NewDecoder(mode, sink, opts), cal, sink
}

func TestDecodeNotReady(t *testing.T) {
	dec := NewDecoder(CutTrigger, newSink(t), DecoderOptions{})
	_, err := dec.Decode(released, nil, false)
	test.That(t, err, test.ShouldEqual, ErrNotReady)
}

func TestDecodeCalibrationSample(t *testing.T) {
	for _, running := range []bool{false, true} {
		dec, cal, _ := calibrated(t, CutTrigger, DecoderOptions{})
		res, err := dec.Decode(released, cal, running)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Level, test.ShouldBeLessThanOrEqualTo, 1)
		test.That(t, res.Index, test.ShouldEqual, 0)
		test.That(t, dec.State().RunningMin, test.ShouldResemble, released.Hall)
	}
}

func TestDecodeMonotonic(t *testing.T) {
	dec, cal, _ := calibrated(t, CutTrigger, DecoderOptions{})

	prev := -1
	for d := uint16(0); d <= 126; d++ {
		res, err := dec.Decode(withHall(160+d, 120+d, 150+d, 170+d), cal, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Index, test.ShouldEqual, 1)
		test.That(t, res.Level, test.ShouldBeGreaterThanOrEqualTo, prev)
		test.That(t, res.Level, test.ShouldBeBetweenOrEqual, 0, NumSpeedSteps)
		prev = res.Level
	}
	test.That(t, prev, test.ShouldEqual, NumSpeedSteps)
}

func TestDecodeLevels(t *testing.T) {
	dec, cal, _ := calibrated(t, CutTrigger, DecoderOptions{})
	_, err := dec.Decode(released, cal, false)
	test.That(t, err, test.ShouldBeNil)

	// Only sensor 0 moves off its running minimum.
	res, err := dec.Decode(withHall(200, 150, 190, 220), cal, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Index, test.ShouldEqual, 1)
	test.That(t, res.Level, test.ShouldEqual, int((int64(100<<21)-int64(cal.PackedForward))/int64(cal.Spacing)))

	// The magnet over the last sensor is always full travel.
	res, err = dec.Decode(withHall(200, 210, 220, 110), cal, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Index, test.ShouldEqual, 3)
	test.That(t, res.Level, test.ShouldEqual, NumSpeedSteps)

	// While running, sensor 0 lowest only reads released with a clear gap to sensor 1.
	res, err = dec.Decode(withHall(105, 200, 250, 260), cal, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Index, test.ShouldEqual, 0)
	test.That(t, res.Level, test.ShouldEqual, 0)

	res, err = dec.Decode(withHall(105, 120, 250, 260), cal, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Index, test.ShouldEqual, 0)
	test.That(t, res.Level, test.ShouldBeGreaterThan, 0)

	res, err = dec.Decode(withHall(105, 120, 250, 260), cal, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Level, test.ShouldEqual, 0)
}

func TestDecodeFootPedal(t *testing.T) {
	dec, cal, _ := calibrated(t, CutFootPedal, DecoderOptions{})
	res, err := dec.Decode(released, cal, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Level, test.ShouldEqual, NumSpeedSteps)
	test.That(t, res.Trigger, test.ShouldEqual, 0)
	test.That(t, dec.State().Trigger, test.ShouldEqual, 0)
}

func TestDecodeDegraded(t *testing.T) {
	t.Run("one bad sensor reads released", func(t *testing.T) {
		dec, cal, sink := calibrated(t, CutTrigger, DecoderOptions{})
		dec.state.Level = 40
		res, err := dec.Decode(withHall(100, 150, 190, 300), cal, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Degraded, test.ShouldBeTrue)
		test.That(t, res.Fatal, test.ShouldBeFalse)
		test.That(t, res.Mask, test.ShouldEqual, Mask(1<<3))
		test.That(t, res.Level, test.ShouldEqual, 0)
		test.That(t, sink.Faulted(faults.WarnHallSpeedHigh(3)), test.ShouldBeTrue)
	})

	t.Run("first two good sensors at full", func(t *testing.T) {
		dec, cal, _ := calibrated(t, CutTrigger, DecoderOptions{})
		res, err := dec.Decode(withHall(210, 215, 50, 50), cal, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Level, test.ShouldEqual, NumSpeedSteps)
	})

	t.Run("outer good sensors at full", func(t *testing.T) {
		dec, cal, _ := calibrated(t, CutTrigger, DecoderOptions{})
		res, err := dec.Decode(withHall(50, 250, 150, 100), cal, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Level, test.ShouldEqual, NumSpeedSteps)
	})

	t.Run("no heuristic keeps the level", func(t *testing.T) {
		dec, cal, _ := calibrated(t, CutTrigger, DecoderOptions{})
		dec.state.Level = 57
		res, err := dec.Decode(withHall(300, 150, 160, 170), cal, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Level, test.ShouldEqual, 57)
	})

	t.Run("three bad sensors", func(t *testing.T) {
		dec, cal, _ := calibrated(t, CutTrigger, DecoderOptions{})
		dec.state.Level = 57
		res, err := dec.Decode(withHall(50, 60, 70, 200), cal, true)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, res.Fatal, test.ShouldBeTrue)
		test.That(t, res.Level, test.ShouldEqual, 57)
		test.That(t, dec.State().Level, test.ShouldEqual, 57)
	})
}

func TestSequenceHysteresis(t *testing.T) {
	far := withHall(200, 210, 220, 110)

	t.Run("counter resets below the limit", func(t *testing.T) {
		dec, cal, sink := calibrated(t, CutTrigger, DecoderOptions{})
		for i := 0; i < 40; i++ {
			s := far
			if i%2 == 1 {
				s = released
			}
			_, err := dec.Decode(s, cal, false)
			test.That(t, err, test.ShouldBeNil)
		}
		test.That(t, sink.Faulted(faults.WarnHallSpeedSequence), test.ShouldBeFalse)
		test.That(t, dec.State().MissCount, test.ShouldEqual, 0)
	})

	t.Run("strict counts consecutive misses", func(t *testing.T) {
		dec, cal, sink := calibrated(t, CutTrigger, DecoderOptions{StrictSequence: true})
		for i := 0; i < 11; i++ {
			test.That(t, sink.Faulted(faults.WarnHallSpeedSequence), test.ShouldBeFalse)
			s := far
			if i%2 == 1 {
				s = released
			}
			_, err := dec.Decode(s, cal, false)
			test.That(t, err, test.ShouldBeNil)
		}
		test.That(t, dec.State().MissCount, test.ShouldEqual, 11)
		test.That(t, sink.Faulted(faults.WarnHallSpeedSequence), test.ShouldBeTrue)
	})

	t.Run("strict resets on an adjacent index", func(t *testing.T) {
		dec, cal, _ := calibrated(t, CutTrigger, DecoderOptions{StrictSequence: true})
		_, err := dec.Decode(far, cal, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dec.State().MissCount, test.ShouldEqual, 1)
		_, err = dec.Decode(far, cal, false)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, dec.State().MissCount, test.ShouldEqual, 0)
	})
}

func TestDecoderReset(t *testing.T) {
	dec, cal, _ := calibrated(t, CutTrigger, DecoderOptions{})
	dec.state.Polarity = PolarityInverted
	_, err := dec.Decode(released, cal, false)
	test.That(t, err, test.ShouldBeNil)

	dec.Reset()
	state := dec.State()
	test.That(t, state.Polarity, test.ShouldEqual, PolarityInverted)
	test.That(t, state.RunningMin, test.ShouldResemble, [NumSensors]uint16{unseenMin, unseenMin, unseenMin, unseenMin})
	test.That(t, state.RunningMax, test.ShouldResemble, [NumSensors]uint16{})
}
