package hall

import (
	"fmt"

	"github.com/pkg/errors"

	"go.viam.com/cutterdrive/faults"
)

// ErrNotReady is returned while the link only delivers the all-zero sentinel, or when a decode
// is attempted without a calibration. Callers retry on the next cycle.
var ErrNotReady = errors.New("hall sample not ready")

// CalibrationError is returned when a sample cannot be used as a released-trigger baseline.
type CalibrationError struct {
	Reason string
	// Fault is the code raised for this failure, zero when none was raised.
	Fault faults.Code
}

func (e *CalibrationError) Error() string {
	return fmt.Sprintf("hall calibration rejected: %s", e.Reason)
}

// Calibration is the per-attach baseline used by the Decoder.
type Calibration struct {
	// Floor and Ceiling are the smallest and largest in-range readings. All sensors share the
	// same floor.
	Floor, Ceiling uint16
	// Baseline is the calibration sample after polarity correction.
	Baseline  [NumSensors]uint16
	ZeroIndex int

	PackedForward uint32
	PackedReverse uint32
	Spacing       uint32

	// Mask holds the sensors flagged as out of range or open at calibration time.
	Mask Mask
}

// Min returns the baseline of sensor i.
func (c *Calibration) Min(i int) uint16 {
	return c.Floor
}

// Max returns the calibration ceiling of sensor i.
func (c *Calibration) Max(i int) uint16 {
	return c.Ceiling
}

// rangeMask flags every sensor outside [LowLimit, HighLimit] and raises the matching warnings.
func rangeMask(s Sample, sink faults.Sink) Mask {
	var mask Mask
	for i, h := range s.Hall {
		if h > HighLimit {
			mask |= 1 << uint(i)
			sink.SetFault(faults.WarnHallSpeedHigh(i))
		}
		if h < LowLimit {
			mask |= 1 << uint(i)
			sink.SetFault(faults.WarnHallSpeedLow(i))
		}
	}
	return mask
}

// Calibrate builds a Calibration from a released-trigger sample. The sample must already be
// polarity corrected. In trigger mode the smallest reading must come from sensor 0.
func Calibrate(s Sample, mode CutType, sink faults.Sink) (*Calibration, error) {
	if s.IsZero() {
		return nil, ErrNotReady
	}

	cal := &Calibration{Baseline: s.Hall}
	cal.Mask = rangeMask(s, sink)

	const unset = -1
	floor, ceiling := unset, unset
	for i, h := range s.Hall {
		if cal.Mask.Has(i) {
			continue
		}
		if floor == unset || int(h) < floor {
			floor = int(h)
			cal.ZeroIndex = i
		}
		if int(h) > ceiling {
			ceiling = int(h)
		}
	}
	if floor == unset {
		return nil, &CalibrationError{Reason: "every sensor is out of range"}
	}

	if mode == CutTrigger && cal.ZeroIndex != 0 {
		sink.SetFault(faults.FaultHallInit)
		return nil, &CalibrationError{
			Reason: fmt.Sprintf("trigger not released, lowest reading on sensor %d", cal.ZeroIndex),
			Fault:  faults.FaultHallInit,
		}
	}

	cal.Floor, cal.Ceiling = uint16(floor), uint16(ceiling)
	if ceiling-floor < RangeFloor {
		sink.SetFault(faults.WarnHallSpeedRange)
	}

	for i, h := range s.Hall {
		if absInt(int(h)-openCenter) < openNoise && absInt(cal.ZeroIndex-i) < 2 {
			sink.SetFault(faults.WarnHallSpeedLow(i))
			cal.Mask |= 1 << uint(i)
		}
	}

	var delta [NumSensors]uint32
	for i, h := range s.Hall {
		if int(h) > floor {
			delta[i] = uint32(int(h) - floor)
		}
	}
	cal.PackedForward = Pack(delta, OrderForward)
	cal.PackedReverse = Pack(delta, OrderReverse)
	if cal.PackedReverse <= cal.PackedForward {
		return nil, &CalibrationError{Reason: "no travel between forward and reverse extents"}
	}
	cal.Spacing = (cal.PackedReverse - cal.PackedForward) / NumSpeedSteps
	if cal.Spacing == 0 {
		return nil, &CalibrationError{Reason: "zero step spacing"}
	}
	return cal, nil
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
