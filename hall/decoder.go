package hall

import (
	"go.viam.com/cutterdrive/faults"
)

const (
	// sequenceMissLimit is how many skipped sensor indexes raise the sequence warning.
	sequenceMissLimit = 10

	runningZeroDelta = 20
	degradedDelta    = 30
	degradedFull     = 200

	unseenMin = 999
)

// ThrottleState is carried by a Decoder across cycles.
type ThrottleState struct {
	// Level is the last decoded throttle level.
	Level int
	// Trigger is the last normal path decode before any foot pedal override.
	Trigger   int
	PrevIndex int
	MissCount int
	Polarity  Polarity

	RunningMin [NumSensors]uint16
	RunningMax [NumSensors]uint16
}

// DecoderOptions tune the Decoder.
type DecoderOptions struct {
	// StrictSequence makes MissCount a true consecutive-miss counter that only resets on a cycle
	// without a skipped index. When false the counter resets on every cycle it stays below the
	// limit.
	StrictSequence bool
}

// Result is the outcome of one decode.
type Result struct {
	Level int
	// Trigger is the un-gated level, equal to Level except in foot pedal mode.
	Trigger int
	// Index is the sensor with the smallest reading, -1 on the degraded path.
	Index int
	Mask  Mask
	// Degraded is set when one or two sensors were out of range.
	Degraded bool
	// Fatal is set when three or more sensors were out of range. The motor must be stopped and
	// Level is the previous level.
	Fatal bool
}

// A Decoder converts samples into throttle levels. It is not safe for concurrent use.
type Decoder struct {
	mode  CutType
	sink  faults.Sink
	opts  DecoderOptions
	state ThrottleState
}

// NewDecoder returns a Decoder with reset state.
func NewDecoder(mode CutType, sink faults.Sink, opts DecoderOptions) *Decoder {
	d := &Decoder{mode: mode, sink: sink, opts: opts}
	d.Reset()
	return d
}

// State returns a copy of the carried state.
func (d *Decoder) State() ThrottleState {
	return d.state
}

// Reset returns the state to its attach defaults. Polarity is kept.
func (d *Decoder) Reset() {
	polarity := d.state.Polarity
	d.state = ThrottleState{Polarity: polarity}
	for i := range d.state.RunningMin {
		d.state.RunningMin[i] = unseenMin
	}
}

// Polarity returns the detected polarity.
func (d *Decoder) Polarity() Polarity {
	return d.state.Polarity
}

// ObservePolarity detects the polarity from a raw released-trigger sample.
func (d *Decoder) ObservePolarity(raw Sample) {
	d.state.Polarity = DetectPolarity(raw)
}

// Decode converts a polarity corrected sample into a throttle level in [0, NumSpeedSteps].
// running is whether the motor is currently turning.
func (d *Decoder) Decode(s Sample, cal *Calibration, running bool) (Result, error) {
	if cal == nil {
		return Result{Level: d.state.Level, Trigger: d.state.Trigger, Index: -1}, ErrNotReady
	}

	mask := rangeMask(s, d.sink)
	if mask != 0 {
		return d.decodeDegraded(s, mask), nil
	}
	return d.decodeNormal(s, cal, running), nil
}

func (d *Decoder) decodeDegraded(s Sample, mask Mask) Result {
	res := Result{Level: d.state.Level, Trigger: d.state.Trigger, Index: -1, Mask: mask, Degraded: true}
	if mask.Count() > NumSensors-2 {
		res.Fatal = true
		return res
	}

	zero, full := -1, -1
	for i := 0; i < NumSensors; i++ {
		if mask.Has(i) {
			continue
		}
		if zero == -1 {
			zero = i
		}
		full = i
	}
	hZero, hFull := int(s.Hall[zero]), int(s.Hall[full])

	level := d.state.Level
	if zero == 0 && full == 1 {
		if hFull-hZero > degradedDelta {
			level = 0
		}
		if hZero > degradedFull {
			level = NumSpeedSteps
		}
	} else {
		if hFull-hZero > degradedDelta {
			level = 0
		}
		if hZero-hFull > degradedDelta {
			level = NumSpeedSteps
		}
	}

	d.state.Level = level
	res.Level = level
	return res
}

func (d *Decoder) decodeNormal(s Sample, cal *Calibration, running bool) Result {
	index := 0
	var delta [NumSensors]uint32
	for i, h := range s.Hall {
		if h < s.Hall[index] {
			index = i
		}
		if h < d.state.RunningMin[i] {
			d.state.RunningMin[i] = h
		}
		if h > d.state.RunningMax[i] {
			d.state.RunningMax[i] = h
		}
		if h > d.state.RunningMin[i] {
			delta[i] = uint32(h - d.state.RunningMin[i])
		}
	}

	offset := int64(Pack(delta, OrderForward)) - int64(cal.PackedForward)
	level := int(offset / int64(cal.Spacing))

	if running {
		if int(s.Hall[1])-int(s.Hall[0]) > runningZeroDelta && index == 0 {
			level = 0
		}
	} else if index == 0 {
		level = 0
	}
	if index == NumSensors-1 {
		level = NumSpeedSteps
	}
	level = clampLevel(level)

	trigger := level
	if d.mode == CutFootPedal {
		level = NumSpeedSteps
	}

	d.checkSequence(index)

	d.state.Level = level
	d.state.Trigger = trigger
	return Result{Level: level, Trigger: trigger, Index: index}
}

func (d *Decoder) checkSequence(index int) {
	skip := d.state.PrevIndex - index
	missed := skip > 1 || skip < -1
	if missed {
		d.state.MissCount++
	} else if d.opts.StrictSequence {
		d.state.MissCount = 0
	}

	if d.state.MissCount > sequenceMissLimit {
		d.sink.SetFault(faults.WarnHallSpeedSequence)
	} else if !d.opts.StrictSequence {
		d.state.MissCount = 0
	}
	d.state.PrevIndex = index
}

func clampLevel(level int) int {
	if level < 0 {
		return 0
	}
	if level > NumSpeedSteps {
		return NumSpeedSteps
	}
	return level
}
