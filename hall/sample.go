// Package hall turns the four hand-piece hall sensor readings into a calibrated throttle level.
//
// A Calibration is taken once per attach with the trigger released. Every control cycle a
// Decoder packs the per-sensor deltas into 7 bit fields of a single integer, removes the
// calibration baseline and divides by the calibrated step spacing. When one or two sensors read
// out of range the Decoder falls back to comparing the remaining good sensors.
package hall

import (
	"fmt"

	"github.com/pkg/errors"
)

// NumSensors is the number of hall sensors in a hand-piece.
const NumSensors = 4

// NumSpeedSteps is the full-travel throttle level.
const NumSpeedSteps = 128

const (
	// HighLimit is the largest in-range reading.
	HighLimit = 296
	// LowLimit is the smallest in-range reading.
	LowLimit = 73
	// RangeFloor is the smallest acceptable calibration spread.
	RangeFloor = 116

	openCenter = 255
	openNoise  = 20

	polarityThreshold = 300
	polarityMirror    = 512
)

// Sample is one raw reading from the hand-piece link.
type Sample struct {
	Hall [NumSensors]uint16
	// VoltageMonitor holds the 1.5V and 2.5V reference readings, in that order.
	VoltageMonitor [2]uint16
	TempRaw        uint16
}

// IsZero reports whether s is the all-zero "link not ready" sentinel.
func (s Sample) IsZero() bool {
	return s == Sample{}
}

// TemperatureC converts the raw temperature word, T = R*125/256 - 50.
func (s Sample) TemperatureC() int16 {
	return int16((int32(s.TempRaw)*125 - 12800) >> 8)
}

// CutType selects how the trigger is read.
type CutType int

const (
	// CutTrigger is the proportional hand trigger.
	CutTrigger CutType = iota
	// CutFootPedal is a binary foot pedal; any decode is full speed.
	CutFootPedal
)

func (c CutType) String() string {
	switch c {
	case CutTrigger:
		return "trigger"
	case CutFootPedal:
		return "foot_pedal"
	}
	return fmt.Sprintf("CutType(%d)", int(c))
}

// CutTypeFromString parses "trigger" or "foot_pedal".
func CutTypeFromString(s string) (CutType, error) {
	switch s {
	case "trigger", "":
		return CutTrigger, nil
	case "foot_pedal", "footpedal":
		return CutFootPedal, nil
	}
	return CutTrigger, errors.Errorf("unknown cut type %q", s)
}

// Polarity is the magnet orientation of the attached hand-piece.
type Polarity int

const (
	// PolarityNormal readings are used as is.
	PolarityNormal Polarity = iota
	// PolarityInverted readings are mirrored around 512 counts.
	PolarityInverted
)

func (p Polarity) String() string {
	if p == PolarityInverted {
		return "inverted"
	}
	return "normal"
}

// DetectPolarity picks the polarity from a released-trigger sample. Any reading above 300
// counts means the magnet is mounted the other way around.
func DetectPolarity(s Sample) Polarity {
	for _, h := range s.Hall {
		if h > polarityThreshold {
			return PolarityInverted
		}
	}
	return PolarityNormal
}

// Apply returns s with its hall readings corrected for p.
func (p Polarity) Apply(s Sample) Sample {
	if p != PolarityInverted {
		return s
	}
	for i, h := range s.Hall {
		if h > polarityMirror {
			h = polarityMirror
		}
		s.Hall[i] = polarityMirror - h
	}
	return s
}

// Mask has bit i set when sensor i is out of range this cycle.
type Mask uint8

// Has reports whether sensor i is flagged.
func (m Mask) Has(i int) bool {
	return m&(1<<uint(i)) != 0
}

// Count is the number of flagged sensors.
func (m Mask) Count() int {
	n := 0
	for i := 0; i < NumSensors; i++ {
		if m.Has(i) {
			n++
		}
	}
	return n
}
