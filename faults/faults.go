// Package faults defines the fault and warning bits raised by the drive and the register that
// accumulates them.
package faults

import (
	"fmt"
	"math/bits"
	"strings"
)

// Code is a set of fault bits. The low 16 bits are faults, the high 16 bits are warnings.
type Code uint32

// Faults.
const (
	FaultEmergencyStop   Code = 0x00000001
	FaultVBusLow         Code = 0x00000002
	FaultVBusHigh        Code = 0x00000004
	FaultCurrentLow      Code = 0x00000008
	FaultCurrentHigh     Code = 0x00000010
	FaultWatchdog        Code = 0x00000020
	FaultTemperatureHigh Code = 0x00000040
	FaultIrrigationShort Code = 0x00000080
	FaultCurrentHighHW   Code = 0x00000100
	FaultSystemError     Code = 0x00000200
	FaultHPComm          Code = 0x00000400
	FaultHPHall          Code = 0x00000800
	FaultMotorShort      Code = 0x00001000
	FaultHallInit        Code = 0x00002000
	FaultCurrentOffset   Code = 0x00004000
	FaultHPA2D           Code = 0x00008000
)

// Warnings.
const (
	WarnHPVoltageRange    Code = 0x00040000
	WarnHallSpeedRange    Code = 0x00080000
	WarnHallSpeedSequence Code = 0x00100000
)

const (
	// AllFaults masks the fault half of a Code.
	AllFaults Code = 0x0000FFFF
	// AllWarnings masks the warning half of a Code.
	AllWarnings Code = 0xFFFF0000

	// NonClearable are the faults only a service reset may clear.
	NonClearable = FaultHPHall | FaultMotorShort | FaultIrrigationShort | FaultCurrentHighHW
)

// WarnHallSpeedHigh is raised when hall sensor i reads above the high limit.
func WarnHallSpeedHigh(i int) Code {
	return Code(1<<uint(i)) << 24
}

// WarnHallSpeedLow is raised when hall sensor i reads below the low limit or looks open.
func WarnHallSpeedLow(i int) Code {
	return Code(1<<uint(i)) << 28
}

// Class is how a code is allowed to clear.
type Class int

const (
	// Advisory codes never block operation.
	Advisory Class = iota
	// Retryable codes block a start until they clear.
	Retryable
	// NonClearableClass codes force an emergency stop and survive ClearFaults.
	NonClearableClass
)

func (c Class) String() string {
	switch c {
	case Advisory:
		return "advisory"
	case Retryable:
		return "retryable"
	case NonClearableClass:
		return "non-clearable"
	}
	return "unknown"
}

// ClassOf returns the most severe class of any bit in code.
func ClassOf(code Code) Class {
	switch {
	case code&NonClearable != 0:
		return NonClearableClass
	case code&AllFaults != 0:
		return Retryable
	default:
		return Advisory
	}
}

var names = map[Code]string{
	FaultEmergencyStop:    "emergency_stop",
	FaultVBusLow:          "vbus_low",
	FaultVBusHigh:         "vbus_high",
	FaultCurrentLow:       "current_low",
	FaultCurrentHigh:      "current_high",
	FaultWatchdog:         "watchdog",
	FaultTemperatureHigh:  "temperature_high",
	FaultIrrigationShort:  "irrigation_short",
	FaultCurrentHighHW:    "current_high_hw",
	FaultSystemError:      "system_error",
	FaultHPComm:           "hp_comm",
	FaultHPHall:           "hp_hall",
	FaultMotorShort:       "motor_short",
	FaultHallInit:         "hall_init",
	FaultCurrentOffset:    "current_offset",
	FaultHPA2D:            "hp_a2d",
	WarnHPVoltageRange:    "hp_voltage_range",
	WarnHallSpeedRange:    "hall_speed_range",
	WarnHallSpeedSequence: "hall_speed_sequence",
}

func init() {
	for i := 0; i < 4; i++ {
		names[WarnHallSpeedHigh(i)] = fmt.Sprintf("hall_speed_high_%d", i)
		names[WarnHallSpeedLow(i)] = fmt.Sprintf("hall_speed_low_%d", i)
	}
}

// String lists the names of the set bits, lowest first, joined by "|".
func (c Code) String() string {
	if c == 0 {
		return "none"
	}
	parts := make([]string, 0, bits.OnesCount32(uint32(c)))
	for rest := c; rest != 0; rest &= rest - 1 {
		bit := rest & -rest
		name, ok := names[bit]
		if !ok {
			name = fmt.Sprintf("0x%08x", uint32(bit))
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, "|")
}

// Sink accumulates fault and warning bits. SetFault must be idempotent.
type Sink interface {
	SetFault(code Code)
	ClearFault(code Code)
	// ClearFaults clears every clearable bit.
	ClearFaults()
	// Faulted reports whether any bit of mask is set.
	Faulted(mask Code) bool
}
