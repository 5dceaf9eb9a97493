package cpa1110

import (
	"fmt"
	"strings"
)

// OperatingState is the compressor state machine value reported at input
// register 0.
type OperatingState uint16

const (
	StateIdling             OperatingState = 0
	StateStarting           OperatingState = 2
	StateRunning            OperatingState = 3
	StateStopping           OperatingState = 5
	StateErrorLockout       OperatingState = 6
	StateError              OperatingState = 7
	StateHeliumCoolDown     OperatingState = 8
	StatePowerRelatedError  OperatingState = 9
	StateRecoveredFromError OperatingState = 15

	// StateUnknown is reported for any value outside the documented set.
	StateUnknown OperatingState = 0xFFFF
)

func (s OperatingState) String() string {
	switch s {
	case StateIdling:
		return "idling"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateErrorLockout:
		return "error lockout"
	case StateError:
		return "error"
	case StateHeliumCoolDown:
		return "helium cool down"
	case StatePowerRelatedError:
		return "power related error"
	case StateRecoveredFromError:
		return "recovered from error"
	}
	return "unknown"
}

// operatingState maps a register word onto the documented set, falling back
// to StateUnknown rather than inventing a state.
func operatingState(w uint16) OperatingState {
	switch s := OperatingState(w); s {
	case StateIdling, StateStarting, StateRunning, StateStopping,
		StateErrorLockout, StateError, StateHeliumCoolDown,
		StatePowerRelatedError, StateRecoveredFromError:
		return s
	}
	return StateUnknown
}

// PressureUnit is the panel's configured pressure scale.
type PressureUnit uint16

const (
	PSI PressureUnit = 0
	Bar PressureUnit = 1
	KPa PressureUnit = 2

	PressureUnitUnknown PressureUnit = 0xFFFF
)

func (u PressureUnit) String() string {
	switch u {
	case PSI:
		return "psi"
	case Bar:
		return "bar"
	case KPa:
		return "kPa"
	}
	return "unknown"
}

func pressureUnit(w uint16) PressureUnit {
	switch u := PressureUnit(w); u {
	case PSI, Bar, KPa:
		return u
	}
	return PressureUnitUnknown
}

// TemperatureUnit is the panel's configured temperature scale.
type TemperatureUnit uint16

const (
	Fahrenheit TemperatureUnit = 0
	Celsius    TemperatureUnit = 1
	Kelvin     TemperatureUnit = 2

	TemperatureUnitUnknown TemperatureUnit = 0xFFFF
)

func (u TemperatureUnit) String() string {
	switch u {
	case Fahrenheit:
		return "F"
	case Celsius:
		return "C"
	case Kelvin:
		return "K"
	}
	return "unknown"
}

func temperatureUnit(w uint16) TemperatureUnit {
	switch u := TemperatureUnit(w); u {
	case Fahrenheit, Celsius, Kelvin:
		return u
	}
	return TemperatureUnitUnknown
}

// Faults is the 32-bit bitfield layout shared by the warning and alarm
// registers. Zero means no condition is active.
type Faults uint32

const (
	FaultCoolantInHigh      Faults = 1 << 0
	FaultCoolantInLow       Faults = 1 << 1
	FaultCoolantOutHigh     Faults = 1 << 2
	FaultCoolantOutLow      Faults = 1 << 3
	FaultOilHigh            Faults = 1 << 4
	FaultOilLow             Faults = 1 << 5
	FaultHeliumHigh         Faults = 1 << 6
	FaultHeliumLow          Faults = 1 << 7
	FaultLowPressureHigh    Faults = 1 << 8
	FaultLowPressureLow     Faults = 1 << 9
	FaultHighPressureHigh   Faults = 1 << 10
	FaultHighPressureLow    Faults = 1 << 11
	FaultDeltaPressureHigh  Faults = 1 << 12
	FaultDeltaPressureLow   Faults = 1 << 13
	FaultStaticPressHigh    Faults = 1 << 17
	FaultStaticPressLow     Faults = 1 << 18
	FaultColdHeadMotorStall Faults = 1 << 19
)

var faultNames = []struct {
	bit  Faults
	name string
}{
	{FaultCoolantInHigh, "coolant in high"},
	{FaultCoolantInLow, "coolant in low"},
	{FaultCoolantOutHigh, "coolant out high"},
	{FaultCoolantOutLow, "coolant out low"},
	{FaultOilHigh, "oil high"},
	{FaultOilLow, "oil low"},
	{FaultHeliumHigh, "helium high"},
	{FaultHeliumLow, "helium low"},
	{FaultLowPressureHigh, "low pressure high"},
	{FaultLowPressureLow, "low pressure low"},
	{FaultHighPressureHigh, "high pressure high"},
	{FaultHighPressureLow, "high pressure low"},
	{FaultDeltaPressureHigh, "delta pressure high"},
	{FaultDeltaPressureLow, "delta pressure low"},
	{FaultStaticPressHigh, "static pressure high"},
	{FaultStaticPressLow, "static pressure low"},
	{FaultColdHeadMotorStall, "cold head motor stall"},
}

// Has reports whether every bit in mask is set.
func (f Faults) Has(mask Faults) bool {
	return f&mask == mask
}

func (f Faults) String() string {
	if f == 0 {
		return "none"
	}
	var active []string
	for _, fn := range faultNames {
		if f.Has(fn.bit) {
			active = append(active, fn.name)
		}
	}
	if rest := f &^ knownFaults(); rest != 0 {
		active = append(active, fmt.Sprintf("unknown(%#x)", uint32(rest)))
	}
	return strings.Join(active, ", ")
}

func knownFaults() Faults {
	var all Faults
	for _, fn := range faultNames {
		all |= fn.bit
	}
	return all
}
