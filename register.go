/*
Package cpa1110 reads and controls a Cryomech CPA1110 helium compressor over
Modbus RTU or TCP. The register layout is fixed configuration data: every
field the panel exposes is described by one Schema entry, and decoding is
driven entirely by that table.
*/
package cpa1110

import (
	"encoding/binary"
	"fmt"
)

// Table selects the Modbus register namespace a field lives in. The
// namespace is determined by the function code used to access it, not by
// the numeric address.
type Table int

const (
	// Input registers are read-only (function code 0x04).
	Input Table = iota
	// Holding registers are read/write (function codes 0x03 and 0x06).
	Holding
)

// Kind is the decoded representation of a field.
type Kind int

const (
	// Uint16 is one register interpreted as unsigned.
	Uint16 Kind = iota
	// Int16 is one register interpreted as two's-complement signed.
	Int16
	// Float32 is two consecutive registers combined high word first and
	// reinterpreted as IEEE-754 single precision.
	Float32
	// Words passes the raw register sequence through; interpretation
	// (packed bytes, bit flags) is the caller's concern.
	Words
)

// Field describes one named quantity in the register map.
type Field struct {
	Name  string
	Table Table
	Addr  uint16
	Kind  Kind
	Span  uint16
}

// Schema is an address-ordered register map.
type Schema []Field

// Field names of the CPA1110 input-register map.
const (
	OperatingStateField    = "operating_state"
	CompressorRunningField = "compressor_running"
	WarningStateField      = "warning_state"
	AlarmStateField        = "alarm_state"
	CoolantInTempField     = "coolant_in_temperature"
	CoolantOutTempField    = "coolant_out_temperature"
	OilTempField           = "oil_temperature"
	HeliumTempField        = "helium_temperature"
	LowPressureField       = "low_pressure"
	LowPressureAvgField    = "low_pressure_average"
	HighPressureField      = "high_pressure"
	HighPressureAvgField   = "high_pressure_average"
	DeltaPressureAvgField  = "delta_pressure_average"
	MotorCurrentField      = "motor_current"
	HoursOfOperationField  = "hours_of_operation"
	PressureScaleField     = "pressure_scale"
	TemperatureScaleField  = "temperature_scale"
	PanelSerialField       = "panel_serial_number"
	ModelField             = "model"
	SoftwareRevField       = "software_rev"
)

// Registers is the CPA1110 input-register map, addresses zero-based within
// the input table (documentation numbers them from 30,001). The layout is
// protocol-locked and must not be configurable.
var Registers = Schema{
	{Name: OperatingStateField, Table: Input, Addr: 0, Kind: Uint16, Span: 1},
	{Name: CompressorRunningField, Table: Input, Addr: 1, Kind: Uint16, Span: 1},
	{Name: WarningStateField, Table: Input, Addr: 2, Kind: Words, Span: 2},
	{Name: AlarmStateField, Table: Input, Addr: 4, Kind: Words, Span: 2},
	{Name: CoolantInTempField, Table: Input, Addr: 6, Kind: Float32, Span: 2},
	{Name: CoolantOutTempField, Table: Input, Addr: 8, Kind: Float32, Span: 2},
	{Name: OilTempField, Table: Input, Addr: 10, Kind: Float32, Span: 2},
	{Name: HeliumTempField, Table: Input, Addr: 12, Kind: Float32, Span: 2},
	{Name: LowPressureField, Table: Input, Addr: 14, Kind: Float32, Span: 2},
	{Name: LowPressureAvgField, Table: Input, Addr: 16, Kind: Float32, Span: 2},
	{Name: HighPressureField, Table: Input, Addr: 18, Kind: Float32, Span: 2},
	{Name: HighPressureAvgField, Table: Input, Addr: 20, Kind: Float32, Span: 2},
	{Name: DeltaPressureAvgField, Table: Input, Addr: 22, Kind: Float32, Span: 2},
	{Name: MotorCurrentField, Table: Input, Addr: 24, Kind: Float32, Span: 2},
	{Name: HoursOfOperationField, Table: Input, Addr: 26, Kind: Float32, Span: 2},
	{Name: PressureScaleField, Table: Input, Addr: 28, Kind: Uint16, Span: 1},
	{Name: TemperatureScaleField, Table: Input, Addr: 29, Kind: Uint16, Span: 1},
	{Name: PanelSerialField, Table: Input, Addr: 30, Kind: Uint16, Span: 1},
	{Name: ModelField, Table: Input, Addr: 31, Kind: Words, Span: 1},
	{Name: SoftwareRevField, Table: Input, Addr: 32, Kind: Uint16, Span: 1},
}

// CompressorEnable is the single writable holding register. Writing
// EnableValue starts the compressor, DisableValue stops it (function
// code 0x06; the panel's documented on/off convention).
var CompressorEnable = Field{Name: "compressor_enable", Table: Holding, Addr: 1, Kind: Uint16, Span: 1}

const (
	// EnableValue written to CompressorEnable starts the compressor.
	EnableValue uint16 = 0x0001
	// DisableValue written to CompressorEnable stops the compressor.
	DisableValue uint16 = 0x00FF
)

// Find returns the schema entry with the given name.
func (s Schema) Find(name string) (Field, bool) {
	for _, f := range s {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Extent returns the first address covered by the schema and the register
// quantity needed to read every field in one request.
func (s Schema) Extent() (start, quantity uint16) {
	if len(s) == 0 {
		return 0, 0
	}
	start = s[0].Addr
	var end uint16
	for _, f := range s {
		if f.Addr < start {
			start = f.Addr
		}
		if last := f.Addr + f.Span; last > end {
			end = last
		}
	}
	return start, end - start
}

// Value is the decoded payload of one schema field, tagged by Kind. Only
// the member matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Uint  uint16
	Int   int16
	Float float32
	Words []uint16
}

func (v Value) String() string {
	switch v.Kind {
	case Uint16:
		return fmt.Sprintf("%d", v.Uint)
	case Int16:
		return fmt.Sprintf("%d", v.Int)
	case Float32:
		return fmt.Sprintf("%g", v.Float)
	case Words:
		return fmt.Sprintf("% x", v.Words)
	}
	return "invalid"
}

// wordsFromBytes splits a big-endian register payload, as returned by the
// Modbus client, into 16-bit words.
func wordsFromBytes(data []byte) []uint16 {
	words := make([]uint16, len(data)/2)
	for i := range words {
		words[i] = binary.BigEndian.Uint16(data[2*i:])
	}
	return words
}
