package cpa1110

// Snapshot holds every field decoded from a single input-register poll.
// It is created fresh per poll, carries no logic and no memory of the past.
type Snapshot struct {
	OperatingState    OperatingState
	CompressorRunning bool
	Warnings          Faults
	Errors            Faults

	CoolantInTemperature  float32
	CoolantOutTemperature float32
	OilTemperature        float32
	HeliumTemperature     float32

	LowPressure          float32
	LowPressureAverage   float32
	HighPressure         float32
	HighPressureAverage  float32
	DeltaPressureAverage float32

	MotorCurrent     float32
	HoursOfOperation float32

	PressureUnit    PressureUnit
	TemperatureUnit TemperatureUnit

	PanelSerialNumber uint16
	ModelMajor        uint8
	ModelMinor        uint8
	SoftwareRev       uint16
}

// newSnapshot assembles a Snapshot from a fully decoded register block.
// The schema guarantees every named field is present.
func newSnapshot(values map[string]Value) *Snapshot {
	return &Snapshot{
		OperatingState:    operatingState(values[OperatingStateField].Uint),
		CompressorRunning: values[CompressorRunningField].Uint != 0,
		Warnings:          Faults(packWords(values[WarningStateField].Words)),
		Errors:            Faults(packWords(values[AlarmStateField].Words)),

		CoolantInTemperature:  values[CoolantInTempField].Float,
		CoolantOutTemperature: values[CoolantOutTempField].Float,
		OilTemperature:        values[OilTempField].Float,
		HeliumTemperature:     values[HeliumTempField].Float,

		LowPressure:          values[LowPressureField].Float,
		LowPressureAverage:   values[LowPressureAvgField].Float,
		HighPressure:         values[HighPressureField].Float,
		HighPressureAverage:  values[HighPressureAvgField].Float,
		DeltaPressureAverage: values[DeltaPressureAvgField].Float,

		MotorCurrent:     values[MotorCurrentField].Float,
		HoursOfOperation: values[HoursOfOperationField].Float,

		PressureUnit:    pressureUnit(values[PressureScaleField].Uint),
		TemperatureUnit: temperatureUnit(values[TemperatureScaleField].Uint),

		PanelSerialNumber: values[PanelSerialField].Uint,
		ModelMajor:        uint8(values[ModelField].Words[0] >> 8),
		ModelMinor:        uint8(values[ModelField].Words[0] & 0xFF),
		SoftwareRev:       values[SoftwareRevField].Uint,
	}
}
