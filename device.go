package cpa1110

import (
	"fmt"
	"time"

	"github.com/ograsdijk/cpa1110/modbus"
)

// Factory communication settings of the CPA1110 panel.
const (
	DefaultSlaveID  = 16
	DefaultBaudRate = 9600
	DefaultTimeout  = 5 * time.Second
)

type config struct {
	slaveID byte
	timeout time.Duration
}

// Option adjusts the connection settings of a Device constructor.
type Option func(*config)

// WithSlaveID overrides the factory Modbus slave id (16).
func WithSlaveID(id byte) Option {
	return func(c *config) { c.slaveID = id }
}

// WithTimeout sets the per-transaction response timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// Device is a synchronous client for one CPA1110 compressor. Every accessor
// performs a fresh Modbus transaction; nothing is cached between calls.
// Transactions on one Device are serialized by the underlying connection,
// so a Device is safe for concurrent use, one request in flight at a time.
type Device struct {
	client modbus.Client
	conn   modbus.Connector
}

// New wraps an existing modbus client. Most callers want NewTCP or NewRTU.
// conn may be nil when the transport's lifetime is managed elsewhere.
func New(client modbus.Client, conn modbus.Connector) *Device {
	return &Device{client: client, conn: conn}
}

// NewTCP returns a Device speaking Modbus TCP to address ("host:502").
func NewTCP(address string, opts ...Option) *Device {
	cfg := newConfig(opts)
	handler := modbus.NewTCPClientHandler(address)
	handler.Timeout = cfg.timeout
	handler.SetSlave(cfg.slaveID)
	return New(modbus.NewClient(handler), handler)
}

// NewRTU returns a Device speaking Modbus RTU over the serial port at the
// given path. The panel is fixed at 9600 baud, 8 data bits, even parity,
// one stop bit.
func NewRTU(port string, opts ...Option) *Device {
	cfg := newConfig(opts)
	handler := modbus.NewRTUClientHandler(port)
	handler.BaudRate = DefaultBaudRate
	handler.DataBits = 8
	handler.Parity = "E"
	handler.StopBits = 1
	handler.Timeout = cfg.timeout
	handler.SetSlave(cfg.slaveID)
	return New(modbus.NewClient(handler), handler)
}

func newConfig(opts []Option) config {
	cfg := config{slaveID: DefaultSlaveID, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Connect opens the transport. Pair it with a deferred Close so the
// connection is released on every exit path:
//
//	if err := dev.Connect(); err != nil { ... }
//	defer dev.Close()
func (d *Device) Connect() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Connect()
}

// Close releases the transport.
func (d *Device) Close() error {
	if d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Snapshot reads the whole input-register block in one transaction and
// decodes it through the register map.
func (d *Device) Snapshot() (*Snapshot, error) {
	start, quantity := Registers.Extent()
	data, err := d.client.ReadInputRegisters(start, quantity)
	if err != nil {
		return nil, err
	}
	values, err := Registers.DecodeAll(start, wordsFromBytes(data))
	if err != nil {
		return nil, err
	}
	return newSnapshot(values), nil
}

// readField performs one read transaction covering exactly one schema field.
func (d *Device) readField(name string) (Value, error) {
	field, ok := Registers.Find(name)
	if !ok {
		return Value{}, fmt.Errorf("cpa1110: no field named '%s'", name)
	}
	data, err := d.client.ReadInputRegisters(field.Addr, field.Span)
	if err != nil {
		return Value{}, err
	}
	return Decode(field, wordsFromBytes(data))
}

func (d *Device) readFloat(name string) (float32, error) {
	v, err := d.readField(name)
	if err != nil {
		return 0, err
	}
	return v.Float, nil
}

func (d *Device) readFaults(name string) (Faults, error) {
	v, err := d.readField(name)
	if err != nil {
		return 0, err
	}
	return Faults(packWords(v.Words)), nil
}

// OperatingState reads the compressor state machine value.
func (d *Device) OperatingState() (OperatingState, error) {
	v, err := d.readField(OperatingStateField)
	if err != nil {
		return StateUnknown, err
	}
	return operatingState(v.Uint), nil
}

// CompressorRunning reads whether the compressor motor is energized.
func (d *Device) CompressorRunning() (bool, error) {
	v, err := d.readField(CompressorRunningField)
	if err != nil {
		return false, err
	}
	return v.Uint != 0, nil
}

// Warnings reads the warning bitfield.
func (d *Device) Warnings() (Faults, error) {
	return d.readFaults(WarningStateField)
}

// Errors reads the alarm bitfield. It shares the bit layout of Warnings.
func (d *Device) Errors() (Faults, error) {
	return d.readFaults(AlarmStateField)
}

// CoolantInTemperature reads the coolant inlet temperature in the panel's
// configured temperature unit.
func (d *Device) CoolantInTemperature() (float32, error) {
	return d.readFloat(CoolantInTempField)
}

// CoolantOutTemperature reads the coolant outlet temperature.
func (d *Device) CoolantOutTemperature() (float32, error) {
	return d.readFloat(CoolantOutTempField)
}

// OilTemperature reads the oil temperature.
func (d *Device) OilTemperature() (float32, error) {
	return d.readFloat(OilTempField)
}

// HeliumTemperature reads the helium temperature.
func (d *Device) HeliumTemperature() (float32, error) {
	return d.readFloat(HeliumTempField)
}

// LowPressure reads the low-side pressure in the panel's configured
// pressure unit.
func (d *Device) LowPressure() (float32, error) {
	return d.readFloat(LowPressureField)
}

// LowPressureAverage reads the averaged low-side pressure.
func (d *Device) LowPressureAverage() (float32, error) {
	return d.readFloat(LowPressureAvgField)
}

// HighPressure reads the high-side pressure.
func (d *Device) HighPressure() (float32, error) {
	return d.readFloat(HighPressureField)
}

// HighPressureAverage reads the averaged high-side pressure.
func (d *Device) HighPressureAverage() (float32, error) {
	return d.readFloat(HighPressureAvgField)
}

// DeltaPressureAverage reads the averaged pressure differential.
func (d *Device) DeltaPressureAverage() (float32, error) {
	return d.readFloat(DeltaPressureAvgField)
}

// MotorCurrent reads the compressor motor current in amperes.
func (d *Device) MotorCurrent() (float32, error) {
	return d.readFloat(MotorCurrentField)
}

// HoursOfOperation reads the accumulated run hours.
func (d *Device) HoursOfOperation() (float32, error) {
	return d.readFloat(HoursOfOperationField)
}

// PressureUnit reads the panel's configured pressure scale.
func (d *Device) PressureUnit() (PressureUnit, error) {
	v, err := d.readField(PressureScaleField)
	if err != nil {
		return PressureUnitUnknown, err
	}
	return pressureUnit(v.Uint), nil
}

// TemperatureUnit reads the panel's configured temperature scale.
func (d *Device) TemperatureUnit() (TemperatureUnit, error) {
	v, err := d.readField(TemperatureScaleField)
	if err != nil {
		return TemperatureUnitUnknown, err
	}
	return temperatureUnit(v.Uint), nil
}

// PanelSerialNumber reads the digital panel serial number.
func (d *Device) PanelSerialNumber() (uint16, error) {
	v, err := d.readField(PanelSerialField)
	if err != nil {
		return 0, err
	}
	return v.Uint, nil
}

// Model reads the model register and unpacks the major and minor numbers.
func (d *Device) Model() (major, minor uint8, err error) {
	v, err := d.readField(ModelField)
	if err != nil {
		return 0, 0, err
	}
	return uint8(v.Words[0] >> 8), uint8(v.Words[0] & 0xFF), nil
}

// SoftwareRev reads the panel software revision.
func (d *Device) SoftwareRev() (uint16, error) {
	v, err := d.readField(SoftwareRevField)
	if err != nil {
		return 0, err
	}
	return v.Uint, nil
}

// EnableCompressor starts the compressor. The write succeeds only when the
// slave echoes the register address and value exactly.
func (d *Device) EnableCompressor() error {
	_, err := d.client.WriteSingleRegister(CompressorEnable.Addr, EnableValue)
	return err
}

// DisableCompressor stops the compressor.
func (d *Device) DisableCompressor() error {
	_, err := d.client.WriteSingleRegister(CompressorEnable.Addr, DisableValue)
	return err
}
