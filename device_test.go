package cpa1110

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ograsdijk/cpa1110/modbus"
)

type write struct {
	addr  uint16
	value uint16
}

// fakeClient serves reads from a fixed register array and echoes writes,
// the way the panel does.
type fakeClient struct {
	registers [33]uint16
	readCalls int
	writes    []write
	err       error
}

func (c *fakeClient) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	c.readCalls++
	if c.err != nil {
		return nil, c.err
	}
	data := make([]byte, 2*quantity)
	for i := uint16(0); i < quantity; i++ {
		binary.BigEndian.PutUint16(data[2*i:], c.registers[address+i])
	}
	return data, nil
}

func (c *fakeClient) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return c.ReadInputRegisters(address, quantity)
}

func (c *fakeClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.writes = append(c.writes, write{addr: address, value: value})
	return []byte{byte(value >> 8), byte(value)}, nil
}

func (c *fakeClient) setFloat(addr uint16, f float32) {
	bits := math.Float32bits(f)
	c.registers[addr] = uint16(bits >> 16)
	c.registers[addr+1] = uint16(bits)
}

func TestDeviceSnapshot(t *testing.T) {
	fake := &fakeClient{}
	fake.registers[0] = uint16(StateRunning)
	fake.registers[1] = 1
	fake.registers[3] = uint16(FaultCoolantInHigh)
	fake.registers[5] = uint16(FaultOilLow)
	fake.setFloat(6, 12.5)
	fake.setFloat(8, 8.0)
	fake.setFloat(14, 95.25)
	fake.setFloat(26, 4223.5)
	fake.registers[28] = uint16(PSI)
	fake.registers[29] = uint16(Fahrenheit)
	fake.registers[30] = 4711
	fake.registers[31] = 0x0B01
	fake.registers[32] = 105

	dev := New(fake, nil)
	snap, err := dev.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, 1, fake.readCalls, "snapshot is one transaction")
	assert.Equal(t, StateRunning, snap.OperatingState)
	assert.True(t, snap.CompressorRunning)
	assert.Equal(t, FaultCoolantInHigh, snap.Warnings)
	assert.Equal(t, FaultOilLow, snap.Errors)
	assert.Equal(t, float32(12.5), snap.CoolantInTemperature)
	assert.Equal(t, float32(8.0), snap.CoolantOutTemperature)
	assert.Equal(t, float32(95.25), snap.LowPressure)
	assert.Equal(t, float32(4223.5), snap.HoursOfOperation)
	assert.Equal(t, PSI, snap.PressureUnit)
	assert.Equal(t, Fahrenheit, snap.TemperatureUnit)
	assert.Equal(t, uint16(4711), snap.PanelSerialNumber)
	assert.Equal(t, uint8(11), snap.ModelMajor)
	assert.Equal(t, uint8(1), snap.ModelMinor)
	assert.Equal(t, uint16(105), snap.SoftwareRev)
}

func TestDeviceAccessorsReadFresh(t *testing.T) {
	fake := &fakeClient{}
	fake.registers[0] = uint16(StateIdling)
	dev := New(fake, nil)

	state, err := dev.OperatingState()
	require.NoError(t, err)
	assert.Equal(t, StateIdling, state)

	// No caching: the next call must see the new register contents.
	fake.registers[0] = uint16(StateRunning)
	state, err = dev.OperatingState()
	require.NoError(t, err)
	assert.Equal(t, StateRunning, state)
	assert.Equal(t, 2, fake.readCalls)
}

func TestDeviceFloatAccessor(t *testing.T) {
	fake := &fakeClient{}
	fake.setFloat(6, 50.0)
	dev := New(fake, nil)

	temp, err := dev.CoolantInTemperature()
	require.NoError(t, err)
	assert.Equal(t, float32(50.0), temp)
}

func TestDeviceWarningsAccessor(t *testing.T) {
	fake := &fakeClient{}
	fake.registers[3] = uint16(FaultHeliumHigh | FaultLowPressureLow)
	dev := New(fake, nil)

	warnings, err := dev.Warnings()
	require.NoError(t, err)
	assert.True(t, warnings.Has(FaultHeliumHigh))
	assert.True(t, warnings.Has(FaultLowPressureLow))
	assert.False(t, warnings.Has(FaultOilLow))
}

func TestDeviceCompressorControl(t *testing.T) {
	fake := &fakeClient{}
	dev := New(fake, nil)

	require.NoError(t, dev.EnableCompressor())
	require.NoError(t, dev.DisableCompressor())

	assert.Equal(t, []write{
		{addr: 1, value: 0x0001},
		{addr: 1, value: 0x00FF},
	}, fake.writes)
}

func TestDeviceErrorPropagation(t *testing.T) {
	fake := &fakeClient{err: errors.New("link down")}
	dev := New(fake, nil)

	_, err := dev.Snapshot()
	assert.Error(t, err)
	_, err = dev.OperatingState()
	assert.Error(t, err)
	assert.Error(t, dev.EnableCompressor())
}

// mbapServer answers read-input-registers and write-single-register requests
// from a fixed register array, like the panel would.
func mbapServer(t *testing.T, ln net.Listener, registers []uint16) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	for {
		header := make([]byte, 7)
		if _, err := io.ReadFull(conn, header); err != nil {
			return
		}
		length := binary.BigEndian.Uint16(header[4:])
		pdu := make([]byte, length-1)
		if _, err := io.ReadFull(conn, pdu); err != nil {
			return
		}

		var respPDU []byte
		switch pdu[0] {
		case modbus.FuncCodeReadInputRegisters:
			addr := binary.BigEndian.Uint16(pdu[1:])
			quantity := binary.BigEndian.Uint16(pdu[3:])
			respPDU = make([]byte, 2+2*quantity)
			respPDU[0] = pdu[0]
			respPDU[1] = byte(2 * quantity)
			for i := uint16(0); i < quantity; i++ {
				binary.BigEndian.PutUint16(respPDU[2+2*i:], registers[addr+i])
			}
		case modbus.FuncCodeWriteSingleRegister:
			respPDU = pdu
		default:
			t.Errorf("unexpected function code %d", pdu[0])
			return
		}

		resp := make([]byte, 7+len(respPDU))
		copy(resp, header[:4])
		binary.BigEndian.PutUint16(resp[4:], uint16(1+len(respPDU)))
		resp[6] = header[6]
		copy(resp[7:], respPDU)
		if _, err := conn.Write(resp); err != nil {
			return
		}
	}
}

func TestDeviceOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	registers := make([]uint16, 33)
	registers[0] = uint16(StateRunning)
	registers[1] = 1
	bits := math.Float32bits(50.0)
	registers[6] = uint16(bits >> 16)
	registers[7] = uint16(bits)
	registers[29] = uint16(Celsius)

	go mbapServer(t, ln, registers)

	dev := NewTCP(ln.Addr().String(), WithTimeout(time.Second))
	require.NoError(t, dev.Connect())
	defer dev.Close()

	snap, err := dev.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, StateRunning, snap.OperatingState)
	assert.True(t, snap.CompressorRunning)
	assert.Equal(t, float32(50.0), snap.CoolantInTemperature)
	assert.Equal(t, Celsius, snap.TemperatureUnit)

	temp, err := dev.CoolantInTemperature()
	require.NoError(t, err)
	assert.Equal(t, float32(50.0), temp)

	require.NoError(t, dev.EnableCompressor())
	require.NoError(t, dev.DisableCompressor())
}
