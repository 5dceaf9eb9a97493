// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
)

// Client declares the register operations of a Modbus master regardless of
// the underlying transport stream. All calls block until the slave responds
// or the handler's timeout elapses; no call is ever retried internally.
type Client interface {
	// ReadInputRegisters reads from 1 to 125 contiguous input registers in
	// a remote device and returns input registers.
	ReadInputRegisters(address, quantity uint16) (results []byte, err error)
	// ReadHoldingRegisters reads the contents of a contiguous block of
	// holding registers in a remote device and returns register value.
	ReadHoldingRegisters(address, quantity uint16) (results []byte, err error)
	// WriteSingleRegister writes a single holding register in a remote
	// device and returns register value.
	WriteSingleRegister(address, value uint16) (results []byte, err error)
}

// ClientHandler is the interface that groups the Packager and Transporter methods.
type ClientHandler interface {
	Packager
	Transporter
	Connector
}

type client struct {
	packager    Packager
	transporter Transporter
}

// NewClient creates a new modbus client with given backend handler.
func NewClient(handler ClientHandler) Client {
	return &client{packager: handler, transporter: handler}
}

// NewClient2 creates a new modbus client with given backend packager and transporter.
func NewClient2(packager Packager, transporter Transporter) Client {
	return &client{packager: packager, transporter: transporter}
}

// Request:
//
//	Function code         : 1 byte (0x04)
//	Starting address      : 2 bytes
//	Quantity of registers : 2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x04)
//	Byte count            : 1 byte
//	Input registers       : Nx2 bytes
func (mb *client) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	return mb.readRegisters(FuncCodeReadInputRegisters, address, quantity)
}

// Request:
//
//	Function code         : 1 byte (0x03)
//	Starting address      : 2 bytes
//	Quantity of registers : 2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x03)
//	Byte count            : 1 byte
//	Register value        : Nx2 bytes
func (mb *client) ReadHoldingRegisters(address, quantity uint16) ([]byte, error) {
	return mb.readRegisters(FuncCodeReadHoldingRegisters, address, quantity)
}

func (mb *client) readRegisters(functionCode byte, address, quantity uint16) ([]byte, error) {
	if quantity < 1 || quantity > 125 {
		return nil, fmt.Errorf("modbus: quantity '%v' must be between '%v' and '%v',", quantity, 1, 125)
	}
	request := ProtocolDataUnit{
		FunctionCode: functionCode,
		Data:         dataBlock(address, quantity),
	}
	response, err := mb.send(&request)
	if err != nil {
		return nil, err
	}
	count := int(response.Data[0])
	length := len(response.Data) - 1
	if count != length || count != int(quantity)*2 {
		return nil, fmt.Errorf("%w: response data size '%v' does not match count '%v' for quantity '%v'",
			ErrMalformedResponse, length, count, quantity)
	}
	return response.Data[1:], nil
}

// Request:
//
//	Function code         : 1 byte (0x06)
//	Register address      : 2 bytes
//	Register value        : 2 bytes
//
// Response:
//
//	Function code         : 1 byte (0x06)
//	Register address      : 2 bytes
//	Register value        : 2 bytes
//
// The response echoes the request; an echo that differs from what was sent
// means the write cannot be trusted and is reported as ErrMalformedResponse.
func (mb *client) WriteSingleRegister(address, value uint16) ([]byte, error) {
	request := ProtocolDataUnit{
		FunctionCode: FuncCodeWriteSingleRegister,
		Data:         dataBlock(address, value),
	}
	response, err := mb.send(&request)
	if err != nil {
		return nil, err
	}
	// Fixed response length
	if len(response.Data) != 4 {
		return nil, fmt.Errorf("%w: response data size '%v' does not match expected '%v'",
			ErrMalformedResponse, len(response.Data), 4)
	}
	respValue := binary.BigEndian.Uint16(response.Data)
	if address != respValue {
		return nil, fmt.Errorf("%w: response address '%v' does not match request '%v'",
			ErrMalformedResponse, respValue, address)
	}
	results := response.Data[2:]
	respValue = binary.BigEndian.Uint16(results)
	if value != respValue {
		return nil, fmt.Errorf("%w: response value '%v' does not match request '%v'",
			ErrMalformedResponse, respValue, value)
	}
	return results, nil
}

// Helpers

// send sends request and checks possible exception in the response.
func (mb *client) send(request *ProtocolDataUnit) (*ProtocolDataUnit, error) {
	aduRequest, err := mb.packager.Encode(request)
	if err != nil {
		return nil, err
	}
	aduResponse, err := mb.transporter.Send(aduRequest)
	if err != nil {
		return nil, err
	}
	if err := mb.packager.Verify(aduRequest, aduResponse); err != nil {
		return nil, err
	}
	response, err := mb.packager.Decode(aduResponse)
	if err != nil {
		return nil, err
	}
	// A slave exception echoes the function code with the high bit set. Any
	// other mismatch is not an exception, just a response we cannot trust.
	if response.FunctionCode != request.FunctionCode {
		if response.FunctionCode&exceptionBit != 0 {
			return nil, responseError(response)
		}
		return nil, fmt.Errorf("%w: response function code '%v' does not match request '%v'",
			ErrMalformedResponse, response.FunctionCode, request.FunctionCode)
	}
	if len(response.Data) == 0 {
		// Empty response
		return nil, fmt.Errorf("%w: response data is empty", ErrMalformedResponse)
	}
	return response, nil
}

// dataBlock creates a sequence of uint16 data.
func dataBlock(value ...uint16) []byte {
	data := make([]byte, 2*len(value))
	for i, v := range value {
		binary.BigEndian.PutUint16(data[i*2:], v)
	}
	return data
}

func responseError(response *ProtocolDataUnit) error {
	mbError := &Error{FunctionCode: response.FunctionCode}
	if len(response.Data) > 0 {
		mbError.ExceptionCode = response.Data[0]
	}
	return mbError
}
