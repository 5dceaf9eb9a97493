// Copyright 2014 Quoc-Viet Nguyen. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD license. See the LICENSE file for details.

package modbus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pduHandler is a transparent Packager plus a scripted Transporter: frames
// are the bare PDU with no transport framing, and every request is answered
// by the respond function.
type pduHandler struct {
	respond func(request []byte) []byte
	sent    [][]byte
}

func (h *pduHandler) SetSlave(byte) {}

func (h *pduHandler) Encode(pdu *ProtocolDataUnit) ([]byte, error) {
	return append([]byte{pdu.FunctionCode}, pdu.Data...), nil
}

func (h *pduHandler) Decode(adu []byte) (*ProtocolDataUnit, error) {
	return &ProtocolDataUnit{FunctionCode: adu[0], Data: adu[1:]}, nil
}

func (h *pduHandler) Verify([]byte, []byte) error { return nil }

func (h *pduHandler) Send(aduRequest []byte) ([]byte, error) {
	h.sent = append(h.sent, aduRequest)
	return h.respond(aduRequest), nil
}

func (h *pduHandler) Connect() error { return nil }
func (h *pduHandler) Close() error   { return nil }

func TestClientReadInputRegisters(t *testing.T) {
	handler := &pduHandler{
		respond: func(request []byte) []byte {
			return []byte{FuncCodeReadInputRegisters, 0x04, 0x42, 0x48, 0x00, 0x00}
		},
	}
	client := NewClient(handler)

	results, err := client.ReadInputRegisters(6, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42, 0x48, 0x00, 0x00}, results)
	require.Len(t, handler.sent, 1)
	assert.Equal(t, []byte{FuncCodeReadInputRegisters, 0x00, 0x06, 0x00, 0x02}, handler.sent[0])
}

func TestClientReadQuantityOutOfRange(t *testing.T) {
	client := NewClient(&pduHandler{})

	_, err := client.ReadInputRegisters(0, 0)
	assert.Error(t, err)
	_, err = client.ReadHoldingRegisters(0, 126)
	assert.Error(t, err)
}

func TestClientByteCountMismatch(t *testing.T) {
	handler := &pduHandler{
		respond: func(request []byte) []byte {
			// Byte count claims 4 but only 2 bytes follow.
			return []byte{FuncCodeReadInputRegisters, 0x04, 0x42, 0x48}
		},
	}
	client := NewClient(handler)

	_, err := client.ReadInputRegisters(6, 2)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClientByteCountQuantityMismatch(t *testing.T) {
	handler := &pduHandler{
		respond: func(request []byte) []byte {
			// Internally consistent, but one register short of the request.
			return []byte{FuncCodeReadInputRegisters, 0x02, 0x42, 0x48}
		},
	}
	client := NewClient(handler)

	_, err := client.ReadInputRegisters(6, 2)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClientSlaveException(t *testing.T) {
	handler := &pduHandler{
		respond: func(request []byte) []byte {
			return []byte{FuncCodeReadInputRegisters | 0x80, ExceptionCodeIllegalDataAddress}
		},
	}
	client := NewClient(handler)

	_, err := client.ReadInputRegisters(6, 2)
	var mbErr *Error
	require.True(t, errors.As(err, &mbErr), "expected *Error, got %v", err)
	assert.Equal(t, byte(ExceptionCodeIllegalDataAddress), mbErr.ExceptionCode)
	assert.Equal(t, byte(FuncCodeReadInputRegisters|0x80), mbErr.FunctionCode)
}

func TestClientFunctionCodeMismatch(t *testing.T) {
	handler := &pduHandler{
		respond: func(request []byte) []byte {
			// Wrong function code with the exception bit clear: this is a
			// garbled response, not a slave exception.
			return []byte{FuncCodeReadHoldingRegisters, 0x04, 0x42, 0x48, 0x00, 0x00}
		},
	}
	client := NewClient(handler)

	_, err := client.ReadInputRegisters(6, 2)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	var mbErr *Error
	assert.False(t, errors.As(err, &mbErr), "reported as slave exception: %v", err)
}

func TestClientWriteSingleRegister(t *testing.T) {
	handler := &pduHandler{
		respond: func(request []byte) []byte {
			// The write response echoes the request.
			echo := make([]byte, len(request))
			copy(echo, request)
			return echo
		},
	}
	client := NewClient(handler)

	results, err := client.WriteSingleRegister(1, 0x0001)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01}, results)
}

func TestClientWriteEchoMismatch(t *testing.T) {
	valueMismatch := &pduHandler{
		respond: func(request []byte) []byte {
			return []byte{FuncCodeWriteSingleRegister, 0x00, 0x01, 0x00, 0xFF}
		},
	}
	_, err := NewClient(valueMismatch).WriteSingleRegister(1, 0x0001)
	assert.ErrorIs(t, err, ErrMalformedResponse)

	addressMismatch := &pduHandler{
		respond: func(request []byte) []byte {
			return []byte{FuncCodeWriteSingleRegister, 0x00, 0x02, 0x00, 0x01}
		},
	}
	_, err = NewClient(addressMismatch).WriteSingleRegister(1, 0x0001)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestClientEmptyResponse(t *testing.T) {
	handler := &pduHandler{
		respond: func(request []byte) []byte {
			return []byte{FuncCodeReadInputRegisters}
		},
	}
	client := NewClient(handler)

	_, err := client.ReadInputRegisters(6, 2)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
