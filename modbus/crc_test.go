package modbus

import "testing"

func TestCRC(t *testing.T) {
	var crc crc
	crc.reset().pushBytes([]byte{0x01, 0x04, 0x00, 0x06, 0x00, 0x02})

	if crc.value() != 0xCA91 {
		t.Fatalf("crc expected %#x, actual %#x", 0xCA91, crc.value())
	}
}

func TestCRCReset(t *testing.T) {
	var crc crc
	crc.reset().pushBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	crc.reset().pushBytes([]byte{0x01, 0x03, 0x01, 0x0A})

	if crc.value() != 0x4F70 {
		t.Fatalf("crc expected %#x, actual %#x", 0x4F70, crc.value())
	}
}
