package modbus

// crc accumulates a CRC-16 (Modbus) checksum: polynomial 0xA001,
// initial value 0xFFFF, transmitted least-significant byte first.
type crc struct {
	sum uint16
}

func (c *crc) reset() *crc {
	c.sum = 0xFFFF
	return c
}

func (c *crc) pushBytes(bs []byte) *crc {
	for _, b := range bs {
		c.sum ^= uint16(b)
		for i := 0; i < 8; i++ {
			if c.sum&1 != 0 {
				c.sum = (c.sum >> 1) ^ 0xA001
			} else {
				c.sum >>= 1
			}
		}
	}
	return c
}

func (c *crc) value() uint16 {
	return c.sum
}
