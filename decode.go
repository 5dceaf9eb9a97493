package cpa1110

import (
	"fmt"
	"math"
)

// RangeError reports a register block too short for the schema entry being
// decoded. It is a configuration mismatch, never recoverable by retry.
type RangeError struct {
	Field string
	Need  int
	Have  int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("cpa1110: field '%s' needs %d registers, block has %d", e.Field, e.Need, e.Have)
}

// Decode interprets the registers backing one schema field. The word slice
// must hold exactly the field's span.
func Decode(field Field, words []uint16) (Value, error) {
	if len(words) != int(field.Span) {
		return Value{}, &RangeError{Field: field.Name, Need: int(field.Span), Have: len(words)}
	}
	switch field.Kind {
	case Uint16:
		return Value{Kind: Uint16, Uint: words[0]}, nil
	case Int16:
		return Value{Kind: Int16, Int: int16(words[0])}, nil
	case Float32:
		// High word first, the panel's register pair convention.
		// Independent of host byte order.
		bits := uint32(words[0])<<16 | uint32(words[1])
		return Value{Kind: Float32, Float: math.Float32frombits(bits)}, nil
	case Words:
		w := make([]uint16, len(words))
		copy(w, words)
		return Value{Kind: Words, Words: w}, nil
	}
	return Value{}, fmt.Errorf("cpa1110: field '%s' has unknown kind %d", field.Name, field.Kind)
}

// DecodeAll decodes every schema field out of one raw register block that
// starts at the given address. A block too short for even one field fails
// with *RangeError and returns no partially decoded data.
func (s Schema) DecodeAll(start uint16, words []uint16) (map[string]Value, error) {
	decoded := make(map[string]Value, len(s))
	for _, field := range s {
		offset := int(field.Addr) - int(start)
		if offset < 0 || offset+int(field.Span) > len(words) {
			return nil, &RangeError{Field: field.Name, Need: offset + int(field.Span), Have: len(words)}
		}
		value, err := Decode(field, words[offset:offset+int(field.Span)])
		if err != nil {
			return nil, err
		}
		decoded[field.Name] = value
	}
	return decoded, nil
}

// packWords combines two registers high word first into one 32-bit value.
// Warning and alarm bitfields use the same pair convention as floats.
func packWords(words []uint16) uint32 {
	var v uint32
	for _, w := range words {
		v = v<<16 | uint32(w)
	}
	return v
}
