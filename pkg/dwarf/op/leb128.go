package op

import (
	"errors"
	"io"
)

// errTruncated is returned when an operand ends in the middle of a LEB128
// number (DWARF v4, section 7.6).
var errTruncated = errors.New("truncated LEB128 value")

// readUleb reads an unsigned LEB128 operand. Bits past the 64th are
// dropped.
func readUleb(r io.ByteReader) (uint64, error) {
	var v uint64
	for shift := uint(0); ; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return v, errTruncated
		}
		if shift < 64 {
			v |= uint64(b&0x7f) << shift
		}
		if b&0x80 == 0 {
			return v, nil
		}
	}
}

// readSleb reads a signed LEB128 operand.
func readSleb(r io.ByteReader) (int64, error) {
	var v int64
	shift := uint(0)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return v, errTruncated
		}
		if shift < 64 {
			v |= int64(b&0x7f) << shift
		}
		shift += 7
		if b&0x80 != 0 {
			continue
		}
		if shift < 64 && b&0x40 != 0 {
			// sign extend
			v |= -1 << shift
		}
		return v, nil
	}
}
