package proc

import (
	"fmt"
	"strings"
)

// transferRegister moves length bytes between cooked register reg and the
// buffers in and out at bufOffset. When in is not nil the register is read
// into in, when out is not nil out is written to the register; with both
// the read happens first. On big endian targets values narrower than the
// register are right aligned in it.
func (a *Arch) transferRegister(regs RegisterReadWriter, reg uint64, length int, endian Endianness, in, out []byte, bufOffset int) error {
	if reg < a.NumRegs() {
		return &UnsupportedRegisterError{Regnum: reg}
	}
	raw := reg - a.NumRegs()
	size := a.RegSize(raw)
	if size == 0 {
		return &InvalidRegisterError{Regnum: raw}
	}
	if length < 0 || length > size {
		return fmt.Errorf("transfer of %d bytes does not fit register %d (%d bytes)", length, raw, size)
	}

	regOffset := 0
	if endian == BigEndian {
		regOffset = size - length
	}

	if a.xferLog.IsDebug() {
		a.xferLog.Debugf("xfer $%d, reg offset %d, buf offset %d, length %d%s", reg, regOffset, bufOffset, length, hexField(" out ", out, bufOffset, length))
	}

	var tmp [maxRegisterSize]byte
	buf := tmp[:size]

	if in != nil {
		if err := regs.ReadRegister(raw, buf); err != nil {
			return err
		}
		copy(in[bufOffset:bufOffset+length], buf[regOffset:])
	}
	if out != nil {
		if in == nil {
			if err := regs.ReadRegister(raw, buf); err != nil {
				return err
			}
		}
		copy(buf[regOffset:regOffset+length], out[bufOffset:])
		if err := regs.WriteRegister(raw, buf); err != nil {
			return err
		}
	}

	if in != nil && a.xferLog.IsDebug() {
		a.xferLog.Debugf("xfer $%d%s", reg, hexField(" in ", in, bufOffset, length))
	}
	return nil
}

func hexField(label string, buf []byte, off, length int) string {
	if buf == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(label)
	for _, c := range buf[off : off+length] {
		fmt.Fprintf(&b, "%02x", c)
	}
	return b.String()
}
