package proc

import (
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/rvdbg/rvframe/pkg/dwarf/regnum"
)

// UnsupportedRegisterError is returned when a raw register number is used
// where a cooked one is required. It signals a bug in the caller.
type UnsupportedRegisterError struct {
	Regnum uint64
}

func (err *UnsupportedRegisterError) Error() string {
	return fmt.Sprintf("register %d is not a cooked register", err.Regnum)
}

// InvalidRegisterError is returned for registers that do not exist on the
// target.
type InvalidRegisterError struct {
	Name   string
	Regnum uint64
}

func (err *InvalidRegisterError) Error() string {
	if err.Name != "" {
		return fmt.Sprintf("invalid register %q", err.Name)
	}
	return fmt.Sprintf("invalid register %d", err.Regnum)
}

// valueBytes returns the part of raw, the full contents of a register,
// that holds a value of length bytes. On big endian targets narrower
// values are right aligned.
func (a *Arch) valueBytes(raw []byte, length int) []byte {
	off := 0
	if a.endian == BigEndian {
		off = len(raw) - length
	}
	return raw[off : off+length]
}

// Register is the value of one register, as printed by the regs command.
type Register struct {
	Regnum uint64
	Name   string
	Raw    []byte
}

// ReadRegisters returns the registers of group g.
func (a *Arch) ReadRegisters(regs RegisterReadWriter, g RegisterGroup) ([]Register, error) {
	var r []Register
	for reg := uint64(0); reg < a.NumRegs(); reg++ {
		if !a.InRegisterGroup(reg, g) {
			continue
		}
		buf := make([]byte, a.RegSize(reg))
		if err := regs.ReadRegister(reg, buf); err != nil {
			return nil, fmt.Errorf("could not read %s: %w", regnum.RISCVToABIName(reg), err)
		}
		r = append(r, Register{Regnum: reg, Name: regnum.RISCVToABIName(reg), Raw: buf})
	}
	return r, nil
}

// FormatRegister formats the contents of register reg, raw must be as wide
// as the register. Integer registers are printed in hexadecimal and
// decimal, floating point registers in hexadecimal and as single and
// double precision values.
func (a *Arch) FormatRegister(reg uint64, raw []byte) string {
	if len(raw) != a.RegSize(reg) {
		return "[Invalid]"
	}
	bo := a.ByteOrder()
	if regnum.RISCVIsFloat(reg) {
		var b strings.Builder
		b.WriteString(hexBytes(raw, bo))
		if len(raw) >= 4 {
			f := math.Float32frombits(bo.Uint32(a.valueBytes(raw, 4)))
			fmt.Fprintf(&b, "\tsingle: %g", f)
		}
		if len(raw) >= 8 {
			d := math.Float64frombits(bo.Uint64(a.valueBytes(raw, 8)))
			fmt.Fprintf(&b, "\tdouble: %.17g", d)
		}
		return b.String()
	}
	hex := hexBytes(raw, bo)
	if len(raw) > 8 {
		return hex
	}
	var v int64
	switch len(raw) {
	case 4:
		v = int64(int32(bo.Uint32(raw)))
	case 8:
		v = int64(bo.Uint64(raw))
	}
	return fmt.Sprintf("%s\t%d", hex, v)
}

// hexBytes prints raw, most significant byte first.
func hexBytes(raw []byte, bo binary.ByteOrder) string {
	var b strings.Builder
	b.WriteString("0x")
	if bo == binary.BigEndian {
		for _, c := range raw {
			fmt.Fprintf(&b, "%02x", c)
		}
	} else {
		for i := len(raw) - 1; i >= 0; i-- {
			fmt.Fprintf(&b, "%02x", raw[i])
		}
	}
	return b.String()
}
