package proc

import (
	"debug/dwarf"
	"fmt"

	"github.com/rvdbg/rvframe/pkg/dwarf/regnum"
)

// Direction of a return value transfer.
type Direction uint8

const (
	// ToMemory copies the return value from the registers into the buffer.
	ToMemory Direction = iota
	// ToRegisters copies the buffer into the return registers.
	ToRegisters
)

func (d Direction) String() string {
	if d == ToRegisters {
		return "to-registers"
	}
	return "to-memory"
}

// ReturnConvention says how a value is returned.
type ReturnConvention uint8

const (
	// RegisterConvention: the value is in the return registers.
	RegisterConvention ReturnConvention = iota
	// ABIReturnsAddress: the value is in memory, its address is in a0.
	ABIReturnsAddress
)

func (c ReturnConvention) String() string {
	if c == ABIReturnsAddress {
		return "address"
	}
	return "register"
}

// MarshalReturnValue moves a value of type typ between buf and the
// registers of t. Values larger than two registers are returned in memory
// at the address held by a0. Floating point values and structures of one
// or two floating point fields use fa0 and following registers when the
// ABI has an FPU, everything else uses a0 and following registers.
// Exactly typ.Size() bytes of buf are used.
func (a *Arch) MarshalReturnValue(t Target, typ dwarf.Type, dir Direction, buf []byte) (ReturnConvention, error) {
	typ = resolveTypedef(typ)
	size := int(typ.Size())
	if size < 0 {
		return 0, fmt.Errorf("type %s has unknown size", typ)
	}
	if len(buf) < size {
		return 0, fmt.Errorf("buffer too small for %s: %d < %d", typ, len(buf), size)
	}
	buf = buf[:size]
	regs := t.Registers()

	if size > 2*a.IsaRegSize() {
		addr, err := a.readRegisterUint(regs, regnum.RISCV_A0)
		if err != nil {
			return 0, err
		}
		a.retvalLog.Debugf("return %s (%d bytes) in memory at %#x", typ, size, addr)
		switch dir {
		case ToMemory:
			err = readMemory(t.Memory(), buf, addr)
		case ToRegisters:
			err = writeMemory(t.Memory(), addr, buf)
		}
		if err != nil {
			return 0, err
		}
		return ABIReturnsAddress, nil
	}

	reg := uint64(regnum.RISCV_A0)
	if a.abi.HasFPU() && isFloatReturn(typ) {
		reg = regnum.RISCV_FA0
	}
	a.retvalLog.Debugf("return %s (%d bytes) in $%s", typ, size, regnum.RISCVToABIName(reg))

	var in, out []byte
	switch dir {
	case ToMemory:
		in = buf
	case ToRegisters:
		out = buf
	}

	wordSize := a.AbiRegSize()
	for off := 0; off < size; reg++ {
		xfer := wordSize
		if regSize := a.RegSize(reg); regSize < xfer {
			xfer = regSize
		}
		if off+xfer > size {
			xfer = size - off
		}
		if err := a.transferRegister(regs, a.NumRegs()+reg, xfer, a.endian, in, out, off); err != nil {
			return 0, err
		}
		off += xfer
	}
	return RegisterConvention, nil
}

// isFloatReturn reports whether typ is a floating point scalar or a
// structure or union of one or two floating point fields.
func isFloatReturn(typ dwarf.Type) bool {
	switch typ := typ.(type) {
	case *dwarf.FloatType:
		return true
	case *dwarf.StructType:
		if typ.Kind != "struct" && typ.Kind != "union" {
			return false
		}
		if len(typ.Field) != 1 && len(typ.Field) != 2 {
			return false
		}
		for _, field := range typ.Field {
			if _, isfloat := resolveTypedef(field.Type).(*dwarf.FloatType); !isfloat {
				return false
			}
		}
		return true
	}
	return false
}

func resolveTypedef(typ dwarf.Type) dwarf.Type {
	for {
		switch tt := typ.(type) {
		case *dwarf.TypedefType:
			typ = tt.Type
		case *dwarf.QualType:
			typ = tt.Type
		default:
			return typ
		}
	}
}
