package proc

import (
	"debug/dwarf"
	"encoding/binary"
	"fmt"

	"github.com/rvdbg/rvframe/pkg/dwarf/op"
	"github.com/rvdbg/rvframe/pkg/dwarf/regnum"
	"github.com/rvdbg/rvframe/pkg/logflags"
)

// ebreak instruction: 0x00100073
const riscvBreakInstruction uint32 = 0x00100073

const (
	riscvInstLen = 4

	// DefaultPrologueScanLimit is the maximum number of bytes examined by
	// a single prologue scan.
	DefaultPrologueScanLimit = 200
	// DefaultSkipPrologueLimit is the window used by SkipPrologue when
	// debug information does not bound the prologue.
	DefaultSkipPrologueLimit = 100

	maxRegisterSize = 16
)

// RISCVConfig configures a RISC-V architecture instance.
type RISCVConfig struct {
	ABI ABI
	// BytesPerWord is the machine word size, the ABI register size is used
	// when zero.
	BytesPerWord int
	Endian       Endianness

	PrologueScanLimit int
	SkipPrologueLimit int

	Log logflags.Flags
}

// Arch is a RISC-V architecture instance (RV32, RV64 or RV128).
type Arch struct {
	Name string

	abi          ABI
	bytesPerWord int
	endian       Endianness

	// registerSize is provisional until registerSizeValid is set.
	registerSize      int
	registerSizeValid bool

	prologueScanLimit uint64
	skipPrologueLimit uint64

	prologueLog logflags.Logger
	frameLog    logflags.Logger
	retvalLog   logflags.Logger
	xferLog     logflags.Logger
}

var _ Architecture = (*Arch)(nil)

// RISCVArch returns an initialized RISC-V Arch.
func RISCVArch(cfg RISCVConfig) (*Arch, error) {
	if cfg.ABI.RegSize() == 0 {
		return nil, fmt.Errorf("unsupported integer register width in ABI %#x", uint32(cfg.ABI))
	}
	if cfg.BytesPerWord == 0 {
		cfg.BytesPerWord = cfg.ABI.RegSize()
	}
	switch cfg.BytesPerWord {
	case 4, 8, 16:
	default:
		return nil, fmt.Errorf("unsupported word size %d", cfg.BytesPerWord)
	}
	if cfg.PrologueScanLimit <= 0 {
		cfg.PrologueScanLimit = DefaultPrologueScanLimit
	}
	if cfg.SkipPrologueLimit <= 0 {
		cfg.SkipPrologueLimit = DefaultSkipPrologueLimit
	}
	return &Arch{
		Name:              cfg.ABI.String(),
		abi:               cfg.ABI,
		bytesPerWord:      cfg.BytesPerWord,
		endian:            cfg.Endian,
		prologueScanLimit: uint64(cfg.PrologueScanLimit),
		skipPrologueLimit: uint64(cfg.SkipPrologueLimit),
		prologueLog:       cfg.Log.PrologueLogger(),
		frameLog:          cfg.Log.FrameLogger(),
		retvalLog:         cfg.Log.RetValLogger(),
		xferLog:           cfg.Log.XferLogger(),
	}, nil
}

// ABI returns the ABI flag word.
func (a *Arch) ABI() ABI { return a.abi }

// Endian returns the target byte order.
func (a *Arch) Endian() Endianness { return a.endian }

// ByteOrder returns the byte order used to decode target data.
func (a *Arch) ByteOrder() binary.ByteOrder { return a.endian.ByteOrder() }

// FixRegisterSize sets the integer register width once it is known, for
// example from the ELF class of the executable.
func (a *Arch) FixRegisterSize(size int) error {
	if a.registerSizeValid {
		if size == a.registerSize {
			return nil
		}
		return fmt.Errorf("register size already set to %d", a.registerSize)
	}
	switch size {
	case 4, 8, 16:
	default:
		return fmt.Errorf("unsupported register size %d", size)
	}
	a.registerSize = size
	a.registerSizeValid = true
	return nil
}

// IsaRegSize returns the width of the integer registers of the hardware.
func (a *Arch) IsaRegSize() int {
	if a.registerSizeValid {
		return a.registerSize
	}
	return a.bytesPerWord
}

// AbiRegSize returns the width of the integer registers as seen by the
// calling convention.
func (a *Arch) AbiRegSize() int {
	return a.abi.RegSize()
}

// PtrSize returns the size of a pointer.
func (a *Arch) PtrSize() int {
	return a.IsaRegSize()
}

// NumRegs returns the number of raw registers. Cooked register numbers
// start at NumRegs.
func (a *Arch) NumRegs() uint64 {
	return regnum.RISCVNumRegs()
}

// RegSize returns the width in bytes of raw register regnum, 0 if it does
// not exist.
func (a *Arch) RegSize(reg uint64) int {
	switch {
	case reg >= a.NumRegs():
		return 0
	case regnum.RISCVIsFloat(reg):
		if flen := a.abi.FLen(); flen > 0 {
			return flen
		}
		return a.IsaRegSize()
	default:
		return a.IsaRegSize()
	}
}

// RegisterName returns the calling convention name of register reg.
func (a *Arch) RegisterName(reg uint64) (string, error) {
	if reg >= a.NumRegs() {
		return "", &InvalidRegisterError{Regnum: reg}
	}
	return regnum.RISCVToABIName(reg), nil
}

// RegisterNumber returns the number of the register called name, either
// its architectural name or its calling convention alias.
func (a *Arch) RegisterNumber(name string) (uint64, error) {
	reg, ok := regnum.RISCVNameToRegnum[name]
	if !ok {
		return 0, &InvalidRegisterError{Name: name}
	}
	return reg, nil
}

// RegisterType returns the type of raw register reg.
func (a *Arch) RegisterType(reg uint64) (dwarf.Type, error) {
	size := a.RegSize(reg)
	if size == 0 {
		return nil, &InvalidRegisterError{Regnum: reg}
	}
	if regnum.RISCVIsFloat(reg) {
		name := "double"
		switch size {
		case 4:
			name = "float"
		case 16:
			name = "long double"
		}
		return &dwarf.FloatType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{ByteSize: int64(size), Name: name}}}, nil
	}
	name := fmt.Sprintf("int%d", size*8)
	if reg == regnum.RISCV_PC {
		return &dwarf.UintType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{ByteSize: int64(size), Name: "uint" + name[3:]}}}, nil
	}
	return &dwarf.IntType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{ByteSize: int64(size), Name: name}}}, nil
}

// RegisterGroup is a set of registers printed together.
type RegisterGroup uint8

const (
	GeneralRegisters RegisterGroup = iota
	FloatRegisters
	AllRegisters
)

// InRegisterGroup reports whether register reg belongs to group g.
func (a *Arch) InRegisterGroup(reg uint64, g RegisterGroup) bool {
	if reg >= a.NumRegs() {
		return false
	}
	switch g {
	case GeneralRegisters:
		return !regnum.RISCVIsFloat(reg)
	case FloatRegisters:
		return regnum.RISCVIsFloat(reg)
	case AllRegisters:
		return true
	}
	return false
}

// BreakpointInstruction returns the ebreak instruction in target byte order.
func (a *Arch) BreakpointInstruction() []byte {
	buf := make([]byte, riscvInstLen)
	a.ByteOrder().PutUint32(buf, riscvBreakInstruction)
	return buf
}

// BreakpointSize returns the breakpoint instruction size.
func (a *Arch) BreakpointSize() int {
	return riscvInstLen
}

// FrameAlign aligns addr down to the stack alignment.
func (a *Arch) FrameAlign(addr uint64) uint64 {
	return addr &^ 15
}

// DummyID returns the identity of a frame created by the debugger, (sp, pc).
func (a *Arch) DummyID(regs RegisterReadWriter) (FrameID, error) {
	sp, err := a.readRegisterUint(regs, regnum.RISCV_SP)
	if err != nil {
		return FrameID{}, err
	}
	pc, err := a.readRegisterUint(regs, regnum.RISCV_PC)
	if err != nil {
		return FrameID{}, err
	}
	return FrameID{StackAddr: sp, CodeAddr: pc}, nil
}

// ReadPC returns the program counter.
func (a *Arch) ReadPC(regs RegisterReadWriter) (uint64, error) {
	return a.readRegisterUint(regs, regnum.RISCV_PC)
}

// WritePC sets the program counter.
func (a *Arch) WritePC(regs RegisterReadWriter, pc uint64) error {
	return a.writeRegisterUint(regs, regnum.RISCV_PC, pc)
}

// readRegisterUint returns the low 64 bits of raw register reg.
func (a *Arch) readRegisterUint(regs RegisterReadWriter, reg uint64) (uint64, error) {
	size := a.RegSize(reg)
	if size == 0 {
		return 0, &InvalidRegisterError{Regnum: reg}
	}
	var tmp [maxRegisterSize]byte
	buf := tmp[:size]
	if err := regs.ReadRegister(reg, buf); err != nil {
		return 0, fmt.Errorf("could not read %s: %w", regnum.RISCVToABIName(reg), err)
	}
	return op.DwarfRegisterFromBytes(a.ByteOrder(), buf).Uint64Val, nil
}

func (a *Arch) writeRegisterUint(regs RegisterReadWriter, reg uint64, v uint64) error {
	size := a.RegSize(reg)
	if size == 0 {
		return &InvalidRegisterError{Regnum: reg}
	}
	r := op.DwarfRegisterFromUint64(v)
	r.FillBytes(a.ByteOrder(), size)
	if err := regs.WriteRegister(reg, r.Bytes); err != nil {
		return fmt.Errorf("could not write %s: %w", regnum.RISCVToABIName(reg), err)
	}
	return nil
}

// NewDwarfRegisters returns an empty register set laid out for a.
func (a *Arch) NewDwarfRegisters() *op.DwarfRegisters {
	return op.NewDwarfRegisters(make([]*op.DwarfRegister, a.NumRegs()), a.ByteOrder(), regnum.RISCV_PC, regnum.RISCV_SP)
}

// LoadRegisters copies the general purpose registers of regs into a new
// register set. Floating point and control registers are loaded on first
// access.
func (a *Arch) LoadRegisters(regs RegisterReadWriter) (*op.DwarfRegisters, error) {
	dregs := a.NewDwarfRegisters()
	load := func(reg uint64) error {
		var tmp [maxRegisterSize]byte
		buf := tmp[:a.RegSize(reg)]
		if err := regs.ReadRegister(reg, buf); err != nil {
			return fmt.Errorf("could not read %s: %w", regnum.RISCVToABIName(reg), err)
		}
		dregs.AddReg(reg, op.DwarfRegisterFromBytes(a.ByteOrder(), buf))
		return nil
	}
	for reg := uint64(regnum.RISCV_X0); reg <= regnum.RISCV_PC; reg++ {
		if err := load(reg); err != nil {
			return nil, err
		}
	}
	dregs.SetLoadMoreCallback(func() {
		for reg := uint64(regnum.RISCV_F0); reg < a.NumRegs(); reg++ {
			// registers the target does not provide stay undefined
			if err := load(reg); err != nil {
				a.frameLog.Debugf("%v", err)
			}
		}
	})
	return dregs, nil
}
