package regnum

import "fmt"

// Register numbering of the RISC-V register file: the 32 integer
// registers, the program counter, the 32 floating point registers and a
// tail of control and status registers.
// Aliases follow the standard calling convention names, see
// https://github.com/riscv-non-isa/riscv-elf-psabi-doc/blob/master/riscv-cc.adoc

const (
	// Integer Registers
	RISCV_X0 = 0
	// Return Address
	RISCV_RA = 1
	// Stack Pointer
	RISCV_SP = 2
	// Global Pointer
	RISCV_GP = 3
	RISCV_TP = 4
	RISCV_T0 = 5
	RISCV_T1 = 6
	RISCV_T2 = 7
	RISCV_S0 = 8
	// Frame Pointer
	RISCV_FP = RISCV_S0
	RISCV_S1 = 9
	// Integer return values
	RISCV_A0  = 10
	RISCV_A1  = 11
	RISCV_A7  = 17
	RISCV_S2  = 18
	RISCV_S11 = 27
	RISCV_T3  = 28
	RISCV_X31 = 31

	RISCV_PC = 32

	// Floating-point Registers
	RISCV_F0 = 33
	// Floating point return values
	RISCV_FA0 = RISCV_F0 + 10
	RISCV_FA1 = RISCV_F0 + 11
	RISCV_F31 = 64

	// Control and status registers
	RISCV_FCSR    = 65
	RISCV_FFLAGS  = 66
	RISCV_FRM     = 67
	RISCV_INSTRET = 90

	_RISCV_MaxRegNum = RISCV_INSTRET
)

// DWARF register numbers, see riscv-dwarf.adoc in the psABI.
const (
	RISCV_DWARF_X0 = 0
	RISCV_DWARF_F0 = 32
	RISCV_DWARF_PC = 65
)

var riscvCSRNames = []string{
	"fcsr", "fflags", "frm", "sup0", "sup1", "epc", "badvaddr", "ptbr",
	"asid", "count", "compare", "evec", "cause", "status", "hartid",
	"impl", "fatc", "send_ipi", "clear_ipi", "stats", "reset", "tohost",
	"fromhost", "cycle", "time", "instret",
}

var riscvIntABINames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"fp", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var riscvFloatABINames = [32]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

// RISCVToName returns the architectural name (x5, f10, pc, fcsr...) of
// register num.
func RISCVToName(num uint64) string {
	switch {
	case num <= RISCV_X31:
		return fmt.Sprintf("x%d", num)
	case num == RISCV_PC:
		return "pc"
	case num >= RISCV_F0 && num <= RISCV_F31:
		return fmt.Sprintf("f%d", num-RISCV_F0)
	case num >= RISCV_FCSR && num <= _RISCV_MaxRegNum:
		return riscvCSRNames[num-RISCV_FCSR]
	default:
		return fmt.Sprintf("unknown%d", num)
	}
}

// RISCVToABIName returns the calling convention alias of register num, or
// its architectural name if it has none.
func RISCVToABIName(num uint64) string {
	switch {
	case num <= RISCV_X31:
		return riscvIntABINames[num]
	case num >= RISCV_F0 && num <= RISCV_F31:
		return riscvFloatABINames[num-RISCV_F0]
	default:
		return RISCVToName(num)
	}
}

// RISCVNumRegs returns the size of the raw register file.
func RISCVNumRegs() uint64 {
	return _RISCV_MaxRegNum + 1
}

// RISCVIsFloat returns true if num is a floating point data register.
func RISCVIsFloat(num uint64) bool {
	return num >= RISCV_F0 && num <= RISCV_F31
}

// RISCVFromDwarf converts a DWARF register number into a register number
// of the register file.
func RISCVFromDwarf(dwarfReg uint64) (uint64, bool) {
	switch {
	case dwarfReg < RISCV_DWARF_F0:
		return dwarfReg, true
	case dwarfReg < RISCV_DWARF_F0+32:
		return RISCV_F0 + dwarfReg - RISCV_DWARF_F0, true
	case dwarfReg == RISCV_DWARF_PC:
		return RISCV_PC, true
	}
	return 0, false
}

// RISCVNameToRegnum maps both architectural names and calling convention
// aliases to register numbers.
var RISCVNameToRegnum = func() map[string]uint64 {
	r := make(map[string]uint64)
	for i := uint64(0); i <= _RISCV_MaxRegNum; i++ {
		r[RISCVToName(i)] = i
		r[RISCVToABIName(i)] = i
	}
	r["s0"] = RISCV_S0
	return r
}()
