package proc

import (
	"debug/dwarf"
)

// Architecture is implemented once per supported instruction set variant.
type Architecture interface {
	// RegisterName returns the name of raw register regnum.
	RegisterName(regnum uint64) (string, error)
	// RegisterType returns the type of raw register regnum.
	RegisterType(regnum uint64) (dwarf.Type, error)
	// SkipPrologue returns the first address at or after pc that is past
	// the prologue of the function containing pc.
	SkipPrologue(t Target, pc uint64) (uint64, error)
	// Unwinder returns the frame unwinder for target t.
	Unwinder(t Target) Unwinder
	// MarshalReturnValue moves a value of type typ between buf and the
	// return registers of t.
	MarshalReturnValue(t Target, typ dwarf.Type, dir Direction, buf []byte) (ReturnConvention, error)
	// BreakpointInstruction returns the software breakpoint encoding.
	BreakpointInstruction() []byte
}

// Target is the process (live or historical) being inspected.
type Target interface {
	Memory() MemoryReadWriter
	Registers() RegisterReadWriter
	Symbols() SymbolLookup
}

// RegisterReadWriter gives access to the raw register file of the current
// thread. Buffers are exactly as wide as the register.
type RegisterReadWriter interface {
	ReadRegister(regnum uint64, buf []byte) error
	WriteRegister(regnum uint64, buf []byte) error
}

// SymbolLookup maps addresses to functions.
type SymbolLookup interface {
	// FunctionAt returns the function containing pc, or nil.
	FunctionAt(pc uint64) *Function
}

// Function represents a function in the target program.
type Function struct {
	Name       string
	Entry, End uint64
	// PrologueEnd is the first address after the prologue as recorded by
	// debug information, 0 if unknown.
	PrologueEnd uint64
}

type target struct {
	mem  MemoryReadWriter
	regs RegisterReadWriter
	syms SymbolLookup
}

// NewTarget assembles a Target out of its access channels. syms can be nil.
func NewTarget(mem MemoryReadWriter, regs RegisterReadWriter, syms SymbolLookup) Target {
	if syms == nil {
		syms = noSymbols{}
	}
	return &target{mem: mem, regs: regs, syms: syms}
}

func (t *target) Memory() MemoryReadWriter      { return t.mem }
func (t *target) Registers() RegisterReadWriter { return t.regs }
func (t *target) Symbols() SymbolLookup         { return t.syms }

type noSymbols struct{}

func (noSymbols) FunctionAt(uint64) *Function { return nil }

func symbolsOf(t Target) SymbolLookup {
	if syms := t.Symbols(); syms != nil {
		return syms
	}
	return noSymbols{}
}
