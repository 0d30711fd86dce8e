package proc

import (
	"github.com/rvdbg/rvframe/pkg/dwarf/op"
	"github.com/rvdbg/rvframe/pkg/dwarf/regnum"
)

// FrameID identifies a stack frame: the value of the stack pointer and the
// entry point of the function. CodeAddr is 0 if the function is unknown.
type FrameID struct {
	StackAddr uint64
	CodeAddr  uint64
}

// FrameCache is what the unwinder knows about one frame. It is computed
// the first time the frame is queried.
type FrameCache struct {
	ID       FrameID
	Function *Function
	// Base is the frame base, the value of the stack pointer in the
	// calling frame.
	Base     uint64
	FrameReg uint64
	Saved    SavedRegs
	// Prologue is nil when the function is unknown.
	Prologue *PrologueAnalysis
}

// UnwindFrame is a frame handle: the registers of the frame and the cache
// built for it by the unwinder.
type UnwindFrame struct {
	Regs  *op.DwarfRegisters
	cache *FrameCache

	// caller is set for frames that are not the innermost one, their pc
	// is a return address.
	caller bool
}

// NewUnwindFrame returns a handle for the frame with registers regs.
func NewUnwindFrame(regs *op.DwarfRegisters) *UnwindFrame {
	return &UnwindFrame{Regs: regs}
}

// Cache returns the frame cache, nil if the frame was never unwound.
func (frame *UnwindFrame) Cache() *FrameCache {
	return frame.cache
}

// Unwinder computes frame identities and the registers of calling frames.
type Unwinder interface {
	// FrameID returns the identity of frame.
	FrameID(frame *UnwindFrame) (FrameID, error)
	// PrevRegister returns where the caller's value of register reg is
	// and the value itself. The value is nil if it is not available.
	PrevRegister(frame *UnwindFrame, reg uint64) (SavedReg, *op.DwarfRegister, error)
}

// prologueUnwinder unwinds frames using prologue analysis.
type prologueUnwinder struct {
	a *Arch
	t Target
}

// Unwinder returns an unwinder for frames of t based on prologue analysis.
func (a *Arch) Unwinder(t Target) Unwinder {
	return &prologueUnwinder{a: a, t: t}
}

func (u *prologueUnwinder) frameCache(frame *UnwindFrame) (*FrameCache, error) {
	if frame.cache != nil {
		return frame.cache, nil
	}
	pc, sp := frame.Regs.PC(), frame.Regs.SP()
	lookup := pc
	if frame.caller && pc > 0 {
		// a call ending a function returns past its end
		lookup = pc - 1
	}
	c := &FrameCache{
		Function: symbolsOf(u.t).FunctionAt(lookup),
		Base:     sp,
		FrameReg: regnum.RISCV_SP,
		Saved:    make(SavedRegs),
	}
	if c.Function != nil {
		limit := pc
		if c.Function.PrologueEnd != 0 && c.Function.PrologueEnd < limit {
			limit = c.Function.PrologueEnd
		}
		if _, err := u.a.scanPrologue(u.t.Memory(), c.Function.Entry, limit, frame.Regs, c); err != nil {
			return nil, err
		}
		c.ID = FrameID{StackAddr: sp, CodeAddr: c.Function.Entry}
	} else {
		c.ID = FrameID{StackAddr: sp}
	}

	frame.Regs.CFA = int64(c.Base)
	frame.Regs.FrameBase = int64(c.Base)
	frame.cache = c

	if u.a.frameLog.IsDebug() {
		name := "?"
		if c.Function != nil {
			name = c.Function.Name
		}
		u.a.frameLog.Debugf("frame %s pc=%#x sp=%#x base=%#x frame reg=%s", name, pc, sp, c.Base, regnum.RISCVToABIName(c.FrameReg))
	}
	return c, nil
}

func (u *prologueUnwinder) FrameID(frame *UnwindFrame) (FrameID, error) {
	c, err := u.frameCache(frame)
	if err != nil {
		return FrameID{}, err
	}
	return c.ID, nil
}

func (u *prologueUnwinder) PrevRegister(frame *UnwindFrame, reg uint64) (SavedReg, *op.DwarfRegister, error) {
	if reg >= u.a.NumRegs() {
		return SavedReg{}, nil, &InvalidRegisterError{Regnum: reg}
	}
	c, err := u.frameCache(frame)
	if err != nil {
		return SavedReg{}, nil, err
	}

	loc, ok := c.Saved[reg]
	switch {
	case reg == regnum.RISCV_SP:
		loc = SavedReg{Kind: SavedValue, Value: c.Base}
	case ok:
	case reg == regnum.RISCV_PC:
		loc = SavedReg{Kind: SavedInRegister, Reg: regnum.RISCV_RA}
	default:
		loc = SavedReg{Kind: SavedInRegister, Reg: reg}
	}

	val, err := u.resolve(frame, reg, loc)
	if err != nil {
		return loc, nil, err
	}
	return loc, val, nil
}

func (u *prologueUnwinder) resolve(frame *UnwindFrame, reg uint64, loc SavedReg) (*op.DwarfRegister, error) {
	switch loc.Kind {
	case SavedInRegister:
		r := frame.Regs.Reg(loc.Reg)
		if r == nil {
			return nil, nil
		}
		cp := *r
		return &cp, nil
	case SavedInMemory:
		var tmp [maxRegisterSize]byte
		buf := tmp[:u.a.RegSize(reg)]
		if err := readMemory(u.t.Memory(), buf, loc.Addr); err != nil {
			return nil, err
		}
		return op.DwarfRegisterFromBytes(u.a.ByteOrder(), buf), nil
	case SavedValue:
		r := op.DwarfRegisterFromUint64(loc.Value)
		r.FillBytes(u.a.ByteOrder(), u.a.RegSize(reg))
		return r, nil
	}
	return nil, nil
}

// UnwindPC returns the program counter of the frame calling frame.
func (a *Arch) UnwindPC(u Unwinder, frame *UnwindFrame) (uint64, error) {
	return unwindUint(u, frame, regnum.RISCV_PC)
}

// UnwindSP returns the stack pointer of the frame calling frame.
func (a *Arch) UnwindSP(u Unwinder, frame *UnwindFrame) (uint64, error) {
	return unwindUint(u, frame, regnum.RISCV_SP)
}

func unwindUint(u Unwinder, frame *UnwindFrame, reg uint64) (uint64, error) {
	_, val, err := u.PrevRegister(frame, reg)
	if err != nil || val == nil {
		return 0, err
	}
	return val.Uint64Val, nil
}

// callerFrame returns the frame that called frame. Integer registers and
// the program counter are unwound, the other registers are copied from
// frame on first access.
func (a *Arch) callerFrame(u Unwinder, frame *UnwindFrame) (*UnwindFrame, error) {
	regs := a.NewDwarfRegisters()
	for reg := uint64(regnum.RISCV_X0); reg <= regnum.RISCV_PC; reg++ {
		_, val, err := u.PrevRegister(frame, reg)
		if err != nil {
			return nil, err
		}
		if val != nil {
			regs.AddReg(reg, val)
		}
	}
	callee := frame.Regs
	regs.SetLoadMoreCallback(func() {
		for reg := uint64(regnum.RISCV_F0); reg < a.NumRegs(); reg++ {
			if r := callee.Reg(reg); r != nil {
				cp := *r
				regs.AddReg(reg, &cp)
			}
		}
	})
	caller := NewUnwindFrame(regs)
	caller.caller = true
	return caller, nil
}
