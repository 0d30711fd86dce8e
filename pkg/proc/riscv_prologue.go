package proc

import (
	"fmt"

	"github.com/rvdbg/rvframe/pkg/dwarf/op"
	"github.com/rvdbg/rvframe/pkg/dwarf/regnum"
)

// SavedRegKind says where the caller's value of a register can be found.
type SavedRegKind uint8

const (
	// SavedUnknown means nothing was recorded, the register is unchanged.
	SavedUnknown SavedRegKind = iota
	// SavedInRegister means the value is in another register of this frame.
	SavedInRegister
	// SavedInMemory means the value was spilled to memory.
	SavedInMemory
	// SavedValue means the value is known and stored in SavedReg.Value.
	SavedValue
)

// SavedReg is the location of a register of the calling frame.
type SavedReg struct {
	Kind  SavedRegKind
	Reg   uint64 // SavedInRegister
	Addr  uint64 // SavedInMemory
	Value uint64 // SavedValue
}

func (s SavedReg) String() string {
	switch s.Kind {
	case SavedInRegister:
		return "in " + regnum.RISCVToABIName(s.Reg)
	case SavedInMemory:
		return fmt.Sprintf("at %#x", s.Addr)
	case SavedValue:
		return fmt.Sprintf("value %#x", s.Value)
	default:
		return "unknown"
	}
}

// SavedRegs maps register numbers to the location of the caller's value.
type SavedRegs map[uint64]SavedReg

// setIfAbsent records loc for reg unless a location was already recorded.
func (s SavedRegs) setIfAbsent(reg uint64, loc SavedReg) bool {
	if _, ok := s[reg]; ok {
		return false
	}
	s[reg] = loc
	return true
}

// PrologueAnalysis is the result of a prologue scan.
type PrologueAnalysis struct {
	Start, Limit uint64
	// End is the first address that is not part of the prologue.
	End uint64
	// FrameOffset is the size of the stack frame allocated by the prologue.
	FrameOffset int64
	// FrameReg is the register the frame is addressed from, sp or s0.
	FrameReg uint64
	// SP is the stack pointer the spill addresses were computed from, it
	// differs from the live one when alloca space was detected.
	SP uint64
	// FrameBase is SP+FrameOffset, the canonical frame address.
	FrameBase uint64
	// Restarts counts how many times the scan was restarted after an
	// alloca adjustment.
	Restarts            int
	SeenStackAdjustment bool
	Saved               SavedRegs
}

// scanPrologue decodes the instructions in [start, limit) looking for
// stack adjustments, register spills and frame pointer setup. With live
// registers spill addresses are absolute, otherwise they are relative to
// a stack pointer of 0. When cache is not nil its frame base and saved
// register table are filled in.
func (a *Arch) scanPrologue(mem MemoryReadWriter, start, limit uint64, live *op.DwarfRegisters, cache *FrameCache) (*PrologueAnalysis, error) {
	if limit > start+a.prologueScanLimit {
		limit = start + a.prologueScanLimit
	}
	if limit > start {
		mem = cacheMemory(mem, start, int(limit-start))
	}

	var sp uint64
	if live != nil {
		sp = live.Uint64Val(regnum.RISCV_SP)
	}
	r := &PrologueAnalysis{Start: start, Limit: limit, FrameReg: regnum.RISCV_SP}

restart:
	for {
		r.FrameOffset = 0
		r.Saved = make(SavedRegs)
		endSet := false
		pc := start

		// fp is the value of s0 once the frame pointer is set up.
		var fp uint64
		fpValid := false

	scan:
		for ; pc < limit; pc += riscvInstLen {
			insn, err := a.fetchInstruction(mem, pc)
			if err != nil {
				return nil, err
			}
			if a.prologueLog.IsDebug() {
				a.prologueLog.Debugf("%#x: %08x %s", pc, uint32(insn), riscvAsmText(insn))
			}

			opcode, rd, rs1, rs2, funct3 := insn.opcode(), insn.rd(), insn.rs1(), insn.rs2(), insn.funct3()

			switch {
			case (opcode == riscvOpOpImm || opcode == riscvOpOpImm32) && funct3 == riscvFunct3ADD && rd == regnum.RISCV_SP && rs1 == regnum.RISCV_SP:
				// addi sp,sp,-k / addiw sp,sp,-k
				imm := insn.imm12()
				if imm >= 0 {
					break scan
				}
				r.FrameOffset -= imm
				r.SeenStackAdjustment = true

			case opcode == riscvOpStore && (funct3 == riscvFunct3SW || funct3 == riscvFunct3SD) && rs1 == regnum.RISCV_SP:
				// sw/sd reg,offset(sp)
				if rs2 != regnum.RISCV_X0 {
					r.Saved.setIfAbsent(rs2, SavedReg{Kind: SavedInMemory, Addr: sp + uint64(insn.storeOffset())})
				}

			case opcode == riscvOpOpImm && funct3 == riscvFunct3ADD && rd == regnum.RISCV_FP && rs1 == regnum.RISCV_SP:
				// addi s0,sp,k
				k := insn.imm12()
				fp, fpValid = sp+uint64(k), true
				if k == r.FrameOffset && live != nil && r.FrameReg == regnum.RISCV_SP {
					r.FrameReg = regnum.RISCV_FP
					fp = live.Uint64Val(regnum.RISCV_FP)
					if adj := int64(fp - (sp + uint64(k))); adj > 0 {
						a.prologueLog.Debugf("alloca adjustment %#x at %#x, restarting", adj, pc)
						sp += uint64(adj)
						r.Restarts++
						continue restart
					}
				}

			case (opcode == riscvOpOp || opcode == riscvOpOp32) && funct3 == riscvFunct3ADD && insn.funct7() == 0 && rd == regnum.RISCV_FP && rs1 == regnum.RISCV_SP && rs2 == regnum.RISCV_X0:
				// add s0,sp,zero / addw s0,sp,zero
				fp, fpValid = sp, true
				if live != nil && r.FrameReg == regnum.RISCV_SP {
					r.FrameReg = regnum.RISCV_FP
					fp = live.Uint64Val(regnum.RISCV_FP)
					if adj := int64(fp - sp); adj > 0 {
						a.prologueLog.Debugf("alloca adjustment %#x at %#x, restarting", adj, pc)
						sp = fp
						r.Restarts++
						continue restart
					}
				}

			case opcode == riscvOpStore && (funct3 == riscvFunct3SW || funct3 == riscvFunct3SD) && rs1 == regnum.RISCV_FP && fpValid:
				// sw/sd reg,offset(s0)
				if rs2 != regnum.RISCV_X0 {
					r.Saved.setIfAbsent(rs2, SavedReg{Kind: SavedInMemory, Addr: fp + uint64(insn.storeOffset())})
				}

			case opcode == riscvOpAUIPC && rd == regnum.RISCV_GP,
				opcode == riscvOpOpImm && rd == regnum.RISCV_GP && rs1 == regnum.RISCV_GP,
				opcode == riscvOpOp && rd == regnum.RISCV_GP && (rs1 == regnum.RISCV_GP || rs2 == regnum.RISCV_GP),
				opcode == riscvOpLUI && rd == regnum.RISCV_GP:
				// global pointer setup, part of the prologue

			default:
				if !endSet {
					r.End = pc
					endSet = true
				}
			}
		}

		if !endSet {
			r.End = pc
		}
		break
	}

	r.SP = sp
	r.FrameBase = sp + uint64(r.FrameOffset)
	if loc, ok := r.Saved[regnum.RISCV_RA]; ok {
		r.Saved[regnum.RISCV_PC] = loc
	}

	if cache != nil {
		cache.Base = r.FrameBase
		cache.FrameReg = r.FrameReg
		cache.Saved = r.Saved
		cache.Prologue = r
	}

	a.prologueLog.Debugf("prologue [%#x, %#x): end %#x frame offset %d frame base %#x restarts %d", start, limit, r.End, r.FrameOffset, r.FrameBase, r.Restarts)
	return r, nil
}

func (a *Arch) fetchInstruction(mem MemoryReader, pc uint64) (riscvInsn, error) {
	var buf [riscvInstLen]byte
	if err := readMemory(mem, buf[:], pc); err != nil {
		return 0, err
	}
	return riscvInsn(a.ByteOrder().Uint32(buf[:])), nil
}

// AnalyzePrologue scans the instructions in [start, limit). The live
// registers can be nil.
func (a *Arch) AnalyzePrologue(t Target, start, limit uint64, live *op.DwarfRegisters) (*PrologueAnalysis, error) {
	return a.scanPrologue(t.Memory(), start, limit, live, nil)
}

// SkipPrologue returns the first address at or after pc that is past the
// prologue of its function. The prologue end recorded in the debug
// information is used when available, otherwise the instructions following
// pc are scanned.
func (a *Arch) SkipPrologue(t Target, pc uint64) (uint64, error) {
	fn := symbolsOf(t).FunctionAt(pc)
	if fn != nil && fn.PrologueEnd != 0 {
		if pc > fn.PrologueEnd {
			return pc, nil
		}
		return fn.PrologueEnd, nil
	}

	limit := pc + a.skipPrologueLimit
	if fn != nil && fn.End > pc && fn.End < limit {
		limit = fn.End
	}
	r, err := a.scanPrologue(t.Memory(), pc, limit, nil, nil)
	if err != nil {
		return 0, err
	}
	return r.End, nil
}
