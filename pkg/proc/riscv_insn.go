package proc

import (
	"encoding/binary"

	"golang.org/x/arch/riscv64/riscv64asm"
)

// Major opcodes recognized by the prologue scanner.
const (
	riscvOpOpImm    = 0x13 // addi ...
	riscvOpAUIPC    = 0x17
	riscvOpOpImm32  = 0x1b // addiw ...
	riscvOpStore    = 0x23
	riscvOpOp       = 0x33 // add ...
	riscvOpLUI      = 0x37
	riscvOpOp32     = 0x3b // addw ...
	riscvFunct3SW   = 0x2
	riscvFunct3SD   = 0x3
	riscvFunct3ADD  = 0x0 // also addi
)

// riscvInsn is a 32-bit RISC-V instruction.
type riscvInsn uint32

func (i riscvInsn) opcode() uint32 { return uint32(i) & 0x7f }
func (i riscvInsn) rd() uint64     { return uint64(i>>7) & 0x1f }
func (i riscvInsn) rs1() uint64    { return uint64(i>>15) & 0x1f }
func (i riscvInsn) rs2() uint64    { return uint64(i>>20) & 0x1f }
func (i riscvInsn) funct3() uint32 { return uint32(i>>12) & 0x7 }
func (i riscvInsn) funct7() uint32 { return uint32(i>>25) & 0x7f }

// imm12 returns the sign extended immediate of an I-type instruction.
func (i riscvInsn) imm12() int64 {
	return int64(int32(i) >> 20)
}

// storeOffset returns the sign extended offset of an S-type instruction.
func (i riscvInsn) storeOffset() int64 {
	return int64(int32(i)>>25)<<5 | int64((i>>7)&0x1f)
}

// riscvAsmText returns the GNU syntax disassembly of insn.
func riscvAsmText(insn riscvInsn) string {
	var buf [riscvInstLen]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(insn))
	inst, err := riscv64asm.Decode(buf[:])
	if err != nil {
		return "?"
	}
	return riscv64asm.GNUSyntax(inst)
}

// AsmInstruction is a decoded instruction.
type AsmInstruction struct {
	Addr uint64
	Word uint32
	Text string
}

// Disassemble decodes the instructions in [start, end).
func (a *Arch) Disassemble(mem MemoryReader, start, end uint64) ([]AsmInstruction, error) {
	var r []AsmInstruction
	for pc := start; pc < end; pc += riscvInstLen {
		insn, err := a.fetchInstruction(mem, pc)
		if err != nil {
			return r, err
		}
		r = append(r, AsmInstruction{Addr: pc, Word: uint32(insn), Text: riscvAsmText(insn)})
	}
	return r, nil
}
