package proc

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/rvdbg/rvframe/pkg/dwarf/op"
	"github.com/rvdbg/rvframe/pkg/dwarf/regnum"
	"github.com/rvdbg/rvframe/pkg/logflags"
)

// Instruction encoders for building test programs.

type iType uint32 // opcode | funct3

func (op iType) enc(rd, rs1 uint64, imm int64) uint32 {
	return uint32(op) | uint32(rd)<<7 | uint32(rs1)<<15 | uint32(imm&0xfff)<<20
}

type sType uint32

func (op sType) enc(rs2, rs1 uint64, off int64) uint32 {
	imm := uint32(off & 0xfff)
	return uint32(op) | (imm&0x1f)<<7 | uint32(rs1)<<15 | uint32(rs2)<<20 | (imm>>5)<<25
}

type rType uint32 // opcode | funct3 | funct7

func (op rType) enc(rd, rs1, rs2 uint64) uint32 {
	return uint32(op) | uint32(rd)<<7 | uint32(rs1)<<15 | uint32(rs2)<<20
}

type uType uint32

func (op uType) enc(rd uint64, imm20 uint32) uint32 {
	return uint32(op) | uint32(rd)<<7 | imm20<<12
}

const (
	ADDI  = iType(0x13 | 0<<12)
	ADDIW = iType(0x1b | 0<<12)
	XORI  = iType(0x13 | 4<<12)
	LD    = iType(0x03 | 3<<12)
	SW    = sType(0x23 | 2<<12)
	SD    = sType(0x23 | 3<<12)
	ADD   = rType(0x33 | 0<<12 | 0<<25)
	ADDW  = rType(0x3b | 0<<12 | 0<<25)
	SUB   = rType(0x33 | 0<<12 | 0x20<<25)
	AUIPC = uType(0x17)
	LUI   = uType(0x37)
)

const (
	zero = regnum.RISCV_X0
	ra   = regnum.RISCV_RA
	sp   = regnum.RISCV_SP
	gp   = regnum.RISCV_GP
	s0   = regnum.RISCV_S0
	s1   = regnum.RISCV_S1
	a0   = regnum.RISCV_A0
	a1   = regnum.RISCV_A1
)

func TestEncoders(t *testing.T) {
	for _, tc := range []struct {
		got, want uint32
	}{
		{ADDI.enc(sp, sp, -32), 0xfe010113},
		{SD.enc(ra, sp, 24), 0x00113c23},
		{SD.enc(s0, sp, 16), 0x00813823},
		{ADDI.enc(s0, sp, 32), 0x02010413},
		{ADD.enc(s0, sp, zero), 0x00010433},
	} {
		if tc.got != tc.want {
			t.Errorf("got %#08x want %#08x", tc.got, tc.want)
		}
	}
}

// testMemory is a sparse memory, reading an unset byte is a fault.
type testMemory struct {
	bytes map[uint64]byte
	order binary.ByteOrder
	reads int
}

func newTestMemory(order binary.ByteOrder) *testMemory {
	return &testMemory{bytes: make(map[uint64]byte), order: order}
}

func (m *testMemory) ReadMemory(buf []byte, addr uint64) (int, error) {
	m.reads++
	for i := range buf {
		b, ok := m.bytes[addr+uint64(i)]
		if !ok {
			return i, fmt.Errorf("unmapped address %#x", addr+uint64(i))
		}
		buf[i] = b
	}
	return len(buf), nil
}

func (m *testMemory) WriteMemory(addr uint64, data []byte) (int, error) {
	for i, b := range data {
		m.bytes[addr+uint64(i)] = b
	}
	return len(data), nil
}

// code writes insns starting at addr and returns the address after them.
func (m *testMemory) code(addr uint64, insns ...uint32) uint64 {
	var buf [4]byte
	for _, insn := range insns {
		m.order.PutUint32(buf[:], insn)
		m.WriteMemory(addr, buf[:])
		addr += 4
	}
	return addr
}

func (m *testMemory) putUint64(addr, v uint64) {
	var buf [8]byte
	m.order.PutUint64(buf[:], v)
	m.WriteMemory(addr, buf[:])
}

func (m *testMemory) zero(addr uint64, n int) {
	m.WriteMemory(addr, make([]byte, n))
}

type testSymbols []Function

func (syms testSymbols) FunctionAt(pc uint64) *Function {
	for i := range syms {
		if pc >= syms[i].Entry && pc < syms[i].End {
			fn := syms[i]
			return &fn
		}
	}
	return nil
}

func mustArch(t testing.TB, abi ABI, endian Endianness) *Arch {
	t.Helper()
	a, err := RISCVArch(RISCVConfig{ABI: abi, Endian: endian, Log: logflags.Flags{}})
	if err != nil {
		t.Fatalf("RISCVArch: %v", err)
	}
	return a
}

// liveRegs returns a register set with the given integer registers.
func liveRegs(a *Arch, vals map[uint64]uint64) *op.DwarfRegisters {
	regs := a.NewDwarfRegisters()
	for reg, v := range vals {
		r := op.DwarfRegisterFromUint64(v)
		r.FillBytes(a.ByteOrder(), a.RegSize(reg))
		regs.AddReg(reg, r)
	}
	return regs
}
