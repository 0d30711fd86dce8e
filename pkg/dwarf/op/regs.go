package op

import (
	"encoding/binary"
	"fmt"
)

// DwarfRegisters holds the value of stack program registers.
type DwarfRegisters struct {
	CFA       int64
	FrameBase int64
	regs      []*DwarfRegister

	ByteOrder binary.ByteOrder
	PCRegNum  uint64
	SPRegNum  uint64

	loadMoreCallback func()
}

// DwarfRegister is the value of a single register. Bytes holds the full
// register contents in target byte order, Uint64Val its low 64 bits.
type DwarfRegister struct {
	Uint64Val uint64
	Bytes     []byte
}

// NewDwarfRegisters returns a register set backed by regs, which can be
// nil. pcRegNum and spRegNum are the indexes of the program counter and
// the stack pointer.
func NewDwarfRegisters(regs []*DwarfRegister, byteOrder binary.ByteOrder, pcRegNum, spRegNum uint64) *DwarfRegisters {
	return &DwarfRegisters{
		regs:      regs,
		ByteOrder: byteOrder,
		PCRegNum:  pcRegNum,
		SPRegNum:  spRegNum,
	}
}

// SetLoadMoreCallback sets a callback function that will be called the
// first time the user of regs tries to access an undefined register.
func (regs *DwarfRegisters) SetLoadMoreCallback(fn func()) {
	regs.loadMoreCallback = fn
}

// Uint64Val returns the uint64 value of register idx.
func (regs *DwarfRegisters) Uint64Val(idx uint64) uint64 {
	reg := regs.Reg(idx)
	if reg == nil {
		return 0
	}
	return reg.Uint64Val
}

// Bytes returns the bytes value of register idx, nil if the register is not
// defined.
func (regs *DwarfRegisters) Bytes(idx uint64) []byte {
	reg := regs.Reg(idx)
	if reg == nil {
		return nil
	}
	if reg.Bytes == nil {
		reg.FillBytes(regs.ByteOrder, 8)
	}
	return reg.Bytes
}

func (regs *DwarfRegisters) loadMore() {
	if regs.loadMoreCallback == nil {
		return
	}
	regs.loadMoreCallback()
	regs.loadMoreCallback = nil
}

// Reg returns register idx or nil if the register is not defined.
func (regs *DwarfRegisters) Reg(idx uint64) *DwarfRegister {
	if idx >= uint64(len(regs.regs)) {
		regs.loadMore()
		if idx >= uint64(len(regs.regs)) {
			return nil
		}
	}
	if regs.regs[idx] == nil {
		regs.loadMore()
	}
	return regs.regs[idx]
}

func (regs *DwarfRegisters) PC() uint64 {
	return regs.Uint64Val(regs.PCRegNum)
}

func (regs *DwarfRegisters) SP() uint64 {
	return regs.Uint64Val(regs.SPRegNum)
}

// AddReg adds register idx to regs.
func (regs *DwarfRegisters) AddReg(idx uint64, reg *DwarfRegister) {
	if idx >= uint64(len(regs.regs)) {
		newRegs := make([]*DwarfRegister, idx+1)
		copy(newRegs, regs.regs)
		regs.regs = newRegs
	}
	regs.regs[idx] = reg
}

// ReadRegister copies the contents of register idx into buf. Registers
// that were never set read as zero.
func (regs *DwarfRegisters) ReadRegister(idx uint64, buf []byte) error {
	reg := regs.Reg(idx)
	for i := range buf {
		buf[i] = 0
	}
	if reg == nil {
		return nil
	}
	if reg.Bytes == nil {
		reg.FillBytes(regs.ByteOrder, len(buf))
	}
	if len(reg.Bytes) < len(buf) {
		return fmt.Errorf("register %d is %d bytes wide, %d requested", idx, len(reg.Bytes), len(buf))
	}
	copy(buf, reg.Bytes)
	return nil
}

// WriteRegister replaces the contents of register idx with a copy of buf.
func (regs *DwarfRegisters) WriteRegister(idx uint64, buf []byte) error {
	regs.AddReg(idx, DwarfRegisterFromBytes(regs.ByteOrder, buf))
	return nil
}

// Copy returns a copy of regs that does not share register storage.
func (regs *DwarfRegisters) Copy() *DwarfRegisters {
	r := *regs
	r.regs = make([]*DwarfRegister, len(regs.regs))
	for i, reg := range regs.regs {
		if reg == nil {
			continue
		}
		cp := *reg
		if reg.Bytes != nil {
			cp.Bytes = append([]byte(nil), reg.Bytes...)
		}
		r.regs[i] = &cp
	}
	return &r
}

func DwarfRegisterFromUint64(v uint64) *DwarfRegister {
	return &DwarfRegister{Uint64Val: v}
}

// DwarfRegisterFromBytes returns a register holding a copy of bytes,
// interpreted in byte order bo.
func DwarfRegisterFromBytes(bo binary.ByteOrder, bytes []byte) *DwarfRegister {
	bytes = append([]byte(nil), bytes...)
	var v uint64
	switch len(bytes) {
	case 1:
		v = uint64(bytes[0])
	case 2:
		v = uint64(bo.Uint16(bytes))
	case 4:
		v = uint64(bo.Uint32(bytes))
	case 8:
		v = bo.Uint64(bytes)
	default:
		if len(bytes) > 8 {
			// low 64 bits of a wider register
			if bo == binary.BigEndian {
				v = bo.Uint64(bytes[len(bytes)-8:])
			} else {
				v = bo.Uint64(bytes[:8])
			}
		}
	}
	return &DwarfRegister{Uint64Val: v, Bytes: bytes}
}

// FillBytes fills the Bytes slice of reg using Uint64Val, for a register
// size bytes wide.
func (reg *DwarfRegister) FillBytes(bo binary.ByteOrder, size int) {
	if reg.Bytes != nil {
		return
	}
	var buf [8]byte
	bo.PutUint64(buf[:], reg.Uint64Val)
	reg.Bytes = make([]byte, size)
	switch {
	case size >= 8 && bo == binary.BigEndian:
		copy(reg.Bytes[size-8:], buf[:])
	case size >= 8:
		copy(reg.Bytes, buf[:])
	case bo == binary.BigEndian:
		copy(reg.Bytes, buf[8-size:])
	default:
		copy(reg.Bytes, buf[:size])
	}
}
