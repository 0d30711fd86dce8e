// Package core implements a historical target: a snapshot of registers
// and memory stored in a YAML file.
package core

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v2"

	"github.com/rvdbg/rvframe/pkg/dwarf/op"
	"github.com/rvdbg/rvframe/pkg/dwarf/regnum"
	"github.com/rvdbg/rvframe/pkg/proc"
)

// Snapshot is the on-disk representation of a stopped thread.
//
//	abi: rv64g
//	byte-order: little
//	registers:
//	  pc: 0x10010
//	  sp: 0x7fffffe0
//	memory:
//	  - addr: 0x10000
//	    insns: [0xfe010113, 0x00113c23]
//	  - addr: 0x7fffffe0
//	    size: 32
//	functions:
//	  - {name: main, entry: 0x10000, end: 0x10040}
type Snapshot struct {
	ABI       string            `yaml:"abi,omitempty"`
	ByteOrder string            `yaml:"byte-order,omitempty"`
	Registers map[string]string `yaml:"registers"`
	Memory    []Region          `yaml:"memory,omitempty"`
	Functions []FunctionEntry   `yaml:"functions,omitempty"`
}

// Region is a range of memory. Its contents are the concatenation of
// Bytes, Insns (32-bit words) and DWords (64-bit words), in target byte
// order, zero padded to Size.
type Region struct {
	Addr   uint64   `yaml:"addr"`
	Size   uint64   `yaml:"size,omitempty"`
	Bytes  string   `yaml:"bytes,omitempty"`
	Insns  []uint32 `yaml:"insns,omitempty"`
	DWords []uint64 `yaml:"dwords,omitempty"`
}

// FunctionEntry describes a function of the snapshot's program.
type FunctionEntry struct {
	Name        string `yaml:"name"`
	Entry       uint64 `yaml:"entry"`
	End         uint64 `yaml:"end"`
	PrologueEnd uint64 `yaml:"prologue-end,omitempty"`
}

var errNoRegisters = errors.New("snapshot has no registers")

// ReadSnapshot decodes a snapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var s Snapshot
	if err := yaml.UnmarshalStrict(data, &s); err != nil {
		return nil, fmt.Errorf("could not decode snapshot: %w", err)
	}
	if len(s.Registers) == 0 {
		return nil, errNoRegisters
	}
	return &s, nil
}

// OpenSnapshot reads the snapshot stored at path.
func OpenSnapshot(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// Write encodes s as YAML.
func (s *Snapshot) Write(w io.Writer) error {
	out, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func (reg *Region) contents(bo proc.Endianness) ([]byte, error) {
	data, err := hex.DecodeString(strings.Join(strings.Fields(reg.Bytes), ""))
	if err != nil {
		return nil, fmt.Errorf("region %#x: %w", reg.Addr, err)
	}
	order := bo.ByteOrder()
	var tmp [8]byte
	for _, insn := range reg.Insns {
		order.PutUint32(tmp[:4], insn)
		data = append(data, tmp[:4]...)
	}
	for _, dw := range reg.DWords {
		order.PutUint64(tmp[:], dw)
		data = append(data, tmp[:]...)
	}
	if uint64(len(data)) > reg.Size {
		reg.Size = uint64(len(data))
	}
	return append(data, make([]byte, reg.Size-uint64(len(data)))...), nil
}

// Process is a Target backed by a snapshot.
type Process struct {
	arch *proc.Arch
	mem  *splicedMemory
	regs *op.DwarfRegisters
	syms proc.SymbolLookup
}

var _ proc.Target = (*Process)(nil)

// NewProcess builds a target out of s. When bi is not nil the executable's
// segments are mapped beneath the snapshot memory and its symbols are used
// unless the snapshot lists functions.
func NewProcess(s *Snapshot, arch *proc.Arch, bi *proc.BinaryInfo) (*Process, error) {
	p := &Process{arch: arch, mem: &splicedMemory{}, regs: arch.NewDwarfRegisters()}

	if bi != nil {
		elfmem := bi.Memory()
		for _, seg := range bi.Segments() {
			p.mem.Add(elfmem, seg.Addr, seg.Size)
		}
		p.syms = bi
	}
	for i := range s.Memory {
		data, err := s.Memory[i].contents(arch.Endian())
		if err != nil {
			return nil, err
		}
		p.mem.Add(&bytesRegion{addr: s.Memory[i].Addr, data: data}, s.Memory[i].Addr, uint64(len(data)))
	}

	for name, val := range s.Registers {
		reg, err := arch.RegisterNumber(name)
		if err != nil {
			return nil, err
		}
		buf, err := registerBytes(val, arch.RegSize(reg), arch.Endian())
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", name, err)
		}
		p.regs.AddReg(reg, op.DwarfRegisterFromBytes(arch.ByteOrder(), buf))
	}

	if len(s.Functions) > 0 {
		p.syms = newFunctionTable(s.Functions)
	}
	return p, nil
}

func registerBytes(val string, size int, endian proc.Endianness) ([]byte, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(val), 0)
	if !ok {
		return nil, fmt.Errorf("bad value %q", val)
	}
	if n.Sign() < 0 {
		// two's complement at the register width
		n.Add(n, new(big.Int).Lsh(big.NewInt(1), uint(size*8)))
	}
	if n.Sign() < 0 || n.BitLen() > size*8 {
		return nil, fmt.Errorf("value %q does not fit in %d bytes", val, size)
	}
	buf := n.FillBytes(make([]byte, size))
	if endian != proc.BigEndian {
		for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
			buf[i], buf[j] = buf[j], buf[i]
		}
	}
	return buf, nil
}

func registerString(buf []byte, endian proc.Endianness) string {
	be := make([]byte, len(buf))
	copy(be, buf)
	if endian != proc.BigEndian {
		for i, j := 0, len(be)-1; i < j; i, j = i+1, j-1 {
			be[i], be[j] = be[j], be[i]
		}
	}
	return "0x" + new(big.Int).SetBytes(be).Text(16)
}

// Arch returns the architecture of the snapshot.
func (p *Process) Arch() *proc.Arch { return p.arch }

func (p *Process) Memory() proc.MemoryReadWriter { return p.mem }

func (p *Process) Registers() proc.RegisterReadWriter { return p.regs }

func (p *Process) Symbols() proc.SymbolLookup { return p.syms }

// DwarfRegisters returns the register set of the snapshot.
func (p *Process) DwarfRegisters() *op.DwarfRegisters { return p.regs }

// Snapshot returns the current state of p: its registers and the memory
// regions it was loaded with, reflecting any write.
func (p *Process) Snapshot() *Snapshot {
	s := &Snapshot{
		ABI:       p.arch.ABI().String(),
		ByteOrder: p.arch.Endian().String(),
		Registers: make(map[string]string),
	}
	for reg := uint64(0); reg < p.arch.NumRegs(); reg++ {
		if p.regs.Reg(reg) == nil {
			continue
		}
		buf := make([]byte, p.arch.RegSize(reg))
		if err := p.regs.ReadRegister(reg, buf); err != nil {
			continue
		}
		s.Registers[regnum.RISCVToABIName(reg)] = registerString(buf, p.arch.Endian())
	}
	for _, entry := range p.mem.readers {
		b, ok := entry.reader.(*bytesRegion)
		if !ok {
			continue
		}
		data := b.data[entry.offset-b.addr : entry.offset-b.addr+entry.length]
		s.Memory = append(s.Memory, Region{Addr: entry.offset, Bytes: hex.EncodeToString(data)})
	}
	if ft, ok := p.syms.(functionTable); ok {
		for _, fn := range ft {
			s.Functions = append(s.Functions, FunctionEntry{Name: fn.Name, Entry: fn.Entry, End: fn.End, PrologueEnd: fn.PrologueEnd})
		}
	}
	return s
}

// functionTable is a SymbolLookup over the functions listed in a snapshot.
type functionTable []proc.Function

func newFunctionTable(fns []FunctionEntry) functionTable {
	ft := make(functionTable, 0, len(fns))
	for _, fn := range fns {
		ft = append(ft, proc.Function{Name: fn.Name, Entry: fn.Entry, End: fn.End, PrologueEnd: fn.PrologueEnd})
	}
	sort.Slice(ft, func(i, j int) bool { return ft[i].Entry < ft[j].Entry })
	return ft
}

func (ft functionTable) FunctionAt(pc uint64) *proc.Function {
	i := sort.Search(len(ft), func(i int) bool { return ft[i].Entry > pc })
	if i == 0 || pc >= ft[i-1].End {
		return nil
	}
	fn := ft[i-1]
	return &fn
}

// LookupFunc returns the function called name, or nil.
func (ft functionTable) LookupFunc(name string) *proc.Function {
	for i := range ft {
		if ft[i].Name == name {
			fn := ft[i]
			return &fn
		}
	}
	return nil
}
