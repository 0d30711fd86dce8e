package proc

import (
	"debug/dwarf"
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"sort"

	lru "github.com/hashicorp/golang-lru"

	"github.com/rvdbg/rvframe/pkg/logflags"
)

// DefaultSymbolCacheSize is the number of cached address lookups.
const DefaultSymbolCacheSize = 512

// ErrNoDebugInfo is returned when an operation needs DWARF information
// that the executable does not have.
var ErrNoDebugInfo = errors.New("executable has no debug information")

// BinaryInfo holds information on the executable being debugged: its
// functions, its line table and its DWARF types.
type BinaryInfo struct {
	// RegSize is the register size implied by the ELF class.
	RegSize   int
	ByteOrder Endianness

	// Functions is sorted by Entry.
	Functions []Function

	elf   *elf.File
	dwarf *dwarf.Data
	lines []lineRow

	// funcCache caches FunctionAt, prologueCache the prologue end of
	// each function by entry point.
	funcCache     *lru.Cache
	prologueCache *lru.Cache

	log logflags.Logger
}

type lineRow struct {
	Address     uint64
	Line        int
	IsStmt      bool
	PrologueEnd bool
	EndSequence bool
}

// LoadBinaryInfo opens the ELF executable at path.
func LoadBinaryInfo(path string, cacheSize int, flags logflags.Flags) (*BinaryInfo, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open %s: %w", path, err)
	}
	bi, err := NewBinaryInfo(f, cacheSize, flags)
	if err != nil {
		f.Close()
		return nil, err
	}
	return bi, nil
}

// NewBinaryInfo reads symbols and debug information from f.
func NewBinaryInfo(f *elf.File, cacheSize int, flags logflags.Flags) (*BinaryInfo, error) {
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("unsupported machine %v", f.Machine)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultSymbolCacheSize
	}
	bi := &BinaryInfo{elf: f, log: flags.SymbolsLogger()}
	switch f.Class {
	case elf.ELFCLASS32:
		bi.RegSize = 4
	case elf.ELFCLASS64:
		bi.RegSize = 8
	default:
		return nil, fmt.Errorf("unsupported ELF class %v", f.Class)
	}
	bi.ByteOrder = LittleEndian
	if f.Data == elf.ELFDATA2MSB {
		bi.ByteOrder = BigEndian
	}

	var err error
	bi.funcCache, err = lru.New(cacheSize)
	if err != nil {
		return nil, err
	}
	bi.prologueCache, err = lru.New(cacheSize)
	if err != nil {
		return nil, err
	}

	if err := bi.loadSymbols(); err != nil {
		return nil, err
	}

	bi.dwarf, err = f.DWARF()
	if err != nil {
		bi.log.Debugf("no DWARF: %v", err)
		bi.dwarf = nil
	} else if err := bi.loadLines(); err != nil {
		bi.log.Warnf("could not read line table: %v", err)
	}
	bi.log.Debugf("loaded %d functions, %d line table rows", len(bi.Functions), len(bi.lines))
	return bi, nil
}

// Close closes the executable.
func (bi *BinaryInfo) Close() error {
	return bi.elf.Close()
}

func (bi *BinaryInfo) loadSymbols() error {
	syms, err := bi.elf.Symbols()
	if err != nil && !errors.Is(err, elf.ErrNoSymbols) {
		return fmt.Errorf("could not read symbols: %w", err)
	}
	for _, sym := range syms {
		if elf.ST_TYPE(sym.Info) != elf.STT_FUNC || sym.Value == 0 {
			continue
		}
		bi.Functions = append(bi.Functions, Function{Name: sym.Name, Entry: sym.Value, End: sym.Value + sym.Size})
	}
	sort.Slice(bi.Functions, func(i, j int) bool { return bi.Functions[i].Entry < bi.Functions[j].Entry })
	return nil
}

func (bi *BinaryInfo) loadLines() error {
	rdr := bi.dwarf.Reader()
	for {
		e, err := rdr.Next()
		if err != nil {
			return err
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagCompileUnit {
			rdr.SkipChildren()
			continue
		}
		lr, err := bi.dwarf.LineReader(e)
		if err != nil {
			return err
		}
		rdr.SkipChildren()
		if lr == nil {
			continue
		}
		var le dwarf.LineEntry
		for {
			err := lr.Next(&le)
			if err == io.EOF {
				break
			}
			if err != nil {
				return err
			}
			bi.lines = append(bi.lines, lineRow{Address: le.Address, Line: le.Line, IsStmt: le.IsStmt, PrologueEnd: le.PrologueEnd, EndSequence: le.EndSequence})
		}
	}
	sort.SliceStable(bi.lines, func(i, j int) bool { return bi.lines[i].Address < bi.lines[j].Address })
	return nil
}

// FunctionAt returns the function containing pc, or nil.
func (bi *BinaryInfo) FunctionAt(pc uint64) *Function {
	if v, ok := bi.funcCache.Get(pc); ok {
		return v.(*Function)
	}
	i := sort.Search(len(bi.Functions), func(i int) bool { return bi.Functions[i].Entry > pc })
	var fn *Function
	if i > 0 {
		cand := bi.Functions[i-1]
		if pc < cand.End || (cand.End == cand.Entry && pc == cand.Entry) {
			cand.PrologueEnd = bi.prologueEnd(&cand)
			fn = &cand
		}
	}
	bi.funcCache.Add(pc, fn)
	return fn
}

// LookupFunc returns the function called name, or nil.
func (bi *BinaryInfo) LookupFunc(name string) *Function {
	for i := range bi.Functions {
		if bi.Functions[i].Name == name {
			return bi.FunctionAt(bi.Functions[i].Entry)
		}
	}
	return nil
}

// prologueEnd returns the first address after the prologue of fn according
// to the line table: the first row marked prologue_end, or else the first
// row of the second line of the function. Returns 0 if the line table does
// not cover fn.
func (bi *BinaryInfo) prologueEnd(fn *Function) uint64 {
	if v, ok := bi.prologueCache.Get(fn.Entry); ok {
		return v.(uint64)
	}
	pc := bi.prologueEndFromLines(fn)
	bi.prologueCache.Add(fn.Entry, pc)
	return pc
}

func (bi *BinaryInfo) prologueEndFromLines(fn *Function) uint64 {
	start := sort.Search(len(bi.lines), func(i int) bool { return bi.lines[i].Address >= fn.Entry })
	if start >= len(bi.lines) || bi.lines[start].Address >= fn.End || bi.lines[start].Address != fn.Entry {
		return 0
	}
	for i := start; i < len(bi.lines) && bi.lines[i].Address < fn.End; i++ {
		if bi.lines[i].PrologueEnd {
			return bi.lines[i].Address
		}
	}
	firstLine := bi.lines[start].Line
	for i := start; i < len(bi.lines) && bi.lines[i].Address < fn.End; i++ {
		row := bi.lines[i]
		if row.EndSequence {
			break
		}
		if row.Address > fn.Entry && row.Line != firstLine && row.IsStmt {
			return row.Address
		}
	}
	return 0
}

// ReturnType returns the return type of the function called name.
func (bi *BinaryInfo) ReturnType(name string) (dwarf.Type, error) {
	if bi.dwarf == nil {
		return nil, ErrNoDebugInfo
	}
	rdr := bi.dwarf.Reader()
	for {
		e, err := rdr.Next()
		if err != nil {
			return nil, err
		}
		if e == nil {
			break
		}
		if e.Tag != dwarf.TagSubprogram {
			continue
		}
		if n, _ := e.Val(dwarf.AttrName).(string); n != name {
			continue
		}
		off, ok := e.Val(dwarf.AttrType).(dwarf.Offset)
		if !ok {
			return nil, fmt.Errorf("function %s does not return a value", name)
		}
		return bi.dwarf.Type(off)
	}
	return nil, fmt.Errorf("could not find function %s", name)
}

// Memory returns the contents of the loadable segments of the executable.
// It can be used to decode instructions without a running process.
func (bi *BinaryInfo) Memory() MemoryReadWriter {
	return &elfMemory{progs: bi.elf.Progs}
}

type elfMemory struct {
	progs []*elf.Prog
}

func (m *elfMemory) ReadMemory(buf []byte, addr uint64) (int, error) {
	n := 0
	for n < len(buf) {
		cur := addr + uint64(n)
		prog := m.progAt(cur)
		if prog == nil {
			return n, &MemoryFaultError{Addr: cur, Len: len(buf) - n}
		}
		end := prog.Vaddr + prog.Memsz
		chunk := buf[n:]
		if uint64(len(chunk)) > end-cur {
			chunk = chunk[:end-cur]
		}
		off := cur - prog.Vaddr
		for i := range chunk {
			chunk[i] = 0
		}
		if off < prog.Filesz {
			fileChunk := chunk
			if uint64(len(fileChunk)) > prog.Filesz-off {
				fileChunk = fileChunk[:prog.Filesz-off]
			}
			if _, err := prog.ReadAt(fileChunk, int64(off)); err != nil && err != io.EOF {
				return n, err
			}
		}
		n += len(chunk)
	}
	return n, nil
}

func (m *elfMemory) WriteMemory(addr uint64, data []byte) (int, error) {
	return 0, &MemoryFaultError{Addr: addr, Len: len(data), Write: true, Err: errors.New("executable memory is read only")}
}

func (m *elfMemory) progAt(addr uint64) *elf.Prog {
	for _, prog := range m.progs {
		if prog.Type == elf.PT_LOAD && addr >= prog.Vaddr && addr < prog.Vaddr+prog.Memsz {
			return prog
		}
	}
	return nil
}

// Segment is a loadable segment of the executable.
type Segment struct {
	Addr, Size uint64
}

// Segments returns the loadable segments of the executable.
func (bi *BinaryInfo) Segments() []Segment {
	var r []Segment
	for _, prog := range bi.elf.Progs {
		if prog.Type == elf.PT_LOAD && prog.Memsz > 0 {
			r = append(r, Segment{Addr: prog.Vaddr, Size: prog.Memsz})
		}
	}
	return r
}
