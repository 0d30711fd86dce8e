package proc

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rvdbg/rvframe/pkg/logflags"
)

// Layout of the executable built by testExecutable.
const (
	exeCodeOff  = 0x100
	exeCodeAddr = 0x1000
	exeCodeSize = 0x40
	exeMemSize  = 0x80
	exeSymOff   = 0x140
	exeStrOff   = 0x1a0
	exeShstrOff = 0x1b0
	exeShOff    = 0x1d0
)

func putStruct(t *testing.T, image []byte, off int, v interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, v); err != nil {
		t.Fatal(err)
	}
	copy(image[off:], buf.Bytes())
}

// testExecutable returns a little endian RV64 executable with a single
// loadable segment holding two functions, f at 0x1000 and main at 0x1020,
// and a data symbol. The segment is zero filled past its file contents.
func testExecutable(t *testing.T, machine elf.Machine) []byte {
	image := make([]byte, exeShOff+4*64)

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	putStruct(t, image, 0, elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     exeCodeAddr + 0x20,
		Phoff:     64,
		Shoff:     exeShOff,
		Ehsize:    64,
		Phentsize: 56,
		Phnum:     1,
		Shentsize: 64,
		Shnum:     4,
		Shstrndx:  3,
	})
	putStruct(t, image, 64, elf.Prog64{
		Type:   uint32(elf.PT_LOAD),
		Flags:  uint32(elf.PF_R | elf.PF_X),
		Off:    exeCodeOff,
		Vaddr:  exeCodeAddr,
		Paddr:  exeCodeAddr,
		Filesz: exeCodeSize,
		Memsz:  exeMemSize,
		Align:  0x1000,
	})

	mem := newTestMemory(binary.LittleEndian)
	canonicalPrologue(mem, ADD.enc(a0, a0, a1), LD.enc(a0, a0, 0))
	mem.code(exeCodeAddr+0x20,
		ADDI.enc(sp, sp, -16),
		SD.enc(ra, sp, 8),
		SD.enc(s0, sp, 0),
		ADDI.enc(s0, sp, 16),
		XORI.enc(a0, a0, 0))
	for addr, b := range mem.bytes {
		image[exeCodeOff+int(addr-exeCodeAddr)] = b
	}

	funcInfo := elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC)
	for i, sym := range []elf.Sym64{
		{},
		{Name: 1, Info: funcInfo, Shndx: uint16(elf.SHN_ABS), Value: exeCodeAddr, Size: 0x20},
		{Name: 3, Info: funcInfo, Shndx: uint16(elf.SHN_ABS), Value: exeCodeAddr + 0x20, Size: 0x20},
		{Name: 8, Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_OBJECT), Shndx: uint16(elf.SHN_ABS), Value: exeCodeAddr + 0x40, Size: 8},
	} {
		putStruct(t, image, exeSymOff+i*elf.Sym64Size, sym)
	}
	strtab := "\x00f\x00main\x00data\x00"
	shstrtab := "\x00.symtab\x00.strtab\x00.shstrtab\x00"
	copy(image[exeStrOff:], strtab)
	copy(image[exeShstrOff:], shstrtab)

	for i, sh := range []elf.Section64{
		{},
		{Name: 1, Type: uint32(elf.SHT_SYMTAB), Off: exeSymOff, Size: 4 * elf.Sym64Size, Link: 2, Info: 1, Addralign: 8, Entsize: elf.Sym64Size},
		{Name: 9, Type: uint32(elf.SHT_STRTAB), Off: exeStrOff, Size: uint64(len(strtab)), Addralign: 1},
		{Name: 17, Type: uint32(elf.SHT_STRTAB), Off: exeShstrOff, Size: uint64(len(shstrtab)), Addralign: 1},
	} {
		putStruct(t, image, exeShOff+i*64, sh)
	}
	return image
}

func loadTestExecutable(t *testing.T) *BinaryInfo {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a.out")
	if err := os.WriteFile(path, testExecutable(t, elf.EM_RISCV), 0o755); err != nil {
		t.Fatal(err)
	}
	bi, err := LoadBinaryInfo(path, 0, logflags.Flags{})
	if err != nil {
		t.Fatalf("LoadBinaryInfo: %v", err)
	}
	t.Cleanup(func() { bi.Close() })
	return bi
}

func TestBinaryInfoFunctions(t *testing.T) {
	bi := loadTestExecutable(t)
	if bi.RegSize != 8 || bi.ByteOrder != LittleEndian {
		t.Errorf("register size %d byte order %v", bi.RegSize, bi.ByteOrder)
	}
	if len(bi.Functions) != 2 {
		t.Fatalf("expected 2 functions, got %v", bi.Functions)
	}

	for _, tc := range []struct {
		pc   uint64
		name string
	}{
		{0x1000, "f"},
		{0x101c, "f"},
		{0x1020, "main"},
		{0x1030, "main"},
		{0x1040, ""},
		{0x0ffc, ""},
	} {
		for i := 0; i < 2; i++ {
			fn := bi.FunctionAt(tc.pc)
			switch {
			case tc.name == "" && fn != nil:
				t.Errorf("%#x: unexpected function %s", tc.pc, fn.Name)
			case tc.name != "" && (fn == nil || fn.Name != tc.name):
				t.Errorf("%#x: got %v, expected %s", tc.pc, fn, tc.name)
			}
		}
	}

	fn := bi.LookupFunc("main")
	if fn == nil || fn.Entry != 0x1020 || fn.End != 0x1040 || fn.PrologueEnd != 0 {
		t.Errorf("LookupFunc(main) = %+v", fn)
	}
	if fn := bi.LookupFunc("data"); fn != nil {
		t.Errorf("data symbol returned as function %+v", fn)
	}

	if _, err := bi.ReturnType("f"); !errors.Is(err, ErrNoDebugInfo) {
		t.Errorf("expected ErrNoDebugInfo, got %v", err)
	}
}

func TestBinaryInfoMemory(t *testing.T) {
	bi := loadTestExecutable(t)
	segs := bi.Segments()
	if len(segs) != 1 || segs[0] != (Segment{Addr: exeCodeAddr, Size: exeMemSize}) {
		t.Errorf("segments %v", segs)
	}

	mem := bi.Memory()
	buf := make([]byte, 4)
	if _, err := mem.ReadMemory(buf, 0x1000); err != nil {
		t.Fatal(err)
	}
	if insn := binary.LittleEndian.Uint32(buf); insn != ADDI.enc(sp, sp, -32) {
		t.Errorf("read %#08x at entry", insn)
	}

	// past the file contents the segment reads as zero
	buf = []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if n, err := mem.ReadMemory(buf, 0x103c); err != nil || n != 8 {
		t.Fatalf("read across file end: %d %v", n, err)
	}
	if !bytes.Equal(buf, make([]byte, 8)) {
		t.Errorf("expected zeros, got %x", buf)
	}

	n, err := mem.ReadMemory(make([]byte, 8), 0x107c)
	var fault *MemoryFaultError
	if !errors.As(err, &fault) || n != 4 || fault.Addr != 0x1080 {
		t.Errorf("read past segment: %d %v", n, err)
	}

	_, err = mem.WriteMemory(0x1000, []byte{0})
	if !errors.As(err, &fault) || !fault.Write {
		t.Errorf("expected write fault, got %v", err)
	}
}

func TestBinaryInfoSkipPrologue(t *testing.T) {
	bi := loadTestExecutable(t)
	a := mustArch(t, ABIRV64G, bi.ByteOrder)
	tgt := NewTarget(bi.Memory(), nil, bi)
	for _, tc := range []struct{ pc, want uint64 }{
		{0x1000, 0x1010},
		{0x1020, 0x1030},
	} {
		pc, err := a.SkipPrologue(tgt, tc.pc)
		if err != nil || pc != tc.want {
			t.Errorf("skip prologue from %#x: %#x %v, expected %#x", tc.pc, pc, err, tc.want)
		}
	}
}

func TestBinaryInfoWrongMachine(t *testing.T) {
	f, err := elf.NewFile(bytes.NewReader(testExecutable(t, elf.EM_X86_64)))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewBinaryInfo(f, 0, logflags.Flags{}); err == nil {
		t.Errorf("expected error for x86-64 executable")
	}
}
