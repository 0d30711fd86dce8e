package proc

import (
	"bytes"
	"debug/dwarf"
	"errors"
	"math"
	"testing"

	"github.com/rvdbg/rvframe/pkg/dwarf/regnum"
)

func mustParseType(t *testing.T, a *Arch, s string) dwarf.Type {
	t.Helper()
	typ, err := a.ParseType(s)
	if err != nil {
		t.Fatal(err)
	}
	return typ
}

func TestReturnFloatPair(t *testing.T) {
	for _, endian := range []Endianness{LittleEndian, BigEndian} {
		a := mustArch(t, ABIRV64G, endian)
		regs := liveRegs(a, nil)
		tgt := NewTarget(newTestMemory(a.ByteOrder()), regs, nil)
		typ := mustParseType(t, a, "struct{double,double}")

		buf := make([]byte, 16)
		a.ByteOrder().PutUint64(buf[0:], math.Float64bits(1.5))
		a.ByteOrder().PutUint64(buf[8:], math.Float64bits(-2.25))

		conv, err := a.MarshalReturnValue(tgt, typ, ToRegisters, buf)
		if err != nil || conv != RegisterConvention {
			t.Fatalf("%v: %v %v", endian, conv, err)
		}
		if got := math.Float64frombits(regs.Uint64Val(regnum.RISCV_FA0)); got != 1.5 {
			t.Errorf("%v: fa0 = %g", endian, got)
		}
		if got := math.Float64frombits(regs.Uint64Val(regnum.RISCV_FA1)); got != -2.25 {
			t.Errorf("%v: fa1 = %g", endian, got)
		}
		if regs.Uint64Val(a0) != 0 {
			t.Errorf("%v: a0 modified", endian)
		}

		out := make([]byte, 16)
		if _, err := a.MarshalReturnValue(tgt, typ, ToMemory, out); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, buf) {
			t.Errorf("%v: round trip %x, expected %x", endian, out, buf)
		}
	}
}

func TestReturnIndirect(t *testing.T) {
	a := mustArch(t, ABIRV64G, LittleEndian)
	mem := newTestMemory(a.ByteOrder())
	regs := liveRegs(a, map[uint64]uint64{a0: 0x5000})
	tgt := NewTarget(mem, regs, nil)
	typ := mustParseType(t, a, "struct{long,long,long}")

	// the caller's buffer has not been written yet
	var fault *MemoryFaultError
	if _, err := a.MarshalReturnValue(tgt, typ, ToMemory, make([]byte, 24)); !errors.As(err, &fault) {
		t.Fatalf("expected memory fault, got %v", err)
	}

	buf := make([]byte, 24)
	for i := range buf {
		buf[i] = byte(i + 1)
	}
	conv, err := a.MarshalReturnValue(tgt, typ, ToRegisters, buf)
	if err != nil || conv != ABIReturnsAddress {
		t.Fatalf("%v %v", conv, err)
	}
	for i := range buf {
		if mem.bytes[0x5000+uint64(i)] != buf[i] {
			t.Fatalf("memory at %#x not written", 0x5000+i)
		}
	}
	if regs.Uint64Val(a0) != 0x5000 {
		t.Errorf("a0 modified: %#x", regs.Uint64Val(a0))
	}

	out := make([]byte, 24)
	conv, err = a.MarshalReturnValue(tgt, typ, ToMemory, out)
	if err != nil || conv != ABIReturnsAddress || !bytes.Equal(out, buf) {
		t.Errorf("read back %x %v %v", out, conv, err)
	}
}

func TestReturnPartialRegister(t *testing.T) {
	for _, endian := range []Endianness{LittleEndian, BigEndian} {
		a := mustArch(t, ABIRV64G, endian)
		regs := liveRegs(a, map[uint64]uint64{a0: 0xaaaaaaaaaaaaaaaa})
		tgt := NewTarget(newTestMemory(a.ByteOrder()), regs, nil)
		typ := mustParseType(t, a, "int")

		buf := make([]byte, 4)
		a.ByteOrder().PutUint32(buf, 0x11223344)
		if _, err := a.MarshalReturnValue(tgt, typ, ToRegisters, buf); err != nil {
			t.Fatal(err)
		}
		// the value is in the low half, the high half is untouched
		if got := regs.Uint64Val(a0); got != 0xaaaaaaaa11223344 {
			t.Errorf("%v: a0 = %#x", endian, got)
		}

		out := make([]byte, 4)
		if _, err := a.MarshalReturnValue(tgt, typ, ToMemory, out); err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(out, buf) {
			t.Errorf("%v: read %x, expected %x", endian, out, buf)
		}
	}
}

func TestReturnClassification(t *testing.T) {
	for _, tc := range []struct {
		abi      ABI
		typ      string
		conv     ReturnConvention
		firstReg uint64
	}{
		{ABIRV64G, "double", RegisterConvention, regnum.RISCV_FA0},
		{ABIRV64G, "float", RegisterConvention, regnum.RISCV_FA0},
		{ABIRV64G, "struct{float}", RegisterConvention, regnum.RISCV_FA0},
		{ABIRV64G, "union{float,double}", RegisterConvention, regnum.RISCV_FA0},
		{ABIRV64G, "struct{float,int}", RegisterConvention, a0},
		{ABIRV64G, "struct{float,float,float}", RegisterConvention, a0},
		{ABIRV64G, "struct{int,int}", RegisterConvention, a0},
		{ABIRV64G, "long", RegisterConvention, a0},
		{ABIRV64G, "[2]long", RegisterConvention, a0},
		{ABIRV64G, "[3]long", ABIReturnsAddress, a0},
		{ABIFlagRV64I | ABIFlagM | ABIFlagA | ABIFlagC, "double", RegisterConvention, a0},
		{ABIRV32G, "long long", RegisterConvention, a0},
		{ABIRV32G, "struct{int,int,int}", ABIReturnsAddress, a0},
	} {
		a := mustArch(t, tc.abi, LittleEndian)
		regs := liveRegs(a, map[uint64]uint64{a0: 0x5000})
		mem := newTestMemory(a.ByteOrder())
		mem.zero(0x5000, 64)
		typ := mustParseType(t, a, tc.typ)

		buf := make([]byte, typ.Size())
		for i := range buf {
			buf[i] = 0xff
		}
		conv, err := a.MarshalReturnValue(NewTarget(mem, regs, nil), typ, ToRegisters, buf)
		if err != nil {
			t.Errorf("%v %s: %v", tc.abi, tc.typ, err)
			continue
		}
		if conv != tc.conv {
			t.Errorf("%v %s: convention %v, expected %v", tc.abi, tc.typ, conv, tc.conv)
		}
		if conv == RegisterConvention && regs.Uint64Val(tc.firstReg)&0xff != 0xff {
			t.Errorf("%v %s: value not in %s", tc.abi, tc.typ, regnum.RISCVToABIName(tc.firstReg))
		}
	}
}

func TestReturnRoundTrip(t *testing.T) {
	for _, abi := range []ABI{ABIRV32G, ABIRV64G} {
		for _, endian := range []Endianness{LittleEndian, BigEndian} {
			for _, typstr := range []string{"int", "long", "float", "double", "struct{int,int,int}", "struct{float,double}", "struct{double,double}", "[3]long"} {
				a := mustArch(t, abi, endian)
				regs := liveRegs(a, map[uint64]uint64{a0: 0x5000})
				mem := newTestMemory(a.ByteOrder())
				mem.zero(0x5000, 64)
				tgt := NewTarget(mem, regs, nil)
				typ := mustParseType(t, a, typstr)

				buf := make([]byte, typ.Size())
				for i := range buf {
					buf[i] = byte(0x11 * (i + 1))
				}
				conv, err := a.MarshalReturnValue(tgt, typ, ToRegisters, buf)
				if err != nil {
					t.Fatalf("%v %v %s: %v", abi, endian, typstr, err)
				}
				if want := len(buf) > 2*a.IsaRegSize(); (conv == ABIReturnsAddress) != want {
					t.Errorf("%v %v %s: convention %v", abi, endian, typstr, conv)
				}

				out := make([]byte, len(buf))
				if _, err := a.MarshalReturnValue(tgt, typ, ToMemory, out); err != nil {
					t.Fatalf("%v %v %s: %v", abi, endian, typstr, err)
				}
				if !bytes.Equal(out, buf) {
					t.Errorf("%v %v %s: round trip %x, expected %x", abi, endian, typstr, out, buf)
				}
			}
		}
	}
}

func TestReturnNarrowedChunk(t *testing.T) {
	// 12 bytes on RV64: 8 in a0 and the last 4 in the low half of a1
	for _, endian := range []Endianness{LittleEndian, BigEndian} {
		a := mustArch(t, ABIRV64G, endian)
		regs := liveRegs(a, nil)
		tgt := NewTarget(newTestMemory(a.ByteOrder()), regs, nil)
		typ := mustParseType(t, a, "struct{int,int,int}")

		buf := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
		conv, err := a.MarshalReturnValue(tgt, typ, ToRegisters, buf)
		if err != nil || conv != RegisterConvention {
			t.Fatalf("%v: %v %v", endian, conv, err)
		}
		if got, want := regs.Uint64Val(a0), a.ByteOrder().Uint64(buf[:8]); got != want {
			t.Errorf("%v: a0 = %#x, expected %#x", endian, got, want)
		}
		if got, want := regs.Uint64Val(a1), uint64(a.ByteOrder().Uint32(buf[8:])); got != want {
			t.Errorf("%v: a1 = %#x, expected %#x", endian, got, want)
		}
	}
}

func TestReturnBufferTooSmall(t *testing.T) {
	a := mustArch(t, ABIRV64G, LittleEndian)
	tgt := NewTarget(newTestMemory(a.ByteOrder()), liveRegs(a, nil), nil)
	if _, err := a.MarshalReturnValue(tgt, mustParseType(t, a, "long"), ToMemory, make([]byte, 4)); err == nil {
		t.Errorf("expected error")
	}
}
