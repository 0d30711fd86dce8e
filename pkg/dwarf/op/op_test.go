package op

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestExecuteStackProgram(t *testing.T) {
	var (
		instructions = []byte{byte(DW_OP_consts), 0x1c, byte(DW_OP_consts), 0x1c, byte(DW_OP_plus)}
		expected     = int64(56)
	)
	actual, _, err := ExecuteStackProgram(&DwarfRegisters{}, instructions, 8, nil)
	if err != nil {
		t.Fatal(err)
	}

	if actual != expected {
		t.Fatalf("actual %d != expected %d", actual, expected)
	}
}

// appendSleb appends x in signed LEB128 format.
func appendSleb(buf []byte, x int64) []byte {
	for {
		b := byte(x & 0x7f)
		x >>= 7
		if (x == 0 && b&0x40 == 0) || (x == -1 && b&0x40 != 0) {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func fbreg(off int64) []byte {
	return appendSleb([]byte{byte(DW_OP_fbreg)}, off)
}

func TestReadLeb(t *testing.T) {
	u, err := readUleb(bytes.NewBuffer([]byte{0xe5, 0x8e, 0x26}))
	if err != nil || u != 624485 {
		t.Errorf("readUleb: %d %v", u, err)
	}
	s, err := readSleb(bytes.NewBuffer([]byte{0x9b, 0xf1, 0x59}))
	if err != nil || s != -624485 {
		t.Errorf("readSleb: %d %v", s, err)
	}
	for _, x := range []int64{0, 1, -1, 63, 64, -64, -65, 1 << 40, -(1 << 40)} {
		got, err := readSleb(bytes.NewBuffer(appendSleb(nil, x)))
		if err != nil || got != x {
			t.Errorf("round trip %d: got %d %v", x, got, err)
		}
	}
	if _, err := readUleb(bytes.NewBuffer([]byte{0x80, 0x80})); err != errTruncated {
		t.Errorf("expected errTruncated, got %v", err)
	}
	if _, err := readSleb(bytes.NewBuffer(nil)); err != errTruncated {
		t.Errorf("expected errTruncated, got %v", err)
	}
}

func TestFrameRelative(t *testing.T) {
	regs := NewDwarfRegisters(nil, binary.LittleEndian, 32, 2)
	regs.AddReg(2, DwarfRegisterFromUint64(0x3fffff00))
	regs.CFA = 0x3fffff40
	regs.FrameBase = 0x3fffff40

	for _, tc := range []struct {
		name string
		expr []byte
		want int64
	}{
		{"cfa", []byte{byte(DW_OP_call_frame_cfa)}, 0x3fffff40},
		{"fbreg", fbreg(-24), 0x3fffff40 - 24},
		{"breg2", []byte{byte(DW_OP_breg0 + 2), 0x10}, 0x3fffff10},
		{"lit-minus", []byte{byte(DW_OP_call_frame_cfa), byte(DW_OP_lit0 + 8), byte(DW_OP_minus)}, 0x3fffff38},
		{"plus_uconst", []byte{byte(DW_OP_call_frame_cfa), byte(DW_OP_plus_uconst), 0x08}, 0x3fffff48},
	} {
		got, pieces, err := ExecuteStackProgram(regs, tc.expr, 8, nil)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if pieces != nil {
			t.Fatalf("%s: unexpected pieces %v", tc.name, pieces)
		}
		if got != tc.want {
			t.Errorf("%s: got %#x want %#x", tc.name, got, tc.want)
		}
	}
}

func TestRegisterPieces(t *testing.T) {
	regs := NewDwarfRegisters(nil, binary.LittleEndian, 32, 2)
	regMap := func(n uint64) (uint64, bool) { return n + 100, true }
	_, pieces, err := ExecuteStackProgram(regs, []byte{byte(DW_OP_reg0 + 10), byte(DW_OP_piece), 8, byte(DW_OP_reg0 + 11), byte(DW_OP_piece), 8}, 8, regMap)
	if err != nil {
		t.Fatal(err)
	}
	if len(pieces) != 2 || pieces[0].RegNum != 110 || pieces[1].RegNum != 111 || pieces[0].Size != 8 || !pieces[1].IsRegister {
		t.Fatalf("wrong pieces %#v", pieces)
	}
}

func TestErrors(t *testing.T) {
	for _, expr := range [][]byte{
		{byte(DW_OP_call_frame_cfa)},
		{byte(DW_OP_plus)},
		{byte(DW_OP_consts)},
		{0xff},
		{},
	} {
		if _, _, err := ExecuteStackProgram(&DwarfRegisters{}, expr, 8, nil); err == nil {
			t.Errorf("expected error for %x", expr)
		}
	}
}

func TestPrettyPrint(t *testing.T) {
	var out strings.Builder
	PrettyPrint(&out, append([]byte{byte(DW_OP_breg0 + 8), 0x10}, fbreg(-16)...), 8)
	if got := out.String(); got != "DW_OP_breg8 0x10 DW_OP_fbreg -0x10 " {
		t.Fatalf("got %q", got)
	}
}
