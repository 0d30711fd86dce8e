package op

import "fmt"

// Subset of the DWARF 5 expression opcodes (section 7.7.1) needed to
// locate values relative to registers, the frame base and the CFA.
const (
	DW_OP_addr           Opcode = 0x03
	DW_OP_constu         Opcode = 0x10
	DW_OP_consts         Opcode = 0x11
	DW_OP_minus          Opcode = 0x1c
	DW_OP_plus           Opcode = 0x22
	DW_OP_plus_uconst    Opcode = 0x23
	DW_OP_lit0           Opcode = 0x30
	DW_OP_lit31          Opcode = 0x4f
	DW_OP_reg0           Opcode = 0x50
	DW_OP_reg31          Opcode = 0x6f
	DW_OP_breg0          Opcode = 0x70
	DW_OP_breg31         Opcode = 0x8f
	DW_OP_regx           Opcode = 0x90
	DW_OP_fbreg          Opcode = 0x91
	DW_OP_bregx          Opcode = 0x92
	DW_OP_piece          Opcode = 0x93
	DW_OP_call_frame_cfa Opcode = 0x9c
)

var opcodeName = map[Opcode]string{
	DW_OP_addr:           "DW_OP_addr",
	DW_OP_constu:         "DW_OP_constu",
	DW_OP_consts:         "DW_OP_consts",
	DW_OP_minus:          "DW_OP_minus",
	DW_OP_plus:           "DW_OP_plus",
	DW_OP_plus_uconst:    "DW_OP_plus_uconst",
	DW_OP_regx:           "DW_OP_regx",
	DW_OP_fbreg:          "DW_OP_fbreg",
	DW_OP_bregx:          "DW_OP_bregx",
	DW_OP_piece:          "DW_OP_piece",
	DW_OP_call_frame_cfa: "DW_OP_call_frame_cfa",
}

// opcodeArgs describes the operands of each opcode: 's' is a SLEB128, 'u'
// an ULEB128 and 'a' a target address.
var opcodeArgs = map[Opcode]string{
	DW_OP_addr:        "a",
	DW_OP_constu:      "u",
	DW_OP_consts:      "s",
	DW_OP_plus_uconst: "u",
	DW_OP_regx:        "u",
	DW_OP_fbreg:       "s",
	DW_OP_bregx:       "us",
	DW_OP_piece:       "u",
}

func argsOf(op Opcode) string {
	if op >= DW_OP_breg0 && op <= DW_OP_breg31 {
		return "s"
	}
	return opcodeArgs[op]
}

func (op Opcode) String() string {
	switch {
	case op >= DW_OP_lit0 && op <= DW_OP_lit31:
		return fmt.Sprintf("DW_OP_lit%d", op-DW_OP_lit0)
	case op >= DW_OP_reg0 && op <= DW_OP_reg31:
		return fmt.Sprintf("DW_OP_reg%d", op-DW_OP_reg0)
	case op >= DW_OP_breg0 && op <= DW_OP_breg31:
		return fmt.Sprintf("DW_OP_breg%d", op-DW_OP_breg0)
	}
	if name, ok := opcodeName[op]; ok {
		return name
	}
	return fmt.Sprintf("%#x", byte(op))
}
