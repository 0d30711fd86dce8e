package op

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// Opcode represent a DWARF stack program instruction.
type Opcode byte

// Piece is a piece of memory stored either at an address or in a register.
type Piece struct {
	Size       int
	Addr       int64
	RegNum     uint64
	IsRegister bool
}

var (
	errStackUnderflow = errors.New("stack underflow")
	errEmptyStack     = errors.New("empty OP stack")
)

// evaluator holds the state of a running location expression.
type evaluator struct {
	code    *bytes.Buffer
	stack   []int64
	pieces  []Piece
	ptrSize int
	regMap  func(uint64) (uint64, bool)
	regs    *DwarfRegisters

	// inRegister is set after DW_OP_regN, only DW_OP_piece can follow.
	inRegister bool
}

type opHandler func(ev *evaluator, opcode Opcode) error

var handlers = func() map[Opcode]opHandler {
	m := map[Opcode]opHandler{
		DW_OP_addr:           (*evaluator).address,
		DW_OP_constu:         (*evaluator).constant,
		DW_OP_consts:         (*evaluator).constant,
		DW_OP_minus:          (*evaluator).arith,
		DW_OP_plus:           (*evaluator).arith,
		DW_OP_plus_uconst:    (*evaluator).plusUconst,
		DW_OP_regx:           (*evaluator).register,
		DW_OP_fbreg:          (*evaluator).frameBase,
		DW_OP_bregx:          (*evaluator).baseRegister,
		DW_OP_piece:          (*evaluator).piece,
		DW_OP_call_frame_cfa: (*evaluator).callFrameCFA,
	}
	for i := Opcode(0); i < 32; i++ {
		m[DW_OP_lit0+i] = (*evaluator).literal
		m[DW_OP_reg0+i] = (*evaluator).register
		m[DW_OP_breg0+i] = (*evaluator).baseRegister
	}
	return m
}()

// ExecuteStackProgram executes a DWARF location expression and returns
// either an address (int64), or a slice of Pieces for location expressions
// that don't evaluate to an address (such as register and composite expressions).
// regMap converts DWARF register numbers into indexes of regs, a nil regMap
// uses DWARF numbers directly.
func ExecuteStackProgram(regs *DwarfRegisters, instructions []byte, ptrSize int, regMap func(uint64) (uint64, bool)) (int64, []Piece, error) {
	if regMap == nil {
		regMap = func(n uint64) (uint64, bool) { return n, true }
	}
	ev := &evaluator{
		code:    bytes.NewBuffer(instructions),
		stack:   make([]int64, 0, 4),
		ptrSize: ptrSize,
		regMap:  regMap,
		regs:    regs,
	}

	for ev.code.Len() > 0 {
		opcode := Opcode(ev.code.Next(1)[0])
		if ev.inRegister && opcode != DW_OP_piece {
			break
		}
		fn := handlers[opcode]
		if fn == nil {
			return 0, nil, fmt.Errorf("invalid instruction %v", opcode)
		}
		if err := fn(ev, opcode); err != nil {
			return 0, nil, fmt.Errorf("%v: %w", opcode, err)
		}
	}

	switch {
	case ev.pieces != nil:
		return 0, ev.pieces, nil
	case len(ev.stack) == 0:
		return 0, nil, errEmptyStack
	}
	return ev.top(), nil, nil
}

// PrettyPrint prints the DWARF stack program instructions to `out`.
func PrettyPrint(out io.Writer, instructions []byte, ptrSize int) {
	code := bytes.NewBuffer(instructions)
	for code.Len() > 0 {
		opcode := Opcode(code.Next(1)[0])
		fmt.Fprintf(out, "%v ", opcode)
		for _, arg := range argsOf(opcode) {
			switch arg {
			case 's':
				n, _ := readSleb(code)
				fmt.Fprintf(out, "%#x ", n)
			case 'u':
				n, _ := readUleb(code)
				fmt.Fprintf(out, "%#x ", n)
			case 'a':
				fmt.Fprintf(out, "%#x ", littleEndianAddr(code.Next(ptrSize)))
			}
		}
	}
}

// littleEndianAddr decodes a DW_OP_addr operand.
func littleEndianAddr(buf []byte) uint64 {
	var n uint64
	for i := len(buf) - 1; i >= 0; i-- {
		n = n<<8 | uint64(buf[i])
	}
	return n
}

func (ev *evaluator) push(v int64) { ev.stack = append(ev.stack, v) }

func (ev *evaluator) top() int64 { return ev.stack[len(ev.stack)-1] }

func (ev *evaluator) pop() int64 {
	v := ev.top()
	ev.stack = ev.stack[:len(ev.stack)-1]
	return v
}

func (ev *evaluator) mapRegister(n uint64) (uint64, error) {
	reg, ok := ev.regMap(n)
	if !ok {
		return 0, fmt.Errorf("unknown DWARF register %d", n)
	}
	return reg, nil
}

func (ev *evaluator) address(Opcode) error {
	buf := ev.code.Next(ev.ptrSize)
	if len(buf) != ev.ptrSize {
		return errTruncated
	}
	ev.push(int64(littleEndianAddr(buf)))
	return nil
}

func (ev *evaluator) literal(opcode Opcode) error {
	ev.push(int64(opcode - DW_OP_lit0))
	return nil
}

func (ev *evaluator) constant(opcode Opcode) error {
	if opcode == DW_OP_consts {
		n, err := readSleb(ev.code)
		if err != nil {
			return err
		}
		ev.push(n)
		return nil
	}
	n, err := readUleb(ev.code)
	if err != nil {
		return err
	}
	ev.push(int64(n))
	return nil
}

func (ev *evaluator) arith(opcode Opcode) error {
	if len(ev.stack) < 2 {
		return errStackUnderflow
	}
	b, a := ev.pop(), ev.pop()
	if opcode == DW_OP_minus {
		ev.push(a - b)
	} else {
		ev.push(a + b)
	}
	return nil
}

func (ev *evaluator) plusUconst(Opcode) error {
	if len(ev.stack) == 0 {
		return errStackUnderflow
	}
	n, err := readUleb(ev.code)
	if err != nil {
		return err
	}
	ev.stack[len(ev.stack)-1] += int64(n)
	return nil
}

func (ev *evaluator) callFrameCFA(Opcode) error {
	if ev.regs.CFA == 0 {
		return errors.New("could not retrieve CFA for current PC")
	}
	ev.push(ev.regs.CFA)
	return nil
}

func (ev *evaluator) frameBase(Opcode) error {
	off, err := readSleb(ev.code)
	if err != nil {
		return err
	}
	ev.push(ev.regs.FrameBase + off)
	return nil
}

// registerOperand returns the register named by DW_OP_regN, DW_OP_bregN
// or the ULEB operand of their x variants.
func (ev *evaluator) registerOperand(opcode, base, extended Opcode) (uint64, error) {
	if opcode != extended {
		return ev.mapRegister(uint64(opcode - base))
	}
	n, err := readUleb(ev.code)
	if err != nil {
		return 0, err
	}
	return ev.mapRegister(n)
}

func (ev *evaluator) register(opcode Opcode) error {
	ev.inRegister = true
	reg, err := ev.registerOperand(opcode, DW_OP_reg0, DW_OP_regx)
	if err != nil {
		return err
	}
	ev.pieces = append(ev.pieces, Piece{IsRegister: true, RegNum: reg})
	return nil
}

func (ev *evaluator) baseRegister(opcode Opcode) error {
	reg, err := ev.registerOperand(opcode, DW_OP_breg0, DW_OP_bregx)
	if err != nil {
		return err
	}
	off, err := readSleb(ev.code)
	if err != nil {
		return err
	}
	if ev.regs.Reg(reg) == nil {
		return fmt.Errorf("register %d not available", reg)
	}
	ev.push(int64(ev.regs.Uint64Val(reg)) + off)
	return nil
}

func (ev *evaluator) piece(Opcode) error {
	size, err := readUleb(ev.code)
	if err != nil {
		return err
	}
	if ev.inRegister {
		ev.inRegister = false
		ev.pieces[len(ev.pieces)-1].Size = int(size)
		return nil
	}
	if len(ev.stack) == 0 {
		return errEmptyStack
	}
	ev.pieces = append(ev.pieces, Piece{Size: int(size), Addr: ev.top()})
	ev.stack = ev.stack[:0]
	return nil
}
