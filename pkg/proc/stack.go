package proc

import (
	"errors"
	"fmt"

	"github.com/rvdbg/rvframe/pkg/dwarf/op"
)

// Stackframe represents a frame in a system stack.
type Stackframe struct {
	// PC is the current program counter of the frame.
	PC uint64
	// SP is the stack pointer of the frame.
	SP uint64
	// CFA is the frame base computed by the unwinder.
	CFA int64
	// Ret is the address the frame will return to, 0 for the outermost frame.
	Ret uint64

	ID       FrameID
	Function *Function
	Regs     *op.DwarfRegisters
	Frame    *UnwindFrame
}

// FunctionName returns the name of the frame's function or "?".
func (frame *Stackframe) FunctionName() string {
	if frame.Function == nil {
		return "?"
	}
	return frame.Function.Name
}

// NullAddrError is an error for a null address.
type NullAddrError struct{}

func (n NullAddrError) Error() string {
	return "NULL address"
}

// stackIterator holds information
// required to iterate and walk the program
// stack.
type stackIterator struct {
	a     *Arch
	u     Unwinder
	next  *UnwindFrame
	atend bool
	frame Stackframe
	err   error
	seen  map[FrameID]bool
}

func (a *Arch) newStackIterator(t Target, regs *op.DwarfRegisters) *stackIterator {
	return &stackIterator{
		a:    a,
		u:    a.Unwinder(t),
		next: NewUnwindFrame(regs),
		seen: make(map[FrameID]bool),
	}
}

// Next points the iterator to the next stack frame.
func (it *stackIterator) Next() bool {
	if it.err != nil || it.atend {
		return false
	}
	frame := it.next
	id, err := it.u.FrameID(frame)
	if err != nil {
		it.err = err
		return false
	}
	if it.seen[id] {
		// the previous frame is identical to this one, the stack is
		// corrupt or the outermost frame was reached without symbols
		it.a.frameLog.Debugf("frame %#x/%#x already seen, stopping", id.StackAddr, id.CodeAddr)
		it.atend = true
		return false
	}
	it.seen[id] = true

	it.frame = Stackframe{
		PC:       frame.Regs.PC(),
		SP:       frame.Regs.SP(),
		CFA:      frame.Regs.CFA,
		ID:       id,
		Function: frame.Cache().Function,
		Regs:     frame.Regs,
		Frame:    frame,
	}

	ret, err := it.a.UnwindPC(it.u, frame)
	if err != nil {
		it.err = err
		return false
	}
	it.frame.Ret = ret
	if ret == 0 {
		it.atend = true
		return true
	}

	it.next, err = it.a.callerFrame(it.u, frame)
	if err != nil {
		it.err = err
		return false
	}
	return true
}

// Frame returns the frame the iterator is pointing at.
func (it *stackIterator) Frame() Stackframe {
	return it.frame
}

// Err returns the error encountered during stack iteration.
func (it *stackIterator) Err() error {
	return it.err
}

// stacktrace returns up to depth+1 frames. Frames collected before an
// error are returned along with it.
func (it *stackIterator) stacktrace(depth int) ([]Stackframe, error) {
	if depth < 0 {
		return nil, errors.New("negative maximum stack depth")
	}
	frames := make([]Stackframe, 0, depth+1)
	for it.Next() {
		frames = append(frames, it.Frame())
		if len(frames) >= depth+1 {
			break
		}
	}
	return frames, it.Err()
}

// Stacktrace unwinds the stack of t starting from its current registers.
func (a *Arch) Stacktrace(t Target, depth int) ([]Stackframe, error) {
	regs, err := a.LoadRegisters(t.Registers())
	if err != nil {
		return nil, fmt.Errorf("could not load registers: %w", err)
	}
	return a.newStackIterator(t, regs).stacktrace(depth)
}
