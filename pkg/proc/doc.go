// Package proc reconstructs the call frames of a stopped RISC-V thread.
//
// proc implements:
// * prologue analysis, recovering the frame layout from machine code
// * a prologue based unwinder and stack walker
// * transfer of function return values between memory and registers
//
// A Target supplies memory, registers and symbols, see the core package
// for a target backed by a snapshot file.
package proc
