package proc

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ABI is the RISC-V ABI flag word: the integer register width in the top
// nibble and one bit per standard extension.
type ABI uint32

const (
	ABIFlagRV32I  ABI = 0x00000000 // 32-bit integer registers
	ABIFlagRV64I  ABI = 0x40000000 // 64-bit integer registers
	ABIFlagRV128I ABI = 0x80000000 // 128-bit integer registers
	ABIFlagXswfp  ABI = 0x01000000 // software floating point emulation
	ABIFlagM      ABI = 0x00000001 // integer multiply and division
	ABIFlagA      ABI = 0x00000002 // atomics
	ABIFlagF      ABI = 0x00000004 // single precision floating point
	ABIFlagD      ABI = 0x00000008 // double precision floating point
	ABIFlagQ      ABI = 0x00000010 // quad precision floating point
	ABIFlagL      ABI = 0x00000020 // decimal floating point
	ABIFlagC      ABI = 0x00000040 // compressed instructions
	ABIFlagB      ABI = 0x00000080 // bit manipulation
	ABIFlagT      ABI = 0x00000100 // transactional memory
	ABIFlagP      ABI = 0x00000200 // packed SIMD

	abiWidthMask ABI = 0xF0000000

	ABIRV32G      = ABIFlagRV32I | ABIFlagM | ABIFlagA | ABIFlagF | ABIFlagD
	ABIRV64G      = ABIFlagRV64I | ABIFlagM | ABIFlagA | ABIFlagF | ABIFlagD
	ABIRV32GXswfp = ABIRV32G | ABIFlagXswfp
	ABIRV64GXswfp = ABIRV64G | ABIFlagXswfp
)

var abiExtensions = []struct {
	flag ABI
	name byte
}{
	{ABIFlagM, 'm'}, {ABIFlagA, 'a'}, {ABIFlagF, 'f'}, {ABIFlagD, 'd'},
	{ABIFlagQ, 'q'}, {ABIFlagL, 'l'}, {ABIFlagC, 'c'}, {ABIFlagB, 'b'},
	{ABIFlagT, 't'}, {ABIFlagP, 'p'},
}

func (abi ABI) IsRV32I() bool  { return abi&abiWidthMask == ABIFlagRV32I }
func (abi ABI) IsRV64I() bool  { return abi&abiWidthMask == ABIFlagRV64I }
func (abi ABI) IsRV128I() bool { return abi&abiWidthMask == ABIFlagRV128I }

// HasFPU reports whether floating point values are passed in floating
// point registers.
func (abi ABI) HasFPU() bool {
	return abi&(ABIFlagF|ABIFlagD) != 0
}

// RegSize returns the integer register width implied by abi, 0 if the
// width field is not one of RV32I, RV64I or RV128I.
func (abi ABI) RegSize() int {
	switch {
	case abi.IsRV32I():
		return 4
	case abi.IsRV64I():
		return 8
	case abi.IsRV128I():
		return 16
	}
	return 0
}

// FLen returns the width of the floating point registers, 0 without an FPU.
func (abi ABI) FLen() int {
	switch {
	case abi&ABIFlagQ != 0:
		return 16
	case abi&ABIFlagD != 0:
		return 8
	case abi&ABIFlagF != 0:
		return 4
	}
	return 0
}

func (abi ABI) String() string {
	var b strings.Builder
	switch {
	case abi.IsRV32I():
		b.WriteString("rv32i")
	case abi.IsRV64I():
		b.WriteString("rv64i")
	case abi.IsRV128I():
		b.WriteString("rv128i")
	default:
		return fmt.Sprintf("ABI(%#x)", uint32(abi))
	}
	for _, ext := range abiExtensions {
		if abi&ext.flag != 0 {
			b.WriteByte(ext.name)
		}
	}
	if abi&ABIFlagXswfp != 0 {
		b.WriteString("_xswfp")
	}
	return b.String()
}

// ParseABI parses ABI names such as rv64g, rv32imac or rv64gc_xswfp. The
// g extension stands for imafd.
func ParseABI(s string) (ABI, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	var abi ABI
	if rest, ok := strings.CutSuffix(s, "_xswfp"); ok {
		abi |= ABIFlagXswfp
		s = rest
	}
	var exts string
	switch {
	case strings.HasPrefix(s, "rv32"):
		abi |= ABIFlagRV32I
		exts = s[len("rv32"):]
	case strings.HasPrefix(s, "rv64"):
		abi |= ABIFlagRV64I
		exts = s[len("rv64"):]
	case strings.HasPrefix(s, "rv128"):
		abi |= ABIFlagRV128I
		exts = s[len("rv128"):]
	default:
		return 0, fmt.Errorf("unknown ABI %q", s)
	}
	if exts == "" {
		return 0, fmt.Errorf("unknown ABI %q: missing base integer ISA", s)
	}
	switch exts[0] {
	case 'i':
	case 'g':
		abi |= ABIFlagM | ABIFlagA | ABIFlagF | ABIFlagD
	default:
		return 0, fmt.Errorf("unknown ABI %q: missing base integer ISA", s)
	}
nextExt:
	for i := 1; i < len(exts); i++ {
		for _, ext := range abiExtensions {
			if exts[i] == ext.name {
				abi |= ext.flag
				continue nextExt
			}
		}
		return 0, fmt.Errorf("unknown ABI %q: unsupported extension %q", s, exts[i])
	}
	return abi, nil
}

// Endianness is the byte order of the target. UnknownEndian performs no
// alignment of partial register transfers and reads memory little endian.
type Endianness uint8

const (
	LittleEndian Endianness = iota
	BigEndian
	UnknownEndian
)

func (e Endianness) String() string {
	switch e {
	case LittleEndian:
		return "little"
	case BigEndian:
		return "big"
	default:
		return "unknown"
	}
}

// ByteOrder returns the binary.ByteOrder used to decode target data.
func (e Endianness) ByteOrder() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// ParseEndianness parses "little", "big" or "unknown".
func ParseEndianness(s string) (Endianness, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "little", "le", "":
		return LittleEndian, nil
	case "big", "be":
		return BigEndian, nil
	case "unknown", "none":
		return UnknownEndian, nil
	}
	return 0, fmt.Errorf("unknown byte order %q", s)
}
