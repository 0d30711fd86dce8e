package proc

import (
	"debug/dwarf"
	"fmt"
	"strconv"
	"strings"
)

// ParseType parses a C-like type description into a DWARF type laid out
// for a, for example "double", "struct{double,double}", "union{float}",
// "[3]long" or "*char". Fields are aligned naturally.
func (a *Arch) ParseType(s string) (dwarf.Type, error) {
	p := &typeParser{a: a, toks: tokenizeType(s)}
	typ, err := p.parse()
	if err != nil {
		return nil, fmt.Errorf("could not parse type %q: %w", s, err)
	}
	if p.pos != len(p.toks) {
		return nil, fmt.Errorf("could not parse type %q: unexpected %q", s, p.toks[p.pos])
	}
	return typ, nil
}

func tokenizeType(s string) []string {
	var toks []string
	var cur strings.Builder
	flush := func() {
		if w := strings.Join(strings.Fields(cur.String()), " "); w != "" {
			toks = append(toks, w)
		}
		cur.Reset()
	}
	for _, ch := range s {
		switch ch {
		case '{', '}', '[', ']', ',', '*':
			flush()
			toks = append(toks, string(ch))
		default:
			cur.WriteRune(ch)
		}
	}
	flush()
	return toks
}

type typeParser struct {
	a    *Arch
	toks []string
	pos  int
}

func (p *typeParser) peek() string {
	if p.pos >= len(p.toks) {
		return ""
	}
	return p.toks[p.pos]
}

func (p *typeParser) expect(tok string) error {
	if p.peek() != tok {
		if p.pos >= len(p.toks) {
			return fmt.Errorf("expected %q at end of input", tok)
		}
		return fmt.Errorf("expected %q, got %q", tok, p.peek())
	}
	p.pos++
	return nil
}

func (p *typeParser) parse() (dwarf.Type, error) {
	tok := p.peek()
	switch tok {
	case "":
		return nil, fmt.Errorf("missing type")
	case "*":
		p.pos++
		elem, err := p.parse()
		if err != nil {
			return nil, err
		}
		ptrSize := int64(p.a.PtrSize())
		return &dwarf.PtrType{CommonType: dwarf.CommonType{ByteSize: ptrSize, Name: "*" + elem.String()}, Type: elem}, nil
	case "[":
		p.pos++
		n, err := strconv.ParseInt(p.peek(), 0, 64)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("bad array length %q", p.peek())
		}
		p.pos++
		if err := p.expect("]"); err != nil {
			return nil, err
		}
		elem, err := p.parse()
		if err != nil {
			return nil, err
		}
		return &dwarf.ArrayType{CommonType: dwarf.CommonType{ByteSize: n * elem.Size()}, Type: elem, StrideBitSize: 0, Count: n}, nil
	case "struct", "union":
		p.pos++
		return p.parseAggregate(tok)
	}
	p.pos++
	return p.basicType(tok)
}

func (p *typeParser) parseAggregate(kind string) (dwarf.Type, error) {
	if err := p.expect("{"); err != nil {
		return nil, err
	}
	st := &dwarf.StructType{Kind: kind}
	var off, align int64 = 0, 1
	for i := 0; p.peek() != "}"; i++ {
		if i > 0 {
			if err := p.expect(","); err != nil {
				return nil, err
			}
		}
		ft, err := p.parse()
		if err != nil {
			return nil, err
		}
		fa := typeAlign(ft)
		if fa > align {
			align = fa
		}
		var fieldOff int64
		if kind == "struct" {
			fieldOff = (off + fa - 1) / fa * fa
			off = fieldOff + ft.Size()
		} else if ft.Size() > off {
			off = ft.Size()
		}
		st.Field = append(st.Field, &dwarf.StructField{Name: fmt.Sprintf("f%d", i), Type: ft, ByteOffset: fieldOff, ByteSize: ft.Size()})
	}
	p.pos++
	st.ByteSize = (off + align - 1) / align * align
	return st, nil
}

func typeAlign(typ dwarf.Type) int64 {
	switch typ := resolveTypedef(typ).(type) {
	case *dwarf.ArrayType:
		return typeAlign(typ.Type)
	case *dwarf.StructType:
		var align int64 = 1
		for _, f := range typ.Field {
			if fa := typeAlign(f.Type); fa > align {
				align = fa
			}
		}
		return align
	default:
		if sz := typ.Size(); sz > 0 {
			return sz
		}
		return 1
	}
}

func (p *typeParser) basicType(name string) (dwarf.Type, error) {
	long := int64(8)
	if p.a.abi.IsRV32I() {
		long = 4
	}
	common := func(size int64) dwarf.BasicType {
		return dwarf.BasicType{CommonType: dwarf.CommonType{ByteSize: size, Name: name}}
	}
	switch name {
	case "char", "signed char", "int8":
		return &dwarf.IntType{BasicType: common(1)}, nil
	case "unsigned char", "uint8", "byte", "bool":
		return &dwarf.UintType{BasicType: common(1)}, nil
	case "short", "int16":
		return &dwarf.IntType{BasicType: common(2)}, nil
	case "unsigned short", "uint16":
		return &dwarf.UintType{BasicType: common(2)}, nil
	case "int", "int32":
		return &dwarf.IntType{BasicType: common(4)}, nil
	case "unsigned", "unsigned int", "uint32":
		return &dwarf.UintType{BasicType: common(4)}, nil
	case "long":
		return &dwarf.IntType{BasicType: common(long)}, nil
	case "unsigned long":
		return &dwarf.UintType{BasicType: common(long)}, nil
	case "long long", "int64":
		return &dwarf.IntType{BasicType: common(8)}, nil
	case "unsigned long long", "uint64":
		return &dwarf.UintType{BasicType: common(8)}, nil
	case "float", "float32":
		return &dwarf.FloatType{BasicType: common(4)}, nil
	case "double", "float64":
		return &dwarf.FloatType{BasicType: common(8)}, nil
	case "long double":
		return &dwarf.FloatType{BasicType: common(16)}, nil
	}
	return nil, fmt.Errorf("unknown type %q", name)
}
