package proc

import (
	"debug/dwarf"
	"testing"
)

func TestParseType(t *testing.T) {
	rv64 := mustArch(t, ABIRV64G, LittleEndian)
	rv32 := mustArch(t, ABIRV32G, LittleEndian)
	for _, tc := range []struct {
		a     *Arch
		in    string
		size  int64
		float bool
	}{
		{rv64, "char", 1, false},
		{rv64, "unsigned short", 2, false},
		{rv64, "long", 8, false},
		{rv32, "long", 4, false},
		{rv32, "long long", 8, false},
		{rv64, "double", 8, true},
		{rv64, "long double", 16, true},
		{rv64, "*char", 8, false},
		{rv32, "*char", 4, false},
		{rv64, "[3]int", 12, false},
		{rv64, "struct{double,double}", 16, true},
		{rv64, "struct{char,double}", 16, false},
		{rv64, "struct{int,char}", 8, false},
		{rv64, "struct { float , float }", 8, true},
		{rv64, "union{float,double}", 8, true},
		{rv64, "union{float,int}", 4, false},
		{rv64, "struct{struct{double}}", 8, false},
		{rv64, "struct{}", 0, false},
	} {
		typ, err := tc.a.ParseType(tc.in)
		if err != nil {
			t.Errorf("%s: %v", tc.in, err)
			continue
		}
		if typ.Size() != tc.size {
			t.Errorf("%s: size %d, expected %d", tc.in, typ.Size(), tc.size)
		}
		if isFloatReturn(typ) != tc.float {
			t.Errorf("%s: float return %v", tc.in, !tc.float)
		}
	}

	for _, in := range []string{"", "struct{int", "[x]int", "quux", "int int", "struct{int,}", "*"} {
		if _, err := rv64.ParseType(in); err == nil {
			t.Errorf("%q: expected error", in)
		}
	}
}

func TestParseTypeFieldOffsets(t *testing.T) {
	a := mustArch(t, ABIRV64G, LittleEndian)
	typ, err := a.ParseType("struct{char,int,short,double}")
	if err != nil {
		t.Fatal(err)
	}
	st := typ.(*dwarf.StructType)
	for i, want := range []int64{0, 4, 8, 16} {
		if st.Field[i].ByteOffset != want {
			t.Errorf("field %d at %d, expected %d", i, st.Field[i].ByteOffset, want)
		}
	}
	if st.ByteSize != 24 {
		t.Errorf("size %d", st.ByteSize)
	}
}

func TestResolveTypedef(t *testing.T) {
	base := &dwarf.FloatType{BasicType: dwarf.BasicType{CommonType: dwarf.CommonType{ByteSize: 8, Name: "double"}}}
	td := &dwarf.TypedefType{CommonType: dwarf.CommonType{ByteSize: 8, Name: "real"}, Type: &dwarf.QualType{Qual: "const", Type: base}}
	if resolveTypedef(td) != dwarf.Type(base) {
		t.Errorf("typedef not resolved")
	}
	st := &dwarf.StructType{Kind: "struct", Field: []*dwarf.StructField{{Name: "x", Type: td}}}
	st.ByteSize = 8
	if !isFloatReturn(st) {
		t.Errorf("struct of a typedef to double is not a float return")
	}
	if isFloatReturn(&dwarf.StructType{Kind: "class", Field: st.Field}) {
		t.Errorf("class is a float return")
	}
}
