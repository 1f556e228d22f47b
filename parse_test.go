package minotaur_test

import (
	"testing"

	"github.com/artagnon/minotaur"
	"github.com/artagnon/minotaur/ssa"
)

// parserFixture builds a function with live-ins of several shapes for
// the parser to resolve against.
func parserFixture() *ssa.Func {
	m := ssa.NewModule("m")
	f := m.NewFunc("sliced_t0", ssa.I32)
	f.AddParam("x", ssa.I32)
	f.AddParam("y", ssa.I32)
	f.AddParam("v", ssa.VecType(4, ssa.I32))
	f.AddParam("fx", ssa.FloatTyp)
	f.AddParam("c", ssa.I1)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	x := f.Params[0]
	b.CreateRet(b.CreateBinOp(ssa.OpAdd, x, x))
	return f
}

func TestParser_RoundTrip(t *testing.T) {
	f := parserFixture()
	p := minotaur.NewParser(minotaur.DefaultConfig(), f)

	for _, src := range []string{
		"%x",
		"(copy (const i32 42))",
		"(const i32 ?)",
		"(const <4 x i8> {1, 2, 3, 4})",
		"(ctpop <4 x i8> %x)",
		"(bswap <2 x i16> %x)",
		"(add <2 x i16> %x, %y)",
		"(band i32 %x, (const i32 255))",
		"(sub i32 %x, %y)",
		"(umin i32 %x, %y)",
		"(fadd float %fx, (const float ?))",
		"(icmp ult i32 %x, %y)",
		"(fcmp oeq float %fx, %fx)",
		"(zext <4 x i8> %x to <4 x i16>)",
		"(trunc i32 %x to i8)",
		"(fptosi float %fx to i32)",
		"(sitofp i32 %x to float)",
		"(extractelement <4 x i32> %v, (const i16 2))",
		"(insertelement <4 x i32> %v, %x, (const i16 0))",
		"(shuffle %v, (const <4 x i32> {0, 0, 0, 0}), <4 x i32>)",
		"(blend %v, %v, (const <4 x i32> {0, 4, 1, 5}), <4 x i32>)",
		"(select %c, %x, %y)",
		"(x86.sse2.pavg.b %v, %v)",
	} {
		inst, err := p.Parse(src)
		if err != nil {
			t.Fatalf("parse %q: %v", src, err)
		}
		if got := inst.String(); got != src {
			t.Fatalf("round trip mismatch:\n  in:  %s\n  out: %s", src, got)
		}
	}
}

func TestParser_Errors(t *testing.T) {
	f := parserFixture()
	p := minotaur.NewParser(minotaur.DefaultConfig(), f)

	for _, src := range []string{
		"",
		"(",
		"%unknown",
		"(frobnicate i32 %x)",
		"(add i32 %x)",
		"(add i32 %x, %y) trailing",
		"(const i32)",
	} {
		if _, err := p.Parse(src); err == nil {
			t.Fatalf("expected error for %q", src)
		}
	}
}

func TestParser_ResolvesInstructions(t *testing.T) {
	f := parserFixture()
	p := minotaur.NewParser(minotaur.DefaultConfig(), f)

	// the add instruction of the fixture is %t0
	inst, err := p.Parse("(bxor i32 %t0, %x)")
	if err != nil {
		t.Fatal(err)
	}
	bo, ok := inst.(*minotaur.BinaryOp)
	if !ok {
		t.Fatalf("unexpected node: %T", inst)
	}
	v, ok := bo.L.(*minotaur.Var)
	if !ok || v.Nm != "t0" {
		t.Fatalf("unexpected lhs: %s", bo.L)
	}
}

func TestParser_NegativeConstant(t *testing.T) {
	f := parserFixture()
	p := minotaur.NewParser(minotaur.DefaultConfig(), f)
	inst, err := p.Parse("(add i32 %x, (const i32 -1))")
	if err != nil {
		t.Fatal(err)
	}
	bo := inst.(*minotaur.BinaryOp)
	rc := bo.R.(*minotaur.ReservedConst)
	if rc.C.Elems[0] != 0xFFFFFFFF {
		t.Fatalf("unexpected constant: %#x", rc.C.Elems[0])
	}
}
