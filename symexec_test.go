package minotaur_test

import (
	"testing"

	"github.com/artagnon/minotaur"
	"github.com/artagnon/minotaur/ssa"
)

// execConst runs a function symbolically and requires the result to
// fold down to a constant.
func execConst(t *testing.T, f *ssa.Func) *minotaur.ConstantExpr {
	t.Helper()
	e, err := minotaur.ExecFunction(f, "src")
	if err != nil {
		t.Fatal(err)
	}
	c, ok := e.(*minotaur.ConstantExpr)
	if !ok {
		t.Fatalf("did not fold to a constant: %v", e)
	}
	return c
}

func TestExecFunction_StraightLine(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	sum := b.CreateBinOp(ssa.OpAdd, ssa.ConstInt(ssa.I32, 6), ssa.ConstInt(ssa.I32, 4))
	b.CreateRet(sum)

	if c := execConst(t, f); c.Value != 10 {
		t.Fatalf("unexpected value: %d", c.Value)
	}
}

func TestExecFunction_SymbolPerParam(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	x := f.AddParam("x", ssa.I32)
	y := f.AddParam("y", ssa.I32)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	b.CreateRet(b.CreateBinOp(ssa.OpAdd, x, y))

	e, err := minotaur.ExecFunction(f, "src")
	if err != nil {
		t.Fatal(err)
	}
	syms := minotaur.FindSymbols(e)
	if len(syms) != 2 || syms[0].Name != "x" || syms[1].Name != "y" {
		t.Fatalf("unexpected symbols: %v", syms)
	}
	if w := minotaur.ExprWidth(e); w != 32 {
		t.Fatalf("unexpected width: %d", w)
	}
}

func TestExecFunction_Diamond(t *testing.T) {
	// constant condition folds the φ to one arm
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	entry := f.NewBlock("entry")
	left := f.NewBlock("left")
	right := f.NewBlock("right")
	join := f.NewBlock("join")

	eb := ssa.NewBuilder(entry)
	c := eb.CreateICmp(ssa.IPredULT, ssa.ConstInt(ssa.I32, 1), ssa.ConstInt(ssa.I32, 2))
	eb.CreateCondBr(c, left, right)
	ssa.NewBuilder(left).CreateBr(join)
	ssa.NewBuilder(right).CreateBr(join)
	f.ComputePreds()
	jb := ssa.NewBuilder(join)
	phi := jb.CreatePhi(ssa.I32, ssa.ConstInt(ssa.I32, 11), ssa.ConstInt(ssa.I32, 22))
	jb.CreateRet(phi)

	if c := execConst(t, f); c.Value != 11 {
		t.Fatalf("unexpected value: %d", c.Value)
	}
}

func TestExecFunction_VectorLanes(t *testing.T) {
	m := ssa.NewModule("m")
	v2i16 := ssa.VecType(2, ssa.I16)
	f := m.NewFunc("f", v2i16)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	sum := b.CreateBinOp(ssa.OpAdd,
		ssa.ConstVec(v2i16, []uint64{1, 2}),
		ssa.ConstVec(v2i16, []uint64{10, 20}),
	)
	b.CreateRet(sum)

	// lane 0 in the low bits: 0x0016_000B
	if c := execConst(t, f); c.Value != 0x0016000B {
		t.Fatalf("unexpected value: %#x", c.Value)
	}
}

func TestExecFunction_Shuffle(t *testing.T) {
	m := ssa.NewModule("m")
	v4i8 := ssa.VecType(4, ssa.I8)
	f := m.NewFunc("f", v4i8)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	shuf := b.CreateShuffle(
		ssa.ConstVec(v4i8, []uint64{1, 2, 3, 4}),
		ssa.ConstVec(v4i8, []uint64{5, 6, 7, 8}),
		[]int{0, 4, 3, 7},
	)
	b.CreateRet(shuf)

	if c := execConst(t, f); c.Value != 0x08040501 {
		t.Fatalf("unexpected value: %#x", c.Value)
	}
}

func TestExecFunction_IntUnaries(t *testing.T) {
	exec1 := func(op ssa.Op, in uint64) uint64 {
		m := ssa.NewModule("m")
		f := m.NewFunc("f", ssa.I16)
		b := ssa.NewBuilder(f.NewBlock("entry"))
		b.CreateRet(b.CreateUnOp(op, ssa.ConstInt(ssa.I16, in)))
		return execConst(t, f).Value
	}

	if got := exec1(ssa.OpBSwap, 0x1234); got != 0x3412 {
		t.Fatalf("bswap: %#x", got)
	}
	if got := exec1(ssa.OpCtPop, 0x00F1); got != 5 {
		t.Fatalf("ctpop: %d", got)
	}
	if got := exec1(ssa.OpCtLz, 0x0001); got != 15 {
		t.Fatalf("ctlz: %d", got)
	}
	if got := exec1(ssa.OpCtTz, 0x8000); got != 15 {
		t.Fatalf("cttz: %d", got)
	}
	if got := exec1(ssa.OpBitReverse, 0x8000); got != 0x0001 {
		t.Fatalf("bitreverse: %#x", got)
	}
}

func TestExecFunction_IntrinsicAvg(t *testing.T) {
	m := ssa.NewModule("m")
	v16i8 := ssa.VecType(16, ssa.I8)
	pavg := m.Declare("x86.sse2.pavg.b", []ssa.Type{v16i8, v16i8}, v16i8)
	f := m.NewFunc("f", v16i8)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	lhs := make([]uint64, 16)
	rhs := make([]uint64, 16)
	lhs[0], rhs[0] = 10, 13 // rounds up to 12
	lhs[1], rhs[1] = 0xFF, 0xFF
	call := b.CreateCall(pavg, ssa.ConstVec(v16i8, lhs), ssa.ConstVec(v16i8, rhs))
	b.CreateRet(call)

	e, err := minotaur.ExecFunction(f, "src")
	if err != nil {
		t.Fatal(err)
	}
	lane0 := minotaur.NewExtractExpr(e, 0, 8)
	if c, ok := lane0.(*minotaur.ConstantExpr); !ok || c.Value != 12 {
		t.Fatalf("unexpected lane 0: %v", lane0)
	}
	lane1 := minotaur.NewExtractExpr(e, 8, 8)
	if c, ok := lane1.(*minotaur.ConstantExpr); !ok || c.Value != 0xFF {
		t.Fatalf("unexpected lane 1: %v", lane1)
	}
}

func TestExecFunction_RejectsWideConstants(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.FP128Ty)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	b.CreateRet(&ssa.Const{Typ: ssa.FP128Ty, Elems: []uint64{0}})

	if _, err := minotaur.ExecFunction(f, "src"); err == nil {
		t.Fatal("expected error for 128-bit constant")
	}
}
