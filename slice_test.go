package minotaur_test

import (
	"testing"

	"github.com/artagnon/minotaur"
	"github.com/artagnon/minotaur/ssa"
)

func analyses(f *ssa.Func) (*ssa.LoopInfo, *ssa.DomTree) {
	dt := ssa.NewDomTree(f)
	return ssa.NewLoopInfo(f, dt), dt
}

func TestSlicer_StraightLine(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	x := f.AddParam("x", ssa.I32)
	y := f.AddParam("y", ssa.I32)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	inner := b.CreateBinOp(ssa.OpAdd, y, ssa.ConstInt(ssa.I32, 0))
	root := b.CreateBinOp(ssa.OpAdd, x, inner)
	b.CreateRet(root)

	li, dt := analyses(f)
	s := minotaur.NewSlicer(minotaur.DefaultConfig(), f, li, dt)
	fn, sliceRoot, ok := s.ExtractExpr(root)
	if !ok {
		t.Fatal("expected a slice")
	}
	if err := ssa.Verify(fn); err != nil {
		t.Fatal(err)
	}
	if sliceRoot.Op != ssa.OpAdd {
		t.Fatalf("unexpected root op: %s", sliceRoot.Op)
	}

	// loop free by construction
	fli, _ := analyses(fn)
	if !fli.Empty() {
		t.Fatal("slice contains a loop")
	}

	// the slice returns the cloned root
	ret := fn.Blocks[0].Term()
	if ret.Op != ssa.OpRet || ret.Args[0] != ssa.Value(sliceRoot) {
		t.Fatal("slice does not return the root")
	}
}

func TestSlicer_Idempotent(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	x := f.AddParam("x", ssa.I32)
	y := f.AddParam("y", ssa.I32)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	root := b.CreateBinOp(ssa.OpXor, x, y)
	b.CreateRet(root)

	li, dt := analyses(f)
	s := minotaur.NewSlicer(minotaur.DefaultConfig(), f, li, dt)
	first, firstRoot, ok := s.ExtractExpr(root)
	if !ok {
		t.Fatal("expected a slice")
	}

	// slicing the slice again reproduces the same computation
	li2, dt2 := analyses(first)
	s2 := minotaur.NewSlicer(minotaur.DefaultConfig(), first, li2, dt2)
	second, secondRoot, ok := s2.ExtractExpr(firstRoot)
	if !ok {
		t.Fatal("expected a slice of a slice")
	}
	if err := ssa.Verify(second); err != nil {
		t.Fatal(err)
	}
	if secondRoot.Op != firstRoot.Op {
		t.Fatalf("root changed: %s != %s", secondRoot.Op, firstRoot.Op)
	}
	fli, _ := analyses(second)
	if !fli.Empty() {
		t.Fatal("slice contains a loop")
	}
}

func TestSlicer_BranchClosure(t *testing.T) {
	// a diamond whose φ draws from both arms must pull in every block
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	x := f.AddParam("x", ssa.I32)
	entry := f.NewBlock("entry")
	left := f.NewBlock("left")
	right := f.NewBlock("right")
	join := f.NewBlock("join")

	eb := ssa.NewBuilder(entry)
	c := eb.CreateICmp(ssa.IPredULT, x, ssa.ConstInt(ssa.I32, 8))
	eb.CreateCondBr(c, left, right)
	lb := ssa.NewBuilder(left)
	l := lb.CreateBinOp(ssa.OpAdd, x, ssa.ConstInt(ssa.I32, 1))
	lb.CreateBr(join)
	rb := ssa.NewBuilder(right)
	r := rb.CreateBinOp(ssa.OpSub, x, ssa.ConstInt(ssa.I32, 1))
	rb.CreateBr(join)
	f.ComputePreds()
	jb := ssa.NewBuilder(join)
	phi := jb.CreatePhi(ssa.I32, l, r)
	root := jb.CreateBinOp(ssa.OpMul, phi, phi)
	jb.CreateRet(root)

	li, dt := analyses(f)
	s := minotaur.NewSlicer(minotaur.DefaultConfig(), f, li, dt)
	fn, _, ok := s.ExtractExpr(root)
	if !ok {
		t.Fatal("expected a slice")
	}
	if err := ssa.Verify(fn); err != nil {
		t.Fatal(err)
	}
	if len(fn.Blocks) < 4 {
		t.Fatalf("closure lost blocks: %d", len(fn.Blocks))
	}
}

func TestSlicer_DeclinesLoop(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	x := f.AddParam("x", ssa.I32)
	entry := f.NewBlock("entry")
	header := f.NewBlock("header")
	exit := f.NewBlock("exit")

	ssa.NewBuilder(entry).CreateBr(header)
	f.ComputePreds()
	hb := ssa.NewBuilder(header)
	phi := hb.CreatePhi(ssa.I32, ssa.ConstInt(ssa.I32, 0), x)
	next := hb.CreateBinOp(ssa.OpAdd, phi, ssa.ConstInt(ssa.I32, 1))
	c := hb.CreateICmp(ssa.IPredULT, next, x)
	hb.CreateCondBr(c, header, exit)
	eb := ssa.NewBuilder(exit)
	root := eb.CreateBinOp(ssa.OpAdd, next, x)
	eb.CreateRet(root)
	f.ComputePreds()

	li, dt := analyses(f)
	s := minotaur.NewSlicer(minotaur.DefaultConfig(), f, li, dt)
	// the root is outside the loop but its operand crosses the
	// boundary; harvesting stops there and lifts it to a parameter
	fn, _, ok := s.ExtractExpr(root)
	if ok {
		fli, _ := analyses(fn)
		if !fli.Empty() {
			t.Fatal("slice contains a loop")
		}
	}
}

func TestSlicer_IntrinsicCall(t *testing.T) {
	m := ssa.NewModule("m")
	v16i8 := ssa.VecType(16, ssa.I8)
	pavg := m.Declare("x86.sse2.pavg.b", []ssa.Type{v16i8, v16i8}, v16i8)
	unknown := m.Declare("helper", []ssa.Type{v16i8}, v16i8)

	f := m.NewFunc("f", v16i8)
	a := f.AddParam("a", v16i8)
	b := f.AddParam("b", v16i8)
	bb := ssa.NewBuilder(f.NewBlock("entry"))
	avg := bb.CreateCall(pavg, a, b)
	other := bb.CreateCall(unknown, avg)
	root := bb.CreateBinOp(ssa.OpXor, avg, other)
	bb.CreateRet(root)

	li, dt := analyses(f)
	s := minotaur.NewSlicer(minotaur.DefaultConfig(), f, li, dt)
	fn, _, ok := s.ExtractExpr(root)
	if !ok {
		t.Fatal("expected a slice")
	}
	// the intrinsic is redeclared in the slice module, the unknown
	// callee becomes a parameter
	if s.Module().Lookup("x86.sse2.pavg.b") == nil {
		t.Fatal("intrinsic not redeclared")
	}
	if s.Module().Lookup("helper") != nil {
		t.Fatal("non-intrinsic call must not be redeclared")
	}
	hasCallParam := false
	for _, p := range fn.Params {
		if s.ValueMap()[p] == ssa.Value(other) {
			hasCallParam = true
		}
	}
	if !hasCallParam {
		t.Fatal("unknown call result not lifted to a parameter")
	}
}
