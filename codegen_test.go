package minotaur_test

import (
	"strings"
	"testing"

	"github.com/artagnon/minotaur"
	"github.com/artagnon/minotaur/ssa"
)

// codegenFixture builds a function with a replaceable root and returns
// it with its live-in vars.
func codegenFixture(ret ssa.Type) (*ssa.Func, *ssa.Instr, *minotaur.Var, *minotaur.Var) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ret)
	x := f.AddParam("x", ret)
	y := f.AddParam("y", ret)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	root := b.CreateBinOp(ssa.OpXor, x, y)
	b.CreateRet(root)
	return f, root, minotaur.NewVar(x), minotaur.NewVar(y)
}

// materialize lowers tree ahead of root, replaces it, and verifies.
func materialize(t *testing.T, f *ssa.Func, root *ssa.Instr, tree minotaur.Inst) *ssa.Func {
	t.Helper()
	gen := minotaur.NewGenerator(minotaur.DefaultConfig(), root)
	v := gen.CodeGen(tree, nil)
	v = gen.BitcastTo(v, root.Typ)
	ssa.ReplaceUses(f, root, v)
	ssa.EliminateDeadCode(f)
	if err := ssa.Verify(f); err != nil {
		t.Fatalf("materialized function is ill-formed: %v\n%s", err, f)
	}
	return f
}

func TestGenerator_BinaryOpWithWorkType(t *testing.T) {
	f, root, x, y := codegenFixture(ssa.I32)
	tree := &minotaur.BinaryOp{
		Op: minotaur.BinOpAdd, L: x, R: y,
		WorkTy: minotaur.IntegerVectorizableType(4, 8),
	}
	got := materialize(t, f, root, tree)
	text := got.String()
	if !strings.Contains(text, "bitcast") || !strings.Contains(text, "add <4 x i8>") {
		t.Fatalf("work-type lowering missing:\n%s", text)
	}
}

func TestGenerator_ResolvedConstant(t *testing.T) {
	f, root, x, _ := codegenFixture(ssa.I32)
	rc := &minotaur.ReservedConst{
		Typ: minotaur.IntegerType(32),
		C:   ssa.ConstInt(ssa.I32, 255),
	}
	tree := &minotaur.BinaryOp{
		Op: minotaur.BinOpAnd, L: x, R: rc,
		WorkTy: minotaur.IntegerType(32),
	}
	got := materialize(t, f, root, tree)
	if !strings.Contains(got.String(), "and i32 %x, 255") {
		t.Fatalf("constant not materialized:\n%s", got)
	}
}

func TestGenerator_Conversions(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	x := f.AddParam("x", ssa.I8)
	f.AddParam("pad", ssa.I32)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	root := b.CreateCast(ssa.OpZExt, x, ssa.I32)
	b.CreateRet(root)

	tree := &minotaur.IntConversion{
		Op: minotaur.ConvZExt, V: minotaur.NewVar(x),
		Lane: 1, PrevBits: 8, NewBits: 32,
	}
	got := materialize(t, f, root, tree)
	if !strings.Contains(got.String(), "zext i8 %x to i32") {
		t.Fatalf("conversion not materialized:\n%s", got)
	}
}

func TestGenerator_SIMDIntrinsicCall(t *testing.T) {
	v16i8 := ssa.VecType(16, ssa.I8)
	f, root, x, y := codegenFixture(v16i8)
	tree := &minotaur.SIMDBinOp{Op: minotaur.X86SSE2PAvgB, L: x, R: y}
	got := materialize(t, f, root, tree)
	if !strings.Contains(got.String(), "call <16 x i8> @x86.sse2.pavg.b") {
		t.Fatalf("intrinsic call missing:\n%s", got)
	}
	if got.Mod.Lookup("x86.sse2.pavg.b") == nil {
		t.Fatal("intrinsic declaration missing")
	}
}

func TestGenerator_FakeShuffle(t *testing.T) {
	v4i32 := ssa.VecType(4, ssa.I32)

	t.Run("ResolvedMaskIsNative", func(t *testing.T) {
		f, root, x, _ := codegenFixture(v4i32)
		mask := &minotaur.ReservedConst{
			Typ: minotaur.IntegerVectorizableType(4, 32),
			C:   ssa.ConstVec(ssa.VecType(4, ssa.I32), []uint64{0, 0, 0, 0}),
		}
		tree := &minotaur.FakeShuffle{
			L: x, Mask: mask,
			ExpectTy: minotaur.IntegerVectorizableType(4, 32),
		}
		got := materialize(t, f, root, tree)
		if !strings.Contains(got.String(), "shufflevector") {
			t.Fatalf("native shuffle missing:\n%s", got)
		}
	})

	t.Run("UnresolvedMaskIsOpaqueCall", func(t *testing.T) {
		f, root, x, _ := codegenFixture(v4i32)
		maskTy := minotaur.IntegerVectorizableType(4, 32)
		mask := &minotaur.ReservedConst{Typ: maskTy}
		// stand-in hole argument, as the enumerator would create
		mask.A = f.AddParam("_reservedc_0", maskTy.ToSSA())
		tree := &minotaur.FakeShuffle{
			L: x, Mask: mask,
			ExpectTy: minotaur.IntegerVectorizableType(4, 32),
		}
		got := materialize(t, f, root, tree)
		if !strings.Contains(got.String(), "call <4 x i32> @__fksv") {
			t.Fatalf("sentinel call missing:\n%s", got)
		}

		// resolving the mask afterwards rewrites the call natively
		ssa.ReplaceUses(got, mask.A, ssa.ConstVec(maskTy.ToSSA(), []uint64{3, 2, 1, 0}))
		minotaur.RewriteFakeShuffles(got)
		if strings.Contains(got.String(), "__fksv") {
			t.Fatalf("sentinel survived resolution:\n%s", got)
		}
		if !strings.Contains(got.String(), "shufflevector") {
			t.Fatalf("native shuffle missing after resolution:\n%s", got)
		}
	})
}

func TestGenerator_WidthMismatchPanics(t *testing.T) {
	f, root, x, _ := codegenFixture(ssa.I32)
	_ = f
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on width mismatch")
		}
	}()
	tree := &minotaur.BinaryOp{
		Op: minotaur.BinOpAdd, L: x, R: x,
		WorkTy: minotaur.IntegerType(64),
	}
	gen := minotaur.NewGenerator(minotaur.DefaultConfig(), root)
	gen.CodeGen(tree, nil)
}
