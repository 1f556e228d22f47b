package minotaur_test

import (
	"testing"

	"github.com/artagnon/minotaur"
	"github.com/google/go-cmp/cmp"
)

func TestExprWidth(t *testing.T) {
	t.Run("ConstantExpr", func(t *testing.T) {
		if w := minotaur.ExprWidth(minotaur.NewConstantExpr(0, 8)); w != 8 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("SymbolExpr", func(t *testing.T) {
		if w := minotaur.ExprWidth(minotaur.NewSymbolExpr("x", 128)); w != 128 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("CompareIsBool", func(t *testing.T) {
		e := minotaur.NewBinaryExpr(minotaur.ULT,
			minotaur.NewSymbolExpr("x", 32), minotaur.NewSymbolExpr("y", 32))
		if w := minotaur.ExprWidth(e); w != 1 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
	t.Run("Concat", func(t *testing.T) {
		e := minotaur.NewConcatExpr(
			minotaur.NewSymbolExpr("x", 8), minotaur.NewSymbolExpr("y", 16))
		if w := minotaur.ExprWidth(e); w != 24 {
			t.Fatalf("unexpected width: %d", w)
		}
	})
}

func TestNewBinaryExpr_Fold(t *testing.T) {
	t.Run("Add", func(t *testing.T) {
		if diff := cmp.Diff(
			minotaur.Expr(minotaur.NewConstantExpr(10, 8)),
			minotaur.NewBinaryExpr(minotaur.ADD,
				minotaur.NewConstantExpr(6, 8), minotaur.NewConstantExpr(4, 8)),
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("AddZeroIdentity", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 32)
		got := minotaur.NewBinaryExpr(minotaur.ADD, x, minotaur.NewConstantExpr(0, 32))
		if got != minotaur.Expr(x) {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
	t.Run("SubSelfIsZero", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 16)
		if diff := cmp.Diff(
			minotaur.Expr(minotaur.NewConstantExpr(0, 16)),
			minotaur.NewBinaryExpr(minotaur.SUB, x, x),
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("SubConstBecomesAdd", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 8)
		got := minotaur.NewBinaryExpr(minotaur.SUB, x, minotaur.NewConstantExpr(3, 8))
		want := minotaur.NewBinaryExpr(minotaur.ADD, minotaur.NewConstantExpr(253, 8), x)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("MulByZero", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 8)
		if diff := cmp.Diff(
			minotaur.Expr(minotaur.NewConstantExpr(0, 8)),
			minotaur.NewBinaryExpr(minotaur.MUL, x, minotaur.NewConstantExpr(0, 8)),
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("AndAllOnes", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 8)
		got := minotaur.NewBinaryExpr(minotaur.AND, x, minotaur.NewConstantExpr(255, 8))
		if got != minotaur.Expr(x) {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
	t.Run("AndSelf", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 8)
		if got := minotaur.NewBinaryExpr(minotaur.AND, x, x); got != minotaur.Expr(x) {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
	t.Run("XorSelfIsZero", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 8)
		if diff := cmp.Diff(
			minotaur.Expr(minotaur.NewConstantExpr(0, 8)),
			minotaur.NewBinaryExpr(minotaur.XOR, x, x),
		); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("EqSelfIsTrue", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 8)
		got := minotaur.NewBinaryExpr(minotaur.EQ, x, x)
		if c, ok := got.(*minotaur.ConstantExpr); !ok || !c.IsTrue() {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
	t.Run("GtCanonicalizesToLt", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 8)
		y := minotaur.NewSymbolExpr("y", 8)
		got := minotaur.NewBinaryExpr(minotaur.UGT, x, y).(*minotaur.BinaryExpr)
		if got.Op != minotaur.ULT {
			t.Fatalf("unexpected op: %s", got.Op)
		}
	})
	t.Run("MinMaxFold", func(t *testing.T) {
		got := minotaur.NewBinaryExpr(minotaur.SMAX,
			minotaur.NewConstantExpr(0xff, 8), minotaur.NewConstantExpr(1, 8))
		// 0xff is -1 signed, so smax is 1
		if diff := cmp.Diff(minotaur.Expr(minotaur.NewConstantExpr(1, 8)), got); diff != "" {
			t.Fatal(diff)
		}
	})
}

func TestNewExtractExpr(t *testing.T) {
	t.Run("FullWidthIsNop", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 32)
		if got := minotaur.NewExtractExpr(x, 0, 32); got != minotaur.Expr(x) {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
	t.Run("Constant", func(t *testing.T) {
		got := minotaur.NewExtractExpr(minotaur.NewConstantExpr(0xABCD, 16), 8, 8)
		if diff := cmp.Diff(minotaur.Expr(minotaur.NewConstantExpr(0xAB, 8)), got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("ThroughConcat", func(t *testing.T) {
		msb := minotaur.NewSymbolExpr("m", 8)
		lsb := minotaur.NewSymbolExpr("l", 8)
		c := minotaur.NewConcatExpr(msb, lsb)
		if got := minotaur.NewExtractExpr(c, 8, 8); got != minotaur.Expr(msb) {
			t.Fatalf("unexpected expr: %v", got)
		}
		if got := minotaur.NewExtractExpr(c, 0, 8); got != minotaur.Expr(lsb) {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
}

func TestNewCastExpr(t *testing.T) {
	t.Run("SameWidthIsNop", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 8)
		if got := minotaur.NewCastExpr(x, 8, false); got != minotaur.Expr(x) {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
	t.Run("SExtConstant", func(t *testing.T) {
		got := minotaur.NewCastExpr(minotaur.NewConstantExpr(0x80, 8), 16, true)
		if diff := cmp.Diff(minotaur.Expr(minotaur.NewConstantExpr(0xFF80, 16)), got); diff != "" {
			t.Fatal(diff)
		}
	})
	t.Run("NarrowIsExtract", func(t *testing.T) {
		x := minotaur.NewSymbolExpr("x", 16)
		got := minotaur.NewCastExpr(x, 8, false)
		if _, ok := got.(*minotaur.ExtractExpr); !ok {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
}

func TestNewIteExpr(t *testing.T) {
	x := minotaur.NewSymbolExpr("x", 8)
	y := minotaur.NewSymbolExpr("y", 8)
	t.Run("ConstantCond", func(t *testing.T) {
		if got := minotaur.NewIteExpr(minotaur.NewBoolConstantExpr(true), x, y); got != minotaur.Expr(x) {
			t.Fatalf("unexpected expr: %v", got)
		}
		if got := minotaur.NewIteExpr(minotaur.NewBoolConstantExpr(false), x, y); got != minotaur.Expr(y) {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
	t.Run("EqualArms", func(t *testing.T) {
		cond := minotaur.NewSymbolExpr("c", 1)
		if got := minotaur.NewIteExpr(cond, x, x); got != minotaur.Expr(x) {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
}

func TestSubstituteExpr(t *testing.T) {
	x := minotaur.NewSymbolExpr("x", 8)
	y := minotaur.NewSymbolExpr("y", 8)
	e := minotaur.NewBinaryExpr(minotaur.ADD, x, y)
	got := minotaur.SubstituteExpr(e, minotaur.Model{"x": {3}, "y": {4}})
	if diff := cmp.Diff(minotaur.Expr(minotaur.NewConstantExpr(7, 8)), got); diff != "" {
		t.Fatal(diff)
	}

	t.Run("Partial", func(t *testing.T) {
		got := minotaur.SubstituteExpr(e, minotaur.Model{"x": {0}})
		if got != minotaur.Expr(y) {
			t.Fatalf("unexpected expr: %v", got)
		}
	})
}

func TestFindSymbols(t *testing.T) {
	x := minotaur.NewSymbolExpr("x", 8)
	y := minotaur.NewSymbolExpr("y", 8)
	e := minotaur.NewBinaryExpr(minotaur.ADD, y, minotaur.NewBinaryExpr(minotaur.XOR, x, y))
	syms := minotaur.FindSymbols(e)
	if len(syms) != 2 || syms[0].Name != "x" || syms[1].Name != "y" {
		t.Fatalf("unexpected symbols: %v", syms)
	}
}

func TestCompareExpr(t *testing.T) {
	a := minotaur.NewConstantExpr(1, 8)
	b := minotaur.NewConstantExpr(2, 8)
	if minotaur.CompareExpr(a, b) != -1 {
		t.Fatal("expected -1")
	}
	if minotaur.CompareExpr(b, a) != 1 {
		t.Fatal("expected 1")
	}
	if minotaur.CompareExpr(a, minotaur.NewConstantExpr(1, 8)) != 0 {
		t.Fatal("expected 0")
	}
}
