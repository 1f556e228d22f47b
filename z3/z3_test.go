package z3_test

import (
	"context"
	"testing"

	"github.com/artagnon/minotaur"
	"github.com/artagnon/minotaur/z3"
)

func TestSolver_Unsat(t *testing.T) {
	s := z3.NewSolver()
	x := minotaur.NewSymbolExpr("x", 32)

	// x != x is unsatisfiable
	ne := minotaur.NewBinaryExpr(minotaur.NE, x, x)
	if c, ok := ne.(*minotaur.ConstantExpr); ok {
		// folded away before reaching the solver
		if !c.IsFalse() {
			t.Fatal("expected false")
		}
		return
	}
	sat, _, err := s.Solve(context.Background(), []minotaur.Expr{ne}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sat {
		t.Fatal("expected unsat")
	}
}

func TestSolver_SatWithModel(t *testing.T) {
	s := z3.NewSolver()
	x := minotaur.NewSymbolExpr("x", 32)

	// x + 1 == 10
	eq := minotaur.NewBinaryExpr(minotaur.EQ,
		minotaur.NewBinaryExpr(minotaur.ADD, x, minotaur.NewConstantExpr(1, 32)),
		minotaur.NewConstantExpr(10, 32))
	sat, model, err := s.Solve(context.Background(), []minotaur.Expr{eq}, []*minotaur.SymbolExpr{x})
	if err != nil {
		t.Fatal(err)
	}
	if !sat {
		t.Fatal("expected sat")
	}
	if got := model["x"][0]; got != 9 {
		t.Fatalf("unexpected model value: %d", got)
	}
}

func TestSolver_WideSymbol(t *testing.T) {
	s := z3.NewSolver()
	v := minotaur.NewSymbolExpr("v", 128)

	// the low and high halves are pinned separately
	lo := minotaur.NewBinaryExpr(minotaur.EQ,
		minotaur.NewExtractExpr(v, 0, 64), minotaur.NewConstantExpr(7, 64))
	hi := minotaur.NewBinaryExpr(minotaur.EQ,
		minotaur.NewExtractExpr(v, 64, 64), minotaur.NewConstantExpr(9, 64))
	sat, model, err := s.Solve(context.Background(), []minotaur.Expr{lo, hi}, []*minotaur.SymbolExpr{v})
	if err != nil {
		t.Fatal(err)
	}
	if !sat {
		t.Fatal("expected sat")
	}
	limbs := model["v"]
	if len(limbs) != 2 || limbs[0] != 7 || limbs[1] != 9 {
		t.Fatalf("unexpected limbs: %v", limbs)
	}
}

func TestSolver_Booleans(t *testing.T) {
	s := z3.NewSolver()
	a := minotaur.NewSymbolExpr("a", 1)
	b := minotaur.NewSymbolExpr("b", 1)

	// a && !a is unsat
	contradiction := minotaur.NewBinaryExpr(minotaur.AND, a, minotaur.NewNotExpr(a))
	sat, _, err := s.Solve(context.Background(), []minotaur.Expr{contradiction}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sat {
		t.Fatal("expected unsat")
	}

	// a != b is satisfiable
	ne := minotaur.NewBinaryExpr(minotaur.NE, a, b)
	sat, _, err = s.Solve(context.Background(), []minotaur.Expr{ne}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !sat {
		t.Fatal("expected sat")
	}
}

func TestSolver_Ite(t *testing.T) {
	s := z3.NewSolver()
	c := minotaur.NewSymbolExpr("c", 1)
	x := minotaur.NewSymbolExpr("x", 8)
	y := minotaur.NewSymbolExpr("y", 8)

	// ite(c, x, y) is unequal to both arms only if the arms differ and
	// the chosen arm disagrees, so asserting both inequalities is unsat
	ite := minotaur.NewIteExpr(c, x, y)
	neX := minotaur.NewBinaryExpr(minotaur.NE, ite, x)
	neY := minotaur.NewBinaryExpr(minotaur.NE, ite, y)
	sat, _, err := s.Solve(context.Background(), []minotaur.Expr{neX, neY}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sat {
		t.Fatal("expected unsat")
	}
}

func TestSolver_FPA(t *testing.T) {
	s := z3.NewSolver()
	x := minotaur.NewSymbolExpr("x", 32)

	// x + 0.0 == x does not hold for all floats (x may be -0.0 or NaN)
	sum := minotaur.NewFPExpr(minotaur.FPAdd, 0,
		[]minotaur.Expr{x, minotaur.NewConstantExpr(0, 32)}, 32, 32)
	ne := minotaur.NewBinaryExpr(minotaur.NE, sum, x)
	sat, _, err := s.Solve(context.Background(), []minotaur.Expr{ne}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !sat {
		t.Fatal("expected sat: -0.0 + 0.0 is +0.0 and NaN payloads vary")
	}

	// x * 1.0 == x holds bit-for-bit except for NaN payloads, so
	// restrict to an ordered x
	one := minotaur.NewConstantExpr(0x3F800000, 32)
	prod := minotaur.NewFPExpr(minotaur.FPMul, 0, []minotaur.Expr{x, one}, 32, 32)
	ord := minotaur.NewFPExpr(minotaur.FPCmp, minotaur.FCmpORD, []minotaur.Expr{x, x}, 32, 1)
	ne = minotaur.NewBinaryExpr(minotaur.NE, prod, x)
	sat, _, err = s.Solve(context.Background(), []minotaur.Expr{ord, ne}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if sat {
		t.Fatal("expected unsat for ordered x")
	}
}
