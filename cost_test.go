package minotaur_test

import (
	"testing"

	"github.com/artagnon/minotaur"
	"github.com/artagnon/minotaur/ssa"
)

func TestApproxCost(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	x := f.AddParam("x", ssa.I32)
	y := f.AddParam("y", ssa.I32)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	sum := b.CreateBinOp(ssa.OpAdd, x, y)
	sum2 := b.CreateBinOp(ssa.OpAdd, sum, y)
	b.CreateRet(sum2)

	g := m.NewFunc("g", ssa.I32)
	gx := g.AddParam("x", ssa.I32)
	gy := g.AddParam("y", ssa.I32)
	gb := ssa.NewBuilder(g.NewBlock("entry"))
	gsum := gb.CreateBinOp(ssa.OpAdd, gx, gy)
	gb.CreateRet(gsum)

	if minotaur.ApproxCost(g) >= minotaur.ApproxCost(f) {
		t.Fatal("shorter function must be cheaper")
	}
}

func TestApproxCost_Weights(t *testing.T) {
	m := ssa.NewModule("m")
	div := m.NewFunc("div", ssa.I32)
	dx := div.AddParam("x", ssa.I32)
	dy := div.AddParam("y", ssa.I32)
	db := ssa.NewBuilder(div.NewBlock("entry"))
	db.CreateRet(db.CreateBinOp(ssa.OpUDiv, dx, dy))

	add := m.NewFunc("add", ssa.I32)
	ax := add.AddParam("x", ssa.I32)
	ay := add.AddParam("y", ssa.I32)
	ab := ssa.NewBuilder(add.NewBlock("entry"))
	ab.CreateRet(ab.CreateBinOp(ssa.OpAdd, ax, ay))

	if minotaur.ApproxCost(div) <= minotaur.ApproxCost(add) {
		t.Fatal("division must cost more than addition")
	}
}

func TestApproxCost_BitcastFree(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.VecType(4, ssa.I8))
	x := f.AddParam("x", ssa.I32)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	cast := b.CreateBitCast(x, ssa.VecType(4, ssa.I8))
	b.CreateRet(cast)

	g := m.NewFunc("g", ssa.I32)
	gx := g.AddParam("x", ssa.I32)
	gb := ssa.NewBuilder(g.NewBlock("entry"))
	gb.CreateRet(gx)

	if minotaur.ApproxCost(f) != minotaur.ApproxCost(g) {
		t.Fatal("bitcasts must be free")
	}
}

func TestMachineCost(t *testing.T) {
	m := ssa.NewModule("m")
	f := m.NewFunc("f", ssa.I32)
	x := f.AddParam("x", ssa.I32)
	y := f.AddParam("y", ssa.I32)
	b := ssa.NewBuilder(f.NewBlock("entry"))
	b.CreateRet(b.CreateBinOp(ssa.OpAdd, x, y))

	g := m.NewFunc("g", ssa.I32)
	gx := g.AddParam("x", ssa.I32)
	gy := g.AddParam("y", ssa.I32)
	gb := ssa.NewBuilder(g.NewBlock("entry"))
	gsum := gb.CreateBinOp(ssa.OpAdd, gx, gy)
	gb.CreateRet(gb.CreateBinOp(ssa.OpMul, gsum, gy))

	cf, cg := minotaur.MachineCost(f), minotaur.MachineCost(g)
	if cf == 0 || cg == 0 {
		t.Fatal("estimate unexpectedly unavailable")
	}
	if cf >= cg {
		t.Fatalf("add-only must be cheaper: %d >= %d", cf, cg)
	}
}

func TestMachineCost_WideVectorsCostMore(t *testing.T) {
	narrow := func(lane uint) uint {
		m := ssa.NewModule("m")
		vt := ssa.VecType(lane, ssa.I32)
		f := m.NewFunc("f", vt)
		x := f.AddParam("x", vt)
		y := f.AddParam("y", vt)
		b := ssa.NewBuilder(f.NewBlock("entry"))
		b.CreateRet(b.CreateBinOp(ssa.OpAdd, x, y))
		return minotaur.MachineCost(f)
	}
	if narrow(4) >= narrow(32) {
		t.Fatal("1024-bit vector op must decompose into more uops")
	}
}
