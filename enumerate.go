package minotaur

import (
	"context"
	"errors"
	"log"
	"sort"

	"github.com/artagnon/minotaur/ssa"
)

// Sketch is a candidate expression tree together with the constant
// holes it contains.
type Sketch struct {
	Root Inst
	RCs  []*ReservedConst
}

// Enumerator produces well-typed candidate programs for one slice and
// drives them through pruning and verification. It owns the arena of
// every expression node it creates; the arena dies with the enumerator
// when the slice completes.
type Enumerator struct {
	cfg    Config
	exprs  []Inst // arena
	values []*Var // live-ins, in discovery order
}

// NewEnumerator returns an enumerator with the given configuration.
func NewEnumerator(cfg Config) *Enumerator {
	return &Enumerator{cfg: cfg}
}

func (e *Enumerator) debugf(format string, args ...interface{}) {
	if e.cfg.DebugEnumerator {
		log.Printf("[enumerator] "+format, args...)
	}
}

func (e *Enumerator) keep(i Inst) Inst {
	e.exprs = append(e.exprs, i)
	return i
}

// findInputs collects the live-ins: all parameters, plus every
// dominating instruction with an integer or IEEE-like scalar type.
func (e *Enumerator) findInputs(f *ssa.Func, root *ssa.Instr, dt *ssa.DomTree) {
	for _, a := range f.Params {
		v := NewVar(a)
		e.values = append(e.values, v)
		e.keep(v)
	}
	for _, bb := range f.Blocks {
		for _, i := range bb.Instrs {
			if i == root {
				continue
			}
			t := i.Typ
			if t.Void || t.Ptr || t.IsVector() {
				continue
			}
			if !dt.Dominates(i, root) {
				continue
			}
			v := NewVar(i)
			e.values = append(e.values, v)
			e.keep(v)
		}
	}
}

// getSketches emits the candidate trees for the expected result type,
// in a fixed category order. Generation is deterministic for identical
// inputs.
func (e *Enumerator) getSketches(expected Type, sketches *[]Sketch) {
	var comps []Inst
	for _, v := range e.values {
		comps = append(comps, v)
	}

	emit := func(root Inst, rcs ...*ReservedConst) {
		*sketches = append(*sketches, Sketch{Root: e.keep(root), RCs: rcs})
	}

	// integer width conversions
	for _, comp := range comps {
		op, ok := comp.(*Var)
		if !ok {
			continue
		}
		opW := op.Type().Width()
		if op.Type().SameWidth(expected) {
			continue
		}
		for _, workty := range IntegerVectorTypes(op.Type()) {
			opBits := workty.Bits
			lane := workty.Lane
			if expected.Width()%lane != 0 {
				continue
			}
			if expected.Width() > opW {
				if expected.Width()%opW != 0 {
					continue
				}
				nb := (expected.Width() / opW) * opBits
				emit(&IntConversion{Op: ConvSExt, V: op, Lane: lane, PrevBits: opBits, NewBits: nb})
				emit(&IntConversion{Op: ConvZExt, V: op, Lane: lane, PrevBits: opBits, NewBits: nb})
			} else if expected.Width() < opW {
				if opW%expected.Width() != 0 {
					continue
				}
				nb := expected.Width() * opBits / opW
				if nb == 0 {
					continue
				}
				emit(&IntConversion{Op: ConvTrunc, V: op, Lane: lane, PrevBits: opBits, NewBits: nb})
			}
		}
	}

	// floating-point conversions
	for _, comp := range comps {
		op, ok := comp.(*Var)
		if !ok {
			continue
		}
		opTy := op.Type()
		if expected.FP && opTy.FP {
			if expected.Lane != opTy.Lane {
				continue
			}
			if expected.Bits > opTy.Bits {
				emit(&FPConversion{Op: ConvFPExt, V: op, To: expected})
			} else if expected.Bits < opTy.Bits {
				emit(&FPConversion{Op: ConvFPTrunc, V: op, To: expected})
			}
		}
		if expected.FP != opTy.FP {
			if opTy.FP {
				if expected.Width()%opTy.Lane != 0 {
					continue
				}
				emit(&FPConversion{Op: ConvFPToSI, V: op, To: expected})
				emit(&FPConversion{Op: ConvFPToUI, V: op, To: expected})
			} else {
				if opTy.Width()%expected.Lane != 0 {
					continue
				}
				emit(&FPConversion{Op: ConvUIToFP, V: op, To: expected})
				emit(&FPConversion{Op: ConvSIToFP, V: op, To: expected})
			}
		}
	}

	// unary operators
	for _, op0 := range comps {
		if !expected.SameWidth(op0.Type()) {
			continue
		}
		for k := UnOpBitReverse; k < numUnOps; k++ {
			for _, workty := range UnaryOpWorkTypes(expected, k) {
				emit(&UnaryOp{Op: k, V: op0, WorkTy: workty})
			}
		}
	}

	// extractelement
	for _, op0 := range comps {
		op0Ty := op0.Type()
		if op0Ty.Width() <= expected.Width() {
			continue
		}
		if op0Ty.Width()%expected.Width() != 0 {
			continue
		}
		if op0Ty.FP != expected.FP {
			continue
		}
		if op0Ty.FP {
			if expected.Lane != 1 {
				continue
			}
			if op0Ty.Bits != expected.Bits {
				continue
			}
		}
		idx := e.keep(&ReservedConst{Typ: IntegerType(16)}).(*ReservedConst)
		ety := ScalarType(expected.Width(), expected.FP)
		emit(&ExtractElement{V: op0, Idx: idx, Ty: ety}, idx)
	}

	// a constant hole joins the operand pool for the binary categories
	rc1 := e.keep(&ReservedConst{Typ: NullType()}).(*ReservedConst)
	comps = append(comps, rc1)

	// binary operators
	for k := BinOpAnd; k < numBinOps; k++ {
		if expected.Bits == 1 && !k.IsLogical() {
			continue
		}
		for i0 := 0; i0 < len(comps); i0++ {
			op0 := comps[i0]

			start := 0
			if k == BinOpMul || k == BinOpFMul {
				start = i0
			} else if k.IsCommutative() {
				start = i0 + 1
			}

			for i1 := start; i1 < len(comps); i1++ {
				op1 := comps[i1]

				for _, workty := range BinaryOpWorkTypes(expected, k) {
					var lhs, rhs Inst
					var rcs []*ReservedConst

					if _, isRC := op0.(*ReservedConst); isRC {
						// (op rc, var)
						r, isVar := op1.(*Var)
						if !isVar {
							continue
						}
						if !expected.SameWidth(r.Type()) {
							continue
						}
						t := e.keep(&ReservedConst{Typ: workty}).(*ReservedConst)
						lhs, rhs = t, r
						rcs = append(rcs, t)
					} else if _, isRC := op1.(*ReservedConst); isRC {
						// (op var, rc); for commutative ops rc stays on the right
						l, isVar := op0.(*Var)
						if !isVar {
							continue
						}
						// do not generate (- x 3), it is (+ x -3)
						if k == BinOpSub {
							continue
						}
						if !expected.SameWidth(l.Type()) {
							continue
						}
						t := e.keep(&ReservedConst{Typ: workty}).(*ReservedConst)
						lhs, rhs = l, t
						rcs = append(rcs, t)
					} else {
						// (op var, var)
						if !expected.SameWidth(op0.Type()) || !expected.SameWidth(op1.Type()) {
							continue
						}
						lhs, rhs = op0, op1
					}
					emit(&BinaryOp{Op: k, L: lhs, R: rhs, WorkTy: workty}, rcs...)
				}
			}
		}
	}

	// integer compares
	if expected.Width() <= 64 {
		lanes := expected.Width()
		for i0 := 0; i0 < len(comps); i0++ {
			for i1 := 0; i1 < len(comps); i1++ {
				if i0 == i1 {
					continue
				}
				op0, op1 := comps[i0], comps[i1]
				l, isVar := op0.(*Var)
				if !isVar {
					continue // (icmp rc, *) is never emitted
				}
				if l.Type().Width()%lanes != 0 {
					continue
				}
				elemBits := l.Type().Width() / lanes
				if elemBits != 8 && elemBits != 16 && elemBits != 32 && elemBits != 64 {
					continue
				}
				for cond := ICmpEQ; cond < numICmpConds; cond++ {
					var rhs Inst
					var rcs []*ReservedConst
					switch r := op1.(type) {
					case *ReservedConst:
						// (x sle C) and (x ule C) are (x slt C+1), (x ult C+1)
						if cond == ICmpSLE || cond == ICmpULE {
							continue
						}
						jty := IntegerVectorizableType(lanes, elemBits)
						t := e.keep(&ReservedConst{Typ: jty}).(*ReservedConst)
						rhs = t
						rcs = append(rcs, t)
					case *Var:
						if l.Type().Width() != r.Type().Width() {
							continue
						}
						rhs = r
					default:
						continue
					}
					emit(&ICmp{Cond: cond, L: l, R: rhs, Lanes: lanes}, rcs...)
				}
			}
		}
	}

	// floating-point compares
	if expected.Width() <= 64 {
		lanes := expected.Width()
		for i0 := 0; i0 < len(comps); i0++ {
			for i1 := 0; i1 < len(comps); i1++ {
				if i0 == i1 {
					continue
				}
				op0, op1 := comps[i0], comps[i1]
				l, isVar := op0.(*Var)
				if !isVar {
					continue
				}
				if !l.Type().FP {
					continue
				}
				if l.Type().Lane != lanes {
					continue
				}
				if r, isV := op1.(*Var); isV && r.Type() != l.Type() {
					continue
				}
				for cond := FCmpFalse; cond < numFCmpConds; cond++ {
					var rhs Inst
					var rcs []*ReservedConst
					switch r := op1.(type) {
					case *ReservedConst:
						t := e.keep(&ReservedConst{Typ: l.Type()}).(*ReservedConst)
						rhs = t
						rcs = append(rcs, t)
					case *Var:
						rhs = r
					default:
						continue
					}
					emit(&FCmp{Cond: cond, L: l, R: rhs, Lanes: lanes}, rcs...)
				}
			}
		}
	}

	// insertelement
	for _, op0 := range comps {
		for _, op1 := range comps {
			if _, isRC := op1.(*ReservedConst); isRC {
				// a hole as the new element
				if op0.Type().IsValid() && op0.Type().Width() != expected.Width() {
					continue
				}
				if _, isRC0 := op0.(*ReservedConst); isRC0 {
					continue
				}
				for _, ty := range InsertElementWorkTypes(expected) {
					elm := e.keep(&ReservedConst{Typ: ty.AsScalar()}).(*ReservedConst)
					idx := e.keep(&ReservedConst{Typ: IntegerType(16)}).(*ReservedConst)
					emit(&InsertElement{V: op0, Elt: elm, Idx: idx, WorkTy: ty}, elm, idx)
				}
			} else {
				// a live-in as the new element
				vTy, elmTy := op0.Type(), op1.Type()
				if _, isRC0 := op0.(*ReservedConst); isRC0 {
					continue
				}
				if vTy.Width() != expected.Width() {
					continue
				}
				if elmTy.Width() >= vTy.Width() {
					continue
				}
				if vTy.Width()%elmTy.Width() != 0 {
					continue
				}
				if elmTy.Width() < 8 {
					continue
				}
				if vTy.FP != elmTy.FP {
					continue
				}
				var workty Type
				if elmTy.FP {
					if elmTy.Lane != 1 {
						continue
					}
					if vTy.Bits != elmTy.Bits {
						continue
					}
					workty = vTy
				} else {
					workty = IntegerVectorizableType(vTy.Width()/elmTy.Width(), elmTy.Width())
				}
				idx := e.keep(&ReservedConst{Typ: IntegerType(16)}).(*ReservedConst)
				emit(&InsertElement{V: op0, Elt: op1, Idx: idx, WorkTy: workty}, idx)
			}
		}
	}

	// fixed-shape SIMD binary intrinsics
	for k := SIMDOp(0); k < NumSIMDOps; k++ {
		if expected.FP {
			continue
		}
		if e.cfg.DisableAVX512 && k.Is512() {
			continue
		}
		retTy, op0Ty, op1Ty := k.RetType(), k.Op0Type(), k.Op1Type()
		if !retTy.SameWidth(expected) {
			continue
		}
		for i0 := 0; i0 < len(comps); i0++ {
			for i1 := 0; i1 < len(comps); i1++ {
				op0, op1 := comps[i0], comps[i1]
				_, rc0 := op0.(*ReservedConst)
				_, rc1ok := op1.(*ReservedConst)
				if rc0 && rc1ok {
					continue
				}
				var lhs, rhs Inst
				var rcs []*ReservedConst
				if l, isVar := op0.(*Var); isVar {
					if !l.Type().SameWidth(op0Ty) {
						continue
					}
					lhs = l
				} else {
					t := e.keep(&ReservedConst{Typ: op0Ty}).(*ReservedConst)
					lhs = t
					rcs = append(rcs, t)
				}
				if r, isVar := op1.(*Var); isVar {
					if !r.Type().SameWidth(op1Ty) {
						continue
					}
					rhs = r
				} else {
					t := e.keep(&ReservedConst{Typ: op1Ty}).(*ReservedConst)
					rhs = t
					rcs = append(rcs, t)
				}
				emit(&SIMDBinOp{Op: k, L: lhs, R: rhs}, rcs...)
			}
		}
	}

	// shuffles
	for i0 := 0; i0 < len(comps); i0++ {
		op0 := comps[i0]
		if _, isRC := op0.(*ReservedConst); isRC {
			continue // (sv rc, *, mask) is never emitted
		}
		opTy := op0.Type()
		if expected.FP != opTy.FP {
			continue
		}
		for _, ty := range ShuffleWorkTypes(expected) {
			if ty.Lane == 1 {
				continue
			}
			maskTy := IntegerVectorizableType(ty.Lane, 32)
			if opTy.Width()%ty.Bits != 0 {
				continue
			}
			if opTy.Width() == ty.Bits {
				continue
			}
			// (sv var, poison, mask)
			{
				m := e.keep(&ReservedConst{Typ: maskTy}).(*ReservedConst)
				emit(&FakeShuffle{L: op0, Mask: m, ExpectTy: ty}, m)
			}
			// (sv var1, var2, mask)
			for i1 := i0 + 1; i1 < len(comps); i1++ {
				var rhs Inst
				var rcs []*ReservedConst
				switch r := comps[i1].(type) {
				case *Var:
					if !opTy.SameWidth(r.Type()) {
						continue
					}
					rhs = r
				case *ReservedConst:
					lanes := opTy.Width() / ty.Bits
					t := e.keep(&ReservedConst{Typ: IntegerVectorizableType(lanes, ty.Bits)}).(*ReservedConst)
					rhs = t
					rcs = append(rcs, t)
				default:
					continue
				}
				m := e.keep(&ReservedConst{Typ: maskTy}).(*ReservedConst)
				rcs = append(rcs, m)
				emit(&FakeShuffle{L: op0, R: rhs, Mask: m, ExpectTy: ty}, rcs...)
			}
		}
	}

	// a second hole joins the pool for the ternary category
	rc2 := e.keep(&ReservedConst{Typ: NullType()}).(*ReservedConst)
	comps = append(comps, rc2)

	// select
	for _, op0 := range comps {
		for _, op1 := range comps {
			if op0 == op1 {
				continue
			}
			op0Ty, op1Ty := op0.Type(), op1.Type()
			if expected.FP {
				// exact match for floating point arms
				if op0Ty.IsValid() && op0Ty != expected {
					continue
				}
				if op1Ty.IsValid() && op1Ty != expected {
					continue
				}
			} else {
				if op0Ty.IsValid() && !op0Ty.SameWidth(expected) {
					continue
				}
				if op1Ty.IsValid() && !op1Ty.SameWidth(expected) {
					continue
				}
			}
			for _, cond := range comps {
				if _, isRC := cond.(*ReservedConst); isRC {
					continue
				}
				if !cond.Type().IsBool() {
					continue
				}
				var lhs, rhs Inst
				var rcs []*ReservedConst
				if _, isRC := op0.(*ReservedConst); isRC {
					if op0 != Inst(rc1) {
						continue
					}
					t := e.keep(&ReservedConst{Typ: expected}).(*ReservedConst)
					lhs = t
					rcs = append(rcs, t)
				} else {
					lhs = op0
				}
				if _, isRC := op1.(*ReservedConst); isRC {
					if op1 != Inst(rc2) {
						continue
					}
					t := e.keep(&ReservedConst{Typ: expected}).(*ReservedConst)
					rhs = t
					rcs = append(rcs, t)
				} else {
					rhs = op1
				}
				emit(&Select{Cond: cond, L: lhs, R: rhs}, rcs...)
			}
		}
	}
}

// Sketches produces the full candidate sequence for root inside f:
// pure-constant, nop identities, then the operator categories.
func (e *Enumerator) Sketches(f *ssa.Func, root *ssa.Instr, dt *ssa.DomTree) []Sketch {
	e.findInputs(f, root, dt)

	expected := TypeOf(root.Typ)
	var sketches []Sketch

	// immediate constant synthesis
	{
		rc := e.keep(&ReservedConst{Typ: expected}).(*ReservedConst)
		ci := e.keep(&Copy{RC: rc})
		sketches = append(sketches, Sketch{Root: ci, RCs: []*ReservedConst{rc}})
	}
	// nops
	for _, v := range e.values {
		if v.Type().Width() != root.Typ.Width() {
			continue
		}
		va := e.keep(&Var{Nm: v.Nm, Typ: v.Typ, V: v.V})
		sketches = append(sketches, Sketch{Root: va})
	}

	e.getSketches(expected, &sketches)
	return sketches
}

// candidate is a materialized sketch awaiting verification.
type candidate struct {
	tgt   *ssa.Func
	src   *ssa.Func
	g     Inst
	holes map[string]*ReservedConst
	haveC bool
	cost  uint
}

// Solve enumerates, prunes, and verifies candidates for root inside the
// slice f, returning verified rewrites ordered by ascending machine
// cost. The first cost-improving verified rewrite wins when the
// configuration requests a single solution.
func (e *Enumerator) Solve(ctx context.Context, f *ssa.Func, root *ssa.Instr, verifier *Verifier) ([]Rewrite, error) {
	var candidates, pruned, good int
	var ret []Rewrite

	e.debugf("working on slice\n%s", f)

	dt := ssa.NewDomTree(f)
	srcCost := ApproxCost(f)
	costBefore := MachineCost(f)

	rootIsInt := root.Typ.IsInt()
	var knownRoot KnownBits
	if rootIsInt {
		knownRoot = ComputeKnownBits(root)
	}

	sketches := e.Sketches(f, root, dt)
	e.debugf("listing %d sketches", len(sketches))
	for _, s := range sketches {
		e.debugf("%s", s.Root)
	}

	m := f.Mod
	var fns []candidate
	for _, sketch := range sketches {
		haveC := len(sketch.RCs) > 0

		var extra []ssa.Type
		for _, rc := range sketch.RCs {
			assert(rc.Typ.IsValid(), "hole with null type in sketch %s", sketch.Root)
			extra = append(extra, rc.Typ.ToSSA())
		}

		tgt, vmap := ssa.CloneFunction(m, f, f.Nm+".tgt", extra)
		holes := make(map[string]*ReservedConst, len(sketch.RCs))
		for k, rc := range sketch.RCs {
			p := tgt.Params[len(f.Params)+k]
			rc.A = p
			holes[p.Nm] = rc
		}

		var src *ssa.Func
		if haveC {
			src, _ = ssa.CloneFunction(m, tgt, f.Nm+".src", nil)
		} else {
			src = f
		}

		prevI := vmap[root].(*ssa.Instr)
		gen := NewGenerator(e.cfg, prevI)
		v := gen.CodeGen(sketch.Root, vmap)
		v = gen.BitcastTo(v, prevI.Typ)
		ssa.ReplaceUses(tgt, prevI, v)
		ssa.EliminateDeadCode(tgt)

		candidates++
		tgtCost := ApproxCost(tgt)

		skip := false
		if err := ssa.Verify(tgt); err != nil {
			e.debugf("ill-formed candidate: %v", err)
			skip = true
		}

		if !skip && tgtCost >= srcCost {
			skip = true
		}

		// known-bits pruning applies to integer roots only; extending
		// the lattice to floating point is an open design question
		if !skip && rootIsInt {
			if retVal := returnValue(tgt); retVal != nil {
				if ComputeKnownBits(retVal).Incompatible(knownRoot) {
					skip = true
				}
			}
		}

		if skip {
			pruned++
			m.Remove(tgt)
			if haveC {
				m.Remove(src)
			}
			continue
		}
		fns = append(fns, candidate{
			tgt: tgt, src: src, g: sketch.Root,
			holes: holes, haveC: haveC, cost: tgtCost,
		})
	}

	sort.SliceStable(fns, func(i, j int) bool { return fns[i].cost < fns[j].cost })

	idx := 0
	for ; idx < len(fns); idx++ {
		if ctx.Err() != nil {
			break // slice budget exhausted; return what verified so far
		}
		c := fns[idx]
		e.debugf("approx_cost(tgt) = %d, approx_cost(src) = %d\n%s", c.cost, srcCost, c.tgt)

		var verr error
		if !c.haveC {
			verr = verifier.Equivalent(ctx, c.src, c.tgt)
		} else {
			var consts map[*ReservedConst]*ssa.Const
			consts, verr = verifier.SynthesizeConstants(ctx, c.src, c.tgt, c.holes)
			if verr == nil {
				for rc, cv := range consts {
					rc.C = cv
					ssa.ReplaceUses(c.tgt, rc.A, cv)
				}
				RewriteFakeShuffles(c.tgt)
			}
		}

		if verr != nil {
			m.Remove(c.tgt)
			if c.haveC {
				m.Remove(c.src)
			}
			if errors.Is(verr, ErrSlowVCGen) {
				e.debugf("slow vcgen, abandoning slice")
				cleanup(m, fns[idx+1:])
				return nil, verr
			}
			if errors.Is(verr, ErrCounterExample) || errors.Is(verr, ErrTypeMismatch) {
				continue
			}
			cleanup(m, fns[idx+1:])
			return ret, verr
		}

		good++
		costAfter := MachineCost(c.tgt)
		e.debugf("optimized ir (uops=%d), original cost (uops=%d)\n%s",
			costAfter, costBefore, c.tgt)

		accepted := false
		switch {
		case costAfter == 0 || costBefore == 0:
			// machine cost unavailable; the approximate-cost gate
			// already held, accept
			accepted = true
		case e.cfg.IgnoreMachineCost || costAfter < costBefore:
			accepted = true
		default:
			e.debugf("synthesized rhs is more expensive than lhs")
		}
		if accepted {
			e.debugf("successfully synthesized rhs: %s", c.g)
			ret = append(ret, Rewrite{I: c.g, CostAfter: costAfter, CostBefore: costBefore})
		}

		m.Remove(c.tgt)
		if c.haveC {
			m.Remove(c.src)
		}

		if accepted && e.cfg.ReturnFirstSolution {
			idx++
			break
		}
	}
	cleanup(m, fns[idx:])

	e.debugf("#Candidates = %d, #Pruned = %d, #Good = %d", candidates, pruned, good)

	sort.SliceStable(ret, func(i, j int) bool { return ret[i].CostAfter < ret[j].CostAfter })
	for _, r := range ret {
		e.debugf("rewrite: %s, cost=%d", r.I, r.CostAfter)
	}
	return ret, nil
}

func cleanup(m *ssa.Module, rest []candidate) {
	for _, c := range rest {
		m.Remove(c.tgt)
		if c.haveC {
			m.Remove(c.src)
		}
	}
}

// returnValue finds the value returned by a single-return function.
func returnValue(f *ssa.Func) ssa.Value {
	for _, b := range f.Blocks {
		if term := b.Term(); term != nil && term.Op == ssa.OpRet {
			return term.Args[0]
		}
	}
	return nil
}
