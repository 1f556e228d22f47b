package minotaur

import (
	"fmt"
	"strings"

	"github.com/artagnon/minotaur/ssa"
)

// symExecutor translates a loop-free, single-return function into one
// bitvector expression for its returned value. Vector values are
// encoded as lane concatenations, lane zero in the least significant
// bits. Control flow is merged: every φ and the return see their
// incoming values under the reaching condition of the corresponding
// edge.
type symExecutor struct {
	fn        *ssa.Func
	tag       string
	values    map[ssa.Value]Expr
	reach     map[*ssa.Block]Expr
	edge      map[[2]*ssa.Block]Expr
	poisonSeq int
}

// ExecFunction symbolically executes f. The returned expression is in
// terms of one symbol per function parameter, named after it; poison
// stand-ins are namespaced by tag so two executions never share them.
func ExecFunction(f *ssa.Func, tag string) (Expr, error) {
	ex := &symExecutor{
		fn:     f,
		tag:    tag,
		values: make(map[ssa.Value]Expr),
		reach:  make(map[*ssa.Block]Expr),
		edge:   make(map[[2]*ssa.Block]Expr),
	}
	return ex.run()
}

func (ex *symExecutor) fresh(width uint) Expr {
	ex.poisonSeq++
	return NewSymbolExpr(fmt.Sprintf("%s.poison.%d", ex.tag, ex.poisonSeq), width)
}

func (ex *symExecutor) run() (Expr, error) {
	f := ex.fn
	f.ComputePreds()
	for _, p := range f.Params {
		ex.values[p] = NewSymbolExpr(p.Nm, p.Typ.Width())
	}

	var ret Expr
	order := ssa.ReversePostorder(f)
	ex.reach[f.Entry()] = NewBoolConstantExpr(true)

	for _, b := range order {
		cond, ok := ex.reach[b]
		if !ok {
			cond = NewBoolConstantExpr(false)
			ex.reach[b] = cond
		}
		for _, i := range b.Instrs {
			switch i.Op {
			case ssa.OpRet:
				v, err := ex.eval(i.Args[0])
				if err != nil {
					return nil, err
				}
				if ret != nil {
					return nil, fmt.Errorf("minotaur: multiple returns in %s", f.Nm)
				}
				ret = v
			case ssa.OpBr:
				if len(i.Succs) == 1 {
					ex.addEdge(b, i.Succs[0], cond)
				} else {
					c, err := ex.eval(i.Args[0])
					if err != nil {
						return nil, err
					}
					ex.addEdge(b, i.Succs[0], NewBinaryExpr(AND, cond, c))
					ex.addEdge(b, i.Succs[1], NewBinaryExpr(AND, cond, NewNotExpr(c)))
				}
			case ssa.OpSwitch:
				v, err := ex.eval(i.Args[0])
				if err != nil {
					return nil, err
				}
				w := ExprWidth(v)
				other := cond
				for k, cv := range i.Cases {
					hit := NewBinaryExpr(EQ, v, NewConstantExpr(cv, w))
					ex.addEdge(b, i.Succs[k+1], NewBinaryExpr(AND, cond, hit))
					other = NewBinaryExpr(AND, other, NewNotExpr(hit))
				}
				ex.addEdge(b, i.Succs[0], other)
			case ssa.OpUnreachable:
				// no successors
			default:
				v, err := ex.evalInstr(i)
				if err != nil {
					return nil, err
				}
				ex.values[i] = v
			}
		}
	}
	if ret == nil {
		return nil, fmt.Errorf("minotaur: no return in %s", f.Nm)
	}
	return ret, nil
}

func (ex *symExecutor) addEdge(from, to *ssa.Block, cond Expr) {
	ex.edge[[2]*ssa.Block{from, to}] = cond
	if cur, ok := ex.reach[to]; ok {
		ex.reach[to] = NewBinaryExpr(OR, cur, cond)
	} else {
		ex.reach[to] = cond
	}
}

func (ex *symExecutor) eval(v ssa.Value) (Expr, error) {
	if e, ok := ex.values[v]; ok {
		return e, nil
	}
	c, ok := v.(*ssa.Const)
	if !ok {
		return nil, fmt.Errorf("minotaur: value %v evaluated before definition", v)
	}
	if c.Typ.Bits > 64 {
		return nil, fmt.Errorf("minotaur: %d-bit constants are not supported", c.Typ.Bits)
	}
	if c.Poison {
		return ex.fresh(c.Typ.Width()), nil
	}
	var e Expr
	for k, elem := range c.Elems {
		lane := Expr(NewConstantExpr(elem, c.Typ.Bits))
		if k == 0 {
			e = lane
		} else {
			e = NewConcatExpr(lane, e)
		}
	}
	ex.values[v] = e
	return e, nil
}

// lanes splits a value expression into per-lane expressions.
func lanes(e Expr, lane, bits uint) []Expr {
	out := make([]Expr, lane)
	for i := uint(0); i < lane; i++ {
		out[i] = NewExtractExpr(e, i*bits, bits)
	}
	return out
}

// joinLanes reassembles per-lane expressions, lane zero least
// significant.
func joinLanes(ls []Expr) Expr {
	e := ls[0]
	for _, l := range ls[1:] {
		e = NewConcatExpr(l, e)
	}
	return e
}

// laneWise applies f to each pair of operand lanes.
func laneWise(x, y Expr, lane, bits uint, f func(a, b Expr) Expr) Expr {
	xs, ys := lanes(x, lane, bits), lanes(y, lane, bits)
	out := make([]Expr, lane)
	for i := range xs {
		out[i] = f(xs[i], ys[i])
	}
	return joinLanes(out)
}

func (ex *symExecutor) evalInstr(i *ssa.Instr) (Expr, error) {
	t := i.Typ
	var args []Expr
	for _, a := range i.Args {
		e, err := ex.eval(a)
		if err != nil {
			return nil, err
		}
		args = append(args, e)
	}

	switch i.Op {
	case ssa.OpPhi:
		if len(args) == 0 {
			return nil, fmt.Errorf("minotaur: φ with no incomings")
		}
		v := args[len(args)-1]
		for k := len(args) - 2; k >= 0; k-- {
			cond := ex.edge[[2]*ssa.Block{i.Blk.Preds[k], i.Blk}]
			if cond == nil {
				cond = NewBoolConstantExpr(false)
			}
			v = NewIteExpr(cond, args[k], v)
		}
		return v, nil

	case ssa.OpAdd, ssa.OpSub, ssa.OpMul, ssa.OpSDiv, ssa.OpUDiv,
		ssa.OpShl, ssa.OpLShr, ssa.OpAShr,
		ssa.OpUMax, ssa.OpUMin, ssa.OpSMax, ssa.OpSMin:
		op := map[ssa.Op]BVOp{
			ssa.OpAdd: ADD, ssa.OpSub: SUB, ssa.OpMul: MUL,
			ssa.OpSDiv: SDIV, ssa.OpUDiv: UDIV,
			ssa.OpShl: SHL, ssa.OpLShr: LSHR, ssa.OpAShr: ASHR,
			ssa.OpUMax: UMAX, ssa.OpUMin: UMIN,
			ssa.OpSMax: SMAX, ssa.OpSMin: SMIN,
		}[i.Op]
		return laneWise(args[0], args[1], t.Lane, t.Bits, func(a, b Expr) Expr {
			return NewBinaryExpr(op, a, b)
		}), nil

	case ssa.OpAnd, ssa.OpOr, ssa.OpXor:
		// lane-independent: operate on the whole width
		op := map[ssa.Op]BVOp{ssa.OpAnd: AND, ssa.OpOr: OR, ssa.OpXor: XOR}[i.Op]
		return NewBinaryExpr(op, args[0], args[1]), nil

	case ssa.OpICmp:
		op := map[ssa.IPred]BVOp{
			ssa.IPredEQ: EQ, ssa.IPredNE: NE,
			ssa.IPredULT: ULT, ssa.IPredULE: ULE,
			ssa.IPredUGT: UGT, ssa.IPredUGE: UGE,
			ssa.IPredSLT: SLT, ssa.IPredSLE: SLE,
			ssa.IPredSGT: SGT, ssa.IPredSGE: SGE,
		}[i.IPred]
		st := i.Args[0].Type()
		return laneWise(args[0], args[1], st.Lane, st.Bits, func(a, b Expr) Expr {
			return NewBinaryExpr(op, a, b)
		}), nil

	case ssa.OpFCmp:
		st := i.Args[0].Type()
		cond := fpredToCond(i.FPred)
		return laneWise(args[0], args[1], st.Lane, st.Bits, func(a, b Expr) Expr {
			return NewFPExpr(FPCmp, cond, []Expr{a, b}, st.Bits, 1)
		}), nil

	case ssa.OpSExt, ssa.OpZExt, ssa.OpTrunc:
		st := i.Args[0].Type()
		signed := i.Op == ssa.OpSExt
		xs := lanes(args[0], st.Lane, st.Bits)
		out := make([]Expr, len(xs))
		for k, x := range xs {
			out[k] = NewCastExpr(x, t.Bits, signed)
		}
		return joinLanes(out), nil

	case ssa.OpBitCast:
		return args[0], nil

	case ssa.OpSelect:
		ct := i.Args[0].Type()
		if ct.Lane == 1 {
			return NewIteExpr(args[0], args[1], args[2]), nil
		}
		cs := lanes(args[0], ct.Lane, 1)
		return laneWiseIdx(args[1], args[2], t.Lane, t.Bits, func(k int, a, b Expr) Expr {
			return NewIteExpr(cs[k], a, b)
		}), nil

	case ssa.OpExtractElement:
		vt := i.Args[0].Type()
		vs := lanes(args[0], vt.Lane, vt.Bits)
		return indexChain(args[1], vs, ex.fresh(vt.Bits)), nil

	case ssa.OpInsertElement:
		vt := i.Args[0].Type()
		vs := lanes(args[0], vt.Lane, vt.Bits)
		idx := args[2]
		out := make([]Expr, len(vs))
		iw := ExprWidth(idx)
		for k := range vs {
			hit := NewBinaryExpr(EQ, idx, NewConstantExpr(uint64(k), iw))
			out[k] = NewIteExpr(hit, args[1], vs[k])
		}
		return joinLanes(out), nil

	case ssa.OpShuffleVector:
		vt := i.Args[0].Type()
		xs := lanes(args[0], vt.Lane, vt.Bits)
		ys := lanes(args[1], vt.Lane, vt.Bits)
		all := append(xs, ys...)
		out := make([]Expr, len(i.Mask))
		for k, m := range i.Mask {
			if m < 0 || m >= len(all) {
				out[k] = ex.fresh(vt.Bits)
			} else {
				out[k] = all[m]
			}
		}
		return joinLanes(out), nil

	case ssa.OpCall:
		return ex.evalCall(i, args)

	case ssa.OpCtPop, ssa.OpCtLz, ssa.OpCtTz, ssa.OpBitReverse, ssa.OpBSwap:
		return mapLanes(args[0], t.Lane, t.Bits, func(x Expr) Expr {
			return intUnary(i.Op, x, t.Bits)
		}), nil

	case ssa.OpFNeg:
		return mapLanes(args[0], t.Lane, t.Bits, func(x Expr) Expr {
			return NewBinaryExpr(XOR, x, signBit(t.Bits))
		}), nil

	case ssa.OpFAbs:
		return mapLanes(args[0], t.Lane, t.Bits, func(x Expr) Expr {
			return NewBinaryExpr(AND, x, NewNotExpr(signBit(t.Bits)))
		}), nil

	case ssa.OpCopySign:
		return laneWise(args[0], args[1], t.Lane, t.Bits, func(a, b Expr) Expr {
			mag := NewBinaryExpr(AND, a, NewNotExpr(signBit(t.Bits)))
			sgn := NewBinaryExpr(AND, b, signBit(t.Bits))
			return NewBinaryExpr(OR, mag, sgn)
		}), nil

	case ssa.OpFAdd, ssa.OpFSub, ssa.OpFMul, ssa.OpFDiv,
		ssa.OpFMaxNum, ssa.OpFMinNum, ssa.OpFMaximum, ssa.OpFMinimum:
		op := map[ssa.Op]FPOp{
			ssa.OpFAdd: FPAdd, ssa.OpFSub: FPSub,
			ssa.OpFMul: FPMul, ssa.OpFDiv: FPDiv,
			ssa.OpFMaxNum: FPMaxNum, ssa.OpFMinNum: FPMinNum,
			ssa.OpFMaximum: FPMaximum, ssa.OpFMinimum: FPMinimum,
		}[i.Op]
		return laneWise(args[0], args[1], t.Lane, t.Bits, func(a, b Expr) Expr {
			return NewFPExpr(op, 0, []Expr{a, b}, t.Bits, t.Bits)
		}), nil

	case ssa.OpFCeil, ssa.OpFFloor, ssa.OpFRint, ssa.OpFNearbyInt,
		ssa.OpFRound, ssa.OpFRoundEven, ssa.OpFTrunc:
		op := map[ssa.Op]FPOp{
			ssa.OpFCeil: FPCeil, ssa.OpFFloor: FPFloor,
			ssa.OpFRint: FPRint, ssa.OpFNearbyInt: FPNearbyInt,
			ssa.OpFRound: FPRound, ssa.OpFRoundEven: FPRoundEven,
			ssa.OpFTrunc: FPTruncInt,
		}[i.Op]
		return mapLanes(args[0], t.Lane, t.Bits, func(x Expr) Expr {
			return NewFPExpr(op, 0, []Expr{x}, t.Bits, t.Bits)
		}), nil

	case ssa.OpFPExt, ssa.OpFPTrunc, ssa.OpFPToUI, ssa.OpFPToSI,
		ssa.OpUIToFP, ssa.OpSIToFP:
		op := map[ssa.Op]FPOp{
			ssa.OpFPExt: FPExt, ssa.OpFPTrunc: FPTruncPrec,
			ssa.OpFPToUI: FPToUI, ssa.OpFPToSI: FPToSI,
			ssa.OpUIToFP: UIToFP, ssa.OpSIToFP: SIToFP,
		}[i.Op]
		st := i.Args[0].Type()
		xs := lanes(args[0], st.Lane, st.Bits)
		out := make([]Expr, len(xs))
		for k, x := range xs {
			out[k] = NewFPExpr(op, 0, []Expr{x}, st.Bits, t.Bits)
		}
		return joinLanes(out), nil
	}

	return nil, fmt.Errorf("minotaur: cannot execute %s symbolically", i.Op)
}

func signBit(bits uint) Expr {
	if bits <= 64 {
		return NewConstantExpr(uint64(1)<<(bits-1), bits)
	}
	limbs := make([]uint64, (bits+63)/64)
	limbs[len(limbs)-1] = uint64(1) << ((bits - 1) % 64)
	return NewWideConstantExpr(limbs, bits)
}

// mapLanes applies f to each lane of x.
func mapLanes(x Expr, lane, bits uint, f func(Expr) Expr) Expr {
	xs := lanes(x, lane, bits)
	out := make([]Expr, len(xs))
	for i, l := range xs {
		out[i] = f(l)
	}
	return joinLanes(out)
}

func laneWiseIdx(x, y Expr, lane, bits uint, f func(int, Expr, Expr) Expr) Expr {
	xs, ys := lanes(x, lane, bits), lanes(y, lane, bits)
	out := make([]Expr, lane)
	for i := range xs {
		out[i] = f(i, xs[i], ys[i])
	}
	return joinLanes(out)
}

// indexChain selects elems[idx], with dflt for out-of-range indices.
func indexChain(idx Expr, elems []Expr, dflt Expr) Expr {
	iw := ExprWidth(idx)
	v := dflt
	for k := len(elems) - 1; k >= 0; k-- {
		hit := NewBinaryExpr(EQ, idx, NewConstantExpr(uint64(k), iw))
		v = NewIteExpr(hit, elems[k], v)
	}
	return v
}

func fpredToCond(p ssa.FPred) FCmpCond {
	return FCmpCond(p) // the enums mirror each other
}

// intUnary encodes the integer unary intrinsics bit by bit.
func intUnary(op ssa.Op, x Expr, bits uint) Expr {
	switch op {
	case ssa.OpBSwap:
		nbytes := bits / 8
		out := make([]Expr, nbytes)
		for i := uint(0); i < nbytes; i++ {
			// byte i moves to byte nbytes-1-i
			out[nbytes-1-i] = NewExtractExpr(x, i*8, 8)
		}
		return joinLanes(out)
	case ssa.OpBitReverse:
		out := make([]Expr, bits)
		for i := uint(0); i < bits; i++ {
			out[bits-1-i] = NewExtractExpr(x, i, 1)
		}
		return joinLanes(out)
	case ssa.OpCtPop:
		var sum Expr
		for i := uint(0); i < bits; i++ {
			bit := NewCastExpr(NewExtractExpr(x, i, 1), bits, false)
			if sum == nil {
				sum = bit
			} else {
				sum = NewBinaryExpr(ADD, sum, bit)
			}
		}
		return sum
	case ssa.OpCtLz:
		// ite chain from the most significant bit down
		v := Expr(NewConstantExpr(uint64(bits), bits))
		for i := uint(0); i < bits; i++ {
			// if bit i is set, the count is bits-1-i for the highest such i;
			// scanning low to high, later (higher) bits override
			set := NewExtractExpr(x, i, 1)
			v = NewIteExpr(asBool(set), NewConstantExpr(uint64(bits-1-i), bits), v)
		}
		return v
	case ssa.OpCtTz:
		v := Expr(NewConstantExpr(uint64(bits), bits))
		for i := int(bits) - 1; i >= 0; i-- {
			set := NewExtractExpr(x, uint(i), 1)
			v = NewIteExpr(asBool(set), NewConstantExpr(uint64(i), bits), v)
		}
		return v
	}
	panic("unreachable")
}

// asBool normalizes a 1-bit expression for use as an ite condition.
func asBool(e Expr) Expr {
	assert(ExprWidth(e) == 1, "asBool on %d-bit expression", ExprWidth(e))
	return e
}

// evalCall encodes the semantics of the intrinsic catalog.
func (ex *symExecutor) evalCall(i *ssa.Instr, args []Expr) (Expr, error) {
	name := i.Callee.Nm
	if strings.HasPrefix(name, "__fksv") {
		return ex.evalFakeShuffle(i, args)
	}
	op, ok := SIMDOpByName(name)
	if !ok {
		return nil, fmt.Errorf("minotaur: no semantics for callee @%s", name)
	}
	return simdSemantics(op, args[0], args[1])
}

// evalFakeShuffle models the opaque shuffle sentinel: each output lane
// selects an input lane by the corresponding mask element.
func (ex *symExecutor) evalFakeShuffle(i *ssa.Instr, args []Expr) (Expr, error) {
	inTy := i.Args[0].Type()
	maskTy := i.Args[2].Type()
	xs := lanes(args[0], inTy.Lane, inTy.Bits)
	ys := lanes(args[1], inTy.Lane, inTy.Bits)
	all := append(xs, ys...)
	out := make([]Expr, maskTy.Lane)
	ms := lanes(args[2], maskTy.Lane, maskTy.Bits)
	for k := range out {
		out[k] = indexChain(ms[k], all, ex.fresh(inTy.Bits))
	}
	return joinLanes(out), nil
}

// simdSemantics encodes each catalog intrinsic lane by lane.
func simdSemantics(op SIMDOp, x, y Expr) (Expr, error) {
	op0 := op.Op0Type()
	lane, bits := op0.Lane, op0.Bits
	switch op {
	case X86SSE2PAvgB, X86SSE2PAvgW, X86AVX2PAvgB, X86AVX2PAvgW,
		X86AVX512PAvgB512, X86AVX512PAvgW512:
		// (a + b + 1) >> 1 computed without overflow
		return laneWise(x, y, lane, bits, func(a, b Expr) Expr {
			wa := NewCastExpr(a, bits+1, false)
			wb := NewCastExpr(b, bits+1, false)
			sum := NewBinaryExpr(ADD, NewBinaryExpr(ADD, wa, wb), NewConstantExpr(1, bits+1))
			return NewExtractExpr(sum, 1, bits)
		}), nil

	case X86SSE2PMulHW, X86AVX2PMulHW, X86AVX512PMulHW512:
		return laneWise(x, y, lane, bits, func(a, b Expr) Expr {
			wa := NewCastExpr(a, 2*bits, true)
			wb := NewCastExpr(b, 2*bits, true)
			return NewExtractExpr(NewBinaryExpr(MUL, wa, wb), bits, bits)
		}), nil

	case X86SSE2PMulHUW, X86AVX2PMulHUW, X86AVX512PMulHUW512:
		return laneWise(x, y, lane, bits, func(a, b Expr) Expr {
			wa := NewCastExpr(a, 2*bits, false)
			wb := NewCastExpr(b, 2*bits, false)
			return NewExtractExpr(NewBinaryExpr(MUL, wa, wb), bits, bits)
		}), nil

	case X86SSE2PMaddWD, X86AVX2PMaddWD:
		// pairs of 16-bit products summed into 32-bit lanes
		xs := lanes(x, lane, bits)
		ys := lanes(y, lane, bits)
		out := make([]Expr, lane/2)
		for k := range out {
			p0 := NewBinaryExpr(MUL,
				NewCastExpr(xs[2*k], 32, true), NewCastExpr(ys[2*k], 32, true))
			p1 := NewBinaryExpr(MUL,
				NewCastExpr(xs[2*k+1], 32, true), NewCastExpr(ys[2*k+1], 32, true))
			out[k] = NewBinaryExpr(ADD, p0, p1)
		}
		return joinLanes(out), nil

	case X86SSSE3PShufB, X86AVX2PShufB:
		// per 128-bit group: out[i] = msb(sel) ? 0 : x[group*16 + sel&0xf]
		xs := lanes(x, lane, bits)
		ss := lanes(y, lane, bits)
		out := make([]Expr, lane)
		for k := range out {
			group := k / 16
			sel := ss[k]
			low := NewExtractExpr(sel, 0, 4)
			var v Expr = NewConstantExpr(0, 8)
			for j := 15; j >= 0; j-- {
				hit := NewBinaryExpr(EQ, low, NewConstantExpr(uint64(j), 4))
				v = NewIteExpr(hit, xs[group*16+j], v)
			}
			msb := NewExtractExpr(sel, 7, 1)
			out[k] = NewIteExpr(msb, NewConstantExpr(0, 8), v)
		}
		return joinLanes(out), nil

	case X86SSE2PSllW, X86SSE2PSrlW, X86SSE2PSraW,
		X86SSE2PSllD, X86SSE2PSrlD, X86SSE2PSraD:
		// the shift count is the low 64 bits of the second operand;
		// counts of the element width or more saturate
		count := NewExtractExpr(y, 0, 64)
		xs := lanes(x, lane, bits)
		out := make([]Expr, lane)
		big := NewBinaryExpr(UGE, count, NewConstantExpr(uint64(bits), 64))
		for k, a := range xs {
			c := NewExtractExpr(count, 0, bits)
			var shifted, saturated Expr
			switch op {
			case X86SSE2PSllW, X86SSE2PSllD:
				shifted = NewBinaryExpr(SHL, a, c)
				saturated = NewConstantExpr(0, bits)
			case X86SSE2PSrlW, X86SSE2PSrlD:
				shifted = NewBinaryExpr(LSHR, a, c)
				saturated = NewConstantExpr(0, bits)
			default:
				shifted = NewBinaryExpr(ASHR, a, c)
				saturated = NewBinaryExpr(ASHR, a, NewConstantExpr(uint64(bits-1), bits))
			}
			out[k] = NewIteExpr(big, saturated, shifted)
		}
		return joinLanes(out), nil
	}
	return nil, fmt.Errorf("minotaur: no semantics for intrinsic %s", op)
}
