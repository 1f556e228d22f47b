package ssa

import (
	"fmt"
)

// ReversePostorder returns the blocks of f in reverse postorder from the
// entry. Unreachable blocks are excluded.
func ReversePostorder(f *Func) []*Block {
	var order []*Block
	seen := make(map[*Block]bool)
	var visit func(b *Block)
	visit = func(b *Block) {
		if seen[b] {
			return
		}
		seen[b] = true
		if term := b.Term(); term != nil {
			for _, s := range term.Succs {
				visit(s)
			}
		}
		order = append(order, b)
	}
	if entry := f.Entry(); entry != nil {
		visit(entry)
	}
	for i, j := 0, len(order)-1; i < j; i, j = i+1, j-1 {
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// DomTree answers block and instruction dominance queries.
type DomTree struct {
	idom map[*Block]*Block
	fn   *Func
}

// NewDomTree computes the dominator tree of f with the iterative
// Cooper-Harvey-Kennedy algorithm over reverse postorder.
func NewDomTree(f *Func) *DomTree {
	f.ComputePreds()
	rpo := ReversePostorder(f)
	index := make(map[*Block]int, len(rpo))
	for i, b := range rpo {
		index[b] = i
	}

	idom := make(map[*Block]*Block, len(rpo))
	entry := f.Entry()
	if entry == nil {
		return &DomTree{idom: idom, fn: f}
	}
	idom[entry] = entry

	intersect := func(a, b *Block) *Block {
		for a != b {
			for index[a] > index[b] {
				a = idom[a]
			}
			for index[b] > index[a] {
				b = idom[b]
			}
		}
		return a
	}

	for changed := true; changed; {
		changed = false
		for _, b := range rpo[1:] {
			var newIdom *Block
			for _, p := range b.Preds {
				if _, ok := idom[p]; !ok {
					continue
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = intersect(newIdom, p)
				}
			}
			if newIdom != nil && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return &DomTree{idom: idom, fn: f}
}

// DominatesBlock returns true if a dominates b.
func (dt *DomTree) DominatesBlock(a, b *Block) bool {
	for {
		if a == b {
			return true
		}
		next, ok := dt.idom[b]
		if !ok || next == b {
			return false
		}
		b = next
	}
}

// Dominates returns true if instruction a dominates instruction b.
// Within a block, earlier instructions dominate later ones.
func (dt *DomTree) Dominates(a, b *Instr) bool {
	if a.Blk == b.Blk {
		for _, i := range a.Blk.Instrs {
			if i == a {
				return true
			}
			if i == b {
				return false
			}
		}
		return false
	}
	return dt.DominatesBlock(a.Blk, b.Blk)
}

// Loop is a natural loop discovered from a back edge.
type Loop struct {
	Header *Block
	Blocks map[*Block]bool
	Latches []*Block
}

// Contains returns true if b belongs to the loop body.
func (l *Loop) Contains(b *Block) bool { return l.Blocks[b] }

// IsSimplified reports whether the loop is in canonical simplified
// form: a single preheader, a single latch, and exits dominated by the
// header's dedicated structure.
func (l *Loop) IsSimplified() bool {
	if len(l.Latches) != 1 {
		return false
	}
	var outside []*Block
	for _, p := range l.Header.Preds {
		if !l.Blocks[p] {
			outside = append(outside, p)
		}
	}
	if len(outside) != 1 {
		return false
	}
	// dedicated exits: every successor outside the loop has all its
	// predecessors inside the loop
	for b := range l.Blocks {
		term := b.Term()
		if term == nil {
			continue
		}
		for _, s := range term.Succs {
			if l.Blocks[s] {
				continue
			}
			for _, p := range s.Preds {
				if !l.Blocks[p] {
					return false
				}
			}
		}
	}
	return true
}

// LoopInfo maps blocks to their innermost enclosing loop.
type LoopInfo struct {
	loops  []*Loop
	byBlk  map[*Block]*Loop
}

// NewLoopInfo discovers the natural loops of f. A back edge is an edge
// whose target dominates its source; each back edge's natural loop is the set of blocks
// reaching the latch without passing the header.
func NewLoopInfo(f *Func, dt *DomTree) *LoopInfo {
	li := &LoopInfo{byBlk: make(map[*Block]*Loop)}
	byHeader := make(map[*Block]*Loop)
	for _, b := range ReversePostorder(f) {
		term := b.Term()
		if term == nil {
			continue
		}
		for _, s := range term.Succs {
			if !dt.DominatesBlock(s, b) {
				continue
			}
			// back edge b -> s
			loop := byHeader[s]
			if loop == nil {
				loop = &Loop{Header: s, Blocks: map[*Block]bool{s: true}}
				byHeader[s] = loop
				li.loops = append(li.loops, loop)
			}
			loop.Latches = append(loop.Latches, b)
			var stack []*Block
			if !loop.Blocks[b] {
				loop.Blocks[b] = true
				stack = append(stack, b)
			}
			for len(stack) > 0 {
				n := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				for _, p := range n.Preds {
					if !loop.Blocks[p] {
						loop.Blocks[p] = true
						stack = append(stack, p)
					}
				}
			}
		}
	}
	// innermost loop wins: each block maps to the smallest loop containing it
	for _, loop := range li.loops {
		for b := range loop.Blocks {
			if cur := li.byBlk[b]; cur == nil || len(loop.Blocks) < len(cur.Blocks) {
				li.byBlk[b] = loop
			}
		}
	}
	return li
}

// LoopFor returns the innermost loop containing b, or nil.
func (li *LoopInfo) LoopFor(b *Block) *Loop { return li.byBlk[b] }

// Empty returns true if the function has no loops.
func (li *LoopInfo) Empty() bool { return len(li.loops) == 0 }

// Verify checks that f is a well-formed SSA function: every block ends
// in exactly one terminator, φ nodes lead their block and match the
// predecessor count, operand types agree with their ops, and every
// instruction operand dominates its use.
func Verify(f *Func) error {
	if f.Decl {
		return nil
	}
	if len(f.Blocks) == 0 {
		return fmt.Errorf("ssa: function %s has no blocks", f.Nm)
	}
	f.ComputePreds()
	if len(f.Entry().Preds) != 0 {
		return fmt.Errorf("ssa: entry block of %s has predecessors", f.Nm)
	}

	reachable := make(map[*Block]bool)
	for _, b := range ReversePostorder(f) {
		reachable[b] = true
	}

	for _, b := range f.Blocks {
		if b.Term() == nil {
			return fmt.Errorf("ssa: block %s has no terminator", b.Nm)
		}
		phiDone := false
		for idx, i := range b.Instrs {
			if i.Op.IsTerminator() && idx != len(b.Instrs)-1 {
				return fmt.Errorf("ssa: terminator in the middle of block %s", b.Nm)
			}
			if i.Op == OpPhi {
				if phiDone {
					return fmt.Errorf("ssa: φ after non-φ in block %s", b.Nm)
				}
				if len(i.Args) != len(b.Preds) {
					return fmt.Errorf("ssa: φ in %s has %d incomings for %d preds",
						b.Nm, len(i.Args), len(b.Preds))
				}
			} else {
				phiDone = true
			}
			if err := checkInstrTypes(i); err != nil {
				return err
			}
		}
	}

	dt := NewDomTree(f)
	for _, b := range f.Blocks {
		if !reachable[b] {
			continue
		}
		for _, i := range b.Instrs {
			if i.Op == OpPhi {
				continue // incoming defs dominate the matching edge, not the φ
			}
			for _, op := range i.Args {
				def, ok := op.(*Instr)
				if !ok {
					continue
				}
				if !dt.Dominates(def, i) {
					return fmt.Errorf("ssa: %%%s does not dominate its use in %s", def.Name(), b.Nm)
				}
			}
		}
	}
	return nil
}

func checkInstrTypes(i *Instr) error {
	mismatch := func(format string, args ...interface{}) error {
		return fmt.Errorf("ssa: %%%s: "+format, append([]interface{}{i.Name()}, args...)...)
	}
	switch i.Op {
	case OpAdd, OpSub, OpMul, OpSDiv, OpUDiv, OpAnd, OpOr, OpXor,
		OpShl, OpLShr, OpAShr, OpUMax, OpUMin, OpSMax, OpSMin,
		OpFAdd, OpFSub, OpFMul, OpFDiv, OpFMaxNum, OpFMinNum,
		OpFMaximum, OpFMinimum, OpCopySign:
		if i.Args[0].Type() != i.Args[1].Type() || i.Typ != i.Args[0].Type() {
			return mismatch("binop type mismatch")
		}
	case OpICmp, OpFCmp:
		if i.Args[0].Type() != i.Args[1].Type() {
			return mismatch("cmp operand mismatch")
		}
		if i.Typ.Bits != 1 || i.Typ.Lane != i.Args[0].Type().Lane {
			return mismatch("cmp result shape")
		}
	case OpSExt, OpZExt:
		if i.Typ.Bits <= i.Args[0].Type().Bits || i.Typ.Lane != i.Args[0].Type().Lane {
			return mismatch("ext must widen elementwise")
		}
	case OpTrunc:
		if i.Typ.Bits >= i.Args[0].Type().Bits || i.Typ.Lane != i.Args[0].Type().Lane {
			return mismatch("trunc must narrow elementwise")
		}
	case OpBitCast:
		if i.Typ.Width() != i.Args[0].Type().Width() {
			return mismatch("bitcast width mismatch: %s to %s", i.Args[0].Type(), i.Typ)
		}
	case OpSelect:
		if i.Args[1].Type() != i.Args[2].Type() || i.Typ != i.Args[1].Type() {
			return mismatch("select arm mismatch")
		}
		ct := i.Args[0].Type()
		if ct.Bits != 1 || (ct.Lane != 1 && ct.Lane != i.Typ.Lane) {
			return mismatch("select condition shape")
		}
	case OpExtractElement:
		if !i.Args[0].Type().IsVector() || i.Typ != i.Args[0].Type().Scalar() {
			return mismatch("extractelement shape")
		}
	case OpInsertElement:
		if !i.Args[0].Type().IsVector() || i.Typ != i.Args[0].Type() ||
			i.Args[1].Type() != i.Typ.Scalar() {
			return mismatch("insertelement shape")
		}
	case OpShuffleVector:
		at := i.Args[0].Type()
		if at != i.Args[1].Type() || !at.IsVector() {
			return mismatch("shuffle operand shape")
		}
		for _, m := range i.Mask {
			if m >= int(2*at.Lane) {
				return mismatch("shuffle mask index %d out of range", m)
			}
		}
	case OpCall:
		if i.Callee == nil {
			return mismatch("call without callee")
		}
		if len(i.Args) != len(i.Callee.Params) {
			return mismatch("call arity mismatch for @%s", i.Callee.Nm)
		}
		for k, a := range i.Args {
			if a.Type() != i.Callee.Params[k].Typ {
				return mismatch("call argument %d type mismatch for @%s", k, i.Callee.Nm)
			}
		}
	}
	return nil
}

// EliminateDeadCode removes pure instructions whose results are unused.
// Terminators are always kept; everything else in this IR is side-effect
// free, calls to declarations included.
func EliminateDeadCode(f *Func) {
	for {
		used := make(map[*Instr]bool)
		for _, b := range f.Blocks {
			for _, i := range b.Instrs {
				for _, op := range i.Args {
					if def, ok := op.(*Instr); ok {
						used[def] = true
					}
				}
			}
		}
		removed := false
		for _, b := range f.Blocks {
			kept := b.Instrs[:0]
			for _, i := range b.Instrs {
				if i.Op.IsTerminator() || used[i] {
					kept = append(kept, i)
				} else {
					removed = true
				}
			}
			b.Instrs = kept
		}
		if !removed {
			return
		}
	}
}
