package ssa

import "fmt"

// Builder inserts instructions into a block, either appending or at a
// fixed position ahead of an existing instruction.
type Builder struct {
	Blk *Block
	Pos int // insertion index; -1 appends
}

// NewBuilder returns a builder appending to b.
func NewBuilder(b *Block) *Builder { return &Builder{Blk: b, Pos: -1} }

// NewBuilderBefore returns a builder inserting ahead of instr.
func NewBuilderBefore(instr *Instr) *Builder {
	blk := instr.Blk
	for idx, i := range blk.Instrs {
		if i == instr {
			return &Builder{Blk: blk, Pos: idx}
		}
	}
	panic("ssa: instruction not in its block")
}

func (b *Builder) insert(i *Instr) *Instr {
	if b.Pos < 0 || b.Pos >= len(b.Blk.Instrs) {
		b.Blk.Append(i)
		return i
	}
	i.Blk = b.Blk
	i.ID = b.Blk.Fn.nextID()
	b.Blk.Instrs = append(b.Blk.Instrs, nil)
	copy(b.Blk.Instrs[b.Pos+1:], b.Blk.Instrs[b.Pos:])
	b.Blk.Instrs[b.Pos] = i
	b.Pos++
	return i
}

// CreateBinOp inserts a two-operand arithmetic or bitwise instruction.
func (b *Builder) CreateBinOp(op Op, x, y Value) *Instr {
	if x.Type() != y.Type() {
		panic(fmt.Sprintf("ssa: binop operand type mismatch: %s != %s", x.Type(), y.Type()))
	}
	return b.insert(&Instr{Op: op, Typ: x.Type(), Args: []Value{x, y}})
}

// CreateUnOp inserts a one-operand instruction.
func (b *Builder) CreateUnOp(op Op, x Value) *Instr {
	return b.insert(&Instr{Op: op, Typ: x.Type(), Args: []Value{x}})
}

// CreateICmp inserts an integer compare producing i1 per lane.
func (b *Builder) CreateICmp(pred IPred, x, y Value) *Instr {
	if x.Type() != y.Type() {
		panic("ssa: icmp operand type mismatch")
	}
	return b.insert(&Instr{
		Op:    OpICmp,
		Typ:   Type{Lane: x.Type().Lane, Bits: 1},
		Args:  []Value{x, y},
		IPred: pred,
	})
}

// CreateFCmp inserts a floating-point compare producing i1 per lane.
func (b *Builder) CreateFCmp(pred FPred, x, y Value) *Instr {
	if x.Type() != y.Type() {
		panic("ssa: fcmp operand type mismatch")
	}
	return b.insert(&Instr{
		Op:    OpFCmp,
		Typ:   Type{Lane: x.Type().Lane, Bits: 1},
		Args:  []Value{x, y},
		FPred: pred,
	})
}

// CreateCast inserts a width or domain conversion to the given type.
func (b *Builder) CreateCast(op Op, x Value, to Type) *Instr {
	return b.insert(&Instr{Op: op, Typ: to, Args: []Value{x}})
}

// CreateBitCast inserts a same-width reinterpretation, folding chains
// and eliding no-ops.
func (b *Builder) CreateBitCast(x Value, to Type) Value {
	if i, ok := x.(*Instr); ok && i.Op == OpBitCast {
		x = i.Args[0]
	}
	if x.Type() == to {
		return x
	}
	if x.Type().Width() != to.Width() {
		panic(fmt.Sprintf("ssa: bitcast width mismatch: %s to %s", x.Type(), to))
	}
	return b.insert(&Instr{Op: OpBitCast, Typ: to, Args: []Value{x}})
}

// CreateSelect inserts a select over a scalar or vector condition.
func (b *Builder) CreateSelect(cond, x, y Value) *Instr {
	return b.insert(&Instr{Op: OpSelect, Typ: x.Type(), Args: []Value{cond, x, y}})
}

// CreateExtractElement extracts one lane from a vector.
func (b *Builder) CreateExtractElement(v, idx Value) *Instr {
	return b.insert(&Instr{Op: OpExtractElement, Typ: v.Type().Scalar(), Args: []Value{v, idx}})
}

// CreateInsertElement replaces one lane of a vector.
func (b *Builder) CreateInsertElement(v, elem, idx Value) *Instr {
	return b.insert(&Instr{Op: OpInsertElement, Typ: v.Type(), Args: []Value{v, elem, idx}})
}

// CreateShuffle inserts a two-source shuffle with a constant mask.
func (b *Builder) CreateShuffle(x, y Value, mask []int) *Instr {
	t := x.Type()
	return b.insert(&Instr{
		Op:   OpShuffleVector,
		Typ:  Type{Lane: uint(len(mask)), Bits: t.Bits, FP: t.FP},
		Args: []Value{x, y},
		Mask: append([]int(nil), mask...),
	})
}

// CreateCall inserts a call to a declared function.
func (b *Builder) CreateCall(callee *Func, args ...Value) *Instr {
	return b.insert(&Instr{Op: OpCall, Typ: callee.Ret, Args: args, Callee: callee})
}

// CreatePhi inserts a φ node; incoming values align with block preds.
func (b *Builder) CreatePhi(t Type, incoming ...Value) *Instr {
	return b.insert(&Instr{Op: OpPhi, Typ: t, Args: incoming})
}

// CreateBr inserts an unconditional branch.
func (b *Builder) CreateBr(target *Block) *Instr {
	return b.insert(&Instr{Op: OpBr, Typ: VoidType, Succs: []*Block{target}})
}

// CreateCondBr inserts a conditional branch.
func (b *Builder) CreateCondBr(cond Value, t, f *Block) *Instr {
	return b.insert(&Instr{Op: OpBr, Typ: VoidType, Args: []Value{cond}, Succs: []*Block{t, f}})
}

// CreateSwitch inserts a switch; cases are added with AddCase.
func (b *Builder) CreateSwitch(v Value, dflt *Block) *Instr {
	return b.insert(&Instr{Op: OpSwitch, Typ: VoidType, Args: []Value{v}, Succs: []*Block{dflt}})
}

// AddCase appends a case arm to a switch instruction.
func AddCase(sw *Instr, val uint64, target *Block) {
	if sw.Op != OpSwitch {
		panic("ssa: AddCase on non-switch")
	}
	sw.Cases = append(sw.Cases, val)
	sw.Succs = append(sw.Succs, target)
}

// CreateRet inserts a return.
func (b *Builder) CreateRet(v Value) *Instr {
	return b.insert(&Instr{Op: OpRet, Typ: VoidType, Args: []Value{v}})
}

// CreateUnreachable inserts an unreachable marker.
func (b *Builder) CreateUnreachable() *Instr {
	return b.insert(&Instr{Op: OpUnreachable, Typ: VoidType})
}
