package minotaur

import (
	"fmt"
	"log"
	"strings"

	"github.com/artagnon/minotaur/ssa"
)

var binOpToSSA = map[BinOp]ssa.Op{
	BinOpAnd: ssa.OpAnd, BinOpOr: ssa.OpOr, BinOpXor: ssa.OpXor,
	BinOpLShr: ssa.OpLShr, BinOpAShr: ssa.OpAShr, BinOpShl: ssa.OpShl,
	BinOpAdd: ssa.OpAdd, BinOpSub: ssa.OpSub, BinOpMul: ssa.OpMul,
	BinOpSDiv: ssa.OpSDiv, BinOpUDiv: ssa.OpUDiv,
	BinOpUMax: ssa.OpUMax, BinOpUMin: ssa.OpUMin,
	BinOpSMax: ssa.OpSMax, BinOpSMin: ssa.OpSMin,
	BinOpFAdd: ssa.OpFAdd, BinOpFSub: ssa.OpFSub,
	BinOpFMul: ssa.OpFMul, BinOpFDiv: ssa.OpFDiv,
	BinOpFMaxNum: ssa.OpFMaxNum, BinOpFMinNum: ssa.OpFMinNum,
	BinOpFMaximum: ssa.OpFMaximum, BinOpFMinimum: ssa.OpFMinimum,
	BinOpCopySign: ssa.OpCopySign,
}

var unOpToSSA = map[UnOp]ssa.Op{
	UnOpBitReverse: ssa.OpBitReverse, UnOpBSwap: ssa.OpBSwap,
	UnOpCtPop: ssa.OpCtPop, UnOpCtLz: ssa.OpCtLz, UnOpCtTz: ssa.OpCtTz,
	UnOpFNeg: ssa.OpFNeg, UnOpFAbs: ssa.OpFAbs,
	UnOpFCeil: ssa.OpFCeil, UnOpFFloor: ssa.OpFFloor,
	UnOpFRint: ssa.OpFRint, UnOpFNearbyInt: ssa.OpFNearbyInt,
	UnOpFRound: ssa.OpFRound, UnOpFRoundEven: ssa.OpFRoundEven,
	UnOpFTrunc: ssa.OpFTrunc,
}

var icmpCondToSSA = map[ICmpCond]ssa.IPred{
	ICmpEQ: ssa.IPredEQ, ICmpNE: ssa.IPredNE,
	ICmpULT: ssa.IPredULT, ICmpULE: ssa.IPredULE,
	ICmpSLT: ssa.IPredSLT, ICmpSLE: ssa.IPredSLE,
	ICmpUGT: ssa.IPredUGT, ICmpUGE: ssa.IPredUGE,
	ICmpSGT: ssa.IPredSGT, ICmpSGE: ssa.IPredSGE,
}

var fcmpCondToSSA = map[FCmpCond]ssa.FPred{
	FCmpFalse: ssa.FPredFalse, FCmpOEQ: ssa.FPredOEQ, FCmpOGT: ssa.FPredOGT,
	FCmpOGE: ssa.FPredOGE, FCmpOLT: ssa.FPredOLT, FCmpOLE: ssa.FPredOLE,
	FCmpONE: ssa.FPredONE, FCmpORD: ssa.FPredORD, FCmpUEQ: ssa.FPredUEQ,
	FCmpUGT: ssa.FPredUGT, FCmpUGE: ssa.FPredUGE, FCmpULT: ssa.FPredULT,
	FCmpULE: ssa.FPredULE, FCmpUNE: ssa.FPredUNE, FCmpUNO: ssa.FPredUNO,
	FCmpTrue: ssa.FPredTrue,
}

var fpConvToSSA = map[FPConvOp]ssa.Op{
	ConvFPTrunc: ssa.OpFPTrunc, ConvFPExt: ssa.OpFPExt,
	ConvFPToUI: ssa.OpFPToUI, ConvFPToSI: ssa.OpFPToSI,
	ConvUIToFP: ssa.OpUIToFP, ConvSIToFP: ssa.OpSIToFP,
}

// Generator lowers candidate expression trees into host SSA at an
// insertion point. Width or type inconsistencies at lowering are bugs
// and abort the process.
type Generator struct {
	cfg     Config
	b       *ssa.Builder
	m       *ssa.Module
	decls   map[*ssa.Func]bool
	fksvSeq int
}

// NewGenerator returns a generator inserting ahead of instr.
func NewGenerator(cfg Config, instr *ssa.Instr) *Generator {
	return &Generator{
		cfg:   cfg,
		b:     ssa.NewBuilderBefore(instr),
		m:     instr.Blk.Fn.Mod,
		decls: make(map[*ssa.Func]bool),
	}
}

// Decls returns the intrinsic declarations the generator created.
func (g *Generator) Decls() map[*ssa.Func]bool { return g.decls }

// CodeGen lowers the tree rooted at inst, mapping Var references
// through vmap (an empty map uses the vars' own values) and resolving
// each hole to its synthesized constant when set, otherwise to its hole
// argument.
func (g *Generator) CodeGen(inst Inst, vmap map[ssa.Value]ssa.Value) ssa.Value {
	v := g.gen(inst, vmap)
	if g.cfg.DebugCodegen {
		log.Printf("[codegen] materialized %s", inst)
	}
	return v
}

func (g *Generator) bitcastTo(v ssa.Value, to ssa.Type) ssa.Value {
	return g.b.CreateBitCast(v, to)
}

// BitcastTo reinterprets a materialized value at the caller's type.
func (g *Generator) BitcastTo(v ssa.Value, to ssa.Type) ssa.Value {
	return g.bitcastTo(v, to)
}

func (g *Generator) gen(inst Inst, vmap map[ssa.Value]ssa.Value) ssa.Value {
	switch i := inst.(type) {
	case *Var:
		if len(vmap) == 0 {
			return i.V
		}
		v, ok := vmap[i.V]
		assert(ok, "value %s not found in vmap", i)
		return v

	case *ReservedConst:
		if i.C != nil {
			return i.C
		}
		assert(i.A != nil, "unresolved constant hole %s has no argument", i)
		return i.A

	case *Copy:
		return g.gen(i.RC, vmap)

	case *UnaryOp:
		workty := i.WorkTy
		op0 := g.gen(i.V, vmap)
		assert(op0.Type().Width() == workty.Width(), "operand width mismatch")
		op0 = g.bitcastTo(op0, workty.ToSSA())
		return g.b.CreateUnOp(unOpToSSA[i.Op], op0)

	case *IntConversion:
		op0 := g.gen(i.V, vmap)
		op0 = g.bitcastTo(op0, i.PrevType().ToSSA())
		newType := i.Type().ToSSA()
		switch i.Op {
		case ConvSExt:
			return g.b.CreateCast(ssa.OpSExt, op0, newType)
		case ConvZExt:
			return g.b.CreateCast(ssa.OpZExt, op0, newType)
		case ConvTrunc:
			return g.b.CreateCast(ssa.OpTrunc, op0, newType)
		}
		panic("unreachable")

	case *FPConversion:
		op0 := g.gen(i.V, vmap)
		return g.b.CreateCast(fpConvToSSA[i.Op], op0, i.To.ToSSA())

	case *BinaryOp:
		workty := i.WorkTy
		op0 := g.gen(i.L, vmap)
		assert(op0.Type().Width() == workty.Width(), "left operand width mismatch")
		op0 = g.bitcastTo(op0, workty.ToSSA())
		op1 := g.gen(i.R, vmap)
		assert(op1.Type().Width() == workty.Width(), "right operand width mismatch")
		op1 = g.bitcastTo(op1, workty.ToSSA())
		return g.b.CreateBinOp(binOpToSSA[i.Op], op0, op1)

	case *ICmp:
		workty := IntegerVectorizableType(i.Lanes, i.Bits())
		op0 := g.bitcastTo(g.gen(i.L, vmap), workty.ToSSA())
		op1 := g.bitcastTo(g.gen(i.R, vmap), workty.ToSSA())
		return g.b.CreateICmp(icmpCondToSSA[i.Cond], op0, op1)

	case *FCmp:
		op0 := g.gen(i.L, vmap)
		op1 := g.gen(i.R, vmap)
		return g.b.CreateFCmp(fcmpCondToSSA[i.Cond], op0, op1)

	case *Select:
		cond := g.gen(i.Cond, vmap)
		op0 := g.gen(i.L, vmap)
		op1 := g.bitcastTo(g.gen(i.R, vmap), op0.Type())
		return g.b.CreateSelect(cond, op0, op1)

	case *ExtractElement:
		inputTy := i.InputType()
		op0 := g.bitcastTo(g.gen(i.V, vmap), inputTy.ToSSA())
		idx := g.gen(i.Idx, vmap)
		return g.b.CreateExtractElement(op0, idx)

	case *InsertElement:
		workty := i.WorkTy.ToSSA()
		op0 := g.bitcastTo(g.gen(i.V, vmap), workty)
		elt := g.gen(i.Elt, vmap)
		assert(elt.Type().Width() == workty.Scalar().Width(), "element width mismatch")
		elt = g.bitcastTo(elt, workty.Scalar())
		idx := g.gen(i.Idx, vmap)
		return g.b.CreateInsertElement(op0, elt, idx)

	case *SIMDBinOp:
		op0Ty, op1Ty := i.Op.Op0Type(), i.Op.Op1Type()
		op0 := g.gen(i.L, vmap)
		assert(op0.Type().Width() == op0Ty.Width(), "left operand width mismatch")
		op0 = g.bitcastTo(op0, op0Ty.ToSSA())
		op1 := g.gen(i.R, vmap)
		assert(op1.Type().Width() == op1Ty.Width(), "right operand width mismatch")
		op1 = g.bitcastTo(op1, op1Ty.ToSSA())
		decl := g.m.Declare(i.Op.String(),
			[]ssa.Type{op0Ty.ToSSA(), op1Ty.ToSSA()}, i.Op.RetType().ToSSA())
		g.decls[decl] = true
		return g.b.CreateCall(decl, op0, op1)

	case *FakeShuffle:
		inputTy := i.InputType().ToSSA()
		op0 := g.bitcastTo(g.gen(i.L, vmap), inputTy)
		var op1 ssa.Value
		if i.R != nil {
			op1 = g.bitcastTo(g.gen(i.R, vmap), inputTy)
		} else {
			op1 = ssa.PoisonValue(inputTy)
		}
		mask := g.gen(i.Mask, vmap)
		if c, ok := mask.(*ssa.Const); ok {
			elems := make([]int, len(c.Elems))
			for k, e := range c.Elems {
				elems[k] = int(e)
			}
			return g.b.CreateShuffle(op0, op1, elems)
		}
		// unresolved mask: call an opaque sentinel, rewritten to a
		// native shuffle once constant synthesis resolves it
		name := fmt.Sprintf("__fksv.%d", g.fksvSeq)
		g.fksvSeq++
		decl := g.m.Declare(name,
			[]ssa.Type{inputTy, inputTy, mask.Type()}, i.ExpectTy.ToSSA())
		g.decls[decl] = true
		return g.b.CreateCall(decl, op0, op1, mask)

	default:
		panic(fmt.Sprintf("unknown instruction %T in codegen", inst))
	}
}

// RewriteFakeShuffles replaces calls to the opaque shuffle sentinel
// whose mask has become constant with native shuffles.
func RewriteFakeShuffles(f *ssa.Func) {
	for _, b := range f.Blocks {
		for idx := 0; idx < len(b.Instrs); idx++ {
			i := b.Instrs[idx]
			if i.Op != ssa.OpCall || i.Callee == nil ||
				!strings.HasPrefix(i.Callee.Nm, "__fksv") {
				continue
			}
			mask, ok := i.Args[2].(*ssa.Const)
			if !ok {
				continue
			}
			elems := make([]int, len(mask.Elems))
			for k, e := range mask.Elems {
				elems[k] = int(e)
			}
			shuf := &ssa.Instr{
				Op:   ssa.OpShuffleVector,
				Typ:  i.Typ,
				Args: []ssa.Value{i.Args[0], i.Args[1]},
				Mask: elems,
				Blk:  b,
				ID:   i.ID,
			}
			b.Instrs[idx] = shuf
			ssa.ReplaceUses(f, i, shuf)
		}
	}
}
