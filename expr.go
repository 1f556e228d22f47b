package minotaur

import (
	"fmt"
	"strings"

	"github.com/artagnon/minotaur/ssa"
)

// Inst is a node of a candidate expression tree. Trees are built bottom
// up by the enumerator, which owns every node in its arena; references
// between nodes are non-owning and the tree is acyclic by construction.
type Inst interface {
	fmt.Stringer
	Type() Type
	inst()
}

func (*Var) inst()            {}
func (*ReservedConst) inst()  {}
func (*Copy) inst()           {}
func (*UnaryOp) inst()        {}
func (*BinaryOp) inst()       {}
func (*ICmp) inst()           {}
func (*FCmp) inst()           {}
func (*IntConversion) inst()  {}
func (*FPConversion) inst()   {}
func (*ExtractElement) inst() {}
func (*InsertElement) inst()  {}
func (*FakeShuffle) inst()    {}
func (*Select) inst()         {}
func (*SIMDBinOp) inst()      {}

// Var is a live-in SSA value from the surrounding function.
type Var struct {
	Nm  string
	Typ Type
	V   ssa.Value
}

// NewVar wraps a live-in host value.
func NewVar(v ssa.Value) *Var {
	var name string
	switch v := v.(type) {
	case *ssa.Param:
		name = v.Nm
	case *ssa.Instr:
		name = v.Name()
	default:
		panic("var over non-instruction, non-parameter value")
	}
	return &Var{Nm: name, Typ: TypeOf(v.Type()), V: v}
}

func (v *Var) Type() Type     { return v.Typ }
func (v *Var) String() string { return "%" + v.Nm }

// ReservedConst is a typed constant hole. After constant synthesis
// resolves it, C holds the concrete constant; while a candidate function
// exists, A is the function parameter standing in for the hole.
type ReservedConst struct {
	Typ Type
	C   *ssa.Const
	A   *ssa.Param
}

func (rc *ReservedConst) Type() Type { return rc.Typ }

func (rc *ReservedConst) String() string {
	if rc.C == nil {
		return fmt.Sprintf("(const %s ?)", rc.Typ)
	}
	return fmt.Sprintf("(const %s %s)", rc.Typ, constString(rc.C))
}

func constString(c *ssa.Const) string {
	if c.Typ.IsVector() {
		elems := make([]string, len(c.Elems))
		for i, e := range c.Elems {
			elems[i] = fmt.Sprintf("%d", e)
		}
		return "{" + strings.Join(elems, ", ") + "}"
	}
	return fmt.Sprintf("%d", c.Elems[0])
}

// Copy returns a pure constant.
type Copy struct {
	RC *ReservedConst
}

func (c *Copy) Type() Type     { return c.RC.Typ }
func (c *Copy) String() string { return fmt.Sprintf("(copy %s)", c.RC) }

// UnOp is a unary operator kind.
type UnOp int

const (
	UnOpBitReverse UnOp = iota
	UnOpBSwap
	UnOpCtPop
	UnOpCtLz
	UnOpCtTz
	UnOpFNeg
	UnOpFAbs
	UnOpFCeil
	UnOpFFloor
	UnOpFRint
	UnOpFNearbyInt
	UnOpFRound
	UnOpFRoundEven
	UnOpFTrunc
	numUnOps
)

var unOpNames = [...]string{
	"bitreverse", "bswap", "ctpop", "ctlz", "cttz",
	"fneg", "fabs", "fceil", "ffloor", "frint", "fnearbyint",
	"fround", "froundeven", "ftrunc",
}

func (op UnOp) String() string { return unOpNames[op] }

// IsFP returns true for the floating-point unary operators.
func (op UnOp) IsFP() bool { return op >= UnOpFNeg }

// UnaryOp applies a unary operator in a given work type.
type UnaryOp struct {
	Op     UnOp
	V      Inst
	WorkTy Type
}

func (u *UnaryOp) Type() Type { return u.V.Type() }

func (u *UnaryOp) String() string {
	return fmt.Sprintf("(%s %s %s)", u.Op, u.WorkTy, u.V)
}

// BinOp is a binary operator kind.
type BinOp int

const (
	BinOpAnd BinOp = iota
	BinOpOr
	BinOpXor
	BinOpLShr
	BinOpAShr
	BinOpShl
	BinOpAdd
	BinOpSub
	BinOpMul
	BinOpSDiv
	BinOpUDiv
	BinOpUMax
	BinOpUMin
	BinOpSMax
	BinOpSMin
	BinOpFAdd
	BinOpFSub
	BinOpFMul
	BinOpFDiv
	BinOpFMaxNum
	BinOpFMinNum
	BinOpFMaximum
	BinOpFMinimum
	BinOpCopySign
	numBinOps
)

var binOpNames = [...]string{
	"band", "bor", "bxor", "lshr", "ashr", "shl",
	"add", "sub", "mul", "sdiv", "udiv",
	"umax", "umin", "smax", "smin",
	"fadd", "fsub", "fmul", "fdiv",
	"fmaxnum", "fminnum", "fmaximum", "fminimum", "copysign",
}

func (op BinOp) String() string { return binOpNames[op] }

// IsFP returns true for the floating-point binary operators.
func (op BinOp) IsFP() bool { return op >= BinOpFAdd }

// IsCommutative returns true if operand order does not matter.
func (op BinOp) IsCommutative() bool {
	switch op {
	case BinOpAnd, BinOpOr, BinOpXor, BinOpAdd, BinOpMul,
		BinOpUMax, BinOpUMin, BinOpSMax, BinOpSMin,
		BinOpFAdd, BinOpFMul,
		BinOpFMaxNum, BinOpFMinNum, BinOpFMaximum, BinOpFMinimum:
		return true
	}
	return false
}

// IsLogical returns true for the lane-independent bitwise operators.
func (op BinOp) IsLogical() bool {
	return op == BinOpAnd || op == BinOpOr || op == BinOpXor
}

// BinaryOp applies a binary operator in a given work type; the result
// type is the left operand's type.
type BinaryOp struct {
	Op     BinOp
	L, R   Inst
	WorkTy Type
}

func (b *BinaryOp) Type() Type { return b.L.Type() }

func (b *BinaryOp) String() string {
	return fmt.Sprintf("(%s %s %s, %s)", b.Op, b.WorkTy, b.L, b.R)
}

// ICmpCond is an integer comparison predicate.
type ICmpCond int

const (
	ICmpEQ ICmpCond = iota
	ICmpNE
	ICmpULT
	ICmpULE
	ICmpSLT
	ICmpSLE
	ICmpUGT
	ICmpUGE
	ICmpSGT
	ICmpSGE
	numICmpConds
)

var icmpCondNames = [...]string{"eq", "ne", "ult", "ule", "slt", "sle", "ugt", "uge", "sgt", "sge"}

func (c ICmpCond) String() string { return icmpCondNames[c] }

// ICmp compares lanes of its reinterpreted operands, producing one bit
// per lane.
type ICmp struct {
	Cond  ICmpCond
	L, R  Inst
	Lanes uint
}

func (c *ICmp) Type() Type { return IntegerVectorizableType(c.Lanes, 1) }

// Bits returns the element width the operands are compared at.
func (c *ICmp) Bits() uint { return c.L.Type().Width() / c.Lanes }

func (c *ICmp) String() string {
	workty := IntegerVectorizableType(c.Lanes, c.Bits())
	return fmt.Sprintf("(icmp %s %s %s, %s)", c.Cond, workty, c.L, c.R)
}

// FCmpCond is a floating-point comparison predicate.
type FCmpCond int

const (
	FCmpFalse FCmpCond = iota
	FCmpOEQ
	FCmpOGT
	FCmpOGE
	FCmpOLT
	FCmpOLE
	FCmpONE
	FCmpORD
	FCmpUEQ
	FCmpUGT
	FCmpUGE
	FCmpULT
	FCmpULE
	FCmpUNE
	FCmpUNO
	FCmpTrue
	numFCmpConds
)

var fcmpCondNames = [...]string{
	"false", "oeq", "ogt", "oge", "olt", "ole", "one", "ord",
	"ueq", "ugt", "uge", "ult", "ule", "une", "uno", "true",
}

func (c FCmpCond) String() string { return fcmpCondNames[c] }

// FCmp compares floating-point lanes, producing one bit per lane.
type FCmp struct {
	Cond  FCmpCond
	L, R  Inst
	Lanes uint
}

func (c *FCmp) Type() Type { return IntegerVectorizableType(c.Lanes, 1) }

func (c *FCmp) String() string {
	return fmt.Sprintf("(fcmp %s %s %s, %s)", c.Cond, c.L.Type(), c.L, c.R)
}

// ConvOp is an integer width conversion kind.
type ConvOp int

const (
	ConvSExt ConvOp = iota
	ConvZExt
	ConvTrunc
)

var convOpNames = [...]string{"sext", "zext", "trunc"}

func (op ConvOp) String() string { return convOpNames[op] }

// IntConversion reinterprets its operand as lane × prev-bits and
// converts each element to new-bits.
type IntConversion struct {
	Op       ConvOp
	V        Inst
	Lane     uint
	PrevBits uint
	NewBits  uint
}

// PrevType returns the work type the operand is reinterpreted at.
func (c *IntConversion) PrevType() Type { return IntegerVectorizableType(c.Lane, c.PrevBits) }

// Type returns the converted type.
func (c *IntConversion) Type() Type { return IntegerVectorizableType(c.Lane, c.NewBits) }

func (c *IntConversion) String() string {
	return fmt.Sprintf("(%s %s %s to %s)", c.Op, c.PrevType(), c.V, c.Type())
}

// FPConvOp is a floating-point conversion kind.
type FPConvOp int

const (
	ConvFPTrunc FPConvOp = iota
	ConvFPExt
	ConvFPToUI
	ConvFPToSI
	ConvUIToFP
	ConvSIToFP
)

var fpConvOpNames = [...]string{"fptrunc", "fpext", "fptoui", "fptosi", "uitofp", "sitofp"}

func (op FPConvOp) String() string { return fpConvOpNames[op] }

// FPConversion converts between floating-point precisions or between
// the integer and floating-point domains.
type FPConversion struct {
	Op FPConvOp
	V  Inst
	To Type
}

func (c *FPConversion) Type() Type { return c.To }

func (c *FPConversion) String() string {
	return fmt.Sprintf("(%s %s %s to %s)", c.Op, c.V.Type(), c.V, c.To)
}

// ExtractElement extracts one element of a vector; the index is a hole.
type ExtractElement struct {
	V   Inst
	Idx *ReservedConst
	Ty  Type // scalar element type
}

func (e *ExtractElement) Type() Type { return e.Ty }

// InputType returns the vector shape the operand is read at.
func (e *ExtractElement) InputType() Type {
	return Type{
		Lane: e.V.Type().Width() / e.Ty.Width(),
		Bits: e.Ty.Width(),
		FP:   e.Ty.FP,
	}
}

func (e *ExtractElement) String() string {
	return fmt.Sprintf("(extractelement %s %s, %s)", e.InputType(), e.V, e.Idx)
}

// InsertElement writes an element into a vector lane; the index is a
// hole.
type InsertElement struct {
	V      Inst
	Elt    Inst
	Idx    *ReservedConst
	WorkTy Type // vector shape the insertion happens at
}

func (e *InsertElement) Type() Type { return e.WorkTy }

func (e *InsertElement) String() string {
	return fmt.Sprintf("(insertelement %s %s, %s, %s)", e.WorkTy, e.V, e.Elt, e.Idx)
}

// FakeShuffle is a one- or two-source shuffle whose mask is a hole. R is
// nil for the one-source form (the second input is poison). Until the
// mask is synthesized the shuffle materializes as an opaque call.
type FakeShuffle struct {
	L, R     Inst
	Mask     *ReservedConst
	ExpectTy Type
}

func (s *FakeShuffle) Type() Type { return s.ExpectTy }

// InputType returns the vector shape the inputs are read at.
func (s *FakeShuffle) InputType() Type {
	return Type{
		Lane: s.L.Type().Width() / s.ExpectTy.Bits,
		Bits: s.ExpectTy.Bits,
		FP:   s.ExpectTy.FP,
	}
}

func (s *FakeShuffle) String() string {
	if s.R == nil {
		return fmt.Sprintf("(shuffle %s, %s, %s)", s.L, s.Mask, s.ExpectTy)
	}
	return fmt.Sprintf("(blend %s, %s, %s, %s)", s.L, s.R, s.Mask, s.ExpectTy)
}

// Select is a two-way choice on a boolean condition.
type Select struct {
	Cond Inst
	L, R Inst
}

func (s *Select) Type() Type { return s.L.Type() }

func (s *Select) String() string {
	return fmt.Sprintf("(select %s, %s, %s)", s.Cond, s.L, s.R)
}

// SIMDBinOp is a fixed-shape target intrinsic from the catalog.
type SIMDBinOp struct {
	Op   SIMDOp
	L, R Inst
}

func (s *SIMDBinOp) Type() Type { return s.Op.RetType() }

func (s *SIMDBinOp) String() string {
	return fmt.Sprintf("(%s %s, %s)", s.Op, s.L, s.R)
}

// Rewrite is a verified candidate together with its costs.
type Rewrite struct {
	I          Inst
	CostAfter  uint
	CostBefore uint
}

// Holes returns the constant holes of a tree in stable left-to-right
// order.
func Holes(root Inst) []*ReservedConst {
	var holes []*ReservedConst
	WalkInst(root, func(i Inst) {
		if rc, ok := i.(*ReservedConst); ok {
			holes = append(holes, rc)
		}
	})
	return holes
}

// WalkInst visits every node of the tree in preorder.
func WalkInst(root Inst, fn func(Inst)) {
	if root == nil {
		return
	}
	fn(root)
	switch i := root.(type) {
	case *Var, *ReservedConst:
	case *Copy:
		WalkInst(i.RC, fn)
	case *UnaryOp:
		WalkInst(i.V, fn)
	case *BinaryOp:
		WalkInst(i.L, fn)
		WalkInst(i.R, fn)
	case *ICmp:
		WalkInst(i.L, fn)
		WalkInst(i.R, fn)
	case *FCmp:
		WalkInst(i.L, fn)
		WalkInst(i.R, fn)
	case *IntConversion:
		WalkInst(i.V, fn)
	case *FPConversion:
		WalkInst(i.V, fn)
	case *ExtractElement:
		WalkInst(i.V, fn)
		WalkInst(i.Idx, fn)
	case *InsertElement:
		WalkInst(i.V, fn)
		WalkInst(i.Elt, fn)
		WalkInst(i.Idx, fn)
	case *FakeShuffle:
		WalkInst(i.L, fn)
		if i.R != nil {
			WalkInst(i.R, fn)
		}
		WalkInst(i.Mask, fn)
	case *Select:
		WalkInst(i.Cond, fn)
		WalkInst(i.L, fn)
		WalkInst(i.R, fn)
	case *SIMDBinOp:
		WalkInst(i.L, fn)
		WalkInst(i.R, fn)
	default:
		panic("unreachable")
	}
}
