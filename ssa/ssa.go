// Package ssa models the host compiler IR consumed by the synthesis
// engine: modules of functions, each a CFG of basic blocks holding typed
// SSA instructions over fixed-width integers, IEEE floats, and
// fixed-width vectors thereof.
//
// Instructions are a closed op enum on a flat Instr struct rather than
// an open class hierarchy; the operator catalog is fixed.
package ssa

import (
	"fmt"
	"math"
)

// Type is the host value type: a vector of Lane elements of Bits width,
// integer or floating point, or one of the pointer/void sentinels.
type Type struct {
	Lane uint
	Bits uint
	FP   bool
	Ptr  bool
	Void bool
}

// Common scalar types.
var (
	VoidType = Type{Void: true}
	PtrType  = Type{Ptr: true, Lane: 1, Bits: 64}
	I1       = IntType(1)
	I8       = IntType(8)
	I16      = IntType(16)
	I32      = IntType(32)
	I64      = IntType(64)
	HalfType = Type{Lane: 1, Bits: 16, FP: true}
	FloatTyp = Type{Lane: 1, Bits: 32, FP: true}
	DoubleTy = Type{Lane: 1, Bits: 64, FP: true}
	FP128Ty  = Type{Lane: 1, Bits: 128, FP: true}
)

// IntType returns the scalar integer type iN.
func IntType(bits uint) Type { return Type{Lane: 1, Bits: bits} }

// VecType returns a vector of lane copies of the scalar elem.
func VecType(lane uint, elem Type) Type {
	if elem.Ptr || elem.Void || elem.Lane != 1 {
		panic("ssa: invalid vector element type")
	}
	return Type{Lane: lane, Bits: elem.Bits, FP: elem.FP}
}

// Width returns the primitive size of t in bits.
func (t Type) Width() uint {
	if t.Void {
		return 0
	}
	return t.Lane * t.Bits
}

// Scalar returns the element type of t.
func (t Type) Scalar() Type {
	if t.Ptr || t.Void {
		return t
	}
	return Type{Lane: 1, Bits: t.Bits, FP: t.FP}
}

// IsInt returns true for integer scalars and vectors.
func (t Type) IsInt() bool { return !t.FP && !t.Ptr && !t.Void }

// IsVector returns true if t has two or more lanes.
func (t Type) IsVector() bool { return !t.Ptr && !t.Void && t.Lane > 1 }

// IsBool returns true if t is i1.
func (t Type) IsBool() bool { return t.IsInt() && t.Lane == 1 && t.Bits == 1 }

func (t Type) String() string {
	switch {
	case t.Void:
		return "void"
	case t.Ptr:
		return "ptr"
	}
	var elem string
	if t.FP {
		switch t.Bits {
		case 16:
			elem = "half"
		case 32:
			elem = "float"
		case 64:
			elem = "double"
		case 128:
			elem = "fp128"
		default:
			panic(fmt.Sprintf("ssa: invalid fp width %d", t.Bits))
		}
	} else {
		elem = fmt.Sprintf("i%d", t.Bits)
	}
	if t.Lane > 1 {
		return fmt.Sprintf("<%d x %s>", t.Lane, elem)
	}
	return elem
}

// Value is an SSA value: a function parameter, a constant, or the
// result of an instruction.
type Value interface {
	Type() Type
	value()
}

func (*Param) value() {}
func (*Const) value() {}
func (*Instr) value() {}

// Param is a function parameter.
type Param struct {
	Nm    string
	Typ   Type
	Index int
	Fn    *Func
}

func (p *Param) Type() Type   { return p.Typ }
func (p *Param) Name() string { return p.Nm }

// Const is a literal constant. Element values are stored as raw bits,
// one uint64 per lane (floating-point lanes hold the IEEE encoding).
type Const struct {
	Typ    Type
	Elems  []uint64
	Poison bool
}

func (c *Const) Type() Type { return c.Typ }

// ConstInt returns a scalar integer constant, masked to the type width.
func ConstInt(t Type, v uint64) *Const {
	if !t.IsInt() || t.Lane != 1 {
		panic("ssa: ConstInt on non-integer type")
	}
	return &Const{Typ: t, Elems: []uint64{v & Bitmask(t.Bits)}}
}

// ConstVec returns a vector constant from per-lane raw bits.
func ConstVec(t Type, elems []uint64) *Const {
	if uint(len(elems)) != t.Lane {
		panic("ssa: ConstVec lane count mismatch")
	}
	masked := make([]uint64, len(elems))
	for i, e := range elems {
		masked[i] = e & Bitmask(t.Bits)
	}
	return &Const{Typ: t, Elems: masked}
}

// ConstFloat returns a scalar floating-point constant.
func ConstFloat(t Type, v float64) *Const {
	if !t.FP || t.Lane != 1 {
		panic("ssa: ConstFloat on non-fp type")
	}
	var bits uint64
	switch t.Bits {
	case 16:
		bits = uint64(Float16bits(v))
	case 32:
		bits = uint64(math.Float32bits(float32(v)))
	case 64:
		bits = math.Float64bits(v)
	default:
		panic("ssa: ConstFloat on unsupported fp width")
	}
	return &Const{Typ: t, Elems: []uint64{bits}}
}

// PoisonValue returns the poison constant of the given type.
func PoisonValue(t Type) *Const {
	return &Const{Typ: t, Elems: make([]uint64, t.Lane), Poison: true}
}

// IsZero returns true if every lane of c is zero.
func (c *Const) IsZero() bool {
	for _, e := range c.Elems {
		if e != 0 {
			return false
		}
	}
	return !c.Poison
}

// Bitmask returns a mask of width low bits. Width 64 and above saturate.
func Bitmask(width uint) uint64 {
	if width >= 64 {
		return ^uint64(0)
	}
	return (1 << width) - 1
}

// Float16bits returns the IEEE half-precision encoding of v, rounding
// to nearest even.
func Float16bits(v float64) uint16 {
	b := math.Float32bits(float32(v))
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23&0xff) - 127 + 15
	mant := b & 0x7fffff
	switch {
	case exp >= 0x1f: // overflow or inf/nan
		if b&0x7fffffff > 0x7f800000 {
			return sign | 0x7e00 // nan
		}
		return sign | 0x7c00
	case exp <= 0: // subnormal or zero
		if exp < -10 {
			return sign
		}
		mant |= 0x800000
		shift := uint32(14 - exp)
		h := mant >> shift
		half := uint32(1) << (shift - 1)
		if rem := mant & (half<<1 - 1); rem > half || (rem == half && h&1 == 1) {
			h++
		}
		return sign | uint16(h)
	default:
		h := uint32(exp)<<10 | mant>>13
		if rem := mant & 0x1fff; rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
			h++
		}
		return sign | uint16(h)
	}
}

// Op is the instruction opcode.
type Op int

const (
	OpInvalid Op = iota

	// Integer binary.
	OpAdd
	OpSub
	OpMul
	OpSDiv
	OpUDiv
	OpAnd
	OpOr
	OpXor
	OpShl
	OpLShr
	OpAShr
	OpUMax
	OpUMin
	OpSMax
	OpSMin

	// Floating-point binary.
	OpFAdd
	OpFSub
	OpFMul
	OpFDiv
	OpFMaxNum
	OpFMinNum
	OpFMaximum
	OpFMinimum
	OpCopySign

	// Unary.
	OpBitReverse
	OpBSwap
	OpCtPop
	OpCtLz
	OpCtTz
	OpFNeg
	OpFAbs
	OpFCeil
	OpFFloor
	OpFRint
	OpFNearbyInt
	OpFRound
	OpFRoundEven
	OpFTrunc

	// Compares.
	OpICmp
	OpFCmp

	// Casts.
	OpSExt
	OpZExt
	OpTrunc
	OpFPTrunc
	OpFPExt
	OpFPToUI
	OpFPToSI
	OpUIToFP
	OpSIToFP
	OpBitCast

	// Vector.
	OpSelect
	OpExtractElement
	OpInsertElement
	OpShuffleVector

	// Control and misc.
	OpCall
	OpPhi
	OpBr
	OpSwitch
	OpRet
	OpUnreachable
)

var opNames = [...]string{
	OpAdd: "add", OpSub: "sub", OpMul: "mul", OpSDiv: "sdiv", OpUDiv: "udiv",
	OpAnd: "and", OpOr: "or", OpXor: "xor",
	OpShl: "shl", OpLShr: "lshr", OpAShr: "ashr",
	OpUMax: "umax", OpUMin: "umin", OpSMax: "smax", OpSMin: "smin",
	OpFAdd: "fadd", OpFSub: "fsub", OpFMul: "fmul", OpFDiv: "fdiv",
	OpFMaxNum: "fmaxnum", OpFMinNum: "fminnum",
	OpFMaximum: "fmaximum", OpFMinimum: "fminimum", OpCopySign: "copysign",
	OpBitReverse: "bitreverse", OpBSwap: "bswap",
	OpCtPop: "ctpop", OpCtLz: "ctlz", OpCtTz: "cttz",
	OpFNeg: "fneg", OpFAbs: "fabs", OpFCeil: "fceil", OpFFloor: "ffloor",
	OpFRint: "frint", OpFNearbyInt: "fnearbyint", OpFRound: "fround",
	OpFRoundEven: "froundeven", OpFTrunc: "ftrunc",
	OpICmp: "icmp", OpFCmp: "fcmp",
	OpSExt: "sext", OpZExt: "zext", OpTrunc: "trunc",
	OpFPTrunc: "fptrunc", OpFPExt: "fpext",
	OpFPToUI: "fptoui", OpFPToSI: "fptosi",
	OpUIToFP: "uitofp", OpSIToFP: "sitofp", OpBitCast: "bitcast",
	OpSelect: "select", OpExtractElement: "extractelement",
	OpInsertElement: "insertelement", OpShuffleVector: "shufflevector",
	OpCall: "call", OpPhi: "phi", OpBr: "br", OpSwitch: "switch",
	OpRet: "ret", OpUnreachable: "unreachable",
}

func (op Op) String() string {
	if op > 0 && int(op) < len(opNames) && opNames[op] != "" {
		return opNames[op]
	}
	return fmt.Sprintf("Op<%d>", int(op))
}

// IsTerminator returns true for block terminators.
func (op Op) IsTerminator() bool {
	switch op {
	case OpBr, OpSwitch, OpRet, OpUnreachable:
		return true
	}
	return false
}

// IPred is an integer comparison predicate.
type IPred int

const (
	IPredEQ IPred = iota
	IPredNE
	IPredULT
	IPredULE
	IPredUGT
	IPredUGE
	IPredSLT
	IPredSLE
	IPredSGT
	IPredSGE
)

var ipredNames = [...]string{"eq", "ne", "ult", "ule", "ugt", "uge", "slt", "sle", "sgt", "sge"}

func (p IPred) String() string { return ipredNames[p] }

// FPred is a floating-point comparison predicate.
type FPred int

const (
	FPredFalse FPred = iota
	FPredOEQ
	FPredOGT
	FPredOGE
	FPredOLT
	FPredOLE
	FPredONE
	FPredORD
	FPredUEQ
	FPredUGT
	FPredUGE
	FPredULT
	FPredULE
	FPredUNE
	FPredUNO
	FPredTrue
)

var fpredNames = [...]string{
	"false", "oeq", "ogt", "oge", "olt", "ole", "one", "ord",
	"ueq", "ugt", "uge", "ult", "ule", "une", "uno", "true",
}

func (p FPred) String() string { return fpredNames[p] }

// Instr is a single SSA instruction. Only the fields relevant to Op are
// populated: IPred/FPred for compares, Mask for shuffles, Callee for
// calls, Cases for switches, Succs for terminators.
type Instr struct {
	Op    Op
	Typ   Type
	Args  []Value
	IPred IPred
	FPred FPred
	Mask  []int // -1 selects poison
	Callee *Func
	Cases  []uint64 // switch case values, aligned with Succs[1:]
	Succs  []*Block // branch targets; Succs[0] is the default for switch
	Blk    *Block
	ID     int
}

func (i *Instr) Type() Type { return i.Typ }

// Name returns the printed SSA name of the instruction result.
func (i *Instr) Name() string { return fmt.Sprintf("t%d", i.ID) }

// Block is a basic block.
type Block struct {
	Nm     string
	Instrs []*Instr
	Fn     *Func
	Preds  []*Block
}

// Name returns the block label.
func (b *Block) Name() string { return b.Nm }

// Term returns the block terminator, or nil if the block is unfinished.
func (b *Block) Term() *Instr {
	if len(b.Instrs) == 0 {
		return nil
	}
	if last := b.Instrs[len(b.Instrs)-1]; last.Op.IsTerminator() {
		return last
	}
	return nil
}

// Append adds an instruction at the end of the block.
func (b *Block) Append(i *Instr) {
	i.Blk = b
	i.ID = b.Fn.nextID()
	b.Instrs = append(b.Instrs, i)
}

// Func is a function definition or declaration.
type Func struct {
	Nm     string
	Params []*Param
	Ret    Type
	Blocks []*Block
	Mod    *Module
	Decl   bool
	idSeq  int
}

// Name returns the function name.
func (f *Func) Name() string { return f.Nm }

func (f *Func) nextID() int {
	f.idSeq++
	return f.idSeq - 1
}

// Entry returns the entry block.
func (f *Func) Entry() *Block {
	if len(f.Blocks) == 0 {
		return nil
	}
	return f.Blocks[0]
}

// NewBlock appends a new empty block to the function.
func (f *Func) NewBlock(name string) *Block {
	b := &Block{Nm: name, Fn: f}
	f.Blocks = append(f.Blocks, b)
	return b
}

// AddParam appends a parameter to the function signature.
func (f *Func) AddParam(name string, t Type) *Param {
	p := &Param{Nm: name, Typ: t, Index: len(f.Params), Fn: f}
	f.Params = append(f.Params, p)
	return p
}

// ComputePreds recomputes every block's predecessor list from the
// terminators. Call after any CFG mutation.
func (f *Func) ComputePreds() {
	for _, b := range f.Blocks {
		b.Preds = b.Preds[:0]
	}
	for _, b := range f.Blocks {
		term := b.Term()
		if term == nil {
			continue
		}
		for _, s := range term.Succs {
			s.Preds = append(s.Preds, b)
		}
	}
}

// Module is a collection of functions.
type Module struct {
	Nm    string
	Funcs []*Func
}

// NewModule returns an empty module.
func NewModule(name string) *Module { return &Module{Nm: name} }

// Lookup returns the named function, or nil.
func (m *Module) Lookup(name string) *Func {
	for _, f := range m.Funcs {
		if f.Nm == name {
			return f
		}
	}
	return nil
}

// NewFunc creates an empty function definition in the module.
func (m *Module) NewFunc(name string, ret Type) *Func {
	f := &Func{Nm: name, Ret: ret, Mod: m}
	m.Funcs = append(m.Funcs, f)
	return f
}

// Declare returns the named declaration, creating it with the given
// signature if absent. Existing functions are returned as-is.
func (m *Module) Declare(name string, params []Type, ret Type) *Func {
	if f := m.Lookup(name); f != nil {
		return f
	}
	f := &Func{Nm: name, Ret: ret, Mod: m, Decl: true}
	for i, t := range params {
		f.AddParam(fmt.Sprintf("a%d", i), t)
	}
	m.Funcs = append(m.Funcs, f)
	return f
}

// Remove deletes a function from the module.
func (m *Module) Remove(f *Func) {
	for i, g := range m.Funcs {
		if g == f {
			m.Funcs = append(m.Funcs[:i], m.Funcs[i+1:]...)
			return
		}
	}
}
