package minotaur

import (
	"fmt"

	"github.com/artagnon/minotaur/ssa"
)

// Type describes the shape of a candidate value: a vector of lane
// elements of bits width each, either integer or IEEE floating point.
// Scalars have Lane == 1. The zero value is the null sentinel used for
// not-yet-typed constant holes; it is invalid for materialization.
type Type struct {
	Lane uint
	Bits uint
	FP   bool
}

// NullType returns the sentinel type for an untyped constant hole.
func NullType() Type { return Type{} }

// IntegerType returns a scalar integer type of the given width.
func IntegerType(bits uint) Type { return Type{Lane: 1, Bits: bits} }

// IntegerVectorizableType returns an integer type of lane elements of
// bits width each.
func IntegerVectorizableType(lane, bits uint) Type { return Type{Lane: lane, Bits: bits} }

// ScalarType returns a scalar type of the given total width.
func ScalarType(width uint, fp bool) Type { return Type{Lane: 1, Bits: width, FP: fp} }

// TypeOf converts a host SSA type to a candidate type.
func TypeOf(t ssa.Type) Type {
	assert(!t.Ptr && !t.Void, "no candidate type for %s", t)
	return Type{Lane: t.Lane, Bits: t.Bits, FP: t.FP}
}

// Width returns the total bit width.
func (t Type) Width() uint { return t.Lane * t.Bits }

// IsValid returns true unless t is the null sentinel.
func (t Type) IsValid() bool { return t.Lane != 0 && t.Bits != 0 }

// IsVector returns true if t has two or more lanes.
func (t Type) IsVector() bool { return t.Lane > 1 }

// IsBool returns true if t is the i1 type.
func (t Type) IsBool() bool { return t.Lane == 1 && t.Bits == 1 && !t.FP }

// SameWidth returns true if t and other occupy the same number of bits.
func (t Type) SameWidth(other Type) bool {
	assert(t.IsValid(), "same-width on null type")
	return t.Width() == other.Width()
}

// AsScalar returns the element type of t.
func (t Type) AsScalar() Type { return Type{Lane: 1, Bits: t.Bits, FP: t.FP} }

// AsVector returns t reshaped to the given lane count.
func (t Type) AsVector(lane uint) Type { return Type{Lane: lane, Bits: t.Bits, FP: t.FP} }

// AsInteger returns an integer type of equal width: per-element for
// integer types, whole-width for floating point.
func (t Type) AsInteger() Type {
	if t.FP {
		return IntegerType(t.Width())
	}
	return IntegerVectorizableType(t.Lane, t.Bits)
}

// ToSSA returns the host SSA type equivalent to t.
func (t Type) ToSSA() ssa.Type {
	assert(t.IsValid(), "materializing null type")
	return ssa.Type{Lane: t.Lane, Bits: t.Bits, FP: t.FP}
}

// String renders the type in the surface syntax: i32, half, <4 x i8>...
func (t Type) String() string {
	if !t.IsValid() {
		return "null"
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
			panic(fmt.Sprintf("invalid fp width: %d", t.Bits))
		}
	} else {
		elem = fmt.Sprintf("i%d", t.Bits)
	}
	if t.IsVector() {
		return fmt.Sprintf("<%d x %s>", t.Lane, elem)
	}
	return elem
}

// IntegerVectorTypes returns every integer reinterpretation of t's width
// with element widths 64, 32, 16, 8. Widths not divisible by 8 only
// admit t itself.
func IntegerVectorTypes(t Type) []Type {
	width := t.Width()
	if width%8 != 0 {
		return []Type{t}
	}
	var types []Type
	for _, bits := range []uint{64, 32, 16, 8} {
		if width%bits == 0 && width >= bits {
			types = append(types, IntegerVectorizableType(width/bits, bits))
		}
	}
	return types
}

// BinaryOpWorkTypes returns the types in which op may be evaluated to
// produce a result of the expected type. Lane-independent bitwise ops
// work on the whole width as one scalar; integer arithmetic admits every
// integer vectorization; floating-point ops require the expected fp
// shape itself.
func BinaryOpWorkTypes(expected Type, op BinOp) []Type {
	if op.IsFP() {
		if !expected.FP {
			return nil
		}
		return []Type{expected}
	}
	if expected.FP {
		return nil
	}
	if op.IsLogical() {
		return []Type{IntegerType(expected.Width())}
	}
	if expected.IsBool() {
		return nil
	}
	return IntegerVectorTypes(expected)
}

// UnaryOpWorkTypes returns the work types for a unary op with the given
// expected result type. bswap requires byte-divisible elements of at
// least 16 bits.
func UnaryOpWorkTypes(expected Type, op UnOp) []Type {
	if op.IsFP() {
		if !expected.FP {
			return nil
		}
		return []Type{expected}
	}
	if expected.FP {
		return nil
	}
	var types []Type
	for _, t := range IntegerVectorTypes(expected) {
		if op == UnOpBSwap && (t.Bits < 16 || t.Bits%8 != 0) {
			continue
		}
		types = append(types, t)
	}
	return types
}

// ShuffleWorkTypes returns the element vectorizations a shuffle may
// produce for the expected type. Floating-point results admit only the
// expected shape; integer results admit every integer vectorization.
func ShuffleWorkTypes(expected Type) []Type {
	if expected.FP {
		return []Type{expected}
	}
	return IntegerVectorTypes(expected)
}

// InsertElementWorkTypes returns the vectorizations an insertelement may
// use for the expected result type; the result must remain a vector.
func InsertElementWorkTypes(expected Type) []Type {
	var types []Type
	for _, t := range ShuffleWorkTypes(expected) {
		if t.Lane < 2 {
			continue
		}
		types = append(types, t)
	}
	return types
}
