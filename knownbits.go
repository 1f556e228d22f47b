package minotaur

import (
	"github.com/artagnon/minotaur/ssa"
)

// KnownBits tracks which bits of a value are known to be zero or one.
// For vector values the facts are the intersection across lanes. A bit
// never appears in both masks.
type KnownBits struct {
	Zero  uint64
	One   uint64
	Width uint
}

func unknownBits(width uint) KnownBits { return KnownBits{Width: width} }

const maxKnownBitsDepth = 6

// ComputeKnownBits computes known bits of v at its scalar element
// width. Only integer values carry facts; everything else is unknown.
func ComputeKnownBits(v ssa.Value) KnownBits {
	return knownBits(v, maxKnownBitsDepth)
}

func knownBits(v ssa.Value, depth int) KnownBits {
	t := v.Type()
	if !t.IsInt() {
		return unknownBits(0)
	}
	width := t.Bits
	mask := ssa.Bitmask(width)
	kb := unknownBits(width)
	if depth == 0 {
		return kb
	}

	switch v := v.(type) {
	case *ssa.Const:
		if v.Poison {
			return kb
		}
		kb.Zero, kb.One = mask, mask
		for _, e := range v.Elems {
			kb.One &= e
			kb.Zero &= ^e & mask
		}
		return kb
	case *ssa.Param:
		return kb
	case *ssa.Instr:
		return instrKnownBits(v, width, mask, depth)
	}
	return kb
}

func instrKnownBits(i *ssa.Instr, width uint, mask uint64, depth int) KnownBits {
	kb := unknownBits(width)
	arg := func(k int) KnownBits { return knownBits(i.Args[k], depth-1) }

	switch i.Op {
	case ssa.OpAnd:
		l, r := arg(0), arg(1)
		kb.One = l.One & r.One
		kb.Zero = (l.Zero | r.Zero) & mask
	case ssa.OpOr:
		l, r := arg(0), arg(1)
		kb.One = l.One | r.One
		kb.Zero = l.Zero & r.Zero
	case ssa.OpXor:
		l, r := arg(0), arg(1)
		known := (l.Zero | l.One) & (r.Zero | r.One)
		val := (l.One ^ r.One) & known
		kb.One = val
		kb.Zero = known &^ val
	case ssa.OpAdd, ssa.OpSub, ssa.OpMul:
		l, r := arg(0), arg(1)
		if l.Zero|l.One == mask && r.Zero|r.One == mask {
			var val uint64
			switch i.Op {
			case ssa.OpAdd:
				val = (l.One + r.One) & mask
			case ssa.OpSub:
				val = (l.One - r.One) & mask
			case ssa.OpMul:
				val = (l.One * r.One) & mask
			}
			kb.One = val
			kb.Zero = ^val & mask
		}
	case ssa.OpShl:
		if sh, ok := constShift(i.Args[1]); ok && sh < uint64(width) {
			l := arg(0)
			kb.One = (l.One << sh) & mask
			kb.Zero = ((l.Zero << sh) | ssa.Bitmask(uint(sh))) & mask
		}
	case ssa.OpLShr:
		if sh, ok := constShift(i.Args[1]); ok && sh < uint64(width) {
			l := arg(0)
			kb.One = l.One >> sh
			high := (mask >> sh) ^ mask
			kb.Zero = (l.Zero >> sh) | high
		}
	case ssa.OpAShr:
		if sh, ok := constShift(i.Args[1]); ok && sh < uint64(width) {
			l := arg(0)
			sign := uint64(1) << (width - 1)
			kb.One = l.One >> sh
			kb.Zero = l.Zero >> sh
			high := (mask >> sh) ^ mask
			if l.Zero&sign != 0 {
				kb.Zero |= high
			} else if l.One&sign != 0 {
				kb.One |= high
			}
		}
	case ssa.OpZExt:
		src := arg(0)
		srcMask := ssa.Bitmask(src.Width)
		kb.One = src.One
		kb.Zero = src.Zero | (mask &^ srcMask)
	case ssa.OpSExt:
		src := arg(0)
		sign := uint64(1) << (src.Width - 1)
		srcMask := ssa.Bitmask(src.Width)
		kb.One = src.One
		kb.Zero = src.Zero
		if src.Zero&sign != 0 {
			kb.Zero |= mask &^ srcMask
		} else if src.One&sign != 0 {
			kb.One |= mask &^ srcMask
		}
	case ssa.OpTrunc:
		src := arg(0)
		kb.One = src.One & mask
		kb.Zero = src.Zero & mask
	case ssa.OpSelect:
		l, r := arg(1), arg(2)
		kb.One = l.One & r.One
		kb.Zero = l.Zero & r.Zero
	case ssa.OpPhi:
		if len(i.Args) > 0 {
			k := arg(0)
			for idx := 1; idx < len(i.Args); idx++ {
				o := knownBits(i.Args[idx], depth-1)
				k.One &= o.One
				k.Zero &= o.Zero
			}
			kb = KnownBits{Zero: k.Zero & mask, One: k.One & mask, Width: width}
		}
	case ssa.OpICmp, ssa.OpFCmp:
		// i1: nothing known beyond the width itself
	case ssa.OpUMin:
		l, r := arg(0), arg(1)
		kb.Zero = l.Zero & r.Zero // common leading zeros survive a min
	case ssa.OpBitCast:
		src := i.Args[0].Type()
		if src.IsInt() && src.Lane == i.Typ.Lane {
			return knownBits(i.Args[0], depth-1)
		}
	}
	return kb
}

func constShift(v ssa.Value) (uint64, bool) {
	c, ok := v.(*ssa.Const)
	if !ok || c.Poison || c.Typ.IsVector() {
		return 0, false
	}
	return c.Elems[0], true
}

// Incompatible reports whether the two facts force a disagreeing bit:
// some position known-one on one side and known-zero on the other.
func (kb KnownBits) Incompatible(other KnownBits) bool {
	return kb.Zero&other.One != 0 || kb.One&other.Zero != 0
}
