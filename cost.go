package minotaur

import (
	"sync"

	"github.com/artagnon/minotaur/ssa"
	"github.com/benbjohnson/immutable"
)

// ApproxCost is a cheap, target-independent weighted count over the
// instructions of f, used for candidate ordering and early pruning.
func ApproxCost(f *ssa.Func) uint {
	var cost uint
	for _, b := range ssa.ReversePostorder(f) {
		for _, i := range b.Instrs {
			cost += approxWeight(i)
		}
	}
	return cost
}

func approxWeight(i *ssa.Instr) uint {
	switch i.Op {
	case ssa.OpBr, ssa.OpSwitch, ssa.OpRet, ssa.OpUnreachable,
		ssa.OpPhi, ssa.OpBitCast:
		return 0
	case ssa.OpSDiv, ssa.OpUDiv, ssa.OpFDiv:
		return 4
	case ssa.OpMul, ssa.OpFMul:
		return 2
	case ssa.OpCall:
		return 2
	case ssa.OpShuffleVector, ssa.OpInsertElement, ssa.OpExtractElement:
		return 2
	default:
		return 1
	}
}

// costTarget is a per-(triple, cpu) micro-op estimator. Vector
// operations wider than the target's native vector width decompose into
// multiple uops.
type costTarget struct {
	Triple   string
	CPU      string
	VecWidth uint            // native vector width in bits
	UOps     map[ssa.Op]uint // base uop count per operation
}

func (t *costTarget) cost(f *ssa.Func) uint {
	var total uint
	for _, b := range ssa.ReversePostorder(f) {
		for _, i := range b.Instrs {
			base, ok := t.UOps[i.Op]
			if !ok {
				return 0 // unknown op, estimate unavailable
			}
			if w := i.Typ.Width(); w > t.VecWidth && t.VecWidth > 0 {
				base *= (w + t.VecWidth - 1) / t.VecWidth
			}
			total += base
		}
	}
	return total
}

var (
	targetsOnce     sync.Once
	targetRegistry  *immutable.Map[string, *costTarget]
	primaryTargets  = []string{"x86_64/skylake", "aarch64/apple-a12"}
)

// initTargets builds the process-wide target registry. The registry is
// immutable after initialization; callers may read it concurrently.
func initTargets() {
	targetsOnce.Do(func() {
		b := immutable.NewMapBuilder[string, *costTarget](nil)

		common := map[ssa.Op]uint{
			ssa.OpAdd: 1, ssa.OpSub: 1, ssa.OpAnd: 1, ssa.OpOr: 1, ssa.OpXor: 1,
			ssa.OpShl: 1, ssa.OpLShr: 1, ssa.OpAShr: 1,
			ssa.OpUMax: 1, ssa.OpUMin: 1, ssa.OpSMax: 1, ssa.OpSMin: 1,
			ssa.OpMul: 3, ssa.OpSDiv: 20, ssa.OpUDiv: 20,
			ssa.OpFAdd: 2, ssa.OpFSub: 2, ssa.OpFMul: 3, ssa.OpFDiv: 11,
			ssa.OpFMaxNum: 2, ssa.OpFMinNum: 2, ssa.OpFMaximum: 3, ssa.OpFMinimum: 3,
			ssa.OpCopySign: 1, ssa.OpFNeg: 1, ssa.OpFAbs: 1,
			ssa.OpFCeil: 3, ssa.OpFFloor: 3, ssa.OpFRint: 3, ssa.OpFNearbyInt: 3,
			ssa.OpFRound: 3, ssa.OpFRoundEven: 3, ssa.OpFTrunc: 3,
			ssa.OpBitReverse: 2, ssa.OpBSwap: 1,
			ssa.OpCtPop: 1, ssa.OpCtLz: 1, ssa.OpCtTz: 1,
			ssa.OpICmp: 1, ssa.OpFCmp: 2,
			ssa.OpSExt: 1, ssa.OpZExt: 1, ssa.OpTrunc: 1,
			ssa.OpFPTrunc: 2, ssa.OpFPExt: 2,
			ssa.OpFPToUI: 2, ssa.OpFPToSI: 2, ssa.OpUIToFP: 2, ssa.OpSIToFP: 2,
			ssa.OpBitCast: 0, ssa.OpSelect: 1,
			ssa.OpExtractElement: 2, ssa.OpInsertElement: 2, ssa.OpShuffleVector: 1,
			ssa.OpCall: 1, ssa.OpPhi: 0,
			ssa.OpBr: 1, ssa.OpSwitch: 2, ssa.OpRet: 1, ssa.OpUnreachable: 0,
		}

		skylake := &costTarget{
			Triple: "x86_64", CPU: "skylake", VecWidth: 512,
			UOps: common,
		}
		b.Set("x86_64/skylake", skylake)

		a12uops := make(map[ssa.Op]uint, len(common))
		for op, c := range common {
			a12uops[op] = c
		}
		a12uops[ssa.OpBitReverse] = 1 // rbit is single-uop
		a12uops[ssa.OpMul] = 2
		apple := &costTarget{
			Triple: "aarch64", CPU: "apple-a12", VecWidth: 128,
			UOps: a12uops,
		}
		b.Set("aarch64/apple-a12", apple)

		targetRegistry = b.Map()
	})
}

// MachineCost estimates the micro-op count of f across the configured
// targets. A result of 0 means the estimate is unavailable and disables
// the machine-cost gate.
func MachineCost(f *ssa.Func) uint {
	initTargets()
	var total uint
	for _, key := range primaryTargets {
		t, ok := targetRegistry.Get(key)
		if !ok {
			return 0
		}
		c := t.cost(f)
		if c == 0 {
			return 0
		}
		total += c
	}
	return total
}
