package minotaur

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/artagnon/minotaur/ssa"
)

// maxCEGISRounds bounds the counterexample-guided constant synthesis
// loop; candidates that fail to converge are rejected.
const maxCEGISRounds = 32

// VerifierStats counts query outcomes across a verifier's lifetime.
type VerifierStats struct {
	Queries    int
	TypeErrors int
}

// Verifier decides semantic equivalence of a (src, tgt) candidate pair,
// either directly or by synthesizing constants for the target's holes.
// It is the only component that talks to the SMT backend.
type Verifier struct {
	cfg    Config
	solver Solver
	stats  VerifierStats
}

// NewVerifier returns a verifier over the given SMT backend.
func NewVerifier(cfg Config, solver Solver) *Verifier {
	return &Verifier{cfg: cfg, solver: solver}
}

// Stats returns the accumulated statistics.
func (v *Verifier) Stats() VerifierStats { return v.stats }

func (v *Verifier) debugf(format string, args ...interface{}) {
	if v.cfg.DebugVerifier {
		log.Printf("[verify] "+format, args...)
	}
}

// transform holds the symbolic encodings of a candidate pair after
// preprocessing.
type transform struct {
	src Expr
	tgt Expr
}

// newTransform symbolically executes both functions and checks that the
// pair admits a typing (equal return widths). A failure here is a
// TypeError: the enumerator produced an inconsistent candidate.
func (v *Verifier) newTransform(src, tgt *ssa.Func) (*transform, error) {
	srcE, err := ExecFunction(src, "src")
	if err != nil {
		v.stats.TypeErrors++
		v.debugf("source did not lower: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	tgtE, err := ExecFunction(tgt, "tgt")
	if err != nil {
		v.stats.TypeErrors++
		v.debugf("target did not lower: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrTypeMismatch, err)
	}
	if ExprWidth(srcE) != ExprWidth(tgtE) {
		v.stats.TypeErrors++
		return nil, fmt.Errorf("%w: return widths %d and %d",
			ErrTypeMismatch, ExprWidth(srcE), ExprWidth(tgtE))
	}
	return &transform{src: srcE, tgt: tgtE}, nil
}

// mapSolverErr translates backend failures into the verifier taxonomy:
// resource exhaustion aborts the slice, timeouts merely reject the
// candidate.
func mapSolverErr(err error) error {
	switch {
	case errors.Is(err, ErrSolverResourceLimit):
		return ErrSlowVCGen
	case errors.Is(err, ErrSolverTimeout):
		return ErrCounterExample
	default:
		return err
	}
}

// Equivalent reports nil when src and tgt compute the same value for
// every input. A disagreeing input yields ErrCounterExample.
func (v *Verifier) Equivalent(ctx context.Context, src, tgt *ssa.Func) error {
	t, err := v.newTransform(src, tgt)
	if err != nil {
		return err
	}

	v.stats.Queries++
	refute := NewBinaryExpr(NE, t.src, t.tgt)
	sat, _, err := v.solver.Solve(ctx, []Expr{refute}, nil)
	if err != nil {
		return mapSolverErr(err)
	}
	if sat {
		v.debugf("equivalence refuted")
		return ErrCounterExample
	}
	return nil
}

// SynthesizeConstants finds concrete values for tgt's hole parameters
// that make src and tgt equivalent for every input, by counterexample-
// guided refinement. The result maps each hole to a constant of its
// declared type.
func (v *Verifier) SynthesizeConstants(ctx context.Context, src, tgt *ssa.Func, holes map[string]*ReservedConst) (map[*ReservedConst]*ssa.Const, error) {
	t, err := v.newTransform(src, tgt)
	if err != nil {
		return nil, err
	}

	holeSyms := make([]*SymbolExpr, 0, len(holes))
	isHole := func(name string) bool {
		_, ok := holes[name]
		return ok
	}
	for _, sym := range FindSymbols(t.tgt) {
		if isHole(sym.Name) {
			holeSyms = append(holeSyms, sym)
		}
	}
	if len(holeSyms) != len(holes) {
		// a hole fell out of the target; the candidate cannot resolve
		return nil, ErrCounterExample
	}

	// every free symbol that is not a hole is an input to generalize over
	var examples []Model
	examples = append(examples, zeroModel(t, isHole))

	for round := 0; round < maxCEGISRounds; round++ {
		// find constants consistent with every example seen so far
		var constraints []Expr
		for _, m := range examples {
			lhs := SubstituteExpr(t.src, m)
			rhs := SubstituteExpr(t.tgt, m)
			constraints = append(constraints, NewBinaryExpr(EQ, lhs, rhs))
		}
		v.stats.Queries++
		sat, model, err := v.solver.Solve(ctx, constraints, holeSyms)
		if err != nil {
			return nil, mapSolverErr(err)
		}
		if !sat {
			v.debugf("no constants satisfy %d examples", len(examples))
			return nil, ErrCounterExample
		}

		// check the proposed constants against all inputs
		tgtC := SubstituteExpr(t.tgt, model)
		refute := NewBinaryExpr(NE, t.src, tgtC)
		v.stats.Queries++
		sat, cex, err := v.solver.Solve(ctx, []Expr{refute}, FindSymbols(t.src, tgtC))
		if err != nil {
			return nil, mapSolverErr(err)
		}
		if !sat {
			return v.extractConstants(model, holes, holeSyms)
		}
		v.debugf("round %d: counterexample found", round)
		examples = append(examples, cex)
	}
	v.debugf("constant synthesis did not converge")
	return nil, ErrCounterExample
}

// zeroModel assigns zero to every non-hole symbol of the transform.
func zeroModel(t *transform, isHole func(string) bool) Model {
	m := make(Model)
	for _, sym := range FindSymbols(t.src, t.tgt) {
		if isHole(sym.Name) {
			continue
		}
		m[sym.Name] = make([]uint64, (sym.Width+63)/64)
	}
	return m
}

// extractConstants converts a model over the hole symbols to host
// constants, decomposing vector values element-wise.
func (v *Verifier) extractConstants(model Model, holes map[string]*ReservedConst, holeSyms []*SymbolExpr) (map[*ReservedConst]*ssa.Const, error) {
	out := make(map[*ReservedConst]*ssa.Const, len(holeSyms))
	for _, sym := range holeSyms {
		rc := holes[sym.Name]
		limbs, ok := model[sym.Name]
		if !ok {
			// witness contains no binding; decline the candidate
			return nil, ErrCounterExample
		}
		ty := rc.Typ.ToSSA()
		elems := make([]uint64, ty.Lane)
		for lane := uint(0); lane < ty.Lane; lane++ {
			elems[lane] = limbsExtract(limbs, lane*ty.Bits, ty.Bits)
		}
		out[rc] = ssa.ConstVec(ty, elems)
	}
	return out, nil
}

// limbsExtract reads width bits at bit offset off from little-endian
// 64-bit limbs; width is at most 64.
func limbsExtract(limbs []uint64, off, width uint) uint64 {
	assert(width <= 64, "element width %d too large", width)
	word, bit := off/64, off%64
	var v uint64
	if int(word) < len(limbs) {
		v = limbs[word] >> bit
	}
	if bit+width > 64 && int(word)+1 < len(limbs) {
		v |= limbs[word+1] << (64 - bit)
	}
	return v & ssa.Bitmask(width)
}
