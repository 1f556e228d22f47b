package minotaur

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/artagnon/minotaur/ssa"
)

// Optimizer drives the synthesis pipeline over whole functions: slice,
// consult the cache, enumerate, verify, and write winning rewrites back
// into the host module.
type Optimizer struct {
	cfg    Config
	solver Solver
	cache  *Cache
}

// NewOptimizer returns an optimizer using the given SMT backend. The
// cache connection is opened lazily on first use when caching is
// enabled.
func NewOptimizer(cfg Config, solver Solver) *Optimizer {
	return &Optimizer{cfg: cfg, solver: solver}
}

// Close releases the cache connection, if any.
func (o *Optimizer) Close() error {
	if o.cache != nil {
		return o.cache.Close()
	}
	return nil
}

func (o *Optimizer) ensureCache(ctx context.Context) *Cache {
	if o.cache == nil {
		o.cache = OpenCache(ctx, o.cfg)
	}
	return o.cache
}

// infer returns a rewrite for root inside the slice function f, going
// through the result cache according to the configured mode:
//
//  1. no-infer: never run the synthesizer; record "<no-sol>" on miss
//  2. force-infer: always run the synthesizer, write the outcome back
//  3. normal: run the synthesizer only on a cache miss
func (o *Optimizer) infer(ctx context.Context, f *ssa.Func, root *ssa.Instr) (Rewrite, bool, error) {
	key := f.Mod.String()

	var rewrites []Rewrite
	fromCache := false

	caching := o.cfg.EnableCaching
	mode := o.cfg.CacheMode

	if caching && mode != CacheForceInfer {
		if v, ok := o.ensureCache(ctx).Get(ctx, key); ok {
			if v.IsNoSolution() {
				log.Printf("[online] cache matched, no solution found in previous run: %s", f.Nm)
				return Rewrite{}, false, nil
			}
			parsed, err := NewParser(o.cfg, f).Parse(v.Rewrite)
			if err != nil {
				log.Printf("[online] failed to parse cached solution: %v", err)
				return Rewrite{}, false, nil
			}
			rewrites = []Rewrite{{I: parsed, CostAfter: v.CostAfter, CostBefore: v.CostBefore}}
			fromCache = true
		}
	}

	if mode == CacheNoInfer && !fromCache {
		if caching {
			o.ensureCache(ctx).PutNoSolution(ctx, key, f.Nm)
		}
		log.Printf("[online] skipping synthesizer for %s", f.Nm)
		return Rewrite{}, false, nil
	}

	if !fromCache {
		sliceCtx, cancel := context.WithTimeout(ctx, o.cfg.SliceTimeout)
		defer cancel()

		en := NewEnumerator(o.cfg)
		verifier := NewVerifier(o.cfg, o.solver)
		var err error
		rewrites, err = en.Solve(sliceCtx, f, root, verifier)
		if err != nil && !errors.Is(err, ErrSlowVCGen) {
			return Rewrite{}, false, err
		}
		if len(rewrites) == 0 {
			if caching {
				o.ensureCache(ctx).PutNoSolution(ctx, key, f.Nm)
			}
			return Rewrite{}, false, nil
		}
	}

	r := rewrites[0]
	if !fromCache && caching {
		o.ensureCache(ctx).PutRewrite(ctx, key, CacheValue{
			Rewrite:    r.I.String(),
			CostAfter:  r.CostAfter,
			CostBefore: r.CostBefore,
			Origin:     f.Nm,
		})
	}
	return r, true, nil
}

// OptimizeFunction runs the pipeline over every value-producing
// instruction of f, rewriting in place. It reports whether the function
// changed.
func (o *Optimizer) OptimizeFunction(ctx context.Context, f *ssa.Func) (changed bool, err error) {
	o.report("[online] working on function: %s", f.Nm)

	if o.cfg.NoSlice {
		return o.optimizeReturn(ctx, f)
	}

	dt := ssa.NewDomTree(f)
	li := ssa.NewLoopInfo(f, dt)

	// snapshot: rewrites mutate the instruction stream
	var roots []*ssa.Instr
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if i.Typ.Void || i.Typ.Ptr {
				continue
			}
			roots = append(roots, i)
		}
	}

	for _, i := range roots {
		slicer := NewSlicer(o.cfg, f, li, dt)
		sliceFn, sliceRoot, ok := slicer.ExtractExpr(i)
		if !ok {
			continue
		}

		r, found, ierr := o.infer(ctx, sliceFn, sliceRoot)
		if ierr != nil {
			return changed, ierr
		}
		if !found {
			continue
		}

		// materialize after the root, past any φ nodes
		insertPt := nextInsertionPoint(i)
		if insertPt == nil {
			continue
		}
		gen := NewGenerator(o.cfg, insertPt)
		v := gen.CodeGen(r.I, slicer.ValueMap())
		v = gen.BitcastTo(v, i.Typ)

		if replaceDominatedUses(f, i, v) {
			changed = true
		}
	}

	if changed {
		ssa.EliminateDeadCode(f)
		o.report("[online] completed, changed the program")
	} else {
		o.report("[online] completed, no change to the program")
	}
	return changed, nil
}

// optimizeReturn optimizes the returned value of a single-return
// function without slicing.
func (o *Optimizer) optimizeReturn(ctx context.Context, f *ssa.Func) (bool, error) {
	var ret *ssa.Instr
	for _, b := range f.Blocks {
		if term := b.Term(); term != nil && term.Op == ssa.OpRet {
			ret = term
			break
		}
	}
	if ret == nil {
		o.report("[online] no return instruction found, skipping")
		return false, nil
	}
	root, ok := ret.Args[0].(*ssa.Instr)
	if !ok {
		o.report("[online] return value is not an instruction, skipping")
		return false, nil
	}

	r, found, err := o.infer(ctx, f, root)
	if err != nil || !found {
		return false, err
	}

	gen := NewGenerator(o.cfg, ret)
	v := gen.CodeGen(r.I, nil)
	v = gen.BitcastTo(v, root.Typ)
	ssa.ReplaceUses(f, root, v)
	ssa.EliminateDeadCode(f)
	return true, nil
}

// nextInsertionPoint returns the first non-φ instruction after i in its
// block.
func nextInsertionPoint(i *ssa.Instr) *ssa.Instr {
	blk := i.Blk
	seen := false
	for _, n := range blk.Instrs {
		if n == i {
			seen = true
			continue
		}
		if !seen {
			continue
		}
		if n.Op != ssa.OpPhi {
			return n
		}
	}
	return nil
}

// replaceDominatedUses rewrites uses of old with new wherever the
// definition of new dominates the use.
func replaceDominatedUses(f *ssa.Func, old *ssa.Instr, new ssa.Value) bool {
	def, isInstr := new.(*ssa.Instr)
	dt := ssa.NewDomTree(f)
	replaced := false
	for _, b := range f.Blocks {
		for _, u := range b.Instrs {
			if u == def {
				continue
			}
			for k, a := range u.Args {
				if a != ssa.Value(old) {
					continue
				}
				if isInstr && !dt.Dominates(def, u) {
					continue
				}
				u.Args[k] = new
				replaced = true
			}
		}
	}
	return replaced
}

// report writes a line to stderr and, when a report directory is
// configured, also appends it to minotaur.txt in that directory.
func (o *Optimizer) report(format string, args ...interface{}) {
	line := fmt.Sprintf(format, args...)
	log.Print(line)
	if o.cfg.ReportDir == "" {
		return
	}
	if err := os.MkdirAll(o.cfg.ReportDir, 0o755); err != nil {
		return
	}
	path := filepath.Join(o.cfg.ReportDir, "minotaur.txt")
	fh, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer fh.Close()
	fmt.Fprintln(fh, line)
}
