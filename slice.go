package minotaur

import (
	"fmt"
	"log"
	"strings"

	"github.com/artagnon/minotaur/ssa"
)

// maxSliceDepth bounds the backward walk from the root instruction.
const maxSliceDepth = 5

// IsIntrinsic reports whether f is an intrinsic declaration; only calls
// to such functions survive slicing.
func IsIntrinsic(f *ssa.Func) bool {
	return f.Decl && (strings.HasPrefix(f.Nm, "llvm.") ||
		strings.HasPrefix(f.Nm, "x86.") ||
		strings.HasPrefix(f.Nm, "__fksv"))
}

// Slicer extracts a self-contained, loop-free, single-return function
// around a chosen instruction, lifting all external dependencies into
// parameters.
type Slicer struct {
	cfg Config
	f   *ssa.Func
	li  *ssa.LoopInfo
	dt  *ssa.DomTree

	m       *ssa.Module
	backmap map[ssa.Value]ssa.Value // slice value -> original value
}

// NewSlicer returns a slicer over f using the given analyses.
func NewSlicer(cfg Config, f *ssa.Func, li *ssa.LoopInfo, dt *ssa.DomTree) *Slicer {
	return &Slicer{
		cfg:     cfg,
		f:       f,
		li:      li,
		dt:      dt,
		m:       ssa.NewModule("slice"),
		backmap: make(map[ssa.Value]ssa.Value),
	}
}

// Module returns the module holding the extracted function.
func (s *Slicer) Module() *ssa.Module { return s.m }

// ValueMap maps slice-function values back to the values of the
// original function, for materializing a rewrite in place.
func (s *Slicer) ValueMap() map[ssa.Value]ssa.Value { return s.backmap }

func (s *Slicer) debugf(format string, args ...interface{}) {
	if s.cfg.DebugSlicer {
		log.Printf("[slicer] "+format, args...)
	}
}

type workItem struct {
	v     *ssa.Instr
	depth uint
}

// ExtractExpr produces a function returning the same value as v under
// any assignment to its live-ins, along with the clone of v inside that
// function. It declines (ok == false) when the slicing preconditions
// are unmet.
func (s *Slicer) ExtractExpr(v *ssa.Instr) (fn *ssa.Func, root *ssa.Instr, ok bool) {
	s.debugf("slicing value %%%s", v.Name())

	vbb := v.Blk
	loopv := s.li.LoopFor(vbb)
	if loopv != nil && !loopv.IsSimplified() {
		s.debugf("loop is not in normal form")
		return nil, nil, false
	}

	visited := make(map[*ssa.Instr]bool)
	var worklist []workItem
	worklist = append(worklist, workItem{v, 0})

	var insts []*ssa.Instr
	bbInsts := make(map[*ssa.Block][]*ssa.Instr)
	var blocks []*ssa.Block
	blockSet := make(map[*ssa.Block]bool)
	addBlock := func(b *ssa.Block) bool {
		if blockSet[b] {
			return false
		}
		blockSet[b] = true
		blocks = append(blocks, b)
		return true
	}

	// set of predecessor blocks a block depends on
	bbDeps := make(map[*ssa.Block]map[*ssa.Block]bool)
	addDep := func(b, dep *ssa.Block) {
		if bbDeps[b] == nil {
			bbDeps[b] = make(map[*ssa.Block]bool)
		}
		bbDeps[b][dep] = true
	}

	s.f.ComputePreds()
	havePhi := false

	// pass 1:
	// + gather instructions, leaving the operands untouched
	// + if there are intrinsic calls, create declares in the new module
	// * if the def of a use is not gathered, the use will be treated as
	//   unknown and replaced with a fresh function argument later
	for len(worklist) > 0 {
		item := worklist[0]
		worklist = worklist[1:]
		i, depth := item.v, item.depth

		if visited[i] {
			continue
		}
		visited[i] = true

		// do not handle pointer operands
		haveUnknownOperand := false
		for _, op := range i.Args {
			if op.Type().Ptr {
				haveUnknownOperand = true
				break
			}
		}
		if haveUnknownOperand {
			continue
		}

		// do not harvest instructions beyond the loop boundary
		if s.li.LoopFor(i.Blk) != loopv {
			continue
		}

		switch i.Op {
		case ssa.OpCall:
			if i.Callee == nil || !IsIntrinsic(i.Callee) {
				s.debugf("unknown callee found")
				continue
			}
			var params []ssa.Type
			for _, p := range i.Callee.Params {
				params = append(params, p.Typ)
			}
			s.m.Declare(i.Callee.Nm, params, i.Callee.Ret)
		case ssa.OpPhi:
			for k, in := range i.Args {
				income := i.Blk.Preds[k]
				def, okInstr := in.(*ssa.Instr)
				if !okInstr || s.li.LoopFor(income) != loopv {
					s.debugf("%%%s has external income", i.Name())
					return nil, nil, false
				}
				addBlock(income)
				found := false
				for _, p := range income.Preds {
					if p == def.Blk {
						found = true
						break
					}
				}
				if def.Blk != income && !found {
					addDep(income, def.Blk)
				}
			}
			havePhi = true
		}

		insts = append(insts, i)
		bbInsts[i.Blk] = append(bbInsts[i.Blk], i)
		neverVisited := addBlock(i.Blk)

		if depth > maxSliceDepth {
			continue
		}

		// add the branch condition along the path to the worklist
		if i.Blk != vbb && neverVisited {
			term := i.Blk.Term()
			if term.Op != ssa.OpBr {
				return nil, nil, false
			}
			if len(term.Succs) == 2 {
				if c, okInstr := term.Args[0].(*ssa.Instr); okInstr {
					onPred := false
					for _, p := range i.Blk.Preds {
						if p == c.Blk {
							onPred = true
							break
						}
					}
					if c.Blk != i.Blk && !onPred {
						addDep(i.Blk, c.Blk)
					}
					worklist = append(worklist, workItem{c, depth + 1})
				}
			}
		}

		for _, op := range i.Args {
			def, okInstr := op.(*ssa.Instr)
			if !okInstr {
				continue
			}
			onPred := false
			for _, p := range i.Blk.Preds {
				if p == def.Blk {
					onPred = true
					break
				}
			}
			if onPred {
				continue
			}
			addDep(i.Blk, def.Blk)
			worklist = append(worklist, workItem{def, depth + 1})
		}
	}

	if len(insts) == 0 {
		s.debugf("no instruction can be harvested")
		return nil, nil, false
	}

	// pass 2:
	// + find missed intermediate blocks
	//
	//        S
	//       / \
	//      A   B
	//      |   |
	//      |   I
	//       \  /
	//        T
	//
	// An instruction in T may use values defined in A and B; backward
	// traversal of the def/use tree alone would miss block I. Search
	// predecessor paths from each dependent block and pull in every
	// block on a path to a dependency; a path revisiting itself means
	// the closure needs a loop, so decline.
	for _, bb := range blocks {
		deps := bbDeps[bb]
		if len(deps) == 0 {
			continue
		}
		depVisited := make(map[*ssa.Block]bool)
		type pathItem struct {
			path []*ssa.Block // in discovery order, for deterministic output
			bb   *ssa.Block
		}
		onPath := func(path []*ssa.Block, b *ssa.Block) bool {
			for _, p := range path {
				if p == b {
					return true
				}
			}
			return false
		}
		queue := []pathItem{{[]*ssa.Block{bb}, bb}}
		for len(queue) > 0 {
			item := queue[0]
			queue = queue[1:]
			path, ibb := item.path, item.bb

			if deps[ibb] {
				for _, b := range path {
					addBlock(b)
				}
				if !depVisited[ibb] {
					depVisited[ibb] = true
					path = []*ssa.Block{ibb}
				} else {
					continue
				}
			}

			for _, pred := range ibb.Preds {
				if onPath(path, pred) {
					return nil, nil, false
				}
				np := make([]*ssa.Block, len(path), len(path)+1)
				copy(np, path)
				np = append(np, pred)
				queue = append(queue, pathItem{np, pred})
			}
		}
	}

	// switch terminators are not handled
	for _, bb := range blocks {
		if term := bb.Term(); term != nil && term.Op != ssa.OpBr && term.Op != ssa.OpRet {
			return nil, nil, false
		}
	}

	fn = s.m.NewFunc("sliced_"+v.Name(), v.Typ)
	vmap := make(map[ssa.Value]ssa.Value)

	// clone instructions, stripping names and metadata
	var clonedInsts []*ssa.Instr
	cloneOf := make(map[*ssa.Instr]*ssa.Instr)
	for _, inst := range insts {
		c := &ssa.Instr{
			Op:    inst.Op,
			Typ:   inst.Typ,
			Args:  append([]ssa.Value(nil), inst.Args...),
			IPred: inst.IPred,
			FPred: inst.FPred,
			Mask:  append([]int(nil), inst.Mask...),
			Cases: append([]uint64(nil), inst.Cases...),
		}
		if inst.Callee != nil {
			c.Callee = s.m.Lookup(inst.Callee.Nm)
		}
		vmap[inst] = c
		cloneOf[inst] = c
		clonedInsts = append(clonedInsts, c)
	}

	// pass 3:
	// + duplicate blocks
	sinkbb := &ssa.Block{Nm: "sink", Fn: fn}

	var clonedBlocks []*ssa.Block
	bmap := make(map[*ssa.Block]*ssa.Block)
	if havePhi {
		for _, origBB := range blocks {
			bb := &ssa.Block{Nm: origBB.Nm, Fn: fn}
			bmap[origBB] = bb
			clonedBlocks = append(clonedBlocks, bb)
		}
		// place scheduled instructions
		for _, origBB := range blocks {
			for _, inst := range scheduleInsts(bbInsts[origBB]) {
				if inst.Op == ssa.OpBr {
					continue
				}
				appendCloned(bmap[origBB], cloneOf[inst])
			}
		}
		// wire branches
		for _, origBB := range blocks {
			if origBB == vbb {
				continue
			}
			bi := origBB.Term()
			cloned := &ssa.Instr{Op: ssa.OpBr, Typ: ssa.VoidType}
			if len(bi.Succs) == 2 {
				truebb, falsebb := sinkbb, sinkbb
				if t, okB := bmap[bi.Succs[0]]; okB {
					truebb = t
				}
				if f, okB := bmap[bi.Succs[1]]; okB {
					falsebb = f
				}
				cloned.Args = append([]ssa.Value(nil), bi.Args...)
				cloned.Succs = []*ssa.Block{truebb, falsebb}
			} else {
				succ := sinkbb
				if t, okB := bmap[bi.Succs[0]]; okB {
					succ = t
				}
				cloned.Succs = []*ssa.Block{succ}
			}
			appendCloned(bmap[origBB], cloned)
			insts = append(insts, bi)
			clonedInsts = append(clonedInsts, cloned)
			vmap[bi] = cloned
		}
		ret := &ssa.Instr{Op: ssa.OpRet, Typ: ssa.VoidType, Args: []ssa.Value{vmap[v]}}
		appendCloned(bmap[vbb], ret)
	} else {
		bb := &ssa.Block{Nm: "entry", Fn: fn}
		for _, inst := range scheduleInsts(insts) {
			appendCloned(bb, cloneOf[inst])
		}
		ret := &ssa.Instr{Op: ssa.OpRet, Typ: ssa.VoidType, Args: []ssa.Value{vmap[v]}}
		appendCloned(bb, ret)
		clonedBlocks = append(clonedBlocks, bb)
	}

	// pass 4:
	// + remap the operands of duplicated instructions
	// + reserve a function parameter for every unknown operand value
	argMap := make(map[ssa.Value]*ssa.Param)
	clonedSet := make(map[*ssa.Instr]bool, len(clonedInsts))
	for _, c := range clonedInsts {
		clonedSet[c] = true
	}
	for _, i := range clonedInsts {
		for k, op := range i.Args {
			if nv, okV := vmap[op]; okV {
				i.Args[k] = nv
				continue
			}
			switch op := op.(type) {
			case *ssa.Const:
				continue
			case *ssa.Param:
				if _, okA := argMap[op]; !okA {
					p := fn.AddParam(fmt.Sprintf("v%d", len(fn.Params)), op.Typ)
					argMap[op] = p
					s.backmap[p] = op
				}
			case *ssa.Instr:
				if clonedSet[op] {
					continue
				}
				if _, okA := argMap[op]; !okA {
					p := fn.AddParam(fmt.Sprintf("v%d", len(fn.Params)), op.Typ)
					argMap[op] = p
					s.backmap[p] = op
				}
			}
		}
	}

	// argument for the entry dispatch switch
	sel := fn.AddParam("sel", ssa.I8)

	// pass 5:
	// + replace the use of unknown values with function parameters
	for _, i := range clonedInsts {
		for k, op := range i.Args {
			if p, okA := argMap[op]; okA {
				i.Args[k] = p
			}
		}
	}

	// find entry candidates and wire the function block list
	for _, bb := range clonedBlocks {
		bb.Preds = nil
	}
	for _, bb := range clonedBlocks {
		if term := bb.Term(); term != nil {
			for _, succ := range term.Succs {
				succ.Preds = append(succ.Preds, bb)
			}
		}
	}
	var noPreds []*ssa.Block
	for _, bb := range clonedBlocks {
		if len(bb.Preds) == 0 {
			noPreds = append(noPreds, bb)
		}
	}

	switch {
	case len(noPreds) == 0:
		panic("no entry block found")
	case len(noPreds) == 1:
		fn.Blocks = append(fn.Blocks, noPreds[0])
		for _, bb := range clonedBlocks {
			if bb != noPreds[0] {
				fn.Blocks = append(fn.Blocks, bb)
			}
		}
	default:
		entry := &ssa.Block{Nm: "entry", Fn: fn}
		sw := &ssa.Instr{Op: ssa.OpSwitch, Typ: ssa.VoidType,
			Args: []ssa.Value{sel}, Succs: []*ssa.Block{sinkbb}}
		for idx, bb := range noPreds {
			sw.Cases = append(sw.Cases, uint64(idx))
			sw.Succs = append(sw.Succs, bb)
		}
		appendCloned(entry, sw)
		fn.Blocks = append(fn.Blocks, entry)
		fn.Blocks = append(fn.Blocks, clonedBlocks...)
	}
	unreachable := &ssa.Instr{Op: ssa.OpUnreachable, Typ: ssa.VoidType}
	appendCloned(sinkbb, unreachable)
	fn.Blocks = append(fn.Blocks, sinkbb)

	// renumber cloned instructions for printing
	renumber(fn)
	fn.ComputePreds()

	// record the clone mapping for writing rewrites back
	for _, inst := range insts {
		s.backmap[vmap[inst]] = inst
	}

	// the sliced function must be loop free
	fdt := ssa.NewDomTree(fn)
	fli := ssa.NewLoopInfo(fn, fdt)
	assert(fli.Empty(), "loop generated while slicing %%%s", v.Name())

	// validate the created function
	if err := ssa.Verify(fn); err != nil {
		panic(fmt.Sprintf("ill-formed function generated: %v\n%s", err, fn))
	}

	rootClone := vmap[v].(*ssa.Instr)
	s.debugf("sliced function:\n%s", fn)
	return fn, rootClone, true
}

// appendCloned places an already-built instruction into a block without
// renumbering (slice blocks are renumbered once at the end).
func appendCloned(b *ssa.Block, i *ssa.Instr) {
	i.Blk = b
	b.Instrs = append(b.Instrs, i)
}

func renumber(f *ssa.Func) {
	id := 0
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			i.ID = id
			id++
		}
	}
}

// scheduleInsts orders a block's instructions topologically over their
// intra-block data dependencies, with φ nodes before everything else.
func scheduleInsts(iis []*ssa.Instr) []*ssa.Instr {
	n := len(iis)
	index := make(map[*ssa.Instr]int, n)
	for i, ii := range iis {
		index[ii] = i
	}

	edges := make([][]bool, n)
	for i := range edges {
		edges[i] = make([]bool, n)
	}
	for i, ii := range iis {
		for _, op := range ii.Args {
			if def, ok := op.(*ssa.Instr); ok {
				if j, okIdx := index[def]; okIdx {
					edges[j][i] = true
				}
			}
		}
	}
	for i, ii := range iis {
		if ii.Op != ssa.OpPhi {
			continue
		}
		for j, jj := range iis {
			if jj.Op != ssa.OpPhi {
				edges[i][j] = true
			}
		}
	}
	sorted := topSort(edges)
	out := make([]*ssa.Instr, 0, n)
	for _, v := range sorted {
		out = append(out, iis[v])
	}
	return out
}

// topSort is a simple Tarjan topological sort ignoring loops.
func topSort(edges [][]bool) []int {
	var sorted []int
	marked := make([]bool, len(edges))

	var visit func(v int)
	visit = func(v int) {
		if marked[v] {
			return
		}
		marked[v] = true
		for child, on := range edges[v] {
			if on {
				visit(child)
			}
		}
		sorted = append(sorted, v)
	}

	for i := 1; i < len(edges); i++ {
		visit(i)
	}
	if len(edges) > 0 {
		visit(0)
	}

	for i, j := 0, len(sorted)-1; i < j; i, j = i+1, j-1 {
		sorted[i], sorted[j] = sorted[j], sorted[i]
	}
	return sorted
}
