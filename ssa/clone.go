package ssa

import "fmt"

// CloneFunction clones src into the module as a new function named
// name, appending extra parameters of the given types after src's own.
// The returned value map relates source values to their clones.
func CloneFunction(m *Module, src *Func, name string, extra []Type) (*Func, map[Value]Value) {
	dst := m.NewFunc(name, src.Ret)
	vmap := make(map[Value]Value)
	for _, p := range src.Params {
		vmap[p] = dst.AddParam(p.Nm, p.Typ)
	}
	for i, t := range extra {
		dst.AddParam(fmt.Sprintf("_reservedc_%d", i), t)
	}
	CloneBody(dst, src, vmap)
	return dst, vmap
}

// CloneBody copies src's blocks and instructions into dst, rewriting
// operands through vmap. Values absent from vmap (constants, unmapped
// params) are shared.
func CloneBody(dst *Func, src *Func, vmap map[Value]Value) {
	src.ComputePreds()
	bmap := make(map[*Block]*Block, len(src.Blocks))
	for _, b := range src.Blocks {
		bmap[b] = dst.NewBlock(b.Nm)
	}
	lookup := func(v Value) Value {
		if nv, ok := vmap[v]; ok {
			return nv
		}
		return v
	}
	for _, b := range src.Blocks {
		nb := bmap[b]
		for _, i := range b.Instrs {
			ni := &Instr{
				Op:     i.Op,
				Typ:    i.Typ,
				IPred:  i.IPred,
				FPred:  i.FPred,
				Mask:   append([]int(nil), i.Mask...),
				Callee: i.Callee,
				Cases:  append([]uint64(nil), i.Cases...),
			}
			for _, a := range i.Args {
				ni.Args = append(ni.Args, lookup(a))
			}
			for _, s := range i.Succs {
				ni.Succs = append(ni.Succs, bmap[s])
			}
			nb.Append(ni)
			vmap[i] = ni
		}
	}
	// second pass: operands defined after their φ uses
	for _, b := range dst.Blocks {
		for _, i := range b.Instrs {
			for k, a := range i.Args {
				if nv, ok := vmap[a]; ok {
					i.Args[k] = nv
				}
			}
		}
	}
	dst.ComputePreds()
}

// ReplaceUses rewrites every use of old with new across the function.
func ReplaceUses(f *Func, old, new Value) {
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			for k, a := range i.Args {
				if a == old {
					i.Args[k] = new
				}
			}
		}
	}
}
