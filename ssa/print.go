package ssa

import (
	"fmt"
	"strings"
)

// String renders the module in its textual form. The rendering is
// deterministic and is what the result cache uses as its key.
func (m *Module) String() string {
	var sb strings.Builder
	for _, f := range m.Funcs {
		if !f.Decl {
			continue
		}
		sb.WriteString(declString(f))
		sb.WriteByte('\n')
	}
	for _, f := range m.Funcs {
		if f.Decl {
			continue
		}
		sb.WriteString(f.String())
	}
	return sb.String()
}

func declString(f *Func) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "declare %s @%s(", f.Ret, f.Nm)
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(p.Typ.String())
	}
	sb.WriteString(")")
	return sb.String()
}

// String renders the function definition.
func (f *Func) String() string {
	if f.Decl {
		return declString(f)
	}
	f.ComputePreds() // φ rendering reads predecessor order
	names := blockNames(f)
	var sb strings.Builder
	fmt.Fprintf(&sb, "define %s @%s(", f.Ret, f.Nm)
	for i, p := range f.Params {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "%s %%%s", p.Typ, p.Nm)
	}
	sb.WriteString(") {\n")
	for _, b := range f.Blocks {
		fmt.Fprintf(&sb, "%s:\n", names[b])
		for _, i := range b.Instrs {
			sb.WriteString("  ")
			sb.WriteString(instrString(i, names))
			sb.WriteByte('\n')
		}
	}
	sb.WriteString("}\n")
	return sb.String()
}

// blockNames assigns unique labels, suffixing duplicates.
func blockNames(f *Func) map[*Block]string {
	names := make(map[*Block]string, len(f.Blocks))
	used := make(map[string]int)
	for _, b := range f.Blocks {
		name := b.Nm
		if name == "" {
			name = "bb"
		}
		if n := used[name]; n > 0 {
			names[b] = fmt.Sprintf("%s.%d", name, n)
		} else {
			names[b] = name
		}
		used[name]++
	}
	return names
}

// operand renders a typed operand reference.
func operand(v Value) string {
	switch v := v.(type) {
	case *Param:
		return fmt.Sprintf("%s %%%s", v.Typ, v.Nm)
	case *Instr:
		return fmt.Sprintf("%s %%%s", v.Typ, v.Name())
	case *Const:
		return fmt.Sprintf("%s %s", v.Typ, constBody(v))
	default:
		panic("ssa: unknown value kind")
	}
}

func constBody(c *Const) string {
	if c.Poison {
		return "poison"
	}
	if c.Typ.IsVector() {
		elems := make([]string, len(c.Elems))
		for i, e := range c.Elems {
			elems[i] = scalarBody(c.Typ, e)
		}
		return "<" + strings.Join(elems, ", ") + ">"
	}
	return scalarBody(c.Typ, c.Elems[0])
}

func scalarBody(t Type, bits uint64) string {
	if t.FP {
		return fmt.Sprintf("0x%X", bits)
	}
	return fmt.Sprintf("%d", bits)
}

func instrString(i *Instr, names map[*Block]string) string {
	var sb strings.Builder
	if !i.Typ.Void {
		fmt.Fprintf(&sb, "%%%s = ", i.Name())
	}
	switch i.Op {
	case OpICmp:
		fmt.Fprintf(&sb, "icmp %s %s, %s", i.IPred, operand(i.Args[0]), valueRef(i.Args[1]))
	case OpFCmp:
		fmt.Fprintf(&sb, "fcmp %s %s, %s", i.FPred, operand(i.Args[0]), valueRef(i.Args[1]))
	case OpSExt, OpZExt, OpTrunc, OpFPTrunc, OpFPExt, OpFPToUI, OpFPToSI,
		OpUIToFP, OpSIToFP, OpBitCast:
		fmt.Fprintf(&sb, "%s %s to %s", i.Op, operand(i.Args[0]), i.Typ)
	case OpSelect:
		fmt.Fprintf(&sb, "select %s, %s, %s",
			operand(i.Args[0]), operand(i.Args[1]), operand(i.Args[2]))
	case OpShuffleVector:
		masks := make([]string, len(i.Mask))
		for k, m := range i.Mask {
			masks[k] = fmt.Sprintf("%d", m)
		}
		fmt.Fprintf(&sb, "shufflevector %s, %s, <%s>",
			operand(i.Args[0]), valueRef(i.Args[1]), strings.Join(masks, ", "))
	case OpCall:
		fmt.Fprintf(&sb, "call %s @%s(", i.Typ, i.Callee.Nm)
		for k, a := range i.Args {
			if k > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(operand(a))
		}
		sb.WriteString(")")
	case OpPhi:
		fmt.Fprintf(&sb, "phi %s ", i.Typ)
		for k, a := range i.Args {
			if k > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "[ %s, %%%s ]", valueRef(a), names[i.Blk.Preds[k]])
		}
	case OpBr:
		if len(i.Succs) == 1 {
			fmt.Fprintf(&sb, "br label %%%s", names[i.Succs[0]])
		} else {
			fmt.Fprintf(&sb, "br %s, label %%%s, label %%%s",
				operand(i.Args[0]), names[i.Succs[0]], names[i.Succs[1]])
		}
	case OpSwitch:
		fmt.Fprintf(&sb, "switch %s, label %%%s [", operand(i.Args[0]), names[i.Succs[0]])
		for k, c := range i.Cases {
			if k > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " %d: label %%%s", c, names[i.Succs[k+1]])
		}
		sb.WriteString(" ]")
	case OpExtractElement, OpInsertElement:
		fmt.Fprintf(&sb, "%s %s", i.Op, operand(i.Args[0]))
		for _, a := range i.Args[1:] {
			fmt.Fprintf(&sb, ", %s", operand(a))
		}
	case OpRet:
		fmt.Fprintf(&sb, "ret %s", operand(i.Args[0]))
	case OpUnreachable:
		sb.WriteString("unreachable")
	default:
		// binary and unary ops share one shape
		fmt.Fprintf(&sb, "%s %s", i.Op, operand(i.Args[0]))
		for _, a := range i.Args[1:] {
			fmt.Fprintf(&sb, ", %s", valueRef(a))
		}
	}
	return sb.String()
}

// valueRef renders an operand without its leading type, for positions
// where the type is implied by an earlier operand.
func valueRef(v Value) string {
	switch v := v.(type) {
	case *Param:
		return "%" + v.Nm
	case *Instr:
		return "%" + v.Name()
	case *Const:
		return constBody(v)
	default:
		panic("ssa: unknown value kind")
	}
}
