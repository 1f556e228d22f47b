// Package z3 implements the minotaur.Solver interface with an embedded
// Z3 solver over the C API.
package z3

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unsafe"

	"github.com/artagnon/minotaur"
)

/*
#cgo LDFLAGS: -lz3
#include <z3.h>
#include <stdlib.h>
*/
import "C"

// Ensure solver implements interface.
var _ minotaur.Solver = (*Solver)(nil)

// Solver is an SMT backend using an embedded Z3 context per query.
type Solver struct {
	// Per-query timeout. Zero uses the context deadline only.
	Timeout time.Duration

	stats Stats
}

// NewSolver returns a new instance of Solver.
func NewSolver() *Solver {
	return &Solver{}
}

// Stats returns statistics for the solver.
func (s *Solver) Stats() Stats { return s.stats }

// Solve checks the conjunction of constraints for satisfiability and,
// when satisfiable, extracts values for the requested symbols.
func (s *Solver) Solve(ctx context.Context, constraints []minotaur.Expr, symbols []*minotaur.SymbolExpr) (bool, minotaur.Model, error) {
	t := time.Now()
	defer func() {
		s.stats.SolveN++
		s.stats.SolveTime += time.Since(t)
	}()

	if err := ctx.Err(); err != nil {
		return false, nil, minotaur.ErrSolverCanceled
	}

	zctx := newContext(s.queryTimeout(ctx))
	defer zctx.close()

	solver := C.Z3_mk_solver(zctx.raw)
	if err := zctx.err("Z3_mk_solver"); err != nil {
		return false, nil, err
	}
	C.Z3_solver_inc_ref(zctx.raw, solver)
	defer C.Z3_solver_dec_ref(zctx.raw, solver)

	// Interrupt the solver if the context is canceled mid-query.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			C.Z3_interrupt(zctx.raw)
		case <-done:
		}
	}()

	for _, constraint := range constraints {
		ast, err := zctx.toBoolAST(constraint)
		if err != nil {
			return false, nil, err
		}
		C.Z3_solver_assert(zctx.raw, solver, ast)
		if err := zctx.err("Z3_solver_assert"); err != nil {
			return false, nil, err
		}
	}

	ret := C.Z3_solver_check(zctx.raw, solver)
	if err := zctx.err("Z3_solver_check"); err != nil {
		return false, nil, err
	}
	switch ret {
	case C.Z3_L_FALSE:
		return false, nil, nil
	case C.Z3_L_UNDEF:
		reason := C.GoString(C.Z3_solver_get_reason_unknown(zctx.raw, solver))
		switch {
		case strings.Contains(reason, "timeout"):
			return false, nil, minotaur.ErrSolverTimeout
		case strings.Contains(reason, "canceled"), strings.Contains(reason, "interrupted"):
			return false, nil, minotaur.ErrSolverCanceled
		case strings.Contains(reason, "resource limits reached"):
			return false, nil, minotaur.ErrSolverResourceLimit
		case strings.Contains(reason, "unknown"):
			return false, nil, minotaur.ErrSolverUnknown
		default:
			return false, nil, fmt.Errorf("z3: %s", reason)
		}
	}

	if len(symbols) == 0 {
		return true, nil, nil
	}

	model := C.Z3_solver_get_model(zctx.raw, solver)
	if err := zctx.err("Z3_solver_get_model"); err != nil {
		return true, nil, err
	}
	C.Z3_model_inc_ref(zctx.raw, model)
	defer C.Z3_model_dec_ref(zctx.raw, model)

	values, err := zctx.eval(model, symbols)
	if err != nil {
		return true, nil, err
	}
	return true, values, nil
}

func (s *Solver) queryTimeout(ctx context.Context) time.Duration {
	to := s.Timeout
	if deadline, ok := ctx.Deadline(); ok {
		remain := time.Until(deadline)
		if to == 0 || remain < to {
			to = remain
		}
	}
	return to
}

// zContext wraps a Z3 context for one query.
type zContext struct {
	raw  C.Z3_context
	syms map[string]C.Z3_ast
}

func newContext(timeout time.Duration) *zContext {
	config := C.Z3_mk_config()
	defer C.Z3_del_config(config)

	if timeout > 0 {
		name := C.CString("timeout")
		val := C.CString(fmt.Sprintf("%d", timeout.Milliseconds()))
		C.Z3_set_param_value(config, name, val)
		C.free(unsafe.Pointer(name))
		C.free(unsafe.Pointer(val))
	}

	raw := C.Z3_mk_context(config)
	C.Z3_set_error_handler(raw, nil)
	C.Z3_set_ast_print_mode(raw, C.Z3_PRINT_SMTLIB2_COMPLIANT)
	return &zContext{raw: raw, syms: make(map[string]C.Z3_ast)}
}

func (ctx *zContext) close() {
	C.Z3_del_context(ctx.raw)
}

// err returns the error for the last API call, if any.
func (ctx *zContext) err(op string) error {
	if code := C.Z3_get_error_code(ctx.raw); code != C.Z3_OK {
		return &Error{Code: int(code), Op: op, Message: C.GoString(C.Z3_get_error_msg(ctx.raw, code))}
	}
	return nil
}

// toBVAST translates an expression to a bitvector-sorted AST. Boolean
// (width 1) expressions become single-bit vectors.
func (ctx *zContext) toBVAST(expr minotaur.Expr) (C.Z3_ast, error) {
	if minotaur.ExprWidth(expr) == 1 {
		b, err := ctx.toBoolAST(expr)
		if err != nil {
			return nil, err
		}
		one, err := ctx.makeUint64(1, 1)
		if err != nil {
			return nil, err
		}
		zero, err := ctx.makeUint64(1, 0)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, b, one, zero), ctx.err("Z3_mk_ite")
	}

	switch expr := expr.(type) {
	case *minotaur.ConstantExpr:
		return ctx.makeUint64(expr.Width, expr.Value)
	case *minotaur.SymbolExpr:
		return ctx.symbol(expr)
	case *minotaur.BinaryExpr:
		return ctx.toBinaryAST(expr)
	case *minotaur.NotExpr:
		src, err := ctx.toBVAST(expr.Expr)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_bvnot(ctx.raw, src), ctx.err("Z3_mk_bvnot")
	case *minotaur.ExtractExpr:
		src, err := ctx.toBVAST(expr.Expr)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_extract(ctx.raw,
			C.uint(expr.Offset+expr.Width-1), C.uint(expr.Offset), src), ctx.err("Z3_mk_extract")
	case *minotaur.ConcatExpr:
		msb, err := ctx.toBVAST(expr.MSB)
		if err != nil {
			return nil, err
		}
		lsb, err := ctx.toBVAST(expr.LSB)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_concat(ctx.raw, msb, lsb), ctx.err("Z3_mk_concat")
	case *minotaur.CastExpr:
		return ctx.toCastAST(expr)
	case *minotaur.IteExpr:
		cond, err := ctx.toBoolAST(expr.Cond)
		if err != nil {
			return nil, err
		}
		then, err := ctx.toBVAST(expr.Then)
		if err != nil {
			return nil, err
		}
		els, err := ctx.toBVAST(expr.Else)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, cond, then, els), ctx.err("Z3_mk_ite")
	case *minotaur.FPExpr:
		return ctx.toFPAST(expr)
	default:
		return nil, fmt.Errorf("z3: invalid expression type: %T", expr)
	}
}

// toBoolAST translates a width-1 expression to a Boolean-sorted AST.
func (ctx *zContext) toBoolAST(expr minotaur.Expr) (C.Z3_ast, error) {
	if minotaur.ExprWidth(expr) != 1 {
		return nil, fmt.Errorf("z3: boolean context requires width 1, got %d", minotaur.ExprWidth(expr))
	}

	switch expr := expr.(type) {
	case *minotaur.ConstantExpr:
		if expr.IsTrue() {
			return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
		}
		return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
	case *minotaur.SymbolExpr:
		bv, err := ctx.symbol(expr)
		if err != nil {
			return nil, err
		}
		one, err := ctx.makeUint64(1, 1)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_eq(ctx.raw, bv, one), ctx.err("Z3_mk_eq")
	case *minotaur.BinaryExpr:
		if expr.Op.IsCompare() {
			return ctx.toCompareAST(expr)
		}
		lhs, err := ctx.toBoolAST(expr.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := ctx.toBoolAST(expr.RHS)
		if err != nil {
			return nil, err
		}
		switch expr.Op {
		case minotaur.AND:
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
		case minotaur.OR:
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_or(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_or")
		case minotaur.XOR:
			return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
		case minotaur.ADD, minotaur.SUB:
			return C.Z3_mk_xor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_xor")
		case minotaur.MUL:
			args := [2]C.Z3_ast{lhs, rhs}
			return C.Z3_mk_and(ctx.raw, 2, &args[0]), ctx.err("Z3_mk_and")
		default:
			return nil, fmt.Errorf("z3: operation %s on booleans", expr.Op)
		}
	case *minotaur.NotExpr:
		src, err := ctx.toBoolAST(expr.Expr)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_not(ctx.raw, src), ctx.err("Z3_mk_not")
	case *minotaur.ExtractExpr:
		src, err := ctx.toBVAST(expr.Expr)
		if err != nil {
			return nil, err
		}
		bit := C.Z3_mk_extract(ctx.raw, C.uint(expr.Offset), C.uint(expr.Offset), src)
		if err := ctx.err("Z3_mk_extract"); err != nil {
			return nil, err
		}
		one, err := ctx.makeUint64(1, 1)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_eq(ctx.raw, bit, one), ctx.err("Z3_mk_eq")
	case *minotaur.IteExpr:
		cond, err := ctx.toBoolAST(expr.Cond)
		if err != nil {
			return nil, err
		}
		then, err := ctx.toBoolAST(expr.Then)
		if err != nil {
			return nil, err
		}
		els, err := ctx.toBoolAST(expr.Else)
		if err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, cond, then, els), ctx.err("Z3_mk_ite")
	case *minotaur.FPExpr:
		if expr.Op == minotaur.FPCmp {
			return ctx.toFCmpAST(expr)
		}
		return nil, fmt.Errorf("z3: fp operation %s in boolean context", expr.Op)
	default:
		return nil, fmt.Errorf("z3: invalid boolean expression type: %T", expr)
	}
}

func (ctx *zContext) toCompareAST(expr *minotaur.BinaryExpr) (C.Z3_ast, error) {
	if minotaur.ExprWidth(expr.LHS) == 1 {
		lhs, err := ctx.toBoolAST(expr.LHS)
		if err != nil {
			return nil, err
		}
		rhs, err := ctx.toBoolAST(expr.RHS)
		if err != nil {
			return nil, err
		}
		switch expr.Op {
		case minotaur.EQ:
			return C.Z3_mk_iff(ctx.raw, lhs, rhs), ctx.err("Z3_mk_iff")
		case minotaur.NE:
			iff := C.Z3_mk_iff(ctx.raw, lhs, rhs)
			return C.Z3_mk_not(ctx.raw, iff), ctx.err("Z3_mk_not")
		}
	}

	lhs, err := ctx.toBVAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toBVAST(expr.RHS)
	if err != nil {
		return nil, err
	}
	switch expr.Op {
	case minotaur.EQ:
		return C.Z3_mk_eq(ctx.raw, lhs, rhs), ctx.err("Z3_mk_eq")
	case minotaur.NE:
		eq := C.Z3_mk_eq(ctx.raw, lhs, rhs)
		return C.Z3_mk_not(ctx.raw, eq), ctx.err("Z3_mk_not")
	case minotaur.ULT:
		return C.Z3_mk_bvult(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvult")
	case minotaur.ULE:
		return C.Z3_mk_bvule(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvule")
	case minotaur.UGT:
		return C.Z3_mk_bvugt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvugt")
	case minotaur.UGE:
		return C.Z3_mk_bvuge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvuge")
	case minotaur.SLT:
		return C.Z3_mk_bvslt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvslt")
	case minotaur.SLE:
		return C.Z3_mk_bvsle(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsle")
	case minotaur.SGT:
		return C.Z3_mk_bvsgt(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsgt")
	case minotaur.SGE:
		return C.Z3_mk_bvsge(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsge")
	}
	return nil, fmt.Errorf("z3: unexpected compare operation: %s", expr.Op)
}

func (ctx *zContext) toBinaryAST(expr *minotaur.BinaryExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toBVAST(expr.LHS)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toBVAST(expr.RHS)
	if err != nil {
		return nil, err
	}

	switch expr.Op {
	case minotaur.ADD:
		return C.Z3_mk_bvadd(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvadd")
	case minotaur.SUB:
		return C.Z3_mk_bvsub(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsub")
	case minotaur.MUL:
		return C.Z3_mk_bvmul(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvmul")
	case minotaur.UDIV:
		return C.Z3_mk_bvudiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvudiv")
	case minotaur.SDIV:
		return C.Z3_mk_bvsdiv(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsdiv")
	case minotaur.UREM:
		return C.Z3_mk_bvurem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvurem")
	case minotaur.SREM:
		return C.Z3_mk_bvsrem(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvsrem")
	case minotaur.AND:
		return C.Z3_mk_bvand(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvand")
	case minotaur.OR:
		return C.Z3_mk_bvor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvor")
	case minotaur.XOR:
		return C.Z3_mk_bvxor(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvxor")
	case minotaur.SHL:
		return C.Z3_mk_bvshl(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvshl")
	case minotaur.LSHR:
		return C.Z3_mk_bvlshr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvlshr")
	case minotaur.ASHR:
		return C.Z3_mk_bvashr(ctx.raw, lhs, rhs), ctx.err("Z3_mk_bvashr")
	case minotaur.UMAX, minotaur.UMIN, minotaur.SMAX, minotaur.SMIN:
		var cond C.Z3_ast
		switch expr.Op {
		case minotaur.UMAX:
			cond = C.Z3_mk_bvugt(ctx.raw, lhs, rhs)
		case minotaur.UMIN:
			cond = C.Z3_mk_bvult(ctx.raw, lhs, rhs)
		case minotaur.SMAX:
			cond = C.Z3_mk_bvsgt(ctx.raw, lhs, rhs)
		case minotaur.SMIN:
			cond = C.Z3_mk_bvslt(ctx.raw, lhs, rhs)
		}
		if err := ctx.err("Z3_mk_bvcmp"); err != nil {
			return nil, err
		}
		return C.Z3_mk_ite(ctx.raw, cond, lhs, rhs), ctx.err("Z3_mk_ite")
	default:
		return nil, fmt.Errorf("z3: unexpected operation: %s", expr.Op)
	}
}

func (ctx *zContext) toCastAST(expr *minotaur.CastExpr) (C.Z3_ast, error) {
	srcWidth := minotaur.ExprWidth(expr.Src)
	src, err := ctx.toBVAST(expr.Src)
	if err != nil {
		return nil, err
	}
	if expr.Signed {
		return C.Z3_mk_sign_ext(ctx.raw, C.uint(expr.Width-srcWidth), src), ctx.err("Z3_mk_sign_ext")
	}
	return C.Z3_mk_zero_ext(ctx.raw, C.uint(expr.Width-srcWidth), src), ctx.err("Z3_mk_zero_ext")
}

func (ctx *zContext) symbol(expr *minotaur.SymbolExpr) (C.Z3_ast, error) {
	if ast, ok := ctx.syms[expr.Name]; ok {
		return ast, nil
	}
	sort, err := ctx.makeBVSort(expr.Width)
	if err != nil {
		return nil, err
	}
	cname := C.CString(expr.Name)
	defer C.free(unsafe.Pointer(cname))
	sym := C.Z3_mk_string_symbol(ctx.raw, cname)
	ast := C.Z3_mk_const(ctx.raw, sym, sort)
	if err := ctx.err("Z3_mk_const"); err != nil {
		return nil, err
	}
	ctx.syms[expr.Name] = ast
	return ast, nil
}

func (ctx *zContext) makeBVSort(width uint) (C.Z3_sort, error) {
	return C.Z3_mk_bv_sort(ctx.raw, C.uint(width)), ctx.err("Z3_mk_bv_sort")
}

func (ctx *zContext) makeUint64(width uint, value uint64) (C.Z3_ast, error) {
	sort, err := ctx.makeBVSort(width)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_unsigned_int64(ctx.raw, C.uint64_t(value), sort), ctx.err("Z3_mk_unsigned_int64")
}

// fpSort returns the floating-point sort for an IEEE width.
func (ctx *zContext) fpSort(bits uint) (C.Z3_sort, error) {
	switch bits {
	case 16:
		return C.Z3_mk_fpa_sort_16(ctx.raw), ctx.err("Z3_mk_fpa_sort_16")
	case 32:
		return C.Z3_mk_fpa_sort_32(ctx.raw), ctx.err("Z3_mk_fpa_sort_32")
	case 64:
		return C.Z3_mk_fpa_sort_64(ctx.raw), ctx.err("Z3_mk_fpa_sort_64")
	case 128:
		return C.Z3_mk_fpa_sort_128(ctx.raw), ctx.err("Z3_mk_fpa_sort_128")
	}
	return nil, fmt.Errorf("z3: invalid fp width %d", bits)
}

// toFPArg converts an IEEE-encoded bitvector operand to an fp value.
func (ctx *zContext) toFPArg(e minotaur.Expr, bits uint) (C.Z3_ast, error) {
	bv, err := ctx.toBVAST(e)
	if err != nil {
		return nil, err
	}
	sort, err := ctx.fpSort(bits)
	if err != nil {
		return nil, err
	}
	return C.Z3_mk_fpa_to_fp_bv(ctx.raw, bv, sort), ctx.err("Z3_mk_fpa_to_fp_bv")
}

func (ctx *zContext) rne() (C.Z3_ast, error) {
	return C.Z3_mk_fpa_rne(ctx.raw), ctx.err("Z3_mk_fpa_rne")
}

func (ctx *zContext) toFPAST(expr *minotaur.FPExpr) (C.Z3_ast, error) {
	op := expr.Op

	// conversions in and out of the fp domain
	switch op {
	case minotaur.FPToUI, minotaur.FPToSI:
		arg, err := ctx.toFPArg(expr.Args[0], expr.ArgBits)
		if err != nil {
			return nil, err
		}
		rtz := C.Z3_mk_fpa_rtz(ctx.raw)
		if op == minotaur.FPToUI {
			return C.Z3_mk_fpa_to_ubv(ctx.raw, rtz, arg, C.uint(expr.ResWidth)), ctx.err("Z3_mk_fpa_to_ubv")
		}
		return C.Z3_mk_fpa_to_sbv(ctx.raw, rtz, arg, C.uint(expr.ResWidth)), ctx.err("Z3_mk_fpa_to_sbv")
	case minotaur.UIToFP, minotaur.SIToFP:
		bv, err := ctx.toBVAST(expr.Args[0])
		if err != nil {
			return nil, err
		}
		sort, err := ctx.fpSort(expr.ResWidth)
		if err != nil {
			return nil, err
		}
		rm, err := ctx.rne()
		if err != nil {
			return nil, err
		}
		var fp C.Z3_ast
		if op == minotaur.UIToFP {
			fp = C.Z3_mk_fpa_to_fp_unsigned(ctx.raw, rm, bv, sort)
		} else {
			fp = C.Z3_mk_fpa_to_fp_signed(ctx.raw, rm, bv, sort)
		}
		if err := ctx.err("Z3_mk_fpa_to_fp"); err != nil {
			return nil, err
		}
		return C.Z3_mk_fpa_to_ieee_bv(ctx.raw, fp), ctx.err("Z3_mk_fpa_to_ieee_bv")
	case minotaur.FPExt, minotaur.FPTruncPrec:
		arg, err := ctx.toFPArg(expr.Args[0], expr.ArgBits)
		if err != nil {
			return nil, err
		}
		sort, err := ctx.fpSort(expr.ResWidth)
		if err != nil {
			return nil, err
		}
		rm, err := ctx.rne()
		if err != nil {
			return nil, err
		}
		fp := C.Z3_mk_fpa_to_fp_float(ctx.raw, rm, arg, sort)
		if err := ctx.err("Z3_mk_fpa_to_fp_float"); err != nil {
			return nil, err
		}
		return C.Z3_mk_fpa_to_ieee_bv(ctx.raw, fp), ctx.err("Z3_mk_fpa_to_ieee_bv")
	}

	// rounding to integral
	if rm, ok := roundingMode(op); ok {
		arg, err := ctx.toFPArg(expr.Args[0], expr.ArgBits)
		if err != nil {
			return nil, err
		}
		mode := rm(ctx.raw)
		fp := C.Z3_mk_fpa_round_to_integral(ctx.raw, mode, arg)
		if err := ctx.err("Z3_mk_fpa_round_to_integral"); err != nil {
			return nil, err
		}
		return C.Z3_mk_fpa_to_ieee_bv(ctx.raw, fp), ctx.err("Z3_mk_fpa_to_ieee_bv")
	}

	// binary arithmetic
	lhs, err := ctx.toFPArg(expr.Args[0], expr.ArgBits)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toFPArg(expr.Args[1], expr.ArgBits)
	if err != nil {
		return nil, err
	}
	rm, err := ctx.rne()
	if err != nil {
		return nil, err
	}

	var fp C.Z3_ast
	switch op {
	case minotaur.FPAdd:
		fp = C.Z3_mk_fpa_add(ctx.raw, rm, lhs, rhs)
	case minotaur.FPSub:
		fp = C.Z3_mk_fpa_sub(ctx.raw, rm, lhs, rhs)
	case minotaur.FPMul:
		fp = C.Z3_mk_fpa_mul(ctx.raw, rm, lhs, rhs)
	case minotaur.FPDiv:
		fp = C.Z3_mk_fpa_div(ctx.raw, rm, lhs, rhs)
	case minotaur.FPMaxNum:
		fp = C.Z3_mk_fpa_max(ctx.raw, lhs, rhs)
	case minotaur.FPMinNum:
		fp = C.Z3_mk_fpa_min(ctx.raw, lhs, rhs)
	case minotaur.FPMaximum, minotaur.FPMinimum:
		return ctx.toFPExtremumAST(expr, lhs, rhs)
	default:
		return nil, fmt.Errorf("z3: unexpected fp operation: %s", op)
	}
	if err := ctx.err("Z3_mk_fpa_arith"); err != nil {
		return nil, err
	}
	return C.Z3_mk_fpa_to_ieee_bv(ctx.raw, fp), ctx.err("Z3_mk_fpa_to_ieee_bv")
}

// toFPExtremumAST encodes IEEE-754-2019 maximum/minimum: NaN if either
// operand is NaN, and signed zeros ordered.
func (ctx *zContext) toFPExtremumAST(expr *minotaur.FPExpr, lhs, rhs C.Z3_ast) (C.Z3_ast, error) {
	lbv := C.Z3_mk_fpa_to_ieee_bv(ctx.raw, lhs)
	rbv := C.Z3_mk_fpa_to_ieee_bv(ctx.raw, rhs)
	if err := ctx.err("Z3_mk_fpa_to_ieee_bv"); err != nil {
		return nil, err
	}

	lnan := C.Z3_mk_fpa_is_nan(ctx.raw, lhs)
	rnan := C.Z3_mk_fpa_is_nan(ctx.raw, rhs)
	nanArgs := [2]C.Z3_ast{lnan, rnan}
	anyNan := C.Z3_mk_or(ctx.raw, 2, &nanArgs[0])

	sort, err := ctx.fpSort(expr.ArgBits)
	if err != nil {
		return nil, err
	}
	nan := C.Z3_mk_fpa_nan(ctx.raw, sort)
	nanBV := C.Z3_mk_fpa_to_ieee_bv(ctx.raw, nan)

	var cmp C.Z3_ast
	var zeroTie C.Z3_ast
	if expr.Op == minotaur.FPMaximum {
		cmp = C.Z3_mk_fpa_gt(ctx.raw, lhs, rhs)
		// maximum(+0, -0) is +0: clearing the sign via bitwise AND
		zeroTie = C.Z3_mk_bvand(ctx.raw, lbv, rbv)
	} else {
		cmp = C.Z3_mk_fpa_lt(ctx.raw, lhs, rhs)
		// minimum(+0, -0) is -0: keeping the sign via bitwise OR
		zeroTie = C.Z3_mk_bvor(ctx.raw, lbv, rbv)
	}

	lz := C.Z3_mk_fpa_is_zero(ctx.raw, lhs)
	rz := C.Z3_mk_fpa_is_zero(ctx.raw, rhs)
	zArgs := [2]C.Z3_ast{lz, rz}
	bothZero := C.Z3_mk_and(ctx.raw, 2, &zArgs[0])

	picked := C.Z3_mk_ite(ctx.raw, cmp, lbv, rbv)
	tied := C.Z3_mk_ite(ctx.raw, bothZero, zeroTie, picked)
	return C.Z3_mk_ite(ctx.raw, anyNan, nanBV, tied), ctx.err("Z3_mk_ite")
}

func roundingMode(op minotaur.FPOp) (func(C.Z3_context) C.Z3_ast, bool) {
	switch op {
	case minotaur.FPCeil:
		return func(c C.Z3_context) C.Z3_ast { return C.Z3_mk_fpa_rtp(c) }, true
	case minotaur.FPFloor:
		return func(c C.Z3_context) C.Z3_ast { return C.Z3_mk_fpa_rtn(c) }, true
	case minotaur.FPTruncInt:
		return func(c C.Z3_context) C.Z3_ast { return C.Z3_mk_fpa_rtz(c) }, true
	case minotaur.FPRint, minotaur.FPNearbyInt, minotaur.FPRoundEven:
		return func(c C.Z3_context) C.Z3_ast { return C.Z3_mk_fpa_rne(c) }, true
	case minotaur.FPRound:
		return func(c C.Z3_context) C.Z3_ast { return C.Z3_mk_fpa_rna(c) }, true
	}
	return nil, false
}

// toFCmpAST encodes the sixteen IEEE comparison predicates.
func (ctx *zContext) toFCmpAST(expr *minotaur.FPExpr) (C.Z3_ast, error) {
	lhs, err := ctx.toFPArg(expr.Args[0], expr.ArgBits)
	if err != nil {
		return nil, err
	}
	rhs, err := ctx.toFPArg(expr.Args[1], expr.ArgBits)
	if err != nil {
		return nil, err
	}

	lnan := C.Z3_mk_fpa_is_nan(ctx.raw, lhs)
	rnan := C.Z3_mk_fpa_is_nan(ctx.raw, rhs)
	nanArgs := [2]C.Z3_ast{lnan, rnan}
	unordered := C.Z3_mk_or(ctx.raw, 2, &nanArgs[0])
	if err := ctx.err("Z3_mk_or"); err != nil {
		return nil, err
	}

	ordered := func(a C.Z3_ast) C.Z3_ast {
		n := C.Z3_mk_not(ctx.raw, unordered)
		args := [2]C.Z3_ast{n, a}
		return C.Z3_mk_and(ctx.raw, 2, &args[0])
	}
	orUnordered := func(a C.Z3_ast) C.Z3_ast {
		args := [2]C.Z3_ast{unordered, a}
		return C.Z3_mk_or(ctx.raw, 2, &args[0])
	}

	switch expr.Pred {
	case minotaur.FCmpFalse:
		return C.Z3_mk_false(ctx.raw), ctx.err("Z3_mk_false")
	case minotaur.FCmpTrue:
		return C.Z3_mk_true(ctx.raw), ctx.err("Z3_mk_true")
	case minotaur.FCmpORD:
		return C.Z3_mk_not(ctx.raw, unordered), ctx.err("Z3_mk_not")
	case minotaur.FCmpUNO:
		return unordered, nil
	case minotaur.FCmpOEQ:
		return ordered(C.Z3_mk_fpa_eq(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_eq")
	case minotaur.FCmpOGT:
		return ordered(C.Z3_mk_fpa_gt(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_gt")
	case minotaur.FCmpOGE:
		return ordered(C.Z3_mk_fpa_geq(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_geq")
	case minotaur.FCmpOLT:
		return ordered(C.Z3_mk_fpa_lt(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_lt")
	case minotaur.FCmpOLE:
		return ordered(C.Z3_mk_fpa_leq(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_leq")
	case minotaur.FCmpONE:
		eq := C.Z3_mk_fpa_eq(ctx.raw, lhs, rhs)
		return ordered(C.Z3_mk_not(ctx.raw, eq)), ctx.err("Z3_mk_not")
	case minotaur.FCmpUEQ:
		return orUnordered(C.Z3_mk_fpa_eq(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_eq")
	case minotaur.FCmpUGT:
		return orUnordered(C.Z3_mk_fpa_gt(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_gt")
	case minotaur.FCmpUGE:
		return orUnordered(C.Z3_mk_fpa_geq(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_geq")
	case minotaur.FCmpULT:
		return orUnordered(C.Z3_mk_fpa_lt(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_lt")
	case minotaur.FCmpULE:
		return orUnordered(C.Z3_mk_fpa_leq(ctx.raw, lhs, rhs)), ctx.err("Z3_mk_fpa_leq")
	case minotaur.FCmpUNE:
		eq := C.Z3_mk_fpa_eq(ctx.raw, lhs, rhs)
		return orUnordered(C.Z3_mk_not(ctx.raw, eq)), ctx.err("Z3_mk_not")
	}
	return nil, fmt.Errorf("z3: unexpected fcmp predicate: %s", expr.Pred)
}

// eval extracts the model values of the requested symbols, 64 bits at a
// time.
func (ctx *zContext) eval(model C.Z3_model, symbols []*minotaur.SymbolExpr) (minotaur.Model, error) {
	values := make(minotaur.Model, len(symbols))
	for _, sym := range symbols {
		ast, err := ctx.symbol(sym)
		if err != nil {
			return nil, err
		}
		nLimbs := (sym.Width + 63) / 64
		limbs := make([]uint64, nLimbs)
		for k := uint(0); k < nLimbs; k++ {
			lo := k * 64
			hi := lo + 63
			if hi >= sym.Width {
				hi = sym.Width - 1
			}
			chunk := ast
			if sym.Width > 64 {
				chunk = C.Z3_mk_extract(ctx.raw, C.uint(hi), C.uint(lo), ast)
				if err := ctx.err("Z3_mk_extract"); err != nil {
					return nil, err
				}
			}
			var out C.Z3_ast
			C.Z3_model_eval(ctx.raw, model, chunk, C.bool(true), &out)
			if err := ctx.err("Z3_model_eval"); err != nil {
				return nil, err
			}
			var val C.uint64_t
			C.Z3_get_numeral_uint64(ctx.raw, out, &val)
			if err := ctx.err("Z3_get_numeral_uint64"); err != nil {
				return nil, err
			}
			limbs[k] = uint64(val)
		}
		values[sym.Name] = limbs
	}
	return values, nil
}

// Error represents an error from the Z3 API.
type Error struct {
	Code    int
	Op      string
	Message string
}

// Error returns the error as a string.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s (%d)", e.Op, e.Message, e.Code)
}

// Stats tracks aggregate solver activity.
type Stats struct {
	SolveN    int
	SolveTime time.Duration
}
