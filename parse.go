package minotaur

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"unicode"

	"github.com/artagnon/minotaur/ssa"
)

// Parser reconstructs candidate expression trees from the rewrite
// surface syntax, resolving variable references against a target
// function's live-in set.
type Parser struct {
	cfg    Config
	values map[string]ssa.Value
}

// NewParser returns a parser resolving names against f.
func NewParser(cfg Config, f *ssa.Func) *Parser {
	values := make(map[string]ssa.Value)
	for _, p := range f.Params {
		values[p.Nm] = p
	}
	for _, b := range f.Blocks {
		for _, i := range b.Instrs {
			if !i.Typ.Void {
				values[i.Name()] = i
			}
		}
	}
	return &Parser{cfg: cfg, values: values}
}

// Parse parses one rewrite expression.
func (p *Parser) Parse(src string) (Inst, error) {
	s := &scanner{src: src}
	s.scan()
	inst, err := p.parseExpr(s)
	if err != nil {
		if p.cfg.DebugParser {
			log.Printf("[parser] %v", err)
		}
		return nil, err
	}
	if tok := s.next(); tok.kind != scanEOF {
		return nil, fmt.Errorf("minotaur: parse: trailing input %q", tok.text)
	}
	return inst, nil
}

type scanKind int

const (
	scanEOF scanKind = iota
	scanIdent
	scanVar // %name
	scanNumber
	scanPunct
)

type scanTok struct {
	kind scanKind
	text string
}

type scanner struct {
	src  string
	toks []scanTok
	pos  int
}

func (s *scanner) scan() {
	src := s.src
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case strings.ContainsRune("(){}<>,?", rune(c)):
			s.toks = append(s.toks, scanTok{scanPunct, string(c)})
			i++
		case c == '%':
			j := i + 1
			for j < len(src) && isNameByte(src[j]) {
				j++
			}
			s.toks = append(s.toks, scanTok{scanVar, src[i+1 : j]})
			i = j
		case c == '-' || unicode.IsDigit(rune(c)):
			j := i + 1
			for j < len(src) && unicode.IsDigit(rune(src[j])) {
				j++
			}
			s.toks = append(s.toks, scanTok{scanNumber, src[i:j]})
			i = j
		default:
			j := i
			for j < len(src) && isNameByte(src[j]) {
				j++
			}
			if j == i {
				j++
				i = j
				continue
			}
			s.toks = append(s.toks, scanTok{scanIdent, src[i:j]})
			i = j
		}
	}
	s.toks = append(s.toks, scanTok{kind: scanEOF})
}

func isNameByte(c byte) bool {
	return c == '_' || c == '.' || unicode.IsLetter(rune(c)) || unicode.IsDigit(rune(c))
}

func (s *scanner) peek() scanTok { return s.toks[s.pos] }
func (s *scanner) next() scanTok { t := s.toks[s.pos]; s.pos++; return t }

func (s *scanner) expect(kind scanKind, text string) (scanTok, error) {
	t := s.next()
	if t.kind != kind || (text != "" && t.text != text) {
		return t, fmt.Errorf("minotaur: parse: expected %q, got %q", text, t.text)
	}
	return t, nil
}

// parseType parses a type literal: iN, half, float, double, fp128, or
// <lane x elem>.
func (p *Parser) parseType(s *scanner) (Type, error) {
	if s.peek().kind == scanPunct && s.peek().text == "<" {
		s.next()
		lane, err := s.expect(scanNumber, "")
		if err != nil {
			return Type{}, err
		}
		if _, err := s.expect(scanIdent, "x"); err != nil {
			return Type{}, err
		}
		elem, err := p.parseScalarType(s)
		if err != nil {
			return Type{}, err
		}
		if _, err := s.expect(scanPunct, ">"); err != nil {
			return Type{}, err
		}
		n, _ := strconv.Atoi(lane.text)
		return elem.AsVector(uint(n)), nil
	}
	return p.parseScalarType(s)
}

func (p *Parser) parseScalarType(s *scanner) (Type, error) {
	t := s.next()
	if t.kind != scanIdent {
		return Type{}, fmt.Errorf("minotaur: parse: expected type, got %q", t.text)
	}
	switch t.text {
	case "half":
		return ScalarType(16, true), nil
	case "float":
		return ScalarType(32, true), nil
	case "double":
		return ScalarType(64, true), nil
	case "fp128":
		return ScalarType(128, true), nil
	}
	if strings.HasPrefix(t.text, "i") {
		if bits, err := strconv.Atoi(t.text[1:]); err == nil && bits > 0 {
			return IntegerType(uint(bits)), nil
		}
	}
	return Type{}, fmt.Errorf("minotaur: parse: unknown type %q", t.text)
}

// parseExpr parses a variable reference or a parenthesized form.
func (p *Parser) parseExpr(s *scanner) (Inst, error) {
	tok := s.peek()
	if tok.kind == scanVar {
		s.next()
		v, ok := p.values[tok.text]
		if !ok {
			return nil, fmt.Errorf("minotaur: parse: unknown live-in %%%s", tok.text)
		}
		return NewVar(v), nil
	}
	if _, err := s.expect(scanPunct, "("); err != nil {
		return nil, err
	}
	head, err := s.expect(scanIdent, "")
	if err != nil {
		return nil, err
	}
	inst, err := p.parseForm(s, head.text)
	if err != nil {
		return nil, err
	}
	if _, err := s.expect(scanPunct, ")"); err != nil {
		return nil, err
	}
	return inst, nil
}

func (p *Parser) parseRC(s *scanner) (*ReservedConst, error) {
	inst, err := p.parseExpr(s)
	if err != nil {
		return nil, err
	}
	rc, ok := inst.(*ReservedConst)
	if !ok {
		return nil, fmt.Errorf("minotaur: parse: expected constant, got %s", inst)
	}
	return rc, nil
}

func (p *Parser) comma(s *scanner) error {
	_, err := s.expect(scanPunct, ",")
	return err
}

func (p *Parser) parseForm(s *scanner, head string) (Inst, error) {
	// unary operators
	for op := UnOpBitReverse; op < numUnOps; op++ {
		if head != op.String() {
			continue
		}
		workty, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		v, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		return &UnaryOp{Op: op, V: v, WorkTy: workty}, nil
	}

	// binary operators
	for op := BinOpAnd; op < numBinOps; op++ {
		if head != op.String() {
			continue
		}
		workty, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		l, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		r, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		return &BinaryOp{Op: op, L: l, R: r, WorkTy: workty}, nil
	}

	// integer conversions
	for _, op := range []ConvOp{ConvSExt, ConvZExt, ConvTrunc} {
		if head != op.String() {
			continue
		}
		prev, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		v, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if _, err := s.expect(scanIdent, "to"); err != nil {
			return nil, err
		}
		to, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		if prev.Lane != to.Lane {
			return nil, fmt.Errorf("minotaur: parse: conversion lane mismatch")
		}
		return &IntConversion{Op: op, V: v, Lane: prev.Lane, PrevBits: prev.Bits, NewBits: to.Bits}, nil
	}

	// floating-point conversions
	for _, op := range []FPConvOp{ConvFPTrunc, ConvFPExt, ConvFPToUI, ConvFPToSI, ConvUIToFP, ConvSIToFP} {
		if head != op.String() {
			continue
		}
		if _, err := p.parseType(s); err != nil { // operand type, informative
			return nil, err
		}
		v, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if _, err := s.expect(scanIdent, "to"); err != nil {
			return nil, err
		}
		to, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		return &FPConversion{Op: op, V: v, To: to}, nil
	}

	switch head {
	case "const":
		ty, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		rc := &ReservedConst{Typ: ty}
		tok := s.next()
		switch {
		case tok.kind == scanPunct && tok.text == "?":
			return rc, nil
		case tok.kind == scanNumber:
			v, err := parseRewriteNumber(tok.text, ty.Bits)
			if err != nil {
				return nil, err
			}
			rc.C = ssa.ConstVec(ty.ToSSA(), []uint64{v})
			return rc, nil
		case tok.kind == scanPunct && tok.text == "{":
			var elems []uint64
			for s.peek().text != "}" {
				if len(elems) > 0 {
					if err := p.comma(s); err != nil {
						return nil, err
					}
				}
				n, err := s.expect(scanNumber, "")
				if err != nil {
					return nil, err
				}
				v, err := parseRewriteNumber(n.text, ty.Bits)
				if err != nil {
					return nil, err
				}
				elems = append(elems, v)
			}
			s.next() // }
			rc.C = ssa.ConstVec(ty.ToSSA(), elems)
			return rc, nil
		}
		return nil, fmt.Errorf("minotaur: parse: bad constant body %q", tok.text)

	case "copy":
		rc, err := p.parseRC(s)
		if err != nil {
			return nil, err
		}
		return &Copy{RC: rc}, nil

	case "icmp":
		cond, err := s.expect(scanIdent, "")
		if err != nil {
			return nil, err
		}
		var c ICmpCond
		found := false
		for k := ICmpEQ; k < numICmpConds; k++ {
			if k.String() == cond.text {
				c, found = k, true
			}
		}
		if !found {
			return nil, fmt.Errorf("minotaur: parse: bad icmp predicate %q", cond.text)
		}
		workty, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		l, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		r, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		return &ICmp{Cond: c, L: l, R: r, Lanes: workty.Lane}, nil

	case "fcmp":
		cond, err := s.expect(scanIdent, "")
		if err != nil {
			return nil, err
		}
		var c FCmpCond
		found := false
		for k := FCmpFalse; k < numFCmpConds; k++ {
			if k.String() == cond.text {
				c, found = k, true
			}
		}
		if !found {
			return nil, fmt.Errorf("minotaur: parse: bad fcmp predicate %q", cond.text)
		}
		workty, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		l, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		r, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		return &FCmp{Cond: c, L: l, R: r, Lanes: workty.Lane}, nil

	case "extractelement":
		shape, err := p.parseType(s) // input vector shape
		if err != nil {
			return nil, err
		}
		v, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		idx, err := p.parseRC(s)
		if err != nil {
			return nil, err
		}
		return &ExtractElement{V: v, Idx: idx, Ty: ScalarType(shape.Bits, shape.FP)}, nil

	case "insertelement":
		workty, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		v, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		elt, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		idx, err := p.parseRC(s)
		if err != nil {
			return nil, err
		}
		return &InsertElement{V: v, Elt: elt, Idx: idx, WorkTy: workty}, nil

	case "shuffle":
		l, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		mask, err := p.parseRC(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		ety, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		return &FakeShuffle{L: l, Mask: mask, ExpectTy: ety}, nil

	case "blend":
		l, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		r, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		mask, err := p.parseRC(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		ety, err := p.parseType(s)
		if err != nil {
			return nil, err
		}
		return &FakeShuffle{L: l, R: r, Mask: mask, ExpectTy: ety}, nil

	case "select":
		cond, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		l, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		r, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		return &Select{Cond: cond, L: l, R: r}, nil
	}

	// SIMD intrinsics
	if op, ok := SIMDOpByName(head); ok {
		l, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		if err := p.comma(s); err != nil {
			return nil, err
		}
		r, err := p.parseExpr(s)
		if err != nil {
			return nil, err
		}
		return &SIMDBinOp{Op: op, L: l, R: r}, nil
	}

	return nil, fmt.Errorf("minotaur: parse: unknown operator %q", head)
}

func parseRewriteNumber(text string, bits uint) (uint64, error) {
	if strings.HasPrefix(text, "-") {
		v, err := strconv.ParseInt(text, 10, 64)
		return uint64(v) & ssa.Bitmask(bits), err
	}
	v, err := strconv.ParseUint(text, 10, 64)
	return v & ssa.Bitmask(bits), err
}
