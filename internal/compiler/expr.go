package compiler

import (
	"strconv"

	"vela/internal/bytecode"
	"vela/internal/lexer"
	"vela/internal/value"
)

// precedence is the Pratt binding-power ladder from spec.md section 4.2,
// ascending in binding strength.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . ()
	precPrimary
)

type parseFn func(p *Parser, canAssign bool)

type parseRule struct {
	prefix     parseFn
	infix      parseFn
	precedence precedence
}

var rules map[lexer.Kind]parseRule

func init() {
	rules = map[lexer.Kind]parseRule{
		lexer.LPAREN:        {prefix: grouping, infix: call, precedence: precCall},
		lexer.DOT:           {infix: dot, precedence: precCall},
		lexer.MINUS:         {prefix: unary, infix: binary, precedence: precTerm},
		lexer.PLUS:          {infix: binary, precedence: precTerm},
		lexer.SLASH:         {infix: binary, precedence: precFactor},
		lexer.STAR:          {infix: binary, precedence: precFactor},
		lexer.BANG:          {prefix: unary},
		lexer.BANG_EQUAL:    {infix: binary, precedence: precEquality},
		lexer.EQUAL_EQUAL:   {infix: binary, precedence: precEquality},
		lexer.GREATER:       {infix: binary, precedence: precComparison},
		lexer.GREATER_EQUAL: {infix: binary, precedence: precComparison},
		lexer.LESS:          {infix: binary, precedence: precComparison},
		lexer.LESS_EQUAL:    {infix: binary, precedence: precComparison},
		lexer.IDENT:         {prefix: variable},
		lexer.STRING:        {prefix: stringLit},
		lexer.NUMBER:        {prefix: number},
		lexer.AND:           {infix: and_, precedence: precAnd},
		lexer.OR:            {infix: or_, precedence: precOr},
		lexer.FALSE:         {prefix: literal},
		lexer.NIL:           {prefix: literal},
		lexer.TRUE:          {prefix: literal},
		lexer.THIS:          {prefix: this_},
		lexer.SUPER:         {prefix: super_},
	}
}

func ruleFor(k lexer.Kind) parseRule { return rules[k] }

// expression parses an expression with the lowest binding power, enabling
// assignment at the top level.
func (p *Parser) expression() { p.parsePrecedence(precAssignment) }

func (p *Parser) parsePrecedence(min precedence) {
	p.advance()
	prefix := ruleFor(p.previous.Kind).prefix
	if prefix == nil {
		p.error("Expect expression.")
		return
	}

	canAssign := min <= precAssignment
	prefix(p, canAssign)

	for min <= ruleFor(p.current.Kind).precedence {
		p.advance()
		infix := ruleFor(p.previous.Kind).infix
		infix(p, canAssign)
	}

	if canAssign && p.match(lexer.EQUAL) {
		p.error("Invalid assignment target.")
	}
}

func number(p *Parser, _ bool) {
	n, err := strconv.ParseFloat(p.previous.Lexeme, 64)
	if err != nil {
		p.error("Invalid number literal.")
		return
	}
	p.emitConstant(value.Number(n))
}

func stringLit(p *Parser, _ bool) {
	p.emitConstant(value.FromObject(p.internString(p.previous.Lexeme)))
}

func literal(p *Parser, _ bool) {
	switch p.previous.Kind {
	case lexer.FALSE:
		p.emitByte(op(bytecode.OpFalse))
	case lexer.TRUE:
		p.emitByte(op(bytecode.OpTrue))
	case lexer.NIL:
		p.emitByte(op(bytecode.OpNil))
	}
}

func grouping(p *Parser, _ bool) {
	p.expression()
	p.consume(lexer.RPAREN, "Expect ')' after expression.")
}

func unary(p *Parser, _ bool) {
	kind := p.previous.Kind
	p.parsePrecedence(precUnary)
	switch kind {
	case lexer.MINUS:
		p.emitByte(op(bytecode.OpNegative))
	case lexer.BANG:
		p.emitByte(op(bytecode.OpNot))
	}
}

func binary(p *Parser, _ bool) {
	kind := p.previous.Kind
	rule := ruleFor(kind)
	p.parsePrecedence(rule.precedence + 1)

	switch kind {
	case lexer.PLUS:
		p.emitByte(op(bytecode.OpAdd))
	case lexer.MINUS:
		p.emitByte(op(bytecode.OpMinus))
	case lexer.STAR:
		p.emitByte(op(bytecode.OpMul))
	case lexer.SLASH:
		p.emitByte(op(bytecode.OpDiv))
	case lexer.EQUAL_EQUAL:
		p.emitByte(op(bytecode.OpEqualEqual))
	case lexer.BANG_EQUAL:
		p.emitByte(op(bytecode.OpBangEqual))
	case lexer.LESS:
		p.emitByte(op(bytecode.OpLess))
	case lexer.LESS_EQUAL:
		p.emitByte(op(bytecode.OpLessEqual))
	case lexer.GREATER:
		p.emitByte(op(bytecode.OpGreater))
	case lexer.GREATER_EQUAL:
		p.emitByte(op(bytecode.OpGreaterEqual))
	}
}

// and_ short-circuits: if the left operand (already on the stack) is
// false, skip the right operand entirely, leaving the false value as the
// result; otherwise discard it and evaluate the right side.
func and_(p *Parser, _ bool) {
	endJump := p.emitJump(op(bytecode.OpJmpOnFalse))
	p.emitByte(op(bytecode.OpPop))
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

// or_ inverts and_: jump over the right operand only when the left was
// truthy.
func or_(p *Parser, _ bool) {
	elseJump := p.emitJump(op(bytecode.OpJmpOnFalse))
	endJump := p.emitJump(op(bytecode.OpJmp))

	p.patchJump(elseJump)
	p.emitByte(op(bytecode.OpPop))

	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func call(p *Parser, _ bool) {
	argc := p.argumentList()
	p.emitBytes(op(bytecode.OpCall), argc)
}

func (p *Parser) argumentList() byte {
	count := 0
	if !p.check(lexer.RPAREN) {
		for {
			p.expression()
			if count == maxArgs {
				p.error("Can't have more than 255 arguments.")
			}
			count++
			if !p.match(lexer.COMMA) {
				break
			}
		}
	}
	p.consume(lexer.RPAREN, "Expect ')' after arguments.")
	return byte(count)
}

func dot(p *Parser, canAssign bool) {
	p.consume(lexer.IDENT, "Expect property name after '.'.")
	name := p.identifierConstant(p.previous.Lexeme)

	switch {
	case canAssign && p.match(lexer.EQUAL):
		p.expression()
		p.emitBytes(op(bytecode.OpSetField), name)
	case p.match(lexer.LPAREN):
		argc := p.argumentList()
		p.emitBytes(op(bytecode.OpInvoke), name)
		p.emitByte(argc)
	default:
		p.emitBytes(op(bytecode.OpGetField), name)
	}
}

func variable(p *Parser, canAssign bool) {
	p.namedVariable(p.previous.Lexeme, canAssign)
}

func (p *Parser) namedVariable(name string, canAssign bool) {
	var getOp, setOp bytecode.OpCode
	idx, ok := p.resolveLocal(p.cur, name)
	if ok {
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
	} else if uidx, ok := p.resolveUpvalue(p.cur, name); ok {
		idx = uidx
		getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
	} else {
		idx = int(p.identifierConstant(name))
		getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
	}

	if canAssign && p.match(lexer.EQUAL) {
		p.expression()
		p.emitBytes(op(setOp), byte(idx))
	} else {
		p.emitBytes(op(getOp), byte(idx))
	}
}

func this_(p *Parser, _ bool) {
	if p.class == nil {
		p.error("Can't use 'this' outside of a class.")
		return
	}
	variable(p, false)
}

func super_(p *Parser, _ bool) {
	if p.class == nil {
		p.error("Can't use 'super' outside of a class.")
		return
	} else if !p.class.hasSuperclass {
		p.error("Can't use 'super' in a class with no superclass.")
	}

	p.consume(lexer.DOT, "Expect '.' after 'super'.")
	p.consume(lexer.IDENT, "Expect superclass method name.")
	name := p.identifierConstant(p.previous.Lexeme)

	p.namedVariable("this", false)
	p.namedVariable("super", false)
	p.emitBytes(op(bytecode.OpGetSuper), name)
}
