package compiler

import (
	"vela/internal/bytecode"
	"vela/internal/lexer"
)

func (p *Parser) declaration() {
	switch {
	case p.match(lexer.CLASS):
		p.classDeclaration()
	case p.match(lexer.FUN):
		p.funDeclaration()
	case p.match(lexer.VAR):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *Parser) statement() {
	switch {
	case p.match(lexer.PRINT):
		p.printStatement()
	case p.match(lexer.IF):
		p.ifStatement()
	case p.match(lexer.RETURN):
		p.returnStatement()
	case p.match(lexer.WHILE):
		p.whileStatement()
	case p.match(lexer.FOR):
		p.forStatement()
	case p.match(lexer.LBRACE):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *Parser) block() {
	for !p.check(lexer.RBRACE) && !p.check(lexer.EOF) {
		p.declaration()
	}
	p.consume(lexer.RBRACE, "Expect '}' after block.")
}

func (p *Parser) printStatement() {
	p.expression()
	p.consume(lexer.SEMICOLON, "Expect ';' after value.")
	p.emitByte(op(bytecode.OpPrint))
}

func (p *Parser) expressionStatement() {
	p.expression()
	p.consume(lexer.SEMICOLON, "Expect ';' after expression.")
	p.emitByte(op(bytecode.OpPop))
}

func (p *Parser) ifStatement() {
	p.consume(lexer.LPAREN, "Expect '(' after 'if'.")
	p.expression()
	p.consume(lexer.RPAREN, "Expect ')' after condition.")

	thenJump := p.emitJump(op(bytecode.OpJmpOnFalse))
	p.emitByte(op(bytecode.OpPop))
	p.statement()

	elseJump := p.emitJump(op(bytecode.OpJmp))
	p.patchJump(thenJump)
	p.emitByte(op(bytecode.OpPop))

	if p.match(lexer.ELSE) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *Parser) whileStatement() {
	loopStart := len(p.chunk().Code)
	p.consume(lexer.LPAREN, "Expect '(' after 'while'.")
	p.expression()
	p.consume(lexer.RPAREN, "Expect ')' after condition.")

	exitJump := p.emitJump(op(bytecode.OpJmpOnFalse))
	p.emitByte(op(bytecode.OpPop))
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitByte(op(bytecode.OpPop))
}

func (p *Parser) forStatement() {
	p.beginScope()
	p.consume(lexer.LPAREN, "Expect '(' after 'for'.")

	switch {
	case p.match(lexer.SEMICOLON):
		// no initializer
	case p.match(lexer.VAR):
		p.varDeclaration()
	default:
		p.expressionStatement()
	}

	loopStart := len(p.chunk().Code)
	exitJump := -1
	if !p.match(lexer.SEMICOLON) {
		p.expression()
		p.consume(lexer.SEMICOLON, "Expect ';' after loop condition.")
		exitJump = p.emitJump(op(bytecode.OpJmpOnFalse))
		p.emitByte(op(bytecode.OpPop))
	}

	if !p.check(lexer.RPAREN) {
		bodyJump := p.emitJump(op(bytecode.OpJmp))
		incStart := len(p.chunk().Code)
		p.expression()
		p.emitByte(op(bytecode.OpPop))
		p.consume(lexer.RPAREN, "Expect ')' after for clauses.")

		p.emitLoop(loopStart)
		loopStart = incStart
		p.patchJump(bodyJump)
	} else {
		p.consume(lexer.RPAREN, "Expect ')' after for clauses.")
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitByte(op(bytecode.OpPop))
	}
	p.endScope()
}

func (p *Parser) returnStatement() {
	if p.cur.kind == typeScript {
		p.error("Can't return from top-level code.")
	}
	if p.match(lexer.SEMICOLON) {
		p.emitReturn()
		return
	}
	if p.cur.kind == typeInitializer {
		p.error("Can't return a value from an initializer.")
	}
	p.expression()
	p.consume(lexer.SEMICOLON, "Expect ';' after return value.")
	p.emitByte(op(bytecode.OpReturn))
}

func (p *Parser) varDeclaration() {
	p.consume(lexer.IDENT, "Expect variable name.")
	name := p.previous.Lexeme
	p.declareVariable(name)
	global := byte(0)
	if p.cur.scopeDepth == 0 {
		global = p.identifierConstant(name)
	}

	if p.match(lexer.EQUAL) {
		p.expression()
	} else {
		p.emitByte(op(bytecode.OpNil))
	}
	p.consume(lexer.SEMICOLON, "Expect ';' after variable declaration.")

	if p.cur.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitBytes(op(bytecode.OpGlobal), global)
}

func (p *Parser) funDeclaration() {
	p.consume(lexer.IDENT, "Expect function name.")
	name := p.previous.Lexeme
	p.declareVariable(name)
	global := byte(0)
	if p.cur.scopeDepth == 0 {
		global = p.identifierConstant(name)
	}
	if p.cur.scopeDepth > 0 {
		p.markInitialized()
	}

	p.function(typeFunction, name)

	if p.cur.scopeDepth == 0 {
		p.emitBytes(op(bytecode.OpGlobal), global)
	}
}

// function compiles a parameter list and body into its own FunctionObj,
// then emits OP_CLOSURE with the upvalue capture list the nested
// function's compilation discovered.
func (p *Parser) function(kind funcType, name string) {
	enclosing := p.cur
	p.cur = p.newFuncState(enclosing, kind, name)
	p.beginScope()

	p.consume(lexer.LPAREN, "Expect '(' after function name.")
	if !p.check(lexer.RPAREN) {
		for {
			p.cur.fn.Arity++
			if p.cur.fn.Arity > maxArgs {
				p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			p.consume(lexer.IDENT, "Expect parameter name.")
			p.declareVariable(p.previous.Lexeme)
			p.markInitialized()
			if !p.match(lexer.COMMA) {
				break
			}
		}
	}
	p.consume(lexer.RPAREN, "Expect ')' after parameters.")
	p.consume(lexer.LBRACE, "Expect '{' before function body.")
	p.block()

	fs := p.cur
	fn := p.endFunction()

	idx := p.makeConstant(funcValue(fn))
	p.emitBytes(op(bytecode.OpClosure), idx)
	for _, uv := range fs.upvalues {
		isLocal := byte(0)
		if uv.isLocal {
			isLocal = 1
		}
		p.emitBytes(uv.index, isLocal)
	}
}

func (p *Parser) classDeclaration() {
	p.consume(lexer.IDENT, "Expect class name.")
	name := p.previous.Lexeme
	nameConst := p.identifierConstant(name)
	p.declareVariable(name)

	p.emitBytes(op(bytecode.OpClass), nameConst)
	if p.cur.scopeDepth > 0 {
		p.markInitialized()
	} else {
		p.emitBytes(op(bytecode.OpGlobal), nameConst)
	}

	cs := &classState{enclosing: p.class}
	p.class = cs

	if p.match(lexer.LESS) {
		p.consume(lexer.IDENT, "Expect superclass name.")
		if p.previous.Lexeme == name {
			p.error("A class can't inherit from itself.")
		}
		variable(p, false) // push superclass

		p.beginScope()
		p.addLocal("super")
		p.markInitialized()

		p.namedVariable(name, false)
		p.emitByte(op(bytecode.OpDerive))
		cs.hasSuperclass = true
	} else {
		// With a superclass, OP_DERIVE leaves the subclass on top already.
		p.namedVariable(name, false)
	}

	p.consume(lexer.LBRACE, "Expect '{' before class body.")
	for !p.check(lexer.RBRACE) && !p.check(lexer.EOF) {
		p.method()
	}
	p.consume(lexer.RBRACE, "Expect '}' after class body.")
	p.emitByte(op(bytecode.OpPop)) // the class itself, pushed by namedVariable above

	if cs.hasSuperclass {
		p.endScope()
	}
	p.class = cs.enclosing
}

func (p *Parser) method() {
	p.consume(lexer.IDENT, "Expect method name.")
	name := p.previous.Lexeme
	nameConst := p.identifierConstant(name)

	kind := typeMethod
	if name == "init" {
		kind = typeInitializer
	}
	p.function(kind, name)
	p.emitBytes(op(bytecode.OpMethod), nameConst)
}
