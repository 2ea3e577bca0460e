// Package compiler implements vela's single-pass Pratt compiler: source
// tokens go straight to bytecode, with scope resolution, upvalue capture,
// and constant interning happening inline as each expression and
// statement is parsed. There is no intermediate AST.
package compiler

import (
	"vela/internal/bytecode"
	"vela/internal/errors"
	"vela/internal/heap"
	"vela/internal/lexer"
	"vela/internal/value"
)

const maxLocals = 256
const maxArgs = 255

// funcType distinguishes the kind of function body currently being
// compiled, which changes how "return" and "this" are handled.
type funcType int

const (
	typeScript funcType = iota
	typeFunction
	typeMethod
	typeInitializer
)

type local struct {
	name       string
	depth      int
	isCaptured bool
}

type upvalueRef struct {
	index   uint8
	isLocal bool
}

// funcState is one nested function's compilation context; funcStates
// chain through enclosing to model lexically nested function bodies.
type funcState struct {
	enclosing *funcState
	fn        *value.FunctionObj
	kind      funcType

	locals     []local
	scopeDepth int
	upvalues   []upvalueRef
}

type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Parser drives the whole single-pass compile: it owns the token stream,
// the current chain of function/class compilation states, and the
// accumulated error.
type Parser struct {
	scanner *lexer.Scanner
	heap    *heap.Heap

	current  lexer.Token
	previous lexer.Token

	hadError   bool
	panicMode  bool
	firstError error

	cur   *funcState
	class *classState
}

// Compile compiles source into a top-level script function. On a compile
// error it returns the first diagnostic encountered after synchronizing
// through the rest of the source (spec.md's single-error-surfaced model);
// the returned function is nil whenever err != nil.
func Compile(source []byte, h *heap.Heap) (*value.FunctionObj, error) {
	p := &Parser{scanner: lexer.New(source), heap: h}
	// The top-level script function is named "" so runtime error frames
	// render it per spec.md's "in script" rule instead of "in ()".
	p.cur = p.newFuncState(nil, typeScript, "")

	p.advance()
	for !p.match(lexer.EOF) {
		p.declaration()
	}
	fn := p.endFunction()

	if p.hadError {
		return nil, p.firstError
	}
	return fn, nil
}

func (p *Parser) newFuncState(enclosing *funcState, kind funcType, name string) *funcState {
	fs := &funcState{
		enclosing: enclosing,
		fn:        p.heap.NewFunction(name),
		kind:      kind,
	}
	fs.fn.IsInit = kind == typeInitializer
	// Slot 0 is reserved for the callee/this and is never addressable by
	// name from user code inside functions.
	slotName := ""
	if kind != typeFunction && kind != typeScript {
		slotName = "this"
	}
	fs.locals = append(fs.locals, local{name: slotName, depth: 0})
	return fs
}

func (p *Parser) endFunction() *value.FunctionObj {
	p.emitReturn()
	fn := p.cur.fn
	fn.UpvalueCount = len(p.cur.upvalues)
	p.cur = p.cur.enclosing
	return fn
}

func (p *Parser) chunk() *value.Chunk { return &p.cur.fn.Chunk }

// --- token stream -----------------------------------------------------

func (p *Parser) advance() {
	p.previous = p.current
	for {
		p.current = p.scanner.Next()
		if p.current.Kind != lexer.ERROR {
			break
		}
		p.errorAtCurrent(p.current.Message)
	}
}

func (p *Parser) check(k lexer.Kind) bool { return p.current.Kind == k }

func (p *Parser) match(k lexer.Kind) bool {
	if !p.check(k) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(k lexer.Kind, msg string) {
	if p.current.Kind == k {
		p.advance()
		return
	}
	p.errorAtCurrent(msg)
}

func (p *Parser) errorAtCurrent(msg string) { p.errorAt(p.current, msg) }
func (p *Parser) error(msg string)          { p.errorAt(p.previous, msg) }

func (p *Parser) errorAt(tok lexer.Token, msg string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	p.hadError = true

	lexeme := tok.Lexeme
	if tok.Kind == lexer.EOF {
		lexeme = ""
	}
	err := errors.NewCompileError(tok.Line, lexeme, msg)
	if p.firstError == nil {
		p.firstError = err
	}
}

// synchronize skips tokens until a likely statement boundary, implementing
// the panic-mode recovery spec.md section 7 requires so later errors can
// still be found (though only the first is ever surfaced to the caller).
func (p *Parser) synchronize() {
	p.panicMode = false
	for p.current.Kind != lexer.EOF {
		if p.previous.Kind == lexer.SEMICOLON {
			return
		}
		switch p.current.Kind {
		case lexer.CLASS, lexer.FUN, lexer.VAR, lexer.FOR, lexer.IF, lexer.WHILE, lexer.PRINT, lexer.RETURN:
			return
		}
		p.advance()
	}
}

// --- bytecode emission -------------------------------------------------

func (p *Parser) emitByte(b byte) { p.chunk().Write(b, p.previous.Line) }

func (p *Parser) emitBytes(a, b byte) {
	p.emitByte(a)
	p.emitByte(b)
}

func (p *Parser) emitReturn() {
	if p.cur.kind == typeInitializer {
		p.emitBytes(op(bytecode.OpGetLocal), 0) // re-push `this`
	} else {
		p.emitByte(op(bytecode.OpNil))
	}
	p.emitByte(op(bytecode.OpReturn))
}

// emitJump emits op followed by a placeholder 2-byte offset and returns
// the offset of the first placeholder byte, to be patched later.
func (p *Parser) emitJump(op byte) int {
	p.emitByte(op)
	p.emitByte(0xff)
	p.emitByte(0xff)
	return len(p.chunk().Code) - 2
}

func (p *Parser) patchJump(offset int) {
	jump := len(p.chunk().Code) - offset - 2
	if jump > 0xffff {
		p.error("Too much code to jump over.")
	}
	p.chunk().Code[offset] = byte(jump >> 8)
	p.chunk().Code[offset+1] = byte(jump)
}

func (p *Parser) emitLoop(loopStart int) {
	p.emitByte(op(bytecode.OpJmpBack))
	offset := len(p.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		p.error("Loop body too large.")
	}
	p.emitByte(byte(offset >> 8))
	p.emitByte(byte(offset))
}

func (p *Parser) makeConstant(v value.Value) byte {
	if len(p.chunk().Constants) > 0xff {
		p.error("Too many constants in one chunk.")
		return 0
	}
	return byte(p.chunk().AddConstant(v))
}

func (p *Parser) emitConstant(v value.Value) {
	p.emitBytes(op(bytecode.OpConstant), p.makeConstant(v))
}

// op converts an OpCode to the raw byte written into a chunk.
func op(o bytecode.OpCode) byte { return byte(o) }

func (p *Parser) identifierConstant(name string) byte {
	return p.makeConstant(value.FromObject(p.heap.InternString(name)))
}

func funcValue(fn *value.FunctionObj) value.Value { return value.FromObject(fn) }

func (p *Parser) internString(s string) *value.StringObj { return p.heap.InternString(s) }
