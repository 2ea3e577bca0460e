package compiler

import "vela/internal/bytecode"

func (p *Parser) beginScope() { p.cur.scopeDepth++ }

// endScope pops every local declared in the scope just closed. Captured
// locals are closed (OP_CLOSE) rather than merely popped (OP_POP) so any
// closure still holding them keeps a valid copy after they leave the
// stack.
func (p *Parser) endScope() {
	fs := p.cur
	fs.scopeDepth--
	for len(fs.locals) > 0 && fs.locals[len(fs.locals)-1].depth > fs.scopeDepth {
		last := fs.locals[len(fs.locals)-1]
		if last.isCaptured {
			p.emitByte(op(bytecode.OpClose))
		} else {
			p.emitByte(op(bytecode.OpPop))
		}
		fs.locals = fs.locals[:len(fs.locals)-1]
	}
}

// declareVariable registers the variable named by p.previous as a new
// local in the current scope. Does nothing at global scope, where names
// are resolved dynamically via the globals map instead.
func (p *Parser) declareVariable(name string) {
	if p.cur.scopeDepth == 0 {
		return
	}
	for i := len(p.cur.locals) - 1; i >= 0; i-- {
		l := p.cur.locals[i]
		if l.depth != -1 && l.depth < p.cur.scopeDepth {
			break
		}
		if l.name == name {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *Parser) addLocal(name string) {
	if len(p.cur.locals) >= maxLocals {
		p.error("Too many local variables in function.")
		return
	}
	// depth -1 marks "declared but not yet initialized", enforcing the
	// own-initializer rule: resolveLocal reports an error when it finds one.
	p.cur.locals = append(p.cur.locals, local{name: name, depth: -1})
}

func (p *Parser) markInitialized() {
	if p.cur.scopeDepth == 0 {
		return
	}
	p.cur.locals[len(p.cur.locals)-1].depth = p.cur.scopeDepth
}

func (p *Parser) resolveLocal(fs *funcState, name string) (int, bool) {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		l := fs.locals[i]
		if l.name == name {
			if l.depth == -1 {
				p.error("Can't read local variable in its own initializer.")
			}
			return i, true
		}
	}
	return 0, false
}

// resolveUpvalue walks the enclosing-function chain to find name as a
// captured variable, adding upvalue entries along the way and marking the
// originating local as captured so endScope emits OP_CLOSE for it.
func (p *Parser) resolveUpvalue(fs *funcState, name string) (int, bool) {
	if fs.enclosing == nil {
		return 0, false
	}
	if idx, ok := p.resolveLocal(fs.enclosing, name); ok {
		fs.enclosing.locals[idx].isCaptured = true
		return p.addUpvalue(fs, uint8(idx), true), true
	}
	if idx, ok := p.resolveUpvalue(fs.enclosing, name); ok {
		return p.addUpvalue(fs, uint8(idx), false), true
	}
	return 0, false
}

func (p *Parser) addUpvalue(fs *funcState, index uint8, isLocal bool) int {
	for i, uv := range fs.upvalues {
		if uv.index == index && uv.isLocal == isLocal {
			return i
		}
	}
	if len(fs.upvalues) >= maxLocals {
		p.error("Too many closure variables in function.")
		return 0
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(fs.upvalues) - 1
}
