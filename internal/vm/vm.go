// Package vm implements vela's stack-based bytecode interpreter: a single
// dispatch loop over call frames, the closure/upvalue open-close
// protocol, method dispatch (including super), and runtime error
// reporting with a stack trace.
package vm

import (
	"fmt"
	"io"
	"time"

	"vela/internal/bytecode"
	verrors "vela/internal/errors"
	"vela/internal/hashmap"
	"vela/internal/heap"
	"vela/internal/value"
)

const stackMax = 1024
const framesMax = 256

type frame struct {
	closure *value.ClosureObj
	ip      int
	base    int // stack index of the callee slot (slot 0 of this frame)
}

// VM is vela's runtime. It owns the value stack, call-frame stack,
// globals, the heap, and the process-wide open-upvalue list. It is not
// safe for concurrent use, matching spec.md's single-threaded execution
// model.
type VM struct {
	stack [stackMax]value.Value
	sp    int

	frames     [framesMax]frame
	frameCount int

	globals *hashmap.Map
	heap    *heap.Heap

	openUpvalues *value.UpvalueObj // sorted by descending stack index

	out   io.Writer
	start time.Time
}

// New builds a VM writing print output to out and registers the standard
// native functions.
func New(h *heap.Heap, out io.Writer) *VM {
	vm := &VM{
		globals: hashmap.New(),
		heap:    h,
		out:     out,
		start:   time.Now(),
	}
	h.SetRoots(vm)
	vm.registerNatives()
	return vm
}

// Globals exposes the global table so natives packages can install
// additional bindings before Run.
func (vm *VM) Globals() *hashmap.Map { return vm.globals }

// Heap exposes the owning heap so natives can allocate objects.
func (vm *VM) Heap() *heap.Heap { return vm.heap }

func (vm *VM) push(v value.Value) {
	if vm.sp >= stackMax {
		panic("vm: stack overflow")
	}
	vm.stack[vm.sp] = v
	vm.sp++
}

func (vm *VM) pop() value.Value {
	vm.sp--
	return vm.stack[vm.sp]
}

func (vm *VM) peek(distance int) value.Value {
	return vm.stack[vm.sp-1-distance]
}

func (vm *VM) currentFrame() *frame { return &vm.frames[vm.frameCount-1] }

func (vm *VM) chunk() *value.Chunk { return &vm.currentFrame().closure.Proto.Chunk }

// Run compiles-output entry point: wraps fn as a closure, calls it, and
// drives the dispatch loop until the outermost script frame returns.
func (vm *VM) Run(fn *value.FunctionObj) error {
	closure := vm.heap.NewClosure(fn)
	vm.push(value.FromObject(closure))
	if err := vm.call(closure, 0); err != nil {
		return err
	}
	return vm.run()
}

func (vm *VM) run() error {
	for {
		f := vm.currentFrame()
		c := vm.chunk()
		instruction := bytecode.OpCode(c.Code[f.ip])
		f.ip++

		switch instruction {
		case bytecode.OpConstant:
			vm.push(c.Constants[vm.readByte()])

		case bytecode.OpNil:
			vm.push(value.Nil())
		case bytecode.OpTrue:
			vm.push(value.Bool(true))
		case bytecode.OpFalse:
			vm.push(value.Bool(false))

		case bytecode.OpNegative:
			v := vm.pop()
			if !v.IsNumber() {
				return vm.runtimeError("Operand must be a number.")
			}
			vm.push(value.Number(-v.AsNumber()))

		case bytecode.OpNot, bytecode.OpBang:
			v := vm.pop()
			vm.push(value.Bool(!v.Truthy()))

		case bytecode.OpAdd:
			if err := vm.add(); err != nil {
				return err
			}
		case bytecode.OpMinus:
			if err := vm.numericBinary(instruction); err != nil {
				return err
			}
		case bytecode.OpMul:
			if err := vm.numericBinary(instruction); err != nil {
				return err
			}
		case bytecode.OpDiv:
			if err := vm.numericBinary(instruction); err != nil {
				return err
			}

		case bytecode.OpEqualEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(value.Equal(a, b)))
		case bytecode.OpBangEqual:
			b, a := vm.pop(), vm.pop()
			vm.push(value.Bool(!value.Equal(a, b)))

		case bytecode.OpLess, bytecode.OpLessEqual, bytecode.OpGreater, bytecode.OpGreaterEqual:
			if err := vm.numericBinary(instruction); err != nil {
				return err
			}

		case bytecode.OpPrint:
			v := vm.pop()
			fmt.Fprintln(vm.out, vm.format(v))

		case bytecode.OpPop:
			vm.pop()

		case bytecode.OpClose:
			vm.closeUpvalues(vm.sp - 1)
			vm.pop()

		case bytecode.OpGlobal:
			name := c.Constants[vm.readByte()]
			vm.globals.Set(name, vm.pop())

		case bytecode.OpSetGlobal:
			name := c.Constants[vm.readByte()]
			if _, ok := vm.globals.Get(name); !ok {
				return vm.runtimeError("Undefined variable '%s'.", vm.stringOf(name))
			}
			vm.globals.Set(name, vm.peek(0))

		case bytecode.OpGetGlobal:
			name := c.Constants[vm.readByte()]
			v, ok := vm.globals.Get(name)
			if !ok {
				return vm.runtimeError("Undefined variable '%s'.", vm.stringOf(name))
			}
			vm.push(v)

		case bytecode.OpSetLocal:
			slot := vm.readByte()
			vm.stack[f.base+int(slot)] = vm.peek(0)
		case bytecode.OpGetLocal:
			slot := vm.readByte()
			vm.push(vm.stack[f.base+int(slot)])

		case bytecode.OpSetUpvalue:
			idx := vm.readByte()
			f.closure.Upvalues[idx].Set(vm.peek(0))
		case bytecode.OpGetUpvalue:
			idx := vm.readByte()
			vm.push(f.closure.Upvalues[idx].Get())

		case bytecode.OpJmp:
			offset := vm.readShort()
			f.ip += offset
		case bytecode.OpJmpOnFalse:
			offset := vm.readShort()
			if !vm.peek(0).Truthy() {
				f.ip += offset
			}
		case bytecode.OpJmpBack:
			offset := vm.readShort()
			f.ip -= offset

		case bytecode.OpClosure:
			if err := vm.opClosure(); err != nil {
				return err
			}

		case bytecode.OpCall:
			argc := int(vm.readByte())
			if err := vm.callValue(vm.peek(argc), argc); err != nil {
				return err
			}

		case bytecode.OpReturn:
			result := vm.pop()
			vm.closeUpvalues(f.base)
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.pop() // discard the script closure
				return nil
			}
			vm.sp = f.base
			vm.push(result)

		case bytecode.OpClass:
			name := c.Constants[vm.readByte()]
			vm.push(value.FromObject(vm.heap.NewClass(vm.stringOf(name))))

		case bytecode.OpDerive:
			if err := vm.opDerive(); err != nil {
				return err
			}

		case bytecode.OpMethod:
			name := vm.stringOf(c.Constants[vm.readByte()])
			method := vm.pop()
			class := vm.peek(0).AsObject().(*value.ClassObj)
			class.SetMethod(name, method.AsObject().(*value.ClosureObj))

		case bytecode.OpGetField:
			if err := vm.opGetField(); err != nil {
				return err
			}

		case bytecode.OpSetField:
			if err := vm.opSetField(); err != nil {
				return err
			}

		case bytecode.OpInvoke:
			if err := vm.opInvoke(); err != nil {
				return err
			}

		case bytecode.OpGetSuper:
			if err := vm.opGetSuper(); err != nil {
				return err
			}

		default:
			return vm.runtimeError("Unknown opcode %d.", byte(instruction))
		}
	}
}

func (vm *VM) readByte() byte {
	f := vm.currentFrame()
	b := vm.chunk().Code[f.ip]
	f.ip++
	return b
}

func (vm *VM) readShort() int {
	hi := vm.readByte()
	lo := vm.readByte()
	return int(hi)<<8 | int(lo)
}

func (vm *VM) stringOf(v value.Value) string {
	return v.AsObject().(*value.StringObj).Chars
}

func (vm *VM) add() error {
	b, a := vm.pop(), vm.pop()
	switch {
	case a.IsNumber() && b.IsNumber():
		vm.push(value.Number(a.AsNumber() + b.AsNumber()))
	case isString(a) && isString(b):
		concat := vm.stringOf(a) + vm.stringOf(b)
		vm.push(value.FromObject(vm.heap.InternString(concat)))
	default:
		return vm.runtimeError("Operands must be two numbers or two strings.")
	}
	return nil
}

func isString(v value.Value) bool {
	if !v.IsObject() {
		return false
	}
	_, ok := v.AsObject().(*value.StringObj)
	return ok
}

func (vm *VM) numericBinary(op bytecode.OpCode) error {
	b, a := vm.pop(), vm.pop()
	if !a.IsNumber() || !b.IsNumber() {
		return vm.runtimeError("Operands must be numbers.")
	}
	x, y := a.AsNumber(), b.AsNumber()
	switch op {
	case bytecode.OpMinus:
		vm.push(value.Number(x - y))
	case bytecode.OpMul:
		vm.push(value.Number(x * y))
	case bytecode.OpDiv:
		vm.push(value.Number(x / y))
	case bytecode.OpLess:
		vm.push(value.Bool(x < y))
	case bytecode.OpLessEqual:
		vm.push(value.Bool(x <= y))
	case bytecode.OpGreater:
		vm.push(value.Bool(x > y))
	case bytecode.OpGreaterEqual:
		vm.push(value.Bool(x >= y))
	}
	return nil
}

// runtimeError builds a RuntimeError carrying the current call stack,
// innermost frame first, per spec.md section 7/4.5.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	msg := fmt.Sprintf(format, args...)
	frames := make([]verrors.Frame, 0, vm.frameCount)
	for i := vm.frameCount - 1; i >= 0; i-- {
		fr := vm.frames[i]
		line := fr.closure.Proto.Chunk.LineFor(fr.ip - 1)
		frames = append(frames, verrors.Frame{Name: fr.closure.Proto.Name, Line: line})
	}
	return verrors.NewRuntimeError(msg, frames)
}

// format renders a Value for `print`, following spec.md's value model
// (numbers print like Go's default float formatting minus trailing
// zeros handled by strconv, strings print raw, objects print a short
// descriptive form).
func (vm *VM) format(v value.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return formatNumber(v.AsNumber())
	case v.IsObject():
		return vm.formatObject(v.AsObject())
	default:
		return ""
	}
}

func (vm *VM) formatObject(o value.Obj) string {
	switch obj := o.(type) {
	case *value.StringObj:
		return obj.Chars
	case *value.FunctionObj:
		if obj.Name == "" {
			return "<script>"
		}
		return "<fn " + obj.Name + ">"
	case *value.ClosureObj:
		return vm.formatObject(obj.Proto)
	case *value.NativeObj:
		return "<native fn>"
	case *value.ClassObj:
		return obj.Name
	case *value.InstanceObj:
		return obj.Class.Name + " instance"
	case *value.BoundMethodObj:
		return vm.formatObject(obj.Method)
	default:
		return "<object>"
	}
}
