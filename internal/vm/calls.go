package vm

import (
	"github.com/dustin/go-humanize"

	"vela/internal/value"
)

// arityError renders an argument-count mismatch, running both counts
// through go-humanize so large arities (e.g. a native taking hundreds of
// fixed arguments) print with thousands separators like the rest of
// vela's diagnostics rather than a bare digit run.
func arityError(expected, got int) string {
	return "Expected " + humanize.Comma(int64(expected)) + " arguments but got " + humanize.Comma(int64(got)) + "."
}

// callValue implements spec.md section 4.5's call convention: the stack
// layout is "... callee arg1 ... argn" and callee is inspected to decide
// how to dispatch.
func (vm *VM) callValue(callee value.Value, argc int) error {
	if !callee.IsObject() {
		return vm.runtimeError("Can only call functions and classes.")
	}
	switch obj := callee.AsObject().(type) {
	case *value.ClosureObj:
		return vm.call(obj, argc)
	case *value.NativeObj:
		return vm.callNative(obj, argc)
	case *value.ClassObj:
		return vm.instantiate(obj, argc)
	case *value.BoundMethodObj:
		// Replace the callee slot with the bound receiver so slot 0 of
		// the new frame is `this`.
		vm.stack[vm.sp-argc-1] = obj.Receiver
		return vm.call(obj.Method, argc)
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

func (vm *VM) call(closure *value.ClosureObj, argc int) error {
	if argc != closure.Proto.Arity {
		return vm.runtimeError("%s", arityError(closure.Proto.Arity, argc))
	}
	if vm.frameCount >= framesMax {
		return vm.runtimeError("Stack overflow.")
	}
	vm.frames[vm.frameCount] = frame{
		closure: closure,
		ip:      0,
		base:    vm.sp - argc - 1,
	}
	vm.frameCount++
	return nil
}

func (vm *VM) callNative(native *value.NativeObj, argc int) error {
	if argc != native.Arity {
		return vm.runtimeError("%s", arityError(native.Arity, argc))
	}
	args := vm.stack[vm.sp-argc : vm.sp]
	result, err := native.Fn(args)
	if err != nil {
		return vm.runtimeError("%s", err.Error())
	}
	vm.sp -= argc + 1
	vm.push(result)
	return nil
}

func (vm *VM) instantiate(class *value.ClassObj, argc int) error {
	instance := vm.heap.NewInstance(class)
	vm.stack[vm.sp-argc-1] = value.FromObject(instance)
	if init, ok := class.Methods["init"]; ok {
		return vm.call(init, argc)
	}
	if argc != 0 {
		return vm.runtimeError("%s", arityError(0, argc))
	}
	return nil
}

// opClosure implements OP_CLOSURE: build a Closure over the constant-pool
// function prototype, then read (idx, is_local) pairs to bind each
// upvalue, capturing live stack locals or copying from the enclosing
// closure as spec.md section 4.5 describes.
func (vm *VM) opClosure() error {
	protoVal := vm.chunk().Constants[vm.readByte()]
	proto := protoVal.AsObject().(*value.FunctionObj)
	closure := vm.heap.NewClosure(proto)

	enclosing := vm.currentFrame().closure
	for i := 0; i < proto.UpvalueCount; i++ {
		idx := vm.readByte()
		isLocal := vm.readByte()
		if isLocal != 0 {
			closure.Upvalues[i] = vm.captureUpvalue(vm.currentFrame().base + int(idx))
		} else {
			closure.Upvalues[i] = enclosing.Upvalues[idx]
		}
	}
	vm.push(value.FromObject(closure))
	return nil
}

// captureUpvalue finds or creates the open upvalue for the stack slot at
// index, keeping vm.openUpvalues sorted by descending stack index so the
// search (and later close-range scan) can stop early.
func (vm *VM) captureUpvalue(index int) *value.UpvalueObj {
	var prev *value.UpvalueObj
	cur := vm.openUpvalues
	for cur != nil && cur.StackIndex > index {
		prev = cur
		cur = cur.NextOpen
	}
	if cur != nil && cur.StackIndex == index {
		return cur
	}

	created := vm.heap.NewUpvalue(&vm.stack[index], index)
	created.NextOpen = cur
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.NextOpen = created
	}
	return created
}

// closeUpvalues closes every open upvalue at or above stack index from,
// lifting the captured value off the stack before its slot is reused.
func (vm *VM) closeUpvalues(from int) {
	for vm.openUpvalues != nil && vm.openUpvalues.StackIndex >= from {
		uv := vm.openUpvalues
		uv.Close()
		vm.openUpvalues = uv.NextOpen
	}
}

// opDerive implements OP_DERIVE: copy the superclass's methods into the
// subclass, preserving the superclass's definition order regardless of Go
// map iteration order (spec.md section 5's determinism requirement).
func (vm *VM) opDerive() error {
	superVal := vm.peek(1)
	if !superVal.IsObject() {
		return vm.runtimeError("Superclass must be a class.")
	}
	super, ok := superVal.AsObject().(*value.ClassObj)
	if !ok {
		return vm.runtimeError("Superclass must be a class.")
	}
	sub := vm.peek(0).AsObject().(*value.ClassObj)
	sub.InheritFrom(super)
	return nil
}

func (vm *VM) opGetField() error {
	name := vm.stringOf(vm.chunk().Constants[vm.readByte()])
	receiver := vm.peek(0)
	if !receiver.IsObject() {
		return vm.runtimeError("Only instances have properties.")
	}
	inst, ok := receiver.AsObject().(*value.InstanceObj)
	if !ok {
		return vm.runtimeError("Only instances have properties.")
	}
	if fv, ok := inst.Fields[name]; ok {
		vm.pop()
		vm.push(fv)
		return nil
	}
	if method, ok := inst.Class.Methods[name]; ok {
		vm.pop()
		vm.push(value.FromObject(vm.heap.NewBoundMethod(method, receiver)))
		return nil
	}
	return vm.runtimeError("Undefined property '%s'.", name)
}

func (vm *VM) opSetField() error {
	name := vm.stringOf(vm.chunk().Constants[vm.readByte()])
	receiver := vm.peek(1)
	inst, ok := receiver.AsObject().(*value.InstanceObj)
	if !receiver.IsObject() || !ok {
		return vm.runtimeError("Only instances have fields.")
	}
	v := vm.pop()
	inst.Fields[name] = v
	vm.pop() // receiver
	vm.push(v)
	return nil
}

// opInvoke fuses GET_FIELD + CALL: a stored callable field still takes
// priority over a method of the same name, matching opGetField's lookup
// order.
func (vm *VM) opInvoke() error {
	name := vm.stringOf(vm.chunk().Constants[vm.readByte()])
	argc := int(vm.readByte())

	receiver := vm.peek(argc)
	if !receiver.IsObject() {
		return vm.runtimeError("Only instances have methods.")
	}
	inst, ok := receiver.AsObject().(*value.InstanceObj)
	if !ok {
		return vm.runtimeError("Only instances have methods.")
	}
	if fv, ok := inst.Fields[name]; ok {
		vm.stack[vm.sp-argc-1] = fv
		return vm.callValue(fv, argc)
	}
	method, ok := inst.Class.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name)
	}
	return vm.call(method, argc)
}

// opGetSuper implements GET_SUPER: pops the superclass (pushed by the
// compiler via namedVariable("super", ...)) and this (already handled by
// namedVariable("this", ...) before it), resolving the method on the
// static superclass rather than the receiver's dynamic class.
func (vm *VM) opGetSuper() error {
	name := vm.stringOf(vm.chunk().Constants[vm.readByte()])
	super := vm.pop().AsObject().(*value.ClassObj)
	receiver := vm.pop()

	method, ok := super.Methods[name]
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name)
	}
	vm.push(value.FromObject(vm.heap.NewBoundMethod(method, receiver)))
	return nil
}
