package vm

import "vela/internal/value"

// MarkRoots implements heap.RootProvider: it hands every live Value the
// collector must treat as reachable to mark, per spec.md section 4.6 —
// the stack, every frame's running closure, the globals table, and the
// open-upvalue list. Constant pools are reached transitively once their
// owning FunctionObj is marked (the heap's blacken step walks
// Chunk.Constants), so they are not enumerated here separately.
func (vm *VM) MarkRoots(mark func(value.Value)) {
	for i := 0; i < vm.sp; i++ {
		mark(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		mark(value.FromObject(vm.frames[i].closure))
	}
	vm.globals.Iterate(func(k, v value.Value) {
		mark(k)
		mark(v)
	})
	for uv := vm.openUpvalues; uv != nil; uv = uv.NextOpen {
		mark(value.FromObject(uv))
	}
}
