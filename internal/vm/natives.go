package vm

import (
	"strconv"
	"time"

	"vela/internal/value"
)

// registerNatives installs the one native spec.md requires: clock().
func (vm *VM) registerNatives() {
	vm.Register("clock", 0, func(args []value.Value) (value.Value, error) {
		return value.Number(time.Since(vm.start).Seconds()), nil
	})
}

// Register installs a native function under name in globals, for use by
// both the core VM and the internal/natives registry that layers
// database and network bindings on top.
func (vm *VM) Register(name string, arity int, fn value.NativeFn) {
	native := vm.heap.NewNative(name, arity, fn)
	key := value.FromObject(vm.heap.InternString(name))
	vm.globals.Set(key, value.FromObject(native))
}

// formatNumber renders a float64 the way vela's `print` does: integral
// values print without a trailing ".0", matching common scripting-language
// output conventions; everything else uses Go's shortest round-trip form.
func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', -1, 64)
}
