// Package natives wires vela's optional native-function surface — beyond
// the single clock() the core VM always registers — onto a VM instance.
// It mirrors the teacher's stdlib.RegisterDatabaseFunctions(vm) pattern:
// a package-level Register function that installs closures capturing the
// vm.VM they're bound to.
package natives

import (
	"github.com/google/uuid"

	"vela/internal/natives/database"
	"vela/internal/natives/net"
	"vela/internal/value"
	"vela/internal/vm"
)

// Register installs every optional native binding (random UUIDs, SQL
// database access, websocket transport) onto v. Scripts that never call
// them pay no cost; natives are plain global functions, resolved through
// the same OP_GET_GLOBAL path as any user-defined function.
func Register(v *vm.VM) {
	registerUUID(v)
	database.Register(v)
	net.Register(v)
}

func registerUUID(v *vm.VM) {
	v.Register("uuid", 0, func(args []value.Value) (value.Value, error) {
		id := uuid.New()
		return value.FromObject(v.Heap().InternString(id.String())), nil
	})
}
