// Command vela is the CLI entry point: no args starts the REPL, one arg
// runs a script file, anything else prints usage. Exit codes follow
// spec.md section 6: 74 on read/compile I/O failure, 65 on other compile
// error, 70 on runtime error, 64 on bad invocation.
package main

import (
	"fmt"
	"os"

	"vela/internal/compiler"
	"vela/internal/heap"
	"vela/internal/natives"
	"vela/internal/repl"
	"vela/internal/vm"
)

func main() {
	args := os.Args[1:]
	switch len(args) {
	case 0:
		repl.Start(os.Stdin, os.Stdout)
	case 1:
		os.Exit(runFile(args[0]))
	default:
		fmt.Fprintln(os.Stderr, "Usage: vela [script]")
		os.Exit(64)
	}
}

func runFile(path string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Could not read file %q: %v\n", path, err)
		return 74
	}

	h := heap.New()
	v := vm.New(h, os.Stdout)
	natives.Register(v)

	fn, err := compiler.Compile(source, h)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 65
	}

	if err := v.Run(fn); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 70
	}
	return 0
}
