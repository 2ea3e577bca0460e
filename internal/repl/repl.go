// Package repl implements vela's interactive prompt: one line of source
// compiled and run per prompt, sharing a single VM and heap across lines
// so globals and classes persist for the session.
package repl

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"

	"vela/internal/compiler"
	"vela/internal/heap"
	"vela/internal/natives"
	"vela/internal/vm"
)

// Start runs the REPL loop against in/out until EOF, matching spec.md
// section 6: prompt "> ", one line per compile+run cycle, EOF ends.
// The prompt itself is suppressed when stdin isn't a terminal (e.g. piped
// input or test harnesses), so redirected-input runs don't interleave
// prompt text with output.
func Start(in *os.File, out io.Writer) {
	interactive := isatty.IsTerminal(in.Fd()) || isatty.IsCygwinTerminal(in.Fd())

	h := heap.New()
	v := vm.New(h, out)
	natives.Register(v)

	scanner := bufio.NewScanner(in)
	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()

		fn, err := compiler.Compile([]byte(line), h)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			continue
		}
		if err := v.Run(fn); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}
