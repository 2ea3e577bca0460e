package vm_test

import (
	"bytes"
	"strings"
	"testing"

	"vela/internal/compiler"
	"vela/internal/heap"
	"vela/internal/vm"
)

func run(t *testing.T, source string) string {
	t.Helper()
	h := heap.New()
	var out bytes.Buffer
	v := vm.New(h, &out)

	fn, err := compiler.Compile([]byte(source), h)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	if err := v.Run(fn); err != nil {
		t.Fatalf("runtime error: %v", err)
	}
	return out.String()
}

func TestArithmetic(t *testing.T) {
	got := run(t, `print 1 + 2 * 3;`)
	if strings.TrimSpace(got) != "7" {
		t.Errorf("got %q, want 7", got)
	}
}

func TestStringConcat(t *testing.T) {
	got := run(t, `print "foo" + "bar";`)
	if strings.TrimSpace(got) != "foobar" {
		t.Errorf("got %q, want foobar", got)
	}
}

func TestClosureCounter(t *testing.T) {
	src := `
fun makeCounter() { var c = 0; fun inc() { c = c + 1; return c; } return inc; }
var n = makeCounter();
print n(); print n(); print n();
`
	got := strings.Fields(run(t, src))
	want := []string{"1", "2", "3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestClassInheritanceAndSuper(t *testing.T) {
	src := `
class A { greet() { print "A"; } }
class B < A { greet() { super.greet(); print "B"; } }
B().greet();
`
	got := strings.Fields(run(t, src))
	want := []string{"A", "B"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestInitAndField(t *testing.T) {
	src := `
class P { init(x) { this.x = x; } }
print P(42).x;
`
	got := strings.TrimSpace(run(t, src))
	if got != "42" {
		t.Errorf("got %q, want 42", got)
	}
}

func TestShortCircuit(t *testing.T) {
	src := `
fun boom() { print "boom"; return true; }
print false and boom();
print true or boom();
`
	got := strings.Fields(run(t, src))
	want := []string{"false", "true"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("got %v, want %v (boom() must not have printed)", got, want)
	}
}

func TestArityMismatchNamesExpectedAndActual(t *testing.T) {
	h := heap.New()
	var out bytes.Buffer
	v := vm.New(h, &out)
	fn, err := compiler.Compile([]byte(`fun f(a, b) { return a + b; } f(1);`), h)
	if err != nil {
		t.Fatalf("compile error: %v", err)
	}
	err = v.Run(fn)
	if err == nil {
		t.Fatal("expected a runtime error for arity mismatch")
	}
	if !strings.Contains(err.Error(), "Expected 2 arguments but got 1") {
		t.Errorf("error %q does not name both expected and actual counts", err.Error())
	}
}

func TestDeeplyNestedClosures(t *testing.T) {
	const depth = 64
	// Build a chain of depth nested functions, each returning the next
	// level's call, with the innermost reading a local captured through
	// the whole chain as an upvalue.
	inner := "return v;\n"
	for i := depth - 1; i >= 1; i-- {
		inner = "fun outer" + itoa(i) + "() {\n" + inner + "}\nreturn outer" + itoa(i) + "();\n"
	}
	chain := "fun outer0() {\nvar v = 1;\n" + inner + "}\nprint outer0();\n"

	got := strings.TrimSpace(run(t, chain))
	if got != "1" {
		t.Errorf("deeply nested closure chain = %q, want 1", got)
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}
