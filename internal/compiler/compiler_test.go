package compiler_test

import (
	"strings"
	"testing"

	"vela/internal/compiler"
	"vela/internal/heap"
)

func compile(t *testing.T, source string) error {
	t.Helper()
	h := heap.New()
	_, err := compiler.Compile([]byte(source), h)
	return err
}

func TestCompilesValidPrograms(t *testing.T) {
	programs := []string{
		`print 1 + 2;`,
		`var x = 1; x = x + 1; print x;`,
		`fun f(a, b) { return a + b; } print f(1, 2);`,
		`class A { m() { return 1; } } print A().m();`,
		`class A {} class B < A {} print B;`,
		`for (var i = 0; i < 3; i = i + 1) { print i; }`,
		`while (false) { print 1; }`,
		`if (true) { print 1; } else { print 2; }`,
	}
	for _, src := range programs {
		if err := compile(t, src); err != nil {
			t.Errorf("unexpected compile error for %q: %v", src, err)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{
		{"unterminated string", `print "hi;`, "Unterminated string"},
		{"missing semicolon", `print 1`, "Expect ';'"},
		{"return at top level", `return 1;`, "Can't return from top-level code"},
		{"self-referential initializer", `{ var a = a; }`, "own initializer"},
		{"this outside class", `print this;`, "Can't use 'this' outside of a class"},
		{"super outside class", `print super.x;`, "Can't use 'super' outside of a class"},
		{"inherit from self", `class A < A {}`, "can't inherit from itself"},
		{"init returns value", `class A { init() { return 1; } }`, "Can't return a value from an initializer"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := compile(t, c.src)
			if err == nil {
				t.Fatalf("expected a compile error for %q", c.src)
			}
			if !strings.Contains(strings.ToLower(err.Error()), strings.ToLower(c.want)) {
				t.Errorf("error %q does not contain %q", err.Error(), c.want)
			}
		})
	}
}

func Test256thLocalIsCompileError(t *testing.T) {
	var src strings.Builder
	src.WriteString("fun f() {\n")
	for i := 0; i < 256; i++ {
		src.WriteString("var v" + itoa(i) + " = 0;\n")
	}
	src.WriteString("}\n")

	err := compile(t, src.String())
	if err == nil {
		t.Fatal("expected a compile error for a 256th local in one scope")
	}
	if !strings.Contains(err.Error(), "Too many local variables") {
		t.Errorf("error %q does not mention too many locals", err.Error())
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
