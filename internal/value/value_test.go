package value

import "testing"

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		v    Value
		want bool
	}{
		{"nil", Nil(), false},
		{"false", Bool(false), false},
		{"true", Bool(true), true},
		{"zero", Number(0), true},
		{"string", FromObject(NewStringObj("")), true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.v.Truthy(); got != c.want {
				t.Errorf("Truthy() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestEqualRequiresSameKind(t *testing.T) {
	if Equal(Number(0), Bool(false)) {
		t.Error("Number(0) should not equal Bool(false)")
	}
	if Equal(Nil(), Bool(false)) {
		t.Error("Nil should not equal Bool(false)")
	}
}

func TestEqualStringsByContent(t *testing.T) {
	a := FromObject(NewStringObj("hi"))
	b := FromObject(NewStringObj("hi"))
	if !Equal(a, b) {
		t.Error("two distinct StringObj with equal content should be Value-equal")
	}
	if Hash(a) != Hash(b) {
		t.Error("value_equal(a,b) must imply value_hash(a) == value_hash(b)")
	}
}

func TestEqualObjectsByIdentity(t *testing.T) {
	c1 := FromObject(NewClassObj("A", 1))
	c2 := FromObject(NewClassObj("A", 2))
	if Equal(c1, c2) {
		t.Error("two distinct ClassObj with the same name must not be equal")
	}
	if !Equal(c1, c1) {
		t.Error("a class must equal itself")
	}
}

func TestHashNumberStable(t *testing.T) {
	a := Number(3.25)
	b := Number(3.25)
	if Hash(a) != Hash(b) {
		t.Error("equal numbers must hash equally")
	}
	if Hash(Number(3.25)) == Hash(Number(3.26)) {
		t.Error("different numbers hashed to the same bucket unexpectedly (not a correctness bug, but suspicious for this test's inputs)")
	}
}

func TestHashBoolAndNil(t *testing.T) {
	if Hash(Nil()) != 0 {
		t.Error("Nil must hash to 0")
	}
	if Hash(Bool(false)) != 0 {
		t.Error("Bool(false) must hash to 0")
	}
	if Hash(Bool(true)) != 1 {
		t.Error("Bool(true) must hash to 1")
	}
}
