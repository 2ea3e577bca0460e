package hashmap

import (
	"testing"

	"vela/internal/value"
)

func TestSetGetDelete(t *testing.T) {
	m := New()
	key := value.FromObject(value.NewStringObj("x"))

	if _, ok := m.Get(key); ok {
		t.Fatal("empty map should not find key")
	}

	m.Set(key, value.Number(42))
	got, ok := m.Get(key)
	if !ok || got.AsNumber() != 42 {
		t.Fatalf("Get after Set = %v, %v; want 42, true", got, ok)
	}

	if !m.Delete(key) {
		t.Fatal("Delete should report the key was present")
	}
	if _, ok := m.Get(key); ok {
		t.Fatal("key should be gone after Delete")
	}
}

func TestTombstoneReinsert(t *testing.T) {
	m := New()
	a := value.FromObject(value.NewStringObj("a"))
	b := value.FromObject(value.NewStringObj("b"))

	m.Set(a, value.Number(1))
	m.Set(b, value.Number(2))
	m.Delete(a)
	m.Set(a, value.Number(3))

	got, ok := m.Get(a)
	if !ok || got.AsNumber() != 3 {
		t.Fatalf("re-inserted key after tombstone = %v, %v; want 3, true", got, ok)
	}
	got, ok = m.Get(b)
	if !ok || got.AsNumber() != 2 {
		t.Fatalf("unrelated key disturbed by tombstone path: %v, %v", got, ok)
	}
}

func TestGrowsPastLoadFactor(t *testing.T) {
	m := New()
	for i := 0; i < 100; i++ {
		key := value.FromObject(value.NewStringObj(string(rune('a' + i%26)) + string(rune(i))))
		m.Set(key, value.Number(float64(i)))
	}
	if m.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", m.Len())
	}
}

func TestIterateVisitsAllLiveEntries(t *testing.T) {
	m := New()
	want := map[string]float64{"a": 1, "b": 2, "c": 3}
	for k, v := range want {
		m.Set(value.FromObject(value.NewStringObj(k)), value.Number(v))
	}

	seen := map[string]float64{}
	m.Iterate(func(k, v value.Value) {
		seen[k.AsObject().(*value.StringObj).Chars] = v.AsNumber()
	})

	if len(seen) != len(want) {
		t.Fatalf("Iterate visited %d entries, want %d", len(seen), len(want))
	}
	for k, v := range want {
		if seen[k] != v {
			t.Errorf("entry %q = %v, want %v", k, seen[k], v)
		}
	}
}
