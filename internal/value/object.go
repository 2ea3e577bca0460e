package value

// ObjectKind tags the concrete type behind an Obj.
type ObjectKind uint8

const (
	OString ObjectKind = iota
	OFunction
	OUpvalue
	OClosure
	ONative
	OClass
	OInstance
	OBoundMethod
)

// Object is the common header every heap object carries: its kind, a
// precomputed hash, the GC mark bit, and the intrusive next-in-heap link
// the allocator threads through every live allocation.
type Object struct {
	Kind   ObjectKind
	Hash   uint64
	Marked bool
	Next   Obj
}

// Obj is implemented by every heap object. header returns the embedded
// Object so the heap and GC can operate on any kind generically.
type Obj interface {
	header() *Object
}

func (o *Object) header() *Object { return o }

// objectsEqual implements the per-kind equality contract from spec.md
// section 3: strings compare by content, everything else by identity.
func objectsEqual(a, b Obj) bool {
	as, aok := a.(*StringObj)
	bs, bok := b.(*StringObj)
	if aok && bok {
		return as.Chars == bs.Chars
	}
	return a == b
}

// StringObj is an interned, immutable byte string.
type StringObj struct {
	Object
	Chars string
}

// NewStringObj builds an uninterned string object with its hash computed.
// Interning (by content) is the Heap's responsibility, not this
// constructor's; see internal/heap.
func NewStringObj(s string) *StringObj {
	so := &StringObj{Chars: s}
	so.Kind = OString
	so.Hash = fnv1aString(s)
	return so
}

// FunctionObj is a compiled function prototype: immutable once the
// compiler finishes with it. Chunk is vela's bytecode container (section
// 4.1 of spec.md); the compiler owns writing it, the VM only ever reads
// it.
type FunctionObj struct {
	Object
	Name         string
	Arity        int
	UpvalueCount int
	Chunk        Chunk
	IsInit       bool // true for a class's init() method, for return-rewriting
}

func NewFunctionObj(name string, id uint64) *FunctionObj {
	f := &FunctionObj{Name: name}
	f.Kind = OFunction
	f.Hash = fnv1a(idBytes(id))
	return f
}

// UpvalueObj is either open (Location points at a live stack slot) or
// closed (it owns Closed, the lifted-off-stack copy). StackIndex is only
// meaningful while Open, used by the VM to keep its open-upvalue list
// sorted by descending stack address.
type UpvalueObj struct {
	Object
	Open       bool
	StackIndex int
	Location   *Value
	Closed     Value
	NextOpen   *UpvalueObj // intrusive link in the VM's open-upvalue list
}

func NewUpvalueObj(id uint64) *UpvalueObj {
	u := &UpvalueObj{}
	u.Kind = OUpvalue
	u.Hash = fnv1a(idBytes(id))
	return u
}

// Get reads through the upvalue to its current location (stack slot while
// open, owned storage while closed).
func (u *UpvalueObj) Get() Value {
	if u.Open {
		return *u.Location
	}
	return u.Closed
}

// Set writes through the upvalue to its current location.
func (u *UpvalueObj) Set(v Value) {
	if u.Open {
		*u.Location = v
		return
	}
	u.Closed = v
}

// Close lifts the captured value off the stack and onto the upvalue
// itself, redirecting Location to its own storage.
func (u *UpvalueObj) Close() {
	if !u.Open {
		return
	}
	u.Closed = *u.Location
	u.Open = false
	u.Location = &u.Closed
}

// ClosureObj binds a FunctionObj prototype to a concrete set of captured
// upvalues, fixed at the moment OP_CLOSURE runs.
type ClosureObj struct {
	Object
	Proto    *FunctionObj
	Upvalues []*UpvalueObj
}

func NewClosureObj(proto *FunctionObj, id uint64) *ClosureObj {
	c := &ClosureObj{Proto: proto, Upvalues: make([]*UpvalueObj, proto.UpvalueCount)}
	c.Kind = OClosure
	c.Hash = fnv1a(idBytes(id))
	return c
}

// NativeFn is a host function exposed to scripts. It receives exactly
// Arity values (the VM enforces arity before calling) and must not retain
// args past return (spec.md section 5).
type NativeFn func(args []Value) (Value, error)

type NativeObj struct {
	Object
	Name  string
	Arity int
	Fn    NativeFn
}

func NewNativeObj(name string, arity int, fn NativeFn, id uint64) *NativeObj {
	n := &NativeObj{Name: name, Arity: arity, Fn: fn}
	n.Kind = ONative
	n.Hash = fnv1a(idBytes(id))
	return n
}

// ClassObj carries a method table plus MethodOrder, the insertion-ordered
// name list OP_DERIVE copies from to keep superclass-method inheritance
// deterministic regardless of map iteration order (spec.md section 5).
type ClassObj struct {
	Object
	Name        string
	Methods     map[string]*ClosureObj
	MethodOrder []string
}

func NewClassObj(name string, id uint64) *ClassObj {
	c := &ClassObj{Name: name, Methods: make(map[string]*ClosureObj)}
	c.Kind = OClass
	c.Hash = fnv1a(idBytes(id))
	return c
}

// SetMethod installs or overrides a method, appending to MethodOrder only
// the first time a name is defined.
func (c *ClassObj) SetMethod(name string, closure *ClosureObj) {
	if _, exists := c.Methods[name]; !exists {
		c.MethodOrder = append(c.MethodOrder, name)
	}
	c.Methods[name] = closure
}

// InheritFrom copies super's methods into c in super's definition order
// (OP_DERIVE). Methods c already defines (e.g. from a prior OP_DERIVE of
// a different ancestor) are not overwritten.
func (c *ClassObj) InheritFrom(super *ClassObj) {
	for _, name := range super.MethodOrder {
		if _, exists := c.Methods[name]; !exists {
			c.SetMethod(name, super.Methods[name])
		}
	}
}

// InstanceObj is an open-ended bag of fields plus a class pointer for
// method resolution.
type InstanceObj struct {
	Object
	Class  *ClassObj
	Fields map[string]Value
}

func NewInstanceObj(class *ClassObj, id uint64) *InstanceObj {
	i := &InstanceObj{Class: class, Fields: make(map[string]Value)}
	i.Kind = OInstance
	i.Hash = fnv1a(idBytes(id))
	return i
}

// BoundMethodObj pairs a method closure with the receiver it was looked up
// on, created by a property read or by GET_SUPER.
type BoundMethodObj struct {
	Object
	Method   *ClosureObj
	Receiver Value
}

func NewBoundMethodObj(method *ClosureObj, receiver Value, id uint64) *BoundMethodObj {
	b := &BoundMethodObj{Method: method, Receiver: receiver}
	b.Kind = OBoundMethod
	b.Hash = fnv1a(idBytes(id))
	return b
}

func idBytes(id uint64) []byte {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(id >> (8 * i))
	}
	return buf[:]
}
