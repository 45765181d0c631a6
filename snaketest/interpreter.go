// Package snaketest provides an in-memory interpreter for testing code
// built on snakebind without a Python installation.
//
// The Interpreter implements snakebind.Native over reference-counted Go
// objects. It supports the value types snakebind converts (int, float,
// bool, str, bytes, list, tuple, dict and None) plus modules whose
// functions are written in Go. It records reference-count and GIL misuse
// so tests can assert that none happened.
package snaketest

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/richinsley/snakebind"
)

type kind int

const (
	kindNone kind = iota
	kindInt
	kindFloat
	kindBool
	kindStr
	kindBytes
	kindList
	kindTuple
	kindDict
	kindModule
	kindFunc
)

var kindNames = [...]string{
	kindNone:   "NoneType",
	kindInt:    "int",
	kindFloat:  "float",
	kindBool:   "bool",
	kindStr:    "str",
	kindBytes:  "bytes",
	kindList:   "list",
	kindTuple:  "tuple",
	kindDict:   "dict",
	kindModule: "module",
	kindFunc:   "function",
}

func (k kind) String() string { return kindNames[k] }

type object struct {
	kind kind
	refs int64

	// permanent objects (None, modules and their functions) are never freed.
	permanent bool
	freed     bool

	i  int64
	f  float64
	b  bool
	s  string
	by []byte

	// items holds list and tuple slots; a nil slot is unset.
	items []*object

	// dict entries in insertion order.
	keys []*object
	vals []*object

	attrs map[string]*object
	name  string
	fn    Func
}

// Func is a Python function implemented in Go. args and kwargs are
// borrowed; the result is a new reference. A returned
// *snakebind.PythonException is raised as is; any other error is raised as
// RuntimeError.
type Func func(n *Interpreter, args []snakebind.Ref, kwargs map[string]snakebind.Ref) (snakebind.Ref, error)

// Interpreter is an in-memory snakebind.Native.
type Interpreter struct {
	mu      sync.Mutex
	none    *object
	modules map[string]*object
	live    map[*object]struct{}
	calls   map[string]int

	cfg         snakebind.NativeConfig
	initialized bool
	finalized   bool

	// InitializeErr, when set, is returned by Initialize.
	InitializeErr error

	holders    atomic.Int32
	maxHolders atomic.Int32
	inCall     atomic.Int32
	maxInCall  atomic.Int32

	problems []string
}

// New returns an empty interpreter.
func New() *Interpreter {
	return &Interpreter{
		none:    &object{kind: kindNone, refs: 1, permanent: true},
		modules: make(map[string]*object),
		live:    make(map[*object]struct{}),
		calls:   make(map[string]int),
	}
}

// Factory returns a snakebind.NativeFactory that hands out n.
func (n *Interpreter) Factory() snakebind.NativeFactory {
	return func(*snakebind.PythonLocation) (snakebind.Native, error) {
		return n, nil
	}
}

// Define adds a module whose attributes are the given functions. Defining
// an existing module adds to it.
func (n *Interpreter) Define(module string, funcs map[string]Func) {
	n.mu.Lock()
	defer n.mu.Unlock()
	mod, ok := n.modules[module]
	if !ok {
		mod = &object{kind: kindModule, refs: 1, permanent: true, name: module, attrs: make(map[string]*object)}
		n.modules[module] = mod
	}
	for name, fn := range funcs {
		mod.attrs[name] = &object{kind: kindFunc, refs: 1, permanent: true, name: module + "." + name, fn: fn}
	}
}

func ref(o *object) snakebind.Ref {
	return snakebind.Ref(unsafe.Pointer(o))
}

func deref(r snakebind.Ref) *object {
	return (*object)(unsafe.Pointer(r))
}

// problem records misuse. It is called with mu held.
func (n *Interpreter) problem(format string, args ...any) {
	n.problems = append(n.problems, fmt.Sprintf(format, args...))
}

// Problems returns every reference-count or GIL misuse seen so far.
func (n *Interpreter) Problems() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return slices.Clone(n.problems)
}

// enter locks the interpreter state and checks that the GIL is held.
func (n *Interpreter) enter(op string) func() {
	n.mu.Lock()
	if n.holders.Load() == 0 {
		n.problem("%s called without the GIL", op)
	}
	return n.mu.Unlock
}

// get resolves r and records use of a freed or nil reference.
func (n *Interpreter) get(op string, r snakebind.Ref) *object {
	o := deref(r)
	if o == nil {
		n.problem("%s: nil reference", op)
		return n.none
	}
	if o.freed {
		n.problem("%s: use of freed %s", op, o.kind)
	}
	return o
}

func (n *Interpreter) alloc(o *object) *object {
	o.refs = 1
	n.live[o] = struct{}{}
	return o
}

func (n *Interpreter) incref(o *object) {
	o.refs++
}

func (n *Interpreter) decref(o *object) {
	if o.freed {
		return
	}
	o.refs--
	if o.refs < 0 {
		n.problem("reference count of %s went negative", o.kind)
	}
	if o.refs > 0 || o.permanent {
		return
	}
	o.freed = true
	delete(n.live, o)
	for _, c := range o.items {
		if c != nil {
			n.decref(c)
		}
	}
	for _, c := range o.keys {
		n.decref(c)
	}
	for _, c := range o.vals {
		n.decref(c)
	}
}

// LiveObjects returns the number of objects that have not been freed,
// not counting None, modules and functions.
func (n *Interpreter) LiveObjects() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.live)
}

// Calls returns how often each module function was called, keyed by
// "module.function".
func (n *Interpreter) Calls() map[string]int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return maps.Clone(n.calls)
}

// MaxConcurrentGIL returns the largest number of simultaneous GIL holders
// observed. Anything above one is a locking bug.
func (n *Interpreter) MaxConcurrentGIL() int {
	return int(n.maxHolders.Load())
}

// MaxConcurrentCalls returns the largest number of module functions that
// ran at the same time.
func (n *Interpreter) MaxConcurrentCalls() int {
	return int(n.maxInCall.Load())
}

// Config returns the configuration passed to Initialize.
func (n *Interpreter) Config() snakebind.NativeConfig {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.cfg
}

// Finalized reports whether Finalize has been called.
func (n *Interpreter) Finalized() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.finalized
}

func (n *Interpreter) Initialize(cfg snakebind.NativeConfig) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.InitializeErr != nil {
		return n.InitializeErr
	}
	if n.initialized {
		return errors.New("snaketest: interpreter already initialized")
	}
	n.initialized = true
	n.cfg = cfg
	return nil
}

func (n *Interpreter) Finalize() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.holders.Load() != 0 {
		n.problem("finalize called with the GIL held")
	}
	n.finalized = true
	return nil
}

func maxInto(v *atomic.Int32, cur int32) {
	for {
		old := v.Load()
		if cur <= old || v.CompareAndSwap(old, cur) {
			return
		}
	}
}

func (n *Interpreter) EnsureGIL() snakebind.GILState {
	maxInto(&n.maxHolders, n.holders.Add(1))
	return snakebind.GILState(1)
}

func (n *Interpreter) ReleaseGIL(snakebind.GILState) {
	if n.holders.Add(-1) < 0 {
		n.mu.Lock()
		n.problem("GIL released more often than ensured")
		n.mu.Unlock()
	}
}

func (n *Interpreter) IncRef(r snakebind.Ref) {
	defer n.enter("IncRef")()
	n.incref(n.get("IncRef", r))
}

func (n *Interpreter) DecRef(r snakebind.Ref) {
	defer n.enter("DecRef")()
	n.decref(n.get("DecRef", r))
}

func (n *Interpreter) RefCount(r snakebind.Ref) int64 {
	defer n.enter("RefCount")()
	return n.get("RefCount", r).refs
}

func (n *Interpreter) None() snakebind.Ref {
	return ref(n.none)
}

func (n *Interpreter) IsNone(r snakebind.Ref) bool {
	return deref(r) == n.none
}

func (n *Interpreter) TypeName(r snakebind.Ref) string {
	defer n.enter("TypeName")()
	return n.get("TypeName", r).kind.String()
}

// Raise returns a Python exception for a Func to return.
func Raise(exception, format string, args ...any) *snakebind.PythonException {
	return &snakebind.PythonException{Exception: exception, Message: fmt.Sprintf(format, args...)}
}

func typeError(want string, got *object) error {
	return Raise("TypeError", "expected %s, got %s", want, got.kind)
}

func (n *Interpreter) NewInt(v int64) (snakebind.Ref, error) {
	defer n.enter("NewInt")()
	return ref(n.alloc(&object{kind: kindInt, i: v})), nil
}

func (n *Interpreter) AsInt(r snakebind.Ref) (int64, error) {
	defer n.enter("AsInt")()
	o := n.get("AsInt", r)
	switch o.kind {
	case kindInt:
		return o.i, nil
	case kindBool:
		if o.b {
			return 1, nil
		}
		return 0, nil
	}
	return 0, typeError("int", o)
}

func (n *Interpreter) NewFloat(v float64) (snakebind.Ref, error) {
	defer n.enter("NewFloat")()
	return ref(n.alloc(&object{kind: kindFloat, f: v})), nil
}

func (n *Interpreter) AsFloat(r snakebind.Ref) (float64, error) {
	defer n.enter("AsFloat")()
	o := n.get("AsFloat", r)
	switch o.kind {
	case kindFloat:
		return o.f, nil
	case kindInt:
		return float64(o.i), nil
	}
	return 0, typeError("float", o)
}

func (n *Interpreter) NewBool(v bool) (snakebind.Ref, error) {
	defer n.enter("NewBool")()
	return ref(n.alloc(&object{kind: kindBool, b: v})), nil
}

func (n *Interpreter) AsBool(r snakebind.Ref) (bool, error) {
	defer n.enter("AsBool")()
	o := n.get("AsBool", r)
	if o.kind != kindBool {
		return false, typeError("bool", o)
	}
	return o.b, nil
}

func (n *Interpreter) NewStr(v string) (snakebind.Ref, error) {
	defer n.enter("NewStr")()
	return ref(n.alloc(&object{kind: kindStr, s: v})), nil
}

func (n *Interpreter) AsStr(r snakebind.Ref) (string, error) {
	defer n.enter("AsStr")()
	o := n.get("AsStr", r)
	if o.kind != kindStr {
		return "", typeError("str", o)
	}
	return o.s, nil
}

func (n *Interpreter) NewBytes(v []byte) (snakebind.Ref, error) {
	defer n.enter("NewBytes")()
	return ref(n.alloc(&object{kind: kindBytes, by: slices.Clone(v)})), nil
}

func (n *Interpreter) AsBytes(r snakebind.Ref) ([]byte, error) {
	defer n.enter("AsBytes")()
	o := n.get("AsBytes", r)
	if o.kind != kindBytes {
		return nil, typeError("bytes", o)
	}
	return slices.Clone(o.by), nil
}

func (n *Interpreter) newSeq(k kind, size int64) (snakebind.Ref, error) {
	if size < 0 {
		return nil, Raise("SystemError", "negative size")
	}
	return ref(n.alloc(&object{kind: k, items: make([]*object, size)})), nil
}

// setItem steals item, also on failure.
func (n *Interpreter) setItem(op string, k kind, seq snakebind.Ref, i int64, item snakebind.Ref) error {
	o := n.get(op, seq)
	it := n.get(op, item)
	if o.kind != k {
		n.decref(it)
		return typeError(k.String(), o)
	}
	if i < 0 || i >= int64(len(o.items)) {
		n.decref(it)
		return Raise("IndexError", "%s assignment index out of range", k)
	}
	if old := o.items[i]; old != nil {
		n.decref(old)
	}
	o.items[i] = it
	return nil
}

func (n *Interpreter) seqLen(op string, k kind, seq snakebind.Ref) (int64, error) {
	o := n.get(op, seq)
	if o.kind != k {
		return 0, typeError(k.String(), o)
	}
	return int64(len(o.items)), nil
}

func (n *Interpreter) getItem(op string, k kind, seq snakebind.Ref, i int64) (snakebind.Ref, error) {
	o := n.get(op, seq)
	if o.kind != k {
		return nil, typeError(k.String(), o)
	}
	if i < 0 || i >= int64(len(o.items)) {
		return nil, Raise("IndexError", "%s index out of range", k)
	}
	if o.items[i] == nil {
		return nil, Raise("SystemError", "%s item %d is not set", k, i)
	}
	return ref(o.items[i]), nil
}

func (n *Interpreter) NewList(size int64) (snakebind.Ref, error) {
	defer n.enter("NewList")()
	return n.newSeq(kindList, size)
}

func (n *Interpreter) ListSet(list snakebind.Ref, i int64, item snakebind.Ref) error {
	defer n.enter("ListSet")()
	return n.setItem("ListSet", kindList, list, i, item)
}

func (n *Interpreter) ListLen(list snakebind.Ref) (int64, error) {
	defer n.enter("ListLen")()
	return n.seqLen("ListLen", kindList, list)
}

func (n *Interpreter) ListGet(list snakebind.Ref, i int64) (snakebind.Ref, error) {
	defer n.enter("ListGet")()
	return n.getItem("ListGet", kindList, list, i)
}

func (n *Interpreter) NewTuple(size int64) (snakebind.Ref, error) {
	defer n.enter("NewTuple")()
	return n.newSeq(kindTuple, size)
}

func (n *Interpreter) TupleSet(tuple snakebind.Ref, i int64, item snakebind.Ref) error {
	defer n.enter("TupleSet")()
	return n.setItem("TupleSet", kindTuple, tuple, i, item)
}

func (n *Interpreter) TupleLen(tuple snakebind.Ref) (int64, error) {
	defer n.enter("TupleLen")()
	return n.seqLen("TupleLen", kindTuple, tuple)
}

func (n *Interpreter) TupleGet(tuple snakebind.Ref, i int64) (snakebind.Ref, error) {
	defer n.enter("TupleGet")()
	return n.getItem("TupleGet", kindTuple, tuple, i)
}

type hashKey struct {
	kind kind
	i    int64
	f    float64
	s    string
}

// hash returns the dict key of o. Like Python, True == 1 and 1 == 1.0.
func hash(o *object) (hashKey, bool) {
	switch o.kind {
	case kindNone:
		return hashKey{kind: kindNone}, true
	case kindInt:
		return hashKey{kind: kindInt, i: o.i}, true
	case kindBool:
		if o.b {
			return hashKey{kind: kindInt, i: 1}, true
		}
		return hashKey{kind: kindInt}, true
	case kindFloat:
		if o.f == float64(int64(o.f)) {
			return hashKey{kind: kindInt, i: int64(o.f)}, true
		}
		return hashKey{kind: kindFloat, f: o.f}, true
	case kindStr:
		return hashKey{kind: kindStr, s: o.s}, true
	case kindBytes:
		return hashKey{kind: kindBytes, s: string(o.by)}, true
	}
	return hashKey{}, false
}

func (n *Interpreter) DictFromPairs(pairs snakebind.Ref) (snakebind.Ref, error) {
	defer n.enter("DictFromPairs")()
	p := n.get("DictFromPairs", pairs)
	if p.kind != kindList {
		return nil, typeError("list", p)
	}
	d := &object{kind: kindDict}
	index := make(map[hashKey]int)
	for i, item := range p.items {
		if item == nil || item.kind != kindTuple || len(item.items) != 2 {
			n.freeDict(d)
			return nil, Raise("ValueError", "dictionary update sequence element #%d has wrong shape", i)
		}
		k, v := item.items[0], item.items[1]
		h, ok := hash(k)
		if !ok {
			n.freeDict(d)
			return nil, Raise("TypeError", "unhashable type: '%s'", k.kind)
		}
		n.incref(v)
		if j, ok := index[h]; ok {
			n.decref(d.vals[j])
			d.vals[j] = v
			continue
		}
		n.incref(k)
		index[h] = len(d.keys)
		d.keys = append(d.keys, k)
		d.vals = append(d.vals, v)
	}
	return ref(n.alloc(d)), nil
}

// freeDict drops a dict that was never allocated.
func (n *Interpreter) freeDict(d *object) {
	for i := range d.keys {
		n.decref(d.keys[i])
		n.decref(d.vals[i])
	}
}

func (n *Interpreter) DictPairs(dict snakebind.Ref) (snakebind.Ref, error) {
	defer n.enter("DictPairs")()
	d := n.get("DictPairs", dict)
	if d.kind != kindDict {
		return nil, typeError("dict", d)
	}
	list := n.alloc(&object{kind: kindList, items: make([]*object, len(d.keys))})
	for i := range d.keys {
		n.incref(d.keys[i])
		n.incref(d.vals[i])
		list.items[i] = n.alloc(&object{kind: kindTuple, items: []*object{d.keys[i], d.vals[i]}})
	}
	return ref(list), nil
}

func (n *Interpreter) ImportModule(name string) (snakebind.Ref, error) {
	defer n.enter("ImportModule")()
	mod, ok := n.modules[name]
	if !ok {
		return nil, Raise("ModuleNotFoundError", "No module named '%s'", name)
	}
	n.incref(mod)
	return ref(mod), nil
}

func (n *Interpreter) GetAttr(obj snakebind.Ref, name string) (snakebind.Ref, error) {
	defer n.enter("GetAttr")()
	o := n.get("GetAttr", obj)
	if o.kind == kindModule {
		if attr, ok := o.attrs[name]; ok {
			n.incref(attr)
			return ref(attr), nil
		}
		return nil, Raise("AttributeError", "module '%s' has no attribute '%s'", o.name, name)
	}
	return nil, Raise("AttributeError", "'%s' object has no attribute '%s'", o.kind, name)
}

// Call runs a module function. The interpreter state is unlocked while the
// function runs so it can use n freely.
func (n *Interpreter) Call(callable snakebind.Ref, args []snakebind.Ref, kwnames []string, kwvalues []snakebind.Ref) (snakebind.Ref, error) {
	unlock := n.enter("Call")
	fn := n.get("Call", callable)
	for _, a := range args {
		n.get("Call", a)
	}
	kwargs := make(map[string]snakebind.Ref, len(kwnames))
	for i, name := range kwnames {
		n.get("Call", kwvalues[i])
		kwargs[name] = kwvalues[i]
	}
	if fn.kind != kindFunc {
		unlock()
		return nil, Raise("TypeError", "'%s' object is not callable", fn.kind)
	}
	n.calls[fn.name]++
	unlock()

	maxInto(&n.maxInCall, n.inCall.Add(1))
	ret, err := fn.fn(n, args, kwargs)
	n.inCall.Add(-1)

	if err != nil {
		if ret != nil {
			n.DecRef(ret)
		}
		var pe *snakebind.PythonException
		if errors.As(err, &pe) {
			return nil, pe
		}
		return nil, Raise("RuntimeError", "%v", err)
	}
	if ret == nil {
		return nil, Raise("SystemError", "%s returned NULL without setting an exception", fn.name)
	}
	return ret, nil
}
