package snakebind

import (
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"

	"fortio.org/safecast"
)

// Scope is proof that the calling goroutine holds the GIL of one
// Interpreter. Every operation that touches native objects takes the Scope
// explicitly, so code that already holds the GIL never acquires it again.
//
// A Scope is bound to the goroutine and OS thread that acquired it and must
// be released by that goroutine, typically with defer.
type Scope struct {
	interp   *Interpreter
	state    GILState
	released atomic.Bool

	// release is nil for scopes the interpreter creates while closing.
	release func()
}

// Release drops the GIL. Only the first call has an effect.
func (s *Scope) Release() {
	if !s.released.CompareAndSwap(false, true) {
		return
	}
	if s.release != nil {
		s.release()
	}
}

// Interpreter returns the interpreter the Scope belongs to.
func (s *Scope) Interpreter() *Interpreter {
	return s.interp
}

// Registry returns the converter registry of the interpreter.
func (s *Scope) Registry() *Registry {
	return s.interp.registry
}

func (s *Scope) native() (Native, error) {
	if s.released.Load() {
		return nil, ErrScopeReleased
	}
	return s.interp.native, nil
}

func (s *Scope) nativeFor(o *Object) (Native, error) {
	if o == nil || o.released.Load() {
		return nil, ErrObjectReleased
	}
	return s.native()
}

// Own adopts a new reference returned by a native call. The reference is
// not incremented; releasing the Object gives it back.
func (s *Scope) Own(ref Ref) *Object {
	return &Object{ref: ref, owned: true}
}

// Borrow wraps a reference owned elsewhere without touching its count.
func (s *Scope) Borrow(ref Ref) *Object {
	return &Object{ref: ref}
}

func (s *Scope) own(ref Ref, err error) (*Object, error) {
	if err != nil {
		return nil, err
	}
	return s.Own(ref), nil
}

// None returns a borrowed handle to None.
func (s *Scope) None() (*Object, error) {
	n, err := s.native()
	if err != nil {
		return nil, err
	}
	return s.Borrow(n.None()), nil
}

// NewNone returns an owned reference to None.
func (s *Scope) NewNone() (*Object, error) {
	none, err := s.None()
	if err != nil {
		return nil, err
	}
	return none.Clone(s)
}

// IsNone reports whether o is None.
func (s *Scope) IsNone(o *Object) bool {
	n, err := s.nativeFor(o)
	return err == nil && n.IsNone(o.ref)
}

// TypeName returns the Python type name of o.
func (s *Scope) TypeName(o *Object) string {
	n, err := s.nativeFor(o)
	if err != nil {
		return ""
	}
	return n.TypeName(o.ref)
}

// RefCount returns the native reference count of o.
func (s *Scope) RefCount(o *Object) int64 {
	n, err := s.nativeFor(o)
	if err != nil {
		return 0
	}
	return n.RefCount(o.ref)
}

func (s *Scope) NewInt(v int64) (*Object, error) {
	n, err := s.native()
	if err != nil {
		return nil, err
	}
	return s.own(n.NewInt(v))
}

func (s *Scope) AsInt(o *Object) (int64, error) {
	n, err := s.nativeFor(o)
	if err != nil {
		return 0, err
	}
	return n.AsInt(o.ref)
}

func (s *Scope) NewFloat(v float64) (*Object, error) {
	n, err := s.native()
	if err != nil {
		return nil, err
	}
	return s.own(n.NewFloat(v))
}

func (s *Scope) AsFloat(o *Object) (float64, error) {
	n, err := s.nativeFor(o)
	if err != nil {
		return 0, err
	}
	return n.AsFloat(o.ref)
}

func (s *Scope) NewBool(v bool) (*Object, error) {
	n, err := s.native()
	if err != nil {
		return nil, err
	}
	return s.own(n.NewBool(v))
}

func (s *Scope) AsBool(o *Object) (bool, error) {
	n, err := s.nativeFor(o)
	if err != nil {
		return false, err
	}
	return n.AsBool(o.ref)
}

func (s *Scope) NewStr(v string) (*Object, error) {
	n, err := s.native()
	if err != nil {
		return nil, err
	}
	return s.own(n.NewStr(v))
}

func (s *Scope) AsStr(o *Object) (string, error) {
	n, err := s.nativeFor(o)
	if err != nil {
		return "", err
	}
	return n.AsStr(o.ref)
}

func (s *Scope) NewBytes(v []byte) (*Object, error) {
	n, err := s.native()
	if err != nil {
		return nil, err
	}
	return s.own(n.NewBytes(v))
}

func (s *Scope) AsBytes(o *Object) ([]byte, error) {
	n, err := s.nativeFor(o)
	if err != nil {
		return nil, err
	}
	return n.AsBytes(o.ref)
}

// NewList builds a list from items. The list takes over the items: they
// are released when NewList returns, whether it succeeds or not.
func (s *Scope) NewList(items []*Object) (*Object, error) {
	return s.newSequence(items, Native.NewList, Native.ListSet)
}

// NewTuple builds a tuple from items, taking them over like NewList.
func (s *Scope) NewTuple(items []*Object) (*Object, error) {
	return s.newSequence(items, Native.NewTuple, Native.TupleSet)
}

func (s *Scope) newSequence(
	items []*Object,
	create func(Native, int64) (Ref, error),
	set func(Native, Ref, int64, Ref) error,
) (*Object, error) {
	defer releaseAll(s, items)
	n, err := s.native()
	if err != nil {
		return nil, err
	}
	size, err := safecast.Conv[int64](len(items))
	if err != nil {
		return nil, err
	}
	seq, err := s.own(create(n, size))
	if err != nil {
		return nil, err
	}
	for i, item := range items {
		ref, err := item.Detach(s)
		if err != nil {
			seq.Release(s)
			return nil, err
		}
		if err := set(n, seq.ref, int64(i), ref); err != nil {
			seq.Release(s)
			return nil, err
		}
	}
	return seq, nil
}

func releaseAll(s *Scope, objs []*Object) {
	for _, o := range objs {
		o.Release(s)
	}
}

// ListItems returns borrowed handles to the items of a list. They stay
// valid while the list is alive.
func (s *Scope) ListItems(list *Object) ([]*Object, error) {
	return s.sequenceItems(list, Native.ListLen, Native.ListGet)
}

// TupleItems returns borrowed handles to the items of a tuple.
func (s *Scope) TupleItems(tuple *Object) ([]*Object, error) {
	return s.sequenceItems(tuple, Native.TupleLen, Native.TupleGet)
}

func (s *Scope) sequenceItems(
	seq *Object,
	length func(Native, Ref) (int64, error),
	get func(Native, Ref, int64) (Ref, error),
) ([]*Object, error) {
	n, err := s.nativeFor(seq)
	if err != nil {
		return nil, err
	}
	size, err := length(n, seq.ref)
	if err != nil {
		return nil, err
	}
	count, err := safecast.Conv[int](size)
	if err != nil {
		return nil, err
	}
	items := make([]*Object, count)
	for i := range items {
		ref, err := get(n, seq.ref, int64(i))
		if err != nil {
			return nil, err
		}
		items[i] = s.Borrow(ref)
	}
	return items, nil
}

// DictFromPairs builds a dict from a list of (key, value) tuples. The
// pairs list is borrowed.
func (s *Scope) DictFromPairs(pairs *Object) (*Object, error) {
	n, err := s.nativeFor(pairs)
	if err != nil {
		return nil, err
	}
	return s.own(n.DictFromPairs(pairs.ref))
}

// DictPairs returns a new list of the (key, value) tuples of a dict.
func (s *Scope) DictPairs(dict *Object) (*Object, error) {
	n, err := s.nativeFor(dict)
	if err != nil {
		return nil, err
	}
	return s.own(n.DictPairs(dict.ref))
}

// Import imports a module by its dotted name.
func (s *Scope) Import(name string) (*Object, error) {
	n, err := s.native()
	if err != nil {
		return nil, err
	}
	mod, err := n.ImportModule(name)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", name, err)
	}
	return s.Own(mod), nil
}

// GetAttr returns the attribute name of o.
func (s *Scope) GetAttr(o *Object, name string) (*Object, error) {
	n, err := s.nativeFor(o)
	if err != nil {
		return nil, err
	}
	return s.own(n.GetAttr(o.ref, name))
}

// Kwarg is a keyword argument passed to Call.
type Kwarg struct {
	Name  string
	Value *Object
}

// KW returns a keyword argument.
func KW(name string, value *Object) Kwarg {
	return Kwarg{Name: name, Value: value}
}

// Call calls fn with borrowed arguments and returns the result.
func (s *Scope) Call(fn *Object, args []*Object, kwargs ...Kwarg) (*Object, error) {
	n, err := s.nativeFor(fn)
	if err != nil {
		return nil, err
	}
	refs := make([]Ref, len(args))
	for i, a := range args {
		if a == nil || a.Released() {
			return nil, fmt.Errorf("argument %d: %w", i, ErrObjectReleased)
		}
		refs[i] = a.ref
	}
	var (
		names  []string
		values []Ref
	)
	for _, kw := range kwargs {
		if kw.Value == nil || kw.Value.Released() {
			return nil, fmt.Errorf("argument %s: %w", kw.Name, ErrObjectReleased)
		}
		names = append(names, kw.Name)
		values = append(values, kw.Value.ref)
	}
	ret, err := n.Call(fn.ref, refs, names, values)
	if err != nil {
		var pe *PythonException
		if errors.As(err, &pe) {
			return nil, err
		}
		return nil, fmt.Errorf("call: %w", err)
	}
	return s.Own(ret), nil
}

// lockThread pins the goroutine to its OS thread for the lifetime of a
// Scope; interpreter thread state is per OS thread.
func lockThread() func() {
	runtime.LockOSThread()
	return runtime.UnlockOSThread
}
