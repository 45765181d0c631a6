package snakebind

import (
	"sync/atomic"
)

// Object is a handle to one native object.
//
// An owned Object holds exactly one reference count and gives it back on
// Release. A borrowed Object wraps a reference owned elsewhere and never
// touches the count. Release is safe to call more than once and on a nil
// Object, so it can always be deferred right after the Object is obtained.
// An Object is not shared between owners; Clone makes a second owner.
type Object struct {
	ref      Ref
	owned    bool
	released atomic.Bool
}

// Ref returns the native pointer. It is valid until the Object is released.
func (o *Object) Ref() Ref {
	return o.ref
}

// Owned reports whether the Object holds a reference count.
func (o *Object) Owned() bool {
	return o.owned
}

// Released reports whether Release or Detach has been called.
func (o *Object) Released() bool {
	return o.released.Load()
}

// Clone returns a new owned Object for the same native object, adding one
// reference.
func (o *Object) Clone(s *Scope) (*Object, error) {
	n, err := s.nativeFor(o)
	if err != nil {
		return nil, err
	}
	n.IncRef(o.ref)
	return &Object{ref: o.ref, owned: true}, nil
}

// Release gives back the reference held by an owned Object. Further calls
// do nothing. Releasing a borrowed Object only invalidates the handle.
func (o *Object) Release(s *Scope) {
	if o == nil || !o.released.CompareAndSwap(false, true) {
		return
	}
	// Without the GIL the reference is leaked rather than decremented.
	if o.owned && !s.released.Load() {
		s.interp.native.DecRef(o.ref)
	}
}

// Detach hands one reference to the caller, for native calls that steal
// it. An owned Object gives up its own reference and becomes released. A
// borrowed Object stays valid and a new reference is added for the caller.
func (o *Object) Detach(s *Scope) (Ref, error) {
	n, err := s.nativeFor(o)
	if err != nil {
		return nil, err
	}
	if !o.owned {
		n.IncRef(o.ref)
		return o.ref, nil
	}
	if !o.released.CompareAndSwap(false, true) {
		return nil, ErrObjectReleased
	}
	return o.ref, nil
}
