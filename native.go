package snakebind

import "unsafe"

// Ref is an opaque pointer to a native interpreter object. A Ref carries
// no ownership by itself; ownership is tracked by the Object that wraps it.
type Ref unsafe.Pointer

// GILState is the token returned by Native.EnsureGIL and handed back to
// Native.ReleaseGIL.
type GILState int

// NativeConfig is passed to Native.Initialize.
type NativeConfig struct {
	// Home is the interpreter prefix (PYTHONHOME).
	Home string

	// SearchPath is the complete module search path, in order.
	SearchPath []string

	// ProgramName is the executable the interpreter reports as sys.executable.
	ProgramName string

	// LibraryPath is the shared library the interpreter was located with.
	LibraryPath string
}

// Native is the boundary to an embedded interpreter.
//
// Every method except Initialize, Finalize, EnsureGIL and ReleaseGIL must be
// called with the GIL held. Methods documented as returning a new reference
// hand one reference count to the caller; borrowed results stay owned by
// their container. Methods that steal a reference take over the caller's
// count whether they succeed or not. Exceptions raised by the interpreter
// are returned as *PythonException.
type Native interface {
	Initialize(cfg NativeConfig) error
	Finalize() error

	EnsureGIL() GILState
	ReleaseGIL(state GILState)

	IncRef(ref Ref)
	DecRef(ref Ref)
	RefCount(ref Ref) int64

	// None returns a borrowed reference to None.
	None() Ref
	IsNone(ref Ref) bool
	TypeName(ref Ref) string

	// Scalar constructors return new references.
	NewInt(v int64) (Ref, error)
	AsInt(ref Ref) (int64, error)
	NewFloat(v float64) (Ref, error)
	AsFloat(ref Ref) (float64, error)
	NewBool(v bool) (Ref, error)
	AsBool(ref Ref) (bool, error)
	NewStr(v string) (Ref, error)
	AsStr(ref Ref) (string, error)
	NewBytes(v []byte) (Ref, error)
	AsBytes(ref Ref) ([]byte, error)

	// NewList returns a new list of n empty slots.
	NewList(n int64) (Ref, error)
	// ListSet steals item.
	ListSet(list Ref, i int64, item Ref) error
	ListLen(list Ref) (int64, error)
	// ListGet returns a borrowed reference.
	ListGet(list Ref, i int64) (Ref, error)

	NewTuple(n int64) (Ref, error)
	// TupleSet steals item.
	TupleSet(tuple Ref, i int64, item Ref) error
	TupleLen(tuple Ref) (int64, error)
	// TupleGet returns a borrowed reference.
	TupleGet(tuple Ref, i int64) (Ref, error)

	// DictFromPairs builds a new dict from a list of 2-tuples.
	DictFromPairs(pairs Ref) (Ref, error)
	// DictPairs returns a new list of (key, value) tuples.
	DictPairs(dict Ref) (Ref, error)

	ImportModule(name string) (Ref, error)
	GetAttr(obj Ref, name string) (Ref, error)

	// Call invokes callable with borrowed positional and keyword arguments
	// and returns a new reference to the result.
	Call(callable Ref, args []Ref, kwnames []string, kwvalues []Ref) (Ref, error)
}

// NativeFactory creates the Native for a located interpreter.
type NativeFactory func(loc *PythonLocation) (Native, error)
