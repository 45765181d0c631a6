// Package snakebind embeds a CPython interpreter in a Go program and calls
// functions defined in Python source files through typed Go bindings.
//
// The bindings are produced ahead of time by the snakebind command (package
// bindgen), which reads the function signatures of a .py file and emits a
// Go file with one interface per Python module. This package is the runtime
// those generated files depend on: it starts the interpreter, serializes
// access to it and converts values in both directions.
//
// # Starting an Interpreter
//
// New locates an installation, checks its version, prepares an optional
// virtual environment, installs packages and initializes the interpreter:
//
//	interp, err := snakebind.New(ctx, snakebind.Options{
//	    Home:                     "./python",
//	    Locators:                 []snakebind.Locator{snakebind.EnvironmentVariableLocator{Variable: "PYTHON_HOME"}, snakebind.SystemLocator{}},
//	    VersionConstraint:        ">= 3.9, < 3.14",
//	    VirtualEnvironmentPath:   ".venv",
//	    EnsureVirtualEnvironment: true,
//	    Installers:               []snakebind.PackageInstaller{&snakebind.PipInstaller{}},
//	})
//	if err != nil {
//	    return err
//	}
//	defer interp.Close()
//
// Every failure while starting is an *EnvironmentError naming the check
// that failed, or a *PackageInstallError from an installer.
//
// A process that wants a single shared interpreter uses a Runtime, or the
// package-level Configure, Acquire and Dispose functions backed by a
// default Runtime. Concurrent first callers share one start.
//
// # Generated Bindings
//
// For a file calc.py defining
//
//	def add(a: int, b: int) -> int: ...
//
// the generator writes calc.py.go containing
//
//	type Calc interface {
//	    Add(a int64, b int64) (int64, error)
//	}
//
//	func LoadCalc(interp *snakebind.Interpreter) (Calc, error)
//
// LoadCalc imports the module once per interpreter and registers the
// converters the module's signatures need. The interpreter releases the
// binding when it closes.
//
// # The GIL
//
// All native objects are reached through a Scope, which proves that the
// calling goroutine holds the interpreter lock:
//
//	s, err := interp.Acquire()
//	if err != nil {
//	    return err
//	}
//	defer s.Release()
//
//	n, err := s.NewInt(42)
//	if err != nil {
//	    return err
//	}
//	defer n.Release(s)
//
// The lock is not reentrant. Code that already holds a Scope passes it
// down instead of acquiring again. A Scope pins its goroutine to the
// current OS thread until released.
//
// # Object Ownership
//
// An *Object is either owned, holding one reference count that Release
// gives back, or borrowed, wrapping a reference owned by a container.
// Release is idempotent, so deferring it right after an object is obtained
// is always correct. NewList and NewTuple take over the objects they are
// given.
//
// # Converters
//
// Each Interpreter has a Registry mapping Go types to converters. int64,
// float64, string, bool and []byte are built in. Containers are registered
// per element type with RegisterList, RegisterDict, RegisterTuple2,
// RegisterTuple3, RegisterTuple4 and RegisterOptional; generated bindings
// do this for every type their signatures use. Encode and Decode look up
// the converter for a type and fail with *ConverterLookupError when none
// is registered.
//
// Python exceptions raised by called functions come back as
// *PythonException errors carrying the exception type, message and
// traceback.
//
// # Building
//
// The CPython backend uses cgo and is enabled with the cpython build tag.
// It finds Python through pkg-config (python3-embed):
//
//	go build -tags cpython ./...
//
// Without the tag, New fails with ErrCPythonNotAvailable unless
// Options.Native supplies another backend. Package snaketest provides an
// in-memory backend for tests.
package snakebind
