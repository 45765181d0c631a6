//go:build !(cgo && cpython)

package snakebind

// NewCPython is the default NativeFactory. This build has no CPython
// support; build with cgo enabled and -tags cpython to embed CPython.
func NewCPython(*PythonLocation) (Native, error) {
	return nil, ErrCPythonNotAvailable
}
