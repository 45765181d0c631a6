package snakebind

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

var (
	// ErrDisposed is returned by operations on an interpreter that has been
	// closed.
	ErrDisposed = errors.New("snakebind: interpreter disposed")

	// ErrNotInitialized is returned when the interpreter has not finished
	// starting.
	ErrNotInitialized = errors.New("snakebind: interpreter not initialized")

	// ErrScopeReleased is returned when a Scope is used after Release.
	ErrScopeReleased = errors.New("snakebind: scope already released")

	// ErrObjectReleased is returned when a released Object is used.
	ErrObjectReleased = errors.New("snakebind: object already released")

	// ErrCPythonNotAvailable is returned by NewCPython when the binary was
	// built without cgo or without the cpython build tag.
	ErrCPythonNotAvailable = errors.New("snakebind: CPython support not compiled in (build with cgo and -tags cpython)")
)

// Reason names the precondition that failed while starting an interpreter.
type Reason int

const (
	ReasonNotFound Reason = iota + 1
	ReasonUnsupportedVersion
	ReasonHomeMissing
	ReasonVenvPathMissing
	ReasonVenvFailed
	ReasonStartupFailed
)

func (r Reason) String() string {
	switch r {
	case ReasonNotFound:
		return "python installation not found"
	case ReasonUnsupportedVersion:
		return "unsupported python version"
	case ReasonHomeMissing:
		return "home directory does not exist"
	case ReasonVenvPathMissing:
		return "virtual environment path not set"
	case ReasonVenvFailed:
		return "virtual environment creation failed"
	case ReasonStartupFailed:
		return "interpreter startup failed"
	}
	return "unknown"
}

// EnvironmentError reports that the interpreter could not be started.
type EnvironmentError struct {
	Reason Reason

	// Path is the directory or executable the failed check was about, if any.
	Path string

	Err error
}

func (e *EnvironmentError) Error() string {
	var sb strings.Builder
	sb.WriteString("snakebind: ")
	sb.WriteString(e.Reason.String())
	if e.Path != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Path)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *EnvironmentError) Unwrap() error {
	return e.Err
}

// PackageInstallError reports a package installer process that exited with
// a non-zero status.
type PackageInstallError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *PackageInstallError) Error() string {
	msg := fmt.Sprintf("snakebind: %s exited with status %d", e.Command, e.ExitCode)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

// ConverterLookupError reports a Go type with no registered converter.
// Against generated bindings it indicates a generator bug.
type ConverterLookupError struct {
	Type reflect.Type
}

func (e *ConverterLookupError) Error() string {
	return fmt.Sprintf("snakebind: no converter registered for %v", e.Type)
}

// ConversionError reports a value that could not be converted.
type ConversionError struct {
	Type reflect.Type

	// PyType is the Python type name of the object being decoded, if any.
	PyType string

	Err error
}

func (e *ConversionError) Error() string {
	if e.PyType != "" {
		return fmt.Sprintf("snakebind: cannot convert Python %s to %v: %v", e.PyType, e.Type, e.Err)
	}
	return fmt.Sprintf("snakebind: cannot convert %v: %v", e.Type, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
