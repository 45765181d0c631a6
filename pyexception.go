package snakebind

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PythonException is an exception raised by Python code, either inside the
// embedded interpreter or in a probe subprocess.
type PythonException struct {
	// Exception is the exception class name (e.g., "ValueError", "KeyError").
	Exception string `json:"exception"`

	// Message is str() of the exception.
	Message string `json:"message"`

	// Traceback is the formatted Python traceback, if one was available.
	Traceback string `json:"traceback,omitempty"`

	// Cause is the exception's __cause__, if any.
	Cause *PythonException `json:"cause,omitempty"`
}

func (e *PythonException) Error() string {
	if e.Message == "" {
		return e.Exception
	}
	return fmt.Sprintf("%s: %s", e.Exception, e.Message)
}

// Unwrap returns the chained cause so errors.As can reach it.
func (e *PythonException) Unwrap() error {
	if e.Cause == nil {
		return nil
	}
	return e.Cause
}

// String formats the exception with its traceback.
func (e *PythonException) String() string {
	var sb strings.Builder
	if e.Traceback != "" {
		sb.WriteString(strings.TrimRight(e.Traceback, "\n"))
		sb.WriteByte('\n')
	}
	sb.WriteString(e.Error())
	if e.Cause != nil {
		sb.WriteString("\n\nThe above exception was the direct cause of:\n\n")
		sb.WriteString(e.Cause.String())
	}
	return sb.String()
}

// NewPythonExceptionFromJSON parses a PythonException from JSON bytes, as
// written by the environment probe when it fails.
func NewPythonExceptionFromJSON(data []byte) (*PythonException, error) {
	var pyException PythonException
	if err := json.Unmarshal(data, &pyException); err != nil {
		return nil, err
	}
	if pyException.Exception == "" {
		return nil, fmt.Errorf("not a python exception: %s", data)
	}
	return &pyException, nil
}
