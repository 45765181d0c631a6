package snakebind

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewPythonExceptionFromJSON(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		want    *PythonException
		wantErr bool
	}{
		{
			name: "probe failure",
			data: `{"exception": "ImportError", "message": "No module named 'sysconfig'", "traceback": "Traceback (most recent call last):\nImportError"}`,
			want: &PythonException{
				Exception: "ImportError",
				Message:   "No module named 'sysconfig'",
				Traceback: "Traceback (most recent call last):\nImportError",
			},
		},
		{
			name: "chained",
			data: `{"exception": "RuntimeError", "message": "probe failed", "cause": {"exception": "OSError", "message": "[Errno 2]"}}`,
			want: &PythonException{
				Exception: "RuntimeError",
				Message:   "probe failed",
				Cause:     &PythonException{Exception: "OSError", Message: "[Errno 2]"},
			},
		},
		{name: "probe output", data: `{"prefix": "/usr", "version": "3.12.4"}`, wantErr: true},
		{name: "malformed", data: `Traceback (most recent call last):`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewPythonExceptionFromJSON([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPythonExceptionFromJSON error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("exception mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPythonExceptionError(t *testing.T) {
	tests := []struct {
		ex   *PythonException
		want string
	}{
		{&PythonException{Exception: "ZeroDivisionError", Message: "division by zero", Traceback: "tb"}, "ZeroDivisionError: division by zero"},
		{&PythonException{Exception: "StopIteration"}, "StopIteration"},
	}
	for _, tt := range tests {
		if got := tt.ex.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
	}
}

func TestPythonExceptionChain(t *testing.T) {
	ex := &PythonException{
		Exception: "ValueError",
		Message:   "bad row",
		Traceback: "Traceback (most recent call last):\n  File \"calc.py\", line 9, in totals\n",
		Cause: &PythonException{
			Exception: "KeyError",
			Message:   "'total'",
			Cause:     &PythonException{Exception: "TypeError", Message: "unhashable type: 'list'"},
		},
	}

	want := strings.Join([]string{
		"Traceback (most recent call last):",
		`  File "calc.py", line 9, in totals`,
		"ValueError: bad row",
		"",
		"The above exception was the direct cause of:",
		"",
		"KeyError: 'total'",
		"",
		"The above exception was the direct cause of:",
		"",
		"TypeError: unhashable type: 'list'",
	}, "\n")
	if diff := cmp.Diff(want, ex.String()); diff != "" {
		t.Errorf("String() mismatch (-want +got):\n%s", diff)
	}

	var root *PythonException
	if !errors.As(errors.Unwrap(errors.Unwrap(ex)), &root) || root.Exception != "TypeError" {
		t.Errorf("Unwrap chain ends at %v, want TypeError", root)
	}
}
