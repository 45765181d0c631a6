package snakebind

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// runPythonReadStdout runs the interpreter at pythonPath with args and
// returns its stdout. A non-zero exit becomes an error carrying stderr.
func runPythonReadStdout(ctx context.Context, pythonPath string, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, pythonPath, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return stdout.String(), fmt.Errorf("%s %s: %w, stderr: %s",
			pythonPath, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// runPythonScript runs source with python -c. When the script fails with
// a Python exception written to stdout as JSON, that exception is returned.
func runPythonScript(ctx context.Context, pythonPath, source string, args ...string) (string, error) {
	out, err := runPythonReadStdout(ctx, pythonPath, append([]string{"-c", source}, args...)...)
	if err == nil {
		return out, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if pe, perr := NewPythonExceptionFromJSON([]byte(out)); perr == nil {
			return "", pe
		}
	}
	return "", err
}
