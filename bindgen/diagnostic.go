package bindgen

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/richinsley/snakebind/parser"
)

// Severity orders diagnostics from informational to fatal.
type Severity int

const (
	SevInfo Severity = iota
	SevWarning
	SevError
)

func (s Severity) String() string {
	switch s {
	case SevInfo:
		return "info"
	case SevWarning:
		return "warning"
	case SevError:
		return "error"
	}
	return "unknown"
}

// Code identifies the kind of a diagnostic.
type Code string

const (
	// CodeInternal reports a generator bug, such as a template that does not
	// produce valid Go.
	CodeInternal Code = "SB001"

	// CodeGenerated reports a produced artifact.
	CodeGenerated Code = "SB002"

	// CodeSyntax reports a malformed function declaration.
	CodeSyntax Code = "SB004"

	// CodeUnsupportedType reports an annotation with no Go mapping.
	CodeUnsupportedType Code = "SB005"

	// CodeNameCollision reports a function whose Go name is already taken.
	CodeNameCollision Code = "SB006"
)

// Diagnostic is a message about one input file. Span is zero for
// diagnostics about the file as a whole.
type Diagnostic struct {
	Severity Severity    `msgpack:"severity"`
	Code     Code        `msgpack:"code"`
	Message  string      `msgpack:"message"`
	File     string      `msgpack:"file"`
	Span     parser.Span `msgpack:"span"`
}

func (d Diagnostic) String() string {
	if d.Span.Start.Line == 0 {
		return fmt.Sprintf("%s: %s %s: %s", d.File, d.Severity, d.Code, d.Message)
	}
	return fmt.Sprintf("%s:%s: %s %s: %s", d.File, d.Span.Start, d.Severity, d.Code, d.Message)
}

// sortDiagnostics orders diagnostics by position, then severity and code.
func sortDiagnostics(ds []Diagnostic) {
	slices.SortStableFunc(ds, func(a, b Diagnostic) int {
		if c := cmp.Compare(a.Span.Start.Offset, b.Span.Start.Offset); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Severity, a.Severity); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
}

// HasErrors reports whether any diagnostic is an error.
func HasErrors(ds []Diagnostic) bool {
	return slices.ContainsFunc(ds, func(d Diagnostic) bool { return d.Severity == SevError })
}
