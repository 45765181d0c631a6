// Package parser extracts top-level function declarations from Python source.
//
// Only the function header is understood: the name, the parameter list with
// optional annotations and default expressions, the optional return
// annotation and the docstring. Function bodies, classes and every other
// statement are skipped. Default expressions are captured as text and never
// evaluated.
//
// Parse never fails outright. A malformed declaration produces an *Error with
// the span of that declaration, and scanning resumes at the next top-level
// line, so one bad signature does not hide the rest of the file.
package parser

import (
	"fmt"
	"strings"
)

// Position is a 1-based line and column in the source. Columns count runes.
type Position struct {
	Line   int
	Column int

	// Offset is the byte offset of the position in the source.
	Offset int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// Span is a half-open range [Start, End) of the source.
type Span struct {
	Start Position
	End   Position
}

func (s Span) String() string {
	return s.Start.String() + "-" + s.End.String()
}

// TypeAnnotation is the syntactic form of a parameter or return annotation.
//
// A subscripted annotation such as dict[str, int] has Name "dict" and two
// Args. The union operator form A | B is normalized to Union[A, B]. Names are
// kept verbatim, including module qualifiers such as typing.List. A bare
// bracketed list, as in Callable[[int], str], has the Name "[]".
type TypeAnnotation struct {
	Name string
	Args []TypeAnnotation
	Span Span
}

// String renders the annotation in canonical subscript form.
func (t TypeAnnotation) String() string {
	if len(t.Args) == 0 {
		return t.Name
	}
	var sb strings.Builder
	if t.Name != "[]" {
		sb.WriteString(t.Name)
	}
	sb.WriteByte('[')
	for i, arg := range t.Args {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(arg.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// ParamKind describes how an argument binds to a parameter.
type ParamKind int

const (
	PositionalOrKeyword ParamKind = iota
	PositionalOnly
	KeywordOnly
	VarPositional
	VarKeyword
)

func (k ParamKind) String() string {
	switch k {
	case PositionalOrKeyword:
		return "positional-or-keyword"
	case PositionalOnly:
		return "positional-only"
	case KeywordOnly:
		return "keyword-only"
	case VarPositional:
		return "var-positional"
	case VarKeyword:
		return "var-keyword"
	}
	return "unknown"
}

// Parameter is one entry of a function's parameter list.
type Parameter struct {
	Name string

	// Annotation is nil when the parameter has no annotation.
	Annotation *TypeAnnotation

	// Default is the source text of the default expression.
	Default    string
	HasDefault bool

	Kind ParamKind
	Span Span
}

// Positional reports whether the parameter can be passed positionally.
func (p Parameter) Positional() bool {
	return p.Kind == PositionalOrKeyword || p.Kind == PositionalOnly
}

// FunctionDeclaration is a top-level def statement.
type FunctionDeclaration struct {
	Name       string
	Parameters []Parameter

	// Returns is nil when the function has no return annotation.
	Returns *TypeAnnotation

	Docstring string

	// Span covers the header, from "def" to the closing colon.
	Span Span
}

// Error is a syntax error in a function declaration.
type Error struct {
	Message string
	Span    Span
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Span.Start, e.Message)
}
