package parser

import (
	"strings"
)

// Render produces the canonical source form of a declaration: the header
// on one line followed by an indented body holding the docstring, if any,
// and an ellipsis. Parsing the result yields the same declaration up to
// spans.
func Render(decl FunctionDeclaration) string {
	var sb strings.Builder
	sb.WriteString("def ")
	sb.WriteString(decl.Name)
	sb.WriteByte('(')

	star := false
	for i, p := range decl.Parameters {
		if i > 0 {
			sb.WriteString(", ")
		}
		if p.Kind == KeywordOnly && !star {
			sb.WriteString("*, ")
		}
		switch p.Kind {
		case VarPositional:
			sb.WriteByte('*')
			star = true
		case VarKeyword:
			sb.WriteString("**")
		case KeywordOnly:
			star = true
		}
		sb.WriteString(p.Name)
		if p.Annotation != nil {
			sb.WriteString(": ")
			sb.WriteString(p.Annotation.String())
		}
		if p.HasDefault {
			sb.WriteString(" = ")
			sb.WriteString(p.Default)
		}
		if p.Kind == PositionalOnly && (i+1 == len(decl.Parameters) || decl.Parameters[i+1].Kind != PositionalOnly) {
			sb.WriteString(", /")
		}
	}
	sb.WriteByte(')')

	if decl.Returns != nil {
		sb.WriteString(" -> ")
		sb.WriteString(decl.Returns.String())
	}
	sb.WriteString(":\n")

	if decl.Docstring != "" {
		sb.WriteString("    \"\"\"")
		for i, line := range strings.Split(decl.Docstring, "\n") {
			if i > 0 {
				sb.WriteByte('\n')
				if line != "" {
					sb.WriteString("    ")
				}
			}
			sb.WriteString(strings.ReplaceAll(line, `"""`, `\"\"\"`))
		}
		sb.WriteString("\"\"\"\n")
	}
	sb.WriteString("    ...\n")
	return sb.String()
}
