package diagfmt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/richinsley/snakebind/bindgen"
	"github.com/richinsley/snakebind/parser"
)

func span(line, col, endCol int) parser.Span {
	return parser.Span{
		Start: parser.Position{Line: line, Column: col},
		End:   parser.Position{Line: line, Column: endCol},
	}
}

func TestPretty(t *testing.T) {
	src := map[string][]byte{
		"/work/calc.py": []byte("def add(a: int, b: int) -> int:\n    return a + b\ndef bad(x: int) -> :\n    pass\n"),
	}
	ds := []bindgen.Diagnostic{
		{
			Severity: bindgen.SevError,
			Code:     bindgen.CodeSyntax,
			Message:  "expected type annotation, found ':'",
			File:     "/work/calc.py",
			Span:     span(3, 1, 21),
		},
		{
			Severity: bindgen.SevInfo,
			Code:     bindgen.CodeGenerated,
			Message:  "generated Calc (calc.py.go)",
			File:     "/work/calc.py",
		},
	}

	var buf bytes.Buffer
	Pretty(&buf, ds, func(path string) []byte { return src[path] }, PrettyOpts{PathMode: PathModeBasename})

	want := strings.Join([]string{
		"calc.py:3:1: error SB004: expected type annotation, found ':'",
		"   3 | def bad(x: int) -> :",
		"     | ^~~~~~~~~~~~~~~~~~~~",
		"calc.py: info SB002: generated Calc (calc.py.go)",
		"",
	}, "\n")
	if diff := cmp.Diff(want, buf.String()); diff != "" {
		t.Errorf("output mismatch (-want +got):\n%s", diff)
	}
}

func TestPrettyWideRunes(t *testing.T) {
	line := "def f(名前: int) -> set[int]:"
	ds := []bindgen.Diagnostic{{
		Severity: bindgen.SevError,
		Code:     bindgen.CodeUnsupportedType,
		Message:  "unsupported",
		File:     "m.py",
		Span:     span(1, 19, 27),
	}}
	var buf bytes.Buffer
	Pretty(&buf, ds, func(string) []byte { return []byte(line + "\n") }, PrettyOpts{})

	lines := strings.Split(buf.String(), "\n")
	if len(lines) < 3 {
		t.Fatalf("output:\n%s", buf.String())
	}
	// set[int] is 8 columns wide, after 18 runes of which two are double width.
	want := "     | " + strings.Repeat(" ", 20) + "^" + strings.Repeat("~", 7)
	if lines[2] != want {
		t.Errorf("caret line = %q, want %q", lines[2], want)
	}
}

func TestPrettyWithoutSource(t *testing.T) {
	ds := []bindgen.Diagnostic{{
		Severity: bindgen.SevWarning,
		Code:     bindgen.CodeSyntax,
		Message:  "m",
		File:     "x.py",
		Span:     span(9, 1, 2),
	}}
	var buf bytes.Buffer
	Pretty(&buf, ds, nil, PrettyOpts{})
	if got := buf.String(); got != "x.py:9:1: warning SB004: m\n" {
		t.Errorf("output = %q", got)
	}
}

func TestPrettyColor(t *testing.T) {
	ds := []bindgen.Diagnostic{{Severity: bindgen.SevError, Code: bindgen.CodeSyntax, Message: "m", File: "x.py"}}
	var buf bytes.Buffer
	Pretty(&buf, ds, nil, PrettyOpts{Color: true})
	if !strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("colored output has no escape sequences: %q", buf.String())
	}
}

func TestSummary(t *testing.T) {
	ds := []bindgen.Diagnostic{
		{Severity: bindgen.SevError},
		{Severity: bindgen.SevError},
		{Severity: bindgen.SevWarning},
		{Severity: bindgen.SevInfo},
	}
	if got := Summary(ds); got != "2 errors, 1 warning" {
		t.Errorf("Summary = %q", got)
	}
	if got := Summary(nil); got != "" {
		t.Errorf("Summary(nil) = %q", got)
	}
}
