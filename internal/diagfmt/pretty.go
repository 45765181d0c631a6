// Package diagfmt renders generator diagnostics for terminals.
package diagfmt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/richinsley/snakebind/bindgen"
)

// PathMode specifies how file paths are displayed.
type PathMode uint8

const (
	// PathModeAuto shows paths relative to the working directory when they
	// are below it.
	PathModeAuto PathMode = iota
	PathModeAbsolute
	PathModeBasename
)

// PrettyOpts configures Pretty.
type PrettyOpts struct {
	Color    bool
	PathMode PathMode

	// Width truncates source lines; zero means no limit.
	Width int
}

// Sources returns the content of a diagnosed file, or nil when it is not
// available.
type Sources func(path string) []byte

// UseColor reports whether output to f should be colored. NO_COLOR
// disables color everywhere.
func UseColor(f *os.File) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

type palette struct {
	path, note, info, warning, err, caret *color.Color
}

func newPalette(enabled bool) palette {
	p := palette{
		path:    color.New(color.Bold),
		note:    color.New(color.FgBlue),
		info:    color.New(color.FgCyan, color.Bold),
		warning: color.New(color.FgYellow, color.Bold),
		err:     color.New(color.FgRed, color.Bold),
		caret:   color.New(color.FgGreen, color.Bold),
	}
	for _, c := range []*color.Color{p.path, p.note, p.info, p.warning, p.err, p.caret} {
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

func (p palette) severity(sev bindgen.Severity) *color.Color {
	switch sev {
	case bindgen.SevError:
		return p.err
	case bindgen.SevWarning:
		return p.warning
	}
	return p.info
}

// Pretty writes each diagnostic as
//
//	<path>:<line>:<col>: <severity> <code>: <message>
//
// followed, when the source is available, by the line and a caret under
// the span.
func Pretty(w io.Writer, ds []bindgen.Diagnostic, src Sources, opts PrettyOpts) {
	p := newPalette(opts.Color)
	for _, d := range ds {
		loc := displayPath(d.File, opts.PathMode)
		if d.Span.Start.Line > 0 {
			loc += ":" + d.Span.Start.String()
		}
		fmt.Fprintf(w, "%s: %s: %s\n",
			p.path.Sprint(loc),
			p.severity(d.Severity).Sprintf("%s %s", d.Severity, d.Code),
			d.Message)

		if d.Span.Start.Line == 0 || src == nil {
			continue
		}
		line, ok := sourceLine(src(d.File), d.Span.Start.Line)
		if !ok {
			continue
		}
		snippet(w, p, line, d, opts.Width)
	}
}

func snippet(w io.Writer, p palette, line string, d bindgen.Diagnostic, width int) {
	runes := []rune(line)
	start := min(max(d.Span.Start.Column-1, 0), len(runes))
	end := len(runes)
	if d.Span.End.Line == d.Span.Start.Line && d.Span.End.Column-1 > start {
		end = min(d.Span.End.Column-1, len(runes))
	}

	prefix := expandTabs(string(runes[:start]))
	marked := expandTabs(string(runes[start:end]))
	text := expandTabs(line)

	pad := runewidth.StringWidth(prefix)
	n := max(runewidth.StringWidth(marked), 1)
	if width > 0 {
		if runewidth.StringWidth(text) > width {
			text = runewidth.Truncate(text, width, "...")
		}
		if pad >= width {
			pad, n = 0, 1
		} else {
			n = min(n, width-pad)
		}
	}

	gutter := fmt.Sprintf("%4d | ", d.Span.Start.Line)
	fmt.Fprintf(w, "%s%s\n", p.note.Sprint(gutter), text)
	fmt.Fprintf(w, "%s%s%s\n",
		p.note.Sprint(strings.Repeat(" ", len(gutter)-2)+"| "),
		strings.Repeat(" ", pad),
		p.caret.Sprint("^"+strings.Repeat("~", n-1)))
}

func sourceLine(src []byte, n int) (string, bool) {
	if src == nil || n < 1 {
		return "", false
	}
	lines := strings.Split(string(src), "\n")
	if n > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[n-1], "\r"), true
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", "    ")
}

func displayPath(path string, mode PathMode) string {
	switch mode {
	case PathModeAbsolute:
		if abs, err := filepath.Abs(path); err == nil {
			return abs
		}
	case PathModeBasename:
		return filepath.Base(path)
	case PathModeAuto:
		if !filepath.IsAbs(path) {
			return path
		}
		wd, err := os.Getwd()
		if err != nil {
			return path
		}
		if rel, err := filepath.Rel(wd, path); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return path
}

// Summary counts errors and warnings, as in "2 errors, 1 warning". It is
// empty when there are neither.
func Summary(ds []bindgen.Diagnostic) string {
	var errs, warns int
	for _, d := range ds {
		switch d.Severity {
		case bindgen.SevError:
			errs++
		case bindgen.SevWarning:
			warns++
		}
	}
	var parts []string
	if errs > 0 {
		parts = append(parts, plural(errs, "error"))
	}
	if warns > 0 {
		parts = append(parts, plural(warns, "warning"))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, word string) string {
	if n == 1 {
		return "1 " + word
	}
	return fmt.Sprintf("%d %ss", n, word)
}
