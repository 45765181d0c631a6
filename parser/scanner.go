package parser

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokName
	tokNumber
	tokString
	tokOp
	tokError
)

type token struct {
	kind tokenKind
	text string
	pos  Position
	end  Position
	msg  string // tokError only
}

func (t token) is(kind tokenKind, text string) bool {
	return t.kind == kind && t.text == text
}

func (t token) span() Span {
	return Span{Start: t.pos, End: t.end}
}

// scanner splits Python source into tokens. Newlines inside brackets and
// after a backslash are dropped, so every tokNewline ends a logical line.
// A physical line starting a new top-level statement that can open a
// declaration always ends the previous logical line, even inside unclosed
// brackets. Malformed literals become tokError tokens and scanning goes on.
type scanner struct {
	src   string
	off   int
	line  int
	col   int
	depth int
	toks  []token
}

var threeCharOps = []string{"**=", "//=", ">>=", "<<=", "..."}

var twoCharOps = []string{
	"->", "**", "//", "==", "!=", "<=", ">=", ":=", "<<", ">>",
	"+=", "-=", "*=", "/=", "%=", "&=", "|=", "^=", "@=",
}

func scan(src string) []token {
	s := &scanner{src: src, line: 1, col: 1}
	s.run()
	return s.toks
}

func (s *scanner) pos() Position {
	return Position{Line: s.line, Column: s.col, Offset: s.off}
}

func (s *scanner) peek(n int) byte {
	if s.off+n >= len(s.src) {
		return 0
	}
	return s.src[s.off+n]
}

// advance consumes one rune and keeps line and column in step.
func (s *scanner) advance() rune {
	r, size := utf8.DecodeRuneInString(s.src[s.off:])
	s.off += size
	if r == '\n' {
		s.line++
		s.col = 1
	} else {
		s.col++
	}
	return r
}

func (s *scanner) emit(kind tokenKind, start Position) {
	s.toks = append(s.toks, token{
		kind: kind,
		text: s.src[start.Offset:s.off],
		pos:  start,
		end:  s.pos(),
	})
}

func (s *scanner) newline(start Position) {
	if s.depth > 0 || len(s.toks) == 0 || s.toks[len(s.toks)-1].kind == tokNewline {
		return
	}
	s.toks = append(s.toks, token{kind: tokNewline, pos: start, end: start})
}

func (s *scanner) run() {
	for s.off < len(s.src) {
		c := s.src[s.off]
		start := s.pos()
		if s.col == 1 && s.declarationStart() {
			s.depth = 0
			s.newline(start)
		}
		switch {
		case c == ' ' || c == '\t' || c == '\f':
			s.advance()
		case c == '#':
			for s.off < len(s.src) && s.src[s.off] != '\n' {
				s.advance()
			}
		case c == '\\' && (s.peek(1) == '\n' || (s.peek(1) == '\r' && s.peek(2) == '\n')):
			s.advance()
			if s.src[s.off] == '\r' {
				s.advance()
			}
			s.advance()
		case c == '\r':
			s.advance()
		case c == '\n':
			s.newline(start)
			s.advance()
		case s.stringStart():
			s.scanString(start)
		case c >= '0' && c <= '9', c == '.' && s.peek(1) >= '0' && s.peek(1) <= '9':
			s.scanNumber(start)
		case isNameStart(s.src[s.off:]):
			for s.off < len(s.src) && isNamePart(s.src[s.off:]) {
				s.advance()
			}
			s.emit(tokName, start)
		default:
			s.scanOp(start)
		}
	}
	s.newline(s.pos())
	end := s.pos()
	s.toks = append(s.toks, token{kind: tokEOF, pos: end, end: end})
}

// declarationStart reports whether the current physical line begins with a
// decorator or a def, async or class keyword.
func (s *scanner) declarationStart() bool {
	rest := s.src[s.off:]
	if strings.HasPrefix(rest, "@") {
		return true
	}
	for _, kw := range []string{"def", "async", "class"} {
		if strings.HasPrefix(rest, kw) && (len(rest) == len(kw) || !isNamePart(rest[len(kw):])) {
			return true
		}
	}
	return false
}

func isNameStart(rest string) bool {
	r, _ := utf8.DecodeRuneInString(rest)
	return r == '_' || unicode.IsLetter(r)
}

func isNamePart(rest string) bool {
	r, _ := utf8.DecodeRuneInString(rest)
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// stringStart reports whether a string literal, possibly prefixed with
// r, b, u or f in any case and combination, starts at the current offset.
func (s *scanner) stringStart() bool {
	for i := 0; i < 3; i++ {
		c := s.peek(i)
		if c == '"' || c == '\'' {
			return true
		}
		if !strings.ContainsRune("rRbBuUfF", rune(c)) || c == 0 {
			return false
		}
	}
	return false
}

// scanString scans one string literal. A single-quoted literal left open
// ends at its newline, a triple-quoted one at the end of the source.
func (s *scanner) scanString(start Position) {
	for s.src[s.off] != '"' && s.src[s.off] != '\'' {
		s.advance()
	}
	quote := s.src[s.off]
	triple := s.peek(1) == quote && s.peek(2) == quote
	if triple {
		s.advance()
		s.advance()
	}
	s.advance()
	for s.off < len(s.src) {
		c := s.src[s.off]
		switch {
		case c == '\\':
			s.advance()
			if s.off < len(s.src) {
				s.advance()
			}
		case c == quote && !triple:
			s.advance()
			s.emit(tokString, start)
			return
		case c == quote && s.peek(1) == quote && s.peek(2) == quote:
			s.advance()
			s.advance()
			s.advance()
			s.emit(tokString, start)
			return
		case c == '\n' && !triple:
			s.fail("unterminated string literal", start)
			return
		default:
			s.advance()
		}
	}
	s.fail("unterminated string literal", start)
}

func (s *scanner) scanNumber(start Position) {
	for s.off < len(s.src) {
		c := s.src[s.off]
		switch {
		case c >= '0' && c <= '9', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_', c == '.':
			s.advance()
		case (c == '+' || c == '-') && s.off > start.Offset && (s.src[s.off-1] == 'e' || s.src[s.off-1] == 'E') && !strings.HasPrefix(strings.ToLower(s.src[start.Offset:s.off]), "0x"):
			s.advance()
		default:
			s.emit(tokNumber, start)
			return
		}
	}
	s.emit(tokNumber, start)
}

func (s *scanner) scanOp(start Position) {
	rest := s.src[s.off:]
	for _, group := range [][]string{threeCharOps, twoCharOps} {
		for _, op := range group {
			if strings.HasPrefix(rest, op) {
				for range op {
					s.advance()
				}
				s.emit(tokOp, start)
				return
			}
		}
	}
	switch s.advance() {
	case '(', '[', '{':
		s.depth++
	case ')', ']', '}':
		if s.depth > 0 {
			s.depth--
		}
	}
	s.emit(tokOp, start)
}

func (s *scanner) fail(msg string, start Position) {
	s.emit(tokError, start)
	s.toks[len(s.toks)-1].msg = msg
}
