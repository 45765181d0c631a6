package parser

import (
	"strings"
)

// Parse returns the top-level function declarations of src together with
// the syntax errors found along the way. Declarations that parsed cleanly are
// returned even when other declarations in the same source are malformed.
func Parse(src string) ([]FunctionDeclaration, []*Error) {
	var (
		decls []FunctionDeclaration
		errs  []*Error
	)
	lines := splitLines(scan(src))
	for i, line := range lines {
		first := line[0]
		bad := scanError(line)
		header := first.pos.Column == 1 && first.is(tokName, "def")
		switch {
		case first.pos.Column == 1 && first.is(tokName, "async") && len(line) > 1 && line[1].is(tokName, "def"):
			errs = append(errs, &Error{
				Message: "async functions are not supported",
				Span:    Span{Start: first.pos, End: line[len(line)-1].end},
			})
			continue
		case bad != nil && header:
			// One diagnostic per declaration: the malformed literal.
			errs = append(errs, &Error{Message: bad.msg, Span: Span{Start: first.pos, End: bad.end}})
			continue
		case bad != nil:
			errs = append(errs, &Error{Message: bad.msg, Span: bad.span()})
			continue
		case !header:
			continue
		}

		p := &declParser{src: src, toks: line}
		decl, err := p.parse()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if doc, ok := docstring(line[p.bodyStart:], lines, i); ok {
			decl.Docstring = doc
		}
		decls = append(decls, decl)
	}
	return decls, errs
}

// scanError returns the first malformed token of a logical line.
func scanError(line []token) *token {
	for i := range line {
		if line[i].kind == tokError {
			return &line[i]
		}
	}
	return nil
}

// splitLines groups tokens into logical lines, dropping empty ones.
func splitLines(toks []token) [][]token {
	var (
		lines [][]token
		cur   []token
	)
	for _, t := range toks {
		if t.kind == tokNewline || t.kind == tokEOF {
			if len(cur) > 0 {
				lines = append(lines, cur)
				cur = nil
			}
			continue
		}
		cur = append(cur, t)
	}
	return lines
}

// docstring finds the docstring of the function whose header is lines[i].
// rest holds the tokens that follow the header's colon on the same line.
func docstring(rest []token, lines [][]token, i int) (string, bool) {
	if len(rest) > 0 {
		return stringStatement(rest)
	}
	if i+1 >= len(lines) {
		return "", false
	}
	next := lines[i+1]
	if next[0].pos.Column == 1 {
		return "", false
	}
	return stringStatement(next)
}

func stringStatement(toks []token) (string, bool) {
	var parts []string
	for _, t := range toks {
		if t.kind != tokString {
			return "", false
		}
		parts = append(parts, stringValue(t.text))
	}
	return cleanDoc(strings.Join(parts, "")), true
}

// stringValue strips the prefix and quotes of a string literal. Escape
// sequences are kept as written.
func stringValue(lit string) string {
	lit = strings.TrimLeft(lit, "rRbBuUfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if strings.HasPrefix(lit, q) && strings.HasSuffix(lit, q) && len(lit) >= 2*len(q) {
			return lit[len(q) : len(lit)-len(q)]
		}
	}
	return lit
}

// cleanDoc removes the common indentation of a docstring, like
// inspect.cleandoc.
func cleanDoc(doc string) string {
	lines := strings.Split(strings.ReplaceAll(doc, "\t", "    "), "\n")
	indent := -1
	for _, l := range lines[1:] {
		trimmed := strings.TrimLeft(l, " ")
		if trimmed == "" {
			continue
		}
		if n := len(l) - len(trimmed); indent < 0 || n < indent {
			indent = n
		}
	}
	lines[0] = strings.TrimSpace(lines[0])
	for i := 1; i < len(lines); i++ {
		if indent > 0 && len(lines[i]) >= indent {
			lines[i] = lines[i][indent:]
		}
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n")
}

// declParser parses the header of one def statement from the tokens of its
// logical line.
type declParser struct {
	src       string
	toks      []token
	cur       int
	bodyStart int
}

func (p *declParser) peek() token {
	if p.cur >= len(p.toks) {
		last := p.toks[len(p.toks)-1]
		return token{kind: tokEOF, pos: last.end, end: last.end}
	}
	return p.toks[p.cur]
}

func (p *declParser) next() token {
	t := p.peek()
	if p.cur < len(p.toks) {
		p.cur++
	}
	return t
}

func (p *declParser) errorAt(t token, msg string) *Error {
	return &Error{Message: msg, Span: Span{Start: p.toks[0].pos, End: t.end}}
}

func (p *declParser) expectOp(op, context string) (token, *Error) {
	t := p.next()
	if !t.is(tokOp, op) {
		return t, p.errorAt(t, "expected '"+op+"' "+context+", found "+describe(t))
	}
	return t, nil
}

func describe(t token) string {
	switch t.kind {
	case tokEOF, tokNewline:
		return "end of line"
	case tokString:
		return "string literal"
	}
	return "'" + t.text + "'"
}

func (p *declParser) parse() (FunctionDeclaration, *Error) {
	var decl FunctionDeclaration
	p.next() // def

	name := p.next()
	if name.kind != tokName {
		return decl, p.errorAt(name, "expected function name, found "+describe(name))
	}
	decl.Name = name.text

	if _, err := p.expectOp("(", "after function name"); err != nil {
		return decl, err
	}
	params, err := p.parameters()
	if err != nil {
		return decl, err
	}
	decl.Parameters = params

	if p.peek().is(tokOp, "->") {
		p.next()
		ann, err := p.annotation()
		if err != nil {
			return decl, err
		}
		decl.Returns = &ann
	}
	colon, err := p.expectOp(":", "at end of function header")
	if err != nil {
		return decl, err
	}
	decl.Span = Span{Start: p.toks[0].pos, End: colon.end}
	p.bodyStart = p.cur
	return decl, nil
}

func (p *declParser) parameters() ([]Parameter, *Error) {
	var (
		params     []Parameter
		keywordsOK bool
		seenSlash  bool
		seenStar   bool
		defaulted  *Parameter
		names      = map[string]bool{}
	)
	for {
		t := p.peek()
		if t.is(tokOp, ")") {
			p.next()
			return params, nil
		}

		switch {
		case t.is(tokOp, "/"):
			p.next()
			if seenSlash || seenStar || len(params) == 0 {
				return nil, p.errorAt(t, "unexpected '/' in parameter list")
			}
			seenSlash = true
			for i := range params {
				params[i].Kind = PositionalOnly
			}
		case t.is(tokOp, "*") && !p.followedByName():
			p.next()
			if seenStar {
				return nil, p.errorAt(t, "'*' may appear only once in a parameter list")
			}
			seenStar = true
			keywordsOK = true
		default:
			param, err := p.parameter(keywordsOK)
			if err != nil {
				return nil, err
			}
			if names[param.Name] {
				return nil, &Error{
					Message: "duplicate parameter '" + param.Name + "'",
					Span:    Span{Start: p.toks[0].pos, End: param.Span.End},
				}
			}
			names[param.Name] = true
			if param.Kind == VarPositional {
				if seenStar {
					return nil, p.errorAt(p.toks[p.cur-1], "'*' may appear only once in a parameter list")
				}
				seenStar = true
				keywordsOK = true
			}
			if param.Positional() {
				if param.HasDefault {
					defaulted = &param
				} else if defaulted != nil {
					return nil, &Error{
						Message: "parameter '" + param.Name + "' without a default follows parameter '" + defaulted.Name + "' with a default",
						Span:    Span{Start: p.toks[0].pos, End: param.Span.End},
					}
				}
			}
			params = append(params, param)
			if param.Kind == VarKeyword && !p.peek().is(tokOp, ")") && !(p.peek().is(tokOp, ",") && p.peekAt(1).is(tokOp, ")")) {
				return nil, p.errorAt(p.peek(), "'**"+param.Name+"' must be the last parameter")
			}
		}

		sep := p.next()
		switch {
		case sep.is(tokOp, ","):
		case sep.is(tokOp, ")"):
			return params, nil
		default:
			return nil, p.errorAt(sep, "expected ',' or ')' in parameter list, found "+describe(sep))
		}
	}
}

func (p *declParser) peekAt(n int) token {
	save := p.cur
	p.cur += n
	t := p.peek()
	p.cur = save
	return t
}

func (p *declParser) followedByName() bool {
	return p.peekAt(1).kind == tokName
}

func (p *declParser) parameter(keywordOnly bool) (Parameter, *Error) {
	var param Parameter
	first := p.next()
	param.Kind = PositionalOrKeyword
	if keywordOnly {
		param.Kind = KeywordOnly
	}
	name := first
	switch {
	case first.is(tokOp, "*"):
		param.Kind = VarPositional
		name = p.next()
	case first.is(tokOp, "**"):
		param.Kind = VarKeyword
		name = p.next()
	}
	if name.kind != tokName {
		return param, p.errorAt(name, "expected parameter name, found "+describe(name))
	}
	param.Name = name.text
	param.Span = Span{Start: first.pos, End: name.end}

	if p.peek().is(tokOp, ":") {
		p.next()
		ann, err := p.annotation()
		if err != nil {
			return param, err
		}
		param.Annotation = &ann
		param.Span.End = ann.Span.End
	}
	if p.peek().is(tokOp, "=") {
		eq := p.next()
		if param.Kind == VarPositional || param.Kind == VarKeyword {
			return param, p.errorAt(eq, "variadic parameter '"+param.Name+"' cannot have a default")
		}
		text, end, err := p.defaultExpr()
		if err != nil {
			return param, err
		}
		param.Default = text
		param.HasDefault = true
		param.Span.End = end
	}
	return param, nil
}

// defaultExpr captures the text of a default value up to the next ',' or
// ')' outside brackets.
func (p *declParser) defaultExpr() (string, Position, *Error) {
	start := p.peek()
	depth := 0
	var (
		last  token
		count int
	)
	for {
		t := p.peek()
		if t.kind == tokEOF {
			return "", t.end, p.errorAt(t, "unexpected end of line in default value")
		}
		if depth == 0 && t.kind == tokOp && (t.text == "," || t.text == ")") {
			break
		}
		if t.kind == tokOp {
			switch t.text {
			case "(", "[", "{":
				depth++
			case ")", "]", "}":
				depth--
			}
		}
		last = p.next()
		count++
	}
	if count == 0 {
		return "", start.pos, p.errorAt(start, "expected default value, found "+describe(start))
	}
	return strings.TrimSpace(p.src[start.pos.Offset:last.end.Offset]), last.end, nil
}

// annotation parses a type annotation: a dotted name, optionally
// subscripted, or a union of those joined with '|'.
func (p *declParser) annotation() (TypeAnnotation, *Error) {
	first, err := p.primary()
	if err != nil {
		return first, err
	}
	if !p.peek().is(tokOp, "|") {
		return first, nil
	}
	union := TypeAnnotation{Name: "Union", Args: []TypeAnnotation{first}}
	for p.peek().is(tokOp, "|") {
		p.next()
		alt, err := p.primary()
		if err != nil {
			return union, err
		}
		union.Args = append(union.Args, alt)
	}
	union.Span = Span{Start: first.Span.Start, End: union.Args[len(union.Args)-1].Span.End}
	return union, nil
}

func (p *declParser) primary() (TypeAnnotation, *Error) {
	t := p.next()
	switch {
	case t.kind == tokString:
		return p.forwardRef(t)
	case t.is(tokOp, "["):
		return p.listLiteral(t)
	case t.kind != tokName:
		return TypeAnnotation{}, p.errorAt(t, "expected type annotation, found "+describe(t))
	}

	ann := TypeAnnotation{Name: t.text, Span: t.span()}
	for p.peek().is(tokOp, ".") {
		p.next()
		part := p.next()
		if part.kind != tokName {
			return ann, p.errorAt(part, "expected name after '.', found "+describe(part))
		}
		ann.Name += "." + part.text
		ann.Span.End = part.end
	}
	if !p.peek().is(tokOp, "[") {
		return ann, nil
	}
	p.next()
	args, end, err := p.annotationList("]")
	if err != nil {
		return ann, err
	}
	ann.Args = args
	ann.Span.End = end
	return ann, nil
}

// listLiteral parses the bracketed argument list used by annotations such
// as Callable[[int], str]. The result has the name "[]".
func (p *declParser) listLiteral(open token) (TypeAnnotation, *Error) {
	args, end, err := p.annotationList("]")
	if err != nil {
		return TypeAnnotation{}, err
	}
	return TypeAnnotation{Name: "[]", Args: args, Span: Span{Start: open.pos, End: end}}, nil
}

func (p *declParser) annotationList(closer string) ([]TypeAnnotation, Position, *Error) {
	var args []TypeAnnotation
	for {
		if t := p.peek(); t.is(tokOp, closer) && len(args) > 0 {
			p.next()
			return args, t.end, nil
		}
		arg, err := p.annotation()
		if err != nil {
			return nil, Position{}, err
		}
		args = append(args, arg)
		sep := p.next()
		switch {
		case sep.is(tokOp, ","):
		case sep.is(tokOp, closer):
			return args, sep.end, nil
		default:
			return nil, Position{}, p.errorAt(sep, "expected ',' or '"+closer+"' in type annotation, found "+describe(sep))
		}
	}
}

// forwardRef parses a string annotation such as "list[int]". Spans of the
// nested annotation point at the string literal.
func (p *declParser) forwardRef(lit token) (TypeAnnotation, *Error) {
	inner := stringValue(lit.text)
	var body []token
	for _, t := range scan(inner) {
		switch t.kind {
		case tokNewline, tokEOF:
			continue
		case tokError:
			return TypeAnnotation{}, p.errorAt(lit, "invalid string annotation: "+t.msg)
		}
		t.pos, t.end = lit.pos, lit.end
		body = append(body, t)
	}
	if len(body) == 0 {
		return TypeAnnotation{}, p.errorAt(lit, "empty string annotation")
	}
	sub := &declParser{src: inner, toks: body}
	ann, err := sub.annotation()
	if err != nil || sub.cur != len(body) {
		return TypeAnnotation{}, p.errorAt(lit, "invalid string annotation "+lit.text)
	}
	setSpan(&ann, lit.span())
	return ann, nil
}

func setSpan(ann *TypeAnnotation, span Span) {
	ann.Span = span
	for i := range ann.Args {
		setSpan(&ann.Args[i], span)
	}
}
