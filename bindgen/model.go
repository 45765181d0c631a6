package bindgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/richinsley/snakebind/typemap"
)

// moduleData is the input of the binding template.
type moduleData struct {
	Source        string
	Package       string
	Module        string
	Key           string
	Name          string
	Impl          string
	Registrations []string
	Methods       []methodData
}

type methodData struct {
	Name     string
	PyName   string
	Field    string
	Doc      []string
	Params   []paramData
	Kwargs   []string
	Args     string
	Results  string
	Returns  string
	Zero     string
	Decode   string
	ErrorFmt string
}

type paramData struct {
	Name   string
	Type   string
	Arg    string
	Encode string
}

// Signature is the Go parameter list of the method.
func (m methodData) Signature() string {
	parts := make([]string, len(m.Params))
	for i, p := range m.Params {
		parts[i] = p.Name + " " + p.Type
	}
	return strings.Join(parts, ", ")
}

var scalarEncoders = map[typemap.ScalarKind]string{
	typemap.Int:   "NewInt",
	typemap.Float: "NewFloat",
	typemap.Str:   "NewStr",
	typemap.Bool:  "NewBool",
	typemap.Bytes: "NewBytes",
}

var scalarDecoders = map[typemap.ScalarKind]string{
	typemap.Int:   "AsInt",
	typemap.Float: "AsFloat",
	typemap.Str:   "AsStr",
	typemap.Bool:  "AsBool",
	typemap.Bytes: "AsBytes",
}

func encodeExpr(t typemap.MappedType, name string) string {
	if t.Kind == typemap.Scalar {
		return fmt.Sprintf("s.%s(%s)", scalarEncoders[t.Scalar], name)
	}
	return fmt.Sprintf("%s.Encode(s, %s)", typemap.RuntimePackage, name)
}

func decodeExpr(t typemap.MappedType) string {
	if t.Kind == typemap.Scalar {
		return fmt.Sprintf("s.%s(ret)", scalarDecoders[t.Scalar])
	}
	return fmt.Sprintf("%s.Decode[%s](s, ret)", typemap.RuntimePackage, t.GoType)
}

// registration is the statement that registers one converter with reg.
func registration(id typemap.ConverterID) string {
	args := strings.Join(id.Args, ", ")
	var fn string
	switch id.Container {
	case typemap.List:
		fn = "RegisterList"
	case typemap.Dict:
		fn = "RegisterDict"
	case typemap.Tuple:
		fn = "RegisterTuple" + strconv.Itoa(len(id.Args))
	case typemap.OptionalValue:
		fn = "RegisterOptional"
	default:
		panic("bindgen: unknown converter container " + string(id.Container))
	}
	return fmt.Sprintf("%s.%s[%s](reg)", typemap.RuntimePackage, fn, args)
}

// newMethod builds the template data of one function. name is the Go
// method name.
func newMethod(module, name string, fn typemap.Function) methodData {
	m := methodData{
		Name:     name,
		PyName:   fn.Decl.Name,
		Field:    "fn" + name,
		Doc:      methodDoc(module, name, fn),
		ErrorFmt: strconv.Quote(module + "." + fn.Decl.Name + ": %w"),
	}

	pyNames := make([]string, len(fn.Params))
	for i, p := range fn.Params {
		pyNames[i] = p.Name
	}
	goNames := paramNames(pyNames)

	var positional []string
	for i, p := range fn.Params {
		pd := paramData{Name: goNames[i], Type: p.Type.GoType}
		if p.KeywordOnly {
			pd.Arg = "kw" + strconv.Itoa(len(m.Kwargs))
			m.Kwargs = append(m.Kwargs, fmt.Sprintf("%s.KW(%s, %s)", typemap.RuntimePackage, strconv.Quote(p.Name), pd.Arg))
		} else {
			pd.Arg = "arg" + strconv.Itoa(len(positional))
			positional = append(positional, pd.Arg)
		}
		pd.Encode = encodeExpr(p.Type, pd.Name)
		m.Params = append(m.Params, pd)
	}
	if len(positional) == 0 {
		m.Args = "nil"
	} else {
		m.Args = fmt.Sprintf("[]*%s.Object{%s}", typemap.RuntimePackage, strings.Join(positional, ", "))
	}

	if fn.Returns.IsNone() {
		m.Results = "error"
		m.Returns = "error"
		return m
	}
	m.Results = "(" + fn.Returns.GoType + ", error)"
	m.Returns = "(result " + fn.Returns.GoType + ", err error)"
	m.Zero = "result, "
	m.Decode = decodeExpr(fn.Returns)
	return m
}

// methodDoc returns the comment lines of a method: a summary, the
// docstring and the Python defaults, which Go callers must pass
// explicitly.
func methodDoc(module, name string, fn typemap.Function) []string {
	doc := []string{fmt.Sprintf("// %s calls %s.%s.", name, module, fn.Decl.Name)}
	if fn.Decl.Docstring != "" {
		doc = append(doc, "//")
		for line := range strings.SplitSeq(fn.Decl.Docstring, "\n") {
			doc = append(doc, commentLine(line))
		}
	}
	var defaults []string
	for _, p := range fn.Params {
		if p.HasDefault {
			defaults = append(defaults, p.Name+"="+p.Default)
		}
	}
	if len(defaults) > 0 {
		doc = append(doc, "//", "// Python defaults: "+strings.Join(defaults, ", ")+".")
	}
	return doc
}

func commentLine(line string) string {
	line = strings.TrimRight(line, " \t\r")
	if line == "" {
		return "//"
	}
	return "// " + line
}
