package typemap

import (
	"fmt"

	"github.com/richinsley/snakebind/parser"
)

// UnsupportedTypeError reports an annotation with no Go mapping.
type UnsupportedTypeError struct {
	// Name is the annotation identifier that could not be mapped.
	Name   string
	Span   parser.Span
	Reason string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type %q: %s", e.Name, e.Reason)
}

func unsupported(ann parser.TypeAnnotation, reason string) *UnsupportedTypeError {
	return &UnsupportedTypeError{Name: ann.String(), Span: ann.Span, Reason: reason}
}

// Param is a mapped function parameter.
type Param struct {
	Name       string
	Type       MappedType
	Default    string
	HasDefault bool

	// KeywordOnly parameters are passed to Python as keyword arguments.
	KeywordOnly bool
}

// Function is a declaration with every annotation resolved.
type Function struct {
	Decl    parser.FunctionDeclaration
	Params  []Param
	Returns MappedType

	// Converters is the union of the converters of the parameters and the
	// result, in first-seen order.
	Converters []ConverterID
}

// MapFunction maps every parameter and the return annotation of decl. A
// missing return annotation means the function returns None.
func (m *Mapper) MapFunction(decl parser.FunctionDeclaration) (Function, error) {
	fn := Function{Decl: decl}
	var lists [][]ConverterID
	for _, p := range decl.Parameters {
		switch {
		case p.Kind == parser.VarPositional || p.Kind == parser.VarKeyword:
			return fn, &UnsupportedTypeError{
				Name:   p.Name,
				Span:   p.Span,
				Reason: fmt.Sprintf("%s parameters are not supported", p.Kind),
			}
		case p.Annotation == nil:
			return fn, &UnsupportedTypeError{
				Name:   p.Name,
				Span:   p.Span,
				Reason: "parameter has no type annotation",
			}
		}
		mt, err := m.Map(*p.Annotation)
		if err != nil {
			return fn, err
		}
		if mt.IsNone() {
			return fn, unsupported(*p.Annotation, "parameters cannot be None")
		}
		fn.Params = append(fn.Params, Param{
			Name:        p.Name,
			Type:        mt,
			Default:     p.Default,
			HasDefault:  p.HasDefault,
			KeywordOnly: p.Kind == parser.KeywordOnly,
		})
		lists = append(lists, mt.Converters)
	}

	ret := parser.TypeAnnotation{Name: "None", Span: decl.Span}
	if decl.Returns != nil {
		ret = *decl.Returns
	}
	mt, err := m.Map(ret)
	if err != nil {
		return fn, err
	}
	fn.Returns = mt
	lists = append(lists, mt.Converters)
	fn.Converters = Dedupe(lists...)
	return fn, nil
}
