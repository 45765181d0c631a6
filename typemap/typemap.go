// Package typemap resolves Python type annotations to Go types and to the
// converter registrations needed to marshal them.
//
// Resolution is a post-order walk over the annotation tree: the arguments of
// a generic are mapped before the generic itself, so the converter list of a
// MappedType always names inner converters before the outer ones that use
// them. Only a closed set of shapes is supported; anything else fails with
// an *UnsupportedTypeError.
package typemap

import (
	"fmt"
	"strings"
	"sync"

	"github.com/richinsley/snakebind/parser"
)

// RuntimePackage is the package name generated code uses to refer to the
// snakebind runtime.
const RuntimePackage = "snakebind"

// Kind is the shape of an annotation.
type Kind int

const (
	Scalar Kind = iota
	Generic
	Optional
	Union
)

func (k Kind) String() string {
	switch k {
	case Scalar:
		return "scalar"
	case Generic:
		return "generic"
	case Optional:
		return "optional"
	case Union:
		return "union"
	}
	return "unknown"
}

// ScalarKind identifies the scalar types that are marshaled by direct
// native calls.
type ScalarKind int

const (
	NotScalar ScalarKind = iota
	Int
	Float
	Str
	Bool
	Bytes
	NoneType
)

var scalarGoTypes = map[ScalarKind]string{
	Int:      "int64",
	Float:    "float64",
	Str:      "string",
	Bool:     "bool",
	Bytes:    "[]byte",
	NoneType: "",
}

// GoType returns the Go type of the scalar. NoneType maps to no type.
func (k ScalarKind) GoType() string {
	return scalarGoTypes[k]
}

func (k ScalarKind) String() string {
	switch k {
	case Int:
		return "int"
	case Float:
		return "float"
	case Str:
		return "str"
	case Bool:
		return "bool"
	case Bytes:
		return "bytes"
	case NoneType:
		return "None"
	}
	return "not-scalar"
}

// Container is the kind of a converter registration.
type Container string

const (
	List          Container = "list"
	Dict          Container = "dict"
	Tuple         Container = "tuple"
	OptionalValue Container = "optional"
)

// ConverterID identifies one converter registration: a container kind and
// the Go types of its arguments. Two IDs with equal String values are the
// same registration.
type ConverterID struct {
	Container Container
	Args      []string
}

func (c ConverterID) String() string {
	return string(c.Container) + "[" + strings.Join(c.Args, ", ") + "]"
}

// MappedType is an annotation resolved to a Go type.
type MappedType struct {
	Annotation parser.TypeAnnotation
	Kind       Kind

	// GoType is the Go spelling of the type. It is empty for None.
	GoType string

	// Scalar is NotScalar unless Kind is Scalar.
	Scalar ScalarKind

	// Converters lists the registrations needed to marshal the type, inner
	// before outer, without duplicates.
	Converters []ConverterID
}

// IsNone reports whether the type carries no value.
func (t MappedType) IsNone() bool {
	return t.Kind == Scalar && t.Scalar == NoneType
}

// Mapper maps annotations. Results are memoized on the canonical form of
// the annotation, so mapping structurally equal annotations yields equal
// converter identities. A Mapper is safe for concurrent use.
type Mapper struct {
	mu   sync.Mutex
	memo map[string]MappedType
}

// NewMapper returns an empty Mapper.
func NewMapper() *Mapper {
	return &Mapper{memo: make(map[string]MappedType)}
}

// Map resolves ann.
func (m *Mapper) Map(ann parser.TypeAnnotation) (MappedType, error) {
	key := ann.String()
	m.mu.Lock()
	mt, ok := m.memo[key]
	m.mu.Unlock()
	if ok {
		return withAnnotation(mt, ann), nil
	}

	mt, err := m.resolve(ann)
	if err != nil {
		return MappedType{}, err
	}
	m.mu.Lock()
	m.memo[key] = mt
	m.mu.Unlock()
	return withAnnotation(mt, ann), nil
}

func withAnnotation(mt MappedType, ann parser.TypeAnnotation) MappedType {
	mt.Annotation = ann
	mt.Converters = cloneIDs(mt.Converters)
	return mt
}

func cloneIDs(ids []ConverterID) []ConverterID {
	if ids == nil {
		return nil
	}
	out := make([]ConverterID, len(ids))
	for i, id := range ids {
		out[i] = ConverterID{Container: id.Container, Args: append([]string(nil), id.Args...)}
	}
	return out
}

// canonicalName strips the typing and collections.abc qualifiers.
func canonicalName(name string) string {
	for _, prefix := range []string{"typing.", "collections.abc.", "builtins."} {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}

// Classify returns the shape of ann without resolving it.
func Classify(ann parser.TypeAnnotation) Kind {
	switch canonicalName(ann.Name) {
	case "Optional":
		return Optional
	case "Union":
		if _, ok := optionalInner(ann); ok {
			return Optional
		}
		return Union
	}
	if len(ann.Args) > 0 {
		return Generic
	}
	return Scalar
}

var scalarNames = map[string]ScalarKind{
	"int":      Int,
	"float":    Float,
	"str":      Str,
	"bool":     Bool,
	"bytes":    Bytes,
	"None":     NoneType,
	"NoneType": NoneType,
}

// optionalInner returns T for Union[T, None] or Union[None, T].
func optionalInner(ann parser.TypeAnnotation) (parser.TypeAnnotation, bool) {
	if len(ann.Args) != 2 {
		return parser.TypeAnnotation{}, false
	}
	a, b := ann.Args[0], ann.Args[1]
	switch {
	case isNone(b) && !isNone(a):
		return a, true
	case isNone(a) && !isNone(b):
		return b, true
	}
	return parser.TypeAnnotation{}, false
}

func isNone(ann parser.TypeAnnotation) bool {
	return len(ann.Args) == 0 && scalarNames[canonicalName(ann.Name)] == NoneType
}

func (m *Mapper) resolve(ann parser.TypeAnnotation) (MappedType, error) {
	name := canonicalName(ann.Name)
	mt := MappedType{Annotation: ann, Kind: Classify(ann)}

	switch mt.Kind {
	case Scalar:
		kind, ok := scalarNames[name]
		if !ok {
			return mt, unsupported(ann, "no mapping to a Go type")
		}
		mt.Scalar = kind
		mt.GoType = kind.GoType()
		return mt, nil

	case Union:
		return mt, unsupported(ann, "only unions with None are supported")

	case Optional:
		inner := parser.TypeAnnotation{}
		if name == "Optional" {
			if len(ann.Args) != 1 {
				return mt, unsupported(ann, "Optional takes exactly one argument")
			}
			inner = ann.Args[0]
		} else {
			inner, _ = optionalInner(ann)
		}
		in, err := m.Map(inner)
		if err != nil {
			return mt, err
		}
		if in.IsNone() {
			return mt, unsupported(ann, "optional None has no value")
		}
		mt.GoType = "*" + in.GoType
		mt.Converters = appendIDs(in.Converters, ConverterID{Container: OptionalValue, Args: []string{in.GoType}})
		return mt, nil
	}

	args := make([]MappedType, len(ann.Args))
	var ids []ConverterID
	for i, a := range ann.Args {
		if a.Name == "[]" {
			return mt, unsupported(ann, "bracketed argument lists are not supported")
		}
		am, err := m.Map(a)
		if err != nil {
			return mt, err
		}
		if am.IsNone() {
			return mt, unsupported(a, "None is not a valid element type")
		}
		args[i] = am
		ids = appendIDs(ids, am.Converters...)
	}

	switch name {
	case "list", "List", "Sequence", "MutableSequence":
		if len(args) != 1 {
			return mt, unsupported(ann, "expects exactly one type argument")
		}
		mt.GoType = "[]" + args[0].GoType
		mt.Converters = appendIDs(ids, ConverterID{Container: List, Args: []string{args[0].GoType}})

	case "dict", "Dict", "Mapping", "MutableMapping":
		if len(args) != 2 {
			return mt, unsupported(ann, "expects exactly two type arguments")
		}
		switch args[0].Scalar {
		case Int, Float, Str:
		default:
			return mt, unsupported(ann.Args[0], "dictionary keys must be int, float or str")
		}
		k, v := args[0].GoType, args[1].GoType
		mt.GoType = "map[" + k + "]" + v
		mt.Converters = appendIDs(ids,
			ConverterID{Container: Tuple, Args: []string{k, v}},
			ConverterID{Container: Dict, Args: []string{k, v}},
		)

	case "tuple", "Tuple":
		if len(args) < 2 || len(args) > 4 {
			return mt, unsupported(ann, fmt.Sprintf("tuples must have 2 to 4 elements, got %d", len(args)))
		}
		types := make([]string, len(args))
		for i, a := range args {
			types[i] = a.GoType
		}
		mt.GoType = fmt.Sprintf("%s.Tuple%d[%s]", RuntimePackage, len(args), strings.Join(types, ", "))
		mt.Converters = appendIDs(ids, ConverterID{Container: Tuple, Args: types})

	default:
		return mt, unsupported(ann, "no mapping to a Go type")
	}
	return mt, nil
}

// appendIDs appends the ids that are not already in dst.
func appendIDs(dst []ConverterID, ids ...ConverterID) []ConverterID {
	seen := make(map[string]bool, len(dst))
	for _, id := range dst {
		seen[id.String()] = true
	}
	out := cloneIDs(dst)
	for _, id := range ids {
		key := id.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, id)
	}
	return out
}

// Dedupe merges converter lists in order, keeping the first occurrence of
// every identity.
func Dedupe(lists ...[]ConverterID) []ConverterID {
	var out []ConverterID
	for _, l := range lists {
		out = appendIDs(out, l...)
	}
	return out
}
