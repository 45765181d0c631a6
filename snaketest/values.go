package snaketest

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"

	"github.com/richinsley/snakebind"
)

// Tuple is the Go form of a Python tuple in Value and FromValue.
type Tuple []any

// Value converts a native object to plain Go values: None is nil, int is
// int64, float is float64, list is []any, tuple is Tuple and dict is
// map[any]any. Bytes used as dict keys become strings.
func (n *Interpreter) Value(r snakebind.Ref) any {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.value(n.get("Value", r))
}

func (n *Interpreter) value(o *object) any {
	switch o.kind {
	case kindNone:
		return nil
	case kindInt:
		return o.i
	case kindFloat:
		return o.f
	case kindBool:
		return o.b
	case kindStr:
		return o.s
	case kindBytes:
		return slices.Clone(o.by)
	case kindList, kindTuple:
		out := make([]any, len(o.items))
		for i, item := range o.items {
			if item != nil {
				out[i] = n.value(item)
			}
		}
		if o.kind == kindTuple {
			return Tuple(out)
		}
		return out
	case kindDict:
		out := make(map[any]any, len(o.keys))
		for i, k := range o.keys {
			key := n.value(k)
			if b, ok := key.([]byte); ok {
				key = string(b)
			}
			out[key] = n.value(o.vals[i])
		}
		return out
	}
	return fmt.Sprintf("<%s %s>", o.kind, o.name)
}

// FromValue builds a new object from a Go value. It accepts nil, integers,
// floats, bool, string, []byte, Tuple, and slices and maps of those. Map
// entries are inserted in sorted key order.
func (n *Interpreter) FromValue(v any) (snakebind.Ref, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	o, err := n.fromValue(reflect.ValueOf(v))
	if err != nil {
		return nil, err
	}
	return ref(o), nil
}

func (n *Interpreter) fromValue(v reflect.Value) (*object, error) {
	if !v.IsValid() {
		n.incref(n.none)
		return n.none, nil
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			n.incref(n.none)
			return n.none, nil
		}
		return n.fromValue(v.Elem())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return n.alloc(&object{kind: kindInt, i: v.Int()}), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return n.alloc(&object{kind: kindInt, i: int64(v.Uint())}), nil
	case reflect.Float32, reflect.Float64:
		return n.alloc(&object{kind: kindFloat, f: v.Float()}), nil
	case reflect.Bool:
		return n.alloc(&object{kind: kindBool, b: v.Bool()}), nil
	case reflect.String:
		return n.alloc(&object{kind: kindStr, s: v.String()}), nil
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return n.alloc(&object{kind: kindBytes, by: slices.Clone(v.Bytes())}), nil
		}
		k := kindList
		if v.Type() == reflect.TypeOf(Tuple(nil)) {
			k = kindTuple
		}
		o := n.alloc(&object{kind: k, items: make([]*object, v.Len())})
		for i := range v.Len() {
			item, err := n.fromValue(v.Index(i))
			if err != nil {
				n.decref(o)
				return nil, err
			}
			o.items[i] = item
		}
		return o, nil
	case reflect.Map:
		keys := v.MapKeys()
		slices.SortFunc(keys, func(a, b reflect.Value) int {
			return cmp.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
		})
		d := n.alloc(&object{kind: kindDict})
		for _, k := range keys {
			ko, err := n.fromValue(k)
			if err != nil {
				n.decref(d)
				return nil, err
			}
			vo, err := n.fromValue(v.MapIndex(k))
			if err != nil {
				n.decref(ko)
				n.decref(d)
				return nil, err
			}
			d.keys = append(d.keys, ko)
			d.vals = append(d.vals, vo)
		}
		return d, nil
	}
	return nil, fmt.Errorf("snaketest: cannot convert %s", v.Type())
}

// Values adapts a function over plain Go values to a Func. Arguments are
// converted with Value and the result with FromValue.
func Values(fn func(args []any, kwargs map[string]any) (any, error)) Func {
	return func(n *Interpreter, args []snakebind.Ref, kwargs map[string]snakebind.Ref) (snakebind.Ref, error) {
		in := make([]any, len(args))
		for i, a := range args {
			in[i] = n.Value(a)
		}
		kw := make(map[string]any, len(kwargs))
		for name, v := range kwargs {
			kw[name] = n.Value(v)
		}
		out, err := fn(in, kw)
		if err != nil {
			return nil, err
		}
		return n.FromValue(out)
	}
}
