package snakebind

import (
	"cmp"
	"fmt"
	"slices"
)

// Tuple2 is a Python 2-tuple.
type Tuple2[A, B any] struct {
	V1 A
	V2 B
}

// Tuple3 is a Python 3-tuple.
type Tuple3[A, B, C any] struct {
	V1 A
	V2 B
	V3 C
}

// Tuple4 is a Python 4-tuple.
type Tuple4[A, B, C, D any] struct {
	V1 A
	V2 B
	V3 C
	V4 D
}

// T2 returns a Tuple2.
func T2[A, B any](a A, b B) Tuple2[A, B] {
	return Tuple2[A, B]{V1: a, V2: b}
}

// T3 returns a Tuple3.
func T3[A, B, C any](a A, b B, c C) Tuple3[A, B, C] {
	return Tuple3[A, B, C]{V1: a, V2: b, V3: c}
}

// T4 returns a Tuple4.
func T4[A, B, C, D any](a A, b B, c C, d D) Tuple4[A, B, C, D] {
	return Tuple4[A, B, C, D]{V1: a, V2: b, V3: c, V4: d}
}

// RegisterList registers the converter for []T. Elements are converted
// with the converter registered for T at call time.
func RegisterList[T any](r *Registry) {
	registerOnce[[]T](r, listConverter[T]{})
}

// RegisterDict registers the converter for map[K]V. A dict travels as a
// list of (key, value) pairs, so the converter for Tuple2[K, V] must be
// registered as well.
func RegisterDict[K cmp.Ordered, V any](r *Registry) {
	registerOnce[map[K]V](r, dictConverter[K, V]{})
}

// RegisterTuple2 registers the converter for Tuple2[A, B].
func RegisterTuple2[A, B any](r *Registry) {
	registerOnce[Tuple2[A, B]](r, ConverterFuncs[Tuple2[A, B]]{
		EncodeFunc: func(s *Scope, v Tuple2[A, B]) (*Object, error) {
			return encodeTuple(s, func(s *Scope) (*Object, error) { return Encode(s, v.V1) },
				func(s *Scope) (*Object, error) { return Encode(s, v.V2) })
		},
		DecodeFunc: func(s *Scope, o *Object) (v Tuple2[A, B], err error) {
			items, err := tupleItems[Tuple2[A, B]](s, o, 2)
			if err != nil {
				return v, err
			}
			if v.V1, err = Decode[A](s, items[0]); err != nil {
				return v, err
			}
			v.V2, err = Decode[B](s, items[1])
			return v, err
		},
	})
}

// RegisterTuple3 registers the converter for Tuple3[A, B, C].
func RegisterTuple3[A, B, C any](r *Registry) {
	registerOnce[Tuple3[A, B, C]](r, ConverterFuncs[Tuple3[A, B, C]]{
		EncodeFunc: func(s *Scope, v Tuple3[A, B, C]) (*Object, error) {
			return encodeTuple(s, func(s *Scope) (*Object, error) { return Encode(s, v.V1) },
				func(s *Scope) (*Object, error) { return Encode(s, v.V2) },
				func(s *Scope) (*Object, error) { return Encode(s, v.V3) })
		},
		DecodeFunc: func(s *Scope, o *Object) (v Tuple3[A, B, C], err error) {
			items, err := tupleItems[Tuple3[A, B, C]](s, o, 3)
			if err != nil {
				return v, err
			}
			if v.V1, err = Decode[A](s, items[0]); err != nil {
				return v, err
			}
			if v.V2, err = Decode[B](s, items[1]); err != nil {
				return v, err
			}
			v.V3, err = Decode[C](s, items[2])
			return v, err
		},
	})
}

// RegisterTuple4 registers the converter for Tuple4[A, B, C, D].
func RegisterTuple4[A, B, C, D any](r *Registry) {
	registerOnce[Tuple4[A, B, C, D]](r, ConverterFuncs[Tuple4[A, B, C, D]]{
		EncodeFunc: func(s *Scope, v Tuple4[A, B, C, D]) (*Object, error) {
			return encodeTuple(s, func(s *Scope) (*Object, error) { return Encode(s, v.V1) },
				func(s *Scope) (*Object, error) { return Encode(s, v.V2) },
				func(s *Scope) (*Object, error) { return Encode(s, v.V3) },
				func(s *Scope) (*Object, error) { return Encode(s, v.V4) })
		},
		DecodeFunc: func(s *Scope, o *Object) (v Tuple4[A, B, C, D], err error) {
			items, err := tupleItems[Tuple4[A, B, C, D]](s, o, 4)
			if err != nil {
				return v, err
			}
			if v.V1, err = Decode[A](s, items[0]); err != nil {
				return v, err
			}
			if v.V2, err = Decode[B](s, items[1]); err != nil {
				return v, err
			}
			if v.V3, err = Decode[C](s, items[2]); err != nil {
				return v, err
			}
			v.V4, err = Decode[D](s, items[3])
			return v, err
		},
	})
}

// RegisterOptional registers the converter for *T. A nil pointer is None.
func RegisterOptional[T any](r *Registry) {
	registerOnce[*T](r, ConverterFuncs[*T]{
		EncodeFunc: func(s *Scope, v *T) (*Object, error) {
			if v == nil {
				return s.NewNone()
			}
			return Encode(s, *v)
		},
		DecodeFunc: func(s *Scope, o *Object) (*T, error) {
			if s.IsNone(o) {
				return nil, nil
			}
			v, err := Decode[T](s, o)
			if err != nil {
				return nil, err
			}
			return &v, nil
		},
	})
}

func encodeTuple(s *Scope, elems ...func(*Scope) (*Object, error)) (*Object, error) {
	items := make([]*Object, 0, len(elems))
	for _, encode := range elems {
		item, err := encode(s)
		if err != nil {
			releaseAll(s, items)
			return nil, err
		}
		items = append(items, item)
	}
	return s.NewTuple(items)
}

func tupleItems[T any](s *Scope, o *Object, n int) ([]*Object, error) {
	items, err := s.TupleItems(o)
	if err != nil {
		return nil, &ConversionError{Type: typeOf[T](), PyType: s.TypeName(o), Err: err}
	}
	if len(items) != n {
		return nil, &ConversionError{
			Type:   typeOf[T](),
			PyType: s.TypeName(o),
			Err:    fmt.Errorf("expected %d items, got %d", n, len(items)),
		}
	}
	return items, nil
}

type listConverter[T any] struct{}

func (listConverter[T]) Encode(s *Scope, v []T) (*Object, error) {
	items := make([]*Object, 0, len(v))
	for _, e := range v {
		item, err := Encode(s, e)
		if err != nil {
			releaseAll(s, items)
			return nil, err
		}
		items = append(items, item)
	}
	return s.NewList(items)
}

func (listConverter[T]) Decode(s *Scope, o *Object) ([]T, error) {
	items, err := s.ListItems(o)
	if err != nil {
		return nil, &ConversionError{Type: typeOf[[]T](), PyType: s.TypeName(o), Err: err}
	}
	out := make([]T, len(items))
	for i, item := range items {
		if out[i], err = Decode[T](s, item); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type dictConverter[K cmp.Ordered, V any] struct{}

func (dictConverter[K, V]) Encode(s *Scope, v map[K]V) (*Object, error) {
	// Fail before encoding anything if the pair converter is missing.
	if _, err := Lookup[Tuple2[K, V]](s.Registry()); err != nil {
		return nil, err
	}
	keys := make([]K, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	pairs := make([]Tuple2[K, V], len(keys))
	for i, k := range keys {
		pairs[i] = T2(k, v[k])
	}

	list, err := listConverter[Tuple2[K, V]]{}.Encode(s, pairs)
	if err != nil {
		return nil, err
	}
	defer list.Release(s)
	return s.DictFromPairs(list)
}

func (dictConverter[K, V]) Decode(s *Scope, o *Object) (map[K]V, error) {
	list, err := s.DictPairs(o)
	if err != nil {
		return nil, &ConversionError{Type: typeOf[map[K]V](), PyType: s.TypeName(o), Err: err}
	}
	defer list.Release(s)
	pairs, err := listConverter[Tuple2[K, V]]{}.Decode(s, list)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, len(pairs))
	for _, p := range pairs {
		out[p.V1] = p.V2
	}
	return out, nil
}
