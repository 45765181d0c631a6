package snakebind

import (
	"reflect"
	"sort"
	"sync"
)

// Converter encodes Go values of type T as Python objects and decodes them
// back. Encode returns an owned Object; Decode never takes ownership of o.
type Converter[T any] interface {
	Encode(s *Scope, v T) (*Object, error)
	Decode(s *Scope, o *Object) (T, error)
}

// ConverterFuncs adapts a pair of functions to a Converter.
type ConverterFuncs[T any] struct {
	EncodeFunc func(s *Scope, v T) (*Object, error)
	DecodeFunc func(s *Scope, o *Object) (T, error)
}

func (c ConverterFuncs[T]) Encode(s *Scope, v T) (*Object, error) {
	return c.EncodeFunc(s, v)
}

func (c ConverterFuncs[T]) Decode(s *Scope, o *Object) (T, error) {
	return c.DecodeFunc(s, o)
}

// Registry maps Go types to their converters. Each Interpreter has one,
// pre-populated with the scalar converters. A Registry is safe for
// concurrent use.
type Registry struct {
	mu         sync.RWMutex
	converters map[reflect.Type]any
}

// NewRegistry returns a registry holding the scalar converters.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[reflect.Type]any)}
	registerScalars(r)
	return r
}

func typeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Register sets the converter for T, replacing any previous one.
func Register[T any](r *Registry, c Converter[T]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.converters[typeOf[T]()] = c
}

// registerOnce sets the converter for T unless one is already registered.
// It reports whether c was stored.
func registerOnce[T any](r *Registry, c Converter[T]) bool {
	t := typeOf[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.converters[t]; ok {
		return false
	}
	r.converters[t] = c
	return true
}

// Lookup returns the converter for T or a *ConverterLookupError.
func Lookup[T any](r *Registry) (Converter[T], error) {
	t := typeOf[T]()
	r.mu.RLock()
	c, ok := r.converters[t]
	r.mu.RUnlock()
	if !ok {
		return nil, &ConverterLookupError{Type: t}
	}
	return c.(Converter[T]), nil
}

// Registered reports whether a converter for t exists.
func (r *Registry) Registered(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.converters[t]
	return ok
}

// Types returns the registered Go types, sorted by name.
func (r *Registry) Types() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.converters))
	for t := range r.converters {
		names = append(names, t.String())
	}
	r.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Encode converts v with the converter registered for T in the scope's
// interpreter.
func Encode[T any](s *Scope, v T) (*Object, error) {
	c, err := Lookup[T](s.Registry())
	if err != nil {
		return nil, err
	}
	return c.Encode(s, v)
}

// Decode converts o with the converter registered for T.
func Decode[T any](s *Scope, o *Object) (T, error) {
	c, err := Lookup[T](s.Registry())
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Decode(s, o)
}
