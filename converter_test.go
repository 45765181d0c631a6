package snakebind_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/richinsley/snakebind"
	"github.com/richinsley/snakebind/snaketest"
)

func roundTrip[T any](t *testing.T, s *snakebind.Scope, fake *snaketest.Interpreter, v T, wantPy any) {
	t.Helper()
	o, err := snakebind.Encode(s, v)
	if err != nil {
		t.Fatalf("Encode(%v): %v", v, err)
	}
	defer o.Release(s)
	if diff := cmp.Diff(wantPy, fake.Value(o.Ref())); diff != "" {
		t.Errorf("Encode(%v) mismatch (-want +got):\n%s", v, diff)
	}
	got, err := snakebind.Decode[T](s, o)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := cmp.Diff(v, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
}

func TestContainerConverters(t *testing.T) {
	fake := snaketest.New()
	interp := snaketest.Start(t, fake)
	r := interp.Registry()
	snakebind.RegisterList[int64](r)
	snakebind.RegisterList[string](r)
	snakebind.RegisterTuple2[string, int64](r)
	snakebind.RegisterDict[string, int64](r)
	snakebind.RegisterList[map[string]int64](r)
	snakebind.RegisterTuple3[int64, float64, bool](r)
	snakebind.RegisterTuple4[string, string, int64, []byte](r)
	snakebind.RegisterOptional[int64](r)
	s := acquire(t, interp)

	roundTrip(t, s, fake, []int64{1, 2, 3}, []any{int64(1), int64(2), int64(3)})
	roundTrip(t, s, fake, []string{}, []any{})
	roundTrip(t, s, fake, map[string]int64{"b": 2, "a": 1}, map[any]any{"a": int64(1), "b": int64(2)})
	roundTrip(t, s, fake,
		[]map[string]int64{{"x": 1}, {}},
		[]any{map[any]any{"x": int64(1)}, map[any]any{}})
	roundTrip(t, s, fake, snakebind.T3(int64(1), 2.5, true), snaketest.Tuple{int64(1), 2.5, true})
	roundTrip(t, s, fake, snakebind.T4("a", "b", int64(3), []byte("d")), snaketest.Tuple{"a", "b", int64(3), []byte("d")})

	seven := int64(7)
	roundTrip(t, s, fake, &seven, int64(7))
	roundTrip[*int64](t, s, fake, nil, nil)

	if got := fake.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d, want 0", got)
	}
}

func TestDecodeListOfDicts(t *testing.T) {
	fake := snaketest.New()
	interp := snaketest.Start(t, fake)
	r := interp.Registry()
	before := len(r.Types())
	snakebind.RegisterTuple2[string, string](r)
	snakebind.RegisterDict[string, string](r)
	snakebind.RegisterList[map[string]string](r)
	snakebind.RegisterDict[string, string](r)

	if got := len(r.Types()) - before; got != 3 {
		t.Errorf("registered %d converters, want 3: %v", got, r.Types())
	}
	for _, typ := range []reflect.Type{
		reflect.TypeFor[snakebind.Tuple2[string, string]](),
		reflect.TypeFor[map[string]string](),
		reflect.TypeFor[[]map[string]string](),
	} {
		if !r.Registered(typ) {
			t.Errorf("%v is not registered", typ)
		}
	}

	s := acquire(t, interp)
	ref, err := fake.FromValue([]any{
		map[string]string{"name": "ada", "lang": "en"},
		map[string]string{"name": "grace", "lang": "cobol"},
	})
	if err != nil {
		t.Fatal(err)
	}
	o := s.Own(ref)
	got, err := snakebind.Decode[[]map[string]string](s, o)
	o.Release(s)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	want := []map[string]string{
		{"name": "ada", "lang": "en"},
		{"name": "grace", "lang": "cobol"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Decode mismatch (-want +got):\n%s", diff)
	}
	if got := fake.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d, want 0", got)
	}
}

func TestDictEncodingIsSorted(t *testing.T) {
	fake := snaketest.New()
	interp := snaketest.Start(t, fake)
	r := interp.Registry()
	snakebind.RegisterTuple2[string, int64](r)
	snakebind.RegisterDict[string, int64](r)
	s := acquire(t, interp)

	d, err := snakebind.Encode(s, map[string]int64{"c": 3, "a": 1, "b": 2})
	if err != nil {
		t.Fatal(err)
	}
	defer d.Release(s)
	pairs, err := s.DictPairs(d)
	if err != nil {
		t.Fatal(err)
	}
	defer pairs.Release(s)

	want := []any{
		snaketest.Tuple{"a", int64(1)},
		snaketest.Tuple{"b", int64(2)},
		snaketest.Tuple{"c", int64(3)},
	}
	if diff := cmp.Diff(want, fake.Value(pairs.Ref())); diff != "" {
		t.Errorf("dict order mismatch (-want +got):\n%s", diff)
	}
}

func TestConverterLookupError(t *testing.T) {
	fake := snaketest.New()
	interp := snaketest.Start(t, fake)
	s := acquire(t, interp)

	_, err := snakebind.Encode(s, []float64{1})
	var lookupErr *snakebind.ConverterLookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("Encode error = %v, want *ConverterLookupError", err)
	}
	if lookupErr.Type != reflect.TypeOf([]float64(nil)) {
		t.Errorf("Type = %v", lookupErr.Type)
	}

	// A dict converter without its pair converter fails before encoding.
	snakebind.RegisterDict[string, float64](interp.Registry())
	_, err = snakebind.Encode(s, map[string]float64{"a": 1})
	if !errors.As(err, &lookupErr) {
		t.Fatalf("Encode(dict) error = %v, want *ConverterLookupError", err)
	}
	if got := fake.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d, want 0", got)
	}
}

func TestConversionError(t *testing.T) {
	fake := snaketest.New()
	interp := snaketest.Start(t, fake)
	snakebind.RegisterList[int64](interp.Registry())
	s := acquire(t, interp)

	str, _ := s.NewStr("x")
	defer str.Release(s)
	_, err := snakebind.Decode[int64](s, str)
	var convErr *snakebind.ConversionError
	if !errors.As(err, &convErr) {
		t.Fatalf("Decode error = %v, want *ConversionError", err)
	}
	if convErr.PyType != "str" {
		t.Errorf("PyType = %q, want str", convErr.PyType)
	}

	_, err = snakebind.Decode[[]int64](s, str)
	if !errors.As(err, &convErr) {
		t.Fatalf("Decode([]int64) error = %v, want *ConversionError", err)
	}
}

func TestRegistryTypes(t *testing.T) {
	r := snakebind.NewRegistry()
	snakebind.RegisterList[int64](r)
	snakebind.RegisterList[int64](r)

	want := []string{"[]int64", "[]uint8", "bool", "float64", "int64", "string"}
	if diff := cmp.Diff(want, r.Types()); diff != "" {
		t.Errorf("Types() mismatch (-want +got):\n%s", diff)
	}
	if !r.Registered(reflect.TypeOf([]int64(nil))) {
		t.Error("Registered([]int64) = false")
	}
}

func TestCustomConverter(t *testing.T) {
	type celsius float64

	fake := snaketest.New()
	interp := snaketest.Start(t, fake)
	snakebind.Register[celsius](interp.Registry(), snakebind.ConverterFuncs[celsius]{
		EncodeFunc: func(s *snakebind.Scope, v celsius) (*snakebind.Object, error) {
			return s.NewFloat(float64(v))
		},
		DecodeFunc: func(s *snakebind.Scope, o *snakebind.Object) (celsius, error) {
			f, err := s.AsFloat(o)
			return celsius(f), err
		},
	})
	snakebind.RegisterList[celsius](interp.Registry())
	s := acquire(t, interp)

	roundTrip(t, s, fake, []celsius{21.5}, []any{21.5})
}
