package snaketest

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/richinsley/snakebind"
)

func withGIL(t *testing.T, n *Interpreter) {
	t.Helper()
	st := n.EnsureGIL()
	t.Cleanup(func() { n.ReleaseGIL(st) })
}

func TestRefCounting(t *testing.T) {
	n := New()
	withGIL(t, n)

	a, _ := n.NewInt(1)
	b, _ := n.NewStr("x")
	list, _ := n.NewList(2)
	if err := n.ListSet(list, 0, a); err != nil {
		t.Fatal(err)
	}
	if err := n.ListSet(list, 1, b); err != nil {
		t.Fatal(err)
	}
	if got := n.LiveObjects(); got != 3 {
		t.Fatalf("LiveObjects() = %d, want 3", got)
	}

	n.IncRef(a)
	if got := n.RefCount(a); got != 2 {
		t.Errorf("RefCount(a) = %d, want 2", got)
	}
	n.DecRef(list)
	if got := n.LiveObjects(); got != 1 {
		t.Errorf("LiveObjects() after freeing list = %d, want 1", got)
	}
	n.DecRef(a)
	if got := n.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d, want 0", got)
	}
	if p := n.Problems(); len(p) != 0 {
		t.Errorf("Problems() = %v", p)
	}
}

func TestProblems(t *testing.T) {
	n := New()
	st := n.EnsureGIL()
	v, _ := n.NewInt(1)
	n.DecRef(v)
	n.DecRef(v)
	n.ReleaseGIL(st)
	n.NewInt(2)

	want := []string{
		"DecRef: use of freed int",
		"NewInt called without the GIL",
	}
	if diff := cmp.Diff(want, n.Problems()); diff != "" {
		t.Errorf("Problems() mismatch (-want +got):\n%s", diff)
	}
}

func TestSetItemSteals(t *testing.T) {
	n := New()
	withGIL(t, n)

	list, _ := n.NewList(1)
	v, _ := n.NewInt(1)
	if err := n.ListSet(list, 3, v); err == nil {
		t.Fatal("ListSet out of range succeeded")
	}
	n.DecRef(list)
	if got := n.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d, want 0", got)
	}
}

func TestDict(t *testing.T) {
	n := New()
	withGIL(t, n)

	pairs, err := n.FromValue([]any{Tuple{"a", 1}, Tuple{"b", 2}, Tuple{"a", 3}})
	if err != nil {
		t.Fatal(err)
	}
	d, err := n.DictFromPairs(pairs)
	if err != nil {
		t.Fatal(err)
	}
	n.DecRef(pairs)

	want := map[any]any{"a": int64(3), "b": int64(2)}
	if diff := cmp.Diff(want, n.Value(d)); diff != "" {
		t.Errorf("dict mismatch (-want +got):\n%s", diff)
	}

	items, err := n.DictPairs(d)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]any{Tuple{"a", int64(3)}, Tuple{"b", int64(2)}}, n.Value(items)); diff != "" {
		t.Errorf("DictPairs mismatch (-want +got):\n%s", diff)
	}
	n.DecRef(items)
	n.DecRef(d)
	if got := n.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d, want 0", got)
	}
}

func TestDictUnhashable(t *testing.T) {
	n := New()
	withGIL(t, n)

	pairs, _ := n.FromValue([]any{Tuple{"a", 1}, Tuple{[]any{1}, 2}})
	_, err := n.DictFromPairs(pairs)
	var pe *snakebind.PythonException
	if !errors.As(err, &pe) || pe.Exception != "TypeError" {
		t.Fatalf("DictFromPairs() error = %v, want TypeError", err)
	}
	n.DecRef(pairs)
	if got := n.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d, want 0", got)
	}
}

func TestCall(t *testing.T) {
	n := New()
	n.Define("m", map[string]Func{
		"add": Values(func(args []any, kw map[string]any) (any, error) {
			return args[0].(int64) + kw["b"].(int64), nil
		}),
		"fail": Values(func([]any, map[string]any) (any, error) {
			return nil, errors.New("boom")
		}),
		"raise": Values(func([]any, map[string]any) (any, error) {
			return nil, Raise("ValueError", "bad value %d", 7)
		}),
	})
	withGIL(t, n)

	mod, err := n.ImportModule("m")
	if err != nil {
		t.Fatal(err)
	}
	add, err := n.GetAttr(mod, "add")
	if err != nil {
		t.Fatal(err)
	}
	x, _ := n.NewInt(2)
	y, _ := n.NewInt(3)
	ret, err := n.Call(add, []snakebind.Ref{x}, []string{"b"}, []snakebind.Ref{y})
	if err != nil {
		t.Fatal(err)
	}
	if got := n.Value(ret); got != int64(5) {
		t.Errorf("add(2, b=3) = %v, want 5", got)
	}
	for _, r := range []snakebind.Ref{ret, x, y} {
		n.DecRef(r)
	}

	tests := []struct {
		name string
		want string
	}{
		{"fail", "RuntimeError: boom"},
		{"raise", "ValueError: bad value 7"},
	}
	for _, tt := range tests {
		fn, err := n.GetAttr(mod, tt.name)
		if err != nil {
			t.Fatal(err)
		}
		_, err = n.Call(fn, nil, nil, nil)
		if err == nil || err.Error() != tt.want {
			t.Errorf("%s() error = %v, want %q", tt.name, err, tt.want)
		}
	}

	if _, err := n.ImportModule("missing"); err == nil || err.Error() != "ModuleNotFoundError: No module named 'missing'" {
		t.Errorf("ImportModule(missing) error = %v", err)
	}
	if _, err := n.GetAttr(mod, "nope"); err == nil {
		t.Error("GetAttr(nope) succeeded")
	}

	want := map[string]int{"m.add": 1, "m.fail": 1, "m.raise": 1}
	if diff := cmp.Diff(want, n.Calls()); diff != "" {
		t.Errorf("Calls() mismatch (-want +got):\n%s", diff)
	}
	if got := n.LiveObjects(); got != 0 {
		t.Errorf("LiveObjects() = %d, want 0", got)
	}
}

func TestConversions(t *testing.T) {
	n := New()
	withGIL(t, n)

	b, _ := n.NewBool(true)
	defer n.DecRef(b)
	if v, err := n.AsInt(b); err != nil || v != 1 {
		t.Errorf("AsInt(True) = %d, %v", v, err)
	}
	i, _ := n.NewInt(4)
	defer n.DecRef(i)
	if v, err := n.AsFloat(i); err != nil || v != 4 {
		t.Errorf("AsFloat(4) = %v, %v", v, err)
	}
	if _, err := n.AsBool(i); err == nil {
		t.Error("AsBool(4) succeeded")
	}
	if _, err := n.AsStr(i); err == nil {
		t.Error("AsStr(4) succeeded")
	}
	if got := n.TypeName(i); got != "int" {
		t.Errorf("TypeName = %q", got)
	}
	if !n.IsNone(n.None()) {
		t.Error("IsNone(None) = false")
	}
}
