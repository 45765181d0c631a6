package bindgen

import (
	"context"
	"errors"
	goparser "go/parser"
	"go/token"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/richinsley/snakebind/internal/gencache"
)

func newGenerator(t *testing.T, opts Options) *Generator {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	g, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func generate(t *testing.T, path, src string) Result {
	t.Helper()
	return newGenerator(t, Options{}).Generate(context.Background(), File{Path: path, Source: []byte(src)})
}

// checkGo fails the test if src is not a valid Go file.
func checkGo(t *testing.T, src []byte) {
	t.Helper()
	if _, err := goparser.ParseFile(token.NewFileSet(), "binding.go", src, goparser.ParseComments); err != nil {
		t.Fatalf("generated source does not parse: %v\n%s", err, src)
	}
}

func codes(ds []Diagnostic) []string {
	var out []string
	for _, d := range ds {
		out = append(out, d.Severity.String()+" "+string(d.Code))
	}
	return out
}

func TestGenerateAdd(t *testing.T) {
	res := generate(t, "calc.py", `def add(a: int, b: int) -> int:
    """Return the sum of a and b."""
    return a + b
`)
	if res.Artifact == nil {
		t.Fatalf("no artifact: %v", res.Diagnostics)
	}
	want := []Diagnostic{{
		Severity: SevInfo,
		Code:     CodeGenerated,
		Message:  "generated Calc (calc.py.go)",
		File:     "calc.py",
	}}
	if diff := cmp.Diff(want, res.Diagnostics); diff != "" {
		t.Errorf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if res.Artifact.Name != "Calc" || res.Artifact.FileName != "calc.py.go" || res.Artifact.Module != "calc" {
		t.Errorf("artifact = %+v", res.Artifact)
	}

	src := res.Artifact.Source
	checkGo(t, src)
	for _, s := range []string{
		"// Code generated by snakebind from calc.py. DO NOT EDIT.\n",
		"package generated\n",
		"type Calc interface {",
		"\t// Add calls calc.add.\n\t//\n\t// Return the sum of a and b.\n",
		"\tAdd(a int64, b int64) (int64, error)\n",
		"func LoadCalc(interp *snakebind.Interpreter) (Calc, error) {",
		`interp.Binding("generated.calc", `,
		`s.Import("calc")`,
		`s.GetAttr(module, "add")`,
		"func (m *calcBinding) Add(a int64, b int64) (result int64, err error) {",
		"arg0, err := s.NewInt(a)",
		"arg1, err := s.NewInt(b)",
		"ret, err := s.Call(m.fnAdd, []*snakebind.Object{arg0, arg1})",
		"return s.AsInt(ret)",
	} {
		if !strings.Contains(string(src), s) {
			t.Errorf("generated source lacks %q:\n%s", s, src)
		}
	}
	if strings.Contains(string(src), "s.Registry()") {
		t.Errorf("scalar-only module registers converters:\n%s", src)
	}
}

func TestGenerateNestedRegistrations(t *testing.T) {
	tests := []struct {
		name string
		src  string
		regs []string
		use  string
	}{
		{
			name: "argument",
			src:  "def count(rows: list[dict[str, int]]) -> int:\n    ...\n",
			regs: []string{
				"snakebind.RegisterTuple2[string, int64](reg)",
				"snakebind.RegisterDict[string, int64](reg)",
				"snakebind.RegisterList[map[string]int64](reg)",
			},
			use: "arg0, err := snakebind.Encode(s, rows)",
		},
		{
			name: "result",
			src:  "def rows() -> list[dict[str, str]]:\n    ...\n",
			regs: []string{
				"snakebind.RegisterTuple2[string, string](reg)",
				"snakebind.RegisterDict[string, string](reg)",
				"snakebind.RegisterList[map[string]string](reg)",
			},
			use: "return snakebind.Decode[[]map[string]string](s, ret)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := generate(t, "report.py", tt.src)
			if res.Artifact == nil {
				t.Fatalf("no artifact: %v", res.Diagnostics)
			}
			src := string(res.Artifact.Source)
			checkGo(t, []byte(src))

			if n := strings.Count(src, "snakebind.Register"); n != len(tt.regs) {
				t.Errorf("found %d registrations, want %d:\n%s", n, len(tt.regs), src)
			}
			last := -1
			for _, r := range tt.regs {
				i := strings.Index(src, r)
				if i < 0 {
					t.Fatalf("generated source lacks %q:\n%s", r, src)
				}
				if i < last {
					t.Errorf("%q is out of order", r)
				}
				last = i
			}
			if !strings.Contains(src, tt.use) {
				t.Errorf("container not converted through the registry:\n%s", src)
			}
		})
	}
}

func TestGenerateDedupesAcrossFunctions(t *testing.T) {
	res := generate(t, "stats.py", `def total(xs: list[int]) -> int:
    ...

def double(xs: list[int]) -> list[int]:
    ...
`)
	if res.Artifact == nil {
		t.Fatalf("no artifact: %v", res.Diagnostics)
	}
	src := string(res.Artifact.Source)
	if n := strings.Count(src, "snakebind.RegisterList[int64](reg)"); n != 1 {
		t.Errorf("list converter registered %d times:\n%s", n, src)
	}
	if !strings.Contains(src, "return snakebind.Decode[[]int64](s, ret)") {
		t.Errorf("container result not decoded through the registry:\n%s", src)
	}
}

func TestGeneratePartial(t *testing.T) {
	res := generate(t, "calc.py", `def add(a: int, b: int) -> int:
    return a + b
def bad(x: int) -> :
    pass
`)
	if res.Artifact == nil {
		t.Fatalf("no artifact: %v", res.Diagnostics)
	}
	if diff := cmp.Diff([]string{"error SB004", "info SB002"}, codes(res.Diagnostics)); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	d := res.Diagnostics[0]
	if d.Span.Start.Line != 3 || d.Span.Start.Column != 1 || d.File != "calc.py" {
		t.Errorf("error at %s:%s, want calc.py:3:1", d.File, d.Span.Start)
	}
	if !strings.Contains(string(res.Artifact.Source), "Add(a int64, b int64) (int64, error)") {
		t.Errorf("valid function missing from partial artifact")
	}
	if !res.HasErrors() {
		t.Error("HasErrors = false")
	}
}

func TestGeneratePartialAfterMalformedHeader(t *testing.T) {
	for name, bad := range map[string]string{
		"unclosed parenthesis": "def bad(a: int\n",
		"unbalanced subscript": "def bad(a: int[) -> int:\n    return a\n",
		"unterminated default": "def bad(a: str = 'oops) -> int:\n    return 1\n",
	} {
		t.Run(name, func(t *testing.T) {
			res := generate(t, "calc.py", bad+"\ndef add(a: int, b: int) -> int:\n    return a + b\n")
			if res.Artifact == nil {
				t.Fatalf("no artifact: %v", res.Diagnostics)
			}
			if diff := cmp.Diff([]string{"error SB004", "info SB002"}, codes(res.Diagnostics)); diff != "" {
				t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
			}
			if d := res.Diagnostics[0]; d.Span.Start.Line != 1 || d.Span.Start.Column != 1 {
				t.Errorf("error at %s, want 1:1", d.Span.Start)
			}
			if !strings.Contains(string(res.Artifact.Source), "Add(a int64, b int64) (int64, error)") {
				t.Errorf("add missing from partial artifact:\n%s", res.Artifact.Source)
			}
		})
	}
}

func TestGenerateUnsupported(t *testing.T) {
	res := generate(t, "sets.py", "def f(x: set[int]) -> int:\n    ...\n")
	if res.Artifact != nil {
		t.Errorf("artifact generated for a module with no bindable functions")
	}
	if diff := cmp.Diff([]string{"error SB005"}, codes(res.Diagnostics)); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	d := res.Diagnostics[0]
	if !strings.HasPrefix(d.Message, "could not generate f: ") {
		t.Errorf("message = %q", d.Message)
	}
	if d.Span.Start.Line != 1 || d.Span.Start.Column != 10 {
		t.Errorf("error at %s, want the annotation at 1:10", d.Span.Start)
	}
}

func TestGenerateNameCollision(t *testing.T) {
	res := generate(t, "mod.py", `def get_x() -> int:
    ...
def getX() -> int:
    ...
def close() -> None:
    ...
`)
	if diff := cmp.Diff([]string{"error SB006", "error SB006", "info SB002"}, codes(res.Diagnostics)); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	if got := res.Diagnostics[0].Message; got != "could not generate getX: Go name GetX is already used by get_x" {
		t.Errorf("message = %q", got)
	}
	if got := res.Diagnostics[0].Span.Start.Line; got != 3 {
		t.Errorf("collision reported on line %d, want 3", got)
	}
}

func TestGenerateKeywordOnlyAndDefaults(t *testing.T) {
	res := generate(t, "scale.py", "def scale(x: float, *, factor: float = 2.0) -> float:\n    ...\n")
	if res.Artifact == nil {
		t.Fatalf("no artifact: %v", res.Diagnostics)
	}
	src := string(res.Artifact.Source)
	checkGo(t, res.Artifact.Source)
	for _, s := range []string{
		"Scale(x float64, factor float64) (float64, error)",
		"kw0, err := s.NewFloat(factor)",
		`ret, err := s.Call(m.fnScale, []*snakebind.Object{arg0}, snakebind.KW("factor", kw0))`,
		"// Python defaults: factor=2.0.",
	} {
		if !strings.Contains(src, s) {
			t.Errorf("generated source lacks %q:\n%s", s, src)
		}
	}
}

func TestGenerateNoneResult(t *testing.T) {
	res := generate(t, "logs.py", `def log(msg: str) -> None:
    ...
def ping():
    ...
`)
	if res.Artifact == nil {
		t.Fatalf("no artifact: %v", res.Diagnostics)
	}
	src := string(res.Artifact.Source)
	checkGo(t, res.Artifact.Source)
	for _, s := range []string{
		"Log(msg string) error",
		"Ping() error",
		"ret, err := s.Call(m.fnPing, nil)",
		"ret.Release(s)\n\treturn nil\n",
	} {
		if !strings.Contains(src, s) {
			t.Errorf("generated source lacks %q:\n%s", s, src)
		}
	}
}

func TestGenerateOptionalAndTuple(t *testing.T) {
	res := generate(t, "misc.py", "def pick(x: int | None, pair: tuple[str, bytes]) -> Optional[float]:\n    ...\n")
	if res.Artifact == nil {
		t.Fatalf("no artifact: %v", res.Diagnostics)
	}
	src := string(res.Artifact.Source)
	checkGo(t, res.Artifact.Source)
	for _, s := range []string{
		"Pick(x *int64, pair snakebind.Tuple2[string, []byte]) (*float64, error)",
		"snakebind.RegisterOptional[int64](reg)",
		"snakebind.RegisterTuple2[string, []byte](reg)",
		"snakebind.RegisterOptional[float64](reg)",
	} {
		if !strings.Contains(src, s) {
			t.Errorf("generated source lacks %q:\n%s", s, src)
		}
	}
}

func TestGenerateEmptyModule(t *testing.T) {
	res := generate(t, "empty.py", "x = 1\n")
	if res.Artifact == nil {
		t.Fatalf("no artifact: %v", res.Diagnostics)
	}
	checkGo(t, res.Artifact.Source)
	if !strings.Contains(string(res.Artifact.Source), "type Empty interface {") {
		t.Errorf("unexpected interface:\n%s", res.Artifact.Source)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	src := []byte(`def a(x: dict[str, list[int]]) -> tuple[int, str]:
    ...
def b(y: list[tuple[int, str]], *, z: bool = False) -> None:
    ...
`)
	f := File{Path: "det.py", Source: src}
	first := newGenerator(t, Options{}).Generate(context.Background(), f)
	second := newGenerator(t, Options{}).Generate(context.Background(), f)
	if first.Artifact == nil || second.Artifact == nil {
		t.Fatalf("no artifact: %v", first.Diagnostics)
	}
	if diff := cmp.Diff(string(first.Artifact.Source), string(second.Artifact.Source)); diff != "" {
		t.Errorf("output differs between runs (-first +second):\n%s", diff)
	}
}

func TestGeneratePackage(t *testing.T) {
	g := newGenerator(t, Options{Package: "pybind"})
	res := g.Generate(context.Background(), File{Path: "calc.py", Source: []byte("def f() -> int: ...\n")})
	if res.Artifact == nil || !strings.Contains(string(res.Artifact.Source), "package pybind\n") {
		t.Errorf("package not applied: %+v", res)
	}

	if _, err := New(Options{Package: "1bad"}); err == nil {
		t.Error("New accepted an invalid package name")
	}
}

func TestGenerateAll(t *testing.T) {
	files := []File{
		{Path: "a.py", Source: []byte("def a() -> int: ...\n")},
		{Path: "b.py", Source: []byte("def b(x: set[int]) -> int: ...\n")},
		{Path: "c.py", Source: []byte("def c() -> str: ...\n")},
	}
	g := newGenerator(t, Options{Jobs: 2})
	results, err := g.GenerateAll(context.Background(), files)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, r := range results {
		got = append(got, r.File)
	}
	if diff := cmp.Diff([]string{"a.py", "b.py", "c.py"}, got); diff != "" {
		t.Errorf("results out of order (-want +got):\n%s", diff)
	}
	if results[1].Artifact != nil || !results[1].HasErrors() {
		t.Errorf("b.py result = %+v", results[1])
	}
}

func TestGenerateAllNameCollision(t *testing.T) {
	files := []File{
		{Path: "my_mod.py", Source: []byte("def a() -> int: ...\n")},
		{Path: "other.py", Source: []byte("def b() -> int: ...\n")},
		{Path: "my-mod.py", Source: []byte("def c() -> int: ...\n")},
	}
	results, err := newGenerator(t, Options{}).GenerateAll(context.Background(), files)
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Artifact == nil || results[1].Artifact == nil {
		t.Fatalf("first files lost their artifacts: %+v", results[:2])
	}
	res := results[2]
	if res.Artifact != nil {
		t.Errorf("artifact generated for %s", res.File)
	}
	if diff := cmp.Diff([]string{"error SB006"}, codes(res.Diagnostics)); diff != "" {
		t.Fatalf("diagnostics mismatch (-want +got):\n%s", diff)
	}
	want := "could not generate my-mod.py: Go name MyMod is already used by my_mod.py"
	if got := res.Diagnostics[0].Message; got != want {
		t.Errorf("message = %q, want %q", got, want)
	}
}

func TestGenerateAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	g := newGenerator(t, Options{})
	_, err := g.GenerateAll(ctx, []File{{Path: "a.py", Source: []byte("def a() -> int: ...\n")}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GenerateAll error = %v, want context.Canceled", err)
	}
}

func TestGenerateCache(t *testing.T) {
	cache, err := gencache.Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	g := newGenerator(t, Options{Cache: cache})
	f := File{Path: "calc.py", Source: []byte("def add(a: int, b: int) -> int: ...\n")}

	first := g.Generate(context.Background(), f)
	var stored Result
	if ok, err := cache.Get(g.cacheKey(f), &stored); err != nil || !ok {
		t.Fatalf("result not cached: %v, %v", ok, err)
	}

	// A hit returns the stored record, not a fresh generation.
	stored.Artifact.Name = "FromCache"
	if err := cache.Put(g.cacheKey(f), stored); err != nil {
		t.Fatal(err)
	}
	second := g.Generate(context.Background(), f)
	if second.Artifact == nil || second.Artifact.Name != "FromCache" {
		t.Errorf("cache not consulted: %+v", second.Artifact)
	}
	if diff := cmp.Diff(first.Artifact.Source, second.Artifact.Source); diff != "" {
		t.Errorf("cached source differs (-first +second):\n%s", diff)
	}

	// The key covers the package name.
	other := newGenerator(t, Options{Cache: cache, Package: "other"})
	if other.cacheKey(f) == g.cacheKey(f) {
		t.Error("cache key ignores the package name")
	}
}

func TestResolveImportPath(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "go.mod"), []byte("module example.com/app\n\ngo 1.24\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(root, "internal", "pybind")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveImportPath(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != "example.com/app/internal/pybind" {
		t.Errorf("ResolveImportPath = %q", got)
	}
	if got, _ := ResolveImportPath(root); got != "example.com/app" {
		t.Errorf("ResolveImportPath(root) = %q", got)
	}
}
