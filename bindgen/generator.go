// Package bindgen generates Go bindings for the functions of Python source
// files.
//
// For every input file the generator parses the top-level function
// declarations, maps their annotations to Go types and renders one Go file
// holding an interface named after the module, an accessor that loads the
// module into a *snakebind.Interpreter and the implementation of the
// interface. Functions that cannot be bound are reported as diagnostics and
// left out; the rest of the module is still generated.
package bindgen

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"go/token"
	"log/slog"
	"path/filepath"
	"runtime"
	"slices"
	"text/template"

	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/imports"

	"github.com/richinsley/snakebind/internal/gencache"
	"github.com/richinsley/snakebind/parser"
	"github.com/richinsley/snakebind/typemap"
)

// DefaultPackage is the package of generated files when Options.Package is
// empty.
const DefaultPackage = "generated"

// cacheSchema changes whenever the generated output changes for the same
// input, so stale cache records are never reused.
const cacheSchema = "snakebind-bindgen/1"

//go:embed binding.go.tmpl
var bindingTemplate string

var tmpl = template.Must(template.New("binding").Parse(bindingTemplate))

// Options configures a Generator.
type Options struct {
	// Package is the Go package name of generated files.
	Package string

	// Jobs bounds the number of files generated concurrently. Zero means
	// GOMAXPROCS.
	Jobs int

	// Cache, if set, stores results keyed by file content.
	Cache *gencache.Cache

	Logger *slog.Logger
}

// File is one Python source file.
type File struct {
	Path   string
	Source []byte
}

// Artifact is a generated Go file.
type Artifact struct {
	// Name is the PascalCase module name, which is also the interface name.
	Name string `msgpack:"name"`

	// FileName is the base name of the generated file, such as calc.py.go.
	FileName string `msgpack:"file_name"`

	// Module is the Python module name.
	Module string `msgpack:"module"`

	Source []byte `msgpack:"source"`
}

// Result is the outcome of generating one file.
type Result struct {
	File string `msgpack:"file"`

	// Artifact is nil when nothing could be generated.
	Artifact *Artifact `msgpack:"artifact"`

	Diagnostics []Diagnostic `msgpack:"diagnostics"`
}

// HasErrors reports whether any diagnostic of r is an error.
func (r Result) HasErrors() bool {
	return HasErrors(r.Diagnostics)
}

// Generator turns Python files into Go bindings. It is safe for concurrent
// use.
type Generator struct {
	pkg    string
	jobs   int
	cache  *gencache.Cache
	mapper *typemap.Mapper
	logger *slog.Logger
}

// New returns a Generator.
func New(opts Options) (*Generator, error) {
	g := &Generator{
		pkg:    opts.Package,
		jobs:   opts.Jobs,
		cache:  opts.Cache,
		mapper: typemap.NewMapper(),
		logger: opts.Logger,
	}
	if g.pkg == "" {
		g.pkg = DefaultPackage
	}
	if !token.IsIdentifier(g.pkg) || g.pkg == "_" {
		return nil, fmt.Errorf("invalid package name %q", g.pkg)
	}
	if g.jobs <= 0 {
		g.jobs = runtime.GOMAXPROCS(0)
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g, nil
}

// Package returns the package name of generated files.
func (g *Generator) Package() string {
	return g.pkg
}

func (g *Generator) cacheKey(f File) gencache.Key {
	return gencache.KeyOf(
		[]byte(cacheSchema),
		[]byte(g.pkg),
		[]byte(filepath.Base(f.Path)),
		f.Source,
	)
}

// Generate generates the binding of one file.
func (g *Generator) Generate(ctx context.Context, f File) Result {
	logger := g.logger.With(slog.String("file", f.Path))

	key := g.cacheKey(f)
	var cached Result
	ok, err := g.cache.Get(key, &cached)
	if err != nil {
		logger.WarnContext(ctx, "ignoring unreadable cache record", slog.Any("error", err))
	}
	if ok {
		logger.DebugContext(ctx, "cache hit", slog.String("key", key.String()))
		cached.File = f.Path
		for i := range cached.Diagnostics {
			cached.Diagnostics[i].File = f.Path
		}
		return cached
	}

	res := g.generate(f)
	if err := g.cache.Put(key, res); err != nil {
		logger.WarnContext(ctx, "could not write cache record", slog.Any("error", err))
	}
	for _, d := range res.Diagnostics {
		if d.Severity == SevError {
			logger.DebugContext(ctx, "diagnostic", slog.String("code", string(d.Code)), slog.String("message", d.Message))
		}
	}
	return res
}

func (g *Generator) generate(f File) Result {
	res := Result{File: f.Path}
	report := func(sev Severity, code Code, span parser.Span, format string, args ...any) {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Severity: sev,
			Code:     code,
			Message:  fmt.Sprintf(format, args...),
			File:     f.Path,
			Span:     span,
		})
	}

	module := moduleName(f.Path)
	name := pascalCase(module, "Module")
	data := moduleData{
		Source:  filepath.Base(f.Path),
		Package: g.pkg,
		Module:  module,
		Key:     g.pkg + "." + module,
		Name:    name,
		Impl:    implName(name),
	}

	decls, errs := parser.Parse(string(f.Source))
	for _, e := range errs {
		report(SevError, CodeSyntax, e.Span, "%s", e.Message)
	}

	used := map[string]string{"Close": "the binding's Close method"}
	var converters [][]typemap.ConverterID
	for _, decl := range decls {
		method := pascalCase(decl.Name, "Func")
		if prev, ok := used[method]; ok {
			report(SevError, CodeNameCollision, decl.Span,
				"could not generate %s: Go name %s is already used by %s", decl.Name, method, prev)
			continue
		}
		fn, err := g.mapper.MapFunction(decl)
		if err != nil {
			span := decl.Span
			var ute *typemap.UnsupportedTypeError
			if errors.As(err, &ute) {
				span = ute.Span
			}
			report(SevError, CodeUnsupportedType, span, "could not generate %s: %v", decl.Name, err)
			continue
		}
		used[method] = decl.Name
		data.Methods = append(data.Methods, newMethod(module, method, fn))
		converters = append(converters, fn.Converters)
	}
	sortDiagnostics(res.Diagnostics)

	if len(data.Methods) == 0 && res.HasErrors() {
		return res
	}
	for _, id := range typemap.Dedupe(converters...) {
		data.Registrations = append(data.Registrations, registration(id))
	}

	src, err := render(data)
	if err != nil {
		report(SevError, CodeInternal, parser.Span{}, "could not generate %s: %v", name, err)
		return res
	}
	res.Artifact = &Artifact{
		Name:     name,
		FileName: filepath.Base(f.Path) + ".go",
		Module:   module,
		Source:   src,
	}
	report(SevInfo, CodeGenerated, parser.Span{}, "generated %s (%s)", name, res.Artifact.FileName)
	return res
}

func render(data moduleData) ([]byte, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return imports.Process(data.Source+".go", buf.Bytes(), &imports.Options{
		Comments:   true,
		TabIndent:  true,
		TabWidth:   8,
		FormatOnly: true,
	})
}

// GenerateAll generates every file, at most Options.Jobs at a time. Results
// are in the order of files. It fails only when ctx is done before all
// files are generated.
func (g *Generator) GenerateAll(ctx context.Context, files []File) ([]Result, error) {
	results := make([]Result, len(files))
	if len(files) == 0 {
		return results, nil
	}

	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(min(g.jobs, len(files)))
	for i, f := range files {
		grp.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			results[i] = g.Generate(gctx, f)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}
	rejectDuplicateNames(results)
	return results, nil
}

// rejectDuplicateNames drops the artifact of every file whose interface name
// was already generated for an earlier file, since both would declare the
// same identifiers in one package.
func rejectDuplicateNames(results []Result) {
	owner := make(map[string]string)
	for i := range results {
		res := &results[i]
		if res.Artifact == nil {
			continue
		}
		name := res.Artifact.Name
		prev, ok := owner[name]
		if !ok {
			owner[name] = res.File
			continue
		}
		res.Artifact = nil
		res.Diagnostics = slices.DeleteFunc(res.Diagnostics, func(d Diagnostic) bool {
			return d.Code == CodeGenerated
		})
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Severity: SevError,
			Code:     CodeNameCollision,
			Message:  fmt.Sprintf("could not generate %s: Go name %s is already used by %s", filepath.Base(res.File), name, filepath.Base(prev)),
			File:     res.File,
		})
		sortDiagnostics(res.Diagnostics)
	}
}
