package snakebind

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
)

// State is the lifecycle state of an Interpreter.
type State int32

const (
	Uninitialized State = iota
	Ready
	Disposed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Ready:
		return "ready"
	case Disposed:
		return "disposed"
	}
	return "unknown"
}

// Options configures New.
type Options struct {
	// Home is the directory holding the Python modules to load. It must
	// exist. Empty means the working directory.
	Home string

	// Locators are tried in order; the first supported locator that finds
	// an installation wins. Empty means a SystemLocator.
	Locators []Locator

	// VersionConstraint is a semver constraint the located interpreter
	// must satisfy, such as ">= 3.9, < 3.14".
	VersionConstraint string

	// VirtualEnvironmentPath is added to the module search path when set.
	// Relative paths are resolved against Home.
	VirtualEnvironmentPath string

	// EnsureVirtualEnvironment creates the virtual environment if it does
	// not exist yet.
	EnsureVirtualEnvironment bool

	// Installers run once, in order, after the virtual environment exists.
	Installers []PackageInstaller

	// ExtraPaths are appended to the module search path.
	ExtraPaths []string

	// Native creates the embedded interpreter. Nil means NewCPython.
	Native NativeFactory

	Logger *slog.Logger
}

// Binding is a cached, per-interpreter object such as a generated module
// binding. Close is called with the GIL held when the interpreter closes.
type Binding interface {
	Close(s *Scope)
}

// Interpreter is an embedded Python interpreter. All access to Python
// objects goes through a Scope obtained from Acquire.
type Interpreter struct {
	native     Native
	location   *PythonLocation
	home       string
	venv       string
	searchPath []string
	registry   *Registry
	logger     *slog.Logger

	gate  *gate
	state atomic.Int32

	bindingsMu sync.Mutex
	bindings   map[string]Binding

	closeOnce sync.Once
	closeErr  error
}

// New locates, prepares and starts an interpreter. On failure nothing is
// left running and the error is an *EnvironmentError or a
// *PackageInstallError.
func New(ctx context.Context, opts Options) (*Interpreter, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	loc, err := locate(ctx, opts.Locators, logger)
	if err != nil {
		return nil, err
	}
	if err := checkVersion(loc, opts.VersionConstraint); err != nil {
		return nil, err
	}

	home, err := resolveHome(opts.Home)
	if err != nil {
		return nil, err
	}

	venv, err := prepareVenv(ctx, loc, home, opts, logger)
	if err != nil {
		return nil, err
	}

	for _, installer := range opts.Installers {
		if err := installer.InstallPackages(ctx, home, venv); err != nil {
			return nil, err
		}
	}

	searchPath := buildSearchPath(loc, home, venv, opts.ExtraPaths)

	factory := opts.Native
	if factory == nil {
		factory = NewCPython
	}
	native, err := factory(loc)
	if err != nil {
		return nil, &EnvironmentError{Reason: ReasonStartupFailed, Err: err}
	}
	cfg := NativeConfig{
		Home:        loc.Prefix,
		SearchPath:  searchPath,
		ProgramName: loc.Executable,
		LibraryPath: loc.LibraryPath,
	}
	if err := native.Initialize(cfg); err != nil {
		return nil, &EnvironmentError{Reason: ReasonStartupFailed, Err: err}
	}

	interp := &Interpreter{
		native:     native,
		location:   loc,
		home:       home,
		venv:       venv,
		searchPath: searchPath,
		registry:   NewRegistry(),
		logger:     logger,
		gate:       newGate(),
		bindings:   make(map[string]Binding),
	}
	interp.state.Store(int32(Ready))
	logger.Info("python interpreter started",
		slog.String("version", versionString(loc.Version)),
		slog.String("home", home),
		slog.String("venv", venv),
	)
	return interp, nil
}

func locate(ctx context.Context, locators []Locator, logger *slog.Logger) (*PythonLocation, error) {
	if len(locators) == 0 {
		locators = []Locator{SystemLocator{}}
	}
	var lastErr error
	for _, l := range locators {
		if !l.IsSupported() {
			continue
		}
		loc, err := l.LocatePython(ctx)
		if err != nil {
			logger.Debug("python locator failed", slog.String("locator", fmt.Sprintf("%T", l)), slog.Any("error", err))
			lastErr = err
			continue
		}
		if loc != nil {
			return loc, nil
		}
	}
	return nil, &EnvironmentError{Reason: ReasonNotFound, Err: lastErr}
}

func checkVersion(loc *PythonLocation, constraint string) error {
	if constraint == "" {
		return nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return &EnvironmentError{Reason: ReasonUnsupportedVersion, Err: fmt.Errorf("invalid constraint %q: %w", constraint, err)}
	}
	if loc.Version == nil {
		return &EnvironmentError{Reason: ReasonUnsupportedVersion, Path: loc.Executable, Err: errors.New("version unknown")}
	}
	if !c.Check(loc.Version) {
		return &EnvironmentError{
			Reason: ReasonUnsupportedVersion,
			Path:   loc.Executable,
			Err:    fmt.Errorf("%s does not satisfy %s", loc.Version, constraint),
		}
	}
	return nil
}

func resolveHome(home string) (string, error) {
	if home == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", &EnvironmentError{Reason: ReasonHomeMissing, Err: err}
		}
		home = wd
	}
	abs, err := filepath.Abs(home)
	if err != nil {
		return "", &EnvironmentError{Reason: ReasonHomeMissing, Path: home, Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", &EnvironmentError{Reason: ReasonHomeMissing, Path: abs, Err: err}
	}
	if !info.IsDir() {
		return "", &EnvironmentError{Reason: ReasonHomeMissing, Path: abs, Err: errors.New("not a directory")}
	}
	return abs, nil
}

func prepareVenv(ctx context.Context, loc *PythonLocation, home string, opts Options, logger *slog.Logger) (string, error) {
	venv := opts.VirtualEnvironmentPath
	if venv == "" {
		if opts.EnsureVirtualEnvironment {
			return "", &EnvironmentError{Reason: ReasonVenvPathMissing}
		}
		return "", nil
	}
	if !filepath.IsAbs(venv) {
		venv = filepath.Join(home, venv)
	}
	if _, err := os.Stat(filepath.Join(venv, "pyvenv.cfg")); err == nil {
		return venv, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", &EnvironmentError{Reason: ReasonVenvFailed, Path: venv, Err: err}
	}
	if !opts.EnsureVirtualEnvironment {
		logger.Warn("virtual environment does not exist", slog.String("path", venv))
		return venv, nil
	}

	logger.Info("creating virtual environment", slog.String("path", venv))
	base, err := CreateEnvironmentFromExecutable(ctx, loc.Executable)
	if err != nil {
		return "", &EnvironmentError{Reason: ReasonVenvFailed, Path: venv, Err: err}
	}
	if _, err := CreateVenvEnvironment(ctx, base, venv, VenvOptions{}); err != nil {
		return "", &EnvironmentError{Reason: ReasonVenvFailed, Path: venv, Err: err}
	}
	return venv, nil
}

// buildSearchPath returns the module search path: the standard library,
// the installation's site-packages, home, the virtual environment's
// site-packages and the extra paths, without duplicates or empty entries.
func buildSearchPath(loc *PythonLocation, home, venv string, extra []string) []string {
	var paths []string
	add := func(p string) {
		if p != "" && !slices.Contains(paths, p) {
			paths = append(paths, p)
		}
	}
	add(loc.StdlibPath)
	if loc.StdlibPath != "" {
		add(filepath.Join(loc.StdlibPath, "lib-dynload"))
	}
	add(loc.SitePackages)
	add(home)
	if venv != "" {
		add(venvSitePackages(venv, loc.Version))
	}
	for _, p := range extra {
		add(p)
	}
	return paths
}

// State returns the lifecycle state.
func (i *Interpreter) State() State {
	return State(i.state.Load())
}

// Location returns the installation the interpreter was started from.
func (i *Interpreter) Location() *PythonLocation {
	return i.location
}

// Home returns the resolved home directory.
func (i *Interpreter) Home() string {
	return i.home
}

// SearchPath returns a copy of the module search path.
func (i *Interpreter) SearchPath() []string {
	return slices.Clone(i.searchPath)
}

// Registry returns the converter registry.
func (i *Interpreter) Registry() *Registry {
	return i.registry
}

func (i *Interpreter) stateErr() error {
	switch i.State() {
	case Ready:
		return nil
	case Disposed:
		return ErrDisposed
	}
	return ErrNotInitialized
}

// Acquire blocks until the calling goroutine holds the GIL. The returned
// Scope must be released on every path, normally with defer.
func (i *Interpreter) Acquire() (*Scope, error) {
	return i.AcquireContext(context.Background())
}

// AcquireContext is like Acquire but gives up when ctx is done.
func (i *Interpreter) AcquireContext(ctx context.Context) (*Scope, error) {
	if err := i.stateErr(); err != nil {
		return nil, err
	}
	unlock := lockThread()
	if err := i.gate.Acquire(ctx); err != nil {
		unlock()
		return nil, err
	}
	return i.enter(unlock)
}

// TryAcquire returns a Scope if the GIL is free and nil otherwise.
func (i *Interpreter) TryAcquire() (*Scope, error) {
	if err := i.stateErr(); err != nil {
		return nil, err
	}
	unlock := lockThread()
	if !i.gate.TryAcquire() {
		unlock()
		return nil, nil
	}
	return i.enter(unlock)
}

// AcquireTimeout is like Acquire but returns nil after d.
func (i *Interpreter) AcquireTimeout(d time.Duration) (*Scope, error) {
	if err := i.stateErr(); err != nil {
		return nil, err
	}
	unlock := lockThread()
	if !i.gate.AcquireTimeout(d) {
		unlock()
		return nil, nil
	}
	return i.enter(unlock)
}

// enter takes the native GIL once the gate is held.
func (i *Interpreter) enter(unlock func()) (*Scope, error) {
	// Close may have finished while we waited for the gate.
	if err := i.stateErr(); err != nil {
		i.gate.Release()
		unlock()
		return nil, err
	}
	st := i.native.EnsureGIL()
	s := &Scope{interp: i, state: st}
	s.release = func() {
		i.native.ReleaseGIL(st)
		i.gate.Release()
		unlock()
	}
	return s, nil
}

// Binding returns the binding cached under name, creating it with create
// on first use. create runs with the GIL held.
func (i *Interpreter) Binding(name string, create func(s *Scope) (Binding, error)) (Binding, error) {
	i.bindingsMu.Lock()
	defer i.bindingsMu.Unlock()
	if b, ok := i.bindings[name]; ok {
		return b, nil
	}

	s, err := i.Acquire()
	if err != nil {
		return nil, err
	}
	defer s.Release()
	b, err := create(s)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", name, err)
	}
	i.bindings[name] = b
	i.logger.Debug("python binding loaded", slog.String("module", name))
	return b, nil
}

// Close closes every cached binding and finalizes the interpreter. It waits
// for the Scope in use, if any, to be released. Calls after the first
// return the first result.
func (i *Interpreter) Close() error {
	i.closeOnce.Do(func() {
		i.closeErr = i.close()
	})
	return i.closeErr
}

func (i *Interpreter) close() error {
	i.bindingsMu.Lock()
	defer i.bindingsMu.Unlock()

	unlock := lockThread()
	defer unlock()
	if err := i.gate.Acquire(context.Background()); err != nil {
		return err
	}
	defer i.gate.Release()

	if !i.state.CompareAndSwap(int32(Ready), int32(Disposed)) {
		return nil
	}

	st := i.native.EnsureGIL()
	s := &Scope{interp: i, state: st}
	names := make([]string, 0, len(i.bindings))
	for name := range i.bindings {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		i.bindings[name].Close(s)
	}
	i.bindings = nil
	s.Release()
	i.native.ReleaseGIL(st)

	if err := i.native.Finalize(); err != nil {
		return fmt.Errorf("finalize interpreter: %w", err)
	}
	i.logger.Info("python interpreter finalized")
	return nil
}
