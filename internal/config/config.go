// Package config loads snakebind.toml, the project file of the snakebind
// command.
//
// A project file looks like
//
//	[generate]
//	inputs = ["python/*.py"]
//	output = "internal/pybind"
//	package = "pybind"
//	jobs = 4
//	cache = true
//
//	[python]
//	home = "python"
//	venv = ".venv"
//	ensure_venv = true
//	version = ">= 3.9, < 3.14"
//	packages = ["numpy"]
//
// Relative paths are relative to the directory holding the file.
package config

import (
	"errors"
	"fmt"
	"go/token"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/richinsley/snakebind"
)

// FileName is the name of the project file.
const FileName = "snakebind.toml"

// PythonEnvVar names the environment variable holding a Python prefix that
// takes precedence over the system interpreter.
const PythonEnvVar = "SNAKEBIND_PYTHON"

// Config is the content of a project file.
type Config struct {
	Generate GenerateConfig `toml:"generate"`
	Python   PythonConfig   `toml:"python"`
}

// GenerateConfig configures binding generation.
type GenerateConfig struct {
	// Inputs are glob patterns of Python files.
	Inputs []string `toml:"inputs"`

	// Output is the directory generated files are written to.
	Output string `toml:"output"`

	Package string `toml:"package"`
	Jobs    int    `toml:"jobs"`

	// Cache enables the generation cache. CacheDir overrides its location.
	Cache    bool   `toml:"cache"`
	CacheDir string `toml:"cache_dir"`
}

// PythonConfig configures the interpreter started by the env command.
type PythonConfig struct {
	Home       string   `toml:"home"`
	Executable string   `toml:"executable"`
	Venv       string   `toml:"venv"`
	EnsureVenv bool     `toml:"ensure_venv"`
	Version    string   `toml:"version"`
	Packages   []string `toml:"packages"`
	IndexURL   string   `toml:"index_url"`
	ExtraPaths []string `toml:"extra_paths"`
}

// Default returns the configuration used without a project file.
func Default() Config {
	return Config{
		Generate: GenerateConfig{
			Inputs:  []string{"*.py"},
			Output:  ".",
			Package: "generated",
			Cache:   true,
		},
		Python: PythonConfig{
			Home: ".",
		},
	}
}

// Manifest is a loaded project file.
type Manifest struct {
	// Path is the project file. It is empty for the default configuration.
	Path string

	// Root is the directory relative paths are resolved against.
	Root string

	Config Config
}

// Find returns the project file in startDir or its nearest ancestor
// holding one. It reports false when there is none.
func Find(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, fmt.Errorf("failed to resolve start directory: %w", err)
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, fmt.Errorf("failed to stat %q: %w", candidate, err)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false, nil
		}
		dir = parent
	}
}

// Load finds and decodes the project file for startDir. Without one, it
// returns the default configuration rooted at startDir.
func Load(startDir string) (*Manifest, error) {
	path, ok, err := Find(startDir)
	if err != nil {
		return nil, err
	}
	if !ok {
		root, err := filepath.Abs(startDir)
		if err != nil {
			return nil, err
		}
		return &Manifest{Root: root, Config: Default()}, nil
	}
	cfg, err := Decode(path)
	if err != nil {
		return nil, err
	}
	return &Manifest{Path: path, Root: filepath.Dir(path), Config: cfg}, nil
}

// Decode reads one project file. Keys it does not know are errors.
func Decode(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("%s: failed to parse TOML: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		slices.Sort(keys)
		return Config{}, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if !token.IsIdentifier(c.Generate.Package) {
		return fmt.Errorf("[generate].package %q is not a Go identifier", c.Generate.Package)
	}
	if c.Generate.Jobs < 0 {
		return fmt.Errorf("[generate].jobs must not be negative")
	}
	if len(c.Generate.Inputs) == 0 {
		return fmt.Errorf("[generate].inputs is empty")
	}
	for _, pattern := range c.Generate.Inputs {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("[generate].inputs: bad pattern %q", pattern)
		}
	}
	return nil
}

// Abs resolves a path from the project file against Root.
func (m *Manifest) Abs(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(m.Root, filepath.FromSlash(path))
}

// Inputs expands the input patterns into a sorted list of files.
func (m *Manifest) Inputs() ([]string, error) {
	var files []string
	for _, pattern := range m.Config.Generate.Inputs {
		matches, err := filepath.Glob(m.Abs(pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

// InterpreterOptions returns the options for starting the interpreter the
// project describes. The executable, when set, is tried first, then the
// prefix named by $SNAKEBIND_PYTHON, then the system interpreter.
func (m *Manifest) InterpreterOptions(logger *slog.Logger) snakebind.Options {
	py := m.Config.Python
	var locators []snakebind.Locator
	if py.Executable != "" {
		locators = append(locators, snakebind.ExecutableLocator{Path: m.Abs(py.Executable)})
	}
	locators = append(locators,
		snakebind.EnvironmentVariableLocator{Variable: PythonEnvVar},
		snakebind.SystemLocator{},
	)

	opts := snakebind.Options{
		Home:                     m.Abs(py.Home),
		Locators:                 locators,
		VersionConstraint:        py.Version,
		VirtualEnvironmentPath:   m.Abs(py.Venv),
		EnsureVirtualEnvironment: py.EnsureVenv,
		Logger:                   logger,
	}
	for _, p := range py.ExtraPaths {
		opts.ExtraPaths = append(opts.ExtraPaths, m.Abs(p))
	}
	opts.Installers = []snakebind.PackageInstaller{&snakebind.PipInstaller{
		Packages: py.Packages,
		IndexURL: py.IndexURL,
		Logger:   logger,
	}}
	return opts
}
