package snakebind

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// PythonEnvironment describes a Python installation or virtual environment
// found on disk. It is filled by running a probe script with the
// environment's own interpreter.
type PythonEnvironment struct {
	// EnvironmentName is the identifier for this environment (e.g., "system", "venv").
	EnvironmentName string

	// EnvPath is sys.prefix of the environment.
	EnvPath string

	// BasePrefix is sys.base_prefix; it differs from EnvPath in a virtual environment.
	BasePrefix string

	// EnvBinPath is the path to the bin (or Scripts on Windows) directory.
	EnvBinPath string

	// PythonVersion is the detected Python version (e.g., 3.10.12).
	PythonVersion *semver.Version

	// PythonPath is the full path to the Python executable.
	PythonPath string

	// PythonLibPath is the path to the Python shared library (libpython).
	// May be empty if the library is not found.
	PythonLibPath string

	// PipPath is the full path to the pip executable, if one exists.
	PipPath string

	// PythonHeadersPath is the path to the Python development headers.
	PythonHeadersPath string

	// StdlibPath is the directory of the standard library.
	StdlibPath string

	// SitePackagesPath is the path to the site-packages directory.
	SitePackagesPath string

	// IsVenv reports whether the environment is a virtual environment.
	IsVenv bool
}

// Location returns the environment as a PythonLocation.
func (env *PythonEnvironment) Location() *PythonLocation {
	return &PythonLocation{
		Prefix:       env.BasePrefix,
		Executable:   env.PythonPath,
		LibraryPath:  env.PythonLibPath,
		Version:      env.PythonVersion,
		StdlibPath:   env.StdlibPath,
		SitePackages: env.SitePackagesPath,
	}
}

// VenvOptions configures the creation of a Python virtual environment.
// These options correspond to the flags available in Python's venv module.
type VenvOptions struct {
	// SystemSitePackages gives access to the system site-packages directory.
	SystemSitePackages bool

	// Symlinks creates symlinks to Python files instead of copies (Unix default).
	Symlinks bool

	// Copies creates copies of Python files instead of symlinks (Windows default).
	Copies bool

	// Clear deletes the contents of the environment directory if it exists.
	Clear bool

	// Upgrade upgrades an existing environment to use the current Python version.
	Upgrade bool

	// WithoutPip skips pip installation in the virtual environment.
	WithoutPip bool

	// Prompt sets a custom prompt prefix for the virtual environment.
	Prompt string

	// UpgradeDeps upgrades pip and setuptools to the latest versions.
	UpgradeDeps bool
}

// probeScript prints everything snakebind needs to know about an
// interpreter as one JSON object. Failures are printed as a
// PythonException and exit with status 1.
const probeScript = `
import json, os, site, sys, sysconfig, traceback
try:
    libdir = sysconfig.get_config_var("LIBDIR") or ""
    ldlibrary = sysconfig.get_config_var("LDLIBRARY") or ""
    try:
        sitepkgs = site.getsitepackages()
    except AttributeError:
        sitepkgs = []
    print(json.dumps({
        "version": "%d.%d.%d" % sys.version_info[:3],
        "prefix": sys.prefix,
        "base_prefix": getattr(sys, "base_prefix", sys.prefix),
        "executable": sys.executable,
        "stdlib": sysconfig.get_path("stdlib"),
        "purelib": sysconfig.get_path("purelib"),
        "include": sysconfig.get_path("include"),
        "libdir": libdir,
        "ldlibrary": ldlibrary,
        "site_packages": sitepkgs,
    }))
except Exception as e:
    print(json.dumps({
        "exception": type(e).__name__,
        "message": str(e),
        "traceback": traceback.format_exc(),
    }))
    sys.exit(1)
`

type probeResult struct {
	Version      string   `json:"version"`
	Prefix       string   `json:"prefix"`
	BasePrefix   string   `json:"base_prefix"`
	Executable   string   `json:"executable"`
	Stdlib       string   `json:"stdlib"`
	Purelib      string   `json:"purelib"`
	Include      string   `json:"include"`
	LibDir       string   `json:"libdir"`
	LDLibrary    string   `json:"ldlibrary"`
	SitePackages []string `json:"site_packages"`
}

func probe(ctx context.Context, pythonPath string) (*probeResult, error) {
	out, err := runPythonScript(ctx, pythonPath, probeScript)
	if err != nil {
		return nil, fmt.Errorf("error probing %s: %w", pythonPath, err)
	}
	var res probeResult
	if err := json.Unmarshal([]byte(strings.TrimSpace(out)), &res); err != nil {
		return nil, fmt.Errorf("error decoding probe output of %s: %w", pythonPath, err)
	}
	return &res, nil
}

// CreateEnvironmentFromExecutable creates a PythonEnvironment from an
// existing Python executable by querying it for its version and paths.
func CreateEnvironmentFromExecutable(ctx context.Context, pythonPath string) (*PythonEnvironment, error) {
	res, err := probe(ctx, pythonPath)
	if err != nil {
		return nil, err
	}
	version, err := ParseVersion(res.Version)
	if err != nil {
		return nil, fmt.Errorf("error parsing Python version: %w", err)
	}

	env := &PythonEnvironment{
		EnvironmentName:   "system",
		EnvPath:           res.Prefix,
		BasePrefix:        res.BasePrefix,
		EnvBinPath:        filepath.Dir(pythonPath),
		PythonVersion:     version,
		PythonPath:        pythonPath,
		PythonHeadersPath: res.Include,
		StdlibPath:        res.Stdlib,
		SitePackagesPath:  res.Purelib,
		IsVenv:            res.Prefix != res.BasePrefix,
	}
	if len(res.SitePackages) > 0 {
		env.SitePackagesPath = res.SitePackages[0]
	}
	if env.IsVenv {
		env.EnvironmentName = filepath.Base(res.Prefix)
	}
	env.PythonLibPath = sharedLibraryPath(res, version)
	env.PipPath = findPip(env.EnvBinPath)
	return env, nil
}

// sharedLibraryPath returns the libpython the interpreter was built with,
// or an empty string if it cannot be found.
func sharedLibraryPath(res *probeResult, version *semver.Version) string {
	var candidates []string
	switch runtime.GOOS {
	case "windows":
		candidates = append(candidates,
			filepath.Join(res.BasePrefix, "python"+MinorStringCompact(version)+".dll"),
			filepath.Join(filepath.Dir(res.Executable), "python"+MinorStringCompact(version)+".dll"))
	case "darwin":
		if res.LDLibrary != "" {
			candidates = append(candidates, filepath.Join(res.LibDir, res.LDLibrary))
		}
		candidates = append(candidates, filepath.Join(res.LibDir, "libpython"+MinorString(version)+".dylib"))
	default:
		if res.LDLibrary != "" {
			candidates = append(candidates, filepath.Join(res.LibDir, res.LDLibrary))
		}
		candidates = append(candidates, filepath.Join(res.LibDir, "libpython"+MinorString(version)+".so"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

func findPip(binDir string) string {
	names := []string{"pip3", "pip"}
	if runtime.GOOS == "windows" {
		names = []string{"pip3.exe", "pip.exe"}
	}
	for _, name := range names {
		p := filepath.Join(binDir, name)
		if isExecutable(p) {
			return p
		}
	}
	for _, name := range names {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

// CreateEnvironmentFromSystem creates a PythonEnvironment using the system Python installation.
//
// On Unix systems, it searches for "python3" then "python" using exec.LookPath.
// On Windows, it first tries "py.exe" (Python launcher), then searches for "python"
// while filtering out the Microsoft Store placeholder executables.
func CreateEnvironmentFromSystem(ctx context.Context) (*PythonEnvironment, error) {
	pythonPath, err := findSystemPython(ctx)
	if err != nil {
		return nil, err
	}
	return CreateEnvironmentFromExecutable(ctx, pythonPath)
}

func findSystemPython(ctx context.Context) (string, error) {
	if runtime.GOOS != "windows" {
		for _, name := range []string{"python3", "python"} {
			if p, err := exec.LookPath(name); err == nil {
				return p, nil
			}
		}
		return "", fmt.Errorf("python not found in PATH")
	}

	// The launcher reports the real interpreter; the WindowsApps entries are
	// store placeholders.
	if launcher, err := exec.LookPath("py"); err == nil {
		out, err := exec.CommandContext(ctx, launcher, "-c", "import sys; print(sys.executable)").Output()
		if err == nil {
			if p := strings.TrimSpace(string(out)); p != "" {
				return p, nil
			}
		}
	}
	out, err := exec.CommandContext(ctx, "where", "python").Output()
	if err != nil {
		return "", fmt.Errorf("error running 'where python': %w", err)
	}
	for _, p := range strings.Split(string(out), "\n") {
		p = strings.TrimSpace(p)
		if p != "" && !strings.Contains(p, `Microsoft\WindowsApps`) {
			return p, nil
		}
	}
	return "", fmt.Errorf("python not found in PATH")
}

// CreateVenvEnvironment creates a Python virtual environment using the venv
// module of baseEnv and returns the new environment.
func CreateVenvEnvironment(ctx context.Context, baseEnv *PythonEnvironment, venvPath string, options VenvOptions) (*PythonEnvironment, error) {
	if baseEnv == nil {
		return nil, fmt.Errorf("base environment is nil")
	}

	args := []string{"-m", "venv"}
	if options.SystemSitePackages {
		args = append(args, "--system-site-packages")
	}
	if options.Symlinks {
		args = append(args, "--symlinks")
	}
	if options.Copies {
		args = append(args, "--copies")
	}
	if options.Clear {
		args = append(args, "--clear")
	} else if options.Upgrade {
		args = append(args, "--upgrade")
	}
	if options.WithoutPip {
		args = append(args, "--without-pip")
	}
	if options.Prompt != "" {
		args = append(args, "--prompt", options.Prompt)
	}
	if options.UpgradeDeps {
		args = append(args, "--upgrade-deps")
	}
	args = append(args, venvPath)

	if _, err := runPythonReadStdout(ctx, baseEnv.PythonPath, args...); err != nil {
		return nil, fmt.Errorf("failed to create virtual environment: %w", err)
	}
	return CreateEnvironmentFromExecutable(ctx, venvPython(venvPath))
}

func venvBinDir(venvPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvPath, "Scripts")
	}
	return filepath.Join(venvPath, "bin")
}

func venvPython(venvPath string) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvBinDir(venvPath), "python.exe")
	}
	return filepath.Join(venvBinDir(venvPath), "python")
}

// venvSitePackages returns the site-packages directory of a virtual
// environment created by the given interpreter version.
func venvSitePackages(venvPath string, version *semver.Version) string {
	if runtime.GOOS == "windows" {
		return filepath.Join(venvPath, "Lib", "site-packages")
	}
	if version == nil {
		matches, _ := filepath.Glob(filepath.Join(venvPath, "lib", "python3*", "site-packages"))
		if len(matches) > 0 {
			return matches[0]
		}
		return filepath.Join(venvPath, "lib", "site-packages")
	}
	return filepath.Join(venvPath, "lib", "python"+MinorString(version), "site-packages")
}
