package snakebind

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// PythonLocation is a Python installation an interpreter can be started
// from.
type PythonLocation struct {
	// Prefix is the installation prefix (sys.base_prefix).
	Prefix string

	Executable  string
	LibraryPath string
	Version     *semver.Version
	StdlibPath  string

	// SitePackages is the installation's own site-packages directory.
	SitePackages string
}

// Locator finds a Python installation. LocatePython returns nil and no
// error when the strategy finds nothing.
type Locator interface {
	IsSupported() bool
	LocatePython(ctx context.Context) (*PythonLocation, error)
}

// SystemLocator uses the python3 or python found on PATH.
type SystemLocator struct{}

func (SystemLocator) IsSupported() bool { return true }

func (SystemLocator) LocatePython(ctx context.Context) (*PythonLocation, error) {
	env, err := CreateEnvironmentFromSystem(ctx)
	if err != nil {
		return nil, err
	}
	return env.Location(), nil
}

// ExecutableLocator uses a specific interpreter executable.
type ExecutableLocator struct {
	Path string
}

func (l ExecutableLocator) IsSupported() bool {
	return l.Path != "" && isExecutable(l.Path)
}

func (l ExecutableLocator) LocatePython(ctx context.Context) (*PythonLocation, error) {
	env, err := CreateEnvironmentFromExecutable(ctx, l.Path)
	if err != nil {
		return nil, err
	}
	return env.Location(), nil
}

// FolderLocator uses the interpreter installed under a prefix directory,
// such as /opt/python3.12 or C:\Python312.
type FolderLocator struct {
	Folder string
}

func (l FolderLocator) executable() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(l.Folder, "python.exe")
	}
	for _, name := range []string{"python3", "python"} {
		p := filepath.Join(l.Folder, "bin", name)
		if isExecutable(p) {
			return p
		}
	}
	return ""
}

func (l FolderLocator) IsSupported() bool {
	if l.Folder == "" {
		return false
	}
	info, err := os.Stat(l.Folder)
	return err == nil && info.IsDir()
}

func (l FolderLocator) LocatePython(ctx context.Context) (*PythonLocation, error) {
	exe := l.executable()
	if exe == "" || !isExecutable(exe) {
		return nil, nil
	}
	return ExecutableLocator{Path: exe}.LocatePython(ctx)
}

// EnvironmentVariableLocator uses the prefix directory named by an
// environment variable.
type EnvironmentVariableLocator struct {
	Variable string
}

func (l EnvironmentVariableLocator) folder() FolderLocator {
	return FolderLocator{Folder: os.Getenv(l.Variable)}
}

func (l EnvironmentVariableLocator) IsSupported() bool {
	return l.Variable != "" && l.folder().IsSupported()
}

func (l EnvironmentVariableLocator) LocatePython(ctx context.Context) (*PythonLocation, error) {
	loc, err := l.folder().LocatePython(ctx)
	if err != nil {
		return nil, fmt.Errorf("$%s: %w", l.Variable, err)
	}
	return loc, nil
}

// StaticLocator returns a fixed location without probing.
type StaticLocator struct {
	Location *PythonLocation
}

func (l StaticLocator) IsSupported() bool { return l.Location != nil }

func (l StaticLocator) LocatePython(context.Context) (*PythonLocation, error) {
	return l.Location, nil
}
