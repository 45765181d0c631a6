package snakebind

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// PackageInstaller installs the Python packages an interpreter needs. It
// runs once while the interpreter starts, after the virtual environment
// exists. venvPath is empty when no virtual environment is used.
type PackageInstaller interface {
	InstallPackages(ctx context.Context, home, venvPath string) error
}

// PipInstaller installs the requirements file found in the home directory
// and a list of declared packages using pip. When a virtual environment is
// used, its own pip is run.
type PipInstaller struct {
	// RequirementsFile is relative to home. Empty means "requirements.txt".
	RequirementsFile string

	// Packages are package specifiers (e.g., "numpy", "pandas>=1.0").
	Packages []string

	// IndexURL is a custom PyPI index URL; empty uses the default.
	IndexURL string

	// ExtraIndexURL is an additional package index; empty means none.
	ExtraIndexURL string

	// NoCache disables pip's cache.
	NoCache bool

	// Pip overrides the pip executable.
	Pip string

	Logger *slog.Logger
}

func (p *PipInstaller) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}

// InstallPackages implements PackageInstaller.
func (p *PipInstaller) InstallPackages(ctx context.Context, home, venvPath string) error {
	pip, err := p.pipPath(venvPath)
	if err != nil {
		return err
	}

	reqName := p.RequirementsFile
	if reqName == "" {
		reqName = "requirements.txt"
	}
	requirements := filepath.Join(home, reqName)
	switch _, err := os.Stat(requirements); {
	case err == nil:
		p.logger().Info("installing python requirements", slog.String("file", requirements))
		if err := p.run(ctx, pip, venvPath, "-r", requirements); err != nil {
			return err
		}
	case errors.Is(err, fs.ErrNotExist):
		if len(p.Packages) == 0 {
			p.logger().Warn("no requirements file found, nothing to install", slog.String("file", requirements))
		}
	default:
		return fmt.Errorf("error reading %s: %w", requirements, err)
	}

	if len(p.Packages) > 0 {
		p.logger().Info("installing python packages", slog.Any("packages", p.Packages))
		return p.run(ctx, pip, venvPath, p.Packages...)
	}
	return nil
}

func (p *PipInstaller) pipPath(venvPath string) (string, error) {
	if p.Pip != "" {
		return p.Pip, nil
	}
	if venvPath != "" {
		name := "pip"
		if runtime.GOOS == "windows" {
			name = "pip.exe"
		}
		return filepath.Join(venvBinDir(venvPath), name), nil
	}
	for _, name := range []string{"pip3", "pip"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("pip not found in PATH")
}

func (p *PipInstaller) run(ctx context.Context, pip, venvPath string, targets ...string) error {
	args := []string{"install", "--no-warn-script-location", "--disable-pip-version-check"}
	if p.NoCache {
		args = append(args, "--no-cache-dir")
	}
	if p.IndexURL != "" {
		args = append(args, "--index-url", p.IndexURL)
	}
	if p.ExtraIndexURL != "" {
		args = append(args, "--extra-index-url", p.ExtraIndexURL)
	}
	args = append(args, targets...)

	cmd := exec.CommandContext(ctx, pip, args...)
	if venvPath != "" {
		cmd.Env = append(os.Environ(), "VIRTUAL_ENV="+venvPath)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	for _, line := range strings.Split(strings.TrimSpace(stdout.String()), "\n") {
		if line != "" {
			p.logger().Debug("pip", slog.String("line", line))
		}
	}
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &PackageInstallError{
			Command:  filepath.Base(pip) + " " + strings.Join(args, " "),
			ExitCode: exitErr.ExitCode(),
			Stderr:   stderr.String(),
		}
	}
	return fmt.Errorf("error starting pip install: %w", err)
}
