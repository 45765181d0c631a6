//go:build unix

package snakebind_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/richinsley/snakebind"
)

// fakePip writes a pip stand-in that appends its arguments to a log file
// and exits with status code.
func fakePip(t *testing.T, code int) (pip, log string) {
	t.Helper()
	dir := t.TempDir()
	pip = filepath.Join(dir, "pip")
	log = filepath.Join(dir, "args.log")
	script := "#!/bin/sh\necho \"$@\" >> '" + log + "'\n"
	if code == 0 {
		script += "echo 'Successfully installed'\n"
	} else {
		script += "echo 'ERROR: no matching distribution' >&2\n"
	}
	script += "exit " + strconv.Itoa(code) + "\n"
	if err := os.WriteFile(pip, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return pip, log
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestPipInstaller(t *testing.T) {
	pip, log := fakePip(t, 0)
	home := t.TempDir()
	req := filepath.Join(home, "requirements.txt")
	if err := os.WriteFile(req, []byte("numpy\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	inst := &snakebind.PipInstaller{
		Packages: []string{"pandas>=1.0"},
		IndexURL: "https://pypi.example/simple",
		NoCache:  true,
		Pip:      pip,
	}
	if err := inst.InstallPackages(context.Background(), home, ""); err != nil {
		t.Fatal(err)
	}

	base := "install --no-warn-script-location --disable-pip-version-check --no-cache-dir --index-url https://pypi.example/simple "
	want := []string{
		base + "-r " + req,
		base + "pandas>=1.0",
	}
	if diff := cmp.Diff(want, readLines(t, log)); diff != "" {
		t.Errorf("pip invocations mismatch (-want +got):\n%s", diff)
	}
}

func TestPipInstallerNothingToDo(t *testing.T) {
	pip, log := fakePip(t, 0)
	inst := &snakebind.PipInstaller{Pip: pip}
	if err := inst.InstallPackages(context.Background(), t.TempDir(), ""); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(log); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("pip ran without requirements or packages")
	}
}

func TestPipInstallerFailure(t *testing.T) {
	pip, _ := fakePip(t, 3)
	inst := &snakebind.PipInstaller{Pip: pip, Packages: []string{"nonexistent-pkg"}}
	err := inst.InstallPackages(context.Background(), t.TempDir(), "")

	var installErr *snakebind.PackageInstallError
	if !errors.As(err, &installErr) {
		t.Fatalf("InstallPackages error = %v, want *PackageInstallError", err)
	}
	if installErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", installErr.ExitCode)
	}
	if !strings.Contains(installErr.Stderr, "no matching distribution") {
		t.Errorf("Stderr = %q", installErr.Stderr)
	}
	if !strings.HasSuffix(installErr.Command, "nonexistent-pkg") {
		t.Errorf("Command = %q", installErr.Command)
	}
}

func TestPipInstallerVenv(t *testing.T) {
	venv := t.TempDir()
	inst := &snakebind.PipInstaller{Packages: []string{"requests"}}
	err := inst.InstallPackages(context.Background(), t.TempDir(), venv)
	// The virtual environment has no pip, so starting it fails.
	if err == nil || !strings.Contains(err.Error(), "error starting pip install") {
		t.Errorf("InstallPackages error = %v", err)
	}
}
