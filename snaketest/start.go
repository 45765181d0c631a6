package snaketest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/richinsley/snakebind"
)

// Location is the installation reported by Options.
func Location(prefix string) *snakebind.PythonLocation {
	return &snakebind.PythonLocation{
		Prefix:       prefix,
		Executable:   filepath.Join(prefix, "bin", "python3"),
		LibraryPath:  filepath.Join(prefix, "lib", "libpython3.12.so"),
		Version:      semver.MustParse("3.12.4"),
		StdlibPath:   filepath.Join(prefix, "lib", "python3.12"),
		SitePackages: filepath.Join(prefix, "lib", "python3.12", "site-packages"),
	}
}

// Options returns interpreter options that start n with a temporary home
// and a fixed location. Logging is discarded.
func Options(tb testing.TB, n *Interpreter) snakebind.Options {
	tb.Helper()
	return snakebind.Options{
		Home:     tb.TempDir(),
		Locators: []snakebind.Locator{snakebind.StaticLocator{Location: Location("/opt/python")}},
		Native:   n.Factory(),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// Start starts an interpreter backed by n and closes it when the test
// ends. After closing, it fails the test if n saw any misuse.
func Start(tb testing.TB, n *Interpreter) *snakebind.Interpreter {
	tb.Helper()
	interp, err := snakebind.New(context.Background(), Options(tb, n))
	if err != nil {
		tb.Fatalf("start interpreter: %v", err)
	}
	tb.Cleanup(func() {
		if err := interp.Close(); err != nil {
			tb.Errorf("close interpreter: %v", err)
		}
		for _, p := range n.Problems() {
			tb.Errorf("snaketest: %s", p)
		}
	})
	return interp
}
