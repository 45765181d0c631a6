//go:build unix

package snakebind

import (
	"os"

	"golang.org/x/sys/unix"
)

// isExecutable reports whether path is a regular file the process may
// execute.
func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return unix.Access(path, unix.X_OK) == nil
}
