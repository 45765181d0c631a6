//go:build windows

package snakebind

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// isExecutable reports whether path is an existing .exe, .bat or .cmd file.
func isExecutable(path string) bool {
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return false
	}
	attrs, err := windows.GetFileAttributes(p)
	if err != nil || attrs&windows.FILE_ATTRIBUTE_DIRECTORY != 0 {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".exe", ".bat", ".cmd":
		return true
	}
	return false
}
