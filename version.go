package snakebind

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// prerelease matches CPython's release-candidate style suffixes ("3.13.0rc1")
// that semver only accepts with a dash.
var prerelease = regexp.MustCompile(`^(\d+(?:\.\d+){0,2})((?:a|b|rc)\d+.*)$`)

// ParseVersion parses a Python version string such as "3.10.5", "3.10" or
// "3.13.0rc1".
func ParseVersion(versionStr string) (*semver.Version, error) {
	s := strings.TrimSpace(versionStr)
	if m := prerelease.FindStringSubmatch(s); m != nil {
		s = m[1] + "-" + m[2]
	}
	v, err := semver.NewVersion(s)
	if err != nil {
		return nil, fmt.Errorf("error parsing version %q: %w", versionStr, err)
	}
	return v, nil
}

// ParsePythonVersion parses output from "python --version" (e.g., "Python 3.10.5").
func ParsePythonVersion(versionStr string) (*semver.Version, error) {
	parts := strings.Fields(versionStr)
	if len(parts) != 2 || parts[0] != "Python" {
		return nil, fmt.Errorf("invalid version string: %s", versionStr)
	}
	return ParseVersion(parts[1])
}

// ParsePipVersion parses output from "pip --version" (e.g., "pip 23.0 from ...").
func ParsePipVersion(versionStr string) (*semver.Version, error) {
	parts := strings.Fields(versionStr)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "pip") {
		return nil, fmt.Errorf("invalid version string: %s", versionStr)
	}
	return ParseVersion(parts[1])
}

// MinorString returns the version as "major.minor" (e.g., "3.10").
// Used for paths like "lib/python3.10/site-packages".
func MinorString(v *semver.Version) string {
	return fmt.Sprintf("%d.%d", v.Major(), v.Minor())
}

// MinorStringCompact returns the version without separator (e.g., "310").
// Used for Windows names like "python310.dll".
func MinorStringCompact(v *semver.Version) string {
	return fmt.Sprintf("%d%d", v.Major(), v.Minor())
}

func versionString(v *semver.Version) string {
	if v == nil {
		return "unknown"
	}
	return v.Original()
}
