package snakebind_test

import (
	"testing"

	"github.com/richinsley/snakebind"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		minor   string
		compact string
	}{
		{"3.10.5", "3.10.5", "3.10", "310"},
		{"3.12", "3.12.0", "3.12", "312"},
		{" 3.9.18\n", "3.9.18", "3.9", "39"},
		{"3.13.0rc1", "3.13.0-rc1", "3.13", "313"},
		{"3.14.0a2", "3.14.0-a2", "3.14", "314"},
	}
	for _, tt := range tests {
		v, err := snakebind.ParseVersion(tt.in)
		if err != nil {
			t.Errorf("ParseVersion(%q): %v", tt.in, err)
			continue
		}
		if got := v.String(); got != tt.want {
			t.Errorf("ParseVersion(%q) = %s, want %s", tt.in, got, tt.want)
		}
		if got := snakebind.MinorString(v); got != tt.minor {
			t.Errorf("MinorString(%q) = %s, want %s", tt.in, got, tt.minor)
		}
		if got := snakebind.MinorStringCompact(v); got != tt.compact {
			t.Errorf("MinorStringCompact(%q) = %s, want %s", tt.in, got, tt.compact)
		}
	}

	if _, err := snakebind.ParseVersion("three"); err == nil {
		t.Error("ParseVersion(three) succeeded")
	}
}

func TestParsePythonVersion(t *testing.T) {
	v, err := snakebind.ParsePythonVersion("Python 3.11.4")
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "3.11.4" {
		t.Errorf("ParsePythonVersion = %s", v)
	}
	for _, bad := range []string{"", "Python", "python 3.11", "Python 3.11 extra"} {
		if _, err := snakebind.ParsePythonVersion(bad); err == nil {
			t.Errorf("ParsePythonVersion(%q) succeeded", bad)
		}
	}
}

func TestParsePipVersion(t *testing.T) {
	v, err := snakebind.ParsePipVersion("pip 23.0.1 from /usr/lib/python3/dist-packages/pip (python 3.11)")
	if err != nil {
		t.Fatal(err)
	}
	if v.String() != "23.0.1" {
		t.Errorf("ParsePipVersion = %s", v)
	}
	if _, err := snakebind.ParsePipVersion("wheel 0.40"); err == nil {
		t.Error("ParsePipVersion(wheel) succeeded")
	}
}
