package bindgen

import (
	"go/token"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
)

// reservedLocals are identifiers used inside generated methods. Parameters
// with these names get a trailing underscore.
var reservedLocals = map[string]bool{
	"m": true, "s": true, "err": true, "result": true, "ret": true,
	"reg": true, "module": true,
	"snakebind": true, "fmt": true,
	"string": true, "bool": true, "int64": true, "float64": true,
	"byte": true, "error": true, "any": true,
	"nil": true, "true": true, "false": true,
}

var generatedLocal = regexp.MustCompile(`^(arg|kw)\d+$`)

// moduleName is the Python module name of a source file.
func moduleName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// words splits a Python identifier on underscores and other separators.
func words(name string) []string {
	return strings.FieldsFunc(name, func(r rune) bool {
		return r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r))
	})
}

// pascalCase converts snake_case to PascalCase, keeping the case of the
// letters after the first of each word. A name starting with a digit is
// prefixed with "X"; a name with no letters or digits becomes fallback.
func pascalCase(name, fallback string) string {
	var sb strings.Builder
	for _, w := range words(name) {
		sb.WriteString(strings.ToUpper(w[:1]))
		sb.WriteString(w[1:])
	}
	out := sb.String()
	switch {
	case out == "":
		return fallback
	case unicode.IsDigit(rune(out[0])):
		return "X" + out
	}
	return out
}

// lowerCamel converts snake_case to lowerCamelCase.
func lowerCamel(name string) string {
	p := pascalCase(name, "")
	if p == "" {
		return ""
	}
	return strings.ToLower(p[:1]) + p[1:]
}

// paramNames returns Go names for the parameters of one function. Names
// that are keywords, reserved locals or duplicates get underscores
// appended until they are unique.
func paramNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]bool, len(names))
	for i, name := range names {
		n := lowerCamel(name)
		if n == "" {
			n = "p"
		}
		for token.IsKeyword(n) || reservedLocals[n] || generatedLocal.MatchString(n) || used[n] {
			n += "_"
		}
		used[n] = true
		out[i] = n
	}
	return out
}

// implName is the unexported name of the struct implementing the interface.
func implName(name string) string {
	return strings.ToLower(name[:1]) + name[1:] + "Binding"
}
