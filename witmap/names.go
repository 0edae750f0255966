package witmap

import (
	"strings"
	"unicode"
)

// Prefixes for static function names in WIT syntax.
const (
	prefixStatic = "[static]"
	prefixMethod = "[method]"
)

// Kebab converts a foreign identifier to a WIT kebab-case identifier:
//   - "Point" -> "point"
//   - "addTwo" -> "add-two"
//   - "add.args" -> "add-args"
//   - "HTTPServer" -> "http-server"
//   - "Promise(void)" -> "promise-void"
//
// Identifiers that would start with a digit are prefixed with "t-".
func Kebab(name string) string {
	runes := []rune(name)
	var b strings.Builder
	dash := false
	for i, r := range runes {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			dash = b.Len() > 0
			continue
		}
		if unicode.IsUpper(r) && i > 0 && b.Len() > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				dash = true
			}
		}
		if dash {
			b.WriteByte('-')
			dash = false
		}
		b.WriteRune(unicode.ToLower(r))
	}
	out := b.String()
	if out != "" && unicode.IsDigit(rune(out[0])) {
		out = "t-" + out
	}
	return out
}

// StaticName returns the WIT name of a function bound on owner:
// "[static]math.add".
func StaticName(owner, fn string) string {
	return prefixStatic + Kebab(owner) + "." + Kebab(fn)
}

// SplitName splits a WIT function name into owner and function. Plain
// names have no owner. Both "[static]" and "[method]" forms are accepted.
//   - "[static]math.add" -> "math", "add"
//   - "math.add" -> "math", "add"
//   - "add" -> "", "add"
func SplitName(name string) (owner, fn string) {
	for _, p := range []string{prefixStatic, prefixMethod} {
		if strings.HasPrefix(name, p) {
			name = name[len(p):]
			break
		}
	}
	if idx := strings.LastIndexByte(name, '.'); idx > 0 {
		return name[:idx], name[idx+1:]
	}
	return "", name
}

// SameName reports whether a foreign identifier and a WIT identifier name
// the same thing.
func SameName(foreign, wit string) bool {
	return foreign == wit || Kebab(foreign) == Kebab(wit)
}
