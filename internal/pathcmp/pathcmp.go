// Package pathcmp normalizes library paths so that whitelist entries, scan roots
// and stored change records compare equal regardless of separator style,
// trailing slashes or (on case-insensitive platforms) letter case.
package pathcmp

import (
	"path"
	"runtime"
	"strings"
)

// CaseInsensitive reports whether path comparisons fold case on this platform.
var CaseInsensitive = runtime.GOOS == "windows" || runtime.GOOS == "darwin"

func isDriveLetter(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// Clean converts separators to '/', cleans dot segments and drops trailing
// slashes. Windows drive roots stay as "C:/".
func Clean(p string) string {
	if p == "" {
		return ""
	}
	p = strings.ReplaceAll(p, "\\", "/")

	if len(p) >= 2 && isDriveLetter(p[0]) && p[1] == ':' {
		drive, rest := p[:2], p[2:]
		if rest == "" {
			return drive
		}
		rest = path.Clean(rest)
		if rest == "/" || rest == "." {
			return drive + "/"
		}
		return drive + rest
	}

	p = path.Clean(p)
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Normalize returns the comparison key for p: Clean plus case folding where the
// platform treats paths case-insensitively.
func Normalize(p string) string {
	p = Clean(p)
	if CaseInsensitive {
		p = strings.ToLower(p)
	}
	return p
}

// Equal reports whether a and b name the same path.
func Equal(a, b string) bool {
	return Normalize(a) == Normalize(b)
}

// Within reports whether child equals parent or lies beneath it.
func Within(child, parent string) bool {
	c, p := Normalize(child), Normalize(parent)
	if c == p {
		return true
	}
	if p == "/" || strings.HasSuffix(p, ":/") {
		return strings.HasPrefix(c, p)
	}
	return strings.HasPrefix(c, p+"/")
}

// Parents returns the normalized ancestors of p, nearest first, ending at the root.
func Parents(p string) []string {
	p = Normalize(p)
	var out []string
	for {
		parent := path.Dir(p)
		if parent == p || parent == "." || parent == "" {
			break
		}
		if len(parent) == 2 && parent[1] == ':' {
			parent += "/"
		}
		out = append(out, parent)
		if parent == "/" || strings.HasSuffix(parent, ":/") {
			break
		}
		p = parent
	}
	return out
}
