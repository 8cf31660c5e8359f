// Package pathutil holds path-safety helpers shared by the site file
// server and the backup store. Both take names that originated in a URL,
// so every check assumes hostile input.
package pathutil

import "strings"

// HasDotSegments reports whether any path segment is "." or "..".
func HasDotSegments(p string) bool {
	for _, seg := range strings.Split(p, "/") {
		if seg == "." || seg == ".." {
			return true
		}
	}
	return false
}

// IsSafeBaseName reports whether name can be joined to a directory without
// escaping it: non-empty, no separators, no NUL, and not a dot segment.
func IsSafeBaseName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\\x00") {
		return false
	}
	return true
}
