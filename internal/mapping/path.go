package mapping

import "strings"

const (
	// RootSegment prefixes every normalized mapping path.
	RootSegment = "root"

	// WildcardSuffix marks a loop source collection, as in "orders[*]".
	WildcardSuffix = "[*]"
)

// NormalizePath prefixes path with the root segment unless it already has it.
func NormalizePath(path string) string {
	if path == RootSegment || strings.HasPrefix(path, RootSegment+".") {
		return path
	}
	return RootSegment + "." + path
}

// StripRoot removes a leading root segment from path, if present.
func StripRoot(path string) string {
	if path == RootSegment {
		return ""
	}
	return strings.TrimPrefix(path, RootSegment+".")
}

// LastSegment returns the final dotted segment of path.
func LastSegment(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Segments splits a path into its dotted segments, dropping the root segment.
func Segments(path string) []string {
	stripped := StripRoot(path)
	if stripped == "" {
		return nil
	}
	return strings.Split(stripped, ".")
}
