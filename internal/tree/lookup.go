package tree

import "strings"

const lookupPrefix = "lookup:"

// LookupPath encodes a table lookup of sourcePath as a custom reference path.
func LookupPath(table, sourcePath string) string {
	return lookupPrefix + table + ":" + sourcePath
}

// ParseLookupPath decodes a path built by LookupPath.
func ParseLookupPath(custom string) (table, sourcePath string, ok bool) {
	rest, found := strings.CutPrefix(custom, lookupPrefix)
	if !found {
		return "", "", false
	}
	table, sourcePath, ok = strings.Cut(rest, ":")
	if !ok || table == "" || sourcePath == "" {
		return "", "", false
	}
	return table, sourcePath, true
}
